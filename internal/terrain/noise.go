package terrain

import (
	"fmt"
	"math"

	"github.com/aquilax/go-perlin"

	"tileworld/internal/config"
)

// Sampler yields a deterministic scalar in [0, 1) for every world cell.
type Sampler interface {
	Sample(x, y int) float64
}

// Perlin parameters. The lattice is built from a fixed basis seed; the world
// seed shifts the sampling coordinates instead.
const (
	perlinAlpha     = 2
	perlinBeta      = 2
	perlinOctaves   = 3
	perlinBasisSeed = 0x5eed
)

// NoiseField is a seeded 2D noise field sampled at integer cells.
type NoiseField struct {
	seed  int64
	scale float64
	basis func(x, y float64) float64
}

// NewNoiseField builds a field for the given basis ("perlin" or "value").
// The world seed is folded into both axes before scaling, so a seed shifts
// the field rather than reshaping it.
func NewNoiseField(seed int64, scale float64, basis string) (*NoiseField, error) {
	if scale <= 0 {
		return nil, &config.ConfigurationError{Field: "world.noiseScale", Message: "must be positive"}
	}
	if seed > config.MaxSeed || seed < -config.MaxSeed {
		return nil, &config.ConfigurationError{Field: "world.seed", Message: fmt.Sprintf("must be within [-%d, %d]", config.MaxSeed, config.MaxSeed)}
	}
	f := &NoiseField{seed: seed, scale: scale}
	switch basis {
	case "", config.NoisePerlin:
		p := perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, perlinBasisSeed)
		f.basis = p.Noise2D
	case config.NoiseValue:
		f.basis = fractalValueNoise
	default:
		return nil, &config.ConfigurationError{Field: "world.noiseBasis", Message: fmt.Sprintf("unknown basis %q", basis)}
	}
	return f, nil
}

func (f *NoiseField) Seed() int64 { return f.seed }

// Sample returns the field value at a world cell. Values are in [0, 1).
func (f *NoiseField) Sample(x, y int) float64 {
	sx := (float64(x) + float64(f.seed)) * f.scale
	sy := (float64(y) + float64(f.seed)) * f.scale
	return normalize(f.basis(sx, sy))
}

var belowOne = math.Nextafter(1, 0)

// normalize maps a basis value in [-1, 1] onto [0, 1).
func normalize(v float64) float64 {
	n := (v + 1) * 0.5
	if n < 0 || math.IsNaN(n) {
		return 0
	}
	if n > belowOne {
		return belowOne
	}
	return n
}

const (
	valueOctaves     = 3
	valuePersistence = 0.5
	valueLacunarity  = 2.0
)

// fractalValueNoise sums octaves of hashed value noise. Output is in [-1, 1].
func fractalValueNoise(x, y float64) float64 {
	frequency := 1.0
	amplitude := 1.0
	noiseSum := 0.0
	maxAmplitude := 0.0

	for i := 0; i < valueOctaves; i++ {
		noiseSum += valueNoise(x*frequency, y*frequency, int64(i)) * amplitude
		maxAmplitude += amplitude
		amplitude *= valuePersistence
		frequency *= valueLacunarity
	}
	return noiseSum / maxAmplitude
}

func valueNoise(x, y float64, octave int64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1

	sx := smooth(x - float64(x0))
	sy := smooth(y - float64(y0))

	ix0 := lerp(random2D(x0, y0, octave), random2D(x1, y0, octave), sx)
	ix1 := lerp(random2D(x0, y1, octave), random2D(x1, y1, octave), sx)
	return lerp(ix0, ix1, sy)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// random2D returns a lattice value in [-1, 1).
func random2D(x, y int, seed int64) float64 {
	return float64(hash3(x, y, int(seed))&0xFFFF)/0x8000 - 1.0
}

func hash3(x, y, z int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}
