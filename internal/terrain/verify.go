package terrain

import (
	"fmt"

	"tileworld/internal/world"
)

// GenerationInconsistencyError reports two generations of one chunk that
// produced different placements.
type GenerationInconsistencyError struct {
	Coord  world.ChunkCoord
	First  [32]byte
	Second [32]byte
}

func (e *GenerationInconsistencyError) Error() string {
	return fmt.Sprintf("chunk %v generated inconsistently: %x != %x", e.Coord, e.First[:6], e.Second[:6])
}

// CheckDeterminism generates coord twice and compares the results. It is
// meant for tests and tooling.
func CheckDeterminism(gen world.Generator, coord world.ChunkCoord) error {
	first := world.NewChunk(coord, gen.Generate(coord)).Digest()
	second := world.NewChunk(coord, gen.Generate(coord)).Digest()
	if first != second {
		return &GenerationInconsistencyError{Coord: coord, First: first, Second: second}
	}
	return nil
}
