package config

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a JSON and YAML friendly wrapper around time.Duration that
// accepts human readable strings such as "150ms" in configuration files while
// still allowing numeric representations when necessary.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// MarshalYAML mirrors MarshalJSON so YAML documents carry "33ms" style values.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar at line %d", node.Line)
	}
	if node.ShortTag() == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("duration: decode integer: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config captures every tunable of a tile world host. It is read once at
// start and treated as immutable afterwards.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	World     WorldConfig     `json:"world" yaml:"world"`
	Streaming StreamingConfig `json:"streaming" yaml:"streaming"`
	Tiles     []TileConfig    `json:"tiles" yaml:"tiles" validate:"min=1,dive"`
	Bands     []BandConfig    `json:"bands" yaml:"bands" validate:"min=1,dive"`
	Observer  ObserverConfig  `json:"observer" yaml:"observer"`
	Viewer    ViewerConfig    `json:"viewer" yaml:"viewer"`
	Network   NetworkConfig   `json:"network" yaml:"network"`
	Preview   PreviewConfig   `json:"preview" yaml:"preview"`
}

type ServerConfig struct {
	ID       string   `json:"id" yaml:"id" validate:"required"`
	TickRate Duration `json:"tickRate" yaml:"tickRate" validate:"gt=0"` // e.g. "100ms"
	Verbose  bool     `json:"verbose" yaml:"verbose"`                   // log every chunk generation
}

type WorldConfig struct {
	Seed         int64   `json:"seed" yaml:"seed"`                     // 0 picks a random seed at start
	ChunkSize    int     `json:"chunkSize" yaml:"chunkSize" validate:"gt=0"`
	NoiseScale   float64 `json:"noiseScale" yaml:"noiseScale" validate:"gt=0"`
	NoiseBasis   string  `json:"noiseBasis" yaml:"noiseBasis" validate:"oneof=perlin value"`
	FallbackTile string  `json:"fallbackTile" yaml:"fallbackTile" validate:"required"` // replaces rejected anchors
}

// MaxSeed bounds world seeds. The seed is added to cell coordinates in
// float64, so larger magnitudes would collapse neighbouring cells onto one
// sample.
const MaxSeed = math.MaxInt32

// RandomSeed picks a non-zero seed in [1, MaxSeed).
func RandomSeed() int64 {
	return int64(rand.Int32N(MaxSeed-1)) + 1
}

// Noise bases for the terrain field.
const (
	NoisePerlin = "perlin"
	NoiseValue  = "value"
)

// Retention policies for unloaded chunks.
const (
	RetentionEvict  = "evict"
	RetentionRetain = "retain"
)

type StreamingConfig struct {
	LoadRadius     int     `json:"loadRadius" yaml:"loadRadius" validate:"gte=0"`         // Chebyshev half-width in chunks
	UnloadDistance float64 `json:"unloadDistance" yaml:"unloadDistance" validate:"gte=0"` // Euclidean, in chunks
	Retention      string  `json:"retention" yaml:"retention" validate:"oneof=evict retain"`
	RetainLimit    int     `json:"retainLimit" yaml:"retainLimit" validate:"gte=0"` // deactivated chunks kept in memory
}

// TileOffset is the minimum per-axis separation between two anchors of the
// same tile type.
type TileOffset struct {
	X int `json:"x" yaml:"x" validate:"gt=0"`
	Y int `json:"y" yaml:"y" validate:"gt=0"`
}

type TileConfig struct {
	Name      string      `json:"name" yaml:"name" validate:"required"`
	Color     string      `json:"color" yaml:"color" validate:"required,hexcolor"`
	Solid     bool        `json:"solid" yaml:"solid"`
	Anchor    bool        `json:"anchor" yaml:"anchor"`
	Offset    *TileOffset `json:"offset,omitempty" yaml:"offset,omitempty"`
	Companion string      `json:"companion,omitempty" yaml:"companion,omitempty"`
}

// BandConfig maps the noise range below Upper to Tile. The last band has no
// upper bound.
type BandConfig struct {
	Upper *float64 `json:"upper,omitempty" yaml:"upper,omitempty"`
	Tile  string   `json:"tile" yaml:"tile" validate:"required"`
}

// Observer feed modes.
const (
	ObserverFixed  = "fixed"
	ObserverPatrol = "patrol"
	ObserverRemote = "remote"
)

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

type ObserverConfig struct {
	Mode      string  `json:"mode" yaml:"mode" validate:"oneof=fixed patrol remote"`
	Start     Point   `json:"start" yaml:"start"`
	Waypoints []Point `json:"waypoints,omitempty" yaml:"waypoints,omitempty"`
	Speed     float64 `json:"speed" yaml:"speed" validate:"gte=0"` // world cells per tick
}

type ViewerConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	ListenAddr     string   `json:"listenAddr" yaml:"listenAddr" validate:"required_if=Enabled true"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
}

type NetworkConfig struct {
	Enabled              bool     `json:"enabled" yaml:"enabled"`
	ListenUDP            string   `json:"listenUdp" yaml:"listenUdp" validate:"required_if=Enabled true"` // ":19000"
	RendererEndpoints    []string `json:"rendererEndpoints" yaml:"rendererEndpoints"`                     // UDP endpoints receiving tile events
	MaxDatagramSizeBytes int      `json:"maxDatagramSizeBytes" yaml:"maxDatagramSizeBytes" validate:"gt=0"`
}

type PreviewConfig struct {
	Path  string `json:"path,omitempty" yaml:"path,omitempty"` // PNG written on shutdown when set
	Scale int    `json:"scale" yaml:"scale" validate:"gt=0"`
}

// Load reads configuration from a JSON or YAML file if provided. An empty
// path returns defaults. Files ending in .yaml or .yml are decoded as YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	return Decode(data, format)
}

// Config encodings accepted by Decode.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Decode overlays a JSON or YAML document on the defaults and validates the
// result.
func Decode(data []byte, format string) (*Config, error) {
	cfg := Default()
	// Catalog lists replace the defaults wholesale rather than merging
	// element by element.
	cfg.Tiles, cfg.Bands = nil, nil
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, cfg)
	case FormatJSON:
		err = json.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("parse config: unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	defaults := Default()
	if len(cfg.Tiles) == 0 {
		cfg.Tiles = defaults.Tiles
	}
	if len(cfg.Bands) == 0 {
		cfg.Bands = defaults.Bands
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func bound(v float64) *float64 {
	return &v
}

// Default returns the base theme: ten tiles partitioned by nine noise
// boundaries, with the tree trunk as the only anchor tile.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ID:       "tileworld-0",
			TickRate: Duration(100 * time.Millisecond),
		},
		World: WorldConfig{
			Seed:         0,
			ChunkSize:    16,
			NoiseScale:   0.1,
			NoiseBasis:   NoisePerlin,
			FallbackTile: "grass",
		},
		Streaming: StreamingConfig{
			LoadRadius:     2,
			UnloadDistance: 3,
			Retention:      RetentionEvict,
			RetainLimit:    64,
		},
		Tiles: []TileConfig{
			{Name: "grass", Color: "#5a9e3a"},
			{Name: "tree_trunk", Color: "#6b4423", Solid: true, Anchor: true, Offset: &TileOffset{X: 3, Y: 3}, Companion: "foliage"},
			{Name: "tall_grass", Color: "#4c8a2e"},
			{Name: "meadow", Color: "#8fbf4d"},
			{Name: "dirt", Color: "#8b6b3d"},
			{Name: "sand", Color: "#d8c27a"},
			{Name: "shallow_water", Color: "#4aa3c9"},
			{Name: "water", Color: "#2a6fb0", Solid: true},
			{Name: "foliage", Color: "#2f6b22"},
			{Name: "rock", Color: "#7d7d7d", Solid: true},
		},
		Bands: []BandConfig{
			{Upper: bound(0.1), Tile: "grass"},
			{Upper: bound(0.2), Tile: "tree_trunk"},
			{Upper: bound(0.25), Tile: "tall_grass"},
			{Upper: bound(0.40), Tile: "meadow"},
			{Upper: bound(0.5), Tile: "dirt"},
			{Upper: bound(0.6), Tile: "sand"},
			{Upper: bound(0.7), Tile: "shallow_water"},
			{Upper: bound(0.8), Tile: "water"},
			{Upper: bound(0.9), Tile: "foliage"},
			{Tile: "rock"},
		},
		Observer: ObserverConfig{
			Mode:  ObserverFixed,
			Speed: 1,
		},
		Viewer: ViewerConfig{
			Enabled:    false,
			ListenAddr: ":8080",
		},
		Network: NetworkConfig{
			Enabled:              false,
			ListenUDP:            ":19000",
			RendererEndpoints:    []string{},
			MaxDatagramSizeBytes: 1 << 16,
		},
		Preview: PreviewConfig{
			Scale: 4,
		},
	}
}

// TileIndex returns the catalog position of the named tile.
func (c *Config) TileIndex(name string) (int, bool) {
	for i, tile := range c.Tiles {
		if tile.Name == name {
			return i, true
		}
	}
	return -1, false
}
