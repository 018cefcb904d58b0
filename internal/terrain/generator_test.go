package terrain

import (
	"errors"
	"reflect"
	"testing"

	"tileworld/internal/config"
	"tileworld/internal/world"
)

type constantField float64

func (f constantField) Sample(int, int) float64 { return float64(f) }

type funcField func(x, y int) float64

func (f funcField) Sample(x, y int) float64 { return f(x, y) }

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(config.Default().Tiles)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	return catalog
}

func defaultClassifier(t *testing.T, catalog *Catalog) *Classifier {
	t.Helper()
	classifier, err := ClassifierFromConfig(config.Default().Bands, catalog)
	if err != nil {
		t.Fatalf("build classifier: %v", err)
	}
	return classifier
}

func newTestGenerator(t *testing.T, size int, field Sampler) *Generator {
	t.Helper()
	catalog := defaultCatalog(t)
	gen, err := New(Params{
		ChunkSize:  size,
		Field:      field,
		Catalog:    catalog,
		Classifier: defaultClassifier(t, catalog),
		Fallback:   0,
	})
	if err != nil {
		t.Fatalf("build generator: %v", err)
	}
	return gen
}

func newConfigGenerator(t *testing.T, mutate func(*config.Config)) *Generator {
	t.Helper()
	cfg := config.Default()
	cfg.World.Seed = 1337
	if mutate != nil {
		mutate(cfg)
	}
	gen, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("build generator: %v", err)
	}
	return gen
}

func countBySource(placements []world.Placement) map[world.Source]int {
	counts := make(map[world.Source]int)
	for _, p := range placements {
		counts[p.Source]++
	}
	return counts
}

func TestGenerateIsDeterministic(t *testing.T) {
	gen := newConfigGenerator(t, nil)
	for _, coord := range []world.ChunkCoord{{X: 0, Y: 0}, {X: -3, Y: 7}, {X: 12, Y: -40}} {
		first := gen.Generate(coord)
		second := gen.Generate(coord)
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("chunk %v generated differently on the second pass", coord)
		}
		if err := CheckDeterminism(gen, coord); err != nil {
			t.Fatalf("determinism check: %v", err)
		}
	}

	again := newConfigGenerator(t, nil)
	if !reflect.DeepEqual(gen.Generate(world.ChunkCoord{X: 2, Y: 2}), again.Generate(world.ChunkCoord{X: 2, Y: 2})) {
		t.Fatalf("generators built from the same configuration disagree")
	}
}

func TestGenerateCoversEveryCellOnce(t *testing.T) {
	for _, basis := range []string{config.NoisePerlin, config.NoiseValue} {
		gen := newConfigGenerator(t, func(cfg *config.Config) {
			cfg.World.NoiseBasis = basis
		})
		coord := world.ChunkCoord{X: -1, Y: 2}
		placements := gen.Generate(coord)

		seen := make(map[world.WorldCoord]int)
		for _, p := range placements {
			if p.Layer != world.LayerGround {
				continue
			}
			if !coord.Contains(p.Pos, 16) {
				t.Fatalf("%s: ground placement %v outside chunk %v", basis, p.Pos, coord)
			}
			seen[p.Pos]++
		}
		if len(seen) != 16*16 {
			t.Fatalf("%s: expected 256 covered cells, got %d", basis, len(seen))
		}
		for pos, n := range seen {
			if n != 1 {
				t.Fatalf("%s: cell %v decided %d times", basis, pos, n)
			}
		}
	}
}

func TestGenerateRasterOrder(t *testing.T) {
	gen := newTestGenerator(t, 4, constantField(0.95))
	placements := gen.Generate(world.ChunkCoord{X: 1, Y: 1})
	if len(placements) != 16 {
		t.Fatalf("expected 16 placements, got %d", len(placements))
	}
	i := 0
	for y := 4; y < 8; y++ {
		for x := 4; x < 8; x++ {
			if placements[i].Pos != (world.WorldCoord{X: x, Y: y}) {
				t.Fatalf("placement %d at %v, want (%d,%d)", i, placements[i].Pos, x, y)
			}
			i++
		}
	}
}

func TestGenerateHighNoiseYieldsLastBand(t *testing.T) {
	gen := newTestGenerator(t, 16, constantField(0.95))
	for _, p := range gen.Generate(world.ChunkCoord{}) {
		if p.Tile != 9 || p.Source != world.SourceTerrain {
			t.Fatalf("expected rock terrain everywhere, got %+v", p)
		}
	}
}

func TestGenerateAnchorGridUnderConstantAnchorNoise(t *testing.T) {
	gen := newTestGenerator(t, 16, constantField(0.15))
	for _, coord := range []world.ChunkCoord{{X: 0, Y: 0}, {X: -1, Y: -1}} {
		placements := gen.Generate(coord)
		origin := coord.Origin(16)

		counts := countBySource(placements)
		if counts[world.SourceAnchor] != 36 {
			t.Fatalf("chunk %v: expected 36 anchors, got %d", coord, counts[world.SourceAnchor])
		}
		if counts[world.SourceFallback] != 256-36 {
			t.Fatalf("chunk %v: expected 220 fallbacks, got %d", coord, counts[world.SourceFallback])
		}
		if counts[world.SourceCompanion] != 36*4 {
			t.Fatalf("chunk %v: expected 144 companions, got %d", coord, counts[world.SourceCompanion])
		}
		if len(placements) != 400 {
			t.Fatalf("chunk %v: expected 400 placements, got %d", coord, len(placements))
		}

		outside := 0
		for _, p := range placements {
			local := world.WorldCoord{X: p.Pos.X - origin.X, Y: p.Pos.Y - origin.Y}
			switch p.Source {
			case world.SourceAnchor:
				if p.Tile != 1 || local.X%3 != 0 || local.Y%3 != 0 {
					t.Fatalf("unexpected anchor %+v (local %v)", p, local)
				}
			case world.SourceFallback:
				if p.Tile != 0 {
					t.Fatalf("fallback should be tile 0, got %+v", p)
				}
			case world.SourceCompanion:
				if p.Tile != 8 || p.Layer != world.LayerOverlay {
					t.Fatalf("unexpected companion %+v", p)
				}
				if !coord.Contains(p.Pos, 16) {
					outside++
				}
			}
		}
		if outside != 24 {
			t.Fatalf("chunk %v: expected 24 companions past the edge, got %d", coord, outside)
		}
	}
}

func TestGenerateRespectsSeparationInvariant(t *testing.T) {
	// Widen the anchor band so real noise produces many candidates.
	gen := newConfigGenerator(t, func(cfg *config.Config) {
		cfg.Bands = []config.BandConfig{
			{Upper: ptr(0.45), Tile: "grass"},
			{Upper: ptr(0.6), Tile: "tree_trunk"},
			{Tile: "rock"},
		}
	})

	for cx := -2; cx <= 2; cx++ {
		for cy := -2; cy <= 2; cy++ {
			coord := world.ChunkCoord{X: cx, Y: cy}
			placements := gen.Generate(coord)
			var anchors []world.WorldCoord
			overlay := make(map[world.WorldCoord]bool)
			for _, p := range placements {
				switch p.Source {
				case world.SourceAnchor:
					anchors = append(anchors, p.Pos)
				case world.SourceCompanion:
					if overlay[p.Pos] {
						t.Fatalf("chunk %v: companion placed twice at %v", coord, p.Pos)
					}
					overlay[p.Pos] = true
				}
			}
			for i := range anchors {
				for j := i + 1; j < len(anchors); j++ {
					dx := absInt(anchors[i].X - anchors[j].X)
					dy := absInt(anchors[i].Y - anchors[j].Y)
					if dx < 3 && dy < 3 {
						t.Fatalf("chunk %v: anchors %v and %v too close", coord, anchors[i], anchors[j])
					}
				}
				if overlay[anchors[i]] {
					t.Fatalf("chunk %v: companion overwrote anchor at %v", coord, anchors[i])
				}
			}
		}
	}
}

func TestGenerateSeparatesAnchorsOfDifferentTypes(t *testing.T) {
	gen := newConfigGenerator(t, func(cfg *config.Config) {
		cfg.Tiles = append(cfg.Tiles, config.TileConfig{
			Name: "boulder", Color: "#999999", Solid: true, Anchor: true, Offset: &config.TileOffset{X: 3, Y: 3},
		})
		cfg.Bands = []config.BandConfig{
			{Upper: ptr(0.4), Tile: "grass"},
			{Upper: ptr(0.5), Tile: "tree_trunk"},
			{Upper: ptr(0.6), Tile: "boulder"},
			{Tile: "rock"},
		}
	})

	types := make(map[world.TileID]bool)
	for cx := -2; cx <= 2; cx++ {
		for cy := -2; cy <= 2; cy++ {
			coord := world.ChunkCoord{X: cx, Y: cy}
			var anchors []world.Placement
			for _, p := range gen.Generate(coord) {
				if p.Source == world.SourceAnchor {
					anchors = append(anchors, p)
					types[p.Tile] = true
				}
			}
			for i := range anchors {
				for j := i + 1; j < len(anchors); j++ {
					dx := absInt(anchors[i].Pos.X - anchors[j].Pos.X)
					dy := absInt(anchors[i].Pos.Y - anchors[j].Pos.Y)
					if dx < 3 && dy < 3 {
						t.Fatalf("chunk %v: anchors %+v and %+v too close", coord, anchors[i], anchors[j])
					}
				}
			}
		}
	}
	if len(types) != 2 {
		t.Fatalf("expected both anchor types to be placed, got %v", types)
	}
}

func TestGenerateCompanionsNeverLandOnExistingAnchors(t *testing.T) {
	// Offset 1x1 lets adjacent anchors coexist. Foliage from the first anchor
	// reaches (1,0) before the second anchor exists there; foliage from the
	// second anchor must skip the first.
	cfg := config.Default()
	cfg.Tiles[1].Offset = &config.TileOffset{X: 1, Y: 1}
	catalog, err := NewCatalog(cfg.Tiles)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	field := funcField(func(x, y int) float64 {
		if y == 0 && (x == 0 || x == 1) {
			return 0.15
		}
		return 0.95
	})
	gen, err := New(Params{ChunkSize: 4, Field: field, Catalog: catalog, Classifier: defaultClassifier(t, catalog)})
	if err != nil {
		t.Fatalf("build generator: %v", err)
	}

	chunk := world.NewChunk(world.ChunkCoord{}, gen.Generate(world.ChunkCoord{}))
	for _, pos := range []world.WorldCoord{{X: 0, Y: 0}, {X: 1, Y: 0}} {
		if tile, _ := chunk.TileAt(pos, world.LayerGround); tile != 1 {
			t.Fatalf("expected anchor at %v, got %d", pos, tile)
		}
	}
	if _, ok := chunk.TileAt(world.WorldCoord{X: 0, Y: 0}, world.LayerOverlay); ok {
		t.Fatalf("companion placed on an existing anchor")
	}
	wantOverlay := []world.WorldCoord{
		{X: -1, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: -1}, {X: 0, Y: 1},
		{X: 2, Y: 0}, {X: 1, Y: -1}, {X: 1, Y: 1},
	}
	for _, pos := range wantOverlay {
		if tile, ok := chunk.TileAt(pos, world.LayerOverlay); !ok || tile != 8 {
			t.Fatalf("expected foliage at %v", pos)
		}
	}
	if got := countBySource(chunk.Placements)[world.SourceCompanion]; got != len(wantOverlay) {
		t.Fatalf("expected %d companions, got %d", len(wantOverlay), got)
	}
}

func TestNewRejectsInvalidParams(t *testing.T) {
	catalog := defaultCatalog(t)
	classifier := defaultClassifier(t, catalog)
	tests := []struct {
		name      string
		params    Params
		wantField string
	}{
		{name: "zero chunk size", params: Params{ChunkSize: 0, Field: constantField(0), Catalog: catalog, Classifier: classifier}, wantField: "world.chunkSize"},
		{name: "missing fallback", params: Params{ChunkSize: 4, Field: constantField(0), Catalog: catalog, Classifier: classifier, Fallback: 42}, wantField: "world.fallbackTile"},
		{name: "anchor fallback", params: Params{ChunkSize: 4, Field: constantField(0), Catalog: catalog, Classifier: classifier, Fallback: 1}, wantField: "world.fallbackTile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params)
			var cfgErr *config.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Fatalf("unexpected field: got %q want %q", cfgErr.Field, tt.wantField)
			}
		})
	}
}

func TestNewFromConfigValidates(t *testing.T) {
	cfg := config.Default()
	cfg.World.ChunkSize = -1
	_, err := NewFromConfig(cfg)
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "world.chunkSize" {
		t.Fatalf("expected chunk size configuration error, got %v", err)
	}
}

type flakyGenerator struct{ calls int }

func (g *flakyGenerator) Generate(coord world.ChunkCoord) []world.Placement {
	g.calls++
	return []world.Placement{{Pos: world.WorldCoord{}, Tile: world.TileID(g.calls)}}
}

func TestCheckDeterminismReportsInconsistency(t *testing.T) {
	err := CheckDeterminism(&flakyGenerator{}, world.ChunkCoord{X: 5, Y: 5})
	var inconsistent *GenerationInconsistencyError
	if !errors.As(err, &inconsistent) {
		t.Fatalf("expected inconsistency error, got %v", err)
	}
	if inconsistent.Coord != (world.ChunkCoord{X: 5, Y: 5}) || inconsistent.First == inconsistent.Second {
		t.Fatalf("unexpected error contents: %+v", inconsistent)
	}
}

func ptr(v float64) *float64 { return &v }
