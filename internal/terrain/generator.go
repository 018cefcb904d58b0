package terrain

import (
	"fmt"

	"tileworld/internal/config"
	"tileworld/internal/world"
)

// Params wires the pieces of a Generator together.
type Params struct {
	ChunkSize  int
	Field      Sampler
	Catalog    *Catalog
	Classifier *Classifier
	Fallback   world.TileID
}

// Generator produces the placements of a chunk from the noise field, band
// table and anchor rules. It holds no per-chunk state between calls and is
// safe for concurrent use.
type Generator struct {
	size       int
	field      Sampler
	catalog    *Catalog
	classifier *Classifier
	fallback   world.TileID
}

func New(p Params) (*Generator, error) {
	if p.ChunkSize <= 0 {
		return nil, &config.ConfigurationError{Field: "world.chunkSize", Message: "must be positive"}
	}
	if p.Field == nil || p.Catalog == nil || p.Classifier == nil {
		return nil, fmt.Errorf("generator requires a field, catalog and classifier")
	}
	meta, ok := p.Catalog.Tile(p.Fallback)
	if !ok {
		return nil, &config.ConfigurationError{Field: "world.fallbackTile", Message: "must reference a catalog tile"}
	}
	if meta.Anchor {
		return nil, &config.ConfigurationError{Field: "world.fallbackTile", Message: "cannot be an anchor tile"}
	}
	for _, band := range p.Classifier.Bands() {
		if _, ok := p.Catalog.Tile(band.Tile); !ok {
			return nil, &config.ConfigurationError{Field: "bands", Message: fmt.Sprintf("tile %d is not in the catalog", band.Tile)}
		}
	}
	return &Generator{
		size:       p.ChunkSize,
		field:      p.Field,
		catalog:    p.Catalog,
		classifier: p.Classifier,
		fallback:   p.Fallback,
	}, nil
}

// NewFromConfig validates cfg and builds the noise field, catalog and
// classifier it describes. cfg.World.Seed is used as is.
func NewFromConfig(cfg *config.Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configure generator: %w", err)
	}
	field, err := NewNoiseField(cfg.World.Seed, cfg.World.NoiseScale, cfg.World.NoiseBasis)
	if err != nil {
		return nil, fmt.Errorf("build noise field: %w", err)
	}
	catalog, err := NewCatalog(cfg.Tiles)
	if err != nil {
		return nil, fmt.Errorf("build tile catalog: %w", err)
	}
	classifier, err := ClassifierFromConfig(cfg.Bands, catalog)
	if err != nil {
		return nil, fmt.Errorf("build band table: %w", err)
	}
	fallback, _ := catalog.Lookup(cfg.World.FallbackTile)
	return New(Params{
		ChunkSize:  cfg.World.ChunkSize,
		Field:      field,
		Catalog:    catalog,
		Classifier: classifier,
		Fallback:   fallback,
	})
}

func (g *Generator) ChunkSize() int { return g.size }

func (g *Generator) Catalog() *Catalog { return g.catalog }

func (g *Generator) Fallback() world.TileID { return g.fallback }

// Generate visits the chunk's cells row by row, x innermost. Every cell gets
// exactly one ground placement. An anchor candidate that violates the
// separation rule becomes the fallback tile; an accepted anchor adds its
// companion on neighbouring cells that hold neither an anchor nor an earlier
// companion. Companions may spill over the chunk edge.
func (g *Generator) Generate(coord world.ChunkCoord) []world.Placement {
	origin := coord.Origin(g.size)
	anchors := NewAnchorSet()
	overlay := make(map[world.WorldCoord]struct{})
	placements := make([]world.Placement, 0, g.size*g.size)

	for y := 0; y < g.size; y++ {
		for x := 0; x < g.size; x++ {
			pos := world.WorldCoord{X: origin.X + x, Y: origin.Y + y}
			tile := g.classifier.Classify(g.field.Sample(pos.X, pos.Y))
			meta, _ := g.catalog.Tile(tile)

			if !meta.Anchor {
				placements = append(placements, world.Placement{Pos: pos, Tile: tile, Source: world.SourceTerrain})
				continue
			}
			if !TryPlaceAnchor(pos, meta, anchors) {
				placements = append(placements, world.Placement{Pos: pos, Tile: g.fallback, Source: world.SourceFallback})
				continue
			}

			anchors.Add(pos, tile)
			placements = append(placements, world.Placement{Pos: pos, Tile: tile, Source: world.SourceAnchor})
			if meta.Companion == world.NoTile {
				continue
			}
			for _, adj := range CompanionPositions(pos) {
				if anchors.Has(adj) {
					continue
				}
				if _, taken := overlay[adj]; taken {
					continue
				}
				overlay[adj] = struct{}{}
				placements = append(placements, world.Placement{
					Pos:    adj,
					Tile:   meta.Companion,
					Layer:  world.LayerOverlay,
					Source: world.SourceCompanion,
				})
			}
		}
	}
	return placements
}
