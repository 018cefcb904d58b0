package terrain

import (
	"fmt"

	"tileworld/internal/config"
	"tileworld/internal/world"
)

// Offset is the per-axis minimum separation between anchors of one type.
type Offset struct {
	X int
	Y int
}

// TileMeta describes one entry of the tile catalog.
type TileMeta struct {
	ID        world.TileID
	Name      string
	Color     string
	Solid     bool
	Anchor    bool
	Offset    Offset
	Companion world.TileID
}

// Catalog is the ordered, immutable set of tile types. A tile's ID is its
// position in the catalog.
type Catalog struct {
	tiles  []TileMeta
	byName map[string]world.TileID
}

// NewCatalog resolves tile names and companion references.
func NewCatalog(tiles []config.TileConfig) (*Catalog, error) {
	if len(tiles) == 0 {
		return nil, &config.ConfigurationError{Field: "tiles", Message: "must contain at least 1 entries"}
	}
	c := &Catalog{
		tiles:  make([]TileMeta, len(tiles)),
		byName: make(map[string]world.TileID, len(tiles)),
	}
	for i, tile := range tiles {
		if _, dup := c.byName[tile.Name]; dup {
			return nil, &config.ConfigurationError{Field: fmt.Sprintf("tiles[%d].name", i), Message: fmt.Sprintf("duplicates %q", tile.Name)}
		}
		c.byName[tile.Name] = world.TileID(i)
	}
	for i, tile := range tiles {
		meta := TileMeta{
			ID:        world.TileID(i),
			Name:      tile.Name,
			Color:     tile.Color,
			Solid:     tile.Solid,
			Anchor:    tile.Anchor,
			Companion: world.NoTile,
		}
		if tile.Anchor {
			if tile.Offset == nil || tile.Offset.X <= 0 || tile.Offset.Y <= 0 {
				return nil, &config.ConfigurationError{Field: fmt.Sprintf("tiles[%d].offset", i), Message: "must be positive for anchor tiles"}
			}
			meta.Offset = Offset{X: tile.Offset.X, Y: tile.Offset.Y}
		}
		if tile.Companion != "" {
			id, ok := c.byName[tile.Companion]
			if !ok {
				return nil, &config.ConfigurationError{Field: fmt.Sprintf("tiles[%d].companion", i), Message: fmt.Sprintf("references undefined tile %q", tile.Companion)}
			}
			meta.Companion = id
		}
		c.tiles[i] = meta
	}
	return c, nil
}

// Tile returns the metadata for id.
func (c *Catalog) Tile(id world.TileID) (TileMeta, bool) {
	if id < 0 || int(id) >= len(c.tiles) {
		return TileMeta{}, false
	}
	return c.tiles[id], true
}

// Lookup resolves a tile name.
func (c *Catalog) Lookup(name string) (world.TileID, bool) {
	id, ok := c.byName[name]
	return id, ok
}

func (c *Catalog) Len() int { return len(c.tiles) }

// Tiles returns a copy of the catalog in ID order.
func (c *Catalog) Tiles() []TileMeta {
	out := make([]TileMeta, len(c.tiles))
	copy(out, c.tiles)
	return out
}
