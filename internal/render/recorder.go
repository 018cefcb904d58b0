package render

import (
	"sync"

	"tileworld/internal/terrain"
	"tileworld/internal/world"
)

type owned struct {
	tile  world.TileID
	owner world.ChunkCoord
}

type cell struct {
	ground  *owned
	overlay []owned // earliest first
}

// Recorder is an in-memory tile map. It keeps what each chunk emitted so
// Clear removes exactly that chunk's tiles, including companions that spilled
// into a neighbour's footprint. When the catalog marks a tile solid the
// recorder tracks a collider for it.
type Recorder struct {
	catalog *terrain.Catalog

	mu        sync.RWMutex
	cells     map[world.WorldCoord]*cell
	chunks    map[world.ChunkCoord][]world.Placement
	colliders int
}

// NewRecorder returns an empty recorder. A nil catalog disables the
// collision policy.
func NewRecorder(catalog *terrain.Catalog) *Recorder {
	return &Recorder{
		catalog: catalog,
		cells:   make(map[world.WorldCoord]*cell),
		chunks:  make(map[world.ChunkCoord][]world.Placement),
	}
}

func (r *Recorder) solid(tile world.TileID) bool {
	if r.catalog == nil {
		return false
	}
	meta, ok := r.catalog.Tile(tile)
	return ok && meta.Solid
}

func (r *Recorder) Emit(chunk world.ChunkCoord, p world.Placement) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cells[p.Pos]
	if !ok {
		c = &cell{}
		r.cells[p.Pos] = c
	}
	entry := owned{tile: p.Tile, owner: chunk}
	if p.Layer == world.LayerOverlay {
		c.overlay = append(c.overlay, entry)
	} else {
		if c.ground != nil && r.solid(c.ground.tile) {
			r.colliders--
		}
		c.ground = &entry
	}
	if r.solid(p.Tile) {
		r.colliders++
	}
	r.chunks[chunk] = append(r.chunks[chunk], p)
}

func (r *Recorder) Clear(chunk world.ChunkCoord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	placements, ok := r.chunks[chunk]
	if !ok {
		return
	}
	delete(r.chunks, chunk)
	for _, p := range placements {
		c, ok := r.cells[p.Pos]
		if !ok {
			continue
		}
		if p.Layer == world.LayerOverlay {
			kept := c.overlay[:0]
			for _, e := range c.overlay {
				if e.owner == chunk {
					if r.solid(e.tile) {
						r.colliders--
					}
					continue
				}
				kept = append(kept, e)
			}
			c.overlay = kept
		} else if c.ground != nil && c.ground.owner == chunk {
			if r.solid(c.ground.tile) {
				r.colliders--
			}
			c.ground = nil
		}
		if c.ground == nil && len(c.overlay) == 0 {
			delete(r.cells, p.Pos)
		}
	}
}

// TileAt returns the visible tile on a layer. For the overlay the earliest
// placement wins.
func (r *Recorder) TileAt(pos world.WorldCoord, layer world.Layer) (world.TileID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cells[pos]
	if !ok {
		return world.NoTile, false
	}
	if layer == world.LayerOverlay {
		if len(c.overlay) == 0 {
			return world.NoTile, false
		}
		return c.overlay[0].tile, true
	}
	if c.ground == nil {
		return world.NoTile, false
	}
	return c.ground.tile, true
}

// Solid reports whether any visible tile at pos carries a collider.
func (r *Recorder) Solid(pos world.WorldCoord) bool {
	if ground, ok := r.TileAt(pos, world.LayerGround); ok && r.solid(ground) {
		return true
	}
	overlay, ok := r.TileAt(pos, world.LayerOverlay)
	return ok && r.solid(overlay)
}

// Colliders counts solid placements currently shown.
func (r *Recorder) Colliders() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.colliders
}

// Chunks lists chunks with emitted tiles, ordered by X then Y.
func (r *Recorder) Chunks() []world.ChunkCoord {
	r.mu.RLock()
	coords := make([]world.ChunkCoord, 0, len(r.chunks))
	for coord := range r.chunks {
		coords = append(coords, coord)
	}
	r.mu.RUnlock()
	world.SortCoords(coords)
	return coords
}

// Placements returns what a chunk emitted, in order.
func (r *Recorder) Placements(chunk world.ChunkCoord) []world.Placement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.chunks[chunk]
	out := make([]world.Placement, len(src))
	copy(out, src)
	return out
}

// Cell is one visible position of the tile map.
type Cell struct {
	Pos     world.WorldCoord
	Ground  world.TileID
	Overlay world.TileID
}

// Cells returns every occupied position with its visible tiles, plus the
// bounding rectangle. ok is false when nothing is shown.
func (r *Recorder) Cells() (cells []Cell, bounds world.Bounds, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cells = make([]Cell, 0, len(r.cells))
	for pos, c := range r.cells {
		out := Cell{Pos: pos, Ground: world.NoTile, Overlay: world.NoTile}
		if c.ground != nil {
			out.Ground = c.ground.tile
		}
		if len(c.overlay) > 0 {
			out.Overlay = c.overlay[0].tile
		}
		point := world.Bounds{Min: pos, Max: pos}
		if !ok {
			bounds, ok = point, true
		} else {
			bounds = bounds.Union(point)
		}
		cells = append(cells, out)
	}
	return cells, bounds, ok
}
