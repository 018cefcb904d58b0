package world

import (
	"crypto/sha256"
	"encoding/binary"
)

// TileID is the position of a tile type in the ordered tile catalog.
type TileID int

// NoTile marks the absence of a tile, e.g. an anchor without a companion.
const NoTile TileID = -1

// Layer separates the one-per-cell classification result from decoration
// placed on top of it.
type Layer uint8

const (
	LayerGround Layer = iota
	LayerOverlay
)

func (l Layer) String() string {
	if l == LayerOverlay {
		return "overlay"
	}
	return "ground"
}

// Source records which rule produced a placement.
type Source uint8

const (
	SourceTerrain   Source = iota // plain band classification
	SourceAnchor                  // anchor accepted by the separation rule
	SourceFallback                // anchor rejected, fallback tile emitted instead
	SourceCompanion               // companion around an accepted anchor
)

func (s Source) String() string {
	switch s {
	case SourceAnchor:
		return "anchor"
	case SourceFallback:
		return "fallback"
	case SourceCompanion:
		return "companion"
	default:
		return "terrain"
	}
}

// Placement is one finalized tile decision.
type Placement struct {
	Pos    WorldCoord
	Tile   TileID
	Layer  Layer
	Source Source
}

// Status tracks a chunk through its lifecycle.
type Status uint8

const (
	StatusUngenerated Status = iota
	StatusGenerated
	StatusDeactivated
)

func (s Status) String() string {
	switch s {
	case StatusGenerated:
		return "generated"
	case StatusDeactivated:
		return "deactivated"
	default:
		return "ungenerated"
	}
}

// Chunk holds the finalized placements of one chunk in emission order.
// Companion placements may lie outside the chunk's footprint; they still
// belong to the chunk that produced them.
type Chunk struct {
	Coord      ChunkCoord
	Status     Status
	Placements []Placement

	ground  map[WorldCoord]TileID
	overlay map[WorldCoord]TileID
}

// NewChunk indexes placements for lookup. The slice is retained.
func NewChunk(coord ChunkCoord, placements []Placement) *Chunk {
	c := &Chunk{
		Coord:      coord,
		Status:     StatusGenerated,
		Placements: placements,
		ground:     make(map[WorldCoord]TileID, len(placements)),
		overlay:    make(map[WorldCoord]TileID),
	}
	for _, p := range placements {
		if p.Layer == LayerOverlay {
			c.overlay[p.Pos] = p.Tile
			continue
		}
		c.ground[p.Pos] = p.Tile
	}
	return c
}

// TileAt returns the tile placed at pos on the given layer.
func (c *Chunk) TileAt(pos WorldCoord, layer Layer) (TileID, bool) {
	var tile TileID
	var ok bool
	if layer == LayerOverlay {
		tile, ok = c.overlay[pos]
	} else {
		tile, ok = c.ground[pos]
	}
	if !ok {
		return NoTile, false
	}
	return tile, true
}

// GroundCount is the number of cells carrying a classification decision.
func (c *Chunk) GroundCount() int {
	return len(c.ground)
}

// Digest hashes the placement sequence. Two generations of the same chunk
// with the same configuration produce the same digest.
func (c *Chunk) Digest() [32]byte {
	h := sha256.New()
	var buf [26]byte
	for _, p := range c.Placements {
		binary.LittleEndian.PutUint64(buf[0:], uint64(int64(p.Pos.X)))
		binary.LittleEndian.PutUint64(buf[8:], uint64(int64(p.Pos.Y)))
		binary.LittleEndian.PutUint64(buf[16:], uint64(int64(p.Tile)))
		buf[24] = byte(p.Layer)
		buf[25] = byte(p.Source)
		h.Write(buf[:])
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
