package terrain

import "tileworld/internal/world"

// AnchorSet holds the anchors accepted so far in one chunk's generation.
// A fresh set is used per chunk; separation is never checked across chunks.
type AnchorSet struct {
	order []world.WorldCoord
	tiles map[world.WorldCoord]world.TileID
}

func NewAnchorSet() *AnchorSet {
	return &AnchorSet{tiles: make(map[world.WorldCoord]world.TileID)}
}

func (s *AnchorSet) Add(pos world.WorldCoord, tile world.TileID) {
	if _, ok := s.tiles[pos]; ok {
		return
	}
	s.tiles[pos] = tile
	s.order = append(s.order, pos)
}

// Has reports whether any anchor occupies pos.
func (s *AnchorSet) Has(pos world.WorldCoord) bool {
	_, ok := s.tiles[pos]
	return ok
}

func (s *AnchorSet) Len() int { return len(s.order) }

// Positions returns anchors in acceptance order.
func (s *AnchorSet) Positions() []world.WorldCoord {
	out := make([]world.WorldCoord, len(s.order))
	copy(out, s.order)
	return out
}

// TryPlaceAnchor reports whether an anchor of type meta may stand at pos.
// It is rejected when some accepted anchor, of any type, is closer than the
// candidate's offset on both axes at once; being far enough on either axis
// is sufficient. The set is not modified.
func TryPlaceAnchor(pos world.WorldCoord, meta TileMeta, anchors *AnchorSet) bool {
	for _, other := range anchors.order {
		dx := absInt(pos.X - other.X)
		dy := absInt(pos.Y - other.Y)
		if dx < meta.Offset.X && dy < meta.Offset.Y {
			return false
		}
	}
	return true
}

// CompanionPositions lists the four orthogonal neighbours of an anchor:
// left, right, down, up.
func CompanionPositions(pos world.WorldCoord) [4]world.WorldCoord {
	return [4]world.WorldCoord{
		{X: pos.X - 1, Y: pos.Y},
		{X: pos.X + 1, Y: pos.Y},
		{X: pos.X, Y: pos.Y - 1},
		{X: pos.X, Y: pos.Y + 1},
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
