package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// WorldCoord is an integer cell position in world space.
type WorldCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c WorldCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// ChunkCoord identifies a chunk on the chunk grid. Chunk (cx, cy) covers the
// world cells [cx*size, cx*size+size) x [cy*size, cy*size+size).
type ChunkCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Origin returns the world cell at the chunk's lower-left corner.
func (c ChunkCoord) Origin(size int) WorldCoord {
	return WorldCoord{X: c.X * size, Y: c.Y * size}
}

// Contains reports whether pos lies inside the chunk's footprint.
func (c ChunkCoord) Contains(pos WorldCoord, size int) bool {
	return ChunkOf(pos, size) == c
}

// Distance is the Euclidean distance between two chunks on the chunk grid.
func (c ChunkCoord) Distance(other ChunkCoord) float64 {
	return math.Hypot(float64(c.X-other.X), float64(c.Y-other.Y))
}

// ChunkOf returns the chunk owning a world cell.
func ChunkOf(pos WorldCoord, size int) ChunkCoord {
	return ChunkCoord{
		X: floorDiv(pos.X, size),
		Y: floorDiv(pos.Y, size),
	}
}

// ChunkAt maps a continuous observer position to the chunk containing it.
func ChunkAt(pos mgl64.Vec2, size int) ChunkCoord {
	if size <= 0 {
		return ChunkCoord{}
	}
	s := float64(size)
	return ChunkCoord{
		X: int(math.Floor(pos.X() / s)),
		Y: int(math.Floor(pos.Y() / s)),
	}
}

// Bounds is a rectangle of world cells with inclusive corners.
type Bounds struct {
	Min WorldCoord
	Max WorldCoord
}

// ChunkBounds returns the footprint of a chunk.
func ChunkBounds(coord ChunkCoord, size int) Bounds {
	min := coord.Origin(size)
	return Bounds{
		Min: min,
		Max: WorldCoord{X: min.X + size - 1, Y: min.Y + size - 1},
	}
}

// Union grows b to cover other.
func (b Bounds) Union(other Bounds) Bounds {
	return Bounds{
		Min: WorldCoord{X: min(b.Min.X, other.Min.X), Y: min(b.Min.Y, other.Min.Y)},
		Max: WorldCoord{X: max(b.Max.X, other.Max.X), Y: max(b.Max.Y, other.Max.Y)},
	}
}

func (b Bounds) Width() int  { return b.Max.X - b.Min.X + 1 }
func (b Bounds) Height() int { return b.Max.Y - b.Min.Y + 1 }

func floorDiv(value, size int) int {
	if size <= 0 {
		return 0
	}
	if value >= 0 {
		return value / size
	}
	return -((-value - 1) / size) - 1
}
