package pathfinding

import (
	"container/heap"
	"context"

	"tileworld/internal/world"
)

// Grid is the tile map a route is planned over. A cell is walkable when it
// shows a ground tile and nothing solid.
type Grid interface {
	TileAt(pos world.WorldCoord, layer world.Layer) (world.TileID, bool)
	Solid(pos world.WorldCoord) bool
}

// DefaultMaxNodes bounds a search over a fully resident 5x5 chunk window.
const DefaultMaxNodes = 16384

// TileNavigator performs A* search over resident tiles with 4-neighbour
// moves.
type TileNavigator struct {
	grid     Grid
	maxNodes int
}

func NewTileNavigator(grid Grid, maxNodes int) *TileNavigator {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &TileNavigator{grid: grid, maxNodes: maxNodes}
}

// Walkable reports whether a unit may stand on pos.
func (n *TileNavigator) Walkable(pos world.WorldCoord) bool {
	return n.walkable(pos, nil)
}

func (n *TileNavigator) walkable(pos world.WorldCoord, profiler NavigatorProfiler) bool {
	if _, ok := n.grid.TileAt(pos, world.LayerGround); !ok {
		if profiler != nil {
			profiler.RecordRejectedCell(false)
		}
		return false
	}
	if n.grid.Solid(pos) {
		if profiler != nil {
			profiler.RecordRejectedCell(true)
		}
		return false
	}
	return true
}

// FindRoute returns the cells from start to goal inclusive, or nil when no
// route exists within the node budget or ctx ends first.
func (n *TileNavigator) FindRoute(ctx context.Context, start, goal world.WorldCoord) []world.WorldCoord {
	profiler := profilerFromContext(ctx)
	if !n.walkable(start, profiler) || !n.walkable(goal, profiler) {
		return nil
	}
	if start == goal {
		return []world.WorldCoord{start}
	}

	open := &tileQueue{}
	heap.Init(open)
	heap.Push(open, &tilePath{coord: start, priority: heuristic(start, goal)})

	cameFrom := map[world.WorldCoord]world.WorldCoord{}
	gScore := map[world.WorldCoord]int{start: 0}
	closed := map[world.WorldCoord]struct{}{}
	var order uint64

	for open.Len() > 0 {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		current := heap.Pop(open).(*tilePath)
		if _, done := closed[current.coord]; done {
			continue
		}
		closed[current.coord] = struct{}{}
		if profiler != nil {
			profiler.RecordNodeExpanded()
		}
		if current.coord == goal {
			return reconstruct(cameFrom, current.coord)
		}
		if len(closed) >= n.maxNodes {
			return nil
		}

		neighbors := n.neighbors(current.coord, profiler)
		if profiler != nil {
			profiler.RecordNeighborGeneration(len(neighbors))
		}
		for _, neighbor := range neighbors {
			tentative := gScore[current.coord] + 1
			if score, ok := gScore[neighbor]; ok && tentative >= score {
				continue
			}
			cameFrom[neighbor] = current.coord
			gScore[neighbor] = tentative
			if profiler != nil {
				profiler.RecordHeuristicEvaluation()
			}
			order++
			heap.Push(open, &tilePath{coord: neighbor, priority: tentative + heuristic(neighbor, goal), order: order})
		}
	}
	return nil
}

func (n *TileNavigator) neighbors(coord world.WorldCoord, profiler NavigatorProfiler) []world.WorldCoord {
	offsets := [...]struct{ dx, dy int }{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	out := make([]world.WorldCoord, 0, len(offsets))
	for _, o := range offsets {
		candidate := world.WorldCoord{X: coord.X + o.dx, Y: coord.Y + o.dy}
		if n.walkable(candidate, profiler) {
			out = append(out, candidate)
		}
	}
	return out
}

func heuristic(a, b world.WorldCoord) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func reconstruct(cameFrom map[world.WorldCoord]world.WorldCoord, current world.WorldCoord) []world.WorldCoord {
	path := []world.WorldCoord{current}
	for {
		prev, ok := cameFrom[current]
		if !ok {
			break
		}
		path = append(path, prev)
		current = prev
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type tilePath struct {
	coord    world.WorldCoord
	priority int
	order    uint64
	index    int
}

// tileQueue orders by priority, then by insertion so equal-cost searches are
// repeatable.
type tileQueue []*tilePath

func (q tileQueue) Len() int { return len(q) }
func (q tileQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].order < q[j].order
}
func (q tileQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *tileQueue) Push(x any) {
	item := x.(*tilePath)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *tileQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
