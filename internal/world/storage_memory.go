package world

import (
	"container/list"
	"sync"
)

type retainedChunk struct {
	coord      ChunkCoord
	placements []Placement
}

// memoryRetention is a bounded LRU of deactivated chunks.
type memoryRetention struct {
	mu      sync.Mutex
	limit   int
	order   *list.List
	entries map[ChunkCoord]*list.Element
}

// NewMemoryRetention returns a RetentionStore holding at most limit chunks.
// A non-positive limit keeps nothing.
func NewMemoryRetention(limit int) RetentionStore {
	if limit <= 0 {
		return discardRetention{}
	}
	return &memoryRetention{
		limit:   limit,
		order:   list.New(),
		entries: make(map[ChunkCoord]*list.Element),
	}
}

func (m *memoryRetention) Save(coord ChunkCoord, placements []Placement) {
	dup := make([]Placement, len(placements))
	copy(dup, placements)

	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[coord]; ok {
		el.Value.(*retainedChunk).placements = dup
		m.order.MoveToFront(el)
		return
	}
	m.entries[coord] = m.order.PushFront(&retainedChunk{coord: coord, placements: dup})
	for m.order.Len() > m.limit {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*retainedChunk).coord)
	}
}

func (m *memoryRetention) Take(coord ChunkCoord) ([]Placement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[coord]
	if !ok {
		return nil, false
	}
	m.order.Remove(el)
	delete(m.entries, coord)
	return el.Value.(*retainedChunk).placements, true
}

func (m *memoryRetention) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
