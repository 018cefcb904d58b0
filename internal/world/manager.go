package world

import (
	"log"
	"sort"
	"sync"
)

// Generator produces the placements of one chunk. It must be deterministic:
// the same coordinate yields the same sequence for the lifetime of a world.
type Generator interface {
	Generate(coord ChunkCoord) []Placement
}

// StoreOptions carries the optional collaborators of a Store.
type StoreOptions struct {
	// Retention keeps unloaded chunks for cheap reactivation. Nil evicts.
	Retention RetentionStore
	Logger    *log.Logger
	// Verbose logs every generation and reactivation.
	Verbose bool
}

// Stats counts store activity since creation.
type Stats struct {
	Generated   int
	Reactivated int
	Unloaded    int
}

// Store is the set of resident chunks. Loading a chunk that is already
// resident and unloading one that is not are both no-ops.
type Store struct {
	generator Generator
	renderer  Renderer
	retention RetentionStore
	logger    *log.Logger
	verbose   bool

	// opMu serialises Load and Unload so each chunk is emitted and cleared
	// exactly once per residency.
	opMu sync.Mutex

	mu     sync.RWMutex
	chunks map[ChunkCoord]*Chunk
	stats  Stats
}

func NewStore(generator Generator, renderer Renderer, opts StoreOptions) *Store {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	retention := opts.Retention
	if retention == nil {
		retention = discardRetention{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		generator: generator,
		renderer:  renderer,
		retention: retention,
		logger:    logger,
		verbose:   opts.Verbose,
		chunks:    make(map[ChunkCoord]*Chunk),
	}
}

// Load makes coord resident. It returns false when the chunk was already
// resident. A chunk held by the retention store is re-emitted without a
// generation pass.
func (s *Store) Load(coord ChunkCoord) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Contains(coord) {
		return false
	}

	placements, reactivated := s.retention.Take(coord)
	if !reactivated {
		placements = s.generator.Generate(coord)
	}
	chunk := NewChunk(coord, placements)

	s.mu.Lock()
	s.chunks[coord] = chunk
	if reactivated {
		s.stats.Reactivated++
	} else {
		s.stats.Generated++
	}
	s.mu.Unlock()

	for _, p := range chunk.Placements {
		s.renderer.Emit(coord, p)
	}
	if s.verbose {
		verb := "generated"
		if reactivated {
			verb = "reactivated"
		}
		s.logger.Printf("chunk %v %s placements=%d", coord, verb, len(chunk.Placements))
	}
	return true
}

// Unload releases coord and clears its tiles from the renderer. It returns
// false when the chunk was not resident.
func (s *Store) Unload(coord ChunkCoord) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	chunk, ok := s.chunks[coord]
	if ok {
		delete(s.chunks, coord)
		s.stats.Unloaded++
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.renderer.Clear(coord)
	chunk.Status = StatusDeactivated
	s.retention.Save(coord, chunk.Placements)
	return true
}

func (s *Store) Contains(coord ChunkCoord) bool {
	s.mu.RLock()
	_, ok := s.chunks[coord]
	s.mu.RUnlock()
	return ok
}

// Chunk returns the resident chunk at coord.
func (s *Store) Chunk(coord ChunkCoord) (*Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[coord]
	return chunk, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Coords lists resident chunks ordered by X then Y.
func (s *Store) Coords() []ChunkCoord {
	s.mu.RLock()
	coords := make([]ChunkCoord, 0, len(s.chunks))
	for coord := range s.chunks {
		coords = append(coords, coord)
	}
	s.mu.RUnlock()
	SortCoords(coords)
	return coords
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Retained reports how many deactivated chunks are held for reactivation.
func (s *Store) Retained() int {
	return s.retention.Len()
}

// SortCoords orders coordinates by X then Y.
func SortCoords(coords []ChunkCoord) {
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].X == coords[j].X {
			return coords[i].Y < coords[j].Y
		}
		return coords[i].X < coords[j].X
	})
}
