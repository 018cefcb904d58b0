package world

// RetentionStore keeps the placements of deactivated chunks so a reload can
// re-emit them without a generation pass.
type RetentionStore interface {
	// Save stores placements for coord, possibly evicting older entries.
	Save(coord ChunkCoord, placements []Placement)
	// Take removes and returns the placements stored for coord.
	Take(coord ChunkCoord) ([]Placement, bool)
	Len() int
}

// discardRetention never keeps anything; every reload regenerates.
type discardRetention struct{}

func (discardRetention) Save(ChunkCoord, []Placement)        {}
func (discardRetention) Take(ChunkCoord) ([]Placement, bool) { return nil, false }
func (discardRetention) Len() int                            { return 0 }
