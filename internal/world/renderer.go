package world

// Renderer receives finalized tiles. Emit is called once per placement while a
// chunk becomes resident, in generation order. Clear must remove everything
// previously emitted for that chunk, including companions outside its
// footprint. Clear for a chunk that was never emitted is a no-op.
type Renderer interface {
	Emit(chunk ChunkCoord, p Placement)
	Clear(chunk ChunkCoord)
}

// Flusher is implemented by renderers that batch emits and clears until the
// end of a streaming tick.
type Flusher interface {
	Flush()
}

// NopRenderer discards everything.
type NopRenderer struct{}

func (NopRenderer) Emit(ChunkCoord, Placement) {}
func (NopRenderer) Clear(ChunkCoord)           {}
