package render

import "tileworld/internal/world"

// Multi fans emits and clears out to several renderers in order.
type Multi []world.Renderer

func (m Multi) Emit(chunk world.ChunkCoord, p world.Placement) {
	for _, r := range m {
		r.Emit(chunk, p)
	}
}

func (m Multi) Clear(chunk world.ChunkCoord) {
	for _, r := range m {
		r.Clear(chunk)
	}
}

// Flush forwards to every renderer that batches.
func (m Multi) Flush() {
	for _, r := range m {
		if f, ok := r.(world.Flusher); ok {
			f.Flush()
		}
	}
}
