package network

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"tileworld/internal/world"
)

// Transport delivers one message to every connected renderer. It returns
// ErrDatagramTooLarge, before sending anything, when the message does not fit.
type Transport interface {
	Deliver(msg MessageType, payload any) error
}

type pendingOp struct {
	clear bool
	chunk world.ChunkCoord
	tiles []TileEntry
}

// Publisher is a world.Renderer that forwards tiles to remote renderers.
// Emits and clears are buffered in order and delivered on Flush, one batch per
// chunk, split further when a batch would not fit the transport.
type Publisher struct {
	transport Transport
	serverID  string
	logger    *log.Logger

	mu      sync.Mutex
	pending []pendingOp
}

func NewPublisher(transport Transport, serverID string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.New(log.Writer(), "network ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Publisher{transport: transport, serverID: serverID, logger: logger}
}

func (p *Publisher) Emit(chunk world.ChunkCoord, placement world.Placement) {
	entry := TileEntry{
		X:       placement.Pos.X,
		Y:       placement.Pos.Y,
		Tile:    int(placement.Tile),
		Overlay: placement.Layer == world.LayerOverlay,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.pending); n > 0 && !p.pending[n-1].clear && p.pending[n-1].chunk == chunk {
		p.pending[n-1].tiles = append(p.pending[n-1].tiles, entry)
		return
	}
	p.pending = append(p.pending, pendingOp{chunk: chunk, tiles: []TileEntry{entry}})
}

func (p *Publisher) Clear(chunk world.ChunkCoord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, pendingOp{clear: true, chunk: chunk})
}

// Flush delivers everything buffered since the last flush.
func (p *Publisher) Flush() {
	p.mu.Lock()
	ops := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, op := range ops {
		if op.clear {
			p.Publish(MessageChunkClear, ChunkClear{ServerID: p.serverID, ChunkX: op.chunk.X, ChunkY: op.chunk.Y})
			continue
		}
		p.sendBatch(op.chunk, op.tiles)
	}
}

// Publish delivers one message immediately, logging failures.
func (p *Publisher) Publish(msg MessageType, payload any) {
	if err := p.transport.Deliver(msg, payload); err != nil {
		p.logger.Printf("deliver %s: %v", msg, err)
	}
}

func (p *Publisher) sendBatch(chunk world.ChunkCoord, tiles []TileEntry) {
	batch := TileBatch{ServerID: p.serverID, ChunkX: chunk.X, ChunkY: chunk.Y, Tiles: tiles}
	err := p.transport.Deliver(MessageTileBatch, batch)
	if errors.Is(err, ErrDatagramTooLarge) && len(tiles) > 1 {
		half := len(tiles) / 2
		p.sendBatch(chunk, tiles[:half])
		p.sendBatch(chunk, tiles[half:])
		return
	}
	if err != nil {
		p.logger.Printf("deliver %s for chunk %v: %v", MessageTileBatch, chunk, err)
	}
}

// Fanout is a UDP Transport over a fixed list of renderer endpoints, grown by
// Subscribe when renderers announce themselves.
type Fanout struct {
	srv *Server

	mu        sync.Mutex
	endpoints []string
}

func NewFanout(srv *Server, endpoints []string) *Fanout {
	f := &Fanout{srv: srv}
	for _, ep := range endpoints {
		f.Subscribe(ep)
	}
	return f
}

// Subscribe adds a renderer address. Duplicates are ignored.
func (f *Fanout) Subscribe(addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ep := range f.endpoints {
		if ep == addr {
			return false
		}
	}
	f.endpoints = append(f.endpoints, addr)
	return true
}

func (f *Fanout) Endpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.endpoints...)
}

func (f *Fanout) Deliver(msg MessageType, payload any) error {
	endpoints := f.Endpoints()
	if len(endpoints) == 0 {
		return nil
	}
	data, err := f.srv.Pack(msg, payload)
	if err != nil {
		return err
	}
	var errs []error
	for _, ep := range endpoints {
		if err := f.srv.WriteTo(ep, data); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", ep, err))
		}
	}
	return errors.Join(errs...)
}
