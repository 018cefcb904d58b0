package network

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	MessageHello        MessageType = "hello"
	MessageTileBatch    MessageType = "tileBatch"
	MessageChunkClear   MessageType = "chunkClear"
	MessageTick         MessageType = "tick"
	MessageObserverMove MessageType = "observerMove"
	MessagePathRequest  MessageType = "pathRequest"
	MessagePathResponse MessageType = "pathResponse"
)

type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

// Hello introduces the world to a renderer: enough to decode tile IDs.
type Hello struct {
	ServerID  string     `json:"serverId"`
	Seed      int64      `json:"seed"`
	ChunkSize int        `json:"chunkSize"`
	Tiles     []TileInfo `json:"tiles"`
}

type TileInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Solid bool   `json:"solid,omitempty"`
}

// TileBatch carries placements emitted for one chunk. A chunk's tiles may
// span several batches when they do not fit one datagram.
type TileBatch struct {
	ServerID string      `json:"serverId"`
	ChunkX   int         `json:"chunkX"`
	ChunkY   int         `json:"chunkY"`
	Tiles    []TileEntry `json:"tiles"`
}

type TileEntry struct {
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Tile    int  `json:"tile"`
	Overlay bool `json:"overlay,omitempty"`
}

type ChunkClear struct {
	ServerID string `json:"serverId"`
	ChunkX   int    `json:"chunkX"`
	ChunkY   int    `json:"chunkY"`
}

type TickSummary struct {
	ServerID string  `json:"serverId"`
	Tick     uint64  `json:"tick"`
	ChunkX   int     `json:"chunkX"`
	ChunkY   int     `json:"chunkY"`
	PosX     float64 `json:"posX"`
	PosY     float64 `json:"posY"`
	Loaded   int     `json:"loaded"`
	Unloaded int     `json:"unloaded"`
	Resident int     `json:"resident"`
}

// ObserverMove is sent by a client steering the remote observer.
type ObserverMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PathRequest asks for a walkable route between two world cells over the
// tiles currently resident.
type PathRequest struct {
	RequestID string `json:"requestId"`
	FromX     int    `json:"fromX"`
	FromY     int    `json:"fromY"`
	ToX       int    `json:"toX"`
	ToY       int    `json:"toY"`
}

type PathStep struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type PathResponse struct {
	RequestID string     `json:"requestId"`
	Found     bool       `json:"found"`
	Route     []PathStep `json:"route,omitempty"`
}

func Encode(msg Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// Pack wraps payload in an envelope stamped with seq and encodes it.
func Pack(msgType MessageType, seq uint64, payload any) ([]byte, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	return Encode(Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Seq:       seq,
		Payload:   raw,
	})
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("null"), nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}
