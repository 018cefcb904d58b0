package viewer

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"tileworld/internal/network"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 256
	// maxBacklog caps broadcasts held for a viewer while its replay runs.
	maxBacklog = 16384
)

// Hub broadcasts envelopes to browser viewers over websockets and accepts
// observerMove messages from them. It implements network.Transport so a
// network.Publisher can stream tiles through it.
type Hub struct {
	logger   *log.Logger
	upgrader websocket.Upgrader
	seq      atomic.Uint64

	mu      sync.RWMutex
	clients map[*client]struct{}

	onMove    func(mgl64.Vec2)
	onConnect func(send func(network.MessageType, any) error)
}

type Options struct {
	AllowedOrigins []string
	Logger         *log.Logger
	// OnMove receives positions sent by viewers. Nil ignores them.
	OnMove func(mgl64.Vec2)
	// OnConnect may replay current state to a new viewer. Messages sent
	// through it precede any broadcast.
	OnConnect func(send func(network.MessageType, any) error)
}

func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "viewer ", log.LstdFlags|log.Lmicroseconds)
	}
	allowed := append([]string(nil), opts.AllowedOrigins...)
	return &Hub{
		logger:    logger,
		clients:   make(map[*client]struct{}),
		onMove:    opts.OnMove,
		onConnect: opts.OnConnect,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				for _, a := range allowed {
					if origin == a {
						return true
					}
				}
				return false
			},
		},
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	once sync.Once

	mu        sync.Mutex
	replaying bool
	backlog   [][]byte
}

// enqueue hands data to the write pump, or holds it while the replay is
// still being written. It reports false when the viewer has fallen behind.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replaying {
		if len(c.backlog) >= maxBacklog {
			return false
		}
		c.backlog = append(c.backlog, data)
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// finishReplay writes broadcasts held during the replay, then switches the
// client over to its send queue.
func (c *client) finishReplay() error {
	for {
		c.mu.Lock()
		pending := c.backlog
		c.backlog = nil
		if len(pending) == 0 {
			c.replaying = false
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
		for _, data := range pending {
			if err := c.write(data); err != nil {
				return err
			}
		}
	}
}

func (c *client) write(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Clients is the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver encodes one envelope and queues it for every viewer. Viewers whose
// queue is full are dropped.
func (h *Hub) Deliver(msg network.MessageType, payload any) error {
	data, err := network.Pack(msg, h.seq.Add(1), payload)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.enqueue(data) {
			h.logger.Printf("viewer %s is not keeping up, disconnecting", c.conn.RemoteAddr())
			delete(h.clients, c)
			c.close()
		}
	}
	return nil
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), hub: h, replaying: true}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Printf("viewer connected from %s", conn.RemoteAddr())

	// Replay goes straight to the socket before the pumps start; broadcasts
	// arriving meanwhile are held in the backlog and follow it.
	if h.onConnect != nil {
		h.onConnect(func(msg network.MessageType, payload any) error {
			data, err := network.Pack(msg, h.seq.Add(1), payload)
			if err != nil {
				return err
			}
			return c.write(data)
		})
	}
	if err := c.finishReplay(); err != nil {
		h.logger.Printf("replay to %s: %v", conn.RemoteAddr(), err)
		h.unregister(c)
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Printf("viewer read error: %v", err)
			}
			return
		}
		env, err := network.Decode(data)
		if err != nil {
			c.hub.logger.Printf("decode viewer message: %v", err)
			continue
		}
		if env.Type != network.MessageObserverMove || c.hub.onMove == nil {
			continue
		}
		var move network.ObserverMove
		if err := json.Unmarshal(env.Payload, &move); err != nil {
			c.hub.logger.Printf("decode %s: %v", env.Type, err)
			continue
		}
		c.hub.onMove(mgl64.Vec2{move.X, move.Y})
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Serve runs an HTTP server with the hub mounted at /ws until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}
