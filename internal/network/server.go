package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDatagramTooLarge is returned by Send when the encoded envelope exceeds
// the configured datagram size.
var ErrDatagramTooLarge = errors.New("datagram too large")

type Handler func(ctx context.Context, addr *net.UDPAddr, env Envelope)

type Server struct {
	conn    *net.UDPConn
	logger  *log.Logger
	maxSize int
	seq     atomic.Uint64

	mu       sync.RWMutex
	handlers map[MessageType][]Handler
}

func Listen(listenAddr string, logger *log.Logger, maxSize int) (*Server, error) {
	if maxSize <= 0 {
		maxSize = 64 * 1024
	}
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "network ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Server{
		conn:     conn,
		logger:   logger,
		maxSize:  maxSize,
		handlers: make(map[MessageType][]Handler),
	}, nil
}

// Addr is the bound local address.
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *Server) MaxSize() int {
	return s.maxSize
}

func (s *Server) Close() error {
	return s.conn.Close()
}

func (s *Server) Register(msgType MessageType, handler Handler) {
	s.mu.Lock()
	s.handlers[msgType] = append(s.handlers[msgType], handler)
	s.mu.Unlock()
}

func (s *Server) Serve(ctx context.Context) error {
	buffer := make([]byte, s.maxSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if nErr, ok := err.(net.Error); ok && nErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		payload := make([]byte, n)
		copy(payload, buffer[:n])

		env, err := Decode(payload)
		if err != nil {
			s.logger.Printf("decode message from %s: %v", addr, err)
			continue
		}

		handlers := s.handlersFor(env.Type)
		if len(handlers) == 0 {
			continue
		}

		for _, handler := range handlers {
			h := handler
			go h(ctx, addr, env)
		}
	}
}

func (s *Server) handlersFor(msgType MessageType) []Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Handler(nil), s.handlers[msgType]...)
}

func (s *Server) Send(addr string, msg MessageType, payload any) error {
	data, err := s.Pack(msg, payload)
	if err != nil {
		return err
	}
	return s.WriteTo(addr, data)
}

// Pack encodes an envelope with the server's next sequence number and checks
// it fits a datagram.
func (s *Server) Pack(msg MessageType, payload any) ([]byte, error) {
	data, err := Pack(msg, s.seq.Add(1), payload)
	if err != nil {
		return nil, err
	}
	if len(data) > s.maxSize {
		return nil, fmt.Errorf("%s message is %d bytes, limit %d: %w", msg, len(data), s.maxSize, ErrDatagramTooLarge)
	}
	return data, nil
}

// WriteTo sends an encoded envelope.
func (s *Server) WriteTo(addr string, data []byte) error {
	target, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(data, target)
	return err
}
