package server

import (
	"context"
	"time"

	"tileworld/internal/network"
)

type tickerFactory func(time.Duration) (<-chan time.Time, func())

func defaultTickerFactory() tickerFactory {
	return func(d time.Duration) (<-chan time.Time, func()) {
		ticker := time.NewTicker(d)
		return ticker.C, ticker.Stop
	}
}

// Run streams until ctx is done. The first tick runs immediately; the rest
// follow the configured tick rate. The preview, when configured, is written
// on the way out.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.net != nil {
		defer s.net.Close()
		go func() {
			if err := s.net.Serve(ctx); err != nil && ctx.Err() == nil {
				s.logger.Printf("network server stopped: %v", err)
				cancel()
			}
		}()
		s.udp.Publish(network.MessageHello, s.hello())
	}
	if s.hub != nil {
		go func() {
			if err := s.hub.Serve(ctx, s.cfg.Viewer.ListenAddr); err != nil && ctx.Err() == nil {
				s.logger.Printf("viewer server stopped: %v", err)
				cancel()
			}
		}()
	}

	if s.newTicker == nil {
		s.newTicker = defaultTickerFactory()
	}
	tickerC, stop := s.newTicker(s.cfg.Server.TickRate.Duration())
	defer stop()

	s.logger.Printf("streaming world seed=%d chunkSize=%d loadRadius=%d unloadDistance=%.2f",
		s.Seed(), s.cfg.World.ChunkSize, s.cfg.Streaming.LoadRadius, s.cfg.Streaming.UnloadDistance)
	s.Step()
	for {
		select {
		case <-ctx.Done():
			if err := s.WritePreview(); err != nil {
				s.logger.Printf("%v", err)
			}
			return ctx.Err()
		case <-tickerC:
			s.Step()
		}
	}
}
