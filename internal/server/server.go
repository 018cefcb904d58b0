package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"tileworld/internal/config"
	"tileworld/internal/network"
	"tileworld/internal/observer"
	"tileworld/internal/pathfinding"
	"tileworld/internal/preview"
	"tileworld/internal/render"
	"tileworld/internal/stream"
	"tileworld/internal/terrain"
	"tileworld/internal/viewer"
	"tileworld/internal/world"
)

// Server hosts one streamed world: it advances the observer on a fixed tick,
// keeps the chunks around it resident and forwards tiles to the configured
// renderers.
type Server struct {
	cfg    *config.Config
	logger *log.Logger

	generator  *terrain.Generator
	store      *world.Store
	controller *stream.Controller
	recorder   *render.Recorder
	renderers  render.Multi
	feed       observer.Feed
	remote     *observer.Remote
	navigator  *pathfinding.TileNavigator

	net    *network.Server
	fanout *network.Fanout
	udp    *network.Publisher
	hub    *viewer.Hub
	web    *network.Publisher

	newTicker tickerFactory
	ticks     uint64
}

func New(cfg *config.Config, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "tileworld ", log.LstdFlags|log.Lmicroseconds)
	}
	resolved := *cfg
	if resolved.World.Seed == 0 {
		resolved.World.Seed = config.RandomSeed()
		logger.Printf("seed 0 requested, using random seed %d", resolved.World.Seed)
	}

	generator, err := terrain.NewFromConfig(&resolved)
	if err != nil {
		return nil, err
	}
	feed, err := observer.FromConfig(resolved.Observer)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:       &resolved,
		logger:    logger,
		generator: generator,
		recorder:  render.NewRecorder(generator.Catalog()),
		feed:      feed,
		newTicker: defaultTickerFactory(),
	}
	srv.remote, _ = feed.(*observer.Remote)
	srv.navigator = pathfinding.NewTileNavigator(srv.recorder, pathfinding.DefaultMaxNodes)
	srv.renderers = render.Multi{srv.recorder}

	if resolved.Network.Enabled {
		netSrv, err := network.Listen(resolved.Network.ListenUDP, logger, resolved.Network.MaxDatagramSizeBytes)
		if err != nil {
			return nil, err
		}
		srv.net = netSrv
		srv.fanout = network.NewFanout(netSrv, resolved.Network.RendererEndpoints)
		srv.udp = network.NewPublisher(srv.fanout, resolved.Server.ID, logger)
		srv.renderers = append(srv.renderers, srv.udp)
		srv.registerHandlers()
	}
	if resolved.Viewer.Enabled {
		srv.hub = viewer.NewHub(viewer.Options{
			AllowedOrigins: resolved.Viewer.AllowedOrigins,
			Logger:         logger,
			OnMove:         srv.moveObserver,
			OnConnect:      srv.replay,
		})
		srv.web = network.NewPublisher(srv.hub, resolved.Server.ID, logger)
		srv.renderers = append(srv.renderers, srv.web)
	}

	var retention world.RetentionStore
	if resolved.Streaming.Retention == config.RetentionRetain {
		retention = world.NewMemoryRetention(resolved.Streaming.RetainLimit)
	}
	srv.store = world.NewStore(generator, srv.renderers, world.StoreOptions{
		Retention: retention,
		Logger:    logger,
		Verbose:   resolved.Server.Verbose,
	})
	srv.controller, err = stream.NewController(srv.store, stream.SettingsFromConfig(&resolved), logger)
	if err != nil {
		if srv.net != nil {
			srv.net.Close()
		}
		return nil, err
	}
	return srv, nil
}

// Seed is the world seed in use, after resolving a zero seed.
func (s *Server) Seed() int64 { return s.cfg.World.Seed }

func (s *Server) Store() *world.Store { return s.store }

func (s *Server) Recorder() *render.Recorder { return s.recorder }

func (s *Server) registerHandlers() {
	s.net.Register(network.MessageHello, s.onHello)
	s.net.Register(network.MessageObserverMove, s.onObserverMove)
	s.net.Register(network.MessagePathRequest, s.onPathRequest)
}

// onHello subscribes the sender as a renderer and replies with the world
// description. Tiles already resident are not replayed over UDP.
func (s *Server) onHello(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	if s.fanout.Subscribe(addr.String()) {
		s.logger.Printf("renderer %s subscribed", addr)
	}
	if err := s.net.Send(addr.String(), network.MessageHello, s.hello()); err != nil {
		s.logger.Printf("send hello to %s: %v", addr, err)
	}
}

func (s *Server) onObserverMove(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	var move network.ObserverMove
	if err := json.Unmarshal(env.Payload, &move); err != nil {
		s.logger.Printf("decode %s from %s: %v", env.Type, addr, err)
		return
	}
	s.moveObserver(mgl64.Vec2{move.X, move.Y})
}

const pathTimeout = 250 * time.Millisecond

func (s *Server) onPathRequest(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	var req network.PathRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		s.logger.Printf("decode %s from %s: %v", env.Type, addr, err)
		return
	}
	resp := s.FindPath(ctx, req)
	if err := s.net.Send(addr.String(), network.MessagePathResponse, resp); err != nil {
		s.logger.Printf("send path response to %s: %v", addr, err)
	}
}

// FindPath plans a route over the tiles currently shown. Cells outside the
// resident window are never walkable.
func (s *Server) FindPath(ctx context.Context, req network.PathRequest) network.PathResponse {
	ctx, cancel := context.WithTimeout(ctx, pathTimeout)
	defer cancel()

	start := world.WorldCoord{X: req.FromX, Y: req.FromY}
	goal := world.WorldCoord{X: req.ToX, Y: req.ToY}
	route := s.navigator.FindRoute(ctx, start, goal)
	resp := network.PathResponse{RequestID: req.RequestID, Found: route != nil}
	if route != nil {
		resp.Route = make([]network.PathStep, len(route))
		for i, step := range route {
			resp.Route[i] = network.PathStep{X: step.X, Y: step.Y}
		}
	}
	if s.cfg.Server.Verbose {
		s.logger.Printf("path %s %v -> %v found=%t steps=%d", req.RequestID, start, goal, resp.Found, len(route))
	}
	return resp
}

func (s *Server) moveObserver(pos mgl64.Vec2) {
	if s.remote == nil {
		return
	}
	if !finite(pos.X()) || !finite(pos.Y()) {
		s.logger.Printf("ignoring observer move to non-finite position %v", pos)
		return
	}
	s.remote.Set(pos)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (s *Server) hello() network.Hello {
	tiles := s.generator.Catalog().Tiles()
	info := make([]network.TileInfo, len(tiles))
	for i, t := range tiles {
		info[i] = network.TileInfo{ID: int(t.ID), Name: t.Name, Color: t.Color, Solid: t.Solid}
	}
	return network.Hello{
		ServerID:  s.cfg.Server.ID,
		Seed:      s.cfg.World.Seed,
		ChunkSize: s.cfg.World.ChunkSize,
		Tiles:     info,
	}
}

// replay sends the world description and every tile currently shown to a
// newly connected viewer.
func (s *Server) replay(send func(network.MessageType, any) error) {
	if err := send(network.MessageHello, s.hello()); err != nil {
		s.logger.Printf("replay hello: %v", err)
		return
	}
	for _, coord := range s.recorder.Chunks() {
		placements := s.recorder.Placements(coord)
		tiles := make([]network.TileEntry, len(placements))
		for i, p := range placements {
			tiles[i] = network.TileEntry{X: p.Pos.X, Y: p.Pos.Y, Tile: int(p.Tile), Overlay: p.Layer == world.LayerOverlay}
		}
		batch := network.TileBatch{ServerID: s.cfg.Server.ID, ChunkX: coord.X, ChunkY: coord.Y, Tiles: tiles}
		if err := send(network.MessageTileBatch, batch); err != nil {
			s.logger.Printf("replay chunk %v: %v", coord, err)
			return
		}
	}
}

// Step runs one streaming tick and flushes the renderers.
func (s *Server) Step() stream.Report {
	pos := s.feed.Next()
	report := s.controller.Tick(pos)
	s.renderers.Flush()
	s.ticks++

	summary := network.TickSummary{
		ServerID: s.cfg.Server.ID,
		Tick:     s.ticks,
		ChunkX:   report.Observer.X,
		ChunkY:   report.Observer.Y,
		PosX:     pos.X(),
		PosY:     pos.Y(),
		Loaded:   len(report.Loaded),
		Unloaded: len(report.Unloaded),
		Resident: report.Resident,
	}
	for _, pub := range []*network.Publisher{s.udp, s.web} {
		if pub != nil {
			pub.Publish(network.MessageTick, summary)
		}
	}
	return report
}

// WritePreview renders the tiles currently shown to cfg.Preview.Path.
func (s *Server) WritePreview() error {
	path := s.cfg.Preview.Path
	if path == "" {
		return nil
	}
	palette := preview.PaletteFromCatalog(s.generator.Catalog())
	img, _, ok := preview.FromRecorder(s.recorder, palette, s.cfg.Preview.Scale)
	if !ok {
		return fmt.Errorf("write preview: no tiles resident")
	}
	if err := preview.Save(path, img); err != nil {
		return err
	}
	s.logger.Printf("preview written to %s", path)
	return nil
}
