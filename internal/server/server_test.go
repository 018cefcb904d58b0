package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"log"
	"math"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"tileworld/internal/config"
	"tileworld/internal/network"
	"tileworld/internal/world"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.World.Seed = 99
	return cfg
}

func TestNewResolvesZeroSeed(t *testing.T) {
	var logs syncBuffer
	cfg := testConfig()
	cfg.World.Seed = 0
	srv, err := New(cfg, log.New(&logs, "", 0))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if srv.Seed() < 1 || srv.Seed() >= config.MaxSeed {
		t.Fatalf("seed 0 should resolve to a random seed in [1, %d), got %d", config.MaxSeed, srv.Seed())
	}
	if cfg.World.Seed != 0 {
		t.Fatalf("caller config must not be modified")
	}
	if !strings.Contains(logs.String(), "using random seed") {
		t.Fatalf("expected the resolved seed to be logged, got %q", logs.String())
	}
}

func TestRandomSeedWorldHasVariedTerrain(t *testing.T) {
	for i := 0; i < 4; i++ {
		cfg := testConfig()
		cfg.World.Seed = 0
		srv, err := New(cfg, log.New(&syncBuffer{}, "", 0))
		if err != nil {
			t.Fatalf("new server: %v", err)
		}
		srv.Step()
		cells, _, ok := srv.Recorder().Cells()
		if !ok {
			t.Fatalf("seed %d: no tiles after the first step", srv.Seed())
		}
		tiles := make(map[world.TileID]struct{})
		for _, c := range cells {
			if c.Ground != world.NoTile {
				tiles[c.Ground] = struct{}{}
			}
		}
		if len(tiles) < 2 {
			t.Fatalf("seed %d: world has a single ground tile", srv.Seed())
		}
	}
}

func TestRemoteObserverIgnoresNonFinitePositions(t *testing.T) {
	cfg := testConfig()
	cfg.Observer.Mode = config.ObserverRemote
	var logs syncBuffer
	srv, err := New(cfg, log.New(&logs, "", 0))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.moveObserver(mgl64.Vec2{32, 16})
	for _, bad := range []mgl64.Vec2{
		{math.NaN(), 0},
		{0, math.Inf(1)},
		{math.Inf(-1), math.NaN()},
	} {
		srv.moveObserver(bad)
		if got := srv.remote.Next(); got != (mgl64.Vec2{32, 16}) {
			t.Fatalf("move to %v should be ignored, observer at %v", bad, got)
		}
	}
	if !strings.Contains(logs.String(), "non-finite") {
		t.Fatalf("expected rejected moves to be logged, got %q", logs.String())
	}
	if report := srv.Step(); report.Observer != (world.ChunkCoord{X: 2, Y: 1}) {
		t.Fatalf("unexpected observer chunk %v", report.Observer)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Streaming.UnloadDistance = 1
	_, err := New(cfg, log.New(&syncBuffer{}, "", 0))
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStepFollowsPatrol(t *testing.T) {
	cfg := testConfig()
	cfg.Observer = config.ObserverConfig{
		Mode:      config.ObserverPatrol,
		Waypoints: []config.Point{{X: 64, Y: 0}},
		Speed:     64,
	}
	srv, err := New(cfg, log.New(&syncBuffer{}, "", 0))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	first := srv.Step()
	if len(first.Loaded) != 25 {
		t.Fatalf("expected 25 chunks on the first step, got %d", len(first.Loaded))
	}
	second := srv.Step()
	if second.Observer != (world.ChunkCoord{X: 4, Y: 0}) || second.Resident != 26 {
		t.Fatalf("unexpected second step: %+v", second)
	}
	if !reflect.DeepEqual(srv.Recorder().Chunks(), srv.Store().Coords()) {
		t.Fatalf("recorder and store disagree on resident chunks")
	}
}

func TestRunTicksAndWritesPreview(t *testing.T) {
	cfg := testConfig()
	cfg.Preview.Path = filepath.Join(t.TempDir(), "out", "world.png")
	cfg.Preview.Scale = 1
	srv, err := New(cfg, log.New(&syncBuffer{}, "", 0))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ticks := make(chan time.Time)
	srv.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		return ticks, func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	ticks <- time.Now()
	ticks <- time.Now()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
	if srv.ticks != 3 {
		t.Fatalf("expected 3 ticks, got %d", srv.ticks)
	}

	file, err := os.Open(cfg.Preview.Path)
	if err != nil {
		t.Fatalf("open preview: %v", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	// 5x5 chunks of 16 cells, plus companions spilling one cell past the edge.
	if w := img.Bounds().Dx(); w < 80 || w > 82 {
		t.Fatalf("unexpected preview width %d", w)
	}
}

func TestWritePreviewWithoutTiles(t *testing.T) {
	cfg := testConfig()
	cfg.Preview.Path = filepath.Join(t.TempDir(), "world.png")
	srv, err := New(cfg, log.New(&syncBuffer{}, "", 0))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.WritePreview(); err == nil {
		t.Fatalf("expected an error before any tick")
	}
}

func TestRemoteObserverOverUDP(t *testing.T) {
	cfg := testConfig()
	cfg.Network.Enabled = true
	cfg.Network.ListenUDP = "127.0.0.1:0"
	cfg.Observer.Mode = config.ObserverRemote
	srv, err := New(cfg, log.New(&syncBuffer{}, "", 0))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ticks := make(chan time.Time)
	srv.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		return ticks, func() {}
	}
	serverAddr := srv.net.Addr().String()

	client, err := network.Listen("127.0.0.1:0", log.New(&syncBuffer{}, "", 0), 0)
	if err != nil {
		t.Fatalf("listen client: %v", err)
	}
	defer client.Close()
	hellos := make(chan network.Hello, 1)
	summaries := make(chan network.TickSummary, 8)
	client.Register(network.MessageHello, func(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
		var hello network.Hello
		if json.Unmarshal(env.Payload, &hello) == nil {
			select {
			case hellos <- hello:
			default:
			}
		}
	})
	client.Register(network.MessageTick, func(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
		var summary network.TickSummary
		if json.Unmarshal(env.Payload, &summary) == nil {
			summaries <- summary
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Serve(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	if err := client.Send(serverAddr, network.MessageHello, nil); err != nil {
		t.Fatalf("send hello: %v", err)
	}
	select {
	case hello := <-hellos:
		if hello.Seed != 99 || len(hello.Tiles) != 10 {
			t.Fatalf("unexpected hello: %+v", hello)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no hello reply")
	}

	if err := client.Send(serverAddr, network.MessageObserverMove, network.ObserverMove{X: 64, Y: 0}); err != nil {
		t.Fatalf("send move: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for srv.remote.Next() != (mgl64.Vec2{64, 0}) {
		if time.Now().After(deadline) {
			t.Fatalf("observer move never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ticks <- time.Now()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case summary := <-summaries:
			if summary.ChunkX == 4 && summary.ChunkY == 0 {
				cancel()
				<-done
				return
			}
		case <-timeout:
			t.Fatalf("no tick summary for the moved observer")
		}
	}
}

func TestFindPathOverResidentTiles(t *testing.T) {
	srv, err := New(testConfig(), log.New(&syncBuffer{}, "", 0))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.Step()

	var start world.WorldCoord
	found := false
	for x := 0; x < 16 && !found; x++ {
		for y := 0; y < 16 && !found; y++ {
			start = world.WorldCoord{X: x, Y: y}
			found = srv.navigator.Walkable(start)
		}
	}
	if !found {
		t.Fatalf("no walkable cell in the origin chunk")
	}

	resp := srv.FindPath(context.Background(), network.PathRequest{RequestID: "a", FromX: start.X, FromY: start.Y, ToX: start.X, ToY: start.Y})
	if !resp.Found || len(resp.Route) != 1 || resp.RequestID != "a" {
		t.Fatalf("unexpected response %+v", resp)
	}

	resp = srv.FindPath(context.Background(), network.PathRequest{RequestID: "b", FromX: start.X, FromY: start.Y, ToX: 10000, ToY: 10000})
	if resp.Found || resp.Route != nil {
		t.Fatalf("cells outside the resident window should be unreachable: %+v", resp)
	}
}
