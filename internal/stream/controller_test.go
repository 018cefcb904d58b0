package stream

import (
	"bytes"
	"errors"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"tileworld/internal/config"
	"tileworld/internal/terrain"
	"tileworld/internal/world"
)

type recordingRenderer struct {
	ops   []string
	emits map[world.ChunkCoord]int
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{emits: make(map[world.ChunkCoord]int)}
}

func (r *recordingRenderer) Emit(chunk world.ChunkCoord, p world.Placement) {
	if len(r.ops) == 0 || r.ops[len(r.ops)-1] != "emit" {
		r.ops = append(r.ops, "emit")
	}
	r.emits[chunk]++
}

func (r *recordingRenderer) Clear(chunk world.ChunkCoord) {
	r.ops = append(r.ops, "clear")
	delete(r.emits, chunk)
}

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func newTestController(t *testing.T, cfg *config.Config, renderer world.Renderer, retention world.RetentionStore) (*Controller, *world.Store) {
	t.Helper()
	gen, err := terrain.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("build generator: %v", err)
	}
	store := world.NewStore(gen, renderer, world.StoreOptions{Retention: retention, Logger: quietLogger()})
	controller, err := NewController(store, SettingsFromConfig(cfg), quietLogger())
	if err != nil {
		t.Fatalf("build controller: %v", err)
	}
	return controller, store
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.World.Seed = 2024
	return cfg
}

func TestTickLoadsSquareAroundObserver(t *testing.T) {
	renderer := newRecordingRenderer()
	controller, store := newTestController(t, testConfig(), renderer, nil)

	report := controller.Tick(mgl64.Vec2{0, 0})
	if len(report.Loaded) != 25 || len(report.Unloaded) != 0 || report.Resident != 25 {
		t.Fatalf("unexpected first tick: loaded=%d unloaded=%d resident=%d", len(report.Loaded), len(report.Unloaded), report.Resident)
	}
	if !report.Moved || report.Observer != (world.ChunkCoord{}) {
		t.Fatalf("first tick should report the observer chunk as moved: %+v", report)
	}
	for dx := -2; dx <= 2; dx++ {
		for dy := -2; dy <= 2; dy++ {
			coord := world.ChunkCoord{X: dx, Y: dy}
			if !store.Contains(coord) {
				t.Fatalf("chunk %v should be resident", coord)
			}
			if renderer.emits[coord] < 256 {
				t.Fatalf("chunk %v emitted %d tiles, want at least 256", coord, renderer.emits[coord])
			}
		}
	}
}

func TestTickIsIdempotentForStationaryObserver(t *testing.T) {
	renderer := newRecordingRenderer()
	controller, store := newTestController(t, testConfig(), renderer, nil)

	controller.Tick(mgl64.Vec2{3.5, 7.25})
	before := make(map[world.ChunkCoord]int, len(renderer.emits))
	for k, v := range renderer.emits {
		before[k] = v
	}
	generated := store.Stats().Generated

	report := controller.Tick(mgl64.Vec2{9, 1})
	if report.Changed() || report.Moved {
		t.Fatalf("stationary tick should change nothing: %+v", report)
	}
	if store.Stats().Generated != generated {
		t.Fatalf("stationary tick regenerated chunks")
	}
	if !reflect.DeepEqual(before, renderer.emits) {
		t.Fatalf("stationary tick re-emitted tiles")
	}
}

func TestTickCrossingBoundary(t *testing.T) {
	renderer := newRecordingRenderer()
	controller, store := newTestController(t, testConfig(), renderer, nil)

	controller.Tick(mgl64.Vec2{0, 0})
	renderer.ops = nil

	report := controller.Tick(mgl64.Vec2{64, 0})
	if report.Observer != (world.ChunkCoord{X: 4, Y: 0}) || !report.Moved {
		t.Fatalf("unexpected observer: %+v", report)
	}
	if len(report.Unloaded) != 19 {
		t.Fatalf("expected 19 unloads, got %d: %v", len(report.Unloaded), report.Unloaded)
	}
	if len(report.Loaded) != 20 {
		t.Fatalf("expected 20 loads, got %d", len(report.Loaded))
	}
	if report.Resident != 26 || store.Len() != 26 {
		t.Fatalf("expected 26 resident chunks, got %d", store.Len())
	}

	if store.Contains(world.ChunkCoord{X: -2, Y: -2}) {
		t.Fatalf("chunk (-2,-2) at distance %.2f should have unloaded", world.ChunkCoord{X: -2, Y: -2}.Distance(world.ChunkCoord{X: 4}))
	}
	if !store.Contains(world.ChunkCoord{X: 1, Y: 0}) {
		t.Fatalf("chunk (1,0) sits exactly at the unload distance and should stay")
	}
	if store.Contains(world.ChunkCoord{X: 1, Y: 1}) {
		t.Fatalf("chunk (1,1) is beyond the unload distance")
	}
	for dx := 2; dx <= 6; dx++ {
		for dy := -2; dy <= 2; dy++ {
			if !store.Contains(world.ChunkCoord{X: dx, Y: dy}) {
				t.Fatalf("chunk (%d,%d) should be resident", dx, dy)
			}
		}
	}
	if _, ok := renderer.emits[world.ChunkCoord{X: -2, Y: -2}]; ok {
		t.Fatalf("renderer still holds tiles for an unloaded chunk")
	}

	want := []string{}
	for i := 0; i < 19; i++ {
		want = append(want, "clear")
	}
	want = append(want, "emit")
	if !reflect.DeepEqual(renderer.ops, want) {
		t.Fatalf("unloads must precede loads within a tick: %v", renderer.ops)
	}
}

func TestTickUnloadOrderIsDeterministic(t *testing.T) {
	controller, _ := newTestController(t, testConfig(), world.NopRenderer{}, nil)
	controller.Tick(mgl64.Vec2{0, 0})
	report := controller.Tick(mgl64.Vec2{64, 0})
	for i := 1; i < len(report.Unloaded); i++ {
		a, b := report.Unloaded[i-1], report.Unloaded[i]
		if a.X > b.X || (a.X == b.X && a.Y >= b.Y) {
			t.Fatalf("unloads not in coordinate order: %v", report.Unloaded)
		}
	}
}

func TestReloadRegeneratesIdenticalTiles(t *testing.T) {
	cfg := testConfig()
	controller, store := newTestController(t, cfg, world.NopRenderer{}, nil)

	target := world.ChunkCoord{X: -2, Y: -2}
	controller.Tick(mgl64.Vec2{0, 0})
	first, _ := store.Chunk(target)
	want := first.Digest()

	controller.Tick(mgl64.Vec2{64, 0})
	controller.Tick(mgl64.Vec2{0, 0})
	second, ok := store.Chunk(target)
	if !ok {
		t.Fatalf("chunk %v should be resident again", target)
	}
	if second == first {
		t.Fatalf("evicted chunk should be rebuilt, not reused")
	}
	if second.Digest() != want {
		t.Fatalf("regenerated chunk differs from the original")
	}
}

func TestRetentionReactivatesInsteadOfGenerating(t *testing.T) {
	cfg := testConfig()
	controller, store := newTestController(t, cfg, world.NopRenderer{}, world.NewMemoryRetention(64))

	controller.Tick(mgl64.Vec2{0, 0})
	controller.Tick(mgl64.Vec2{64, 0})
	if store.Retained() != 19 {
		t.Fatalf("expected 19 deactivated chunks, got %d", store.Retained())
	}
	generated := store.Stats().Generated

	controller.Tick(mgl64.Vec2{0, 0})
	stats := store.Stats()
	if stats.Generated != generated {
		t.Fatalf("returning observer should reactivate chunks, generated %d more", stats.Generated-generated)
	}
	if stats.Reactivated != 19 {
		t.Fatalf("expected 19 reactivations, got %d", stats.Reactivated)
	}
}

func TestZeroRadiusStreamsSingleChunk(t *testing.T) {
	cfg := testConfig()
	cfg.Streaming.LoadRadius = 0
	cfg.Streaming.UnloadDistance = 0
	controller, store := newTestController(t, cfg, world.NopRenderer{}, nil)

	controller.Tick(mgl64.Vec2{-1, -1})
	if store.Len() != 1 || !store.Contains(world.ChunkCoord{X: -1, Y: -1}) {
		t.Fatalf("expected only chunk (-1,-1), got %v", store.Coords())
	}
	report := controller.Tick(mgl64.Vec2{16, -1})
	if len(report.Unloaded) != 1 || len(report.Loaded) != 1 || store.Len() != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestNewControllerRejectsInvalidSettings(t *testing.T) {
	store := world.NewStore(nil, nil, world.StoreOptions{})
	tests := []struct {
		name     string
		settings Settings
		want     string
	}{
		{name: "chunk size", settings: Settings{ChunkSize: 0, LoadRadius: 1, UnloadDistance: 2}, want: "world.chunkSize must be positive"},
		{name: "radius", settings: Settings{ChunkSize: 16, LoadRadius: -1, UnloadDistance: 2}, want: "streaming.loadRadius cannot be negative"},
		{name: "unload inside load", settings: Settings{ChunkSize: 16, LoadRadius: 3, UnloadDistance: 2}, want: "streaming.unloadDistance must be >= streaming.loadRadius"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewController(store, tt.settings, quietLogger())
			var cfgErr *config.ConfigurationError
			if !errors.As(err, &cfgErr) || err.Error() != tt.want {
				t.Fatalf("unexpected error: got %v want %q", err, tt.want)
			}
		})
	}
}

func TestNewControllerWarnsAboutCornerOscillation(t *testing.T) {
	var buf bytes.Buffer
	store := world.NewStore(nil, nil, world.StoreOptions{})
	if _, err := NewController(store, Settings{ChunkSize: 16, LoadRadius: 3, UnloadDistance: 3}, log.New(&buf, "", 0)); err != nil {
		t.Fatalf("build controller: %v", err)
	}
	if !strings.Contains(buf.String(), "corner chunks will reload every tick") {
		t.Fatalf("expected oscillation warning, got %q", buf.String())
	}
}

func TestTickLogsResidencyChanges(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	gen, err := terrain.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("build generator: %v", err)
	}
	store := world.NewStore(gen, nil, world.StoreOptions{Logger: quietLogger()})
	controller, err := NewController(store, SettingsFromConfig(cfg), log.New(&buf, "", 0))
	if err != nil {
		t.Fatalf("build controller: %v", err)
	}

	controller.Tick(mgl64.Vec2{0, 0})
	controller.Tick(mgl64.Vec2{0, 0})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || lines[0] != "tick 1 observer=(0,0) loaded=25 unloaded=0 resident=25" {
		t.Fatalf("unexpected log output: %q", buf.String())
	}
}
