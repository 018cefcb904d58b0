package stream

import (
	"log"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"tileworld/internal/config"
	"tileworld/internal/world"
)

// ChunkStore is the residency set the controller drives.
type ChunkStore interface {
	Load(coord world.ChunkCoord) bool
	Unload(coord world.ChunkCoord) bool
	Coords() []world.ChunkCoord
	Len() int
}

// Settings are the streaming radii, fixed at construction.
type Settings struct {
	ChunkSize      int
	LoadRadius     int     // Chebyshev half-width of the load square, in chunks
	UnloadDistance float64 // Euclidean chunk distance beyond which chunks unload
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		ChunkSize:      cfg.World.ChunkSize,
		LoadRadius:     cfg.Streaming.LoadRadius,
		UnloadDistance: cfg.Streaming.UnloadDistance,
	}
}

// Report summarises one tick.
type Report struct {
	Observer world.ChunkCoord
	// Moved is set when the observer entered a different chunk, and on the
	// first tick.
	Moved    bool
	Loaded   []world.ChunkCoord
	Unloaded []world.ChunkCoord
	Resident int
}

// Changed reports whether the tick altered residency.
func (r Report) Changed() bool {
	return len(r.Loaded) > 0 || len(r.Unloaded) > 0
}

// Controller keeps the chunks around an observer resident. Each tick first
// unloads chunks beyond the unload distance, then loads the square around
// the observer's chunk.
type Controller struct {
	store    ChunkStore
	settings Settings
	logger   *log.Logger

	mu          sync.Mutex
	observer    world.ChunkCoord
	hasObserver bool
	ticks       uint64
}

func NewController(store ChunkStore, settings Settings, logger *log.Logger) (*Controller, error) {
	if settings.ChunkSize <= 0 {
		return nil, &config.ConfigurationError{Field: "world.chunkSize", Message: "must be positive"}
	}
	if settings.LoadRadius < 0 {
		return nil, &config.ConfigurationError{Field: "streaming.loadRadius", Message: "cannot be negative"}
	}
	if settings.UnloadDistance < float64(settings.LoadRadius) {
		return nil, &config.ConfigurationError{Field: "streaming.unloadDistance", Message: "must be >= streaming.loadRadius"}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "stream ", log.LstdFlags|log.Lmicroseconds)
	}
	if corner := float64(settings.LoadRadius) * math.Sqrt2; settings.UnloadDistance < corner {
		logger.Printf("unload distance %.2f is below the load square corner distance %.2f; corner chunks will reload every tick",
			settings.UnloadDistance, corner)
	}
	return &Controller{
		store:    store,
		settings: settings,
		logger:   logger,
	}, nil
}

func (c *Controller) Settings() Settings {
	return c.settings
}

// Observer returns the observer chunk seen by the last tick.
func (c *Controller) Observer() (world.ChunkCoord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observer, c.hasObserver
}

// Tick runs one streaming pass for the observer at pos.
func (c *Controller) Tick(pos mgl64.Vec2) Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	center := world.ChunkAt(pos, c.settings.ChunkSize)
	report := Report{
		Observer: center,
		Moved:    !c.hasObserver || center != c.observer,
	}
	c.observer = center
	c.hasObserver = true
	c.ticks++

	for _, coord := range c.store.Coords() {
		if coord.Distance(center) > c.settings.UnloadDistance {
			if c.store.Unload(coord) {
				report.Unloaded = append(report.Unloaded, coord)
			}
		}
	}

	r := c.settings.LoadRadius
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			coord := world.ChunkCoord{X: center.X + dx, Y: center.Y + dy}
			if c.store.Load(coord) {
				report.Loaded = append(report.Loaded, coord)
			}
		}
	}

	report.Resident = c.store.Len()
	if report.Changed() {
		c.logger.Printf("tick %d observer=%v loaded=%d unloaded=%d resident=%d",
			c.ticks, center, len(report.Loaded), len(report.Unloaded), report.Resident)
	}
	return report
}
