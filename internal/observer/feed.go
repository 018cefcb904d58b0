package observer

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"tileworld/internal/config"
)

// Feed supplies the observer position for each streaming tick. Next is called
// exactly once per tick.
type Feed interface {
	Next() mgl64.Vec2
}

// Fixed never moves.
type Fixed struct {
	Pos mgl64.Vec2
}

func (f Fixed) Next() mgl64.Vec2 { return f.Pos }

// Patrol walks a closed loop of waypoints at a constant speed, starting from
// an initial position. The first tick reports the start.
type Patrol struct {
	pos       mgl64.Vec2
	waypoints []mgl64.Vec2
	speed     float64
	target    int
	started   bool
}

func NewPatrol(start mgl64.Vec2, waypoints []mgl64.Vec2, speed float64) *Patrol {
	return &Patrol{
		pos:       start,
		waypoints: append([]mgl64.Vec2(nil), waypoints...),
		speed:     speed,
	}
}

func (p *Patrol) Next() mgl64.Vec2 {
	if !p.started {
		p.started = true
		return p.pos
	}
	if len(p.waypoints) == 0 || p.speed <= 0 {
		return p.pos
	}
	budget := p.speed
	for steps := 0; budget > 0 && steps <= len(p.waypoints); steps++ {
		goal := p.waypoints[p.target]
		delta := goal.Sub(p.pos)
		dist := delta.Len()
		if dist > budget {
			p.pos = p.pos.Add(delta.Mul(budget / dist))
			break
		}
		p.pos = goal
		budget -= dist
		p.target = (p.target + 1) % len(p.waypoints)
	}
	return p.pos
}

// Remote reports the latest position pushed by a client.
type Remote struct {
	mu  sync.Mutex
	pos mgl64.Vec2
}

func NewRemote(start mgl64.Vec2) *Remote {
	return &Remote{pos: start}
}

func (r *Remote) Set(pos mgl64.Vec2) {
	r.mu.Lock()
	r.pos = pos
	r.mu.Unlock()
}

func (r *Remote) Next() mgl64.Vec2 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// FromConfig builds the feed named by cfg.Mode.
func FromConfig(cfg config.ObserverConfig) (Feed, error) {
	start := vec(cfg.Start)
	switch cfg.Mode {
	case "", config.ObserverFixed:
		return Fixed{Pos: start}, nil
	case config.ObserverPatrol:
		if len(cfg.Waypoints) == 0 {
			return nil, &config.ConfigurationError{Field: "observer.waypoints", Message: "must be set for patrol mode"}
		}
		waypoints := make([]mgl64.Vec2, len(cfg.Waypoints))
		for i, wp := range cfg.Waypoints {
			waypoints[i] = vec(wp)
		}
		return NewPatrol(start, waypoints, cfg.Speed), nil
	case config.ObserverRemote:
		return NewRemote(start), nil
	default:
		return nil, &config.ConfigurationError{Field: "observer.mode", Message: fmt.Sprintf("unknown mode %q", cfg.Mode)}
	}
}

func vec(p config.Point) mgl64.Vec2 {
	return mgl64.Vec2{p.X, p.Y}
}
