package pathfinding

import (
	"context"
	"sync/atomic"
)

// NavigatorProfiler captures instrumentation hooks for tile pathfinding.
type NavigatorProfiler interface {
	RecordHeuristicEvaluation()
	RecordNodeExpanded()
	RecordNeighborGeneration(count int)
	// RecordRejectedCell is called for every walkability check that fails,
	// with blocked false when no ground tile is shown (the cell is not
	// resident) and true when a solid tile occupies it.
	RecordRejectedCell(blocked bool)
}

// NavigatorMetrics accumulates profiling counters for TileNavigator searches.
type NavigatorMetrics struct {
	heuristicEvaluations atomic.Int64
	nodesExpanded        atomic.Int64
	neighborGenerations  atomic.Int64
	neighborCount        atomic.Int64
	unknownCells         atomic.Int64
	solidCells           atomic.Int64
}

// MetricsSnapshot captures a point-in-time copy of navigator metrics.
type MetricsSnapshot struct {
	HeuristicEvaluations int64
	NodesExpanded        int64
	NeighborGenerations  int64
	NeighborCount        int64
	UnknownCells         int64 // neighbours outside the resident tiles
	SolidCells           int64
}

// Rejections is the total number of cells a search could not step onto.
func (s MetricsSnapshot) Rejections() int64 { return s.UnknownCells + s.SolidCells }

// Profiler returns a NavigatorProfiler backed by this metric set.
func (m *NavigatorMetrics) Profiler() NavigatorProfiler {
	if m == nil {
		return nil
	}
	return (*metricsProfiler)(m)
}

func (m *NavigatorMetrics) Reset() {
	if m == nil {
		return
	}
	m.heuristicEvaluations.Store(0)
	m.nodesExpanded.Store(0)
	m.neighborGenerations.Store(0)
	m.neighborCount.Store(0)
	m.unknownCells.Store(0)
	m.solidCells.Store(0)
}

func (m *NavigatorMetrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		HeuristicEvaluations: m.heuristicEvaluations.Load(),
		NodesExpanded:        m.nodesExpanded.Load(),
		NeighborGenerations:  m.neighborGenerations.Load(),
		NeighborCount:        m.neighborCount.Load(),
		UnknownCells:         m.unknownCells.Load(),
		SolidCells:           m.solidCells.Load(),
	}
}

type metricsProfiler NavigatorMetrics

func (m *metricsProfiler) RecordHeuristicEvaluation() {
	(*NavigatorMetrics)(m).heuristicEvaluations.Add(1)
}

func (m *metricsProfiler) RecordNodeExpanded() {
	(*NavigatorMetrics)(m).nodesExpanded.Add(1)
}

func (m *metricsProfiler) RecordNeighborGeneration(count int) {
	metrics := (*NavigatorMetrics)(m)
	metrics.neighborGenerations.Add(1)
	metrics.neighborCount.Add(int64(count))
}

func (m *metricsProfiler) RecordRejectedCell(blocked bool) {
	metrics := (*NavigatorMetrics)(m)
	if blocked {
		metrics.solidCells.Add(1)
		return
	}
	metrics.unknownCells.Add(1)
}

type profilerContextKey struct{}

// ContextWithProfiler returns a context that reports to profiler during
// searches.
func ContextWithProfiler(ctx context.Context, profiler NavigatorProfiler) context.Context {
	if profiler == nil {
		return ctx
	}
	return context.WithValue(ctx, profilerContextKey{}, profiler)
}

func profilerFromContext(ctx context.Context) NavigatorProfiler {
	if ctx == nil {
		return nil
	}
	if profiler, ok := ctx.Value(profilerContextKey{}).(NavigatorProfiler); ok {
		return profiler
	}
	return nil
}
