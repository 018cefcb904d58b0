package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"tileworld/internal/config"
	"tileworld/internal/pathfinding"
	"tileworld/internal/render"
	"tileworld/internal/terrain"
	"tileworld/internal/world"
)

type pathJob struct {
	start world.WorldCoord
	goal  world.WorldCoord
}

func main() {
	var (
		cfgPath       = flag.String("config", "", "path to world configuration file (JSON or YAML)")
		totalRequests = flag.Int("requests", 2000, "number of pathfinding requests to issue")
		concurrency   = flag.Int("concurrency", runtime.NumCPU(), "number of concurrent workers")
		radius        = flag.Int("radius", 2, "chunks around the origin to generate")
		maxNodes      = flag.Int("maxNodes", pathfinding.DefaultMaxNodes, "node budget per search")
		timeout       = flag.Duration("timeout", 250*time.Millisecond, "per-request timeout")
		worldSeed     = flag.Int64("worldSeed", 0, "world seed; overrides the config when non-zero")
		seed          = flag.Uint64("seed", 1337, "random seed for start/goal selection")
	)
	flag.Parse()

	if *totalRequests <= 0 {
		fmt.Fprintln(os.Stderr, "requests must be positive")
		os.Exit(1)
	}
	if *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency must be positive")
		os.Exit(1)
	}
	if *radius < 0 {
		fmt.Fprintln(os.Stderr, "radius cannot be negative")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *worldSeed != 0 {
		cfg.World.Seed = *worldSeed
	}
	if cfg.World.Seed == 0 {
		cfg.World.Seed = config.RandomSeed()
	}

	generator, err := terrain.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("build generator: %v", err)
	}
	recorder := render.NewRecorder(generator.Catalog())
	store := world.NewStore(generator, recorder, world.StoreOptions{Logger: log.Default()})
	genStart := time.Now()
	for dx := -*radius; dx <= *radius; dx++ {
		for dy := -*radius; dy <= *radius; dy++ {
			store.Load(world.ChunkCoord{X: dx, Y: dy})
		}
	}
	genDuration := time.Since(genStart)

	navigator := pathfinding.NewTileNavigator(recorder, *maxNodes)
	candidates := collectWalkable(recorder, navigator)
	if len(candidates) < 2 {
		fmt.Fprintln(os.Stderr, "not enough walkable tiles to profile")
		os.Exit(1)
	}

	jobs := make(chan pathJob)
	go func() {
		defer close(jobs)
		rng := rand.New(rand.NewPCG(*seed, *seed))
		for i := 0; i < *totalRequests; i++ {
			start := candidates[rng.IntN(len(candidates))]
			goal := candidates[rng.IntN(len(candidates))]
			for start == goal {
				goal = candidates[rng.IntN(len(candidates))]
			}
			jobs <- pathJob{start: start, goal: goal}
		}
	}()

	metrics := &pathfinding.NavigatorMetrics{}
	ctx := pathfinding.ContextWithProfiler(context.Background(), metrics.Profiler())

	var (
		wg                 sync.WaitGroup
		totalSuccessLength atomic.Int64
		totalRouteDuration atomic.Int64
		successes          atomic.Int64
		failures           atomic.Int64
		timeouts           atomic.Int64
	)

	worker := func() {
		defer wg.Done()
		for job := range jobs {
			routeCtx, cancel := context.WithTimeout(ctx, *timeout)
			startTime := time.Now()
			path := navigator.FindRoute(routeCtx, job.start, job.goal)
			totalRouteDuration.Add(int64(time.Since(startTime)))
			expired := routeCtx.Err() == context.DeadlineExceeded
			cancel()

			switch {
			case expired:
				timeouts.Add(1)
			case len(path) == 0:
				failures.Add(1)
			default:
				successes.Add(1)
				totalSuccessLength.Add(int64(len(path) - 1))
			}
		}
	}

	wg.Add(*concurrency)
	for i := 0; i < *concurrency; i++ {
		go worker()
	}

	startWall := time.Now()
	wg.Wait()
	wallDuration := time.Since(startWall)

	requests := float64(*totalRequests)
	avgPathLength := 0.0
	if succ := successes.Load(); succ > 0 {
		avgPathLength = float64(totalSuccessLength.Load()) / float64(succ)
	}
	snap := metrics.Snapshot()

	fmt.Println("== Tile Pathfinding Profile ==")
	fmt.Printf("Seed: %d\n", cfg.World.Seed)
	fmt.Printf("Chunks: %dx%d (%d tiles each side), generated in %s\n", 2**radius+1, 2**radius+1, cfg.World.ChunkSize, genDuration)
	fmt.Printf("Walkable tiles: %d\n", len(candidates))
	fmt.Printf("Requests: %d\n", *totalRequests)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Successes: %d, Failures: %d, Timeouts: %d\n", successes.Load(), failures.Load(), timeouts.Load())
	fmt.Printf("Average path length (steps): %.2f\n", avgPathLength)
	fmt.Printf("Average per-route duration: %s\n", time.Duration(totalRouteDuration.Load()/int64(*totalRequests)))
	fmt.Printf("Wall clock duration: %s\n", wallDuration)
	fmt.Printf("Average nodes expanded: %.2f\n", float64(snap.NodesExpanded)/requests)
	fmt.Printf("Average heuristic evaluations: %.2f\n", float64(snap.HeuristicEvaluations)/requests)
	fmt.Printf("Rejected cells: %d unknown, %d solid\n", snap.UnknownCells, snap.SolidCells)
	if snap.NeighborGenerations > 0 {
		fmt.Printf("Average walkable neighbours: %.2f\n", float64(snap.NeighborCount)/float64(snap.NeighborGenerations))
	}
}

func collectWalkable(rec *render.Recorder, nav *pathfinding.TileNavigator) []world.WorldCoord {
	cells, _, ok := rec.Cells()
	if !ok {
		return nil
	}
	coords := make([]world.WorldCoord, 0, len(cells))
	for _, c := range cells {
		if nav.Walkable(c.Pos) {
			coords = append(coords, c.Pos)
		}
	}
	return coords
}
