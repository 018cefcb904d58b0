package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"tileworld/internal/config"
	"tileworld/internal/preview"
	"tileworld/internal/render"
	"tileworld/internal/terrain"
	"tileworld/internal/world"
)

func main() {
	var (
		cfgPath     = flag.String("config", "", "path to world configuration file (JSON or YAML)")
		seed        = flag.Int64("seed", 0, "world seed; overrides the config when non-zero")
		centerX     = flag.Int("cx", 0, "center chunk x")
		centerY     = flag.Int("cy", 0, "center chunk y")
		radius      = flag.Int("radius", 2, "chunks around the center to render")
		out         = flag.String("out", "tileworld.png", "output PNG path")
		scale       = flag.Int("scale", 0, "pixels per tile; 0 uses the config")
		verify      = flag.Bool("verify", false, "regenerate every chunk and compare digests")
		concurrency = flag.Int("concurrency", runtime.NumCPU(), "workers used by -verify")
	)
	flag.Parse()

	if *radius < 0 {
		fmt.Fprintln(os.Stderr, "radius cannot be negative")
		os.Exit(1)
	}
	if *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency must be positive")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		log.Fatalf("apply environment: %v", err)
	}
	if *seed != 0 {
		cfg.World.Seed = *seed
	}
	if cfg.World.Seed == 0 {
		cfg.World.Seed = config.RandomSeed()
	}
	if *scale > 0 {
		cfg.Preview.Scale = *scale
	}

	generator, err := terrain.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("build generator: %v", err)
	}
	catalog := generator.Catalog()
	recorder := render.NewRecorder(catalog)
	store := world.NewStore(generator, recorder, world.StoreOptions{Logger: log.Default()})

	coords := make([]world.ChunkCoord, 0, (2**radius+1)*(2**radius+1))
	for dx := -*radius; dx <= *radius; dx++ {
		for dy := -*radius; dy <= *radius; dy++ {
			coords = append(coords, world.ChunkCoord{X: *centerX + dx, Y: *centerY + dy})
		}
	}

	start := time.Now()
	histogram := make(map[world.TileID]int)
	var anchors, companions, fallbacks int
	for _, coord := range coords {
		store.Load(coord)
		chunk, _ := store.Chunk(coord)
		for _, p := range chunk.Placements {
			histogram[p.Tile]++
			switch p.Source {
			case world.SourceAnchor:
				anchors++
			case world.SourceCompanion:
				companions++
			case world.SourceFallback:
				fallbacks++
			}
		}
	}
	elapsed := time.Since(start)

	img, bounds, ok := preview.FromRecorder(recorder, preview.PaletteFromCatalog(catalog), cfg.Preview.Scale)
	if !ok {
		log.Fatalf("no tiles generated")
	}
	if err := preview.Save(*out, img); err != nil {
		log.Fatalf("save preview: %v", err)
	}

	fmt.Println("== Tile World Preview ==")
	fmt.Printf("Seed: %d\n", cfg.World.Seed)
	fmt.Printf("Chunks: %d (%dx%d tiles each)\n", len(coords), cfg.World.ChunkSize, cfg.World.ChunkSize)
	fmt.Printf("Bounds: %v to %v\n", bounds.Min, bounds.Max)
	fmt.Printf("Generation time: %s\n", elapsed)
	fmt.Printf("Anchors: %d, Fallbacks: %d, Companions: %d\n", anchors, fallbacks, companions)
	fmt.Printf("Colliders: %d\n", recorder.Colliders())
	for _, meta := range catalog.Tiles() {
		fmt.Printf("  %-14s %d\n", meta.Name, histogram[meta.ID])
	}
	fmt.Printf("Preview: %s\n", *out)

	if *verify {
		if failures := verifyChunks(generator, coords, *concurrency); failures > 0 {
			fmt.Printf("Determinism: %d of %d chunks differ\n", failures, len(coords))
			os.Exit(1)
		}
		fmt.Printf("Determinism: %d chunks verified\n", len(coords))
	}
}

func verifyChunks(gen world.Generator, coords []world.ChunkCoord, workers int) int64 {
	jobs := make(chan world.ChunkCoord)
	go func() {
		defer close(jobs)
		for _, coord := range coords {
			jobs <- coord
		}
	}()

	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for coord := range jobs {
				err := terrain.CheckDeterminism(gen, coord)
				var inconsistent *terrain.GenerationInconsistencyError
				if errors.As(err, &inconsistent) {
					fmt.Fprintln(os.Stderr, err)
					failures.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	return failures.Load()
}
