package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Environment variables recognised by ApplyEnv.
const (
	EnvSeed           = "TILEWORLD_SEED"
	EnvChunkSize      = "TILEWORLD_CHUNK_SIZE"
	EnvNoiseScale     = "TILEWORLD_NOISE_SCALE"
	EnvLoadRadius     = "TILEWORLD_LOAD_RADIUS"
	EnvUnloadDistance = "TILEWORLD_UNLOAD_DISTANCE"
	EnvTickRate       = "TILEWORLD_TICK_RATE"
	EnvViewerAddr     = "TILEWORLD_VIEWER_ADDR"
)

// ApplyEnv overrides configuration values from the environment. Blank values
// are ignored. Setting EnvViewerAddr also enables the viewer. The result is
// not validated; callers run Validate afterwards.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if v, ok := envValue(lookup, EnvSeed); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvSeed, err)
		}
		cfg.World.Seed = n
	}
	if v, ok := envValue(lookup, EnvChunkSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvChunkSize, err)
		}
		cfg.World.ChunkSize = n
	}
	if v, ok := envValue(lookup, EnvNoiseScale); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvNoiseScale, err)
		}
		cfg.World.NoiseScale = f
	}
	if v, ok := envValue(lookup, EnvLoadRadius); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvLoadRadius, err)
		}
		cfg.Streaming.LoadRadius = n
	}
	if v, ok := envValue(lookup, EnvUnloadDistance); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvUnloadDistance, err)
		}
		cfg.Streaming.UnloadDistance = f
	}
	if v, ok := envValue(lookup, EnvTickRate); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvTickRate, err)
		}
		cfg.Server.TickRate = Duration(d)
	}
	if v, ok := envValue(lookup, EnvViewerAddr); ok {
		cfg.Viewer.Enabled = true
		cfg.Viewer.ListenAddr = v
	}
	return nil
}

func envValue(lookup LookupFunc, key string) (string, bool) {
	if lookup == nil {
		return "", false
	}
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
