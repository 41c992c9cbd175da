package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/pursuit/config"
	"github.com/pthm-cable/pursuit/sim"
	"github.com/pthm-cable/pursuit/storage"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int64("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	maxEpisodes := flag.Int("max-episodes", 0, "Stop after N finished episodes (0 = unlimited)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, snapshots and config")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	storeKind := flag.String("store", "", "Episode store backend: memory or sqlite (empty = use config)")
	storePath := flag.String("store-path", "", "SQLite database path (empty = use config)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Set up seed
	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	// CLI overrides config for the store
	backend := cfg.Storage.Backend
	if *storeKind != "" {
		backend = *storeKind
	}
	dbPath := cfg.Storage.Path
	if *storePath != "" {
		dbPath = *storePath
	}

	ctx := context.Background()
	store, err := storage.NewStore(backend, dbPath)
	if err != nil {
		slog.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if err := store.Init(ctx); err != nil {
		slog.Error("failed to open store", "backend", backend, "error", err)
		os.Exit(1)
	}

	s, err := sim.New(sim.Options{
		Seed:      rngSeed,
		Config:    cfg,
		OutputDir: *outputDir,
		LogStats:  *logStats,
		Store:     store,
		Logger:    logger,
	})
	if err != nil {
		slog.Error("failed to start simulation", "error", err)
		_ = storage.CloseIfSupported(store)
		os.Exit(1)
	}

	slog.Info("starting headless simulation",
		"run_id", s.RunID(),
		"seed", rngSeed,
		"max_ticks", *maxTicks,
		"max_episodes", *maxEpisodes,
		"store", backend,
	)

	start := time.Now()
	for {
		s.Step()

		if *maxTicks > 0 && s.Tick() >= *maxTicks {
			slog.Info("max ticks reached", "tick", s.Tick())
			break
		}
		if *maxEpisodes > 0 && s.Episodes() >= *maxEpisodes {
			slog.Info("max episodes reached", "episodes", s.Episodes(), "tick", s.Tick())
			break
		}
	}

	exitCode := 0
	if err := s.Close(); err != nil {
		slog.Error("failed to close simulation", "error", err)
		exitCode = 1
	}
	if err := storage.CloseIfSupported(store); err != nil {
		slog.Error("failed to close store", "error", err)
		exitCode = 1
	}

	slog.Info("simulation finished",
		"ticks", s.Tick(),
		"episodes", s.Episodes(),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	os.Exit(exitCode)
}
