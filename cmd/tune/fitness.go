package main

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/pthm-cable/pursuit/config"
	"github.com/pthm-cable/pursuit/sim"
	"github.com/pthm-cable/pursuit/storage"
	"github.com/pthm-cable/pursuit/telemetry"
)

// targetCaptureRate is the fraction of episodes the predators should win
// for the matchup to count as balanced.
const targetCaptureRate = 0.5

// FitnessEvaluator runs headless simulations and scores how balanced the
// predator/prey matchup is.
type FitnessEvaluator struct {
	episodes   int
	maxSteps   int
	seeds      []int64
	baseConfig *config.Config

	mu          sync.Mutex
	lastSummary telemetry.WindowStats // pooled summary from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator. Each seed runs episodes
// episodes of at most maxSteps steps.
func NewFitnessEvaluator(episodes, maxSteps int, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		episodes:   episodes,
		maxSteps:   maxSteps,
		seeds:      seeds,
		baseConfig: baseCfg,
	}
}

// LastSummary returns the pooled episode summary of the most recent evaluation.
func (fe *FitnessEvaluator) LastSummary() telemetry.WindowStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastSummary
}

// Evaluate scores the base config run with motion m (lower = better).
func (fe *FitnessEvaluator) Evaluate(m config.MotionConfig) float64 {
	cfg := fe.baseConfig.Clone()
	cfg.Motion = m
	cfg.Episode.MaxSteps = fe.maxSteps

	// Run all seeds in parallel, each with its own simulation
	results := make([][]telemetry.EpisodeRecord, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			records, err := fe.runSimulation(cfg, s)
			if err != nil {
				slog.Error("evaluation run failed", "seed", s, "error", err)
				return
			}
			results[idx] = records
		}(i, seed)
	}
	wg.Wait()

	var pooled []telemetry.EpisodeRecord
	for _, r := range results {
		pooled = append(pooled, r...)
	}
	summary := telemetry.Summarize(pooled)

	fe.mu.Lock()
	fe.lastSummary = summary
	fe.mu.Unlock()

	return computeFitness(summary, fe.maxSteps)
}

// runSimulation plays fe.episodes episodes and returns their records.
func (fe *FitnessEvaluator) runSimulation(cfg *config.Config, seed int64) ([]telemetry.EpisodeRecord, error) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		return nil, err
	}

	s, err := sim.New(sim.Options{
		Seed:   seed,
		Config: cfg.Clone(),
		Store:  store,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	// Guard against a config that never ends an episode
	maxTicks := int64(fe.episodes) * int64(max(fe.maxSteps, 1)) * 2
	for s.Episodes() < fe.episodes && s.Tick() < maxTicks {
		s.Step()
	}

	return store.ListEpisodes(ctx, s.RunID())
}

// computeFitness scores a summary (lower = better).
// Formula: (captureRate - 0.5)² + 0.1 × (1 - stepsP50/maxSteps)²
// The capture rate dominates; the second term prefers matchups whose
// episodes are not decided in the first few steps.
func computeFitness(ws telemetry.WindowStats, maxSteps int) float64 {
	if ws.Episodes == 0 {
		return math.Inf(1)
	}
	balance := ws.CaptureRate - targetCaptureRate
	fitness := balance * balance

	if maxSteps > 0 {
		length := 1 - clamp01(ws.StepsP50/float64(maxSteps))
		fitness += 0.1 * length * length
	}
	return fitness
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
