// Package main provides CMA-ES tuning of agent motion parameters so that
// neither faction dominates the pursuit.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/pursuit/config"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// tuner is the CMA-ES objective: it decodes each point into motion speeds,
// scores them, logs the evaluation and remembers the best motion seen.
type tuner struct {
	space     motionSpace
	evaluator *FitnessEvaluator
	log       *evalLog
	maxEvals  int

	evals       int
	best        config.MotionConfig
	bestFitness float64
	start       time.Time
}

func (t *tuner) objective(x []float64) float64 {
	motion := t.space.decode(x)
	fitness := t.evaluator.Evaluate(motion)
	summary := t.evaluator.LastSummary()
	t.evals++

	if t.evals == 1 || fitness < t.bestFitness {
		t.bestFitness = fitness
		t.best = motion
	}
	if err := t.log.Append(newEvalRow(t.evals, fitness, motion, summary)); err != nil {
		log.Printf("failed to log evaluation %d: %v", t.evals, err)
	}

	elapsed := time.Since(t.start)
	remaining := time.Duration(t.maxEvals-t.evals) * (elapsed / time.Duration(t.evals))
	fmt.Printf("Eval %d/%d: pred=%.2f/%.2f prey=%.2f/%.2f capture_rate=%.2f steps_p50=%.0f fitness=%.4f (best=%.4f) | elapsed: %s, ETA: %s\n",
		t.evals, t.maxEvals,
		motion.PredatorMoveSpeed, motion.PredatorRotateSpeed, motion.PreyMoveSpeed, motion.PreyRotateSpeed,
		summary.CaptureRate, summary.StepsP50, fitness, t.bestFitness,
		formatDuration(elapsed), formatDuration(remaining))

	return fitness
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	episodes := flag.Int("episodes", 20, "Episodes per seed per evaluation")
	maxSteps := flag.Int("max-steps", 2000, "Episode step budget during tuning")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 200, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()

	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	evalLog, err := createEvalLog(filepath.Join(*outputDir, "tune_log.csv"))
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer evalLog.Close()

	space := newMotionSpace()
	t := &tuner{
		space:       space,
		evaluator:   NewFitnessEvaluator(*episodes, *maxSteps, evalSeeds, baseCfg),
		log:         evalLog,
		maxEvals:    *maxEvals,
		bestFitness: math.Inf(1),
		start:       time.Now(),
	}

	popSize := *population
	if popSize == 0 {
		popSize = 4 + 3*len(space)/2
	}

	fmt.Printf("Tuning %d motion speeds: population=%d max_evals=%d seeds=%d episodes=%d max_steps=%d\n",
		len(space), popSize, *maxEvals, *seeds, *episodes, *maxSteps)

	// Seeds already run in parallel inside each evaluation.
	_, err = optimize.Minimize(
		optimize.Problem{Func: t.objective},
		space.encode(baseCfg.Motion),
		&optimize.Settings{FuncEvaluations: *maxEvals},
		&optimize.CmaEsChol{InitStepSize: 0.3, Population: popSize},
	)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}
	if t.evals == 0 {
		log.Fatal("no evaluations completed")
	}

	fmt.Printf("\nTuning complete after %d evaluations in %s, best fitness %.4f\n",
		t.evals, formatDuration(time.Since(t.start)), t.bestFitness)
	fmt.Printf("  predator: move %.4f rotate %.4f\n", t.best.PredatorMoveSpeed, t.best.PredatorRotateSpeed)
	fmt.Printf("  prey:     move %.4f rotate %.4f\n", t.best.PreyMoveSpeed, t.best.PreyRotateSpeed)

	bestCfg := baseCfg.Clone()
	bestCfg.Motion = t.best
	outPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(outPath); err != nil {
		log.Printf("failed to write best config: %v", err)
		return
	}
	fmt.Printf("Best config saved to: %s\n", outPath)
}
