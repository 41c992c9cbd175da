package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// EpisodeRecord is one finished episode as written to episodes.csv and the store.
type EpisodeRecord struct {
	RunID          string  `csv:"run_id"`
	Episode        int     `csv:"episode"`
	Outcome        string  `csv:"outcome"` // "terminated" or "interrupted"
	Steps          int     `csv:"steps"`
	Captures       int     `csv:"captures"`
	PreyCensus     int     `csv:"prey_census"`
	PreyReturn     float64 `csv:"prey_return"`
	PredatorReturn float64 `csv:"predator_return"`
	MeanSurvival   float64 `csv:"mean_survival"` // mean prey survival steps
	FirstCapture   int     `csv:"first_capture"` // step of the first capture, -1 if none
	EndTick        int64   `csv:"end_tick"`
}

// Terminated reports whether every prey was captured.
func (r EpisodeRecord) Terminated() bool {
	return r.Outcome == "terminated"
}

// WindowStats summarizes a window of consecutive episodes.
type WindowStats struct {
	RunID        string `csv:"run_id"`
	FirstEpisode int    `csv:"first_episode"`
	LastEpisode  int    `csv:"last_episode"`
	Episodes     int    `csv:"episodes"`

	// Outcomes
	Terminated  int     `csv:"terminated"`
	Interrupted int     `csv:"interrupted"`
	CaptureRate float64 `csv:"capture_rate"` // fraction of episodes ending in full capture

	// Episode length distribution
	StepsMean float64 `csv:"steps_mean"`
	StepsStd  float64 `csv:"steps_std"`
	StepsP10  float64 `csv:"steps_p10"`
	StepsP50  float64 `csv:"steps_p50"`
	StepsP90  float64 `csv:"steps_p90"`

	// Prey survival
	SurvivalMean float64 `csv:"survival_mean"`
	SurvivalP50  float64 `csv:"survival_p50"`

	// Returns
	PreyReturnMean     float64 `csv:"prey_return_mean"`
	PreyReturnStd      float64 `csv:"prey_return_std"`
	PredatorReturnMean float64 `csv:"predator_return_mean"`
	PredatorReturnStd  float64 `csv:"predator_return_std"`

	CapturesPerEpisode float64 `csv:"captures_per_episode"`
}

// Quantile returns the empirical p-quantile of values, which need not be
// sorted. Returns 0 for an empty slice.
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return quantileSorted(sorted, p)
}

func quantileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// MeanStd returns the mean and sample standard deviation of values.
// The deviation is 0 with fewer than two values.
func MeanStd(values []float64) (mean, std float64) {
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}

// Summarize aggregates a window of episode records.
func Summarize(records []EpisodeRecord) WindowStats {
	var ws WindowStats
	if len(records) == 0 {
		return ws
	}

	n := len(records)
	steps := make([]float64, n)
	survival := make([]float64, n)
	preyReturns := make([]float64, n)
	predReturns := make([]float64, n)
	var captures int

	for i, r := range records {
		if r.Terminated() {
			ws.Terminated++
		} else {
			ws.Interrupted++
		}
		steps[i] = float64(r.Steps)
		survival[i] = r.MeanSurvival
		preyReturns[i] = r.PreyReturn
		predReturns[i] = r.PredatorReturn
		captures += r.Captures
	}

	ws.RunID = records[0].RunID
	ws.FirstEpisode = records[0].Episode
	ws.LastEpisode = records[n-1].Episode
	ws.Episodes = n
	ws.CaptureRate = float64(ws.Terminated) / float64(n)
	ws.CapturesPerEpisode = float64(captures) / float64(n)

	ws.StepsMean, ws.StepsStd = MeanStd(steps)
	sort.Float64s(steps)
	ws.StepsP10 = quantileSorted(steps, 0.10)
	ws.StepsP50 = quantileSorted(steps, 0.50)
	ws.StepsP90 = quantileSorted(steps, 0.90)

	ws.SurvivalMean = stat.Mean(survival, nil)
	ws.SurvivalP50 = Quantile(survival, 0.50)

	ws.PreyReturnMean, ws.PreyReturnStd = MeanStd(preyReturns)
	ws.PredatorReturnMean, ws.PredatorReturnStd = MeanStd(predReturns)

	return ws
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("first_episode", s.FirstEpisode),
		slog.Int("last_episode", s.LastEpisode),
		slog.Int("terminated", s.Terminated),
		slog.Int("interrupted", s.Interrupted),
		slog.Float64("capture_rate", s.CaptureRate),
		slog.Float64("steps_mean", s.StepsMean),
		slog.Float64("steps_p50", s.StepsP50),
		slog.Float64("survival_mean", s.SurvivalMean),
		slog.Float64("prey_return_mean", s.PreyReturnMean),
		slog.Float64("predator_return_mean", s.PredatorReturnMean),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"first_episode", s.FirstEpisode,
		"last_episode", s.LastEpisode,
		"terminated", s.Terminated,
		"interrupted", s.Interrupted,
		"capture_rate", s.CaptureRate,
		"steps_mean", s.StepsMean,
		"steps_std", s.StepsStd,
		"steps_p10", s.StepsP10,
		"steps_p50", s.StepsP50,
		"steps_p90", s.StepsP90,
		"survival_mean", s.SurvivalMean,
		"prey_return_mean", s.PreyReturnMean,
		"predator_return_mean", s.PredatorReturnMean,
		"captures_per_episode", s.CapturesPerEpisode,
	)
}
