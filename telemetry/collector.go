package telemetry

import "github.com/pthm-cable/pursuit/episode"

// Collector turns coordinator events into episode records and groups them
// into fixed-size windows of episodes.
type Collector struct {
	runID          string
	windowEpisodes int
	clock          func() int64

	// Current episode tracking
	firstCapture int

	window  []EpisodeRecord
	pending []EpisodeRecord
	total   int
}

// NewCollector creates a new episode collector.
// windowEpisodes: how many episodes each stats window spans
// clock: returns the current simulation tick, stamped on each record (may be nil)
func NewCollector(runID string, windowEpisodes int, clock func() int64) *Collector {
	if windowEpisodes < 1 {
		windowEpisodes = 1
	}
	return &Collector{
		runID:          runID,
		windowEpisodes: windowEpisodes,
		clock:          clock,
		firstCapture:   -1,
	}
}

// OnCapture implements episode.Listener.
func (c *Collector) OnCapture(ev episode.CaptureEvent) {
	if c.firstCapture < 0 {
		c.firstCapture = ev.Step
	}
}

// OnEpisodeEnd implements episode.Listener.
func (c *Collector) OnEpisodeEnd(s episode.Summary) {
	rec := EpisodeRecord{
		RunID:          c.runID,
		Episode:        s.Episode,
		Outcome:        s.Outcome.String(),
		Steps:          s.Steps,
		Captures:       s.Captures,
		PreyCensus:     s.PreyCensus,
		PreyReturn:     s.PreyReturn,
		PredatorReturn: s.PredatorReturn,
		FirstCapture:   c.firstCapture,
	}
	if len(s.SurvivalSteps) > 0 {
		var sum int
		for _, steps := range s.SurvivalSteps {
			sum += steps
		}
		rec.MeanSurvival = float64(sum) / float64(len(s.SurvivalSteps))
	}
	if c.clock != nil {
		rec.EndTick = c.clock()
	}

	c.firstCapture = -1
	c.window = append(c.window, rec)
	c.pending = append(c.pending, rec)
	c.total++
}

// Drain returns the records finished since the last call.
func (c *Collector) Drain() []EpisodeRecord {
	out := c.pending
	c.pending = nil
	return out
}

// ShouldFlush returns true once the current window holds enough episodes.
func (c *Collector) ShouldFlush() bool {
	return len(c.window) >= c.windowEpisodes
}

// Flush produces a WindowStats over the current window and starts a new one.
func (c *Collector) Flush() WindowStats {
	stats := Summarize(c.window)
	c.window = c.window[:0]
	return stats
}

// Episodes returns the number of episodes recorded so far.
func (c *Collector) Episodes() int {
	return c.total
}
