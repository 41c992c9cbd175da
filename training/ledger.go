// Package training holds the reward accumulators and episode lifecycle
// signals consumed by a policy trainer. It stands in for the trainer side of
// the environment boundary: the simulation only adds rewards and raises
// signals; the trainer owns when ledgers are flushed.
package training

// EpisodeRecord is one completed episode as seen by the trainer.
type EpisodeRecord struct {
	Return    float64 // reward accumulated during the episode
	Truncated bool    // true when the episode was interrupted rather than ended
}

// Ledger accumulates an individual agent's reward for the current episode.
type Ledger struct {
	ID uint32

	reward     float64
	cumulative float64
	episodes   []EpisodeRecord
	begins     int
}

// NewLedger creates an empty ledger for the given agent.
func NewLedger(id uint32) *Ledger {
	return &Ledger{ID: id}
}

// AddReward increments the current episode reward.
func (l *Ledger) AddReward(r float64) {
	l.reward += r
	l.cumulative += r
}

// SetReward overwrites the current episode reward.
func (l *Ledger) SetReward(r float64) {
	l.cumulative += r - l.reward
	l.reward = r
}

// Reward returns the reward accumulated in the current episode.
func (l *Ledger) Reward() float64 {
	return l.reward
}

// Cumulative returns the reward accumulated over the ledger's lifetime.
func (l *Ledger) Cumulative() float64 {
	return l.cumulative
}

// BeginEpisode marks the start of a new episode.
func (l *Ledger) BeginEpisode() {
	l.begins++
}

// Begins returns how many episodes have begun.
func (l *Ledger) Begins() int {
	return l.begins
}

// EndEpisode closes the current episode as a normal termination.
func (l *Ledger) EndEpisode() {
	l.flush(false)
}

// EpisodeInterrupted closes the current episode as truncated.
func (l *Ledger) EpisodeInterrupted() {
	l.flush(true)
}

func (l *Ledger) flush(truncated bool) {
	l.episodes = append(l.episodes, EpisodeRecord{Return: l.reward, Truncated: truncated})
	l.reward = 0
}

// Episodes returns the closed episodes in order.
func (l *Ledger) Episodes() []EpisodeRecord {
	return l.episodes
}

// LastEpisode returns the most recently closed episode.
func (l *Ledger) LastEpisode() (EpisodeRecord, bool) {
	if len(l.episodes) == 0 {
		return EpisodeRecord{}, false
	}
	return l.episodes[len(l.episodes)-1], true
}
