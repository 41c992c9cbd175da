package telemetry

import (
	"sort"

	"github.com/pthm-cable/pursuit/episode"
)

// LifetimeStats tracks per-agent statistics across all episodes of a run.
// Agents are never destroyed, so a lifetime spans the whole run.
type LifetimeStats struct {
	AgentID uint32 `csv:"agent_id"`
	Name    string `csv:"name"`
	Faction string `csv:"faction"`

	Episodes int `csv:"episodes"`

	// Predators
	Kills int `csv:"kills"`

	// Prey
	TimesCaptured    int `csv:"times_captured"`
	EpisodesSurvived int `csv:"episodes_survived"`
	SurvivalSteps    int `csv:"survival_steps"` // summed over episodes
}

// LifetimeTracker manages per-agent lifetime statistics. It implements
// episode.Listener.
type LifetimeTracker struct {
	stats    map[uint32]*LifetimeStats
	captured map[uint32]bool // prey captured in the current episode
}

// NewLifetimeTracker creates a new lifetime tracker.
func NewLifetimeTracker() *LifetimeTracker {
	return &LifetimeTracker{
		stats:    make(map[uint32]*LifetimeStats),
		captured: make(map[uint32]bool),
	}
}

// Register creates lifetime stats for an agent.
func (lt *LifetimeTracker) Register(agentID uint32, name, faction string) {
	lt.stats[agentID] = &LifetimeStats{AgentID: agentID, Name: name, Faction: faction}
}

// Get returns the lifetime stats for an agent, or nil if not found.
func (lt *LifetimeTracker) Get(agentID uint32) *LifetimeStats {
	return lt.stats[agentID]
}

// OnCapture implements episode.Listener.
func (lt *LifetimeTracker) OnCapture(ev episode.CaptureEvent) {
	lt.captured[ev.PreyID] = true
	if s := lt.stats[ev.PreyID]; s != nil {
		s.TimesCaptured++
	}
	if s := lt.stats[ev.PredatorID]; s != nil {
		s.Kills++
	}
}

// OnEpisodeEnd implements episode.Listener.
func (lt *LifetimeTracker) OnEpisodeEnd(sum episode.Summary) {
	for id, steps := range sum.SurvivalSteps {
		s := lt.stats[id]
		if s == nil {
			continue
		}
		s.Episodes++
		s.SurvivalSteps += steps
		if !lt.captured[id] {
			s.EpisodesSurvived++
		}
	}
	for id := range sum.Kills {
		if s := lt.stats[id]; s != nil {
			s.Episodes++
		}
	}
	clear(lt.captured)
}

// All returns every agent's stats ordered by agent ID.
func (lt *LifetimeTracker) All() []LifetimeStats {
	out := make([]LifetimeStats, 0, len(lt.stats))
	for _, s := range lt.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}
