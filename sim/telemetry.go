package sim

import (
	"context"
	"fmt"

	"github.com/pthm-cable/pursuit/telemetry"
)

// initTelemetry wires the collectors as coordinator listeners and opens the
// optional outputs.
func (s *Simulation) initTelemetry(outputDir string) error {
	s.collector = telemetry.NewCollector(s.runID, s.cfg.Telemetry.StatsWindow, s.Tick)
	s.lifetimes = telemetry.NewLifetimeTracker()
	s.bookmarks = telemetry.NewBookmarkDetector(10)

	perfWindow := 50
	if s.cfg.Episode.DT > 0 {
		perfWindow = int(1 / s.cfg.Episode.DT) // about one simulated second
	}
	s.perf = telemetry.NewPerfCollector(perfWindow)

	for id := uint32(1); int(id) <= len(s.agents); id++ {
		tag := s.agentMap.Get(s.entities[id])
		s.lifetimes.Register(id, tag.Name, tag.Faction.String())
	}

	s.coord.AddListener(s.collector)
	s.coord.AddListener(s.lifetimes)

	output, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return err
	}
	s.output = output
	if err := s.output.WriteConfig(s.cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	survival, err := telemetry.OpenSurvivalLog(survivalLogPath(s.cfg.Telemetry.SurvivalLog, outputDir), s.logger)
	if err != nil {
		return err
	}
	if survival != nil {
		s.survival = survival
		s.coord.AddListener(survival)
	}

	if s.store != nil {
		if err := s.saveRun(context.Background()); err != nil {
			return err
		}
	}
	return nil
}

// flushTelemetry persists finished episodes and, once a window is full,
// summarizes it and checks for bookmarks.
func (s *Simulation) flushTelemetry() {
	records := s.collector.Drain()
	if len(records) > 0 {
		if err := s.output.WriteEpisodes(records); err != nil {
			s.logger.Error("failed to write episodes", "error", err)
		}
		if s.store != nil {
			if err := s.store.AppendEpisodes(context.Background(), s.runID, records); err != nil {
				s.logger.Error("failed to store episodes", "error", err)
			}
		}
	}

	if !s.collector.ShouldFlush() {
		return
	}

	stats := s.collector.Flush()
	perfStats := s.perf.Stats()

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := s.output.WriteWindow(stats); err != nil {
		s.logger.Error("failed to write window", "error", err)
	}
	if err := s.output.WritePerf(perfStats, s.tick); err != nil {
		s.logger.Error("failed to write perf", "error", err)
	}

	for _, bm := range s.bookmarks.Check(stats) {
		if s.logStats {
			bm.LogBookmark()
		}
		if s.output == nil {
			continue
		}
		snap := s.Snapshot()
		snap.Bookmark = &bm
		if _, err := s.output.WriteSnapshot(snap); err != nil {
			s.logger.Error("failed to write snapshot", "error", err)
		}
	}
}

// Snapshot captures the current arena state.
func (s *Simulation) Snapshot() *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version:    telemetry.SnapshotVersion,
		RunID:      s.runID,
		RNGSeed:    s.seed,
		ArenaWidth: float32(s.cfg.Arena.Width),
		ArenaDepth: float32(s.cfg.Arena.Depth),
		Tick:       s.tick,
		Episode:    s.coord.Episode(),
		Step:       s.coord.Step(),
		Agents:     make([]telemetry.AgentState, 0, len(s.agents)),
	}

	for _, a := range s.agents {
		e := s.entities[a.ID()]
		pose := s.poseMap.Get(e)
		tag := s.agentMap.Get(e)

		state := telemetry.AgentState{
			ID:      tag.ID,
			Name:    tag.Name,
			Faction: tag.Faction.String(),
			Active:  tag.Active,
			X:       pose.X,
			Z:       pose.Z,
			Yaw:     pose.Yaw,
		}
		if lt := s.lifetimes.Get(tag.ID); lt != nil {
			cp := *lt
			state.Lifetime = &cp
		}
		snap.Agents = append(snap.Agents, state)
	}
	return snap
}
