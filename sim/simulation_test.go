package sim

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/pursuit/agents"
	"github.com/pthm-cable/pursuit/components"
	"github.com/pthm-cable/pursuit/config"
	"github.com/pthm-cable/pursuit/episode"
	"github.com/pthm-cable/pursuit/perception"
	"github.com/pthm-cable/pursuit/storage"
	"github.com/pthm-cable/pursuit/telemetry"
)

// frozen keeps every agent in place so outcomes depend only on the roster.
const frozen = `
motion:
  predator_move_speed: 0
  predator_rotate_speed: 0
  prey_move_speed: 0
  prey_rotate_speed: 0
`

// touching puts one predator on top of one prey.
const touching = frozen + `
roster:
  - {name: hunter, faction: predator, x: 0, z: 0, yaw: 90}
  - {name: runner, faction: prey, x: 0.5, z: 0, yaw: 0}
`

// apart keeps the only predator far from the only prey.
const apart = frozen + `
roster:
  - {name: hunter, faction: predator, x: -8, z: 0, yaw: 90}
  - {name: runner, faction: prey, x: 8, z: 0, yaw: 0}
`

func loadConfig(t *testing.T, overrides string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(overrides), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSim(t *testing.T, opts Options) *Simulation {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemoryStore(t *testing.T) storage.Store {
	t.Helper()
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestNewFromDefaults(t *testing.T) {
	s := newSim(t, Options{Seed: 1, Config: config.Default()})

	if got := s.Coordinator().PredatorCensus(); got != 1 {
		t.Errorf("predators = %d, want 1", got)
	}
	if got := s.Coordinator().PreyCensus(); got != 2 {
		t.Errorf("prey = %d, want 2", got)
	}
	if s.RunID() == "" {
		t.Error("run id not set")
	}

	pose, ok := s.Pose(2)
	if !ok {
		t.Fatal("agent 2 missing")
	}
	// Roster yaw -13 is stored normalized.
	if math.Abs(float64(pose.Yaw-347)) > 1e-4 || math.Abs(float64(pose.X-3.39)) > 1e-4 {
		t.Errorf("prey-0 pose = %+v", pose)
	}
	if s.Agent(1).Faction() != components.FactionPredator || s.Agent(3).Faction() != components.FactionPrey {
		t.Error("roster factions not preserved")
	}
	if s.Agent(0) != nil || s.Agent(4) != nil {
		t.Error("out-of-range agent ids should be nil")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Roster = cfg.Roster[:1] // predator only
	if _, err := New(Options{Config: cfg, Logger: quietLogger()}); err == nil {
		t.Fatal("expected error for roster without prey")
	}
}

func TestTimeoutInterruptsEpisodes(t *testing.T) {
	store := newMemoryStore(t)
	cfg := loadConfig(t, apart+"episode:\n  max_steps: 10\n")
	s := newSim(t, Options{Seed: 1, Config: cfg, Store: store})

	for i := 0; i < 25; i++ {
		s.Step()
	}

	if s.Episodes() != 2 {
		t.Errorf("episodes = %d, want 2", s.Episodes())
	}
	if s.Coordinator().Step() != 5 {
		t.Errorf("step = %d, want 5", s.Coordinator().Step())
	}

	records, err := store.ListEpisodes(context.Background(), s.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("stored %d episodes, want 2", len(records))
	}
	for _, r := range records {
		if r.Outcome != "interrupted" || r.Steps != 10 || r.Captures != 0 || r.FirstCapture != -1 {
			t.Errorf("record = %+v", r)
		}
		// Full-length survival earns the prey the whole shaping budget.
		if math.Abs(r.PreyReturn-1) > 1e-9 || math.Abs(r.PredatorReturn+1) > 1e-9 {
			t.Errorf("returns = %v / %v, want 1 / -1", r.PreyReturn, r.PredatorReturn)
		}
	}

	run, ok, err := store.GetRun(context.Background(), s.RunID())
	if err != nil || !ok {
		t.Fatalf("run not stored: %v", err)
	}
	if run.Seed != 1 || !strings.Contains(run.Config, "max_steps: 10") {
		t.Errorf("run = %+v", run)
	}
}

func TestCaptureTerminatesAndResets(t *testing.T) {
	store := newMemoryStore(t)
	s := newSim(t, Options{Seed: 1, Config: loadConfig(t, touching), Store: store})

	s.Step()

	if s.Episodes() != 1 {
		t.Fatalf("episodes = %d, want 1", s.Episodes())
	}
	// The reset reactivates the prey at its spawn point.
	if !s.Active(2) {
		t.Error("prey inactive after reset")
	}
	if pose, _ := s.Pose(2); pose.X != 0.5 || pose.Z != 0 {
		t.Errorf("prey pose = %+v, want spawn", pose)
	}
	if s.Coordinator().Step() != 0 {
		t.Errorf("step = %d, want 0 after termination", s.Coordinator().Step())
	}

	// Still touching, so every tick is a one-capture episode.
	s.Step()
	s.Step()
	if s.Episodes() != 3 {
		t.Errorf("episodes = %d, want 3", s.Episodes())
	}

	records, err := store.ListEpisodes(context.Background(), s.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("stored %d episodes, want 3", len(records))
	}
	for _, r := range records {
		if r.Outcome != "terminated" || r.Captures != 1 || r.FirstCapture != 0 {
			t.Errorf("record = %+v", r)
		}
	}

	if lt := s.Lifetimes().Get(1); lt.Kills != 3 {
		t.Errorf("predator kills = %d, want 3", lt.Kills)
	}
	if lt := s.Lifetimes().Get(2); lt.TimesCaptured != 3 || lt.EpisodesSurvived != 0 {
		t.Errorf("prey lifetime = %+v", lt)
	}
}

func TestPolicyOverride(t *testing.T) {
	cfg := loadConfig(t, `
roster:
  - {name: hunter, faction: predator, x: 0, z: 0, yaw: 90}
  - {name: runner, faction: prey, x: 8, z: 8, yaw: 0}
`)
	var obsLen int
	s := newSim(t, Options{
		Seed:   1,
		Config: cfg,
		Policy: func(a agents.Agent, obs []float32) components.Action {
			obsLen = len(obs)
			if a.Faction() == components.FactionPrey {
				return components.Action{}
			}
			return components.Action{Forward: 2, Turn: 0} // clamped to 1
		},
	})

	s.Step()

	want := perception.ObservationSize(cfg.Derived.NumRays, agents.NumTags)
	if obsLen != want {
		t.Errorf("observation length = %d, want %d", obsLen, want)
	}

	pose, _ := s.Pose(1)
	step := float32(cfg.Motion.PredatorMoveSpeed * cfg.Episode.DT)
	if math.Abs(float64(pose.X-step)) > 1e-5 || math.Abs(float64(pose.Z)) > 1e-5 {
		t.Errorf("predator pose = %+v, want X=%v", pose, step)
	}
	if prey, _ := s.Pose(2); prey.X != 8 || prey.Z != 8 {
		t.Errorf("idle prey moved to %+v", prey)
	}
	if got := s.Agent(1).Action(); got.Forward != 1 {
		t.Errorf("applied forward = %v, want 1", got.Forward)
	}
}

func TestSeedDeterminism(t *testing.T) {
	overrides := "placement:\n  place_randomly: true\nepisode:\n  max_steps: 60\n"

	run := func() []components.Pose {
		s := newSim(t, Options{Seed: 7, Config: loadConfig(t, overrides)})
		for i := 0; i < 200; i++ {
			s.Step()
		}
		var poses []components.Pose
		for id := uint32(1); id <= 3; id++ {
			p, _ := s.Pose(id)
			poses = append(poses, p)
		}
		return poses
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("agent %d: %+v != %+v", i+1, a[i], b[i])
		}
	}
}

func TestAgentsStayInsideArena(t *testing.T) {
	cfg := loadConfig(t, "episode:\n  max_steps: 0\n")
	s := newSim(t, Options{
		Seed:   3,
		Config: cfg,
		Policy: func(agents.Agent, []float32) components.Action {
			return components.Action{Forward: 1, Turn: 0.3}
		},
	})

	for i := 0; i < 2000; i++ {
		s.Step()
		for id := uint32(1); id <= 3; id++ {
			p, _ := s.Pose(id)
			if math.Abs(float64(p.X)) > cfg.Arena.Width/2 || math.Abs(float64(p.Z)) > cfg.Arena.Depth/2 {
				t.Fatalf("tick %d: agent %d left the arena at %+v", i, id, p)
			}
		}
	}
}

func TestOutputFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, touching+"telemetry:\n  stats_window: 2\n  survival_log: survival.txt\n")

	var windows []telemetry.WindowStats
	s, err := New(Options{
		Seed:      1,
		Config:    cfg,
		OutputDir: dir,
		Logger:    quietLogger(),
		StatsCallback: func(ws telemetry.WindowStats) {
			windows = append(windows, ws)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		s.Step()
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if len(windows) != 2 {
		t.Fatalf("windows = %d, want 2", len(windows))
	}
	if windows[1].FirstEpisode != 2 || windows[1].CaptureRate != 1 {
		t.Errorf("second window = %+v", windows[1])
	}

	for _, name := range []string{"config.yaml", "episodes.csv", "windows.csv", "perf.csv", "agents.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	if n := countLines(t, filepath.Join(dir, "episodes.csv")); n != 5 {
		t.Errorf("episodes.csv has %d lines, want header + 4", n)
	}
	if n := countLines(t, filepath.Join(dir, "survival.txt")); n != 4 {
		t.Errorf("survival.txt has %d lines, want 4", n)
	}
}

func TestSnapshot(t *testing.T) {
	s := newSim(t, Options{Seed: 5, Config: loadConfig(t, apart)})
	s.Step()

	snap := s.Snapshot()
	if snap.Version != telemetry.SnapshotVersion || snap.Tick != 1 || snap.RNGSeed != 5 {
		t.Errorf("snapshot header = %+v", snap)
	}
	if len(snap.Agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(snap.Agents))
	}
	if a := snap.Agents[0]; a.ID != 1 || a.Name != "hunter" || a.Faction != "Predator" || !a.Active || a.X != -8 {
		t.Errorf("agent 0 = %+v", a)
	}
	if snap.Agents[1].Lifetime == nil {
		t.Error("lifetime stats missing")
	}
}

func TestSQLiteStoreEndToEnd(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewStore("sqlite", filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = storage.CloseIfSupported(store) })

	s := newSim(t, Options{Seed: 1, Config: loadConfig(t, touching), Store: store})
	s.Step()
	s.Step()

	records, err := store.ListEpisodes(ctx, s.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].Episode != 1 {
		t.Errorf("records = %+v", records)
	}
}

func TestCoordinatorStateBetweenTicks(t *testing.T) {
	s := newSim(t, Options{Seed: 1, Config: loadConfig(t, touching)})
	for i := 0; i < 3; i++ {
		s.Step()
		if s.Coordinator().State() != episode.Running {
			t.Fatalf("tick %d: state = %v", i, s.Coordinator().State())
		}
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}
