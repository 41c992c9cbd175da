package episode

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/pursuit/components"
)

// fakeBody records pose and activation changes.
type fakeBody struct {
	pose        components.Pose
	active      bool
	activations int
}

func (b *fakeBody) Pose() components.Pose     { return b.pose }
func (b *fakeBody) SetPose(p components.Pose) { b.pose = p }
func (b *fakeBody) SetActive(a bool) {
	if a {
		b.activations++
	}
	b.active = a
}

type countingBehavior struct{ begins int }

func (b *countingBehavior) OnEpisodeBegin() { b.begins++ }

type recordingListener struct {
	captures []CaptureEvent
	episodes []Summary
}

func (l *recordingListener) OnCapture(ev CaptureEvent) { l.captures = append(l.captures, ev) }
func (l *recordingListener) OnEpisodeEnd(s Summary)    { l.episodes = append(l.episodes, s) }

const (
	predatorID uint32 = 1
	preyBase   uint32 = 10
)

type fixture struct {
	c         *Coordinator
	bodies    map[uint32]*fakeBody
	behaviors map[uint32]*countingBehavior
	listener  *recordingListener
}

// newFixture builds one predator and numPrey prey with distinct spawn poses.
func newFixture(t *testing.T, settings Settings, numPrey int) *fixture {
	t.Helper()
	f := &fixture{
		bodies:    make(map[uint32]*fakeBody),
		behaviors: make(map[uint32]*countingBehavior),
		listener:  &recordingListener{},
	}

	add := func(id uint32, faction components.Faction, spawn components.Pose, members []Member) []Member {
		b := &fakeBody{active: true, pose: components.Pose{X: 100, Z: 100}}
		beh := &countingBehavior{}
		f.bodies[id] = b
		f.behaviors[id] = beh
		return append(members, Member{ID: id, Faction: faction, Spawn: spawn, Body: b, Behavior: beh})
	}

	var members []Member
	members = add(predatorID, components.FactionPredator, components.Pose{X: -5.5, Z: 0, Yaw: 90}, members)
	for i := 0; i < numPrey; i++ {
		members = add(preyBase+uint32(i), components.FactionPrey, components.Pose{X: float32(i), Z: -4, Yaw: -13}, members)
	}

	c, err := New(settings, members, rand.New(rand.NewSource(1)), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.AddListener(f.listener)
	f.c = c
	return f
}

func TestNewPlacesAgentsAtSpawn(t *testing.T) {
	f := newFixture(t, Settings{MaxSteps: 100}, 2)

	if got := f.bodies[predatorID].pose; got != (components.Pose{X: -5.5, Z: 0, Yaw: 90}) {
		t.Errorf("predator pose = %+v", got)
	}
	if f.c.PreyCensus() != 2 || f.c.PredatorCensus() != 1 {
		t.Errorf("census = %d/%d", f.c.PreyCensus(), f.c.PredatorCensus())
	}
	if f.behaviors[preyBase].begins != 1 {
		t.Errorf("begins = %d, want 1 after setup", f.behaviors[preyBase].begins)
	}
	if f.c.State() != Running {
		t.Errorf("State = %v, want running", f.c.State())
	}
}

func TestNewRejectsBadRoster(t *testing.T) {
	body := &fakeBody{}
	tests := []struct {
		name     string
		settings Settings
		members  []Member
		rng      Source
	}{
		{"no prey", Settings{}, []Member{{ID: 1, Faction: components.FactionPredator, Body: body}}, nil},
		{"no predator", Settings{}, []Member{{ID: 1, Faction: components.FactionPrey, Body: body}}, nil},
		{"duplicate id", Settings{}, []Member{
			{ID: 1, Faction: components.FactionPredator, Body: body},
			{ID: 1, Faction: components.FactionPrey, Body: body},
		}, nil},
		{"missing body", Settings{}, []Member{
			{ID: 1, Faction: components.FactionPredator, Body: body},
			{ID: 2, Faction: components.FactionPrey},
		}, nil},
		{"random placement without source", Settings{PlaceRandomly: true}, []Member{
			{ID: 1, Faction: components.FactionPredator, Body: body},
			{ID: 2, Faction: components.FactionPrey, Body: body},
		}, nil},
		{"inverted rotation range", Settings{PlaceRandomly: true, RotMin: 10, RotMax: 0}, []Member{
			{ID: 1, Faction: components.FactionPredator, Body: body},
			{ID: 2, Faction: components.FactionPrey, Body: body},
		}, rand.New(rand.NewSource(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.settings, tt.members, tt.rng, nil)
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *ConfigurationError", err)
			}
		})
	}
}

func TestAdvanceStepShapingAndInterrupt(t *testing.T) {
	f := newFixture(t, Settings{MaxSteps: 100}, 3)

	for i := 0; i < 99; i++ {
		if s := f.c.AdvanceStep(); s != Running {
			t.Fatalf("step %d: state %v, want running", i+1, s)
		}
	}
	if f.c.Step() != 99 {
		t.Fatalf("Step = %d, want 99", f.c.Step())
	}

	if s := f.c.AdvanceStep(); s != Interrupted {
		t.Fatalf("100th step: state %v, want interrupted", s)
	}
	if f.c.Step() != 0 {
		t.Errorf("Step after auto-reset = %d, want 0", f.c.Step())
	}
	if f.c.State() != Running {
		t.Errorf("State after auto-reset = %v, want running", f.c.State())
	}

	prey, _ := f.c.Group(components.FactionPrey).LastEpisode()
	pred, _ := f.c.Group(components.FactionPredator).LastEpisode()
	if math.Abs(prey.Return-1) > 1e-9 {
		t.Errorf("prey shaping return = %v, want 1", prey.Return)
	}
	if math.Abs(pred.Return+1) > 1e-9 {
		t.Errorf("predator shaping return = %v, want -1", pred.Return)
	}
	if !prey.Truncated || !pred.Truncated {
		t.Error("timeout must be reported as an interruption")
	}

	// Members see the interruption too.
	rec, ok := f.c.Ledger(preyBase).LastEpisode()
	if !ok || !rec.Truncated {
		t.Errorf("member record = %+v, %v", rec, ok)
	}

	if len(f.listener.episodes) != 1 {
		t.Fatalf("episodes = %d, want 1", len(f.listener.episodes))
	}
	s := f.listener.episodes[0]
	if s.Outcome != Interrupted || s.Steps != 100 || s.Captures != 0 {
		t.Errorf("summary = %+v", s)
	}
	for id, steps := range s.SurvivalSteps {
		if steps != 100 {
			t.Errorf("prey %d survival = %d, want 100", id, steps)
		}
	}
	if f.c.Episode() != 1 {
		t.Errorf("Episode = %d, want 1", f.c.Episode())
	}
}

func TestTimeoutDisabled(t *testing.T) {
	for _, maxSteps := range []int{0, -1} {
		f := newFixture(t, Settings{MaxSteps: maxSteps}, 1)
		for i := 0; i < 1000; i++ {
			if s := f.c.AdvanceStep(); s != Running {
				t.Fatalf("maxSteps=%d: step %d returned %v", maxSteps, i, s)
			}
		}
		if f.c.Step() != 1000 {
			t.Errorf("maxSteps=%d: Step = %d, want 1000", maxSteps, f.c.Step())
		}
		if r := f.c.Group(components.FactionPrey).GroupReward(); r != 0 {
			t.Errorf("maxSteps=%d: shaping without budget = %v", maxSteps, r)
		}
	}
}

func TestCaptureTerminatesOnceAfterLastPrey(t *testing.T) {
	f := newFixture(t, Settings{MaxSteps: 0}, 3)

	for i := 0; i < 2; i++ {
		s, err := f.c.ReportCapture(preyBase+uint32(i), predatorID)
		if err != nil {
			t.Fatal(err)
		}
		if s != Running {
			t.Fatalf("capture %d: state %v, want running", i+1, s)
		}
		if len(f.listener.episodes) != 0 {
			t.Fatalf("capture %d ended the episode early", i+1)
		}
	}
	if f.c.Eliminated() != 2 {
		t.Errorf("Eliminated = %d, want 2", f.c.Eliminated())
	}
	if f.bodies[preyBase].active {
		t.Error("captured prey still active")
	}

	s, err := f.c.ReportCapture(preyBase+2, predatorID)
	if err != nil {
		t.Fatal(err)
	}
	if s != Terminated {
		t.Fatalf("third capture: state %v, want terminated", s)
	}
	if len(f.listener.episodes) != 1 {
		t.Fatalf("terminations = %d, want exactly 1", len(f.listener.episodes))
	}

	prey, _ := f.c.Group(components.FactionPrey).LastEpisode()
	pred, _ := f.c.Group(components.FactionPredator).LastEpisode()
	if math.Abs(prey.Return+1) > 1e-9 || math.Abs(pred.Return-1) > 1e-9 {
		t.Errorf("group returns = %v / %v, want -1 / +1", prey.Return, pred.Return)
	}
	if prey.Truncated {
		t.Error("termination reported as interruption")
	}

	summary := f.listener.episodes[0]
	if summary.Outcome != Terminated || summary.Captures != 3 || summary.Kills[predatorID] != 3 {
		t.Errorf("summary = %+v", summary)
	}

	// Reset reactivated everyone.
	for i := 0; i < 3; i++ {
		if !f.bodies[preyBase+uint32(i)].active {
			t.Errorf("prey %d not reactivated", i)
		}
	}
	if f.c.Eliminated() != 0 {
		t.Errorf("Eliminated after reset = %d", f.c.Eliminated())
	}
}

func TestDuplicateCaptureIsIgnored(t *testing.T) {
	f := newFixture(t, Settings{}, 2)

	if _, err := f.c.ReportCapture(preyBase, predatorID); err != nil {
		t.Fatal(err)
	}
	s, err := f.c.ReportCapture(preyBase, predatorID)
	if err != nil || s != Running {
		t.Fatalf("duplicate capture = %v, %v", s, err)
	}
	if f.c.Eliminated() != 1 {
		t.Errorf("Eliminated = %d, want 1", f.c.Eliminated())
	}
	if r := f.c.Group(components.FactionPredator).GroupReward(); math.Abs(r-0.5) > 1e-9 {
		t.Errorf("predator reward = %v, want 0.5", r)
	}
	if len(f.listener.captures) != 1 {
		t.Errorf("capture events = %d, want 1", len(f.listener.captures))
	}
}

func TestCaptureProtocolViolations(t *testing.T) {
	f := newFixture(t, Settings{}, 2)

	tests := []struct {
		name     string
		prey     uint32
		predator uint32
	}{
		{"unknown prey", 99, predatorID},
		{"unknown predator", preyBase, 99},
		{"predator as prey", predatorID, predatorID},
		{"prey as predator", preyBase, preyBase + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.c.ReportCapture(tt.prey, tt.predator)
			var pv *ProtocolViolation
			if !errors.As(err, &pv) {
				t.Fatalf("error = %v, want *ProtocolViolation", err)
			}
			if f.c.Eliminated() != 0 {
				t.Errorf("rejected call changed eliminated count to %d", f.c.Eliminated())
			}
			if f.c.Group(components.FactionPrey).GroupReward() != 0 {
				t.Error("rejected call changed rewards")
			}
		})
	}
}

func TestSingleAgentModeUsesIndividualLedgers(t *testing.T) {
	f := newFixture(t, Settings{SingleAgent: true, MaxSteps: 0}, 2)

	if _, err := f.c.ReportCapture(preyBase, predatorID); err != nil {
		t.Fatal(err)
	}

	if r := f.c.Group(components.FactionPrey).GroupReward(); r != 0 {
		t.Errorf("prey group reward = %v, want 0", r)
	}
	if r := f.c.Group(components.FactionPredator).GroupReward(); r != 0 {
		t.Errorf("predator group reward = %v, want 0", r)
	}
	if r := f.c.Ledger(preyBase).Reward(); r != -1 {
		t.Errorf("captured prey reward = %v, want -1", r)
	}
	if r := f.c.Ledger(predatorID).Reward(); r != 1 {
		t.Errorf("predator reward = %v, want 1", r)
	}
	if r := f.c.Ledger(preyBase + 1).Reward(); r != 0 {
		t.Errorf("uninvolved prey reward = %v, want 0", r)
	}
}

func TestSingleAgentShaping(t *testing.T) {
	f := newFixture(t, Settings{SingleAgent: true, MaxSteps: 4}, 1)
	for i := 0; i < 3; i++ {
		f.c.AdvanceStep()
	}
	if r := f.c.Ledger(preyBase).Reward(); math.Abs(r-0.75) > 1e-9 {
		t.Errorf("prey ledger = %v, want 0.75", r)
	}
	if r := f.c.Group(components.FactionPrey).GroupReward(); r != 0 {
		t.Errorf("group ledger touched in single-agent mode: %v", r)
	}
	f.c.AdvanceStep()
	if len(f.listener.episodes) != 1 {
		t.Fatal("expected interruption")
	}
	if s := f.listener.episodes[0]; math.Abs(s.PreyReturn-1) > 1e-9 || math.Abs(s.PredatorReturn+1) > 1e-9 {
		t.Errorf("summary returns = %v / %v", s.PreyReturn, s.PredatorReturn)
	}
}

func TestSimultaneousCapturesTerminateOnce(t *testing.T) {
	f := newFixture(t, Settings{MaxSteps: 50}, 2)
	f.c.AdvanceStep()

	// Both prey caught in the same tick; the driver reports them back to back.
	first, err := f.c.ReportCapture(preyBase, predatorID)
	if err != nil || first != Running {
		t.Fatalf("first capture = %v, %v", first, err)
	}
	second, err := f.c.ReportCapture(preyBase+1, predatorID)
	if err != nil || second != Terminated {
		t.Fatalf("second capture = %v, %v", second, err)
	}
	if len(f.listener.episodes) != 1 {
		t.Errorf("terminations = %d, want 1", len(f.listener.episodes))
	}
	s := f.listener.episodes[0]
	if s.SurvivalSteps[preyBase] != 1 || s.SurvivalSteps[preyBase+1] != 1 {
		t.Errorf("survival steps = %v", s.SurvivalSteps)
	}
}

func TestResetRestoresSpawnWithoutJitter(t *testing.T) {
	f := newFixture(t, Settings{MaxSteps: 0}, 2)

	f.bodies[predatorID].pose = components.Pose{X: 3, Z: 3, Yaw: 10}
	f.bodies[preyBase].pose = components.Pose{X: -9, Z: 9, Yaw: 45}
	if _, err := f.c.ReportCapture(preyBase, predatorID); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		f.c.AdvanceStep()
	}
	groupBefore := f.c.Group(components.FactionPredator).GroupReward()

	f.c.Reset()

	if got := f.bodies[predatorID].pose; got != (components.Pose{X: -5.5, Z: 0, Yaw: 90}) {
		t.Errorf("predator pose = %+v", got)
	}
	if got := f.bodies[preyBase].pose; got != (components.Pose{X: 0, Z: -4, Yaw: -13}) {
		t.Errorf("prey pose = %+v", got)
	}
	if !f.bodies[preyBase].active || f.bodies[preyBase].activations != 1 {
		t.Errorf("prey activation = %v (%d)", f.bodies[preyBase].active, f.bodies[preyBase].activations)
	}
	if f.c.Eliminated() != 0 || f.c.Step() != 0 {
		t.Errorf("counters after reset = %d eliminated, %d steps", f.c.Eliminated(), f.c.Step())
	}
	if f.c.IsEliminated(preyBase) {
		t.Error("prey still marked eliminated")
	}
	// Training rewards belong to the trainer and survive a reset.
	if got := f.c.Group(components.FactionPredator).GroupReward(); got != groupBefore {
		t.Errorf("reset cleared group reward: %v -> %v", groupBefore, got)
	}
	if f.behaviors[predatorID].begins != 2 {
		t.Errorf("begins = %d, want 2", f.behaviors[predatorID].begins)
	}
	for _, id := range []uint32{predatorID, preyBase, preyBase + 1} {
		if got := f.c.Ledger(id).Begins(); got != 2 {
			t.Errorf("ledger %d begins = %d, want 2", id, got)
		}
	}
}

func TestResetJitterStaysInWindow(t *testing.T) {
	settings := Settings{PlaceRandomly: true, JitterX: 2.5, JitterZ: 1, RotMin: 30, RotMax: 60}
	f := newFixture(t, settings, 4)
	const eps = 1e-5

	for round := 0; round < 50; round++ {
		f.c.Reset()
		for id, b := range f.bodies {
			var spawn components.Pose
			if id == predatorID {
				spawn = components.Pose{X: -5.5, Z: 0}
			} else {
				spawn = components.Pose{X: float32(id - preyBase), Z: -4}
			}
			dx := b.pose.X - spawn.X
			dz := b.pose.Z - spawn.Z
			if dx < -1.25-eps || dx > 1.25+eps {
				t.Fatalf("agent %d x offset %f outside window", id, dx)
			}
			if dz < -0.5-eps || dz > 0.5+eps {
				t.Fatalf("agent %d z offset %f outside window", id, dz)
			}
			if b.pose.Yaw < 30 || b.pose.Yaw > 60 {
				t.Fatalf("agent %d yaw %f outside range", id, b.pose.Yaw)
			}
		}
	}
}
