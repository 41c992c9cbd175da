// Package episode coordinates predator/prey episodes: per-step reward
// shaping, capture handling, elimination census and the reset, interrupt and
// terminate transitions of a bounded-length episode.
//
// The coordinator is driven synchronously from a fixed-rate tick. It never
// blocks and is not safe for concurrent use; the caller serializes captures
// and step advances onto the tick boundary.
package episode

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/pursuit/components"
	"github.com/pthm-cable/pursuit/config"
	"github.com/pthm-cable/pursuit/training"
)

// State is the coordinator's episode state. Interrupted and Terminated are
// transient: the coordinator resets and re-enters Running before returning.
type State uint8

const (
	Running State = iota
	Interrupted
	Terminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Interrupted:
		return "interrupted"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Body is the engine-side handle for an agent's pose and activation.
type Body interface {
	Pose() components.Pose
	SetPose(components.Pose)
	SetActive(bool)
}

// Behavior receives the implicit episode-begin signal issued on reset.
type Behavior interface {
	OnEpisodeBegin()
}

// Source is a uniform random source over [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float32() float32
}

// Member describes one agent handed to the coordinator at setup.
type Member struct {
	ID       uint32
	Name     string
	Faction  components.Faction
	Spawn    components.Pose
	Body     Body
	Behavior Behavior // optional
}

// Settings holds episode and placement parameters.
type Settings struct {
	MaxSteps      int  // <= 0 disables the timeout
	SingleAgent   bool // individual instead of group rewards
	PlaceRandomly bool
	JitterX       float32 // full width of the X jitter window
	JitterZ       float32 // full width of the Z jitter window
	RotMin        float32 // degrees
	RotMax        float32 // degrees
}

// SettingsFromConfig extracts coordinator settings from a loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxSteps:      cfg.Episode.MaxSteps,
		SingleAgent:   cfg.Episode.SingleAgent,
		PlaceRandomly: cfg.Placement.PlaceRandomly,
		JitterX:       float32(cfg.Placement.JitterX),
		JitterZ:       float32(cfg.Placement.JitterZ),
		RotMin:        float32(cfg.Placement.RotMin),
		RotMax:        float32(cfg.Placement.RotMax),
	}
}

// CaptureEvent describes one accepted capture.
type CaptureEvent struct {
	Episode    int
	Step       int
	PreyID     uint32
	PredatorID uint32
	Eliminated int // eliminated prey count after this capture
}

// Summary describes a finished episode.
type Summary struct {
	Episode        int
	Outcome        State // Interrupted or Terminated
	Steps          int
	Captures       int
	PreyCensus     int
	PreyReturn     float64        // prey faction return for the episode
	PredatorReturn float64        // predator faction return for the episode
	SurvivalSteps  map[uint32]int // per prey: step of capture, or Steps if it survived
	Kills          map[uint32]int // per predator: captures this episode
}

// Listener observes coordinator events. Listeners must not call back into
// the coordinator.
type Listener interface {
	OnCapture(ev CaptureEvent)
	OnEpisodeEnd(s Summary)
}

type member struct {
	Member
	ledger       *training.Ledger
	eliminated   bool
	eliminatedAt int
	kills        int
}

// Coordinator owns the roster, reward ledgers and episode state.
type Coordinator struct {
	settings Settings
	rng      Source
	logger   *slog.Logger

	members []*member
	byID    map[uint32]*member

	predatorGroup *training.Group
	preyGroup     *training.Group

	preyCensus     int
	predatorCensus int

	state      State
	step       int
	eliminated int
	episode    int

	listeners []Listener
}

// New registers members with their faction groups, records starting poses
// and performs the initial reset. rng may be nil when PlaceRandomly is false.
func New(settings Settings, members []Member, rng Source, logger *slog.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.PlaceRandomly {
		if rng == nil {
			return nil, &ConfigurationError{Reason: "random placement requires a random source"}
		}
		if settings.JitterX < 0 || settings.JitterZ < 0 {
			return nil, &ConfigurationError{Reason: "jitter window must not be negative"}
		}
		if settings.RotMax < settings.RotMin {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("rotation range [%v, %v] is inverted", settings.RotMin, settings.RotMax)}
		}
	}

	c := &Coordinator{
		settings:      settings,
		rng:           rng,
		logger:        logger,
		byID:          make(map[uint32]*member, len(members)),
		predatorGroup: training.NewGroup(components.FactionPredator.String()),
		preyGroup:     training.NewGroup(components.FactionPrey.String()),
	}

	for _, m := range members {
		if m.Body == nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("agent %d has no body", m.ID)}
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("duplicate agent id %d", m.ID)}
		}
		mm := &member{Member: m, ledger: training.NewLedger(m.ID)}
		switch m.Faction {
		case components.FactionPredator:
			c.predatorGroup.RegisterAgent(mm.ledger)
			c.predatorCensus++
		case components.FactionPrey:
			c.preyGroup.RegisterAgent(mm.ledger)
			c.preyCensus++
		default:
			return nil, &ConfigurationError{Reason: fmt.Sprintf("agent %d has unknown faction %d", m.ID, m.Faction)}
		}
		c.members = append(c.members, mm)
		c.byID[m.ID] = mm
	}

	if c.preyCensus == 0 {
		return nil, &ConfigurationError{Reason: "prey census is zero"}
	}
	if c.predatorCensus == 0 {
		return nil, &ConfigurationError{Reason: "predator census is zero"}
	}

	c.Reset()
	return c, nil
}

// AddListener registers a listener for capture and episode-end events.
func (c *Coordinator) AddListener(l Listener) {
	c.listeners = append(c.listeners, l)
}

// AdvanceStep is called once per tick. It applies the per-step shaping reward
// and interrupts the episode when the step budget is exhausted.
func (c *Coordinator) AdvanceStep() State {
	c.step++

	// Shaping is scaled by the step budget, so there is none without a budget.
	if c.settings.MaxSteps > 0 {
		inc := 1 / float64(c.settings.MaxSteps)
		if c.settings.SingleAgent {
			for _, m := range c.members {
				if m.Faction == components.FactionPrey {
					m.ledger.AddReward(inc)
				} else {
					m.ledger.AddReward(-inc)
				}
			}
		} else {
			c.preyGroup.AddGroupReward(inc)
			c.predatorGroup.AddGroupReward(-inc)
		}
	}

	if c.settings.MaxSteps > 0 && c.step >= c.settings.MaxSteps {
		c.predatorGroup.GroupEpisodeInterrupted()
		c.preyGroup.GroupEpisodeInterrupted()
		c.finish(Interrupted)
		return Interrupted
	}
	return Running
}

// ReportCapture records that predatorID caught preyID. The prey is
// deactivated but stays registered with its faction. When the last prey is
// caught the episode ends and the coordinator resets, returning Terminated.
// A capture of a prey already eliminated this episode is ignored.
func (c *Coordinator) ReportCapture(preyID, predatorID uint32) (State, error) {
	prey, ok := c.byID[preyID]
	if !ok {
		return c.state, &ProtocolViolation{Op: "capture", AgentID: preyID, Reason: "unknown agent"}
	}
	predator, ok := c.byID[predatorID]
	if !ok {
		return c.state, &ProtocolViolation{Op: "capture", AgentID: predatorID, Reason: "unknown agent"}
	}
	if prey.Faction != components.FactionPrey {
		return c.state, &ProtocolViolation{Op: "capture", AgentID: preyID, Reason: "reported as prey but belongs to " + prey.Faction.String()}
	}
	if predator.Faction != components.FactionPredator {
		return c.state, &ProtocolViolation{Op: "capture", AgentID: predatorID, Reason: "reported as predator but belongs to " + predator.Faction.String()}
	}

	if prey.eliminated {
		c.logger.Debug("capture_ignored", "episode", c.episode, "prey", preyID, "predator", predatorID, "reason", "already eliminated")
		return Running, nil
	}

	if c.settings.SingleAgent {
		prey.ledger.AddReward(-1)
		predator.ledger.AddReward(1)
	} else {
		share := 1 / float64(c.preyCensus)
		c.preyGroup.AddGroupReward(-share)
		c.predatorGroup.AddGroupReward(share)
	}

	prey.eliminated = true
	prey.eliminatedAt = c.step
	prey.Body.SetActive(false)
	predator.kills++
	c.eliminated++

	ev := CaptureEvent{
		Episode:    c.episode,
		Step:       c.step,
		PreyID:     preyID,
		PredatorID: predatorID,
		Eliminated: c.eliminated,
	}
	c.logger.Debug("capture", "episode", ev.Episode, "step", ev.Step, "prey", preyID, "predator", predatorID, "eliminated", ev.Eliminated)
	for _, l := range c.listeners {
		l.OnCapture(ev)
	}

	if c.eliminated == c.preyCensus {
		c.preyGroup.EndGroupEpisode()
		c.predatorGroup.EndGroupEpisode()
		c.finish(Terminated)
		return Terminated, nil
	}
	return Running, nil
}

// finish reports the episode summary and resets.
func (c *Coordinator) finish(outcome State) {
	c.state = outcome
	s := c.summary(outcome)

	event := "episode_end"
	if outcome == Interrupted {
		event = "episode_interrupted"
	}
	c.logger.Info(event,
		"episode", s.Episode,
		"steps", s.Steps,
		"captures", s.Captures,
		"prey_return", s.PreyReturn,
		"predator_return", s.PredatorReturn,
	)
	for _, l := range c.listeners {
		l.OnEpisodeEnd(s)
	}

	c.episode++
	c.Reset()
}

func (c *Coordinator) summary(outcome State) Summary {
	s := Summary{
		Episode:       c.episode,
		Outcome:       outcome,
		Steps:         c.step,
		Captures:      c.eliminated,
		PreyCensus:    c.preyCensus,
		SurvivalSteps: make(map[uint32]int, c.preyCensus),
		Kills:         make(map[uint32]int, c.predatorCensus),
	}

	var preyInd, predInd float64
	for _, m := range c.members {
		last, _ := m.ledger.LastEpisode()
		if m.Faction == components.FactionPrey {
			preyInd += last.Return
			if m.eliminated {
				s.SurvivalSteps[m.ID] = m.eliminatedAt
			} else {
				s.SurvivalSteps[m.ID] = c.step
			}
		} else {
			predInd += last.Return
			s.Kills[m.ID] = m.kills
		}
	}

	preyGroup, _ := c.preyGroup.LastEpisode()
	predGroup, _ := c.predatorGroup.LastEpisode()
	s.PreyReturn = preyGroup.Return + preyInd/float64(c.preyCensus)
	s.PredatorReturn = predGroup.Return + predInd/float64(c.predatorCensus)
	return s
}

// Reset restores every agent to its starting pose, optionally jittered,
// reactivates eliminated agents and clears the step and elimination
// counters. Training rewards are left to the trainer.
func (c *Coordinator) Reset() {
	for _, m := range c.members {
		pose := m.Spawn
		if c.settings.PlaceRandomly {
			pose.X += c.uniform(-c.settings.JitterX/2, c.settings.JitterX/2)
			pose.Z += c.uniform(-c.settings.JitterZ/2, c.settings.JitterZ/2)
			pose.Yaw = c.uniform(c.settings.RotMin, c.settings.RotMax)
		}
		m.Body.SetPose(pose)

		if m.eliminated {
			m.Body.SetActive(true)
		}
		m.eliminated = false
		m.eliminatedAt = 0
		m.kills = 0
	}

	c.eliminated = 0
	c.step = 0
	c.state = Running

	for _, m := range c.members {
		m.ledger.BeginEpisode()
		if m.Behavior != nil {
			m.Behavior.OnEpisodeBegin()
		}
	}
}

func (c *Coordinator) uniform(lo, hi float32) float32 {
	return lo + c.rng.Float32()*(hi-lo)
}

// State returns the current state. Between calls it is always Running.
func (c *Coordinator) State() State { return c.state }

// Step returns the number of steps taken in the current episode.
func (c *Coordinator) Step() int { return c.step }

// Eliminated returns the number of prey captured in the current episode.
func (c *Coordinator) Eliminated() int { return c.eliminated }

// Episode returns the index of the current episode, starting at 0.
func (c *Coordinator) Episode() int { return c.episode }

// PreyCensus returns the number of registered prey.
func (c *Coordinator) PreyCensus() int { return c.preyCensus }

// PredatorCensus returns the number of registered predators.
func (c *Coordinator) PredatorCensus() int { return c.predatorCensus }

// IsEliminated reports whether the agent was captured this episode.
func (c *Coordinator) IsEliminated(id uint32) bool {
	m, ok := c.byID[id]
	return ok && m.eliminated
}

// Group returns the reward group of a faction.
func (c *Coordinator) Group(f components.Faction) *training.Group {
	if f == components.FactionPredator {
		return c.predatorGroup
	}
	return c.preyGroup
}

// Ledger returns an agent's individual reward ledger, or nil if unknown.
func (c *Coordinator) Ledger(id uint32) *training.Ledger {
	if m, ok := c.byID[id]; ok {
		return m.ledger
	}
	return nil
}
