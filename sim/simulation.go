// Package sim runs the headless predator/prey arena: it owns the ECS world,
// drives the per-tick systems and feeds captures and step advances to the
// episode coordinator.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mlange-42/ark/ecs"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/pursuit/agents"
	"github.com/pthm-cable/pursuit/components"
	"github.com/pthm-cable/pursuit/config"
	"github.com/pthm-cable/pursuit/episode"
	"github.com/pthm-cable/pursuit/perception"
	"github.com/pthm-cable/pursuit/storage"
	"github.com/pthm-cable/pursuit/systems"
	"github.com/pthm-cable/pursuit/telemetry"
)

// Policy chooses an agent's action from its latest observation.
type Policy func(a agents.Agent, obs []float32) components.Action

// Options configures a Simulation.
type Options struct {
	Seed      int64
	Config    *config.Config // nil uses config.Cfg()
	OutputDir string         // CSV, snapshot and survival log directory (empty = disabled)
	LogStats  bool           // log window and perf stats via slog
	Store     storage.Store  // optional, must already be initialized
	Policy    Policy         // nil uses each agent's heuristic
	Logger    *slog.Logger

	// StatsCallback is called with each window summary.
	StatsCallback func(telemetry.WindowStats)
}

// Simulation holds the complete arena state.
type Simulation struct {
	cfg    *config.Config
	world  *ecs.World
	rng    *rand.Rand
	logger *slog.Logger
	seed   int64
	runID  string

	mapper *ecs.Map6[
		components.Pose,
		components.Body,
		components.Motion,
		components.Action,
		components.Agent,
		components.Sensor,
	]
	poseMap   *ecs.Map1[components.Pose]
	agentMap  *ecs.Map1[components.Agent]
	actionMap *ecs.Map1[components.Action]
	sensorMap *ecs.Map1[components.Sensor]

	entities map[uint32]ecs.Entity
	agents   []agents.Agent // roster order
	policy   Policy

	geom     *perception.Geometry
	sensors  *systems.SensorSystem
	physics  *systems.PhysicsSystem
	contacts *systems.ContactSystem
	coord    *episode.Coordinator

	// Telemetry
	collector     *telemetry.Collector
	lifetimes     *telemetry.LifetimeTracker
	survival      *telemetry.SurvivalLog
	bookmarks     *telemetry.BookmarkDetector
	perf          *telemetry.PerfCollector
	output        *telemetry.OutputManager
	store         storage.Store
	statsCallback func(telemetry.WindowStats)
	logStats      bool

	tick int64
}

// New builds the arena from the roster and starts the first episode.
func New(opts Options) (*Simulation, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Cfg()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	world := ecs.NewWorld()
	s := &Simulation{
		cfg:    cfg,
		world:  world,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		logger: logger,
		seed:   opts.Seed,
		runID:  uuid.NewString(),
		mapper: ecs.NewMap6[
			components.Pose,
			components.Body,
			components.Motion,
			components.Action,
			components.Agent,
			components.Sensor,
		](world),
		poseMap:       ecs.NewMap1[components.Pose](world),
		agentMap:      ecs.NewMap1[components.Agent](world),
		actionMap:     ecs.NewMap1[components.Action](world),
		sensorMap:     ecs.NewMap1[components.Sensor](world),
		entities:      make(map[uint32]ecs.Entity, len(cfg.Roster)),
		policy:        opts.Policy,
		store:         opts.Store,
		statsCallback: opts.StatsCallback,
		logStats:      opts.LogStats,
	}

	geom, err := perception.NewGeometry(perception.SensorSpec{
		RaysPerDirection:      cfg.Sensors.RaysPerDirection,
		DepthRaysPerDirection: cfg.Sensors.DepthRaysPerDirection,
		MaxRayDegrees:         float32(cfg.Sensors.MaxRayDegrees),
	})
	if err != nil {
		return nil, fmt.Errorf("sensor geometry: %w", err)
	}
	s.geom = geom

	bounds := perception.Bounds{HalfWidth: cfg.Derived.HalfWidth32, HalfDepth: cfg.Derived.HalfDepth32}
	s.sensors = systems.NewSensorSystem(world, geom, systems.SensorOptions{
		RayLength:  float32(cfg.Sensors.RayLength),
		CastRadius: float32(cfg.Sensors.CastRadius),
		Bounds:     bounds,
	})
	s.physics = systems.NewPhysicsSystem(world, bounds, cfg.Derived.DT32)
	s.contacts = systems.NewContactSystem(world, bounds.HalfWidth, bounds.HalfDepth, contactCellSize(cfg))

	members, err := s.spawnRoster()
	if err != nil {
		return nil, err
	}

	coord, err := episode.New(episode.SettingsFromConfig(cfg), members, s.rng, logger)
	if err != nil {
		return nil, err
	}
	s.coord = coord

	if err := s.initTelemetry(opts.OutputDir); err != nil {
		s.closeTelemetry()
		return nil, err
	}

	logger.Info("simulation_ready",
		"run_id", s.runID,
		"seed", s.seed,
		"predators", coord.PredatorCensus(),
		"prey", coord.PreyCensus(),
		"rays", geom.NumRays(),
	)
	return s, nil
}

// contactCellSize sizes grid cells so a contact never spans more than two cells.
func contactCellSize(cfg *config.Config) float32 {
	size := float32(cfg.Body.PredatorRadius + cfg.Body.PreyRadius)
	if size < 0.5 {
		size = 0.5
	}
	return size
}

// spawnRoster creates one entity per roster entry. Agent IDs are assigned
// from 1 in roster order.
func (s *Simulation) spawnRoster() ([]episode.Member, error) {
	gains := agents.GainsFromConfig(s.cfg)
	members := make([]episode.Member, 0, len(s.cfg.Roster))

	for i, entry := range s.cfg.Roster {
		faction, ok := components.ParseFaction(entry.Faction)
		if !ok {
			return nil, &episode.ConfigurationError{Reason: fmt.Sprintf("roster entry %q has unknown faction %q", entry.Name, entry.Faction)}
		}
		id := uint32(i + 1)

		pose := components.Pose{X: float32(entry.X), Z: float32(entry.Z), Yaw: float32(entry.Yaw)}
		body := components.Body{Radius: float32(s.cfg.Body.PreyRadius)}
		motion := components.Motion{
			MoveSpeed:   float32(s.cfg.Motion.PreyMoveSpeed),
			RotateSpeed: float32(s.cfg.Motion.PreyRotateSpeed),
		}
		var agent agents.Agent
		if faction == components.FactionPredator {
			body.Radius = float32(s.cfg.Body.PredatorRadius)
			motion = components.Motion{
				MoveSpeed:   float32(s.cfg.Motion.PredatorMoveSpeed),
				RotateSpeed: float32(s.cfg.Motion.PredatorRotateSpeed),
			}
			agent = agents.NewPredator(id, s.geom.Angles, gains, s.rng)
		} else {
			agent = agents.NewPrey(id, s.geom.Angles, gains, s.rng)
		}

		action := components.Action{}
		tag := components.Agent{ID: id, Name: entry.Name, Faction: faction, Active: true}
		sensor := components.Sensor{Obs: make([]float32, perception.ObservationSize(s.geom.NumRays(), agents.NumTags))}

		e := s.mapper.NewEntity(&pose, &body, &motion, &action, &tag, &sensor)
		s.entities[id] = e
		s.agents = append(s.agents, agent)

		members = append(members, episode.Member{
			ID:      id,
			Name:    entry.Name,
			Faction: faction,
			Spawn:   pose,
			Body: &entityBody{
				e:      e,
				poses:  s.poseMap,
				agents: s.agentMap,
				action: s.actionMap,
			},
			Behavior: agent,
		})
	}
	return members, nil
}

// Step runs a single tick of the simulation.
func (s *Simulation) Step() {
	s.perf.StartTick()

	// 1. Ray perception for every active agent
	s.perf.StartPhase(telemetry.PhasePerception)
	s.sensors.Update()

	// 2. Observation to action
	s.perf.StartPhase(telemetry.PhasePolicy)
	s.updatePolicies()

	// 3. Movement and wall clamping
	s.perf.StartPhase(telemetry.PhasePhysics)
	s.physics.Update()
	s.tick++

	// 4. Captures; the episode may terminate here
	s.perf.StartPhase(telemetry.PhaseContacts)
	terminated := s.reportCaptures()

	// 5. Step shaping and timeout
	s.perf.StartPhase(telemetry.PhaseEpisode)
	if !terminated {
		s.coord.AdvanceStep()
	}

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.flushTelemetry()

	s.perf.EndTick()
}

// updatePolicies hands each active agent its observation and copies the
// chosen action into the ECS.
func (s *Simulation) updatePolicies() {
	for _, a := range s.agents {
		e := s.entities[a.ID()]
		if !s.agentMap.Get(e).Active {
			continue
		}
		obs := s.sensorMap.Get(e).Obs
		a.Observe(obs)

		var act components.Action
		if s.policy != nil {
			act = s.policy(a, obs)
		} else {
			act = a.Heuristic()
		}
		a.ApplyAction(act)
		*s.actionMap.Get(e) = a.Action()
	}
}

// reportCaptures forwards contacts to the coordinator and reports whether
// the episode terminated. Contacts after a termination belong to the old
// episode and are dropped.
func (s *Simulation) reportCaptures() bool {
	for _, c := range s.contacts.Detect() {
		state, err := s.coord.ReportCapture(c.PreyID, c.PredatorID)
		if err != nil {
			s.logger.Error("capture_rejected", "prey", c.PreyID, "predator", c.PredatorID, "error", err)
			continue
		}
		if state == episode.Terminated {
			return true
		}
	}
	return false
}

// Close writes final outputs and releases files. The store is owned by the
// caller and is not closed.
func (s *Simulation) Close() error {
	var errs []error
	if err := s.output.WriteLifetimes(s.lifetimes.All()); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, s.closeTelemetry())
	return errors.Join(errs...)
}

func (s *Simulation) closeTelemetry() error {
	return errors.Join(s.survival.Close(), s.output.Close())
}

// saveRun records the run and its effective configuration in the store.
func (s *Simulation) saveRun(ctx context.Context) error {
	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := s.store.SaveRun(ctx, storage.RunRecord{ID: s.runID, Seed: s.seed, Config: string(data)}); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// survivalLogPath resolves a relative survival log name against the output directory.
func survivalLogPath(name, outputDir string) string {
	if name == "" || filepath.IsAbs(name) || outputDir == "" {
		return name
	}
	return filepath.Join(outputDir, name)
}

// Tick returns the number of ticks run.
func (s *Simulation) Tick() int64 { return s.tick }

// RunID returns the unique identifier stamped on this run's records.
func (s *Simulation) RunID() string { return s.runID }

// Seed returns the RNG seed.
func (s *Simulation) Seed() int64 { return s.seed }

// Coordinator returns the episode coordinator.
func (s *Simulation) Coordinator() *episode.Coordinator { return s.coord }

// Lifetimes returns the per-agent lifetime tracker.
func (s *Simulation) Lifetimes() *telemetry.LifetimeTracker { return s.lifetimes }

// Episodes returns the number of finished episodes.
func (s *Simulation) Episodes() int { return s.coord.Episode() }

// Agent returns the agent with the given ID, or nil.
func (s *Simulation) Agent(id uint32) agents.Agent {
	if id == 0 || int(id) > len(s.agents) {
		return nil
	}
	return s.agents[id-1]
}

// Pose returns an agent's current pose.
func (s *Simulation) Pose(id uint32) (components.Pose, bool) {
	e, ok := s.entities[id]
	if !ok {
		return components.Pose{}, false
	}
	return *s.poseMap.Get(e), true
}

// SetPose moves an agent, e.g. to script a scenario between ticks.
func (s *Simulation) SetPose(id uint32, p components.Pose) bool {
	e, ok := s.entities[id]
	if !ok {
		return false
	}
	*s.poseMap.Get(e) = p
	return true
}

// Active reports whether an agent is currently active.
func (s *Simulation) Active(id uint32) bool {
	e, ok := s.entities[id]
	return ok && s.agentMap.Get(e).Active
}

// Observation returns an agent's latest encoded observation.
func (s *Simulation) Observation(id uint32) []float32 {
	e, ok := s.entities[id]
	if !ok {
		return nil
	}
	return s.sensorMap.Get(e).Obs
}
