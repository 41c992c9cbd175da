package systems

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/pursuit/agents"
	"github.com/pthm-cable/pursuit/components"
	"github.com/pthm-cable/pursuit/perception"
)

// SensorOptions configures the ray sensor shared by every agent.
type SensorOptions struct {
	RayLength  float32
	CastRadius float32
	Bounds     perception.Bounds
}

// SensorSystem casts each active agent's ray fan against the other active
// agents and the arena walls, and stores the encoded observation in its
// Sensor component.
type SensorSystem struct {
	filter *ecs.Filter4[components.Pose, components.Body, components.Agent, components.Sensor]
	geom   *perception.Geometry
	input  perception.CastInput
	rays   []perception.RayOutput
}

// NewSensorSystem creates a sensor system using geom for every agent.
func NewSensorSystem(w *ecs.World, geom *perception.Geometry, opts SensorOptions) *SensorSystem {
	return &SensorSystem{
		filter: ecs.NewFilter4[components.Pose, components.Body, components.Agent, components.Sensor](w),
		geom:   geom,
		input: perception.CastInput{
			RayLength:  opts.RayLength,
			CastRadius: opts.CastRadius,
			Bounds:     opts.Bounds,
			WallTag:    agents.TagWall,
		},
	}
}

// TagFor returns the detectable tag of a faction.
func TagFor(f components.Faction) int {
	if f == components.FactionPredator {
		return agents.TagPredator
	}
	return agents.TagPrey
}

// Update refreshes the observations of all active agents.
func (s *SensorSystem) Update() {
	s.input.Targets = s.input.Targets[:0]
	query := s.filter.Query()
	for query.Next() {
		pose, body, agent, _ := query.Get()
		if !agent.Active {
			continue
		}
		s.input.Targets = append(s.input.Targets, perception.Target{
			ID:     agent.ID,
			X:      pose.X,
			Z:      pose.Z,
			Radius: body.Radius,
			Tag:    TagFor(agent.Faction),
		})
	}

	query = s.filter.Query()
	for query.Next() {
		pose, _, agent, sensor := query.Get()
		if !agent.Active {
			continue
		}
		s.input.Origin = *pose
		s.input.SelfID = agent.ID
		s.rays = perception.Cast(s.geom, &s.input, s.rays)
		sensor.Obs = perception.Encode(sensor.Obs, s.rays, agents.NumTags)
	}
}
