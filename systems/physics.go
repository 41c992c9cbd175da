package systems

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/pursuit/components"
	"github.com/pthm-cable/pursuit/perception"
)

// PhysicsSystem integrates agent actions into poses and keeps bodies inside the arena.
type PhysicsSystem struct {
	filter *ecs.Filter5[components.Pose, components.Motion, components.Action, components.Body, components.Agent]
	bounds perception.Bounds
	dt     float32
}

// NewPhysicsSystem creates a new physics system.
func NewPhysicsSystem(w *ecs.World, bounds perception.Bounds, dt float32) *PhysicsSystem {
	return &PhysicsSystem{
		filter: ecs.NewFilter5[components.Pose, components.Motion, components.Action, components.Body, components.Agent](w),
		bounds: bounds,
		dt:     dt,
	}
}

// Update runs the physics system. Inactive agents do not move.
func (s *PhysicsSystem) Update() {
	query := s.filter.Query()
	for query.Next() {
		pose, motion, action, body, agent := query.Get()
		if !agent.Active {
			continue
		}
		Move(pose, *motion, *action, body.Radius, s.bounds, s.dt)
	}
}

// Move advances a pose by one step. The body first travels along its current
// heading at MoveSpeed scaled by dt, then turns by RotateSpeed degrees, so a
// turn takes effect on the next step. Both channels are clamped to [-1, 1].
func Move(pose *components.Pose, m components.Motion, a components.Action, radius float32, b perception.Bounds, dt float32) {
	fwd := clamp1(a.Forward)
	turn := clamp1(a.Turn)

	dx, dz := pose.Forward()
	step := m.MoveSpeed * fwd * dt
	pose.X += dx * step
	pose.Z += dz * step

	pose.Yaw = components.NormalizeYaw(pose.Yaw + m.RotateSpeed*turn)

	// Walls are solid: clamp the body inside the arena.
	maxX := b.HalfWidth - radius
	maxZ := b.HalfDepth - radius
	pose.X = clampf(pose.X, -maxX, maxX)
	pose.Z = clampf(pose.Z, -maxZ, maxZ)
}
