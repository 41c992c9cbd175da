package sim

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/pursuit/components"
)

// entityBody exposes an ECS entity's pose and activation to the episode
// coordinator.
type entityBody struct {
	e      ecs.Entity
	poses  *ecs.Map1[components.Pose]
	agents *ecs.Map1[components.Agent]
	action *ecs.Map1[components.Action]
}

func (b *entityBody) Pose() components.Pose {
	return *b.poses.Get(b.e)
}

func (b *entityBody) SetPose(p components.Pose) {
	p.Yaw = components.NormalizeYaw(p.Yaw)
	*b.poses.Get(b.e) = p
}

// SetActive toggles the agent. A deactivated agent keeps its entity but is
// skipped by perception, movement and contacts, and its pending action is
// cleared.
func (b *entityBody) SetActive(active bool) {
	b.agents.Get(b.e).Active = active
	if !active {
		*b.action.Get(b.e) = components.Action{}
	}
}
