package agents

import (
	"math/rand"

	"github.com/pthm-cable/pursuit/components"
)

// Predator chases the nearest prey seen by its rays.
type Predator struct {
	base
}

// NewPredator creates a predator brain for the given ray fan.
func NewPredator(id uint32, angles []float32, gains Gains, rng *rand.Rand) *Predator {
	return &Predator{base: newBase(id, components.FactionPredator, angles, gains, rng)}
}

// Heuristic steers toward the closest prey hit at full speed, and wanders
// when no prey is in view. A hit on the outermost ray turns at full rate.
func (p *Predator) Heuristic() components.Action {
	turn := p.wallTurn()
	if target, ok := p.nearest(TagPrey); ok {
		bearing := target.offset
		if p.span > 0 {
			bearing /= p.span
		}
		turn += p.gains.Chase * bearing
	} else {
		turn += p.wander()
	}
	return ClampAction(components.Action{Forward: 1, Turn: turn})
}
