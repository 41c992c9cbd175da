package agents

import (
	"math/rand"

	"github.com/pthm-cable/pursuit/components"
)

// Prey turns away from the nearest predator seen by its rays.
type Prey struct {
	base
}

// NewPrey creates a prey brain for the given ray fan.
func NewPrey(id uint32, angles []float32, gains Gains, rng *rand.Rand) *Prey {
	return &Prey{base: newBase(id, components.FactionPrey, angles, gains, rng)}
}

// Heuristic flees from the closest predator hit, turning harder the closer
// it is. A predator dead ahead is dodged to the right.
func (p *Prey) Heuristic() components.Action {
	turn := p.wallTurn()
	if threat, ok := p.nearest(TagPredator); ok {
		urgency := 1 - threat.fraction
		if threat.offset > 0 {
			turn -= p.gains.Flee * (0.5 + urgency)
		} else {
			turn += p.gains.Flee * (0.5 + urgency)
		}
	} else {
		turn += p.wander()
	}
	return ClampAction(components.Action{Forward: 1, Turn: turn})
}
