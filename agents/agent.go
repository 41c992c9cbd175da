// Package agents holds the decision side of predators and prey: the latest
// ray observation, the pending action and the scripted heuristic policies used
// when no external policy drives the agent.
package agents

import (
	"math/rand"

	"github.com/pthm-cable/pursuit/components"
	"github.com/pthm-cable/pursuit/config"
	"github.com/pthm-cable/pursuit/perception"
)

// Detectable tag indices in the encoded observation, in sensor order.
const (
	TagPredator = 0
	TagPrey     = 1
	TagWall     = 2
	NumTags     = 3
)

// Agent is the per-agent decision surface driven by the simulation each tick.
type Agent interface {
	ID() uint32
	Faction() components.Faction

	// Observe receives the encoded ray observation for this tick.
	Observe(obs []float32)
	// Heuristic returns the scripted action for the last observation.
	Heuristic() components.Action
	// ApplyAction stores the action to be integrated by movement, clamped to [-1, 1].
	ApplyAction(a components.Action)
	// Action returns the pending action.
	Action() components.Action
	OnEpisodeBegin()
}

// Gains are the steering gains shared by the heuristic policies.
type Gains struct {
	Chase  float32
	Flee   float32
	Wall   float32
	Wander float32
}

// GainsFromConfig reads heuristic gains from config.
func GainsFromConfig(cfg *config.Config) Gains {
	return Gains{
		Chase:  float32(cfg.Policy.ChaseTurnGain),
		Flee:   float32(cfg.Policy.FleeTurnGain),
		Wall:   float32(cfg.Policy.WallTurnGain),
		Wander: float32(cfg.Policy.Wander),
	}
}

// wallNear is the hit fraction under which a wall starts pushing the heading.
const wallNear = 0.25

// base carries what predators and prey share.
type base struct {
	id      uint32
	faction components.Faction
	angles  []float32
	gains   Gains
	rng     *rand.Rand
	span    float32 // bearing offset of the outermost ray

	obs      []float32
	action   components.Action
	episodes int
}

func newBase(id uint32, faction components.Faction, angles []float32, gains Gains, rng *rand.Rand) base {
	b := base{
		id:      id,
		faction: faction,
		angles:  angles,
		gains:   gains,
		rng:     rng,
	}
	for _, a := range angles {
		off := (perception.CenterAngle - a) / perception.CenterAngle
		if off < 0 {
			off = -off
		}
		if off > b.span {
			b.span = off
		}
	}
	return b
}

func (b *base) ID() uint32                      { return b.id }
func (b *base) Faction() components.Faction     { return b.faction }
func (b *base) Action() components.Action       { return b.action }
func (b *base) Observation() []float32          { return b.obs }
func (b *base) Episodes() int                   { return b.episodes }
func (b *base) Observe(obs []float32)           { b.obs = append(b.obs[:0], obs...) }
func (b *base) ApplyAction(a components.Action) { b.action = ClampAction(a) }

// OnEpisodeBegin clears the pending action and the stale observation.
func (b *base) OnEpisodeBegin() {
	b.episodes++
	b.action = components.Action{}
	b.obs = b.obs[:0]
}

// ray is one decoded ray of the observation.
type ray struct {
	offset   float32 // signed bearing in [-1, 1], positive to the right
	tag      int
	hit      bool
	fraction float32
}

// decode reads ray i of the last observation.
func (b *base) decode(i int) (ray, bool) {
	stride := NumTags + 2
	off := i * stride
	if off+stride > len(b.obs) || i >= len(b.angles) {
		return ray{}, false
	}
	r := ray{
		offset: (perception.CenterAngle - b.angles[i]) / perception.CenterAngle,
		tag:    perception.NoTag,
	}
	for t := 0; t < NumTags; t++ {
		if b.obs[off+t] > 0.5 {
			r.tag = t
			r.hit = true
		}
	}
	r.fraction = b.obs[off+NumTags+1]
	// Depthless rays report -1 on hit; treat them as mid-range.
	if r.hit && r.fraction < 0 {
		r.fraction = 0.5
	}
	return r, true
}

// nearest returns the closest ray that hit tag.
func (b *base) nearest(tag int) (ray, bool) {
	var best ray
	found := false
	for i := range b.angles {
		r, ok := b.decode(i)
		if !ok || !r.hit || r.tag != tag {
			continue
		}
		if !found || r.fraction < best.fraction {
			best = r
			found = true
		}
	}
	return best, found
}

// wallTurn steers away from walls closer than wallNear.
func (b *base) wallTurn() float32 {
	var turn float32
	for i := range b.angles {
		r, ok := b.decode(i)
		if !ok || !r.hit || r.tag != TagWall || r.fraction >= wallNear {
			continue
		}
		push := 1 - r.fraction/wallNear
		// Walls dead ahead turn the agent right.
		if r.offset > 0 {
			turn -= push
		} else {
			turn += push
		}
	}
	return b.gains.Wall * turn
}

func (b *base) wander() float32 {
	if b.rng == nil || b.gains.Wander == 0 {
		return 0
	}
	return b.gains.Wander * (2*b.rng.Float32() - 1)
}

// ClampAction clamps both action channels to [-1, 1].
func ClampAction(a components.Action) components.Action {
	return components.Action{Forward: clamp1(a.Forward), Turn: clamp1(a.Turn)}
}

func clamp1(v float32) float32 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
