// Package components defines ECS components for the simulation.
package components

// Faction identifies which side an agent plays for.
type Faction uint8

const (
	FactionPredator Faction = iota
	FactionPrey
)

// String returns the tag name of the faction.
func (f Faction) String() string {
	switch f {
	case FactionPredator:
		return "Predator"
	case FactionPrey:
		return "Prey"
	default:
		return "Unknown"
	}
}

// ParseFaction maps a roster faction name to a Faction.
func ParseFaction(name string) (Faction, bool) {
	switch name {
	case "predator", "Predator":
		return FactionPredator, true
	case "prey", "Prey":
		return FactionPrey, true
	default:
		return 0, false
	}
}

// Agent bundles identity and activation state.
// Agents are never removed from the world; capture only deactivates them.
type Agent struct {
	ID      uint32
	Name    string
	Faction Faction
	Active  bool
}

// Sensor holds the most recent observation vector for an agent.
type Sensor struct {
	Obs []float32
}
