package systems

import (
	"sort"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/pursuit/components"
)

// Contact is a predator body touching a prey body.
type Contact struct {
	PreyID     uint32
	PredatorID uint32
}

// ContactSystem detects predator/prey overlaps among active agents.
type ContactSystem struct {
	filter   *ecs.Filter3[components.Pose, components.Body, components.Agent]
	poseMap  *ecs.Map1[components.Pose]
	bodyMap  *ecs.Map1[components.Body]
	agentMap *ecs.Map1[components.Agent]
	grid     *SpatialGrid

	predators []ecs.Entity
	neighbors []Neighbor
	contacts  []Contact
}

// NewContactSystem creates a contact system over an arena of the given half extents.
func NewContactSystem(w *ecs.World, halfWidth, halfDepth, cellSize float32) *ContactSystem {
	return &ContactSystem{
		filter:   ecs.NewFilter3[components.Pose, components.Body, components.Agent](w),
		poseMap:  ecs.NewMap1[components.Pose](w),
		bodyMap:  ecs.NewMap1[components.Body](w),
		agentMap: ecs.NewMap1[components.Agent](w),
		grid:     NewSpatialGrid(halfWidth, halfDepth, cellSize),
	}
}

// Detect returns every touching predator/prey pair, ordered by predator ID
// then prey ID. A prey touched by two predators appears twice. The returned
// slice is reused by the next call.
func (s *ContactSystem) Detect() []Contact {
	s.grid.Clear()
	s.predators = s.predators[:0]
	s.contacts = s.contacts[:0]

	var maxPreyRadius float32
	query := s.filter.Query()
	for query.Next() {
		pose, body, agent := query.Get()
		if !agent.Active {
			continue
		}
		if agent.Faction == components.FactionPrey {
			s.grid.Insert(query.Entity(), pose.X, pose.Z)
			if body.Radius > maxPreyRadius {
				maxPreyRadius = body.Radius
			}
		} else {
			s.predators = append(s.predators, query.Entity())
		}
	}

	for _, e := range s.predators {
		pose := s.poseMap.Get(e)
		body := s.bodyMap.Get(e)
		predator := s.agentMap.Get(e)

		s.neighbors = s.grid.QueryRadiusInto(s.neighbors[:0], pose.X, pose.Z, body.Radius+maxPreyRadius, e, s.poseMap)
		for _, n := range s.neighbors {
			reach := body.Radius + s.bodyMap.Get(n.E).Radius
			if n.DistSq > reach*reach {
				continue
			}
			s.contacts = append(s.contacts, Contact{
				PreyID:     s.agentMap.Get(n.E).ID,
				PredatorID: predator.ID,
			})
		}
	}

	sort.Slice(s.contacts, func(i, j int) bool {
		if s.contacts[i].PredatorID != s.contacts[j].PredatorID {
			return s.contacts[i].PredatorID < s.contacts[j].PredatorID
		}
		return s.contacts[i].PreyID < s.contacts[j].PreyID
	})
	return s.contacts
}
