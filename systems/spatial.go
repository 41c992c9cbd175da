// Package systems provides ECS systems for the simulation.
package systems

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/pursuit/components"
)

// Neighbor holds a nearby entity with precomputed spatial data.
type Neighbor struct {
	E      ecs.Entity
	DX, DZ float32 // delta from query origin
	DistSq float32
}

// SpatialGrid provides cell-based neighbor lookups over a bounded arena
// centered on the origin.
type SpatialGrid struct {
	cellSize  float32
	cols      int
	rows      int
	halfWidth float32
	halfDepth float32
	cells     [][]ecs.Entity
}

// NewSpatialGrid creates a spatial grid covering [-halfWidth, halfWidth] x [-halfDepth, halfDepth].
func NewSpatialGrid(halfWidth, halfDepth, cellSize float32) *SpatialGrid {
	cols := int(2*halfWidth/cellSize) + 1
	rows := int(2*halfDepth/cellSize) + 1

	cells := make([][]ecs.Entity, cols*rows)
	for i := range cells {
		cells[i] = make([]ecs.Entity, 0, 4)
	}

	return &SpatialGrid{
		cellSize:  cellSize,
		cols:      cols,
		rows:      rows,
		halfWidth: halfWidth,
		halfDepth: halfDepth,
		cells:     cells,
	}
}

// Clear removes all entities from the grid.
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds an entity to the grid at the given position.
func (g *SpatialGrid) Insert(e ecs.Entity, x, z float32) {
	col, row := g.cell(x, z)
	g.cells[row*g.cols+col] = append(g.cells[row*g.cols+col], e)
}

// QueryRadiusInto finds entities within radius of (x, z) and appends them to dst.
// Reuse dst across calls to avoid allocations.
func (g *SpatialGrid) QueryRadiusInto(dst []Neighbor, x, z, radius float32, exclude ecs.Entity, poseMap *ecs.Map1[components.Pose]) []Neighbor {
	cellRadius := int(radius/g.cellSize) + 1
	centerCol, centerRow := g.cell(x, z)
	radiusSq := radius * radius

	for dc := -cellRadius; dc <= cellRadius; dc++ {
		col := centerCol + dc
		if col < 0 || col >= g.cols {
			continue
		}
		for dr := -cellRadius; dr <= cellRadius; dr++ {
			row := centerRow + dr
			if row < 0 || row >= g.rows {
				continue
			}

			for _, e := range g.cells[row*g.cols+col] {
				if e == exclude {
					continue
				}
				pose := poseMap.Get(e)
				if pose == nil {
					continue
				}

				dx := pose.X - x
				dz := pose.Z - z
				distSq := dx*dx + dz*dz
				if distSq <= radiusSq {
					dst = append(dst, Neighbor{E: e, DX: dx, DZ: dz, DistSq: distSq})
				}
			}
		}
	}

	return dst
}

// cell returns the clamped column and row for a world position.
func (g *SpatialGrid) cell(x, z float32) (int, int) {
	col := int((x + g.halfWidth) / g.cellSize)
	row := int((z + g.halfDepth) / g.cellSize)

	if col < 0 {
		col = 0
	} else if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	} else if row >= g.rows {
		row = g.rows - 1
	}

	return col, row
}
