package components

import "math"

// Pose is an entity's position on the arena floor (XZ plane) and its heading.
// Yaw is in degrees, clockwise about +Y; yaw 0 faces +Z, yaw 90 faces +X.
type Pose struct {
	X, Z float32
	Yaw  float32
}

// Forward returns the unit heading vector on the XZ plane.
func (p Pose) Forward() (dx, dz float32) {
	rad := float64(p.Yaw) * math.Pi / 180
	return float32(math.Sin(rad)), float32(math.Cos(rad))
}

// NormalizeYaw wraps a heading to [0, 360).
func NormalizeYaw(deg float32) float32 {
	deg = float32(math.Mod(float64(deg), 360))
	if deg < 0 {
		deg += 360
		// A tiny negative input rounds up to exactly 360 in float32.
		if deg >= 360 {
			deg = 0
		}
	}
	return deg
}
