// Package perception computes ray-fan sensor geometry and casts the fan
// against the arena to build agent observations.
package perception

import "fmt"

// CenterAngle is the sensor-local angle of the straight-ahead ray.
const CenterAngle = 90

// ConfigurationError reports sensor parameters that cannot produce a valid fan.
type ConfigurationError struct {
	Param  string
	Value  float64
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("perception: %s=%v: %s", e.Param, e.Value, e.Reason)
}

// GenerateAngles returns the ray angles in degrees for a fan with
// raysPerDirection rays on each side of center spread over maxConeDegrees.
// Index 0 is straight ahead (90), followed by left/right pairs of
// increasing offset: {90, 90-d, 90+d, 90-2d, 90+2d, ...}.
func GenerateAngles(raysPerDirection int, maxConeDegrees float32) ([]float32, error) {
	if raysPerDirection < 0 {
		return nil, &ConfigurationError{Param: "rays_per_direction", Value: float64(raysPerDirection), Reason: "must not be negative"}
	}
	if maxConeDegrees < 0 || maxConeDegrees > 180 {
		return nil, &ConfigurationError{Param: "max_ray_degrees", Value: float64(maxConeDegrees), Reason: "must be in [0, 180]"}
	}

	angles := make([]float32, 2*raysPerDirection+1)
	angles[0] = CenterAngle
	if raysPerDirection == 0 {
		return angles, nil
	}

	delta := maxConeDegrees / float32(raysPerDirection)
	for i := 0; i < raysPerDirection; i++ {
		offset := float32(i+1) * delta
		angles[2*i+1] = CenterAngle - offset
		angles[2*i+2] = CenterAngle + offset
	}
	return angles, nil
}

// GenerateDepthMask returns which rays report depth, aligned with GenerateAngles.
func GenerateDepthMask(raysPerDirection, depthRaysPerDirection int) ([]bool, error) {
	return GenerateDepthMaskInto(nil, raysPerDirection, depthRaysPerDirection)
}

// GenerateDepthMaskInto is GenerateDepthMask reusing dst when it has capacity.
// Every entry is written, so a buffer from a wider configuration carries no
// stale values.
func GenerateDepthMaskInto(dst []bool, raysPerDirection, depthRaysPerDirection int) ([]bool, error) {
	if raysPerDirection < 0 {
		return nil, &ConfigurationError{Param: "rays_per_direction", Value: float64(raysPerDirection), Reason: "must not be negative"}
	}
	if depthRaysPerDirection < 0 || depthRaysPerDirection > raysPerDirection {
		return nil, &ConfigurationError{
			Param:  "depth_rays_per_direction",
			Value:  float64(depthRaysPerDirection),
			Reason: fmt.Sprintf("must be in [0, %d]", raysPerDirection),
		}
	}

	n := 2*raysPerDirection + 1
	if cap(dst) < n {
		dst = make([]bool, n)
	}
	dst = dst[:n]

	dst[0] = true
	for i := 0; i < depthRaysPerDirection; i++ {
		dst[2*i+1] = true
		dst[2*i+2] = true
	}
	for i := depthRaysPerDirection; i < raysPerDirection; i++ {
		dst[2*i+1] = false
		dst[2*i+2] = false
	}
	return dst, nil
}

// SensorSpec holds the parameters that determine a ray fan.
type SensorSpec struct {
	RaysPerDirection      int
	DepthRaysPerDirection int
	MaxRayDegrees         float32
}

// Geometry is a computed ray fan. It is recomputed only when its spec changes.
type Geometry struct {
	Angles []float32
	Depth  []bool

	spec  SensorSpec
	valid bool
}

// NewGeometry computes the fan for spec.
func NewGeometry(spec SensorSpec) (*Geometry, error) {
	g := &Geometry{}
	if err := g.Configure(spec); err != nil {
		return nil, err
	}
	return g, nil
}

// Configure recomputes the fan if spec differs from the current one.
// On error the previous geometry is kept unchanged.
func (g *Geometry) Configure(spec SensorSpec) error {
	if g.valid && spec == g.spec {
		return nil
	}

	angles, err := GenerateAngles(spec.RaysPerDirection, spec.MaxRayDegrees)
	if err != nil {
		return err
	}
	// Arguments are validated before the buffer is written.
	depth, err := GenerateDepthMaskInto(g.Depth, spec.RaysPerDirection, spec.DepthRaysPerDirection)
	if err != nil {
		return err
	}

	g.Angles = angles
	g.Depth = depth
	g.spec = spec
	g.valid = true
	return nil
}

// Spec returns the parameters the fan was computed from.
func (g *Geometry) Spec() SensorSpec {
	return g.spec
}

// NumRays returns the number of rays in the fan.
func (g *Geometry) NumRays() int {
	return len(g.Angles)
}
