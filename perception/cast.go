package perception

import (
	"math"

	"github.com/pthm-cable/pursuit/components"
)

// NoTag marks a ray that hit nothing.
const NoTag = -1

// Target is a circular collider a ray can hit.
type Target struct {
	ID     uint32
	X, Z   float32
	Radius float32
	Tag    int // index into the sensor's detectable tags
}

// Bounds is the arena rectangle centered on the origin.
type Bounds struct {
	HalfWidth float32 // along X
	HalfDepth float32 // along Z
}

// CastInput holds everything one agent's ray pass needs.
type CastInput struct {
	Origin     components.Pose
	SelfID     uint32 // targets with this ID are ignored
	RayLength  float32
	CastRadius float32 // sphere-cast radius; 0 casts thin rays
	Bounds     Bounds
	WallTag    int // tag reported for wall hits; NoTag disables walls
	Targets    []Target
}

// RayOutput is the result of casting a single ray.
type RayOutput struct {
	HasHit      bool
	HitTag      int
	HitID       uint32
	HitFraction float32 // distance/RayLength; -1 for a hit on a ray without depth
}

// RayYaw returns the world heading of a sensor-local ray angle for an agent
// facing yaw. Angles below 90 sweep clockwise (to the agent's right).
func RayYaw(yaw, angle float32) float32 {
	return components.NormalizeYaw(yaw + CenterAngle - angle)
}

// Cast casts every ray in g and writes results into out, reusing its capacity.
func Cast(g *Geometry, in *CastInput, out []RayOutput) []RayOutput {
	n := g.NumRays()
	if cap(out) < n {
		out = make([]RayOutput, n)
	}
	out = out[:n]
	for i := 0; i < n; i++ {
		out[i] = PerceiveSingleRay(g, in, i)
	}
	return out
}

// PerceiveSingleRay casts ray i of the fan.
func PerceiveSingleRay(g *Geometry, in *CastInput, i int) RayOutput {
	dir := components.Pose{Yaw: RayYaw(in.Origin.Yaw, g.Angles[i])}
	dx, dz := dir.Forward()

	best := in.RayLength
	hit := RayOutput{HitTag: NoTag, HitFraction: 1}

	if in.WallTag != NoTag {
		if t, ok := wallDistance(in.Origin.X, in.Origin.Z, dx, dz, in.Bounds, in.CastRadius); ok && t <= best {
			best = t
			hit = RayOutput{HasHit: true, HitTag: in.WallTag}
		}
	}

	for _, tgt := range in.Targets {
		if tgt.ID == in.SelfID {
			continue
		}
		t, ok := circleDistance(in.Origin.X, in.Origin.Z, dx, dz, tgt.X, tgt.Z, tgt.Radius+in.CastRadius)
		if !ok || t > best {
			continue
		}
		best = t
		hit = RayOutput{HasHit: true, HitTag: tgt.Tag, HitID: tgt.ID}
	}

	if hit.HasHit {
		if g.Depth[i] {
			hit.HitFraction = best / in.RayLength
		} else {
			hit.HitFraction = -1
		}
	}
	return hit
}

// circleDistance returns the distance along a unit ray to the first contact
// with a circle, or false if the ray misses. A ray starting inside hits at 0.
func circleDistance(ox, oz, dx, dz, cx, cz, r float32) (float32, bool) {
	mx, mz := ox-cx, oz-cz
	b := mx*dx + mz*dz
	c := mx*mx + mz*mz - r*r
	if c <= 0 {
		return 0, true
	}
	if b > 0 {
		return 0, false
	}
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	t := -b - float32(math.Sqrt(float64(disc)))
	if t < 0 {
		t = 0
	}
	return t, true
}

// wallDistance returns the distance along a unit ray to the arena boundary,
// shrunk by the cast radius.
func wallDistance(ox, oz, dx, dz float32, b Bounds, castRadius float32) (float32, bool) {
	hw := b.HalfWidth - castRadius
	hd := b.HalfDepth - castRadius
	best := float32(math.Inf(1))

	if dx > 1e-6 {
		best = minf(best, (hw-ox)/dx)
	} else if dx < -1e-6 {
		best = minf(best, (-hw-ox)/dx)
	}
	if dz > 1e-6 {
		best = minf(best, (hd-oz)/dz)
	} else if dz < -1e-6 {
		best = minf(best, (-hd-oz)/dz)
	}

	if math.IsInf(float64(best), 1) {
		return 0, false
	}
	if best < 0 {
		best = 0
	}
	return best, true
}

// ObservationSize returns the encoded length for numRays rays and numTags tags.
func ObservationSize(numRays, numTags int) int {
	return numRays * (numTags + 2)
}

// Encode flattens ray outputs into an observation vector. Each ray writes a
// one-hot of the hit tag, a miss flag, and the hit fraction.
func Encode(dst []float32, rays []RayOutput, numTags int) []float32 {
	stride := numTags + 2
	n := len(rays) * stride
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = 0
	}

	for i, r := range rays {
		base := i * stride
		if r.HasHit && r.HitTag >= 0 && r.HitTag < numTags {
			dst[base+r.HitTag] = 1
		}
		if !r.HasHit {
			dst[base+numTags] = 1
		}
		dst[base+numTags+1] = r.HitFraction
	}
	return dst
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
