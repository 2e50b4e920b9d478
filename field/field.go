// Package field provides background velocity fields that particles can be
// advected through.
package field

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Sampler is a velocity field with a bounded domain and obstacles.
type Sampler interface {
	// InBounds reports whether p lies inside the domain shrunk by margin.
	InBounds(p r3.Vec, margin float64) bool
	// IsObstacle reports whether p lies inside a solid obstacle.
	IsObstacle(p r3.Vec) bool
	// Velocity samples the field at p.
	Velocity(p r3.Vec) r3.Vec
}

// Sphere is a spherical obstacle.
type Sphere struct {
	Center r3.Vec
	Radius float64
}

// Box is an axis-aligned domain with a uniform drift plus a solid-body swirl
// about the vertical axis through SwirlCenter.
type Box struct {
	Min, Max    r3.Vec
	Drift       r3.Vec
	Swirl       float64 // angular velocity about +Y, rad/s
	SwirlCenter r3.Vec
	Obstacles   []Sphere
}

var _ Sampler = (*Box)(nil)

// InBounds implements Sampler.
func (b *Box) InBounds(p r3.Vec, margin float64) bool {
	return p.X >= b.Min.X+margin && p.X <= b.Max.X-margin &&
		p.Y >= b.Min.Y+margin && p.Y <= b.Max.Y-margin &&
		p.Z >= b.Min.Z+margin && p.Z <= b.Max.Z-margin
}

// IsObstacle implements Sampler.
func (b *Box) IsObstacle(p r3.Vec) bool {
	for _, s := range b.Obstacles {
		if r3.Norm2(r3.Sub(p, s.Center)) < s.Radius*s.Radius {
			return true
		}
	}
	return false
}

// Velocity implements Sampler.
func (b *Box) Velocity(p r3.Vec) r3.Vec {
	v := b.Drift
	if b.Swirl != 0 {
		d := r3.Sub(p, b.SwirlCenter)
		// omega x d with omega along +Y
		v = r3.Add(v, r3.Vec{X: b.Swirl * d.Z, Z: -b.Swirl * d.X})
	}
	return v
}
