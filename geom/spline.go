// Package geom holds the small curve and rotation helpers used by the
// filament code.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// HermiteSpline evaluates the cubic Hermite curve from p0 to p1 with end
// tangents m0 and m1 at parameter t in [0,1].
func HermiteSpline(p0, p1, m0, m1 r3.Vec, t float64) r3.Vec {
	t2 := t * t
	t3 := t2 * t
	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2
	return r3.Add(
		r3.Add(r3.Scale(h00, p0), r3.Scale(h10, m0)),
		r3.Add(r3.Scale(h01, p1), r3.Scale(h11, m1)),
	)
}

// CRTangent is the Catmull-Rom tangent at the middle point of p0, p1, p2.
// Only the neighbours enter the tangent.
func CRTangent(p0, _, p2 r3.Vec) r3.Vec {
	return r3.Scale(0.5, r3.Sub(p2, p0))
}

// Frame returns two unit vectors spanning the plane orthogonal to the unit
// normal n. World up is +Y unless n is (almost) parallel to it, then +X.
func Frame(n r3.Vec) (u, v r3.Vec) {
	up := r3.Vec{Y: 1}
	if math.Abs(r3.Dot(n, up)) > 1-1e-6 {
		up = r3.Vec{X: 1}
	}
	u = r3.Unit(r3.Cross(n, up))
	v = r3.Unit(r3.Cross(n, u))
	return u, v
}
