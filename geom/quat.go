package geom

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DarbouxStep carries the transform vector lT across one edge S of a
// discrete curve: lT is conjugated by the quaternion with real part -r and
// imaginary part lT-S.
func DarbouxStep(s, lT r3.Vec, r float64) r3.Vec {
	d := r3.Sub(lT, s)
	q := quat.Number{Real: -r, Imag: d.X, Jmag: d.Y, Kmag: d.Z}
	p := quat.Number{Imag: lT.X, Jmag: lT.Y, Kmag: lT.Z}
	res := quat.Mul(quat.Mul(q, p), quat.Inv(q))
	return r3.Vec{X: res.Imag, Y: res.Jmag, Z: res.Kmag}
}
