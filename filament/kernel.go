package filament

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/filament/parallel"
)

// minDist2 is the squared distance below which an edge endpoint is treated
// as coincident with the evaluation point and the edge is dropped.
const minDist2 = 1e-6

// Kernel evaluates the regularized Biot-Savart velocity induced by a set of
// rings. Positions are read by index from the slice passed to each call.
type Kernel struct {
	Strength float64 // scale*dt/(4*pi)
	Cutoff2  float64
	A2       float64 // regularization squared

	rings []Ring
	pool  *parallel.Pool
}

// NewKernel builds a kernel over rings. Deleted rings are ignored.
func NewKernel(rings []Ring, scale, reg, cutoff, dt float64) *Kernel {
	return &Kernel{
		Strength: scale * dt / (4 * math.Pi),
		Cutoff2:  cutoff * cutoff,
		A2:       reg * reg,
		rings:    rings,
	}
}

// WithPool attaches a worker pool used by Eval.
func (k *Kernel) WithPool(p *parallel.Pool) *Kernel {
	k.pool = p
	return k
}

// SegmentVelocity is the contribution at xi of the single edge p0->p1 with
// circulation circ.
func (k *Kernel) SegmentVelocity(p0, p1 r3.Vec, circ float64, xi r3.Vec) r3.Vec {
	r0 := r3.Sub(p0, xi)
	r1 := r3.Sub(p1, xi)
	r02, r12 := r3.Norm2(r0), r3.Norm2(r1)
	if r02 > k.Cutoff2 || r12 > k.Cutoff2 || r02 < minDist2 || r12 < minDist2 {
		return r3.Vec{}
	}

	e := r3.Unit(r3.Sub(r1, r0))
	r0n := 1 / math.Sqrt(k.A2+r02)
	r1n := 1 / math.Sqrt(k.A2+r12)
	cp := r3.Cross(r0, e)
	a := k.Strength * circ * (r3.Dot(r1, e)*r1n - r3.Dot(r0, e)*r0n) / (k.A2 + r3.Norm2(cp))
	return r3.Scale(a, cp)
}

// Velocity sums the contributions of every edge of every active ring at xi.
func (k *Kernel) Velocity(y []r3.Vec, xi r3.Vec) r3.Vec {
	var u r3.Vec
	for ri := range k.rings {
		ring := &k.rings[ri]
		if ring.Flags.Has(flagDeleted) {
			continue
		}
		n := ring.Size()
		for j := 0; j < n; j++ {
			u = r3.Add(u, k.SegmentVelocity(y[ring.Idx0(j)], y[ring.Idx1(j)], ring.Circulation, xi))
		}
	}
	return u
}

// Eval writes into u the velocity at every point of x induced by the rings
// placed at y. y is only read.
func (k *Kernel) Eval(x, y, u []r3.Vec) {
	k.pool.Run(len(x), func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			u[i] = k.Velocity(y, x[i])
		}
	})
}
