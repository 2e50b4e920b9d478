// Package filament simulates closed vortex filaments stored as rings of
// particle indices.
package filament

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/filament/field"
	"github.com/pthm-cable/filament/geom"
	"github.com/pthm-cable/filament/integrator"
	"github.com/pthm-cable/filament/mesh"
	"github.com/pthm-cable/filament/parallel"
	"github.com/pthm-cable/filament/particles"
)

const flagDeleted = particles.FlagDeleted

// DefaultCutoff is the kernel cutoff distance used for self advection.
const DefaultCutoff = 1e7

var (
	// ErrInvalidRing is returned by AddRing for fewer than 3 vertices or a
	// zero normal.
	ErrInvalidRing = errors.New("invalid ring")
	// ErrRingTooShort is returned by Remesh when an active ring has fewer
	// than 4 vertices.
	ErrRingTooShort = errors.New("ring too short to remesh")
	// ErrInvalidLength is returned by Remesh for a maximum edge length that
	// is not positive and finite.
	ErrInvalidLength = errors.New("invalid edge length")
)

// System is a set of vortex rings over a shared particle store.
type System struct {
	*particles.ConnectedStore[particles.Basic, *particles.Basic, Ring, *Ring]

	log       *slog.Logger
	pool      *parallel.Pool
	cutoff    float64
	powerIter int
	powerTol  float64
}

var _ particles.System = (*System)(nil)

// Option configures a System.
type Option func(*System)

// WithLogger sets the logger used for remesh and update warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *System) { s.log = l }
}

// WithPool evaluates the kernel on p.
func WithPool(p *parallel.Pool) Option {
	return func(s *System) { s.pool = p }
}

// WithCutoff sets the kernel cutoff distance.
func WithCutoff(c float64) Option {
	return func(s *System) { s.cutoff = c }
}

// WithPowerMethod sets the iteration limit and tolerance of the Darboux
// fixed point search.
func WithPowerMethod(maxIter int, tol float64) Option {
	return func(s *System) {
		s.powerIter = maxIter
		s.powerTol = tol
	}
}

// NewSystem creates an empty filament system.
func NewSystem(name string, opts ...Option) *System {
	s := &System{
		ConnectedStore: particles.NewConnectedStore[particles.Basic, *particles.Basic, Ring, *Ring](name, particles.KindFilament),
		log:            slog.Default(),
		cutoff:         DefaultCutoff,
		powerIter:      defaultPowerIter,
		powerTol:       defaultPowerTol,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddRing places n particles evenly on a circle of the given radius around
// center in the plane orthogonal to normal and links them into one ring.
// It returns the ring's segment index.
func (s *System) AddRing(center r3.Vec, circulation, radius float64, normal r3.Vec, n int) (int, error) {
	if n < 3 {
		return -1, fmt.Errorf("%w: %d vertices", ErrInvalidRing, n)
	}
	if r3.Norm2(normal) == 0 {
		return -1, fmt.Errorf("%w: zero normal", ErrInvalidRing)
	}
	u, v := geom.Frame(r3.Unit(normal))

	ring := NewRing(circulation)
	ring.Indices = make([]int, 0, n)
	for i := 0; i < n; i++ {
		phi := float64(i) / float64(n) * 2 * math.Pi
		p := r3.Add(center, r3.Scale(radius, r3.Add(r3.Scale(math.Cos(phi), u), r3.Scale(math.Sin(phi), v))))
		ring.Indices = append(ring.Indices, s.Add(particles.NewBasic(p)))
	}
	return s.AddSegment(ring), nil
}

// Rings returns a shallow copy of the segment list. Index slices are shared.
func (s *System) Rings() []Ring {
	out := make([]Ring, s.SegLen())
	for i := range out {
		out[i] = *s.Seg(i)
	}
	return out
}

// Positions copies every particle position, deleted ones included, so ring
// indices address the result directly.
func (s *System) Positions() []r3.Vec {
	pos := make([]r3.Vec, s.Len())
	for i := range pos {
		pos[i] = s.Pos(i)
	}
	return pos
}

// Kernel returns a kernel over the current rings.
func (s *System) Kernel(scale, reg, dt float64) *Kernel {
	return NewKernel(s.Rings(), scale, reg, s.cutoff, dt).WithPool(s.pool)
}

// AdvectSelf moves the filament particles with their own induced velocity.
// The kernel reads a frozen copy of the geometry for every integration
// stage.
func (s *System) AdvectSelf(scale, reg, dt float64, mode integrator.Mode) error {
	y := s.Positions()
	x := make([]r3.Vec, len(y))
	copy(x, y)

	k := s.Kernel(scale, reg, dt)
	if err := integrator.Integrate(x, mode, func(xs, u []r3.Vec) { k.Eval(xs, y, u) }); err != nil {
		return fmt.Errorf("advect self %s: %w", s.Name(), err)
	}
	for i, p := range x {
		s.SetPos(i, p)
	}
	return nil
}

// ApplyToMesh moves the free nodes of m with the velocity induced by the
// rings.
func (s *System) ApplyToMesh(m mesh.Mesh, scale, reg, dt float64, mode integrator.Mode) error {
	y := s.Positions()
	nodes := make([]r3.Vec, m.NumNodes())
	for i := range nodes {
		nodes[i] = m.Node(i)
	}

	k := s.Kernel(scale, reg, dt)
	if err := integrator.Integrate(nodes, mode, func(xs, u []r3.Vec) { k.Eval(xs, y, u) }); err != nil {
		return fmt.Errorf("apply %s to mesh: %w", s.Name(), err)
	}
	for i, p := range nodes {
		if !m.IsNodeFixed(i) {
			m.SetNode(i, p)
		}
	}
	return nil
}

// AdvectInGrid moves the filament particles through f. Nothing is culled,
// since ring indices must stay live.
func (s *System) AdvectInGrid(f field.Sampler, dt float64, mode integrator.Mode) error {
	return s.Advect(f, dt, mode, false)
}

// Clone compacts the system and returns an independent deep copy sharing the
// logger and pool.
func (s *System) Clone() *System {
	return &System{
		ConnectedStore: s.ConnectedStore.Clone(),
		log:            s.log,
		pool:           s.pool,
		cutoff:         s.cutoff,
		powerIter:      s.powerIter,
		powerTol:       s.powerTol,
	}
}

// Describe returns a one-line summary of the system.
func (s *System) Describe() string {
	return fmt.Sprintf("VortexFilamentSystem '%s' [%d parts, %d rings]", s.Name(), s.Len(), s.ActiveSegments())
}
