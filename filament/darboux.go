package filament

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/filament/geom"
)

const (
	defaultPowerIter = 100
	defaultPowerTol  = 1e-4

	// refCutoff disables the cutoff for the reference polygon.
	refCutoff = 1e10
)

var (
	// ErrNoConvergence reports a Darboux fixed point search that did not
	// settle within the iteration limit.
	ErrNoConvergence = errors.New("darboux fixed point did not converge")
	// ErrDegenerateRing reports a ring whose reference parameters are not
	// finite, such as a zero-length ring.
	ErrDegenerateRing = errors.New("degenerate ring")
)

// UpdateStage is the progress of the doubly-discrete update of one ring.
type UpdateStage uint8

const (
	StageIdle UpdateStage = iota
	StageComputingReference
	StageForwardFixedPoint
	StageForwardWalk
	StageBackwardFixedPoint
	StageBackwardWalk
	StageApplied
	StageFailed
)

func (s UpdateStage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageComputingReference:
		return "computing_reference"
	case StageForwardFixedPoint:
		return "forward_fixed_point"
	case StageForwardWalk:
		return "forward_walk"
	case StageBackwardFixedPoint:
		return "backward_fixed_point"
	case StageBackwardWalk:
		return "backward_walk"
	case StageApplied:
		return "applied"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// Backward reports whether the stage belongs to the backward transform.
func (s UpdateStage) Backward() bool {
	return s == StageBackwardFixedPoint || s == StageBackwardWalk
}

// UpdateFailure records a ring left unchanged by the update.
type UpdateFailure struct {
	Ring  int
	Stage UpdateStage
	Err   error
}

// UpdateReport summarizes one doubly-discrete update.
type UpdateReport struct {
	Applied  int
	Skipped  int
	Failures []UpdateFailure
}

// refVelocity is the velocity induced at vertex 0 of the regular n-gon of
// perimeter l by all edges not touching that vertex.
func refVelocity(n int, l, circ, reg float64) float64 {
	edge := l / float64(n)
	rad := 0.5 * edge / math.Sin(math.Pi/float64(n))

	pos := make([]r3.Vec, n)
	for i := range pos {
		a := 2 * math.Pi * float64(i) / float64(n)
		pos[i] = r3.Vec{X: rad * math.Cos(a), Y: rad * math.Sin(a)}
	}

	k := &Kernel{Strength: 1 / (4 * math.Pi), Cutoff2: refCutoff * refCutoff, A2: reg * reg}
	var sum r3.Vec
	for i := 1; i < n-1; i++ {
		sum = r3.Add(sum, k.SegmentVelocity(pos[i], pos[i+1], circ, pos[0]))
	}
	return r3.Norm(sum)
}

// monodromy carries lT once around the closed curve gamma.
func monodromy(gamma []r3.Vec, lT r3.Vec, r float64) r3.Vec {
	n := len(gamma)
	for i := 0; i < n; i++ {
		lT = geom.DarbouxStep(r3.Sub(gamma[(i+1)%n], gamma[i]), lT, r)
	}
	return lT
}

// fixedPoint searches the monodromy fixed point of length l by power
// iteration starting from (0,0,l).
func (s *System) fixedPoint(gamma []r3.Vec, l, r float64) (r3.Vec, error) {
	lT := r3.Vec{Z: l}
	for i := 0; i < s.powerIter; i++ {
		last := lT
		lT = monodromy(gamma, lT, r)
		if r3.Norm(r3.Sub(lT, last)) < s.powerTol {
			return lT, nil
		}
	}
	return lT, fmt.Errorf("%w after %d iterations", ErrNoConvergence, s.powerIter)
}

// walk writes the Darboux transform of from into to, starting from the
// fixed point lT.
func walk(from, to []r3.Vec, lT r3.Vec, r float64) {
	n := len(from)
	for i := 0; i < n; i++ {
		to[i] = r3.Add(from[i], lT)
		lT = geom.DarbouxStep(r3.Sub(from[(i+1)%n], from[i]), lT, r)
	}
}

// DoublyDiscreteUpdate advances every active ring by a forward and a backward
// Darboux transform tuned so the ring travels at its thin-core speed. Rings
// whose transform fails are skipped and left unchanged.
func (s *System) DoublyDiscreteUpdate(reg, dt float64) UpdateReport {
	var rep UpdateReport
	for rc := 0; rc < s.SegLen(); rc++ {
		if !s.IsSegActive(rc) {
			continue
		}
		stage, err := s.updateRing(rc, reg, dt)
		if err != nil {
			rep.Skipped++
			rep.Failures = append(rep.Failures, UpdateFailure{Ring: rc, Stage: stage, Err: err})
			s.log.Warn("darboux correction failed, skipped",
				"system", s.Name(),
				"ring", rc,
				"stage", stage.String(),
				"error", err,
			)
			continue
		}
		rep.Applied++
	}
	return rep
}

// updateRing returns the stage reached: StageApplied, or the stage that
// failed.
func (s *System) updateRing(rc int, reg, dt float64) (UpdateStage, error) {
	ring := s.Seg(rc)
	n := ring.Size()

	stage := StageComputingReference
	if n < 3 {
		return stage, fmt.Errorf("%w: %d vertices", ErrDegenerateRing, n)
	}
	gamma := make([]r3.Vec, n)
	length := 0.0
	for i := 0; i < n; i++ {
		gamma[i] = s.Pos(ring.Indices[i])
		length += r3.Norm(r3.Sub(s.Pos(ring.Idx0(i)), s.Pos(ring.Idx1(i))))
	}

	circ := ring.Circulation
	u := 0.5 * circ / length * (math.Log(4*length/(math.Pi*reg)) - 1)
	ur := refVelocity(n, length, circ, reg)
	d := 0.5 * dt * (u - ur)
	l := math.Sqrt(math.Pow(length/float64(n), 2) + d*d)
	ra := d / math.Tan(math.Pi/float64(n))
	if !finite(l) || !finite(ra) {
		return stage, fmt.Errorf("%w: length %g, %d vertices", ErrDegenerateRing, length, n)
	}

	eta := make([]r3.Vec, n)
	stage = StageForwardFixedPoint
	lT, err := s.fixedPoint(gamma, l, ra)
	if err != nil {
		return stage, err
	}
	stage = StageForwardWalk
	walk(gamma, eta, lT, ra)

	stage = StageBackwardFixedPoint
	lT, err = s.fixedPoint(eta, l, -ra)
	if err != nil {
		return stage, err
	}
	stage = StageBackwardWalk
	walk(eta, gamma, lT, -ra)

	for i, idx := range ring.Indices {
		s.SetPos(idx, gamma[i])
	}
	return StageApplied, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
