package filament

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/filament/geom"
	"github.com/pthm-cable/filament/particles"
)

const (
	// maxRemeshPasses bounds the refinement passes per ring.
	maxRemeshPasses = 64
	// maxRemeshVertices stops refining a ring once it holds this many
	// vertices.
	maxRemeshVertices = 1 << 20
)

// Remesh splits every edge longer than maxLen at the Hermite midpoint of its
// Catmull-Rom neighbourhood, repeating per ring until no edge is too long.
// It returns the number of particles inserted. maxLen must be positive and
// finite.
func (s *System) Remesh(maxLen float64) (int, error) {
	if !(maxLen > 0) || math.IsInf(maxLen, 1) {
		return 0, fmt.Errorf("remesh max length %g: %w", maxLen, ErrInvalidLength)
	}
	for i := 0; i < s.SegLen(); i++ {
		if s.IsSegActive(i) && s.Seg(i).Size() < 4 {
			return 0, fmt.Errorf("remesh ring %d with %d vertices: %w", i, s.Seg(i).Size(), ErrRingTooShort)
		}
	}

	maxLen2 := maxLen * maxLen
	total := 0
	for i := 0; i < s.SegLen(); i++ {
		if !s.IsSegActive(i) {
			continue
		}
		ring := s.Seg(i)

		pass := 0
		for ; pass < maxRemeshPasses && ring.Size() < maxRemeshVertices; pass++ {
			n := ring.Size()
			after := make([]int, n) // particle inserted after position j, or -1
			inserted := 0
			for j := 0; j < n; j++ {
				after[j] = -1
				p0 := s.Pos(ring.Idx0(j))
				p1 := s.Pos(ring.Idx1(j))
				if r3.Norm2(r3.Sub(p1, p0)) <= maxLen2 {
					continue
				}
				pm1 := s.Pos(ring.Idx(j - 1))
				p2 := s.Pos(ring.Idx(j + 2))
				mp := geom.HermiteSpline(p0, p1, geom.CRTangent(pm1, p0, p1), geom.CRTangent(p0, p1, p2), 0.5)
				after[j] = s.Add(particles.NewBasic(mp))
				inserted++
			}
			if inserted == 0 {
				break
			}

			idx := make([]int, 0, n+inserted)
			for j, old := range ring.Indices {
				idx = append(idx, old)
				if after[j] >= 0 {
					idx = append(idx, after[j])
				}
			}
			ring.Indices = idx
			total += inserted
		}
		if pass == maxRemeshPasses || ring.Size() >= maxRemeshVertices {
			s.log.Warn("remesh limit reached",
				"system", s.Name(),
				"ring", i,
				"passes", pass,
				"vertices", ring.Size(),
				"max_length", maxLen,
			)
		}
	}
	return total, nil
}
