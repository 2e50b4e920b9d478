package filament

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func regularPolygon(n int, rad float64) []r3.Vec {
	out := make([]r3.Vec, n)
	for i := range out {
		a := 2*math.Pi*float64(i)/float64(n) + 0.3
		out[i] = r3.Vec{X: rad * math.Cos(a), Y: rad * math.Sin(a), Z: 0.5}
	}
	return out
}

func TestDarbouxRoundTripWithoutShift(t *testing.T) {
	const n = 12
	gamma := regularPolygon(n, 1.3)
	edge := r3.Norm(r3.Sub(gamma[1], gamma[0]))
	s := quietSystem()

	eta := make([]r3.Vec, n)
	lT, err := s.fixedPoint(gamma, edge, 0)
	require.NoError(t, err)
	walk(gamma, eta, lT, 0)

	back := make([]r3.Vec, n)
	lT, err = s.fixedPoint(eta, edge, -0.0)
	require.NoError(t, err)
	walk(eta, back, lT, -0.0)

	// the transforms permute vertices, so compare as sets
	for i, p := range back {
		best := math.Inf(1)
		for _, q := range gamma {
			best = math.Min(best, r3.Norm(r3.Sub(p, q)))
		}
		assert.Less(t, best, 1e-4, "vertex %d", i)
	}
}

func TestRefVelocityApproachesThinCoreSpeed(t *testing.T) {
	// the reference polygon omits the two edges at the vertex, so it
	// stays below the smooth ring's self-induced speed
	const circ, reg = 1.0, 0.05
	length := 2 * math.Pi
	u := 0.5 * circ / length * (math.Log(4*length/(math.Pi*reg)) - 1)

	ur := refVelocity(64, length, circ, reg)
	assert.Greater(t, ur, 0.0)
	assert.Less(t, ur, u)
	assert.Equal(t, ur, refVelocity(64, length, circ, reg))
}

func TestDoublyDiscreteUpdateSkipsOnFailure(t *testing.T) {
	s := quietSystem(WithPowerMethod(1, 1e-4))
	_, err := s.AddRing(r3.Vec{}, 1, 1, zAxis, 8)
	require.NoError(t, err)
	before := s.Positions()

	rep := s.DoublyDiscreteUpdate(0.05, 0.1)

	assert.Equal(t, 0, rep.Applied)
	assert.Equal(t, 1, rep.Skipped)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, 0, rep.Failures[0].Ring)
	assert.Equal(t, StageForwardFixedPoint, rep.Failures[0].Stage)
	assert.False(t, rep.Failures[0].Stage.Backward())
	assert.ErrorIs(t, rep.Failures[0].Err, ErrNoConvergence)
	assert.Equal(t, before, s.Positions())
}

func TestDoublyDiscreteUpdateDegenerateRing(t *testing.T) {
	s := quietSystem()
	_, err := s.AddRing(r3.Vec{}, 1, 0, zAxis, 4)
	require.NoError(t, err)
	_, err = s.AddRing(r3.Vec{Z: 5}, 1, 1, zAxis, 16)
	require.NoError(t, err)
	s.KillSegment(1, false)

	rep := s.DoublyDiscreteUpdate(0.05, 0.1)

	assert.Equal(t, 1, rep.Skipped, "deleted rings are not visited")
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, StageComputingReference, rep.Failures[0].Stage)
	assert.ErrorIs(t, rep.Failures[0].Err, ErrDegenerateRing)
}

// ringShape returns the perimeter and the mean distance of the vertices
// from their centroid.
func ringShape(s *System, rc int) (length, radius float64) {
	ring := s.Seg(rc)
	var c r3.Vec
	for j, idx := range ring.Indices {
		c = r3.Add(c, s.Pos(idx))
		length += r3.Norm(r3.Sub(s.Pos(ring.Idx1(j)), s.Pos(ring.Idx0(j))))
	}
	c = r3.Scale(1/float64(ring.Size()), c)
	for _, idx := range ring.Indices {
		radius += r3.Norm(r3.Sub(s.Pos(idx), c))
	}
	return length, radius / float64(ring.Size())
}

func TestDoublyDiscreteUpdateAppliesEveryRing(t *testing.T) {
	s := quietSystem()
	for k := 0; k < 3; k++ {
		_, err := s.AddRing(r3.Vec{Z: 3 * float64(k)}, 1, 1, zAxis, 16)
		require.NoError(t, err)
	}
	before := s.Positions()
	length0, radius0 := ringShape(s, 0)

	rep := s.DoublyDiscreteUpdate(0.05, 0.01)
	require.Equal(t, 3, rep.Applied)
	assert.Equal(t, 0, rep.Skipped)
	assert.Empty(t, rep.Failures)

	for i := 0; i < s.Len(); i++ {
		p := s.Pos(i)
		assert.True(t, finite(p.X) && finite(p.Y) && finite(p.Z), "particle %d: %v", i, p)
	}
	assert.NotEqual(t, before, s.Positions())
	for rc := 0; rc < 3; rc++ {
		length, radius := ringShape(s, rc)
		assert.InEpsilon(t, length0, length, 1e-2, "ring %d perimeter", rc)
		assert.InEpsilon(t, radius0, radius, 1e-2, "ring %d radius", rc)
	}
}

func TestUpdateStageString(t *testing.T) {
	assert.Equal(t, "backward_fixed_point", StageBackwardFixedPoint.String())
	assert.True(t, StageBackwardWalk.Backward())
	assert.Equal(t, "stage(42)", UpdateStage(42).String())
}
