package particles

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

type loop struct {
	idx   []int
	flags Flag
}

func (l *loop) Flag() Flag        { return l.flags }
func (l *loop) SetFlag(f Flag)    { l.flags = f }
func (l *loop) Refs() []int       { return l.idx }
func (l *loop) Clone() loop       { return loop{idx: slices.Clone(l.idx), flags: l.flags} }
func (l *loop) Renumber(r Renumbering) {
	for k, i := range l.idx {
		l.idx[k] = r[i]
	}
}

type loopStore = ConnectedStore[Basic, *Basic, loop, *loop]

func newLoopStore() *loopStore {
	return NewConnectedStore[Basic, *Basic, loop, *loop]("loops", KindFilament)
}

// referenced positions by value, per segment
func segValues(c *loopStore) [][]float64 {
	var out [][]float64
	for i := 0; i < c.SegLen(); i++ {
		if !c.IsSegActive(i) {
			continue
		}
		var vals []float64
		for _, idx := range c.Seg(i).idx {
			vals = append(vals, c.Pos(idx).X)
		}
		out = append(out, vals)
	}
	return out
}

func TestConnectedRenumberFuzz(t *testing.T) {
	patterns := []string{"none", "unreferenced", "referenced", "random"}

	for _, pattern := range patterns {
		t.Run(pattern, func(t *testing.T) {
			rng := rand.New(rand.NewSource(11))
			for trial := 0; trial < 40; trial++ {
				c := newLoopStore()
				c.SetDeleteChunkDivisor(0)

				n := 10 + rng.Intn(60)
				for i := 0; i < n; i++ {
					c.Add(NewBasic(r3.Vec{X: float64(i)}))
				}

				// segments over disjoint random subsets
				perm := rng.Perm(n)
				used := make(map[int]int) // particle -> segment
				for s := 0; s < 4 && len(perm) >= 3; s++ {
					k := 3 + rng.Intn(min(6, len(perm)-2))
					if k > len(perm) {
						k = len(perm)
					}
					idx := slices.Clone(perm[:k])
					perm = perm[k:]
					seg := c.AddSegment(loop{idx: idx})
					for _, p := range idx {
						used[p] = seg
					}
				}

				switch pattern {
				case "unreferenced":
					for i := 0; i < n; i++ {
						if _, ok := used[i]; !ok {
							c.Kill(i)
						}
					}
				case "referenced":
					// kill whole segments together with their particles
					for s := 0; s < c.SegLen(); s += 2 {
						c.KillSegment(s, true)
					}
				case "random":
					for i := 0; i < n; i++ {
						if _, ok := used[i]; !ok && rng.Float64() < 0.5 {
							c.Kill(i)
						}
					}
				}

				before := segValues(c)
				c.Compress()
				after := segValues(c)

				require.NoError(t, c.Validate())
				require.Equal(t, before, after)
				require.Equal(t, c.ActiveSegments(), c.SegLen(), "deleted segments are dropped")
			}
		})
	}
}

func TestConnectedKillAll(t *testing.T) {
	c := newLoopStore()
	c.SetDeleteChunkDivisor(0)
	for i := 0; i < 6; i++ {
		c.Add(NewBasic(r3.Vec{X: float64(i)}))
	}
	c.AddSegment(loop{idx: []int{0, 1, 2}})
	c.AddSegment(loop{idx: []int{3, 4, 5}})

	c.KillSegment(0, true)
	c.KillSegment(1, true)
	r := c.Compress()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.SegLen())
	assert.Equal(t, 0, r.Survivors())
}

func TestConnectedAutoCompressRemaps(t *testing.T) {
	c := newLoopStore() // default divisor 20
	for i := 0; i < 40; i++ {
		c.Add(NewBasic(r3.Vec{X: float64(i)}))
	}
	c.AddSegment(loop{idx: []int{37, 38, 39, 0}})
	before := segValues(c)

	// chunk = 2, the third kill compacts inside Kill
	c.Kill(1)
	c.Kill(2)
	assert.Equal(t, 40, c.Len())
	c.Kill(3)
	assert.Equal(t, 37, c.Len())

	require.NoError(t, c.Validate())
	assert.Equal(t, before, segValues(c))
}

func TestConnectedValidateDetectsDangling(t *testing.T) {
	c := newLoopStore()
	c.SetDeleteChunkDivisor(0)
	for i := 0; i < 4; i++ {
		c.Add(NewBasic(r3.Vec{X: float64(i)}))
	}
	c.AddSegment(loop{idx: []int{0, 1, 2}})
	require.NoError(t, c.Validate())

	c.Kill(1)
	assert.ErrorIs(t, c.Validate(), ErrDanglingIndex)

	c.Seg(0).idx[1] = 9
	assert.ErrorIs(t, c.Validate(), ErrDanglingIndex)
}

func TestConnectedClone(t *testing.T) {
	c := newLoopStore()
	c.SetDeleteChunkDivisor(0)
	for i := 0; i < 5; i++ {
		c.Add(NewBasic(r3.Vec{X: float64(i)}))
	}
	c.AddSegment(loop{idx: []int{2, 3, 4}})
	c.Kill(0)

	cl := c.Clone()
	require.NoError(t, cl.Validate())
	assert.Equal(t, segValues(c), segValues(cl))

	cl.Seg(0).idx[0] = 0
	assert.NotEqual(t, 0, c.Seg(0).idx[0], "clone must not share index slices")

	// the clone remaps its own segments
	cl.Kill(3)
	cl.Compress()
	assert.Equal(t, 3, cl.Len())
	assert.Equal(t, 4, c.Len())
}
