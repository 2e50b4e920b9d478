package filament

import (
	"slices"

	"github.com/pthm-cable/filament/particles"
)

// Ring is a closed vortex filament: a cyclic list of particle indices with a
// circulation. Edge j joins Indices[j] and Indices[(j+1) mod N].
type Ring struct {
	Indices     []int
	Circulation float64
	Flags       particles.Flag
}

// NewRing creates a ring with the given circulation and no vertices.
func NewRing(circulation float64) Ring {
	return Ring{Circulation: circulation}
}

// Size returns the number of vertices (and edges).
func (r *Ring) Size() int { return len(r.Indices) }

// Idx returns the particle index at position j, wrapping any integer,
// negative ones included, modulo Size.
func (r *Ring) Idx(j int) int {
	n := len(r.Indices)
	k := j % n
	if k < 0 {
		k += n
	}
	return r.Indices[k]
}

// Idx0 returns the first particle index of edge j.
func (r *Ring) Idx0(j int) int { return r.Idx(j) }

// Idx1 returns the second particle index of edge j.
func (r *Ring) Idx1(j int) int { return r.Idx(j + 1) }

func (r *Ring) Flag() particles.Flag     { return r.Flags }
func (r *Ring) SetFlag(f particles.Flag) { r.Flags = f }
func (r *Ring) Refs() []int              { return r.Indices }

// Renumber rewrites every index through m.
func (r *Ring) Renumber(m particles.Renumbering) {
	for k, i := range r.Indices {
		r.Indices[k] = m[i]
	}
}

// Clone returns a deep copy.
func (r *Ring) Clone() Ring {
	return Ring{Indices: slices.Clone(r.Indices), Circulation: r.Circulation, Flags: r.Flags}
}
