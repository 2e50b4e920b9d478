package particles

import (
	"errors"
	"fmt"
)

// ErrDanglingIndex reports an active segment referring to a missing or
// deleted record.
var ErrDanglingIndex = errors.New("segment references dead particle")

// Segment is the capability set of a connectivity record. It is satisfied by
// the pointer type of the segment.
type Segment[S any] interface {
	*S
	Flag() Flag
	SetFlag(f Flag)
	// Refs returns the particle indices held by the segment.
	Refs() []int
	// Renumber rewrites every held index through r.
	Renumber(r Renumbering)
	// Clone returns a deep copy.
	Clone() S
}

// ConnectedStore is a Store whose segments hold indices into it. Segment
// indices are remapped, and deleted segments dropped, by every compaction of
// the underlying store, including the automatic one triggered by Kill.
type ConnectedStore[T any, PT Record[T], S any, PS Segment[S]] struct {
	*Store[T, PT]
	segments []S
}

// NewConnectedStore creates an empty connected store.
func NewConnectedStore[T any, PT Record[T], S any, PS Segment[S]](name string, kind Kind) *ConnectedStore[T, PT, S, PS] {
	c := &ConnectedStore[T, PT, S, PS]{
		Store: NewStore[T, PT](name, kind),
	}
	c.OnCompress(c.renumberSegments)
	return c
}

// renumberSegments drops deleted segments, keeping order, and remaps the
// indices of the rest.
func (c *ConnectedStore[T, PT, S, PS]) renumberSegments(r Renumbering) {
	kept := c.segments[:0]
	for i := range c.segments {
		seg := PS(&c.segments[i])
		if seg.Flag()&FlagDeleted != 0 {
			continue
		}
		seg.Renumber(r)
		kept = append(kept, c.segments[i])
	}
	var zero S
	for i := len(kept); i < len(c.segments); i++ {
		c.segments[i] = zero
	}
	c.segments = kept
}

// AddSegment appends seg and returns its index. Segment indices are stable
// until the next compaction.
func (c *ConnectedStore[T, PT, S, PS]) AddSegment(seg S) int {
	c.segments = append(c.segments, seg)
	return len(c.segments) - 1
}

// Seg returns a pointer to segment i.
func (c *ConnectedStore[T, PT, S, PS]) Seg(i int) *S { return &c.segments[i] }

// SegLen returns the number of segments, deleted ones included.
func (c *ConnectedStore[T, PT, S, PS]) SegLen() int { return len(c.segments) }

// IsSegActive reports whether segment i is not flagged deleted.
func (c *ConnectedStore[T, PT, S, PS]) IsSegActive(i int) bool {
	return PS(&c.segments[i]).Flag()&FlagDeleted == 0
}

// ActiveSegments counts segments not flagged deleted.
func (c *ConnectedStore[T, PT, S, PS]) ActiveSegments() int {
	n := 0
	for i := range c.segments {
		if c.IsSegActive(i) {
			n++
		}
	}
	return n
}

// KillSegment flags segment i deleted. With withParticles every record the
// segment references is flagged as well, followed by one compaction check.
func (c *ConnectedStore[T, PT, S, PS]) KillSegment(i int, withParticles bool) {
	seg := PS(&c.segments[i])
	if seg.Flag()&FlagDeleted != 0 {
		return
	}
	seg.SetFlag(seg.Flag() | FlagDeleted)
	if !withParticles {
		return
	}
	for _, idx := range seg.Refs() {
		c.markDeleted(idx)
	}
	c.maybeCompress()
}

// ClearAll removes every record and segment.
func (c *ConnectedStore[T, PT, S, PS]) ClearAll() {
	c.Store.Clear()
	clear(c.segments)
	c.segments = c.segments[:0]
}

// Validate checks that every index of every active segment refers to a live
// record.
func (c *ConnectedStore[T, PT, S, PS]) Validate() error {
	n := c.Len()
	for i := range c.segments {
		seg := PS(&c.segments[i])
		if seg.Flag()&FlagDeleted != 0 {
			continue
		}
		for k, idx := range seg.Refs() {
			if idx < 0 || idx >= n {
				return fmt.Errorf("segment %d slot %d: index %d outside [0,%d): %w", i, k, idx, n, ErrDanglingIndex)
			}
			if !c.IsActive(idx) {
				return fmt.Errorf("segment %d slot %d: particle %d is deleted: %w", i, k, idx, ErrDanglingIndex)
			}
		}
	}
	return nil
}

// Clone compacts the store and returns an independent deep copy.
func (c *ConnectedStore[T, PT, S, PS]) Clone() *ConnectedStore[T, PT, S, PS] {
	st := c.Store.Clone()
	nc := &ConnectedStore[T, PT, S, PS]{
		Store:    st,
		segments: make([]S, len(c.segments)),
	}
	for i := range c.segments {
		nc.segments[i] = PS(&c.segments[i]).Clone()
	}
	nc.OnCompress(nc.renumberSegments)
	return nc
}

// Describe returns a one-line summary of the system.
func (c *ConnectedStore[T, PT, S, PS]) Describe() string {
	return fmt.Sprintf("ConnectedParticleSystem '%s' [%d parts, %d segments]", c.Name(), c.Len(), len(c.segments))
}
