// Package particles provides dense particle storage with lazy deletion and
// index-remapping compaction.
//
// A Store hands out plain integer indices. Kill only flags a record; the
// record is physically removed by Compress, which moves records and
// therefore invalidates indices. Anything holding indices must be
// registered with OnCompress so it is remapped inside the same call.
package particles

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/filament/field"
	"github.com/pthm-cable/filament/integrator"
)

// DefaultDeleteChunkDivisor sets the automatic compaction threshold to
// len/20 deletions.
const DefaultDeleteChunkDivisor = 20

// Renumbering maps pre-compaction indices to post-compaction indices.
// Removed records map to -1.
type Renumbering []int

// Lookup returns the new index of old and whether the record survived.
func (r Renumbering) Lookup(old int) (int, bool) {
	if old < 0 || old >= len(r) {
		return -1, false
	}
	n := r[old]
	return n, n >= 0
}

// Survivors counts the records that survived the compaction.
func (r Renumbering) Survivors() int {
	n := 0
	for _, v := range r {
		if v >= 0 {
			n++
		}
	}
	return n
}

// Store is a dense container of particle records.
type Store[T any, PT Record[T]] struct {
	name string
	kind Kind
	data []T

	deletes      int
	deleteChunk  int
	chunkDivisor int
	boundsMargin float64

	listeners []func(Renumbering)
}

var _ System = (*Store[Basic, *Basic])(nil)

// NewStore creates an empty store tagged with kind.
func NewStore[T any, PT Record[T]](name string, kind Kind) *Store[T, PT] {
	return &Store[T, PT]{
		name:         name,
		kind:         kind,
		data:         make([]T, 0, 64),
		chunkDivisor: DefaultDeleteChunkDivisor,
	}
}

// SetDeleteChunkDivisor sets the automatic compaction threshold to
// len/divisor pending deletions. A divisor <= 0 disables automatic
// compaction; Compress must then be called explicitly.
func (s *Store[T, PT]) SetDeleteChunkDivisor(divisor int) {
	s.chunkDivisor = divisor
	s.updateChunk()
}

// SetBoundsMargin sets the margin used when culling records that leave the
// field domain during AdvectInGrid.
func (s *Store[T, PT]) SetBoundsMargin(m float64) {
	s.boundsMargin = m
}

// OnCompress registers fn to receive the renumbering of every compaction.
// Listeners run before Compress returns, in registration order.
func (s *Store[T, PT]) OnCompress(fn func(Renumbering)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Store[T, PT]) updateChunk() {
	if s.chunkDivisor > 0 {
		s.deleteChunk = len(s.data) / s.chunkDivisor
	} else {
		s.deleteChunk = 0
	}
}

// Name returns the system name.
func (s *Store[T, PT]) Name() string { return s.name }

// Kind returns the variant tag the store was created with.
func (s *Store[T, PT]) Kind() Kind { return s.kind }

// Len returns the number of stored records, deleted ones included.
func (s *Store[T, PT]) Len() int { return len(s.data) }

// Live returns the number of records not flagged deleted.
func (s *Store[T, PT]) Live() int { return len(s.data) - s.deletes }

// Pending returns the number of deletions since the last compaction.
func (s *Store[T, PT]) Pending() int { return s.deletes }

// At returns a pointer to record i. The pointer is invalidated by Add and
// Compress.
func (s *Store[T, PT]) At(i int) *T { return &s.data[i] }

// Pos returns the position of record i.
func (s *Store[T, PT]) Pos(i int) r3.Vec { return PT(&s.data[i]).Position() }

// SetPos sets the position of record i.
func (s *Store[T, PT]) SetPos(i int, p r3.Vec) { PT(&s.data[i]).SetPosition(p) }

// Add appends rec and returns its index.
func (s *Store[T, PT]) Add(rec T) int {
	s.data = append(s.data, rec)
	if PT(&s.data[len(s.data)-1]).Flag()&FlagDeleted != 0 {
		s.deletes++
	}
	s.updateChunk()
	return len(s.data) - 1
}

// IsActive reports whether record i is not flagged deleted.
func (s *Store[T, PT]) IsActive(i int) bool {
	return PT(&s.data[i]).Flag()&FlagDeleted == 0
}

// Kill flags record i deleted. Once the pending deletions exceed the chunk
// threshold the store is compacted before Kill returns.
func (s *Store[T, PT]) Kill(i int) {
	if s.markDeleted(i) {
		s.maybeCompress()
	}
}

func (s *Store[T, PT]) markDeleted(i int) bool {
	p := PT(&s.data[i])
	if p.Flag()&FlagDeleted != 0 {
		return false
	}
	p.SetFlag(p.Flag() | FlagDeleted)
	s.deletes++
	return true
}

func (s *Store[T, PT]) maybeCompress() {
	if s.chunkDivisor > 0 && s.deletes > s.deleteChunk {
		s.Compress()
	}
}

// Clear removes every record without notifying listeners.
func (s *Store[T, PT]) Clear() {
	clear(s.data)
	s.data = s.data[:0]
	s.deletes = 0
	s.updateChunk()
}

// Compress removes deleted records. Scanning from the front, each deleted
// slot is refilled from the tail until it holds a live record, so surviving
// front records keep their relative order while records pulled from the tail
// do not. The returned renumbering has one entry per pre-compaction record.
func (s *Store[T, PT]) Compress() Renumbering {
	sz := len(s.data)

	// origin and the forward table share one buffer for the whole call
	buf := make([]int, 2*sz)
	origin, renumber := buf[:sz], Renumbering(buf[sz:])
	for i := range origin {
		origin[i] = i
		renumber[i] = -1
	}

	var zero T
	nextRead := sz
	for i := 0; i < nextRead; i++ {
		for i < nextRead && PT(&s.data[i]).Flag()&FlagDeleted != 0 {
			nextRead--
			s.data[i] = s.data[nextRead]
			origin[i] = origin[nextRead]
			s.data[nextRead] = zero
		}
	}
	for i := 0; i < nextRead; i++ {
		renumber[origin[i]] = i
	}

	s.data = s.data[:nextRead]
	if cap(s.data) > 256 && cap(s.data) > 4*nextRead {
		shrunk := make([]T, nextRead, 2*nextRead)
		copy(shrunk, s.data)
		s.data = shrunk
	}
	s.deletes = 0
	s.updateChunk()

	for _, fn := range s.listeners {
		fn(renumber)
	}
	return renumber
}

// Clone compacts the store and returns an independent copy without
// listeners.
func (s *Store[T, PT]) Clone() *Store[T, PT] {
	s.Compress()
	c := &Store[T, PT]{
		name:         s.name,
		kind:         s.kind,
		data:         make([]T, len(s.data), max(len(s.data), 64)),
		chunkDivisor: s.chunkDivisor,
		boundsMargin: s.boundsMargin,
	}
	copy(c.data, s.data)
	c.updateChunk()
	return c
}

// Describe returns a one-line summary of the system.
func (s *Store[T, PT]) Describe() string {
	return fmt.Sprintf("ParticleSystem '%s' [%d parts]", s.name, len(s.data))
}

// AdvectInGrid moves every active record through f and flags records that
// leave the domain or enter an obstacle. Positions are untouched when mode
// is invalid.
func (s *Store[T, PT]) AdvectInGrid(f field.Sampler, dt float64, mode integrator.Mode) error {
	return s.Advect(f, dt, mode, true)
}

// Advect moves every active record through f. When cull is set, records
// leaving the domain or entering an obstacle are flagged deleted and a
// single compaction check runs after the sweep.
func (s *Store[T, PT]) Advect(f field.Sampler, dt float64, mode integrator.Mode, cull bool) error {
	if !mode.Valid() {
		return fmt.Errorf("advect %s: %w: %d", s.name, integrator.ErrInvalidMode, int(mode))
	}
	disp := func(p r3.Vec) r3.Vec { return r3.Scale(dt, f.Velocity(p)) }

	culled := false
	for i := range s.data {
		rec := PT(&s.data[i])
		if rec.Flag()&FlagDeleted != 0 {
			continue
		}
		p, err := integrator.Step(rec.Position(), mode, disp)
		if err != nil {
			return err
		}
		rec.SetPosition(p)

		if cull && (!f.InBounds(p, s.boundsMargin) || f.IsObstacle(p)) {
			s.markDeleted(i)
			culled = true
		}
	}
	if culled {
		s.maybeCompress()
	}
	return nil
}
