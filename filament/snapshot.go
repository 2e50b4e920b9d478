package filament

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/filament/particles"
	"github.com/pthm-cable/filament/snapshot"
)

// ErrWrongKind is returned when a snapshot does not hold a filament system.
var ErrWrongKind = errors.New("snapshot is not a filament system")

// Snapshot compacts the system and captures it as a frame.
func (s *System) Snapshot(tick uint64) *snapshot.Frame {
	s.Compress()
	f := &snapshot.Frame{
		Name:      s.Name(),
		Kind:      uint8(s.Kind()),
		Tick:      tick,
		Particles: make([]snapshot.Particle, s.Len()),
		Segments:  make([]snapshot.Segment, s.SegLen()),
	}
	for i := range f.Particles {
		p := s.At(i)
		f.Particles[i] = snapshot.Particle{X: p.Pos.X, Y: p.Pos.Y, Z: p.Pos.Z, Flags: uint32(p.Flags)}
	}
	for i := range f.Segments {
		ring := s.Seg(i)
		seg := snapshot.Segment{
			Circulation: ring.Circulation,
			Flags:       uint32(ring.Flags),
			Indices:     make([]uint32, len(ring.Indices)),
		}
		for k, idx := range ring.Indices {
			seg.Indices[k] = uint32(idx)
		}
		f.Segments[i] = seg
	}
	return f
}

// FromSnapshot rebuilds a filament system from f.
func FromSnapshot(f *snapshot.Frame, opts ...Option) (*System, error) {
	if particles.Kind(f.Kind) != particles.KindFilament {
		return nil, fmt.Errorf("%w: kind %s", ErrWrongKind, particles.Kind(f.Kind))
	}
	s := NewSystem(f.Name, opts...)
	for _, p := range f.Particles {
		s.Add(particles.Basic{Pos: r3.Vec{X: p.X, Y: p.Y, Z: p.Z}, Flags: particles.Flag(p.Flags)})
	}
	for _, seg := range f.Segments {
		ring := Ring{
			Circulation: seg.Circulation,
			Flags:       particles.Flag(seg.Flags),
			Indices:     make([]int, len(seg.Indices)),
		}
		for k, idx := range seg.Indices {
			ring.Indices[k] = int(idx)
		}
		s.AddSegment(ring)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", f.Name, err)
	}
	return s, nil
}
