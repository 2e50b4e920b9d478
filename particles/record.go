package particles

import "gonum.org/v1/gonum/spatial/r3"

// Record is the capability set a particle record must provide to live in a
// Store. It is satisfied by the pointer type of the record.
type Record[T any] interface {
	*T
	Position() r3.Vec
	SetPosition(p r3.Vec)
	Flag() Flag
	SetFlag(f Flag)
}

// Basic is the simplest particle record: a position and a flag.
type Basic struct {
	Pos   r3.Vec
	Flags Flag
}

// NewBasic returns a live record at p.
func NewBasic(p r3.Vec) Basic {
	return Basic{Pos: p}
}

func (b *Basic) Position() r3.Vec     { return b.Pos }
func (b *Basic) SetPosition(p r3.Vec) { b.Pos = p }
func (b *Basic) Flag() Flag           { return b.Flags }
func (b *Basic) SetFlag(f Flag)       { b.Flags = f }
