package particles

import (
	"fmt"

	"github.com/pthm-cable/filament/field"
	"github.com/pthm-cable/filament/integrator"
)

// Kind tags the variant of a particle system.
type Kind uint8

const (
	KindBase Kind = iota
	KindParticle
	KindVelPart
	KindVortex
	KindFilament
	KindFlip
	KindTracer
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindParticle:
		return "particle"
	case KindVelPart:
		return "velpart"
	case KindVortex:
		return "vortex"
	case KindFilament:
		return "filament"
	case KindFlip:
		return "flip"
	case KindTracer:
		return "tracer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// System is the operation set shared by every particle system variant.
// Callers select variant-specific behaviour by switching on Kind.
type System interface {
	Kind() Kind
	Len() int
	Compress() Renumbering
	Describe() string
	AdvectInGrid(f field.Sampler, dt float64, mode integrator.Mode) error
}
