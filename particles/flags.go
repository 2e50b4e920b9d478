package particles

// Flag is a per-record status bitmask.
type Flag uint32

const (
	FlagNone Flag = 0
	// FlagDeleted marks a record for removal at the next compaction.
	FlagDeleted Flag = 1 << 10
	// FlagInvalid is reserved.
	FlagInvalid Flag = 1 << 30
)

// Has reports whether every bit of x is set in f.
func (f Flag) Has(x Flag) bool {
	return f&x == x
}
