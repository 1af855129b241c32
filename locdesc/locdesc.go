// Package locdesc implements the location descriptor: the 64-bit cache key
// identifying a guest execution point.
package locdesc

import "fmt"

// Descriptor identifies a guest execution point: the low 32 bits carry the
// guest program counter, the high 32 bits carry mode state that changes
// decoding or floating-point behavior.
type Descriptor uint64

// Mode bits packed into the high 32 bits of a Descriptor.
const (
	FlagThumb      uint64 = 1 << 32 // A32 vs Thumb decode mode
	FlagBigEndian  uint64 = 1 << 33
	FlagSingleStep uint64 = 1 << 34

	// FPCRShift/FPCRMask carry the subset of FPCR/FPSCR control bits that
	// change floating-point semantics (RMode, FZ, DN, AHP packed as a 5-bit
	// field starting here).
	FPCRShift = 35
	FPCRMask  uint64 = 0x1F << FPCRShift
)

// New builds a Descriptor from a guest PC and a set of mode flags (any
// combination of the Flag* constants and a pre-shifted FPCR field).
func New(pc uint32, modeFlags uint64) Descriptor {
	return Descriptor(uint64(pc) | (modeFlags &^ 0xFFFFFFFF))
}

// PC returns the guest program counter.
func (d Descriptor) PC() uint32 {
	return uint32(d)
}

// Thumb reports whether the descriptor denotes Thumb-mode decoding.
func (d Descriptor) Thumb() bool {
	return uint64(d)&FlagThumb != 0
}

// BigEndian reports whether the descriptor denotes big-endian decoding.
func (d Descriptor) BigEndian() bool {
	return uint64(d)&FlagBigEndian != 0
}

// SingleStep reports whether the descriptor has the single-step flag set.
func (d Descriptor) SingleStep() bool {
	return uint64(d)&FlagSingleStep != 0
}

// FPCR returns the packed FP-control bits carried by the descriptor.
func (d Descriptor) FPCR() uint64 {
	return (uint64(d) & FPCRMask) >> FPCRShift
}

// WithSingleStep returns a Descriptor identical to d but with the
// single-step flag set — the sole derivation the rest of the core needs.
func (d Descriptor) WithSingleStep() Descriptor {
	return Descriptor(uint64(d) | FlagSingleStep)
}

// Equal reports whether two descriptors denote interchangeable execution
// points. Descriptor is a plain uint64, so this is just ==, but it is
// exposed as a method since that is the operation the rest of the core
// relies on rather than raw equality.
func (d Descriptor) Equal(other Descriptor) bool {
	return d == other
}

// Hash returns a deterministic hash suitable for map/fast-dispatch use. It
// is a plain FNV-1a mix over the raw bits — the pack shows nothing at this
// scale reaching for a hashing library, so this stays hand-rolled like the
// teacher's own small numeric helpers.
func (d Descriptor) Hash() uint64 {
	h := uint64(14695981039346656037)
	v := uint64(d)
	for i := 0; i < 8; i++ {
		h ^= v & 0xFF
		h *= 1099511628211
		v >>= 8
	}
	return h
}

// EndUpper returns the "upper" (mode-bits) portion of a descriptor that
// should be used as a dispatcher cache-coherency key when computing a
// block's end location. The single-step flag is always cleared here: see
// SPEC_FULL.md §9 for why this rewrite picks that interpretation instead of
// mirroring the source's ambiguous behavior.
func (d Descriptor) EndUpper() uint64 {
	return uint64(d) &^ (0xFFFFFFFF | FlagSingleStep)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("loc(pc=%#x,thumb=%t,be=%t,ss=%t,fpcr=%#x)",
		d.PC(), d.Thumb(), d.BigEndian(), d.SingleStep(), d.FPCR())
}
