package regalloc

import "github.com/dynarmic-go/dynarmic/ir"

// Argument is the allocator's view of one instruction operand: either a
// bare immediate the emitter can fold straight into the host encoding, or a
// reference to a producer Inst whose HostLoc the allocator will materialize
// on demand via UseGpr/UseXmm/UseScratch*.
type Argument struct {
	value    ir.Value
	producer *ir.Inst
}

// IsImmediate reports whether this argument is a bare immediate.
func (a Argument) IsImmediate() bool { return a.value.IsImmediate() }

// ImmValue returns the immediate's value. Only meaningful if IsImmediate.
func (a Argument) ImmValue() uint64 { return a.value.U64() }

// ImmWidthBits returns the bit width implied by the argument's IR type.
func (a Argument) ImmWidthBits() int { return bitWidth(a.value.GetType()) }

// Producer returns the Inst that computes this argument's value, or nil if
// the argument is an immediate.
func (a Argument) Producer() *ir.Inst { return a.producer }

// ArgumentOf builds an Argument view of a raw ir.Value directly, for
// emitter code paths (terminal/state-field lowering) that hold a Value
// rather than an owning Inst's operand slot.
func ArgumentOf(v ir.Value) Argument {
	return Argument{value: v, producer: v.Inst()}
}

func bitWidth(t ir.Type) int {
	switch t {
	case ir.TypeU1:
		return 1
	case ir.TypeU8:
		return 8
	case ir.TypeU16:
		return 16
	case ir.TypeU32:
		return 32
	case ir.TypeU64:
		return 64
	case ir.TypeU128:
		return 128
	default:
		return 0
	}
}
