package ir

// foldFn holds the two-operand arithmetic/logical opcodes FoldConstants knows how to
// evaluate directly. Shifts are excluded: their host lowering cares about
// operand width nuances the representative opcode set does not fully model.
var foldFn = map[Opcode]func(a, b uint64) uint64{
	OpAdd32: func(a, b uint64) uint64 { return uint64(uint32(a) + uint32(b)) },
	OpAdd64: func(a, b uint64) uint64 { return a + b },
	OpSub32: func(a, b uint64) uint64 { return uint64(uint32(a) - uint32(b)) },
	OpSub64: func(a, b uint64) uint64 { return a - b },
	OpAnd32: func(a, b uint64) uint64 { return uint64(uint32(a) & uint32(b)) },
	OpAnd64: func(a, b uint64) uint64 { return a & b },
	OpOr32:  func(a, b uint64) uint64 { return uint64(uint32(a) | uint32(b)) },
	OpOr64:  func(a, b uint64) uint64 { return a | b },
	OpEor32: func(a, b uint64) uint64 { return uint64(uint32(a) ^ uint32(b)) },
	OpEor64: func(a, b uint64) uint64 { return a ^ b },
}

var foldFn1 = map[Opcode]func(a uint64) uint64{
	OpNot32: func(a uint64) uint64 { return uint64(^uint32(a)) },
	OpNot64: func(a uint64) uint64 { return ^a },
}

// FoldConstants replaces any Inst whose operands are all immediates with an
// Identity of the computed result (spec.md §2: "constant folding"). An Inst
// that still has a pseudo-op consumer (carry/overflow/GE/NZCV) is left
// alone: folding it away would also have to synthesize those flag results,
// which this representative opcode set does not attempt (MiscIROpt would
// be the home for that, mirroring the "every cross-block optimization is
// guarded by a flag, ship with it off first" guidance in spec.md §9).
func FoldConstants(b *Block) {
	for _, inst := range b.Insts() {
		if inst.CarryInst() != nil || inst.OverflowInst() != nil ||
			inst.GEInst() != nil || inst.NZCVInst() != nil {
			continue
		}
		op := inst.Opcode()
		if fn, ok := foldFn[op]; ok {
			a, b2 := inst.Arg(0), inst.Arg(1)
			if a.IsImmediate() && b2.IsImmediate() {
				result := fn(a.U64(), b2.U64())
				inst.ReplaceUsesWith(immOfType(op.ReturnType(), result))
			}
		} else if fn1, ok := foldFn1[op]; ok {
			a := inst.Arg(0)
			if a.IsImmediate() {
				result := fn1(a.U64())
				inst.ReplaceUsesWith(immOfType(op.ReturnType(), result))
			}
		}
	}
}

func immOfType(t Type, v uint64) Value {
	switch t {
	case TypeU32:
		return ImmU32(uint32(v))
	case TypeU64:
		return ImmU64(v)
	default:
		return ImmU64(v)
	}
}

// RemoveIdentities rewrites every argument slot that points (directly or
// transitively) at an Identity Inst to point at the fully-resolved Value,
// then removes any Identity Inst left with no remaining uses. This keeps
// later passes (and the emitter) from ever having to special-case Identity.
func RemoveIdentities(b *Block) {
	for _, inst := range b.Insts() {
		for n := 0; n < inst.Opcode().Arity(); n++ {
			arg := inst.Arg(n)
			if p := arg.inst; !arg.isImmediate && p != nil && p.Opcode() == OpIdentity {
				resolved := arg.resolvedValue()
				inst.args[n] = resolved
				p.useCount--
				if r := resolved.Inst(); r != nil {
					r.useCount++
				}
			}
		}
	}
	for _, inst := range b.Insts() {
		if inst.Opcode() == OpIdentity && !inst.HasUses() {
			inst.Invalidate()
			b.Remove(inst)
		}
	}
}

// resolvedValue exposes Value.resolve to optimize.go without widening the
// public API.
func (v Value) resolvedValue() Value { return v.resolve() }

// EliminateDeadCode removes every Inst with no remaining uses and no side
// effects, in a single reverse-order pass: since a Block's argument
// references always point strictly backwards (SSA), killing an
// already-dead Inst and decrementing its own arguments' use counts always
// happens before those arguments are themselves examined. This mirrors the
// mark-and-sweep worklist shape of the teacher's eliminateDeadFunctions
// (std/compiler/dce.go), retargeted from call-graph reachability to
// per-block use-count reachability.
func EliminateDeadCode(b *Block) {
	insts := b.Insts()
	for idx := len(insts) - 1; idx >= 0; idx-- {
		inst := insts[idx]
		if inst.Opcode() == OpVoid {
			continue
		}
		if inst.HasUses() || inst.Opcode().MayHaveAnySideEffect() {
			continue
		}
		inst.Invalidate()
		b.Remove(inst)
	}
}
