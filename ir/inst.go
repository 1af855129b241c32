package ir

// Inst is one SSA microinstruction. Insts are owned by exactly one Block
// via an intrusive doubly-linked list; Values elsewhere only ever hold
// non-owning references to an Inst.
type Inst struct {
	opcode   Opcode
	args     [3]Value
	useCount int

	// Pseudo-op back-pointers: at most one consumer of each kind.
	carryInst    *Inst
	overflowInst *Inst
	geInst       *Inst
	nzcvInst     *Inst

	prev, next *Inst // intrusive list linkage, owned by Block
	block      *Block
}

// NewInst constructs a detached Inst with the given opcode and arguments.
// It does not attach to a Block; use Block.Append for that, which also
// wires up use-count and pseudo-op bookkeeping.
func NewInst(opcode Opcode, args ...Value) *Inst {
	arity := opcode.Arity()
	if len(args) != arity {
		panic("ir: wrong argument count for opcode " + opcode.Name())
	}
	inst := &Inst{opcode: opcode}
	for i, a := range args {
		if !a.IsEmpty() && !AreTypesCompatible(a.GetType(), opcode.ArgType(i)) {
			panic("ir: argument type mismatch for opcode " + opcode.Name())
		}
		// SetArg on a freshly zero-valued slot: the old value is always
		// Empty (Inst() == nil), so the "decrement old producer" half is a
		// safe no-op and this is the single path that wires use-counts and
		// pseudo-op back-pointers, keeping construction and later mutation
		// consistent (spec.md §4.1: "atomically from the block's point of
		// view").
		inst.SetArg(i, a)
	}
	return inst
}

// Opcode returns the instruction's opcode.
func (i *Inst) Opcode() Opcode { return i.opcode }

// ReturnType returns the instruction's effective return type: Identity
// forwards its sole argument's type, per spec.md §4.1.
func (i *Inst) ReturnType() Type {
	if i.opcode == OpIdentity {
		return i.args[0].GetType()
	}
	return i.opcode.ReturnType()
}

// UseCount returns the number of other Insts currently referencing i via an
// argument slot.
func (i *Inst) UseCount() int { return i.useCount }

// HasUses reports whether anything still references i: another Inst's
// argument slot, or a pseudo-op back-pointer.
func (i *Inst) HasUses() bool {
	return i.useCount > 0 || i.carryInst != nil || i.overflowInst != nil ||
		i.geInst != nil || i.nzcvInst != nil
}

// Arg returns argument slot n.
func (i *Inst) Arg(n int) Value { return i.args[n] }

// Args returns all declared argument slots for i's opcode.
func (i *Inst) Args() []Value {
	return i.args[:i.opcode.Arity()]
}

// CarryInst, OverflowInst, GEInst, NZCVInst return the pseudo-op consumer
// of the corresponding kind, or nil if none exists.
func (i *Inst) CarryInst() *Inst    { return i.carryInst }
func (i *Inst) OverflowInst() *Inst { return i.overflowInst }
func (i *Inst) GEInst() *Inst       { return i.geInst }
func (i *Inst) NZCVInst() *Inst     { return i.nzcvInst }

// SetArg replaces argument slot n with v, atomically (from the block's
// point of view) updating the use count of the old and new producer.
func (i *Inst) SetArg(n int, v Value) {
	old := i.args[n]
	if p := old.Inst(); p != nil {
		p.useCount--
	}
	i.args[n] = v
	if p := v.Inst(); p != nil {
		p.useCount++
		installPseudoOp(i, p)
	}
}

// installPseudoOp records i as the pseudo-op consumer of producer, if i's
// opcode is one of the four pseudo-op kinds. Panics if producer already has
// a consumer of that kind (at most one per kind, spec.md §4.1) or, for
// GetNZCVFromOp, if producer's opcode is not on the whitelist.
func installPseudoOp(i, producer *Inst) {
	switch i.opcode {
	case OpGetCarryFromOp:
		if producer.carryInst != nil {
			panic("ir: producer already has a GetCarryFromOp consumer")
		}
		producer.carryInst = i
	case OpGetOverflowFromOp:
		if producer.overflowInst != nil {
			panic("ir: producer already has a GetOverflowFromOp consumer")
		}
		producer.overflowInst = i
	case OpGetGEFromOp:
		if producer.geInst != nil {
			panic("ir: producer already has a GetGEFromOp consumer")
		}
		producer.geInst = i
	case OpGetNZCVFromOp:
		if !producer.opcode.InNZCVWhitelist() {
			panic("ir: GetNZCVFromOp on non-whitelisted producer " + producer.opcode.Name())
		}
		if producer.nzcvInst != nil {
			panic("ir: producer already has a GetNZCVFromOp consumer")
		}
		producer.nzcvInst = i
	}
}

// clearPseudoOpBackref removes consumer's back-pointer from whichever of
// its producer's pseudo-op slots it occupies. Used by Invalidate.
func clearPseudoOpBackref(consumer *Inst) {
	if consumer.opcode.Arity() == 0 {
		return
	}
	producer := consumer.args[0].Inst()
	if producer == nil {
		return
	}
	switch consumer.opcode {
	case OpGetCarryFromOp:
		if producer.carryInst == consumer {
			producer.carryInst = nil
		}
	case OpGetOverflowFromOp:
		if producer.overflowInst == consumer {
			producer.overflowInst = nil
		}
	case OpGetGEFromOp:
		if producer.geInst == consumer {
			producer.geInst = nil
		}
	case OpGetNZCVFromOp:
		if producer.nzcvInst == consumer {
			producer.nzcvInst = nil
		}
	}
}

// Invalidate turns i into a Void instruction with no arguments, clearing
// any pseudo-op back-pointer it held on another Inst. Any back-pointers
// that other pseudo-ops hold on i itself are left to the caller: by SSA
// construction those consumers are dead too (spec.md §9 design notes).
func (i *Inst) Invalidate() {
	clearPseudoOpBackref(i)
	for n := 0; n < i.opcode.Arity(); n++ {
		if p := i.args[n].Inst(); p != nil {
			p.useCount--
		}
		i.args[n] = Value{}
	}
	i.opcode = OpVoid
	i.carryInst, i.overflowInst, i.geInst, i.nzcvInst = nil, nil, nil, nil
}

// ReplaceUsesWith is the sole canonical rewrite primitive: it turns i into
// Identity(v), so that every existing reference to i observes v (via
// transparent Identity traversal in Value.GetType / Value.Inst /
// Value.IsImmediate), and increments v's producer's use count by one to
// account for this new reference. Applying it twice is a no-op the second
// time since i is already Identity(v).
func (i *Inst) ReplaceUsesWith(v Value) {
	if i.opcode == OpIdentity && i.args[0] == v {
		return
	}
	for n := 0; n < i.opcode.Arity(); n++ {
		if p := i.args[n].Inst(); p != nil {
			p.useCount--
		}
		i.args[n] = Value{}
	}
	clearPseudoOpBackref(i)
	i.opcode = OpIdentity
	i.args[0] = v
	if p := v.Inst(); p != nil {
		p.useCount++
	}
}
