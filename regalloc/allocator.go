package regalloc

import (
	"fmt"

	"github.com/dynarmic-go/dynarmic/ir"
)

// Allocator implements the per-block lifetime-driven allocation described
// in spec.md §4.3. Call NewAllocator once per block, then drive it through
// GetArgumentInfo / UseGpr / UseScratchGpr / DefineValue / EndOfAllocScope
// as the emitter walks the block's instructions in order.
type Allocator struct {
	order  []*ir.Inst
	posOf  map[*ir.Inst]int
	lastUse map[*ir.Inst]int

	curPos int

	gprOwner [GprCount]*ir.Inst
	xmmOwner [XmmCount]*ir.Inst
	locOf    map[*ir.Inst]HostLoc

	spillOwner []*ir.Inst // index = spill slot
}

// NewAllocator precomputes, from the ordered block, each Inst's last-use
// position (spec.md §4.3 "Lifetime").
func NewAllocator(b *ir.Block) *Allocator {
	order := b.Insts()
	a := &Allocator{
		order:   order,
		posOf:   make(map[*ir.Inst]int, len(order)),
		lastUse: make(map[*ir.Inst]int, len(order)),
		locOf:   make(map[*ir.Inst]HostLoc, len(order)),
	}
	for i, inst := range order {
		a.posOf[inst] = i
	}
	for i, inst := range order {
		for n := 0; n < inst.Opcode().Arity(); n++ {
			if p := inst.Arg(n).Inst(); p != nil {
				a.lastUse[p] = i
			}
		}
	}
	return a
}

// SpillSlotCount returns how many spill slots have been used so far, for
// sizing the per-block spill area on the host stack.
func (a *Allocator) SpillSlotCount() int { return len(a.spillOwner) }

// GetArgumentInfo returns the Argument view of each of inst's operands.
func (a *Allocator) GetArgumentInfo(inst *ir.Inst) []Argument {
	args := make([]Argument, inst.Opcode().Arity())
	for i := range args {
		v := inst.Arg(i)
		args[i] = Argument{value: v, producer: v.Inst()}
	}
	return args
}

// EndOfAllocScope is called by the emitter after fully emitting one IR
// instruction. It advances the allocator's notion of "now" and reclaims any
// HostLoc whose occupant's last use has passed.
func (a *Allocator) EndOfAllocScope(inst *ir.Inst) {
	a.curPos = a.posOf[inst]
	for i, owner := range a.gprOwner {
		if owner != nil && a.lastUse[owner] <= a.curPos {
			a.gprOwner[i] = nil
			delete(a.locOf, owner)
		}
	}
	for i, owner := range a.xmmOwner {
		if owner != nil && a.lastUse[owner] <= a.curPos {
			a.xmmOwner[i] = nil
			delete(a.locOf, owner)
		}
	}
	for i, owner := range a.spillOwner {
		if owner != nil && a.lastUse[owner] <= a.curPos {
			a.spillOwner[i] = nil
			delete(a.locOf, owner)
		}
	}
}

// DefineValue binds a newly-computed result to a HostLoc. inst must not
// already be bound.
func (a *Allocator) DefineValue(inst *ir.Inst, loc HostLoc) {
	if _, already := a.locOf[inst]; already {
		panic(fmt.Sprintf("regalloc: %v is already bound to a HostLoc", inst.Opcode()))
	}
	a.bind(inst, loc)
}

func (a *Allocator) bind(inst *ir.Inst, loc HostLoc) {
	switch loc.Kind {
	case KindGpr:
		a.gprOwner[loc.Index] = inst
	case KindXmm:
		a.xmmOwner[loc.Index] = inst
	case KindSpill:
		for len(a.spillOwner) <= loc.Index {
			a.spillOwner = append(a.spillOwner, nil)
		}
		a.spillOwner[loc.Index] = inst
	}
	a.locOf[inst] = loc
}

// UseGpr materializes arg into a GPR, reloading from its spill slot if
// necessary. The allocator may leave the register aliased to arg's
// producer afterwards.
func (a *Allocator) UseGpr(arg Argument) int {
	return a.use(arg, KindGpr, false).Index
}

// UseXmm is UseGpr's XMM counterpart.
func (a *Allocator) UseXmm(arg Argument) int {
	return a.use(arg, KindXmm, false).Index
}

// UseScratchGpr is UseGpr, but additionally guarantees the returned
// register is no longer considered bound to arg's producer afterwards, so
// the emitter may freely overwrite it.
func (a *Allocator) UseScratchGpr(arg Argument) int {
	return a.use(arg, KindGpr, true).Index
}

// UseScratchXmm is UseScratchGpr's XMM counterpart.
func (a *Allocator) UseScratchXmm(arg Argument) int {
	return a.use(arg, KindXmm, true).Index
}

func (a *Allocator) use(arg Argument, kind Kind, scratch bool) HostLoc {
	p := arg.producer
	if p == nil {
		panic("regalloc: Use* called on an immediate Argument")
	}
	if loc, ok := a.locOf[p]; ok {
		if loc.Kind == KindSpill {
			// Reload into a free register of the requested kind.
			dst := a.freeOrEvict(kind)
			a.reload(p, loc, dst)
			loc = dst
		}
		if scratch {
			a.unbind(p)
		}
		return loc
	}
	// Not yet materialized (shouldn't normally happen for a well-formed
	// block, since every non-immediate argument has a producing Inst
	// earlier in program order that must have been DefineValue'd already;
	// treat it as a fresh scratch allocation defensively).
	dst := a.freeOrEvict(kind)
	a.bind(p, dst)
	if scratch {
		a.unbind(p)
	}
	return dst
}

func (a *Allocator) unbind(inst *ir.Inst) {
	loc, ok := a.locOf[inst]
	if !ok {
		return
	}
	switch loc.Kind {
	case KindGpr:
		a.gprOwner[loc.Index] = nil
	case KindXmm:
		a.xmmOwner[loc.Index] = nil
	case KindSpill:
		a.spillOwner[loc.Index] = nil
	}
	delete(a.locOf, inst)
}

// ScratchGpr produces a fresh host GPR not currently bound to any live
// Inst. If pinned is given, that specific register is forced (evicting its
// occupant if necessary) — used when the host ISA dictates the operand
// (cl for variable shifts, rax/rdx for multiply), per spec.md §4.3.
func (a *Allocator) ScratchGpr(pinned ...int) int {
	if len(pinned) > 0 {
		return a.evictAndClaim(KindGpr, pinned[0]).Index
	}
	return a.freeOrEvict(KindGpr).Index
}

// ScratchXmm is ScratchGpr's XMM counterpart.
func (a *Allocator) ScratchXmm(pinned ...int) int {
	if len(pinned) > 0 {
		return a.evictAndClaim(KindXmm, pinned[0]).Index
	}
	return a.freeOrEvict(KindXmm).Index
}

func (a *Allocator) evictAndClaim(kind Kind, index int) HostLoc {
	loc := HostLoc{Kind: kind, Index: index}
	owner := a.ownerAt(loc)
	if owner != nil {
		a.spillInst(owner)
	}
	return loc
}

func (a *Allocator) ownerAt(loc HostLoc) *ir.Inst {
	switch loc.Kind {
	case KindGpr:
		return a.gprOwner[loc.Index]
	case KindXmm:
		return a.xmmOwner[loc.Index]
	}
	return nil
}

// freeOrEvict returns a free register of the given kind, spilling the
// occupant with the furthest-away last use (Belady-style) if none is free,
// with a deterministic lowest-index tie-break, per spec.md §4.3 "Spill
// policy".
func (a *Allocator) freeOrEvict(kind Kind) HostLoc {
	owners, n := a.ownersAndCount(kind)
	for i := 0; i < n; i++ {
		if owners[i] == nil {
			return HostLoc{Kind: kind, Index: i}
		}
	}
	victim := -1
	furthest := -1
	for i := 0; i < n; i++ {
		lu := a.lastUse[owners[i]]
		if lu > furthest {
			furthest = lu
			victim = i
		}
	}
	loc := HostLoc{Kind: kind, Index: victim}
	a.spillInst(owners[victim])
	return loc
}

func (a *Allocator) ownersAndCount(kind Kind) ([]*ir.Inst, int) {
	if kind == KindGpr {
		return a.gprOwner[:], GprCount
	}
	return a.xmmOwner[:], XmmCount
}

// spillInst moves inst from its current register into the first unused
// spill slot.
func (a *Allocator) spillInst(inst *ir.Inst) {
	slot := -1
	for i, owner := range a.spillOwner {
		if owner == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		slot = len(a.spillOwner)
		a.spillOwner = append(a.spillOwner, nil)
	}
	a.unbind(inst)
	a.bind(inst, Spill(slot))
}

// reload is a bookkeeping-only move of inst from its spill slot to dst; the
// emitter is responsible for issuing the actual load instruction using the
// slot and register indices it's given.
func (a *Allocator) reload(inst *ir.Inst, from HostLoc, dst HostLoc) {
	a.spillOwner[from.Index] = nil
	delete(a.locOf, inst)
	a.bind(inst, dst)
}

// LocOf returns the current HostLoc of inst, if bound.
func (a *Allocator) LocOf(inst *ir.Inst) (HostLoc, bool) {
	loc, ok := a.locOf[inst]
	return loc, ok
}

// AssertNoMoreUses panics unless every HostLoc is free, once EndOfAllocScope
// has been called for the block's final instruction. Since this allocator
// only models intra-block lifetimes, nothing legitimately survives past the
// last Inst (spec.md §4.3 invariant: "every HostLoc is either free or holds
// an Inst whose last use is beyond the block" — here "beyond the block"
// never holds, so the only valid state is free).
func (a *Allocator) AssertNoMoreUses() {
	check := func(owner *ir.Inst) {
		if owner != nil {
			panic(fmt.Sprintf("regalloc: %v still bound at end of block", owner.Opcode()))
		}
	}
	for _, o := range a.gprOwner {
		check(o)
	}
	for _, o := range a.xmmOwner {
		check(o)
	}
	for _, o := range a.spillOwner {
		check(o)
	}
}
