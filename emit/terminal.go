package emit

import (
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/dynarmic-go/dynarmic/blockcache"
	"github.com/dynarmic-go/dynarmic/ir"
	"github.com/dynarmic-go/dynarmic/jitstate"
	"github.com/dynarmic-go/dynarmic/locdesc"
)

// emitEntryCondition emits the block's entry-condition prelude: if cond is
// not "always", test guest NZCV and, on failure, subtract failCycles and
// fall through to the condition-failed location via a LinkBlock (spec.md
// §4.4 "Entry condition prelude").
func (e *Emitter) emitEntryCondition(cond ir.CondFallback, failCycles int) {
	if cond.Cond == ir.CondAL {
		return
	}
	e.emitRestoreNZCV()
	pass := e.emitCondJump(cond.Cond)

	e.emitCycleSubtraction(failCycles)
	e.emitLinkBlock(cond.Fallback, blockcache.PatchJg)

	label := e.prog()
	label.As = obj.ANOP
	e.add(label)
	pass.To.SetTarget(label)
}

// emitCycleSubtraction subtracts n from cycles_remaining (spec.md §4.4
// "Cycle accounting": "Blocks never add to it").
func (e *Emitter) emitCycleSubtraction(n int) {
	if n == 0 {
		return
	}
	p := e.prog()
	p.As = x86.ASUBQ
	p.From = constAddr(int64(n))
	p.To = stateMemAddr(jitstate.FieldOffset("CyclesRemaining"))
	e.add(p)
}

// emitTerminal lowers every Terminal variant (spec.md §3 table, §4.4
// "Terminal emission").
func (e *Emitter) emitTerminal(t ir.Terminal) {
	switch term := t.(type) {
	case ir.Invalid:
		panic("emit: Invalid terminal reached codegen")
	case ir.Interpret:
		e.emitInterpret(term)
	case ir.ReturnToDispatch:
		e.emitReturn()
	case ir.LinkBlock:
		e.emitCyclesCheckedLink(term.Next)
	case ir.LinkBlockFast:
		e.emitLinkBlock(term.Next, blockcache.PatchJmp)
	case ir.PopRSBHint:
		e.emitPopRSBHintThunkJump()
	case ir.FastDispatchHint:
		e.emitFastDispatchThunkJump()
	case ir.If:
		e.emitIf(term)
	case ir.CheckBit:
		e.emitCheckBit(term)
	case ir.CheckHalt:
		e.emitCheckHalt(term)
	default:
		panic("emit: unknown terminal variant")
	}
}

// emitInterpret writes guest PC, restores host MXCSR convention, calls the
// interpreter fallback, and force-returns (spec.md §4.4).
func (e *Emitter) emitInterpret(t ir.Interpret) {
	storePC := e.prog()
	storePC.As = x86.AMOVL
	storePC.From = constAddr(int64(t.Next.PC()))
	storePC.To = stateMemAddr(jitstate.FieldOffset("Regs") + 15*4) // R15: guest PC (A32 convention)
	e.add(storePC)

	restoreMXCSR := e.prog()
	restoreMXCSR.As = x86.ALDMXCSR
	restoreMXCSR.From = stateMemAddr(jitstate.FieldOffset("MXCSR"))
	e.add(restoreMXCSR)

	call := e.prog()
	call.As = obj.ACALL
	call.To = obj.Addr{Type: obj.TYPE_BRANCH}
	e.add(call)

	e.emitForceReturn()
}

func (e *Emitter) emitReturn() {
	p := e.prog()
	p.As = obj.ARET
	e.add(p)
}

func (e *Emitter) emitForceReturn() {
	// The force-return stub additionally clears CyclesRemaining so the
	// scheduler sees "no budget left" regardless of why this block bailed.
	clear := e.prog()
	clear.As = x86.AMOVQ
	clear.From = constAddr(0)
	clear.To = stateMemAddr(jitstate.FieldOffset("CyclesRemaining"))
	e.add(clear)
	e.emitReturn()
}

// emitCyclesCheckedLink is LinkBlock: compare cycles_remaining to 0 and
// emit a patchable signed-greater jump to next's entrypoint (falling
// through into storing PC, loading next's entrypoint into RCX via a
// patchable MovRcx site, and force-returning when the check fails), per
// spec.md §4.4. The RSB ring in JitState is not written here.
func (e *Emitter) emitCyclesCheckedLink(next locdesc.Descriptor) {
	cmp := e.prog()
	cmp.As = x86.ACMPQ
	cmp.From = stateMemAddr(jitstate.FieldOffset("CyclesRemaining"))
	cmp.To = constAddr(0)
	e.add(cmp)

	e.emitLinkBlock(next, blockcache.PatchJg)

	// Cold fall-through: store PC, load next's entrypoint into RCX,
	// force-return. Nothing is stored into the RSB ring.
	storePC := e.prog()
	storePC.As = x86.AMOVL
	storePC.From = constAddr(int64(next.PC()))
	storePC.To = stateMemAddr(jitstate.FieldOffset("Regs") + 15*4) // R15: guest PC (A32 convention)
	e.add(storePC)

	movRcx := e.prog()
	movRcx.As = x86.AMOVQ
	movRcx.From = constAddr(0) // patched once the RSB entrypoint is known
	movRcx.To = regAddr(x86.REG_CX)
	e.add(movRcx)
	e.patches = append(e.patches, PatchSite{Kind: blockcache.PatchMovRcx, Target: uint64(next), prog: movRcx})

	e.emitForceReturn()
}

// emitLinkBlock emits a single patchable jump (jg for LinkBlock's cycle
// check, jmp for LinkBlockFast) targeting next, recording a patch site
// since the target's entrypoint is not necessarily known yet.
func (e *Emitter) emitLinkBlock(next locdesc.Descriptor, kind blockcache.PatchKind) {
	p := e.prog()
	if kind == blockcache.PatchJg {
		p.As = x86.AJGT
	} else {
		p.As = obj.AJMP
	}
	p.To = obj.Addr{Type: obj.TYPE_BRANCH}
	e.add(p)
	e.patches = append(e.patches, PatchSite{Kind: kind, Target: uint64(next), prog: p})
}

func (e *Emitter) emitPopRSBHintThunkJump() {
	p := e.prog()
	p.As = obj.AJMP
	p.To = obj.Addr{Type: obj.TYPE_BRANCH}
	e.add(p)
	// The jump is emitted with no resolved target and no patch site is
	// recorded for it; no RSB-lookup thunk is built into the prelude, so
	// nothing later fills in the target (spec.md §4.5).
}

func (e *Emitter) emitFastDispatchThunkJump() {
	p := e.prog()
	p.As = obj.AJMP
	p.To = obj.Addr{Type: obj.TYPE_BRANCH}
	e.add(p)
}

func (e *Emitter) emitIf(t ir.If) {
	if t.Cond == ir.CondAL {
		e.emitTerminal(t.Then)
		return
	}
	e.emitRestoreNZCV()
	pass := e.emitCondJump(t.Cond)
	e.emitTerminal(t.Else)

	label := e.prog()
	label.As = obj.ANOP
	e.add(label)
	pass.To.SetTarget(label)
	e.emitTerminal(t.Then)
}

// emitCheckBit reads CheckBit off JitState and branches (spec.md §4.4).
func (e *Emitter) emitCheckBit(t ir.CheckBit) {
	test := e.prog()
	test.As = x86.ATESTB
	test.From = constAddr(0xFF)
	test.To = stateMemAddr(jitstate.FieldOffset("CheckBit"))
	e.add(test)

	jmp := e.emitCondJump(ir.CondNE)
	e.emitTerminal(t.Else)

	label := e.prog()
	label.As = obj.ANOP
	e.add(label)
	jmp.To.SetTarget(label)
	e.emitTerminal(t.Then)
}

// emitCheckHalt tests halt_requested and, if set, jumps to the force-return
// thunk; else recurses into the Else sub-terminal (spec.md §4.4).
func (e *Emitter) emitCheckHalt(t ir.CheckHalt) {
	test := e.prog()
	test.As = x86.ATESTB
	test.From = constAddr(0xFF)
	test.To = stateMemAddr(jitstate.FieldOffset("HaltRequested"))
	e.add(test)

	jmp := e.emitCondJump(ir.CondEQ) // zero => not halted, fall through to Else
	e.emitForceReturn()

	label := e.prog()
	label.As = obj.ANOP
	e.add(label)
	jmp.To.SetTarget(label)
	e.emitTerminal(t.Else)
}
