package emit

import (
	"unsafe"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/dynarmic-go/dynarmic/ir"
	"github.com/dynarmic-go/dynarmic/jitstate"
	"github.com/dynarmic-go/dynarmic/regalloc"
)

// FastmemSite records where a fastmem load/store was emitted, mirroring
// PatchSite's deferred-resolution shape (spec.md §4.6 "Fastmem form"): the
// caller registers it with except.Handler once the assembled bytes have a
// final host address, since the Handler needs absolute addresses and this
// routine only has *obj.Prog positions within the current builder.
type FastmemSite struct {
	Width     int
	Write     bool
	Exclusive bool
	Recompile bool

	fault    *obj.Prog // the load/store instruction that can fault
	resume   *obj.Prog // instruction to resume at once the callback runs
	callback *obj.Prog // entry point of the inline callback fallback stub
}

// FaultOffset, ResumeOffset and CallbackOffset are this site's byte offsets
// within the assembled instruction stream Result.Bytes came from.
func (f FastmemSite) FaultOffset() int64    { return f.fault.Pc }
func (f FastmemSite) ResumeOffset() int64   { return f.resume.Pc }
func (f FastmemSite) CallbackOffset() int64 { return f.callback.Pc }

// emitMemoryRead lowers a ReadMemory{8,16,32,64}/ExclusiveReadMemory{...}
// IR op to one of the three forms spec.md §4.6 names, chosen once per site
// from the Jit's static Config (callback/page-table/fastmem never mix
// within a single access site).
func (e *Emitter) emitMemoryRead(inst *ir.Inst, width int, exclusive bool) {
	args := e.ra.GetArgumentInfo(inst)
	vaddr := args[0]

	switch {
	case e.config != nil && e.config.Fastmem != nil:
		e.emitFastmemRead(inst, vaddr, width, exclusive)
	case e.config != nil && e.config.PageTable != nil:
		e.emitPageTableRead(inst, vaddr, width, exclusive)
	default:
		e.emitCallbackRead(inst, vaddr, width, exclusive)
	}
}

func (e *Emitter) emitMemoryWrite(inst *ir.Inst, width int, exclusive bool) {
	args := e.ra.GetArgumentInfo(inst)
	vaddr, value := args[0], args[1]

	switch {
	case e.config != nil && e.config.Fastmem != nil:
		e.emitFastmemWrite(vaddr, value, width, exclusive)
	case e.config != nil && e.config.PageTable != nil:
		e.emitPageTableWrite(vaddr, value, width, exclusive)
	default:
		e.emitCallbackWrite(vaddr, value, width, exclusive)
	}
}

// emitCallbackRead marshals vaddr into the ABI argument register and calls
// the user-supplied MemoryRead{width} callback (spec.md §4.6 "Callback
// form").
func (e *Emitter) emitCallbackRead(inst *ir.Inst, vaddr regalloc.Argument, width int, exclusive bool) {
	e.ra.HostCall(inst, vaddr.Producer())
	e.emitCallStub(callbackSlot(width, false, exclusive))
}

func (e *Emitter) emitCallbackWrite(vaddr, value regalloc.Argument, width int, exclusive bool) {
	e.ra.HostCall(nil, vaddr.Producer(), value.Producer())
	e.emitCallStub(callbackSlot(width, true, exclusive))
}

// materializeGprIndex returns a GPR index holding arg's value, loading an
// immediate into a scratch register first if necessary. Unlike
// materializeGpr (which returns a register-or-immediate operand),
// SIB-addressed page-table/fastmem indexing needs an actual index register.
func (e *Emitter) materializeGprIndex(arg regalloc.Argument) int {
	if arg.IsImmediate() {
		idx := e.ra.ScratchGpr()
		mov := e.prog()
		mov.As = x86.AMOVQ
		mov.From = constAddr(int64(arg.ImmValue()))
		mov.To = regAddr(gprReg(idx))
		e.add(mov)
		return idx
	}
	return e.ra.UseGpr(arg)
}

// pageTableBaseAddr returns the constant host address of cfg's underlying
// page-pointer table. The table itself (cfg.Base) is supplied once by the
// embedder at Jit construction and never reallocated, so its address can be
// baked into emitted code as an immediate, the same way FastmemConfig.Base
// already is a bare uintptr constant.
func pageTableBaseAddr(cfg *jitstate.PageTableConfig) int64 {
	if len(cfg.Base) == 0 {
		return 0
	}
	return int64(uintptr(unsafe.Pointer(&cfg.Base[0])))
}

// emitPageTableRead computes page_table[vaddr>>page_bits] + (vaddr &
// page_mask) and issues a native load, falling back inline to the callback
// path when the page pointer is null (spec.md §4.6 "Page-table form").
func (e *Emitter) emitPageTableRead(inst *ir.Inst, vaddr regalloc.Argument, width int, exclusive bool) {
	cfg := e.config.PageTable
	vaddrIdx := e.materializeGprIndex(vaddr)

	pageIdx := e.ra.ScratchGpr()
	movPage := e.prog()
	movPage.As = x86.AMOVQ
	movPage.From = regAddr(gprReg(vaddrIdx))
	movPage.To = regAddr(gprReg(pageIdx))
	e.add(movPage)

	shr := e.prog()
	shr.As = x86.ASHRQ
	shr.From = constAddr(int64(cfg.PageBits))
	shr.To = regAddr(gprReg(pageIdx))
	e.add(shr)

	tableBaseIdx := e.ra.ScratchGpr()
	movTable := e.prog()
	movTable.As = x86.AMOVQ
	movTable.From = constAddr(pageTableBaseAddr(cfg))
	movTable.To = regAddr(gprReg(tableBaseIdx))
	e.add(movTable)

	// page_table_base[page_idx], with page_idx a register index (pointer
	// width, hence Scale 8).
	pagePtrIdx := e.ra.ScratchGpr()
	loadPagePtr := e.prog()
	loadPagePtr.As = x86.AMOVQ
	loadPagePtr.From = obj.Addr{Type: obj.TYPE_MEM, Reg: gprReg(tableBaseIdx), Index: gprReg(pageIdx), Scale: 8}
	loadPagePtr.To = regAddr(gprReg(pagePtrIdx))
	e.add(loadPagePtr)

	testNull := e.prog()
	testNull.As = x86.ATESTQ
	testNull.From = regAddr(gprReg(pagePtrIdx))
	testNull.To = regAddr(gprReg(pagePtrIdx))
	e.add(testNull)
	toCallback := e.emitCondJump(ir.CondEQ)

	// vaddr & page_mask, computed fresh off the original vaddr register
	// (pageIdx above was overwritten by the shift).
	offsetIdx := e.ra.ScratchGpr()
	movOff := e.prog()
	movOff.As = x86.AMOVQ
	movOff.From = regAddr(gprReg(vaddrIdx))
	movOff.To = regAddr(gprReg(offsetIdx))
	e.add(movOff)

	andOff := e.prog()
	andOff.As = x86.AANDQ
	andOff.From = constAddr((int64(1) << cfg.PageBits) - 1)
	andOff.To = regAddr(gprReg(offsetIdx))
	e.add(andOff)

	dstIdx := e.ra.ScratchGpr()
	finalLoad := e.prog()
	finalLoad.As = movForWidth(width)
	finalLoad.From = obj.Addr{Type: obj.TYPE_MEM, Reg: gprReg(pagePtrIdx), Index: gprReg(offsetIdx), Scale: 1}
	finalLoad.To = regAddr(gprReg(dstIdx))
	e.add(finalLoad)

	skip := e.prog()
	skip.As = obj.AJMP
	skip.To = obj.Addr{Type: obj.TYPE_BRANCH}
	e.add(skip)

	// Null-page fallback: the callback path, writing its result into the
	// same destination register the fast path used.
	callbackLabel := e.prog()
	callbackLabel.As = obj.ANOP
	e.add(callbackLabel)
	toCallback.To.SetTarget(callbackLabel)

	e.ra.HostCall(nil, vaddr.Producer())
	e.emitCallStub(callbackSlot(width, false, exclusive))
	moveBack := e.prog()
	moveBack.As = x86.AMOVQ
	moveBack.From = regAddr(x86.REG_AX)
	moveBack.To = regAddr(gprReg(dstIdx))
	e.add(moveBack)

	resume := e.prog()
	resume.As = obj.ANOP
	e.add(resume)
	skip.To.SetTarget(resume)

	e.defineGpr(inst, dstIdx)
}

func (e *Emitter) emitPageTableWrite(vaddr, value regalloc.Argument, width int, exclusive bool) {
	cfg := e.config.PageTable
	vaddrIdx := e.materializeGprIndex(vaddr)
	valReg := e.materializeGpr(value)

	pageIdx := e.ra.ScratchGpr()
	movPage := e.prog()
	movPage.As = x86.AMOVQ
	movPage.From = regAddr(gprReg(vaddrIdx))
	movPage.To = regAddr(gprReg(pageIdx))
	e.add(movPage)

	shr := e.prog()
	shr.As = x86.ASHRQ
	shr.From = constAddr(int64(cfg.PageBits))
	shr.To = regAddr(gprReg(pageIdx))
	e.add(shr)

	tableBaseIdx := e.ra.ScratchGpr()
	movTable := e.prog()
	movTable.As = x86.AMOVQ
	movTable.From = constAddr(pageTableBaseAddr(cfg))
	movTable.To = regAddr(gprReg(tableBaseIdx))
	e.add(movTable)

	pagePtrIdx := e.ra.ScratchGpr()
	loadPagePtr := e.prog()
	loadPagePtr.As = x86.AMOVQ
	loadPagePtr.From = obj.Addr{Type: obj.TYPE_MEM, Reg: gprReg(tableBaseIdx), Index: gprReg(pageIdx), Scale: 8}
	loadPagePtr.To = regAddr(gprReg(pagePtrIdx))
	e.add(loadPagePtr)

	testNull := e.prog()
	testNull.As = x86.ATESTQ
	testNull.From = regAddr(gprReg(pagePtrIdx))
	testNull.To = regAddr(gprReg(pagePtrIdx))
	e.add(testNull)
	toCallback := e.emitCondJump(ir.CondEQ)

	offsetIdx := e.ra.ScratchGpr()
	movOff := e.prog()
	movOff.As = x86.AMOVQ
	movOff.From = regAddr(gprReg(vaddrIdx))
	movOff.To = regAddr(gprReg(offsetIdx))
	e.add(movOff)

	andOff := e.prog()
	andOff.As = x86.AANDQ
	andOff.From = constAddr((int64(1) << cfg.PageBits) - 1)
	andOff.To = regAddr(gprReg(offsetIdx))
	e.add(andOff)

	store := e.prog()
	store.As = movForWidth(width)
	store.From = valReg
	store.To = obj.Addr{Type: obj.TYPE_MEM, Reg: gprReg(pagePtrIdx), Index: gprReg(offsetIdx), Scale: 1}
	e.add(store)

	skip := e.prog()
	skip.As = obj.AJMP
	skip.To = obj.Addr{Type: obj.TYPE_BRANCH}
	e.add(skip)

	callbackLabel := e.prog()
	callbackLabel.As = obj.ANOP
	e.add(callbackLabel)
	toCallback.To.SetTarget(callbackLabel)

	e.ra.HostCall(nil, vaddr.Producer(), value.Producer())
	e.emitCallStub(callbackSlot(width, true, exclusive))

	resume := e.prog()
	resume.As = obj.ANOP
	e.add(resume)
	skip.To.SetTarget(resume)
}

// emitFastmemRead performs a native load at fastmem_base+vaddr and records a
// FastmemSite for the caller to register with except.Handler once the
// assembled bytes have a final host address (spec.md §4.6 "Fastmem form").
// The fast path falls through to skip on success; the callback stub is
// reached only via rip redirection from the SIGSEGV handler, never by
// ordinary fallthrough.
func (e *Emitter) emitFastmemRead(inst *ir.Inst, vaddr regalloc.Argument, width int, exclusive bool) {
	cfg := e.config.Fastmem
	vaddrIdx := e.materializeGprIndex(vaddr)

	baseIdx := e.ra.ScratchGpr()
	movBase := e.prog()
	movBase.As = x86.AMOVQ
	movBase.From = constAddr(int64(cfg.Base))
	movBase.To = regAddr(gprReg(baseIdx))
	e.add(movBase)

	dstIdx := e.ra.ScratchGpr()
	faultLoad := e.prog()
	faultLoad.As = movForWidth(width)
	faultLoad.From = obj.Addr{Type: obj.TYPE_MEM, Reg: gprReg(baseIdx), Index: gprReg(vaddrIdx), Scale: 1}
	faultLoad.To = regAddr(gprReg(dstIdx))
	e.add(faultLoad)

	skip := e.prog()
	skip.As = obj.AJMP
	skip.To = obj.Addr{Type: obj.TYPE_BRANCH}
	e.add(skip)

	callbackLabel := e.prog()
	callbackLabel.As = obj.ANOP
	e.add(callbackLabel)

	e.ra.HostCall(nil, vaddr.Producer())
	e.emitCallStub(callbackSlot(width, false, exclusive))
	moveBack := e.prog()
	moveBack.As = x86.AMOVQ
	moveBack.From = regAddr(x86.REG_AX)
	moveBack.To = regAddr(gprReg(dstIdx))
	e.add(moveBack)

	resume := e.prog()
	resume.As = obj.ANOP
	e.add(resume)
	skip.To.SetTarget(resume)

	e.defineGpr(inst, dstIdx)

	e.fastmem = append(e.fastmem, FastmemSite{
		Width: width, Exclusive: exclusive, Recompile: cfg.RecompileOnFailure,
		fault: faultLoad, resume: resume, callback: callbackLabel,
	})
}

func (e *Emitter) emitFastmemWrite(vaddr, value regalloc.Argument, width int, exclusive bool) {
	cfg := e.config.Fastmem
	vaddrIdx := e.materializeGprIndex(vaddr)
	val := e.materializeGpr(value)

	baseIdx := e.ra.ScratchGpr()
	movBase := e.prog()
	movBase.As = x86.AMOVQ
	movBase.From = constAddr(int64(cfg.Base))
	movBase.To = regAddr(gprReg(baseIdx))
	e.add(movBase)

	faultStore := e.prog()
	faultStore.As = movForWidth(width)
	faultStore.From = val
	faultStore.To = obj.Addr{Type: obj.TYPE_MEM, Reg: gprReg(baseIdx), Index: gprReg(vaddrIdx), Scale: 1}
	e.add(faultStore)

	skip := e.prog()
	skip.As = obj.AJMP
	skip.To = obj.Addr{Type: obj.TYPE_BRANCH}
	e.add(skip)

	callbackLabel := e.prog()
	callbackLabel.As = obj.ANOP
	e.add(callbackLabel)

	e.ra.HostCall(nil, vaddr.Producer(), value.Producer())
	e.emitCallStub(callbackSlot(width, true, exclusive))

	resume := e.prog()
	resume.As = obj.ANOP
	e.add(resume)
	skip.To.SetTarget(resume)

	e.fastmem = append(e.fastmem, FastmemSite{
		Width: width, Write: true, Exclusive: exclusive, Recompile: cfg.RecompileOnFailure,
		fault: faultStore, resume: resume, callback: callbackLabel,
	})
}

func (e *Emitter) emitClearExclusive() {
	p := e.prog()
	p.As = x86.AMOVB
	p.From = constAddr(0)
	p.To = stateMemAddr(jitstate.FieldOffset("ExclusiveState"))
	e.add(p)
}

func (e *Emitter) emitCallStub(slot int) {
	// Emits a CALL with no resolved target (spec.md §3 BlockOfCode
	// "per-bitsize memory wrappers"). slot is not encoded into the
	// instruction and no patch site is recorded for the CALL, so unlike
	// LinkBlock's jump it is never resolved afterwards; no per-width
	// wrapper table is built into the prelude.
	p := e.prog()
	p.As = obj.ACALL
	p.To = obj.Addr{Type: obj.TYPE_BRANCH}
	e.add(p)
}

func callbackSlot(width int, write, exclusive bool) int {
	slot := 0
	switch width {
	case 8:
		slot = 0
	case 16:
		slot = 1
	case 32:
		slot = 2
	case 64:
		slot = 3
	}
	if write {
		slot += 4
	}
	if exclusive {
		slot += 8
	}
	return slot
}

func movForWidth(width int) int16 {
	switch width {
	case 8:
		return x86.AMOVB
	case 16:
		return x86.AMOVW
	case 32:
		return x86.AMOVL
	default:
		return x86.AMOVQ
	}
}
