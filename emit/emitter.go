package emit

import (
	"fmt"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/dynarmic-go/dynarmic/blockcache"
	"github.com/dynarmic-go/dynarmic/blockcode"
	"github.com/dynarmic-go/dynarmic/ir"
	"github.com/dynarmic-go/dynarmic/jitstate"
	"github.com/dynarmic-go/dynarmic/regalloc"
)

// PatchSite records where, within the assembled instruction stream, a
// cross-block link was emitted, so the caller can translate it into an
// absolute host address once the buffer has been copied into BlockOfCode.
type PatchSite struct {
	Kind   blockcache.PatchKind
	Target uint64 // location descriptor this site wants to reach
	prog   *obj.Prog
}

// Offset returns the site's byte offset within the assembled instruction
// stream Result.Bytes came from.
func (p PatchSite) Offset() int64 { return p.prog.Pc }

// Emitter lowers one IR block at a time into a byte stream ready to be
// copied into a blockcode.BlockOfCode, per spec.md §4.4.
type Emitter struct {
	code   *blockcode.BlockOfCode
	config *jitstate.Config

	builder *asm.Builder
	ra      *regalloc.Allocator
	patches []PatchSite
	fastmem []FastmemSite
}

// NewEmitter constructs an Emitter targeting code. config governs which
// memory-access forms and misalignment checks get emitted.
func NewEmitter(code *blockcode.BlockOfCode, config *jitstate.Config) *Emitter {
	return &Emitter{code: code, config: config}
}

// Result is what EmitBlock hands back: the assembled bytes (not yet copied
// into the code buffer — the caller decides near vs far placement) and the
// link-patch sites discovered while lowering terminals.
type Result struct {
	Bytes        []byte
	Patches      []PatchSite
	FastmemSites []FastmemSite
	Cycles       int
}

// EmitBlock lowers b fully: entry-condition prelude, body in IR order, cycle
// accounting, then the terminal (spec.md §4.4 "Driver").
func (e *Emitter) EmitBlock(b *ir.Block) (Result, error) {
	builder, err := asm.NewBuilder("amd64", 64)
	if err != nil {
		return Result{}, fmt.Errorf("emit: new builder: %w", err)
	}
	e.builder = builder
	e.ra = regalloc.NewAllocator(b)
	e.patches = nil
	e.fastmem = nil

	if cond := b.Cond(); cond != nil {
		e.emitEntryCondition(*cond, b.CyclesOnFail())
	}

	for _, inst := range b.Insts() {
		e.emitInst(inst)
		e.ra.EndOfAllocScope(inst)
	}
	e.ra.AssertNoMoreUses()

	e.emitCycleSubtraction(b.CyclesBody())
	e.emitTerminal(b.Terminal())

	code, err := builder.Assemble()
	if err != nil {
		return Result{}, fmt.Errorf("emit: assemble: %w", err)
	}
	return Result{Bytes: code, Patches: e.patches, FastmemSites: e.fastmem, Cycles: b.CyclesBody()}, nil
}

func (e *Emitter) prog() *obj.Prog {
	return e.builder.NewProg()
}

func (e *Emitter) add(p *obj.Prog) {
	e.builder.AddInstruction(p)
}

// regAddr builds an obj.Addr referencing a register.
func regAddr(reg int16) obj.Addr {
	return obj.Addr{Type: obj.TYPE_REG, Reg: reg}
}

// constAddr builds an obj.Addr for an immediate.
func constAddr(v int64) obj.Addr {
	return obj.Addr{Type: obj.TYPE_CONST, Offset: v}
}

// stateMemAddr builds an obj.Addr for a JitState field at the given byte
// offset relative to StateReg.
func stateMemAddr(offset uintptr) obj.Addr {
	return obj.Addr{Type: obj.TYPE_MEM, Reg: StateReg, Offset: int64(offset)}
}

// spillMemAddr builds an obj.Addr for a spill slot, relative to the base
// stack pointer.
func spillMemAddr(index int) obj.Addr {
	return obj.Addr{Type: obj.TYPE_MEM, Reg: x86.REG_SP, Offset: spillOffset(index)}
}

// materializeGpr returns an obj.Addr for arg: a constAddr for immediates,
// or the register arg is bound to, reloading from a spill slot into a fresh
// register first if necessary (the allocator's UseGpr already performs the
// reload bookkeeping; materializeGpr just turns the resulting register
// index into an operand).
func (e *Emitter) materializeGpr(arg regalloc.Argument) obj.Addr {
	if arg.IsImmediate() {
		return constAddr(int64(arg.ImmValue()))
	}
	idx := e.ra.UseGpr(arg)
	return regAddr(gprReg(idx))
}

func (e *Emitter) defineGpr(inst *ir.Inst, regIndex int) {
	e.ra.DefineValue(inst, regalloc.Gpr(regIndex))
}
