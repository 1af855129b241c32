// Package emit lowers IR blocks to host machine code: the per-opcode
// dispatch the spec calls the Emitter (spec.md §4.4), driving
// github.com/twitchyliquid64/golang-asm the way wazero's JIT engine drives
// it (asm.NewBuilder, obj.Prog chains, Assemble to bytes) rather than
// hand-rolling x86 encodings byte by byte.
package emit

import (
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/dynarmic-go/dynarmic/regalloc"
)

// gprEncoding maps a regalloc GPR index to its x86-64 encoding. RBP and RSP
// are reserved (state pointer, host stack) and R14 is reserved because it
// holds Go's goroutine pointer across the CALL that enters emitted code;
// none of the three are ever handed out by regalloc.GprCount, so they're
// absent here.
var gprEncoding = [regalloc.GprCount]int16{
	x86.REG_AX, x86.REG_BX, x86.REG_CX, x86.REG_DX,
	x86.REG_SI, x86.REG_DI, x86.REG_R8, x86.REG_R9,
	x86.REG_R10, x86.REG_R11, x86.REG_R12, x86.REG_R13,
	x86.REG_R15,
}

// StateReg is the reserved GPR holding the *jitstate.State pointer for the
// duration of RunCode, per spec.md §3 "JitState... Offsets into JitState
// are the ABI between emitted code and runtime".
const StateReg = x86.REG_BP

var xmmEncoding = [regalloc.XmmCount]int16{
	x86.REG_X0, x86.REG_X1, x86.REG_X2, x86.REG_X3,
	x86.REG_X4, x86.REG_X5, x86.REG_X6, x86.REG_X7,
	x86.REG_X8, x86.REG_X9, x86.REG_X10, x86.REG_X11,
	x86.REG_X12, x86.REG_X13, x86.REG_X14, x86.REG_X15,
}

func gprReg(index int) int16 { return gprEncoding[index] }
func xmmReg(index int) int16 { return xmmEncoding[index] }

// gprIndexOf inverts gprEncoding, for call sites that need to pin a specific
// host register (e.g. cl for variable shifts) through ScratchGpr's pinned
// argument, which takes a regalloc index rather than an x86 encoding.
func gprIndexOf(encoding int16) int {
	for i, enc := range gprEncoding {
		if enc == encoding {
			return i
		}
	}
	panic("emit: gprIndexOf: encoding not in gprEncoding")
}

// hostReg resolves a regalloc.HostLoc bound to a register (not a spill
// slot) to its x86 encoding.
func hostReg(loc regalloc.HostLoc) int16 {
	switch loc.Kind {
	case regalloc.KindGpr:
		return gprReg(loc.Index)
	case regalloc.KindXmm:
		return xmmReg(loc.Index)
	default:
		panic("emit: hostReg called on a spill slot HostLoc")
	}
}

// spillOffset computes the frame-relative byte offset of a spill slot, below
// the reserved JitState-pointer save area.
func spillOffset(index int) int64 {
	const frameBase = -0x100 // leaves room for the state pointer + callee saves
	return int64(frameBase - 8*index)
}
