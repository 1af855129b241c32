package emit

import (
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/dynarmic-go/dynarmic/ir"
	"github.com/dynarmic-go/dynarmic/jitstate"
)

// armCondToX86Jump maps each of the 14 non-trivial ARM condition codes to
// the x86 conditional jump that tests the same FLAGS bits once NZCV has
// been restored via sahf/add-al (spec.md §4.4 "Condition evaluation").
// AL and NV are handled specially by their callers (always-taken /
// never-taken) and don't appear here.
var armCondToX86Jump = map[ir.Cond]int16{
	ir.CondEQ: x86.AJEQ,
	ir.CondNE: x86.AJNE,
	ir.CondCS: x86.AJCS,
	ir.CondCC: x86.AJCC,
	ir.CondMI: x86.AJMI,
	ir.CondPL: x86.AJPL,
	ir.CondVS: x86.AJOS,
	ir.CondVC: x86.AJOC,
	ir.CondHI: x86.AJHI,
	ir.CondLS: x86.AJLS,
	ir.CondGE: x86.AJGE,
	ir.CondLT: x86.AJLT,
	ir.CondGT: x86.AJGT,
	ir.CondLE: x86.AJLE,
}

// emitRestoreNZCV loads cpsr_nzcv from JitState and restores host SF/ZF/
// CF/OF via sahf (spec.md §4.4: "a single sahf / add al, 0x7F pair").
func (e *Emitter) emitRestoreNZCV() {
	load := e.prog()
	load.As = x86.AMOVB
	load.From = Nzcvfield()
	load.To = regAddr(x86.REG_AX)
	e.add(load)

	sahf := e.prog()
	sahf.As = x86.ASAHF
	e.add(sahf)
}

// Nzcvfield is the JitState field sahf reads its byte from.
func Nzcvfield() obj.Addr {
	return stateMemAddr(jitstate.FieldOffset("CpsrNZCV"))
}

// emitCondJump emits the conditional jump for cond, returning the obj.Prog
// so the caller can set its branch target (falls through on failure,
// jumps to target on success — matching "If{cond,t,e}" semantics where the
// emitter recurses into one sub-terminal).
func (e *Emitter) emitCondJump(cond ir.Cond) *obj.Prog {
	p := e.prog()
	p.As = armCondToX86Jump[cond]
	p.To = obj.Addr{Type: obj.TYPE_BRANCH}
	e.add(p)
	return p
}
