package ir

import (
	"fmt"
	"strings"
)

// String renders the block as a flat textual IR listing, in the spirit of
// the teacher's opcodeName/text-dump pair in std/compiler/backend_ir.go.
// Mainly useful for tests and the demo CLI's -dump-ir flag.
func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "block %s -> %s\n", b.Start(), b.End())
	if c := b.Cond(); c != nil {
		fmt.Fprintf(&sb, "  cond=%d fallback=%s\n", c.Cond, c.Fallback)
	}
	ids := map[*Inst]int{}
	for idx, inst := range b.Insts() {
		ids[inst] = idx
	}
	for _, inst := range b.Insts() {
		fmt.Fprintf(&sb, "  %%%d = %s", ids[inst], inst.Opcode())
		args := inst.Args()
		for i, a := range args {
			if i == 0 {
				sb.WriteString(" ")
			} else {
				sb.WriteString(", ")
			}
			writeValue(&sb, a, ids)
		}
		fmt.Fprintf(&sb, " (uses=%d)\n", inst.UseCount())
	}
	fmt.Fprintf(&sb, "  terminal=%T\n", b.Terminal())
	return sb.String()
}

func writeValue(sb *strings.Builder, v Value, ids map[*Inst]int) {
	if v.IsEmpty() {
		sb.WriteString("<empty>")
		return
	}
	if v.IsImmediate() {
		fmt.Fprintf(sb, "#%#x", v.U64())
		return
	}
	if p := v.Inst(); p != nil {
		fmt.Fprintf(sb, "%%%d", ids[p])
		return
	}
	sb.WriteString("?")
}
