package ir

import "fmt"

// VerifyError describes a single verification failure. The verification
// pass is a total function (spec.md §8 testable property 6): it never
// panics, it reports every violation it finds.
type VerifyError struct {
	Inst    *Inst
	Message string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("ir verify: %s (inst opcode=%s)", e.Message, e.Inst.Opcode())
}

// Verify checks every Testable Property from spec.md §8 that is purely a
// function of one block's Insts: argument type compatibility, use-count
// consistency, and pseudo-op cardinality/whitelist membership. It is a
// programmer-error detector, not a guest-facing one (spec.md §7): callers
// are expected to treat a non-empty result as an abort condition.
func Verify(b *Block) []*VerifyError {
	var errs []*VerifyError

	insts := b.Insts()
	computed := make(map[*Inst]int, len(insts))

	for _, inst := range insts {
		op := inst.Opcode()
		for n := 0; n < op.Arity(); n++ {
			arg := inst.Arg(n)
			if arg.IsEmpty() {
				errs = append(errs, &VerifyError{inst, "missing required argument"})
				continue
			}
			if !AreTypesCompatible(arg.GetType(), op.ArgType(n)) {
				errs = append(errs, &VerifyError{inst, fmt.Sprintf(
					"argument %d type %s incompatible with declared %s", n, arg.GetType(), op.ArgType(n))})
			}
			if p := arg.Inst(); p != nil {
				computed[p]++
			}
		}

		if op == OpGetNZCVFromOp {
			if producer := inst.Arg(0).Inst(); producer != nil && !producer.Opcode().InNZCVWhitelist() {
				errs = append(errs, &VerifyError{inst, "GetNZCVFromOp on non-whitelisted producer " + producer.Opcode().Name()})
			}
		}
	}

	for _, inst := range insts {
		if got := computed[inst]; got != inst.UseCount() {
			errs = append(errs, &VerifyError{inst, fmt.Sprintf(
				"use_count mismatch: stored=%d computed=%d", inst.UseCount(), got)})
		}
		errs = append(errs, verifyPseudoOpCardinality(inst)...)
	}

	return errs
}

func verifyPseudoOpCardinality(inst *Inst) []*VerifyError {
	var errs []*VerifyError
	check := func(consumer *Inst, kind string) {
		if consumer == nil {
			return
		}
		if consumer.Arg(0).Inst() != inst {
			errs = append(errs, &VerifyError{inst, kind + " back-pointer does not point back at its producer"})
		}
	}
	check(inst.CarryInst(), "GetCarryFromOp")
	check(inst.OverflowInst(), "GetOverflowFromOp")
	check(inst.GEInst(), "GetGEFromOp")
	check(inst.NZCVInst(), "GetNZCVFromOp")
	return errs
}
