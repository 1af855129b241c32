package regalloc

import "github.com/dynarmic-go/dynarmic/ir"

// ABI GPR index assignment for HostCall, following the System V AMD64
// calling convention's integer argument order (rdi, rsi, rdx, rcx, r8, r9).
// The emit package owns the mapping from these abstract indices to real
// x86 register encodings; regalloc only needs to agree on which indices
// are "the argument registers" and which index is "the return register".
var (
	AbiArgGprIndex = [4]int{5, 4, 3, 2}
	AbiReturnGpr   = 0
	// AbiCallerSaved lists every GPR index a C call may clobber, so
	// HostCall knows what it must spill or otherwise evacuate first.
	AbiCallerSaved = []int{0, 2, 3, 4, 5, 6, 7, 8, 9}
)

// HostCall prepares a C-ABI call per spec.md §4.3: moves up to four named
// arguments into the platform's parameter registers (spilling whatever
// currently occupies them), reserves the rest of the caller-save set by
// spilling any live occupants, and — if resultInst is non-nil — binds the
// ABI return register to resultInst once the emitter has issued the call.
func (a *Allocator) HostCall(resultInst *ir.Inst, args ...*ir.Inst) {
	if len(args) > len(AbiArgGprIndex) {
		panic("regalloc: HostCall supports at most 4 arguments")
	}

	pinned := map[int]bool{}
	for i, argInst := range args {
		if argInst == nil {
			continue
		}
		idx := AbiArgGprIndex[i]
		pinned[idx] = true
		if owner := a.gprOwner[idx]; owner != nil && owner != argInst {
			a.spillInst(owner)
		}
		if loc, ok := a.locOf[argInst]; ok {
			if loc.Kind == KindSpill {
				a.reload(argInst, loc, HostLoc{Kind: KindGpr, Index: idx})
			} else if loc != (HostLoc{Kind: KindGpr, Index: idx}) {
				a.unbind(argInst)
				a.bind(argInst, HostLoc{Kind: KindGpr, Index: idx})
			}
		} else {
			a.bind(argInst, HostLoc{Kind: KindGpr, Index: idx})
		}
	}

	for _, idx := range AbiCallerSaved {
		if pinned[idx] {
			continue
		}
		if owner := a.gprOwner[idx]; owner != nil {
			a.spillInst(owner)
		}
	}

	if resultInst != nil {
		a.bind(resultInst, HostLoc{Kind: KindGpr, Index: AbiReturnGpr})
	}
}
