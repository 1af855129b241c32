package ir

import "github.com/dynarmic-go/dynarmic/locdesc"

// Terminal is a closed tagged variant describing how a block's body ends
// and where control resumes. Rather than the source's runtime visitor, this
// is an interface with an unexported marker method so the Go compiler
// statically confirms every switch over concrete Terminal types is
// exhaustive (spec.md §9 design notes).
type Terminal interface {
	isTerminal()
}

// Invalid is never emitted; it signals a programmer error if observed at
// emission time.
type Invalid struct{}

// Interpret calls out to the user interpreter for N guest instructions
// starting at Next.
type Interpret struct {
	Next locdesc.Descriptor
	N    int
}

// ReturnToDispatch falls back to the main dispatcher lookup.
type ReturnToDispatch struct{}

// LinkBlock jumps to the block for Next when cycles remain; otherwise the
// guest PC is set to Next and control returns to the dispatcher. Next is
// not pushed onto the RSB.
type LinkBlock struct {
	Next locdesc.Descriptor
}

// LinkBlockFast jumps unconditionally to the block for Next with no cycles
// check.
type LinkBlockFast struct {
	Next locdesc.Descriptor
}

// PopRSBHint consumes the top of the RSB if it matches the upcoming
// descriptor, else returns to the dispatcher.
type PopRSBHint struct{}

// FastDispatchHint consults the fast-dispatch table; on miss, returns to
// the dispatcher.
type FastDispatchHint struct{}

// If evaluates Cond against guest NZCV and recurses into Then or Else.
type If struct {
	Cond Cond
	Then Terminal
	Else Terminal
}

// CheckBit reads the one-byte "check bit" held in JitState's CheckBit field
// (not a host stack slot) and branches to Then or Else accordingly.
type CheckBit struct {
	Then Terminal
	Else Terminal
}

// CheckHalt forces a return if guest halt_requested is set, else recurses
// into Else.
type CheckHalt struct {
	Else Terminal
}

func (Invalid) isTerminal()          {}
func (Interpret) isTerminal()        {}
func (ReturnToDispatch) isTerminal() {}
func (LinkBlock) isTerminal()        {}
func (LinkBlockFast) isTerminal()    {}
func (PopRSBHint) isTerminal()       {}
func (FastDispatchHint) isTerminal() {}
func (If) isTerminal()               {}
func (CheckBit) isTerminal()         {}
func (CheckHalt) isTerminal()        {}
