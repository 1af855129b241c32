package jitstate

import "github.com/dynarmic-go/dynarmic/exclusive"

// MemoryCallbacks is the vtable-like interface the embedder implements
// (spec.md §6 "User callbacks"): the slow-path memory access an emitted
// callback-form/page-table-null/fastmem-fault CALL ultimately reaches.
// Widths are bits (8, 16, 32, 64, 128); 128-bit accesses use a pair of uint64s
// (lo, hi), matching ExclusiveMonitor's up-to-128-bit value slot.
type MemoryCallbacks interface {
	MemoryRead(width int, vaddr uint64) (lo, hi uint64)
	MemoryWrite(width int, vaddr uint64, lo, hi uint64)
	MemoryWriteExclusive(width int, vaddr uint64, lo, hi, expectedLo, expectedHi uint64) bool
}

// CallbackTable pairs the embedder's MemoryCallbacks with the shared
// ExclusiveMonitor this processor participates in (spec.md §4.6 "Exclusive
// access"). It is called from Go; the CALL stubs emitted for memory
// accesses are left without a resolved target and do not reach it.
type CallbackTable struct {
	Mem         MemoryCallbacks
	Monitor     *exclusive.Monitor
	ProcessorID int
}

// Read dispatches a ReadMemory{width}. For an exclusive read it then records
// this processor's reservation and the value just read in the shared
// monitor. The memory read itself happens before, and outside, the
// monitor's lock, and no JitState ExclusiveState flag is set here.
func (t *CallbackTable) Read(width int, vaddr uint64, exclusiveAccess bool) (lo, hi uint64) {
	lo, hi = t.Mem.MemoryRead(width, vaddr)
	if exclusiveAccess {
		t.Monitor.Read(t.ProcessorID, vaddr, lo, hi)
	}
	return lo, hi
}

// Write dispatches a WriteMemory{width}. For an exclusive write, the actual
// store only happens if the monitor's test-and-clear reports this
// processor's reservation is still live over vaddr; ok is true when the
// store happened (a plain write always reports true) and false otherwise.
func (t *CallbackTable) Write(width int, vaddr uint64, lo, hi uint64, exclusiveAccess bool) (ok bool) {
	if !exclusiveAccess {
		t.Mem.MemoryWrite(width, vaddr, lo, hi)
		return true
	}
	return t.Monitor.Write(t.ProcessorID, vaddr, func(expectedLo, expectedHi uint64) bool {
		return t.Mem.MemoryWriteExclusive(width, vaddr, lo, hi, expectedLo, expectedHi)
	})
}

// ClearExclusive drops this processor's reservation, if any (spec.md §4.6
// "ClearExclusive").
func (t *CallbackTable) ClearExclusive() {
	t.Monitor.Clear(t.ProcessorID)
}
