package jitstate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dynarmic-go/dynarmic/exclusive"
	"github.com/dynarmic-go/dynarmic/jitstate"
)

// fakeMemory is a tiny in-process MemoryCallbacks, standing in for a real
// guest address space the way the emitted CALL stubs eventually reach one.
type fakeMemory struct {
	store map[uint64]uint64
}

func newFakeMemory() *fakeMemory { return &fakeMemory{store: make(map[uint64]uint64)} }

func (f *fakeMemory) MemoryRead(width int, vaddr uint64) (lo, hi uint64) {
	return f.store[vaddr], 0
}

func (f *fakeMemory) MemoryWrite(width int, vaddr uint64, lo, hi uint64) {
	f.store[vaddr] = lo
}

func (f *fakeMemory) MemoryWriteExclusive(width int, vaddr uint64, lo, hi, expectedLo, expectedHi uint64) bool {
	if f.store[vaddr] != expectedLo {
		return false
	}
	f.store[vaddr] = lo
	return true
}

func TestCallbackTableExclusivePairSucceeds(t *testing.T) {
	mem := newFakeMemory()
	mem.store[0x1000] = 7
	table := &jitstate.CallbackTable{Mem: mem, Monitor: exclusive.New(1), ProcessorID: 0}

	lo, _ := table.Read(32, 0x1000, true)
	assert.Equal(t, uint64(7), lo)

	ok := table.Write(32, 0x1000, 9, 0, true)
	assert.True(t, ok)
	assert.Equal(t, uint64(9), mem.store[0x1000])
}

func TestCallbackTableExclusiveWriteFailsWithoutReservation(t *testing.T) {
	mem := newFakeMemory()
	table := &jitstate.CallbackTable{Mem: mem, Monitor: exclusive.New(1), ProcessorID: 0}

	ok := table.Write(32, 0x2000, 1, 0, true)
	assert.False(t, ok)
}

func TestCallbackTableExclusiveReservationClearedByOtherProcessor(t *testing.T) {
	mem := newFakeMemory()
	mem.store[0x1000] = 1
	monitor := exclusive.New(2)
	p0 := &jitstate.CallbackTable{Mem: mem, Monitor: monitor, ProcessorID: 0}
	p1 := &jitstate.CallbackTable{Mem: mem, Monitor: monitor, ProcessorID: 1}

	p0.Read(32, 0x1000, true)
	p1.Read(32, 0x1000, true)
	assert.True(t, p1.Write(32, 0x1000, 2, 0, true))

	ok := p0.Write(32, 0x1000, 3, 0, true)
	assert.False(t, ok)
}

func TestCallbackTableNonExclusiveWriteAlwaysSucceeds(t *testing.T) {
	mem := newFakeMemory()
	table := &jitstate.CallbackTable{Mem: mem, Monitor: exclusive.New(1), ProcessorID: 0}

	ok := table.Write(8, 0x3000, 0xFF, 0, false)
	assert.True(t, ok)
	assert.Equal(t, uint64(0xFF), mem.store[0x3000])
}

func TestCallbackTableClearExclusive(t *testing.T) {
	mem := newFakeMemory()
	mem.store[0x1000] = 1
	monitor := exclusive.New(1)
	table := &jitstate.CallbackTable{Mem: mem, Monitor: monitor, ProcessorID: 0}

	table.Read(32, 0x1000, true)
	table.ClearExclusive()

	ok := table.Write(32, 0x1000, 2, 0, true)
	assert.False(t, ok)
}
