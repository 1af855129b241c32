// Package exclusive implements the cross-core linked-load/store-conditional
// state backing guest LDREX/STREX-family instructions (spec.md §3, §4.6).
package exclusive

import "sync/atomic"

// entry is one logical processor's reservation: the watched address and the
// value snapshotted at load-exclusive time, up to 128 bits wide.
type entry struct {
	address  uint64
	valueLo  uint64
	valueHi  uint64
	reserved bool
}

// Monitor is the global, cross-core exclusive-access state: one entry per
// logical processor ID, guarded by a single spinlock (spec.md §5
// "Exclusive-monitor spinlock").
type Monitor struct {
	lock    int32
	entries []entry
}

// New returns a Monitor sized for numProcessors logical processors.
func New(numProcessors int) *Monitor {
	return &Monitor{entries: make([]entry, numProcessors)}
}

func (m *Monitor) acquire() {
	for !atomic.CompareAndSwapInt32(&m.lock, 0, 1) {
		// spin; the critical section is a handful of instructions, so a
		// simple CAS loop is preferable to a syscall-backed mutex here.
	}
}

func (m *Monitor) release() {
	atomic.StoreInt32(&m.lock, 0)
}

// Read performs an ExclusiveReadMemory: records a reservation for
// processorID over vaddr and stores the value the caller read (the actual
// memory read happens outside the lock, via the caller's fastmem/callback
// path; loValue/hiValue is what was observed there).
func (m *Monitor) Read(processorID int, vaddr uint64, loValue, hiValue uint64) {
	m.acquire()
	defer m.release()
	e := &m.entries[processorID]
	e.address = vaddr
	e.reserved = true
	e.valueLo = loValue
	e.valueHi = hiValue
}

// Write performs an ExclusiveWriteMemory: if processorID holds a live
// reservation over vaddr, it clears every other processor's reservation
// over the same address ("test and clear") and its own, then calls casFn
// under the lock and returns its result; otherwise it returns false without
// calling casFn and performs no state change. casFn performs the actual
// compare-and-swap against memory: it receives the snapshotted value to
// compare against and returns whether the host CAS succeeded.
func (m *Monitor) Write(processorID int, vaddr uint64, casFn func(expectedLo, expectedHi uint64) bool) bool {
	m.acquire()
	defer m.release()

	e := &m.entries[processorID]
	if !e.reserved || e.address != vaddr {
		return false
	}

	for i := range m.entries {
		if i == processorID {
			continue
		}
		if m.entries[i].reserved && m.entries[i].address == vaddr {
			m.entries[i].reserved = false
		}
	}
	e.reserved = false

	return casFn(e.valueLo, e.valueHi)
}

// Clear performs ClearExclusive: drops processorID's reservation, if any.
func (m *Monitor) Clear(processorID int) {
	m.acquire()
	defer m.release()
	m.entries[processorID].reserved = false
}

// ClearAll drops every processor's reservation, used when tearing down or
// resetting a Jit's shared monitor.
func (m *Monitor) ClearAll() {
	m.acquire()
	defer m.release()
	for i := range m.entries {
		m.entries[i].reserved = false
	}
}
