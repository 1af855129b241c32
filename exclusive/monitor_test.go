package exclusive_test

import (
	"testing"

	"github.com/dynarmic-go/dynarmic/exclusive"
	"github.com/stretchr/testify/assert"
)

func TestExclusiveSuccessScenarioD(t *testing.T) {
	m := exclusive.New(2)
	m.Read(0, 0x1000, 42, 0)

	ok := m.Write(0, 0x1000, func(lo, hi uint64) bool {
		assert.Equal(t, uint64(42), lo)
		return true
	})
	assert.True(t, ok)
}

func TestExclusiveFailureByCrossCoreInterventionScenarioE(t *testing.T) {
	m := exclusive.New(2)
	m.Read(0, 0x1000, 1, 0) // processor 0 LDREX

	m.Read(1, 0x1000, 2, 0) // processor 1 LDREX
	ok1 := m.Write(1, 0x1000, func(lo, hi uint64) bool { return true }) // processor 1 STREX succeeds
	assert.True(t, ok1)

	// Processor 1's successful STREX test-and-clears processor 0's reservation.
	ok0 := m.Write(0, 0x1000, func(lo, hi uint64) bool {
		t.Fatal("cas should not run once the reservation was cleared by another processor's STREX")
		return true
	})
	assert.False(t, ok0)
}

func TestWriteWithoutPriorReadFails(t *testing.T) {
	m := exclusive.New(1)
	ok := m.Write(0, 0x2000, func(lo, hi uint64) bool { return true })
	assert.False(t, ok)
}

func TestClearDropsReservation(t *testing.T) {
	m := exclusive.New(1)
	m.Read(0, 0x3000, 7, 0)
	m.Clear(0)

	ok := m.Write(0, 0x3000, func(lo, hi uint64) bool { return true })
	assert.False(t, ok)
}
