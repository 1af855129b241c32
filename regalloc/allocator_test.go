package regalloc_test

import (
	"testing"

	"github.com/dynarmic-go/dynarmic/ir"
	"github.com/dynarmic-go/dynarmic/locdesc"
	"github.com/dynarmic-go/dynarmic/regalloc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUseGprMaterializesDefinedValue(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0, 0))
	a := b.Append(ir.OpAdd32, ir.ImmU32(1), ir.ImmU32(2))
	consumer := b.Append(ir.OpNot32, ir.FromInst(a))

	ra := regalloc.NewAllocator(b)

	ra.DefineValue(a, regalloc.Gpr(3))
	ra.EndOfAllocScope(a)

	args := ra.GetArgumentInfo(consumer)
	require.Len(t, args, 1)
	require.False(t, args[0].IsImmediate())

	reg := ra.UseGpr(args[0])
	assert.Equal(t, 3, reg)
}

func TestImmediateArgumentNeedsNoHostLoc(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0, 0))
	inst := b.Append(ir.OpAdd32, ir.ImmU32(7), ir.ImmU32(9))

	ra := regalloc.NewAllocator(b)
	args := ra.GetArgumentInfo(inst)

	require.Len(t, args, 2)
	assert.True(t, args[0].IsImmediate())
	assert.Equal(t, uint64(7), args[0].ImmValue())
	assert.Equal(t, 32, args[0].ImmWidthBits())
}

func TestScratchGprUnderFullPressure(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0, 0))
	var producers []*ir.Inst
	for i := 0; i < regalloc.GprCount+2; i++ {
		producers = append(producers, b.Append(ir.OpAdd32, ir.ImmU32(uint32(i)), ir.ImmU32(1)))
	}
	// Bind every producer to a GPR; the producers past the physical bank
	// wrap around onto GPRs 0 and 1, so every GPR ends up occupied.
	ra := regalloc.NewAllocator(b)
	for i, p := range producers {
		ra.DefineValue(p, regalloc.Gpr(i%regalloc.GprCount))
		if i >= regalloc.GprCount {
			// Defining past the physical bank forces DefineValue targets to
			// collide; exercise the allocator's spill path explicitly
			// instead by asking for a scratch register under pressure.
		}
	}

	// Force every physical GPR to be occupied, then request one more: the
	// allocator must spill something rather than panic.
	reg := ra.ScratchGpr()
	assert.GreaterOrEqual(t, reg, 0)
	assert.Less(t, reg, regalloc.GprCount)
}

func TestHostCallPinsArgumentRegisters(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0, 0))
	arg0 := b.Append(ir.OpAdd64, ir.ImmU64(1), ir.ImmU64(1))
	result := b.Append(ir.OpReadMemory32, ir.FromInst(arg0))

	ra := regalloc.NewAllocator(b)
	ra.DefineValue(arg0, regalloc.Gpr(5))

	ra.HostCall(result, arg0)

	loc, ok := ra.LocOf(arg0)
	require.True(t, ok)
	assert.Equal(t, regalloc.Gpr(regalloc.AbiArgGprIndex[0]), loc)

	resultLoc, ok := ra.LocOf(result)
	require.True(t, ok)
	assert.Equal(t, regalloc.Gpr(regalloc.AbiReturnGpr), resultLoc)
}
