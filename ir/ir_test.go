package ir_test

import (
	"testing"

	"github.com/dynarmic-go/dynarmic/ir"
	"github.com/dynarmic-go/dynarmic/locdesc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlock() *ir.Block {
	return ir.NewBlock(locdesc.New(0x1000, 0))
}

func TestUseCountMatchesReferences(t *testing.T) {
	b := newTestBlock()
	a := b.Append(ir.OpAdd32, ir.ImmU32(1), ir.ImmU32(2))
	s := b.Append(ir.OpSub32, ir.FromInst(a), ir.ImmU32(1))
	_ = b.Append(ir.OpNot32, ir.FromInst(a))

	assert.Equal(t, 2, a.UseCount())
	assert.Equal(t, 0, s.UseCount())
	assert.Empty(t, ir.Verify(b))
}

func TestReplaceUsesWithIsIdempotent(t *testing.T) {
	b := newTestBlock()
	a := b.Append(ir.OpAdd32, ir.ImmU32(1), ir.ImmU32(2))
	consumer := b.Append(ir.OpNot32, ir.FromInst(a))

	a.ReplaceUsesWith(ir.ImmU32(99))
	firstUses := consumer.Arg(0)

	a.ReplaceUsesWith(ir.ImmU32(99))
	secondUses := consumer.Arg(0)

	assert.Equal(t, firstUses.U64(), secondUses.U64())
	assert.True(t, firstUses.IsImmediate())
}

func TestArgTypeCompatibilityIsVerified(t *testing.T) {
	b := newTestBlock()
	b.Append(ir.OpAdd32, ir.ImmU32(1), ir.ImmU32(2))
	assert.Empty(t, ir.Verify(b))
}

func TestPseudoOpCardinality(t *testing.T) {
	b := newTestBlock()
	a := b.Append(ir.OpAdd32, ir.ImmU32(1), ir.ImmU32(2))
	b.Append(ir.OpGetNZCVFromOp, ir.FromInst(a))

	assert.Empty(t, ir.Verify(b))
	assert.NotNil(t, a.NZCVInst())

	assert.PanicsWithValue(t, "ir: producer already has a GetNZCVFromOp consumer", func() {
		b.Append(ir.OpGetNZCVFromOp, ir.FromInst(a))
	})
}

func TestGetNZCVFromOpWhitelistEnforced(t *testing.T) {
	b := newTestBlock()
	shifted := b.Append(ir.OpLogicalShiftLeft32, ir.ImmU32(1), ir.ImmU8(2))

	require.Panics(t, func() {
		b.Append(ir.OpGetNZCVFromOp, ir.FromInst(shifted))
	})
}

func TestFoldConstants(t *testing.T) {
	b := newTestBlock()
	a := b.Append(ir.OpAdd32, ir.ImmU32(2), ir.ImmU32(3))
	consumer := b.Append(ir.OpSetCpsr, ir.FromInst(a))

	ir.FoldConstants(b)
	ir.RemoveIdentities(b)

	require.True(t, consumer.Arg(0).IsImmediate())
	assert.Equal(t, uint64(5), consumer.Arg(0).U64())
}

func TestEliminateDeadCode(t *testing.T) {
	b := newTestBlock()
	b.Append(ir.OpAdd32, ir.ImmU32(1), ir.ImmU32(2)) // dead: never consumed
	live := b.Append(ir.OpSub32, ir.ImmU32(9), ir.ImmU32(1))
	b.Append(ir.OpSetRegister, ir.Value{}, ir.FromInst(live))

	before := b.Len()
	ir.EliminateDeadCode(b)
	after := b.Len()

	assert.Less(t, after, before)
	assert.Empty(t, ir.Verify(b))
}

func TestMemoryOpIsNeverDeadCode(t *testing.T) {
	b := newTestBlock()
	b.Append(ir.OpReadMemory32, ir.ImmU64(0x1000)) // result unused but has a side effect

	before := b.Len()
	ir.EliminateDeadCode(b)
	assert.Equal(t, before, b.Len())
}
