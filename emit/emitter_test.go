package emit_test

import (
	"testing"

	"github.com/dynarmic-go/dynarmic/blockcache"
	"github.com/dynarmic-go/dynarmic/blockcode"
	"github.com/dynarmic-go/dynarmic/emit"
	"github.com/dynarmic-go/dynarmic/ir"
	"github.com/dynarmic-go/dynarmic/locdesc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmitter(t *testing.T) *emit.Emitter {
	t.Helper()
	code, err := blockcode.NewSize(1 << 16)
	require.NoError(t, err)
	t.Cleanup(func() { code.Close() })
	return emit.NewEmitter(code, nil)
}

func TestEmitBlockReturnToDispatchProducesNoPatches(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	b.Append(ir.OpAdd32, ir.ImmU32(1), ir.ImmU32(2))
	b.SetTerminal(ir.ReturnToDispatch{})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Bytes)
	assert.Empty(t, res.Patches)
}

func TestEmitBlockLinkBlockRecordsCycleCheckAndRsbPatches(t *testing.T) {
	next := locdesc.New(0x2000, 0)
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	b.SetTerminal(ir.LinkBlock{Next: next})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	require.Len(t, res.Patches, 2)
	assert.Equal(t, blockcache.PatchJg, res.Patches[0].Kind)
	assert.Equal(t, uint64(next), res.Patches[0].Target)
	assert.Equal(t, blockcache.PatchMovRcx, res.Patches[1].Kind)
	assert.Equal(t, uint64(next), res.Patches[1].Target)
}

func TestEmitBlockLinkBlockFastRecordsSinglePatch(t *testing.T) {
	next := locdesc.New(0x3000, 0)
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	b.SetTerminal(ir.LinkBlockFast{Next: next})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	require.Len(t, res.Patches, 1)
	assert.Equal(t, blockcache.PatchJmp, res.Patches[0].Kind)
	assert.Equal(t, uint64(next), res.Patches[0].Target)
}

func TestEmitBlockEntryConditionAddsFallbackPatch(t *testing.T) {
	fallback := locdesc.New(0x1004, 0)
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	b.SetCond(&ir.CondFallback{Cond: ir.CondEQ, Fallback: fallback})
	b.SetCyclesOnFail(2)
	b.SetTerminal(ir.ReturnToDispatch{})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	require.Len(t, res.Patches, 1)
	assert.Equal(t, blockcache.PatchJg, res.Patches[0].Kind)
	assert.Equal(t, uint64(fallback), res.Patches[0].Target)
}

func TestEmitBlockAlwaysConditionSkipsPrelude(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	b.SetCond(&ir.CondFallback{Cond: ir.CondAL, Fallback: locdesc.New(0x1004, 0)})
	b.SetTerminal(ir.ReturnToDispatch{})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	assert.Empty(t, res.Patches)
}

func TestEmitBlockArithmeticAndShiftOps(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	sum := b.Append(ir.OpAdd32, ir.ImmU32(10), ir.ImmU32(20))
	b.Append(ir.OpLogicalShiftLeft32, ir.FromInst(sum), ir.ImmU8(2))
	b.Append(ir.OpNot32, ir.ImmU32(0xFF))
	b.SetTerminal(ir.ReturnToDispatch{})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Bytes)
}

func TestEmitBlockVariableShiftPinsCl(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	amount := b.Append(ir.OpReadMemory8, ir.ImmU64(0x10))
	b.Append(ir.OpLogicalShiftRight32, ir.ImmU32(0x1000), ir.FromInst(amount))
	b.SetTerminal(ir.ReturnToDispatch{})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Bytes)
}

func TestEmitBlockCallbackMemoryReadWrite(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	loaded := b.Append(ir.OpReadMemory32, ir.ImmU64(0x8000))
	b.Append(ir.OpWriteMemory32, ir.ImmU64(0x8004), ir.FromInst(loaded))
	b.Append(ir.OpClearExclusive)
	b.SetTerminal(ir.ReturnToDispatch{})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Bytes)
}

func TestEmitBlockNestedIfCheckBitCheckHaltTerminal(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	b.SetTerminal(ir.If{
		Cond: ir.CondNE,
		Then: ir.CheckBit{
			Then: ir.ReturnToDispatch{},
			Else: ir.CheckHalt{Else: ir.LinkBlockFast{Next: locdesc.New(0x1010, 0)}},
		},
		Else: ir.ReturnToDispatch{},
	})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	require.Len(t, res.Patches, 1, "only the nested LinkBlockFast should produce a patch site")
	assert.Equal(t, blockcache.PatchJmp, res.Patches[0].Kind)
}

func TestEmitBlockInterpretTerminalForceReturns(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	b.SetTerminal(ir.Interpret{Next: locdesc.New(0x1000, 0), N: 1})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	assert.Empty(t, res.Patches)
	assert.NotEmpty(t, res.Bytes)
}

func TestEmitBlockCyclesAreReportedButBlockNeverAddsToBudget(t *testing.T) {
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	b.SetCyclesBody(7)
	b.SetTerminal(ir.ReturnToDispatch{})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Cycles)
}

func TestPatchSiteOffsetIsWithinAssembledBytes(t *testing.T) {
	next := locdesc.New(0x2000, 0)
	b := ir.NewBlock(locdesc.New(0x1000, 0))
	b.SetTerminal(ir.LinkBlockFast{Next: next})

	res, err := newEmitter(t).EmitBlock(b)
	require.NoError(t, err)
	require.Len(t, res.Patches, 1)
	assert.GreaterOrEqual(t, res.Patches[0].Offset(), int64(0))
	assert.LessOrEqual(t, res.Patches[0].Offset(), int64(len(res.Bytes)))
}

func TestEmitBlockIndependentAcrossCalls(t *testing.T) {
	e := newEmitter(t)

	b1 := ir.NewBlock(locdesc.New(0x1000, 0))
	b1.SetTerminal(ir.LinkBlockFast{Next: locdesc.New(0x1010, 0)})
	res1, err := e.EmitBlock(b1)
	require.NoError(t, err)
	require.Len(t, res1.Patches, 1)

	b2 := ir.NewBlock(locdesc.New(0x2000, 0))
	b2.SetTerminal(ir.ReturnToDispatch{})
	res2, err := e.EmitBlock(b2)
	require.NoError(t, err)
	assert.Empty(t, res2.Patches, "a fresh EmitBlock call must not carry over the previous block's patch sites")
}
