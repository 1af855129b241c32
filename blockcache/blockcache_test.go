package blockcache_test

import (
	"testing"

	"github.com/dynarmic-go/dynarmic/blockcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	jg, jmp, movrcx map[uintptr]uintptr
	stub            uintptr
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{jg: map[uintptr]uintptr{}, jmp: map[uintptr]uintptr{}, movrcx: map[uintptr]uintptr{}, stub: 0xdead}
}
func (w *fakeWriter) WriteJg(site, target uintptr)     { w.jg[site] = target }
func (w *fakeWriter) WriteJmp(site, target uintptr)    { w.jmp[site] = target }
func (w *fakeWriter) WriteMovRcx(site, target uintptr) { w.movrcx[site] = target }
func (w *fakeWriter) ReturnToDispatchStub() uintptr    { return w.stub }

func TestPendingPatchResolvedOnInsert(t *testing.T) {
	c := blockcache.New(nil)
	w := newFakeWriter()

	const target uint64 = 0x2000
	c.RecordPendingPatch(target, blockcache.PatchJmp, 0x1000)

	c.Insert(target, blockcache.Descriptor{Entrypoint: 0x9999, Size: 16}, 0x2000, 0x2004, w)

	assert.Equal(t, uintptr(0x9999), w.jmp[0x1000])

	d, ok := c.GetBasicBlock(target)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x9999), d.Entrypoint)
}

func TestInvalidateCacheRangesUnpatchesAndRemoves(t *testing.T) {
	c := blockcache.New(nil)
	w := newFakeWriter()

	const descX uint64 = 0x1000
	const descY uint64 = 0x2000
	c.Insert(descX, blockcache.Descriptor{Entrypoint: 0xAAAA}, 0x1000, 0x1004, w)
	c.Insert(descY, blockcache.Descriptor{Entrypoint: 0xBBBB}, 0x2000, 0x2004, w)

	c.RecordPendingPatch(descY, blockcache.PatchJmp, 0x5000)
	// Simulate a later link having already been patched to descY's entrypoint.
	w.WriteJmp(0x5000, 0xBBBB)

	c.InvalidateCacheRanges([]struct{ Lo, Hi uint64 }{{Lo: 0x2000, Hi: 0x2004}}, w)

	_, ok := c.GetBasicBlock(descY)
	assert.False(t, ok)
	_, ok = c.GetBasicBlock(descX)
	assert.True(t, ok, "non-overlapping descriptor must survive invalidation")
	assert.Equal(t, w.stub, w.jmp[0x5000], "patch site must be rewritten to the dispatch stub")
}

func TestFastDispatchClearHookFiresOnInvalidate(t *testing.T) {
	var cleared []uint64
	c := blockcache.New(func(desc uint64) { cleared = append(cleared, desc) })
	w := newFakeWriter()

	c.Insert(0x3000, blockcache.Descriptor{Entrypoint: 1}, 0x3000, 0x3004, w)
	c.InvalidateCacheRanges([]struct{ Lo, Hi uint64 }{{Lo: 0x3000, Hi: 0x3004}}, w)

	require.Len(t, cleared, 1)
	assert.Equal(t, uint64(0x3000), cleared[0])
}

func TestClearCacheEmptiesEverything(t *testing.T) {
	c := blockcache.New(nil)
	w := newFakeWriter()
	c.Insert(0x4000, blockcache.Descriptor{Entrypoint: 1}, 0x4000, 0x4004, w)

	c.ClearCache()

	_, ok := c.GetBasicBlock(0x4000)
	assert.False(t, ok)
}
