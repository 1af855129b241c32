package except_test

import (
	"testing"

	"github.com/dynarmic-go/dynarmic/except"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKnownSiteScenarioC(t *testing.T) {
	var recompiled []uint64
	h := except.New(func(marker uint64) { recompiled = append(recompiled, marker) })

	h.AddSite(except.FastmemPatchInfo{
		FaultRip:           0x1000,
		ResumeRip:          0x1010,
		CallbackRip:        0x2000,
		SiteMarker:         42,
		RecompileOnFailure: true,
	})

	cb, resume, recompile, ok := h.Resolve(0x1000)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x2000), cb)
	assert.Equal(t, uintptr(0x1010), resume)
	assert.True(t, recompile)
	require.Len(t, recompiled, 1)
	assert.Equal(t, uint64(42), recompiled[0])
}

func TestResolveUnknownSiteMisses(t *testing.T) {
	h := except.New(nil)
	_, _, _, ok := h.Resolve(0xFFFF)
	assert.False(t, ok)
}

func TestRemoveSitesForBlockDropsInRangeEntries(t *testing.T) {
	h := except.New(nil)
	h.AddSite(except.FastmemPatchInfo{FaultRip: 0x1000})
	h.AddSite(except.FastmemPatchInfo{FaultRip: 0x2000})

	h.RemoveSitesForBlock(0x1000, 0x100)

	_, ok := h.Lookup(0x1000)
	assert.False(t, ok)
	_, ok = h.Lookup(0x2000)
	assert.True(t, ok)
}
