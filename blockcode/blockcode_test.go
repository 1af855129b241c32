package blockcode_test

import (
	"testing"

	"github.com/dynarmic-go/dynarmic/blockcode"
	"github.com/stretchr/testify/require"
)

func TestWriteAndPatch(t *testing.T) {
	b, err := blockcode.NewSize(64 * 1024)
	require.NoError(t, err)
	defer b.Close()

	start := b.Offset()
	b.WriteBytes(0x90, 0x90, 0x90, 0x90)
	b.EnsurePatchLocationSize(start, 4)
	require.Equal(t, start+4, b.Offset())

	b.Patch(start, func() {
		b.WriteBytes(0xC3, 0x90, 0x90, 0x90)
		b.EnsurePatchLocationSize(start, 4)
	})
	require.Equal(t, start+4, b.Offset(), "patch must restore the cursor")
}

func TestEnsurePatchLocationSizeOverflowPanics(t *testing.T) {
	b, err := blockcode.NewSize(64 * 1024)
	require.NoError(t, err)
	defer b.Close()

	start := b.Offset()
	b.WriteBytes(1, 2, 3, 4, 5)
	require.Panics(t, func() {
		b.EnsurePatchLocationSize(start, 4)
	})
}

func TestNearFarAreIndependentCursors(t *testing.T) {
	b, err := blockcode.NewSize(64 * 1024)
	require.NoError(t, err)
	defer b.Close()

	nearStart := b.Offset()
	b.WriteBytes(1, 2, 3)

	b.SwitchToFarCode()
	farStart := b.Offset()
	b.WriteBytes(4, 5, 6, 7)
	b.SwitchToNearCode()

	require.Equal(t, nearStart+3, b.Offset())
	b.SwitchToFarCode()
	require.Equal(t, farStart+4, b.Offset())
	b.SwitchToNearCode()
}

func TestMConstDeduplicates(t *testing.T) {
	b, err := blockcode.NewSize(64 * 1024)
	require.NoError(t, err)
	defer b.Close()

	a := b.MConstU64(0xdeadbeef)
	c := b.MConstU64(0xdeadbeef)
	d := b.MConstU64(0x1)

	require.Equal(t, a, c)
	require.NotEqual(t, a, d)
}

func TestWritingProtectionToggles(t *testing.T) {
	b, err := blockcode.NewSize(64 * 1024)
	require.NoError(t, err)
	defer b.Close()

	b.PreludeComplete()
	b.EnableWriting()
	b.WriteByte(0x90)
	b.DisableWriting()
}
