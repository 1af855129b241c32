package locdesc_test

import (
	"testing"

	"github.com/dynarmic-go/dynarmic/locdesc"
	"github.com/stretchr/testify/assert"
)

func TestDescriptorRoundTrip(t *testing.T) {
	d := locdesc.New(0xDEAD_BEEF, locdesc.FlagThumb|locdesc.FlagBigEndian)
	assert.Equal(t, uint32(0xDEAD_BEEF), d.PC())
	assert.True(t, d.Thumb())
	assert.True(t, d.BigEndian())
	assert.False(t, d.SingleStep())
}

func TestWithSingleStepDoesNotMutateOriginal(t *testing.T) {
	base := locdesc.New(4, 0)
	stepped := base.WithSingleStep()

	assert.False(t, base.SingleStep())
	assert.True(t, stepped.SingleStep())
	assert.Equal(t, base.PC(), stepped.PC())
	assert.False(t, base.Equal(stepped))
}

func TestEndUpperClearsSingleStep(t *testing.T) {
	a := locdesc.New(8, locdesc.FlagThumb)
	b := a.WithSingleStep()

	assert.Equal(t, a.EndUpper(), b.EndUpper())
}

func TestHashDeterministic(t *testing.T) {
	a := locdesc.New(0x1000, locdesc.FlagThumb)
	b := locdesc.New(0x1000, locdesc.FlagThumb)
	c := locdesc.New(0x1004, locdesc.FlagThumb)

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
}
