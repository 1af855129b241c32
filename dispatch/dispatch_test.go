package dispatch_test

import (
	"errors"
	"testing"

	"github.com/dynarmic-go/dynarmic/blockcache"
	"github.com/dynarmic-go/dynarmic/dispatch"
	"github.com/dynarmic-go/dynarmic/jitstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTranslator struct {
	calls int
	entry uintptr
}

func (c *countingTranslator) Translate(desc uint64) (blockcache.Descriptor, error) {
	c.calls++
	return blockcache.Descriptor{Entrypoint: c.entry}, nil
}

func TestResolveTranslatesOnceThenCaches(t *testing.T) {
	fd := dispatch.NewFastDispatch(4)
	cache := blockcache.New(fd.Invalidate)
	tr := &countingTranslator{entry: 0xABCD}
	d := dispatch.New(cache, fd, tr, jitstate.OptFastDispatch)

	e1, err := d.Resolve(0x1000)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0xABCD), e1)
	assert.Equal(t, 1, tr.calls)

	// A real pipeline would Insert the translated block into the cache;
	// simulate that here since Translate itself doesn't.
	w := &stubWriter{}
	cache.Insert(0x1000, blockcache.Descriptor{Entrypoint: 0xABCD}, 0x1000, 0x1004, w)

	e2, err := d.Resolve(0x1000)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0xABCD), e2)
}

func TestPopRSBHintHitBypassesResolve(t *testing.T) {
	fd := dispatch.NewFastDispatch(4)
	cache := blockcache.New(fd.Invalidate)
	tr := &countingTranslator{entry: 1}
	d := dispatch.New(cache, fd, tr, 0)

	st := jitstate.New()
	st.PushRSB(0x2000, 0x7777)

	entry, err := d.PopRSBHint(st, 0x2000)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x7777), entry)
	assert.Equal(t, 0, tr.calls, "RSB hit must not trigger translation")
}

func TestPopRSBHintMismatchFallsThroughToResolve(t *testing.T) {
	fd := dispatch.NewFastDispatch(4)
	cache := blockcache.New(fd.Invalidate)
	tr := &countingTranslator{entry: 0x55}
	d := dispatch.New(cache, fd, tr, 0)

	st := jitstate.New()
	st.PushRSB(0x3000, 0x1111)

	entry, err := d.PopRSBHint(st, 0x4000)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x55), entry)
	assert.Equal(t, 1, tr.calls)
}

func TestTranslateErrorPropagates(t *testing.T) {
	cache := blockcache.New(nil)
	d := dispatch.New(cache, nil, translatorFunc(func(uint64) (blockcache.Descriptor, error) {
		return blockcache.Descriptor{}, errors.New("decode failed")
	}), 0)

	_, err := d.Resolve(0x9999)
	assert.Error(t, err)
}

type translatorFunc func(uint64) (blockcache.Descriptor, error)

func (f translatorFunc) Translate(desc uint64) (blockcache.Descriptor, error) { return f(desc) }

type stubWriter struct{}

func (stubWriter) WriteJg(uintptr, uintptr)     {}
func (stubWriter) WriteJmp(uintptr, uintptr)    {}
func (stubWriter) WriteMovRcx(uintptr, uintptr) {}
func (stubWriter) ReturnToDispatchStub() uintptr { return 0 }
