package dispatch

import (
	"github.com/dynarmic-go/dynarmic/blockcache"
	"github.com/dynarmic-go/dynarmic/jitstate"
)

// Translator lifts a location descriptor into an emitted block, the one
// entry point Dispatcher needs from the recompilation pipeline.
type Translator interface {
	Translate(desc uint64) (blockcache.Descriptor, error)
}

// Dispatcher drives the "guest PC -> cached code or retranslate" loop
// described in spec.md §2's data-flow sentence, tying together the block
// cache, the Return Stack Buffer, and the optional fast-dispatch table.
type Dispatcher struct {
	cache        *blockcache.Cache
	fastDispatch *FastDispatch
	translator   Translator
	opts         jitstate.OptimizationFlag
}

// New builds a Dispatcher. fastDispatch may be nil if
// jitstate.OptFastDispatch is not set.
func New(cache *blockcache.Cache, fastDispatch *FastDispatch, translator Translator, opts jitstate.OptimizationFlag) *Dispatcher {
	return &Dispatcher{cache: cache, fastDispatch: fastDispatch, translator: translator, opts: opts}
}

// Resolve returns the entrypoint for desc: a fast-dispatch hit, else a
// block-cache hit (installing it into fast-dispatch for next time), else a
// fresh translation.
func (d *Dispatcher) Resolve(desc uint64) (uintptr, error) {
	if d.opts.Has(jitstate.OptFastDispatch) && d.fastDispatch != nil {
		if entry, ok := d.fastDispatch.Lookup(desc); ok {
			return entry, nil
		}
	}

	if bd, ok := d.cache.GetBasicBlock(desc); ok {
		if d.opts.Has(jitstate.OptFastDispatch) && d.fastDispatch != nil {
			d.fastDispatch.Install(desc, bd.Entrypoint)
		}
		return bd.Entrypoint, nil
	}

	bd, err := d.translator.Translate(desc)
	if err != nil {
		return 0, err
	}
	if d.opts.Has(jitstate.OptFastDispatch) && d.fastDispatch != nil {
		d.fastDispatch.Install(desc, bd.Entrypoint)
	}
	return bd.Entrypoint, nil
}

// PopRSBHint implements the PopRSBHint terminal's runtime behavior: pop the
// RSB; if the popped descriptor matches expected, return its code pointer
// (a hit bypasses the block lookup, spec.md Testable Property 9); otherwise
// fall through to a full Resolve.
func (d *Dispatcher) PopRSBHint(st *jitstate.State, expected uint64) (uintptr, error) {
	if e, ok := st.PopRSB(); ok && e.LocationDescriptor == expected {
		return e.CodePtr, nil
	}
	return d.Resolve(expected)
}

// InvalidateCacheRanges un-patches and drops every descriptor overlapping
// rs, via the cache's own invalidation, and zeroes the matching
// fast-dispatch slots (the Cache's onFastDispatchInvalidate hook, wired by
// the caller that constructed it, already does the latter when the hook
// was set to FastDispatch.Invalidate).
func (d *Dispatcher) InvalidateCacheRanges(rs []struct{ Lo, Hi uint64 }, w blockcache.PatchWriter) {
	d.cache.InvalidateCacheRanges(rs, w)
}
