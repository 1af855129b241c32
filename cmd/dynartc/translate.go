package main

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/dynarmic-go/dynarmic/blockcache"
	"github.com/dynarmic-go/dynarmic/blockcode"
	"github.com/dynarmic-go/dynarmic/emit"
	"github.com/dynarmic-go/dynarmic/except"
	"github.com/dynarmic-go/dynarmic/ir"
	"github.com/dynarmic-go/dynarmic/jitstate"
	"github.com/dynarmic-go/dynarmic/locdesc"
)

// BlockBuilder hand-assembles one ir.Block for a given location descriptor,
// standing in for a real A32/Thumb/A64 decoder (SPEC_FULL.md §7 "no real
// decoder"; dynarmic's own unit tests build blocks the same way).
type BlockBuilder func(desc locdesc.Descriptor) *ir.Block

// Translator drives a block through the full pipeline this project builds:
// optimize, allocate, emit, copy into the code buffer, and record it in the
// cache. It implements dispatch.Translator.
type Translator struct {
	Code    *blockcode.BlockOfCode
	Cache   *blockcache.Cache
	Writer  *blockcode.Writer
	Config  *jitstate.Config
	Build   BlockBuilder
	DumpIR  bool

	// Handler, if non-nil, receives an except.FastmemPatchInfo for every
	// fastmem access site emitted, once this translation's bytes have a
	// final host address (spec.md §4.6 "Fastmem-patch table"). The
	// embedder's own signal handler is what actually calls into it; this
	// project only owns the lookup/decision logic (see except.Handler).
	Handler *except.Handler

	emitter *emit.Emitter

	// Stats accumulates a one-line report per translated block, in
	// translation order, for the CLI to print at the end of a run.
	Stats []BlockStats
}

// BlockStats summarizes one translated block for reporting.
type BlockStats struct {
	Desc       locdesc.Descriptor
	Bytes      int
	Patches    int
	Pending    int
	Fastmem    int
	Cycles     int
	Entrypoint uintptr
}

// NewTranslator wires an Emitter against code and config.
func NewTranslator(code *blockcode.BlockOfCode, cache *blockcache.Cache, w *blockcode.Writer, config *jitstate.Config, build BlockBuilder) *Translator {
	return &Translator{
		Code:    code,
		Cache:   cache,
		Writer:  w,
		Config:  config,
		Build:   build,
		emitter: emit.NewEmitter(code, config),
	}
}

// Translate implements dispatch.Translator: decode (here, synthesize),
// optimize, allocate registers, emit host code, place it in the code
// buffer, and insert the result into the block cache.
func (t *Translator) Translate(desc uint64) (blockcache.Descriptor, error) {
	ld := locdesc.Descriptor(desc)
	block := t.Build(ld)
	if block == nil {
		return blockcache.Descriptor{}, errors.Errorf("dynartc: no synthetic block registered for descriptor %#x", desc)
	}

	if errs := ir.Verify(block); len(errs) > 0 {
		return blockcache.Descriptor{}, errors.Errorf("dynartc: ir.Verify failed for %#x: %v", desc, errs)
	}
	ir.FoldConstants(block)
	ir.RemoveIdentities(block)
	ir.EliminateDeadCode(block)

	if t.DumpIR {
		fmt.Printf("--- IR for %#x ---\n%s\n", desc, block.String())
	}

	res, err := t.emitter.EmitBlock(block)
	if err != nil {
		return blockcache.Descriptor{}, errors.Wrapf(err, "dynartc: emitting block %#x", desc)
	}

	t.Code.EnableWriting()
	entryOff := t.Code.Emit(res.Bytes)
	t.Code.DisableWriting()

	d := blockcache.Descriptor{
		Entrypoint: t.Code.Base() + uintptr(entryOff),
		Size:       len(res.Bytes),
	}

	pending := 0
	for _, p := range res.Patches {
		site := d.Entrypoint + uintptr(p.Offset())
		if target, ok := t.Cache.GetBasicBlock(p.Target); ok {
			t.patchOne(p.Kind, site, target.Entrypoint)
			continue
		}
		t.Cache.RecordPendingPatch(p.Target, p.Kind, site)
		pending++
	}

	if t.Handler != nil {
		for _, fs := range res.FastmemSites {
			t.Handler.AddSite(except.FastmemPatchInfo{
				FaultRip:           d.Entrypoint + uintptr(fs.FaultOffset()),
				ResumeRip:          d.Entrypoint + uintptr(fs.ResumeOffset()),
				CallbackRip:        d.Entrypoint + uintptr(fs.CallbackOffset()),
				SiteMarker:         desc,
				RecompileOnFailure: fs.Recompile,
			})
		}
	}

	t.Cache.Insert(desc, d, uint64(ld.PC()), uint64(ld.PC())+1, t.Writer)

	t.Stats = append(t.Stats, BlockStats{
		Desc:       ld,
		Bytes:      len(res.Bytes),
		Patches:    len(res.Patches),
		Pending:    pending,
		Fastmem:    len(res.FastmemSites),
		Cycles:     res.Cycles,
		Entrypoint: d.Entrypoint,
	})
	return d, nil
}

func (t *Translator) patchOne(kind blockcache.PatchKind, site, target uintptr) {
	switch kind {
	case blockcache.PatchJg:
		t.Writer.WriteJg(site, target)
	case blockcache.PatchJmp:
		t.Writer.WriteJmp(site, target)
	case blockcache.PatchMovRcx:
		t.Writer.WriteMovRcx(site, target)
	}
}
