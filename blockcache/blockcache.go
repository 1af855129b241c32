// Package blockcache maps location descriptors to emitted host code, and
// tracks the pending/resolved patch sites that link blocks together
// (spec.md §3 "BlockCache"/"PatchInformation", §4.5).
package blockcache

// Descriptor is the emitted-block record: where its entrypoint lives and
// how large it is, plus an optional far-code entrypoint for out-of-line
// emission.
type Descriptor struct {
	Entrypoint    uintptr
	Size          int
	FarEntrypoint uintptr
}

// PatchKind distinguishes the three patch-site shapes spec.md §3 names.
type PatchKind int

const (
	// PatchJg is a signed-greater jump from a LinkBlock cycle check.
	PatchJg PatchKind = iota
	// PatchJmp is an unconditional jump from a LinkBlockFast.
	PatchJmp
	// PatchMovRcx is a mov-immediate slot populating an RSB code pointer.
	PatchMovRcx
)

// PatchInfo tracks every host-code site, across every block, that jumps (or
// loads the address of) a given target location descriptor but was emitted
// before that target existed. Created lazily; Patch rewrites every site at
// once when the target finally appears; the same structure is reused with
// ptr == 0 to un-patch on invalidation.
type PatchInfo struct {
	Jg     []uintptr
	Jmp    []uintptr
	MovRcx []uintptr
}

func (p *PatchInfo) add(kind PatchKind, site uintptr) {
	switch kind {
	case PatchJg:
		p.Jg = append(p.Jg, site)
	case PatchJmp:
		p.Jmp = append(p.Jmp, site)
	case PatchMovRcx:
		p.MovRcx = append(p.MovRcx, site)
	}
}

func (p *PatchInfo) sites(kind PatchKind) []uintptr {
	switch kind {
	case PatchJg:
		return p.Jg
	case PatchJmp:
		return p.Jmp
	case PatchMovRcx:
		return p.MovRcx
	default:
		return nil
	}
}

// rangeEntry backs the secondary guest-address-range index used for
// self-modifying-code invalidation.
type rangeEntry struct {
	lo, hi uint64 // half-open [lo, hi)
	desc   uint64 // location descriptor
}

// PatchWriter is the narrow interface the cache needs from the code buffer
// to rewrite a patch site: write bytes for a real jump/mov target, or
// "unpatch" to a stub that safely re-enters the dispatcher.
type PatchWriter interface {
	WriteJg(site uintptr, target uintptr)
	WriteJmp(site uintptr, target uintptr)
	WriteMovRcx(site uintptr, target uintptr)
	ReturnToDispatchStub() uintptr
}

// Cache is the location-descriptor-to-block map plus its patch graph and
// range index (spec.md §3 "BlockCache").
type Cache struct {
	blocks  map[uint64]Descriptor
	pending map[uint64]*PatchInfo // target desc -> sites awaiting that target
	ranges  []rangeEntry

	fastDispatchClear func(desc uint64)
}

// New returns an empty Cache. onFastDispatchInvalidate, if non-nil, is
// called for every descriptor removed by InvalidateCacheRanges so the
// dispatch package's fast-dispatch table can zero its matching slot.
func New(onFastDispatchInvalidate func(desc uint64)) *Cache {
	return &Cache{
		blocks:            make(map[uint64]Descriptor),
		pending:           make(map[uint64]*PatchInfo),
		fastDispatchClear: onFastDispatchInvalidate,
	}
}

// GetBasicBlock is a plain map lookup (spec.md §4.5 "Lookup").
func (c *Cache) GetBasicBlock(desc uint64) (Descriptor, bool) {
	d, ok := c.blocks[desc]
	return d, ok
}

// RecordPendingPatch registers a not-yet-resolvable patch site: emission
// referenced target before target was translated.
func (c *Cache) RecordPendingPatch(target uint64, kind PatchKind, site uintptr) {
	pi, ok := c.pending[target]
	if !ok {
		pi = &PatchInfo{}
		c.pending[target] = pi
	}
	pi.add(kind, site)
}

// Insert records a freshly emitted block under desc, resolves any patch
// sites that were waiting on it, and adds its guest-address range to the
// range index (spec.md §4.5 "Insertion").
func (c *Cache) Insert(desc uint64, d Descriptor, guestLo, guestHi uint64, w PatchWriter) {
	c.blocks[desc] = d
	c.ranges = append(c.ranges, rangeEntry{lo: guestLo, hi: guestHi, desc: desc})

	if pi, ok := c.pending[desc]; ok {
		c.applyPatch(pi, d.Entrypoint, w)
	}
}

// Patch rewrites every recorded site in pi to target ptr. ptr == 0
// un-patches: every site is rewritten to the dispatcher stub instead
// (spec.md §3 "the same structure is reused with ptr = null to un-patch").
func (c *Cache) Patch(pi *PatchInfo, ptr uintptr, w PatchWriter) {
	c.applyPatch(pi, ptr, w)
}

func (c *Cache) applyPatch(pi *PatchInfo, ptr uintptr, w PatchWriter) {
	target := ptr
	if target == 0 {
		target = w.ReturnToDispatchStub()
	}
	for _, site := range pi.Jg {
		w.WriteJg(site, target)
	}
	for _, site := range pi.Jmp {
		w.WriteJmp(site, target)
	}
	for _, site := range pi.MovRcx {
		w.WriteMovRcx(site, target)
	}
}

// InvalidateCacheRanges un-patches every recorded site of every descriptor
// whose guest-address range overlaps any range in rs, removes those
// descriptors from the cache, and notifies the fast-dispatch clear hook
// (spec.md §4.5 "Invalidation").
func (c *Cache) InvalidateCacheRanges(rs []struct{ Lo, Hi uint64 }, w PatchWriter) {
	var kept []rangeEntry
	for _, e := range c.ranges {
		hit := false
		for _, r := range rs {
			if e.lo < r.Hi && r.Lo < e.hi {
				hit = true
				break
			}
		}
		if !hit {
			kept = append(kept, e)
			continue
		}
		if pi, ok := c.pending[e.desc]; ok {
			c.applyPatch(pi, 0, w)
		}
		delete(c.blocks, e.desc)
		delete(c.pending, e.desc)
		if c.fastDispatchClear != nil {
			c.fastDispatchClear(e.desc)
		}
	}
	c.ranges = kept
}

// ClearCache empties every map and range entry. The code buffer's write
// cursor reset is the caller's responsibility (BlockOfCode owns that).
func (c *Cache) ClearCache() {
	c.blocks = make(map[uint64]Descriptor)
	c.pending = make(map[uint64]*PatchInfo)
	c.ranges = nil
}
