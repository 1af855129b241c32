// Package except implements the decision logic behind the OS-signal-driven
// fastmem fallback: the lookup from a faulting rip at a known fastmem site
// to the slow-path callback and resume addresses (spec.md §4.6, §5
// "Signal handler"). It does not install a SIGSEGV handler itself.
package except

import "sync"

// FastmemPatchInfo records what to do when a SIGSEGV lands at a known
// fastmem access site (spec.md §6 "Fastmem-patch table").
type FastmemPatchInfo struct {
	FaultRip           uintptr
	ResumeRip          uintptr
	CallbackRip        uintptr
	SiteMarker         uint64
	RecompileOnFailure bool
}

// Handler is the process-wide fastmem fault decision logic: given a
// faulting instruction pointer, it answers what a SIGSEGV handler should do
// about it. Installing an actual SA_SIGINFO trampoline that can resume
// execution at an arbitrary rip is platform assembly the host Go runtime
// does not expose safely (spec.md §1 lists "platform OS-signal plumbing for
// fastmem" as an explicit external collaborator, out of scope for this
// core); Handler is the part of that plumbing the core does own — the
// lookup table and the resume/callback decision — ready to be wired to
// whatever trampoline a given deployment provides.
type Handler struct {
	mu    sync.RWMutex
	sites map[uintptr]FastmemPatchInfo

	onRecompile func(siteMarker uint64)
}

// New returns a Handler with no registered sites. onRecompile, if non-nil,
// is invoked synchronously from Resolve whenever a resolved site has
// RecompileOnFailure set, so the owning block can be invalidated and
// retranslated with a safer access form.
func New(onRecompile func(siteMarker uint64)) *Handler {
	return &Handler{sites: make(map[uintptr]FastmemPatchInfo), onRecompile: onRecompile}
}

// AddSite registers a fastmem access site discovered during emission.
func (h *Handler) AddSite(info FastmemPatchInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sites[info.FaultRip] = info
}

// RemoveSitesForBlock drops every site whose FaultRip falls in
// [blockStart, blockStart+blockSize), called when a block is invalidated
// so stale entries can't be looked up against freed code.
func (h *Handler) RemoveSitesForBlock(blockStart uintptr, blockSize int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for rip := range h.sites {
		if rip >= blockStart && rip < blockStart+uintptr(blockSize) {
			delete(h.sites, rip)
		}
	}
}

// Lookup finds the FastmemPatchInfo for a faulting rip, if any. This is the
// read path a real signal handler would call; it never allocates.
func (h *Handler) Lookup(rip uintptr) (FastmemPatchInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info, ok := h.sites[rip]
	return info, ok
}

// Resolve computes the (callbackRip, resumeRip) pair a real signal handler
// would rewrite the interrupted register-save frame to use, and reports
// whether the owning block should be scheduled for recompilation onto a
// safer access form. The actual ucontext_t rewriting is platform assembly
// outside what pure Go can express portably and is therefore left to the
// runtime integration layer; this is the decision logic spec.md asks the
// handler to apply.
func (h *Handler) Resolve(faultRip uintptr) (callbackRip, resumeRip uintptr, recompile bool, ok bool) {
	info, found := h.Lookup(faultRip)
	if !found {
		return 0, 0, false, false
	}
	if info.RecompileOnFailure && h.onRecompile != nil {
		h.onRecompile(info.SiteMarker)
	}
	return info.CallbackRip, info.ResumeRip, info.RecompileOnFailure, true
}
