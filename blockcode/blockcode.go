// Package blockcode manages the single, contiguous, page-aligned,
// executable-writable region of host memory that holds every emitted
// block: a "near" arena for hot, sequentially emitted code and a "far"
// arena for slow paths, plus a constant pool and the one-time prelude.
//
// This mirrors std/compiler/backend.go's CodeGen byte-buffer-plus-fixups
// design, generalized from "assemble one ELF file, once" to "keep growing
// an in-process RWX buffer, flip it read-execute between emission bursts,
// and patch individual sites later".
package blockcode

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	defaultSize = 128 * 1024 * 1024
	pageSize    = 4096
)

// BlockOfCode owns one mmap'd RWX region, split into a near (hot) arena and
// a far (cold) arena that starts at the midpoint and grows upward.
type BlockOfCode struct {
	mem []byte

	nearCursor int
	farCursor  int
	farTop     int // far arena starts here and grows upward from it

	writingFar  bool
	farStack    []bool // SwitchToFarCode/SwitchToNearCode nesting

	preludeDone bool
	writable    bool

	constPool map[string]int // dedup key -> offset into the far arena's tail

	perfMapEnabled bool
	perfMapEntries []perfMapEntry
}

type perfMapEntry struct {
	addr uintptr
	size int
	name string
}

// New allocates a BlockOfCode with the default size (128 MiB), split evenly
// between near and far arenas.
func New() (*BlockOfCode, error) {
	return NewSize(defaultSize)
}

// NewSize allocates a BlockOfCode backed by size bytes of RWX memory.
func NewSize(size int) (*BlockOfCode, error) {
	size = alignUp(size, pageSize)
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "blockcode: mmap executable region")
	}
	half := size / 2
	return &BlockOfCode{
		mem:      mem,
		farTop:   half,
		farCursor: half,
		writable: true,
		constPool: make(map[string]int),
	}, nil
}

// Close releases the underlying memory mapping.
func (b *BlockOfCode) Close() error {
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Base returns the host address of the start of the code region.
func (b *BlockOfCode) Base() uintptr {
	return uintptr(addrOf(b.mem))
}

// SwitchToFarCode begins (or resumes, if nested) emission into the far
// arena. Pair with SwitchToNearCode.
func (b *BlockOfCode) SwitchToFarCode() {
	b.farStack = append(b.farStack, b.writingFar)
	b.writingFar = true
}

// SwitchToNearCode pops back to whatever emission mode (near or far) was
// active before the matching SwitchToFarCode.
func (b *BlockOfCode) SwitchToNearCode() {
	if len(b.farStack) == 0 {
		b.writingFar = false
		return
	}
	n := len(b.farStack) - 1
	b.writingFar = b.farStack[n]
	b.farStack = b.farStack[:n]
}

// cursor returns a pointer to whichever cursor (near or far) is currently
// active.
func (b *BlockOfCode) cursor() *int {
	if b.writingFar {
		return &b.farCursor
	}
	return &b.nearCursor
}

// CodePtr returns the current write position as an absolute host address.
func (b *BlockOfCode) CodePtr() uintptr {
	return b.Base() + uintptr(*b.cursor())
}

// Offset returns the current write position as an offset from Base.
func (b *BlockOfCode) Offset() int {
	return *b.cursor()
}

// SetCodePtr temporarily relocates the active cursor to off, for
// overwriting a previously recorded site. Callers must restore the cursor
// themselves (see WithSavedCursor) — mirrors the teacher's SetCodePtr
// contract in spec.md §4.2.
func (b *BlockOfCode) SetCodePtr(off int) {
	*b.cursor() = off
}

// WithSavedCursor runs fn with the active cursor temporarily relocated to
// off, restoring the original position (and write-protection state)
// afterwards regardless of how fn returns.
func (b *BlockOfCode) WithSavedCursor(off int, fn func()) {
	saved := *b.cursor()
	wasWritable := b.writable
	if !wasWritable {
		b.EnableWriting()
	}
	defer func() {
		*b.cursor() = saved
		if !wasWritable {
			b.DisableWriting()
		}
	}()
	*b.cursor() = off
	fn()
}

// WriteByte appends one byte at the active cursor.
func (b *BlockOfCode) WriteByte(v byte) {
	c := b.cursor()
	b.mem[*c] = v
	*c++
}

// WriteBytes appends bs at the active cursor.
func (b *BlockOfCode) WriteBytes(bs ...byte) {
	for _, v := range bs {
		b.WriteByte(v)
	}
}

// WriteU32 appends a little-endian 32-bit value.
func (b *BlockOfCode) WriteU32(v uint32) {
	b.WriteBytes(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// WriteU64 appends a little-endian 64-bit value.
func (b *BlockOfCode) WriteU64(v uint64) {
	b.WriteU32(uint32(v))
	b.WriteU32(uint32(v >> 32))
}

// Emit copies an already-assembled instruction stream (as produced by
// emit.Emitter.EmitBlock) to the active cursor and returns the offset it
// was placed at, so the caller can turn emit.PatchSite.Offset() values into
// absolute host addresses.
func (b *BlockOfCode) Emit(code []byte) int {
	start := b.Offset()
	b.WriteBytes(code...)
	return start
}

// EnsurePatchLocationSize asserts that the bytes written since start are at
// most n; if fewer, the remainder is padded with 0x90 (NOP) so a later
// Patch can always rewrite exactly n bytes starting at start without
// disturbing surrounding code (spec.md §4.2, §4.4 "Patch slots").
func (b *BlockOfCode) EnsurePatchLocationSize(start int, n int) {
	written := b.Offset() - start
	if written > n {
		panic(fmt.Sprintf("blockcode: patch site overflowed: wrote %d bytes, budget was %d", written, n))
	}
	for written < n {
		b.WriteByte(0x90)
		written++
	}
}

// Patch overwrites the n bytes starting at off with the result of calling
// fn with the cursor relocated there. The caller is responsible for
// writing exactly n bytes (typically by calling EnsurePatchLocationSize(
// off, n) inside fn, or by construction since the site was originally
// fixed-size).
func (b *BlockOfCode) Patch(off int, fn func()) {
	b.WithSavedCursor(off, fn)
}

// PreludeComplete records the end of the one-time prelude. After this
// point, code is flipped to execute-only (read+exec, no write) by default
// between emission bursts.
func (b *BlockOfCode) PreludeComplete() {
	b.preludeDone = true
	b.DisableWriting()
}

// EnableWriting flips the region's protection to read+write+exec so new
// code or patches can be written. (Using RWX throughout — rather than
// toggling W xor X — keeps patch sites writable without a second mapping;
// production dynarmic-style implementations would use two mappings of the
// same physical pages to satisfy W^X, which is a platform-specific
// plumbing concern spec.md §1 marks out of scope.)
func (b *BlockOfCode) EnableWriting() {
	if b.writable {
		return
	}
	unix.Mprotect(b.mem, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC)
	b.writable = true
}

// DisableWriting flips the region back to read+exec only.
func (b *BlockOfCode) DisableWriting() {
	if !b.writable {
		return
	}
	unix.Mprotect(b.mem, unix.PROT_READ|unix.PROT_EXEC)
	b.writable = false
}
