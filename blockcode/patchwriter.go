package blockcode

import "github.com/dynarmic-go/dynarmic/blockcache"

// x86 near-jump and mov-immediate encoding widths this writer assumes for
// each blockcache.PatchKind. emit/terminal.go's emitLinkBlock family emits
// an unresolved TYPE_BRANCH and leaves the encoding choice to golang-asm;
// nothing pins these widths at emission time:
//   - PatchJg:     0F 8F rel32        (6 bytes, near JG)
//   - PatchJmp:    E9 rel32           (5 bytes, near JMP)
//   - PatchMovRcx: 48 B9 imm64        (10 bytes, MOVABS RCX, imm64)
const (
	jgPatchSize  = 6
	jmpPatchSize = 5
	movPatchSize = 10
)

// Writer adapts a BlockOfCode into a blockcache.PatchWriter, rewriting the
// near-jump/mov-immediate bytes golang-asm laid down for an unresolved
// cross-block link once the link's target address is finally known (spec.md
// §4.5 "Patch sites"). site/target are absolute host addresses; stub is
// where an un-patched (ptr == 0) site should point instead, per
// blockcache.Cache's "reused with ptr == 0 to un-patch" contract.
type Writer struct {
	Code *BlockOfCode
	Stub uintptr
}

func (w *Writer) ReturnToDispatchStub() uintptr { return w.Stub }

// WriteJg overwrites a near-conditional-jump site with a displacement to
// target, computed relative to the byte immediately following the
// instruction (x86's rip-relative convention for jumps).
func (w *Writer) WriteJg(site, target uintptr) {
	w.writeRel32(site, target, jgPatchSize, 2) // opcode is 2 bytes: 0F 8F
}

func (w *Writer) WriteJmp(site, target uintptr) {
	w.writeRel32(site, target, jmpPatchSize, 1) // opcode is 1 byte: E9
}

func (w *Writer) writeRel32(site, target uintptr, size int, opcodeLen int) {
	off := int(site - w.Code.Base())
	rel := int32(int64(target) - int64(site+uintptr(size)))
	w.Code.Patch(off, func() {
		w.Code.SetCodePtr(off + opcodeLen)
		w.Code.WriteU32(uint32(rel))
	})
}

// WriteMovRcx overwrites a MOVABS RCX, imm64 site's 8-byte immediate with
// target, used to populate the RSB's saved return address.
func (w *Writer) WriteMovRcx(site, target uintptr) {
	off := int(site - w.Code.Base())
	w.Code.Patch(off, func() {
		w.Code.SetCodePtr(off + 2) // opcode is 2 bytes: 48 B9
		w.Code.WriteU64(uint64(target))
	})
}

var _ blockcache.PatchWriter = (*Writer)(nil)
