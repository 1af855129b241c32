package blockcode

import "encoding/binary"

// MConst interns bytes into the far arena's constant pool and returns its
// offset from Base, suitable for RIP-relative addressing from emitted code.
// Identical byte patterns are deduplicated, mirroring the teacher's
// stringRodataMap dedup-by-content trick in std/compiler/backend.go.
func (b *BlockOfCode) MConst(bytes []byte) int {
	key := string(bytes)
	if off, ok := b.constPool[key]; ok {
		return off
	}
	b.SwitchToFarCode()
	defer b.SwitchToNearCode()
	off := b.Offset()
	b.WriteBytes(bytes...)
	b.constPool[key] = off
	return off
}

// MConstU64 interns a little-endian 64-bit constant.
func (b *BlockOfCode) MConstU64(v uint64) int {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return b.MConst(buf)
}

// MConstU128 interns a little-endian 128-bit constant (low qword, then high
// qword), used for vector-register immediates and masks.
func (b *BlockOfCode) MConstU128(lo, hi uint64) int {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], lo)
	binary.LittleEndian.PutUint64(buf[8:16], hi)
	return b.MConst(buf)
}
