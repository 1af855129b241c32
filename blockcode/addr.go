package blockcode

import "unsafe"

// addrOf returns the address of a byte slice's backing array. Kept as its
// own tiny file so the unsafe import stays easy to audit in isolation.
func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
