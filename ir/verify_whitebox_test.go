package ir

import (
	"testing"

	"github.com/dynarmic-go/dynarmic/locdesc"
	"github.com/stretchr/testify/assert"
)

// TestVerifyDetectsUseCountMismatch exercises spec.md §8 testable property 1
// from inside the package, since the public API never lets a caller corrupt
// use_count directly — Verify exists precisely to catch the case where it
// happens anyway (a bug in an optimization pass, say).
func TestVerifyDetectsUseCountMismatch(t *testing.T) {
	b := NewBlock(locdesc.New(0, 0))
	a := b.Append(OpAdd32, ImmU32(1), ImmU32(2))
	b.Append(OpNot32, FromInst(a))

	a.useCount = 5 // simulate a bug that desynchronized the stored count

	errs := Verify(b)
	assert.NotEmpty(t, errs)
}

func TestVerifyDetectsBadPseudoOpBackref(t *testing.T) {
	b := NewBlock(locdesc.New(0, 0))
	a := b.Append(OpAdd32, ImmU32(1), ImmU32(2))
	other := b.Append(OpSub32, ImmU32(1), ImmU32(1))
	b.Append(OpGetNZCVFromOp, FromInst(a))

	a.nzcvInst = other // corrupt the back-pointer to point at the wrong consumer

	errs := Verify(b)
	assert.NotEmpty(t, errs)
}
