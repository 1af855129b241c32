// Package ir implements the typed, SSA-style intra-block intermediate
// representation: Value, Inst, Block and Terminal, plus the verification
// pass and the block-local optimization passes.
package ir

// Type is the closed set of IR types a Value can carry.
type Type int

const (
	TypeVoid Type = iota
	TypeU1
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeU128
	TypeNZCVFlags
	TypeCond
	TypeCoprocInfo
	TypeRegRef
	TypeAccessType
	// TypeOpaque matches anything; it is the return type of Identity.
	TypeOpaque
)

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "Void"
	case TypeU1:
		return "U1"
	case TypeU8:
		return "U8"
	case TypeU16:
		return "U16"
	case TypeU32:
		return "U32"
	case TypeU64:
		return "U64"
	case TypeU128:
		return "U128"
	case TypeNZCVFlags:
		return "NZCVFlags"
	case TypeCond:
		return "Cond"
	case TypeCoprocInfo:
		return "CoprocInfo"
	case TypeRegRef:
		return "RegRef"
	case TypeAccessType:
		return "AccessType"
	case TypeOpaque:
		return "Opaque"
	default:
		return "?"
	}
}

// AreTypesCompatible holds iff t1 and t2 are the same type or either is
// TypeOpaque (used pervasively by Identity).
func AreTypesCompatible(t1, t2 Type) bool {
	return t1 == t2 || t1 == TypeOpaque || t2 == TypeOpaque
}

// Cond is an ARM-style 4-bit condition code.
type Cond uint8

const (
	CondEQ Cond = iota
	CondNE
	CondCS
	CondCC
	CondMI
	CondPL
	CondVS
	CondVC
	CondHI
	CondLS
	CondGE
	CondLT
	CondGT
	CondLE
	CondAL
	CondNV
)
