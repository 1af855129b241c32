package ir

// Opcode is the closed set of IR microinstructions. The master list here is
// deliberately a representative slice of the real system's "thousands of
// opcodes" (spec.md §1 marks the full per-opcode host template library out
// of scope) — enough to exercise every terminal, the register allocator,
// the block cache, and the full memory fast path end to end.
type Opcode int

const (
	OpVoid Opcode = iota

	// Identity forwards its sole argument's type and value; it is the
	// canonical rewrite target of ReplaceUsesWith.
	OpIdentity

	// Arithmetic / logical — also the GetNZCVFromOp whitelist (SPEC_FULL.md §9).
	OpAdd32
	OpAdd64
	OpSub32
	OpSub64
	OpAnd32
	OpAnd64
	OpOr32
	OpOr64
	OpEor32
	OpEor64
	OpNot32
	OpNot64

	// Shifts (IsShift() == true).
	OpLogicalShiftLeft32
	OpLogicalShiftRight32
	OpArithShiftRight32
	OpRotateRight32

	// Pseudo-ops: each names an auxiliary output of the Inst in args[0].
	OpGetCarryFromOp
	OpGetOverflowFromOp
	OpGetGEFromOp
	OpGetNZCVFromOp

	// CPSR/core register access.
	OpGetRegister
	OpSetRegister
	OpGetCpsr
	OpSetCpsr
	OpGetNZCVFromPackedFlags
	OpPackNZCVFlags

	// Memory access — widths are distinguished so each carries a fixed,
	// known access size (spec.md §4.6).
	OpReadMemory8
	OpReadMemory16
	OpReadMemory32
	OpReadMemory64
	OpWriteMemory8
	OpWriteMemory16
	OpWriteMemory32
	OpWriteMemory64
	OpExclusiveReadMemory8
	OpExclusiveReadMemory16
	OpExclusiveReadMemory32
	OpExclusiveReadMemory64
	OpExclusiveWriteMemory8
	OpExclusiveWriteMemory16
	OpExclusiveWriteMemory32
	OpExclusiveWriteMemory64
	OpClearExclusive

	opcodeCount
)

// sideEffect is a bitmask of the boolean predicates spec.md §4.1 requires
// every opcode to answer. Optimizations consult only these bits, never
// opcode identity.
type sideEffect uint32

const (
	seReadsCPSR sideEffect = 1 << iota
	seWritesCPSR
	seReadsFPSCR
	seWritesFPSCR
	seReadsCoreReg
	seWritesCoreReg
	seReadsSystemReg
	seWritesSystemReg
	seMayCauseException
	seAltersExclusiveState
	seIsCoprocessor
	seIsPseudoOp
	seIsShift
	seIsSharedMemoryRead
	seIsSharedMemoryWrite
	seIsExclusiveMemoryRead
	seIsExclusiveMemoryWrite
)

// opcodeInfo is the per-opcode metadata spec.md §4.1 calls the "generated
// master list annotated with return type, argument types, and side-effect
// bits".
type opcodeInfo struct {
	name    string
	ret     Type
	args    [3]Type
	arity   int
	effects sideEffect
}

var opcodeTable = [opcodeCount]opcodeInfo{
	OpVoid:     {name: "Void", ret: TypeVoid},
	OpIdentity: {name: "Identity", ret: TypeOpaque, args: [3]Type{TypeOpaque}, arity: 1},

	OpAdd32: {name: "Add32", ret: TypeU32, args: [3]Type{TypeU32, TypeU32}, arity: 2},
	OpAdd64: {name: "Add64", ret: TypeU64, args: [3]Type{TypeU64, TypeU64}, arity: 2},
	OpSub32: {name: "Sub32", ret: TypeU32, args: [3]Type{TypeU32, TypeU32}, arity: 2},
	OpSub64: {name: "Sub64", ret: TypeU64, args: [3]Type{TypeU64, TypeU64}, arity: 2},
	OpAnd32: {name: "And32", ret: TypeU32, args: [3]Type{TypeU32, TypeU32}, arity: 2},
	OpAnd64: {name: "And64", ret: TypeU64, args: [3]Type{TypeU64, TypeU64}, arity: 2},
	OpOr32:  {name: "Or32", ret: TypeU32, args: [3]Type{TypeU32, TypeU32}, arity: 2},
	OpOr64:  {name: "Or64", ret: TypeU64, args: [3]Type{TypeU64, TypeU64}, arity: 2},
	OpEor32: {name: "Eor32", ret: TypeU32, args: [3]Type{TypeU32, TypeU32}, arity: 2},
	OpEor64: {name: "Eor64", ret: TypeU64, args: [3]Type{TypeU64, TypeU64}, arity: 2},
	OpNot32: {name: "Not32", ret: TypeU32, args: [3]Type{TypeU32}, arity: 1},
	OpNot64: {name: "Not64", ret: TypeU64, args: [3]Type{TypeU64}, arity: 1},

	OpLogicalShiftLeft32:  {name: "LogicalShiftLeft32", ret: TypeU32, args: [3]Type{TypeU32, TypeU8}, arity: 2, effects: seIsShift},
	OpLogicalShiftRight32: {name: "LogicalShiftRight32", ret: TypeU32, args: [3]Type{TypeU32, TypeU8}, arity: 2, effects: seIsShift},
	OpArithShiftRight32:   {name: "ArithShiftRight32", ret: TypeU32, args: [3]Type{TypeU32, TypeU8}, arity: 2, effects: seIsShift},
	OpRotateRight32:       {name: "RotateRight32", ret: TypeU32, args: [3]Type{TypeU32, TypeU8}, arity: 2, effects: seIsShift},

	OpGetCarryFromOp:    {name: "GetCarryFromOp", ret: TypeU1, args: [3]Type{TypeOpaque}, arity: 1, effects: seIsPseudoOp},
	OpGetOverflowFromOp: {name: "GetOverflowFromOp", ret: TypeU1, args: [3]Type{TypeOpaque}, arity: 1, effects: seIsPseudoOp},
	OpGetGEFromOp:       {name: "GetGEFromOp", ret: TypeU32, args: [3]Type{TypeOpaque}, arity: 1, effects: seIsPseudoOp},
	OpGetNZCVFromOp:     {name: "GetNZCVFromOp", ret: TypeNZCVFlags, args: [3]Type{TypeOpaque}, arity: 1, effects: seIsPseudoOp},

	OpGetRegister: {name: "GetRegister", ret: TypeU64, args: [3]Type{TypeRegRef}, arity: 1, effects: seReadsCoreReg},
	OpSetRegister: {name: "SetRegister", ret: TypeVoid, args: [3]Type{TypeRegRef, TypeU64}, arity: 2, effects: seWritesCoreReg},
	OpGetCpsr:     {name: "GetCpsr", ret: TypeU32, effects: seReadsCPSR},
	OpSetCpsr:     {name: "SetCpsr", ret: TypeVoid, args: [3]Type{TypeU32}, arity: 1, effects: seWritesCPSR},

	OpGetNZCVFromPackedFlags: {name: "GetNZCVFromPackedFlags", ret: TypeNZCVFlags, args: [3]Type{TypeU32}, arity: 1, effects: seReadsCPSR},
	OpPackNZCVFlags:          {name: "PackNZCVFlags", ret: TypeU32, args: [3]Type{TypeNZCVFlags}, arity: 1},

	OpReadMemory8:  {name: "ReadMemory8", ret: TypeU8, args: [3]Type{TypeU64}, arity: 1, effects: seIsSharedMemoryRead | seMayCauseException},
	OpReadMemory16: {name: "ReadMemory16", ret: TypeU16, args: [3]Type{TypeU64}, arity: 1, effects: seIsSharedMemoryRead | seMayCauseException},
	OpReadMemory32: {name: "ReadMemory32", ret: TypeU32, args: [3]Type{TypeU64}, arity: 1, effects: seIsSharedMemoryRead | seMayCauseException},
	OpReadMemory64: {name: "ReadMemory64", ret: TypeU64, args: [3]Type{TypeU64}, arity: 1, effects: seIsSharedMemoryRead | seMayCauseException},

	OpWriteMemory8:  {name: "WriteMemory8", ret: TypeVoid, args: [3]Type{TypeU64, TypeU8}, arity: 2, effects: seIsSharedMemoryWrite | seMayCauseException},
	OpWriteMemory16: {name: "WriteMemory16", ret: TypeVoid, args: [3]Type{TypeU64, TypeU16}, arity: 2, effects: seIsSharedMemoryWrite | seMayCauseException},
	OpWriteMemory32: {name: "WriteMemory32", ret: TypeVoid, args: [3]Type{TypeU64, TypeU32}, arity: 2, effects: seIsSharedMemoryWrite | seMayCauseException},
	OpWriteMemory64: {name: "WriteMemory64", ret: TypeVoid, args: [3]Type{TypeU64, TypeU64}, arity: 2, effects: seIsSharedMemoryWrite | seMayCauseException},

	OpExclusiveReadMemory8:  {name: "ExclusiveReadMemory8", ret: TypeU8, args: [3]Type{TypeU64}, arity: 1, effects: seIsExclusiveMemoryRead | seAltersExclusiveState | seMayCauseException},
	OpExclusiveReadMemory16: {name: "ExclusiveReadMemory16", ret: TypeU16, args: [3]Type{TypeU64}, arity: 1, effects: seIsExclusiveMemoryRead | seAltersExclusiveState | seMayCauseException},
	OpExclusiveReadMemory32: {name: "ExclusiveReadMemory32", ret: TypeU32, args: [3]Type{TypeU64}, arity: 1, effects: seIsExclusiveMemoryRead | seAltersExclusiveState | seMayCauseException},
	OpExclusiveReadMemory64: {name: "ExclusiveReadMemory64", ret: TypeU64, args: [3]Type{TypeU64}, arity: 1, effects: seIsExclusiveMemoryRead | seAltersExclusiveState | seMayCauseException},

	OpExclusiveWriteMemory8:  {name: "ExclusiveWriteMemory8", ret: TypeU32, args: [3]Type{TypeU64, TypeU8}, arity: 2, effects: seIsExclusiveMemoryWrite | seAltersExclusiveState | seMayCauseException},
	OpExclusiveWriteMemory16: {name: "ExclusiveWriteMemory16", ret: TypeU32, args: [3]Type{TypeU64, TypeU16}, arity: 2, effects: seIsExclusiveMemoryWrite | seAltersExclusiveState | seMayCauseException},
	OpExclusiveWriteMemory32: {name: "ExclusiveWriteMemory32", ret: TypeU32, args: [3]Type{TypeU64, TypeU32}, arity: 2, effects: seIsExclusiveMemoryWrite | seAltersExclusiveState | seMayCauseException},
	OpExclusiveWriteMemory64: {name: "ExclusiveWriteMemory64", ret: TypeU32, args: [3]Type{TypeU64, TypeU64}, arity: 2, effects: seIsExclusiveMemoryWrite | seAltersExclusiveState | seMayCauseException},

	OpClearExclusive: {name: "ClearExclusive", ret: TypeVoid, effects: seAltersExclusiveState},
}

// nzcvWhitelist is the fixed, closed set of producers on which
// GetNZCVFromOp is sound (SPEC_FULL.md §9 / spec.md §9: "do not infer
// membership" — this is the single source of truth).
var nzcvWhitelist = map[Opcode]bool{
	OpAdd32: true, OpAdd64: true,
	OpSub32: true, OpSub64: true,
	OpAnd32: true, OpAnd64: true,
	OpOr32: true, OpOr64: true,
	OpEor32: true, OpEor64: true,
	OpNot32: true, OpNot64: true,
}

func (op Opcode) info() opcodeInfo {
	if op < 0 || int(op) >= len(opcodeTable) {
		panic("ir: opcode out of range")
	}
	return opcodeTable[op]
}

// Name returns the opcode's human-readable mnemonic.
func (op Opcode) Name() string { return op.info().name }

// Arity returns how many argument slots op declares.
func (op Opcode) Arity() int { return op.info().arity }

// ReturnType returns op's declared return type.
func (op Opcode) ReturnType() Type { return op.info().ret }

// ArgType returns the declared type of argument slot i.
func (op Opcode) ArgType(i int) Type { return op.info().args[i] }

func (op Opcode) String() string { return op.Name() }
