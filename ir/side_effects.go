package ir

// The predicates below are the sole interface optimizations are allowed to
// consult (spec.md §4.1): "they never pattern-match on numeric opcode
// values."

func (op Opcode) ReadsCPSR() bool     { return op.info().effects&seReadsCPSR != 0 }
func (op Opcode) WritesCPSR() bool    { return op.info().effects&seWritesCPSR != 0 }
func (op Opcode) ReadsFPSCR() bool    { return op.info().effects&seReadsFPSCR != 0 }
func (op Opcode) WritesFPSCR() bool   { return op.info().effects&seWritesFPSCR != 0 }
func (op Opcode) ReadsCoreReg() bool  { return op.info().effects&seReadsCoreReg != 0 }
func (op Opcode) WritesCoreReg() bool { return op.info().effects&seWritesCoreReg != 0 }
func (op Opcode) ReadsSystemReg() bool  { return op.info().effects&seReadsSystemReg != 0 }
func (op Opcode) WritesSystemReg() bool { return op.info().effects&seWritesSystemReg != 0 }
func (op Opcode) MayCauseException() bool   { return op.info().effects&seMayCauseException != 0 }
func (op Opcode) AltersExclusiveState() bool { return op.info().effects&seAltersExclusiveState != 0 }
func (op Opcode) IsCoprocessor() bool        { return op.info().effects&seIsCoprocessor != 0 }
func (op Opcode) IsPseudoOp() bool           { return op.info().effects&seIsPseudoOp != 0 }
func (op Opcode) IsShift() bool              { return op.info().effects&seIsShift != 0 }
func (op Opcode) IsSharedMemoryRead() bool    { return op.info().effects&seIsSharedMemoryRead != 0 }
func (op Opcode) IsSharedMemoryWrite() bool   { return op.info().effects&seIsSharedMemoryWrite != 0 }
func (op Opcode) IsExclusiveMemoryRead() bool { return op.info().effects&seIsExclusiveMemoryRead != 0 }
func (op Opcode) IsExclusiveMemoryWrite() bool {
	return op.info().effects&seIsExclusiveMemoryWrite != 0
}

// MayHaveAnySideEffect reports whether op does anything EliminateDeadCode
// can't see through its use-count alone: writing guest-visible state,
// possibly trapping, touching the exclusive monitor, or touching memory.
// Pure reads (GetRegister, GetCpsr, ...) and classification-only tags
// (IsShift, IsPseudoOp) are deliberately excluded — an unused pure read or
// shift is safe to remove.
func (op Opcode) MayHaveAnySideEffect() bool {
	const sideEffecting = seWritesCPSR | seWritesFPSCR | seWritesCoreReg | seWritesSystemReg |
		seMayCauseException | seAltersExclusiveState | seIsCoprocessor |
		seIsSharedMemoryRead | seIsSharedMemoryWrite | seIsExclusiveMemoryRead | seIsExclusiveMemoryWrite
	return op.info().effects&sideEffecting != 0
}

// IsMemoryOp reports whether op is any read/write/exclusive memory access.
func (op Opcode) IsMemoryOp() bool {
	e := op.info().effects
	return e&(seIsSharedMemoryRead|seIsSharedMemoryWrite|seIsExclusiveMemoryRead|seIsExclusiveMemoryWrite) != 0
}

// InNZCVWhitelist reports whether op may legally have a GetNZCVFromOp
// pseudo-op consumer (spec.md §4.1, §9).
func (op Opcode) InNZCVWhitelist() bool {
	return nzcvWhitelist[op]
}
