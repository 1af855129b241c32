package jitstate

// OptimizationFlag is a bit in Config.Optimizations (spec.md §6).
type OptimizationFlag uint32

const (
	OptBlockLinking OptimizationFlag = 1 << iota
	OptReturnStackBuffer
	OptFastDispatch
	OptConstantFolding
	OptMiscIROpt
	OptUnsafeUnfuseFMA
	OptUnsafeIgnoreGlobalMonitor
	OptUnsafeInaccurateNaN
)

// Has reports whether flag is set in the optimization bitset.
func (o OptimizationFlag) Has(flag OptimizationFlag) bool { return o&flag != 0 }

// PageTableConfig configures the page-table memory fast path.
type PageTableConfig struct {
	Base                   []uintptr // page-pointer table, indexed by vaddr>>PageBits
	AddressSpaceBits       uint
	PointerMaskBits        uint
	AbsoluteOffset         bool
	SilentlyMirror         bool
	PageBits               uint
}

// FastmemConfig configures the base-plus-offset memory fast path.
type FastmemConfig struct {
	Base                          uintptr
	AddressSpaceBits              uint
	SilentlyMirror                bool
	RecompileOnFailure            bool
	ExclusiveAccess               bool
	RecompileOnExclusiveFailure   bool
}

// MisalignmentDetection selects, per access width, whether misaligned
// accesses are detected and how.
type MisalignmentDetection struct {
	WidthMask             uint32 // bit i set => detect for (8<<i)-bit accesses
	OnlyOnPageBoundary     bool
}

// Config is supplied once at Jit construction (spec.md §6).
type Config struct {
	PageTable *PageTableConfig
	Fastmem   *FastmemConfig

	Misalignment MisalignmentDetection

	Optimizations OptimizationFlag

	ProcessorID uint64

	CNTFRQEL0  uint64
	CTREL0     uint32
	DCZIDEL0   uint32
	TPIDREL0   uint64
	TPIDRROEL0 uint64

	AlwaysLittleEndian bool
	HookISB            bool
	WallClockCNTPCT    bool
}
