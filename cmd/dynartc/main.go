// Command dynartc is a small demo driver for the translation pipeline: it
// hand-builds a handful of synthetic guest blocks (there's no real A32/
// Thumb/A64 decoder in this project), pushes each one through
// optimization, register allocation, codegen and linking, and reports what
// came out.
package main

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/dynarmic-go/dynarmic/blockcache"
	"github.com/dynarmic-go/dynarmic/blockcode"
	"github.com/dynarmic-go/dynarmic/dispatch"
	"github.com/dynarmic-go/dynarmic/except"
	"github.com/dynarmic-go/dynarmic/exclusive"
	"github.com/dynarmic-go/dynarmic/ir"
	"github.com/dynarmic-go/dynarmic/jitstate"
	"github.com/dynarmic-go/dynarmic/locdesc"
)

var (
	dumpIR       bool
	fastDispatch bool
)

// demoMemory is a tiny in-process jitstate.MemoryCallbacks, standing in for
// the guest address space an embedder would supply (spec.md §6 "User
// callbacks").
type demoMemory struct {
	store map[uint64]uint64
}

func newDemoMemory() *demoMemory { return &demoMemory{store: make(map[uint64]uint64)} }

func (m *demoMemory) MemoryRead(width int, vaddr uint64) (lo, hi uint64) {
	return m.store[vaddr], 0
}

func (m *demoMemory) MemoryWrite(width int, vaddr uint64, lo, hi uint64) {
	m.store[vaddr] = lo
}

func (m *demoMemory) MemoryWriteExclusive(width int, vaddr uint64, lo, hi, expectedLo, expectedHi uint64) bool {
	if m.store[vaddr] != expectedLo {
		return false
	}
	m.store[vaddr] = lo
	return true
}

func main() {
	root := &cobra.Command{
		Use:   "dynartc",
		Short: "Assemble and link a synthetic guest program through the translation pipeline",
		RunE:  run,
	}
	root.Flags().BoolVar(&dumpIR, "dump-ir", false, "print each block's IR before codegen")
	root.Flags().BoolVar(&fastDispatch, "fast-dispatch", true, "install resolved blocks into the fast-dispatch table")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dynartc:", err)
		os.Exit(1)
	}
}

// syntheticProgram is the tiny guest "program" this demo links: four blocks
// chained by cheap arithmetic, unconditional links, and a memory-access
// block, exercising LinkBlockFast (direct chaining), LinkBlock (the
// cycle-budget-checked form) and the fastmem/exclusive-monitor memory path,
// without needing a real decoder.
func syntheticProgram() map[locdesc.Descriptor]BlockBuilder {
	entry := locdesc.New(0x1000, 0)
	mid := locdesc.New(0x1010, 0)
	tail := locdesc.New(0x1020, 0)
	mem := locdesc.New(0x1030, 0)

	blocks := map[locdesc.Descriptor]func() *ir.Block{
		entry: func() *ir.Block {
			b := ir.NewBlock(entry)
			b.SetCyclesBody(3)
			sum := b.Append(ir.OpAdd32, ir.ImmU32(1), ir.ImmU32(41))
			b.Append(ir.OpLogicalShiftLeft32, ir.FromInst(sum), ir.ImmU8(1))
			b.SetTerminal(ir.LinkBlockFast{Next: mid})
			return b
		},
		mid: func() *ir.Block {
			b := ir.NewBlock(mid)
			b.SetCyclesBody(2)
			b.Append(ir.OpNot32, ir.ImmU32(0))
			b.SetTerminal(ir.LinkBlock{Next: tail})
			return b
		},
		tail: func() *ir.Block {
			b := ir.NewBlock(tail)
			b.SetCyclesBody(1)
			b.Append(ir.OpAnd32, ir.ImmU32(0xFF), ir.ImmU32(0x0F))
			b.SetTerminal(ir.LinkBlockFast{Next: mem})
			return b
		},
		// mem exercises the fastmem memory-access path end to end: a plain
		// load, a load-exclusive/store-exclusive pair, a plain store, and a
		// clear-exclusive, so emitFastmemRead/Write and the exclusive
		// monitor wiring actually get lowered rather than merely compiling.
		mem: func() *ir.Block {
			b := ir.NewBlock(mem)
			b.SetCyclesBody(4)
			b.Append(ir.OpReadMemory32, ir.ImmU64(0x2000))
			b.Append(ir.OpExclusiveReadMemory32, ir.ImmU64(0x2000))
			b.Append(ir.OpExclusiveWriteMemory32, ir.ImmU64(0x2000), ir.ImmU32(7))
			b.Append(ir.OpWriteMemory32, ir.ImmU64(0x2004), ir.ImmU32(9))
			b.Append(ir.OpClearExclusive)
			b.SetTerminal(ir.ReturnToDispatch{})
			return b
		},
	}

	out := make(map[locdesc.Descriptor]BlockBuilder, len(blocks))
	for desc, fn := range blocks {
		fn := fn
		out[desc] = func(locdesc.Descriptor) *ir.Block { return fn() }
	}
	return out
}

func run(cmd *cobra.Command, args []string) error {
	code, err := blockcode.New()
	if err != nil {
		return err
	}
	defer code.Close()

	code.EnableWriting()
	stubOff := code.Offset()
	code.WriteByte(0xC3) // bare RET: the un-patched-site dispatcher stub
	code.DisableWriting()

	writer := &blockcode.Writer{Code: code, Stub: code.Base() + uintptr(stubOff)}

	var fd *dispatch.FastDispatch
	if fastDispatch {
		fd = dispatch.NewFastDispatch(8)
	}

	cache := blockcache.New(func(desc uint64) {
		if fd != nil {
			fd.Invalidate(desc)
		}
	})

	program := syntheticProgram()
	lookup := func(desc locdesc.Descriptor) *ir.Block {
		if build, ok := program[desc]; ok {
			return build(desc)
		}
		return nil
	}

	// A real fastmem buffer the base-plus-offset form indexes into, and the
	// exclusive monitor the guest memory block's LDREX/STREX pair runs
	// against (spec.md §6 FastmemConfig, §4.6 ExclusiveMonitor).
	fastmemBuf := make([]byte, 1<<16)
	monitor := exclusive.New(1)
	handler := except.New(func(siteMarker uint64) {
		fmt.Printf("  fastmem fault recorded for block %#x: would recompile onto the page-table/callback form\n", siteMarker)
	})

	config := &jitstate.Config{
		Optimizations: jitstate.OptBlockLinking | jitstate.OptReturnStackBuffer | jitstate.OptConstantFolding,
		Fastmem: &jitstate.FastmemConfig{
			Base:               uintptr(unsafe.Pointer(&fastmemBuf[0])),
			AddressSpaceBits:   32,
			RecompileOnFailure: true,
			ExclusiveAccess:    true,
		},
		ProcessorID: 0,
	}
	if fastDispatch {
		config.Optimizations |= jitstate.OptFastDispatch
	}

	translator := NewTranslator(code, cache, writer, config, lookup)
	translator.DumpIR = dumpIR
	translator.Handler = handler

	d := dispatch.New(cache, fd, translator, config.Optimizations)

	for desc := range program {
		if _, err := d.Resolve(uint64(desc)); err != nil {
			return fmt.Errorf("resolving %#x: %w", desc, err)
		}
	}

	fmt.Println("translated blocks:")
	for _, s := range translator.Stats {
		fmt.Printf("  %#010x  bytes=%-4d patches=%-2d pending=%-2d fastmem=%-2d cycles=%-3d entry=%#x\n",
			uint64(s.Desc), s.Bytes, s.Patches, s.Pending, s.Fastmem, s.Cycles, s.Entrypoint)
	}

	// The JIT-compiled bytes themselves are never executed (see DESIGN.md's
	// "Known limitation"), but the callback table they'd eventually CALL
	// into is ordinary reachable Go code — exercise it directly so the
	// exclusive-monitor wiring runs for real rather than only type-checking.
	callbacks := &jitstate.CallbackTable{Mem: newDemoMemory(), Monitor: monitor, ProcessorID: 0}
	callbacks.Mem.MemoryWrite(32, 0x2000, 7, 0)
	lo, _ := callbacks.Read(32, 0x2000, true)
	ok := callbacks.Write(32, 0x2000, 99, 0, true)
	fmt.Printf("callback-table demo: exclusive read=%d, exclusive write ok=%v\n", lo, ok)

	return nil
}
