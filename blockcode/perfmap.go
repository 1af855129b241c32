package blockcode

import (
	"bufio"
	"fmt"
	"os"
)

// EnablePerfMap turns on symbol recording for WritePerfMap. Disabled by
// default since it costs a slice append per emitted block.
func (b *BlockOfCode) EnablePerfMap() {
	b.perfMapEnabled = true
}

// RecordSymbol registers [addr, addr+size) under name for the next
// WritePerfMap call, if perf-map recording is enabled. No-op otherwise.
func (b *BlockOfCode) RecordSymbol(addr uintptr, size int, name string) {
	if !b.perfMapEnabled {
		return
	}
	b.perfMapEntries = append(b.perfMapEntries, perfMapEntry{addr: addr, size: size, name: name})
}

// WritePerfMap writes /tmp/perf-<pid>.map in the format Linux's perf tool
// understands ("addr size name" per line, addr/size in hex), letting `perf
// report` resolve emitted blocks by name instead of showing raw addresses.
func (b *BlockOfCode) WritePerfMap() error {
	path := fmt.Sprintf("/tmp/perf-%d.map", os.Getpid())
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range b.perfMapEntries {
		fmt.Fprintf(w, "%x %x %s\n", e.addr, e.size, e.name)
	}
	return w.Flush()
}
