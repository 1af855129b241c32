package ir

import "github.com/dynarmic-go/dynarmic/locdesc"

// CondFallback pairs an entry condition with the location to resume at
// when that condition fails.
type CondFallback struct {
	Cond     Cond
	Fallback locdesc.Descriptor
}

// Block is a maximal linear sequence of guest instructions translated as
// one unit: an ordered list of Insts plus the bookkeeping spec.md §3
// requires.
type Block struct {
	start, end locdesc.Descriptor
	cond       *CondFallback

	terminal Terminal

	cyclesBody    int // consumed if executed to the terminal
	cyclesOnFail  int // consumed if the entry condition fails

	head, tail *Inst // intrusive doubly-linked list
	count      int
}

// NewBlock creates an empty block starting at start.
func NewBlock(start locdesc.Descriptor) *Block {
	return &Block{start: start, end: start, terminal: ReturnToDispatch{}}
}

func (b *Block) Start() locdesc.Descriptor { return b.start }
func (b *Block) End() locdesc.Descriptor   { return b.end }

// SetEnd records the location just past the last lifted guest instruction.
func (b *Block) SetEnd(end locdesc.Descriptor) { b.end = end }

func (b *Block) Cond() *CondFallback      { return b.cond }
func (b *Block) SetCond(c *CondFallback)  { b.cond = c }

func (b *Block) Terminal() Terminal         { return b.terminal }
func (b *Block) SetTerminal(t Terminal)     { b.terminal = t }

func (b *Block) CyclesBody() int       { return b.cyclesBody }
func (b *Block) SetCyclesBody(n int)   { b.cyclesBody = n }
func (b *Block) CyclesOnFail() int     { return b.cyclesOnFail }
func (b *Block) SetCyclesOnFail(n int) { b.cyclesOnFail = n }

// Len returns the number of live instructions in the block.
func (b *Block) Len() int { return b.count }

// Append adds a new instruction with the given opcode and arguments to the
// end of the block, in program order, and returns it. Every argument must
// belong to an Inst already owned by this same block (spec.md §3: "no Inst
// in a block references an Inst in any other block" — callers are
// responsible for only ever referencing Insts returned from this same
// Block's Append).
func (b *Block) Append(opcode Opcode, args ...Value) *Inst {
	inst := NewInst(opcode, args...)
	inst.block = b
	if b.tail == nil {
		b.head, b.tail = inst, inst
	} else {
		inst.prev = b.tail
		b.tail.next = inst
		b.tail = inst
	}
	b.count++
	return inst
}

// Insts returns the live instructions in program order. The returned slice
// is a snapshot; mutating the block (e.g. via further Append) does not
// retroactively affect an already-taken snapshot.
func (b *Block) Insts() []*Inst {
	out := make([]*Inst, 0, b.count)
	for i := b.head; i != nil; i = i.next {
		out = append(out, i)
	}
	return out
}

// Remove unlinks inst from the block's instruction list. The caller must
// have already ensured inst has no remaining uses (HasUses() == false);
// Remove panics otherwise, since removing a still-referenced Inst would
// violate the use-count invariant.
func (b *Block) Remove(inst *Inst) {
	if inst.block != b {
		panic("ir: Remove called with an Inst not owned by this Block")
	}
	if inst.HasUses() {
		panic("ir: Remove called on an Inst that still has uses")
	}
	if inst.prev != nil {
		inst.prev.next = inst.next
	} else {
		b.head = inst.next
	}
	if inst.next != nil {
		inst.next.prev = inst.prev
	} else {
		b.tail = inst.prev
	}
	inst.prev, inst.next, inst.block = nil, nil, nil
	b.count--
}
