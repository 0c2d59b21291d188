package handles

import (
	"sync"
	"unsafe"

	zgc "github.com/stjordanis/zgc"
)

// blockSlots is the number of handle slots per block.
const blockSlots = 32

// BlockBytes is the footprint of one handle block, used to turn a
// memory budget into a block budget.
const BlockBytes = unsafe.Sizeof(Block{})

// poison fills the slots of released blocks when asserts is on, so a
// stale handle read shows a recognizable pattern instead of garbage.
const poison zgc.Ref = 0x0bad0bad

// A Block is a fixed-capacity array of handle slots. Blocks chain to
// form a thread's local handle area; the head block carries the
// chain-wide fields. Keeping one block layout instead of a separate
// head type costs a few words per non-head block and keeps the code
// simple.
type Block struct {
	slots [blockSlots]zgc.Ref
	top   int    // index of the next unused slot, top <= blockSlots
	next  *Block // next block in the chain

	// Head-of-chain fields. A non-head block never carries chain
	// metadata. Destroyed slots stay null in place; rebuildFreeList
	// gathers them into freeSlots for reuse.
	last                  *Block     // block currently accepting allocations
	popFrameLink          *Block     // chain to restore when this frame is popped
	freeSlots             []*zgc.Ref // reclaimed slots awaiting reuse
	allocateBeforeRebuild int        // blocks to append before rebuilding freeSlots
}

// A FailMode selects how handle allocation reports exhausted backing
// memory. It is a parameter of the allocating call, not a global
// policy.
type FailMode int

const (
	// FatalOnFailure aborts the process when no space can be
	// obtained.
	FatalOnFailure FailMode = iota

	// ReturnNull reports exhaustion as a null handle for the caller
	// to handle.
	ReturnNull
)

// Options configures an Allocator.
type Options struct {
	// MaxBlocks bounds the number of blocks handed out and not yet
	// returned. Zero means no bound.
	MaxBlocks int
}

// An Allocator hands out handle blocks and pools released ones.
// Fully empty blocks go back to the pool instead of being freed, which
// turns chain release into O(1) recycling.
//
// The pool is shared between threads and synchronized here; a block
// handed out is single-writer until released.
type Allocator struct {
	opts Options

	mu        sync.Mutex
	pool      *Block // free list of empty, unlinked blocks
	allocated int    // blocks handed out and not yet pooled
}

// NewAllocator returns an allocator with an empty pool.
func NewAllocator(opts Options) *Allocator {
	return &Allocator{opts: opts}
}

// AllocateBlock returns an empty block usable as a chain head,
// reusing a pooled block when one is available. Under ReturnNull an
// exhausted block budget yields nil.
func (a *Allocator) AllocateBlock(mode FailMode) *Block {
	a.mu.Lock()
	if b := a.pool; b != nil {
		a.pool = b.next
		a.allocated++
		a.mu.Unlock()
		b.next = nil
		b.reinit()
		return b
	}
	if a.opts.MaxBlocks > 0 && a.allocated >= a.opts.MaxBlocks {
		a.mu.Unlock()
		if mode == ReturnNull {
			return nil
		}
		panic("handles: out of handle blocks")
	}
	a.allocated++
	a.mu.Unlock()
	b := new(Block)
	b.reinit()
	return b
}

// ReleaseChain clears every block in the chain starting at head and
// returns all of them to the pool. Top indices are zeroed and, with
// asserts on, slot contents are wiped with the poison pattern.
func (a *Allocator) ReleaseChain(head *Block) {
	if head == nil {
		return
	}
	if asserts && head.popFrameLink != nil {
		panic("handles: releasing a chain with a pending frame link")
	}
	a.mu.Lock()
	for b := head; b != nil; {
		next := b.next
		b.zap()
		b.top = 0
		b.last = nil
		b.popFrameLink = nil
		b.freeSlots = nil
		b.allocateBeforeRebuild = 0
		b.next = a.pool
		a.pool = b
		a.allocated--
		b = next
	}
	a.mu.Unlock()
	if debug {
		println("handles: released chain")
	}
}

// Live returns the number of blocks handed out and not yet returned.
func (a *Allocator) Live() int {
	a.mu.Lock()
	n := a.allocated
	a.mu.Unlock()
	return n
}

// reinit prepares a block for use as a fresh chain head.
func (b *Block) reinit() {
	b.top = 0
	b.last = b
	b.popFrameLink = nil
	b.freeSlots = nil
	b.allocateBeforeRebuild = 0
}

// zap wipes the block's slots with the poison pattern.
func (b *Block) zap() {
	if !asserts {
		return
	}
	for i := range b.slots {
		b.slots[i] = poison
	}
}

// Allocate stores ref in a free slot of the chain headed by b and
// returns its handle. alloc supplies new blocks when the chain must
// grow; mode applies to that growth. A null ref yields a null handle.
func (b *Block) Allocate(alloc *Allocator, ref zgc.Ref, mode FailMode) Handle {
	if ref == 0 {
		return Handle{}
	}
	if asserts && b.last == nil {
		panic("handles: allocate on a non-head block")
	}
	for {
		// Fast path: the current allocating block has room.
		if last := b.last; last.top < blockSlots {
			slot := &last.slots[last.top]
			last.top++
			*slot = ref
			return handleFor(slot)
		}

		// Reclaimed slots, if the free list has been rebuilt since
		// the chain filled up.
		if n := len(b.freeSlots); n != 0 {
			slot := b.freeSlots[n-1]
			b.freeSlots = b.freeSlots[:n-1]
			*slot = ref
			return handleFor(slot)
		}

		// An unused block can follow last after a frame was popped.
		if b.last.next != nil {
			b.last = b.last.next
			b.last.clear()
			continue
		}

		// No space anywhere in the chain. Either rebuild the free
		// list from nulled slots or append a new block; the rebuild
		// heuristic decides which, amortizing scans of the chain.
		if b.allocateBeforeRebuild == 0 {
			b.rebuildFreeList()
		} else {
			nb := alloc.AllocateBlock(mode)
			if nb == nil {
				return Handle{}
			}
			nb.last = nil // chain metadata lives on the head only
			b.last.next = nb
			b.last = nb
			b.allocateBeforeRebuild--
		}
	}
}

// clear forgets any handles in this block and the blocks after it.
func (b *Block) clear() {
	b.top = 0
}

// rebuildFreeList gathers every nulled slot of the chain for reuse.
// When fewer than half of the slots came back, the chain grows by one
// block per allocation round for a while before scanning again.
func (b *Block) rebuildFreeList() {
	if asserts && (b.allocateBeforeRebuild != 0 || len(b.freeSlots) != 0) {
		panic("handles: rebuilding a free list out of turn")
	}
	blocks := 0
	for cur := b; cur != nil; cur = cur.next {
		if asserts && cur.top != blockSlots {
			panic("handles: rebuilding a free list with unused slots at the end")
		}
		for i := 0; i < cur.top; i++ {
			slot := &cur.slots[i]
			if *slot == 0 {
				b.freeSlots = append(b.freeSlots, slot)
			}
		}
		blocks++
	}
	if len(b.freeSlots) < blocks*blockSlots/2 {
		b.allocateBeforeRebuild = blocks
	}
	if debug {
		println("handles: rebuilt free list, free:", len(b.freeSlots), "blocks:", blocks)
	}
}

// Visit calls v once for every populated slot in the chain: indices
// [0, top) of each block, skipping nulled slots rather than
// compacting them.
func (b *Block) Visit(v zgc.Visitor) {
	for cur := b; cur != nil; cur = cur.next {
		for i := 0; i < cur.top; i++ {
			slot := &cur.slots[i]
			if *slot == 0 {
				continue
			}
			v(slot)
		}
	}
}

// PushFrame starts a nested handle frame: a fresh chain whose restore
// point is the current head. The returned block becomes the active
// chain. Under ReturnNull an exhausted budget yields nil and the
// current chain stays active.
func PushFrame(alloc *Allocator, head *Block, mode FailMode) *Block {
	nb := alloc.AllocateBlock(mode)
	if nb == nil {
		return nil
	}
	nb.popFrameLink = head
	return nb
}

// PopFrame releases the chain headed by head and returns the chain
// that was active when the frame was pushed.
func PopFrame(alloc *Allocator, head *Block) *Block {
	prev := head.popFrameLink
	if prev == nil {
		panic("handles: pop of a frame that was never pushed")
	}
	head.popFrameLink = nil
	alloc.ReleaseChain(head)
	return prev
}

// Length returns the number of blocks in the chain starting at b.
func (b *Block) Length() int {
	n := 0
	for cur := b; cur != nil; cur = cur.next {
		n++
	}
	return n
}

// MemoryUsage returns the bytes held by the chain starting at b.
func (b *Block) MemoryUsage() uintptr {
	return uintptr(b.Length()) * BlockBytes
}

// Contains reports whether h was allocated from this block.
func (b *Block) Contains(h Handle) bool {
	addr := h.Bits()
	base := uintptr(unsafe.Pointer(&b.slots[0]))
	return addr >= base && addr < base+uintptr(b.top)*RefBytes
}

// ChainContains reports whether h was allocated from any block of the
// chain starting at b.
func (b *Block) ChainContains(h Handle) bool {
	for cur := b; cur != nil; cur = cur.next {
		if cur.Contains(h) {
			return true
		}
	}
	return false
}

// LiveHandles returns the number of populated slots in the chain.
func (b *Block) LiveHandles() int {
	n := 0
	b.Visit(func(*zgc.Ref) { n++ })
	return n
}
