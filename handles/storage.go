package handles

import (
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"

	zgc "github.com/stjordanis/zgc"
)

// chunkSlots is the number of slots per storage chunk. One word of
// bitmap tracks which slots are allocated.
const chunkSlots = 64

type chunk struct {
	slots [chunkSlots]zgc.Ref
	used  atomic.Uint64 // allocation bitmap, bit i covers slots[i]
}

func (c *chunk) indexOf(slot *zgc.Ref) (int, bool) {
	addr := uintptr(unsafe.Pointer(slot))
	base := uintptr(unsafe.Pointer(&c.slots[0]))
	if addr < base || addr >= base+chunkSlots*RefBytes {
		return 0, false
	}
	return int((addr - base) / RefBytes), true
}

// visit calls v on every allocated slot.
func (c *chunk) visit(v zgc.Visitor) {
	used := c.used.Load()
	for used != 0 {
		i := bits.TrailingZeros64(used)
		used &^= 1 << uint(i)
		v(&c.slots[i])
	}
}

// visitWeak calls v on every allocated slot whose referent is alive
// and clears the rest. A cleared slot stays allocated until its
// handle is destroyed.
func (c *chunk) visitWeak(isAlive zgc.IsAlive, v zgc.Visitor) {
	used := c.used.Load()
	for used != 0 {
		i := bits.TrailingZeros64(used)
		used &^= 1 << uint(i)
		slot := &c.slots[i]
		if *slot == 0 {
			// Already cleared by an earlier cycle.
			continue
		}
		if !isAlive(*slot) {
			*slot = 0
			continue
		}
		v(slot)
	}
}

// A Storage is one process-wide handle area: a grow-only list of
// chunks with per-chunk allocation bitmaps. Slot allocation and
// release go through the mutex. Enumeration reads the bitmaps
// atomically, so pause scans and the partitioned concurrent scan can
// run without taking the lock; concurrent enumeration and destruction
// of the same handle still need external coordination.
type Storage struct {
	mu     sync.Mutex
	chunks []*chunk
	hint   int // index of the first chunk that may have a free slot
	count  int
	limit  int // max allocated slots, 0 = unbounded
}

// allocate stores ref in a free slot and returns its address, or nil
// when the area's slot budget is exhausted.
func (s *Storage) allocate(ref zgc.Ref) *zgc.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && s.count >= s.limit {
		return nil
	}
	for ; s.hint < len(s.chunks); s.hint++ {
		c := s.chunks[s.hint]
		used := c.used.Load()
		if used != ^uint64(0) {
			i := bits.TrailingZeros64(^used)
			// Publish the slot contents before the bitmap bit so a
			// lock-free enumerator never sees an allocated-but-empty
			// slot.
			c.slots[i] = ref
			c.used.Store(used | 1<<uint(i))
			s.count++
			return &c.slots[i]
		}
	}
	c := new(chunk)
	c.slots[0] = ref
	c.used.Store(1)
	s.chunks = append(s.chunks, c)
	s.count++
	return &c.slots[0]
}

// release frees the slot at the given address. Releasing a slot that
// is not allocated in this area is a contract violation.
func (s *Storage) release(slot *zgc.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx, c := range s.chunks {
		i, ok := c.indexOf(slot)
		if !ok {
			continue
		}
		used := c.used.Load()
		if used&(1<<uint(i)) == 0 {
			panic("handles: release of an unallocated slot")
		}
		c.slots[i] = 0
		c.used.Store(used &^ (1 << uint(i)))
		s.count--
		if idx < s.hint {
			s.hint = idx
		}
		return
	}
	panic("handles: release of a slot outside this area")
}

// contains reports whether slot is an allocated slot of this area.
func (s *Storage) contains(slot *zgc.Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chunks {
		if i, ok := c.indexOf(slot); ok {
			return c.used.Load()&(1<<uint(i)) != 0
		}
	}
	return false
}

// snapshot returns the current chunk list. The list is append-only,
// so the snapshot stays valid; slots allocated into chunks appended
// later are simply not covered.
func (s *Storage) snapshot() []*chunk {
	s.mu.Lock()
	chunks := s.chunks
	s.mu.Unlock()
	return chunks
}

// VisitStrong calls v once per allocated slot.
func (s *Storage) VisitStrong(v zgc.Visitor) {
	for _, c := range s.snapshot() {
		c.visit(v)
	}
}

// VisitWeak calls v once per allocated slot whose referent is alive
// and clears entries whose referent is not. Cleared slots stay
// allocated until their handle is destroyed.
func (s *Storage) VisitWeak(isAlive zgc.IsAlive, v zgc.Visitor) {
	for _, c := range s.snapshot() {
		c.visitWeak(isAlive, v)
	}
}

// Count returns the number of allocated slots.
func (s *Storage) Count() int {
	s.mu.Lock()
	n := s.count
	s.mu.Unlock()
	return n
}

// MemoryUsage returns the bytes reserved by the area's chunks.
func (s *Storage) MemoryUsage() uintptr {
	s.mu.Lock()
	n := len(s.chunks)
	s.mu.Unlock()
	return uintptr(n) * unsafe.Sizeof(chunk{})
}

// Reserve grows the area so it can hold at least n slots without
// further chunk allocation.
func (s *Storage) Reserve(n int) {
	s.mu.Lock()
	for len(s.chunks)*chunkSlots < n {
		s.chunks = append(s.chunks, new(chunk))
	}
	s.mu.Unlock()
}

// A ParIter enumerates one storage area in disjoint chunk-sized
// partitions. Any number of workers may drive the same iterator;
// every chunk present at iterator creation is processed by exactly
// one of them. This is what lets the weak-global area be scanned
// while mutators run: work is split, not exclusively owned.
type ParIter struct {
	chunks []*chunk
	cursor atomic.Int64
}

// NewParIter snapshots the area's chunk list. Slots allocated into
// chunks appended after the snapshot are not covered.
func NewParIter(s *Storage) *ParIter {
	return &ParIter{chunks: s.snapshot()}
}

// VisitWeak processes chunks claimed by this caller until none
// remain, reporting live referents to v and clearing dead ones.
func (it *ParIter) VisitWeak(isAlive zgc.IsAlive, v zgc.Visitor) {
	for {
		n := it.cursor.Add(1) - 1
		if n >= int64(len(it.chunks)) {
			return
		}
		it.chunks[n].visitWeak(isAlive, v)
	}
}

// Visit is VisitWeak with every referent treated as alive: plain
// partitioned enumeration that never clears.
func (it *ParIter) Visit(v zgc.Visitor) {
	it.VisitWeak(zgc.AlwaysAlive, v)
}
