package handles

import (
	"sync"
	"testing"

	zgc "github.com/stjordanis/zgc"
)

func TestStorageRecyclesSlots(t *testing.T) {
	table := NewTable(TableOptions{})
	a := table.MakeGlobal(refAt(1), FatalOnFailure)
	table.DestroyGlobal(a)
	b := table.MakeGlobal(refAt(2), FatalOnFailure)
	if a != b {
		t.Fatalf("released slot was not reused: %#x then %#x", a.Bits(), b.Bits())
	}
	if got := table.global.Count(); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
}

func TestStorageLimit(t *testing.T) {
	table := NewTable(TableOptions{MaxHandles: 2})
	table.MakeGlobal(refAt(1), FatalOnFailure)
	table.MakeGlobal(refAt(2), FatalOnFailure)
	if h := table.MakeGlobal(refAt(3), ReturnNull); !h.IsNull() {
		t.Fatalf("allocation over the limit returned %#x", h.Bits())
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("FatalOnFailure did not abort on a full area")
		}
	}()
	table.MakeGlobal(refAt(3), FatalOnFailure)
}

func TestStorageReserve(t *testing.T) {
	table := NewTable(TableOptions{ReserveBytes: 4 * chunkSlots * RefBytes})
	global, weakGlobal := table.MemoryUsage()
	if global == 0 || weakGlobal == 0 {
		t.Fatalf("reserve did not allocate chunks: %d, %d", global, weakGlobal)
	}
	before := global
	for i := 0; i < 2*chunkSlots; i++ {
		table.MakeGlobal(refAt(i), FatalOnFailure)
	}
	after, _ := table.MemoryUsage()
	if after != before {
		t.Fatalf("allocation within the reserve grew the area")
	}
}

func TestVisitStrongCoversAllocatedSlots(t *testing.T) {
	table := NewTable(TableOptions{})
	want := map[zgc.Ref]bool{}
	for i := 0; i < 3*chunkSlots/2; i++ {
		table.MakeGlobal(refAt(i), FatalOnFailure)
		want[refAt(i)] = true
	}
	got := map[zgc.Ref]bool{}
	table.VisitStrong(func(slot *zgc.Ref) {
		if got[*slot] {
			t.Fatalf("slot %#x visited twice", uintptr(*slot))
		}
		got[*slot] = true
	})
	if len(got) != len(want) {
		t.Fatalf("visited %d slots, want %d", len(got), len(want))
	}
}

func TestVisitorMayRelocateInPlace(t *testing.T) {
	table := NewTable(TableOptions{})
	h := table.MakeGlobal(refAt(1), FatalOnFailure)
	table.VisitStrong(func(slot *zgc.Ref) { *slot = refAt(9) })
	if got := Resolve(h); got != refAt(9) {
		t.Fatalf("resolve after relocation = %#x, want %#x", uintptr(got), uintptr(refAt(9)))
	}
}

func TestParIterPartitionsAreDisjointAndComplete(t *testing.T) {
	table := NewTable(TableOptions{})
	const total = 5 * chunkSlots // several partitions worth of handles
	for i := 0; i < total; i++ {
		table.MakeWeakGlobal(refAt(i), FatalOnFailure)
	}

	const workers = 4
	iter := NewParIter(table.WeakStorage())
	results := make([][]zgc.Ref, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			iter.Visit(func(slot *zgc.Ref) {
				results[w] = append(results[w], *slot)
			})
		}(w)
	}
	wg.Wait()

	seen := map[zgc.Ref]bool{}
	visits := 0
	for _, refs := range results {
		for _, ref := range refs {
			if seen[ref] {
				t.Fatalf("slot %#x processed by two workers", uintptr(ref))
			}
			seen[ref] = true
			visits++
		}
	}
	if visits != total {
		t.Fatalf("workers visited %d slots, want %d", visits, total)
	}
}

func TestParIterSnapshotExcludesLaterChunks(t *testing.T) {
	table := NewTable(TableOptions{})
	table.MakeWeakGlobal(refAt(0), FatalOnFailure)
	iter := NewParIter(table.WeakStorage())

	// Fill past the snapshot: new chunks must not be covered.
	for i := 1; i <= 2*chunkSlots; i++ {
		table.MakeWeakGlobal(refAt(i), FatalOnFailure)
	}
	count := 0
	iter.Visit(func(*zgc.Ref) { count++ })
	if count > chunkSlots {
		t.Fatalf("iterator visited %d slots from chunks appended after the snapshot", count)
	}
	if count == 0 {
		t.Fatalf("iterator missed the snapshot contents")
	}
}

func TestParIterWeakClears(t *testing.T) {
	table := NewTable(TableOptions{})
	dead := table.MakeWeakGlobal(refAt(1), FatalOnFailure)
	live := table.MakeWeakGlobal(refAt(2), FatalOnFailure)

	iter := NewParIter(table.WeakStorage())
	isAlive := func(ref zgc.Ref) bool { return ref == refAt(2) }
	iter.VisitWeak(isAlive, func(*zgc.Ref) {})

	if !IsWeakCleared(dead) {
		t.Fatalf("dead referent survived the partitioned weak visit")
	}
	if Resolve(live) != refAt(2) {
		t.Fatalf("live referent lost by the partitioned weak visit")
	}
}
