package handles

import (
	zgc "github.com/stjordanis/zgc"
)

// TableOptions bounds and pre-sizes the two process-wide handle
// areas.
type TableOptions struct {
	// MaxHandles bounds the allocated slots of each area. Zero means
	// unbounded.
	MaxHandles int

	// ReserveBytes pre-sizes each area. Zero reserves nothing.
	ReserveBytes uintptr
}

// A Table is the process-wide registry of global and weak-global
// handles. It is both the reference-holding API used by native code
// and a root source: the global area is scanned strongly, the
// weak-global area weakly. A Table is built once and passed to the
// scanners that need it.
type Table struct {
	global     Storage
	weakGlobal Storage
}

// NewTable returns a handle table with empty areas.
func NewTable(opts TableOptions) *Table {
	t := new(Table)
	t.global.limit = opts.MaxHandles
	t.weakGlobal.limit = opts.MaxHandles
	if opts.ReserveBytes > 0 {
		n := int(opts.ReserveBytes / RefBytes)
		t.global.Reserve(n)
		t.weakGlobal.Reserve(n)
	}
	return t
}

// MakeGlobal allocates a strong handle holding ref. A null ref yields
// a null handle. mode selects how an exhausted handle budget is
// reported.
func (t *Table) MakeGlobal(ref zgc.Ref, mode FailMode) Handle {
	if ref == 0 {
		return Handle{}
	}
	slot := t.global.allocate(ref)
	if slot == nil {
		if mode == ReturnNull {
			return Handle{}
		}
		panic("handles: global handle area exhausted")
	}
	return handleFor(slot)
}

// DestroyGlobal releases a strong global handle. The slot is nulled
// and recycled.
func (t *Table) DestroyGlobal(h Handle) {
	if h.IsNull() {
		return
	}
	if IsWeak(h) {
		panic("handles: destroy global of a weak handle")
	}
	t.global.release(slotAddr(h))
}

// MakeWeakGlobal allocates a weak handle holding ref. The returned
// handle carries the weak tag; the collector may clear the slot if
// the referent becomes unreachable.
func (t *Table) MakeWeakGlobal(ref zgc.Ref, mode FailMode) Handle {
	if ref == 0 {
		return Handle{}
	}
	slot := t.weakGlobal.allocate(ref)
	if slot == nil {
		if mode == ReturnNull {
			return Handle{}
		}
		panic("handles: weak-global handle area exhausted")
	}
	return weakHandleFor(slot)
}

// DestroyWeakGlobal releases a weak global handle.
func (t *Table) DestroyWeakGlobal(h Handle) {
	if h.IsNull() {
		return
	}
	if !IsWeak(h) {
		panic("handles: destroy weak global of a strong handle")
	}
	t.weakGlobal.release(weakSlotAddr(h))
}

// IsGlobal reports whether h is a live handle of the global area.
func (t *Table) IsGlobal(h Handle) bool {
	return !h.IsNull() && !IsWeak(h) && t.global.contains(slotAddr(h))
}

// IsWeakGlobal reports whether h is a live handle of the weak-global
// area.
func (t *Table) IsWeakGlobal(h Handle) bool {
	return IsWeak(h) && t.weakGlobal.contains(weakSlotAddr(h))
}

// VisitStrong enumerates the global handle area.
func (t *Table) VisitStrong(v zgc.Visitor) {
	t.global.VisitStrong(v)
}

// VisitWeak enumerates the weak-global handle area, clearing entries
// whose referent is reported dead.
func (t *Table) VisitWeak(isAlive zgc.IsAlive, v zgc.Visitor) {
	t.weakGlobal.VisitWeak(isAlive, v)
}

// WeakStorage exposes the weak-global area to collectors that need
// more exotic iteration than VisitWeak, such as the partitioned
// concurrent scan.
func (t *Table) WeakStorage() *Storage {
	return &t.weakGlobal
}

// MemoryUsage reports the bytes reserved by the global and the
// weak-global area.
func (t *Table) MemoryUsage() (global, weakGlobal uintptr) {
	return t.global.MemoryUsage(), t.weakGlobal.MemoryUsage()
}
