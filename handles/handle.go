// Package handles implements the native reference-holding API of the
// collector: local handle blocks, the process-wide global and
// weak-global handle areas, and the allocator backing them.
//
// A handle names a reference-sized storage slot. Strong and weak
// handles share one representation and are told apart purely by the
// low tag bit of the slot address: a weak handle carries the address
// plus one, so resolving it must strip the tag before following the
// address. Slot alignment keeps bit 0 clear for every real address.
// Internally a Handle stays a tagged pointer into the slot's
// allocation, so the tag arithmetic never launders the address
// through an integer; Bits is the word form of the same encoding for
// foreign code that traffics in raw handle words.
package handles

import (
	"unsafe"

	zgc "github.com/stjordanis/zgc"
)

// Extra consistency checks and slot poisoning for released blocks.
const asserts = true

// Gated debug output, in the style of the rest of the runtime.
const debug = false

const (
	weakTagValue = 1
	weakTagMask  = (1 << 1) - 1
)

// RefBytes is the size of one handle slot.
const RefBytes = unsafe.Sizeof(zgc.Ref(0))

// A Handle names a reference-sized storage slot. The zero Handle is
// the null handle.
type Handle struct {
	p unsafe.Pointer // slot address, plus the tag when weak
}

// IsNull reports whether h is the null handle.
func (h Handle) IsNull() bool {
	return h.p == nil
}

// Bits returns the word encoding of h: the slot address, with bit 0
// set when the handle is weak. The null handle encodes as zero.
func (h Handle) Bits() uintptr {
	return uintptr(h.p)
}

// IsWeak reports whether h carries the weak tag.
func IsWeak(h Handle) bool {
	return uintptr(h.p)&weakTagMask != 0
}

func handleFor(slot *zgc.Ref) Handle {
	h := Handle{p: unsafe.Pointer(slot)}
	if asserts && IsWeak(h) {
		panic("handles: misaligned handle slot")
	}
	return h
}

// weakHandleFor tags a slot address without leaving the slot's
// allocation, so the handle remains a real pointer for the runtime.
func weakHandleFor(slot *zgc.Ref) Handle {
	return Handle{p: unsafe.Add(unsafe.Pointer(slot), weakTagValue)}
}

func slotAddr(h Handle) *zgc.Ref {
	if asserts && IsWeak(h) {
		panic("handles: slot address of a weak handle")
	}
	return (*zgc.Ref)(h.p)
}

// weakSlotAddr returns the true storage address of a weak handle,
// which is the handle value minus the tag.
func weakSlotAddr(h Handle) *zgc.Ref {
	if asserts && !IsWeak(h) {
		panic("handles: weak slot address of a strong handle")
	}
	return (*zgc.Ref)(unsafe.Add(h.p, -weakTagValue))
}

// externalGuard relaxes the non-null invariant on strong slots for
// handles that arrive from outside this subsystem.
func resolveImpl(h Handle, externalGuard bool) zgc.Ref {
	if IsWeak(h) {
		// A cleared weak handle resolves to null.
		return *weakSlotAddr(h)
	}
	ref := *slotAddr(h)
	// Handle creation canonicalizes a null reference into a null
	// handle, so the slot behind a valid strong handle is never null.
	if ref == 0 && !externalGuard {
		panic("handles: null read through strong handle")
	}
	return ref
}

// Resolve returns the reference h points at. A null handle and a
// cleared weak handle resolve to null. A null slot behind a strong
// handle is a contract violation.
func Resolve(h Handle) zgc.Ref {
	if h.IsNull() {
		return 0
	}
	return resolveImpl(h, false)
}

// ResolveExternalGuard resolves a handle whose validity the caller
// cannot guarantee: anomalies that Resolve treats as fatal come back
// as null instead.
func ResolveExternalGuard(h Handle) zgc.Ref {
	if h.IsNull() {
		return 0
	}
	return resolveImpl(h, true)
}

// ResolveNonNull resolves a handle that is guaranteed to name a live
// referent. A null handle or a null result is a contract violation.
func ResolveNonNull(h Handle) zgc.Ref {
	if h.IsNull() {
		panic("handles: resolve of null handle")
	}
	ref := resolveImpl(h, false)
	if ref == 0 {
		panic("handles: null read through non-null handle")
	}
	return ref
}

// DestroyLocal releases a handle allocated from a local block chain
// by nulling its slot. The slot itself is reclaimed when the chain
// next rebuilds its free list.
func DestroyLocal(h Handle) {
	if h.IsNull() {
		return
	}
	if IsWeak(h) {
		panic("handles: destroy local of a weak handle")
	}
	*slotAddr(h) = 0
}

// IsWeakCleared reports whether the collector has cleared a weak
// handle's referent, without resolving the handle.
func IsWeakCleared(h Handle) bool {
	if !IsWeak(h) {
		panic("handles: weak-cleared test of a strong handle")
	}
	return *weakSlotAddr(h) == 0
}
