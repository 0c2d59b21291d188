// Package zgc holds the capabilities shared by the root-scanning and
// handle-management packages: the managed reference word and the two
// visitation contracts every root source speaks.
//
// A root is any reference into the managed heap that originates
// outside it. The subpackages locate roots (zgc/roots) and manage the
// handle slots that are themselves a root source (zgc/handles).
package zgc

// A Ref is an opaque reference to a managed heap object. The zero
// value is the null reference. Referents are aligned to at least two
// bytes, which is what leaves bit 0 of a handle free for tagging.
type Ref uintptr

// A Visitor is called once per live slot holding a managed reference.
// It may update the slot in place, for example with a relocated
// address.
type Visitor func(slot *Ref)

// An IsAlive predicate reports whether a referent is still reachable.
// Weak enumeration uses it to decide between reporting a reference
// and clearing it.
type IsAlive func(ref Ref) bool

// AlwaysAlive treats every referent as reachable. Passing it to a
// weak enumeration entry point turns it into plain enumeration that
// never clears anything.
func AlwaysAlive(Ref) bool { return true }
