package roots

import (
	zgc "github.com/stjordanis/zgc"
	"github.com/stjordanis/zgc/handles"
)

// A ConcurrentWeakScanner processes the weak-global handle area while
// mutators keep running. A single claim flag is not enough here:
// workers are expected to split the storage between them, so the
// scanner holds a partitioned iterator in which each worker claims
// disjoint chunks. No entry is lost or processed twice across the
// racing workers.
type ConcurrentWeakScanner struct {
	flags  Flags
	iter   *handles.ParIter
	closed bool

	weakHandles guardedVisit
}

// NewConcurrentWeakScanner snapshots the weak-global handle storage
// for partitioned enumeration. No pause is required.
func NewConcurrentWeakScanner(set *Set, flags Flags) *ConcurrentWeakScanner {
	s := &ConcurrentWeakScanner{
		flags: flags,
		iter:  handles.NewParIter(set.Handles.WeakStorage()),
	}
	s.weakHandles = racyVisit(s.iter.Visit)
	return s
}

// Visit enumerates the weak-global handle area, but only when weak
// roots are handled in their own pass and the area is designated for
// concurrent rather than paused processing. The visitor is
// responsible for liveness handling, including clearing slots it
// finds dead.
func (s *ConcurrentWeakScanner) Visit(v zgc.Visitor) {
	if s.flags.DeferWeakRoots && s.flags.ConcurrentWeakHandles {
		s.weakHandles.visit(v)
	}
}

// Close ends the concurrent phase for this scanner.
func (s *ConcurrentWeakScanner) Close() {
	if s.closed {
		panic("roots: concurrent weak scanner closed twice")
	}
	s.closed = true
}
