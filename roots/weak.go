package roots

import (
	zgc "github.com/stjordanis/zgc"
)

// A WeakScanner performs the dedicated weak root pass during a pause.
// Dead referents are unlinked, live ones reported. Like the pause
// scanner it is single use and its entry points tolerate any number
// of racing workers.
type WeakScanner struct {
	set    *Set
	flags  Flags
	closed bool

	symbols         guardedWeakVisit
	weakHandles     guardedWeakVisit
	debugWeakExport guardedWeakVisit
	trace           guardedWeakVisit
	strings         guardedWeakVisit
}

// NewWeakScanner prepares the weak pass. The world must already be
// stopped. The claim indices of the two interned tables are reset so
// racing callers start from a clean state.
func NewWeakScanner(set *Set, flags Flags) *WeakScanner {
	if !set.World.Stopped() {
		panic("roots: weak pause scan outside a mutator stop")
	}
	s := &WeakScanner{set: set, flags: flags}

	s.symbols = racyWeakVisit(set.Symbols.UnlinkOrVisit)
	s.strings = racyWeakVisit(set.Strings.UnlinkOrVisit)
	s.weakHandles = serialWeakVisit(set.Handles.VisitWeak)
	s.debugWeakExport = serialWeakVisit(set.DebugWeakExport.UnlinkOrVisit)
	s.trace = serialWeakVisit(set.Trace.UnlinkOrVisit)

	set.Symbols.ResetClaims()
	set.Strings.ResetClaims()
	return s
}

// UnlinkOrVisit processes the weak-only root sources. The interned
// symbol table is always processed. The remaining sources are
// processed only when weak roots are deferred to this pass, and the
// weak-global handle area is skipped when it is designated for the
// concurrent scanner instead.
func (s *WeakScanner) UnlinkOrVisit(isAlive zgc.IsAlive, v zgc.Visitor) {
	s.symbols.visit(isAlive, v)
	if s.flags.DeferWeakRoots {
		if !s.flags.ConcurrentWeakHandles {
			s.weakHandles.visit(isAlive, v)
		}
		s.debugWeakExport.visit(isAlive, v)
		s.trace.visit(isAlive, v)
		s.strings.visit(isAlive, v)
	}
}

// Visit enumerates without unlinking: every referent is treated as
// alive.
func (s *WeakScanner) Visit(v zgc.Visitor) {
	s.UnlinkOrVisit(zgc.AlwaysAlive, v)
}

// Close ends the pass.
func (s *WeakScanner) Close() {
	if s.closed {
		panic("roots: weak scanner closed twice")
	}
	s.closed = true
}
