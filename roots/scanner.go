package roots

import (
	zgc "github.com/stjordanis/zgc"
)

// A Scanner performs one full strong root scan during a pause,
// optionally folding the weak sources into the same pass. It is
// single use: construct it inside the pause, let any number of
// workers call Scan, then Close it before the pause ends.
type Scanner struct {
	set    *Set
	flags  Flags
	closed bool

	globalObjects guardedVisit
	globalHandles guardedVisit
	monitors      guardedVisit
	management    guardedVisit
	debugExport   guardedVisit
	systemClasses guardedVisit
	classMetadata guardedVisit
	threads       guardedVisit
	compiledCode  guardedVisit

	weakHandles     guardedVisit
	debugWeakExport guardedVisit
	trace           guardedVisit
	strings         guardedVisit
}

// NewScanner prepares a pause scan. The world must already be
// stopped. Per-pass claim bookkeeping of the racing sources is reset
// so the pass starts from a clean claim state, and the compiled-code
// registry is told a collection cycle is starting.
func NewScanner(set *Set, flags Flags) *Scanner {
	if !set.World.Stopped() {
		panic("roots: pause scan outside a mutator stop")
	}
	s := &Scanner{set: set, flags: flags}

	// Sources that claim per item internally get the racy policy;
	// everything else is claimed whole by a single caller.
	s.globalObjects = serialVisit(set.GlobalObjects.VisitRoots)
	s.globalHandles = serialVisit(set.Handles.VisitStrong)
	s.monitors = serialVisit(set.Monitors.VisitRoots)
	s.management = serialVisit(set.Management.VisitRoots)
	s.debugExport = serialVisit(set.DebugExport.VisitRoots)
	s.systemClasses = serialVisit(set.SystemClasses.VisitRoots)
	s.classMetadata = racyVisit(set.ClassMetadata.VisitRoots)
	s.threads = racyVisit(set.Threads.VisitRoots)
	s.compiledCode = racyVisit(set.CompiledCode.VisitRoots)

	s.weakHandles = serialVisit(strongly(set.Handles.VisitWeak))
	s.debugWeakExport = serialVisit(strongly(set.DebugWeakExport.UnlinkOrVisit))
	s.trace = serialVisit(strongly(set.Trace.UnlinkOrVisit))
	s.strings = racyVisit(strongly(set.Strings.UnlinkOrVisit))

	set.Threads.ResetClaims()
	set.Strings.ResetClaims()
	set.ClassMetadata.ResetClaims()
	set.CompiledCode.CyclePrologue()
	return s
}

// Scan visits every root source owned by this scanner. Workers may
// call it concurrently; the claim guards admit each source to at most
// the callers its policy allows. Ordering between sources is
// unspecified.
//
// When weak roots are deferred to the dedicated weak pass, only the
// debug agent's weak export can be folded into this pass, controlled
// by includeWeakDebugExport; the other weak sources are skipped.
func (s *Scanner) Scan(v zgc.Visitor, includeWeakDebugExport bool) {
	s.globalObjects.visit(v)
	s.globalHandles.visit(v)
	s.monitors.visit(v)
	s.management.visit(v)
	s.debugExport.visit(v)
	s.systemClasses.visit(v)
	s.classMetadata.visit(v)
	s.threads.visit(v)
	s.compiledCode.visit(v)
	if !s.flags.DeferWeakRoots {
		s.weakHandles.visit(v)
		s.debugWeakExport.visit(v)
		s.trace.visit(v)
		s.strings.visit(v)
	} else if includeWeakDebugExport {
		s.debugWeakExport.visit(v)
	}
}

// Close ends the pass: the compiled-code registry is told the cycle
// is over, and every thread must have been claimed by now.
func (s *Scanner) Close() {
	if s.closed {
		panic("roots: scanner closed twice")
	}
	s.closed = true
	s.set.CompiledCode.CycleEpilogue()
	s.set.Threads.AssertAllClaimed()
}
