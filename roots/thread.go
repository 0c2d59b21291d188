package roots

import (
	zgc "github.com/stjordanis/zgc"
)

// A ThreadScanner visits thread execution stacks and nothing else,
// for phases that only need a stack rescan, such as revisiting the
// stacks against a relocation set, without the full pause scanner's
// prologue and epilogue on every other source.
type ThreadScanner struct {
	set    *Set
	closed bool

	threads guardedVisit
}

// NewThreadScanner prepares a stack-only scan. The world must already
// be stopped; thread claim parity is flipped so this pass starts
// clean.
func NewThreadScanner(set *Set) *ThreadScanner {
	if !set.World.Stopped() {
		panic("roots: thread scan outside a mutator stop")
	}
	s := &ThreadScanner{set: set}
	s.threads = racyVisit(set.Threads.VisitRoots)
	set.Threads.ResetClaims()
	return s
}

// Visit claims and visits the thread stacks. Workers may call it
// concurrently.
func (s *ThreadScanner) Visit(v zgc.Visitor) {
	s.threads.visit(v)
}

// Close ends the pass; every thread must have been claimed.
func (s *ThreadScanner) Close() {
	if s.closed {
		panic("roots: thread scanner closed twice")
	}
	s.closed = true
	s.set.Threads.AssertAllClaimed()
}
