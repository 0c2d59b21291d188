// Package roots locates every reference into the managed heap that
// originates outside it. It composes one claim guard per root source
// so that any number of worker threads can race through the same
// scanner without a source being missed or processed twice, and
// provides the pause, weak, concurrent-weak and thread-only scanners
// the collection phases drive.
package roots

import (
	"sync/atomic"

	zgc "github.com/stjordanis/zgc"
)

// A claim decides which of the callers racing to process one root
// source actually runs the visit. It is the only synchronization in a
// scanning pass: no locks, no blocking.
type claim interface {
	// begin reports whether the observing caller should run the
	// wrapped visit.
	begin() bool
	// end records that a visit finished.
	end()
}

// serialClaim admits exactly one caller, decided by a single
// compare-and-swap. Losers return immediately without visiting.
type serialClaim struct {
	taken atomic.Bool
}

func (c *serialClaim) begin() bool {
	return !c.taken.Load() && c.taken.CompareAndSwap(false, true)
}

func (c *serialClaim) end() {}

// racyClaim admits every caller that arrives before the first
// completion becomes visible, so the wrapped visit may run more than
// once. A source guarded this way must claim its work per item
// internally: a duplicate call distributes over the remaining items
// instead of repeating any.
type racyClaim struct {
	completed atomic.Bool
}

func (c *racyClaim) begin() bool {
	return !c.completed.Load()
}

func (c *racyClaim) end() {
	c.completed.Store(true)
}

// guardedVisit binds a strong root source's visit to a claim policy
// for the lifetime of one scanner. The guard performs no visitation
// logic of its own.
type guardedVisit struct {
	claim claim
	do    func(zgc.Visitor)
}

func serialVisit(do func(zgc.Visitor)) guardedVisit {
	return guardedVisit{claim: new(serialClaim), do: do}
}

func racyVisit(do func(zgc.Visitor)) guardedVisit {
	return guardedVisit{claim: new(racyClaim), do: do}
}

func (g *guardedVisit) visit(v zgc.Visitor) {
	if g.claim.begin() {
		g.do(v)
		g.claim.end()
	}
}

// guardedWeakVisit is the unlink-or-report counterpart of
// guardedVisit.
type guardedWeakVisit struct {
	claim claim
	do    func(zgc.IsAlive, zgc.Visitor)
}

func serialWeakVisit(do func(zgc.IsAlive, zgc.Visitor)) guardedWeakVisit {
	return guardedWeakVisit{claim: new(serialClaim), do: do}
}

func racyWeakVisit(do func(zgc.IsAlive, zgc.Visitor)) guardedWeakVisit {
	return guardedWeakVisit{claim: new(racyClaim), do: do}
}

func (g *guardedWeakVisit) visit(isAlive zgc.IsAlive, v zgc.Visitor) {
	if g.claim.begin() {
		g.do(isAlive, v)
		g.claim.end()
	}
}

// strongly folds a weak enumeration into a strong one by treating
// every referent as alive.
func strongly(do func(zgc.IsAlive, zgc.Visitor)) func(zgc.Visitor) {
	return func(v zgc.Visitor) { do(zgc.AlwaysAlive, v) }
}
