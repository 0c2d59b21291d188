package roots

import (
	zgc "github.com/stjordanis/zgc"
	"github.com/stjordanis/zgc/handles"
)

// A StrongSource enumerates references that must always be treated as
// live roots.
type StrongSource interface {
	VisitRoots(v zgc.Visitor)
}

// A WeakSource enumerates references the collector may sever: dead
// referents are unlinked, live ones reported.
type WeakSource interface {
	UnlinkOrVisit(isAlive zgc.IsAlive, v zgc.Visitor)
}

// An InternTable is a weak source whose entries are claimed per item
// by racing callers. The claim index must be reset before each pass.
type InternTable interface {
	WeakSource
	ResetClaims()
}

// A MetadataSource is a strong source with per-pass claim marks (the
// class-loader metadata graph).
type MetadataSource interface {
	StrongSource
	ResetClaims()
}

// A ThreadSource enumerates thread execution stacks. Its claim parity
// is flipped per pass, and every thread must be accounted for by the
// time the pass ends.
type ThreadSource interface {
	StrongSource
	ResetClaims()
	// AssertAllClaimed aborts if any thread was left unclaimed.
	AssertAllClaimed()
}

// A CompiledCodeSource enumerates roots embedded in compiled code and
// receives bracketing notifications around each collection cycle.
type CompiledCodeSource interface {
	StrongSource
	CyclePrologue()
	CycleEpilogue()
}

// A World reports whether all mutator threads are stopped. Pause
// scanners assert this precondition at construction; establishing the
// stop is the driving phase's job, not theirs.
type World interface {
	Stopped() bool
}

// A Set names every root source a collection cycle scans. Scanners
// receive the set explicitly instead of reaching for process globals.
type Set struct {
	World World

	GlobalObjects StrongSource // global object table
	Monitors      StrongSource // monitor table
	Management    StrongSource // management-bean roots
	DebugExport   StrongSource // debug/profiling agent export, strong part
	SystemClasses StrongSource // system class registry
	ClassMetadata MetadataSource
	Threads       ThreadSource
	CompiledCode  CompiledCodeSource

	DebugWeakExport WeakSource  // debug/profiling agent export, weak part
	Trace           WeakSource  // tracing subsystem roots
	Strings         InternTable // interned strings
	Symbols         InternTable // interned symbols

	Handles *handles.Table
}

// Flags are the per-pass configuration switches recognized by the
// scanners.
type Flags struct {
	// DeferWeakRoots excludes weak sources from the pause scanner's
	// single pass; the dedicated weak pass handles them instead.
	DeferWeakRoots bool

	// ConcurrentWeakHandles designates the weak-global handle area
	// for the concurrent scanner rather than the paused weak pass.
	ConcurrentWeakHandles bool
}
