// Package core implements the session's identity table, task queue, graph
// walker, and flush planner: the machinery that turns save/remove/refresh
// calls into ordered persister operations.
package core

// PropertyFlags describes how a mapped field participates in cascading
// session operations and graph traversal.
type PropertyFlags uint16

// FlagNone marks a field that the walker should not look at further.
const FlagNone PropertyFlags = 0

const (
	FlagIgnored PropertyFlags = 1 << iota
	FlagCascadeSave
	FlagCascadeRemove
	FlagCascadeDetach
	FlagCascadeRefresh
	FlagCascadeMerge
	FlagInverseSide
	FlagNullable
	FlagOrphanRemoval
	FlagDereference
)

// FlagCascadeAll is the union of every cascade flag.
const FlagCascadeAll = FlagCascadeSave | FlagCascadeRemove | FlagCascadeDetach | FlagCascadeRefresh | FlagCascadeMerge

// Has reports whether m contains every bit set in flag.
func (m PropertyFlags) Has(flag PropertyFlags) bool { return m&flag == flag }

// Any reports whether m shares at least one bit with flag.
func (m PropertyFlags) Any(flag PropertyFlags) bool { return m&flag != 0 }
