// Package strategy defines the pluggable scheduling-decision contract
// (spec.md §6): given the operations surviving reduction at a scheduling
// point, pick which one runs next.
package strategy

import "github.com/NicoJuicy/coyote/operation"

// Context carries the ambient information a strategy may use to make its
// choice without coupling it to the driver's internals.
type Context struct {
	Iteration uint32
	Step      uint32
}

// SchedulingStrategy is the outbound, pluggable contract the driver asks to
// pick the next operation to run at every scheduling point (spec.md §4.5
// step f, §6).
type SchedulingStrategy interface {
	// Next picks one operation from enabled — which must already have had
	// reduction applied — and returns its id. Returning an id not present
	// in enabled is a fatal SchedulerMisuse error (spec.md §7).
	Next(enabled []*operation.ControlledOperation, ctx Context) (uint64, error)

	// InitializeNextIteration resets any per-iteration strategy state.
	InitializeNextIteration(iteration uint32)

	// Description returns a short human-readable identifier for logs and
	// coverage export (spec.md §6 "Coverage export").
	Description() string
}
