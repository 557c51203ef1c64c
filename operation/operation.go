// Package operation defines ControlledOperation, the unit of schedulable
// work the driver serializes, and Registry, the per-iteration collection
// of operations a scheduling step chooses among.
package operation

import (
	"context"
	"sync"

	"github.com/NicoJuicy/coyote/scheduling"
)

// Status is the lifecycle state of a ControlledOperation (spec.md §3).
type Status int

const (
	// Created means the operation has been registered but has not yet run.
	Created Status = iota
	// Enabled means the operation is eligible to be picked at a scheduling point.
	Enabled
	// Blocked means the operation is waiting on a condition external to the scheduler.
	Blocked
	// Completed means the operation has finished; it records no further scheduling points.
	Completed
)

// String renders the status for logs.
func (s Status) String() string {
	switch s {
	case Created:
		return "Created"
	case Enabled:
		return "Enabled"
	case Blocked:
		return "Blocked"
	case Completed:
		return "Completed"
	default:
		return "Unknown"
	}
}

// RootParentID is the sentinel parent id used by the root operation of an iteration.
const RootParentID uint64 = 0

// ControlledOperation is one schedulable logical task (spec.md §3).
//
// Fields are mutated only by the driver and the instrumentation callbacks
// it exposes (spec.md §4.2); all other callers, including the reducer and
// the execution graph, only ever read these fields.
type ControlledOperation struct {
	mu sync.Mutex

	id         uint64
	parentID   uint64
	sequenceID uint64
	isRoot     bool

	status Status

	lastSchedulingPoint        scheduling.Type
	lastAccessedSharedState    *string
	lastAccessedSharedStateCmp Equivalence
	lastHashedProgramState     int32

	visitedCallSites []string

	// resume is the baton channel: the driver sends on it to grant this
	// operation the single logical thread of control; the operation's own
	// goroutine blocks receiving from it while another operation runs.
	resume chan struct{}
}

// New creates a ControlledOperation. id and sequenceID are assigned by the
// caller (the driver's registry), which owns id allocation so that ids stay
// unique within an iteration (spec.md §3 invariant).
func New(id, parentID, sequenceID uint64, isRoot bool) *ControlledOperation {
	return &ControlledOperation{
		id:         id,
		parentID:   parentID,
		sequenceID: sequenceID,
		isRoot:     isRoot,
		status:     Created,
		resume:     make(chan struct{}, 1),
	}
}

// ID returns the operation's unique id.
func (op *ControlledOperation) ID() uint64 { return op.id }

// ParentID returns the id of the operation that spawned this one, or
// RootParentID for the root.
func (op *ControlledOperation) ParentID() uint64 { return op.parentID }

// SequenceID returns the operation's creation order.
func (op *ControlledOperation) SequenceID() uint64 { return op.sequenceID }

// IsRoot reports whether this is the iteration's root operation.
func (op *ControlledOperation) IsRoot() bool { return op.isRoot }

// Status returns the operation's current lifecycle state.
func (op *ControlledOperation) Status() Status {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status
}

// LastSchedulingPoint returns the kind of the most recently reported scheduling point.
func (op *ControlledOperation) LastSchedulingPoint() scheduling.Type {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.lastSchedulingPoint
}

// LastAccessedSharedState returns the shared-state key from the most recent
// scheduling point, or nil if none was reported.
func (op *ControlledOperation) LastAccessedSharedState() *string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.lastAccessedSharedState
}

// LastAccessedSharedStateComparer returns the Equivalence attached to the
// most recent scheduling point, or nil to fall back to string equality.
func (op *ControlledOperation) LastAccessedSharedStateComparer() Equivalence {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.lastAccessedSharedStateCmp
}

// LastHashedProgramState returns the externally supplied program-state hash
// from the most recent scheduling point.
func (op *ControlledOperation) LastHashedProgramState() int32 {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.lastHashedProgramState
}

// VisitedCallSites returns a copy of the call sites visited so far this
// iteration, in visitation order. The underlying slice is append-only
// within an iteration (spec.md §3 invariant); callers receive a copy so
// they cannot violate that by mutating the result.
func (op *ControlledOperation) VisitedCallSites() []string {
	op.mu.Lock()
	defer op.mu.Unlock()
	out := make([]string, len(op.visitedCallSites))
	copy(out, op.visitedCallSites)
	return out
}

// VisitedCallSiteCount returns len(VisitedCallSites()) without allocating a copy.
func (op *ControlledOperation) VisitedCallSiteCount() int {
	op.mu.Lock()
	defer op.mu.Unlock()
	return len(op.visitedCallSites)
}

// RecordSchedulingPoint applies the effects of a scheduling-point callback
// (spec.md §4.5 step 3a): updates last-point bookkeeping and appends
// callSite to the append-only visited list. Only the driver should call this.
func (op *ControlledOperation) RecordSchedulingPoint(point scheduling.Type, sharedKey *string, cmp Equivalence, callSite string, stateHash int32) {
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.status == Completed {
		// Invariant: once Completed, no further scheduling point is recorded.
		return
	}
	op.lastSchedulingPoint = point
	op.lastAccessedSharedState = sharedKey
	op.lastAccessedSharedStateCmp = cmp
	op.lastHashedProgramState = stateHash
	op.visitedCallSites = append(op.visitedCallSites, callSite)
}

// SetStatus transitions the operation's lifecycle status. Only the driver
// and its lifecycle callbacks (on_create/on_complete/on_block/on_unblock)
// should call this.
func (op *ControlledOperation) SetStatus(s Status) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.status = s
}

// GrantTurn hands the scheduling baton to this operation. It never blocks:
// the resume channel has capacity one, matching the invariant that an
// operation is only ever granted a turn it has not already been granted.
// Only the driver should call this.
func (op *ControlledOperation) GrantTurn() {
	select {
	case op.resume <- struct{}{}:
	default:
		// Already holds an outstanding grant (a driver double-grant): the
		// extra grant is dropped without a panic, and nothing is reported
		// to the caller.
	}
}

// AwaitTurn blocks the calling goroutine until the driver grants it the
// baton via GrantTurn, or ctx is done. Only an operation's own goroutine
// should call this, on itself.
func (op *ControlledOperation) AwaitTurn(ctx context.Context) error {
	select {
	case <-op.resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
