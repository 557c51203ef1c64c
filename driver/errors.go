package driver

import (
	"errors"
	"fmt"
)

// ErrDeadlock is returned (wrapped in IterationResult.Err) when an iteration
// ends with no enabled operations but at least one Blocked operation
// (spec.md §4.5 step 3d, §8 S6). Match with errors.Is.
var ErrDeadlock = errors.New("deadlock: no enabled operations, at least one blocked")

// ErrTimeout is returned when an iteration exceeds its configured deadline,
// either by wall-clock time or by MaxSchedulingSteps. Match with errors.Is.
var ErrTimeout = errors.New("iteration exceeded its deadline")

// ErrReplayMismatch is returned by Replay when a recorded schedule entry
// names an operation that is not enabled when replay reaches that step —
// the live run diverged from the one the schedule was captured from. Match
// with errors.Is; the wrapping message names the offending operation id and
// step.
var ErrReplayMismatch = errors.New("replay mismatch: recorded operation not enabled at this step")

// SchedulerMisuseError reports a violation the driver itself cannot recover
// from: a SchedulingStrategy returning an operation id outside the reduced
// enabled set, or a graph invariant violation surfaced by execgraph.Add.
// It is fatal to the whole run (spec.md §7); a Pool stops dispatching
// further iterations when one occurs.
type SchedulerMisuseError struct {
	Code    string
	Message string
	Cause   error
}

func (e *SchedulerMisuseError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *SchedulerMisuseError) Unwrap() error { return e.Cause }

// BugFoundError wraps an error returned by the instrumented test body,
// naming the operation and call site where it surfaced. Ends only the
// iteration that produced it.
type BugFoundError struct {
	OperationID uint64
	CallSite    string
	Cause       error
}

func (e *BugFoundError) Error() string {
	return fmt.Sprintf("bug found in operation %d at %s: %v", e.OperationID, e.CallSite, e.Cause)
}

func (e *BugFoundError) Unwrap() error { return e.Cause }
