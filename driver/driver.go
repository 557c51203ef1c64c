// Package driver is the Iteration Driver: the scheduler core that resumes
// exactly one ControlledOperation at a time, routes scheduling-point
// callbacks through a SchedulingStrategy and IScheduleReducer, and records
// the resulting execution graph (spec.md §4.5).
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NicoJuicy/coyote/config"
	"github.com/NicoJuicy/coyote/emit"
	"github.com/NicoJuicy/coyote/execgraph"
	"github.com/NicoJuicy/coyote/metrics"
	"github.com/NicoJuicy/coyote/operation"
	"github.com/NicoJuicy/coyote/reduce"
	"github.com/NicoJuicy/coyote/scheduling"
	"github.com/NicoJuicy/coyote/strategy"
)

// Status classifies how an iteration ended.
type Status int

const (
	// StatusSuccess means every operation completed and none reported an error.
	StatusSuccess Status = iota
	// StatusBugFound means the test body (or an operation it spawned) returned an error.
	StatusBugFound
	// StatusDeadlock means no operation was enabled while at least one remained blocked.
	StatusDeadlock
	// StatusTimeout means the iteration exceeded its wall-clock deadline or MaxSchedulingSteps.
	StatusTimeout
	// StatusSchedulerMisuse means the strategy or graph invariants were violated.
	// This is fatal to the whole run, not just this iteration (spec.md §7);
	// a Pool must stop dispatching further iterations when it sees this status.
	StatusSchedulerMisuse
)

// String renders the status for logs.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusBugFound:
		return "bug_found"
	case StatusDeadlock:
		return "deadlock"
	case StatusTimeout:
		return "timeout"
	case StatusSchedulerMisuse:
		return "scheduler_misuse"
	default:
		return "unknown"
	}
}

// IterationResult is what RunIteration returns.
type IterationResult struct {
	Status   Status
	Err      error
	Graph    *execgraph.Graph
	Steps    uint32
	Duration time.Duration
}

// TestBody is instrumented user code driven by the scheduler. It receives
// a Runtime bound to the root operation of the iteration; body may call
// Runtime.Spawn to create further concurrently-reasoned-about operations,
// and Runtime.SchedulingPoint/Block at every point the system under test
// could plausibly interleave.
type TestBody func(ctx context.Context, rt *Runtime) error

// Driver runs iterations of a TestBody under a pluggable strategy and
// reducer, recording the execution graph and (optionally) emitting events
// and metrics for each one.
type Driver struct {
	Strategy strategy.SchedulingStrategy
	Reducer  reduce.IScheduleReducer
	Emitter  emit.Emitter
	Metrics  *metrics.Metrics
}

// New constructs a Driver. emitter and m may be nil (NullEmitter / disabled
// metrics behavior is provided by the caller if desired); strategy and
// reducer must not be nil.
func New(strat strategy.SchedulingStrategy, reducer reduce.IScheduleReducer, emitter emit.Emitter, m *metrics.Metrics) *Driver {
	return &Driver{Strategy: strat, Reducer: reducer, Emitter: emitter, Metrics: m}
}

type eventKind int

const (
	eventSchedulingPoint eventKind = iota
	eventCompleted
	eventBlocked
)

type driverEvent struct {
	kind eventKind

	op *operation.ControlledOperation

	// scheduling point fields
	point     scheduling.Type
	sharedKey *string
	cmp       operation.Equivalence
	callSite  string
	stateHash int32

	// completion / block fields
	err    error
	reason string
}

// iterationState is the per-iteration bookkeeping shared between the
// driver's loop and every Runtime spawned within that iteration.
type iterationState struct {
	ctx      context.Context
	registry *operation.Registry
	graph    *execgraph.Graph
	events   chan driverEvent
	wg       sync.WaitGroup
}

// Runtime is the handle instrumented code uses to report scheduling points
// and spawn concurrently-reasoned-about operations. Each ControlledOperation
// has exactly one Runtime, used only by that operation's own goroutine.
type Runtime struct {
	op *operation.ControlledOperation
	it *iterationState
}

// OperationID returns the id of the operation this Runtime is bound to.
func (rt *Runtime) OperationID() uint64 { return rt.op.ID() }

// SchedulingPoint reports a scheduling-point callback (spec.md §4.5 step 3)
// and blocks until the driver grants this operation its next turn. callSite
// should identify the call's source location (e.g. "worker.go:42").
func (rt *Runtime) SchedulingPoint(point scheduling.Type, sharedKey *string, cmp operation.Equivalence, callSite string, stateHash int32) error {
	select {
	case rt.it.events <- driverEvent{kind: eventSchedulingPoint, op: rt.op, point: point, sharedKey: sharedKey, cmp: cmp, callSite: callSite, stateHash: stateHash}:
	case <-rt.it.ctx.Done():
		return rt.it.ctx.Err()
	}
	return rt.op.AwaitTurn(rt.it.ctx)
}

// Block transitions this operation to Blocked and yields control; it
// returns once some other operation calls Unblock on it and the driver
// subsequently grants it a turn again.
func (rt *Runtime) Block(reason string) error {
	rt.op.SetStatus(operation.Blocked)
	select {
	case rt.it.events <- driverEvent{kind: eventBlocked, op: rt.op, reason: reason}:
	case <-rt.it.ctx.Done():
		return rt.it.ctx.Err()
	}
	return rt.op.AwaitTurn(rt.it.ctx)
}

// Unblock transitions target's operation back to Enabled, making it
// eligible for selection at the next scheduling decision. Call this from
// the operation releasing whatever target was waiting on.
func (rt *Runtime) Unblock(target *Runtime) {
	target.op.SetStatus(operation.Enabled)
}

// Spawn creates a new operation as a child of rt's operation and starts fn
// running on its own goroutine. fn does not run until the driver grants the
// new operation a turn. The returned Runtime is fn's handle on that
// operation.
func (rt *Runtime) Spawn(fn func(ctx context.Context, child *Runtime) error) *Runtime {
	child := rt.it.registry.Create(rt.op.ID())
	child.SetStatus(operation.Enabled)
	childRT := &Runtime{op: child, it: rt.it}

	rt.it.wg.Add(1)
	go func() {
		defer rt.it.wg.Done()
		if err := child.AwaitTurn(rt.it.ctx); err != nil {
			return
		}
		err := fn(rt.it.ctx, childRT)
		childRT.complete(err)
	}()

	return childRT
}

func (rt *Runtime) complete(err error) {
	rt.op.SetStatus(operation.Completed)
	select {
	case rt.it.events <- driverEvent{kind: eventCompleted, op: rt.op, err: err}:
	case <-rt.it.ctx.Done():
	}
}

// RunIteration runs one iteration of body under cfg, passing iteration to
// the strategy's and reducer's InitializeNextIteration; cfg.Timeout sets the
// deadline. Exactly one goroutine's code is logically "running" at any
// instant; the driver resumes operations one at a time via the baton in
// operation.ControlledOperation.
//
// Each iteration records into a fresh execgraph.Graph, so the coverage map
// in IterationResult.Graph covers that iteration only; coverage does not
// accumulate across the iterations a Driver runs.
func (d *Driver) RunIteration(ctx context.Context, cfg config.Configuration, iteration uint32, body TestBody) IterationResult {
	start := time.Now()
	d.Strategy.InitializeNextIteration(iteration)
	d.Reducer.InitializeNextIteration(iteration)

	iterCtx := ctx
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		iterCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	it := &iterationState{
		ctx:      iterCtx,
		registry: operation.NewRegistry(),
		graph:    execgraph.New(),
		events:   make(chan driverEvent),
	}

	root := it.registry.CreateRoot()
	root.SetStatus(operation.Enabled)
	rootRT := &Runtime{op: root, it: it}

	it.wg.Add(1)
	go func() {
		defer it.wg.Done()
		if err := root.AwaitTurn(it.ctx); err != nil {
			return
		}
		err := body(it.ctx, rootRT)
		rootRT.complete(err)
	}()

	if d.Metrics != nil {
		d.Metrics.IncOperationsCreated()
	}
	root.GrantTurn()

	result := d.loop(it, iteration, cfg.MaxSchedulingSteps)
	result.Duration = time.Since(start)

	if d.Metrics != nil {
		d.Metrics.ObserveIteration(result.Duration, result.Status.String())
	}
	d.emitIterationSummary(iteration, result)

	return result
}

func (d *Driver) loop(it *iterationState, iteration uint32, maxSteps uint32) IterationResult {
	var steps uint32
	var current *operation.ControlledOperation

	for {
		select {
		case <-it.ctx.Done():
			return IterationResult{Status: StatusTimeout, Err: ErrTimeout, Graph: it.graph.Snapshot(), Steps: steps}

		case ev := <-it.events:
			current = ev.op

			if ev.kind == eventCompleted && ev.err != nil {
				return IterationResult{
					Status: StatusBugFound,
					Err:    &BugFoundError{OperationID: ev.op.ID(), CallSite: lastCallSite(ev.op), Cause: ev.err},
					Graph:  it.graph.Snapshot(),
					Steps:  steps,
				}
			}

			if ev.kind == eventSchedulingPoint {
				ev.op.RecordSchedulingPoint(ev.point, ev.sharedKey, ev.cmp, ev.callSite, ev.stateHash)
				if err := it.graph.Add(ev.op); err != nil {
					return IterationResult{
						Status: StatusSchedulerMisuse,
						Err:    &SchedulerMisuseError{Code: "GRAPH_INVARIANT", Message: err.Error(), Cause: err},
						Graph:  it.graph.Snapshot(),
						Steps:  steps,
					}
				}
				steps++
				if d.Metrics != nil {
					d.Metrics.IncSchedulingSteps()
				}
				d.emitSchedulingPoint(iteration, steps, ev)

				if maxSteps > 0 && steps >= maxSteps {
					return IterationResult{Status: StatusTimeout, Err: ErrTimeout, Graph: it.graph.Snapshot(), Steps: steps}
				}
			}
		}

		enabled := it.registry.Enabled()
		if d.Metrics != nil {
			d.Metrics.SetActiveOperations(len(enabled))
		}

		if len(enabled) == 0 {
			if it.registry.AllCompleted() {
				return IterationResult{Status: StatusSuccess, Graph: it.graph.Snapshot(), Steps: steps}
			}
			if it.registry.AnyBlocked() {
				return IterationResult{Status: StatusDeadlock, Err: ErrDeadlock, Graph: it.graph.Snapshot(), Steps: steps}
			}
			// No enabled, not all completed, none blocked: every remaining
			// operation is Created but never ran. Treat as success; nothing
			// further can ever be scheduled.
			return IterationResult{Status: StatusSuccess, Graph: it.graph.Snapshot(), Steps: steps}
		}

		reduced := d.Reducer.Reduce(enabled, current)

		nextID, err := d.Strategy.Next(reduced, strategy.Context{Iteration: iteration, Step: steps})
		if err != nil {
			return IterationResult{
				Status: StatusSchedulerMisuse,
				Err:    &SchedulerMisuseError{Code: "STRATEGY_ERROR", Message: err.Error(), Cause: err},
				Graph:  it.graph.Snapshot(),
				Steps:  steps,
			}
		}

		next := it.registry.Get(nextID)
		if next == nil || !inSet(reduced, nextID) {
			return IterationResult{
				Status: StatusSchedulerMisuse,
				Err:    &SchedulerMisuseError{Code: "STRATEGY_OUT_OF_SET", Message: fmt.Sprintf("strategy returned operation %d, not in reduced enabled set", nextID)},
				Graph:  it.graph.Snapshot(),
				Steps:  steps,
			}
		}

		next.GrantTurn()
	}
}

func inSet(ops []*operation.ControlledOperation, id uint64) bool {
	for _, op := range ops {
		if op.ID() == id {
			return true
		}
	}
	return false
}

func lastCallSite(op *operation.ControlledOperation) string {
	sites := op.VisitedCallSites()
	if len(sites) == 0 {
		return ""
	}
	return sites[len(sites)-1]
}

func (d *Driver) emitSchedulingPoint(iteration uint32, step uint32, ev driverEvent) {
	if d.Emitter == nil {
		return
	}
	d.Emitter.Emit(emit.Event{
		IterationID: iteration,
		StepID:      step,
		OperationID: ev.op.ID(),
		Msg:         "op_scheduled",
		Meta: map[string]interface{}{
			"call_site":        ev.callSite,
			"scheduling_point": ev.point.String(),
		},
	})
}

func (d *Driver) emitIterationSummary(iteration uint32, result IterationResult) {
	if d.Emitter == nil {
		return
	}
	meta := map[string]interface{}{
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		meta["error"] = result.Err.Error()
	}
	d.Emitter.Emit(emit.Event{
		IterationID: iteration,
		StepID:      result.Steps,
		Msg:         result.Status.String(),
		Meta:        meta,
	})
}
