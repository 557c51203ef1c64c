package emit

// Event represents an observability record emitted during one iteration of
// the driver's scheduling loop.
//
// The driver emits two kinds of event:
//   - "op_scheduled", once per scheduling point an operation reports
//   - one iteration summary, whose Msg is the iteration's terminal status
//     ("success", "bug_found", "deadlock", "timeout", "scheduler_misuse")
//
// Events are emitted to an Emitter which can log to stdout/stderr, send to
// OpenTelemetry, buffer for later inspection, or discard.
type Event struct {
	// IterationID identifies which iteration emitted this event.
	IterationID uint32

	// StepID is the sequential scheduling step within the iteration
	// (1-indexed). The driver's iteration summary carries the total number
	// of steps the iteration took here.
	StepID uint32

	// OperationID identifies which operation emitted this event. Zero for
	// iteration-level events.
	OperationID uint64

	// Msg is a human-readable description of the event (e.g.
	// "op_scheduled", "deadlock", "timeout").
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "call_site": the call site recorded at this scheduling point
	//   - "scheduling_point": the scheduling.Type as a string
	//   - "duration_ms": iteration duration, for iteration-level events
	//   - "error": the iteration's error message, for iteration-level events
	//     that ended with one
	Meta map[string]interface{}
}
