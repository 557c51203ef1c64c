// Package emit provides the driver's "Runtime log" outbound contract
// (spec.md §6): structured records of scheduling decisions, deadlocks,
// timeouts, and iteration summaries, with pluggable backends.
package emit

import "context"

// Emitter receives and processes observability events from the driver.
//
// Emitters enable pluggable observability backends: logging, distributed
// tracing (OpenTelemetry), buffering for tests, or discarding entirely.
//
// Implementations should be non-blocking and thread-safe, since multiple
// iterations may run concurrently under driver.Pool, and resilient: a
// failing emitter must never abort a test run.
type Emitter interface {
	// Emit sends one event to the configured backend. Emit must not panic
	// and must not block the driver's scheduling loop for long.
	Emit(event Event)

	// EmitBatch sends multiple events in one operation, preserving order.
	// Returns an error only on catastrophic (e.g. configuration) failures;
	// individual event failures should be logged internally and swallowed.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until every buffered event has been sent to the
	// backend, or ctx is done. Safe to call multiple times.
	Flush(ctx context.Context) error
}
