// Package metrics provides Prometheus instrumentation for the iteration
// driver: how many operations are active, how long iterations take, and
// how often they end in a bug report, deadlock, or timeout.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every metric the driver updates during a test run, all
// namespaced "coyote_".
type Metrics struct {
	activeOperations  prometheus.Gauge
	schedulingSteps   prometheus.Counter
	iterationDuration *prometheus.HistogramVec
	iterationsTotal   *prometheus.CounterVec
	operationsCreated prometheus.Counter

	mu      sync.RWMutex
	enabled bool
}

// New registers every driver metric with registry. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,

		activeOperations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "coyote",
			Name:      "active_operations",
			Help:      "Number of Enabled controlled operations at the driver's most recent scheduling decision",
		}),
		schedulingSteps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "coyote",
			Name:      "scheduling_steps_total",
			Help:      "Cumulative count of scheduling-point callbacks handled by the driver",
		}),
		iterationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coyote",
			Name:      "iteration_duration_ms",
			Help:      "Wall-clock duration of one iteration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
		}, []string{"status"}), // status: success, bug_found, deadlock, timeout, scheduler_misuse
		iterationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coyote",
			Name:      "iterations_total",
			Help:      "Cumulative count of iterations by terminal status",
		}, []string{"status"}),
		operationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "coyote",
			Name:      "operations_created_total",
			Help:      "Cumulative count of ControlledOperation instances created across all iterations",
		}),
	}
}

// SetActiveOperations updates the current active-operation gauge.
func (m *Metrics) SetActiveOperations(n int) {
	if !m.isEnabled() {
		return
	}
	m.activeOperations.Set(float64(n))
}

// IncSchedulingSteps increments the scheduling-step counter.
func (m *Metrics) IncSchedulingSteps() {
	if !m.isEnabled() {
		return
	}
	m.schedulingSteps.Inc()
}

// IncOperationsCreated increments the operations-created counter.
func (m *Metrics) IncOperationsCreated() {
	if !m.isEnabled() {
		return
	}
	m.operationsCreated.Inc()
}

// ObserveIteration records an iteration's duration and terminal status.
// status should be one of "success", "bug_found", "deadlock", "timeout",
// "scheduler_misuse".
func (m *Metrics) ObserveIteration(d time.Duration, status string) {
	if !m.isEnabled() {
		return
	}
	m.iterationDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
	m.iterationsTotal.WithLabelValues(status).Inc()
}

// Disable stops recording metrics (useful for tests that don't want to
// pollute a shared registry's values).
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable resumes recording metrics after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

func (m *Metrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}
