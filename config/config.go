// Package config defines the Configuration record the iteration driver
// accepts (spec.md §6), built via functional options or loaded from YAML.
package config

import (
	"fmt"
	"time"
)

// Configuration controls one test run: how many iterations to explore, how
// deep each iteration may go, and which strategy picks the next operation
// at every scheduling point.
type Configuration struct {
	// IterationCount is how many times the driver re-runs the
	// instrumented program, each time with a (possibly) different
	// schedule.
	IterationCount uint32

	// MaxSchedulingSteps bounds the number of scheduling points a single
	// iteration may reach before it is aborted as non-terminating.
	MaxSchedulingSteps uint32

	// Timeout is the per-iteration wall-clock deadline (spec.md §5).
	Timeout time.Duration

	// Seed is the base seed every pluggable strategy derives its
	// per-iteration seed from, for reproducible exploration.
	Seed uint64

	// StrategyKind names which registered SchedulingStrategy to use
	// (e.g. "random"). Resolution is left to the host binary.
	StrategyKind string

	// IsCoverageEnabled is carried, validated and serialized with the rest
	// of the Configuration. The driver does not read it: every iteration
	// records its execution graph, coverage map and per-operation
	// frequencies whatever its value.
	IsCoverageEnabled bool
}

// Option configures a Configuration. Options compose: later options in a
// call to New override earlier ones.
//
// Example:
//
//	cfg, err := config.New(
//	    config.WithIterationCount(1000),
//	    config.WithSeed(42),
//	    config.WithStrategyKind("random"),
//	)
type Option func(*Configuration) error

// Default returns the baseline Configuration that New starts from before
// applying options.
func Default() Configuration {
	return Configuration{
		IterationCount:     100,
		MaxSchedulingSteps: 10_000,
		Timeout:            30 * time.Second,
		Seed:               0,
		StrategyKind:       "random",
		IsCoverageEnabled:  true,
	}
}

// New builds a Configuration starting from Default and applying opts in
// order, then validates the result.
func New(opts ...Option) (Configuration, error) {
	cfg := Default()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Configuration{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// WithIterationCount sets how many iterations the driver runs.
//
// Default: 100. Must be at least 1.
func WithIterationCount(n uint32) Option {
	return func(cfg *Configuration) error {
		cfg.IterationCount = n
		return nil
	}
}

// WithMaxSchedulingSteps bounds the number of scheduling points a single
// iteration may reach.
//
// Default: 10000. A low value surfaces non-terminating iterations quickly
// at the cost of possibly truncating legitimate long-running programs;
// tune upward for programs with many operations or long loops.
func WithMaxSchedulingSteps(n uint32) Option {
	return func(cfg *Configuration) error {
		cfg.MaxSchedulingSteps = n
		return nil
	}
}

// WithTimeout sets the per-iteration wall-clock deadline.
//
// Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(cfg *Configuration) error {
		cfg.Timeout = d
		return nil
	}
}

// WithSeed sets the base seed strategies derive their per-iteration seed
// from. Two runs with identical seed, strategy, and instrumented program
// explore identical schedules.
func WithSeed(seed uint64) Option {
	return func(cfg *Configuration) error {
		cfg.Seed = seed
		return nil
	}
}

// WithStrategyKind names which registered SchedulingStrategy the host
// should construct.
//
// Default: "random".
func WithStrategyKind(kind string) Option {
	return func(cfg *Configuration) error {
		cfg.StrategyKind = kind
		return nil
	}
}

// WithCoverageEnabled sets IsCoverageEnabled. The driver does not read the
// field; coverage is recorded per iteration regardless.
//
// Default: true.
func WithCoverageEnabled(enabled bool) Option {
	return func(cfg *Configuration) error {
		cfg.IsCoverageEnabled = enabled
		return nil
	}
}

// ValidationError reports a Configuration field that fails validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Message)
}

// Validate checks the Configuration for internally inconsistent values.
func (cfg Configuration) Validate() error {
	if cfg.IterationCount < 1 {
		return &ValidationError{Field: "IterationCount", Message: "must be at least 1"}
	}
	if cfg.MaxSchedulingSteps < 1 {
		return &ValidationError{Field: "MaxSchedulingSteps", Message: "must be at least 1"}
	}
	if cfg.Timeout <= 0 {
		return &ValidationError{Field: "Timeout", Message: "must be positive"}
	}
	if cfg.StrategyKind == "" {
		return &ValidationError{Field: "StrategyKind", Message: "must not be empty"}
	}
	return nil
}
