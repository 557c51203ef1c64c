package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlDocument is the on-disk shape of a Configuration. Durations are
// stored as strings (e.g. "30s") so the file stays human-editable.
type yamlDocument struct {
	IterationCount     uint32 `yaml:"iteration_count"`
	MaxSchedulingSteps uint32 `yaml:"max_scheduling_steps"`
	Timeout            string `yaml:"timeout"`
	Seed               uint64 `yaml:"seed"`
	StrategyKind       string `yaml:"strategy_kind"`
	IsCoverageEnabled  bool   `yaml:"is_coverage_enabled"`
}

// LoadYAML reads a Configuration from a YAML file at path, applying the
// same defaults and validation as New.
func LoadYAML(path string) (Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}
	return ParseYAML(data)
}

// ParseYAML decodes a Configuration from YAML bytes.
func ParseYAML(data []byte) (Configuration, error) {
	doc := yamlDocument{
		IterationCount:     Default().IterationCount,
		MaxSchedulingSteps: Default().MaxSchedulingSteps,
		Timeout:            Default().Timeout.String(),
		StrategyKind:       Default().StrategyKind,
		IsCoverageEnabled:  Default().IsCoverageEnabled,
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Configuration{}, err
	}

	timeout, err := time.ParseDuration(doc.Timeout)
	if err != nil {
		return Configuration{}, &ValidationError{Field: "Timeout", Message: err.Error()}
	}

	cfg := Configuration{
		IterationCount:     doc.IterationCount,
		MaxSchedulingSteps: doc.MaxSchedulingSteps,
		Timeout:            timeout,
		Seed:               doc.Seed,
		StrategyKind:       doc.StrategyKind,
		IsCoverageEnabled:  doc.IsCoverageEnabled,
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// SaveYAML writes cfg to path as YAML.
func SaveYAML(path string, cfg Configuration) error {
	doc := yamlDocument{
		IterationCount:     cfg.IterationCount,
		MaxSchedulingSteps: cfg.MaxSchedulingSteps,
		Timeout:            cfg.Timeout.String(),
		Seed:               cfg.Seed,
		StrategyKind:       cfg.StrategyKind,
		IsCoverageEnabled:  cfg.IsCoverageEnabled,
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
