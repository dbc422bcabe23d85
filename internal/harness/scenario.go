package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance scenario: a trial definition, a batch
// run configuration, and assertions over the aggregated summary.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Trial is the path to the YAML trial definition, relative to the
	// scenario file location.
	Trial string `yaml:"trial"`

	// Run configures the simulated batch.
	Run RunBlock `yaml:"run"`

	// Select optionally configures arm selection and subset restriction
	// for the aggregation step.
	Select *SelectBlock `yaml:"select,omitempty"`

	// Assertions validate the flattened summary metrics.
	Assertions []Assertion `yaml:"assertions"`
}

// RunBlock configures the simulated batch of a scenario.
type RunBlock struct {
	// Reps is the number of replicates, >= 1.
	Reps int `yaml:"reps"`

	// Seed is the base seed of the replicate stream family.
	Seed uint64 `yaml:"seed"`

	// Workers bounds parallel replicate execution; 0 means sequential.
	// Results are identical for every value.
	Workers int `yaml:"workers,omitempty"`
}

// SelectBlock configures arm selection for the aggregation step.
type SelectBlock struct {
	// Strategy is one of control-if-available, best-remaining, list, none.
	Strategy string `yaml:"strategy"`

	// Prefer is the ordered preference list for the list strategy.
	Prefer []string `yaml:"prefer,omitempty"`

	// Restrict narrows the summarised subset: all, superiority, selected.
	Restrict string `yaml:"restrict,omitempty"`
}

// Assertion validates one flattened summary metric. Metric names follow
// aggregate.Summary.Metrics: size_mean, prob_superiority, select_<arm>,
// rmse, idp, and so on.
//
// Exactly one of the value/bounds forms must be present, or Estimable
// alone to assert only on estimability.
type Assertion struct {
	// Metric is the flattened metric name.
	Metric string `yaml:"metric"`

	// Min/Max bound the metric inclusively. Either may appear alone.
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`

	// Value asserts equality within Tol.
	Value *float64 `yaml:"value,omitempty"`

	// Tol is the equality tolerance for Value; 0 means 1e-9.
	Tol float64 `yaml:"tol,omitempty"`

	// Estimable asserts whether the metric carries a value at all. A
	// not-estimable metric fails every Min/Max/Value assertion.
	Estimable *bool `yaml:"estimable,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly. The trial path is resolved relative to
// the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Trial != "" && !filepath.IsAbs(scenario.Trial) {
		scenario.Trial = filepath.Join(filepath.Dir(path), scenario.Trial)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Trial == "" {
		return fmt.Errorf("trial is required")
	}
	if _, err := os.Stat(s.Trial); err != nil {
		return fmt.Errorf("trial definition not found: %s", s.Trial)
	}
	if s.Run.Reps < 1 {
		return fmt.Errorf("run.reps must be >= 1, got %d", s.Run.Reps)
	}
	if s.Run.Workers < 0 {
		return fmt.Errorf("run.workers must be >= 0, got %d", s.Run.Workers)
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates one assertion clause.
func validateAssertion(index int, a *Assertion) error {
	if a.Metric == "" {
		return fmt.Errorf("assertions[%d]: metric is required", index)
	}
	hasBounds := a.Min != nil || a.Max != nil
	hasValue := a.Value != nil
	if hasBounds && hasValue {
		return fmt.Errorf("assertions[%d]: value and min/max are mutually exclusive", index)
	}
	if !hasBounds && !hasValue && a.Estimable == nil {
		return fmt.Errorf("assertions[%d]: need min, max, value, or estimable", index)
	}
	if a.Min != nil && a.Max != nil && *a.Min > *a.Max {
		return fmt.Errorf("assertions[%d]: min %g exceeds max %g", index, *a.Min, *a.Max)
	}
	if a.Tol < 0 {
		return fmt.Errorf("assertions[%d]: tol must be >= 0", index)
	}
	if a.Tol > 0 && !hasValue {
		return fmt.Errorf("assertions[%d]: tol requires value", index)
	}
	return nil
}
