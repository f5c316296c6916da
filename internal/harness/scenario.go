package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cellc/internal/scheme"
	"github.com/roach88/cellc/models"
)

// Scenario is a conformance scenario: one model and the checks run
// against it.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden report.
	Name string `yaml:"name"`

	// Description explains the property the scenario checks.
	Description string `yaml:"description"`

	// Model is a bundled model name or a model reference resolved
	// relative to the scenario file.
	Model string `yaml:"model"`

	// Checks run in order against fresh cells.
	Checks []Check `yaml:"checks"`
}

// Check is one property checked against one or more variants.
type Check struct {
	// Type selects the check: index_consistency, iionic,
	// derivative_agreement, fixed_point, closed_form or table_misses.
	Type string `yaml:"type"`

	// Variants lists the variant names the check runs against.
	Variants []string `yaml:"variants,omitempty"`

	// Baseline is the variant derivative_agreement compares against.
	Baseline string `yaml:"baseline,omitempty"`

	// State overrides initial state values before evaluating.
	State map[string]float64 `yaml:"state,omitempty"`

	// Voltage is the held voltage of fixed_point.
	Voltage *float64 `yaml:"voltage,omitempty"`

	// Duration is how long fixed_point solves for.
	Duration float64 `yaml:"duration,omitempty"`

	// Target, Rate and Dt describe the decaying state of closed_form.
	Target string  `yaml:"target,omitempty"`
	Rate   float64 `yaml:"rate,omitempty"`
	Dt     float64 `yaml:"dt,omitempty"`

	// Expect is the expected value of iionic.
	Expect *float64 `yaml:"expect,omitempty"`

	// Tolerance bounds every numeric comparison of the check.
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// ExpectError is the error code the check must produce.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Table is the table sampled by table_misses.
	Table *TableSpec `yaml:"table,omitempty"`

	// Patched is the expected number of patched samples.
	Patched *int `yaml:"patched,omitempty"`

	// Misses is the expected miss count of a failed table.
	Misses int `yaml:"misses,omitempty"`
}

// TableSpec is a single-column table over an expression of the key and
// the model's parameters.
type TableSpec struct {
	Key  string  `yaml:"key"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
	Expr string  `yaml:"expr"`
}

// Check type constants.
const (
	CheckIndexConsistency = "index_consistency"
	CheckIIonic           = "iionic"
	CheckDerivatives      = "derivative_agreement"
	CheckFixedPoint       = "fixed_point"
	CheckClosedForm       = "closed_form"
	CheckTableMisses      = "table_misses"
)

// CodeTableGeneration is the expected error of a table that fails to
// sample.
const CodeTableGeneration = "TABLE_GENERATION"

// LoadScenario reads and parses a scenario YAML file. A model path is
// resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario decodes a scenario, rejecting unknown fields. Relative
// model paths are joined to base unless base is empty.
func ParseScenario(data []byte, base string) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if base != "" && s.Model != "" && !slices.Contains(models.Names(), s.Model) && !filepath.IsAbs(s.Model) {
		s.Model = filepath.Join(base, s.Model)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if len(s.Checks) == 0 {
		return fmt.Errorf("checks list is required and must be non-empty")
	}
	for i := range s.Checks {
		if err := validateCheck(i, &s.Checks[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateCheck(index int, c *Check) error {
	if c.Type == "" {
		return fmt.Errorf("checks[%d]: type is required", index)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("checks[%d]: tolerance must be non-negative", index)
	}
	if c.Type != CheckTableMisses && len(c.Variants) == 0 {
		return fmt.Errorf("checks[%d]: variants list is required for %s", index, c.Type)
	}
	for _, name := range c.Variants {
		if _, err := scheme.ParseVariant(name); err != nil {
			return fmt.Errorf("checks[%d]: %w", index, err)
		}
	}

	switch c.Type {
	case CheckIndexConsistency, CheckIIonic:
	case CheckDerivatives:
		if c.Baseline != "" {
			if _, err := scheme.ParseVariant(c.Baseline); err != nil {
				return fmt.Errorf("checks[%d]: baseline: %w", index, err)
			}
		}
	case CheckFixedPoint:
		if c.Voltage == nil {
			return fmt.Errorf("checks[%d]: voltage is required for fixed_point", index)
		}
		if c.Duration < 0 {
			return fmt.Errorf("checks[%d]: duration must be non-negative", index)
		}
	case CheckClosedForm:
		if c.Target == "" {
			return fmt.Errorf("checks[%d]: target is required for closed_form", index)
		}
		if c.Dt <= 0 {
			return fmt.Errorf("checks[%d]: dt must be positive for closed_form", index)
		}
	case CheckTableMisses:
		t := c.Table
		if t == nil {
			return fmt.Errorf("checks[%d]: table is required for table_misses", index)
		}
		if t.Key == "" || t.Expr == "" {
			return fmt.Errorf("checks[%d]: table key and expr are required", index)
		}
		if !(t.Min < t.Max) || t.Step <= 0 {
			return fmt.Errorf("checks[%d]: table needs min < max and step > 0", index)
		}
		if c.ExpectError != "" && c.ExpectError != CodeTableGeneration {
			return fmt.Errorf("checks[%d]: table_misses can only expect %s", index, CodeTableGeneration)
		}
	default:
		return fmt.Errorf("checks[%d]: unknown check type %q", index, c.Type)
	}
	return nil
}
