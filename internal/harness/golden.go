package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cellc/internal/ir"
)

// Report is the canonical JSON form of a result: which checks passed,
// with their exact facts. Measured values are left out, so the report
// is stable across platforms.
func Report(r *Result) ([]byte, error) {
	checks := make([]any, len(r.Checks))
	for i, c := range r.Checks {
		entry := map[string]any{
			"check": c.Check,
			"pass":  c.Pass,
			"facts": c.Facts,
		}
		if c.Facts == nil {
			entry["facts"] = map[string]any{}
		}
		if c.Variant != "" {
			entry["variant"] = c.Variant
		}
		checks[i] = entry
	}
	return ir.MarshalCanonical(map[string]any{
		"scenario": r.Scenario,
		"model":    r.Model,
		"pass":     r.Pass,
		"checks":   checks,
	})
}

// RunWithGolden runs a scenario and compares its report against
// testdata/golden/<scenario name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(t.Context(), s)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, s.Name, result)
}

// AssertGolden compares a result's report against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()
	report, err := Report(result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, report)
	return nil
}
