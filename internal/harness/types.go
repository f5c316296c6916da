package harness

// CheckResult is the outcome of one check against one variant.
type CheckResult struct {
	// Check is the check type.
	Check string `json:"check"`

	// Variant is empty for checks that run without a cell.
	Variant string `json:"variant,omitempty"`

	Pass bool `json:"pass"`

	// Value is the measured quantity, when the check measures one.
	Value float64 `json:"value,omitempty"`

	// Deviation is the largest difference found against the reference.
	Deviation float64 `json:"deviation,omitempty"`

	// Facts are exact observations: counts and error codes. They make up
	// the golden report.
	Facts map[string]any `json:"facts,omitempty"`

	// Message says why the check failed.
	Message string `json:"message,omitempty"`
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario string        `json:"scenario"`
	Model    string        `json:"model"`
	Pass     bool          `json:"pass"`
	Checks   []CheckResult `json:"checks"`
}

// NewResult creates a passing result with no checks.
func NewResult(scenario, model string) *Result {
	return &Result{Scenario: scenario, Model: model, Pass: true, Checks: []CheckResult{}}
}

// Add appends a check result, failing the scenario if the check failed.
func (r *Result) Add(c CheckResult) {
	if c.Facts == nil {
		c.Facts = map[string]any{}
	}
	r.Checks = append(r.Checks, c)
	if !c.Pass {
		r.Pass = false
	}
}

// Failures returns the failed checks in order.
func (r *Result) Failures() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Pass {
			out = append(out, c)
		}
	}
	return out
}
