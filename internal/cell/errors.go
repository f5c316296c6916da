package cell

import (
	"fmt"
	"strings"

	"github.com/roach88/cellc/internal/ir"
)

// Runtime error codes.
const (
	CodeLookupOutOfRange   = "LOOKUP_OUT_OF_RANGE"
	CodeIIonicNaN          = "IIONIC_NAN"
	CodeNewtonNotConverged = "NEWTON_NOT_CONVERGED"
	CodeIntegrationFailed  = "INTEGRATION_FAILED"
)

// StateValue is one entry of a state dump.
type StateValue struct {
	Name  string
	Value float64
}

// RuntimeError reports a failure while evaluating or stepping a cell,
// with the state vector at the time of failure.
type RuntimeError struct {
	Code    string
	Model   string
	Time    float64
	Message string
	States  []StateValue
	Err     error
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: model %s at t=%s: %s", e.Code, e.Model, ir.FormatNum(e.Time), e.Message)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if len(e.States) > 0 {
		sb.WriteString("\nstate:")
		for _, s := range e.States {
			fmt.Fprintf(&sb, "\n  %s = %s", s.Name, ir.FormatNum(s.Value))
		}
	}
	return sb.String()
}

func (e *RuntimeError) Unwrap() error { return e.Err }
