package compiler

import (
	"fmt"
	"math"

	"github.com/roach88/cellc/internal/ir"
)

// Lint codes (E100-E199). Lint findings never stop generation; they flag
// models that compile but are probably not what the author meant.
const (
	ErrNonFiniteValue     = "E101" // state initial or parameter default is inf/nan
	ErrUnusedParameter    = "E102" // parameter referenced by nothing
	ErrUnusedEquation     = "E103" // equation not reachable from any output
	ErrNoIonicCurrents    = "E104" // GetIIonic would always return 0
	ErrTableExcludesStart = "E105" // initial key value outside table domain
	ErrStimulusShape      = "E106" // stimulus longer than its period
	ErrCurrentUnits       = "E107" // ionic current not in a current-density unit
)

// ValidationError is one lint finding.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate lints a compiled model and returns every finding (it does not
// stop at the first).
func Validate(m *ir.Model) []ValidationError {
	var errs []ValidationError

	for _, v := range m.Variables() {
		if (v.Kind == ir.KindState || v.Kind == ir.KindParameter) && !finite(v.Initial) {
			errs = append(errs, ValidationError{
				Field:   v.Name,
				Message: fmt.Sprintf("%s value %s is not finite", v.Kind, ir.FormatNum(v.Initial)),
				Code:    ErrNonFiniteValue,
			})
		}
	}

	used := reachable(m)
	for _, p := range m.Parameters() {
		if !used[p.Name] && p.Name != m.Capacitance() && p.DerivedIndex < 0 {
			errs = append(errs, ValidationError{
				Field:   p.Name,
				Message: "parameter is not used by any equation",
				Code:    ErrUnusedParameter,
			})
		}
	}
	for _, eq := range m.Equations() {
		if !used[eq.Target] {
			errs = append(errs, ValidationError{
				Field:   eq.Target,
				Message: "equation does not contribute to any derivative, current or derived quantity",
				Code:    ErrUnusedEquation,
			})
		}
	}

	if len(m.IonicCurrents()) == 0 {
		errs = append(errs, ValidationError{
			Field:   "ionic_currents",
			Message: "no ionic currents declared; GetIIonic will return 0",
			Code:    ErrNoIonicCurrents,
		})
	}
	for _, c := range m.IonicCurrents() {
		if c.Factor == 0 || !finite(c.Factor) {
			errs = append(errs, ValidationError{
				Field:   c.Name,
				Message: "conversion factor to " + CurrentDensity + " is degenerate",
				Code:    ErrCurrentUnits,
			})
		}
	}

	for _, t := range m.Tables() {
		v, ok := m.Var(t.Key)
		if ok && (v.Initial < t.Min || v.Initial > t.Max) {
			errs = append(errs, ValidationError{
				Field: "lookup_tables." + t.Key,
				Message: fmt.Sprintf("initial value %s is outside [%s, %s]",
					ir.FormatNum(v.Initial), ir.FormatNum(t.Min), ir.FormatNum(t.Max)),
				Code: ErrTableExcludesStart,
			})
		}
	}

	if s, ok := m.Stimulus(); ok && s.Period > 0 && s.Duration >= s.Period {
		errs = append(errs, ValidationError{
			Field:   "stimulus",
			Message: fmt.Sprintf("duration %s is not shorter than period %s", ir.FormatNum(s.Duration), ir.FormatNum(s.Period)),
			Code:    ErrStimulusShape,
		})
	}

	return errs
}

// reachable marks every variable read, directly or through other
// equations, by an ODE, an ionic current or a derived quantity.
func reachable(m *ir.Model) map[string]bool {
	used := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if used[name] {
			return
		}
		used[name] = true
		if eq, ok := m.Equation(name); ok {
			for _, ref := range ir.FreeVars(eq.RHS) {
				visit(ref)
			}
		}
	}
	for _, eq := range m.ODEs() {
		for _, ref := range ir.FreeVars(eq.RHS) {
			visit(ref)
		}
	}
	for _, c := range m.IonicCurrents() {
		visit(c.Name)
	}
	for _, d := range m.Derived() {
		visit(d.Name)
	}
	return used
}

func finite(x float64) bool {
	return !math.IsInf(x, 0) && !math.IsNaN(x)
}
