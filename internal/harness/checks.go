package harness

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/roach88/cellc/internal/cell"
	"github.com/roach88/cellc/internal/classify"
	"github.com/roach88/cellc/internal/compiler"
	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/lut"
)

// Default tolerances per check type.
const (
	defaultIIonicTolerance     = 1e-9
	defaultDerivativeTolerance = 1e-6
	defaultExactTolerance      = 1e-12
)

func tolerance(c Check, def float64) float64 {
	if c.Tolerance > 0 {
		return c.Tolerance
	}
	return def
}

// errorCode maps an error to the code a scenario can expect.
func errorCode(err error) string {
	var rerr *cell.RuntimeError
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	var gerr *lut.TableGenerationError
	if errors.As(err, &gerr) {
		return CodeTableGeneration
	}
	return ""
}

// expectCode checks err against an expected code.
func expectCode(err error, want string) (bool, string) {
	if err == nil {
		return false, fmt.Sprintf("expected error %s, got none", want)
	}
	if got := errorCode(err); got != want {
		return false, fmt.Sprintf("expected error %s, got %v", want, err)
	}
	return true, ""
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// iionic evaluates the ionic current of every variant. Values must
// match Expect when given, and agree with the first variant.
func (e *runEnv) iionic(c Check) []CheckResult {
	tol := tolerance(c, defaultIIonicTolerance)
	out := make([]CheckResult, 0, len(c.Variants))
	var first float64
	var firstName string
	for _, name := range c.Variants {
		cr := CheckResult{Check: c.Type, Variant: variantName(name), Facts: map[string]any{}}
		cl, err := e.cell(name, 0, c.State)
		if err != nil {
			cr.Message = err.Error()
			out = append(out, cr)
			continue
		}
		val, err := cl.GetIIonic(nil)
		if c.ExpectError != "" {
			cr.Pass, cr.Message = expectCode(err, c.ExpectError)
			if code := errorCode(err); code != "" {
				cr.Facts["error"] = code
			}
			out = append(out, cr)
			continue
		}
		if err != nil {
			cr.Message = err.Error()
			out = append(out, cr)
			continue
		}
		cr.Value = val
		switch {
		case !finite(val):
			cr.Message = fmt.Sprintf("ionic current is %g", val)
		case c.Expect != nil && math.Abs(val-*c.Expect) > tol:
			cr.Deviation = math.Abs(val - *c.Expect)
			cr.Message = fmt.Sprintf("ionic current %.12g, want %.12g within %g", val, *c.Expect, tol)
		case firstName != "" && math.Abs(val-first) > tol:
			cr.Deviation = math.Abs(val - first)
			cr.Message = fmt.Sprintf("ionic current %.12g differs from %s (%.12g) by %g", val, firstName, first, cr.Deviation)
		default:
			cr.Pass = true
			if c.Expect != nil {
				cr.Deviation = math.Abs(val - *c.Expect)
			}
		}
		if firstName == "" && finite(val) {
			first, firstName = val, cr.Variant
		}
		out = append(out, cr)
	}
	return out
}

// derivatives compares every variant's derivatives against the baseline
// at the same state.
func (e *runEnv) derivatives(c Check) []CheckResult {
	tol := tolerance(c, defaultDerivativeTolerance)
	baseline := c.Baseline
	if baseline == "" {
		baseline = "Normal"
	}
	fail := func(msg string) []CheckResult {
		out := make([]CheckResult, len(c.Variants))
		for i, v := range c.Variants {
			out[i] = CheckResult{Check: c.Type, Variant: variantName(v), Message: msg}
		}
		return out
	}

	base, err := e.cell(baseline, 0, c.State)
	if err != nil {
		return fail("baseline: " + err.Error())
	}
	y := base.StateVariables()
	want := make([]float64, len(y))
	if err := base.EvaluateYDerivatives(0, y, want); err != nil {
		return fail("baseline: " + err.Error())
	}

	return e.eachVariant(c, func(name string) CheckResult {
		cr := CheckResult{Facts: map[string]any{
			"baseline": variantName(baseline),
			"states":   len(y),
		}}
		cl, err := e.cell(name, 0, nil)
		if err != nil {
			cr.Message = err.Error()
			return cr
		}
		got := make([]float64, len(y))
		if err := cl.EvaluateYDerivatives(0, y, got); err != nil {
			cr.Message = err.Error()
			return cr
		}
		worst := 0
		for i := range got {
			d := math.Abs(got[i] - want[i])
			if !finite(got[i]) {
				d = math.Inf(1)
			}
			if d > cr.Deviation {
				cr.Deviation, worst = d, i
			}
		}
		if cr.Deviation > tol {
			state := e.model.States()[worst].Name
			cr.Message = fmt.Sprintf("d%s/dt is %.12g, %s gives %.12g", state, got[worst], variantName(baseline), want[worst])
			return cr
		}
		cr.Pass = true
		return cr
	})
}

// fixedPoint starts every gate at its steady state for a held voltage
// and checks a solve leaves the state unchanged.
func (e *runEnv) fixedPoint(c Check, variant string) CheckResult {
	tol := tolerance(c, defaultExactTolerance)
	cr := CheckResult{Facts: map[string]any{}}
	cl, err := e.cell(variant, 0, c.State)
	if err != nil {
		cr.Message = err.Error()
		return cr
	}
	cl.SetFixedVoltage(true)
	cl.SetVoltage(*c.Voltage)

	m := e.model
	y := cl.StateVariables()
	vals := map[string]float64{m.Free(): 0}
	for i, s := range m.States() {
		vals[s.Name] = y[i]
	}
	for _, p := range cl.Plan().Parameters {
		v, err := cl.Parameter(p.Name)
		if err != nil {
			cr.Message = err.Error()
			return cr
		}
		vals[p.Name] = v
	}
	env := ir.MapEnv(vals)

	gates := 0
	for _, sc := range e.class.States {
		if sc.Form != classify.FormGate {
			continue
		}
		y[sc.Index] = ir.Eval(m.ExpandAll(sc.Inf), env)
		gates++
	}
	cr.Facts["gates"] = gates
	if gates == 0 {
		cr.Message = "model has no gating states"
		return cr
	}
	if err := cl.SetStateVariables(y); err != nil {
		cr.Message = err.Error()
		return cr
	}

	duration := c.Duration
	if duration == 0 {
		duration = 1
	}
	if err := cl.SolveAndUpdateState(0, duration); err != nil {
		cr.Message = err.Error()
		return cr
	}
	got := cl.StateVariables()
	worst := 0
	for i := range got {
		d := math.Abs(got[i] - y[i])
		if !finite(got[i]) {
			d = math.Inf(1)
		}
		if d > cr.Deviation {
			cr.Deviation, worst = d, i
		}
	}
	if cr.Deviation > tol {
		cr.Message = fmt.Sprintf("%s moved from %.15g to %.15g", m.States()[worst].Name, y[worst], got[worst])
		return cr
	}
	cr.Pass = true
	return cr
}

// closedForm takes one step of a state obeying dy/dt = -rate*y and
// compares it with the implicit Euler solution.
func (e *runEnv) closedForm(c Check, variant string) CheckResult {
	tol := tolerance(c, defaultExactTolerance)
	cr := CheckResult{Facts: map[string]any{"state": c.Target}}
	cl, err := e.cell(variant, c.Dt, c.State)
	if err != nil {
		cr.Message = err.Error()
		return cr
	}
	y0, err := cl.StateVariable(c.Target)
	if err != nil {
		cr.Message = err.Error()
		return cr
	}
	if err := cl.Step(0, c.Dt); err != nil {
		cr.Message = err.Error()
		return cr
	}
	got, _ := cl.StateVariable(c.Target)
	want := y0 / (1 + c.Rate*c.Dt)
	cr.Value = got
	cr.Deviation = math.Abs(got - want)
	if !(cr.Deviation <= tol) {
		cr.Message = fmt.Sprintf("%s is %.15g after one step, want %.15g", c.Target, got, want)
		return cr
	}
	cr.Pass = true
	return cr
}

// tableMisses samples a single unsafe column with the model's default
// parameters.
func (e *runEnv) tableMisses(ctx context.Context, c Check) CheckResult {
	cr := CheckResult{Check: c.Type, Facts: map[string]any{}}
	t := c.Table
	expr, err := compiler.ParseExpr(t.Expr, "table")
	if err != nil {
		cr.Message = err.Error()
		return cr
	}
	params := make(map[string]float64)
	for _, p := range e.model.Parameters() {
		params[p.Name] = p.Initial
	}
	tp := lut.TablePlan{
		Key:  t.Key,
		Min:  t.Min,
		Max:  t.Max,
		Step: t.Step,
		Columns: []lut.Column{{
			Name:   t.Expr,
			Expr:   expr,
			Unsafe: true,
		}},
	}
	_, patched, err := lut.GenerateTable(ctx, tp, params)
	if c.ExpectError != "" {
		cr.Pass, cr.Message = expectCode(err, c.ExpectError)
		var gerr *lut.TableGenerationError
		if errors.As(err, &gerr) {
			cr.Facts["error"] = CodeTableGeneration
			cr.Facts["misses"] = gerr.Misses
			if cr.Pass && c.Misses > 0 && gerr.Misses != c.Misses {
				cr.Pass = false
				cr.Message = fmt.Sprintf("failed after %d misses, want %d", gerr.Misses, c.Misses)
			}
		}
		return cr
	}
	if err != nil {
		cr.Message = err.Error()
		return cr
	}
	cr.Facts["patched"] = patched
	if c.Patched != nil && patched != *c.Patched {
		cr.Message = fmt.Sprintf("patched %d samples, want %d", patched, *c.Patched)
		return cr
	}
	cr.Pass = true
	return cr
}
