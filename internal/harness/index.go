package harness

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/pipeline"
	"github.com/roach88/cellc/internal/scheme"
)

var (
	stateAccess    = regexp.MustCompile(`\brD?Y\[(\d+)\]`)
	vectorAccess   = regexp.MustCompile(`NV_Ith_S\((\w+), (\d+)\)`)
	paramAccess    = regexp.MustCompile(`\bmParameters\[(\d+)\]`)
	derivedAccess  = regexp.MustCompile(`\bdqs\[(\d+)\]`)
	paramSeed      = regexp.MustCompile(`this->mParameters\[(\d+)\] = [^;]+; // \(([^)]+)\)`)
	stateComment   = regexp.MustCompile(`// rY\[(\d+)\]:`)
	paramComment   = regexp.MustCompile(`// mParameters\[(\d+)\]:`)
	derivedComment = regexp.MustCompile(`// Derived Quantity index \[(\d+)\]:`)
)

// metadata matches one push_back list of the system information.
func metadata(list string) *regexp.Regexp {
	return regexp.MustCompile(`this->` + list + `\.push_back\(("[^"]*"|[^)]*)\);`)
}

var (
	stateNames    = metadata("mVariableNames")
	stateUnits    = metadata("mVariableUnits")
	stateInitials = metadata("mInitialConditions")
	paramNames    = metadata("mParameterNames")
	paramUnits    = metadata("mParameterUnits")
	derivedNames  = metadata("mDerivedQuantityNames")
	derivedUnits  = metadata("mDerivedQuantityUnits")
)

// indexConsistency generates a variant through the pipeline and checks
// that every literal index of the generated source is in range and that
// the metadata arrays follow the model's index order.
func (e *runEnv) indexConsistency(ctx context.Context, variant string) CheckResult {
	cr := CheckResult{Facts: map[string]any{}}
	p, err := e.plan(variant)
	if err != nil {
		cr.Message = err.Error()
		return cr
	}
	opts := pipeline.DefaultOptions()
	opts.Scheme = e.h.opts.Scheme
	opts.Workers = 1
	opts.Logger = e.h.logger
	art, err := pipeline.Generate(ctx, pipeline.Task{Model: e.model, Variant: p.Variant}, opts)
	if err != nil {
		cr.Message = err.Error()
		return cr
	}

	m := e.model
	states, params, derived := m.States(), p.Parameters, m.Derived()
	cr.Facts["states"] = len(states)
	cr.Facts["parameters"] = len(params)
	cr.Facts["derived"] = len(derived)

	if msg := checkIndices(m, p); msg != "" {
		cr.Message = msg
		return cr
	}
	src := art.Source
	checks := []func() string{
		func() string { return inRange(src, stateAccess, 1, len(states), "state") },
		func() string { return inRange(src, paramAccess, 1, len(params), "parameter") },
		func() string { return inRange(src, derivedAccess, 1, len(derived), "derived quantity") },
		func() string { return vectorInRange(src, len(states), len(derived)) },
		func() string { return sequential(src, stateComment, len(states), "state metadata") },
		func() string { return sequential(src, paramComment, len(params), "parameter metadata") },
		func() string { return sequential(src, derivedComment, len(derived), "derived metadata") },
		func() string { return sequential(src, paramSeed, len(params), "parameter defaults") },
		func() string { return count(src, stateNames, len(states), "state names") },
		func() string { return count(src, stateInitials, len(states), "initial conditions") },
		func() string { return count(src, paramNames, len(params), "parameter names") },
		func() string { return count(src, derivedNames, len(derived), "derived names") },
		func() string { return units(src, stateUnits, states, "state units") },
		func() string { return units(src, paramUnits, params, "parameter units") },
		func() string { return units(src, derivedUnits, derived, "derived units") },
		func() string { return seeds(src, params) },
	}
	for _, check := range checks {
		if msg := check(); msg != "" {
			cr.Message = msg
			return cr
		}
	}
	cr.Pass = true
	return cr
}

// checkIndices verifies the IR's own index fields.
func checkIndices(m *ir.Model, p *scheme.Plan) string {
	for i, s := range m.States() {
		if s.Index != i {
			return fmt.Sprintf("state %s has index %d at position %d", s.Name, s.Index, i)
		}
	}
	for i, v := range p.Parameters {
		if v.Index != i {
			return fmt.Sprintf("parameter %s has index %d at position %d", v.Name, v.Index, i)
		}
	}
	for i, d := range m.Derived() {
		if d.DerivedIndex != i {
			return fmt.Sprintf("derived quantity %s has index %d at position %d", d.Name, d.DerivedIndex, i)
		}
	}
	for i, r := range p.States {
		if r.Index != i {
			return fmt.Sprintf("state rule %s has index %d at position %d", r.State, r.Index, i)
		}
	}
	return ""
}

func inRange(src string, re *regexp.Regexp, group, n int, what string) string {
	for _, match := range re.FindAllStringSubmatch(src, -1) {
		i, _ := strconv.Atoi(match[group])
		if i >= n {
			return fmt.Sprintf("%s index %d out of range in %q (%d entries)", what, i, match[0], n)
		}
	}
	return ""
}

func vectorInRange(src string, states, derived int) string {
	for _, match := range vectorAccess.FindAllStringSubmatch(src, -1) {
		i, _ := strconv.Atoi(match[2])
		n, what := states, "state"
		if match[1] == "dqs" {
			n, what = derived, "derived quantity"
		}
		if i >= n {
			return fmt.Sprintf("%s index %d out of range in %q (%d entries)", what, i, match[0], n)
		}
	}
	return ""
}

// sequential checks that the indices captured by re run 0..n-1.
func sequential(src string, re *regexp.Regexp, n int, what string) string {
	matches := re.FindAllStringSubmatch(src, -1)
	if len(matches) != n {
		return fmt.Sprintf("%s: %d entries, want %d", what, len(matches), n)
	}
	for want, match := range matches {
		if got, _ := strconv.Atoi(match[1]); got != want {
			return fmt.Sprintf("%s: entry %d has index %d", what, want, got)
		}
	}
	return ""
}

func count(src string, re *regexp.Regexp, n int, what string) string {
	if got := len(re.FindAllString(src, -1)); got != n {
		return fmt.Sprintf("%s: %d entries, want %d", what, got, n)
	}
	return ""
}

func units(src string, re *regexp.Regexp, vars []ir.Variable, what string) string {
	matches := re.FindAllStringSubmatch(src, -1)
	if len(matches) != len(vars) {
		return fmt.Sprintf("%s: %d entries, want %d", what, len(matches), len(vars))
	}
	for i, match := range matches {
		if want := strconv.Quote(vars[i].Units); match[1] != want {
			return fmt.Sprintf("%s: entry %d is %s, want %s", what, i, match[1], want)
		}
	}
	return ""
}

// seeds checks the constructor seeds each parameter under its own name.
func seeds(src string, params []ir.Variable) string {
	for i, match := range paramSeed.FindAllStringSubmatch(src, -1) {
		if match[2] != params[i].Name {
			return fmt.Sprintf("parameter default %d seeds %s, want %s", i, match[2], params[i].Name)
		}
	}
	return ""
}
