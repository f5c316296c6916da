package cell

import (
	"fmt"
	"math"

	"github.com/roach88/cellc/internal/classify"
	"github.com/roach88/cellc/internal/scheme"
)

// stateStep is the compiled update of one state.
type stateStep struct {
	index int
	rule  scheme.Rule
	a, b  evalFn // implicit linear coefficients
	inf   evalFn // exponential gate
	tau   evalFn
	// partial is df/dy for GRL, nil when differenced.
	partial evalFn
}

func (c *Cell) buildSteps() error {
	for _, r := range c.plan.States {
		st := stateStep{index: r.Index, rule: r.Rule}
		var err error
		switch r.Rule {
		case scheme.RuleImplicitLinear:
			if st.a, err = c.compile(r.Class.A); err == nil {
				st.b, err = c.compile(r.Class.B)
			}
		case scheme.RuleExponential:
			if r.Class.Gate == classify.GateNone {
				return fmt.Errorf("%s: exponential rule on a non-gate", r.State)
			}
			if st.inf, err = c.compile(r.Class.Inf); err == nil {
				st.tau, err = c.compile(r.Class.Tau)
			}
		case scheme.RuleGRL:
			if r.Partial != nil {
				st.partial, err = c.compile(r.Partial)
			}
		}
		if err != nil {
			return fmt.Errorf("%s: %w", r.State, err)
		}
		c.steps = append(c.steps, st)
	}
	return nil
}

// advance updates every non-Newton state from "from" over dt, with rates
// evaluated at (t, rate). out may alias neither input.
func (c *Cell) advance(t, dt float64, from, rate, out []float64) error {
	if err := c.refresh(t, rate); err != nil {
		return err
	}
	n := len(c.steps)
	f := make([]float64, n)
	c.derivatives(f)

	// Coefficients first: numerical partials overwrite the slots.
	coef := make([]float64, 2*n)
	for i, st := range c.steps {
		switch st.rule {
		case scheme.RuleImplicitLinear:
			coef[2*i], coef[2*i+1] = st.a(c.slots), st.b(c.slots)
		case scheme.RuleExponential:
			coef[2*i], coef[2*i+1] = st.inf(c.slots), st.tau(c.slots)
		case scheme.RuleGRL:
			if st.partial != nil {
				coef[2*i] = st.partial(c.slots)
			}
		}
	}
	for i, st := range c.steps {
		if st.rule == scheme.RuleGRL && st.partial == nil {
			p, err := c.numericalPartial(t, rate, st.index, f[st.index])
			if err != nil {
				return err
			}
			coef[2*i] = p
		}
	}

	copy(out, from)
	for i, st := range c.steps {
		k := st.index
		y := from[k]
		switch st.rule {
		case scheme.RuleExplicitEuler:
			out[k] = y + dt*f[k]
		case scheme.RuleImplicitLinear:
			a, b := coef[2*i], coef[2*i+1]
			out[k] = (y + dt*b) / (1 - dt*a)
		case scheme.RuleExponential:
			inf, tau := coef[2*i], coef[2*i+1]
			out[k] = inf + (y-inf)*math.Exp(-dt/tau)
		case scheme.RuleGRL:
			p := coef[2*i]
			if math.Abs(p) < 1e-12 {
				out[k] = y + dt*f[k]
			} else {
				out[k] = y + f[k]/p*math.Expm1(p*dt)
			}
		}
	}
	if c.fixedVoltage {
		out[c.voltage] = from[c.voltage]
	}
	return nil
}

// numericalPartial differences the derivative of state k in its own
// value.
func (c *Cell) numericalPartial(t float64, y []float64, k int, fk float64) (float64, error) {
	h := c.plan.Options.Delta * math.Max(1, math.Abs(y[k]))
	bumped := append([]float64(nil), y...)
	bumped[k] += h
	if err := c.refresh(t, bumped); err != nil {
		return 0, err
	}
	return (c.derivs[k](c.slots) - fk) / h, nil
}

// Step advances the cell state from t by dt with the variant's scheme.
func (c *Cell) Step(t, dt float64) error {
	if c.plan.Variant.Adaptive() {
		return c.integrate(t, t+dt, c.y)
	}
	next := make([]float64, len(c.y))
	switch {
	case c.plan.Variant.TwoStage():
		mid := make([]float64, len(c.y))
		if err := c.advance(t, dt/2, c.y, c.y, mid); err != nil {
			return err
		}
		if err := c.advance(t+dt/2, dt, c.y, mid, next); err != nil {
			return err
		}
	default:
		if err := c.advance(t, dt, c.y, c.y, next); err != nil {
			return err
		}
	}
	// Newton blocks see every other state at its old value, and the new
	// values of blocks solved before them.
	for i, b := range c.blocks {
		work := c.y
		if i > 0 {
			work = append([]float64(nil), c.y...)
			for _, prev := range c.blocks[:i] {
				for _, k := range prev.indices {
					work[k] = next[k]
				}
			}
		}
		if err := b.solve(c, t+dt, dt, work, next); err != nil {
			return err
		}
	}
	if c.plan.Variant.Scheme == scheme.BackwardEuler && !c.fixedVoltage {
		if err := c.updateVoltage(t, dt, next); err != nil {
			return err
		}
	}
	for i, v := range next {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return c.fail(CodeIntegrationFailed, t+dt, next,
				fmt.Sprintf("state %s is not finite", c.model.States()[i].Name), nil)
		}
	}
	copy(c.y, next)
	return nil
}

// updateVoltage redoes the voltage update of a backward Euler step from
// the already updated other states, the order the host framework calls
// them in.
func (c *Cell) updateVoltage(t, dt float64, next []float64) error {
	v := c.voltage
	work := append([]float64(nil), next...)
	work[v] = c.y[v]
	if err := c.refresh(t, work); err != nil {
		return err
	}
	for _, st := range c.steps {
		if st.index != v {
			continue
		}
		switch st.rule {
		case scheme.RuleImplicitLinear:
			next[v] = (c.y[v] + dt*st.b(c.slots)) / (1 - dt*st.a(c.slots))
		default:
			next[v] = c.y[v] + dt*c.derivs[v](c.slots)
		}
	}
	return nil
}

// SolveAndUpdateState advances the cell from tStart to tEnd.
func (c *Cell) SolveAndUpdateState(tStart, tEnd float64) error {
	if tEnd < tStart {
		return fmt.Errorf("end time %g before start time %g", tEnd, tStart)
	}
	if c.plan.Variant.Adaptive() {
		if err := c.integrate(tStart, tEnd, c.y); err != nil {
			return err
		}
		c.time = tEnd
		return nil
	}
	dt := c.opts.Dt
	n := int(math.Ceil((tEnd-tStart)/dt - 1e-9))
	for k := 0; k < n; k++ {
		t0 := tStart + float64(k)*dt
		t1 := math.Min(tStart+float64(k+1)*dt, tEnd)
		if err := c.Step(t0, t1-t0); err != nil {
			return err
		}
		c.time = t1
	}
	c.time = tEnd
	return nil
}

// Trajectory is a sampled solution.
type Trajectory struct {
	Names  []string
	Times  []float64
	States [][]float64
}

// Solve advances the cell from tStart to tEnd, recording the state at
// tStart and every sampling interval.
func (c *Cell) Solve(tStart, tEnd, sampling float64) (*Trajectory, error) {
	if sampling <= 0 {
		return nil, fmt.Errorf("sampling interval must be positive, got %g", sampling)
	}
	tr := &Trajectory{}
	for _, s := range c.model.States() {
		tr.Names = append(tr.Names, s.Name)
	}
	record := func(t float64) {
		tr.Times = append(tr.Times, t)
		tr.States = append(tr.States, c.StateVariables())
	}
	record(tStart)
	n := int(math.Ceil((tEnd-tStart)/sampling - 1e-9))
	for k := 0; k < n; k++ {
		t0 := tStart + float64(k)*sampling
		t1 := math.Min(tStart+float64(k+1)*sampling, tEnd)
		if err := c.SolveAndUpdateState(t0, t1); err != nil {
			return tr, err
		}
		record(t1)
	}
	return tr, nil
}
