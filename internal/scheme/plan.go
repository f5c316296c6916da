package scheme

import (
	"fmt"

	"github.com/roach88/cellc/internal/classify"
	"github.com/roach88/cellc/internal/ir"
)

// Rule is the update a state receives in one time step.
type Rule int

const (
	// RuleExplicitEuler: y += dt*f.
	RuleExplicitEuler Rule = iota
	// RuleImplicitLinear: y = (y + B*dt)/(1 - A*dt).
	RuleImplicitLinear
	// RuleNewton: solved with the other states of its block.
	RuleNewton
	// RuleExponential: y = inf + (y - inf)*exp(-dt/tau).
	RuleExponential
	// RuleGRL: y += f/p*(exp(p*dt) - 1) with p = df/dy. Rush-Larsen
	// schemes use it for states that are not gates.
	RuleGRL
	// RuleExternal: handed to the adaptive integrator.
	RuleExternal
)

var ruleNames = [...]string{"explicit_euler", "implicit_linear", "newton", "exponential", "grl", "external"}

func (r Rule) String() string {
	if int(r) < len(ruleNames) {
		return ruleNames[r]
	}
	return "unknown"
}

// DataClampParameter is appended to the parameter vector of data clamp
// variants.
const DataClampParameter = "membrane.membrane_data_clamp_current_conductance"

// ExperimentalVoltage is the name the voltage derivative uses for the
// clamped trace value.
const ExperimentalVoltage = "membrane.experimental_voltage"

// NewtonConfig bounds the emitted Newton iterations.
type NewtonConfig struct {
	Tolerance     float64
	MaxIterations int
}

// Options tunes selection.
type Options struct {
	Newton NewtonConfig
	// Delta is the bump used for numerically differenced partials.
	Delta float64
	// MaxBlockSize caps the dimension of one Newton block.
	MaxBlockSize int
}

// DefaultOptions returns the settings used unless overridden.
func DefaultOptions() Options {
	return Options{
		Newton:       NewtonConfig{Tolerance: 2e-8, MaxIterations: 15},
		Delta:        1e-8,
		MaxBlockSize: 16,
	}
}

// StateRule is the plan for one state.
type StateRule struct {
	State string
	Index int
	Rule  Rule
	Class classify.Classification

	// Block indexes Plan.Blocks for RuleNewton, -1 otherwise.
	Block int

	// Partial is df/dy for RuleGRL, nil when it must be differenced
	// numerically.
	Partial ir.Expr
}

// NewtonBlock is one nonlinear subsystem solved by Newton iteration:
// residual r_i = y_i - y_i^old - dt*F_i(y).
type NewtonBlock struct {
	ID      int
	States  []string
	Indices []int
	// F holds the derivatives with every intermediate depending on a
	// block state inlined.
	F []ir.Expr
	// DF[i][j] is dF_i/dy_j, nil where it must be differenced.
	DF [][]ir.Expr
}

// Numerical reports whether any Jacobian entry is differenced.
func (b NewtonBlock) Numerical() bool {
	for _, row := range b.DF {
		for _, e := range row {
			if e == nil {
				return true
			}
		}
	}
	return false
}

// Plan is the complete stepping plan for one (model, variant).
type Plan struct {
	Model   *ir.Model
	Variant Variant
	Classes *classify.Result
	Options Options

	States []StateRule // state index order
	Blocks []NewtonBlock

	// Parameters is the model's parameter vector, plus the clamp
	// conductance for data clamp variants.
	Parameters []ir.Variable

	// ClampTerm is subtracted from the voltage derivative when data
	// clamp is on.
	ClampTerm ir.Expr

	// Jacobian is the full state Jacobian of analytic-Jacobian variants;
	// nil entries are differenced numerically.
	Jacobian [][]ir.Expr
}

// Rule returns the plan for a state.
func (p *Plan) Rule(state string) (StateRule, bool) {
	for _, r := range p.States {
		if r.State == state {
			return r, true
		}
	}
	return StateRule{}, false
}

// Derivative returns the voltage-adjusted derivative expression of a
// state: its ODE, minus the clamp term for the voltage of data clamp
// variants.
func (p *Plan) Derivative(state string) ir.Expr {
	ode, _ := p.Model.ODE(state)
	if p.ClampTerm != nil && state == p.Model.Voltage() {
		return ir.Sub(ode.RHS, p.ClampTerm)
	}
	return ode.RHS
}

// Select builds the plan for v from the model's classification.
func Select(r *classify.Result, v Variant, opts Options) (*Plan, error) {
	m := r.Model
	if err := v.Validate(); err != nil {
		return nil, &SelectionError{Model: m.Name(), Variant: v.String(), Reason: err.Error()}
	}
	p := &Plan{
		Model:      m,
		Variant:    v,
		Classes:    r,
		Options:    opts,
		Parameters: m.Parameters(),
	}

	if v.DataClamp {
		p.Parameters = append(p.Parameters, ir.Variable{
			Name:         DataClampParameter,
			Kind:         ir.KindParameter,
			Units:        "mS_per_cm2",
			Index:        len(p.Parameters),
			DerivedIndex: -1,
		})
		var cm ir.Expr = ir.N(1)
		if c := m.Capacitance(); c != "" {
			cm = ir.R(c)
		}
		p.ClampTerm = ir.Div(ir.Mul(ir.R(DataClampParameter), ir.Sub(ir.R(m.Voltage()), ir.R(ExperimentalVoltage))), cm)
	}

	blockIndex := make(map[int]int)
	if v.Scheme == BackwardEuler {
		for _, b := range r.Blocks {
			if len(b.States) > opts.MaxBlockSize {
				return nil, &SelectionError{
					Model:   m.Name(),
					Variant: v.String(),
					State:   b.States[0],
					Reason:  fmt.Sprintf("nonlinear block of %d states exceeds the limit of %d", len(b.States), opts.MaxBlockSize),
				}
			}
			blockIndex[b.ID] = len(p.Blocks)
			p.Blocks = append(p.Blocks, newtonBlock(m, b))
		}
	}

	for _, c := range r.States {
		sr := StateRule{State: c.State, Index: c.Index, Class: c, Block: -1}
		sr.Rule = ruleFor(v.Scheme, c, m.Voltage())
		switch sr.Rule {
		case RuleNewton:
			sr.Block = blockIndex[c.Block]
		case RuleGRL:
			if c.Differentiable {
				sr.Partial = c.Partial
			}
		}
		p.States = append(p.States, sr)
	}

	if v.AnalyticJacobian {
		p.Jacobian = jacobian(m, p)
	}
	return p, nil
}

func ruleFor(s Scheme, c classify.Classification, voltage string) Rule {
	switch s {
	case BackwardEuler:
		switch {
		case c.Form != classify.FormNonlinear:
			return RuleImplicitLinear
		case c.State == voltage:
			return RuleExplicitEuler
		default:
			return RuleNewton
		}
	case RushLarsen, RushLarsen2:
		switch {
		case c.State == voltage:
			return RuleExplicitEuler
		case c.Form == classify.FormGate:
			return RuleExponential
		default:
			return RuleGRL
		}
	case GRL1, GRL2:
		return RuleGRL
	case Cvode:
		return RuleExternal
	default:
		return RuleExplicitEuler
	}
}
