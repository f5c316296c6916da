package classify

import (
	"fmt"
	"math"

	"github.com/roach88/cellc/internal/compiler"
	"github.com/roach88/cellc/internal/ir"
)

// Form is the shape of one state derivative.
type Form int

const (
	FormGate Form = iota
	FormLinear
	FormNonlinear
)

var formNames = [...]string{"gate", "linear", "nonlinear"}

func (f Form) String() string {
	if int(f) < len(formNames) {
		return formNames[f]
	}
	return "unknown"
}

// GateKind tells how a gate was written.
type GateKind int

const (
	GateNone GateKind = iota
	GateAlphaBeta
	GateInfTau
)

// Classification describes the derivative of one state.
type Classification struct {
	State string
	Index int
	Form  Form
	Gate  GateKind

	// Expanded is the derivative with every y-dependent intermediate
	// inlined.
	Expanded ir.Expr

	// Gate rates. Both pairs are filled for every gate; the pair not
	// written in the model is derived from the other.
	Alpha, Beta ir.Expr
	Inf, Tau    ir.Expr

	// A and B give dy/dt = A*y + B for gates and linear derivatives.
	A, B ir.Expr

	// Partial is the analytic df/dy when Differentiable is true.
	Partial        ir.Expr
	Differentiable bool

	// Block is the nonlinear block number, or -1.
	Block int

	// Reason explains a nonlinear classification.
	Reason string
}

// Block is a set of nonlinear states solved together.
type Block struct {
	ID     int
	States []string // state index order
}

// Result holds the classification of every state of one model.
type Result struct {
	Model  *ir.Model
	States []Classification // state index order
	Blocks []Block

	byName map[string]int
}

// State returns the classification of a state.
func (r *Result) State(name string) (Classification, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Classification{}, false
	}
	return r.States[i], true
}

// Voltage returns the classification of the voltage state.
func (r *Result) Voltage() Classification {
	c, _ := r.State(r.Model.Voltage())
	return c
}

// Nonlinear lists the nonlinear states other than the voltage.
func (r *Result) Nonlinear() []Classification {
	var out []Classification
	for _, c := range r.States {
		if c.Block >= 0 {
			out = append(out, c)
		}
	}
	return out
}

// Classify tags every state derivative of m. The result depends only on
// m, so it is computed once per model and shared by all variants.
func Classify(m *ir.Model) *Result {
	r := &Result{Model: m, byName: make(map[string]int)}
	sample := sampleValues(m)
	for _, s := range m.States() {
		ode, _ := m.ODE(s.Name)
		c := classifyState(m, s, ode.RHS, sample)
		r.byName[s.Name] = len(r.States)
		r.States = append(r.States, c)
	}
	r.groupBlocks()
	return r
}

func classifyState(m *ir.Model, s ir.Variable, rhs ir.Expr, sample map[string]float64) Classification {
	y := s.Name
	e := m.ExpandDependent(rhs, y)
	c := Classification{State: y, Index: s.Index, Expanded: e, Block: -1}

	d, ok := ir.Diff(e, y)
	if !ok {
		c.Form = FormNonlinear
		c.Reason = nonDifferentiableReason(e, y)
		return c
	}
	c.Partial = ir.Simplify(d)
	c.Differentiable = true
	if ir.Mentions(c.Partial, y) {
		c.Form = FormNonlinear
		c.Reason = "coefficient depends on " + y
		return c
	}

	c.A = c.Partial
	c.B = ir.Simplify(ir.Replace(e, y, ir.N(0)))
	if !affine(e, c.A, c.B, y, sample) {
		c.Form = FormNonlinear
		c.Reason = "affinity check failed for " + y
		c.A, c.B = nil, nil
		return c
	}

	c.Form = FormLinear
	if y == m.Voltage() {
		return c
	}
	if alpha, beta, ok := matchAlphaBeta(e, y); ok {
		c.Form, c.Gate = FormGate, GateAlphaBeta
		c.Alpha, c.Beta = alpha, beta
		sum := ir.Add(alpha, beta)
		c.Inf = ir.Simplify(ir.Div(alpha, sum))
		c.Tau = ir.Simplify(ir.Div(ir.N(1), sum))
	} else if inf, tau, ok := matchInfTau(e, y); ok {
		c.Form, c.Gate = FormGate, GateInfTau
		c.Inf, c.Tau = inf, tau
		c.Alpha = ir.Simplify(ir.Div(inf, tau))
		c.Beta = ir.Simplify(ir.Div(ir.Sub(ir.N(1), inf), tau))
	}
	return c
}

// nonDifferentiableReason names why Diff gave up on e.
func nonDifferentiableReason(e ir.Expr, y string) string {
	boundary := false
	ir.Walk(e, func(x ir.Expr) bool {
		switch n := x.(type) {
		case *ir.Piecewise:
			for _, cs := range n.Cases {
				if ir.Mentions(cs.Cond, y) {
					boundary = true
				}
			}
		case *ir.Compare, *ir.Logic:
			if ir.Mentions(n, y) {
				boundary = true
			}
		}
		return !boundary
	})
	if boundary {
		return "branch boundary depends on " + y
	}
	return "non-differentiable function of " + y
}

// sampleValues evaluates every variable at the model's initial state.
func sampleValues(m *ir.Model) map[string]float64 {
	vals := map[string]float64{m.Free(): 0}
	for _, v := range m.Variables() {
		if v.Kind == ir.KindState || v.Kind == ir.KindParameter {
			vals[v.Name] = v.Initial
		}
	}
	for _, eq := range m.Equations() {
		vals[eq.Target] = ir.Eval(eq.RHS, ir.MapEnv(vals))
	}
	return vals
}

// affine checks e == A*y + B numerically at a few values of y around the
// initial state. Points where either side is not finite are skipped.
func affine(e, a, b ir.Expr, y string, sample map[string]float64) bool {
	base := sample[y]
	env := func(at float64) ir.Env {
		return func(name string) float64 {
			if name == y {
				return at
			}
			if v, ok := sample[name]; ok {
				return v
			}
			return math.NaN()
		}
	}
	for _, at := range []float64{base, base + 0.5, base - 0.25, 2*base + 1} {
		lhs := ir.Eval(e, env(at))
		rhs := ir.Eval(a, env(at))*at + ir.Eval(b, env(at))
		if math.IsNaN(lhs) || math.IsInf(lhs, 0) || math.IsNaN(rhs) || math.IsInf(rhs, 0) {
			continue
		}
		if math.Abs(lhs-rhs) > 1e-6*(1+math.Abs(lhs)) {
			return false
		}
	}
	return true
}

// groupBlocks numbers the strongly connected components of the coupling
// graph among nonlinear non-voltage states.
func (r *Result) groupBlocks() {
	var nodes []string
	for _, c := range r.States {
		if c.Form == FormNonlinear && c.State != r.Model.Voltage() {
			nodes = append(nodes, c.State)
		}
	}
	g := make(compiler.Graph, len(nodes))
	for _, n := range nodes {
		c, _ := r.State(n)
		for _, other := range nodes {
			if other != n && r.Model.ExprDependsOn(c.Expanded, other) {
				g[n] = append(g[n], other)
			}
		}
	}
	for id, scc := range compiler.StronglyConnected(nodes, g) {
		for _, n := range scc {
			r.States[r.byName[n]].Block = id
		}
		r.Blocks = append(r.Blocks, Block{ID: id, States: scc})
	}
}

// String renders a one-line summary, as used in reports.
func (c Classification) String() string {
	switch c.Form {
	case FormGate:
		if c.Gate == GateInfTau {
			return fmt.Sprintf("gate inf=%s tau=%s", c.Inf, c.Tau)
		}
		return fmt.Sprintf("gate alpha=%s beta=%s", c.Alpha, c.Beta)
	case FormLinear:
		return "linear"
	default:
		if c.Block >= 0 {
			return fmt.Sprintf("nonlinear block=%d (%s)", c.Block, c.Reason)
		}
		return fmt.Sprintf("nonlinear (%s)", c.Reason)
	}
}
