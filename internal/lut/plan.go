package lut

import (
	"fmt"
	"math"

	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/scheme"
)

// Level is the lookup-table optimisation level.
type Level int

const (
	// LevelBasic tabulates key-only intermediates and hoists embedded
	// key-only sub-expressions that occur more than once.
	LevelBasic Level = iota + 1
	// LevelAggressive also hoists sub-expressions that occur once.
	LevelAggressive
)

func (l Level) String() string {
	switch l {
	case LevelBasic:
		return "basic"
	case LevelAggressive:
		return "aggressive"
	}
	return "unknown"
}

// ParseLevel reads "basic" or "aggressive".
func ParseLevel(s string) (Level, error) {
	switch s {
	case "basic", "":
		return LevelBasic, nil
	case "aggressive":
		return LevelAggressive, nil
	}
	return 0, fmt.Errorf("unknown lookup table level %q", s)
}

// Default voltage domain used when a model declares no tables.
const (
	DefaultMin  = -250.0001
	DefaultMax  = 549.9999
	DefaultStep = 0.01
)

// Column is one tabulated quantity.
type Column struct {
	// Name is the intermediate the column replaces, or a generated
	// subexpression name.
	Name string
	// Target is set when the column replaces a whole intermediate.
	Target string
	// Expr is a function of the key and parameters only.
	Expr ir.Expr
	// Source is the hoisted sub-expression as written, for matching.
	Source ir.Expr
	// Unsafe columns may be non-finite inside the domain and are patched
	// by neighbour averaging.
	Unsafe bool
}

// TablePlan describes one table.
type TablePlan struct {
	Index   int
	Key     string
	Min     float64
	Max     float64
	Step    float64
	Columns []Column
}

// Rows is the number of samples: 1 + (max-min)/step, rounded down
// unless within rounding error of the next whole step.
func (t TablePlan) Rows() int {
	return 1 + int((t.Max-t.Min)/t.Step+1e-6)
}

// Upper is the largest key that can be looked up: Max, or the last
// sample when the domain is not a whole number of steps.
func (t TablePlan) Upper() float64 {
	last := t.Min + float64(t.Rows()-1)*t.Step
	if last < t.Max-1e-6*t.Step {
		return last
	}
	return t.Max
}

// ColumnRef locates a column.
type ColumnRef struct {
	Table  int
	Column int
}

// Plan is the lookup-table layout of one model variant.
type Plan struct {
	Model  *ir.Model
	Level  Level
	Tables []TablePlan

	columns  map[string]ColumnRef
	subexprs map[string]string // sub-expression text -> column name
}

// SubexprName is the name given to a hoisted sub-expression. It cannot
// clash with model variables.
func SubexprName(table, column int) string {
	return fmt.Sprintf("lookup%d#%d", table, column)
}

// Column returns the location of a named column.
func (p *Plan) Column(name string) (ColumnRef, bool) {
	ref, ok := p.columns[name]
	return ref, ok
}

// IsColumn reports whether an intermediate is read from a table.
func (p *Plan) IsColumn(name string) bool {
	_, ok := p.columns[name]
	return ok
}

// Keys lists the table keys in table order.
func (p *Plan) Keys() []string {
	out := make([]string, len(p.Tables))
	for i, t := range p.Tables {
		out[i] = t.Key
	}
	return out
}

// Rewrite replaces hoisted sub-expressions of e by references to their
// columns.
func (p *Plan) Rewrite(e ir.Expr) ir.Expr {
	if len(p.subexprs) == 0 {
		return e
	}
	return ir.Rewrite(e, func(x ir.Expr) (ir.Expr, bool) {
		if name, ok := p.subexprs[x.String()]; ok {
			return ir.R(name), true
		}
		return nil, false
	})
}

// Build plans the tables for a scheme plan. Every expression the
// variant evaluates per step is scanned: derivatives, ionic currents,
// derived quantities, Newton residuals and Jacobians, GRL partials.
func Build(sp *scheme.Plan, level Level) *Plan {
	m := sp.Model
	p := &Plan{
		Model:    m,
		Level:    level,
		columns:  make(map[string]ColumnRef),
		subexprs: make(map[string]string),
	}

	domains := m.Tables()
	if len(domains) == 0 {
		domains = []ir.TableDomain{{Key: m.Voltage(), Min: DefaultMin, Max: DefaultMax, Step: DefaultStep}}
	}
	params := make(map[string]bool)
	for _, v := range sp.Parameters {
		params[v.Name] = true
	}

	roots := stepExprs(sp)
	required := m.Required(roots...)

	for _, d := range domains {
		ti := len(p.Tables)
		t := TablePlan{Index: ti, Key: d.Key, Min: d.Min, Max: d.Max, Step: d.Step}
		keyOnly := func(e ir.Expr) bool {
			inputs := m.Inputs(e)
			hasKey := false
			for _, in := range inputs {
				switch {
				case in == d.Key:
					hasKey = true
				case !params[in]:
					return false
				}
			}
			return hasKey
		}

		// Whole intermediates.
		for _, eq := range required {
			if _, taken := p.columns[eq.Target]; taken {
				continue
			}
			full := m.ExpandAll(ir.R(eq.Target))
			if !keyOnly(ir.R(eq.Target)) || !ir.HasTranscendental(full) {
				continue
			}
			p.columns[eq.Target] = ColumnRef{Table: ti, Column: len(t.Columns)}
			t.Columns = append(t.Columns, Column{
				Name:   eq.Target,
				Target: eq.Target,
				Expr:   full,
				Unsafe: unsafe(full, d.Key),
			})
		}

		// Embedded sub-expressions of what is still computed per step.
		var scan []ir.Expr
		for _, eq := range required {
			if !p.IsColumn(eq.Target) {
				scan = append(scan, eq.RHS)
			}
		}
		scan = append(scan, roots...)

		counts := make(map[string]int)
		var order []ir.Expr
		for _, e := range scan {
			for _, sub := range maximalSubtrees(e, keyOnly) {
				k := sub.String()
				if counts[k] == 0 {
					order = append(order, sub)
				}
				counts[k]++
			}
		}
		threshold := 2
		if level == LevelAggressive {
			threshold = 1
		}
		for _, sub := range order {
			k := sub.String()
			if counts[k] < threshold {
				continue
			}
			if _, done := p.subexprs[k]; done {
				continue
			}
			name := SubexprName(ti, len(t.Columns))
			full := m.ExpandAll(sub)
			p.columns[name] = ColumnRef{Table: ti, Column: len(t.Columns)}
			p.subexprs[k] = name
			t.Columns = append(t.Columns, Column{
				Name:   name,
				Expr:   full,
				Source: sub,
				Unsafe: unsafe(full, d.Key),
			})
		}

		if len(t.Columns) > 0 {
			p.Tables = append(p.Tables, t)
		}
	}

	return p
}

// stepExprs lists the expressions evaluated every step.
func stepExprs(sp *scheme.Plan) []ir.Expr {
	m := sp.Model
	var out []ir.Expr
	for _, s := range m.States() {
		out = append(out, sp.Derivative(s.Name))
	}
	for _, c := range m.IonicCurrents() {
		out = append(out, ir.R(c.Name))
	}
	for _, d := range m.Derived() {
		out = append(out, ir.R(d.Name))
	}
	for _, r := range sp.States {
		if r.Partial != nil {
			out = append(out, r.Partial)
		}
	}
	for _, b := range sp.Blocks {
		out = append(out, b.F...)
		for _, row := range b.DF {
			for _, e := range row {
				if e != nil {
					out = append(out, e)
				}
			}
		}
	}
	for _, row := range sp.Jacobian {
		for _, e := range row {
			if e != nil {
				out = append(out, e)
			}
		}
	}
	return out
}

// maximalSubtrees returns the largest sub-expressions of e that satisfy
// keyOnly and contain a transcendental function themselves. Bare
// references are never hoisted.
func maximalSubtrees(e ir.Expr, keyOnly func(ir.Expr) bool) []ir.Expr {
	var out []ir.Expr
	ir.Walk(e, func(x ir.Expr) bool {
		switch x.(type) {
		case *ir.Ref, *ir.Num:
			return false
		}
		if ir.HasTranscendental(x) && keyOnly(x) {
			out = append(out, x)
			return false
		}
		return true
	})
	return out
}

// unsafe reports whether a column may be non-finite inside its domain:
// it branches, or divides by or takes the logarithm or root of
// something depending on the key.
func unsafe(e ir.Expr, key string) bool {
	if ir.HasPiecewise(e) {
		return true
	}
	found := false
	ir.Walk(e, func(x ir.Expr) bool {
		switch n := x.(type) {
		case *ir.Binary:
			if n.Op == ir.OpDiv && ir.Mentions(n.R, key) {
				found = true
			}
			if n.Op == ir.OpPow && ir.Mentions(n.L, key) && !integral(n.R) {
				found = true
			}
		case *ir.Call:
			switch n.Fn {
			case ir.FnLn, ir.FnLog10, ir.FnSqrt, ir.FnTan:
				if ir.Mentions(n.Arg, key) {
					found = true
				}
			}
		}
		return !found
	})
	return found
}

func integral(e ir.Expr) bool {
	n, ok := e.(*ir.Num)
	return ok && n.Value == math.Trunc(n.Value)
}
