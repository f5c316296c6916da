package scheme

import (
	"github.com/roach88/cellc/internal/classify"
	"github.com/roach88/cellc/internal/ir"
)

// expandFor inlines every intermediate that depends on any of states.
func expandFor(m *ir.Model, e ir.Expr, states []string) ir.Expr {
	return m.Expand(e, func(name string) bool {
		for _, s := range states {
			if m.DependsOn(name, s) {
				return true
			}
		}
		return false
	})
}

// partial differentiates e with respect to y, returning nil when the
// derivative must be differenced numerically.
func partial(e ir.Expr, y string) ir.Expr {
	d, ok := ir.Diff(e, y)
	if !ok {
		return nil
	}
	return d
}

func newtonBlock(m *ir.Model, b classify.Block) NewtonBlock {
	nb := NewtonBlock{ID: b.ID, States: b.States}
	for _, s := range b.States {
		v, _ := m.Var(s)
		nb.Indices = append(nb.Indices, v.Index)
	}
	for _, s := range b.States {
		ode, _ := m.ODE(s)
		f := expandFor(m, ode.RHS, b.States)
		nb.F = append(nb.F, f)
		row := make([]ir.Expr, len(b.States))
		for j, y := range b.States {
			row[j] = partial(f, y)
		}
		nb.DF = append(nb.DF, row)
	}
	return nb
}

// jacobian builds the full state Jacobian df_i/dy_j of the plan's
// derivatives.
func jacobian(m *ir.Model, p *Plan) [][]ir.Expr {
	states := m.States()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.Name
	}
	out := make([][]ir.Expr, len(states))
	for i, s := range states {
		f := expandFor(m, p.Derivative(s.Name), names)
		out[i] = make([]ir.Expr, len(states))
		for j, y := range names {
			out[i][j] = partial(f, y)
		}
	}
	return out
}
