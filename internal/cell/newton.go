package cell

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/scheme"
)

// newtonBlock solves r_i = y_i - y_i^old - dt*F_i(y) = 0 for one
// nonlinear block. Buffers are sized once.
type newtonBlock struct {
	states  []string
	indices []int
	slots   []int
	f       []evalFn
	df      [][]evalFn // nil entries are differenced
	// keyed lists the lookup tables whose key is a state of the block.
	keyed []int

	old, y, r, dx, fv, bumped []float64
	jac                       []float64 // row-major n*n
}

func (c *Cell) newNewtonBlock(b scheme.NewtonBlock) (*newtonBlock, error) {
	n := len(b.States)
	nb := &newtonBlock{
		states:  b.States,
		indices: b.Indices,
		df:      make([][]evalFn, n),
		old:     make([]float64, n),
		y:       make([]float64, n),
		r:       make([]float64, n),
		dx:      make([]float64, n),
		fv:      make([]float64, n),
		bumped:  make([]float64, n),
		jac:     make([]float64, n*n),
	}
	nb.keyed = c.blockTables(b)
	for i, s := range b.States {
		nb.slots = append(nb.slots, c.lay.slots[s])
		fn, err := c.compile(b.F[i])
		if err != nil {
			return nil, fmt.Errorf("block %d residual %s: %w", b.ID, s, err)
		}
		nb.f = append(nb.f, fn)
		nb.df[i] = make([]evalFn, n)
		for j, e := range b.DF[i] {
			if e == nil {
				continue
			}
			if nb.df[i][j], err = c.compile(e); err != nil {
				return nil, fmt.Errorf("block %d jacobian %s/%s: %w", b.ID, s, b.States[j], err)
			}
		}
	}
	return nb, nil
}

// blockTables lists the tables keyed on a state of b that its residual
// or Jacobian reads a column from.
func (c *Cell) blockTables(b scheme.NewtonBlock) []int {
	if c.tables == nil {
		return nil
	}
	reads := make(map[string]bool)
	note := func(e ir.Expr) {
		for _, name := range ir.FreeVars(c.tables.Rewrite(e)) {
			reads[name] = true
		}
	}
	for i, f := range b.F {
		note(f)
		for _, e := range b.DF[i] {
			if e != nil {
				note(e)
			}
		}
	}
	var out []int
	for ti, t := range c.tables.Tables {
		if !slices.Contains(b.States, t.Key) {
			continue
		}
		for _, col := range t.Columns {
			if reads[col.Name] {
				out = append(out, ti)
				break
			}
		}
	}
	return out
}

// solve runs Newton iteration from the values in work and writes the
// solution into next. Other states are read from work. Tables keyed on
// a block state are looked up again at every guess.
func (b *newtonBlock) solve(c *Cell, t, dt float64, work, next []float64) error {
	if err := c.refresh(t, work); err != nil {
		return err
	}
	var set *lut.Set
	if len(b.keyed) > 0 {
		var err error
		if set, err = c.entry.Load(context.Background()); err != nil {
			return err
		}
	}
	s := c.slots
	cfg := c.plan.Options.Newton
	delta := c.plan.Options.Delta
	n := len(b.indices)
	for i, k := range b.indices {
		b.old[i] = work[k]
		b.y[i] = work[k]
	}

	load := func(y []float64) error {
		for i, slot := range b.slots {
			s[slot] = y[i]
		}
		for _, ti := range b.keyed {
			if err := c.lookup(set, ti); err != nil {
				state := append([]float64(nil), work...)
				for i, k := range b.indices {
					state[k] = y[i]
				}
				return c.fail(CodeLookupOutOfRange, t, state, "lookup table key out of range", err)
			}
		}
		return nil
	}
	residual := func() (float64, error) {
		if err := load(b.y); err != nil {
			return 0, err
		}
		norm := 0.0
		for i, f := range b.f {
			b.fv[i] = f(s)
			b.r[i] = b.y[i] - b.old[i] - dt*b.fv[i]
			norm = math.Max(norm, math.Abs(b.r[i]))
		}
		return norm, nil
	}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		norm, err := residual()
		if err != nil {
			return err
		}
		if math.IsNaN(norm) {
			break
		}
		if norm < cfg.Tolerance {
			b.commit(next)
			return nil
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				var d float64
				if fn := b.df[i][j]; fn != nil {
					d = fn(s)
				} else {
					h := delta * math.Max(1, math.Abs(b.y[j]))
					copy(b.bumped, b.y)
					b.bumped[j] += h
					if err := load(b.bumped); err != nil {
						return err
					}
					d = (b.f[i](s) - b.fv[i]) / h
					if err := load(b.y); err != nil {
						return err
					}
				}
				id := 0.0
				if i == j {
					id = 1
				}
				b.jac[i*n+j] = id - dt*d
			}
		}
		copy(b.dx, b.r)
		if !luSolve(b.jac, b.dx, n) {
			break
		}
		step := 0.0
		for i := range b.y {
			b.y[i] -= b.dx[i]
			step = math.Max(step, math.Abs(b.dx[i]))
		}
		if step < cfg.Tolerance {
			norm, err := residual()
			if err != nil {
				return err
			}
			if !math.IsNaN(norm) {
				b.commit(next)
				return nil
			}
			break
		}
	}
	for i, k := range b.indices {
		next[k] = b.y[i]
	}
	return c.fail(CodeNewtonNotConverged, t, next,
		fmt.Sprintf("block %v did not converge in %d iterations", b.states, cfg.MaxIterations), nil)
}

func (b *newtonBlock) commit(next []float64) {
	for i, k := range b.indices {
		next[k] = b.y[i]
	}
}

// luSolve solves a*x = rhs in place by Gaussian elimination with
// partial pivoting. It reports false for a singular matrix.
func luSolve(a, rhs []float64, n int) bool {
	for k := 0; k < n; k++ {
		p := k
		for i := k + 1; i < n; i++ {
			if math.Abs(a[i*n+k]) > math.Abs(a[p*n+k]) {
				p = i
			}
		}
		if a[p*n+k] == 0 {
			return false
		}
		if p != k {
			for j := 0; j < n; j++ {
				a[k*n+j], a[p*n+j] = a[p*n+j], a[k*n+j]
			}
			rhs[k], rhs[p] = rhs[p], rhs[k]
		}
		for i := k + 1; i < n; i++ {
			m := a[i*n+k] / a[k*n+k]
			if m == 0 {
				continue
			}
			for j := k; j < n; j++ {
				a[i*n+j] -= m * a[k*n+j]
			}
			rhs[i] -= m * rhs[k]
		}
	}
	for i := n - 1; i >= 0; i-- {
		sum := rhs[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i*n+j] * rhs[j]
		}
		rhs[i] = sum / a[i*n+i]
	}
	return true
}
