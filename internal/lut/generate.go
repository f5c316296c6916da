package lut

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/cellc/internal/ir"
)

// MaxPiecewiseMisses is how many non-finite samples one unsafe column
// may have patched before generation fails.
const MaxPiecewiseMisses = 2

// Generate samples every table of the plan with the given parameter
// values. Tables are filled concurrently; the result is immutable.
func Generate(ctx context.Context, p *Plan, params map[string]float64) (*Set, error) {
	set := &Set{Plan: p, Tables: make([]*Table, len(p.Tables))}
	patched := make([]int, len(p.Tables))

	g, ctx := errgroup.WithContext(ctx)
	for i, tp := range p.Tables {
		g.Go(func() error {
			t, n, err := GenerateTable(ctx, tp, params)
			if err != nil {
				return err
			}
			set.Tables[i] = t
			patched[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, n := range patched {
		set.Patched += n
	}
	return set, nil
}

// GenerateTable samples one table and returns it with the number of
// patched samples.
func GenerateTable(ctx context.Context, tp TablePlan, params map[string]float64) (*Table, int, error) {
	rows := tp.Rows()
	width := len(tp.Columns)
	data := make([]float64, rows*width)

	vals := make(map[string]float64, len(params)+1)
	for k, v := range params {
		vals[k] = v
	}
	env := ir.MapEnv(vals)
	at := func(e ir.Expr, key float64) float64 {
		vals[tp.Key] = key
		return ir.Eval(e, env)
	}

	patched := 0
	for j, col := range tp.Columns {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		misses := 0
		for i := 0; i < rows; i++ {
			key := tp.Min + float64(i)*tp.Step
			y := at(col.Expr, key)
			if !finite(y) {
				if !col.Unsafe {
					return nil, 0, &TableGenerationError{
						Key: tp.Key, Column: col.Name, At: key,
						Reason: "non-finite value",
					}
				}
				misses++
				if misses > MaxPiecewiseMisses {
					return nil, 0, &TableGenerationError{
						Key: tp.Key, Column: col.Name, At: key, Misses: misses,
						Reason: "too many non-finite samples",
					}
				}
				y = (at(col.Expr, key-tp.Step) + at(col.Expr, key+tp.Step)) / 2
				if !finite(y) {
					return nil, 0, &TableGenerationError{
						Key: tp.Key, Column: col.Name, At: key, Misses: misses,
						Reason: "non-finite neighbours",
					}
				}
				patched++
			}
			data[i*width+j] = y
		}
	}
	return NewTable(tp, data), patched, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
