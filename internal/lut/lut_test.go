package lut

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellc/internal/classify"
	"github.com/roach88/cellc/internal/compiler"
	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/scheme"
	"github.com/roach88/cellc/models"
)

func planFor(t *testing.T, m *ir.Model, variant string, level Level) *Plan {
	t.Helper()
	v, err := scheme.ParseVariant(variant)
	require.NoError(t, err)
	sp, err := scheme.Select(classify.Classify(m), v, scheme.DefaultOptions())
	require.NoError(t, err)
	return Build(sp, level)
}

func columnNames(tp TablePlan) []string {
	out := make([]string, len(tp.Columns))
	for i, c := range tp.Columns {
		out[i] = c.Name
	}
	return out
}

func paramValues(m *ir.Model) map[string]float64 {
	out := make(map[string]float64)
	for _, p := range m.Parameters() {
		out[p.Name] = p.Initial
	}
	return out
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("aggressive")
	require.NoError(t, err)
	assert.Equal(t, LevelAggressive, l)
	l, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelBasic, l)
	_, err = ParseLevel("max")
	assert.Error(t, err)
}

func TestBuildHodgkinHuxley(t *testing.T) {
	p := planFor(t, models.MustLoad(models.HodgkinHuxley), "Opt", LevelBasic)
	require.Len(t, p.Tables, 1)
	tp := p.Tables[0]
	assert.Equal(t, "membrane.V", tp.Key)
	assert.Equal(t, DefaultMin, tp.Min)
	assert.Equal(t, DefaultMax, tp.Max)
	assert.Equal(t, 80001, tp.Rows())
	assert.ElementsMatch(t, []string{
		"sodium_channel_m_gate.alpha_m", "sodium_channel_m_gate.beta_m",
		"sodium_channel_h_gate.alpha_h", "sodium_channel_h_gate.beta_h",
		"potassium_channel_n_gate.alpha_n", "potassium_channel_n_gate.beta_n",
	}, columnNames(tp))

	assert.False(t, p.IsColumn("sodium_channel.E_Na"), "no transcendental function")
	assert.False(t, p.IsColumn("sodium_channel.i_Na"), "depends on gates")
	ref, ok := p.Column("sodium_channel_h_gate.alpha_h")
	require.True(t, ok)
	assert.Equal(t, 0, ref.Table)
	assert.Equal(t, []string{"membrane.V"}, p.Keys())

	for _, c := range tp.Columns {
		assert.Equal(t, c.Name, c.Target)
		assert.Equal(t, []string{"membrane.V"}, ir.FreeVars(c.Expr), c.Name)
	}
}

func TestBuildPiecewiseColumnIsUnsafe(t *testing.T) {
	p := planFor(t, models.MustLoad(models.PiecewiseStress), "BackwardEulerOpt", LevelBasic)
	require.Len(t, p.Tables, 1)
	require.Equal(t, []string{"membrane.i_pw"}, columnNames(p.Tables[0]))
	assert.True(t, p.Tables[0].Columns[0].Unsafe)
}

const hoistModel = `
model: hoist: {
	time: {name: "env.time", units: "ms"}
	voltage:     "mem.V"
	capacitance: "mem.Cm"
	units: {
		mS_per_cm2: [{units: "siemens", prefix: "milli"}, {units: "metre", prefix: "centi", exponent: -2}]
	}
	state: [
		{name: "mem.V", units: "mV", initial: -80, ode: "-i_ion / Cm"},
		{name: "g.y", units: "dimensionless", initial: 0.5, ode: "exp(mem.V / 10) * (1 - y) - exp(mem.V / 10) * y * y + sqrt(mem.V + 200) * y"},
	]
	parameters: [
		{name: "mem.Cm", units: "uF_per_cm2", value: 1},
		{name: "mem.g", units: "mS_per_cm2", value: 0.1},
	]
	equations: [
		{name: "mem.i_ion", units: "uA_per_cm2", rhs: "g * (V + 70) * g.y"},
	]
	ionic_currents: ["mem.i_ion"]
	lookup_tables: [{key: "mem.V", min: -100, max: 100, step: 0.5}]
}
`

func hoistFixture(t *testing.T) *ir.Model {
	t.Helper()
	v := cuecontext.New().CompileString(hoistModel)
	require.NoError(t, v.Err())
	ms, err := compiler.CompileModels(v)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	return ms[0]
}

func TestBuildHoistsSubexpressions(t *testing.T) {
	m := hoistFixture(t)

	basic := planFor(t, m, "Normal", LevelBasic)
	require.Len(t, basic.Tables, 1)
	assert.Equal(t, []string{"lookup0#0"}, columnNames(basic.Tables[0]))
	col := basic.Tables[0].Columns[0]
	assert.Empty(t, col.Target)
	assert.Equal(t, "exp((mem.V / 10))", col.Source.String())
	assert.False(t, col.Unsafe)

	ode, _ := m.ODE("g.y")
	rewritten := basic.Rewrite(ode.RHS)
	assert.Equal(t, 2, ir.CountRefs(rewritten, "lookup0#0"))
	assert.True(t, ir.Mentions(rewritten, "mem.V"), "single sqrt stays inline")

	aggressive := planFor(t, m, "Normal", LevelAggressive)
	assert.Equal(t, []string{"lookup0#0", "lookup0#1"}, columnNames(aggressive.Tables[0]))
	assert.True(t, aggressive.Tables[0].Columns[1].Unsafe, "sqrt of the key")
	assert.False(t, ir.Mentions(aggressive.Rewrite(ode.RHS), "mem.V"))
}

func TestGenerateMatchesExpressions(t *testing.T) {
	m := models.MustLoad(models.HodgkinHuxley)
	p := planFor(t, m, "Opt", LevelBasic)
	set, err := Generate(context.Background(), p, paramValues(m))
	require.NoError(t, err)
	require.Len(t, set.Tables, 1)
	tbl := set.Table(0)
	assert.Equal(t, 80001, tbl.Rows())

	env := ir.MapEnv(map[string]float64{"membrane.V": -65})
	for j, c := range p.Tables[0].Columns {
		got, err := tbl.At(-65, j)
		require.NoError(t, err)
		assert.InDelta(t, ir.Eval(c.Expr, env), got, 1e-6, c.Name)
	}
}

func TestGeneratePatchesIsolatedSingularities(t *testing.T) {
	x := ir.R("x")
	tp := TablePlan{Key: "x", Min: -5, Max: 5, Step: 1, Columns: []Column{{
		Name:   "f",
		Expr:   ir.Div(ir.N(1), ir.Mul(x, ir.Sub(x, ir.N(2)))),
		Unsafe: true,
	}}}
	tbl, patched, err := GenerateTable(context.Background(), tp, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, patched)
	assert.InDelta(t, -1.0/3, tbl.Sample(5, 0), 1e-12, "f(0) = (f(-1) + f(1)) / 2")
	assert.InDelta(t, -1.0/3, tbl.Sample(7, 0), 1e-12, "f(2) = (f(1) + f(3)) / 2")
	assert.InDelta(t, 1.0/35, tbl.Sample(0, 0), 1e-12)
}

func TestGenerateRejectsThirdMiss(t *testing.T) {
	x := ir.R("x")
	tp := TablePlan{Key: "x", Min: -5, Max: 5, Step: 1, Columns: []Column{{
		Name:   "f",
		Expr:   ir.Div(ir.N(1), ir.Mul(ir.Mul(x, ir.Sub(x, ir.N(2))), ir.Sub(x, ir.N(4)))),
		Unsafe: true,
	}}}
	_, _, err := GenerateTable(context.Background(), tp, nil)
	var gerr *TableGenerationError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, 3, gerr.Misses)
	assert.Equal(t, 4.0, gerr.At)
	assert.Equal(t, "f", gerr.Column)
}

func TestGenerateSafeColumnMustBeFinite(t *testing.T) {
	tp := TablePlan{Key: "x", Min: -1, Max: 1, Step: 1, Columns: []Column{{
		Name: "f",
		Expr: ir.Fn(ir.FnLn, ir.R("x")),
	}}}
	_, _, err := GenerateTable(context.Background(), tp, nil)
	var gerr *TableGenerationError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, 0, gerr.Misses)
	assert.Equal(t, -1.0, gerr.At)
}

func TestTableLookup(t *testing.T) {
	x := ir.R("x")
	tp := TablePlan{Key: "x", Min: 0, Max: 1, Step: 0.5, Columns: []Column{{Name: "sq", Expr: ir.Mul(x, x)}}}
	tbl, _, err := GenerateTable(context.Background(), tp, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Rows())

	got, err := tbl.At(0.25, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.125, got, 1e-12)

	got, err = tbl.At(1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-12, "upper bound interpolates within the last interval")

	c, err := tbl.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, Cursor{Row: 1, Frac: 1}, c)

	for _, v := range []float64{-0.1, 1.1, math.NaN()} {
		_, err := tbl.Lookup(v)
		var oerr *OutOfRangeError
		require.True(t, errors.As(err, &oerr), "%v", v)
		assert.Equal(t, "x", oerr.Key)
	}
}

func TestTableLookupStopsAtLastSample(t *testing.T) {
	tp := TablePlan{Key: "x", Min: 0, Max: 1.04, Step: 0.1, Columns: []Column{{Name: "x", Expr: ir.R("x")}}}
	assert.Equal(t, 11, tp.Rows())
	assert.InDelta(t, 1.0, tp.Upper(), 1e-12)

	tbl, _, err := GenerateTable(context.Background(), tp, nil)
	require.NoError(t, err)
	got, err := tbl.At(1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-12)

	_, err = tbl.Lookup(1.04)
	var oerr *OutOfRangeError
	require.True(t, errors.As(err, &oerr))
	assert.InDelta(t, 1.0, oerr.Max, 1e-12)

	whole := TablePlan{Key: "x", Min: -250.0001, Max: 549.9999, Step: 0.01}
	assert.Equal(t, whole.Max, whole.Upper())
}

func TestOutOfRangeErrorMessage(t *testing.T) {
	err := &OutOfRangeError{Key: "membrane.V", Value: 600, Min: -250.0001, Max: 549.9999}
	assert.Equal(t, "membrane.V outside lookup table range: 600 not in [-250.0001, 549.9999]", err.Error())
}

func registryPlan() *Plan {
	x := ir.R("x")
	return &Plan{Tables: []TablePlan{{
		Key: "x", Min: 0, Max: 10, Step: 1,
		Columns: []Column{{Name: "gx", Expr: ir.Mul(ir.R("g"), x)}},
	}}}
}

func TestRegistrySharesTables(t *testing.T) {
	r := NewRegistry()
	var mu sync.Mutex
	g := 2.0
	params := func() map[string]float64 {
		mu.Lock()
		defer mu.Unlock()
		return map[string]float64{"g": g}
	}
	e := r.Entry("m:Opt", registryPlan(), params)
	assert.Same(t, e, r.Entry("m:Opt", nil, nil))
	assert.Equal(t, 1, r.Len())
	assert.False(t, e.Ready())

	var wg sync.WaitGroup
	sets := make([]*Set, 8)
	for i := range sets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := e.Load(context.Background())
			assert.NoError(t, err)
			sets[i] = s
		}()
	}
	wg.Wait()
	for _, s := range sets {
		assert.Same(t, sets[0], s)
	}
	assert.Equal(t, int64(1), e.Builds())
	v, err := sets[0].Table(0).At(3, 0)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, v, 1e-12)

	mu.Lock()
	g = 3
	mu.Unlock()
	fresh, err := e.Regenerate(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, sets[0], fresh)
	v, _ = fresh.Table(0).At(3, 0)
	assert.InDelta(t, 9.0, v, 1e-12)
	old, _ := sets[0].Table(0).At(3, 0)
	assert.InDelta(t, 6.0, old, 1e-12, "old snapshot is unchanged")

	r.FreeMemory()
	assert.False(t, e.Ready())
	_, err = e.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.Builds())
}
