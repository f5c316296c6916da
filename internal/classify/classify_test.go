package classify

import (
	"math"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/models"
)

func TestClassifyGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, name := range models.Names() {
		t.Run(name, func(t *testing.T) {
			r := Classify(models.MustLoad(name))
			g.Assert(t, name, []byte(Report(r)))
		})
	}
}

func TestClassifyHodgkinHuxleyGates(t *testing.T) {
	m := models.MustLoad(models.HodgkinHuxley)
	r := Classify(m)

	c, ok := r.State("sodium_channel_m_gate.m")
	require.True(t, ok)
	assert.Equal(t, FormGate, c.Form)
	assert.Equal(t, GateAlphaBeta, c.Gate)
	assert.Equal(t, 1, c.Index)
	assert.Equal(t, -1, c.Block)

	// inf and tau are derived from the rates.
	vals := map[string]float64{"sodium_channel_m_gate.alpha_m": 0.3, "sodium_channel_m_gate.beta_m": 0.1}
	env := ir.MapEnv(vals)
	assert.InDelta(t, 0.75, ir.Eval(c.Inf, env), 1e-12)
	assert.InDelta(t, 2.5, ir.Eval(c.Tau, env), 1e-12)

	// dy/dt = A*y + B with A = -(alpha+beta), B = alpha.
	assert.InDelta(t, -0.4, ir.Eval(c.A, env), 1e-12)
	assert.InDelta(t, 0.3, ir.Eval(c.B, env), 1e-12)

	v := r.Voltage()
	assert.Equal(t, FormLinear, v.Form)
	assert.True(t, v.Differentiable)
	assert.Empty(t, r.Blocks)
	assert.Empty(t, r.Nonlinear())
}

func TestClassifyBeelerReuterCalcium(t *testing.T) {
	r := Classify(models.MustLoad(models.BeelerReuter))

	ca, ok := r.State("slow_inward_current.Cai")
	require.True(t, ok)
	assert.Equal(t, FormNonlinear, ca.Form)
	assert.True(t, ca.Differentiable, "analytic partial exists even though it depends on Cai")
	assert.Equal(t, 0, ca.Block)

	require.Len(t, r.Blocks, 1)
	assert.Equal(t, []string{"slow_inward_current.Cai"}, r.Blocks[0].States)

	// The voltage is nonlinear but never part of a block.
	assert.Equal(t, FormNonlinear, r.Voltage().Form)
	assert.Equal(t, -1, r.Voltage().Block)
}

func TestClassifyPiecewiseFixture(t *testing.T) {
	r := Classify(models.MustLoad(models.PiecewiseStress))
	for _, name := range []string{"gates.m1", "gates.m2"} {
		c, ok := r.State(name)
		require.True(t, ok)
		assert.Equal(t, FormNonlinear, c.Form, name)
		assert.False(t, c.Differentiable, name)
		assert.Equal(t, 0, c.Block, name)
	}
	require.Len(t, r.Blocks, 1)
	assert.Len(t, r.Blocks[0].States, 2)
}

// toyModel has a voltage state and a state y whose derivative is given.
func toyModel(t *testing.T, yODE ir.Expr, eqs ...ir.Equation) *ir.Model {
	t.Helper()
	vars := []ir.Variable{
		{Name: "env.t", Kind: ir.KindFree, Units: "ms", Index: -1, DerivedIndex: -1},
		{Name: "mem.V", Kind: ir.KindState, Units: "mV", Initial: -65, Index: 0, DerivedIndex: -1},
		{Name: "y.y", Kind: ir.KindState, Units: "dimensionless", Initial: 0.4, Index: 1, DerivedIndex: -1},
		{Name: "y.k", Kind: ir.KindParameter, Units: "per_ms", Initial: 2, Index: 0, DerivedIndex: -1},
	}
	for _, eq := range eqs {
		vars = append(vars, ir.Variable{Name: eq.Target, Kind: ir.KindIntermediate, Index: -1, DerivedIndex: -1})
	}
	m, err := ir.NewModel(ir.ModelParts{
		Name:      "toy",
		Free:      "env.t",
		Voltage:   "mem.V",
		Variables: vars,
		ODEs: []ir.Equation{
			{Target: "mem.V", RHS: ir.N(0)},
			{Target: "y.y", RHS: yODE},
		},
		Equations: eqs,
	})
	require.NoError(t, err)
	return m
}

func TestClassifyInfTau(t *testing.T) {
	inf := ir.Div(ir.N(1), ir.Add(ir.N(1), ir.Fn(ir.FnExp, ir.R("mem.V"))))
	m := toyModel(t,
		ir.Div(ir.Sub(ir.R("y.inf"), ir.R("y.y")), ir.R("y.k")),
		ir.Equation{Target: "y.inf", RHS: inf},
	)
	c, ok := Classify(m).State("y.y")
	require.True(t, ok)
	assert.Equal(t, FormGate, c.Form)
	assert.Equal(t, GateInfTau, c.Gate)
	assert.Equal(t, "y.inf", c.Inf.String())
	assert.Equal(t, "y.k", c.Tau.String())

	env := ir.MapEnv(map[string]float64{"y.inf": 0.8, "y.k": 2})
	assert.InDelta(t, 0.4, ir.Eval(c.Alpha, env), 1e-12)
	assert.InDelta(t, 0.1, ir.Eval(c.Beta, env), 1e-12)
}

func TestClassifyAmbiguousIsNonlinear(t *testing.T) {
	tests := []struct {
		name   string
		ode    ir.Expr
		eqs    []ir.Equation
		reason string
	}{
		{
			name: "coefficient through intermediate",
			ode:  ir.Mul(ir.R("y.c"), ir.R("y.y")),
			eqs: []ir.Equation{
				{Target: "y.c", RHS: ir.Mul(ir.N(2), ir.R("y.y"))},
			},
			reason: "coefficient depends on y.y",
		},
		{
			name:   "branch on self",
			ode:    ir.If(ir.N(0), ir.Case{Cond: ir.Cmp(ir.CmpGT, ir.R("y.y"), ir.N(0)), Value: ir.Negate(ir.R("y.y"))}),
			reason: "branch boundary depends on y.y",
		},
		{
			name:   "floor of self",
			ode:    ir.Fn(ir.FnFloor, ir.R("y.y")),
			reason: "non-differentiable function of y.y",
		},
		{
			name:   "exp of self",
			ode:    ir.Fn(ir.FnExp, ir.Negate(ir.R("y.y"))),
			reason: "coefficient depends on y.y",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Classify(toyModel(t, tt.ode, tt.eqs...))
			c, ok := r.State("y.y")
			require.True(t, ok)
			assert.Equal(t, FormNonlinear, c.Form)
			assert.Equal(t, tt.reason, c.Reason)
			assert.Equal(t, 0, c.Block)
			require.Len(t, r.Blocks, 1)
		})
	}
}

func TestClassifyLinearNotGate(t *testing.T) {
	// dy/dt = -k*y + exp(V): linear with A = -k.
	ode := ir.Add(ir.Mul(ir.Negate(ir.R("y.k")), ir.R("y.y")), ir.Fn(ir.FnExp, ir.Div(ir.R("mem.V"), ir.N(10))))
	c, ok := Classify(toyModel(t, ode)).State("y.y")
	require.True(t, ok)
	assert.Equal(t, FormLinear, c.Form)
	assert.Equal(t, GateNone, c.Gate)

	env := ir.MapEnv(map[string]float64{"y.k": 2, "mem.V": 0})
	assert.InDelta(t, -2.0, ir.Eval(c.A, env), 1e-12)
	assert.InDelta(t, 1.0, ir.Eval(c.B, env), 1e-12)
}

func TestClassifyVoltageNeverGate(t *testing.T) {
	// dV/dt = (E_rest - V) / tau_m has the shape of an inf/tau gate.
	r := Classify(models.MustLoad(models.Relaxation))
	v := r.Voltage()
	assert.Equal(t, FormLinear, v.Form)
	assert.Equal(t, GateNone, v.Gate)
	assert.Nil(t, v.Inf)
	assert.Nil(t, v.Tau)

	env := ir.MapEnv(map[string]float64{"membrane.E_rest": -80, "membrane.tau_m": 5})
	assert.InDelta(t, -0.2, ir.Eval(v.A, env), 1e-12)
	assert.InDelta(t, -16.0, ir.Eval(v.B, env), 1e-12)

	y, ok := r.State("gate.y")
	require.True(t, ok)
	assert.Equal(t, FormGate, y.Form)
}

func TestClassifyIndependentDerivative(t *testing.T) {
	c, ok := Classify(toyModel(t, ir.R("y.k"))).State("y.y")
	require.True(t, ok)
	assert.Equal(t, FormLinear, c.Form)
	assert.Equal(t, 0.0, ir.Eval(c.A, ir.MapEnv(nil)))
}

func TestAffine(t *testing.T) {
	sample := map[string]float64{"y": 0.5}
	y := ir.R("y")
	assert.True(t, affine(ir.Add(ir.Mul(ir.N(3), y), ir.N(1)), ir.N(3), ir.N(1), "y", sample))
	assert.False(t, affine(ir.Mul(y, y), ir.N(1), ir.N(0), "y", sample))
	// Non-finite points are skipped.
	assert.True(t, affine(ir.Div(ir.N(1), ir.Sub(y, y)), ir.N(math.Inf(1)), ir.N(0), "y", sample))
}
