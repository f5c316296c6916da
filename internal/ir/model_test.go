package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateParts builds a two-state model: a voltage with a leak current and
// a gate y with voltage dependent rates.
func gateParts() ModelParts {
	return ModelParts{
		Name:    "toy",
		Source:  "toy.cue",
		Free:    "env.time",
		Voltage: "mem.V",
		Variables: []Variable{
			{Name: "env.time", Kind: KindFree, Units: "ms", Index: -1, DerivedIndex: -1},
			{Name: "mem.V", Kind: KindState, Units: "mV", Initial: -65, Index: 0, DerivedIndex: -1},
			{Name: "g.y", Kind: KindState, Units: "dimensionless", Initial: 0.3, Index: 1, DerivedIndex: -1},
			{Name: "mem.g", Kind: KindParameter, Units: "mS_per_cm2", Initial: 0.3, Index: 0, DerivedIndex: 0},
			{Name: "g.alpha", Kind: KindIntermediate, Units: "per_ms", Index: -1, DerivedIndex: -1},
			{Name: "g.beta", Kind: KindIntermediate, Units: "per_ms", Index: -1, DerivedIndex: -1},
			{Name: "g.flux", Kind: KindIntermediate, Units: "per_ms", Index: -1, DerivedIndex: -1},
			{Name: "mem.i_L", Kind: KindDerivedQuantity, Units: "uA_per_cm2", Index: 1, DerivedIndex: 1},
		},
		ODEs: []Equation{
			{Target: "g.y", RHS: R("g.flux")},
			{Target: "mem.V", RHS: Negate(R("mem.i_L"))},
		},
		Equations: []Equation{
			{Target: "g.alpha", RHS: Fn(FnExp, Div(R("mem.V"), N(10)))},
			{Target: "g.beta", RHS: Mul(N(0.5), R("mem.V"))},
			{Target: "g.flux", RHS: Sub(Mul(R("g.alpha"), Sub(N(1), R("g.y"))), Mul(R("g.beta"), R("g.y")))},
			{Target: "mem.i_L", RHS: Mul(R("mem.g"), R("mem.V"))},
		},
		IonicCurrents: []IonicCurrent{{Name: "mem.i_L", Factor: 1}},
	}
}

func TestNewModelIndexing(t *testing.T) {
	m, err := NewModel(gateParts())
	require.NoError(t, err)

	states := m.States()
	require.Len(t, states, 2)
	assert.Equal(t, "mem.V", states[0].Name)
	assert.Equal(t, "g.y", states[1].Name)

	odes := m.ODEs()
	assert.Equal(t, "mem.V", odes[0].Target)
	assert.Equal(t, "g.y", odes[1].Target)
	assert.True(t, odes[1].ODE)

	derived := m.Derived()
	require.Len(t, derived, 2)
	assert.Equal(t, "mem.g", derived[0].Name)
	assert.Equal(t, KindParameter, derived[0].Kind)
	assert.Equal(t, "mem.i_L", derived[1].Name)

	v, ok := m.Var("g.alpha")
	require.True(t, ok)
	assert.Equal(t, "g", v.Component())
	assert.Equal(t, "alpha", v.Local())
	assert.Len(t, m.Fingerprint(), 64)
}

func TestNewModelRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ModelParts)
		msg    string
	}{
		{"duplicate variable", func(p *ModelParts) {
			p.Variables = append(p.Variables, Variable{Name: "g.y", Kind: KindIntermediate, Index: -1, DerivedIndex: -1})
		}, "duplicate variable"},
		{"missing ode", func(p *ModelParts) { p.ODEs = p.ODEs[:1] }, "has no ODE"},
		{"two odes", func(p *ModelParts) {
			p.ODEs = append(p.ODEs, Equation{Target: "g.y", RHS: N(0)})
		}, "more than one ODE"},
		{"index gap", func(p *ModelParts) { p.Variables[2].Index = 5 }, "has index 5"},
		{"use before define", func(p *ModelParts) {
			p.Equations[0], p.Equations[2] = p.Equations[2], p.Equations[0]
		}, "before it is defined"},
		{"undeclared ref", func(p *ModelParts) {
			p.Equations[1].RHS = R("nowhere.x")
		}, "undeclared"},
		{"voltage not state", func(p *ModelParts) { p.Voltage = "mem.g" }, "not a state"},
		{"intermediate without equation", func(p *ModelParts) {
			p.Variables = append(p.Variables, Variable{Name: "g.orphan", Kind: KindIntermediate, Index: -1, DerivedIndex: -1})
		}, "no defining equation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := gateParts()
			tt.mutate(&p)
			_, err := NewModel(p)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestFingerprintStable(t *testing.T) {
	m1, err := NewModel(gateParts())
	require.NoError(t, err)
	m2, err := NewModel(gateParts())
	require.NoError(t, err)
	assert.Equal(t, m1.Fingerprint(), m2.Fingerprint())

	p := gateParts()
	p.Variables[3].Initial = 0.31
	m3, err := NewModel(p)
	require.NoError(t, err)
	assert.NotEqual(t, m1.Fingerprint(), m3.Fingerprint())
}

func TestDependencyClosure(t *testing.T) {
	m, err := NewModel(gateParts())
	require.NoError(t, err)

	assert.True(t, m.DependsOn("g.flux", "g.y"))
	assert.True(t, m.DependsOn("g.flux", "mem.V"))
	assert.False(t, m.DependsOn("g.alpha", "g.y"))
	assert.Equal(t, []string{"g.y", "mem.V"}, m.Inputs(R("g.flux")))
	assert.True(t, m.ExprDependsOn(R("mem.i_L"), "mem.g"))
}

func TestExpandDependent(t *testing.T) {
	m, err := NewModel(gateParts())
	require.NoError(t, err)

	ode, ok := m.ODE("g.y")
	require.True(t, ok)

	// flux depends on y and is inlined; alpha and beta do not and stay.
	out := m.ExpandDependent(ode.RHS, "g.y")
	assert.Equal(t, "((g.alpha * (1 - g.y)) - (g.beta * g.y))", out.String())

	full := m.ExpandAll(R("g.alpha"))
	assert.Equal(t, "exp((mem.V / 10))", full.String())
}

func TestRequiredPrunesAndOrders(t *testing.T) {
	m, err := NewModel(gateParts())
	require.NoError(t, err)

	req := m.Required(R("mem.i_L"))
	require.Len(t, req, 1)
	assert.Equal(t, "mem.i_L", req[0].Target)

	req = m.Required(R("g.flux"), R("mem.i_L"))
	targets := make([]string, len(req))
	for i, eq := range req {
		targets[i] = eq.Target
	}
	assert.Equal(t, []string{"g.alpha", "g.beta", "g.flux", "mem.i_L"}, targets)
}

func TestStimulusActive(t *testing.T) {
	s := Stimulus{Amplitude: -25, Duration: 0.5, Period: 1000, Start: 10}
	assert.False(t, s.Active(5))
	assert.True(t, s.Active(10.2))
	assert.False(t, s.Active(11))
	assert.True(t, s.Active(1010.3))
}
