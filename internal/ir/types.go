package ir

import "strings"

// Kind classifies a model variable.
type Kind int

const (
	KindState Kind = iota
	KindParameter
	KindDerivedQuantity
	KindFree
	KindIntermediate
)

var kindNames = [...]string{"state", "parameter", "derived_quantity", "free", "intermediate"}

// String returns the lowercase kind name used in reports and fingerprints.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Variable is one named quantity of the model.
type Variable struct {
	Name    string // component.variable
	Kind    Kind
	Units   string
	Initial float64 // state initial value or parameter default

	// Index is the position in the state, parameter or derived-quantity
	// vector, or -1 for free variables and plain intermediates.
	Index int

	// DerivedIndex is the position in the derived-quantity vector for
	// states, parameters and intermediates that are also reported as
	// derived quantities, -1 otherwise.
	DerivedIndex int

	// Stimulus marks the variable driven by the regular stimulus.
	Stimulus bool
}

// Component returns the component part of the variable name.
func (v Variable) Component() string {
	if i := strings.IndexByte(v.Name, '.'); i >= 0 {
		return v.Name[:i]
	}
	return ""
}

// Local returns the variable part of the name.
func (v Variable) Local() string {
	if i := strings.IndexByte(v.Name, '.'); i >= 0 {
		return v.Name[i+1:]
	}
	return v.Name
}

// Equation assigns RHS to Target. For ODEs the RHS is the time derivative
// of the target state.
type Equation struct {
	Target string
	RHS    Expr
	ODE    bool
	Units  string
}

// IonicCurrent names a variable summed into GetIIonic, with the factor
// converting it to uA_per_cm2.
type IonicCurrent struct {
	Name   string
	Factor float64
}

// Stimulus describes the model's default regular stimulus. Amplitude is
// in the units of the stimulus variable; Factor converts it to uA_per_cm2.
type Stimulus struct {
	Variable  string
	Amplitude float64
	Duration  float64
	Period    float64
	Start     float64
	Units     string
	Factor    float64
}

// Active reports whether the stimulus is on at time t.
func (s Stimulus) Active(t float64) bool {
	if t < s.Start {
		return false
	}
	if s.Period <= 0 {
		return t-s.Start <= s.Duration
	}
	phase := t - s.Start
	phase -= s.Period * float64(int64(phase/s.Period))
	return phase <= s.Duration
}

// TableDomain is a lookup-table key range declared by the model.
type TableDomain struct {
	Key  string
	Min  float64
	Max  float64
	Step float64
}
