// Package scheme chooses, for one output variant, the update rule every
// state receives and the residuals and Jacobians the stepping code
// needs.
package scheme

import (
	"fmt"
	"strings"
)

// Scheme is a numerical stepping family.
type Scheme int

const (
	Normal Scheme = iota
	BackwardEuler
	RushLarsen
	RushLarsen2
	GRL1
	GRL2
	Cvode
)

var schemeNames = [...]string{"Normal", "BackwardEuler", "RushLarsen", "RushLarsen2", "GRL1", "GRL2", "Cvode"}

func (s Scheme) String() string {
	if int(s) < len(schemeNames) {
		return schemeNames[s]
	}
	return "unknown"
}

// Variant is one requested output shape for a model.
type Variant struct {
	Scheme           Scheme
	Opt              bool
	DataClamp        bool
	AnalyticJacobian bool
}

// Validate rejects flag combinations that have no output shape.
func (v Variant) Validate() error {
	if v.Scheme < Normal || v.Scheme > Cvode {
		return fmt.Errorf("unknown scheme %d", int(v.Scheme))
	}
	if v.Scheme != Cvode && (v.DataClamp || v.AnalyticJacobian) {
		return fmt.Errorf("%s: data clamp and analytic Jacobian need the Cvode scheme", v)
	}
	return nil
}

// Suffix is the class-name suffix of the variant. Normal without
// optimisation has the empty suffix.
func (v Variant) Suffix() string {
	var sb strings.Builder
	if v.AnalyticJacobian {
		sb.WriteString("Analytic")
	}
	if v.Scheme != Normal {
		sb.WriteString(v.Scheme.String())
	}
	if v.DataClamp {
		sb.WriteString("DataClamp")
	}
	if v.Opt {
		sb.WriteString("Opt")
	}
	return sb.String()
}

// String names the variant; it is the suffix, with Normal spelled out.
func (v Variant) String() string {
	if v.Scheme == Normal {
		return "Normal" + v.Suffix()
	}
	return v.Suffix()
}

// ParseVariant is the inverse of Suffix and String. It accepts the
// empty string and "Normal" for the plain variant.
func ParseVariant(s string) (Variant, error) {
	var v Variant
	rest := s
	if r, ok := strings.CutPrefix(rest, "Analytic"); ok {
		v.AnalyticJacobian = true
		rest = r
	}
	if r, ok := strings.CutSuffix(rest, "Opt"); ok {
		v.Opt = true
		rest = r
	}
	if r, ok := strings.CutSuffix(rest, "DataClamp"); ok {
		v.DataClamp = true
		rest = r
	}
	switch rest {
	case "", "Normal":
		v.Scheme = Normal
	default:
		found := false
		for i, name := range schemeNames {
			if name == rest {
				v.Scheme = Scheme(i)
				found = true
				break
			}
		}
		if !found {
			return Variant{}, fmt.Errorf("unknown variant %q", s)
		}
	}
	if err := v.Validate(); err != nil {
		return Variant{}, err
	}
	return v, nil
}

// AllVariants lists every valid variant in a stable order.
func AllVariants() []Variant {
	var out []Variant
	for s := Normal; s <= Cvode; s++ {
		for _, opt := range []bool{false, true} {
			if s != Cvode {
				out = append(out, Variant{Scheme: s, Opt: opt})
				continue
			}
			for _, analytic := range []bool{false, true} {
				for _, clamp := range []bool{false, true} {
					out = append(out, Variant{Scheme: s, Opt: opt, DataClamp: clamp, AnalyticJacobian: analytic})
				}
			}
		}
	}
	return out
}

// Adaptive reports whether an external integrator chooses the steps.
func (v Variant) Adaptive() bool { return v.Scheme == Cvode }

// TwoStage reports whether the scheme uses a half-step predictor.
func (v Variant) TwoStage() bool { return v.Scheme == RushLarsen2 || v.Scheme == GRL2 }
