package compiler

import (
	"fmt"
	"math"
)

// dims indexes the SI base dimensions: metre, kilogram, second, ampere,
// mole, kelvin, candela.
type dims [7]int

// Unit is a resolved unit: value_in_SI = Factor * value.
type Unit struct {
	Factor float64
	Dims   dims
}

// UnitFactor is one term of a custom unit definition:
// (prefix * units)^exponent * multiplier.
type UnitFactor struct {
	Units      string
	Prefix     string
	Exponent   float64
	Multiplier float64
}

var prefixes = map[string]float64{
	"yotta": 1e24, "zetta": 1e21, "exa": 1e18, "peta": 1e15, "tera": 1e12,
	"giga": 1e9, "mega": 1e6, "kilo": 1e3, "hecto": 1e2, "deca": 1e1, "deka": 1e1,
	"deci": 1e-1, "centi": 1e-2, "milli": 1e-3, "micro": 1e-6, "nano": 1e-9,
	"pico": 1e-12, "femto": 1e-15, "atto": 1e-18, "zepto": 1e-21, "yocto": 1e-24,
}

func base(i int) dims {
	var d dims
	d[i] = 1
	return d
}

func mk(m, kg, s, a, mol, k int) dims { return dims{m, kg, s, a, mol, k, 0} }

// builtinUnits holds the CellML standard units plus the fixed units of
// the consuming framework.
var builtinUnits = map[string]Unit{
	"dimensionless": {1, dims{}},
	"metre":         {1, base(0)},
	"meter":         {1, base(0)},
	"gram":          {1e-3, base(1)},
	"kilogram":      {1, base(1)},
	"second":        {1, base(2)},
	"ampere":        {1, base(3)},
	"mole":          {1, base(4)},
	"kelvin":        {1, base(5)},
	"candela":       {1, base(6)},
	"litre":         {1e-3, mk(3, 0, 0, 0, 0, 0)},
	"liter":         {1e-3, mk(3, 0, 0, 0, 0, 0)},
	"hertz":         {1, mk(0, 0, -1, 0, 0, 0)},
	"newton":        {1, mk(1, 1, -2, 0, 0, 0)},
	"pascal":        {1, mk(-1, 1, -2, 0, 0, 0)},
	"joule":         {1, mk(2, 1, -2, 0, 0, 0)},
	"watt":          {1, mk(2, 1, -3, 0, 0, 0)},
	"coulomb":       {1, mk(0, 0, 1, 1, 0, 0)},
	"volt":          {1, mk(2, 1, -3, -1, 0, 0)},
	"farad":         {1, mk(-2, -1, 4, 2, 0, 0)},
	"ohm":           {1, mk(2, 1, -3, -2, 0, 0)},
	"siemens":       {1, mk(-2, -1, 3, 2, 0, 0)},
	"katal":         {1, mk(0, 0, -1, 0, 1, 0)},
	"celsius":       {1, base(5)},

	// Framework units.
	"ms":         {1e-3, base(2)},
	"mV":         {1e-3, mk(2, 1, -3, -1, 0, 0)},
	"uA_per_cm2": {1e-6 / 1e-4, mk(-2, 0, 0, 1, 0, 0)},
	"uF_per_cm2": {1e-6 / 1e-4, mk(-4, -1, 4, 2, 0, 0)},
}

// CurrentDensity is the unit GetIIonic and stimuli are expressed in.
const CurrentDensity = "uA_per_cm2"

// Units resolves unit names against the builtin table and a model's
// custom definitions. Custom definitions may refer to each other.
type Units struct {
	custom   map[string][]UnitFactor
	resolved map[string]Unit
	visiting map[string]bool
}

// NewUnits creates a registry for one model.
func NewUnits(custom map[string][]UnitFactor) *Units {
	return &Units{
		custom:   custom,
		resolved: make(map[string]Unit),
		visiting: make(map[string]bool),
	}
}

// Resolve returns the SI factor and dimensions of a unit name.
func (u *Units) Resolve(name string) (Unit, error) {
	if r, ok := u.resolved[name]; ok {
		return r, nil
	}
	if b, ok := builtinUnits[name]; ok {
		return b, nil
	}
	def, ok := u.custom[name]
	if !ok {
		return Unit{}, fmt.Errorf("undefined unit")
	}
	if u.visiting[name] {
		return Unit{}, fmt.Errorf("unit defined in terms of itself")
	}
	u.visiting[name] = true
	defer delete(u.visiting, name)

	out := Unit{Factor: 1}
	for _, f := range def {
		b, err := u.Resolve(f.Units)
		if err != nil {
			return Unit{}, fmt.Errorf("in %s: %s: %w", name, f.Units, err)
		}
		scale := 1.0
		if f.Prefix != "" {
			p, ok := prefixes[f.Prefix]
			if !ok {
				return Unit{}, fmt.Errorf("in %s: unknown prefix %q", name, f.Prefix)
			}
			scale = p
		}
		exp := f.Exponent
		if exp == 0 {
			exp = 1
		}
		if exp != math.Trunc(exp) {
			return Unit{}, fmt.Errorf("in %s: non-integer exponent %v", name, exp)
		}
		mult := f.Multiplier
		if mult == 0 {
			mult = 1
		}
		out.Factor *= math.Pow(scale*b.Factor, exp) * mult
		for i := range out.Dims {
			out.Dims[i] += b.Dims[i] * int(exp)
		}
	}
	u.resolved[name] = out
	return out, nil
}

// Factor returns the multiplier converting a value in from into to.
func (u *Units) Factor(from, to string) (float64, error) {
	if from == to {
		if _, err := u.Resolve(from); err != nil {
			return 0, err
		}
		return 1, nil
	}
	f, err := u.Resolve(from)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", from, err)
	}
	t, err := u.Resolve(to)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", to, err)
	}
	if f.Dims != t.Dims {
		return 0, fmt.Errorf("incompatible dimensions")
	}
	return roundFactor(f.Factor / t.Factor), nil
}

// roundFactor removes floating point noise from products of powers of ten
// so that baked literals read as 0.1 rather than 0.09999999999999999.
func roundFactor(f float64) float64 {
	if f == 0 {
		return 0
	}
	exp := math.Floor(math.Log10(math.Abs(f)))
	scale := math.Pow(10, 12-exp)
	r := math.Round(f*scale) / scale
	if math.Abs(r-f) <= 1e-12*math.Abs(f) {
		return r
	}
	return f
}
