package compiler

import (
	"fmt"
	"math"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/cellc/internal/ir"
)

// readModel extracts the raw declarations from a model struct.
func readModel(v cue.Value) (*modelFile, error) {
	f := &modelFile{pos: v.Pos()}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		f.name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}
	if f.name == "" {
		return nil, &CompileError{Field: "model", Message: "model name is required", Pos: v.Pos()}
	}

	var err error
	if f.source, err = optionalString(v, "source"); err != nil {
		return nil, err
	}

	timeVal := v.LookupPath(cue.ParsePath("time"))
	if !timeVal.Exists() {
		return nil, &CompileError{Field: "time", Message: "time is required", Pos: v.Pos()}
	}
	if f.time.name, err = requiredString(timeVal, "name"); err != nil {
		return nil, err
	}
	if f.time.units, err = requiredString(timeVal, "units"); err != nil {
		return nil, err
	}
	f.time.pos = timeVal.Pos()

	if f.voltage, err = requiredString(v, "voltage"); err != nil {
		return nil, err
	}
	if f.capacitance, err = optionalString(v, "capacitance"); err != nil {
		return nil, err
	}

	if f.units, err = readUnits(v); err != nil {
		return nil, err
	}

	if f.states, err = readDecls(v, "state", "initial", "ode", true); err != nil {
		return nil, err
	}
	if len(f.states) == 0 {
		return nil, &CompileError{Field: "state", Message: "at least one state is required", Pos: v.Pos()}
	}
	if f.params, err = readDecls(v, "parameters", "value", "", false); err != nil {
		return nil, err
	}
	if f.eqs, err = readEquations(v); err != nil {
		return nil, err
	}

	if f.currents, err = stringList(v, "ionic_currents"); err != nil {
		return nil, err
	}
	if f.derived, err = stringList(v, "derived"); err != nil {
		return nil, err
	}

	if stimVal := v.LookupPath(cue.ParsePath("stimulus")); stimVal.Exists() {
		s, err := readStimulus(stimVal)
		if err != nil {
			return nil, err
		}
		f.stimulus = s
	}

	if err := readTables(v, f); err != nil {
		return nil, err
	}
	return f, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func requiredNumber(v cue.Value, field string) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	n, err := fv.Float64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "must be a number", Pos: fv.Pos()}
	}
	return n, nil
}

func optionalNumber(v cue.Value, field string) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, nil
	}
	n, err := fv.Float64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "must be a number", Pos: fv.Pos()}
	}
	return n, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of names", Pos: fv.Pos()}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "must be a list of names", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

// readUnits reads custom unit definitions:
//
//	units: mS_per_cm2: [{units: "siemens", prefix: "milli"}, {units: "metre", prefix: "centi", exponent: -2}]
func readUnits(v cue.Value) (map[string][]UnitFactor, error) {
	out := make(map[string][]UnitFactor)
	uv := v.LookupPath(cue.ParsePath("units"))
	if !uv.Exists() {
		return out, nil
	}
	iter, err := uv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		list, err := iter.Value().List()
		if err != nil {
			return nil, &CompileError{Field: "units." + name, Message: "must be a list of factors", Pos: iter.Value().Pos()}
		}
		var factors []UnitFactor
		for list.Next() {
			fv := list.Value()
			u, err := requiredString(fv, "units")
			if err != nil {
				return nil, err
			}
			prefix, err := optionalString(fv, "prefix")
			if err != nil {
				return nil, err
			}
			exp, err := optionalNumber(fv, "exponent")
			if err != nil {
				return nil, err
			}
			mult, err := optionalNumber(fv, "multiplier")
			if err != nil {
				return nil, err
			}
			factors = append(factors, UnitFactor{Units: u, Prefix: prefix, Exponent: exp, Multiplier: mult})
		}
		out[name] = factors
	}
	return out, nil
}

// readDecls reads an ordered list of named declarations with a numeric
// field and, for states, the ODE text.
func readDecls(v cue.Value, field, numField, rhsField string, needRHS bool) ([]decl, error) {
	lv := v.LookupPath(cue.ParsePath(field))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list", Pos: lv.Pos()}
	}
	var out []decl
	for iter.Next() {
		ev := iter.Value()
		d := decl{pos: ev.Pos()}
		if d.name, err = requiredString(ev, "name"); err != nil {
			return nil, err
		}
		if d.units, err = requiredString(ev, "units"); err != nil {
			return nil, err
		}
		if d.value, err = requiredNumber(ev, numField); err != nil {
			return nil, err
		}
		if rhsField != "" {
			rv := ev.LookupPath(cue.ParsePath(rhsField))
			if needRHS && !rv.Exists() {
				return nil, &CompileError{Field: d.name, Message: rhsField + " is required", Pos: ev.Pos()}
			}
			if d.rhs, err = rv.String(); err != nil {
				return nil, &CompileError{Field: d.name, Message: rhsField + " must be a string", Pos: rv.Pos()}
			}
			d.rhsPos = rv.Pos()
		}
		out = append(out, d)
	}
	return out, nil
}

// readEquations reads algebraic equations. Each has either an rhs or a
// source naming the variable it is connected to.
func readEquations(v cue.Value) ([]decl, error) {
	lv := v.LookupPath(cue.ParsePath("equations"))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, &CompileError{Field: "equations", Message: "must be a list", Pos: lv.Pos()}
	}
	var out []decl
	for iter.Next() {
		ev := iter.Value()
		d := decl{pos: ev.Pos()}
		if d.name, err = requiredString(ev, "name"); err != nil {
			return nil, err
		}
		if d.units, err = requiredString(ev, "units"); err != nil {
			return nil, err
		}
		if d.rhs, err = optionalString(ev, "rhs"); err != nil {
			return nil, err
		}
		if d.source, err = optionalString(ev, "source"); err != nil {
			return nil, err
		}
		switch {
		case d.rhs == "" && d.source == "":
			return nil, &CompileError{Field: d.name, Message: "equation needs rhs or source", Pos: ev.Pos()}
		case d.rhs != "" && d.source != "":
			return nil, &CompileError{Field: d.name, Message: "equation has both rhs and source", Pos: ev.Pos()}
		}
		if rv := ev.LookupPath(cue.ParsePath("rhs")); rv.Exists() {
			d.rhsPos = rv.Pos()
		}
		out = append(out, d)
	}
	return out, nil
}

func readStimulus(sv cue.Value) (*stimulusDecl, error) {
	s := &stimulusDecl{pos: sv.Pos()}
	var err error
	if s.Variable, err = requiredString(sv, "variable"); err != nil {
		return nil, err
	}
	if s.Units, err = requiredString(sv, "units"); err != nil {
		return nil, err
	}
	if s.Amplitude, err = requiredNumber(sv, "amplitude"); err != nil {
		return nil, err
	}
	if s.Duration, err = requiredNumber(sv, "duration"); err != nil {
		return nil, err
	}
	if s.Period, err = requiredNumber(sv, "period"); err != nil {
		return nil, err
	}
	if s.Start, err = optionalNumber(sv, "start"); err != nil {
		return nil, err
	}
	if s.Duration <= 0 {
		return nil, &CompileError{Field: "stimulus.duration", Message: "must be positive", Pos: sv.Pos()}
	}
	return s, nil
}

func readTables(v cue.Value, f *modelFile) error {
	lv := v.LookupPath(cue.ParsePath("lookup_tables"))
	if !lv.Exists() {
		return nil
	}
	iter, err := lv.List()
	if err != nil {
		return &CompileError{Field: "lookup_tables", Message: "must be a list", Pos: lv.Pos()}
	}
	for iter.Next() {
		tv := iter.Value()
		var t ir.TableDomain
		if t.Key, err = requiredString(tv, "key"); err != nil {
			return err
		}
		if t.Min, err = requiredNumber(tv, "min"); err != nil {
			return err
		}
		if t.Max, err = requiredNumber(tv, "max"); err != nil {
			return err
		}
		if t.Step, err = requiredNumber(tv, "step"); err != nil {
			return err
		}
		if t.Step <= 0 || t.Max <= t.Min {
			return &CompileError{
				Field:   "lookup_tables",
				Message: fmt.Sprintf("table on %s needs min < max and step > 0", t.Key),
				Pos:     tv.Pos(),
			}
		}
		if n := (t.Max - t.Min) / t.Step; math.Abs(n-math.Round(n)) > 1e-6*math.Max(1, n) {
			return &CompileError{
				Field:   "lookup_tables",
				Message: fmt.Sprintf("table on %s: range %s is not a whole number of steps of %s", t.Key, ir.FormatNum(t.Max-t.Min), ir.FormatNum(t.Step)),
				Pos:     tv.Pos(),
			}
		}
		f.tables = append(f.tables, t)
		f.tablePos = append(f.tablePos, tv.Pos())
	}
	return nil
}
