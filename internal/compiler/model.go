package compiler

import (
	"math"
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cellc/internal/ir"
)

// namePattern matches component.variable names.
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*$`)

// constants may be used by bare name when no variable of that name
// exists in the referencing component.
var constants = map[string]float64{
	"pi":           math.Pi,
	"exponentiale": math.E,
	"inf":          math.Inf(1),
	"nan":          math.NaN(),
}

// decl is a variable as read from the model file.
type decl struct {
	name   string
	units  string
	value  float64 // initial value or parameter default
	rhs    string  // ODE or equation text
	source string  // connection source for equations
	pos    token.Pos
	rhsPos token.Pos
}

// stimulusDecl is the optional default stimulus block.
type stimulusDecl struct {
	ir.Stimulus
	pos token.Pos
}

// modelFile holds the raw declarations of one model.
type modelFile struct {
	name        string
	source      string
	time        decl
	voltage     string
	capacitance string
	units       map[string][]UnitFactor
	states      []decl
	params      []decl
	eqs         []decl
	currents    []string
	derived     []string
	stimulus    *stimulusDecl
	tables      []ir.TableDomain
	tablePos    []token.Pos
	pos         token.Pos
}

// CompileModel parses a CUE model value into the model IR.
//
// The value should be the model struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	m, err := CompileModel(v.LookupPath(cue.ParsePath("model.HodgkinHuxley")))
func CompileModel(v cue.Value) (*ir.Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	f, err := readModel(v)
	if err != nil {
		return nil, err
	}
	return f.build()
}

// CompileModels compiles every model under the top-level "model" field
// of v, in source order.
func CompileModels(v cue.Value) ([]*ir.Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	mv := v.LookupPath(cue.ParsePath("model"))
	if !mv.Exists() {
		return nil, &CompileError{Field: "model", Message: "no model field", Pos: v.Pos()}
	}
	iter, err := mv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []*ir.Model
	for iter.Next() {
		m, err := CompileModel(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
