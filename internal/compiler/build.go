package compiler

import (
	"strings"

	"github.com/roach88/cellc/internal/ir"
)

// builder turns the raw declarations of one model into an ir.Model.
type builder struct {
	f     *modelFile
	units *Units
	vars  map[string]*ir.Variable
	order []string // declaration order of all variables
	rhs   map[string]ir.Expr
	odes  map[string]ir.Expr
}

func (f *modelFile) build() (*ir.Model, error) {
	b := &builder{
		f:     f,
		units: NewUnits(f.units),
		vars:  make(map[string]*ir.Variable),
		rhs:   make(map[string]ir.Expr),
		odes:  make(map[string]ir.Expr),
	}
	steps := []func() error{
		b.declare,
		b.addStimulus,
		b.checkUnits,
		b.parseODEs,
		b.parseEquations,
		b.markDerived,
		b.checkRoles,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	eqs, err := b.sortEquations()
	if err != nil {
		return nil, err
	}
	currents, err := b.currents()
	if err != nil {
		return nil, err
	}

	parts := ir.ModelParts{
		Name:          f.name,
		Source:        f.source,
		Free:          f.time.name,
		Voltage:       f.voltage,
		Capacitance:   f.capacitance,
		Equations:     eqs,
		IonicCurrents: currents,
		Tables:        f.tables,
	}
	for _, name := range b.order {
		parts.Variables = append(parts.Variables, *b.vars[name])
	}
	for _, s := range f.states {
		parts.ODEs = append(parts.ODEs, ir.Equation{Target: s.name, RHS: b.odes[s.name], ODE: true, Units: s.units + "_per_" + f.time.units})
	}
	if f.stimulus != nil {
		s := f.stimulus.Stimulus
		parts.Stimulus = &s
	}

	m, err := ir.NewModel(parts)
	if err != nil {
		return nil, &CompileError{Field: "model", Message: err.Error(), Pos: f.pos}
	}
	return m, nil
}

func (b *builder) add(d decl, kind ir.Kind, index int) error {
	if !namePattern.MatchString(d.name) {
		return &CompileError{
			Field:   d.name,
			Message: "variable names must have the form component.variable",
			Pos:     d.pos,
		}
	}
	if _, dup := b.vars[d.name]; dup {
		return &CompileError{Field: d.name, Message: "variable declared more than once", Pos: d.pos}
	}
	b.vars[d.name] = &ir.Variable{
		Name:         d.name,
		Kind:         kind,
		Units:        d.units,
		Initial:      d.value,
		Index:        index,
		DerivedIndex: -1,
	}
	b.order = append(b.order, d.name)
	return nil
}

func (b *builder) declare() error {
	if err := b.add(b.f.time, ir.KindFree, -1); err != nil {
		return err
	}
	for i, s := range b.f.states {
		if err := b.add(s, ir.KindState, i); err != nil {
			return err
		}
	}
	for i, p := range b.f.params {
		if err := b.add(p, ir.KindParameter, i); err != nil {
			return err
		}
	}
	for _, e := range b.f.eqs {
		if err := b.add(e, ir.KindIntermediate, -1); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) unitError(variable, unit, target string, err error) error {
	reason := err.Error()
	// Strip the unit name prefix added by Units.Factor.
	reason = strings.TrimPrefix(reason, unit+": ")
	reason = strings.TrimPrefix(reason, target+": ")
	return &UnknownUnitError{Model: b.f.name, Variable: variable, Unit: unit, Target: target, Reason: reason}
}

func (b *builder) checkUnits() error {
	for _, name := range b.order {
		v := b.vars[name]
		if _, err := b.units.Resolve(v.Units); err != nil {
			return b.unitError(name, v.Units, "", err)
		}
	}
	if b.f.stimulus != nil {
		s := b.f.stimulus
		factor, err := b.units.Factor(s.Units, CurrentDensity)
		if err != nil {
			return b.unitError(s.Variable, s.Units, CurrentDensity, err)
		}
		s.Factor = factor
	}
	return nil
}

// resolve qualifies bare names with the component of the equation they
// appear in and checks that every reference is declared.
func (b *builder) resolve(e ir.Expr, owner string) (ir.Expr, error) {
	component := owner[:strings.IndexByte(owner, '.')]
	var missing string
	out := ir.Substitute(e, func(name string) (ir.Expr, bool) {
		full := name
		if !strings.Contains(name, ".") {
			full = component + "." + name
		}
		if _, ok := b.vars[full]; ok {
			if full == name {
				return nil, false
			}
			return ir.R(full), true
		}
		if c, ok := constants[name]; ok && full != name {
			return ir.N(c), true
		}
		if missing == "" {
			missing = full
		}
		return nil, false
	})
	if missing != "" {
		return nil, &UnresolvedDependencyError{Model: b.f.name, Variable: missing, From: owner}
	}
	return out, nil
}

func (b *builder) parse(d decl) (ir.Expr, error) {
	e, err := ParseExpr(d.rhs, b.f.name+":"+d.name)
	if err != nil {
		return nil, &CompileError{Field: d.name, Message: err.Error(), Pos: d.rhsPos}
	}
	return b.resolve(e, d.name)
}

func (b *builder) parseODEs() error {
	for _, s := range b.f.states {
		e, err := b.parse(s)
		if err != nil {
			return err
		}
		b.odes[s.name] = e
	}
	return nil
}

func (b *builder) parseEquations() error {
	for _, d := range b.f.eqs {
		if d.source == "" {
			e, err := b.parse(d)
			if err != nil {
				return err
			}
			b.rhs[d.name] = e
			continue
		}
		src, ok := b.vars[d.source]
		if !ok {
			return &UnresolvedDependencyError{Model: b.f.name, Variable: d.source, From: d.name}
		}
		factor, err := b.units.Factor(src.Units, d.units)
		if err != nil {
			return b.unitError(d.name, src.Units, d.units, err)
		}
		var e ir.Expr = ir.R(d.source)
		if factor != 1 {
			e = ir.Mul(ir.N(factor), e)
		}
		b.rhs[d.name] = e
	}
	return nil
}

// addStimulus marks the stimulus variable, declaring it with the regular
// pulse train as its defining equation when the model does not define it.
func (b *builder) addStimulus() error {
	if b.f.stimulus == nil {
		return nil
	}
	s := b.f.stimulus
	v, ok := b.vars[s.Variable]
	if !ok {
		d := decl{name: s.Variable, units: s.Units, pos: s.pos}
		if err := b.add(d, ir.KindIntermediate, -1); err != nil {
			return err
		}
		b.rhs[s.Variable] = StimulusExpr(s.Stimulus, b.f.time.name)
		v = b.vars[s.Variable]
	}
	if v.Kind != ir.KindIntermediate {
		return &CompileError{Field: "stimulus.variable", Message: s.Variable + " must be an algebraic variable", Pos: s.pos}
	}
	v.Stimulus = true
	return nil
}

// StimulusExpr is the expression form of a regular pulse train:
// amplitude while (t - start) mod period <= duration, zero otherwise.
func StimulusExpr(s ir.Stimulus, time string) ir.Expr {
	t := ir.R(time)
	since := ir.Sub(t, ir.N(s.Start))
	phase := since
	if s.Period > 0 {
		phase = ir.Sub(since, ir.Mul(ir.N(s.Period), ir.Fn(ir.FnFloor, ir.Div(since, ir.N(s.Period)))))
	}
	return ir.If(ir.N(0), ir.Case{
		Cond:  ir.And(ir.Cmp(ir.CmpGE, t, ir.N(s.Start)), ir.Cmp(ir.CmpLE, phase, ir.N(s.Duration))),
		Value: ir.N(s.Amplitude),
	})
}

func (b *builder) markDerived() error {
	for i, name := range b.f.derived {
		v, ok := b.vars[name]
		if !ok {
			return &UnresolvedDependencyError{Model: b.f.name, Variable: name, From: "derived"}
		}
		if v.DerivedIndex >= 0 {
			return &CompileError{Field: "derived", Message: name + " listed twice", Pos: b.f.pos}
		}
		v.DerivedIndex = i
		if v.Kind == ir.KindIntermediate {
			v.Kind = ir.KindDerivedQuantity
			v.Index = i
		}
	}
	return nil
}

func (b *builder) checkRoles() error {
	if v, ok := b.vars[b.f.voltage]; !ok || v.Kind != ir.KindState {
		return &CompileError{Field: "voltage", Message: b.f.voltage + " must be a state variable", Pos: b.f.pos}
	}
	if c := b.f.capacitance; c != "" {
		v, ok := b.vars[c]
		if !ok || v.Kind == ir.KindState || v.Kind == ir.KindFree {
			return &CompileError{Field: "capacitance", Message: c + " must be a parameter or algebraic variable", Pos: b.f.pos}
		}
	}
	for i, t := range b.f.tables {
		v, ok := b.vars[t.Key]
		if !ok || v.Kind != ir.KindState {
			return &CompileError{Field: "lookup_tables", Message: t.Key + " must be a state variable", Pos: b.f.tablePos[i]}
		}
	}
	for _, c := range b.f.currents {
		if _, ok := b.vars[c]; !ok {
			return &UnresolvedDependencyError{Model: b.f.name, Variable: c, From: "ionic_currents"}
		}
	}
	return nil
}

// sortEquations orders algebraic equations so that each follows the
// equations it reads, keeping declaration order where unconstrained.
func (b *builder) sortEquations() ([]ir.Equation, error) {
	var names []string
	for _, name := range b.order {
		if _, ok := b.rhs[name]; ok {
			names = append(names, name)
		}
	}
	g := make(Graph, len(names))
	for _, name := range names {
		g[name] = ir.FreeVars(b.rhs[name])
	}
	sorted, rest := topoOrder(names, g)
	if len(rest) > 0 {
		cycle := findCycle(rest, g)
		variable := rest[0]
		if len(cycle) > 0 {
			variable = cycle[0]
		}
		return nil, &UnresolvedDependencyError{Model: b.f.name, Variable: variable, Cycle: cycle}
	}

	out := make([]ir.Equation, len(sorted))
	for i, name := range sorted {
		out[i] = ir.Equation{Target: name, RHS: b.rhs[name], Units: b.vars[name].Units}
	}
	return out, nil
}

// currents converts every ionic current to the framework's current
// density units.
func (b *builder) currents() ([]ir.IonicCurrent, error) {
	out := make([]ir.IonicCurrent, 0, len(b.f.currents))
	for _, name := range b.f.currents {
		v := b.vars[name]
		factor, err := b.units.Factor(v.Units, CurrentDensity)
		if err != nil {
			return nil, b.unitError(name, v.Units, CurrentDensity, err)
		}
		out = append(out, ir.IonicCurrent{Name: name, Factor: factor})
	}
	return out, nil
}
