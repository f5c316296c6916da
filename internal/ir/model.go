package ir

import (
	"fmt"
	"sort"
)

// ModelParts is the input to NewModel. The compiler fills it after
// resolving names, units and equation order.
type ModelParts struct {
	Name        string
	Source      string
	Free        string // time variable
	Voltage     string // state variable
	Capacitance string // optional parameter or intermediate

	// Variables lists every variable with Kind, Index and DerivedIndex
	// already assigned. States, parameters and derived quantities must have
	// contiguous indices starting at 0.
	Variables []Variable

	// ODEs holds one derivative equation per state, in any order.
	ODEs []Equation

	// Equations holds algebraic equations in topological order.
	Equations []Equation

	IonicCurrents []IonicCurrent
	Stimulus      *Stimulus
	Tables        []TableDomain
}

// Model is the immutable IR of one cell model.
type Model struct {
	name        string
	source      string
	free        string
	voltage     string
	capacitance string

	vars    map[string]*Variable
	states  []*Variable
	params  []*Variable
	derived []*Variable // by DerivedIndex

	odes    []Equation // by state index
	eqs     []Equation
	eqIndex map[string]int

	currents []IonicCurrent
	stimulus *Stimulus
	tables   []TableDomain

	// closure maps an intermediate to every non-intermediate variable it
	// transitively depends on.
	closure map[string]map[string]bool

	fingerprint string
}

// NewModel validates parts and builds the immutable model.
func NewModel(p ModelParts) (*Model, error) {
	m := &Model{
		name:        p.Name,
		source:      p.Source,
		free:        p.Free,
		voltage:     p.Voltage,
		capacitance: p.Capacitance,
		vars:        make(map[string]*Variable, len(p.Variables)),
		eqIndex:     make(map[string]int, len(p.Equations)),
		currents:    append([]IonicCurrent(nil), p.IonicCurrents...),
		tables:      append([]TableDomain(nil), p.Tables...),
		closure:     make(map[string]map[string]bool),
	}
	if p.Stimulus != nil {
		s := *p.Stimulus
		m.stimulus = &s
	}

	for i := range p.Variables {
		v := p.Variables[i]
		if _, dup := m.vars[v.Name]; dup {
			return nil, fmt.Errorf("model %s: duplicate variable %q", p.Name, v.Name)
		}
		m.vars[v.Name] = &v
		switch v.Kind {
		case KindState:
			m.states = append(m.states, &v)
		case KindParameter:
			m.params = append(m.params, &v)
		}
		if v.DerivedIndex >= 0 {
			m.derived = append(m.derived, &v)
		}
	}

	if err := sortIndexed(m.states, func(v *Variable) int { return v.Index }, "state"); err != nil {
		return nil, fmt.Errorf("model %s: %w", p.Name, err)
	}
	if err := sortIndexed(m.params, func(v *Variable) int { return v.Index }, "parameter"); err != nil {
		return nil, fmt.Errorf("model %s: %w", p.Name, err)
	}
	if err := sortIndexed(m.derived, func(v *Variable) int { return v.DerivedIndex }, "derived quantity"); err != nil {
		return nil, fmt.Errorf("model %s: %w", p.Name, err)
	}

	if fv, ok := m.vars[p.Free]; !ok || fv.Kind != KindFree {
		return nil, fmt.Errorf("model %s: free variable %q not declared", p.Name, p.Free)
	}
	if vv, ok := m.vars[p.Voltage]; !ok || vv.Kind != KindState {
		return nil, fmt.Errorf("model %s: voltage %q is not a state variable", p.Name, p.Voltage)
	}

	m.odes = make([]Equation, len(m.states))
	seen := make([]bool, len(m.states))
	for _, eq := range p.ODEs {
		v, ok := m.vars[eq.Target]
		if !ok || v.Kind != KindState {
			return nil, fmt.Errorf("model %s: ODE for non-state %q", p.Name, eq.Target)
		}
		if seen[v.Index] {
			return nil, fmt.Errorf("model %s: state %q has more than one ODE", p.Name, eq.Target)
		}
		seen[v.Index] = true
		eq.ODE = true
		m.odes[v.Index] = eq
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("model %s: state %q has no ODE", p.Name, m.states[i].Name)
		}
	}

	m.eqs = make([]Equation, len(p.Equations))
	for i, eq := range p.Equations {
		if _, ok := m.vars[eq.Target]; !ok {
			return nil, fmt.Errorf("model %s: equation for undeclared %q", p.Name, eq.Target)
		}
		if _, dup := m.eqIndex[eq.Target]; dup {
			return nil, fmt.Errorf("model %s: %q defined twice", p.Name, eq.Target)
		}
		// Every reference must be defined earlier or be a non-computed variable.
		for _, ref := range FreeVars(eq.RHS) {
			rv, ok := m.vars[ref]
			if !ok {
				return nil, fmt.Errorf("model %s: %q references undeclared %q", p.Name, eq.Target, ref)
			}
			if m.computed(rv) {
				if _, before := m.eqIndex[ref]; !before {
					return nil, fmt.Errorf("model %s: %q used by %q before it is defined", p.Name, ref, eq.Target)
				}
			}
		}
		eq.ODE = false
		m.eqs[i] = eq
		m.eqIndex[eq.Target] = i
		m.closure[eq.Target] = m.closeOver(eq.RHS)
	}
	for _, v := range m.vars {
		if m.computed(v) {
			if _, ok := m.eqIndex[v.Name]; !ok {
				return nil, fmt.Errorf("model %s: %q has no defining equation", p.Name, v.Name)
			}
		}
	}
	for _, eq := range m.odes {
		for _, ref := range FreeVars(eq.RHS) {
			if _, ok := m.vars[ref]; !ok {
				return nil, fmt.Errorf("model %s: ODE for %q references undeclared %q", p.Name, eq.Target, ref)
			}
		}
	}
	for _, c := range m.currents {
		if _, ok := m.vars[c.Name]; !ok {
			return nil, fmt.Errorf("model %s: ionic current %q not declared", p.Name, c.Name)
		}
	}

	fp, err := m.computeFingerprint()
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", p.Name, err)
	}
	m.fingerprint = fp
	return m, nil
}

func sortIndexed(vs []*Variable, key func(*Variable) int, what string) error {
	sort.SliceStable(vs, func(i, j int) bool { return key(vs[i]) < key(vs[j]) })
	for i, v := range vs {
		if key(v) != i {
			return fmt.Errorf("%s %q has index %d, want %d", what, v.Name, key(v), i)
		}
	}
	return nil
}

// computed reports whether v gets its value from an algebraic equation.
func (m *Model) computed(v *Variable) bool {
	return v.Kind == KindIntermediate || v.Kind == KindDerivedQuantity
}

// closeOver returns the non-computed variables e depends on, using the
// closures of intermediates already processed.
func (m *Model) closeOver(e Expr) map[string]bool {
	out := make(map[string]bool)
	for _, ref := range FreeVars(e) {
		if c, ok := m.closure[ref]; ok {
			for k := range c {
				out[k] = true
			}
			continue
		}
		out[ref] = true
	}
	return out
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Source returns the model's provenance string (usually a file name).
func (m *Model) Source() string { return m.source }

// Free returns the name of the free (time) variable.
func (m *Model) Free() string { return m.free }

// Voltage returns the name of the membrane voltage state.
func (m *Model) Voltage() string { return m.voltage }

// Capacitance returns the capacitance variable name, or "" if the model
// does not declare one.
func (m *Model) Capacitance() string { return m.capacitance }

// Fingerprint returns the content hash of the model.
func (m *Model) Fingerprint() string { return m.fingerprint }

// Var looks up a variable by name.
func (m *Model) Var(name string) (Variable, bool) {
	v, ok := m.vars[name]
	if !ok {
		return Variable{}, false
	}
	return *v, true
}

// States returns the states in index order.
func (m *Model) States() []Variable { return copyVars(m.states) }

// Parameters returns the parameters in index order.
func (m *Model) Parameters() []Variable { return copyVars(m.params) }

// Derived returns the derived quantities in DerivedIndex order.
func (m *Model) Derived() []Variable { return copyVars(m.derived) }

// Variables returns all variables sorted by name.
func (m *Model) Variables() []Variable {
	out := make([]Variable, 0, len(m.vars))
	for _, v := range m.vars {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func copyVars(vs []*Variable) []Variable {
	out := make([]Variable, len(vs))
	for i, v := range vs {
		out[i] = *v
	}
	return out
}

// ODEs returns the derivative equations in state index order.
func (m *Model) ODEs() []Equation { return append([]Equation(nil), m.odes...) }

// ODE returns the derivative equation of a state.
func (m *Model) ODE(state string) (Equation, bool) {
	v, ok := m.vars[state]
	if !ok || v.Kind != KindState {
		return Equation{}, false
	}
	return m.odes[v.Index], true
}

// Equations returns the algebraic equations in evaluation order.
func (m *Model) Equations() []Equation { return append([]Equation(nil), m.eqs...) }

// Equation returns the algebraic equation defining target.
func (m *Model) Equation(target string) (Equation, bool) {
	i, ok := m.eqIndex[target]
	if !ok {
		return Equation{}, false
	}
	return m.eqs[i], true
}

// Order returns the position of target in the evaluation order, or -1.
func (m *Model) Order(target string) int {
	if i, ok := m.eqIndex[target]; ok {
		return i
	}
	return -1
}

// IonicCurrents returns the currents summed by GetIIonic.
func (m *Model) IonicCurrents() []IonicCurrent {
	return append([]IonicCurrent(nil), m.currents...)
}

// Stimulus returns the default stimulus, if the model declares one.
func (m *Model) Stimulus() (Stimulus, bool) {
	if m.stimulus == nil {
		return Stimulus{}, false
	}
	return *m.stimulus, true
}

// Tables returns the lookup-table domains declared by the model.
func (m *Model) Tables() []TableDomain { return append([]TableDomain(nil), m.tables...) }

// IsComputed reports whether name is defined by an algebraic equation.
func (m *Model) IsComputed(name string) bool {
	_, ok := m.eqIndex[name]
	return ok
}

// DependsOn reports whether the value of name transitively depends on
// the non-computed variable target.
func (m *Model) DependsOn(name, target string) bool {
	if name == target {
		return true
	}
	if c, ok := m.closure[name]; ok {
		return c[target]
	}
	return false
}

// Inputs returns the sorted non-computed variables that e transitively
// depends on.
func (m *Model) Inputs(e Expr) []string {
	set := m.closeOver(e)
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ExprDependsOn reports whether e transitively depends on target.
func (m *Model) ExprDependsOn(e Expr, target string) bool {
	for _, ref := range FreeVars(e) {
		if m.DependsOn(ref, target) {
			return true
		}
	}
	return false
}

// Expand inlines every computed variable for which inline returns true,
// recursively, so that the result references only non-computed variables
// and the computed variables that were kept.
func (m *Model) Expand(e Expr, inline func(name string) bool) Expr {
	memo := make(map[string]Expr)
	var expand func(Expr) Expr
	expand = func(x Expr) Expr {
		return Substitute(x, func(name string) (Expr, bool) {
			if !m.IsComputed(name) || !inline(name) {
				return nil, false
			}
			if r, ok := memo[name]; ok {
				return r, true
			}
			eq, _ := m.Equation(name)
			r := expand(eq.RHS)
			memo[name] = r
			return r, true
		})
	}
	return expand(e)
}

// ExpandAll inlines every computed variable.
func (m *Model) ExpandAll(e Expr) Expr {
	return m.Expand(e, func(string) bool { return true })
}

// ExpandDependent inlines exactly those computed variables whose value
// transitively depends on target. The result exposes every occurrence of
// target while leaving independent sub-computations as references.
func (m *Model) ExpandDependent(e Expr, target string) Expr {
	return m.Expand(e, func(name string) bool { return m.DependsOn(name, target) })
}

// Required returns the algebraic equations needed to evaluate exprs, in
// evaluation order.
func (m *Model) Required(exprs ...Expr) []Equation {
	need := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if need[name] || !m.IsComputed(name) {
			return
		}
		need[name] = true
		eq, _ := m.Equation(name)
		for _, ref := range FreeVars(eq.RHS) {
			visit(ref)
		}
	}
	for _, e := range exprs {
		for _, ref := range FreeVars(e) {
			visit(ref)
		}
	}
	out := make([]Equation, 0, len(need))
	for _, eq := range m.eqs {
		if need[eq.Target] {
			out = append(out, eq)
		}
	}
	return out
}

func (m *Model) computeFingerprint() (string, error) {
	vars := make([]any, 0, len(m.vars))
	for _, v := range m.Variables() {
		vars = append(vars, map[string]any{
			"name":          v.Name,
			"kind":          v.Kind.String(),
			"units":         v.Units,
			"initial":       FormatNum(v.Initial),
			"index":         v.Index,
			"derived_index": v.DerivedIndex,
			"stimulus":      v.Stimulus,
		})
	}
	eqDoc := func(eqs []Equation) []any {
		out := make([]any, len(eqs))
		for i, eq := range eqs {
			out[i] = map[string]any{"target": eq.Target, "rhs": eq.RHS.String(), "units": eq.Units}
		}
		return out
	}
	currents := make([]any, len(m.currents))
	for i, c := range m.currents {
		currents[i] = map[string]any{"name": c.Name, "factor": FormatNum(c.Factor)}
	}
	tables := make([]any, len(m.tables))
	for i, t := range m.tables {
		tables[i] = map[string]any{
			"key": t.Key, "min": FormatNum(t.Min), "max": FormatNum(t.Max), "step": FormatNum(t.Step),
		}
	}
	doc := map[string]any{
		"ir_version":  IRVersion,
		"name":        m.name,
		"free":        m.free,
		"voltage":     m.voltage,
		"capacitance": m.capacitance,
		"variables":   vars,
		"odes":        eqDoc(m.odes),
		"equations":   eqDoc(m.eqs),
		"currents":    currents,
		"tables":      tables,
	}
	if m.stimulus != nil {
		s := m.stimulus
		doc["stimulus"] = map[string]any{
			"variable":  s.Variable,
			"amplitude": FormatNum(s.Amplitude),
			"duration":  FormatNum(s.Duration),
			"period":    FormatNum(s.Period),
			"start":     FormatNum(s.Start),
			"units":     s.Units,
			"factor":    FormatNum(s.Factor),
		}
	}
	return ContentHash(DomainModel, doc)
}
