package emit

import (
	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/scheme"
)

// frame tells a method body where its inputs live.
type frame struct {
	// read renders the read of state vector entry i.
	read func(i int) string
	// guess overrides the reads of some states, keyed by index.
	guess map[int]string
	// noTime marks methods without a time argument.
	noTime bool
}

func vectorRead(name string) func(int) string {
	return func(i int) string { return name + "[" + itoa(i) + "]" }
}

func nvectorRead(name string) func(int) string {
	return func(i int) string { return "NV_Ith_S(" + name + ", " + itoa(i) + ")" }
}

// body writes the definitions every root needs, in evaluation order:
// states, parameters, the clamp trace, the stimulus, table lookups and
// then the algebraic equations. It returns a printer for the roots,
// which must already be rewritten against the lookup tables.
func (g *generator) body(w *writer, f frame, roots ...ir.Expr) *printer {
	m := g.model
	need := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if need[name] {
			return
		}
		need[name] = true
		if g.tables != nil {
			if ref, ok := g.tables.Column(name); ok {
				visit(g.tables.Tables[ref.Table].Key)
				return
			}
		}
		if v, ok := m.Var(name); ok && v.Stimulus {
			visit(m.Free())
			return
		}
		if eq, ok := m.Equation(name); ok {
			for _, ref := range ir.FreeVars(g.rewrite(eq.RHS)) {
				visit(ref)
			}
		}
	}
	for _, e := range roots {
		if e == nil {
			continue
		}
		for _, ref := range ir.FreeVars(e) {
			visit(ref)
		}
	}

	scope := make(map[string]string)
	if !f.noTime {
		scope[m.Free()] = g.time
	}
	p := &printer{name: func(n string) (string, bool) {
		id, ok := scope[n]
		return id, ok
	}}

	wrote := false
	for _, s := range m.States() {
		if !need[s.Name] {
			continue
		}
		id := varName(s.Name)
		src, ok := f.guess[s.Index]
		if !ok {
			src = f.read(s.Index)
			if s.Name == m.Voltage() {
				src = "(mSetVoltageDerivativeToZero ? this->mFixedVoltage : " + src + ")"
			}
		}
		w.line("const double %s = %s; // %s", id, src, s.Units)
		scope[s.Name] = id
		wrote = true
	}
	for _, prm := range g.plan.Parameters {
		if !need[prm.Name] {
			continue
		}
		id := varName(prm.Name)
		w.line("const double %s = mParameters[%d]; // %s", id, prm.Index, prm.Units)
		scope[prm.Name] = id
		wrote = true
	}
	if need[scheme.ExperimentalVoltage] {
		id := varName(scheme.ExperimentalVoltage)
		v := varName(m.Voltage())
		if _, ok := scope[m.Voltage()]; !ok {
			v = "this->GetVoltage()"
		}
		w.line("const double %s = (mDataClampIsOn ? GetExperimentalVoltageAtTimeT(%s) : %s); // mV",
			id, p.print(ir.R(m.Free())), v)
		scope[scheme.ExperimentalVoltage] = id
		wrote = true
	}
	if wrote {
		w.line("")
	}

	if g.tables != nil {
		g.lookups(w, need, scope, p)
	}

	first := true
	for _, eq := range m.Equations() {
		if !need[eq.Target] {
			continue
		}
		if _, done := scope[eq.Target]; done {
			continue
		}
		if first {
			w.line("// Mathematics")
			first = false
		}
		id := varName(eq.Target)
		v, _ := m.Var(eq.Target)
		if v.Stimulus {
			st, _ := m.Stimulus()
			rhs := "GetIntracellularAreaStimulus(" + p.print(ir.R(m.Free())) + ")"
			if st.Factor != 0 && st.Factor != 1 {
				rhs += " / " + cppNum(st.Factor)
			}
			w.line("const double %s = %s; // %s", id, rhs, eq.Units)
		} else {
			w.line("const double %s = %s; // %s", id, p.print(g.rewrite(eq.RHS)), eq.Units)
		}
		scope[eq.Target] = id
	}
	g.done(p)
	return p
}

// lookups indexes every table a body reads and defines its columns.
func (g *generator) lookups(w *writer, need map[string]bool, scope map[string]string, p *printer) {
	used := make(map[int][]lut.ColumnRef)
	for ti, t := range g.tables.Tables {
		for ci, c := range t.Columns {
			if need[c.Name] {
				used[ti] = append(used[ti], lut.ColumnRef{Table: ti, Column: ci})
			}
		}
	}
	if len(used) == 0 {
		return
	}
	w.line("// Lookup table indexing")
	w.line("%s::Instance()->SetTableParameters(this->mParameters);", g.tablesClass())
	for ti, t := range g.tables.Tables {
		refs := used[ti]
		if len(refs) == 0 {
			continue
		}
		key := p.print(ir.R(t.Key))
		w.line("const bool _oob_%d = %s::Instance()->CheckIndex%d(%s);", ti, g.tablesClass(), ti, key)
		w.open("if (_oob_%d)", ti)
		w.line(`EXCEPTION(DumpState("%s = " + std::to_string(%s) + " outside lookup table range [%s, %s]"));`,
			t.Key, key, cppNum(t.Min), cppNum(t.Upper()))
		w.close("")
		w.line("double _lt_%d_factor;", ti)
		w.line("const double* const _lt_%d_row = %s::Instance()->IndexTable%d(%s, _lt_%d_factor);", ti, g.tablesClass(), ti, key, ti)
		width := len(t.Columns)
		for _, ref := range refs {
			c := t.Columns[ref.Column]
			id := columnLocal(ref)
			if c.Target != "" {
				id = varName(c.Target)
			}
			w.line("const double %s = _lt_%d_row[%d] + _lt_%d_factor * (_lt_%d_row[%d] - _lt_%d_row[%d]);",
				id, ti, ref.Column, ti, ti, ref.Column+width, ti, ref.Column)
			scope[c.Name] = id
		}
	}
	w.line("")
}

// roots rewrites expressions against the lookup tables.
func (g *generator) roots(exprs ...ir.Expr) []ir.Expr {
	out := make([]ir.Expr, len(exprs))
	for i, e := range exprs {
		out[i] = g.rewrite(e)
	}
	return out
}

// done records a reference the printer could not resolve.
func (g *generator) done(p *printer) {
	if p.missing != "" {
		g.fail(p.missing, "referenced before it is defined")
	}
}

// derivative renders the plan's derivative of state i, held at zero for
// the voltage while it is fixed.
func (g *generator) derivative(p *printer, s ir.Variable) string {
	d := p.print(g.rewrite(g.plan.Derivative(s.Name)))
	if s.Name == g.model.Voltage() {
		return "mSetVoltageDerivativeToZero ? 0.0 : (" + d + ")"
	}
	return d
}
