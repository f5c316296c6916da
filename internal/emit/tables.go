package emit

import (
	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/lut"
)

// lookupTablesClass writes the singleton holding the sampled tables.
// Tables are sampled on first use and again after FreeMemory or a
// change of parameters. Every cell method that reads a table first
// hands the singleton its own parameters, so a SetParameter on any cell
// takes effect at its next lookup.
func (g *generator) lookupTablesClass(w *writer) {
	cls := g.tablesClass()
	n := len(g.tables.Tables)

	w.line("class %s", cls)
	w.line("{")
	w.line("public:")
	w.depth++
	w.open("static %s* Instance()", cls)
	w.open("if (mpInstance.get() == NULL)")
	w.line("mpInstance.reset(new %s);", cls)
	w.close("")
	w.line("return mpInstance.get();")
	w.close("")
	w.line("")

	w.open("void FreeMemory()")
	for ti := range g.tables.Tables {
		w.line("std::vector<double>().swap(_lookup_table_%d);", ti)
	}
	w.line("mNeedsRegeneration.assign(mNeedsRegeneration.size(), true);")
	w.close("")
	w.line("")

	w.open("void SetTableParameters(const std::vector<double>& rParameters)")
	w.open("if (rParameters != mParameters)")
	w.line("mParameters = rParameters;")
	w.line("mNeedsRegeneration.assign(mNeedsRegeneration.size(), true);")
	w.close("")
	w.close("")

	for ti, t := range g.tables.Tables {
		rows := t.Rows()
		width := len(t.Columns)
		last := max(rows-2, 0)
		w.line("")
		w.line("// Table %d: %s in [%s, %s] step %s, %d rows of %d columns", ti, t.Key, cppNum(t.Min), cppNum(t.Max), cppNum(t.Step), rows, width)
		w.open("bool CheckIndex%d(double var) const", ti)
		w.line("return !(var >= %s && var <= %s);", cppNum(t.Min), cppNum(t.Upper()))
		w.close("")
		w.line("")
		w.open("const double* IndexTable%d(double var, double& rFactor)", ti)
		w.open("if (mNeedsRegeneration[%d])", ti)
		w.line("RegenerateTable%d();", ti)
		w.close("")
		w.line("const double _offset = (var - %s) / %s;", cppNum(t.Min), cppNum(t.Step))
		w.line("unsigned _row = _offset > 0.0 ? (unsigned)(_offset) : 0u;")
		w.open("if (_row > %du)", last)
		w.line("_row = %du;", last)
		w.close("")
		w.line("rFactor = _offset - _row;")
		w.line("return &_lookup_table_%d[_row * %d];", ti, width)
		w.close("")
	}
	w.line("")
	w.line("~%s()", cls)
	w.line("{")
	w.line("}")
	w.depth--
	w.line("")
	w.line("protected:")
	w.depth++
	w.line("%s(const %s&);", cls, cls)
	w.line("%s& operator= (const %s&);", cls, cls)
	w.depth--
	w.line("")
	w.line("private:")
	w.depth++
	w.line("%s()", cls)
	w.line("    : mNeedsRegeneration(%d, true)", n)
	w.begin()
	w.line("mParameters.resize(%d);", len(g.plan.Parameters))
	for _, p := range g.plan.Parameters {
		w.line("mParameters[%d] = %s;", p.Index, cppNum(p.Initial))
	}
	w.close("")
	for ti, t := range g.tables.Tables {
		w.line("")
		g.regenerate(w, ti, t)
	}
	w.line("")
	w.line("/** The single instance of the class */")
	w.line("static std::shared_ptr<%s> mpInstance;", cls)
	w.line("std::vector<double> mParameters;")
	w.line("std::vector<bool> mNeedsRegeneration;")
	for ti := range g.tables.Tables {
		w.line("std::vector<double> _lookup_table_%d;", ti)
	}
	w.depth--
	w.line("};")
	w.line("")
	w.line("std::shared_ptr<%s> %s::mpInstance;", cls, cls)
	w.line("")
}

// regenerate writes the sampling of one table. Unsafe columns may have
// up to lut.MaxPiecewiseMisses non-finite samples, each replaced by the
// mean of its neighbours.
func (g *generator) regenerate(w *writer, ti int, t lut.TablePlan) {
	rows := t.Rows()
	width := len(t.Columns)
	key := varName(t.Key)

	scope := map[string]string{t.Key: key}
	p := &printer{name: func(n string) (string, bool) {
		id, ok := scope[n]
		return id, ok
	}}

	w.open("void RegenerateTable%d()", ti)
	need := make(map[string]bool)
	for _, c := range t.Columns {
		for _, ref := range ir.FreeVars(c.Expr) {
			need[ref] = true
		}
	}
	for _, prm := range g.plan.Parameters {
		if need[prm.Name] {
			id := varName(prm.Name)
			w.line("const double %s = mParameters[%d];", id, prm.Index)
			scope[prm.Name] = id
		}
	}
	for ci, c := range t.Columns {
		w.line("// %s", c.Name)
		w.line("auto _column_%d = [&](double %s) { return %s; };", ci, key, p.print(c.Expr))
	}
	g.done(p)
	w.line("_lookup_table_%d.resize(%d);", ti, rows*width)
	for ci, c := range t.Columns {
		if c.Unsafe {
			w.line("unsigned _num_misshit_piecewise_%d = 0;", ci)
		}
	}
	w.open("for (unsigned i = 0; i < %d; i++)", rows)
	w.line("const double _key = %s + i * %s;", cppNum(t.Min), cppNum(t.Step))
	w.line("double* const _row = &_lookup_table_%d[i * %d];", ti, width)
	for ci, c := range t.Columns {
		w.line("_row[%d] = _column_%d(_key);", ci, ci)
		w.open("if (!std::isfinite(_row[%d]))", ci)
		if !c.Unsafe {
			w.line(`EXCEPTION("Non-finite value in lookup table %d column %s");`, ti, c.Name)
			w.close("")
			continue
		}
		w.open("if (++_num_misshit_piecewise_%d > %d)", ci, lut.MaxPiecewiseMisses)
		w.line(`EXCEPTION("Too many non-finite samples in lookup table %d column %s");`, ti, c.Name)
		w.close("")
		w.line("_row[%d] = 0.5 * (_column_%d(_key - %s) + _column_%d(_key + %s));", ci, ci, cppNum(t.Step), ci, cppNum(t.Step))
		w.open("if (!std::isfinite(_row[%d]))", ci)
		w.line(`EXCEPTION("Non-finite neighbours in lookup table %d column %s");`, ti, c.Name)
		w.close("")
		w.close("")
	}
	w.close("")
	w.line("mNeedsRegeneration[%d] = false;", ti)
	w.close("")
}
