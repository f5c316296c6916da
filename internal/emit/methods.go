package emit

import (
	"strings"

	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/scheme"
)

// method is one member function, declared in the header and defined in
// the source.
type method struct {
	ret    string
	name   string
	params string
	// decl overrides params in the declaration, for default arguments.
	decl    string
	private bool
	body    func(w *writer)
}

func (m method) declaration() string {
	params := m.params
	if m.decl != "" {
		params = m.decl
	}
	return m.ret + " " + m.name + "(" + params + ");"
}

// methods lists the members of the class beyond its constructor and
// destructor, in declaration order.
func (g *generator) methods() []method {
	var out []method
	if _, ok := g.model.Stimulus(); ok {
		out = append(out, method{
			ret:  "boost::shared_ptr<RegularStimulus>",
			name: "UseCellMLDefaultStimulus",
			body: g.defaultStimulus,
		})
	}
	out = append(out, method{
		ret:    "double",
		name:   "GetIIonic",
		params: "const std::vector<double>* pStateVariables",
		decl:   "const std::vector<double>* pStateVariables=NULL",
		body:   g.getIIonic,
	})

	t := "double " + g.time
	v := g.plan.Variant
	switch v.Scheme {
	case scheme.Normal:
		out = append(out, method{
			ret: "void", name: "EvaluateYDerivatives",
			params: t + ", const std::vector<double>& rY, std::vector<double>& rDY",
			body:   g.evaluateYDerivatives,
		})
	case scheme.BackwardEuler:
		out = append(out, g.backwardEulerMethods()...)
	case scheme.RushLarsen, scheme.RushLarsen2:
		out = append(out, g.rushLarsenMethods()...)
		if v.TwoStage() {
			out = append(out, g.steppingMethods()...)
		}
	case scheme.GRL1, scheme.GRL2:
		out = append(out, g.grlMethods()...)
		out = append(out, g.steppingMethods()...)
	case scheme.Cvode:
		out = append(out, method{
			ret: "void", name: "EvaluateYDerivatives",
			params: t + ", const N_Vector rY, N_Vector rDY",
			body:   g.evaluateYDerivativesCvode,
		})
		if v.AnalyticJacobian {
			out = append(out, method{
				ret: "void", name: "EvaluateAnalyticJacobian",
				params: t + ", N_Vector rY, N_Vector rDY, CHASTE_CVODE_DENSE_MATRIX rJacobian, N_Vector rTmp1, N_Vector rTmp2, N_Vector rTmp3",
				body:   g.analyticJacobian,
			})
		}
	}

	if len(g.model.Derived()) > 0 {
		if v.Scheme == scheme.Cvode {
			out = append(out, method{
				ret: "N_Vector", name: "ComputeDerivedQuantities",
				params: t + ", const N_Vector& rY",
				body:   g.derivedQuantities,
			})
		} else {
			out = append(out, method{
				ret: "std::vector<double>", name: "ComputeDerivedQuantities",
				params: t + ", const std::vector<double>& rY",
				body:   g.derivedQuantities,
			})
		}
	}
	return out
}

func (g *generator) stateFrame() frame {
	if g.plan.Variant.Scheme == scheme.Cvode {
		return frame{read: nvectorRead("rY")}
	}
	return frame{read: vectorRead("rY")}
}

func (g *generator) defaultStimulus(w *writer) {
	s, _ := g.model.Stimulus()
	factor := s.Factor
	if factor == 0 {
		factor = 1
	}
	w.line("// %s", s.Variable)
	w.line("boost::shared_ptr<RegularStimulus> p_cellml_stim(new RegularStimulus(")
	w.line("        %s,", cppNum(s.Amplitude*factor))
	w.line("        %s,", cppNum(s.Duration))
	w.line("        %s,", cppNum(s.Period))
	w.line("        %s", cppNum(s.Start))
	w.line("        ));")
	w.line("mpIntracellularStimulus = p_cellml_stim;")
	w.line("")
	w.line("return p_cellml_stim;")
}

func (g *generator) getIIonic(w *writer) {
	cvode := g.plan.Variant.Scheme == scheme.Cvode
	if cvode {
		w.line("N_Vector rY;")
		w.line("bool made_new_cvode_vector = false;")
		w.open("if (!pStateVariables)")
		w.line("rY = rGetStateVariables();")
		w.close("")
		w.open("else")
		w.line("made_new_cvode_vector = true;")
		w.line("rY = MakeNVector(*pStateVariables);")
		w.close("")
	} else {
		w.line("// For state variable interpolation (SVI) we read in interpolated state variables,")
		w.line("// otherwise for ionic current interpolation (ICI) we use the state variables of this model (node).")
		w.line("if (!pStateVariables) pStateVariables = &rGetStateVariables();")
		w.line("const std::vector<double>& rY = *pStateVariables;")
	}

	currents := g.model.IonicCurrents()
	roots := make([]ir.Expr, len(currents))
	for i, c := range currents {
		roots[i] = ir.R(c.Name)
	}
	f := g.stateFrame()
	f.noTime = true
	p := g.body(w, f, roots...)

	terms := make([]string, len(currents))
	for i, c := range currents {
		id := p.print(roots[i])
		if c.Factor != 1 {
			id = cppNum(c.Factor) + " * " + id
		}
		terms[i] = id
	}
	total := "0.0"
	if len(terms) > 0 {
		total = strings.Join(terms, " + ")
	}
	w.line("const double i_ionic = %s; // uA_per_cm2", total)
	g.done(p)
	if cvode {
		w.line("")
		w.open("if (made_new_cvode_vector)")
		w.line("DeleteVector(rY);")
		w.close("")
	}
	w.line("")
	w.line("EXCEPT_IF_NOT(!std::isnan(i_ionic));")
	w.line("return i_ionic;")
}

func (g *generator) allDerivatives() []ir.Expr {
	var roots []ir.Expr
	for _, s := range g.model.States() {
		roots = append(roots, g.plan.Derivative(s.Name))
	}
	return g.roots(roots...)
}

func (g *generator) evaluateYDerivatives(w *writer) {
	p := g.body(w, g.stateFrame(), g.allDerivatives()...)
	for _, s := range g.model.States() {
		w.line("rDY[%d] = %s;", s.Index, g.derivative(p, s))
	}
	g.done(p)
}

func (g *generator) evaluateYDerivativesCvode(w *writer) {
	p := g.body(w, g.stateFrame(), g.allDerivatives()...)
	for _, s := range g.model.States() {
		w.line("NV_Ith_S(rDY, %d) = %s;", s.Index, g.derivative(p, s))
	}
	g.done(p)
}

func (g *generator) analyticJacobian(w *writer) {
	jac := g.plan.Jacobian
	var roots []ir.Expr
	for _, row := range jac {
		for _, e := range row {
			if e != nil {
				roots = append(roots, g.rewrite(e))
			}
		}
	}
	p := g.body(w, g.stateFrame(), roots...)
	var numeric []int
	for j := range jac {
		for i := range jac {
			if jac[i][j] == nil {
				numeric = append(numeric, j)
				break
			}
		}
	}
	for i, row := range jac {
		for j, e := range row {
			if e == nil {
				continue
			}
			w.line("IJth(rJacobian, %d, %d) = %s;", i, j, p.print(g.rewrite(e)))
		}
	}
	g.done(p)
	if len(numeric) > 0 {
		w.line("")
		w.line("// Columns without an analytic form are differenced")
		w.begin()
		w.line("N_Vector _bumped = N_VClone(rY);")
		w.line("N_Vector _f = N_VClone(rY);")
		for _, j := range numeric {
			w.line("N_VScale(1.0, rY, _bumped);")
			w.line("const double _h_%d = %s * std::max(1.0, fabs(NV_Ith_S(rY, %d)));", j, cppNum(g.plan.Options.Delta), j)
			w.line("NV_Ith_S(_bumped, %d) += _h_%d;", j, j)
			w.line("EvaluateYDerivatives(%s, _bumped, _f);", g.time)
			for i := range jac {
				if jac[i][j] == nil {
					w.line("IJth(rJacobian, %d, %d) = (NV_Ith_S(_f, %d) - NV_Ith_S(rDY, %d)) / _h_%d;", i, j, i, i, j)
				}
			}
		}
		w.line("N_VDestroy(_bumped);")
		w.line("N_VDestroy(_f);")
		w.close("")
	}
	w.line("")
	w.open("if (mSetVoltageDerivativeToZero)")
	for j := range jac {
		w.line("IJth(rJacobian, %d, %d) = 0.0;", g.voltage.Index, j)
	}
	w.close("")
}

func (g *generator) derivedQuantities(w *writer) {
	derived := g.model.Derived()
	roots := make([]ir.Expr, len(derived))
	for i, d := range derived {
		roots[i] = ir.R(d.Name)
	}
	p := g.body(w, g.stateFrame(), roots...)
	n := len(derived)
	if g.plan.Variant.Scheme == scheme.Cvode {
		w.line("N_Vector dqs = N_VNew_Serial(%d);", n)
		for i, d := range derived {
			w.line("NV_Ith_S(dqs, %d) = %s;", d.DerivedIndex, p.print(roots[i]))
		}
	} else {
		w.line("std::vector<double> dqs(%d);", n)
		for i, d := range derived {
			w.line("dqs[%d] = %s;", d.DerivedIndex, p.print(roots[i]))
		}
	}
	g.done(p)
	w.line("return dqs;")
}
