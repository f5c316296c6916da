package emit

import (
	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/scheme"
)

// Backward Euler: the nonlinear states of every block form one joint
// Newton system. Blocks come in dependency order, so the joint Jacobian
// is block lower triangular and the joint solve agrees with solving the
// blocks one after another.

func (g *generator) backwardEulerMethods() []method {
	t := "double " + g.time
	n := len(g.newton)
	var out []method
	if n > 0 {
		arr := "[" + itoa(n) + "]"
		out = append(out,
			method{
				ret: "void", name: "ComputeResidual",
				params: t + ", const double rCurrentGuess" + arr + ", double rResidual" + arr,
				body:   g.computeResidual,
			},
			method{
				ret: "void", name: "ComputeJacobian",
				params: t + ", const double rCurrentGuess" + arr + ", double rJacobian" + arr + arr,
				body:   g.computeJacobian,
			},
		)
	}
	out = append(out,
		method{ret: "void", name: "UpdateTransmembranePotential", params: t, body: g.updateVoltageImplicit},
		method{ret: "void", name: "ComputeOneStepExceptVoltage", params: t, body: g.oneStepBackwardEuler},
	)
	if n > 0 {
		arr := "[" + itoa(n) + "]"
		out = append(out, method{
			ret: "void", name: "EvaluateNonlinearDerivatives",
			params:  t + ", const double rCurrentGuess" + arr + ", double rF" + arr,
			private: true,
			body:    g.nonlinearDerivatives,
		})
	}
	return out
}

// guessFrame reads Newton states from the current guess.
func (g *generator) guessFrame() frame {
	f := frame{read: vectorRead("rY"), guess: make(map[int]string)}
	for k, ns := range g.newton {
		f.guess[ns.index] = "rCurrentGuess[" + itoa(k) + "]"
	}
	return f
}

func (g *generator) newtonF(k int) ir.Expr {
	ns := g.newton[k]
	return g.plan.Blocks[g.blockPos(ns.block)].F[ns.row]
}

func (g *generator) newtonDF(i, j int) ir.Expr {
	a, b := g.newton[i], g.newton[j]
	if a.block != b.block {
		return nil
	}
	return g.plan.Blocks[g.blockPos(a.block)].DF[a.row][b.row]
}

func (g *generator) blockPos(id int) int {
	for i, b := range g.plan.Blocks {
		if b.ID == id {
			return i
		}
	}
	return 0
}

func (g *generator) nonlinearDerivatives(w *writer) {
	w.line("std::vector<double>& rY = rGetStateVariables();")
	roots := make([]ir.Expr, len(g.newton))
	for k := range g.newton {
		roots[k] = g.rewrite(g.newtonF(k))
	}
	p := g.body(w, g.guessFrame(), roots...)
	for k, e := range roots {
		w.line("rF[%d] = %s;", k, p.print(e))
	}
	g.done(p)
}

func (g *generator) computeResidual(w *writer) {
	n := len(g.newton)
	w.line("std::vector<double>& rY = rGetStateVariables();")
	w.line("double _f[%d];", n)
	w.line("EvaluateNonlinearDerivatives(%s, rCurrentGuess, _f);", g.time)
	for k, ns := range g.newton {
		w.line("rResidual[%d] = rCurrentGuess[%d] - rY[%d] - mDt * _f[%d];", k, k, ns.index, k)
	}
}

// numericColumn reports whether column j of the joint Jacobian is
// differenced: one of its in-block entries has no analytic form, or a
// state of another block depends on it.
func (g *generator) numericColumn(j int) bool {
	for i := range g.newton {
		if g.newton[i].block == g.newton[j].block {
			if g.newtonDF(i, j) == nil {
				return true
			}
			continue
		}
		if g.model.ExprDependsOn(g.newtonF(i), g.newton[j].name) {
			return true
		}
	}
	return false
}

func (g *generator) computeJacobian(w *writer) {
	n := len(g.newton)
	w.line("std::vector<double>& rY = rGetStateVariables();")
	var roots []ir.Expr
	var numeric []int
	for j := range g.newton {
		if g.numericColumn(j) {
			numeric = append(numeric, j)
			continue
		}
		for i := range g.newton {
			if e := g.newtonDF(i, j); e != nil {
				roots = append(roots, g.rewrite(e))
			}
		}
	}
	p := g.body(w, g.guessFrame(), roots...)
	for j := range g.newton {
		if g.numericColumn(j) {
			continue
		}
		for i := range g.newton {
			diag := ""
			if i == j {
				diag = "1.0 "
			}
			e := g.newtonDF(i, j)
			if e == nil {
				if i == j {
					w.line("rJacobian[%d][%d] = 1.0;", i, j)
				} else {
					w.line("rJacobian[%d][%d] = 0.0;", i, j)
				}
				continue
			}
			w.line("rJacobian[%d][%d] = %s- mDt * (%s);", i, j, diag, p.print(g.rewrite(e)))
		}
	}
	g.done(p)
	if len(numeric) == 0 {
		return
	}
	w.line("")
	w.line("// Columns without an analytic form are differenced")
	w.line("double _f0[%d];", n)
	w.line("double _f1[%d];", n)
	w.line("double _bumped[%d];", n)
	w.line("EvaluateNonlinearDerivatives(%s, rCurrentGuess, _f0);", g.time)
	w.open("for (unsigned k = 0; k < %d; k++)", n)
	w.line("_bumped[k] = rCurrentGuess[k];")
	w.close("")
	for _, j := range numeric {
		w.begin()
		w.line("const double _h = %s * std::max(1.0, fabs(rCurrentGuess[%d]));", cppNum(g.plan.Options.Delta), j)
		w.line("_bumped[%d] = rCurrentGuess[%d] + _h;", j, j)
		w.line("EvaluateNonlinearDerivatives(%s, _bumped, _f1);", g.time)
		w.line("_bumped[%d] = rCurrentGuess[%d];", j, j)
		for i := range g.newton {
			diag := ""
			if i == j {
				diag = "1.0 "
			}
			w.line("rJacobian[%d][%d] = %s- mDt * (_f1[%d] - _f0[%d]) / _h;", i, j, diag, i, i)
		}
		w.close("")
	}
}

// updateVoltageImplicit runs after the other states have been updated.
func (g *generator) updateVoltageImplicit(w *writer) {
	w.open("if (mSetVoltageDerivativeToZero)")
	w.line("return;")
	w.close("")
	w.line("std::vector<double>& rY = rGetStateVariables();")
	r, _ := g.plan.Rule(g.voltage.Name)
	v := g.voltage
	if r.Rule == scheme.RuleImplicitLinear {
		roots := g.roots(r.Class.A, r.Class.B, ir.R(v.Name))
		p := g.body(w, g.stateFrame(), roots...)
		w.line("rY[%d] = (%s + mDt * (%s)) / (1.0 - mDt * (%s));", v.Index, p.print(roots[2]), p.print(roots[1]), p.print(roots[0]))
		g.done(p)
		return
	}
	roots := g.roots(g.plan.Derivative(v.Name))
	p := g.body(w, g.stateFrame(), roots...)
	w.line("rY[%d] += mDt * (%s);", v.Index, p.print(roots[0]))
	g.done(p)
}

func (g *generator) oneStepBackwardEuler(w *writer) {
	w.line("std::vector<double>& rY = rGetStateVariables();")
	var linear []scheme.StateRule
	var roots []ir.Expr
	for _, r := range g.plan.States {
		if r.Rule == scheme.RuleImplicitLinear && r.State != g.voltage.Name {
			linear = append(linear, r)
			roots = append(roots, g.rewrite(r.Class.A), g.rewrite(r.Class.B), ir.R(r.State))
		}
	}
	// The linear updates read the old state, so they are computed before
	// the Newton solve and written after it.
	p := g.body(w, g.stateFrame(), roots...)
	for i, r := range linear {
		a, b, y := roots[3*i], roots[3*i+1], roots[3*i+2]
		w.line("const double _new_%d = (%s + mDt * (%s)) / (1.0 - mDt * (%s));",
			r.Index, p.print(y), p.print(b), p.print(a))
	}
	g.done(p)

	if n := len(g.newton); n > 0 {
		w.line("")
		w.line("// Nonlinear states")
		init := ""
		for k, ns := range g.newton {
			if k > 0 {
				init += ", "
			}
			init += "rY[" + itoa(ns.index) + "]"
		}
		w.line("double _guess[%d] = {%s};", n, init)
		w.line("unsigned _iterations = 0;")
		w.open("while (true)")
		w.line("double _residual[%d];", n)
		w.line("ComputeResidual(%s + mDt, _guess, _residual);", g.time)
		w.line("double _norm = 0.0;")
		w.open("for (unsigned k = 0; k < %d; k++)", n)
		w.line("_norm = std::max(_norm, fabs(_residual[k]));")
		w.close("")
		w.open("if (_norm < %s)", cppNum(g.plan.Options.Newton.Tolerance))
		w.line("break;")
		w.close("")
		w.open("if (std::isnan(_norm) || ++_iterations > %d)", g.plan.Options.Newton.MaxIterations)
		w.line(`EXCEPTION(DumpState("Newton iteration did not converge"));`)
		w.close("")
		w.line("double _jacobian[%d][%d];", n, n)
		w.line("ComputeJacobian(%s + mDt, _guess, _jacobian);", g.time)
		w.line("double _delta[%d];", n)
		w.open("if (!SolveDense<%d>(_jacobian, _residual, _delta))", n)
		w.line(`EXCEPTION(DumpState("Singular Newton Jacobian"));`)
		w.close("")
		w.line("double _step = 0.0;")
		w.open("for (unsigned k = 0; k < %d; k++)", n)
		w.line("_guess[k] -= _delta[k];")
		w.line("_step = std::max(_step, fabs(_delta[k]));")
		w.close("")
		w.open("if (_step < %s)", cppNum(g.plan.Options.Newton.Tolerance))
		w.line("break;")
		w.close("")
		w.close("")
		for k, ns := range g.newton {
			w.line("rY[%d] = _guess[%d];", ns.index, k)
		}
	}
	for _, r := range linear {
		w.line("rY[%d] = _new_%d;", r.Index, r.Index)
	}
}

// Rush-Larsen: the base class evaluates every rate at the old state, then
// updates the voltage and the other states from them.

func (g *generator) rushLarsenMethods() []method {
	t := "double " + g.time
	out := []method{
		{
			ret: "void", name: "EvaluateEquations",
			params: t + ", std::vector<double>& rDY, std::vector<double>& rAlphaOrTau, std::vector<double>& rBetaOrInf",
			body:   g.evaluateEquations,
		},
		{
			ret: "void", name: "ComputeOneStepExceptVoltage",
			params: "const std::vector<double>& rDY, const std::vector<double>& rAlphaOrTau, const std::vector<double>& rBetaOrInf",
			body:   g.oneStepRushLarsen,
		},
		{
			ret: "void", name: "UpdateTransmembranePotential",
			params: "const std::vector<double>& rDY",
			body: func(w *writer) {
				w.line("std::vector<double>& rY = rGetStateVariables();")
				w.line("rY[%d] += mDt * rDY[%d];", g.voltage.Index, g.voltage.Index)
			},
		},
	}
	return append(out, g.yDerivativeMethods()...)
}

func (g *generator) evaluateEquations(w *writer) {
	w.line("std::vector<double>& rY = rGetStateVariables();")
	var roots []ir.Expr
	for _, r := range g.plan.States {
		if r.Rule == scheme.RuleExponential {
			roots = append(roots, g.rewrite(r.Class.Tau), g.rewrite(r.Class.Inf))
			continue
		}
		roots = append(roots, g.rewrite(g.plan.Derivative(r.State)))
		if r.Rule == scheme.RuleGRL && r.Partial != nil {
			roots = append(roots, g.rewrite(r.Partial))
		}
	}
	p := g.body(w, g.stateFrame(), roots...)
	states := g.model.States()
	for _, r := range g.plan.States {
		if r.Rule == scheme.RuleExponential {
			w.line("rAlphaOrTau[%d] = %s;", r.Index, p.print(g.rewrite(r.Class.Tau)))
			w.line("rBetaOrInf[%d] = %s;", r.Index, p.print(g.rewrite(r.Class.Inf)))
			continue
		}
		w.line("rDY[%d] = %s;", r.Index, g.derivative(p, states[r.Index]))
		if r.Rule == scheme.RuleGRL && r.Partial != nil {
			// The partial travels in the unused rate slot.
			w.line("rAlphaOrTau[%d] = %s;", r.Index, p.print(g.rewrite(r.Partial)))
		}
	}
	g.done(p)
	for _, r := range g.plan.States {
		if r.Rule != scheme.RuleGRL || r.Partial != nil {
			continue
		}
		i := r.Index
		w.begin()
		w.line("std::vector<double> _bumped(rY);")
		w.line("const double _h = %s * std::max(1.0, fabs(rY[%d]));", cppNum(g.plan.Options.Delta), i)
		w.line("_bumped[%d] += _h;", i)
		w.line("rAlphaOrTau[%d] = (EvaluateYDerivative%d(%s, _bumped) - rDY[%d]) / _h;", i, i, g.time, i)
		w.close("")
	}
}

func (g *generator) oneStepRushLarsen(w *writer) {
	w.line("std::vector<double>& rY = rGetStateVariables();")
	for _, r := range g.plan.States {
		i := r.Index
		switch {
		case r.State == g.voltage.Name:
		case r.Rule == scheme.RuleExponential:
			w.line("rY[%d] = rBetaOrInf[%d] + (rY[%d] - rBetaOrInf[%d]) * exp(-mDt / rAlphaOrTau[%d]);", i, i, i, i, i)
		case r.Rule == scheme.RuleGRL:
			w.line("rY[%d] = (fabs(rAlphaOrTau[%d]) < 1e-12) ? rY[%d] + mDt * rDY[%d] : rY[%d] + rDY[%d] / rAlphaOrTau[%d] * expm1(rAlphaOrTau[%d] * mDt);",
				i, i, i, i, i, i, i, i)
		default:
			w.line("rY[%d] += mDt * rDY[%d];", i, i)
		}
	}
}

// Generalized Rush-Larsen.

func (g *generator) grlMethods() []method {
	t := "double " + g.time
	v := g.voltage.Index
	out := []method{
		{
			ret: "void", name: "UpdateTransmembranePotential", params: t,
			body: func(w *writer) {
				w.line("std::vector<double>& rY = rGetStateVariables();")
				w.line("std::vector<double> next(rY.size());")
				w.line("AdvanceStates(%s, mDt, rY, rY, next);", g.time)
				w.line("rY[%d] = next[%d];", v, v)
			},
		},
		{
			ret: "void", name: "ComputeOneStepExceptVoltage", params: t,
			body: func(w *writer) {
				w.line("std::vector<double>& rY = rGetStateVariables();")
				w.line("std::vector<double> next(rY.size());")
				w.line("AdvanceStates(%s, mDt, rY, rY, next);", g.time)
				w.open("for (unsigned i = 0; i < rY.size(); i++)")
				w.open("if (i != %d)", v)
				w.line("rY[i] = next[i];")
				w.close("")
				w.close("")
			},
		},
	}
	return append(out, g.yDerivativeMethods()...)
}

// yDerivativeMethods evaluate single derivatives for the differenced
// partials of GRL states.
func (g *generator) yDerivativeMethods() []method {
	t := "double " + g.time
	var out []method
	states := g.model.States()
	for _, r := range g.plan.States {
		if r.Rule != scheme.RuleGRL || r.Partial != nil {
			continue
		}
		s := states[r.Index]
		out = append(out, method{
			ret: "double", name: "EvaluateYDerivative" + itoa(r.Index),
			params:  t + ", const std::vector<double>& rY",
			private: true,
			body: func(w *writer) {
				root := g.rewrite(g.plan.Derivative(s.Name))
				p := g.body(w, g.stateFrame(), root)
				w.line("return %s;", g.derivative(p, s))
				g.done(p)
			},
		})
	}
	return out
}

// steppingMethods replace the base class stepping loop, so that every
// state of a step advances from the same old state.
func (g *generator) steppingMethods() []method {
	t := "double " + g.time
	return []method{
		{
			ret: "void", name: "SolveAndUpdateState", params: "double tStart, double tEnd",
			body: g.solveAndUpdateState,
		},
		{
			ret: "void", name: "AdvanceStates",
			params:  t + ", double dt, const std::vector<double>& rFrom, const std::vector<double>& rY, std::vector<double>& rOut",
			private: true,
			body:    g.advanceStates,
		},
	}
}

func (g *generator) solveAndUpdateState(w *writer) {
	two := g.plan.Variant.TwoStage()
	w.line("std::vector<double>& rY = rGetStateVariables();")
	if two {
		w.line("std::vector<double> mid(rY.size());")
	}
	w.line("std::vector<double> next(rY.size());")
	w.line("TimeStepper stepper(tStart, tEnd, mDt);")
	w.open("while (!stepper.IsTimeAtEnd())")
	w.line("const double t = stepper.GetTime();")
	w.line("const double dt = stepper.GetNextTimeStep();")
	if two {
		w.line("AdvanceStates(t, 0.5 * dt, rY, rY, mid);")
		w.line("AdvanceStates(t + 0.5 * dt, dt, rY, mid, next);")
	} else {
		w.line("AdvanceStates(t, dt, rY, rY, next);")
	}
	w.line("rY = next;")
	w.line("VerifyStateVariables();")
	w.line("stepper.AdvanceOneTimeStep();")
	w.close("")
}

func (g *generator) advanceStates(w *writer) {
	var roots []ir.Expr
	for _, r := range g.plan.States {
		switch r.Rule {
		case scheme.RuleExponential:
			roots = append(roots, g.rewrite(r.Class.Inf), g.rewrite(r.Class.Tau))
		default:
			roots = append(roots, g.rewrite(g.plan.Derivative(r.State)))
			if r.Partial != nil {
				roots = append(roots, g.rewrite(r.Partial))
			}
		}
	}
	p := g.body(w, g.stateFrame(), roots...)
	states := g.model.States()
	for _, r := range g.plan.States {
		i := r.Index
		switch r.Rule {
		case scheme.RuleExponential:
			w.begin()
			w.line("const double _inf = %s;", p.print(g.rewrite(r.Class.Inf)))
			w.line("const double _tau = %s;", p.print(g.rewrite(r.Class.Tau)))
			w.line("rOut[%d] = _inf + (rFrom[%d] - _inf) * exp(-dt / _tau);", i, i)
			w.close("")
		case scheme.RuleGRL:
			w.begin()
			w.line("const double _f = %s;", g.derivative(p, states[i]))
			if r.Partial != nil {
				w.line("const double _p = %s;", p.print(g.rewrite(r.Partial)))
			} else {
				w.line("std::vector<double> _bumped(rY);")
				w.line("const double _h = %s * std::max(1.0, fabs(rY[%d]));", cppNum(g.plan.Options.Delta), i)
				w.line("_bumped[%d] += _h;", i)
				w.line("const double _p = (EvaluateYDerivative%d(%s, _bumped) - _f) / _h;", i, g.time)
			}
			w.line("rOut[%d] = (fabs(_p) < 1e-12) ? rFrom[%d] + dt * _f : rFrom[%d] + _f / _p * expm1(_p * dt);", i, i, i)
			w.close("")
		default:
			w.line("rOut[%d] = rFrom[%d] + dt * (%s);", i, i, g.derivative(p, states[i]))
		}
	}
	g.done(p)
}
