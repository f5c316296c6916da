package ir

import "math"

// Diff returns the simplified partial derivative of e with respect to the
// variable x. Only direct references count: callers expand intermediates
// first.
//
// Branch policy for conditionals: each case is differentiated separately
// and the derivative across a boundary is taken as zero. When any
// condition of a piecewise node, or the argument of floor/ceil, depends
// on x, the derivative is still returned but ok is false so that callers
// can fall back to numerical differencing.
func Diff(e Expr, x string) (d Expr, ok bool) {
	ok = true
	d = Simplify(diff(e, x, &ok))
	return d, ok
}

func diff(e Expr, x string, ok *bool) Expr {
	if !Mentions(e, x) {
		return N(0)
	}
	switch n := e.(type) {
	case *Ref:
		return N(1)
	case *Neg:
		return Negate(diff(n.X, x, ok))
	case *Binary:
		return diffBinary(n, x, ok)
	case *Call:
		return diffCall(n, x, ok)
	case *Compare, *Logic:
		// Boolean valued: piecewise constant in x.
		*ok = false
		return N(0)
	case *Piecewise:
		out := &Piecewise{Cases: make([]Case, len(n.Cases))}
		for i, c := range n.Cases {
			if Mentions(c.Cond, x) {
				*ok = false
			}
			out.Cases[i] = Case{Cond: c.Cond, Value: diff(c.Value, x, ok)}
		}
		if n.Otherwise != nil {
			out.Otherwise = diff(n.Otherwise, x, ok)
		}
		return out
	}
	return N(0)
}

func diffBinary(n *Binary, x string, ok *bool) Expr {
	dl := diff(n.L, x, ok)
	dr := diff(n.R, x, ok)
	switch n.Op {
	case OpAdd:
		return Add(dl, dr)
	case OpSub:
		return Sub(dl, dr)
	case OpMul:
		return Add(Mul(dl, n.R), Mul(n.L, dr))
	case OpDiv:
		if !Mentions(n.R, x) {
			return Div(dl, n.R)
		}
		return Div(Sub(Mul(dl, n.R), Mul(n.L, dr)), Pow(n.R, N(2)))
	default:
		if !Mentions(n.R, x) {
			// d(u^c) = c*u^(c-1)*du
			return Mul(Mul(n.R, Pow(n.L, Sub(n.R, N(1)))), dl)
		}
		// d(u^v) = u^v*(dv*ln(u) + v*du/u)
		return Mul(n, Add(Mul(dr, Fn(FnLn, n.L)), Div(Mul(n.R, dl), n.L)))
	}
}

func diffCall(n *Call, x string, ok *bool) Expr {
	u := n.Arg
	du := diff(u, x, ok)
	switch n.Fn {
	case FnExp:
		return Mul(n, du)
	case FnLn:
		return Div(du, u)
	case FnLog10:
		return Div(du, Mul(u, N(math.Ln10)))
	case FnSqrt:
		return Div(du, Mul(N(2), n))
	case FnAbs:
		return If(du, Case{Cond: Cmp(CmpLT, u, N(0)), Value: Negate(du)})
	case FnTanh:
		return Mul(Sub(N(1), Pow(n, N(2))), du)
	case FnSinh:
		return Mul(Fn(FnCosh, u), du)
	case FnCosh:
		return Mul(Fn(FnSinh, u), du)
	case FnSin:
		return Mul(Fn(FnCos, u), du)
	case FnCos:
		return Negate(Mul(Fn(FnSin, u), du))
	case FnTan:
		return Div(du, Pow(Fn(FnCos, u), N(2)))
	case FnAtan:
		return Div(du, Add(N(1), Pow(u, N(2))))
	default:
		// floor and ceil are step functions of their argument.
		*ok = false
		return N(0)
	}
}
