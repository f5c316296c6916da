package ir

import "math"

// Simplify folds constants and removes arithmetic identities. It never
// changes the value of an expression at points where the input is
// finite, with the exception that 0*x folds to 0.
func Simplify(e Expr) Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *Num, *Ref:
		return e
	case *Neg:
		return simplifyNeg(Simplify(n.X))
	case *Binary:
		return simplifyBinary(n.Op, Simplify(n.L), Simplify(n.R))
	case *Call:
		arg := Simplify(n.Arg)
		if c, ok := arg.(*Num); ok {
			return N(ApplyFunc(n.Fn, c.Value))
		}
		return &Call{Fn: n.Fn, Arg: arg}
	case *Compare:
		l, r := Simplify(n.L), Simplify(n.R)
		lc, lok := l.(*Num)
		rc, rok := r.(*Num)
		if lok && rok {
			return N(boolNum(ApplyCompare(n.Op, lc.Value, rc.Value)))
		}
		return &Compare{Op: n.Op, L: l, R: r}
	case *Logic:
		return simplifyLogic(n)
	case *Piecewise:
		return simplifyPiecewise(n)
	}
	return e
}

func isNum(e Expr, v float64) bool {
	c, ok := e.(*Num)
	return ok && c.Value == v
}

func simplifyNeg(x Expr) Expr {
	switch v := x.(type) {
	case *Num:
		return N(-v.Value)
	case *Neg:
		return v.X
	}
	return &Neg{X: x}
}

func simplifyBinary(op BinOp, l, r Expr) Expr {
	lc, lok := l.(*Num)
	rc, rok := r.(*Num)
	if lok && rok {
		return N(ApplyBinary(op, lc.Value, rc.Value))
	}
	switch op {
	case OpAdd:
		if isNum(l, 0) {
			return r
		}
		if isNum(r, 0) {
			return l
		}
		if nr, ok := r.(*Neg); ok {
			return simplifyBinary(OpSub, l, nr.X)
		}
	case OpSub:
		if isNum(r, 0) {
			return l
		}
		if isNum(l, 0) {
			return simplifyNeg(r)
		}
		if Equal(l, r) {
			return N(0)
		}
		if nr, ok := r.(*Neg); ok {
			return simplifyBinary(OpAdd, l, nr.X)
		}
	case OpMul:
		if isNum(l, 0) || isNum(r, 0) {
			return N(0)
		}
		if isNum(l, 1) {
			return r
		}
		if isNum(r, 1) {
			return l
		}
		if isNum(l, -1) {
			return simplifyNeg(r)
		}
		if isNum(r, -1) {
			return simplifyNeg(l)
		}
	case OpDiv:
		if isNum(r, 1) {
			return l
		}
		if isNum(l, 0) && !isNum(r, 0) {
			return N(0)
		}
	case OpPow:
		if isNum(r, 1) {
			return l
		}
		if isNum(r, 0) {
			return N(1)
		}
	}
	return &Binary{Op: op, L: l, R: r}
}

func simplifyLogic(n *Logic) Expr {
	l := Simplify(n.L)
	if n.Op == LogicNot {
		if c, ok := l.(*Num); ok {
			return N(boolNum(c.Value == 0))
		}
		return &Logic{Op: LogicNot, L: l}
	}
	r := Simplify(n.R)
	lc, lok := l.(*Num)
	rc, rok := r.(*Num)
	if lok && rok {
		if n.Op == LogicAnd {
			return N(boolNum(lc.Value != 0 && rc.Value != 0))
		}
		return N(boolNum(lc.Value != 0 || rc.Value != 0))
	}
	return &Logic{Op: n.Op, L: l, R: r}
}

func simplifyPiecewise(n *Piecewise) Expr {
	out := &Piecewise{}
	for _, c := range n.Cases {
		cond := Simplify(c.Cond)
		val := Simplify(c.Value)
		if cc, ok := cond.(*Num); ok {
			if cc.Value == 0 {
				continue
			}
			if len(out.Cases) == 0 {
				return val
			}
			out.Otherwise = val
			break
		}
		out.Cases = append(out.Cases, Case{Cond: cond, Value: val})
	}
	if out.Otherwise == nil && n.Otherwise != nil {
		out.Otherwise = Simplify(n.Otherwise)
	}
	if len(out.Cases) == 0 {
		if out.Otherwise == nil {
			return N(math.NaN())
		}
		return out.Otherwise
	}
	if out.Otherwise != nil {
		same := true
		for _, c := range out.Cases {
			if !Equal(c.Value, out.Otherwise) {
				same = false
				break
			}
		}
		if same {
			return out.Otherwise
		}
	}
	return out
}
