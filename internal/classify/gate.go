package classify

import "github.com/roach88/cellc/internal/ir"

// matchAlphaBeta recognises alpha*(1-y) - beta*y, with either operand
// order in both products.
func matchAlphaBeta(e ir.Expr, y string) (alpha, beta ir.Expr, ok bool) {
	sub, ok := e.(*ir.Binary)
	if !ok || sub.Op != ir.OpSub {
		return nil, nil, false
	}
	alpha, ok = factorOf(sub.L, func(x ir.Expr) bool { return isOneMinus(x, y) })
	if !ok {
		return nil, nil, false
	}
	beta, ok = factorOf(sub.R, func(x ir.Expr) bool { return isRef(x, y) })
	if !ok {
		return nil, nil, false
	}
	if ir.Mentions(alpha, y) || ir.Mentions(beta, y) {
		return nil, nil, false
	}
	return alpha, beta, true
}

// matchInfTau recognises (inf - y)/tau.
func matchInfTau(e ir.Expr, y string) (inf, tau ir.Expr, ok bool) {
	div, ok := e.(*ir.Binary)
	if !ok || div.Op != ir.OpDiv {
		return nil, nil, false
	}
	num, ok := div.L.(*ir.Binary)
	if !ok || num.Op != ir.OpSub || !isRef(num.R, y) {
		return nil, nil, false
	}
	if ir.Mentions(num.L, y) || ir.Mentions(div.R, y) {
		return nil, nil, false
	}
	return num.L, div.R, true
}

// factorOf splits a product into the operand matching want and the other
// operand.
func factorOf(e ir.Expr, want func(ir.Expr) bool) (ir.Expr, bool) {
	mul, ok := e.(*ir.Binary)
	if !ok || mul.Op != ir.OpMul {
		return nil, false
	}
	switch {
	case want(mul.R):
		return mul.L, true
	case want(mul.L):
		return mul.R, true
	}
	return nil, false
}

func isRef(e ir.Expr, name string) bool {
	r, ok := e.(*ir.Ref)
	return ok && r.Name == name
}

func isOneMinus(e ir.Expr, y string) bool {
	b, ok := e.(*ir.Binary)
	if !ok || b.Op != ir.OpSub || !isRef(b.R, y) {
		return false
	}
	n, ok := b.L.(*ir.Num)
	return ok && n.Value == 1
}
