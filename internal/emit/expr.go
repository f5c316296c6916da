package emit

import (
	"math"
	"strconv"
	"strings"

	"github.com/roach88/cellc/internal/ir"
)

// C++ operator precedence, higher binds tighter.
const (
	precTernary = iota + 1
	precOr
	precAnd
	precEquality
	precRelational
	precAdditive
	precMultiplicative
	precUnary
	precAtom
)

var cppFuncs = map[ir.Func]string{
	ir.FnExp:   "exp",
	ir.FnLn:    "log",
	ir.FnLog10: "log10",
	ir.FnSqrt:  "sqrt",
	ir.FnAbs:   "fabs",
	ir.FnTanh:  "tanh",
	ir.FnSinh:  "sinh",
	ir.FnCosh:  "cosh",
	ir.FnSin:   "sin",
	ir.FnCos:   "cos",
	ir.FnTan:   "tan",
	ir.FnAtan:  "atan",
	ir.FnFloor: "floor",
	ir.FnCeil:  "ceil",
}

// printer renders expressions as C++. name maps a reference to its
// identifier and reports false for names with no definition in scope.
type printer struct {
	name    func(string) (string, bool)
	missing string
}

func (p *printer) print(e ir.Expr) string {
	s, _ := p.expr(e)
	return s
}

// expr returns the C++ text of e and its precedence.
func (p *printer) expr(e ir.Expr) (string, int) {
	switch n := e.(type) {
	case *ir.Num:
		s := cppNum(n.Value)
		if strings.HasPrefix(s, "-") {
			return s, precUnary
		}
		return s, precAtom
	case *ir.Ref:
		id, ok := p.name(n.Name)
		if !ok {
			if p.missing == "" {
				p.missing = n.Name
			}
			return n.Name, precAtom
		}
		return id, precAtom
	case *ir.Neg:
		return "-" + p.operand(n.X, precUnary+1), precUnary
	case *ir.Binary:
		return p.binary(n)
	case *ir.Call:
		return cppFuncs[n.Fn] + "(" + p.print(n.Arg) + ")", precAtom
	case *ir.Compare:
		prec := precRelational
		if n.Op == ir.CmpEQ || n.Op == ir.CmpNE {
			prec = precEquality
		}
		return p.operand(n.L, prec) + " " + n.Op.String() + " " + p.operand(n.R, prec+1), prec
	case *ir.Logic:
		switch n.Op {
		case ir.LogicAnd:
			return p.operand(n.L, precAnd) + " && " + p.operand(n.R, precAnd+1), precAnd
		case ir.LogicOr:
			return p.operand(n.L, precOr) + " || " + p.operand(n.R, precOr+1), precOr
		default:
			return "!" + p.operand(n.L, precUnary+1), precUnary
		}
	case *ir.Piecewise:
		return p.piecewise(n), precTernary
	}
	return "NAN", precAtom
}

// operand renders e, parenthesised when it binds looser than min.
func (p *printer) operand(e ir.Expr, min int) string {
	s, prec := p.expr(e)
	if prec < min {
		return "(" + s + ")"
	}
	return s
}

func (p *printer) binary(n *ir.Binary) (string, int) {
	switch n.Op {
	case ir.OpAdd:
		return p.operand(n.L, precAdditive) + " + " + p.operand(n.R, precAdditive), precAdditive
	case ir.OpSub:
		return p.operand(n.L, precAdditive) + " - " + p.operand(n.R, precAdditive+1), precAdditive
	case ir.OpMul:
		return p.operand(n.L, precMultiplicative) + " * " + p.operand(n.R, precMultiplicative), precMultiplicative
	case ir.OpDiv:
		return p.operand(n.L, precMultiplicative) + " / " + p.operand(n.R, precMultiplicative+1), precMultiplicative
	}
	exp := p.print(n.R)
	if c, ok := n.R.(*ir.Num); ok && c.Value == math.Trunc(c.Value) && math.Abs(c.Value) < 1e6 {
		exp = strconv.Itoa(int(c.Value))
	}
	return "pow(" + p.print(n.L) + ", " + exp + ")", precAtom
}

func (p *printer) piecewise(n *ir.Piecewise) string {
	otherwise := "NAN"
	if n.Otherwise != nil {
		otherwise = p.operand(n.Otherwise, precTernary)
	}
	out := otherwise
	for i := len(n.Cases) - 1; i >= 0; i-- {
		c := n.Cases[i]
		out = "(" + p.print(c.Cond) + ") ? (" + p.print(c.Value) + ") : (" + out + ")"
	}
	return out
}

// cppNum renders a double literal that C++ reads back exactly.
func cppNum(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "INFINITY"
	case math.IsInf(v, -1):
		return "-INFINITY"
	case math.IsNaN(v):
		return "NAN"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func itoa(i int) string { return strconv.Itoa(i) }
