package ir

import "math"

// Env resolves a variable name to its current value.
type Env func(name string) float64

// MapEnv adapts a map to an Env. Missing names evaluate to NaN.
func MapEnv(vals map[string]float64) Env {
	return func(name string) float64 {
		if v, ok := vals[name]; ok {
			return v
		}
		return math.NaN()
	}
}

// Eval evaluates e numerically. Comparisons and logic evaluate to 1 or 0.
// A piecewise expression with no matching case and no fallback is NaN.
func Eval(e Expr, env Env) float64 {
	switch n := e.(type) {
	case *Num:
		return n.Value
	case *Ref:
		return env(n.Name)
	case *Neg:
		return -Eval(n.X, env)
	case *Binary:
		return ApplyBinary(n.Op, Eval(n.L, env), Eval(n.R, env))
	case *Call:
		return ApplyFunc(n.Fn, Eval(n.Arg, env))
	case *Compare:
		return boolNum(ApplyCompare(n.Op, Eval(n.L, env), Eval(n.R, env)))
	case *Logic:
		switch n.Op {
		case LogicAnd:
			return boolNum(Eval(n.L, env) != 0 && Eval(n.R, env) != 0)
		case LogicOr:
			return boolNum(Eval(n.L, env) != 0 || Eval(n.R, env) != 0)
		default:
			return boolNum(Eval(n.L, env) == 0)
		}
	case *Piecewise:
		for _, c := range n.Cases {
			if Eval(c.Cond, env) != 0 {
				return Eval(c.Value, env)
			}
		}
		if n.Otherwise == nil {
			return math.NaN()
		}
		return Eval(n.Otherwise, env)
	}
	return math.NaN()
}

func boolNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ApplyBinary computes an arithmetic operator on two values.
func ApplyBinary(op BinOp, l, r float64) float64 {
	switch op {
	case OpAdd:
		return l + r
	case OpSub:
		return l - r
	case OpMul:
		return l * r
	case OpDiv:
		return l / r
	default:
		return math.Pow(l, r)
	}
}

// ApplyFunc computes an elementary function.
func ApplyFunc(f Func, x float64) float64 {
	switch f {
	case FnExp:
		return math.Exp(x)
	case FnLn:
		return math.Log(x)
	case FnLog10:
		return math.Log10(x)
	case FnSqrt:
		return math.Sqrt(x)
	case FnAbs:
		return math.Abs(x)
	case FnTanh:
		return math.Tanh(x)
	case FnSinh:
		return math.Sinh(x)
	case FnCosh:
		return math.Cosh(x)
	case FnSin:
		return math.Sin(x)
	case FnCos:
		return math.Cos(x)
	case FnTan:
		return math.Tan(x)
	case FnAtan:
		return math.Atan(x)
	case FnFloor:
		return math.Floor(x)
	case FnCeil:
		return math.Ceil(x)
	}
	return math.NaN()
}

// ApplyCompare evaluates a comparison.
func ApplyCompare(op CmpOp, l, r float64) bool {
	switch op {
	case CmpLT:
		return l < r
	case CmpLE:
		return l <= r
	case CmpGT:
		return l > r
	case CmpGE:
		return l >= r
	case CmpEQ:
		return l == r
	default:
		return l != r
	}
}
