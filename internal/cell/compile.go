package cell

import (
	"fmt"
	"math"

	"github.com/roach88/cellc/internal/ir"
)

// evalFn computes an expression from the slot vector.
type evalFn func(s []float64) float64

// layout assigns every named quantity a slot.
type layout struct {
	slots map[string]int
	names []string
}

func newLayout() *layout {
	return &layout{slots: make(map[string]int)}
}

func (l *layout) add(name string) int {
	if i, ok := l.slots[name]; ok {
		return i
	}
	l.slots[name] = len(l.names)
	l.names = append(l.names, name)
	return len(l.names) - 1
}

func (l *layout) size() int { return len(l.names) }

// compile turns e into a closure over the slot vector. Every reference
// must already have a slot.
func (l *layout) compile(e ir.Expr) (evalFn, error) {
	switch n := e.(type) {
	case *ir.Num:
		v := n.Value
		return func([]float64) float64 { return v }, nil
	case *ir.Ref:
		i, ok := l.slots[n.Name]
		if !ok {
			return nil, fmt.Errorf("unresolved reference %s", n.Name)
		}
		return func(s []float64) float64 { return s[i] }, nil
	case *ir.Neg:
		x, err := l.compile(n.X)
		if err != nil {
			return nil, err
		}
		return func(s []float64) float64 { return -x(s) }, nil
	case *ir.Binary:
		return l.compileBinary(n)
	case *ir.Call:
		x, err := l.compile(n.Arg)
		if err != nil {
			return nil, err
		}
		return compileCall(n.Fn, x), nil
	case *ir.Compare:
		a, err := l.compile(n.L)
		if err != nil {
			return nil, err
		}
		b, err := l.compile(n.R)
		if err != nil {
			return nil, err
		}
		op := n.Op
		return func(s []float64) float64 { return truth(ir.ApplyCompare(op, a(s), b(s))) }, nil
	case *ir.Logic:
		a, err := l.compile(n.L)
		if err != nil {
			return nil, err
		}
		if n.Op == ir.LogicNot {
			return func(s []float64) float64 { return truth(a(s) == 0) }, nil
		}
		b, err := l.compile(n.R)
		if err != nil {
			return nil, err
		}
		if n.Op == ir.LogicAnd {
			return func(s []float64) float64 { return truth(a(s) != 0 && b(s) != 0) }, nil
		}
		return func(s []float64) float64 { return truth(a(s) != 0 || b(s) != 0) }, nil
	case *ir.Piecewise:
		return l.compilePiecewise(n)
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func (l *layout) compileBinary(n *ir.Binary) (evalFn, error) {
	a, err := l.compile(n.L)
	if err != nil {
		return nil, err
	}
	b, err := l.compile(n.R)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case ir.OpAdd:
		return func(s []float64) float64 { return a(s) + b(s) }, nil
	case ir.OpSub:
		return func(s []float64) float64 { return a(s) - b(s) }, nil
	case ir.OpMul:
		return func(s []float64) float64 { return a(s) * b(s) }, nil
	case ir.OpDiv:
		return func(s []float64) float64 { return a(s) / b(s) }, nil
	}
	if c, ok := n.R.(*ir.Num); ok && c.Value == math.Trunc(c.Value) && math.Abs(c.Value) <= 4 {
		k := int(c.Value)
		return func(s []float64) float64 { return intPow(a(s), k) }, nil
	}
	return func(s []float64) float64 { return math.Pow(a(s), b(s)) }, nil
}

func compileCall(f ir.Func, x evalFn) evalFn {
	switch f {
	case ir.FnExp:
		return func(s []float64) float64 { return math.Exp(x(s)) }
	case ir.FnLn:
		return func(s []float64) float64 { return math.Log(x(s)) }
	case ir.FnSqrt:
		return func(s []float64) float64 { return math.Sqrt(x(s)) }
	case ir.FnAbs:
		return func(s []float64) float64 { return math.Abs(x(s)) }
	}
	return func(s []float64) float64 { return ir.ApplyFunc(f, x(s)) }
}

func (l *layout) compilePiecewise(n *ir.Piecewise) (evalFn, error) {
	conds := make([]evalFn, len(n.Cases))
	vals := make([]evalFn, len(n.Cases))
	for i, c := range n.Cases {
		var err error
		if conds[i], err = l.compile(c.Cond); err != nil {
			return nil, err
		}
		if vals[i], err = l.compile(c.Value); err != nil {
			return nil, err
		}
	}
	otherwise := func([]float64) float64 { return math.NaN() }
	if n.Otherwise != nil {
		var err error
		if otherwise, err = l.compile(n.Otherwise); err != nil {
			return nil, err
		}
	}
	return func(s []float64) float64 {
		for i, c := range conds {
			if c(s) != 0 {
				return vals[i](s)
			}
		}
		return otherwise(s)
	}, nil
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func intPow(x float64, k int) float64 {
	if k < 0 {
		return 1 / intPow(x, -k)
	}
	r := 1.0
	for ; k > 0; k-- {
		r *= x
	}
	return r
}
