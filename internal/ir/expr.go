package ir

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Expr is a sealed interface for expression tree nodes.
// Only the node types in this file implement it.
type Expr interface {
	expr() // Sealed

	// String returns the canonical textual key of the expression.
	// Two structurally identical trees always produce the same string.
	String() string
}

// Num is a numeric literal.
type Num struct{ Value float64 }

// Ref references a variable by its full component.variable name.
type Ref struct{ Name string }

// Neg is unary negation.
type Neg struct{ X Expr }

// BinOp identifies an arithmetic binary operator.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpPow
)

// Binary is an arithmetic binary operation.
type Binary struct {
	Op   BinOp
	L, R Expr
}

// Func identifies a single-argument elementary function.
type Func int

const (
	FnExp Func = iota
	FnLn
	FnLog10
	FnSqrt
	FnAbs
	FnTanh
	FnSinh
	FnCosh
	FnSin
	FnCos
	FnTan
	FnAtan
	FnFloor
	FnCeil
)

var funcNames = map[Func]string{
	FnExp:   "exp",
	FnLn:    "ln",
	FnLog10: "log10",
	FnSqrt:  "sqrt",
	FnAbs:   "abs",
	FnTanh:  "tanh",
	FnSinh:  "sinh",
	FnCosh:  "cosh",
	FnSin:   "sin",
	FnCos:   "cos",
	FnTan:   "tan",
	FnAtan:  "atan",
	FnFloor: "floor",
	FnCeil:  "ceil",
}

// String returns the canonical function name.
func (f Func) String() string {
	if n, ok := funcNames[f]; ok {
		return n
	}
	return "unknown"
}

// LookupFunc resolves a function name as written in model files.
// "log" is accepted as an alias of the natural logarithm.
func LookupFunc(name string) (Func, bool) {
	if name == "log" {
		return FnLn, true
	}
	for f, n := range funcNames {
		if n == name {
			return f, true
		}
	}
	return 0, false
}

// Transcendental reports whether the function is expensive enough to be
// worth tabulating.
func (f Func) Transcendental() bool {
	switch f {
	case FnAbs, FnFloor, FnCeil:
		return false
	default:
		return true
	}
}

// Call applies an elementary function to one argument.
type Call struct {
	Fn  Func
	Arg Expr
}

// CmpOp identifies a comparison operator.
type CmpOp int

const (
	CmpLT CmpOp = iota
	CmpLE
	CmpGT
	CmpGE
	CmpEQ
	CmpNE
)

var cmpSymbols = [...]string{"<", "<=", ">", ">=", "==", "!="}

// String returns the operator symbol.
func (o CmpOp) String() string { return cmpSymbols[o] }

// Compare evaluates to 1 when the relation holds and 0 otherwise.
type Compare struct {
	Op   CmpOp
	L, R Expr
}

// LogicOp identifies a boolean connective.
type LogicOp int

const (
	LogicAnd LogicOp = iota
	LogicOr
	LogicNot
)

// Logic combines conditions. R is nil for LogicNot.
type Logic struct {
	Op   LogicOp
	L, R Expr
}

// Case is one guarded branch of a piecewise expression.
type Case struct {
	Cond  Expr
	Value Expr
}

// Piecewise selects the value of the first case whose condition holds,
// falling back to Otherwise. A nil Otherwise evaluates to NaN.
type Piecewise struct {
	Cases     []Case
	Otherwise Expr
}

func (*Num) expr()       {}
func (*Ref) expr()       {}
func (*Neg) expr()       {}
func (*Binary) expr()    {}
func (*Call) expr()      {}
func (*Compare) expr()   {}
func (*Logic) expr()     {}
func (*Piecewise) expr() {}

// N creates a numeric literal.
func N(v float64) *Num { return &Num{Value: v} }

// R creates a variable reference.
func R(name string) *Ref { return &Ref{Name: name} }

// Negate creates a negation node.
func Negate(x Expr) Expr { return &Neg{X: x} }

// Add creates l + r.
func Add(l, r Expr) Expr { return &Binary{Op: OpAdd, L: l, R: r} }

// Sub creates l - r.
func Sub(l, r Expr) Expr { return &Binary{Op: OpSub, L: l, R: r} }

// Mul creates l * r.
func Mul(l, r Expr) Expr { return &Binary{Op: OpMul, L: l, R: r} }

// Div creates l / r.
func Div(l, r Expr) Expr { return &Binary{Op: OpDiv, L: l, R: r} }

// Pow creates pow(l, r).
func Pow(l, r Expr) Expr { return &Binary{Op: OpPow, L: l, R: r} }

// Fn applies an elementary function.
func Fn(f Func, arg Expr) Expr { return &Call{Fn: f, Arg: arg} }

// Cmp creates a comparison.
func Cmp(op CmpOp, l, r Expr) Expr { return &Compare{Op: op, L: l, R: r} }

// And creates l && r.
func And(l, r Expr) Expr { return &Logic{Op: LogicAnd, L: l, R: r} }

// Or creates l || r.
func Or(l, r Expr) Expr { return &Logic{Op: LogicOr, L: l, R: r} }

// Not creates !x.
func Not(x Expr) Expr { return &Logic{Op: LogicNot, L: x} }

// If creates a piecewise expression from cases and a fallback.
func If(otherwise Expr, cases ...Case) Expr {
	return &Piecewise{Cases: cases, Otherwise: otherwise}
}

// FormatNum renders a float64 in its shortest round-trippable form.
func FormatNum(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (n *Num) String() string { return FormatNum(n.Value) }

func (r *Ref) String() string { return r.Name }

func (n *Neg) String() string { return "(-" + n.X.String() + ")" }

func (b *Binary) String() string {
	switch b.Op {
	case OpAdd:
		return "(" + b.L.String() + " + " + b.R.String() + ")"
	case OpSub:
		return "(" + b.L.String() + " - " + b.R.String() + ")"
	case OpMul:
		return "(" + b.L.String() + " * " + b.R.String() + ")"
	case OpDiv:
		return "(" + b.L.String() + " / " + b.R.String() + ")"
	default:
		return "pow(" + b.L.String() + ", " + b.R.String() + ")"
	}
}

func (c *Call) String() string { return c.Fn.String() + "(" + c.Arg.String() + ")" }

func (c *Compare) String() string {
	return "(" + c.L.String() + " " + c.Op.String() + " " + c.R.String() + ")"
}

func (l *Logic) String() string {
	switch l.Op {
	case LogicAnd:
		return "(" + l.L.String() + " && " + l.R.String() + ")"
	case LogicOr:
		return "(" + l.L.String() + " || " + l.R.String() + ")"
	default:
		return "(!" + l.L.String() + ")"
	}
}

func (p *Piecewise) String() string {
	var sb strings.Builder
	sb.WriteString("piecewise(")
	for i, c := range p.Cases {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(c.Cond.String())
		sb.WriteString(": ")
		sb.WriteString(c.Value.String())
	}
	if p.Otherwise != nil {
		if len(p.Cases) > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString("otherwise: ")
		sb.WriteString(p.Otherwise.String())
	}
	sb.WriteString(")")
	return sb.String()
}

// Equal reports whether two expressions are structurally identical.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// Walk visits e in pre-order. Returning false from fn skips the children
// of the current node.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Neg:
		Walk(n.X, fn)
	case *Binary:
		Walk(n.L, fn)
		Walk(n.R, fn)
	case *Call:
		Walk(n.Arg, fn)
	case *Compare:
		Walk(n.L, fn)
		Walk(n.R, fn)
	case *Logic:
		Walk(n.L, fn)
		Walk(n.R, fn)
	case *Piecewise:
		for _, c := range n.Cases {
			Walk(c.Cond, fn)
			Walk(c.Value, fn)
		}
		Walk(n.Otherwise, fn)
	}
}

// Children returns the direct sub-expressions of e.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *Neg:
		return []Expr{n.X}
	case *Binary:
		return []Expr{n.L, n.R}
	case *Call:
		return []Expr{n.Arg}
	case *Compare:
		return []Expr{n.L, n.R}
	case *Logic:
		if n.R == nil {
			return []Expr{n.L}
		}
		return []Expr{n.L, n.R}
	case *Piecewise:
		out := make([]Expr, 0, 2*len(n.Cases)+1)
		for _, c := range n.Cases {
			out = append(out, c.Cond, c.Value)
		}
		if n.Otherwise != nil {
			out = append(out, n.Otherwise)
		}
		return out
	}
	return nil
}

// FreeVars returns the sorted, de-duplicated names referenced by e.
func FreeVars(e Expr) []string {
	seen := make(map[string]bool)
	Walk(e, func(x Expr) bool {
		if r, ok := x.(*Ref); ok {
			seen[r.Name] = true
		}
		return true
	})
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Mentions reports whether e references the named variable directly.
func Mentions(e Expr, name string) bool {
	found := false
	Walk(e, func(x Expr) bool {
		if found {
			return false
		}
		if r, ok := x.(*Ref); ok && r.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// CountRefs counts direct references to name in e.
func CountRefs(e Expr, name string) int {
	n := 0
	Walk(e, func(x Expr) bool {
		if r, ok := x.(*Ref); ok && r.Name == name {
			n++
		}
		return true
	})
	return n
}

// HasPiecewise reports whether e contains a conditional node.
func HasPiecewise(e Expr) bool {
	found := false
	Walk(e, func(x Expr) bool {
		if _, ok := x.(*Piecewise); ok {
			found = true
		}
		return !found
	})
	return found
}

// HasTranscendental reports whether e calls a transcendental function or
// raises to a power that is not a small integer constant.
func HasTranscendental(e Expr) bool {
	found := false
	Walk(e, func(x Expr) bool {
		switch n := x.(type) {
		case *Call:
			if n.Fn.Transcendental() {
				found = true
			}
		case *Binary:
			if n.Op == OpPow {
				if c, ok := n.R.(*Num); !ok || c.Value != math.Trunc(c.Value) || math.Abs(c.Value) > 4 {
					found = true
				}
			}
		}
		return !found
	})
	return found
}

// Substitute rebuilds e, replacing every reference for which fn returns
// a replacement. Nodes without replacements are shared, not copied.
func Substitute(e Expr, fn func(name string) (Expr, bool)) Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *Num:
		return n
	case *Ref:
		if repl, ok := fn(n.Name); ok {
			return repl
		}
		return n
	case *Neg:
		x := Substitute(n.X, fn)
		if x == n.X {
			return n
		}
		return &Neg{X: x}
	case *Binary:
		l, r := Substitute(n.L, fn), Substitute(n.R, fn)
		if l == n.L && r == n.R {
			return n
		}
		return &Binary{Op: n.Op, L: l, R: r}
	case *Call:
		a := Substitute(n.Arg, fn)
		if a == n.Arg {
			return n
		}
		return &Call{Fn: n.Fn, Arg: a}
	case *Compare:
		l, r := Substitute(n.L, fn), Substitute(n.R, fn)
		if l == n.L && r == n.R {
			return n
		}
		return &Compare{Op: n.Op, L: l, R: r}
	case *Logic:
		l, r := Substitute(n.L, fn), Substitute(n.R, fn)
		if l == n.L && r == n.R {
			return n
		}
		return &Logic{Op: n.Op, L: l, R: r}
	case *Piecewise:
		out := &Piecewise{Cases: make([]Case, len(n.Cases))}
		changed := false
		for i, c := range n.Cases {
			cond, val := Substitute(c.Cond, fn), Substitute(c.Value, fn)
			changed = changed || cond != c.Cond || val != c.Value
			out.Cases[i] = Case{Cond: cond, Value: val}
		}
		out.Otherwise = Substitute(n.Otherwise, fn)
		if !changed && out.Otherwise == n.Otherwise {
			return n
		}
		return out
	}
	return e
}

// Replace substitutes a single variable by value.
func Replace(e Expr, name string, value Expr) Expr {
	return Substitute(e, func(n string) (Expr, bool) {
		if n == name {
			return value, true
		}
		return nil, false
	})
}

// Rewrite rebuilds e top-down. fn is offered each node before its
// children; when it returns a replacement the subtree is not visited.
func Rewrite(e Expr, fn func(Expr) (Expr, bool)) Expr {
	if e == nil {
		return nil
	}
	if repl, ok := fn(e); ok {
		return repl
	}
	switch n := e.(type) {
	case *Neg:
		return &Neg{X: Rewrite(n.X, fn)}
	case *Binary:
		return &Binary{Op: n.Op, L: Rewrite(n.L, fn), R: Rewrite(n.R, fn)}
	case *Call:
		return &Call{Fn: n.Fn, Arg: Rewrite(n.Arg, fn)}
	case *Compare:
		return &Compare{Op: n.Op, L: Rewrite(n.L, fn), R: Rewrite(n.R, fn)}
	case *Logic:
		return &Logic{Op: n.Op, L: Rewrite(n.L, fn), R: Rewrite(n.R, fn)}
	case *Piecewise:
		out := &Piecewise{Cases: make([]Case, len(n.Cases))}
		for i, c := range n.Cases {
			out.Cases[i] = Case{Cond: Rewrite(c.Cond, fn), Value: Rewrite(c.Value, fn)}
		}
		out.Otherwise = Rewrite(n.Otherwise, fn)
		return out
	}
	return e
}
