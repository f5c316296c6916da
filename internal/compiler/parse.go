package compiler

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/roach88/cellc/internal/ir"
)

// ParseExpr parses an expression written in HCL native syntax into an
// expression tree. Names are returned exactly as written; dotted names
// keep their component prefix.
//
// Supported: number and bool literals, + - * / unary minus, comparisons,
// && || !, `c ? a : b` (chains become one piecewise node), pow(a, b)
// and the single-argument functions known to ir.LookupFunc.
func ParseExpr(src, filename string) (ir.Expr, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}
	return convertExpr(expr)
}

func convertExpr(e hclsyntax.Expression) (ir.Expr, error) {
	switch n := e.(type) {
	case *hclsyntax.LiteralValueExpr:
		return convertLiteral(n.Val, n.SrcRange)
	case *hclsyntax.ParenthesesExpr:
		return convertExpr(n.Expression)
	case *hclsyntax.ScopeTraversalExpr:
		return convertTraversal(n.Traversal, n.SrcRange)
	case *hclsyntax.UnaryOpExpr:
		x, err := convertExpr(n.Val)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case hclsyntax.OpNegate:
			if c, ok := x.(*ir.Num); ok {
				return ir.N(-c.Value), nil
			}
			return ir.Negate(x), nil
		case hclsyntax.OpLogicalNot:
			return ir.Not(x), nil
		}
		return nil, unsupported(n.SrcRange, "unary operator")
	case *hclsyntax.BinaryOpExpr:
		return convertBinary(n)
	case *hclsyntax.FunctionCallExpr:
		return convertCall(n)
	case *hclsyntax.ConditionalExpr:
		return convertConditional(n)
	}
	return nil, unsupported(e.Range(), fmt.Sprintf("%T", e))
}

func unsupported(rng hcl.Range, what string) error {
	return fmt.Errorf("%s: unsupported %s", rng.String(), what)
}

func convertLiteral(v cty.Value, rng hcl.Range) (ir.Expr, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, unsupported(rng, "null literal")
	}
	switch v.Type() {
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return ir.N(f), nil
	case cty.Bool:
		if v.True() {
			return ir.N(1), nil
		}
		return ir.N(0), nil
	}
	return nil, unsupported(rng, "literal of type "+v.Type().FriendlyName())
}

func convertTraversal(t hcl.Traversal, rng hcl.Range) (ir.Expr, error) {
	switch len(t) {
	case 1:
		root, ok := t[0].(hcl.TraverseRoot)
		if !ok {
			return nil, unsupported(rng, "reference")
		}
		return ir.R(root.Name), nil
	case 2:
		root, ok1 := t[0].(hcl.TraverseRoot)
		attr, ok2 := t[1].(hcl.TraverseAttr)
		if !ok1 || !ok2 {
			return nil, unsupported(rng, "reference")
		}
		return ir.R(root.Name + "." + attr.Name), nil
	}
	return nil, unsupported(rng, "reference depth")
}

var binaryOps = map[*hclsyntax.Operation]ir.BinOp{
	hclsyntax.OpAdd:      ir.OpAdd,
	hclsyntax.OpSubtract: ir.OpSub,
	hclsyntax.OpMultiply: ir.OpMul,
	hclsyntax.OpDivide:   ir.OpDiv,
}

var compareOps = map[*hclsyntax.Operation]ir.CmpOp{
	hclsyntax.OpLessThan:           ir.CmpLT,
	hclsyntax.OpLessThanOrEqual:    ir.CmpLE,
	hclsyntax.OpGreaterThan:        ir.CmpGT,
	hclsyntax.OpGreaterThanOrEqual: ir.CmpGE,
	hclsyntax.OpEqual:              ir.CmpEQ,
	hclsyntax.OpNotEqual:           ir.CmpNE,
}

func convertBinary(n *hclsyntax.BinaryOpExpr) (ir.Expr, error) {
	l, err := convertExpr(n.LHS)
	if err != nil {
		return nil, err
	}
	r, err := convertExpr(n.RHS)
	if err != nil {
		return nil, err
	}
	if op, ok := binaryOps[n.Op]; ok {
		return &ir.Binary{Op: op, L: l, R: r}, nil
	}
	if op, ok := compareOps[n.Op]; ok {
		return ir.Cmp(op, l, r), nil
	}
	switch n.Op {
	case hclsyntax.OpLogicalAnd:
		return ir.And(l, r), nil
	case hclsyntax.OpLogicalOr:
		return ir.Or(l, r), nil
	}
	return nil, unsupported(n.SrcRange, "binary operator")
}

func convertCall(n *hclsyntax.FunctionCallExpr) (ir.Expr, error) {
	args := make([]ir.Expr, len(n.Args))
	for i, a := range n.Args {
		x, err := convertExpr(a)
		if err != nil {
			return nil, err
		}
		args[i] = x
	}
	if n.Name == "pow" {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s: pow takes 2 arguments, got %d", n.NameRange.String(), len(args))
		}
		return ir.Pow(args[0], args[1]), nil
	}
	fn, ok := ir.LookupFunc(n.Name)
	if !ok {
		return nil, fmt.Errorf("%s: unknown function %q", n.NameRange.String(), n.Name)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("%s: %s takes 1 argument, got %d", n.NameRange.String(), n.Name, len(args))
	}
	return ir.Fn(fn, args[0]), nil
}

// convertConditional flattens right-nested conditionals into one
// piecewise node with ordered cases.
func convertConditional(n *hclsyntax.ConditionalExpr) (ir.Expr, error) {
	pw := &ir.Piecewise{}
	var cur hclsyntax.Expression = n
	for {
		c, ok := unwrapParens(cur).(*hclsyntax.ConditionalExpr)
		if !ok {
			break
		}
		cond, err := convertExpr(c.Condition)
		if err != nil {
			return nil, err
		}
		val, err := convertExpr(c.TrueResult)
		if err != nil {
			return nil, err
		}
		pw.Cases = append(pw.Cases, ir.Case{Cond: cond, Value: val})
		cur = c.FalseResult
	}
	otherwise, err := convertExpr(cur)
	if err != nil {
		return nil, err
	}
	pw.Otherwise = otherwise
	return pw, nil
}

func unwrapParens(e hclsyntax.Expression) hclsyntax.Expression {
	for {
		p, ok := e.(*hclsyntax.ParenthesesExpr)
		if !ok {
			return e
		}
		e = p.Expression
	}
}
