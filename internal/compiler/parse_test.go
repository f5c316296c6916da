package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpr(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"a + b * 2", "(a + (b * 2))"},
		{"(a + b) * 2", "((a + b) * 2)"},
		{"-0.1 * (V + 50)", "(-0.1 * (V + 50))"},
		{"-(x - y) / Cm", "((-(x - y)) / Cm)"},
		{"pow(m.h, 3) + exp(-x)", "(pow(m.h, 3) + exp((-x)))"},
		{"log(x) + ln(y)", "(ln(x) + ln(y))"},
		{"1e-4 * x", "(0.0001 * x)"},
		{"true", "1"},
		{"!(a && b) || c", "((!(a && b)) || c)"},
		{"v >= 0 ? 1 : 0", "piecewise((v >= 0): 1; otherwise: 0)"},
		{"v > 0 ? 1 : v < -1 ? 2 : 3", "piecewise((v > 0): 1; (v < -1): 2; otherwise: 3)"},
		{"v > 0 ? 1 : (v == 0 ? 2 : 3)", "piecewise((v > 0): 1; (v == 0): 2; otherwise: 3)"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := ParseExpr(tt.src, "test")
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())
		})
	}
}

func TestParseExprErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 +", ""},
		{"foo(1)", `unknown function "foo"`},
		{"exp(1, 2)", "exp takes 1 argument"},
		{"pow(2)", "pow takes 2 arguments"},
		{`"text"`, "unsupported"},
		{"a.b.c", "reference depth"},
		{"null", "null literal"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := ParseExpr(tt.src, "test")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
