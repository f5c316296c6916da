package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStronglyConnected(t *testing.T) {
	g := Graph{
		"a": {"b"},
		"b": {"a"},
		"c": {"d"},
	}
	sccs := StronglyConnected([]string{"a", "b", "c", "d"}, g)
	assert.Equal(t, [][]string{{"a", "b"}, {"d"}, {"c"}}, sccs)
}

func TestStronglyConnectedIgnoresOutsideNodes(t *testing.T) {
	g := Graph{"a": {"z", "a"}}
	sccs := StronglyConnected([]string{"a"}, g)
	assert.Equal(t, [][]string{{"a"}}, sccs)
	assert.True(t, HasSelfLoop("a", g))
	assert.False(t, HasSelfLoop("z", g))
}

func TestTopoOrderKeepsDeclarationOrder(t *testing.T) {
	g := Graph{"x": {"z"}, "y": nil, "z": nil}
	order, rest := topoOrder([]string{"x", "y", "z"}, g)
	assert.Equal(t, []string{"y", "z", "x"}, order)
	assert.Empty(t, rest)
}

func TestTopoOrderReportsCycle(t *testing.T) {
	g := Graph{"p": nil, "a": {"b"}, "b": {"c"}, "c": {"a"}, "d": {"a"}}
	order, rest := topoOrder([]string{"p", "a", "b", "c", "d"}, g)
	assert.Equal(t, []string{"p"}, order)
	assert.Equal(t, []string{"a", "b", "c", "d"}, rest)
	assert.Equal(t, []string{"a", "b", "c", "a"}, findCycle(rest, g))
}
