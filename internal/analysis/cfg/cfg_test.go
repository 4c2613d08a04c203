package cfg

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildNullCheck(t *testing.T) (*Graph, Symbol) {
	t.Helper()

	b := NewBuilder("nullCheck")
	x := b.Symbol("x")

	assign := b.Block()
	then := b.Block()
	els := b.Block()

	b.Edge(b.Entry(), assign, Regular)
	b.Add(assign, b.Assign(x, b.Null()))
	b.SetCondition(assign, b.Eq(b.Ref(x), b.Null()))
	b.Branch(assign, then, els)
	b.Add(then, b.Return(nil))
	b.Add(els, b.Member(b.Ref(x), "Member"))
	b.Edge(then, b.Exit(), Regular)
	b.Edge(els, b.Exit(), Regular)

	g, err := b.Build()
	require.NoError(t, err)
	return g, x
}

func TestBuilder(t *testing.T) {
	t.Parallel()

	g, x := buildNullCheck(t)

	require.Len(t, g.Blocks, 5)
	assert.Equal(t, BlockEntry, g.Entry().Kind)
	assert.Equal(t, BlockExit, g.Exit().Kind)
	for i, b := range g.Blocks {
		assert.Equal(t, i, b.Index)
	}

	cond := g.Blocks[1]
	require.Len(t, cond.Succs, 2)
	assert.Equal(t, Then, cond.Succs[0].Kind)
	assert.Equal(t, Else, cond.Succs[1].Kind)
	assert.Len(t, g.Exit().Preds, 2)

	sym, ok := ReferencedSymbol(cond.Condition.Left())
	assert.True(t, ok)
	assert.Equal(t, x, sym)
	assert.True(t, cond.Condition.Right().IsNullLiteral())
}

func TestBuildRejectsBranchWithoutCondition(t *testing.T) {
	t.Parallel()

	b := NewBuilder("bad")
	blk := b.Block()
	b.Edge(b.Entry(), blk, Regular)
	b.Branch(blk, b.Exit(), b.Exit())

	_, err := b.Build()
	assert.True(t, errors.Is(err, ErrMalformedGraph))
}

func TestBuildRejectsEdgeFromExit(t *testing.T) {
	t.Parallel()

	b := NewBuilder("bad")
	b.Edge(b.Exit(), b.Entry(), Regular)

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrMalformedGraph)
}

func TestExecutionOrder(t *testing.T) {
	t.Parallel()

	b := NewBuilder("order")
	r := b.Symbol("r")
	arg := b.Int(1)
	recv := b.Ref(r)
	call := b.Invoke(recv, "Add", arg)
	assign := b.Assign(b.Symbol("y"), call)

	order := ExecutionOrder(assign)
	assert.Equal(t, []*Operation{recv, arg, call, assign}, order)
}

func TestNested(t *testing.T) {
	t.Parallel()

	outer := NewBuilder("outer")
	x := outer.Symbol("x")

	inner := outer.NestedBuilder("outer.func1")
	body := inner.Block()
	inner.Edge(inner.Entry(), body, Regular)
	inner.Add(body, inner.Member(inner.Ref(x), "Len"))
	inner.Edge(body, inner.Exit(), Regular)
	inner.Capture(x)
	nested := inner.MustBuild()

	blk := outer.Block()
	lambda := outer.Lambda(nested)
	outer.Add(blk, lambda)
	outer.Edge(outer.Entry(), blk, Regular)
	outer.Edge(blk, outer.Exit(), Regular)
	g := outer.MustBuild()

	got, err := g.Nested(lambda)
	require.NoError(t, err)
	assert.Same(t, nested, got)
	assert.Equal(t, []Symbol{x}, got.Captured)

	// IDs keep growing across nested builders
	assert.Greater(t, lambda.ID, nested.Blocks[1].Operations[0].ID)

	_, err = g.Nested(&Operation{Kind: OpLambda, Nested: 7})
	assert.ErrorIs(t, err, ErrNoNestedGraph)
	_, err = g.Nested(g.Blocks[1].Operations[0].Instance)
	assert.ErrorIs(t, err, ErrNoNestedGraph)
}

func TestOperationString(t *testing.T) {
	t.Parallel()

	b := NewBuilder("str")
	x := b.Symbol("x")
	tests := []struct {
		op       *Operation
		expected string
	}{
		{b.Assign(x, b.Null()), "x = null"},
		{b.Eq(b.Ref(x), b.Null()), "x == null"},
		{b.Invoke(b.Ref(x), "Dispose"), "x.Dispose()"},
		{b.New("List", b.Int(1)), "new List(1)"},
		{b.Not(b.Bool(true)), "!true"},
		{b.Range(b.Ref(x)), "range x"},
		{b.Return(nil), "return"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.op.String())
	}
}

func TestPrintDot(t *testing.T) {
	t.Parallel()

	g, _ := buildNullCheck(t)

	var buf bytes.Buffer
	g.PrintDot(&buf)

	output := buf.String()
	expected := `
digraph "nullCheck" {
	mode="heir";
	splines="ortho";

	"ENTRY" [shape=box label="ENTRY"]
	"B1" [shape=box label="B1\nx = null\nif x == null"]
	"B2" [shape=box label="B2\nreturn"]
	"B3" [shape=box label="B3\nx.Member"]
	"EXIT" [shape=box label="EXIT"]
	"ENTRY" -> "B1"
	"B1" -> "B2" [label="then"]
	"B1" -> "B3" [label="else"]
	"B2" -> "EXIT"
	"B3" -> "EXIT"
}
`
	if normalizeDotOutput(output) != normalizeDotOutput(expected) {
		t.Errorf("Expected DOT output:\n%s\nGot:\n%s", expected, output)
	}
}

func normalizeDotOutput(dot string) string {
	lines := strings.Split(dot, "\n")
	var normalized []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return strings.Join(normalized, "\n")
}
