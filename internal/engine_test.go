package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gnolang/flowsym/internal/analysis/symbolic"
	"github.com/gnolang/flowsym/internal/checks"
	tt "github.com/gnolang/flowsym/internal/types"
)

const nilDerefSource = `package main

type T struct{ n int }

func main() {
	var p *T
	println(p.n)
}
`

const mixedSource = `package main

type T struct{ n int }

type R struct{}

func (*R) Close() error { return nil }

func deref() int {
	var p *T
	return p.n
}

func closeTwice() {
	r := &R{}
	r.Close()
	r.Close()
}

func suppressed() int {
	var p *T
	return p.n //nolint:nil-dereference
}

func always() int {
	q := &T{}
	if q == nil {
		return 0
	}
	return q.n
}

func literal() {
	xs := []int{}
	f := func() int {
		var p *T
		return p.n + len(xs)
	}
	_ = f
}
`

func TestNewEngine(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, symbolic.DefaultOptions(), nil)
	assert.Equal(t, []string{
		checks.ConstantConditionName,
		checks.DoubleDisposeName,
		checks.EmptyCollectionName,
		checks.NullDereferenceName,
	}, engine.Rules())
	assert.Equal(t, tt.SeverityError, engine.Severity(checks.NullDereferenceName))
	assert.Equal(t, tt.SeverityWarning, engine.Severity(checks.ConstantConditionName))
}

func TestEngineApplyRules(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	engine := NewEngine(zap.New(core), symbolic.DefaultOptions(), map[string]tt.ConfigRule{
		checks.NullDereferenceName:   {Severity: tt.SeverityInfo},
		checks.ConstantConditionName: {Severity: tt.SeverityOff},
		"no-such-rule":               {Severity: tt.SeverityError},
	})

	assert.Equal(t, tt.SeverityInfo, engine.Severity(checks.NullDereferenceName))
	assert.NotContains(t, engine.Rules(), checks.ConstantConditionName)
	assert.Equal(t, 1, logs.FilterMessage("unknown rule in configuration").Len())
}

func TestEngine_IgnoreRule(t *testing.T) {
	t.Parallel()

	engine := &Engine{}
	engine.IgnoreRule("test_rule")
	assert.True(t, engine.ignoredRules["test_rule"])
}

func TestEngineRunSource(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, symbolic.DefaultOptions(), nil)
	issues, err := engine.RunSource(context.Background(), []byte(mixedSource))
	require.NoError(t, err)

	type got struct {
		rule, proc, msg string
		sev             tt.Severity
	}
	var summary []got
	for _, i := range issues {
		summary = append(summary, got{i.Rule, i.Procedure, i.Message, i.Severity})
	}
	assert.Equal(t, []got{
		{checks.NullDereferenceName, "deref", "p is nil when accessing n", tt.SeverityError},
		{checks.DoubleDisposeName, "closeTwice", "r is closed more than once", tt.SeverityError},
		{checks.ConstantConditionName, "always", "condition q == null is always false", tt.SeverityWarning},
		{checks.NullDereferenceName, "literal", "p is nil when accessing n", tt.SeverityError},
	}, summary)

	for _, i := range issues {
		assert.Equal(t, "source.go", i.Filename)
		assert.Positive(t, i.Start.Line)
		assert.GreaterOrEqual(t, i.End.Offset, i.Start.Offset)
	}
	assert.Equal(t, "found in function literal literal.func1", issues[3].Note)
}

func TestEngineLiteralNote(t *testing.T) {
	t.Parallel()

	src := `package main

type T struct{ n int }

func outer() {
	f := func() int {
		s := []int{}
		q := &T{}
		if q == nil {
			return 0
		}
		return s[0]
	}
	_ = f
}
`
	engine := NewEngine(nil, symbolic.DefaultOptions(), nil)
	issues, err := engine.RunSource(context.Background(), []byte(src))
	require.NoError(t, err)
	require.Len(t, issues, 2)

	assert.Equal(t, checks.ConstantConditionName, issues[0].Rule)
	assert.Equal(t, checks.EmptyCollectionName, issues[1].Rule)
	for _, i := range issues {
		assert.Equal(t, "outer", i.Procedure)
		assert.Equal(t, "found in function literal outer.func1", i.Note, i.Rule)
	}
}

func TestEngineRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	filename := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(filename, []byte(nilDerefSource), 0o644))

	engine := NewEngine(nil, symbolic.DefaultOptions(), nil)
	issues, err := engine.Run(context.Background(), filename)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, filename, issues[0].Filename)
	assert.Equal(t, 7, issues[0].Start.Line)

	engine.IgnorePath(dir)
	issues, err = engine.Run(context.Background(), filename)
	require.NoError(t, err)
	assert.Empty(t, issues)

	_, err = NewEngine(nil, symbolic.DefaultOptions(), nil).Run(context.Background(), filepath.Join(dir, "missing.go"))
	assert.Error(t, err)
}

func TestEngineCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(nil, symbolic.DefaultOptions(), nil)
	_, err := engine.RunSource(ctx, []byte(mixedSource))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadSourceCode(t *testing.T) {
	t.Parallel()

	testFile := filepath.Join(t.TempDir(), "test.go")
	content := "package main\n\nfunc main() {\n\tprintln(\"Hello, World!\")\n}"
	require.NoError(t, os.WriteFile(testFile, []byte(content), 0o644))

	sourceCode, err := ReadSourceCode(testFile)
	require.NoError(t, err)
	assert.Len(t, sourceCode.Lines, 5)
	assert.Equal(t, "package main", sourceCode.Lines[0])
}
