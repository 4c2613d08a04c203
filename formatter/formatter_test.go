package formatter

import (
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gnolang/flowsym/internal"
	tt "github.com/gnolang/flowsym/internal/types"
)

var derefSource = &internal.SourceCode{
	Lines: []string{
		"package main",
		"",
		"type T struct{ n int }",
		"",
		"func deref() int {",
		"\tvar p *T",
		"\treturn p.n",
		"}",
		"",
		"func spaces() {",
		"    r.Close()",
		"    r.Close()",
		"}",
	},
}

func TestGenerateFormattedIssue(t *testing.T) {
	t.Parallel()

	issues := []tt.Issue{
		{
			Rule:      "nil-dereference",
			Filename:  "test.go",
			Procedure: "deref",
			Start:     token.Position{Line: 7, Column: 9},
			End:       token.Position{Line: 7, Column: 12},
			Message:   "p is nil when accessing n",
			Severity:  tt.SeverityError,
		},
		{
			Rule:     "double-close",
			Filename: "test.go",
			Start:    token.Position{Line: 12, Column: 5},
			End:      token.Position{Line: 12, Column: 14},
			Message:  "r is closed more than once",
			Severity: tt.SeverityWarning,
		},
	}

	expected := `error: nil-dereference
 --> test.go:7:9
  |
7 | return p.n
  |        ~~~
  = p is nil when accessing n
  = in deref
  = help: check the value against nil on every path reaching this use

warning: double-close
  --> test.go:12:5
   |
12 | r.Close()
   | ~~~~~~~~~
   = r is closed more than once
   = help: close the value once, for example with a single deferred Close

`
	assert.Equal(t, expected, GenerateFormattedIssue(issues, derefSource))
}

func TestGenerateFormattedIssueCompact(t *testing.T) {
	t.Parallel()

	issue := tt.Issue{
		Rule:     "constant-condition",
		Filename: "source.go",
		Start:    token.Position{Line: 12, Column: 5},
		End:      token.Position{Line: 12, Column: 6},
		Message:  "condition x is always true",
		Note:     "found in function literal f.func1",
		Severity: tt.SeverityInfo,
	}

	expected := `info: constant-condition
  --> source.go:12:5
   = condition x is always true
   = help: one branch of this condition can never run
Note: found in function literal f.func1

`
	assert.Equal(t, expected, GenerateFormattedIssue([]tt.Issue{issue}, nil))

	// a line past the end of the file falls back too
	short := &internal.SourceCode{Lines: []string{"package main"}}
	assert.Equal(t, expected, GenerateFormattedIssue([]tt.Issue{issue}, short))
}

func TestMultiLineSpan(t *testing.T) {
	t.Parallel()

	issue := tt.Issue{
		Rule:     "custom",
		Filename: "test.go",
		Start:    token.Position{Line: 5, Column: 6},
		End:      token.Position{Line: 8, Column: 2},
		Message:  "spans lines",
		Severity: tt.SeverityError,
	}

	expected := `error: custom
 --> test.go:5:6
  |
5 | func deref() int {
  |      ~~~~~~~~~~~~~
  = spans lines

`
	assert.Equal(t, expected, GenerateFormattedIssue([]tt.Issue{issue}, derefSource))
}

func TestCalculateVisualColumn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		column int
		want   int
	}{
		{"abc", 1, 0},
		{"abc", 3, 2},
		{"\tx", 2, 8},
		{"a\tx", 3, 8},
		{"\t\tx", 3, 16},
		{"abc", -1, 0},
		{"abc", 10, 3},
		{"世x", 4, 2},
		{"é x", 4, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateVisualColumn(tt.line, tt.column), "%q col %d", tt.line, tt.column)
	}
}

func TestLeadingSpace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want string
	}{
		{"    if foo {", "    "},
		{"\tif foo {", "\t"},
		{"\t    x", "\t    "},
		{"x", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, leadingSpace(tt.line))
	}
}
