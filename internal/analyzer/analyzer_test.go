package analyzer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/analysis/analysistest"

	"github.com/gnolang/flowsym/internal/checks"
)

func TestAnalyzer(t *testing.T) {
	t.Parallel()
	analysistest.Run(t, analysistest.TestData(), Analyzer, "a")
}

func TestRunAnalyzer(t *testing.T) {
	t.Parallel()

	issues, err := RunAnalyzer(Analyzer, "./testdata/src/a")
	require.NoError(t, err)
	require.Len(t, issues, 3)

	rules := make([]string, 0, len(issues))
	for _, issue := range issues {
		rules = append(rules, issue.Rule)
		assert.Equal(t, "a.go", filepath.Base(issue.Filename))
		assert.Equal(t, "flowsym", issue.Category)
	}
	assert.Equal(t, []string{
		checks.NullDereferenceName,
		checks.DoubleDisposeName,
		checks.EmptyCollectionName,
	}, rules)
}
