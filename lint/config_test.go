package lint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/flowsym/internal/analysis/symbolic"
	"github.com/gnolang/flowsym/internal/checks"
	"github.com/gnolang/flowsym/internal/types"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "flowsym.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: project
rules:
  double-close:
    severity: info
  constant-condition:
    severity: off
exploration:
  max_steps: 50
  explore_nested: false
`), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "project", config.Name)
	assert.Equal(t, types.SeverityInfo, config.Rules[checks.DoubleDisposeName].Severity)
	assert.Equal(t, types.SeverityOff, config.Rules[checks.ConstantConditionName].Severity)

	want := symbolic.DefaultOptions()
	want.MaxSteps = 50
	want.ExploreNested = false
	if diff := cmp.Diff(want, config.Exploration.Options()); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	engine, err := New(nil, path)
	require.NoError(t, err)
	assert.NotContains(t, engine.Rules(), checks.ConstantConditionName)
	assert.Equal(t, types.SeverityInfo, engine.Severity(checks.DoubleDisposeName))
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("rules:\n  double-close:\n    severity: loud\n"), 0o644))
	_, err = LoadConfig(broken)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	config, err := LoadConfig(empty)
	require.NoError(t, err)
	assert.Empty(t, config.Rules)

	config, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, symbolic.DefaultOptions(), config.Exploration.Options())
}

func TestDefaultConfigRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigurationFile)
	require.NoError(t, WriteConfig(path, DefaultConfig()))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, config.Rules, 4)
	assert.Equal(t, types.SeverityError, config.Rules[checks.NullDereferenceName].Severity)
	assert.Equal(t, types.SeverityWarning, config.Rules[checks.EmptyCollectionName].Severity)
	assert.Equal(t, symbolic.DefaultOptions(), config.Exploration.Options())
}
