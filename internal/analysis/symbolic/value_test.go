package symbolic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/flowsym/internal/analysis/lattice"
)

func TestSymbolicValue(t *testing.T) {
	t.Parallel()

	v := NewValue()
	assert.False(t, HasFamily[lattice.ObjectConstraint](v))

	nn, ok := v.WithConstraint(lattice.NotNull)
	require.True(t, ok)
	assert.True(t, nn.HasConstraint(lattice.NotNull))
	assert.False(t, v.HasConstraint(lattice.NotNull), "receiver must stay unchanged")

	same, ok := nn.WithConstraint(lattice.NotNull)
	require.True(t, ok)
	assert.Same(t, nn, same)

	_, ok = nn.WithConstraint(lattice.Null)
	assert.False(t, ok, "same family conflict must be infeasible")

	both, ok := nn.WithConstraint(lattice.Empty)
	require.True(t, ok)
	c, ok := ConstraintOf[lattice.CollectionConstraint](both)
	require.True(t, ok)
	assert.Equal(t, lattice.Empty, c)
	assert.Equal(t, "SV{NotNull, Empty}", both.String())
}

func TestSymbolicValueTransitions(t *testing.T) {
	t.Parallel()

	v := ValueOf(lattice.NotNull, lattice.NotDisposed)
	disposed := v.Replace(lattice.Disposed)
	assert.True(t, disposed.HasConstraint(lattice.Disposed))
	assert.True(t, disposed.HasConstraint(lattice.NotNull))
	assert.True(t, v.HasConstraint(lattice.NotDisposed))

	cleared := disposed.WithoutConstraint(lattice.Disposable)
	assert.False(t, HasFamily[lattice.DisposableConstraint](cleared))
	assert.Same(t, cleared, cleared.WithoutConstraint(lattice.Disposable))
}

func TestNilValueIsUnknown(t *testing.T) {
	t.Parallel()

	var v *SymbolicValue
	assert.Equal(t, "?", v.String())
	assert.True(t, v.Constraints().IsEmpty())
	assert.True(t, v.Equal(NewValue()))

	got, ok := v.WithConstraint(lattice.Null)
	require.True(t, ok)
	assert.True(t, got.HasConstraint(lattice.Null))
}
