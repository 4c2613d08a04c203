package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/flowsym/internal/analysis/symbolic"
	tt "github.com/gnolang/flowsym/internal/types"
)

func TestIsSourceChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "a.go", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "a.go", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "a.go", Op: fsnotify.Remove}, false},
		{fsnotify.Event{Name: "a.txt", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isSourceChange(tt.event), tt.event.String())
	}
}

func TestWatcher(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))

	type report struct {
		file   string
		issues []tt.Issue
	}
	reports := make(chan report, 4)

	engine := NewEngine(nil, symbolic.DefaultOptions(), nil)
	w, err := NewWatcher(engine, nil, func(f string, issues []tt.Issue) {
		reports <- report{f, issues}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	filename := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(filename, []byte(nilDerefSource), 0o644))

	select {
	case r := <-reports:
		assert.Equal(t, filename, r.file)
		assert.Len(t, r.issues, 1)
	case <-time.After(10 * time.Second):
		t.Fatal("no report for the changed file")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
