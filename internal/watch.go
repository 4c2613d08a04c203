package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	tt "github.com/gnolang/flowsym/internal/types"
	"github.com/gnolang/flowsym/scanner"
)

const defaultDebounce = 100 * time.Millisecond

// ReportFunc receives the issues of a re-analyzed file.
type ReportFunc func(filename string, issues []tt.Issue)

// Watcher re-analyzes Go files when they change.
type Watcher struct {
	engine   *Engine
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	report   ReportFunc
	debounce time.Duration
}

func NewWatcher(engine *Engine, logger *zap.Logger, report ReportFunc) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating watcher: %w", err)
	}
	return &Watcher{
		engine:   engine,
		logger:   logger,
		watcher:  fw,
		report:   report,
		debounce: defaultDebounce,
	}, nil
}

// Add watches every directory under the given roots. Directories the
// scanner skips are not watched; a file root watches its directory.
func (w *Watcher) Add(roots ...string) error {
	for _, root := range roots {
		dirs, err := scanner.New().Dirs(root)
		if err != nil {
			return err
		}
		if len(dirs) == 0 {
			dirs = []string{filepath.Dir(root)}
		}
		for _, dir := range dirs {
			if err := w.watcher.Add(dir); err != nil {
				return fmt.Errorf("error adding directory to watcher: %w", err)
			}
		}
	}
	return nil
}

// Run processes change events until ctx is done. Bursts of writes are
// coalesced and each changed file is analyzed once.
func (w *Watcher) Run(ctx context.Context) error {
	pending := make(map[string]struct{})
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !isSourceChange(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			flush = time.After(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", zap.Error(err))
		case <-flush:
			w.analyze(ctx, pending)
			pending = make(map[string]struct{})
			flush = nil
		}
	}
}

func (w *Watcher) analyze(ctx context.Context, pending map[string]struct{}) {
	files := make([]string, 0, len(pending))
	for f := range pending {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, f := range files {
		issues, err := w.engine.Run(ctx, f)
		if err != nil {
			w.logger.Error("error analyzing changed file", zap.String("file", f), zap.Error(err))
			continue
		}
		w.logger.Info("re-analyzed", zap.String("file", f), zap.Int("issues", len(issues)))
		if w.report != nil {
			w.report(f, issues)
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func isSourceChange(event fsnotify.Event) bool {
	if filepath.Ext(event.Name) != ".go" {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
