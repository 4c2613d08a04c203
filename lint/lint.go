package lint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/gnolang/flowsym/internal"
	"github.com/gnolang/flowsym/internal/analysis/symbolic"
	"github.com/gnolang/flowsym/internal/analyzer"
	tt "github.com/gnolang/flowsym/internal/types"
	"github.com/gnolang/flowsym/scanner"
)

// DefaultConfigurationFile is looked up in the working directory.
const DefaultConfigurationFile = ".flowsym.yaml"

type LintEngine interface {
	Run(ctx context.Context, filename string) ([]tt.Issue, error)
	RunSource(ctx context.Context, source []byte) ([]tt.Issue, error)
	IgnoreRule(rule string)
	IgnorePath(path string)
}

// New creates an engine configured by the file at configurationPath. An
// empty path, or the default path when the file does not exist, yields the
// default configuration.
func New(logger *zap.Logger, configurationPath string) (*internal.Engine, error) {
	config, err := LoadConfig(configurationPath)
	if err != nil {
		return nil, err
	}
	return internal.NewEngine(logger, config.Exploration.Options(), config.Rules), nil
}

type Processor func(context.Context, LintEngine, string) ([]tt.Issue, error)

func ProcessFile(ctx context.Context, engine LintEngine, filename string) ([]tt.Issue, error) {
	return engine.Run(ctx, filename)
}

func ProcessSource(ctx context.Context, engine LintEngine, source []byte) ([]tt.Issue, error) {
	return engine.RunSource(ctx, source)
}

func ProcessSources(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	sources [][]byte,
) ([]tt.Issue, error) {
	var allIssues []tt.Issue
	for i, source := range sources {
		issues, err := ProcessSource(ctx, engine, source)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing source", zap.Int("source", i), zap.Error(err))
			}
			return nil, err
		}
		allIssues = append(allIssues, issues...)
	}
	return allIssues, nil
}

func ProcessFiles(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	paths []string,
	processor Processor,
) ([]tt.Issue, error) {
	var allIssues []tt.Issue
	for _, path := range paths {
		issues, err := ProcessPath(ctx, logger, engine, path, processor)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing path", zap.String("path", path), zap.Error(err))
			}
			return allIssues, err
		}
		allIssues = append(allIssues, issues...)
	}
	return allIssues, nil
}

// ProcessPath analyzes a file, or every Go file below a directory. Files
// of a directory are processed concurrently; the first failure is returned
// together with the issues of the files that succeeded.
func ProcessPath(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	path string,
	processor Processor,
) ([]tt.Issue, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", path, err)
	}

	if !info.IsDir() {
		if !hasDesiredExtension(path) {
			return []tt.Issue{}, nil
		}
		issues, err := processor(ctx, engine, path)
		if err != nil {
			return []tt.Issue{}, err
		}
		return issues, nil
	}

	files, err := collectFiles(path)
	if err != nil {
		return nil, err
	}

	bar := newProgressBar(len(files), path, os.Stderr)
	defer bar.Finish()

	var (
		mu     sync.Mutex
		issues = []tt.Issue{}
	)
	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for _, filename := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer bar.Add(1)
			fileIssues, err := processor(ctx, engine, filename)
			if err != nil {
				if logger != nil {
					logger.Error("Error processing file", zap.String("file", filename), zap.Error(err))
				}
				return err
			}
			mu.Lock()
			issues = append(issues, fileIssues...)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return issues, ctxErr
	}
	return issues, err
}

// ProcessPackages analyzes the packages matched by patterns the way
// go vet drivers do, with full type information.
func ProcessPackages(engine *internal.Engine, patterns ...string) ([]tt.Issue, error) {
	issues, err := analyzer.RunAnalyzer(analyzer.New(engine), patterns...)
	if err != nil {
		return nil, err
	}
	for i := range issues {
		issues[i].Severity = engine.Severity(issues[i].Rule)
	}
	return issues, nil
}

func collectFiles(root string) ([]string, error) {
	infos, err := scanner.New(".go").Files(root)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(infos))
	for _, info := range infos {
		files = append(files, info.Path)
	}
	return files, nil
}

func hasDesiredExtension(path string) bool {
	return filepath.Ext(path) == ".go"
}

// newProgressBar draws on w only when w is a terminal.
func newProgressBar(total int, description string, w *os.File) *progressbar.ProgressBar {
	var out io.Writer = io.Discard
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		out = w
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// Config represents the overall configuration.
type Config struct {
	Name        string                   `yaml:"name"`
	Rules       map[string]tt.ConfigRule `yaml:"rules"`
	Exploration Exploration              `yaml:"exploration"`
}

// Exploration holds the budgets of one procedure exploration. Zero values
// fall back to the defaults.
type Exploration struct {
	MaxSteps        int   `yaml:"max_steps,omitempty"`
	MaxBlockVisits  int   `yaml:"max_block_visits,omitempty"`
	LoopUnrollBound int   `yaml:"loop_unroll_bound,omitempty"`
	ExploreNested   *bool `yaml:"explore_nested,omitempty"`
}

func (e Exploration) Options() symbolic.Options {
	opts := symbolic.DefaultOptions()
	if e.MaxSteps > 0 {
		opts.MaxSteps = e.MaxSteps
	}
	if e.MaxBlockVisits > 0 {
		opts.MaxBlockVisits = e.MaxBlockVisits
	}
	if e.LoopUnrollBound > 0 {
		opts.LoopUnrollBound = e.LoopUnrollBound
	}
	if e.ExploreNested != nil {
		opts.ExploreNested = *e.ExploreNested
	}
	return opts
}

// DefaultConfig lists every rule with its default severity.
func DefaultConfig() Config {
	engine := internal.NewEngine(nil, symbolic.DefaultOptions(), nil)
	rules := make(map[string]tt.ConfigRule)
	for _, name := range engine.Rules() {
		rules[name] = tt.ConfigRule{Severity: engine.Severity(name)}
	}
	opts := symbolic.DefaultOptions()
	return Config{
		Name:  "flowsym",
		Rules: rules,
		Exploration: Exploration{
			MaxSteps:        opts.MaxSteps,
			MaxBlockVisits:  opts.MaxBlockVisits,
			LoopUnrollBound: opts.LoopUnrollBound,
			ExploreNested:   &opts.ExploreNested,
		},
	}
}

// LoadConfig reads the configuration at path.
func LoadConfig(path string) (Config, error) {
	var config Config
	if path == "" {
		return config, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) && path == DefaultConfigurationFile {
		return config, nil
	}
	if err != nil {
		return config, fmt.Errorf("error opening configuration: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, fmt.Errorf("error parsing configuration %s: %w", path, err)
	}
	return config, nil
}

// WriteConfig writes config to path as YAML.
func WriteConfig(path string, config Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("error marshaling configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing configuration: %w", err)
	}
	return nil
}
