package internal

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gnolang/flowsym/internal/analysis/symbolic"
	"github.com/gnolang/flowsym/internal/checks"
	"github.com/gnolang/flowsym/internal/frontend"
	"github.com/gnolang/flowsym/internal/nolint"
	"github.com/gnolang/flowsym/internal/trie"
	tt "github.com/gnolang/flowsym/internal/types"
)

// Engine manages the analysis process.
type Engine struct {
	logger       *zap.Logger
	opts         symbolic.Options
	ignoredRules map[string]bool
	ignoredPaths *trie.PathSet
	severities   map[string]tt.Severity
	cache        *Cache
}

// Define the ruleConstructor type
type ruleConstructor func() symbolic.Check

// Define the ruleMap type
type ruleMap map[string]ruleConstructor

// Create a map to hold the mappings of rule names to their constructors
var allRuleConstructors = ruleMap{
	checks.NullDereferenceName:   checks.NewNullDereference,
	checks.DoubleDisposeName:     checks.NewDoubleDispose,
	checks.EmptyCollectionName:   checks.NewEmptyCollection,
	checks.ConstantConditionName: checks.NewConstantCondition,
}

var defaultSeverities = map[string]tt.Severity{
	checks.NullDereferenceName:   tt.SeverityError,
	checks.DoubleDisposeName:     tt.SeverityError,
	checks.EmptyCollectionName:   tt.SeverityWarning,
	checks.ConstantConditionName: tt.SeverityWarning,
}

// NewEngine creates an engine running every known rule with the severities
// of rules applied on top of the defaults.
func NewEngine(logger *zap.Logger, opts symbolic.Options, rules map[string]tt.ConfigRule) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := &Engine{
		logger: logger,
		opts:   opts,
	}
	engine.applyRules(rules)
	return engine
}

func (e *Engine) applyRules(rules map[string]tt.ConfigRule) {
	e.severities = make(map[string]tt.Severity, len(allRuleConstructors))
	for name := range allRuleConstructors {
		e.severities[name] = defaultSeverities[name]
	}

	for key, rule := range rules {
		if _, ok := allRuleConstructors[key]; !ok {
			e.logger.Warn("unknown rule in configuration", zap.String("rule", key))
			continue
		}
		e.severities[key] = rule.Severity
		if rule.Severity == tt.SeverityOff {
			e.IgnoreRule(key)
		}
	}
}

// Rules returns the names of the enabled rules, sorted.
func (e *Engine) Rules() []string {
	var names []string
	for name := range allRuleConstructors {
		if !e.ignoredRules[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Severity returns the configured severity of rule.
func (e *Engine) Severity(rule string) tt.Severity {
	if sev, ok := e.severities[rule]; ok {
		return sev
	}
	return tt.SeverityError
}

func (e *Engine) IgnoreRule(rule string) {
	if e.ignoredRules == nil {
		e.ignoredRules = make(map[string]bool)
	}
	e.ignoredRules[rule] = true
}

// IgnorePath skips files whose path contains path as whole segments.
func (e *Engine) IgnorePath(path string) {
	if e.ignoredPaths == nil {
		e.ignoredPaths = trie.New()
	}
	e.ignoredPaths.Insert(path)
}

// SetCache makes Run reuse the issues of unchanged files.
func (e *Engine) SetCache(c *Cache) {
	e.cache = c
}

func (e *Engine) isIgnoredPath(filename string) bool {
	return e.ignoredPaths.Match(filename)
}

// Run analyzes the given file and returns a slice of Issues.
func (e *Engine) Run(ctx context.Context, filename string) ([]tt.Issue, error) {
	if e.isIgnoredPath(filename) {
		return nil, nil
	}
	if e.cache != nil {
		if issues, ok := e.cache.Get(filename); ok {
			e.logger.Debug("cache hit", zap.String("file", filename))
			return issues, nil
		}
	}

	file, err := frontend.ParseSource(filename, nil)
	if err != nil {
		return nil, fmt.Errorf("error analyzing %s: %w", filename, err)
	}
	for _, terr := range file.TypeErrors {
		e.logger.Debug("type error", zap.String("file", filename), zap.Error(terr))
	}

	issues, err := e.AnalyzeFile(ctx, file)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.Set(filename, issues); err != nil {
			e.logger.Warn("failed to update cache", zap.String("file", filename), zap.Error(err))
		}
	}
	return issues, nil
}

// RunSource analyzes the given source and returns a slice of Issues.
func (e *Engine) RunSource(ctx context.Context, source []byte) ([]tt.Issue, error) {
	file, err := frontend.ParseSource("source.go", source)
	if err != nil {
		return nil, fmt.Errorf("error analyzing content: %w", err)
	}
	return e.AnalyzeFile(ctx, file)
}

// AnalyzeFile explores every procedure of file concurrently. Each procedure
// gets its own explorer and check instances.
func (e *Engine) AnalyzeFile(ctx context.Context, file *frontend.File) ([]tt.Issue, error) {
	suppressions := nolint.ParseComments(file.AST, file.Fset)

	var mu sync.Mutex
	var allIssues []tt.Issue

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, proc := range file.Procedures {
		g.Go(func() error {
			issues, err := e.analyzeProcedure(ctx, file, proc)
			if err != nil {
				return err
			}
			issues = e.filterNolintIssues(suppressions, issues)

			mu.Lock()
			allIssues = append(allIssues, issues...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortIssues(allIssues)
	return allIssues, nil
}

func (e *Engine) analyzeProcedure(ctx context.Context, file *frontend.File, proc *frontend.Procedure) ([]tt.Issue, error) {
	explorer := symbolic.NewExplorer(e.opts, e.logger.With(zap.String("procedure", proc.Name)))
	for _, name := range e.Rules() {
		explorer.AddCheck(allRuleConstructors[name]())
	}

	res, err := explorer.Run(ctx, proc.Graph, proc.Context)
	if err != nil {
		return nil, fmt.Errorf("error exploring %s: %w", proc.Name, err)
	}
	if res.BudgetExceeded {
		e.logger.Debug("exploration budget exceeded",
			zap.String("procedure", proc.Name),
			zap.Int("steps", res.Steps))
	}

	issues := make([]tt.Issue, 0, len(res.Diagnostics))
	for _, d := range res.Diagnostics {
		issues = append(issues, e.toIssue(file, proc, d))
	}
	return issues, nil
}

func (e *Engine) toIssue(file *frontend.File, proc *frontend.Procedure, d symbolic.Diagnostic) tt.Issue {
	start := file.Fset.Position(d.Pos)
	end := start
	if d.Operation != nil && d.Operation.Syntax != nil {
		end = file.Fset.Position(d.Operation.Syntax.End())
	}
	issue := tt.Issue{
		Rule:      d.Rule,
		Category:  "flow",
		Filename:  file.Filename,
		Procedure: proc.Name,
		Message:   d.Message,
		Start:     start,
		End:       end,
		Severity:  e.Severity(d.Rule),
	}
	if d.Graph != nil && d.Graph != proc.Graph {
		issue.Note = fmt.Sprintf("found in function literal %s", d.Graph.Name)
	}
	return issue
}

// filterNolintIssues filters issues based on nolint comments.
func (e *Engine) filterNolintIssues(m *nolint.Manager, issues []tt.Issue) []tt.Issue {
	if m == nil {
		return issues
	}
	return slices.DeleteFunc(issues, func(issue tt.Issue) bool {
		return m.IsNolint(issue.Start, issue.Rule)
	})
}

func sortIssues(issues []tt.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Start.Offset != b.Start.Offset {
			return a.Start.Offset < b.Start.Offset
		}
		return a.Rule < b.Rule
	})
}

// SourceCode stores the content of a source code file.
type SourceCode struct {
	Lines []string
}

// ReadSourceCode reads the content of a file and returns it as a `SourceCode` struct.
func ReadSourceCode(filename string) (*SourceCode, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	return &SourceCode{Lines: lines}, nil
}
