// Package analyzer exposes the engine as a golang.org/x/tools/go/analysis
// Analyzer, so it can run under go vet style drivers.
package analyzer

import (
	"context"
	"fmt"
	"go/token"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/packages"

	"github.com/gnolang/flowsym/internal"
	"github.com/gnolang/flowsym/internal/analysis/symbolic"
	"github.com/gnolang/flowsym/internal/frontend"
	tt "github.com/gnolang/flowsym/internal/types"
)

const doc = `report defects found by exploring execution paths

The flowsym analyzer explores the paths of every function symbolically and
reports nil dereferences, resources closed twice, accesses to collections
that are always empty and conditions that never change.`

// Analyzer runs every rule with the default budgets.
var Analyzer = New(internal.NewEngine(nil, symbolic.DefaultOptions(), nil))

// New returns an Analyzer backed by engine.
func New(engine *internal.Engine) *analysis.Analyzer {
	return &analysis.Analyzer{
		Name: "flowsym",
		Doc:  doc,
		Run: func(pass *analysis.Pass) (any, error) {
			return nil, run(engine, pass)
		},
	}
}

func run(engine *internal.Engine, pass *analysis.Pass) error {
	for _, f := range pass.Files {
		tf := pass.Fset.File(f.Pos())
		if tf == nil {
			continue
		}
		file, err := frontend.FromAST(pass.Fset, f, pass.TypesInfo, tf.Name())
		if err != nil {
			return err
		}
		issues, err := engine.AnalyzeFile(context.Background(), file)
		if err != nil {
			return err
		}
		for _, issue := range issues {
			pass.Report(analysis.Diagnostic{
				Pos:      offsetPos(tf, issue.Start),
				End:      offsetPos(tf, issue.End),
				Category: issue.Rule,
				Message:  issue.Message,
			})
		}
	}
	return nil
}

func offsetPos(tf *token.File, p token.Position) token.Pos {
	if !p.IsValid() || p.Offset > tf.Size() {
		return token.NoPos
	}
	return tf.Pos(p.Offset)
}

// RunAnalyzer loads the packages matched by patterns and runs a over them
// without a driver.
func RunAnalyzer(a *analysis.Analyzer, patterns ...string) ([]tt.Issue, error) {
	cfg := &packages.Config{
		Mode:  packages.NeedName | packages.NeedFiles | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
		Tests: false,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("error loading packages: %w", err)
	}

	var issues []tt.Issue
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return nil, fmt.Errorf("error loading %s: %w", pkg.PkgPath, pkg.Errors[0])
		}
		var diagnostics []analysis.Diagnostic
		pass := &analysis.Pass{
			Analyzer:  a,
			Fset:      pkg.Fset,
			Files:     pkg.Syntax,
			Pkg:       pkg.Types,
			TypesInfo: pkg.TypesInfo,
			ResultOf:  make(map[*analysis.Analyzer]any),
			Report: func(d analysis.Diagnostic) {
				diagnostics = append(diagnostics, d)
			},
		}
		if _, err := a.Run(pass); err != nil {
			return nil, fmt.Errorf("error analyzing %s: %w", pkg.PkgPath, err)
		}

		for _, d := range diagnostics {
			start := pkg.Fset.Position(d.Pos)
			issues = append(issues, tt.Issue{
				Rule:     d.Category,
				Category: a.Name,
				Filename: start.Filename,
				Start:    start,
				End:      pkg.Fset.Position(d.End),
				Message:  d.Message,
			})
		}
	}
	return issues, nil
}
