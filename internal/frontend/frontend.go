// Package frontend turns Go source into the graphs explored by package
// symbolic. Basic blocks come from golang.org/x/tools/go/cfg, types and
// constants from go/types, and cyclomatic complexity from gocyclo.
package frontend

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"

	"github.com/fzipp/gocyclo"
	"golang.org/x/tools/go/ast/astutil"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/semantic"
	"github.com/gnolang/flowsym/internal/analysis/symbolic"
)

// Procedure is a function ready for exploration.
type Procedure struct {
	Name    string
	Decl    *ast.FuncDecl
	Graph   *cfg.Graph
	Context *symbolic.ProcedureContext
}

// File is a type-checked source file and its procedures.
type File struct {
	Filename   string
	Fset       *token.FileSet
	AST        *ast.File
	Info       *types.Info
	Model      *semantic.GoModel
	Procedures []*Procedure
	// TypeErrors are the type checker complaints. Analysis still runs
	// with whatever information could be recovered.
	TypeErrors []error
}

// Lookup returns the procedure with the given name.
func (f *File) Lookup(name string) (*Procedure, bool) {
	for _, p := range f.Procedures {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Enclosing returns the procedure whose declaration spans line.
func (f *File) Enclosing(line int) (*Procedure, bool) {
	tf := f.Fset.File(f.AST.Pos())
	if tf == nil || line < 1 || line > tf.LineCount() {
		return nil, false
	}
	pos := tf.LineStart(line)
	path, _ := astutil.PathEnclosingInterval(f.AST, pos, pos)
	for _, n := range path {
		fn, ok := n.(*ast.FuncDecl)
		if !ok {
			continue
		}
		for _, p := range f.Procedures {
			if p.Decl == fn {
				return p, true
			}
		}
	}
	return nil, false
}

// NewInfo allocates the maps the front end reads.
func NewInfo() *types.Info {
	return &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
		Scopes:     make(map[ast.Node]*types.Scope),
	}
}

// ParseSource parses and type-checks a single file. src follows the
// conventions of parser.ParseFile: when nil, filename is read. Imports are
// resolved from source; unresolved imports degrade type information but are
// not fatal.
func ParseSource(filename string, src any) (*File, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("error parsing file: %w", err)
	}

	info := NewInfo()
	var typeErrs []error
	conf := types.Config{
		Importer: importer.ForCompiler(fset, "source", nil),
		Error:    func(err error) { typeErrs = append(typeErrs, err) },
	}
	// errors are collected through conf.Error
	_, _ = conf.Check(f.Name.Name, fset, []*ast.File{f}, info)

	file, err := FromAST(fset, f, info, filename)
	if err != nil {
		return nil, err
	}
	file.TypeErrors = typeErrs
	return file, nil
}

// FromAST builds the procedures of an already type-checked file.
func FromAST(fset *token.FileSet, f *ast.File, info *types.Info, filename string) (*File, error) {
	model := semantic.NewGoModel(info)
	file := &File{
		Filename: filename,
		Fset:     fset,
		AST:      f,
		Info:     info,
		Model:    model,
	}

	complexity := make(map[int]int)
	for _, stat := range gocyclo.AnalyzeASTFile(f, fset, nil) {
		complexity[stat.Pos.Offset] = stat.Complexity
	}
	generated := ast.IsGenerated(f)

	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		name := FuncName(fn)
		g, err := BuildFunc(name, fn.Body, info, model)
		if err != nil {
			return nil, fmt.Errorf("building graph of %s: %w", name, err)
		}
		file.Procedures = append(file.Procedures, &Procedure{
			Name:  name,
			Decl:  fn,
			Graph: g,
			Context: &symbolic.ProcedureContext{
				Name:       name,
				Filename:   filename,
				Generated:  generated,
				Complexity: complexity[fset.Position(fn.Pos()).Offset],
				Semantics:  model,
			},
		})
	}
	return file, nil
}

// FuncName renders fn the way gocyclo does: "F", "T.M" or "(*T).M".
func FuncName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	return recvString(fn.Recv.List[0].Type) + "." + fn.Name.Name
}

func recvString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "(*" + recvString(t.X) + ")"
	case *ast.IndexExpr:
		return recvString(t.X)
	case *ast.IndexListExpr:
		return recvString(t.X)
	case *ast.ParenExpr:
		return recvString(t.X)
	}
	return "BADRECV"
}
