// Package nolint finds suppression directives in Go comments.
//
// Two spellings are recognized:
//
//	//nolint                   every rule
//	//nolint:rule1,rule2       the listed rules
//	//flowsym:ignore rule1     the listed rules, space or comma separated
//
// A directive before the package clause covers the whole file. A trailing
// directive covers the statement it follows. A directive on its own line
// covers the statement or declaration starting on the next line, and only
// its own line when nothing starts there.
package nolint

import (
	"errors"
	"go/ast"
	"go/token"
	"strings"
)

var (
	errNotDirective = errors.New("not a suppression directive")
	errNoRules      = errors.New("no rules after colon")
)

const (
	nolintPrefix = "//nolint"
	ignorePrefix = "//flowsym:ignore"
)

// Manager answers whether a diagnostic is suppressed.
type Manager struct {
	scopes map[string][]scope
}

type scope struct {
	// empty means every rule
	rules     map[string]struct{}
	startLine int
	endLine   int
}

// ParseComments collects the directives of f.
func ParseComments(f *ast.File, fset *token.FileSet) *Manager {
	m := &Manager{scopes: make(map[string][]scope)}
	starts := indexLineStarts(f, fset)
	packageLine := fset.Position(f.Package).Line

	for _, cg := range f.Comments {
		for _, c := range cg.List {
			rules, err := parseDirective(c.Text)
			if err != nil {
				continue
			}
			pos := fset.Position(c.Slash)
			s := scope{rules: rules}
			s.startLine, s.endLine = resolve(fset, f, pos, starts, packageLine)
			m.scopes[pos.Filename] = append(m.scopes[pos.Filename], s)
		}
	}
	return m
}

// parseDirective returns the rules named by text, or an empty set for all.
func parseDirective(text string) (map[string]struct{}, error) {
	var rest string
	var sep func(rune) bool
	switch {
	case strings.HasPrefix(text, ignorePrefix):
		rest = text[len(ignorePrefix):]
		if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
			return nil, errNotDirective
		}
		sep = func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }
	case strings.HasPrefix(text, nolintPrefix):
		rest = text[len(nolintPrefix):]
		if rest == "" {
			break
		}
		if rest[0] != ':' {
			// //nolint followed by an explanation
			if rest[0] == ' ' || rest[0] == '\t' {
				return map[string]struct{}{}, nil
			}
			return nil, errNotDirective
		}
		rest = rest[1:]
		if strings.TrimSpace(rest) == "" {
			return nil, errNoRules
		}
		// stop at the explanation, as in "//nolint:rule // reason"
		if i := strings.Index(rest, "//"); i >= 0 {
			rest = rest[:i]
		}
		sep = func(r rune) bool { return r == ',' }
	default:
		return nil, errNotDirective
	}

	rules := make(map[string]struct{})
	if sep == nil {
		return rules, nil
	}
	for _, name := range strings.FieldsFunc(rest, sep) {
		if name = strings.TrimSpace(name); name != "" {
			rules[name] = struct{}{}
		}
	}
	return rules, nil
}

// resolve returns the line range a directive at pos covers.
func resolve(fset *token.FileSet, f *ast.File, pos token.Position, starts map[int]ast.Node, packageLine int) (int, int) {
	if pos.Line < packageLine {
		return 1, fset.Position(f.End()).Line
	}
	if n, ok := starts[pos.Line]; ok && fset.Position(n.Pos()).Offset < pos.Offset {
		return fset.Position(n.Pos()).Line, fset.Position(n.End()).Line
	}
	if n, ok := starts[pos.Line+1]; ok {
		return pos.Line, fset.Position(n.End()).Line
	}
	return pos.Line, pos.Line
}

// indexLineStarts maps each line to the outermost statement or declaration
// starting on it.
func indexLineStarts(f *ast.File, fset *token.FileSet) map[int]ast.Node {
	starts := make(map[int]ast.Node)
	ast.Inspect(f, func(n ast.Node) bool {
		switch n.(type) {
		case ast.Stmt, ast.Decl:
			line := fset.Position(n.Pos()).Line
			if _, exists := starts[line]; !exists {
				starts[line] = n
			}
		}
		return true
	})
	return starts
}

// IsNolint reports whether rule is suppressed at pos.
func (m *Manager) IsNolint(pos token.Position, rule string) bool {
	if m == nil {
		return false
	}
	for _, s := range m.scopes[pos.Filename] {
		if pos.Line < s.startLine || pos.Line > s.endLine {
			continue
		}
		if len(s.rules) == 0 {
			return true
		}
		if _, ok := s.rules[rule]; ok {
			return true
		}
	}
	return false
}
