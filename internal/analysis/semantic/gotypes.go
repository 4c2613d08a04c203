package semantic

import (
	"go/ast"
	"go/constant"
	"go/types"
	"sync"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
)

// disposeMethods release a resource when invoked.
var disposeMethods = map[string]bool{
	"Close":   true,
	"Dispose": true,
}

// IsDisposeMethod reports whether name releases the receiver's resource.
func IsDisposeMethod(name string) bool {
	return disposeMethods[name]
}

// GoModel answers queries from go/types information.
type GoModel struct {
	info *types.Info

	mu      sync.RWMutex
	symbols map[cfg.Symbol]types.Object
}

// NewGoModel wraps type-checker output. info must carry Types, Defs, Uses
// and Selections.
func NewGoModel(info *types.Info) *GoModel {
	return &GoModel{
		info:    info,
		symbols: make(map[cfg.Symbol]types.Object),
	}
}

// Bind associates sym with the object it was created from.
func (m *GoModel) Bind(sym cfg.Symbol, obj types.Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols[sym] = obj
}

func (m *GoModel) TypeOf(op *cfg.Operation) Type {
	if op == nil {
		return Unknown
	}
	if op.Kind == cfg.OpLocalRef || op.Kind == cfg.OpAssign {
		return m.SymbolType(op.Symbol)
	}
	expr, ok := op.Syntax.(ast.Expr)
	if !ok || m.info == nil {
		return Unknown
	}
	return Describe(m.info.TypeOf(expr))
}

func (m *GoModel) SymbolType(sym cfg.Symbol) Type {
	m.mu.RLock()
	obj := m.symbols[sym]
	m.mu.RUnlock()
	if obj == nil {
		return Unknown
	}
	return Describe(obj.Type())
}

func (m *GoModel) TargetMember(op *cfg.Operation) (Member, bool) {
	if op == nil || m.info == nil {
		return Member{}, false
	}
	node := op.Syntax
	if call, ok := node.(*ast.CallExpr); ok {
		node = ast.Unparen(call.Fun)
	}
	sel, ok := node.(*ast.SelectorExpr)
	if !ok {
		return Member{}, false
	}
	selection, ok := m.info.Selections[sel]
	if !ok {
		return Member{}, false
	}
	return Member{
		Name:     selection.Obj().Name(),
		Receiver: Describe(selection.Recv()),
	}, true
}

func (m *GoModel) ConstantValue(op *cfg.Operation) (constant.Value, bool) {
	if op == nil || m.info == nil {
		return nil, false
	}
	expr, ok := op.Syntax.(ast.Expr)
	if !ok {
		return nil, false
	}
	tv, ok := m.info.Types[expr]
	if !ok || tv.Value == nil {
		return nil, false
	}
	return tv.Value, true
}

// Describe converts a go/types type into the engine's view of it.
func Describe(t types.Type) Type {
	if t == nil {
		return Unknown
	}
	out := Type{Name: t.String()}
	switch t.Underlying().(type) {
	case *types.Pointer, *types.Interface, *types.Chan, *types.Signature:
		out.Traits |= Nullable
	case *types.Slice, *types.Map:
		out.Traits |= Nullable | Collection
	}
	if hasDisposeMethod(t) {
		out.Traits |= Disposable
	}
	return out
}

func hasDisposeMethod(t types.Type) bool {
	candidates := []types.Type{t}
	if _, isPtr := t.Underlying().(*types.Pointer); !isPtr {
		if _, isIface := t.Underlying().(*types.Interface); !isIface {
			candidates = append(candidates, types.NewPointer(t))
		}
	}
	for _, c := range candidates {
		mset := types.NewMethodSet(c)
		for i := 0; i < mset.Len(); i++ {
			if disposeMethods[mset.At(i).Obj().Name()] {
				return true
			}
		}
	}
	return false
}
