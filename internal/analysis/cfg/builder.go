package cfg

import (
	"fmt"
	"go/constant"
	"go/token"
)

// ids is shared between a builder and the builders of its nested graphs so
// that operation and symbol IDs stay unique within one procedure.
type ids struct {
	op     int
	symbol int
}

// Builder assembles a Graph. Blocks keep their creation order; the exit
// block is always moved last.
type Builder struct {
	name     string
	ids      *ids
	entry    *Block
	exit     *Block
	blocks   []*Block
	captured []Symbol
	nested   []*Graph
	err      error
}

// NewBuilder starts a graph with its entry and exit blocks.
func NewBuilder(name string) *Builder {
	b := &Builder{name: name, ids: &ids{}}
	b.entry = &Block{Kind: BlockEntry}
	b.exit = &Block{Kind: BlockExit}
	b.blocks = []*Block{b.entry}
	return b
}

// NestedBuilder starts a graph for a lambda declared in b's procedure.
func (b *Builder) NestedBuilder(name string) *Builder {
	n := NewBuilder(name)
	n.ids = b.ids
	return n
}

func (b *Builder) Entry() *Block { return b.entry }
func (b *Builder) Exit() *Block  { return b.exit }

// Block appends a new body block.
func (b *Builder) Block() *Block {
	blk := &Block{Kind: BlockBody}
	b.blocks = append(b.blocks, blk)
	return blk
}

// Add appends top-level operations to blk.
func (b *Builder) Add(blk *Block, ops ...*Operation) *Builder {
	blk.Operations = append(blk.Operations, ops...)
	return b
}

// SetCondition sets the trailing branch condition of blk.
func (b *Builder) SetCondition(blk *Block, cond *Operation) *Builder {
	blk.Condition = cond
	return b
}

// SetRegion sets the enclosing region of blk.
func (b *Builder) SetRegion(blk *Block, kind RegionKind, index int) *Builder {
	blk.Region = Region{Kind: kind, Index: index}
	return b
}

// Edge connects from to to.
func (b *Builder) Edge(from, to *Block, kind BranchKind) *Builder {
	if from == nil || to == nil {
		b.fail(fmt.Errorf("%w: nil edge endpoint", ErrMalformedGraph))
		return b
	}
	if from.Kind == BlockExit {
		b.fail(fmt.Errorf("%w: edge leaving exit block", ErrMalformedGraph))
		return b
	}
	e := &Edge{From: from, To: to, Kind: kind}
	from.Succs = append(from.Succs, e)
	to.Preds = append(to.Preds, e)
	return b
}

// Branch adds the then/else edges of a conditional block.
func (b *Builder) Branch(from, then, els *Block) *Builder {
	return b.Edge(from, then, Then).Edge(from, els, Else)
}

// Capture declares symbols of the enclosing procedure used by this graph.
func (b *Builder) Capture(syms ...Symbol) *Builder {
	b.captured = append(b.captured, syms...)
	return b
}

// Build validates and freezes the graph.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	blocks := append(append([]*Block{}, b.blocks...), b.exit)
	for i, blk := range blocks {
		blk.Index = i
		hasBranch := false
		for _, e := range blk.Succs {
			if e.Kind == Then || e.Kind == Else {
				hasBranch = true
			}
		}
		if hasBranch && blk.Condition == nil {
			return nil, fmt.Errorf("%w: %s has then/else edges without a condition", ErrMalformedGraph, blk)
		}
	}
	return &Graph{
		Name:         b.name,
		Blocks:       blocks,
		Captured:     b.captured,
		NestedGraphs: b.nested,
	}, nil
}

// MustBuild is Build for tests and fixtures.
func (b *Builder) MustBuild() *Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Symbol declares a new local symbol.
func (b *Builder) Symbol(name string) Symbol {
	b.ids.symbol++
	return Symbol{Name: name, ID: b.ids.symbol}
}

func (b *Builder) op(kind OpKind) *Operation {
	b.ids.op++
	return &Operation{ID: b.ids.op, Kind: kind, Nested: -1}
}

// At sets the source position of op and returns it.
func At(op *Operation, pos token.Pos) *Operation {
	op.Pos = pos
	return op
}

func (b *Builder) Null() *Operation {
	return b.op(OpLiteral)
}

func (b *Builder) Literal(v constant.Value) *Operation {
	op := b.op(OpLiteral)
	op.Value = v
	return op
}

func (b *Builder) Bool(v bool) *Operation  { return b.Literal(constant.MakeBool(v)) }
func (b *Builder) Int(v int64) *Operation  { return b.Literal(constant.MakeInt64(v)) }
func (b *Builder) Str(v string) *Operation { return b.Literal(constant.MakeString(v)) }

func (b *Builder) Ref(sym Symbol) *Operation {
	op := b.op(OpLocalRef)
	op.Symbol = sym
	return op
}

// Assign stores value into sym. A nil value assigns an unknown value.
func (b *Builder) Assign(sym Symbol, value *Operation) *Operation {
	op := b.op(OpAssign)
	op.Symbol = sym
	if value != nil {
		op.Children = []*Operation{value}
	}
	return op
}

func (b *Builder) Convert(x *Operation) *Operation {
	op := b.op(OpConversion)
	op.Children = []*Operation{x}
	return op
}

func (b *Builder) Member(instance *Operation, name string) *Operation {
	op := b.op(OpMemberAccess)
	op.Instance = instance
	op.Member = name
	return op
}

// Invoke calls name on instance; a nil instance is a static call.
func (b *Builder) Invoke(instance *Operation, name string, args ...*Operation) *Operation {
	op := b.op(OpInvocation)
	op.Instance = instance
	op.Member = name
	op.Children = args
	return op
}

func (b *Builder) New(typeName string, args ...*Operation) *Operation {
	op := b.op(OpObjectCreation)
	op.Member = typeName
	op.Children = args
	return op
}

func (b *Builder) Binary(operator Operator, left, right *Operation) *Operation {
	op := b.op(OpBinary)
	op.Operator = operator
	op.Children = []*Operation{left, right}
	return op
}

func (b *Builder) Eq(left, right *Operation) *Operation    { return b.Binary(Equal, left, right) }
func (b *Builder) NotEq(left, right *Operation) *Operation { return b.Binary(NotEqual, left, right) }

func (b *Builder) Not(x *Operation) *Operation {
	op := b.op(OpUnary)
	op.Operator = Not
	op.Children = []*Operation{x}
	return op
}

func (b *Builder) IsNull(x *Operation) *Operation {
	op := b.op(OpIsNull)
	op.Children = []*Operation{x}
	return op
}

// Lambda attaches nested as an anonymous function of this graph.
func (b *Builder) Lambda(nested *Graph) *Operation {
	op := b.op(OpLambda)
	op.Nested = len(b.nested)
	b.nested = append(b.nested, nested)
	return op
}

func (b *Builder) Range(collection *Operation) *Operation {
	op := b.op(OpRange)
	op.Instance = collection
	return op
}

func (b *Builder) Return(x *Operation) *Operation {
	op := b.op(OpReturn)
	if x != nil {
		op.Children = []*Operation{x}
	}
	return op
}

func (b *Builder) Throw(x *Operation) *Operation {
	op := b.op(OpThrow)
	if x != nil {
		op.Children = []*Operation{x}
	}
	return op
}

func (b *Builder) Other(children ...*Operation) *Operation {
	op := b.op(OpOther)
	op.Children = children
	return op
}
