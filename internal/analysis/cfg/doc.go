// # Description
//
// Package cfg defines the immutable Control Flow Graph (CFG) consumed by the symbolic
// execution engine.
//
// ## Control Flow Graph (CFG)
//
// A CFG is a representation, using graph notation, of all paths that might be traversed
// through a procedure during its execution. In a CFG:
//
//   - Each node in the graph represents a basic block (a straight-line piece of code without any jumps).
//   - The directed edges represent jumps in the control flow, tagged with their branch kind
//     (regular, then, else, exception).
//
// Blocks hold operation trees. The engine replays them in execution order, which
// visits every child before its parent.
//
// ## Package Functionality
//
//  1. Graph model: `Graph`, `Block`, `Edge`, `Operation`, `Symbol`, `Region`.
//  2. Use `NewBuilder` to construct a graph programmatically; front ends use the same builder.
//  3. `ExecutionOrder` flattens an operation tree, `PrintDot` renders a graph for GraphViz.
package cfg
