// Package symbolic implements a flow-sensitive symbolic execution engine
// over the graphs of package cfg.
//
// The Explorer walks a graph with a FIFO worklist of (block, state) pairs.
// For every operation of a visited block, in execution order, registered
// checks see the incoming state (PreProcess), the operation's own effect is
// applied, and the checks see the result (PostProcess). Any step may prove
// the path infeasible by returning a nil state, which drops the path.
//
// States are immutable and compared structurally. A (block, state) pair is
// explored at most once per run, states reaching a block repeatedly are
// merged once the loop unroll bound is hit, and two budgets (total steps
// and per-path block visits) guarantee termination.
//
// Basic usage:
//
//	ex := symbolic.NewExplorer(symbolic.DefaultOptions(), logger)
//	ex.AddCheck(checks.NewNullDereference())
//	res, err := ex.Run(ctx, graph, &symbolic.ProcedureContext{Name: "f"})
//	if err != nil {
//		return err
//	}
//	for _, d := range res.Diagnostics {
//		fmt.Println(d.Rule, d.Message)
//	}
package symbolic
