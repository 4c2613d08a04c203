// Package internal hosts the analysis engine behind the flowsym command.
//
// Engine owns the rule registry and the configured severities. For each
// file it builds the procedures with package frontend, explores each one
// concurrently with a fresh symbolic.Explorer and a fresh instance of every
// enabled check, and turns the diagnostics into issues. Issues suppressed by
// //nolint or //flowsym:ignore comments are dropped.
//
// Cache keeps results of unchanged files between runs and Watcher re-runs
// the engine when files change.
//
// Usage:
//
//	engine := internal.NewEngine(logger, symbolic.DefaultOptions(), nil)
//	issues, err := engine.Run(ctx, "path/to/file.go")
//	if err != nil {
//	    // handle error
//	}
//	for _, issue := range issues {
//	    fmt.Println(issue)
//	}
package internal
