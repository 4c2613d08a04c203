// Package checks holds the built-in rule checks plugged into the symbolic
// explorer.
//
// Each check is a symbolic.Check. Checks that aggregate facts across paths
// keep that state on the instance, so a fresh instance must be created for
// every procedure explored concurrently.
package checks

import "github.com/gnolang/flowsym/internal/analysis/symbolic"

// Rule names as they appear in configuration and diagnostics.
const (
	NullDereferenceName   = "nil-dereference"
	DoubleDisposeName     = "double-close"
	EmptyCollectionName   = "empty-collection-access"
	ConstantConditionName = "constant-condition"
)

// notGenerated is the ShouldExecute filter shared by every check.
func notGenerated(proc *symbolic.ProcedureContext) bool {
	return proc == nil || !proc.Generated
}
