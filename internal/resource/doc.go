// Package resource bounds the resources a single operation may consume.
//
// It provides three building blocks:
//
//   - Guard: per-operation accounting of simulated stack frames, loop
//     iterations and auxiliary heap bytes. Exceeding a limit aborts the
//     operation with ErrStackBudgetExceeded so the caller can fall back to a
//     degraded linear scan instead of risking an overflow.
//   - RWLock: a context-aware reader/writer lock. Waiting past the context
//     deadline fails with ErrLockTimeout.
//   - Controller: process-wide limits for cache memory, background workers
//     (compaction) and background block IO.
//
// # Guard usage
//
//	g := resource.NewGuard(limits, resource.AuxBudget(ef, m, layers))
//	if err := g.Enter(frameSearchLayer); err != nil {
//	    return err
//	}
//	defer g.Exit(frameSearchLayer)
//
//	for ... {
//	    if err := g.Tick(ctx); err != nil {
//	        return err
//	    }
//	}
//
// # Nil Safety
//
// All Controller methods handle a nil receiver gracefully; they become no-ops.
package resource
