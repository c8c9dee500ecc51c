// Package engine implements the Terrane reconciliation core: it turns an
// ordered set of resource declarations into a dependency graph, diffs the
// graph against last-known state to produce an execution plan, and applies
// the plan through resource providers with dependency-aware parallelism.
//
// The flow is Graph -> Plan -> Apply -> State:
//
//	decls, _ := parser.Load(ctx, sources)
//	graph, err := engine.NewGraphBuilder().Build(decls)
//	plan, err := engine.NewPlanner(store).Plan(ctx, graph)
//	run, err := engine.NewExecutor(registry, store, opts).Apply(ctx, plan)
//
// Planning-time failures (reference cycles, references to undeclared
// resources) abort before any provider is invoked. Execution-time failures
// are isolated per dependency branch: the failed action's transitive
// dependents are skipped and reported as such, while independent branches
// run to completion.
package engine
