// Package dependency provides the graph used to order service startup and
// shutdown.
//
// Each node is a service; an edge A -> B means A depends on B. Required edges
// must form a DAG and are enforced by Validate, which reports the first cycle
// it finds as an *api.CyclicDependencyError listing every member. Optional
// edges may form cycles; OptionalCycles reports them so they can be logged.
//
// # Ordering
//
// FullStartupOrder and StartupOrder use Kahn's algorithm. When several
// services become ready at once the one with the lower Priority starts first,
// then the lexically smaller name, so the order is deterministic:
//
//	g := dependency.New()
//	g.AddNode(dependency.Node{ID: "a", Requires: []dependency.NodeID{"b"}})
//	g.AddNode(dependency.Node{ID: "b", Requires: []dependency.NodeID{"c"}})
//	g.AddNode(dependency.Node{ID: "c"})
//	order, _ := g.FullStartupOrder() // [c b a]
//
// TransitiveDependents returns the services that must be stopped before a
// given service, in a safe stop order.
package dependency
