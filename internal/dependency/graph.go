// internal/dependency/graph.go
package dependency

import (
	"sort"
	"sync"

	"conductor/internal/api"
)

// NodeID is the unique identifier for a node inside a dependency graph. It is
// the service name.
type NodeID string

// Node represents a service together with its outgoing dependency edges.
//
// Required edges must form a Directed Acyclic Graph; Validate enforces this.
// Optional edges (Prefers) may form cycles, which are only reported.
type Node struct {
	ID       NodeID
	Priority int
	Requires []NodeID
	Prefers  []NodeID
}

// Edge is a single dependency edge as exposed by Snapshot.
type Edge struct {
	From     NodeID
	To       NodeID
	Required bool
}

// Graph answers dependency queries and computes startup orders. It is safe
// for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds (or replaces) a node in the graph.
func (g *Graph) AddNode(n Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nodes == nil {
		g.nodes = make(map[NodeID]*Node)
	}
	// Copy to avoid external mutations
	copied := n
	copied.Requires = append([]NodeID(nil), n.Requires...)
	copied.Prefers = append([]NodeID(nil), n.Prefers...)
	g.nodes[n.ID] = &copied
}

// Get returns a copy of the stored node and whether it exists.
func (g *Graph) Get(id NodeID) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the immediate required dependencies of the given node.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[id]; ok {
		return append([]NodeID(nil), n.Requires...)
	}
	return nil
}

// OptionalDependencies returns the immediate optional dependencies of the given node.
func (g *Graph) OptionalDependencies(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[id]; ok {
		return append([]NodeID(nil), n.Prefers...)
	}
	return nil
}

// Dependents returns, sorted by ID, all nodes that directly require the given node.
func (g *Graph) Dependents(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(id)
}

func (g *Graph) dependentsLocked(id NodeID) []NodeID {
	var res []NodeID
	for _, n := range g.nodes {
		for _, dep := range n.Requires {
			if dep == id {
				res = append(res, n.ID)
				break
			}
		}
	}
	sortIDs(res)
	return res
}

// TransitiveDependents returns every node that directly or indirectly requires
// the given node, ordered so that each node appears before anything it
// requires. Stopping in this order never leaves a running service without a
// required dependency.
func (g *Graph) TransitiveDependents(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := map[NodeID]bool{}
	queue := []NodeID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependentsLocked(cur) {
			if !seen[dep] && dep != id {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	order, err := g.kahnLocked(seen)
	if err != nil {
		// Cycles are rejected by Validate; fall back to a stable order.
		res := make([]NodeID, 0, len(seen))
		for n := range seen {
			res = append(res, n)
		}
		sortIDs(res)
		return res
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Validate checks that every required dependency exists and that required
// edges are acyclic. A missing target yields *api.NotFoundError, a cycle
// *api.CyclicDependencyError naming every member.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if err := g.checkMissingLocked(); err != nil {
		return err
	}
	if cycle := g.findCycleLocked(requiredEdges); cycle != nil {
		return &api.CyclicDependencyError{Cycle: cycle}
	}
	return nil
}

// OptionalCycles returns cycles that exist only because of optional edges.
// They are never enforced; callers log them as warnings.
func (g *Graph) OptionalCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findAllCyclesLocked(allEdges)
}

// FullStartupOrder returns every node in an order where each node follows all
// of its required dependencies. Among nodes that are ready at the same time,
// lower Priority comes first, then lexical ID.
func (g *Graph) FullStartupOrder() ([]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if err := g.checkMissingLocked(); err != nil {
		return nil, err
	}
	return g.kahnLocked(nil)
}

// StartupOrder returns the transitive required closure of id, ordered for
// startup. The node itself is always last.
func (g *Graph) StartupOrder(id NodeID) ([]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil, api.NewServiceNotFoundError(string(id))
	}

	closure := map[NodeID]bool{}
	var visit func(NodeID) error
	visit = func(n NodeID) error {
		if closure[n] {
			return nil
		}
		node, ok := g.nodes[n]
		if !ok {
			return api.NewServiceNotFoundError(string(n))
		}
		closure[n] = true
		for _, dep := range node.Requires {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(id); err != nil {
		return nil, err
	}
	return g.kahnLocked(closure)
}

// Snapshot returns the adjacency list of the graph keyed by node.
func (g *Graph) Snapshot() map[NodeID][]Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[NodeID][]Edge, len(g.nodes))
	for id, n := range g.nodes {
		edges := make([]Edge, 0, len(n.Requires)+len(n.Prefers))
		for _, dep := range n.Requires {
			edges = append(edges, Edge{From: id, To: dep, Required: true})
		}
		for _, dep := range n.Prefers {
			edges = append(edges, Edge{From: id, To: dep, Required: false})
		}
		out[id] = edges
	}
	return out
}

func (g *Graph) checkMissingLocked() error {
	for _, id := range g.sortedIDsLocked() {
		for _, dep := range g.nodes[id].Requires {
			if _, ok := g.nodes[dep]; !ok {
				return api.NewServiceNotFoundError(string(dep))
			}
		}
	}
	return nil
}

// kahnLocked runs Kahn's algorithm over required edges. When subset is non-nil
// only those nodes (and edges between them) are considered.
func (g *Graph) kahnLocked(subset map[NodeID]bool) ([]NodeID, error) {
	include := func(id NodeID) bool {
		_, exists := g.nodes[id]
		return exists && (subset == nil || subset[id])
	}

	inDegree := map[NodeID]int{}
	dependents := map[NodeID][]NodeID{}
	for id, n := range g.nodes {
		if !include(id) {
			continue
		}
		inDegree[id] += 0
		for _, dep := range n.Requires {
			if !include(dep) {
				continue
			}
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []NodeID
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]NodeID, 0, len(inDegree))
	for len(ready) > 0 {
		g.sortByPriorityLocked(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, d := range dependents[next] {
			inDegree[d]--
			if inDegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(inDegree) {
		if cycle := g.findCycleLocked(requiredEdges); cycle != nil {
			return nil, &api.CyclicDependencyError{Cycle: cycle}
		}
		return nil, &api.CyclicDependencyError{}
	}
	return order, nil
}

func (g *Graph) sortByPriorityLocked(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := g.nodes[ids[i]].Priority, g.nodes[ids[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return ids[i] < ids[j]
	})
}

type edgeSelector func(n *Node) []NodeID

func requiredEdges(n *Node) []NodeID { return n.Requires }

func allEdges(n *Node) []NodeID {
	out := make([]NodeID, 0, len(n.Requires)+len(n.Prefers))
	out = append(out, n.Requires...)
	return append(out, n.Prefers...)
}

const (
	white = iota
	gray
	black
)

// findCycleLocked returns the first cycle found by a depth-first search with
// three-colour marking, as [a, b, ..., a], or nil.
func (g *Graph) findCycleLocked(edges edgeSelector) []string {
	cycles := g.searchCyclesLocked(edges, true)
	if len(cycles) == 0 {
		return nil
	}
	return cycles[0]
}

func (g *Graph) findAllCyclesLocked(edges edgeSelector) [][]string {
	return g.searchCyclesLocked(edges, false)
}

func (g *Graph) searchCyclesLocked(edges edgeSelector, firstOnly bool) [][]string {
	color := make(map[NodeID]int, len(g.nodes))
	var stack []NodeID
	var cycles [][]string

	var visit func(id NodeID) bool
	visit = func(id NodeID) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range edges(g.nodes[id]) {
			if _, ok := g.nodes[dep]; !ok {
				continue
			}
			switch color[dep] {
			case gray:
				cycles = append(cycles, cyclePath(stack, dep))
				if firstOnly {
					return true
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.sortedIDsLocked() {
		if color[id] == white && visit(id) {
			break
		}
	}
	return cycles
}

// cyclePath extracts the cycle closed by a back-edge to target.
func cyclePath(stack []NodeID, target NodeID) []string {
	start := 0
	for i, id := range stack {
		if id == target {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, id := range stack[start:] {
		path = append(path, string(id))
	}
	return append(path, string(target))
}

func (g *Graph) sortedIDsLocked() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sortIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// Strings converts a slice of NodeIDs to plain strings.
func Strings(ids []NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
