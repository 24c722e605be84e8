package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/x3drouter/internal/ir"
)

// CycleWarning represents a cycle in the scene's route graph.
//
// Cycles are warnings, not errors: routing loops are legal and the engine
// breaks them at run time. A loop that converges (equal values are not
// re-sent) settles within the frame; one that does not is cut by the
// per-frame delivery limit.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["A", "B", "A"]
	Routes  []string `json:"routes"`  // Routes that make up the cycle
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on a scene's routes.
//
// The graph is node-level: an edge A → B exists when some route goes from a
// field of A to a field of B. Any event a node receives may cause it to
// emit, so this over-approximates the field-level graph.
//
// The algorithm:
//  1. Build DEF → DEF graph from the routes
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle warning
//
// Warnings are ordered by the first DEF name of each cycle.
func AnalyzeCycles(spec *ir.SceneSpec) []CycleWarning {
	if spec == nil || len(spec.Routes) == 0 {
		return []CycleWarning{}
	}

	graph := buildRouteGraph(spec.Routes)
	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph, spec.Routes))
		}
	}

	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// routeGraph maps DEF → DEFs its routes deliver to, sorted and deduplicated.
type routeGraph map[string][]string

func buildRouteGraph(routes []ir.RouteDecl) routeGraph {
	graph := make(routeGraph)

	for _, r := range routes {
		// Ensure both nodes exist in the graph
		if graph[r.ToNode] == nil {
			graph[r.ToNode] = []string{}
		}
		graph[r.FromNode] = append(graph[r.FromNode], r.ToNode)
	}

	for def, next := range graph {
		slices.Sort(next)
		graph[def] = slices.Compact(next)
	}

	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph routeGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of DEF names sorted
// ascending. Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph routeGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph routeGraph, routes []ir.RouteDecl) CycleWarning {
	members := make(map[string]bool, len(scc))
	for _, def := range scc {
		members[def] = true
	}
	var involved []string
	for _, r := range routes {
		if members[r.FromNode] && members[r.ToNode] {
			involved = append(involved, r.String())
		}
	}

	if len(scc) == 1 {
		def := scc[0]
		return CycleWarning{
			Path:    []string{def, def},
			Routes:  involved,
			Message: fmt.Sprintf("Node routes to itself: %s → %s", def, def),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Routes:  involved,
		Message: fmt.Sprintf("Route cycle detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph routeGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		// Prefer an unvisited member; fall back to closing the loop.
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && !visited[neighbor] {
				next = neighbor
				break
			}
		}
		if next == "" && slices.Contains(graph[current], start) {
			next = start
		}

		if next == "" {
			break
		}

		path = append(path, next)

		if next == start {
			break
		}

		current = next
	}

	return path
}
