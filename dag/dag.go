package dag

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

var ErrSelfReference = fmt.Errorf("self-references are not allowed")

// Vertex is a single node in a DirectedAcyclicGraph.
type Vertex[T cmp.Ordered] struct {
	// ID is the unique identifier of the node.
	ID T

	InDegree, OutDegree int

	// out holds the targets of outgoing edges in the order the edges were
	// added. Iteration order is part of the contract: TopologicalSort breaks
	// ties by it.
	out []T
	set map[T]struct{}
}

// DirectedAcyclicGraph is a directed graph that refuses edges which would
// introduce a cycle. Vertices and edges keep their insertion order, so all
// traversals are deterministic without relying on the ordering of the IDs
// themselves.
type DirectedAcyclicGraph[T cmp.Ordered] struct {
	vertices map[T]*Vertex[T]
	order    []T
}

// NewDirectedAcyclicGraph creates a new directed acyclic graph.
func NewDirectedAcyclicGraph[T cmp.Ordered]() *DirectedAcyclicGraph[T] {
	return &DirectedAcyclicGraph[T]{
		vertices: make(map[T]*Vertex[T]),
	}
}

// AddVertex adds a new node to the graph.
func (d *DirectedAcyclicGraph[T]) AddVertex(id T) error {
	if _, exists := d.vertices[id]; exists {
		return fmt.Errorf("node %v already exists", id)
	}
	d.vertices[id] = &Vertex[T]{
		ID:  id,
		set: make(map[T]struct{}),
	}
	d.order = append(d.order, id)
	return nil
}

// CycleError reports a cycle as the chain of node IDs that closes it, first
// and last element being the same node.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("the graph contains a cycle: %s", formatCycle(e.Cycle))
}

func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

// AddEdge adds a directed edge between two existing nodes. Adding the same
// edge twice is a no-op. An edge that would make the graph cyclic is rejected
// with an error wrapping a CycleError.
func (d *DirectedAcyclicGraph[T]) AddEdge(from, to T) error {
	fromNode, fromExists := d.vertices[from]
	toNode, toExists := d.vertices[to]
	if !fromExists {
		return fmt.Errorf("node %v does not exist", from)
	}
	if !toExists {
		return fmt.Errorf("node %v does not exist", to)
	}
	if from == to {
		return ErrSelfReference
	}

	if _, exists := fromNode.set[to]; exists {
		return nil
	}

	fromNode.set[to] = struct{}{}
	fromNode.out = append(fromNode.out, to)
	fromNode.OutDegree++
	toNode.InDegree++

	if hasCycle, cycle := d.HasCycle(); hasCycle {
		// Roll back the edge so the graph stays acyclic.
		delete(fromNode.set, to)
		fromNode.out = fromNode.out[:len(fromNode.out)-1]
		fromNode.OutDegree--
		toNode.InDegree--

		return fmt.Errorf("adding an edge from %v to %v would create a cycle: %w", from, to, &CycleError{
			Cycle: cycle,
		})
	}

	return nil
}

// Roots returns the nodes without incoming edges, in insertion order.
func (d *DirectedAcyclicGraph[T]) Roots() []T {
	var roots []T
	for _, id := range d.order {
		if d.vertices[id].InDegree == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// TopologicalSort returns the nodes ordered so that every edge target
// precedes its source, i.e. with edges pointing from dependents to
// dependencies the dependencies come first. Ties resolve by insertion order
// of vertices and edges.
func (d *DirectedAcyclicGraph[T]) TopologicalSort() ([]T, error) {
	if cyclic, nodes := d.HasCycle(); cyclic {
		return nil, &CycleError{
			Cycle: nodes,
		}
	}

	visited := make(map[T]bool)
	order := make([]T, 0, len(d.order))

	var dfs func(T)
	dfs = func(node T) {
		visited[node] = true
		for _, next := range d.vertices[node].out {
			if !visited[next] {
				dfs(next)
			}
		}
		order = append(order, node)
	}

	for _, node := range d.order {
		if !visited[node] {
			dfs(node)
		}
	}

	return order, nil
}

// Vertices returns the node IDs in insertion order.
func (d *DirectedAcyclicGraph[T]) Vertices() []T {
	return slices.Clone(d.order)
}

// OutEdges returns the targets of the outgoing edges of id in the order the
// edges were added, or nil for an unknown node.
func (d *DirectedAcyclicGraph[T]) OutEdges(id T) []T {
	v, ok := d.vertices[id]
	if !ok {
		return nil
	}
	return slices.Clone(v.out)
}

// Vertex returns the vertex for id, if present.
func (d *DirectedAcyclicGraph[T]) Vertex(id T) (*Vertex[T], bool) {
	v, ok := d.vertices[id]
	return v, ok
}

func (d *DirectedAcyclicGraph[T]) Contains(v T) (ok bool) {
	_, ok = d.vertices[v]
	return
}

func (d *DirectedAcyclicGraph[T]) Len() int {
	return len(d.order)
}

// HasCycle reports whether the graph contains a cycle and returns the first
// one found as node IDs formatted with %v, starting and ending at the
// repeated node.
func (d *DirectedAcyclicGraph[T]) HasCycle() (bool, []string) {
	visited := make(map[T]bool)
	onStack := make(map[T]bool)
	var path []string

	var dfs func(T) bool
	dfs = func(node T) bool {
		visited[node] = true
		onStack[node] = true
		path = append(path, fmt.Sprintf("%v", node))

		for _, next := range d.vertices[node].out {
			if !visited[next] {
				if dfs(next) {
					return true
				}
			} else if onStack[next] {
				// Found a cycle, add the closing node to complete it.
				path = append(path, fmt.Sprintf("%v", next))
				return true
			}
		}

		onStack[node] = false
		path = path[:len(path)-1]
		return false
	}

	for _, node := range d.order {
		if !visited[node] {
			path = path[:0]
			if dfs(node) {
				// Trim the path to start from the repeated node.
				start := 0
				for i, v := range path[:len(path)-1] {
					if v == path[len(path)-1] {
						start = i
						break
					}
				}
				return true, slices.Clone(path[start:])
			}
		}
	}

	return false, nil
}

// Reverse converts every edge from → to into to → from. This is useful to
// turn a dependency order into a teardown order.
func (d *DirectedAcyclicGraph[T]) Reverse() (*DirectedAcyclicGraph[T], error) {
	reverse := NewDirectedAcyclicGraph[T]()

	for _, id := range d.order {
		if err := reverse.AddVertex(id); err != nil {
			return nil, err
		}
	}

	for _, id := range d.order {
		for _, to := range d.vertices[id].out {
			if err := reverse.AddEdge(to, id); err != nil {
				return nil, err
			}
		}
	}

	return reverse, nil
}
