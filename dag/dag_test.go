package dag

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDAGAddVertex(t *testing.T) {
	r := require.New(t)
	d := NewDirectedAcyclicGraph[string]()

	r.NoError(d.AddVertex("A"))
	r.Error(d.AddVertex("A"), "duplicate node ids are forbidden")

	r.True(d.Contains("A"))
	r.False(d.Contains("B"))

	r.Equal(1, d.Len(), "expected 1 node after rejection of the second")

	r.NoError(d.AddVertex("B"))
	r.Equal([]string{"A", "B"}, d.Vertices(), "vertices must keep insertion order")

	v, ok := d.Vertex("A")
	r.True(ok)
	r.Equal("A", v.ID)

	t.Run("roots", func(t *testing.T) {
		r := require.New(t)
		r.Equal([]string{"A", "B"}, d.Roots(), "isolated nodes are all roots")
	})

	t.Run("degrees", func(t *testing.T) {
		r := require.New(t)
		for _, id := range []string{"A", "B"} {
			v, ok := d.Vertex(id)
			r.True(ok)
			r.Zero(v.InDegree, "expected in-degree of %s to be 0", id)
			r.Zero(v.OutDegree, "expected out-degree of %s to be 0", id)
		}
	})
}

func TestDAGAddEdge(t *testing.T) {
	r := require.New(t)
	d := NewDirectedAcyclicGraph[string]()
	r.NoError(d.AddVertex("A"))
	r.NoError(d.AddVertex("B"))
	r.NoError(d.AddEdge("A", "B"))

	r.Error(d.AddEdge("A", "C"), "edges to unknown nodes are forbidden")
	r.Error(d.AddEdge("C", "A"), "edges from unknown nodes are forbidden")
	r.ErrorIs(d.AddEdge("A", "A"), ErrSelfReference)

	t.Run("roots", func(t *testing.T) {
		r := require.New(t)
		r.Equal([]string{"A"}, d.Roots(), "B has an incoming edge and is no root")
	})

	r.Equal([]string{"B"}, d.OutEdges("A"))
	r.Empty(d.OutEdges("B"))
	r.Nil(d.OutEdges("C"), "unknown nodes have no edges")

	t.Run("degrees", func(t *testing.T) {
		r := require.New(t)
		a, _ := d.Vertex("A")
		b, _ := d.Vertex("B")
		r.Equal(1, a.OutDegree)
		r.Equal(0, a.InDegree)
		r.Equal(0, b.OutDegree)
		r.Equal(1, b.InDegree)
	})

	t.Run("duplicate edge is a no-op", func(t *testing.T) {
		r := require.New(t)
		r.NoError(d.AddEdge("A", "B"))
		r.Equal([]string{"B"}, d.OutEdges("A"))
		a, _ := d.Vertex("A")
		r.Equal(1, a.OutDegree)
	})

	t.Run("reverse", func(t *testing.T) {
		r := require.New(t)
		rev, err := d.Reverse()
		r.NoError(err, "error reversing the graph")
		r.Empty(rev.OutEdges("A"))
		r.Equal([]string{"A"}, rev.OutEdges("B"))
	})
}

func TestDAGHasCycle(t *testing.T) {
	r := require.New(t)
	d := NewDirectedAcyclicGraph[string]()
	r.NoError(d.AddVertex("A"))
	r.NoError(d.AddVertex("B"))
	r.NoError(d.AddVertex("C"))

	r.NoError(d.AddEdge("A", "B"))
	r.NoError(d.AddEdge("B", "C"))

	cyclic, _ := d.HasCycle()
	r.False(cyclic, "DAG incorrectly reported a cycle")

	err := d.AddEdge("C", "A")
	r.Error(err, "expected error when creating a cycle, but got nil")

	var cerr *CycleError
	r.True(errors.As(err, &cerr), "expected the edge rejection to wrap a CycleError, got %T", err)
	r.Equal([]string{"A", "B", "C", "A"}, cerr.Cycle)
	r.Contains(cerr.Error(), "A -> B -> C -> A")

	t.Run("rejected edge leaves the graph intact", func(t *testing.T) {
		r := require.New(t)
		r.Empty(d.OutEdges("C"))
		c, _ := d.Vertex("C")
		a, _ := d.Vertex("A")
		r.Equal(0, c.OutDegree)
		r.Equal(0, a.InDegree)

		order, err := d.TopologicalSort()
		r.NoError(err)
		r.Equal([]string{"C", "B", "A"}, order)
	})
}

func TestDAGTopologicalSort(t *testing.T) {
	grid := []struct {
		Nodes string
		Edges string
		Want  string
	}{
		{Nodes: "A,B", Want: "A,B"},
		{Nodes: "A,B", Edges: "A->B", Want: "B,A"},
		{Nodes: "A,B", Edges: "B->A", Want: "A,B"},
		{Nodes: "A,B,C,D,E,F", Edges: "", Want: "A,B,C,D,E,F"},
		{Nodes: "A,B,C,D,E,F", Edges: "C->D", Want: "A,B,D,C,E,F"},
		{Nodes: "A,B,C,D,E,F", Edges: "D->C", Want: "A,B,C,D,E,F"},
		{Nodes: "A,B,C,D,E,F", Edges: "F->A,F->B,B->A", Want: "A,B,C,D,E,F"},
		{Nodes: "F,E,D,C,B,A", Edges: "F->A,F->B,B->A", Want: "A,B,F,E,D,C"},
		{Nodes: "A,B,C,D,E,F", Edges: "B->A,C->A,D->B,D->C,F->E,A->E", Want: "E,A,B,C,D,F"},
	}

	for i, g := range grid {
		t.Run(fmt.Sprintf("[%d] nodes=%s,edges=%s", i, g.Nodes, g.Edges), func(t *testing.T) {
			r := require.New(t)
			d := NewDirectedAcyclicGraph[string]()
			for _, node := range strings.Split(g.Nodes, ",") {
				r.NoError(d.AddVertex(node))
			}

			if g.Edges != "" {
				for _, edge := range strings.Split(g.Edges, ",") {
					tokens := strings.SplitN(edge, "->", 2)
					r.NoError(d.AddEdge(tokens[0], tokens[1]))
				}
			}

			order, err := d.TopologicalSort()
			r.NoError(err, "error sorting the graph")

			r.Equal(strings.Split(g.Want, ","), order,
				"unexpected result from TopologicalSort for nodes=%q edges=%q", g.Nodes, g.Edges)
		})
	}
}

func TestDAGTopologicalSortTieBreakByEdgeOrder(t *testing.T) {
	r := require.New(t)
	d := NewDirectedAcyclicGraph[string]()
	for _, node := range []string{"root", "z", "a"} {
		r.NoError(d.AddVertex(node))
	}

	// The tie between the independent subtrees z and a resolves by the
	// order the edges were added, not by the IDs.
	r.NoError(d.AddEdge("root", "z"))
	r.NoError(d.AddEdge("root", "a"))

	order, err := d.TopologicalSort()
	r.NoError(err)
	r.Equal([]string{"z", "a", "root"}, order)
}
