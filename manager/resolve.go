package manager

import (
	"errors"
	"fmt"

	"plughost.software/plughost/dag"
)

// resolveOrder computes the order Load brings up root and everything it
// transitively depends on: dependencies always precede their dependents,
// ties between independent subtrees resolve by dependency declaration order,
// root comes last.
//
// An unknown dependency name fails with ErrUnresolvedDependency naming it, a
// dependency loop fails with an error carrying the dag.CycleError chain.
// Resolution inspects metadata only and never mutates entry state.
func (m *Manager) resolveOrder(root EntryID) ([]EntryID, error) {
	// The graph is keyed by primary name, so dependencies declared through
	// an alias collapse onto the aliased entry and cycle chains read as
	// plugin names.
	g := dag.NewDirectedAcyclicGraph[string]()
	rootName := m.entries[root].meta.Name
	if err := g.AddVertex(rootName); err != nil {
		return nil, err
	}

	stack := []EntryID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e := m.entries[id]

		for _, depName := range e.meta.Dependencies {
			depID, ok := m.lookup(depName)
			if !ok {
				return nil, fmt.Errorf("%w: plugin %s requires %s", ErrUnresolvedDependency, e.meta.Name, depName)
			}
			dep := m.entries[depID]
			if !g.Contains(dep.meta.Name) {
				if err := g.AddVertex(dep.meta.Name); err != nil {
					return nil, err
				}
				stack = append(stack, depID)
			}
			if err := g.AddEdge(e.meta.Name, dep.meta.Name); err != nil {
				return nil, err
			}
		}
	}

	names, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	order := make([]EntryID, len(names))
	for i, name := range names {
		id, ok := m.byName.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedDependency, name)
		}
		order[i] = id
	}
	return order, nil
}

// isCycle classifies resolver failures caused by dependency loops, including
// the degenerate self-reference.
func isCycle(err error) bool {
	var cerr *dag.CycleError
	return errors.As(err, &cerr) || errors.Is(err, dag.ErrSelfReference)
}
