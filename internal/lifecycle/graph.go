package lifecycle

import "fmt"

// State is the constraint for entity status enumerations.
type State interface{ ~string }

// Graph is an immutable transition graph for one entity type: a mapping from
// each state to its legal successors plus a terminal subset. Graphs are
// package-level constants and safe for unsynchronized concurrent reads.
type Graph[S State] struct {
	successors map[S][]S
	terminal   map[S]struct{}
}

// NewGraph validates and builds a transition graph. Every successor must be
// declared as a key, and terminal states must have no successors.
func NewGraph[S State](successors map[S][]S, terminal []S) (*Graph[S], error) {
	g := &Graph[S]{
		successors: make(map[S][]S, len(successors)),
		terminal:   make(map[S]struct{}, len(terminal)),
	}
	for _, s := range terminal {
		if _, ok := successors[s]; !ok {
			return nil, fmt.Errorf("terminal state %q is not declared", string(s))
		}
		g.terminal[s] = struct{}{}
	}
	for from, next := range successors {
		if _, ok := g.terminal[from]; ok && len(next) > 0 {
			return nil, fmt.Errorf("terminal state %q has successors", string(from))
		}
		for _, to := range next {
			if _, ok := successors[to]; !ok {
				return nil, fmt.Errorf("state %q reachable from %q is not declared", string(to), string(from))
			}
		}
		g.successors[from] = append([]S(nil), next...)
	}
	return g, nil
}

// MustGraph builds a graph and panics on a malformed definition. Intended for
// package-level graph variables.
func MustGraph[S State](successors map[S][]S, terminal []S) *Graph[S] {
	g, err := NewGraph(successors, terminal)
	if err != nil {
		panic(err)
	}
	return g
}

// CanTransition reports whether to is a legal successor of from.
func (g *Graph[S]) CanTransition(from, to S) bool {
	for _, s := range g.successors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no legal successors.
func (g *Graph[S]) Terminal(s S) bool {
	_, ok := g.terminal[s]
	return ok
}

// Allowed returns the successor set for from.
func (g *Graph[S]) Allowed(from S) []S {
	return append([]S(nil), g.successors[from]...)
}

// Declared reports whether s is a known state of the graph.
func (g *Graph[S]) Declared(s S) bool {
	_, ok := g.successors[s]
	return ok
}
