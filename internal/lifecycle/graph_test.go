package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type docState string

const (
	docDraft     docState = "DRAFT"
	docReview    docState = "REVIEW"
	docPublished docState = "PUBLISHED"
	docRejected  docState = "REJECTED"
)

func docGraph(t *testing.T) *Graph[docState] {
	t.Helper()
	g, err := NewGraph(map[docState][]docState{
		docDraft:     {docReview},
		docReview:    {docPublished, docDraft, docRejected},
		docPublished: {},
		docRejected:  {},
	}, []docState{docPublished, docRejected})
	require.NoError(t, err)
	return g
}

func TestNewGraphRejectsUndeclaredSuccessor(t *testing.T) {
	_, err := NewGraph(map[docState][]docState{
		docDraft: {docReview},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not declared")
}

func TestNewGraphRejectsUndeclaredTerminal(t *testing.T) {
	_, err := NewGraph(map[docState][]docState{
		docDraft: {},
	}, []docState{docPublished})
	require.Error(t, err)
}

func TestNewGraphRejectsTerminalWithSuccessors(t *testing.T) {
	_, err := NewGraph(map[docState][]docState{
		docDraft:     {},
		docPublished: {docDraft},
	}, []docState{docPublished})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has successors")
}

func TestGraphCanTransition(t *testing.T) {
	g := docGraph(t)

	assert.True(t, g.CanTransition(docDraft, docReview))
	assert.True(t, g.CanTransition(docReview, docDraft))
	assert.False(t, g.CanTransition(docDraft, docPublished))
	assert.False(t, g.CanTransition(docPublished, docDraft))
}

func TestGraphTerminal(t *testing.T) {
	g := docGraph(t)

	assert.True(t, g.Terminal(docPublished))
	assert.True(t, g.Terminal(docRejected))
	assert.False(t, g.Terminal(docDraft))
}

func TestGraphAllowedCopies(t *testing.T) {
	g := docGraph(t)

	allowed := g.Allowed(docReview)
	require.Len(t, allowed, 3)
	allowed[0] = docState("MUTATED")
	assert.True(t, g.CanTransition(docReview, docPublished))
}

func TestGraphDeclared(t *testing.T) {
	g := docGraph(t)

	assert.True(t, g.Declared(docDraft))
	assert.False(t, g.Declared(docState("NOPE")))
}

func TestMustGraphPanicsOnMalformedDefinition(t *testing.T) {
	assert.Panics(t, func() {
		MustGraph(map[docState][]docState{docDraft: {docReview}}, nil)
	})
}
