package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is a log-derived in-memory store: Current reads the newest
// appended record.
type memStore struct {
	logs map[string][]*Record[docState]
}

func newMemStore() *memStore {
	return &memStore{logs: make(map[string][]*Record[docState])}
}

func (s *memStore) Current(_ context.Context, entityID string) (docState, bool, error) {
	recs := s.logs[entityID]
	if len(recs) == 0 {
		return "", false, nil
	}
	return recs[len(recs)-1].State, true, nil
}

func (s *memStore) Apply(_ context.Context, entityID string, rec *Record[docState]) error {
	s.logs[entityID] = append(s.logs[entityID], rec)
	return nil
}

func newDocManager(t *testing.T, store Store[docState], hooks map[docState]Hook[docState]) *Manager[docState] {
	t.Helper()
	m, err := NewManager("document", docGraph(t), store, hooks, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestManagerBootstrapTransition(t *testing.T) {
	store := newMemStore()
	m := newDocManager(t, store, nil)

	rec, err := m.TransitionTo(context.Background(), "doc-1", docDraft, Context{Cause: "created"})
	require.NoError(t, err)
	assert.Equal(t, docDraft, rec.State)
	assert.Equal(t, "created", rec.Cause)
	assert.NotEmpty(t, rec.ID)

	current, ok, err := m.CurrentState(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, docDraft, current)
}

func TestManagerRejectsIllegalTransition(t *testing.T) {
	store := newMemStore()
	m := newDocManager(t, store, nil)

	_, err := m.TransitionTo(context.Background(), "doc-1", docDraft, Context{})
	require.NoError(t, err)

	_, err = m.TransitionTo(context.Background(), "doc-1", docPublished, Context{})
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "DRAFT", invalid.From)
	assert.Equal(t, "PUBLISHED", invalid.To)

	// The rejected attempt must not leave a record behind.
	assert.Len(t, store.logs["doc-1"], 1)
}

func TestManagerTerminalStateIsFinal(t *testing.T) {
	store := newMemStore()
	m := newDocManager(t, store, nil)

	ctx := context.Background()
	_, err := m.TransitionTo(ctx, "doc-1", docDraft, Context{})
	require.NoError(t, err)
	_, err = m.TransitionTo(ctx, "doc-1", docReview, Context{})
	require.NoError(t, err)
	_, err = m.TransitionTo(ctx, "doc-1", docPublished, Context{})
	require.NoError(t, err)

	_, err = m.TransitionTo(ctx, "doc-1", docDraft, Context{})
	var terminal *TerminalStateError
	require.ErrorAs(t, err, &terminal)
	assert.Equal(t, "PUBLISHED", terminal.State)

	// Force does not bypass terminality either.
	_, err = m.ForceTransitionTo(ctx, "doc-1", docDraft, Context{})
	require.ErrorAs(t, err, &terminal)
}

func TestManagerForceBypassesSuccessorCheck(t *testing.T) {
	store := newMemStore()
	m := newDocManager(t, store, nil)

	ctx := context.Background()
	_, err := m.TransitionTo(ctx, "doc-1", docDraft, Context{})
	require.NoError(t, err)

	rec, err := m.ForceTransitionTo(ctx, "doc-1", docRejected, Context{Cause: "pulled"})
	require.NoError(t, err)
	assert.Equal(t, docRejected, rec.State)
}

func TestManagerCanTransitionTo(t *testing.T) {
	store := newMemStore()
	m := newDocManager(t, store, nil)

	ctx := context.Background()

	// Any state is reachable before the first transition.
	ok, err := m.CanTransitionTo(ctx, "doc-1", docPublished)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.TransitionTo(ctx, "doc-1", docDraft, Context{})
	require.NoError(t, err)

	ok, err = m.CanTransitionTo(ctx, "doc-1", docReview)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CanTransitionTo(ctx, "doc-1", docPublished)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerHookRunsAndCanCascade(t *testing.T) {
	store := newMemStore()
	var m *Manager[docState]

	hooks := map[docState]Hook[docState]{
		docReview: {
			Next: []docState{docPublished},
			Run: func(ctx context.Context, entityID string, tc Context) error {
				_, err := m.TransitionTo(ctx, entityID, docPublished, Context{Cause: "auto_publish"})
				return err
			},
		},
	}
	m = newDocManager(t, store, hooks)

	ctx := context.Background()
	_, err := m.TransitionTo(ctx, "doc-1", docDraft, Context{})
	require.NoError(t, err)
	_, err = m.TransitionTo(ctx, "doc-1", docReview, Context{})
	require.NoError(t, err)

	current, ok, err := m.CurrentState(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, docPublished, current)

	recs := store.logs["doc-1"]
	require.Len(t, recs, 3)
	assert.Equal(t, "auto_publish", recs[2].Cause)
}

func TestManagerHookErrorPropagates(t *testing.T) {
	store := newMemStore()
	hooks := map[docState]Hook[docState]{
		docReview: {
			Run: func(context.Context, string, Context) error {
				return assert.AnError
			},
		},
	}
	m := newDocManager(t, store, hooks)

	ctx := context.Background()
	_, err := m.TransitionTo(ctx, "doc-1", docDraft, Context{})
	require.NoError(t, err)
	_, err = m.TransitionTo(ctx, "doc-1", docReview, Context{})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestManagerCascadeDepthGuard(t *testing.T) {
	store := newMemStore()
	var m *Manager[docState]

	// Review and draft hooks chase each other until the depth guard fires.
	hooks := map[docState]Hook[docState]{
		docDraft: {
			Next: []docState{docReview},
			Run: func(ctx context.Context, entityID string, tc Context) error {
				_, err := m.TransitionTo(ctx, entityID, docReview, tc)
				return err
			},
		},
		docReview: {
			Next: []docState{docDraft},
			Run: func(ctx context.Context, entityID string, tc Context) error {
				_, err := m.TransitionTo(ctx, entityID, docDraft, tc)
				return err
			},
		},
	}
	m = newDocManager(t, store, hooks)

	_, err := m.TransitionTo(context.Background(), "doc-1", docDraft, Context{})
	assert.ErrorIs(t, err, ErrCascadeDepth)
}

func TestNewManagerValidatesHookStates(t *testing.T) {
	store := newMemStore()
	g := docGraph(t)

	_, err := NewManager("document", g, Store[docState](store), map[docState]Hook[docState]{
		docState("NOPE"): {},
	}, zap.NewNop())
	require.Error(t, err)

	_, err = NewManager("document", g, Store[docState](store), map[docState]Hook[docState]{
		docDraft: {Next: []docState{docState("NOPE")}},
	}, zap.NewNop())
	require.Error(t, err)
}
