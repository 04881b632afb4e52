package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxCascadeDepth bounds hook-triggered transition chains within one
// originating unit of work.
const MaxCascadeDepth = 8

// Record is an immutable history entry for one state change. Records are
// only ever appended, never updated or deleted.
type Record[S State] struct {
	ID        string
	EntityID  string
	State     S
	Actor     *string
	Cause     string
	Meta      map[string]any
	CreatedAt time.Time
}

// Store resolves and persists an entity's current state. Two backing styles
// exist: pointer-backed stores update a status column and append a history
// row; log-derived stores only append, and Current reads the newest row.
// Either way the latest history record always agrees with Current after a
// successful Apply. Implementations are expected to run inside the caller's
// unit of work and to serialize per-entity access (row lock on Current).
type Store[S State] interface {
	Current(ctx context.Context, entityID string) (S, bool, error)
	Apply(ctx context.Context, entityID string, rec *Record[S]) error
}

// Context carries actor attribution and a free-form cause label through a
// transition and its cascading hooks.
type Context struct {
	Actor *string
	Cause string
	Meta  map[string]any
}

// Hook runs after a transition into its state has been persisted. Run
// executes inside the same unit of work as the transition; an error rolls
// the whole chain back. Next declares the downstream states the hook may
// cascade into, which is validated against the graph at construction.
type Hook[S State] struct {
	Next []S
	Run  func(ctx context.Context, entityID string, tc Context) error
}

// Manager validates guarded transitions for one entity type, persists them
// through a Store, and dispatches per-target hooks.
type Manager[S State] struct {
	entity string
	graph  *Graph[S]
	store  Store[S]
	hooks  map[S]Hook[S]
	logger *zap.Logger
}

// NewManager builds a manager. Hook keys and declared cascade targets must
// be states of the graph.
func NewManager[S State](entity string, graph *Graph[S], store Store[S], hooks map[S]Hook[S], logger *zap.Logger) (*Manager[S], error) {
	for target, hook := range hooks {
		if !graph.Declared(target) {
			return nil, fmt.Errorf("hook registered for unknown state %q", string(target))
		}
		for _, next := range hook.Next {
			if !graph.Declared(next) {
				return nil, fmt.Errorf("hook for %q declares unknown cascade state %q", string(target), string(next))
			}
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager[S]{entity: entity, graph: graph, store: store, hooks: hooks, logger: logger}, nil
}

// Graph returns the manager's transition graph.
func (m *Manager[S]) Graph() *Graph[S] { return m.graph }

// CurrentState resolves the entity's state; ok is false before the first
// transition.
func (m *Manager[S]) CurrentState(ctx context.Context, entityID string) (S, bool, error) {
	return m.store.Current(ctx, entityID)
}

// CanTransitionTo reports whether target is reachable from the entity's
// current state. An entity with no state yet may bootstrap into any state.
func (m *Manager[S]) CanTransitionTo(ctx context.Context, entityID string, target S) (bool, error) {
	current, ok, err := m.store.Current(ctx, entityID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if m.graph.Terminal(current) {
		return false, nil
	}
	return m.graph.CanTransition(current, target), nil
}

// TransitionTo moves the entity to target: it rejects terminal and illegal
// transitions, persists the state change plus its history record through the
// store, runs the hook registered for target, and returns the record. Hooks
// run inside the same unit of work; any failure leaves no partial mutation
// observable once the caller rolls back.
func (m *Manager[S]) TransitionTo(ctx context.Context, entityID string, target S, tc Context) (*Record[S], error) {
	return m.transition(ctx, entityID, target, tc, false)
}

// ForceTransitionTo bypasses the successor check (terminal states still
// reject). Used for out-of-band moves such as order cancellation, where the
// caller enforces its own precondition set.
func (m *Manager[S]) ForceTransitionTo(ctx context.Context, entityID string, target S, tc Context) (*Record[S], error) {
	return m.transition(ctx, entityID, target, tc, true)
}

func (m *Manager[S]) transition(ctx context.Context, entityID string, target S, tc Context, force bool) (*Record[S], error) {
	current, ok, err := m.store.Current(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if ok && m.graph.Terminal(current) {
		return nil, &TerminalStateError{Entity: m.entity, State: string(current)}
	}
	if ok && !force && !m.graph.CanTransition(current, target) {
		return nil, &InvalidTransitionError{Entity: m.entity, From: string(current), To: string(target)}
	}

	rec := &Record[S]{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		State:     target,
		Actor:     tc.Actor,
		Cause:     tc.Cause,
		Meta:      tc.Meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.Apply(ctx, entityID, rec); err != nil {
		return nil, err
	}

	m.logger.Debug("state transition",
		zap.String("entity", m.entity),
		zap.String("entity_id", entityID),
		zap.String("from", string(current)),
		zap.String("to", string(target)),
		zap.String("cause", tc.Cause))

	if hook, found := m.hooks[target]; found && hook.Run != nil {
		depth := cascadeDepth(ctx)
		if depth >= MaxCascadeDepth {
			return nil, ErrCascadeDepth
		}
		if err := hook.Run(withCascadeDepth(ctx, depth+1), entityID, tc); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

type depthKey struct{}

func cascadeDepth(ctx context.Context) int {
	depth, _ := ctx.Value(depthKey{}).(int)
	return depth
}

func withCascadeDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}
