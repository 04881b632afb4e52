package lifecycle

import (
	"errors"
	"fmt"
)

// ErrCascadeDepth is returned when hook-triggered transitions nest deeper
// than MaxCascadeDepth within a single originating unit of work.
var ErrCascadeDepth = errors.New("lifecycle: cascade depth exceeded")

// InvalidTransitionError reports a requested target that is not a legal
// successor of the entity's current state.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition %s from %q to %q", e.Entity, e.From, e.To)
}

// TerminalStateError reports a transition attempt on an entity that has
// already reached a terminal state.
type TerminalStateError struct {
	Entity string
	State  string
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("%s already terminal (%s)", e.Entity, e.State)
}
