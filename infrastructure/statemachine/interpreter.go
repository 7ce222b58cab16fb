package statemachine

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

// Lifecycle wraps the statekit interpreter for a single suggestion.
type Lifecycle struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewLifecycle starts an interpreter positioned at the suggestion's current
// status. The suggestion is stamped in place by Decide.
func NewLifecycle(machine *statekit.MachineConfig[*Context], s *suggestion.Suggestion) (*Lifecycle, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: suggestion is required", suggestion.ErrInvalidSuggestion)
	}
	if !s.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", suggestion.ErrInvalidStatus, s.Status)
	}

	ctx := NewContext(s)
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	interp.Start()

	l := &Lifecycle{interp: interp, ctx: ctx}
	if s.Status != suggestion.StatusPending {
		if err := l.resumeFrom(s.Status); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Lifecycle) resumeFrom(status suggestion.Status) error {
	snapshot := statekit.Snapshot[*Context]{
		MachineID:    MachineID,
		CurrentState: statekit.StateID(status),
		Context:      l.ctx,
		CreatedAt:    time.Now(),
	}
	if err := l.interp.Restore(snapshot); err != nil {
		return fmt.Errorf("failed to restore lifecycle state: %w", err)
	}
	return nil
}

// Status returns the current lifecycle status.
func (l *Lifecycle) Status() suggestion.Status {
	return StatusFromMachine(l.interp.State().Value)
}

// IsTerminal reports whether no further decision is possible.
func (l *Lifecycle) IsTerminal() bool {
	return l.Status().IsTerminal()
}

// CanDecide reports whether status is a legal next step.
func (l *Lifecycle) CanDecide(status suggestion.Status) bool {
	_, ok := EventForStatus(status)
	return ok && !l.IsTerminal()
}

// Decide moves the suggestion to status and stamps the decision.
// Terminal suggestions fail with ErrInvalidStatusTransition and are left
// untouched.
func (l *Lifecycle) Decide(status suggestion.Status, d suggestion.Decision) error {
	event, ok := EventForStatus(status)
	if !ok {
		return fmt.Errorf("%w: %q", suggestion.ErrInvalidStatus, status)
	}

	from := l.Status()
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s to %s", suggestion.ErrInvalidStatusTransition, from, status)
	}

	l.interp.Send(statekit.Event{
		Type:    event,
		Payload: DecisionPayload{Status: status, Decision: d},
	})

	if l.Status() != status || l.ctx.Suggestion.Status != status {
		return fmt.Errorf("%w: %s to %s", suggestion.ErrInvalidStatusTransition, from, status)
	}
	return nil
}

// History returns the decisions applied through this lifecycle.
func (l *Lifecycle) History() []Transition {
	return append([]Transition(nil), l.ctx.History...)
}

// Stop stops the interpreter.
func (l *Lifecycle) Stop() {
	l.interp.Stop()
}
