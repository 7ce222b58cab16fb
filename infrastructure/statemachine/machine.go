// Package statemachine models the suggestion review lifecycle as a statekit
// statechart.
package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

// MachineID identifies the suggestion lifecycle machine.
const MachineID = "suggestion"

// Context carries the reviewed suggestion through the state machine.
type Context struct {
	Suggestion *suggestion.Suggestion
	History    []Transition
}

// Transition records one applied decision.
type Transition struct {
	From      suggestion.Status
	To        suggestion.Status
	Reviewer  string
	Notes     string
	DecidedAt time.Time
}

// NewContext creates a new machine context.
func NewContext(s *suggestion.Suggestion) *Context {
	return &Context{Suggestion: s}
}

// State IDs as StateID type for statekit.
const (
	statePending  statekit.StateID = statekit.StateID(suggestion.StatusPending)
	stateApproved statekit.StateID = statekit.StateID(suggestion.StatusApproved)
	stateRejected statekit.StateID = statekit.StateID(suggestion.StatusRejected)
)

// Lifecycle events.
const (
	EventApprove statekit.EventType = "APPROVE"
	EventReject  statekit.EventType = "REJECT"
)

// NewLifecycleMachine creates the suggestion statechart: pending moves to
// approved or rejected, both final.
func NewLifecycleMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context](MachineID).
		WithInitial(statePending).
		WithContext(&Context{}).
		WithAction("recordDecision", recordDecision).
		WithGuard("isPending", guardIsPending).
		State(statePending).
			On(EventApprove).Target(stateApproved).Guard("isPending").Do("recordDecision").
			On(EventReject).Target(stateRejected).Guard("isPending").Do("recordDecision").
			Done().
		State(stateApproved).
			Final().
			Done().
		State(stateRejected).
			Final().
			Done().
		Build()
}

// EventForStatus returns the event that moves a suggestion to status.
func EventForStatus(status suggestion.Status) (statekit.EventType, bool) {
	switch status {
	case suggestion.StatusApproved:
		return EventApprove, true
	case suggestion.StatusRejected:
		return EventReject, true
	default:
		return "", false
	}
}

// StatusFromMachine converts the machine state ID to a suggestion status.
func StatusFromMachine(id statekit.StateID) suggestion.Status {
	return suggestion.Status(id)
}
