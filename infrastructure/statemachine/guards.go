package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

// guardIsPending allows a decision only while the suggestion is pending.
// Guards receive the context by value; with a *Context machine that is the
// pointer itself.
func guardIsPending(ctx *Context, _ statekit.Event) bool {
	if ctx == nil || ctx.Suggestion == nil {
		return false
	}
	return ctx.Suggestion.Status == suggestion.StatusPending
}
