package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

// DecisionPayload carries the reviewer input with a lifecycle event.
type DecisionPayload struct {
	Status   suggestion.Status
	Decision suggestion.Decision
}

// recordDecision stamps the suggestion and appends to the history.
// Actions receive a pointer to the context, so **Context here.
func recordDecision(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil || (*ctx).Suggestion == nil {
		return
	}
	payload, ok := event.Payload.(DecisionPayload)
	if !ok {
		return
	}

	c := *ctx
	from := c.Suggestion.Status
	if err := c.Suggestion.Decide(payload.Status, payload.Decision); err != nil {
		return
	}
	c.History = append(c.History, Transition{
		From:      from,
		To:        payload.Status,
		Reviewer:  payload.Decision.Reviewer,
		Notes:     payload.Decision.Notes,
		DecidedAt: payload.Decision.DecidedAt,
	})
}
