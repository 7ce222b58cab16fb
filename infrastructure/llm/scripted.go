package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

// ErrScriptExhausted indicates a ScriptedModel ran out of responses.
var ErrScriptExhausted = errors.New("scripted model has no responses left")

// ScriptedResponse is one canned reply.
type ScriptedResponse struct {
	Output *suggestion.ModelOutput
	Err    error
}

// ScriptedModel replays canned responses in order. It records every request
// and is safe for concurrent use.
type ScriptedModel struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	fallback  *suggestion.ModelOutput
	requests  []suggestion.ModelRequest
}

// NewScriptedModel creates a model replaying responses.
func NewScriptedModel(responses ...ScriptedResponse) *ScriptedModel {
	return &ScriptedModel{responses: responses}
}

// WithFallback answers with out once the script is exhausted.
func (m *ScriptedModel) WithFallback(out suggestion.ModelOutput) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &out
	return m
}

// GenerateStructured implements suggestion.StructuredModel.
func (m *ScriptedModel) GenerateStructured(ctx context.Context, req suggestion.ModelRequest) (*suggestion.ModelOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		if m.fallback == nil {
			return nil, ErrScriptExhausted
		}
		out := *m.fallback
		return &out, nil
	}

	next := m.responses[0]
	m.responses = m.responses[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	if next.Output == nil {
		return nil, nil
	}
	out := *next.Output
	return &out, nil
}

// Requests returns the requests seen so far.
func (m *ScriptedModel) Requests() []suggestion.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]suggestion.ModelRequest(nil), m.requests...)
}

var _ suggestion.StructuredModel = (*ScriptedModel)(nil)
