// Package approval provides the boundary for out-of-band approval requests.
package approval

import (
	"context"
	"errors"
)

// Session identifies the caller on whose behalf approval is requested.
type Session struct {
	ID       string `json:"id"`
	AgentID  string `json:"agentId,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
}

// Request asks an external system for a human decision.
type Request struct {
	SessionID  string         `json:"sessionId"`
	AgentID    string         `json:"agentId,omitempty"`
	TenantID   string         `json:"tenantId,omitempty"`
	ToolName   string         `json:"toolName"`
	ToolCallID string         `json:"toolCallId"`
	ToolArgs   map[string]any `json:"toolArgs,omitempty"`
	Reason     string         `json:"reason"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Requester delivers approval requests. Delivery is fire-and-forget; the
// decision arrives later through a separate call.
type Requester interface {
	RequestApproval(ctx context.Context, req Request) error
}

// RequesterFunc is a function that implements Requester.
type RequesterFunc func(ctx context.Context, req Request) error

// RequestApproval implements Requester.
func (f RequesterFunc) RequestApproval(ctx context.Context, req Request) error {
	return f(ctx, req)
}

var (
	// ErrInvalidRequest indicates the approval request is incomplete.
	ErrInvalidRequest = errors.New("invalid approval request")

	// ErrDeliveryFailed indicates the approval request could not be delivered.
	ErrDeliveryFailed = errors.New("approval request delivery failed")
)

// Validate checks the fields every transport needs.
func (r Request) Validate() error {
	if r.SessionID == "" || r.ToolCallID == "" {
		return ErrInvalidRequest
	}
	return nil
}
