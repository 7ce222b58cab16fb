// Package application provides the suggestion orchestration and evolution
// pipeline services.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/specflow/domain/approval"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/infrastructure/logging"
	"github.com/felixgeelhaar/specflow/infrastructure/statemachine"
	"github.com/felixgeelhaar/specflow/infrastructure/telemetry"
)

// ApprovalToolName is the tool name carried on approval requests.
const ApprovalToolName = "specflow.review_suggestion"

var (
	// ErrRepositoryNotConfigured indicates the service has no repository.
	ErrRepositoryNotConfigured = errors.New("suggestion repository not configured")

	// ErrNotApproved indicates materialization of a suggestion that is not approved.
	ErrNotApproved = errors.New("suggestion is not approved")
)

// Outcome is the result of an approval.
type Outcome struct {
	// Suggestion is the approved suggestion with its decision stamped.
	Suggestion *suggestion.Suggestion

	// Location is where the writer materialized it; empty without a writer.
	Location string
}

// EvolutionService owns the suggestion review lifecycle.
type EvolutionService struct {
	repo      suggestion.Repository
	writer    suggestion.Writer
	requester approval.Requester
	machine   *statekit.MachineConfig[*statemachine.Context]
	metrics   telemetry.Metrics
	now       func() time.Time
}

// NewEvolutionService creates a new evolution service.
func NewEvolutionService(repo suggestion.Repository, opts ...ServiceOption) (*EvolutionService, error) {
	if repo == nil {
		return nil, ErrRepositoryNotConfigured
	}

	machine, err := statemachine.NewLifecycleMachine()
	if err != nil {
		return nil, fmt.Errorf("build lifecycle machine: %w", err)
	}

	s := &EvolutionService{
		repo:    repo,
		machine: machine,
		metrics: telemetry.NoopMetricsProvider{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit persists a suggestion. A pending suggestion submitted with a session
// also produces an approval request; reason defaults to the proposal summary.
// Suggestions approved by policy at creation skip the request and are
// materialized immediately when a writer is configured.
func (s *EvolutionService) Submit(ctx context.Context, sug *suggestion.Suggestion, session *approval.Session, reason string) (*suggestion.Suggestion, error) {
	if sug == nil {
		return nil, suggestion.ErrInvalidSuggestion
	}
	if err := s.repo.Create(ctx, sug); err != nil {
		return nil, fmt.Errorf("persist suggestion %s: %w", sug.ID, err)
	}

	logging.Info().
		Add(logging.SuggestionID(sug.ID)).
		Add(logging.OperationName(sug.OperationName())).
		Add(logging.Status(sug.Status)).
		Msg("suggestion submitted")

	switch sug.Status {
	case suggestion.StatusPending:
		if session != nil && s.requester != nil {
			if err := s.requestApproval(ctx, sug, *session, reason); err != nil {
				return nil, err
			}
		}
	case suggestion.StatusApproved:
		if _, err := s.materialize(ctx, sug); err != nil {
			return nil, err
		}
	}
	return sug, nil
}

// RequestApproval issues an approval request for a stored pending suggestion.
func (s *EvolutionService) RequestApproval(ctx context.Context, id string, session approval.Session, reason string) error {
	if s.requester == nil {
		return fmt.Errorf("%w: no approval requester", approval.ErrInvalidRequest)
	}
	sug, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sug.Status != suggestion.StatusPending {
		return fmt.Errorf("%w: suggestion %s is %s", suggestion.ErrInvalidStatusTransition, id, sug.Status)
	}
	return s.requestApproval(ctx, sug, session, reason)
}

func (s *EvolutionService) requestApproval(ctx context.Context, sug *suggestion.Suggestion, session approval.Session, reason string) error {
	if reason == "" {
		reason = sug.Proposal.Summary
	}

	req := approval.Request{
		SessionID:  session.ID,
		AgentID:    session.AgentID,
		TenantID:   session.TenantID,
		ToolName:   ApprovalToolName,
		ToolCallID: sug.ID,
		ToolArgs: map[string]any{
			"suggestionId": sug.ID,
			"operation":    sug.OperationName(),
		},
		Reason: reason,
		Payload: map[string]any{
			"summary":    sug.Proposal.Summary,
			"changeType": string(sug.Proposal.ChangeType),
			"priority":   string(sug.Priority),
			"confidence": sug.Confidence,
		},
	}

	err := s.requester.RequestApproval(ctx, req)
	s.metrics.RecordApprovalRequest(ctx, err == nil)
	if err != nil {
		logging.Warn().
			Add(logging.SuggestionID(sug.ID)).
			Add(logging.ErrorField(err)).
			Msg("approval request failed")
		return fmt.Errorf("request approval for %s: %w", sug.ID, err)
	}
	return nil
}

// Approve records an approval and materializes the suggestion when a writer
// is configured.
func (s *EvolutionService) Approve(ctx context.Context, id, reviewer, notes string) (*Outcome, error) {
	sug, err := s.decide(ctx, id, suggestion.StatusApproved, reviewer, notes)
	if err != nil {
		return nil, err
	}

	location, err := s.materialize(ctx, sug)
	if err != nil {
		return nil, err
	}
	return &Outcome{Suggestion: sug, Location: location}, nil
}

// Reject records a rejection.
func (s *EvolutionService) Reject(ctx context.Context, id, reviewer, notes string) (*suggestion.Suggestion, error) {
	return s.decide(ctx, id, suggestion.StatusRejected, reviewer, notes)
}

// Materialize writes an approved suggestion again, for hosts that decouple
// approval from materialization or retry a failed write.
func (s *EvolutionService) Materialize(ctx context.Context, id string) (string, error) {
	sug, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if sug.Status != suggestion.StatusApproved {
		return "", fmt.Errorf("%w: %s is %s", ErrNotApproved, id, sug.Status)
	}
	return s.materialize(ctx, sug)
}

// List returns suggestions matching the filter.
func (s *EvolutionService) List(ctx context.Context, filter suggestion.ListFilter) ([]*suggestion.Suggestion, error) {
	return s.repo.List(ctx, filter)
}

// Get returns a suggestion by ID.
func (s *EvolutionService) Get(ctx context.Context, id string) (*suggestion.Suggestion, error) {
	return s.repo.GetByID(ctx, id)
}

// decide checks the transition against the lifecycle statechart before the
// repository sees it, then persists the stamped decision.
func (s *EvolutionService) decide(ctx context.Context, id string, status suggestion.Status, reviewer, notes string) (*suggestion.Suggestion, error) {
	sug, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := sug.Status

	lc, err := statemachine.NewLifecycle(s.machine, sug)
	if err != nil {
		return nil, err
	}
	defer lc.Stop()

	d := suggestion.Decision{Reviewer: reviewer, Notes: notes, DecidedAt: s.now().UTC()}
	if err := lc.Decide(status, d); err != nil {
		logging.Warn().
			Add(logging.SuggestionID(id)).
			Add(logging.FromStatus(from)).
			Add(logging.Status(status)).
			Msg("decision rejected by lifecycle")
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, id, status, d); err != nil {
		return nil, err
	}
	s.metrics.RecordDecision(ctx, string(status))

	logging.Info().
		Add(logging.SuggestionID(id)).
		Add(logging.FromStatus(from)).
		Add(logging.Status(status)).
		Add(logging.Reviewer(reviewer)).
		Msg("suggestion decided")
	return sug, nil
}

func (s *EvolutionService) materialize(ctx context.Context, sug *suggestion.Suggestion) (string, error) {
	if s.writer == nil {
		return "", nil
	}
	location, err := s.writer.Write(ctx, sug)
	if err != nil {
		logging.Error().
			Add(logging.SuggestionID(sug.ID)).
			Add(logging.ErrorField(err)).
			Msg("failed to materialize suggestion")
		return "", fmt.Errorf("write suggestion %s: %w", sug.ID, err)
	}
	logging.Info().
		Add(logging.SuggestionID(sug.ID)).
		Add(logging.Location(location)).
		Msg("suggestion materialized")
	return location, nil
}
