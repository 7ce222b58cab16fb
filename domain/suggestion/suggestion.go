package suggestion

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/specflow/domain/contract"
	"github.com/felixgeelhaar/specflow/domain/intent"
	"github.com/felixgeelhaar/specflow/domain/operation"
)

// Proposal is the change a suggestion puts forward.
type Proposal struct {
	// Summary is a one-line description of the change.
	Summary string `json:"summary"`

	// Rationale explains why the change is proposed.
	Rationale string `json:"rationale"`

	// ChangeType classifies the change.
	ChangeType ChangeType `json:"changeType"`

	// Kind optionally names the contract kind (e.g. "command", "query").
	Kind string `json:"kind,omitempty"`

	// Spec is a full replacement or variant of the target contract.
	Spec *contract.Spec `json:"spec,omitempty"`

	// Diff is a human-readable change description.
	Diff string `json:"diff,omitempty"`

	// Metadata contains additional information.
	Metadata operation.Metadata `json:"metadata,omitempty"`
}

// Approval records the decision taken on a suggestion.
type Approval struct {
	Status    Status    `json:"status"`
	Reviewer  string    `json:"reviewer,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	DecidedAt time.Time `json:"decidedAt"`
}

// Suggestion is a proposed contract change awaiting or past review.
type Suggestion struct {
	// ID is the unique identifier.
	ID string `json:"id"`

	// Intent is the pattern that led to this suggestion.
	Intent intent.Pattern `json:"intent"`

	// Target is the operation the change applies to.
	Target *operation.Coordinate `json:"target,omitempty"`

	// Proposal is the proposed change.
	Proposal Proposal `json:"proposal"`

	// Confidence indicates how certain we are (0.0-1.0).
	Confidence float64 `json:"confidence"`

	// Priority orders the suggestion for review.
	Priority Priority `json:"priority"`

	// CreatedAt is when the suggestion was generated.
	CreatedAt time.Time `json:"createdAt"`

	// CreatedBy names the generator or actor.
	CreatedBy string `json:"createdBy"`

	// Status is the current lifecycle status.
	Status Status `json:"status"`

	// Evidence preserves provenance from the anomaly onward.
	Evidence []intent.Evidence `json:"evidence"`

	// Tags are free-form labels.
	Tags []string `json:"tags,omitempty"`

	// Approvals records the decision once one is taken.
	Approvals *Approval `json:"approvals,omitempty"`
}

// NewID generates a suggestion identifier.
func NewID() string {
	return uuid.New().String()
}

// OperationName returns the target operation name, falling back to the
// intent's operation.
func (s *Suggestion) OperationName() string {
	if s.Target != nil {
		return s.Target.Name
	}
	return s.Intent.OperationName()
}

// Operation returns the target operation, falling back to the intent's.
func (s *Suggestion) Operation() *operation.Coordinate {
	if s.Target != nil {
		return s.Target
	}
	return s.Intent.Operation
}

// Decide moves a pending suggestion to a terminal status and records the decision.
func (s *Suggestion) Decide(status Status, d Decision) error {
	if !status.IsTerminal() {
		return ErrInvalidStatus
	}
	if s.Status != StatusPending {
		return ErrInvalidStatusTransition
	}
	decidedAt := d.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}
	s.Status = status
	s.Approvals = &Approval{
		Status:    status,
		Reviewer:  d.Reviewer,
		Notes:     d.Notes,
		DecidedAt: decidedAt,
	}
	return nil
}

// Clone returns a deep copy of the suggestion.
func (s *Suggestion) Clone() *Suggestion {
	if s == nil {
		return nil
	}
	out := *s
	out.Intent = *s.Intent.Clone()
	if s.Target != nil {
		t := *s.Target
		out.Target = &t
	}
	out.Proposal.Spec = s.Proposal.Spec.Clone()
	out.Proposal.Metadata = s.Proposal.Metadata.Clone()
	out.Evidence = intent.CloneEvidence(s.Evidence)
	out.Tags = slices.Clone(s.Tags)
	if s.Approvals != nil {
		a := *s.Approvals
		out.Approvals = &a
	}
	return &out
}
