package suggestion

import (
	"context"
	"time"
)

// Repository persists suggestions.
//
// Implementations must reject UpdateStatus on a suggestion that is already
// approved or rejected with ErrInvalidStatusTransition.
type Repository interface {
	// Create persists a new suggestion.
	Create(ctx context.Context, s *Suggestion) error

	// GetByID retrieves a suggestion. Absent suggestions return ErrSuggestionNotFound.
	GetByID(ctx context.Context, id string) (*Suggestion, error)

	// UpdateStatus moves a suggestion to status and records the decision.
	UpdateStatus(ctx context.Context, id string, status Status, d Decision) error

	// List returns suggestions matching the filter ordered by creation time.
	List(ctx context.Context, filter ListFilter) ([]*Suggestion, error)
}

// Decision carries the reviewer's input for a status change.
type Decision struct {
	Reviewer  string
	Notes     string
	DecidedAt time.Time
}

// ListFilter filters suggestion queries. Zero values match everything.
type ListFilter struct {
	// Status filters by suggestion status.
	Status Status

	// OperationName filters by target (or intent) operation name.
	OperationName string
}

// Matches reports whether the suggestion satisfies the filter.
func (f ListFilter) Matches(s *Suggestion) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.OperationName != "" && s.OperationName() != f.OperationName {
		return false
	}
	return true
}

// Writer durably materializes approved suggestions.
type Writer interface {
	// Write stores the suggestion and returns where it was written.
	Write(ctx context.Context, s *Suggestion) (string, error)
}
