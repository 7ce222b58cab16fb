// Package memory provides in-memory storage implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

// SuggestionRepository is an in-memory implementation of suggestion.Repository.
type SuggestionRepository struct {
	mu          sync.RWMutex
	suggestions map[string]*suggestion.Suggestion
}

// NewSuggestionRepository creates a new in-memory suggestion repository.
func NewSuggestionRepository() *SuggestionRepository {
	return &SuggestionRepository{
		suggestions: make(map[string]*suggestion.Suggestion),
	}
}

// Create persists a new suggestion.
func (r *SuggestionRepository) Create(ctx context.Context, s *suggestion.Suggestion) error {
	if s == nil || s.ID == "" {
		return suggestion.ErrInvalidSuggestion
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.suggestions[s.ID]; exists {
		return suggestion.ErrSuggestionExists
	}
	r.suggestions[s.ID] = s.Clone()
	return nil
}

// GetByID retrieves a suggestion by ID.
func (r *SuggestionRepository) GetByID(ctx context.Context, id string) (*suggestion.Suggestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.suggestions[id]
	if !exists {
		return nil, suggestion.ErrSuggestionNotFound
	}
	return s.Clone(), nil
}

// UpdateStatus records a decision on a pending suggestion.
func (r *SuggestionRepository) UpdateStatus(ctx context.Context, id string, status suggestion.Status, d suggestion.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.suggestions[id]
	if !exists {
		return suggestion.ErrSuggestionNotFound
	}

	updated := s.Clone()
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}
	if err := updated.Decide(status, d); err != nil {
		return err
	}
	r.suggestions[id] = updated
	return nil
}

// List returns suggestions matching the filter, oldest first.
func (r *SuggestionRepository) List(ctx context.Context, filter suggestion.ListFilter) ([]*suggestion.Suggestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*suggestion.Suggestion, 0, len(r.suggestions))
	for _, s := range r.suggestions {
		if filter.Matches(s) {
			results = append(results, s.Clone())
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// Len returns the number of stored suggestions.
func (r *SuggestionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.suggestions)
}

var _ suggestion.Repository = (*SuggestionRepository)(nil)
