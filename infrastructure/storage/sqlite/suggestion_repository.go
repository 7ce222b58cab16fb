package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

// SuggestionRepository is a SQLite-backed implementation of
// suggestion.Repository. Suggestions are stored as JSON text.
type SuggestionRepository struct {
	db *sql.DB
}

// NewSuggestionRepository opens the database described by cfg.
func NewSuggestionRepository(cfg Config, opts ...Option) (*SuggestionRepository, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	r := &SuggestionRepository{db: db}
	if cfg.AutoMigrate {
		if err := r.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return r, nil
}

// NewSuggestionRepositoryFromDB creates a repository from an existing
// database connection and ensures the table exists.
func NewSuggestionRepositoryFromDB(db *sql.DB) (*SuggestionRepository, error) {
	r := &SuggestionRepository{db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SuggestionRepository) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS spec_suggestions (
			id TEXT PRIMARY KEY,
			operation_name TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			document TEXT NOT NULL,
			approval TEXT
		);
		CREATE INDEX IF NOT EXISTS spec_suggestions_status_idx ON spec_suggestions(status, created_at);
		CREATE INDEX IF NOT EXISTS spec_suggestions_operation_idx ON spec_suggestions(operation_name, created_at);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Create persists a new suggestion.
func (r *SuggestionRepository) Create(ctx context.Context, s *suggestion.Suggestion) error {
	if s == nil || s.ID == "" {
		return suggestion.ErrInvalidSuggestion
	}

	document, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal suggestion: %w", err)
	}
	var approval sql.NullString
	if s.Approvals != nil {
		b, err := json.Marshal(s.Approvals)
		if err != nil {
			return fmt.Errorf("marshal approval: %w", err)
		}
		approval = sql.NullString{String: string(b), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO spec_suggestions (id, operation_name, status, created_at, document, approval)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.OperationName(), string(s.Status), s.CreatedAt.UnixNano(), string(document), approval)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return suggestion.ErrSuggestionExists
		}
		return wrapError(err)
	}
	return nil
}

// GetByID retrieves a suggestion by ID.
func (r *SuggestionRepository) GetByID(ctx context.Context, id string) (*suggestion.Suggestion, error) {
	var status, document string
	var approval sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT status, document, approval FROM spec_suggestions WHERE id = ?
	`, id).Scan(&status, &document, &approval)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, suggestion.ErrSuggestionNotFound
	}
	if err != nil {
		return nil, wrapError(err)
	}
	return decode(status, document, approval)
}

// UpdateStatus records a decision on a pending suggestion.
func (r *SuggestionRepository) UpdateStatus(ctx context.Context, id string, status suggestion.Status, d suggestion.Decision) error {
	if !status.IsTerminal() {
		return suggestion.ErrInvalidStatus
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}

	approval, err := json.Marshal(suggestion.Approval{
		Status:    status,
		Reviewer:  d.Reviewer,
		Notes:     d.Notes,
		DecidedAt: d.DecidedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal approval: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE spec_suggestions SET status = ?, approval = ?
		WHERE id = ? AND status = ?
	`, string(status), string(approval), id, string(suggestion.StatusPending))
	if err != nil {
		return wrapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return wrapError(err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM spec_suggestions WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return suggestion.ErrSuggestionNotFound
	}
	if err != nil {
		return wrapError(err)
	}
	return fmt.Errorf("%w: %s to %s", suggestion.ErrInvalidStatusTransition, current, status)
}

// List returns suggestions matching the filter, oldest first.
func (r *SuggestionRepository) List(ctx context.Context, filter suggestion.ListFilter) ([]*suggestion.Suggestion, error) {
	query := `SELECT status, document, approval FROM spec_suggestions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.OperationName != "" {
		query += ` AND operation_name = ?`
		args = append(args, filter.OperationName)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer func() { _ = rows.Close() }()

	var results []*suggestion.Suggestion
	for rows.Next() {
		var status, document string
		var approval sql.NullString
		if err := rows.Scan(&status, &document, &approval); err != nil {
			return nil, wrapError(err)
		}
		s, err := decode(status, document, approval)
		if err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err)
	}
	return results, nil
}

// Close closes the database connection.
func (r *SuggestionRepository) Close() error {
	return r.db.Close()
}

func decode(status, document string, approval sql.NullString) (*suggestion.Suggestion, error) {
	var s suggestion.Suggestion
	if err := json.Unmarshal([]byte(document), &s); err != nil {
		return nil, fmt.Errorf("unmarshal suggestion: %w", err)
	}
	s.Status = suggestion.Status(status)
	if approval.Valid && approval.String != "" {
		var a suggestion.Approval
		if err := json.Unmarshal([]byte(approval.String), &a); err != nil {
			return nil, fmt.Errorf("unmarshal approval: %w", err)
		}
		s.Approvals = &a
	}
	return &s, nil
}

func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(suggestion.ErrStorageFailure, err)
}

var _ suggestion.Repository = (*SuggestionRepository)(nil)
