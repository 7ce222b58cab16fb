package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

// Pool is the subset of *pgxpool.Pool the repository uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SuggestionRepository is a PostgreSQL-backed implementation of
// suggestion.Repository. The suggestion is stored as a JSONB document with
// status and decision in their own columns so decisions update atomically.
type SuggestionRepository struct {
	pool   Pool
	schema string
}

// NewSuggestionRepository creates a new PostgreSQL suggestion repository.
func NewSuggestionRepository(pool Pool, schema string) *SuggestionRepository {
	if schema == "" {
		schema = "public"
	}
	return &SuggestionRepository{
		pool:   pool,
		schema: schema,
	}
}

// tableName returns the fully qualified table name.
func (r *SuggestionRepository) tableName() string {
	return fmt.Sprintf("%s.spec_suggestions", r.schema)
}

// Migrate creates the table and indexes when missing.
func (r *SuggestionRepository) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, r.schema),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			operation_name TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			document JSONB NOT NULL,
			approval JSONB
		)`, r.tableName()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS spec_suggestions_status_idx ON %s (status, created_at)`, r.tableName()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS spec_suggestions_operation_idx ON %s (operation_name, created_at)`, r.tableName()),
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return r.wrapError(err)
		}
	}
	return nil
}

// Create persists a new suggestion.
func (r *SuggestionRepository) Create(ctx context.Context, s *suggestion.Suggestion) error {
	if s == nil || s.ID == "" {
		return suggestion.ErrInvalidSuggestion
	}

	document, approval, err := encode(s)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, operation_name, status, created_at, document, approval)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.tableName())

	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.OperationName(),
		string(s.Status),
		s.CreatedAt,
		document,
		approval,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return suggestion.ErrSuggestionExists
		}
		return r.wrapError(err)
	}
	return nil
}

// GetByID retrieves a suggestion by ID.
func (r *SuggestionRepository) GetByID(ctx context.Context, id string) (*suggestion.Suggestion, error) {
	query := fmt.Sprintf(`
		SELECT status, document, approval
		FROM %s
		WHERE id = $1
	`, r.tableName())

	var status string
	var document, approval []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&status, &document, &approval)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, suggestion.ErrSuggestionNotFound
		}
		return nil, r.wrapError(err)
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

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, approval = $3
		WHERE id = $1 AND status = $4
	`, r.tableName())

	result, err := r.pool.Exec(ctx, query, id, string(status), approval, string(suggestion.StatusPending))
	if err != nil {
		return r.wrapError(err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Nothing updated: either missing or already decided.
	var current string
	err = r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, r.tableName()), id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return suggestion.ErrSuggestionNotFound
		}
		return r.wrapError(err)
	}
	return fmt.Errorf("%w: %s to %s", suggestion.ErrInvalidStatusTransition, current, status)
}

// List returns suggestions matching the filter, oldest first.
func (r *SuggestionRepository) List(ctx context.Context, filter suggestion.ListFilter) ([]*suggestion.Suggestion, error) {
	query, args := r.buildListQuery(filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, r.wrapError(err)
	}
	defer rows.Close()

	var results []*suggestion.Suggestion
	for rows.Next() {
		var status string
		var document, approval []byte
		if err := rows.Scan(&status, &document, &approval); err != nil {
			return nil, r.wrapError(err)
		}
		s, err := decode(status, document, approval)
		if err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrapError(err)
	}
	return results, nil
}

// buildListQuery constructs the SELECT query for listing suggestions.
func (r *SuggestionRepository) buildListQuery(filter suggestion.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.OperationName != "" {
		args = append(args, filter.OperationName)
		conditions = append(conditions, fmt.Sprintf("operation_name = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT status, document, approval
		FROM %s
		%s
		ORDER BY created_at ASC, id ASC
	`, r.tableName(), where)
	return query, args
}

func encode(s *suggestion.Suggestion) (document, approval []byte, err error) {
	document, err = json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal suggestion: %w", err)
	}
	if s.Approvals != nil {
		approval, err = json.Marshal(s.Approvals)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal approval: %w", err)
		}
	}
	return document, approval, nil
}

// decode rebuilds a suggestion; the status and approval columns win over
// the document copy.
func decode(status string, document, approval []byte) (*suggestion.Suggestion, error) {
	var s suggestion.Suggestion
	if err := json.Unmarshal(document, &s); err != nil {
		return nil, fmt.Errorf("unmarshal suggestion: %w", err)
	}
	s.Status = suggestion.Status(status)
	if len(approval) > 0 {
		var a suggestion.Approval
		if err := json.Unmarshal(approval, &a); err != nil {
			return nil, fmt.Errorf("unmarshal approval: %w", err)
		}
		s.Approvals = &a
	}
	return &s, nil
}

// wrapError wraps database errors with the domain storage error.
func (r *SuggestionRepository) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(suggestion.ErrStorageFailure, err)
}

var _ suggestion.Repository = (*SuggestionRepository)(nil)
