// Package analytics provides the boundary to the analytics backend holding raw
// operation telemetry.
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/specflow/domain/operation"
)

// Query selects telemetry events.
type Query struct {
	// Operations filters to specific operations (empty means all).
	Operations []operation.Coordinate

	// DateRange bounds event timestamps.
	DateRange DateRange

	// Limit caps the number of rows (0 means backend default).
	Limit int
}

// DateRange is a half-open time window. Zero bounds are unbounded.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Row is one result row keyed by column name.
type Row map[string]any

// Result is a tabular query result.
type Result struct {
	Columns []string
	Rows    []Row
}

// Querier runs parameterized queries against the analytics backend.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*Result, error)
}

// QuerierFunc is a function that implements Querier.
type QuerierFunc func(ctx context.Context, query string, args ...any) (*Result, error)

// Query implements Querier.
func (f QuerierFunc) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	return f(ctx, query, args...)
}

var (
	// ErrQueryFailed indicates the backend rejected or failed a query.
	ErrQueryFailed = errors.New("analytics query failed")
)
