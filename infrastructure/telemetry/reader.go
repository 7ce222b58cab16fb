package telemetry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/specflow/domain/analytics"
	"github.com/felixgeelhaar/specflow/domain/operation"
	"github.com/felixgeelhaar/specflow/domain/usage"
	"github.com/felixgeelhaar/specflow/infrastructure/logging"
)

var (
	// ErrQuerierNotConfigured indicates the reader has no analytics query capability.
	ErrQuerierNotConfigured = errors.New("analytics querier not configured")

	// ErrInvalidTable indicates the events table name is not a plain identifier.
	ErrInvalidTable = errors.New("invalid events table name")
)

// DefaultTable is the default events table.
const DefaultTable = "operation_events"

// topErrorLimit caps the error breakdown attached to a baseline.
const topErrorLimit = 5

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Reader translates windowed analytics queries into samples and baselines.
type Reader struct {
	querier      analytics.Querier
	table        string
	defaultLimit int
	metrics      Metrics
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithTable sets the events table name.
func WithTable(table string) ReaderOption {
	return func(r *Reader) {
		if table != "" {
			r.table = table
		}
	}
}

// WithDefaultLimit caps sample reads when the query sets no limit.
func WithDefaultLimit(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.defaultLimit = n
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) ReaderOption {
	return func(r *Reader) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewReader creates a telemetry reader over the given querier.
func NewReader(querier analytics.Querier, opts ...ReaderOption) *Reader {
	r := &Reader{
		querier: querier,
		table:   DefaultTable,
		metrics: NoopMetricsProvider{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) ready() error {
	if r.querier == nil {
		return ErrQuerierNotConfigured
	}
	if !tablePattern.MatchString(r.table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, r.table)
	}
	return nil
}

// ReadSamples reads raw events and maps them into samples. Rows missing the
// operation key or version, or with an unparseable timestamp, are discarded.
func (r *Reader) ReadSamples(ctx context.Context, q analytics.Query) ([]operation.Sample, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	where, args := whereClause(q.Operations, q.DateRange, false)
	query := fmt.Sprintf(
		"SELECT operation_key AS operationKey, version, duration_ms AS durationMs, success, "+
			"error_code AS errorCode, tenant_id AS tenantId, trace_id AS traceId, metadata, timestamp "+
			"FROM %s%s ORDER BY timestamp ASC", r.table, where)

	limit := q.Limit
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	result, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}

	samples := make([]operation.Sample, 0, len(result.Rows))
	discarded := 0
	for _, row := range result.Rows {
		s, ok := sampleFromRow(row)
		if !ok {
			discarded++
			continue
		}
		samples = append(samples, s)
	}

	if discarded > 0 {
		logging.Debug().
			Add(logging.Component("telemetry")).
			Add(logging.Count("discarded", discarded)).
			Msg("discarded malformed telemetry rows")
	}
	r.metrics.RecordSamplesRead(ctx, len(samples))

	return samples, nil
}

func sampleFromRow(row analytics.Row) (operation.Sample, bool) {
	key, ok := asString(row["operationKey"])
	if !ok || key == "" {
		return operation.Sample{}, false
	}
	version, ok := asVersion(row["version"])
	if !ok {
		return operation.Sample{}, false
	}
	ts, ok := asTime(row["timestamp"])
	if !ok {
		return operation.Sample{}, false
	}

	op := operation.NewCoordinate(key, version)
	if tenant, _ := asString(row["tenantId"]); tenant != "" {
		op = op.WithTenant(tenant)
	}

	s := operation.Sample{
		Operation: op,
		Timestamp: ts.UTC(),
	}
	s.DurationMs, _ = asFloat(row["durationMs"])
	s.Success, _ = asBool(row["success"])
	s.ErrorCode, _ = asString(row["errorCode"])
	s.TraceID, _ = asString(row["traceId"])
	s.Metadata = asMetadata(row["metadata"])
	return s, true
}

// ReadBaseline reads the aggregate stats of one operation over a window. A
// coordinate without a tenant matches only tenant-less rows. It returns nil
// when the operation has no calls in the window.
func (r *Reader) ReadBaseline(ctx context.Context, op operation.Coordinate, window analytics.DateRange) (*usage.Stats, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	where, args := whereClause([]operation.Coordinate{op}, window, true)
	result, err := r.querier.Query(ctx, fmt.Sprintf("SELECT %s FROM %s%s", aggregateColumns, r.table, where), args...)
	if err != nil {
		return nil, fmt.Errorf("read baseline for %s: %w", op, err)
	}
	if len(result.Rows) == 0 {
		return nil, nil
	}

	stats := statsFromAggregate(op, result.Rows[0])
	if stats.TotalCalls == 0 {
		return nil, nil
	}
	if len(stats.TopErrors) == 0 && stats.ErrorCount > 0 {
		if err := r.backfillTopErrors(ctx, &stats, window); err != nil {
			return nil, err
		}
	}
	return &stats, nil
}

// ReadBaselines reads one baseline per operation and tenant in the window,
// keyed like the analyzer groups samples. Requested operations without a
// tenant yield a baseline for each tenant seen.
func (r *Reader) ReadBaselines(ctx context.Context, q analytics.Query) ([]usage.Stats, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	where, args := whereClause(q.Operations, q.DateRange, false)
	query := fmt.Sprintf(
		"SELECT operation_key AS operationKey, version, tenant_id AS tenantId, %s FROM %s%s "+
			"GROUP BY operation_key, version, tenant_id ORDER BY operation_key, version, tenant_id",
		aggregateColumns, r.table, where)
	result, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read baselines: %w", err)
	}

	out := make([]usage.Stats, 0, len(result.Rows))
	for _, row := range result.Rows {
		key, ok := asString(row["operationKey"])
		if !ok || key == "" {
			continue
		}
		version, ok := asVersion(row["version"])
		if !ok {
			continue
		}
		op := operation.NewCoordinate(key, version)
		if tenant, _ := asString(row["tenantId"]); tenant != "" {
			op = op.WithTenant(tenant)
		}

		stats := statsFromAggregate(op, row)
		if stats.TotalCalls == 0 {
			continue
		}
		if len(stats.TopErrors) == 0 && stats.ErrorCount > 0 {
			if err := r.backfillTopErrors(ctx, &stats, q.DateRange); err != nil {
				return nil, err
			}
		}
		out = append(out, stats)
	}
	return out, nil
}

const aggregateColumns = "count() AS totalCalls, avg(duration_ms) AS averageLatencyMs, " +
	"quantile(0.95)(duration_ms) AS p95LatencyMs, quantile(0.99)(duration_ms) AS p99LatencyMs, " +
	"max(duration_ms) AS maxLatencyMs, countIf(success) AS successCount, countIf(NOT success) AS errorCount, " +
	"min(timestamp) AS windowStart, max(timestamp) AS windowEnd"

func statsFromAggregate(op operation.Coordinate, row analytics.Row) usage.Stats {
	stats := usage.Stats{
		Operation: op,
		TopErrors: make(map[string]int),
	}
	stats.TotalCalls, _ = asInt(row["totalCalls"])
	stats.SuccessCount, _ = asInt(row["successCount"])
	stats.ErrorCount, _ = asInt(row["errorCount"])
	stats.AverageLatencyMs, _ = asFloat(row["averageLatencyMs"])
	stats.P95LatencyMs, _ = asFloat(row["p95LatencyMs"])
	stats.P99LatencyMs, _ = asFloat(row["p99LatencyMs"])
	stats.MaxLatencyMs, _ = asFloat(row["maxLatencyMs"])
	stats.WindowStart, _ = asTime(row["windowStart"])
	stats.WindowEnd, _ = asTime(row["windowEnd"])
	stats.LastSeenAt = stats.WindowEnd

	if stats.TotalCalls > 0 {
		if stats.SuccessCount+stats.ErrorCount != stats.TotalCalls {
			stats.SuccessCount = stats.TotalCalls - stats.ErrorCount
		}
		stats.ErrorRate = float64(stats.ErrorCount) / float64(stats.TotalCalls)
		stats.SuccessRate = 1 - stats.ErrorRate
	}

	if m, ok := row["topErrors"].(map[string]any); ok {
		for code, v := range m {
			if n, ok := asInt(v); ok {
				stats.TopErrors[code] = n
			}
		}
	}
	return stats
}

func (r *Reader) backfillTopErrors(ctx context.Context, stats *usage.Stats, window analytics.DateRange) error {
	where, args := whereClause([]operation.Coordinate{stats.Operation}, window, true)
	query := fmt.Sprintf(
		"SELECT error_code AS errorCode, count() AS count FROM %s%s AND NOT success AND error_code != '' "+
			"GROUP BY error_code ORDER BY count DESC LIMIT %d", r.table, where, topErrorLimit)

	result, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("read error breakdown for %s: %w", stats.Operation, err)
	}
	for _, row := range result.Rows {
		code, _ := asString(row["errorCode"])
		n, _ := asInt(row["count"])
		if code != "" && n > 0 {
			stats.TopErrors[code] = n
		}
	}
	return nil
}

// whereClause builds a WHERE clause with positional parameters. The clause
// always contains at least one predicate so callers may append AND terms.
// With exactTenant a tenant-less coordinate matches only rows with an empty
// tenant_id; otherwise it matches every tenant.
func whereClause(ops []operation.Coordinate, window analytics.DateRange, exactTenant bool) (string, []any) {
	preds := []string{"1 = 1"}
	args := make([]any, 0)

	if !window.From.IsZero() {
		preds = append(preds, "timestamp >= ?")
		args = append(args, window.From.UTC())
	}
	if !window.To.IsZero() {
		preds = append(preds, "timestamp < ?")
		args = append(args, window.To.UTC())
	}

	if len(ops) > 0 {
		ors := make([]string, 0, len(ops))
		for _, op := range ops {
			if op.TenantID != "" {
				ors = append(ors, "(operation_key = ? AND version = ? AND tenant_id = ?)")
				args = append(args, op.Name, op.Version, op.TenantID)
				continue
			}
			if exactTenant {
				ors = append(ors, "(operation_key = ? AND version = ? AND tenant_id = '')")
				args = append(args, op.Name, op.Version)
				continue
			}
			ors = append(ors, "(operation_key = ? AND version = ?)")
			args = append(args, op.Name, op.Version)
		}
		preds = append(preds, "("+strings.Join(ors, " OR ")+")")
	}

	return " WHERE " + strings.Join(preds, " AND "), args
}
