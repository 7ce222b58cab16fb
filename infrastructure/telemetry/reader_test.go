package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/specflow/domain/analytics"
	"github.com/felixgeelhaar/specflow/domain/operation"
)

type recordedQuery struct {
	query string
	args  []any
}

// scriptedQuerier answers queries in order and records them.
type scriptedQuerier struct {
	results []*analytics.Result
	err     error
	calls   []recordedQuery
}

func (s *scriptedQuerier) Query(_ context.Context, query string, args ...any) (*analytics.Result, error) {
	s.calls = append(s.calls, recordedQuery{query: query, args: args})
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) == 0 {
		return &analytics.Result{}, nil
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r, nil
}

func TestReader_NotConfigured(t *testing.T) {
	t.Parallel()

	r := NewReader(nil)
	_, err := r.ReadSamples(context.Background(), analytics.Query{})
	assert.ErrorIs(t, err, ErrQuerierNotConfigured)

	_, err = r.ReadBaseline(context.Background(), operation.NewCoordinate("a", 1), analytics.DateRange{})
	assert.ErrorIs(t, err, ErrQuerierNotConfigured)
}

func TestReader_InvalidTable(t *testing.T) {
	t.Parallel()

	r := NewReader(&scriptedQuerier{}, WithTable("events; DROP TABLE x"))
	_, err := r.ReadSamples(context.Background(), analytics.Query{})
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestReader_ReadSamples(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	trace := "trace-2"
	q := &scriptedQuerier{results: []*analytics.Result{{
		Rows: []analytics.Row{
			{"operationKey": "search.query", "version": uint32(1), "durationMs": 12.5, "success": true, "timestamp": ts, "metadata": `{"region":"eu"}`},
			{"operationKey": "search.query", "version": "v1", "durationMs": "40", "success": uint8(0), "errorCode": "TIMEOUT", "tenantId": "acme", "traceId": &trace, "timestamp": "2026-03-01 10:01:00"},
			{"operationKey": "search.query", "version": int64(1), "durationMs": int64(8), "success": "true", "timestamp": ts.UnixMilli()},
			{"version": 1, "timestamp": ts},
			{"operationKey": "search.query", "timestamp": ts},
			{"operationKey": "search.query", "version": 1, "timestamp": "yesterday"},
		},
	}}}

	r := NewReader(q, WithTable("analytics.events"), WithDefaultLimit(500))
	samples, err := r.ReadSamples(context.Background(), analytics.Query{
		Operations: []operation.Coordinate{operation.NewCoordinate("search.query", 1)},
		DateRange:  analytics.DateRange{From: ts.Add(-time.Hour), To: ts.Add(time.Hour)},
	})
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, "search.query.v1", samples[0].Operation.Key())
	assert.Equal(t, 12.5, samples[0].DurationMs)
	assert.True(t, samples[0].Success)
	assert.Equal(t, "eu", samples[0].Metadata["region"])

	assert.Equal(t, "search.query.v1@acme", samples[1].Operation.Key())
	assert.False(t, samples[1].Success)
	assert.Equal(t, "TIMEOUT", samples[1].ErrorCode)
	assert.Equal(t, "trace-2", samples[1].TraceID)
	assert.Equal(t, 40.0, samples[1].DurationMs)
	assert.True(t, samples[1].Timestamp.Equal(ts.Add(time.Minute)))

	assert.True(t, samples[2].Timestamp.Equal(ts))

	require.Len(t, q.calls, 1)
	call := q.calls[0]
	assert.Contains(t, call.query, "FROM analytics.events WHERE")
	assert.Contains(t, call.query, "(operation_key = ? AND version = ?)")
	assert.True(t, strings.HasSuffix(call.query, "LIMIT 500"))
	assert.Equal(t, []any{ts.Add(-time.Hour), ts.Add(time.Hour), "search.query", 1}, call.args)
}

func TestReader_ReadSamples_PropagatesErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	r := NewReader(&scriptedQuerier{err: boom})
	_, err := r.ReadSamples(context.Background(), analytics.Query{})
	assert.ErrorIs(t, err, boom)
}

func TestReader_ReadBaseline(t *testing.T) {
	t.Parallel()

	op := operation.NewCoordinate("orders.create", 3).WithTenant("acme")
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("backfills top errors", func(t *testing.T) {
		t.Parallel()

		q := &scriptedQuerier{results: []*analytics.Result{
			{Rows: []analytics.Row{{
				"totalCalls": uint64(200), "successCount": uint64(180), "errorCount": uint64(20),
				"averageLatencyMs": 110.0, "p95LatencyMs": 300.0, "p99LatencyMs": 450.0, "maxLatencyMs": 900.0,
				"windowStart": start, "windowEnd": start.Add(time.Hour),
			}}},
			{Rows: []analytics.Row{
				{"errorCode": "TIMEOUT", "count": uint64(15)},
				{"errorCode": "CONFLICT", "count": uint64(5)},
			}},
		}}

		stats, err := NewReader(q).ReadBaseline(context.Background(), op, analytics.DateRange{From: start})
		require.NoError(t, err)
		require.NotNil(t, stats)

		assert.Equal(t, 200, stats.TotalCalls)
		assert.InDelta(t, 0.1, stats.ErrorRate, 1e-9)
		assert.InDelta(t, 1.0, stats.ErrorRate+stats.SuccessRate, 1e-9)
		assert.Equal(t, 450.0, stats.P99LatencyMs)
		assert.Equal(t, map[string]int{"TIMEOUT": 15, "CONFLICT": 5}, stats.TopErrors)
		assert.True(t, stats.LastSeenAt.Equal(start.Add(time.Hour)))

		require.Len(t, q.calls, 2)
		assert.Contains(t, q.calls[0].query, "tenant_id = ?")
		assert.Contains(t, q.calls[1].query, "LIMIT 5")
	})

	t.Run("no calls yields nil", func(t *testing.T) {
		t.Parallel()

		q := &scriptedQuerier{results: []*analytics.Result{{Rows: []analytics.Row{{"totalCalls": uint64(0)}}}}}
		stats, err := NewReader(q).ReadBaseline(context.Background(), op, analytics.DateRange{})
		require.NoError(t, err)
		assert.Nil(t, stats)
	})

	t.Run("no errors skips breakdown", func(t *testing.T) {
		t.Parallel()

		q := &scriptedQuerier{results: []*analytics.Result{{Rows: []analytics.Row{{
			"totalCalls": 10, "successCount": 10, "errorCount": 0,
		}}}}}
		stats, err := NewReader(q).ReadBaseline(context.Background(), op, analytics.DateRange{})
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Len(t, q.calls, 1)
		assert.Empty(t, stats.TopErrors)
	})
}

func TestReader_ReadBaselines_AllOperations(t *testing.T) {
	t.Parallel()

	q := &scriptedQuerier{results: []*analytics.Result{{Rows: []analytics.Row{
		{"operationKey": "a", "version": 1, "tenantId": "", "totalCalls": 5, "successCount": 5, "errorCount": 0},
		{"operationKey": "b", "version": 2, "tenantId": "acme", "totalCalls": 7, "successCount": 7, "errorCount": 0},
		{"operationKey": "", "version": 2, "totalCalls": 7},
	}}}}

	stats, err := NewReader(q).ReadBaselines(context.Background(), analytics.Query{})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "a.v1", stats[0].Operation.Key())
	assert.Equal(t, "b.v2@acme", stats[1].Operation.Key())
	assert.Contains(t, q.calls[0].query, "GROUP BY operation_key, version, tenant_id")
}

func TestValueCoercion(t *testing.T) {
	t.Parallel()

	v, ok := asVersion("v7")
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = asVersion(1.5)
	assert.False(t, ok)

	b, ok := asBool("0")
	assert.True(t, ok)
	assert.False(t, b)

	ts, ok := asTime(int64(1767225600))
	assert.True(t, ok)
	assert.Equal(t, 2026, ts.Year())

	var nilStr *string
	_, ok = asString(nilStr)
	assert.False(t, ok)

	assert.Nil(t, asMetadata("not json"))
	assert.Equal(t, "x", asMetadata(map[string]string{"k": "x"})["k"])
}

func TestReader_BaselinesSeparateTenants(t *testing.T) {
	t.Parallel()

	op := operation.NewCoordinate("orders.create", 3)

	t.Run("tenant-less baseline excludes tenant rows", func(t *testing.T) {
		t.Parallel()

		q := &scriptedQuerier{results: []*analytics.Result{
			{Rows: []analytics.Row{{"totalCalls": 40, "successCount": 30, "errorCount": 10}}},
			{Rows: []analytics.Row{{"errorCode": "TIMEOUT", "count": 10}}},
		}}
		stats, err := NewReader(q).ReadBaseline(context.Background(), op, analytics.DateRange{})
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, "orders.create.v3", stats.Operation.Key())

		require.Len(t, q.calls, 2)
		for _, call := range q.calls {
			assert.Contains(t, call.query, "(operation_key = ? AND version = ? AND tenant_id = '')")
			assert.Equal(t, []any{"orders.create", 3}, call.args)
		}
	})

	t.Run("requested operations group by tenant", func(t *testing.T) {
		t.Parallel()

		q := &scriptedQuerier{results: []*analytics.Result{{Rows: []analytics.Row{
			{"operationKey": "orders.create", "version": 3, "tenantId": "", "totalCalls": 40, "successCount": 40, "errorCount": 0},
			{"operationKey": "orders.create", "version": 3, "tenantId": "acme", "totalCalls": 900, "successCount": 900, "errorCount": 0},
			{"operationKey": "orders.create", "version": 3, "tenantId": "globex", "totalCalls": 60, "successCount": 60, "errorCount": 0},
		}}}}

		stats, err := NewReader(q).ReadBaselines(context.Background(), analytics.Query{Operations: []operation.Coordinate{op}})
		require.NoError(t, err)
		require.Len(t, stats, 3)

		calls := map[string]int{}
		for _, s := range stats {
			calls[s.Operation.Key()] = s.TotalCalls
		}
		assert.Equal(t, map[string]int{
			"orders.create.v3":        40,
			"orders.create.v3@acme":   900,
			"orders.create.v3@globex": 60,
		}, calls)

		require.Len(t, q.calls, 1)
		assert.Contains(t, q.calls[0].query, "(operation_key = ? AND version = ?)")
		assert.Contains(t, q.calls[0].query, "GROUP BY operation_key, version, tenant_id")
		assert.Equal(t, []any{"orders.create", 3}, q.calls[0].args)
	})
}
