package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupTestMetrics(t *testing.T) (*metric.ManualReader, *MetricsProvider) {
	t.Helper()

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	config := DefaultMetricsConfig()
	config.Provider = provider
	mp := NewMetricsProvider(config)
	if mp.Error() != nil {
		t.Fatalf("failed to create metrics provider: %v", mp.Error())
	}
	return reader, mp
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsProvider_Counters(t *testing.T) {
	t.Parallel()

	reader, mp := setupTestMetrics(t)
	ctx := context.Background()

	mp.RecordSamplesRead(ctx, 60)
	mp.RecordSamplesRead(ctx, 40)
	mp.RecordGroupsSkipped(ctx, 2)
	mp.RecordAnomaly(ctx, "error-rate", "high")
	mp.RecordSuggestionGenerated(ctx, "template", "error-spike")
	mp.RecordDecision(ctx, "approved")
	mp.RecordDecision(ctx, "rejected")
	mp.RecordApprovalRequest(ctx, true)

	metrics := collect(t, reader)

	tests := []struct {
		name string
		want int64
	}{
		{"specflow.samples.read", 100},
		{"specflow.groups.skipped", 2},
		{"specflow.anomalies", 1},
		{"specflow.suggestions.generated", 1},
		{"specflow.decisions", 2},
		{"specflow.approval.requests", 1},
	}
	for _, tt := range tests {
		m, ok := metrics[tt.name]
		if !ok {
			t.Errorf("%s metric not found", tt.name)
			continue
		}
		if got := sumOf(t, m); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestMetricsProvider_Durations(t *testing.T) {
	t.Parallel()

	reader, mp := setupTestMetrics(t)
	ctx := context.Background()

	mp.RecordModelCall(ctx, true, 120*time.Millisecond)
	mp.RecordModelCall(ctx, false, 30*time.Millisecond)
	mp.RecordPipelineDuration(ctx, time.Second, true)

	metrics := collect(t, reader)

	if got := sumOf(t, metrics["specflow.model.calls"]); got != 2 {
		t.Errorf("model calls = %d, want 2", got)
	}
	for _, name := range []string{"specflow.model.duration", "specflow.pipeline.duration"} {
		m, ok := metrics[name]
		if !ok {
			t.Errorf("%s metric not found", name)
			continue
		}
		if _, ok := m.Data.(metricdata.Histogram[float64]); !ok {
			t.Errorf("%s: expected Histogram[float64], got %T", name, m.Data)
		}
	}
}

func TestNoopMetricsProvider(t *testing.T) {
	t.Parallel()

	var m Metrics = NoopMetricsProvider{}
	ctx := context.Background()
	m.RecordSamplesRead(ctx, 1)
	m.RecordGroupsSkipped(ctx, 1)
	m.RecordAnomaly(ctx, "latency", "low")
	m.RecordSuggestionGenerated(ctx, "model", "latency-regression")
	m.RecordModelCall(ctx, true, time.Millisecond)
	m.RecordDecision(ctx, "approved")
	m.RecordApprovalRequest(ctx, false)
	m.RecordPipelineDuration(ctx, time.Millisecond, false)
}

func TestDefaultMetricsConfig(t *testing.T) {
	t.Parallel()

	config := DefaultMetricsConfig()
	if config.MeterName != "github.com/felixgeelhaar/specflow" {
		t.Errorf("MeterName = %s", config.MeterName)
	}
	if NewMetricsProvider(MetricsConfig{}).Error() != nil {
		t.Error("empty config should fall back to defaults")
	}
}
