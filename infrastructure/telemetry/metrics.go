// Package telemetry provides the telemetry reader that maps analytics rows
// into samples and baselines, plus OpenTelemetry metrics for the engine.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsProvider records engine metrics through OpenTelemetry.
type MetricsProvider struct {
	meter metric.Meter

	// Counters
	samplesRead          metric.Int64Counter
	groupsSkipped        metric.Int64Counter
	anomalies            metric.Int64Counter
	suggestionsGenerated metric.Int64Counter
	modelCalls           metric.Int64Counter
	decisions            metric.Int64Counter
	approvalRequests     metric.Int64Counter

	// Histograms
	modelDuration    metric.Float64Histogram
	pipelineDuration metric.Float64Histogram

	initOnce sync.Once
	initErr  error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter (default: "github.com/felixgeelhaar/specflow").
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// Provider overrides the global meter provider.
	Provider metric.MeterProvider
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/specflow",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates a new metrics provider.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}

	provider := config.Provider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(
		config.MeterName,
		metric.WithInstrumentationVersion(config.MeterVersion),
	)

	mp := &MetricsProvider{
		meter: meter,
	}

	mp.initOnce.Do(func() {
		mp.initErr = mp.initInstruments()
	})

	return mp
}

func (mp *MetricsProvider) initInstruments() error {
	counters := []struct {
		dst        *metric.Int64Counter
		name, desc string
		unit       string
	}{
		{&mp.samplesRead, "specflow.samples.read", "Samples read from the analytics backend", "{sample}"},
		{&mp.groupsSkipped, "specflow.groups.skipped", "Operations skipped for insufficient samples", "{operation}"},
		{&mp.anomalies, "specflow.anomalies", "Anomalies detected", "{anomaly}"},
		{&mp.suggestionsGenerated, "specflow.suggestions.generated", "Suggestions generated", "{suggestion}"},
		{&mp.modelCalls, "specflow.model.calls", "Structured generation calls", "{call}"},
		{&mp.decisions, "specflow.decisions", "Suggestion decisions", "{decision}"},
		{&mp.approvalRequests, "specflow.approval.requests", "Approval requests issued", "{request}"},
	}
	for _, c := range counters {
		counter, err := mp.meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return err
		}
		*c.dst = counter
	}

	var err error
	mp.modelDuration, err = mp.meter.Float64Histogram(
		"specflow.model.duration",
		metric.WithDescription("Duration of structured generation calls"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	mp.pipelineDuration, err = mp.meter.Float64Histogram(
		"specflow.pipeline.duration",
		metric.WithDescription("Duration of evolution pipeline runs"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// RecordSamplesRead records samples read from the backend.
func (mp *MetricsProvider) RecordSamplesRead(ctx context.Context, n int) {
	mp.samplesRead.Add(ctx, int64(n))
}

// RecordGroupsSkipped records operations excluded for insufficient samples.
func (mp *MetricsProvider) RecordGroupsSkipped(ctx context.Context, n int) {
	mp.groupsSkipped.Add(ctx, int64(n))
}

// RecordAnomaly records a detected anomaly.
func (mp *MetricsProvider) RecordAnomaly(ctx context.Context, metricName, severity string) {
	mp.anomalies.Add(ctx, 1, metric.WithAttributes(
		attribute.String("anomaly.metric", metricName),
		attribute.String("anomaly.severity", severity),
	))
}

// RecordSuggestionGenerated records a generated suggestion.
func (mp *MetricsProvider) RecordSuggestionGenerated(ctx context.Context, strategy, intentType string) {
	mp.suggestionsGenerated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("intent.type", intentType),
	))
}

// RecordModelCall records a structured generation call.
func (mp *MetricsProvider) RecordModelCall(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}

	mp.modelCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	mp.modelDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordDecision records an approve or reject decision.
func (mp *MetricsProvider) RecordDecision(ctx context.Context, status string) {
	mp.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordApprovalRequest records an outbound approval request.
func (mp *MetricsProvider) RecordApprovalRequest(ctx context.Context, success bool) {
	mp.approvalRequests.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordPipelineDuration records the duration of a pipeline run.
func (mp *MetricsProvider) RecordPipelineDuration(ctx context.Context, duration time.Duration, success bool) {
	mp.pipelineDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

// NoopMetricsProvider is a no-op metrics provider for testing or when metrics are disabled.
type NoopMetricsProvider struct{}

// RecordSamplesRead is a no-op.
func (NoopMetricsProvider) RecordSamplesRead(context.Context, int) {}

// RecordGroupsSkipped is a no-op.
func (NoopMetricsProvider) RecordGroupsSkipped(context.Context, int) {}

// RecordAnomaly is a no-op.
func (NoopMetricsProvider) RecordAnomaly(context.Context, string, string) {}

// RecordSuggestionGenerated is a no-op.
func (NoopMetricsProvider) RecordSuggestionGenerated(context.Context, string, string) {}

// RecordModelCall is a no-op.
func (NoopMetricsProvider) RecordModelCall(context.Context, bool, time.Duration) {}

// RecordDecision is a no-op.
func (NoopMetricsProvider) RecordDecision(context.Context, string) {}

// RecordApprovalRequest is a no-op.
func (NoopMetricsProvider) RecordApprovalRequest(context.Context, bool) {}

// RecordPipelineDuration is a no-op.
func (NoopMetricsProvider) RecordPipelineDuration(context.Context, time.Duration, bool) {}

// Metrics defines the interface for metrics recording.
type Metrics interface {
	RecordSamplesRead(ctx context.Context, n int)
	RecordGroupsSkipped(ctx context.Context, n int)
	RecordAnomaly(ctx context.Context, metricName, severity string)
	RecordSuggestionGenerated(ctx context.Context, strategy, intentType string)
	RecordModelCall(ctx context.Context, success bool, duration time.Duration)
	RecordDecision(ctx context.Context, status string)
	RecordApprovalRequest(ctx context.Context, success bool)
	RecordPipelineDuration(ctx context.Context, duration time.Duration, success bool)
}

// Ensure implementations satisfy the interface.
var (
	_ Metrics = (*MetricsProvider)(nil)
	_ Metrics = NoopMetricsProvider{}
)
