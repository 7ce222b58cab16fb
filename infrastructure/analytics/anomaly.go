package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/felixgeelhaar/specflow/domain/intent"
	"github.com/felixgeelhaar/specflow/domain/operation"
	"github.com/felixgeelhaar/specflow/domain/usage"
)

// DetectAnomalies evaluates each stat against the thresholds and an optional
// baseline. Rules are checked in priority order (error rate, p99 latency,
// throughput drop) and only the first breach is reported per operation.
func (a *Analyzer) DetectAnomalies(stats []usage.Stats, baseline []usage.Stats) []usage.Anomaly {
	base := indexStats(baseline)
	detectedAt := a.now().UTC()

	anomalies := make([]usage.Anomaly, 0)
	for _, s := range stats {
		if an, ok := a.detect(s, base, detectedAt); ok {
			anomalies = append(anomalies, an)
		}
	}
	return anomalies
}

func (a *Analyzer) detect(s usage.Stats, base map[string]usage.Stats, detectedAt time.Time) (usage.Anomaly, bool) {
	t := a.thresholds

	if s.ErrorRate >= t.ErrorRate {
		return newAnomaly(s.Operation, usage.MetricErrorRate, s.ErrorRate, t.ErrorRate, detectedAt,
			fmt.Sprintf("Error rate %.1f%% exceeds threshold %.1f%% for %s", s.ErrorRate*100, t.ErrorRate*100, s.Operation),
			intent.Evidence{
				Type: intent.EvidenceTelemetry,
				Description: fmt.Sprintf("%d of %d calls failed (error rate %.4f, threshold %.4f)",
					s.ErrorCount, s.TotalCalls, s.ErrorRate, t.ErrorRate),
				Data: operation.Metadata{
					"errorRate":  s.ErrorRate,
					"threshold":  t.ErrorRate,
					"errorCount": s.ErrorCount,
					"totalCalls": s.TotalCalls,
				},
			}), true
	}

	if s.P99LatencyMs >= t.LatencyP99Ms {
		return newAnomaly(s.Operation, usage.MetricLatency, s.P99LatencyMs, t.LatencyP99Ms, detectedAt,
			fmt.Sprintf("p99 latency %.0fms exceeds threshold %.0fms for %s", s.P99LatencyMs, t.LatencyP99Ms, s.Operation),
			intent.Evidence{
				Type: intent.EvidenceTelemetry,
				Description: fmt.Sprintf("p99 latency %.2fms over %d calls (threshold %.2fms, max %.2fms)",
					s.P99LatencyMs, s.TotalCalls, t.LatencyP99Ms, s.MaxLatencyMs),
				Data: operation.Metadata{
					"p99LatencyMs": s.P99LatencyMs,
					"p95LatencyMs": s.P95LatencyMs,
					"maxLatencyMs": s.MaxLatencyMs,
					"threshold":    t.LatencyP99Ms,
					"totalCalls":   s.TotalCalls,
				},
			}), true
	}

	if b, ok := base[s.Operation.Key()]; ok && b.TotalCalls > 0 {
		drop := float64(b.TotalCalls-s.TotalCalls) / float64(b.TotalCalls)
		if drop >= t.ThroughputDrop {
			return newAnomaly(s.Operation, usage.MetricThroughput, drop, t.ThroughputDrop, detectedAt,
				fmt.Sprintf("Throughput dropped %.1f%% against baseline for %s", drop*100, s.Operation),
				intent.Evidence{
					Type: intent.EvidenceTelemetry,
					Description: fmt.Sprintf("%d calls against a baseline of %d (drop %.4f, threshold %.4f)",
						s.TotalCalls, b.TotalCalls, drop, t.ThroughputDrop),
					Data: operation.Metadata{
						"totalCalls":    s.TotalCalls,
						"baselineCalls": b.TotalCalls,
						"drop":          drop,
						"threshold":     t.ThroughputDrop,
					},
				}), true
		}
	}

	return usage.Anomaly{}, false
}

func newAnomaly(op operation.Coordinate, metric usage.Metric, observed, threshold float64, at time.Time, desc string, ev intent.Evidence) usage.Anomaly {
	return usage.Anomaly{
		Operation:     op,
		Severity:      usage.SeverityForRatio(ratio(observed, threshold)),
		Metric:        metric,
		Description:   desc,
		DetectedAt:    at,
		Threshold:     &threshold,
		ObservedValue: &observed,
		Evidence:      []intent.Evidence{ev},
	}
}

func ratio(observed, threshold float64) float64 {
	if threshold <= 0 {
		if observed > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return observed / threshold
}

func indexStats(stats []usage.Stats) map[string]usage.Stats {
	idx := make(map[string]usage.Stats, len(stats))
	for _, s := range stats {
		idx[s.Operation.Key()] = s
	}
	return idx
}

var metricIntents = map[usage.Metric]intent.Type{
	usage.MetricErrorRate:  intent.TypeErrorSpike,
	usage.MetricLatency:    intent.TypeLatencyRegression,
	usage.MetricThroughput: intent.TypeThroughputDrop,
}

// severityScores score anomalies that carry no observed value or threshold.
var severityScores = map[usage.Severity]float64{
	usage.SeverityHigh:   1,
	usage.SeverityMedium: 0.6,
	usage.SeverityLow:    0.3,
}

// ToIntentPatterns derives one intent pattern per anomaly. Confidence is
// observed/threshold clamped to [0,1]; the sample size is the matching stat's
// total calls.
func (a *Analyzer) ToIntentPatterns(anomalies []usage.Anomaly, stats []usage.Stats) []intent.Pattern {
	idx := indexStats(stats)

	patterns := make([]intent.Pattern, 0, len(anomalies))
	for _, an := range anomalies {
		typ, ok := metricIntents[an.Metric]
		if !ok {
			typ = intent.TypeSchemaMismatch
		}

		p := intent.NewPattern(typ, an.Description).ForOperation(an.Operation)

		var score float64
		if an.ObservedValue != nil && an.Threshold != nil {
			score = ratio(*an.ObservedValue, *an.Threshold)
		} else {
			score = severityScores[an.Severity]
		}
		p.Confidence = intent.Confidence{
			Score:      intent.ClampScore(score),
			SampleSize: idx[an.Operation.Key()].TotalCalls,
		}

		p.Metadata = operation.Metadata{
			"anomalyMetric": string(an.Metric),
			"severity":      string(an.Severity),
		}
		if an.ObservedValue != nil {
			p.Metadata["observedValue"] = *an.ObservedValue
		}
		if an.Threshold != nil {
			p.Metadata["threshold"] = *an.Threshold
		}
		p.Evidence = intent.CloneEvidence(an.Evidence)

		patterns = append(patterns, *p)
	}
	return patterns
}
