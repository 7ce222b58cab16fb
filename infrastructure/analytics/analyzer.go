// Package analytics computes usage statistics, anomalies, intent patterns and
// optimization hints from operation samples.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/felixgeelhaar/specflow/domain/operation"
	"github.com/felixgeelhaar/specflow/domain/usage"
	"github.com/felixgeelhaar/specflow/infrastructure/logging"
)

// Analyzer aggregates samples and classifies anomalies against thresholds.
// It is safe for concurrent use; every method is a pure function of its
// inputs and the configured thresholds.
type Analyzer struct {
	thresholds usage.Thresholds
	now        func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMinSampleSize sets the minimum samples required to analyze an operation.
func WithMinSampleSize(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.thresholds.MinSampleSize = n
		}
	}
}

// WithErrorRateThreshold sets the error rate that raises an anomaly.
func WithErrorRateThreshold(rate float64) Option {
	return func(a *Analyzer) {
		if rate > 0 {
			a.thresholds.ErrorRate = rate
		}
	}
}

// WithLatencyP99Threshold sets the p99 latency in milliseconds that raises an anomaly.
func WithLatencyP99Threshold(ms float64) Option {
	return func(a *Analyzer) {
		if ms > 0 {
			a.thresholds.LatencyP99Ms = ms
		}
	}
}

// WithThroughputDropThreshold sets the fractional drop against baseline that
// raises an anomaly.
func WithThroughputDropThreshold(drop float64) Option {
	return func(a *Analyzer) {
		if drop > 0 {
			a.thresholds.ThroughputDrop = drop
		}
	}
}

// WithThresholds replaces all thresholds at once. Non-positive fields keep
// their defaults.
func WithThresholds(t usage.Thresholds) Option {
	return func(a *Analyzer) {
		WithMinSampleSize(t.MinSampleSize)(a)
		WithErrorRateThreshold(t.ErrorRate)(a)
		WithLatencyP99Threshold(t.LatencyP99Ms)(a)
		WithThroughputDropThreshold(t.ThroughputDrop)(a)
	}
}

// WithClock sets the clock used to stamp detected anomalies.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAnalyzer creates an analyzer with the default thresholds.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		thresholds: usage.DefaultThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Thresholds returns the effective thresholds.
func (a *Analyzer) Thresholds() usage.Thresholds {
	return a.thresholds
}

// AnalyzeSpecUsage computes per-operation statistics. Operations with fewer
// samples than the minimum sample size are excluded. Results are ordered by
// operation key.
func (a *Analyzer) AnalyzeSpecUsage(samples []operation.Sample) []usage.Stats {
	return a.AnalyzeWithReport(samples).Stats
}

type group struct {
	op      operation.Coordinate
	samples []operation.Sample
}

// AnalyzeWithReport computes per-operation statistics and reports the groups
// skipped for insufficient samples.
func (a *Analyzer) AnalyzeWithReport(samples []operation.Sample) usage.Report {
	groups := make(map[string]*group)
	keys := make([]string, 0)
	for _, s := range samples {
		key := s.Operation.Key()
		g, ok := groups[key]
		if !ok {
			g = &group{op: s.Operation}
			groups[key] = g
			keys = append(keys, key)
		}
		g.samples = append(g.samples, s)
	}
	sort.Strings(keys)

	report := usage.Report{Stats: make([]usage.Stats, 0, len(keys))}
	for _, key := range keys {
		g := groups[key]
		if len(g.samples) < a.thresholds.MinSampleSize {
			logging.Debug().
				Add(logging.Operation(g.op)).
				Add(logging.Count("samples", len(g.samples))).
				Add(logging.Count("min_samples", a.thresholds.MinSampleSize)).
				Msg("skipping operation with insufficient samples")
			report.Skipped = append(report.Skipped, usage.SkippedGroup{
				Operation:   g.op,
				SampleCount: len(g.samples),
			})
			continue
		}
		report.Stats = append(report.Stats, computeStats(g.op, g.samples))
	}
	return report
}

func computeStats(op operation.Coordinate, samples []operation.Sample) usage.Stats {
	stats := usage.Stats{
		Operation:  op,
		TotalCalls: len(samples),
		TopErrors:  make(map[string]int),
	}

	durations := make([]float64, 0, len(samples))
	var total float64
	for i, s := range samples {
		if s.Success {
			stats.SuccessCount++
		} else {
			stats.ErrorCount++
			if s.ErrorCode != "" {
				stats.TopErrors[s.ErrorCode]++
			}
		}

		durations = append(durations, s.DurationMs)
		total += s.DurationMs

		ts := s.Timestamp
		if i == 0 || ts.Before(stats.WindowStart) {
			stats.WindowStart = ts
		}
		if i == 0 || ts.After(stats.WindowEnd) {
			stats.WindowEnd = ts
		}
	}
	stats.LastSeenAt = stats.WindowEnd

	n := float64(stats.TotalCalls)
	stats.ErrorRate = float64(stats.ErrorCount) / n
	stats.SuccessRate = 1 - stats.ErrorRate

	sort.Float64s(durations)
	stats.AverageLatencyMs = total / n
	stats.P95LatencyMs = percentile(durations, 0.95)
	stats.P99LatencyMs = percentile(durations, 0.99)
	stats.MaxLatencyMs = durations[len(durations)-1]
	// Float summation can push the mean a hair above the max for uniform data.
	if stats.AverageLatencyMs > stats.MaxLatencyMs {
		stats.AverageLatencyMs = stats.MaxLatencyMs
	}

	return stats
}

// percentile returns the p-th percentile of ascending values using
// index min(n-1, floor(p*n)).
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	n := len(sorted)
	idx := int(math.Floor(p * float64(n)))
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}
