// Package usage provides usage statistics, anomaly and optimization hint types.
package usage

import (
	"time"

	"github.com/felixgeelhaar/specflow/domain/intent"
	"github.com/felixgeelhaar/specflow/domain/operation"
)

// Stats summarizes an analysis window for one operation.
type Stats struct {
	Operation        operation.Coordinate `json:"operation"`
	TotalCalls       int                  `json:"totalCalls"`
	SuccessCount     int                  `json:"successCount"`
	ErrorCount       int                  `json:"errorCount"`
	SuccessRate      float64              `json:"successRate"`
	ErrorRate        float64              `json:"errorRate"`
	AverageLatencyMs float64              `json:"averageLatencyMs"`
	P95LatencyMs     float64              `json:"p95LatencyMs"`
	P99LatencyMs     float64              `json:"p99LatencyMs"`
	MaxLatencyMs     float64              `json:"maxLatencyMs"`
	LastSeenAt       time.Time            `json:"lastSeenAt"`
	WindowStart      time.Time            `json:"windowStart"`
	WindowEnd        time.Time            `json:"windowEnd"`
	TopErrors        map[string]int       `json:"topErrors"`
}

// TopError returns the most frequent error code. Ties resolve to the
// lexicographically smallest code.
func (s Stats) TopError() (string, int) {
	var code string
	var count int
	for c, n := range s.TopErrors {
		if n > count || (n == count && c < code) {
			code, count = c, n
		}
	}
	return code, count
}

// SkippedGroup records an operation excluded from analysis for lack of samples.
type SkippedGroup struct {
	Operation   operation.Coordinate `json:"operation"`
	SampleCount int                  `json:"sampleCount"`
}

// Report is the result of an analysis pass including data-quality skips.
type Report struct {
	Stats   []Stats        `json:"stats"`
	Skipped []SkippedGroup `json:"skipped,omitempty"`
}

// Severity is the severity of an anomaly.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityForRatio maps observed/threshold to a severity.
func SeverityForRatio(ratio float64) Severity {
	switch {
	case ratio >= 2:
		return SeverityHigh
	case ratio >= 1.3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Metric names the statistic an anomaly was raised on.
type Metric string

const (
	MetricLatency    Metric = "latency"
	MetricErrorRate  Metric = "error-rate"
	MetricThroughput Metric = "throughput"
	MetricPolicy     Metric = "policy"
	MetricSchema     Metric = "schema"
)

// Anomaly is a deviation of an operation's stats from thresholds or baseline.
type Anomaly struct {
	Operation     operation.Coordinate `json:"operation"`
	Severity      Severity             `json:"severity"`
	Metric        Metric               `json:"metric"`
	Description   string               `json:"description"`
	DetectedAt    time.Time            `json:"detectedAt"`
	Threshold     *float64             `json:"threshold,omitempty"`
	ObservedValue *float64             `json:"observedValue,omitempty"`
	Evidence      []intent.Evidence    `json:"evidence"`
}

// Thresholds configures the analyzer.
type Thresholds struct {
	// MinSampleSize is the minimum samples per operation to analyze it.
	MinSampleSize int `json:"minSampleSize"`

	// ErrorRate is the error rate at or above which an anomaly is raised.
	ErrorRate float64 `json:"errorRate"`

	// LatencyP99Ms is the p99 latency at or above which an anomaly is raised.
	LatencyP99Ms float64 `json:"latencyP99Ms"`

	// ThroughputDrop is the fractional drop against baseline that raises an anomaly.
	ThroughputDrop float64 `json:"throughputDrop"`
}

// DefaultThresholds returns the reference thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSampleSize:  50,
		ErrorRate:      0.05,
		LatencyP99Ms:   750,
		ThroughputDrop: 0.2,
	}
}
