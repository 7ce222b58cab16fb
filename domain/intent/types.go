package intent

import (
	"math"

	"github.com/felixgeelhaar/specflow/domain/operation"
)

// Type classifies an intent pattern.
type Type string

const (
	// TypeLatencyRegression indicates latency exceeded its budget.
	TypeLatencyRegression Type = "latency-regression"

	// TypeErrorSpike indicates the error rate exceeded its budget.
	TypeErrorSpike Type = "error-spike"

	// TypeMissingOperation indicates callers need an operation that does not exist.
	TypeMissingOperation Type = "missing-operation"

	// TypeChainedIntent indicates callers chain operations that could be combined.
	TypeChainedIntent Type = "chained-intent"

	// TypeThroughputDrop indicates call volume fell against the baseline.
	TypeThroughputDrop Type = "throughput-drop"

	// TypeSchemaMismatch indicates payloads diverge from the contract.
	TypeSchemaMismatch Type = "schema-mismatch"
)

// IsValid returns true if the type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeLatencyRegression, TypeErrorSpike, TypeMissingOperation,
		TypeChainedIntent, TypeThroughputDrop, TypeSchemaMismatch:
		return true
	default:
		return false
	}
}

// EvidenceType classifies where evidence came from.
type EvidenceType string

const (
	EvidenceTelemetry    EvidenceType = "telemetry"
	EvidenceUserFeedback EvidenceType = "user-feedback"
	EvidenceSimulation   EvidenceType = "simulation"
	EvidenceTest         EvidenceType = "test"
)

// Evidence records one piece of provenance for an anomaly, pattern or suggestion.
type Evidence struct {
	Type        EvidenceType       `json:"type"`
	Description string             `json:"description"`
	Data        operation.Metadata `json:"data,omitempty"`
}

// CloneEvidence copies an evidence list. The result is never nil.
func CloneEvidence(in []Evidence) []Evidence {
	out := make([]Evidence, len(in))
	for i, e := range in {
		out[i] = Evidence{Type: e.Type, Description: e.Description, Data: e.Data.Clone()}
	}
	return out
}

// Confidence describes how certain a pattern is.
type Confidence struct {
	// Score is in [0, 1].
	Score float64 `json:"score"`

	// SampleSize is the number of observations behind the score.
	SampleSize int `json:"sampleSize"`

	// PValue is the statistical significance, when known.
	PValue *float64 `json:"pValue,omitempty"`
}

// ClampScore bounds a raw score to [0, 1].
func ClampScore(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
