package analytics

import (
	"fmt"

	"github.com/felixgeelhaar/specflow/domain/usage"
)

type bandAdvice struct {
	actions []string
	notes   string
}

var lifecycleAdvice = map[usage.LifecycleBand]bandAdvice{
	usage.BandEarly: {
		actions: []string{
			"Prefer the smallest contract change that unblocks iteration",
			"Capture the failure mode in a contract test before hardening",
		},
		notes: "Early stage: favor learning speed over hardening; keep changes reversible.",
	},
	usage.BandPMF: {
		actions: []string{
			"Instrument the affected user journey to confirm impact",
			"Add an alert on the regressed metric",
		},
		notes: "Product-market fit: protect the journeys that drive retention.",
	},
	usage.BandScale: {
		actions: []string{
			"Define an SLO for the operation and encode it in the contract policy",
			"Load test the change before rollout",
			"Add rate limits or bulkheads around shared dependencies",
		},
		notes: "Scaling: optimize for predictable performance under growth.",
	},
	usage.BandMature: {
		actions: []string{
			"Ship the change as a versioned contract revision",
			"Publish a deprecation path for existing consumers",
		},
		notes: "Maturity: minimize consumer disruption; prefer additive changes.",
	},
}

// SuggestOptimizations emits one hint per anomaly whose operation has stats,
// optionally augmented with lifecycle-stage advice.
func (a *Analyzer) SuggestOptimizations(stats []usage.Stats, anomalies []usage.Anomaly, lc *usage.LifecycleContext) []usage.OptimizationHint {
	hints := make([]usage.OptimizationHint, 0)
	for _, s := range stats {
		for _, an := range anomalies {
			if !an.Operation.Equal(s.Operation) {
				continue
			}
			hint := hintFor(s, an)
			if lc != nil {
				augment(&hint, lc.Stage)
			}
			hints = append(hints, hint)
		}
	}
	return hints
}

func hintFor(s usage.Stats, an usage.Anomaly) usage.OptimizationHint {
	hint := usage.OptimizationHint{Operation: s.Operation}

	switch an.Metric {
	case usage.MetricLatency:
		hint.Category = usage.CategoryPerformance
		hint.Summary = fmt.Sprintf("Reduce tail latency for %s", s.Operation.Name)
		hint.Justification = fmt.Sprintf("p99 latency is %.0fms (p95 %.0fms, max %.0fms) across %d calls",
			s.P99LatencyMs, s.P95LatencyMs, s.MaxLatencyMs, s.TotalCalls)
		hint.RecommendedActions = []string{
			"Profile the slowest requests and their downstream calls",
			"Cache or precompute repeated reads",
			"Declare a latency budget in the contract telemetry section",
		}
	case usage.MetricErrorRate:
		hint.Category = usage.CategoryErrorHandling
		hint.Summary = fmt.Sprintf("Harden error handling for %s", s.Operation.Name)
		if code, count := s.TopError(); code != "" {
			hint.Justification = fmt.Sprintf("Most frequent error is %s (%d of %d calls)", code, count, s.TotalCalls)
		} else {
			hint.Justification = fmt.Sprintf("Error rate is %.1f%% across %d calls", s.ErrorRate*100, s.TotalCalls)
		}
		hint.RecommendedActions = []string{
			"Add retry with backoff for transient failures",
			"Declare the dominant error codes in the contract",
			"Add a circuit breaker around the failing dependency",
		}
	case usage.MetricThroughput:
		hint.Category = usage.CategoryPerformance
		hint.Summary = fmt.Sprintf("Investigate throughput drop for %s", s.Operation.Name)
		hint.Justification = an.Description
		hint.RecommendedActions = []string{
			"Check for client-side failures or routing changes upstream",
			"Compare consumer adoption against the previous contract version",
		}
	case usage.MetricSchema:
		hint.Category = usage.CategorySchema
		hint.Summary = fmt.Sprintf("Align the schema of %s with observed payloads", s.Operation.Name)
		hint.Justification = an.Description
		hint.RecommendedActions = []string{"Reconcile the io section with observed payloads"}
	default:
		hint.Category = usage.CategoryPolicy
		hint.Summary = fmt.Sprintf("Review the policy of %s", s.Operation.Name)
		hint.Justification = an.Description
		hint.RecommendedActions = []string{"Revisit the policy section thresholds"}
	}

	return hint
}

func augment(hint *usage.OptimizationHint, stage usage.LifecycleStage) {
	advice, ok := lifecycleAdvice[stage.Band()]
	if !ok {
		return
	}

	seen := make(map[string]bool, len(hint.RecommendedActions))
	for _, act := range hint.RecommendedActions {
		seen[act] = true
	}
	for _, act := range advice.actions {
		if !seen[act] {
			seen[act] = true
			hint.RecommendedActions = append(hint.RecommendedActions, act)
		}
	}

	st := stage
	hint.LifecycleStage = &st
	hint.LifecycleNotes = advice.notes
}
