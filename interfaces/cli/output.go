package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/felixgeelhaar/specflow/application"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/domain/usage"
)

// analyzeView is the JSON shape of an analyze run.
type analyzeView struct {
	Stats           []usage.Stats            `json:"stats"`
	Skipped         []usage.SkippedGroup     `json:"skipped,omitempty"`
	Anomalies       []usage.Anomaly          `json:"anomalies"`
	Hints           []usage.OptimizationHint `json:"hints,omitempty"`
	Suggestions     []*suggestion.Suggestion `json:"suggestions"`
	Invalid         []invalidView            `json:"invalid,omitempty"`
	BelowConfidence int                      `json:"belowConfidence,omitempty"`
	OverLimit       int                      `json:"overLimit,omitempty"`
}

type invalidView struct {
	ID      string   `json:"id"`
	Reasons []string `json:"reasons"`
}

// decisionView is the JSON shape of an approve or reject.
type decisionView struct {
	Suggestion *suggestion.Suggestion `json:"suggestion"`
	Location   string                 `json:"location,omitempty"`
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *App) printResult(r *application.PipelineResult, jsonOutput bool) error {
	if jsonOutput {
		view := analyzeView{
			Stats:           r.Report.Stats,
			Skipped:         r.Report.Skipped,
			Anomalies:       r.Anomalies,
			Hints:           r.Hints,
			Suggestions:     r.Submitted,
			BelowConfidence: r.BelowConfidence,
			OverLimit:       r.OverLimit,
		}
		for _, inv := range r.Invalid {
			view.Invalid = append(view.Invalid, invalidView{ID: inv.Suggestion.ID, Reasons: inv.Reasons})
		}
		return a.printJSON(view)
	}

	_, _ = fmt.Fprintf(a.stdout, "Operations analyzed: %d (skipped %d)\n", len(r.Report.Stats), len(r.Report.Skipped))
	if len(r.Anomalies) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No anomalies detected.")
	}
	for _, an := range r.Anomalies {
		_, _ = fmt.Fprintf(a.stdout, "  [%s] %s\n", an.Severity, an.Description)
	}
	for _, h := range r.Hints {
		_, _ = fmt.Fprintf(a.stdout, "  hint: %s\n", h.Summary)
	}
	if len(r.Submitted) > 0 {
		_, _ = fmt.Fprintln(a.stdout)
		if err := a.printSuggestions(r.Submitted, false); err != nil {
			return err
		}
	}
	if n := len(r.Invalid); n > 0 {
		_, _ = fmt.Fprintf(a.stdout, "%d suggestion(s) failed validation.\n", n)
	}
	if r.BelowConfidence > 0 || r.OverLimit > 0 {
		_, _ = fmt.Fprintf(a.stdout, "Dropped by policy: %d below confidence, %d over limit.\n", r.BelowConfidence, r.OverLimit)
	}
	return nil
}

func (a *App) printSuggestions(list []*suggestion.Suggestion, jsonOutput bool) error {
	if jsonOutput {
		if list == nil {
			list = []*suggestion.Suggestion{}
		}
		return a.printJSON(list)
	}
	if len(list) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No suggestions.")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tCONFIDENCE\tOPERATION\tSUMMARY")
	for _, s := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			s.ID, s.Status, s.Priority, s.Confidence, s.OperationName(), s.Proposal.Summary)
	}
	return tw.Flush()
}

// printMetrics collects the manual reader and prints one line per
// instrument to stderr.
func (a *App) printMetrics(ctx context.Context) error {
	var rm metricdata.ResourceMetrics
	if err := a.meterReader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	lines := make([]string, 0)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				lines = append(lines, fmt.Sprintf("%s %d", m.Name, total))
			case metricdata.Histogram[float64]:
				var (
					count uint64
					sum   float64
				)
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%.2f%s", m.Name, count, sum, m.Unit))
			}
		}
	}

	sort.Strings(lines)
	for _, l := range lines {
		_, _ = fmt.Fprintln(a.stderr, l)
	}
	return nil
}
