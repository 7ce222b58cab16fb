package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/felixgeelhaar/specflow/domain/analytics"
	"github.com/felixgeelhaar/specflow/domain/approval"
	"github.com/felixgeelhaar/specflow/domain/intent"
	"github.com/felixgeelhaar/specflow/domain/operation"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/domain/usage"
	infraanalytics "github.com/felixgeelhaar/specflow/infrastructure/analytics"
	"github.com/felixgeelhaar/specflow/infrastructure/logging"
	infrasuggestion "github.com/felixgeelhaar/specflow/infrastructure/suggestion"
	"github.com/felixgeelhaar/specflow/infrastructure/telemetry"
)

// ErrReaderNotConfigured indicates Run was called without a sample reader.
var ErrReaderNotConfigured = errors.New("sample reader not configured")

// SampleReader reads telemetry for an analysis pass.
type SampleReader interface {
	ReadSamples(ctx context.Context, q analytics.Query) ([]operation.Sample, error)
	ReadBaselines(ctx context.Context, q analytics.Query) ([]usage.Stats, error)
}

// batchGenerator is implemented by generators that bound concurrent calls.
type batchGenerator interface {
	GenerateBatch(ctx context.Context, intents []intent.Pattern, opts infrasuggestion.BatchOptions) ([]*suggestion.Suggestion, error)
}

// Invalid is a generated suggestion that failed validation.
type Invalid struct {
	Suggestion *suggestion.Suggestion
	Reasons    []string
}

// PipelineResult reports every stage of an evolution pass.
type PipelineResult struct {
	Report    usage.Report
	Anomalies []usage.Anomaly
	Patterns  []intent.Pattern
	Hints     []usage.OptimizationHint

	// Submitted holds suggestions persisted through the service.
	Submitted []*suggestion.Suggestion

	// Invalid holds suggestions dropped by validation.
	Invalid []Invalid

	// BelowConfidence counts patterns dropped before generation by minConfidence.
	BelowConfidence int

	// OverLimit counts patterns dropped by maxSuggestionsPerOperation.
	OverLimit int
}

// Pipeline runs analysis, detection, generation and submission in one pass.
type Pipeline struct {
	reader    SampleReader
	analyzer  *infraanalytics.Analyzer
	generator suggestion.Generator
	service   *EvolutionService

	policy         *suggestion.Config
	baselineWindow time.Duration
	lifecycle      *usage.LifecycleContext
	session        *approval.Session
	strategy       string
	metrics        telemetry.Metrics
}

// NewPipeline creates a pipeline. The reader may be nil when only Analyze is used.
func NewPipeline(reader SampleReader, analyzer *infraanalytics.Analyzer, generator suggestion.Generator, service *EvolutionService, opts ...PipelineOption) *Pipeline {
	if analyzer == nil {
		analyzer = infraanalytics.NewAnalyzer()
	}
	p := &Pipeline{
		reader:    reader,
		analyzer:  analyzer,
		generator: generator,
		service:   service,
		strategy:  "template",
		metrics:   telemetry.NoopMetricsProvider{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run reads samples for q plus baselines from the window preceding it and
// runs one evolution pass. Baseline counts are scaled to the length of the
// analysis window before comparison; an open-ended window ends now.
func (p *Pipeline) Run(ctx context.Context, q analytics.Query) (*PipelineResult, error) {
	if p.reader == nil {
		return nil, ErrReaderNotConfigured
	}

	samples, err := p.reader.ReadSamples(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}

	var baseline []usage.Stats
	if p.baselineWindow > 0 && !q.DateRange.From.IsZero() {
		bq := analytics.Query{
			Operations: q.Operations,
			DateRange: analytics.DateRange{
				From: q.DateRange.From.Add(-p.baselineWindow),
				To:   q.DateRange.From,
			},
		}
		baseline, err = p.reader.ReadBaselines(ctx, bq)
		if err != nil {
			return nil, fmt.Errorf("read baselines: %w", err)
		}

		end := q.DateRange.To
		if end.IsZero() {
			end = time.Now()
		}
		if window := end.Sub(q.DateRange.From); window > 0 {
			baseline = scaleBaseline(baseline, float64(window)/float64(p.baselineWindow))
		}
	}

	return p.Analyze(ctx, samples, baseline)
}

// scaleBaseline rescales call counts by factor so a baseline read over a
// longer window compares to the current window rate for rate.
func scaleBaseline(baseline []usage.Stats, factor float64) []usage.Stats {
	if factor == 1 {
		return baseline
	}
	scale := func(n int) int { return int(math.Round(float64(n) * factor)) }
	out := make([]usage.Stats, len(baseline))
	for i, b := range baseline {
		b.TotalCalls = scale(b.TotalCalls)
		b.SuccessCount = scale(b.SuccessCount)
		b.ErrorCount = scale(b.ErrorCount)
		out[i] = b
	}
	return out
}

// Analyze runs one evolution pass over samples already in memory.
func (p *Pipeline) Analyze(ctx context.Context, samples []operation.Sample, baseline []usage.Stats) (result *PipelineResult, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordPipelineDuration(ctx, time.Since(start), err == nil)
	}()

	result = &PipelineResult{Report: p.analyzer.AnalyzeWithReport(samples)}
	p.metrics.RecordGroupsSkipped(ctx, len(result.Report.Skipped))

	result.Anomalies = p.analyzer.DetectAnomalies(result.Report.Stats, baseline)
	for _, an := range result.Anomalies {
		p.metrics.RecordAnomaly(ctx, string(an.Metric), string(an.Severity))
	}
	result.Patterns = p.analyzer.ToIntentPatterns(result.Anomalies, result.Report.Stats)
	result.Hints = p.analyzer.SuggestOptimizations(result.Report.Stats, result.Anomalies, p.lifecycle)

	if p.generator == nil || len(result.Patterns) == 0 {
		return result, nil
	}

	eligible := p.selectPatterns(result)
	generated, err := p.generate(ctx, eligible)
	if err != nil {
		return nil, err
	}

	for _, s := range generated {
		p.metrics.RecordSuggestionGenerated(ctx, p.strategy, string(s.Intent.Type))

		v := infrasuggestion.Validate(s, p.policy)
		if !v.OK {
			logging.Debug().
				Add(logging.SuggestionID(s.ID)).
				Add(logging.Str("reasons", fmt.Sprint(v.Reasons))).
				Msg("dropping invalid suggestion")
			result.Invalid = append(result.Invalid, Invalid{Suggestion: s, Reasons: v.Reasons})
			continue
		}

		if p.service == nil {
			result.Submitted = append(result.Submitted, s)
			continue
		}
		submitted, err := p.service.Submit(ctx, s, p.session, "")
		if err != nil {
			return nil, err
		}
		result.Submitted = append(result.Submitted, submitted)
	}

	logging.Info().
		Add(logging.Count("operations", len(result.Report.Stats))).
		Add(logging.Count("anomalies", len(result.Anomalies))).
		Add(logging.Count("suggestions", len(result.Submitted))).
		Add(logging.Duration(time.Since(start))).
		Msg("evolution pass complete")
	return result, nil
}

// selectPatterns applies minConfidence and maxSuggestionsPerOperation. The
// limit counts every version of an operation together.
func (p *Pipeline) selectPatterns(result *PipelineResult) []intent.Pattern {
	limit := 0
	if p.policy != nil {
		limit = p.policy.MaxSuggestionsPerOperation
	}

	perOperation := make(map[string]int)
	out := make([]intent.Pattern, 0, len(result.Patterns))
	for _, pat := range result.Patterns {
		if !p.policy.MeetsMinConfidence(pat.Confidence.Score) {
			result.BelowConfidence++
			continue
		}
		key := pat.OperationName()
		if limit > 0 && perOperation[key] >= limit {
			result.OverLimit++
			continue
		}
		perOperation[key]++
		out = append(out, pat)
	}
	return out
}

func (p *Pipeline) generate(ctx context.Context, patterns []intent.Pattern) ([]*suggestion.Suggestion, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	if bg, ok := p.generator.(batchGenerator); ok {
		out, err := bg.GenerateBatch(ctx, patterns, infrasuggestion.BatchOptions{})
		if err != nil {
			return nil, fmt.Errorf("generate suggestions: %w", err)
		}
		return out, nil
	}

	out := make([]*suggestion.Suggestion, 0, len(patterns))
	for i := range patterns {
		s, err := p.generator.Generate(ctx, &patterns[i])
		if err != nil {
			return nil, fmt.Errorf("generate suggestion for %s: %w", patterns[i].ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}
