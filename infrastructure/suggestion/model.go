package suggestion

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/specflow/domain/contract"
	"github.com/felixgeelhaar/specflow/domain/intent"
	"github.com/felixgeelhaar/specflow/domain/operation"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/infrastructure/logging"
	"github.com/felixgeelhaar/specflow/infrastructure/telemetry"
)

// DefaultMaxConcurrent bounds in-flight model calls during batch generation.
const DefaultMaxConcurrent = 3

// SystemPrompt frames every structured generation request.
const SystemPrompt = "You are a contract evolution assistant. Given an observed operational problem " +
	"with an API operation, propose one concrete change to the operation's contract " +
	"(schema, policy, telemetry or side effects). Be specific and conservative, and " +
	"answer only through the provided output schema."

// ModelOptions supplies optional prompt context.
type ModelOptions struct {
	// ExistingSpec is the current contract of the operation.
	ExistingSpec *contract.Spec

	// ExtraContext is appended to the prompt verbatim.
	ExtraContext string

	// Config overrides the generator's policy for this call.
	Config *suggestion.Config
}

// BatchOptions configures GenerateBatch.
type BatchOptions struct {
	// MaxConcurrent caps in-flight model calls (default 3).
	MaxConcurrent int

	ModelOptions
}

// ModelGenerator builds suggestions through a structured-generation model.
type ModelGenerator struct {
	model         suggestion.StructuredModel
	config        *suggestion.Config
	createdBy     string
	maxConcurrent int
	now           func() time.Time
	metrics       telemetry.Metrics
}

// ModelOption configures a ModelGenerator.
type ModelOption func(*ModelGenerator)

// WithModelPolicy sets the evolution policy.
func WithModelPolicy(c *suggestion.Config) ModelOption {
	return func(g *ModelGenerator) {
		g.config = c
	}
}

// WithModelCreatedBy sets the creator recorded on suggestions.
func WithModelCreatedBy(name string) ModelOption {
	return func(g *ModelGenerator) {
		if name != "" {
			g.createdBy = name
		}
	}
}

// WithBatchConcurrency sets the default batch concurrency.
func WithBatchConcurrency(n int) ModelOption {
	return func(g *ModelGenerator) {
		if n > 0 {
			g.maxConcurrent = n
		}
	}
}

// WithModelClock sets the clock used for creation timestamps.
func WithModelClock(now func() time.Time) ModelOption {
	return func(g *ModelGenerator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithModelMetrics sets the metrics recorder.
func WithModelMetrics(m telemetry.Metrics) ModelOption {
	return func(g *ModelGenerator) {
		if m != nil {
			g.metrics = m
		}
	}
}

// NewModelGenerator creates a model-backed generator.
func NewModelGenerator(model suggestion.StructuredModel, opts ...ModelOption) *ModelGenerator {
	g := &ModelGenerator{
		model:         model,
		createdBy:     DefaultCreatedBy,
		maxConcurrent: DefaultMaxConcurrent,
		now:           time.Now,
		metrics:       telemetry.NoopMetricsProvider{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BuildPrompt assembles the user prompt for an intent. The output depends
// only on its inputs.
func BuildPrompt(p *intent.Pattern, opts ModelOptions) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Intent type: %s\n", p.Type)
	fmt.Fprintf(&b, "Description: %s\n", p.Description)
	fmt.Fprintf(&b, "Confidence: %.2f (sample size %d)\n", p.Confidence.Score, p.Confidence.SampleSize)
	if p.Operation != nil {
		fmt.Fprintf(&b, "Operation: %s version %d", p.Operation.Name, p.Operation.Version)
		if p.Operation.TenantID != "" {
			fmt.Fprintf(&b, " (tenant %s)", p.Operation.TenantID)
		}
		b.WriteString("\n")
	}

	writeEvidence(&b, p.Evidence)
	writeMetadata(&b, p.Metadata)

	if opts.ExistingSpec != nil {
		if data, err := json.MarshalIndent(opts.ExistingSpec, "", "  "); err == nil {
			fmt.Fprintf(&b, "Existing spec:\n%s\n", data)
		}
	}
	if extra := strings.TrimSpace(opts.ExtraContext); extra != "" {
		fmt.Fprintf(&b, "Additional context:\n%s\n", extra)
	}

	b.WriteString("Propose a single contract change that addresses this intent.")
	return b.String()
}

func writeEvidence(b *strings.Builder, evidence []intent.Evidence) {
	if len(evidence) == 0 {
		return
	}
	b.WriteString("Evidence:\n")
	for _, e := range evidence {
		fmt.Fprintf(b, "- [%s] %s\n", e.Type, e.Description)
	}
}

func writeMetadata(b *strings.Builder, m operation.Metadata) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("Metadata:\n")
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %v\n", k, m[k])
	}
}

// ModelPriority blends impact, confidence and intent urgency.
func ModelPriority(impact suggestion.Level, confidence float64, t intent.Type) suggestion.Priority {
	score := 0.4*impact.Score() + 0.4*confidence
	switch t {
	case intent.TypeErrorSpike:
		score += 0.3
	case intent.TypeLatencyRegression:
		score += 0.2
	}

	switch {
	case score >= 0.7:
		return suggestion.PriorityHigh
	case score >= 0.4:
		return suggestion.PriorityMedium
	default:
		return suggestion.PriorityLow
	}
}

func (g *ModelGenerator) request(prompt string) suggestion.ModelRequest {
	return suggestion.ModelRequest{
		System:     SystemPrompt,
		Prompt:     prompt,
		SchemaName: suggestion.ProposalSchemaName,
		Schema:     suggestion.ProposalSchema(),
	}
}

func (g *ModelGenerator) call(ctx context.Context, prompt string) (*suggestion.ModelOutput, error) {
	if g.model == nil {
		return nil, suggestion.ErrModelNotConfigured
	}

	start := time.Now()
	out, err := g.model.GenerateStructured(ctx, g.request(prompt))
	g.metrics.RecordModelCall(ctx, err == nil, time.Since(start))
	if err != nil {
		logging.Warn().
			Add(logging.Component("model-generator")).
			Add(logging.Duration(time.Since(start))).
			Add(logging.ErrorField(err)).
			Msg("structured generation failed")
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: empty model output", suggestion.ErrGenerationFailed)
	}
	return out, nil
}

func levelOrMedium(s string) suggestion.Level {
	l := suggestion.Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.IsValid() {
		return suggestion.LevelMedium
	}
	return l
}

func outputMetadata(out *suggestion.ModelOutput, impact, risk suggestion.Level) operation.Metadata {
	actions := make([]any, 0, len(out.RecommendedActions))
	for _, a := range out.RecommendedActions {
		actions = append(actions, a)
	}
	return operation.Metadata{
		"recommendedActions": actions,
		"estimatedImpact":    string(impact),
		"riskLevel":          string(risk),
	}
}

// Generate implements suggestion.Generator.
func (g *ModelGenerator) Generate(ctx context.Context, p *intent.Pattern) (*suggestion.Suggestion, error) {
	return g.GenerateWithOptions(ctx, p, ModelOptions{})
}

// GenerateWithOptions issues one structured-generation request for the intent
// and maps the output into a suggestion.
func (g *ModelGenerator) GenerateWithOptions(ctx context.Context, p *intent.Pattern, opts ModelOptions) (*suggestion.Suggestion, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: intent is required", suggestion.ErrInvalidSuggestion)
	}

	out, err := g.call(ctx, BuildPrompt(p, opts))
	if err != nil {
		return nil, err
	}

	cfg := g.config
	if opts.Config != nil {
		cfg = opts.Config
	}

	changeType := suggestion.ChangeType(strings.TrimSpace(out.ChangeType))
	if !changeType.IsValid() {
		changeType = DefaultChangeType(p.Type)
	}
	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		summary = Summary(p)
	}
	rationale := strings.TrimSpace(out.Rationale)
	if rationale == "" {
		rationale = Rationale(p)
	}
	impact := levelOrMedium(out.EstimatedImpact)
	risk := levelOrMedium(out.RiskLevel)

	confidence := intent.ClampScore(p.Confidence.Score)
	now := g.now().UTC()

	s := &suggestion.Suggestion{
		ID:     suggestion.NewID(),
		Intent: *p.Clone(),
		Proposal: suggestion.Proposal{
			Summary:    summary,
			Rationale:  rationale,
			ChangeType: changeType,
			Diff:       out.Diff,
			Metadata:   outputMetadata(out, impact, risk),
		},
		Confidence: confidence,
		Priority:   ModelPriority(impact, confidence, p.Type),
		CreatedAt:  now,
		CreatedBy:  g.createdBy,
		Status:     suggestion.StatusPending,
		Evidence:   intent.CloneEvidence(p.Evidence),
	}
	if p.Operation != nil {
		t := *p.Operation
		s.Target = &t
	}

	applyAutoApproval(s, cfg, now)
	return s, nil
}

// GenerateBatch generates one suggestion per intent. Intents are processed in
// chunks of MaxConcurrent: chunks run in order, items within a chunk run
// concurrently. Results keep input order. The first failure aborts the batch.
func (g *ModelGenerator) GenerateBatch(ctx context.Context, intents []intent.Pattern, opts BatchOptions) ([]*suggestion.Suggestion, error) {
	chunk := opts.MaxConcurrent
	if chunk <= 0 {
		chunk = g.maxConcurrent
	}

	results := make([]*suggestion.Suggestion, len(intents))
	for start := 0; start < len(intents); start += chunk {
		end := min(start+chunk, len(intents))

		eg, egctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			eg.Go(func() error {
				s, err := g.GenerateWithOptions(egctx, &intents[i], opts.ModelOptions)
				if err != nil {
					return fmt.Errorf("intent %s: %w", intents[i].ID, err)
				}
				results[i] = s
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// EnhanceSuggestion re-prompts the model with an existing suggestion and
// returns a copy with the proposal text replaced by the model's answer.
func (g *ModelGenerator) EnhanceSuggestion(ctx context.Context, s *suggestion.Suggestion) (*suggestion.Suggestion, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: suggestion is required", suggestion.ErrInvalidSuggestion)
	}

	out, err := g.call(ctx, buildEnhancePrompt(s))
	if err != nil {
		return nil, err
	}

	enhanced := s.Clone()
	if v := strings.TrimSpace(out.Summary); v != "" {
		enhanced.Proposal.Summary = v
	}
	if v := strings.TrimSpace(out.Rationale); v != "" {
		enhanced.Proposal.Rationale = v
	}
	if ct := suggestion.ChangeType(strings.TrimSpace(out.ChangeType)); ct.IsValid() {
		enhanced.Proposal.ChangeType = ct
	}
	enhanced.Proposal.Diff = out.Diff

	meta := outputMetadata(out, levelOrMedium(out.EstimatedImpact), levelOrMedium(out.RiskLevel))
	meta["aiEnhanced"] = true
	meta["enhancedAt"] = g.now().UTC().Format(time.RFC3339)
	enhanced.Proposal.Metadata = enhanced.Proposal.Metadata.Merge(meta)

	return enhanced, nil
}

func buildEnhancePrompt(s *suggestion.Suggestion) string {
	var b strings.Builder

	b.WriteString("Improve the following contract change suggestion.\n")
	fmt.Fprintf(&b, "Summary: %s\n", s.Proposal.Summary)
	fmt.Fprintf(&b, "Rationale: %s\n", s.Proposal.Rationale)
	fmt.Fprintf(&b, "Change type: %s\n", s.Proposal.ChangeType)
	if s.Proposal.Diff != "" {
		fmt.Fprintf(&b, "Current diff:\n%s\n", s.Proposal.Diff)
	}
	fmt.Fprintf(&b, "Intent type: %s\n", s.Intent.Type)
	if op := s.Operation(); op != nil {
		fmt.Fprintf(&b, "Operation: %s version %d\n", op.Name, op.Version)
	}
	fmt.Fprintf(&b, "Confidence: %.2f\n", s.Confidence)
	writeEvidence(&b, s.Evidence)

	b.WriteString("Return a sharper summary and rationale, the most fitting change type and a concrete diff.")
	return b.String()
}

var _ suggestion.Generator = (*ModelGenerator)(nil)
