// Package suggestion provides the deterministic and model-backed suggestion
// generators.
package suggestion

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/specflow/domain/contract"
	"github.com/felixgeelhaar/specflow/domain/intent"
	"github.com/felixgeelhaar/specflow/domain/operation"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

// DefaultCreatedBy is recorded on suggestions when no creator is configured.
const DefaultCreatedBy = "specflow"

// GenerateOptions overrides parts of a generated suggestion.
type GenerateOptions struct {
	Summary    string
	Rationale  string
	ChangeType suggestion.ChangeType
	Kind       string
	Spec       *contract.Spec
	Diff       string
	CreatedBy  string
	Tags       []string
	Metadata   operation.Metadata

	// Target overrides the intent's operation.
	Target *operation.Coordinate

	// Config overrides the generator's policy for this call.
	Config *suggestion.Config
}

// TemplateGenerator builds suggestions from intent patterns with fixed rules.
type TemplateGenerator struct {
	config    *suggestion.Config
	lookup    contract.Lookup
	createdBy string
	now       func() time.Time
}

// TemplateOption configures a TemplateGenerator.
type TemplateOption func(*TemplateGenerator)

// WithConfig sets the evolution policy.
func WithConfig(c *suggestion.Config) TemplateOption {
	return func(g *TemplateGenerator) {
		g.config = c
	}
}

// WithLookup sets the contract lookup used by Generate and GenerateVariant.
func WithLookup(l contract.Lookup) TemplateOption {
	return func(g *TemplateGenerator) {
		g.lookup = l
	}
}

// WithCreatedBy sets the creator recorded on suggestions.
func WithCreatedBy(name string) TemplateOption {
	return func(g *TemplateGenerator) {
		if name != "" {
			g.createdBy = name
		}
	}
}

// WithClock sets the clock used for creation timestamps.
func WithClock(now func() time.Time) TemplateOption {
	return func(g *TemplateGenerator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewTemplateGenerator creates a deterministic generator.
func NewTemplateGenerator(opts ...TemplateOption) *TemplateGenerator {
	g := &TemplateGenerator{
		createdBy: DefaultCreatedBy,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var summaryVerbs = map[intent.Type]string{
	intent.TypeErrorSpike:        "Stabilize",
	intent.TypeLatencyRegression: "Optimize",
	intent.TypeMissingOperation:  "Introduce",
	intent.TypeThroughputDrop:    "Rebalance",
}

// DefaultChangeType returns the change type implied by an intent type.
func DefaultChangeType(t intent.Type) suggestion.ChangeType {
	switch t {
	case intent.TypeMissingOperation:
		return suggestion.ChangeTypeNewSpec
	case intent.TypeSchemaMismatch:
		return suggestion.ChangeTypeSchemaUpdate
	case intent.TypeErrorSpike:
		return suggestion.ChangeTypePolicyUpdate
	default:
		return suggestion.ChangeTypeRevision
	}
}

// Summary returns "<Verb> <operation>" for an intent.
func Summary(p *intent.Pattern) string {
	verb, ok := summaryVerbs[p.Type]
	if !ok {
		verb = "Adjust"
	}
	name := p.OperationName()
	if name == "" {
		name = "operation"
	}
	return verb + " " + name
}

// TemplatePriority ranks a suggestion by intent type and confidence.
func TemplatePriority(t intent.Type, confidence float64) suggestion.Priority {
	switch {
	case t == intent.TypeErrorSpike || confidence >= 0.8:
		return suggestion.PriorityHigh
	case confidence >= 0.5:
		return suggestion.PriorityMedium
	default:
		return suggestion.PriorityLow
	}
}

// Rationale returns the intent description followed by the observed value
// when the intent carries one.
func Rationale(p *intent.Pattern) string {
	desc := strings.TrimSpace(p.Description)
	observed, ok := p.Metadata["observedValue"].(float64)
	if !ok {
		return desc
	}
	clause := fmt.Sprintf("Observed value %.4g", observed)
	if threshold, ok := p.Metadata["threshold"].(float64); ok {
		clause += fmt.Sprintf(" against threshold %.4g", threshold)
	}
	if desc == "" {
		return clause + "."
	}
	return strings.TrimSuffix(desc, ".") + ". " + clause + "."
}

// GenerateFromIntent builds a suggestion for the intent.
func (g *TemplateGenerator) GenerateFromIntent(p *intent.Pattern, opts GenerateOptions) (*suggestion.Suggestion, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: intent is required", suggestion.ErrInvalidSuggestion)
	}

	cfg := g.config
	if opts.Config != nil {
		cfg = opts.Config
	}

	summary := opts.Summary
	if summary == "" {
		summary = Summary(p)
	}
	rationale := opts.Rationale
	if rationale == "" {
		rationale = Rationale(p)
	}
	changeType := opts.ChangeType
	if changeType == "" {
		changeType = DefaultChangeType(p.Type)
	}
	createdBy := opts.CreatedBy
	if createdBy == "" {
		createdBy = g.createdBy
	}

	confidence := intent.ClampScore(p.Confidence.Score)
	now := g.now().UTC()

	s := &suggestion.Suggestion{
		ID:     suggestion.NewID(),
		Intent: *p.Clone(),
		Proposal: suggestion.Proposal{
			Summary:    summary,
			Rationale:  rationale,
			ChangeType: changeType,
			Kind:       opts.Kind,
			Spec:       opts.Spec.Clone(),
			Diff:       opts.Diff,
			Metadata:   opts.Metadata.Clone(),
		},
		Confidence: confidence,
		Priority:   TemplatePriority(p.Type, confidence),
		CreatedAt:  now,
		CreatedBy:  createdBy,
		Status:     suggestion.StatusPending,
		Evidence:   intent.CloneEvidence(p.Evidence),
		Tags:       slices.Clone(opts.Tags),
	}
	if opts.Target != nil {
		t := *opts.Target
		s.Target = &t
	} else if p.Operation != nil {
		t := *p.Operation
		s.Target = &t
	}

	applyAutoApproval(s, cfg, now)
	return s, nil
}

// applyAutoApproval approves the suggestion at creation when policy allows.
func applyAutoApproval(s *suggestion.Suggestion, cfg *suggestion.Config, now time.Time) {
	if !cfg.AutoApproves(s.Confidence) {
		return
	}
	s.Status = suggestion.StatusApproved
	s.Approvals = &suggestion.Approval{
		Status:    suggestion.StatusApproved,
		Reviewer:  AutoApprovalReviewer,
		Notes:     fmt.Sprintf("confidence %.2f meets auto-approval threshold %.2f", s.Confidence, *cfg.AutoApproveThreshold),
		DecidedAt: now,
	}
}

// AutoApprovalReviewer is recorded on suggestions approved by policy.
const AutoApprovalReviewer = "auto-approval"

// GenerateVariant merges patch onto the current spec of op and builds a
// suggestion carrying the merged spec.
func (g *TemplateGenerator) GenerateVariant(ctx context.Context, op operation.Coordinate, patch *contract.Spec, p *intent.Pattern, opts GenerateOptions) (*suggestion.Suggestion, error) {
	if g.lookup == nil {
		return nil, suggestion.ErrLookupNotConfigured
	}

	base, err := g.lookup(ctx, op)
	if err != nil && !errors.Is(err, contract.ErrSpecNotFound) {
		return nil, fmt.Errorf("lookup spec %s: %w", op, err)
	}
	if base == nil || err != nil {
		return nil, fmt.Errorf("%w: %s", contract.ErrSpecNotFound, op)
	}

	opts.Spec = contract.Merge(base, patch)
	if opts.Target == nil {
		opts.Target = &op
	}
	return g.GenerateFromIntent(p, opts)
}

// Generate implements suggestion.Generator. With a lookup configured the
// operation's current contract is carried on the proposal when one exists.
func (g *TemplateGenerator) Generate(ctx context.Context, p *intent.Pattern) (*suggestion.Suggestion, error) {
	var opts GenerateOptions
	if g.lookup != nil && p != nil && p.Operation != nil {
		spec, err := g.lookup(ctx, *p.Operation)
		switch {
		case err == nil:
			opts.Spec = spec
		case !errors.Is(err, contract.ErrSpecNotFound):
			return nil, fmt.Errorf("lookup spec %s: %w", p.Operation, err)
		}
	}
	return g.GenerateFromIntent(p, opts)
}

// ValidateSuggestion checks a suggestion against policy and reports every
// violated rule. A nil config falls back to the generator's policy.
func (g *TemplateGenerator) ValidateSuggestion(s *suggestion.Suggestion, cfg *suggestion.Config) suggestion.ValidationResult {
	if cfg == nil {
		cfg = g.config
	}
	return Validate(s, cfg)
}

// Validate checks a suggestion against policy and reports every violated rule.
func Validate(s *suggestion.Suggestion, cfg *suggestion.Config) suggestion.ValidationResult {
	reasons := make([]string, 0)
	if s == nil {
		return suggestion.ValidationResult{Reasons: append(reasons, "suggestion is required")}
	}

	if !cfg.MeetsMinConfidence(s.Confidence) {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f is below the minimum %.2f", s.Confidence, *cfg.MinConfidence))
	}
	if cfg != nil && cfg.RequireApproval && s.Status == suggestion.StatusApproved {
		reasons = append(reasons, "suggestion is approved but policy requires human approval")
	}
	if s.Proposal.Spec != nil && s.Proposal.Spec.Key() == "" {
		reasons = append(reasons, "proposal spec is missing its identifying key")
	}
	if strings.TrimSpace(s.Proposal.Summary) == "" {
		reasons = append(reasons, "proposal summary is required")
	}

	return suggestion.ValidationResult{OK: len(reasons) == 0, Reasons: reasons}
}

var _ suggestion.Generator = (*TemplateGenerator)(nil)

