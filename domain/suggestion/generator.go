package suggestion

import (
	"context"

	"github.com/felixgeelhaar/specflow/domain/intent"
)

// Generator turns an intent pattern into a suggestion.
type Generator interface {
	Generate(ctx context.Context, p *intent.Pattern) (*Suggestion, error)
}

// GeneratorFunc is a function that implements Generator.
type GeneratorFunc func(ctx context.Context, p *intent.Pattern) (*Suggestion, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, p *intent.Pattern) (*Suggestion, error) {
	return f(ctx, p)
}

// StructuredModel issues structured-generation requests to a language model.
// The returned output has already been checked against the request schema.
type StructuredModel interface {
	GenerateStructured(ctx context.Context, req ModelRequest) (*ModelOutput, error)
}

// ModelRequest is a single structured-generation request.
type ModelRequest struct {
	// System is the system prompt.
	System string

	// Prompt is the user prompt.
	Prompt string

	// SchemaName names the output shape.
	SchemaName string

	// Schema is the JSON schema the output must satisfy.
	Schema map[string]any
}

// ModelOutput is the typed output of a proposal generation request.
type ModelOutput struct {
	Summary            string   `json:"summary"`
	Rationale          string   `json:"rationale"`
	ChangeType         string   `json:"changeType"`
	RecommendedActions []string `json:"recommendedActions"`
	EstimatedImpact    string   `json:"estimatedImpact"`
	RiskLevel          string   `json:"riskLevel"`
	Diff               string   `json:"diff,omitempty"`
}

// ProposalSchemaName names the proposal output shape.
const ProposalSchemaName = "spec_suggestion_proposal"

// ProposalSchema returns the JSON schema for ModelOutput.
func ProposalSchema() map[string]any {
	levels := []any{string(LevelLow), string(LevelMedium), string(LevelHigh)}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":   map[string]any{"type": "string", "description": "One-line summary of the proposed contract change"},
			"rationale": map[string]any{"type": "string", "description": "Why the change addresses the observed problem"},
			"changeType": map[string]any{
				"type": "string",
				"enum": []any{
					string(ChangeTypeNewSpec), string(ChangeTypeRevision),
					string(ChangeTypePolicyUpdate), string(ChangeTypeSchemaUpdate),
				},
			},
			"recommendedActions": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"estimatedImpact": map[string]any{"type": "string", "enum": levels},
			"riskLevel":       map[string]any{"type": "string", "enum": levels},
			"diff":            map[string]any{"type": "string", "description": "Optional human-readable diff of the contract"},
		},
		"required": []string{"summary", "rationale", "changeType", "recommendedActions", "estimatedImpact", "riskLevel"},
	}
}
