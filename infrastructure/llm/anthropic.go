// Package llm provides StructuredModel implementations.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/infrastructure/logging"
	"github.com/felixgeelhaar/specflow/infrastructure/resilience"
)

// DefaultMaxTokens caps output tokens per request.
const DefaultMaxTokens = 2048

var (
	// ErrMissingAPIKey indicates the client was built without credentials.
	ErrMissingAPIKey = errors.New("anthropic api key is required")

	// ErrMissingModel indicates no model identifier was configured.
	ErrMissingModel = errors.New("anthropic model identifier is required")

	// ErrNoStructuredOutput indicates the response did not contain the tool call.
	ErrNoStructuredOutput = errors.New("model returned no structured output")

	// ErrRequestRejected indicates the API refused the request (4xx other than 429).
	ErrRequestRejected = errors.New("model request rejected")
)

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// Resilience configures retry and circuit breaking around each call.
	Resilience resilience.ExecutorConfig
}

// AnthropicModel implements suggestion.StructuredModel with forced tool use:
// the output schema is declared as the single tool and the tool input is the
// structured answer.
type AnthropicModel struct {
	client    sdk.Client
	model     string
	maxTokens int64
	executor  *resilience.Executor[*suggestion.ModelOutput]
}

// NewAnthropicModel creates the adapter.
func NewAnthropicModel(cfg AnthropicConfig) (*AnthropicModel, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are owned by the executor.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	rc := cfg.Resilience
	rc.NonRetryable = append(rc.NonRetryable, ErrRequestRejected, ErrNoStructuredOutput)

	return &AnthropicModel{
		client:    sdk.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(maxTokens),
		executor:  resilience.NewExecutor[*suggestion.ModelOutput](rc),
	}, nil
}

// GenerateStructured implements suggestion.StructuredModel.
func (m *AnthropicModel) GenerateStructured(ctx context.Context, req suggestion.ModelRequest) (*suggestion.ModelOutput, error) {
	params := m.params(req)

	start := time.Now()
	out, err := m.executor.Execute(ctx, func(ctx context.Context) (*suggestion.ModelOutput, error) {
		msg, err := m.client.Messages.New(ctx, params)
		if err != nil {
			return nil, classify(err)
		}
		return decodeToolOutput(msg, toolName(req))
	})
	if err != nil {
		logging.Debug().
			Add(logging.Component("anthropic")).
			Add(logging.Str("model", m.model)).
			Add(logging.Duration(time.Since(start))).
			Add(logging.ErrorField(err)).
			Msg("structured request failed")
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	return out, nil
}

func toolName(req suggestion.ModelRequest) string {
	if req.SchemaName != "" {
		return req.SchemaName
	}
	return suggestion.ProposalSchemaName
}

func (m *AnthropicModel) params(req suggestion.ModelRequest) sdk.MessageNewParams {
	schema := req.Schema
	if schema == nil {
		schema = suggestion.ProposalSchema()
	}
	var required []string
	if r, ok := schema["required"].([]string); ok {
		required = r
	}

	name := toolName(req)
	params := sdk.MessageNewParams{
		Model:     sdk.Model(m.model),
		MaxTokens: m.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
		Tools: []sdk.ToolUnionParam{{
			OfTool: &sdk.ToolParam{
				Name:        name,
				Description: sdk.String("Record the proposed contract change."),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: schema["properties"],
					Required:   required,
				},
			},
		}},
		ToolChoice: sdk.ToolChoiceUnionParam{
			OfTool: &sdk.ToolChoiceToolParam{Name: name},
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	return params
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return fmt.Errorf("%w: status %d: %v", ErrRequestRejected, code, err)
		}
	}
	return err
}

func decodeToolOutput(msg *sdk.Message, name string) (*suggestion.ModelOutput, error) {
	for _, block := range msg.Content {
		if block.Type != "tool_use" || block.Name != name {
			continue
		}
		var out suggestion.ModelOutput
		if err := json.Unmarshal(block.Input, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoStructuredOutput, err)
		}
		return &out, nil
	}
	return nil, ErrNoStructuredOutput
}

var _ suggestion.StructuredModel = (*AnthropicModel)(nil)
