// Package config provides domain models for engine configuration.
package config

import (
	"time"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/domain/usage"
)

// EngineConfig represents the complete engine configuration.
type EngineConfig struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`

	// Analysis configures the usage analyzer.
	Analysis AnalysisConfig `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	// Evolution configures suggestion generation and review policy.
	Evolution EvolutionConfig `json:"evolution,omitempty" yaml:"evolution,omitempty"`
	// Telemetry configures the analytics backend.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	// Model configures model-backed generation.
	Model ModelConfig `json:"model,omitempty" yaml:"model,omitempty"`
	// Storage configures suggestion persistence and materialization.
	Storage StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
	// Approval configures the approval request transport.
	Approval ApprovalConfig `json:"approval,omitempty" yaml:"approval,omitempty"`
	// Logging configures structured logging.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// AnalysisConfig configures anomaly thresholds. Zero values take defaults.
type AnalysisConfig struct {
	MinSampleSize           int     `json:"min_sample_size,omitempty" yaml:"min_sample_size,omitempty"`
	ErrorRateThreshold      float64 `json:"error_rate_threshold,omitempty" yaml:"error_rate_threshold,omitempty"`
	LatencyP99ThresholdMs   float64 `json:"latency_p99_threshold_ms,omitempty" yaml:"latency_p99_threshold_ms,omitempty"`
	ThroughputDropThreshold float64 `json:"throughput_drop_threshold,omitempty" yaml:"throughput_drop_threshold,omitempty"`
	// LifecycleStage biases optimization hints (e.g. "scaling").
	LifecycleStage string `json:"lifecycle_stage,omitempty" yaml:"lifecycle_stage,omitempty"`
}

// Thresholds resolves the analysis thresholds over the defaults.
func (a AnalysisConfig) Thresholds() usage.Thresholds {
	t := usage.DefaultThresholds()
	if a.MinSampleSize > 0 {
		t.MinSampleSize = a.MinSampleSize
	}
	if a.ErrorRateThreshold > 0 {
		t.ErrorRate = a.ErrorRateThreshold
	}
	if a.LatencyP99ThresholdMs > 0 {
		t.LatencyP99Ms = a.LatencyP99ThresholdMs
	}
	if a.ThroughputDropThreshold > 0 {
		t.ThroughputDrop = a.ThroughputDropThreshold
	}
	return t
}

// Lifecycle returns the lifecycle context for hint augmentation, or nil when
// no stage is configured or the stage is unknown.
func (a AnalysisConfig) Lifecycle() *usage.LifecycleContext {
	if a.LifecycleStage == "" {
		return nil
	}
	stage, err := usage.ParseLifecycleStage(a.LifecycleStage)
	if err != nil {
		return nil
	}
	return &usage.LifecycleContext{Stage: stage}
}

// Generation strategies.
const (
	StrategyTemplate = "template"
	StrategyModel    = "model"
)

// EvolutionConfig configures suggestion policy.
type EvolutionConfig struct {
	MinConfidence              *float64 `json:"min_confidence,omitempty" yaml:"min_confidence,omitempty"`
	AutoApproveThreshold       *float64 `json:"auto_approve_threshold,omitempty" yaml:"auto_approve_threshold,omitempty"`
	MaxSuggestionsPerOperation int      `json:"max_suggestions_per_operation,omitempty" yaml:"max_suggestions_per_operation,omitempty"`
	RequireApproval            bool     `json:"require_approval,omitempty" yaml:"require_approval,omitempty"`
	MaxConcurrentExperiments   int      `json:"max_concurrent_experiments,omitempty" yaml:"max_concurrent_experiments,omitempty"`

	// Strategy selects the generator: "template" (default) or "model".
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	// CreatedBy is recorded on generated suggestions.
	CreatedBy string `json:"created_by,omitempty" yaml:"created_by,omitempty"`
}

// Policy returns the suggestion policy described by the configuration.
func (e EvolutionConfig) Policy() *suggestion.Config {
	return &suggestion.Config{
		MinConfidence:              e.MinConfidence,
		AutoApproveThreshold:       e.AutoApproveThreshold,
		MaxSuggestionsPerOperation: e.MaxSuggestionsPerOperation,
		RequireApproval:            e.RequireApproval,
		MaxConcurrentExperiments:   e.MaxConcurrentExperiments,
	}
}

// TelemetryConfig configures the analytics backend.
type TelemetryConfig struct {
	// Backend is the analytics backend type (clickhouse).
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// DSN is the backend connection string.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// Table is the events table name.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
	// Window is how far back the current analysis window reaches.
	Window Duration `json:"window,omitempty" yaml:"window,omitempty"`
	// BaselineWindow is the length of the comparison window preceding Window.
	BaselineWindow Duration `json:"baseline_window,omitempty" yaml:"baseline_window,omitempty"`
	// Limit caps rows read per pass.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// ModelConfig configures the language model.
type ModelConfig struct {
	// Provider is the model provider (anthropic).
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// APIKey authenticates with the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Model is the model identifier, required by the model strategy.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// MaxTokens caps output tokens per request.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	// MaxConcurrent caps in-flight requests during batch generation.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	Repository RepositoryConfig `json:"repository,omitempty" yaml:"repository,omitempty"`
	Writer     WriterConfig     `json:"writer,omitempty" yaml:"writer,omitempty"`
}

// RepositoryConfig configures the suggestion repository.
type RepositoryConfig struct {
	// Type is memory (default), postgres or sqlite.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	// DSN is the database connection string.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// Schema is the PostgreSQL schema (default public).
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// WriterConfig configures where approved suggestions are materialized.
type WriterConfig struct {
	// Type is none (default), filesystem or s3.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	// Directory is the filesystem output directory.
	Directory string `json:"directory,omitempty" yaml:"directory,omitempty"`
	// Bucket is the S3 bucket.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	// Prefix is the S3 key prefix.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// Region is the S3 region.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Endpoint overrides the S3 endpoint for compatible stores.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// ApprovalConfig configures the webhook approval transport.
type ApprovalConfig struct {
	Enabled    bool              `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	WebhookURL string            `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	Secret     string            `json:"secret,omitempty" yaml:"secret,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Timeout    Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries int               `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	// SessionID is the session the CLI host submits under.
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	// AgentID identifies the submitting host.
	AgentID string `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// DefaultEngineConfig returns a configuration that runs entirely in memory.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Name:    "specflow",
		Version: "1",
		Evolution: EvolutionConfig{
			Strategy:  StrategyTemplate,
			CreatedBy: "specflow",
		},
		Telemetry: TelemetryConfig{
			Table:          "operation_events",
			Window:         Duration(time.Hour),
			BaselineWindow: Duration(24 * time.Hour),
		},
		Model: ModelConfig{
			Provider:      "anthropic",
			MaxTokens:     2048,
			MaxConcurrent: 3,
		},
		Storage: StorageConfig{
			Repository: RepositoryConfig{Type: "memory"},
			Writer:     WriterConfig{Type: "none"},
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
