package config

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/specflow/domain/usage"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the JSON path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates engine configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *EngineConfig) ValidationErrors {
	v.errors = nil

	v.validateRequired(config)
	v.validateAnalysis(config)
	v.validateEvolution(config)
	v.validateTelemetry(config)
	v.validateModel(config)
	v.validateStorage(config)
	v.validateApproval(config)
	v.validateLogging(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateRequired(config *EngineConfig) {
	if config.Name == "" {
		v.addError("name", "name is required")
	}
	if config.Version == "" {
		v.addError("version", "version is required")
	}
}

func (v *Validator) validateAnalysis(config *EngineConfig) {
	a := config.Analysis
	if a.MinSampleSize < 0 {
		v.addError("analysis.min_sample_size", "min_sample_size must be non-negative")
	}
	if a.ErrorRateThreshold < 0 || a.ErrorRateThreshold > 1 {
		v.addError("analysis.error_rate_threshold", "error_rate_threshold must be between 0 and 1")
	}
	if a.LatencyP99ThresholdMs < 0 {
		v.addError("analysis.latency_p99_threshold_ms", "latency_p99_threshold_ms must be non-negative")
	}
	if a.ThroughputDropThreshold < 0 || a.ThroughputDropThreshold > 1 {
		v.addError("analysis.throughput_drop_threshold", "throughput_drop_threshold must be between 0 and 1")
	}
	if a.LifecycleStage != "" {
		if _, err := usage.ParseLifecycleStage(a.LifecycleStage); err != nil {
			v.addError("analysis.lifecycle_stage", fmt.Sprintf("invalid lifecycle stage: %s", a.LifecycleStage))
		}
	}
}

func (v *Validator) validateEvolution(config *EngineConfig) {
	e := config.Evolution
	if e.MinConfidence != nil && (*e.MinConfidence < 0 || *e.MinConfidence > 1) {
		v.addError("evolution.min_confidence", "min_confidence must be between 0 and 1")
	}
	if e.AutoApproveThreshold != nil && (*e.AutoApproveThreshold < 0 || *e.AutoApproveThreshold > 1) {
		v.addError("evolution.auto_approve_threshold", "auto_approve_threshold must be between 0 and 1")
	}
	if e.MaxSuggestionsPerOperation < 0 {
		v.addError("evolution.max_suggestions_per_operation", "max_suggestions_per_operation must be non-negative")
	}
	if e.MaxConcurrentExperiments < 0 {
		v.addError("evolution.max_concurrent_experiments", "max_concurrent_experiments must be non-negative")
	}
	switch e.Strategy {
	case "", StrategyTemplate:
	case StrategyModel:
		if config.Model.Provider != "" && config.Model.Provider != "anthropic" {
			v.addError("model.provider", fmt.Sprintf("unsupported model provider: %s", config.Model.Provider))
		}
		if config.Model.Model == "" {
			v.addError("model.model", "model is required for the model strategy")
		}
	default:
		v.addError("evolution.strategy", fmt.Sprintf("invalid strategy: %s", e.Strategy))
	}
}

func (v *Validator) validateTelemetry(config *EngineConfig) {
	t := config.Telemetry
	switch t.Backend {
	case "":
	case "clickhouse":
		if t.DSN == "" {
			v.addError("telemetry.dsn", "dsn is required for the clickhouse backend")
		}
	default:
		v.addError("telemetry.backend", fmt.Sprintf("invalid telemetry backend: %s", t.Backend))
	}
	if t.Window < 0 {
		v.addError("telemetry.window", "window must be non-negative")
	}
	if t.BaselineWindow < 0 {
		v.addError("telemetry.baseline_window", "baseline_window must be non-negative")
	}
	if t.Limit < 0 {
		v.addError("telemetry.limit", "limit must be non-negative")
	}
}

func (v *Validator) validateModel(config *EngineConfig) {
	m := config.Model
	if m.MaxTokens < 0 {
		v.addError("model.max_tokens", "max_tokens must be non-negative")
	}
	if m.MaxConcurrent < 0 {
		v.addError("model.max_concurrent", "max_concurrent must be non-negative")
	}
}

func (v *Validator) validateStorage(config *EngineConfig) {
	r := config.Storage.Repository
	switch r.Type {
	case "", "memory":
	case "postgres", "sqlite":
		if r.DSN == "" {
			v.addError("storage.repository.dsn", fmt.Sprintf("dsn is required for the %s repository", r.Type))
		}
	default:
		v.addError("storage.repository.type", fmt.Sprintf("invalid repository type: %s", r.Type))
	}

	w := config.Storage.Writer
	switch w.Type {
	case "", "none":
	case "filesystem":
		if w.Directory == "" {
			v.addError("storage.writer.directory", "directory is required for the filesystem writer")
		}
	case "s3":
		if w.Bucket == "" {
			v.addError("storage.writer.bucket", "bucket is required for the s3 writer")
		}
	default:
		v.addError("storage.writer.type", fmt.Sprintf("invalid writer type: %s", w.Type))
	}
}

func (v *Validator) validateApproval(config *EngineConfig) {
	a := config.Approval
	if !a.Enabled {
		return
	}
	if a.WebhookURL == "" {
		v.addError("approval.webhook_url", "webhook_url is required when approval is enabled")
	} else if !strings.HasPrefix(a.WebhookURL, "http://") && !strings.HasPrefix(a.WebhookURL, "https://") {
		v.addError("approval.webhook_url", "webhook_url must be an http(s) URL")
	}
	if a.MaxRetries < 0 {
		v.addError("approval.max_retries", "max_retries must be non-negative")
	}
	if a.Timeout < 0 {
		v.addError("approval.timeout", "timeout must be non-negative")
	}
}

func (v *Validator) validateLogging(config *EngineConfig) {
	switch config.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid log level: %s", config.Logging.Level))
	}
	switch config.Logging.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid log format: %s", config.Logging.Format))
	}
}
