package suggestion

// Config is the evolution policy applied when generating and reviewing suggestions.
type Config struct {
	// MinConfidence is the minimum confidence for a suggestion to be valid.
	MinConfidence *float64 `json:"minConfidence,omitempty" yaml:"min_confidence,omitempty"`

	// AutoApproveThreshold approves suggestions at creation when met.
	AutoApproveThreshold *float64 `json:"autoApproveThreshold,omitempty" yaml:"auto_approve_threshold,omitempty"`

	// MaxSuggestionsPerOperation caps suggestions per operation per pass (0 = unlimited).
	MaxSuggestionsPerOperation int `json:"maxSuggestionsPerOperation,omitempty" yaml:"max_suggestions_per_operation,omitempty"`

	// RequireApproval forces every suggestion through human review.
	RequireApproval bool `json:"requireApproval,omitempty" yaml:"require_approval,omitempty"`

	// MaxConcurrentExperiments caps concurrently running experiments (0 = unlimited).
	MaxConcurrentExperiments int `json:"maxConcurrentExperiments,omitempty" yaml:"max_concurrent_experiments,omitempty"`
}

// Threshold returns a pointer to v for optional config fields.
func Threshold(v float64) *float64 {
	return &v
}

// AutoApproves reports whether policy approves a suggestion of this confidence at creation.
func (c *Config) AutoApproves(confidence float64) bool {
	if c == nil || c.AutoApproveThreshold == nil || c.RequireApproval {
		return false
	}
	return confidence >= *c.AutoApproveThreshold
}

// InitialStatus returns the status a new suggestion of this confidence starts in.
func (c *Config) InitialStatus(confidence float64) Status {
	if c.AutoApproves(confidence) {
		return StatusApproved
	}
	return StatusPending
}

// MeetsMinConfidence reports whether confidence satisfies MinConfidence.
func (c *Config) MeetsMinConfidence(confidence float64) bool {
	if c == nil || c.MinConfidence == nil {
		return true
	}
	return confidence >= *c.MinConfidence
}
