// Package suggestion provides contract change suggestions and their approval lifecycle.
package suggestion

// ChangeType classifies the change a proposal makes to a contract.
type ChangeType string

const (
	ChangeTypeNewSpec      ChangeType = "new-spec"      // Introduce a new contract
	ChangeTypeRevision     ChangeType = "revision"      // Revise an existing contract
	ChangeTypePolicyUpdate ChangeType = "policy-update" // Adjust policy (retries, timeouts, limits)
	ChangeTypeSchemaUpdate ChangeType = "schema-update" // Adjust input/output schema
)

// IsValid returns true if the change type is known.
func (c ChangeType) IsValid() bool {
	switch c {
	case ChangeTypeNewSpec, ChangeTypeRevision, ChangeTypePolicyUpdate, ChangeTypeSchemaUpdate:
		return true
	default:
		return false
	}
}

// Priority orders suggestions for review.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Status tracks the lifecycle of a suggestion.
type Status string

const (
	StatusPending  Status = "pending"  // Awaiting review
	StatusApproved Status = "approved" // Accepted by a reviewer or by policy
	StatusRejected Status = "rejected" // Dismissed
)

// IsValid returns true if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Level is a three-step rating used for impact and risk.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// IsValid returns true if the level is known.
func (l Level) IsValid() bool {
	return l == LevelLow || l == LevelMedium || l == LevelHigh
}

// Score maps the level onto [0, 1] for priority blending.
func (l Level) Score() float64 {
	switch l {
	case LevelHigh:
		return 1
	case LevelMedium:
		return 0.6
	default:
		return 0.3
	}
}
