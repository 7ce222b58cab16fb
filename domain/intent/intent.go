// Package intent provides intent pattern types derived from operational anomalies.
package intent

import (
	"github.com/google/uuid"

	"github.com/felixgeelhaar/specflow/domain/operation"
)

// Pattern is a normalized, confidence-scored description of an observed problem.
type Pattern struct {
	// ID is the unique identifier.
	ID string `json:"id"`

	// Type classifies the pattern.
	Type Type `json:"type"`

	// Description explains what was observed.
	Description string `json:"description"`

	// Operation is the affected operation, if any.
	Operation *operation.Coordinate `json:"operation,omitempty"`

	// Confidence scores how certain the observation is.
	Confidence Confidence `json:"confidence"`

	// Metadata contains additional information.
	Metadata operation.Metadata `json:"metadata,omitempty"`

	// Evidence preserves the provenance of the pattern.
	Evidence []Evidence `json:"evidence"`
}

// NewPattern creates a new pattern with a generated ID.
func NewPattern(typ Type, description string) *Pattern {
	return &Pattern{
		ID:          uuid.New().String(),
		Type:        typ,
		Description: description,
		Evidence:    make([]Evidence, 0),
	}
}

// ForOperation sets the affected operation and returns the pattern.
func (p *Pattern) ForOperation(op operation.Coordinate) *Pattern {
	p.Operation = &op
	return p
}

// OperationName returns the affected operation name, or "" when unset.
func (p *Pattern) OperationName() string {
	if p.Operation == nil {
		return ""
	}
	return p.Operation.Name
}

// Clone returns a deep copy of the pattern.
func (p *Pattern) Clone() *Pattern {
	if p == nil {
		return nil
	}
	out := *p
	if p.Operation != nil {
		op := *p.Operation
		out.Operation = &op
	}
	if p.Confidence.PValue != nil {
		pv := *p.Confidence.PValue
		out.Confidence.PValue = &pv
	}
	out.Metadata = p.Metadata.Clone()
	out.Evidence = CloneEvidence(p.Evidence)
	return &out
}
