// Package operation provides the identity and sample types for observed operations.
package operation

import (
	"fmt"
	"time"
)

// Coordinate identifies a versioned operation, optionally scoped to a tenant.
type Coordinate struct {
	// Name is the operation name (e.g. "orders.create").
	Name string `json:"name"`

	// Version is the contract version of the operation.
	Version int `json:"version"`

	// TenantID scopes the operation to a tenant when set.
	TenantID string `json:"tenantId,omitempty"`
}

// NewCoordinate creates a coordinate without a tenant.
func NewCoordinate(name string, version int) Coordinate {
	return Coordinate{Name: name, Version: version}
}

// WithTenant returns a copy of the coordinate scoped to the tenant.
func (c Coordinate) WithTenant(tenantID string) Coordinate {
	c.TenantID = tenantID
	return c
}

// Key returns the grouping key for the coordinate.
func (c Coordinate) Key() string {
	key := fmt.Sprintf("%s.v%d", c.Name, c.Version)
	if c.TenantID != "" {
		key += "@" + c.TenantID
	}
	return key
}

// String returns the name and version of the coordinate.
func (c Coordinate) String() string {
	return fmt.Sprintf("%s.v%d", c.Name, c.Version)
}

// Equal reports whether both coordinates name the same operation.
func (c Coordinate) Equal(other Coordinate) bool {
	return c.Name == other.Name && c.Version == other.Version && c.TenantID == other.TenantID
}

// IsZero reports whether the coordinate has no name.
func (c Coordinate) IsZero() bool {
	return c.Name == ""
}

// Sample is a single observed invocation of an operation.
type Sample struct {
	Operation        Coordinate `json:"operation"`
	DurationMs       float64    `json:"durationMs"`
	Success          bool       `json:"success"`
	Timestamp        time.Time  `json:"timestamp"`
	PayloadSizeBytes *int64     `json:"payloadSizeBytes,omitempty"`
	ErrorCode        string     `json:"errorCode,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	Actor            string     `json:"actor,omitempty"`
	Channel          string     `json:"channel,omitempty"`
	TraceID          string     `json:"traceId,omitempty"`
	Metadata         Metadata   `json:"metadata,omitempty"`
}
