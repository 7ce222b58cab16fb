package memory

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/specflow/domain/contract"
	"github.com/felixgeelhaar/specflow/domain/operation"
)

// SpecCatalog holds current contracts keyed by operation coordinate.
type SpecCatalog struct {
	mu    sync.RWMutex
	specs map[string]*contract.Spec
}

// NewSpecCatalog creates an empty catalog.
func NewSpecCatalog() *SpecCatalog {
	return &SpecCatalog{specs: make(map[string]*contract.Spec)}
}

// Put stores a copy of the contract for op.
func (c *SpecCatalog) Put(op operation.Coordinate, spec *contract.Spec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specs[op.Key()] = spec.Clone()
}

// Lookup implements contract.Lookup. Tenant-scoped coordinates fall back to
// the tenant-less contract.
func (c *SpecCatalog) Lookup(ctx context.Context, op operation.Coordinate) (*contract.Spec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if spec, ok := c.specs[op.Key()]; ok {
		return spec.Clone(), nil
	}
	if op.TenantID != "" {
		if spec, ok := c.specs[op.WithTenant("").Key()]; ok {
			return spec.Clone(), nil
		}
	}
	return nil, contract.ErrSpecNotFound
}

var _ contract.Lookup = (*SpecCatalog)(nil).Lookup
