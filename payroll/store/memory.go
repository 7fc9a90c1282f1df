// Package store provides CatalogSource implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory revisioned catalog (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	revisions []*payroll.CatalogSnapshot
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: func() time.Time { return time.Now().UTC() }}
}

// Publish stores defs as a new immutable revision and returns its number.
// Revisions start at 1.
func (m *Memory) Publish(_ context.Context, defs []payroll.ComponentDefinition) (int64, error) {
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rev := int64(len(m.revisions) + 1)
	m.revisions = append(m.revisions, payroll.NewCatalogSnapshot(rev, m.now(), defs))
	return rev, nil
}

// LoadCatalog implements payroll.CatalogSource.
func (m *Memory) LoadCatalog(_ context.Context, revision int64) (*payroll.CatalogSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.revisions) == 0 {
		return nil, payroll.ErrCatalogNotFound
	}
	if revision == payroll.LatestRevision {
		return m.revisions[len(m.revisions)-1], nil
	}
	if revision < 1 || revision > int64(len(m.revisions)) {
		return nil, payroll.ErrCatalogNotFound
	}
	return m.revisions[revision-1], nil
}

// Revisions returns the number of published revisions.
func (m *Memory) Revisions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.revisions)
}
