/*
catalog.go - Payroll component catalog contracts

PURPOSE:
  The component catalog is the registry of payroll component
  definitions (code, display name, type, active flag) maintained by
  administrators. The simple calculator and the import mapper classify
  line items using it instead of hard-coded mappings.

REVISIONS:
  Catalog contents change over time. To keep a calculation reproducible
  for audit, readers ask for an explicit revision and receive an
  immutable CatalogSnapshot. LatestRevision asks for the newest one,
  and the returned snapshot records which revision that was.

    snap, _ := source.LoadCatalog(ctx, payroll.LatestRevision)
    calc := simple.NewCalculator(snap, logger) // pinned to snap.Revision

IMPLEMENTATIONS:
  - payroll/store/memory.go: In-memory, for tests and development
  - store/sqlite/sqlite.go: SQLite-backed

SEE ALSO:
  - simple/: Consumers
*/
package payroll

import (
	"context"
	"errors"
	"sort"
	"time"
)

// LatestRevision requests the newest catalog revision.
const LatestRevision int64 = 0

var (
	ErrCatalogNotFound  = errors.New("catalog revision not found")
	ErrInvalidComponent = errors.New("invalid component definition")
)

// ComponentDefinition is one catalog entry.
type ComponentDefinition struct {
	Code         string
	Name         string
	Type         ComponentType
	Active       bool
	DisplayOrder int
}

// Validate checks the fields a catalog writer must supply.
func (d ComponentDefinition) Validate() error {
	if d.Code == "" {
		return errors.Join(ErrInvalidComponent, errors.New("code is required"))
	}
	if d.Name == "" {
		return errors.Join(ErrInvalidComponent, errors.New("name is required for "+d.Code))
	}
	if _, err := ParseComponentType(string(d.Type)); err != nil {
		return errors.Join(ErrInvalidComponent, err)
	}
	return nil
}

// CatalogSource loads catalog snapshots.
type CatalogSource interface {
	// LoadCatalog returns the snapshot at revision, or the newest one for
	// LatestRevision. Unknown revisions return ErrCatalogNotFound.
	LoadCatalog(ctx context.Context, revision int64) (*CatalogSnapshot, error)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// CatalogSnapshot is an immutable view of one catalog revision.
type CatalogSnapshot struct {
	Revision    int64
	PublishedAt time.Time

	components []ComponentDefinition
	byCode     map[string]ComponentDefinition
}

// NewCatalogSnapshot copies defs, ordered by DisplayOrder then code.
func NewCatalogSnapshot(revision int64, publishedAt time.Time, defs []ComponentDefinition) *CatalogSnapshot {
	comps := append([]ComponentDefinition(nil), defs...)
	sort.SliceStable(comps, func(i, j int) bool {
		if comps[i].DisplayOrder != comps[j].DisplayOrder {
			return comps[i].DisplayOrder < comps[j].DisplayOrder
		}
		return comps[i].Code < comps[j].Code
	})
	byCode := make(map[string]ComponentDefinition, len(comps))
	for _, c := range comps {
		byCode[c.Code] = c
	}
	return &CatalogSnapshot{
		Revision:    revision,
		PublishedAt: publishedAt,
		components:  comps,
		byCode:      byCode,
	}
}

// Lookup returns the definition for code, active or not.
func (s *CatalogSnapshot) Lookup(code string) (ComponentDefinition, bool) {
	if s == nil {
		return ComponentDefinition{}, false
	}
	d, ok := s.byCode[code]
	return d, ok
}

// Components returns every definition.
func (s *CatalogSnapshot) Components() []ComponentDefinition {
	if s == nil {
		return nil
	}
	return append([]ComponentDefinition(nil), s.components...)
}

// Active returns the active definitions.
func (s *CatalogSnapshot) Active() []ComponentDefinition {
	if s == nil {
		return nil
	}
	var out []ComponentDefinition
	for _, c := range s.components {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}
