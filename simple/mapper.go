package simple

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MAPPER - Catalog-driven import row classification
// =============================================================================

// Mapper classifies import row columns by catalog display name or code.
//
// The catalog revision is loaded once per Mapper, on first use, and cached
// together with any load error. Build a new Mapper to pick up a newer
// revision or to retry a failed load.
//
// Display names must be unique within a revision. When two components
// share a name the first one (by display order) keeps it and a warning
// is logged.
type Mapper struct {
	source   payroll.CatalogSource
	revision int64
	logger   *zap.Logger

	once    sync.Once
	loadErr error

	snapshot       *payroll.CatalogSnapshot
	earningsByName map[string]string
	personalByName map[string]string
	allByName      map[string]string
	byType         map[payroll.ComponentType][]payroll.ComponentDefinition
}

// NewMapper reads catalog revision from source. Use payroll.LatestRevision
// to pin whatever is newest at first use.
func NewMapper(source payroll.CatalogSource, revision int64, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{source: source, revision: revision, logger: logger}
}

func (m *Mapper) load(ctx context.Context) error {
	m.once.Do(func() {
		if m.source == nil {
			m.loadErr = fmt.Errorf("simple: mapper has no catalog source")
			return
		}
		snap, err := m.source.LoadCatalog(ctx, m.revision)
		if err != nil {
			m.loadErr = fmt.Errorf("simple: load catalog revision %d: %w", m.revision, err)
			return
		}
		m.index(snap)
	})
	return m.loadErr
}

func (m *Mapper) index(snap *payroll.CatalogSnapshot) {
	m.snapshot = snap
	m.earningsByName = make(map[string]string)
	m.personalByName = make(map[string]string)
	m.allByName = make(map[string]string)
	m.byType = make(map[payroll.ComponentType][]payroll.ComponentDefinition)

	log := m.logger.With(zap.Int64("catalog_revision", snap.Revision))
	for _, def := range snap.Active() {
		m.byType[def.Type] = append(m.byType[def.Type], def)
		m.claim(log, m.allByName, def.Code, def)
		m.claim(log, m.allByName, def.Name, def)
		switch {
		case def.Type.IsEarning():
			m.claim(log, m.earningsByName, def.Name, def)
		case def.Type.CountsAsDeduction():
			m.claim(log, m.personalByName, def.Name, def)
		}
	}
	log.Debug("component catalog indexed", zap.Int("components", len(m.allByName)))
}

// claim maps key to def.Code unless another component got there first.
func (m *Mapper) claim(log *zap.Logger, view map[string]string, key string, def payroll.ComponentDefinition) {
	key = normalizeKey(key)
	if key == "" {
		return
	}
	if existing, taken := view[key]; taken {
		if existing != def.Code {
			log.Warn("component name collision, keeping first",
				zap.String("name", key),
				zap.String("kept", existing),
				zap.String("ignored", def.Code))
		}
		return
	}
	view[key] = def.Code
}

func normalizeKey(s string) string { return strings.TrimSpace(s) }

// Snapshot returns the catalog revision the mapper is pinned to.
func (m *Mapper) Snapshot(ctx context.Context) (*payroll.CatalogSnapshot, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	return m.snapshot, nil
}

// EarningCode resolves an earning display name to its code.
func (m *Mapper) EarningCode(ctx context.Context, name string) (string, bool, error) {
	return m.lookup(ctx, name, func() map[string]string { return m.earningsByName })
}

// PersonalDeductionCode resolves a personal deduction display name to its code.
func (m *Mapper) PersonalDeductionCode(ctx context.Context, name string) (string, bool, error) {
	return m.lookup(ctx, name, func() map[string]string { return m.personalByName })
}

// Code resolves any active component display name or code to its code.
func (m *Mapper) Code(ctx context.Context, nameOrCode string) (string, bool, error) {
	return m.lookup(ctx, nameOrCode, func() map[string]string { return m.allByName })
}

// ComponentsOfType returns the active definitions of type t.
func (m *Mapper) ComponentsOfType(ctx context.Context, t payroll.ComponentType) ([]payroll.ComponentDefinition, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	return append([]payroll.ComponentDefinition(nil), m.byType[t]...), nil
}

// lookup loads the catalog before reading from view.
func (m *Mapper) lookup(ctx context.Context, key string, view func() map[string]string) (string, bool, error) {
	if err := m.load(ctx); err != nil {
		return "", false, err
	}
	code, ok := view()[normalizeKey(key)]
	return code, ok, nil
}

// =============================================================================
// IMPORT ROWS
// =============================================================================

// Declared total columns recognized in import rows.
var declaredTotalColumns = map[string]string{
	FieldGrossPay:        FieldGrossPay,
	"gross":              FieldGrossPay,
	FieldTotalDeductions: FieldTotalDeductions,
	"deductions":         FieldTotalDeductions,
	FieldNetPay:          FieldNetPay,
	"net":                FieldNetPay,
}

// MappedRow is an import row split by component type.
type MappedRow struct {
	CatalogRevision    int64
	Earnings           []LineItem
	PersonalDeductions []LineItem
	EmployerDeductions []LineItem
	Other              []LineItem
	Declared           DeclaredTotals
	// Unmapped holds columns that matched no active component or were not
	// numeric.
	Unmapped map[string]any
}

// MapImportRow classifies every column of row. Columns are visited in
// sorted order so the output is deterministic. Zero amounts are dropped.
func (m *Mapper) MapImportRow(ctx context.Context, row map[string]any) (*MappedRow, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	out := &MappedRow{CatalogRevision: m.snapshot.Revision, Unmapped: make(map[string]any)}

	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	for _, col := range columns {
		value := row[col]
		amount, numeric := payroll.ToDecimal(value)

		if field, ok := declaredTotalColumns[strings.ToLower(normalizeKey(col))]; ok && numeric {
			out.Declared.set(field, amount)
			continue
		}

		code, known := m.allByName[normalizeKey(col)]
		if !known || !numeric {
			out.Unmapped[col] = value
			continue
		}
		if amount.IsZero() {
			continue
		}

		def, _ := m.snapshot.Lookup(code)
		item := LineItem{Code: def.Code, Name: def.Name, Amount: amount, Type: def.Type}
		switch {
		case def.Type.IsEarning():
			out.Earnings = append(out.Earnings, item)
		case def.Type.CountsAsDeduction():
			out.PersonalDeductions = append(out.PersonalDeductions, item)
		case def.Type == payroll.TypeEmployerDeduction:
			out.EmployerDeductions = append(out.EmployerDeductions, item)
		default:
			out.Other = append(out.Other, item)
		}
	}

	if len(out.Unmapped) > 0 {
		keys := make([]string, 0, len(out.Unmapped))
		for k := range out.Unmapped {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m.logger.Debug("import columns left unmapped", zap.Strings("columns", keys))
	}
	return out, nil
}

func (d *DeclaredTotals) set(field string, v decimal.Decimal) {
	switch field {
	case FieldGrossPay:
		d.GrossPay = &v
	case FieldTotalDeductions:
		d.TotalDeductions = &v
	case FieldNetPay:
		d.NetPay = &v
	}
}

// Calculate runs the row through calc. Employer deductions are passed
// along with their type so they are shown but not deducted.
func (r *MappedRow) Calculate(calc *Calculator, employeeID string) *payroll.CalculationResult {
	deductions := make([]LineItem, 0, len(r.PersonalDeductions)+len(r.EmployerDeductions))
	deductions = append(deductions, r.PersonalDeductions...)
	deductions = append(deductions, r.EmployerDeductions...)
	return calc.Calculate(employeeID, r.Earnings, deductions)
}

// Reconcile calculates the row and checks it against its declared totals.
func (r *MappedRow) Reconcile(calc *Calculator, employeeID string) (*payroll.CalculationResult, []Discrepancy) {
	result := r.Calculate(calc, employeeID)
	return result, Reconcile(result, r.Declared)
}
