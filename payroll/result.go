/*
result.go - Component results and the per-employee aggregate

PURPOSE:
  ComponentCalculationResult is what one calculator returns.
  CalculationResult is the aggregate the Engine hands to the caller.

TOTALS INVARIANT:
  total_earnings   = Σ amount where type == EARNING
  total_deductions = Σ amount where type in {DEDUCTION, PERSONAL_DEDUCTION}
  net_pay          = total_earnings − total_deductions

  Totals are recomputed from the full component list on every
  AddComponent. They are never adjusted incrementally, so they cannot
  drift from the list. The cost is O(n²) over n components, and n is
  bounded by the configured component count.

LIFECYCLE:
  PENDING -> PROCESSING -> COMPLETED | FAILED

  A FAILED result keeps the components computed before the failure.
  Callers must branch on Status before trusting NetPay or Components.
*/
package payroll

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMPONENT RESULT
// =============================================================================

type ComponentCalculationResult struct {
	Code    string
	Name    string
	Type    ComponentType
	Amount  decimal.Decimal
	Method  CalculationMethod
	Details map[string]any
	Logs    []string
}

// ToComponent converts 1:1 into the aggregate's component form.
func (r ComponentCalculationResult) ToComponent() CalculationComponent {
	details := make(map[string]any, len(r.Details))
	for k, v := range r.Details {
		details[k] = v
	}
	return CalculationComponent{
		Code:    r.Code,
		Name:    r.Name,
		Type:    r.Type,
		Amount:  r.Amount,
		Method:  r.Method,
		Details: details,
		Logs:    append([]string(nil), r.Logs...),
	}
}

type CalculationComponent struct {
	Code    string
	Name    string
	Type    ComponentType
	Amount  decimal.Decimal
	Method  CalculationMethod
	Details map[string]any
	Logs    []string
}

// =============================================================================
// AGGREGATE RESULT
// =============================================================================

type CalculationResult struct {
	EmployeeID      string
	PeriodID        string
	Components      []CalculationComponent
	TotalEarnings   decimal.Decimal
	TotalDeductions decimal.Decimal
	NetPay          decimal.Decimal
	Status          CalculationStatus
	ErrorMessage    string
}

// NewCalculationResult creates an empty PENDING result.
func NewCalculationResult(employeeID, periodID string) *CalculationResult {
	return &CalculationResult{
		EmployeeID:      employeeID,
		PeriodID:        periodID,
		TotalEarnings:   decimal.Zero,
		TotalDeductions: decimal.Zero,
		NetPay:          decimal.Zero,
		Status:          StatusPending,
	}
}

// AddComponent appends c and recomputes totals from scratch.
func (r *CalculationResult) AddComponent(c CalculationComponent) {
	r.Components = append(r.Components, c)
	r.updateTotals()
}

func (r *CalculationResult) updateTotals() {
	earnings := decimal.Zero
	deductions := decimal.Zero
	for _, c := range r.Components {
		switch {
		case c.Type.IsEarning():
			earnings = earnings.Add(c.Amount)
		case c.Type.CountsAsDeduction():
			deductions = deductions.Add(c.Amount)
		}
	}
	r.TotalEarnings = earnings
	r.TotalDeductions = deductions
	r.NetPay = earnings.Sub(deductions)
}

// Fail marks the result FAILED, keeping whatever components succeeded.
func (r *CalculationResult) Fail(err error) {
	r.Status = StatusFailed
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

func (r *CalculationResult) IsCompleted() bool { return r.Status == StatusCompleted }

// Component returns the component with code, if present.
func (r *CalculationResult) Component(code string) (CalculationComponent, bool) {
	for _, c := range r.Components {
		if c.Code == code {
			return c, true
		}
	}
	return CalculationComponent{}, false
}

// StoredAmount is the persistence shape of one line item.
type StoredAmount struct {
	Amount decimal.Decimal `json:"amount"`
	Name   string          `json:"name"`
}

// EarningsMap returns earnings keyed by component code.
func (r *CalculationResult) EarningsMap() map[string]StoredAmount {
	return r.collect(func(t ComponentType) bool { return t.IsEarning() })
}

// DeductionsMap returns every non-earning component keyed by code,
// employer-side items included. Only personal items reduce NetPay.
func (r *CalculationResult) DeductionsMap() map[string]StoredAmount {
	return r.collect(func(t ComponentType) bool { return !t.IsEarning() })
}

func (r *CalculationResult) collect(match func(ComponentType) bool) map[string]StoredAmount {
	out := make(map[string]StoredAmount)
	for _, c := range r.Components {
		if match(c.Type) {
			out[c.Code] = StoredAmount{Amount: c.Amount, Name: c.Name}
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
