/*
Package payroll provides the core payroll calculation engine.

PURPOSE:
  This package turns a bundle of employee facts (base salary, attendance,
  configured rates, tax brackets) into a structured payroll result
  (earnings, deductions, net pay). Concrete component strategies live in
  the calculators package; this package owns the data model, the
  calculator contract and the orchestrating Engine.

KEY CONCEPTS IN THIS FILE (types.go):
  - ComponentType: How a line item affects pay (earning, deduction, ...)
  - CalculationMethod: How a line item was derived (fixed, percentage, ...)
  - CalculationStatus: Lifecycle of one employee's calculation
  - Facts: Named scalar facts, numbers always held as decimal.Decimal

DESIGN PRINCIPLES:
  1. Precision: Every monetary value is a decimal.Decimal, never a float
  2. Named lookups: Calculators read facts by key, never by position
  3. Single owner: A CalculationContext belongs to one calculation

USAGE:
  cc := payroll.NewCalculationContext(payroll.ContextInput{
      EmployeeID:   "emp-123",
      PeriodID:     "2025-03",
      BaseSalary:   decimal.NewFromInt(8000),
      EmployeeData: payroll.Facts{"basic_salary": 8000},
  })
  result := engine.Calculate(cc)

SEE ALSO:
  - context.go: CalculationContext and the running ledger
  - result.go: Component and aggregate results
  - engine.go: Orchestration
*/
package payroll

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMPONENT TYPE
// =============================================================================

type ComponentType string

const (
	TypeEarning           ComponentType = "EARNING"
	TypeDeduction         ComponentType = "DEDUCTION"
	TypePersonalDeduction ComponentType = "PERSONAL_DEDUCTION"
	TypeEmployerDeduction ComponentType = "EMPLOYER_DEDUCTION"
	TypeSocialInsurance   ComponentType = "SOCIAL_INSURANCE"
	TypeTax               ComponentType = "TAX"
	TypeOther             ComponentType = "OTHER"
)

// IsEarning reports whether the type counts towards total earnings.
func (t ComponentType) IsEarning() bool { return t == TypeEarning }

// CountsAsDeduction reports whether the type is subtracted from net pay.
// Employer-side deductions are informational and never reduce net pay.
func (t ComponentType) CountsAsDeduction() bool {
	return t == TypeDeduction || t == TypePersonalDeduction
}

// ParseComponentType accepts the canonical names case-insensitively.
func ParseComponentType(s string) (ComponentType, error) {
	switch ct := ComponentType(strings.ToUpper(strings.TrimSpace(s))); ct {
	case TypeEarning, TypeDeduction, TypePersonalDeduction, TypeEmployerDeduction,
		TypeSocialInsurance, TypeTax, TypeOther:
		return ct, nil
	}
	return "", fmt.Errorf("unknown component type %q", s)
}

// =============================================================================
// CALCULATION METHOD & STATUS
// =============================================================================

type CalculationMethod string

const (
	MethodFixed           CalculationMethod = "FIXED"
	MethodPercentage      CalculationMethod = "PERCENTAGE"
	MethodFormula         CalculationMethod = "FORMULA"
	MethodAttendanceBased CalculationMethod = "ATTENDANCE_BASED"
	MethodTableLookup     CalculationMethod = "TABLE_LOOKUP"
	MethodProrated        CalculationMethod = "PRORATED"
)

type CalculationStatus string

const (
	StatusPending    CalculationStatus = "PENDING"
	StatusProcessing CalculationStatus = "PROCESSING"
	StatusCompleted  CalculationStatus = "COMPLETED"
	StatusFailed     CalculationStatus = "FAILED"
)

// =============================================================================
// FACTS - Named scalar lookups
// =============================================================================

// Facts holds arbitrary scalar facts keyed by name. After NormalizeFacts,
// every numeric value is a decimal.Decimal.
type Facts map[string]any

// NormalizeFacts returns a copy of f with all numeric values converted to
// decimal.Decimal. Nested lists and tables are converted element-wise; a
// list of tables (as TOML decodes arrays of tables) becomes []any.
func NormalizeFacts(f Facts) Facts {
	out := make(Facts, len(f))
	for k, v := range f {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	if d, ok := toDecimal(v, false); ok {
		return d
	}
	switch t := v.(type) {
	case []any:
		list := make([]any, len(t))
		for i, e := range t {
			list[i] = normalizeValue(e)
		}
		return list
	case []map[string]any:
		list := make([]any, len(t))
		for i, e := range t {
			list[i] = map[string]any(NormalizeFacts(Facts(e)))
		}
		return list
	case map[string]any:
		return map[string]any(NormalizeFacts(Facts(t)))
	case Facts:
		return NormalizeFacts(t)
	}
	return v
}

// toDecimal converts numeric values. Strings are only parsed when
// parseStrings is set, so text facts survive normalization untouched.
func toDecimal(v any, parseStrings bool) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, false
		}
		return *t, true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt32(t), true
	case int64:
		return decimal.NewFromInt(t), true
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(t)), 0), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(t), 0), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case float64:
		return decimal.NewFromFloat(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		if !parseStrings {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		return d, err == nil
	}
	return decimal.Zero, false
}

// ToDecimal converts any numeric value, including numeric strings.
func ToDecimal(v any) (decimal.Decimal, bool) { return toDecimal(v, true) }

// Has reports whether key is present with a non-nil value.
func (f Facts) Has(key string) bool {
	v, ok := f[key]
	return ok && v != nil
}

// Decimal looks up a numeric fact. Numeric strings are accepted.
func (f Facts) Decimal(key string) (decimal.Decimal, bool) {
	v, ok := f[key]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	return toDecimal(v, true)
}

// DecimalOr returns the numeric fact or fallback when absent or non-numeric.
func (f Facts) DecimalOr(key string, fallback decimal.Decimal) decimal.Decimal {
	if d, ok := f.Decimal(key); ok {
		return d
	}
	return fallback
}

// String returns the fact formatted as text, or "" when absent.
func (f Facts) String(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case decimal.Decimal:
		return t.String()
	}
	return fmt.Sprint(v)
}

// StringOr returns the text fact or fallback when empty.
func (f Facts) StringOr(key, fallback string) string {
	if s := f.String(key); s != "" {
		return s
	}
	return fallback
}

// Bool returns a boolean fact. "true"/"false" strings and 0/1 numbers
// are accepted.
func (f Facts) Bool(key string, fallback bool) bool {
	v, ok := f[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
		return fallback
	}
	if d, ok := toDecimal(v, false); ok {
		return !d.IsZero()
	}
	return fallback
}

// Strings returns a list fact as strings. A single string is split on commas.
func (f Facts) Strings(key string) []string {
	v, ok := f[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// Value returns the raw fact.
func (f Facts) Value(key string) (any, bool) {
	v, ok := f[key]
	return v, ok
}

// Merge returns a new Facts with other's entries layered over f.
func (f Facts) Merge(other Facts) Facts {
	out := make(Facts, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = normalizeValue(v)
	}
	return out
}

// Lookup searches the given fact sets in order and returns the first
// numeric match for key.
func Lookup(key string, sets ...Facts) (decimal.Decimal, bool) {
	for _, s := range sets {
		if d, ok := s.Decimal(key); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}
