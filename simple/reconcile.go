package simple

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// DefaultTolerance is the largest difference accepted between a declared
// and a computed total.
var DefaultTolerance = decimal.RequireFromString("0.01")

// Reconciled fields.
const (
	FieldGrossPay        = "gross_pay"
	FieldTotalDeductions = "total_deductions"
	FieldNetPay          = "net_pay"
)

// DeclaredTotals holds the totals stated by the import source. Nil fields
// are not checked.
type DeclaredTotals struct {
	GrossPay        *decimal.Decimal
	TotalDeductions *decimal.Decimal
	NetPay          *decimal.Decimal
}

// IsEmpty reports whether no total was declared.
func (d DeclaredTotals) IsEmpty() bool {
	return d.GrossPay == nil && d.TotalDeductions == nil && d.NetPay == nil
}

// Discrepancy is one declared total that does not match.
type Discrepancy struct {
	Field      string
	Declared   decimal.Decimal
	Computed   decimal.Decimal
	Difference decimal.Decimal
}

// Reconcile compares result against declared using DefaultTolerance.
func Reconcile(result *payroll.CalculationResult, declared DeclaredTotals) []Discrepancy {
	return ReconcileWithin(result, declared, DefaultTolerance)
}

// ReconcileWithin compares result against declared. A difference whose
// absolute value exceeds tolerance is a discrepancy.
func ReconcileWithin(result *payroll.CalculationResult, declared DeclaredTotals, tolerance decimal.Decimal) []Discrepancy {
	checks := []struct {
		field    string
		declared *decimal.Decimal
		computed decimal.Decimal
	}{
		{FieldGrossPay, declared.GrossPay, result.TotalEarnings},
		{FieldTotalDeductions, declared.TotalDeductions, result.TotalDeductions},
		{FieldNetPay, declared.NetPay, result.NetPay},
	}

	var out []Discrepancy
	for _, c := range checks {
		if c.declared == nil {
			continue
		}
		diff := c.computed.Sub(*c.declared)
		if diff.Abs().GreaterThan(tolerance) {
			out = append(out, Discrepancy{
				Field:      c.field,
				Declared:   *c.declared,
				Computed:   c.computed,
				Difference: diff,
			})
		}
	}
	return out
}
