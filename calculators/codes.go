/*
Package calculators provides the domain payroll calculators.

PURPOSE:
  Concrete payroll.Calculator strategies: basic salary, allowances,
  overtime, social insurance, housing fund, progressive income tax and
  year-end bonus tax. Each is an independent strategy that talks to the
  others only through the context ledger.

CALCULATORS:
  BasicSalary       attendance-prorated or fixed base pay
  Allowance         fixed, percentage-of-component or attendance-based
  Overtime          hourly rate x multiplier x overtime hours
  SocialInsurance   employee contribution on a clamped base
  HousingFund       same pattern, narrower base strategies
  Tax               progressive bracket walk over taxable income
  YearEndBonusTax   averaged monthly lookup (separate) or combined

ORDERING:
  Calculators declare what they read through DependsOn, so the engine
  can derive the order. Order still matters when one is given
  explicitly: a percentage allowance on BASIC_SALARY that runs first
  falls back to the raw employee field, unprorated. DependsOn sees only
  the static config; a context fallback or rule parameter that points a
  calculator at a code the engine has not calculated yet fails the run.

EXAMPLE:
  pension, _ := calculators.NewSocialInsurance("SOCIAL_PENSION", "Pension", payroll.Facts{
      "employee_rate": 8, "employer_rate": 16,
      "min_base": 3000, "max_base": 20000,
  })

SEE ALSO:
  - payroll/calculator.go: Contract and helpers
  - factory/: JSON descriptors for every calculator here
*/
package calculators

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// COMPONENT CODES
// =============================================================================

const (
	CodeBasicSalary     = "BASIC_SALARY"
	CodeOvertimePay     = "OVERTIME_PAY"
	CodeHousingFund     = "HOUSING_FUND"
	CodeIncomeTax       = "INCOME_TAX"
	CodeYearEndBonus    = "YEAR_END_BONUS"
	CodeYearEndBonusTax = "YEAR_END_BONUS_TAX"

	// SocialInsurancePrefix marks social insurance component codes.
	SocialInsurancePrefix = "SOCIAL_"
)

// Common allowance and bonus codes.
const (
	CodePositionAllowance      = "POSITION_ALLOWANCE"
	CodeMealAllowance          = "MEAL_ALLOWANCE"
	CodeTransportAllowance     = "TRANSPORT_ALLOWANCE"
	CodeHousingAllowance       = "HOUSING_ALLOWANCE"
	CodeCommunicationAllowance = "COMMUNICATION_ALLOWANCE"
	CodePerformanceBonus       = "PERFORMANCE_BONUS"
	CodeOtherAllowance         = "OTHER_ALLOWANCE"
)

// EarningCodes is the fixed allow-list of ledger codes counted as income
// by total-salary bases and by Tax.
var EarningCodes = []string{
	CodeBasicSalary,
	CodePositionAllowance,
	CodeMealAllowance,
	CodeTransportAllowance,
	CodeHousingAllowance,
	CodeCommunicationAllowance,
	CodePerformanceBonus,
	CodeOtherAllowance,
	CodeOvertimePay,
	CodeYearEndBonus,
}

// AdditionalDeductionFields are employee data fields subtracted from
// taxable income.
var AdditionalDeductionFields = []string{
	"child_education",
	"continuing_education",
	"serious_illness",
	"housing_loan_interest",
	"housing_rent",
	"elderly_support",
	"infant_care",
}

// basicSalaryFields is the employee data fallback chain for base pay.
var basicSalaryFields = []string{"basic_salary", "base_salary", "monthly_salary"}

// IsSocialDeduction reports whether code is withheld before income tax.
func IsSocialDeduction(code string) bool {
	return strings.HasPrefix(code, SocialInsurancePrefix) || code == CodeHousingFund
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// rawBasicSalary looks up the unprorated basic salary from employee data,
// falling back to the context base salary.
func rawBasicSalary(cc *payroll.CalculationContext) (decimal.Decimal, bool) {
	for _, field := range basicSalaryFields {
		if d, ok := cc.EmployeeData.Decimal(field); ok {
			return d, true
		}
	}
	if cc.BaseSalary.IsPositive() {
		return cc.BaseSalary, true
	}
	return decimal.Zero, false
}

// ledgerOrRaw prefers a computed ledger amount and falls back to an employee
// field when the component has not run yet.
func ledgerOrRaw(cc *payroll.CalculationContext, code, field string) (decimal.Decimal, string) {
	if cc.HasCalculation(code) {
		return cc.CalculatedAmount(code), "ledger"
	}
	if field != "" {
		if d, ok := cc.EmployeeData.Decimal(field); ok {
			return d, "employee_data"
		}
	}
	if code == CodeBasicSalary {
		if d, ok := rawBasicSalary(cc); ok {
			return d, "employee_data"
		}
	}
	return decimal.Zero, "none"
}

// sumCodes adds the ledger amounts for codes.
func sumCodes(cc *payroll.CalculationContext, codes []string) decimal.Decimal {
	set := toSet(codes)
	return cc.SumCalculated(func(code string) bool { return set[code] })
}

func toSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// applyBaseLimits clamps base into [min, max] for whichever bounds exist.
func applyBaseLimits(base decimal.Decimal, lower, upper *decimal.Decimal) decimal.Decimal {
	if lower != nil && base.LessThan(*lower) {
		base = *lower
	}
	if upper != nil && base.GreaterThan(*upper) {
		base = *upper
	}
	return base
}

func optionalDecimal(key string, sets ...payroll.Facts) *decimal.Decimal {
	if d, ok := payroll.Lookup(key, sets...); ok {
		return &d
	}
	return nil
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }
