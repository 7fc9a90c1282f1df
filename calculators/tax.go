package calculators

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// DefaultBasicDeduction is the monthly tax-free threshold.
var DefaultBasicDeduction = decimal.NewFromInt(5000)

// TaxBracket is one progressive bracket. Max nil means unbounded. Rate is a
// fraction (0.03 = 3%).
type TaxBracket struct {
	Min            decimal.Decimal
	Max            *decimal.Decimal
	Rate           decimal.Decimal
	QuickDeduction decimal.Decimal
}

// Contains reports whether amount falls in (Min, Max].
func (b TaxBracket) Contains(amount decimal.Decimal) bool {
	if amount.LessThanOrEqual(b.Min) && !(b.Min.IsZero() && amount.IsZero()) {
		return false
	}
	return b.Max == nil || amount.LessThanOrEqual(*b.Max)
}

func bracket(min int64, max int64, rate string, quick int64) TaxBracket {
	b := TaxBracket{
		Min:            decimal.NewFromInt(min),
		Rate:           decimal.RequireFromString(rate),
		QuickDeduction: decimal.NewFromInt(quick),
	}
	if max > 0 {
		upper := decimal.NewFromInt(max)
		b.Max = &upper
	}
	return b
}

// DefaultTaxBrackets is the monthly comprehensive-income table.
func DefaultTaxBrackets() []TaxBracket {
	return []TaxBracket{
		bracket(0, 3000, "0.03", 0),
		bracket(3000, 12000, "0.10", 210),
		bracket(12000, 25000, "0.20", 1410),
		bracket(25000, 35000, "0.25", 2660),
		bracket(35000, 55000, "0.30", 4410),
		bracket(55000, 80000, "0.35", 7160),
		bracket(80000, 0, "0.45", 15160),
	}
}

// ParseTaxBrackets reads brackets from a config value: either []TaxBracket
// or a list of maps with min, max, rate and quick_deduction keys. Lists of
// raw maps are parsed without normalization, so numbers may be of any Go
// numeric type.
func ParseTaxBrackets(v any) ([]TaxBracket, error) {
	switch t := v.(type) {
	case []TaxBracket:
		return append([]TaxBracket(nil), t...), nil
	case []map[string]any:
		list := make([]any, len(t))
		for i, m := range t {
			list[i] = m
		}
		return ParseTaxBrackets(list)
	case []payroll.Facts:
		list := make([]any, len(t))
		for i, m := range t {
			list[i] = m
		}
		return ParseTaxBrackets(list)
	case []any:
		out := make([]TaxBracket, 0, len(t))
		for i, raw := range t {
			var m payroll.Facts
			switch e := raw.(type) {
			case map[string]any:
				m = payroll.Facts(e)
			case payroll.Facts:
				m = e
			default:
				return nil, fmt.Errorf("bracket %d: expected object, got %T", i, raw)
			}
			rate, ok := m.Decimal("rate")
			if !ok {
				return nil, fmt.Errorf("bracket %d: rate is required", i)
			}
			b := TaxBracket{
				Min:            m.DecimalOr("min", decimal.Zero),
				Rate:           rate,
				QuickDeduction: m.DecimalOr("quick_deduction", decimal.Zero),
			}
			if upper, ok := m.Decimal("max"); ok {
				b.Max = &upper
			}
			out = append(out, b)
		}
		return out, nil
	}
	return nil, fmt.Errorf("tax brackets: unsupported type %T", v)
}

// ProgressiveTax walks brackets in the order given, taxing the slice of
// income that falls inside each one. It stops once the income is used up.
// Quick deductions are not applied.
func ProgressiveTax(taxable decimal.Decimal, brackets []TaxBracket) (decimal.Decimal, []map[string]any) {
	tax := decimal.Zero
	remaining := taxable
	var breakdown []map[string]any
	for _, b := range brackets {
		if !remaining.IsPositive() {
			break
		}
		if !taxable.GreaterThan(b.Min) {
			continue
		}
		upper := taxable
		if b.Max != nil && b.Max.LessThan(taxable) {
			upper = *b.Max
		}
		inBracket := upper.Sub(b.Min)
		portion := inBracket.Mul(b.Rate)
		tax = tax.Add(portion)
		remaining = remaining.Sub(inBracket)
		breakdown = append(breakdown, map[string]any{
			"min":             b.Min,
			"rate":            b.Rate,
			"quick_deduction": b.QuickDeduction,
			"taxable":         inBracket,
			"tax":             portion,
		})
	}
	return tax, breakdown
}

// =============================================================================
// INCOME TAX
// =============================================================================

// Tax computes progressive personal income tax:
//
//	taxable = Σ income components − basic_deduction − Σ SOCIAL_*/HOUSING_FUND
//	          − Σ additional deduction fields, floored at zero
//
// Parameters missing from the calculator config are read from the
// context's tax config.
type Tax struct {
	payroll.ConfigurableCalculator
}

var _ payroll.Calculator = (*Tax)(nil)

func NewTax(config payroll.Facts) *Tax {
	return newTax(CodeIncomeTax, "Income Tax", config)
}

func newTax(code, name string, config payroll.Facts) *Tax {
	return &Tax{ConfigurableCalculator: payroll.NewConfigurableCalculator(code, name, config)}
}

func (c *Tax) DependsOn(code string) bool {
	return containsCode(incomeComponents(c.Config), code) || IsSocialDeduction(code)
}

func incomeComponents(cfg payroll.Facts) []string {
	if codes := cfg.Strings("income_components"); len(codes) > 0 {
		return codes
	}
	return EarningCodes
}

func (c *Tax) Calculate(cc *payroll.CalculationContext) (payroll.ComponentCalculationResult, error) {
	if err := c.ValidateContext(cc); err != nil {
		return payroll.ComponentCalculationResult{}, err
	}
	cfg := cc.TaxConfig.Merge(c.EffectiveConfig(cc))
	if err := c.ValidateConfig(cc.EmployeeID, cfg); err != nil {
		return payroll.ComponentCalculationResult{}, err
	}

	brackets, err := resolveBrackets(cc, c.Code(), cfg)
	if err != nil {
		return payroll.ComponentCalculationResult{}, err
	}

	income := sumCodes(cc, incomeComponents(cfg))
	basic := cfg.DecimalOr("basic_deduction", DefaultBasicDeduction)
	social := cc.SumCalculated(IsSocialDeduction)

	fields := cfg.Strings("additional_deduction_fields")
	if len(fields) == 0 {
		fields = AdditionalDeductionFields
	}
	additional := decimal.Zero
	for _, f := range fields {
		additional = additional.Add(cc.EmployeeData.DecimalOr(f, decimal.Zero))
	}

	taxable := income.Sub(basic).Sub(social).Sub(additional)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	tax, breakdown := ProgressiveTax(taxable, brackets)

	res := c.NewResult(payroll.TypePersonalDeduction, payroll.MethodTableLookup)
	res.Amount = payroll.RoundAmount(tax)
	res.Details["total_income"] = income
	res.Details["basic_deduction"] = basic
	res.Details["social_deductions"] = social
	res.Details["additional_deductions"] = additional
	res.Details["taxable_income"] = taxable
	res.Details["brackets"] = breakdown
	res.Logs = append(res.Logs, fmt.Sprintf("taxable %s = income %s - basic %s - social %s - additional %s",
		money(taxable), money(income), money(basic), money(social), money(additional)))
	res.Logs = append(res.Logs, fmt.Sprintf("tax %s over %d bracket(s)", money(res.Amount), len(breakdown)))
	return res, nil
}

func resolveBrackets(cc *payroll.CalculationContext, code string, cfg payroll.Facts) ([]TaxBracket, error) {
	raw, ok := cfg.Value("tax_brackets")
	if !ok || raw == nil {
		return DefaultTaxBrackets(), nil
	}
	brackets, err := ParseTaxBrackets(raw)
	if err != nil {
		return nil, payroll.InvalidConfiguration(cc.EmployeeID, code, "invalid tax_brackets: %v", err)
	}
	if len(brackets) == 0 {
		return nil, payroll.InvalidConfiguration(cc.EmployeeID, code, "tax_brackets is empty")
	}
	return brackets, nil
}
