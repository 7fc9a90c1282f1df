package calculators

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// Year-end bonus tax modes.
const (
	BonusTaxSeparate = "separate"
	BonusTaxCombined = "combined"
)

var twelve = decimal.NewFromInt(12)

// YearEndBonusTax taxes the annual bonus.
//
//	separate  bonus / 12 selects a bracket, tax = bonus x rate - quick
//	          deduction, floored at zero. An average below every bracket
//	          is untaxed; one in a gap between brackets is a configuration
//	          error
//	combined  full progressive tax with the bonus added to monthly income
//
// The bonus is read from the YEAR_END_BONUS ledger entry, else from the
// bonus_field employee data field. No bonus means zero tax.
type YearEndBonusTax struct {
	payroll.ConfigurableCalculator
}

var _ payroll.Calculator = (*YearEndBonusTax)(nil)

func NewYearEndBonusTax(config payroll.Facts) *YearEndBonusTax {
	return &YearEndBonusTax{
		ConfigurableCalculator: payroll.NewConfigurableCalculator(CodeYearEndBonusTax, "Year-End Bonus Tax", config),
	}
}

func (c *YearEndBonusTax) DependsOn(code string) bool {
	if code == CodeYearEndBonus {
		return true
	}
	if c.Config.StringOr("calculation_method", BonusTaxSeparate) == BonusTaxCombined {
		return containsCode(incomeComponents(c.Config), code) || IsSocialDeduction(code)
	}
	return false
}

func (c *YearEndBonusTax) Calculate(cc *payroll.CalculationContext) (payroll.ComponentCalculationResult, error) {
	if err := c.ValidateContext(cc); err != nil {
		return payroll.ComponentCalculationResult{}, err
	}
	cfg := cc.TaxConfig.Merge(c.EffectiveConfig(cc))

	field := cfg.StringOr("bonus_field", "year_end_bonus")
	bonus, source := ledgerOrRaw(cc, CodeYearEndBonus, field)

	res := c.NewResult(payroll.TypePersonalDeduction, payroll.MethodTableLookup)
	res.Details["bonus"] = bonus
	res.Details["bonus_source"] = source
	if !bonus.IsPositive() {
		res.Logs = append(res.Logs, "no year-end bonus")
		return res, nil
	}

	switch method := cfg.StringOr("calculation_method", BonusTaxSeparate); method {
	case BonusTaxSeparate:
		return c.separate(cc, cfg, bonus, res)
	case BonusTaxCombined:
		return c.combined(cc, cfg, bonus, source, res)
	default:
		return payroll.ComponentCalculationResult{}, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
			"unsupported calculation_method %q", method)
	}
}

func (c *YearEndBonusTax) separate(cc *payroll.CalculationContext, cfg payroll.Facts, bonus decimal.Decimal,
	res payroll.ComponentCalculationResult) (payroll.ComponentCalculationResult, error) {
	brackets, err := resolveBrackets(cc, c.Code(), cfg)
	if err != nil {
		return payroll.ComponentCalculationResult{}, err
	}
	monthly := bonus.DivRound(twelve, 8)

	selected, found := selectBracket(monthly, brackets)
	if !found {
		if !belowBrackets(monthly, brackets) {
			return payroll.ComponentCalculationResult{}, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
				"monthly average %s falls in a gap between tax brackets", money(monthly))
		}
		res.Details["calculation_method"] = BonusTaxSeparate
		res.Details["monthly_average"] = monthly
		res.Details["rate"] = decimal.Zero
		res.Logs = append(res.Logs, fmt.Sprintf("monthly average %s is below every bracket, no tax", money(monthly)))
		return res, nil
	}
	tax := bonus.Mul(selected.Rate).Sub(selected.QuickDeduction)
	if tax.IsNegative() {
		tax = decimal.Zero
	}

	res.Amount = payroll.RoundAmount(tax)
	res.Details["calculation_method"] = BonusTaxSeparate
	res.Details["monthly_average"] = monthly
	res.Details["rate"] = selected.Rate
	res.Details["quick_deduction"] = selected.QuickDeduction
	res.Logs = append(res.Logs, fmt.Sprintf("bonus %s x %s - %s = %s (monthly average %s)",
		money(bonus), selected.Rate, money(selected.QuickDeduction), money(res.Amount), money(monthly)))
	return res, nil
}

// selectBracket returns the bracket containing amount. An amount above
// every bounded bracket falls into the one with the highest Min.
func selectBracket(amount decimal.Decimal, brackets []TaxBracket) (TaxBracket, bool) {
	for _, b := range brackets {
		if b.Contains(amount) {
			return b, true
		}
	}
	top := brackets[0]
	for _, b := range brackets {
		if b.Max == nil || b.Max.GreaterThanOrEqual(amount) {
			return TaxBracket{}, false
		}
		if b.Min.GreaterThan(top.Min) {
			top = b
		}
	}
	return top, true
}

// belowBrackets reports whether amount does not exceed the lowest Min.
func belowBrackets(amount decimal.Decimal, brackets []TaxBracket) bool {
	for _, b := range brackets {
		if amount.GreaterThan(b.Min) {
			return false
		}
	}
	return true
}

// combined runs a fresh income tax over the ledger with the bonus folded in.
// A bonus already on the ledger is counted once.
func (c *YearEndBonusTax) combined(cc *payroll.CalculationContext, cfg payroll.Facts, bonus decimal.Decimal,
	source string, res payroll.ComponentCalculationResult) (payroll.ComponentCalculationResult, error) {
	tax := newTax(c.Code(), c.Name(), cfg)

	var inner payroll.ComponentCalculationResult
	run := func() error {
		var err error
		inner, err = tax.Calculate(cc)
		return err
	}
	var err error
	if source == "ledger" {
		err = run()
	} else {
		err = cc.WithTemporaryCalculation(CodeYearEndBonus, bonus, run)
	}
	if err != nil {
		return payroll.ComponentCalculationResult{}, err
	}

	res.Amount = inner.Amount
	res.Details["calculation_method"] = BonusTaxCombined
	res.Details["taxable_income"] = inner.Details["taxable_income"]
	res.Details["total_income"] = inner.Details["total_income"]
	res.Logs = append(res.Logs, fmt.Sprintf("combined tax on income including bonus %s = %s",
		money(bonus), money(res.Amount)))
	return res, nil
}
