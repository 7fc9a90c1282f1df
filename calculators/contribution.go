package calculators

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// Contribution base strategies.
const (
	BaseBasicSalary   = "basic_salary"
	BaseTotalSalary   = "total_salary"
	BaseFixed         = "fixed"
	BaseEmployeeField = "employee_field"
)

// contribution is the shared base/rate/limit pattern behind social
// insurance and housing fund. Parameters missing from the calculator's
// config are looked up in the context's social insurance config, first
// under a nested map keyed by component code, then at the top level.
type contribution struct {
	payroll.ConfigurableCalculator
	allowedBases []string
}

func newContribution(code, name string, config payroll.Facts, bases ...string) contribution {
	return contribution{
		ConfigurableCalculator: payroll.NewConfigurableCalculator(code, name, config, "employee_rate"),
		allowedBases:           bases,
	}
}

func (c contribution) method(cfg payroll.Facts) string {
	return cfg.StringOr("base_calculation", BaseBasicSalary)
}

// dependsOn covers the ledger codes a base strategy reads.
func (c contribution) dependsOn(code string) bool {
	switch c.method(c.Config) {
	case BaseBasicSalary:
		return code == CodeBasicSalary
	case BaseTotalSalary:
		return containsCode(EarningCodes, code)
	}
	return false
}

// prepare merges the context fallback config under the calculator config
// before validating required keys.
func (c contribution) prepare(cc *payroll.CalculationContext) (payroll.Facts, error) {
	if err := c.ValidateContext(cc); err != nil {
		return nil, err
	}
	fallback := cc.SocialInsuranceConfig
	switch nested := fallback[c.Code()].(type) {
	case map[string]any:
		fallback = fallback.Merge(payroll.Facts(nested))
	case payroll.Facts:
		fallback = fallback.Merge(nested)
	}
	cfg := fallback.Merge(c.EffectiveConfig(cc))
	if err := c.ValidateConfig(cc.EmployeeID, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveBase applies the configured base strategy, unclamped.
func (c contribution) resolveBase(cc *payroll.CalculationContext, cfg payroll.Facts) (decimal.Decimal, error) {
	method := c.method(cfg)
	if !containsCode(c.allowedBases, method) {
		return decimal.Zero, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
			"unsupported base_calculation %q", method)
	}

	switch method {
	case BaseBasicSalary:
		base, _ := ledgerOrRaw(cc, CodeBasicSalary, "basic_salary")
		return base, nil
	case BaseTotalSalary:
		return sumCodes(cc, EarningCodes), nil
	case BaseFixed:
		base, ok := cfg.Decimal("fixed_base")
		if !ok {
			return decimal.Zero, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
				"fixed base_calculation requires fixed_base")
		}
		return base, nil
	case BaseEmployeeField:
		field := cfg.String("base_field")
		if field == "" {
			return decimal.Zero, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
				"employee_field base_calculation requires base_field")
		}
		base, ok := cc.EmployeeData.Decimal(field)
		if !ok {
			return decimal.Zero, payroll.MissingData(cc.EmployeeID, c.Code(),
				"employee data field %q is missing", field)
		}
		return base, nil
	}
	return decimal.Zero, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
		"unsupported base_calculation %q", method)
}

// ApplyBaseLimits clamps base to the configured min_base/max_base.
func (c contribution) ApplyBaseLimits(base decimal.Decimal, cfg payroll.Facts) decimal.Decimal {
	return applyBaseLimits(base, optionalDecimal("min_base", cfg), optionalDecimal("max_base", cfg))
}

// calculate returns the employee contribution result. The employer share
// is reported in details only and never enters the ledger.
func (c contribution) calculate(cc *payroll.CalculationContext) (payroll.ComponentCalculationResult, error) {
	cfg, err := c.prepare(cc)
	if err != nil {
		return payroll.ComponentCalculationResult{}, err
	}
	employeeRate, ok := cfg.Decimal("employee_rate")
	if !ok {
		return payroll.ComponentCalculationResult{}, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
			"employee_rate must be numeric")
	}
	employerRate := cfg.DecimalOr("employer_rate", decimal.Zero)

	raw, err := c.resolveBase(cc, cfg)
	if err != nil {
		return payroll.ComponentCalculationResult{}, err
	}
	base := c.ApplyBaseLimits(raw, cfg)

	employee := payroll.RoundAmount(payroll.ApplyPercentage(base, employeeRate))
	employer := payroll.RoundAmount(payroll.ApplyPercentage(base, employerRate))

	res := c.NewResult(payroll.TypePersonalDeduction, payroll.MethodPercentage)
	res.Amount = employee
	res.Details["base_calculation"] = c.method(cfg)
	res.Details["raw_base"] = raw
	res.Details["base_used"] = base
	res.Details["employee_rate"] = employeeRate
	res.Details["employer_rate"] = employerRate
	res.Details["employer_contribution"] = employer
	if !raw.Equal(base) {
		res.Logs = append(res.Logs, fmt.Sprintf("base %s clamped to %s", money(raw), money(base)))
	}
	res.Logs = append(res.Logs, fmt.Sprintf("employee %s%% of %s = %s, employer %s%% = %s",
		employeeRate, money(base), money(employee), employerRate, money(employer)))
	return res, nil
}

// =============================================================================
// SOCIAL INSURANCE
// =============================================================================

// SocialInsurance computes one social insurance contribution (pension,
// medical, unemployment, ...). Codes conventionally start with SOCIAL_.
type SocialInsurance struct {
	contribution
}

var _ payroll.Calculator = (*SocialInsurance)(nil)

func NewSocialInsurance(code, name string, config payroll.Facts) *SocialInsurance {
	return &SocialInsurance{
		contribution: newContribution(code, name, config,
			BaseBasicSalary, BaseTotalSalary, BaseFixed, BaseEmployeeField),
	}
}

func (c *SocialInsurance) DependsOn(code string) bool { return c.dependsOn(code) }

func (c *SocialInsurance) Calculate(cc *payroll.CalculationContext) (payroll.ComponentCalculationResult, error) {
	return c.calculate(cc)
}

// =============================================================================
// HOUSING FUND
// =============================================================================

// HousingFund computes the housing fund contribution.
type HousingFund struct {
	contribution
}

var _ payroll.Calculator = (*HousingFund)(nil)

func NewHousingFund(config payroll.Facts) *HousingFund {
	return &HousingFund{
		contribution: newContribution(CodeHousingFund, "Housing Fund", config,
			BaseBasicSalary, BaseEmployeeField, BaseFixed),
	}
}

func (c *HousingFund) DependsOn(code string) bool { return c.dependsOn(code) }

func (c *HousingFund) Calculate(cc *payroll.CalculationContext) (payroll.ComponentCalculationResult, error) {
	return c.calculate(cc)
}
