package calculators

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// Allowance calculation types.
const (
	AllowanceFixed           = "fixed"
	AllowancePercentage      = "percentage"
	AllowanceAttendanceBased = "attendance_based"
)

// Allowance computes one allowance line.
//
//	fixed             amount
//	percentage        percentage% of base_component (ledger first, then the raw
//	                  base_field from employee data if the component has not run)
//	attendance_based  daily_rate x work_days, or amount x attendance_rate
type Allowance struct {
	payroll.ConfigurableCalculator
}

var _ payroll.Calculator = (*Allowance)(nil)

func NewAllowance(code, name string, config payroll.Facts) *Allowance {
	return &Allowance{
		ConfigurableCalculator: payroll.NewConfigurableCalculator(code, name, config, "calculation_type"),
	}
}

// DependsOn reports the base component of a percentage allowance.
func (c *Allowance) DependsOn(code string) bool {
	if c.Config.String("calculation_type") != AllowancePercentage {
		return false
	}
	return code == c.baseComponent(c.Config)
}

func (c *Allowance) baseComponent(cfg payroll.Facts) string {
	return cfg.StringOr("base_component", CodeBasicSalary)
}

func (c *Allowance) Calculate(cc *payroll.CalculationContext) (payroll.ComponentCalculationResult, error) {
	cfg, err := c.Prepare(cc)
	if err != nil {
		return payroll.ComponentCalculationResult{}, err
	}

	switch kind := cfg.String("calculation_type"); kind {
	case AllowanceFixed:
		return c.fixed(cc, cfg)
	case AllowancePercentage:
		return c.percentage(cc, cfg)
	case AllowanceAttendanceBased:
		return c.attendanceBased(cc, cfg)
	default:
		return payroll.ComponentCalculationResult{}, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
			"unsupported allowance calculation_type %q", kind)
	}
}

func (c *Allowance) fixed(cc *payroll.CalculationContext, cfg payroll.Facts) (payroll.ComponentCalculationResult, error) {
	amount, ok := cfg.Decimal("amount")
	if !ok {
		return payroll.ComponentCalculationResult{}, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
			"fixed allowance requires amount")
	}
	res := c.NewResult(payroll.TypeEarning, payroll.MethodFixed)
	res.Amount = payroll.RoundAmount(amount)
	res.Logs = append(res.Logs, "fixed allowance "+money(res.Amount))
	return res, nil
}

func (c *Allowance) percentage(cc *payroll.CalculationContext, cfg payroll.Facts) (payroll.ComponentCalculationResult, error) {
	pct, ok := cfg.Decimal("percentage")
	if !ok {
		return payroll.ComponentCalculationResult{}, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
			"percentage allowance requires percentage")
	}
	baseCode := c.baseComponent(cfg)
	field := cfg.StringOr("base_field", strings.ToLower(baseCode))
	base, source := ledgerOrRaw(cc, baseCode, field)

	res := c.NewResult(payroll.TypeEarning, payroll.MethodPercentage)
	res.Amount = payroll.RoundAmount(payroll.ApplyPercentage(base, pct))
	res.Details["base_component"] = baseCode
	res.Details["base_amount"] = base
	res.Details["base_source"] = source
	res.Details["percentage"] = pct
	res.Logs = append(res.Logs, fmt.Sprintf("%s%% of %s %s (%s)", pct, baseCode, money(base), source))
	return res, nil
}

func (c *Allowance) attendanceBased(cc *payroll.CalculationContext, cfg payroll.Facts) (payroll.ComponentCalculationResult, error) {
	res := c.NewResult(payroll.TypeEarning, payroll.MethodAttendanceBased)
	a := cc.Attendance
	if a == nil {
		res.Logs = append(res.Logs, "no attendance data, allowance is zero")
		return res, nil
	}

	var amount decimal.Decimal
	if daily, ok := cfg.Decimal("daily_rate"); ok {
		amount = daily.Mul(a.WorkDays)
		res.Details["daily_rate"] = daily
		res.Logs = append(res.Logs, fmt.Sprintf("%s per day x %s days", money(daily), a.WorkDays))
	} else if full, ok := cfg.Decimal("amount"); ok {
		amount = payroll.CalculateProratedAmount(full, a.WorkDays, a.StandardWorkDays)
		res.Details["full_amount"] = full
		res.Logs = append(res.Logs, fmt.Sprintf("%s prorated by %s/%s days", money(full), a.WorkDays, a.StandardWorkDays))
	} else {
		return payroll.ComponentCalculationResult{}, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
			"attendance based allowance requires daily_rate or amount")
	}
	res.Details["work_days"] = a.WorkDays
	res.Amount = payroll.RoundAmount(amount)
	return res, nil
}
