package calculators

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// Overtime defaults. 174 = 21.75 days x 8 hours.
var (
	DefaultOvertimeMultiplier   = decimal.RequireFromString("1.5")
	DefaultStandardMonthlyHours = decimal.NewFromInt(174)
)

// Overtime pays hourly_rate x multiplier x overtime_hours, where
// hourly_rate = BASIC_SALARY (ledger, else raw) / standard_monthly_hours.
type Overtime struct {
	payroll.ConfigurableCalculator
}

var _ payroll.Calculator = (*Overtime)(nil)

func NewOvertime(config payroll.Facts) *Overtime {
	return &Overtime{
		ConfigurableCalculator: payroll.NewConfigurableCalculator(CodeOvertimePay, "Overtime Pay", config),
	}
}

func (c *Overtime) DependsOn(code string) bool { return code == CodeBasicSalary }

func (c *Overtime) Calculate(cc *payroll.CalculationContext) (payroll.ComponentCalculationResult, error) {
	cfg, err := c.Prepare(cc)
	if err != nil {
		return payroll.ComponentCalculationResult{}, err
	}

	res := c.NewResult(payroll.TypeEarning, payroll.MethodAttendanceBased)
	if cc.Attendance == nil || !cc.Attendance.OvertimeHours.IsPositive() {
		res.Details["overtime_hours"] = decimal.Zero
		res.Logs = append(res.Logs, "no overtime hours")
		return res, nil
	}
	hours := cc.Attendance.OvertimeHours

	monthlyHours := cfg.DecimalOr("standard_monthly_hours", DefaultStandardMonthlyHours)
	if !monthlyHours.IsPositive() {
		return payroll.ComponentCalculationResult{}, payroll.InvalidConfiguration(cc.EmployeeID, c.Code(),
			"standard_monthly_hours must be positive, got %s", monthlyHours)
	}
	multiplier := cfg.DecimalOr("multiplier", DefaultOvertimeMultiplier)

	basic, source := ledgerOrRaw(cc, CodeBasicSalary, "basic_salary")
	hourly := basic.DivRound(monthlyHours, 8)

	res.Amount = payroll.RoundAmount(hourly.Mul(multiplier).Mul(hours))
	res.Details["basic_salary"] = basic
	res.Details["basic_source"] = source
	res.Details["hourly_rate"] = hourly
	res.Details["multiplier"] = multiplier
	res.Details["overtime_hours"] = hours
	res.Logs = append(res.Logs, fmt.Sprintf("%sh x %s x %s/h", hours, multiplier, hourly.StringFixed(4)))
	return res, nil
}
