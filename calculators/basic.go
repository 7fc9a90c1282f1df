package calculators

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// BasicSalary computes base pay, prorated by attendance when available.
//
// Base salary resolution, first match wins:
//  1. salary_config.basic_salary
//  2. employee_data.basic_salary, base_salary, monthly_salary
//  3. the context BaseSalary, if positive
//  4. config default_salary
type BasicSalary struct {
	payroll.ConfigurableCalculator
}

var _ payroll.Calculator = (*BasicSalary)(nil)

func NewBasicSalary(config payroll.Facts) *BasicSalary {
	return &BasicSalary{
		ConfigurableCalculator: payroll.NewConfigurableCalculator(CodeBasicSalary, "Basic Salary", config),
	}
}

func (c *BasicSalary) Calculate(cc *payroll.CalculationContext) (payroll.ComponentCalculationResult, error) {
	cfg, err := c.Prepare(cc)
	if err != nil {
		return payroll.ComponentCalculationResult{}, err
	}

	base, source, ok := c.resolveBase(cc, cfg)
	if !ok {
		return payroll.ComponentCalculationResult{}, payroll.MissingData(cc.EmployeeID, c.Code(),
			"no basic salary found in salary config, employee data or default_salary")
	}

	res := c.NewResult(payroll.TypeEarning, payroll.MethodFixed)
	res.Details["base_salary"] = base
	res.Details["base_source"] = source

	amount := base
	if a := cc.Attendance; a != nil && cfg.Bool("use_attendance", true) {
		amount = payroll.CalculateProratedAmount(base, a.WorkDays, a.StandardWorkDays)
		res.Method = payroll.MethodAttendanceBased
		res.Details["work_days"] = a.WorkDays
		res.Details["standard_work_days"] = a.StandardWorkDays
		res.Details["attendance_rate"] = a.AttendanceRate()
		res.Logs = append(res.Logs, fmt.Sprintf("prorated %s by %s/%s work days",
			money(base), a.WorkDays, a.StandardWorkDays))
	} else {
		res.Logs = append(res.Logs, fmt.Sprintf("fixed basic salary %s from %s", money(base), source))
	}

	res.Amount = payroll.RoundAmount(amount)
	return res, nil
}

func (c *BasicSalary) resolveBase(cc *payroll.CalculationContext, cfg payroll.Facts) (decimal.Decimal, string, bool) {
	if d, ok := cc.SalaryConfig.Decimal("basic_salary"); ok {
		return d, "salary_config", true
	}
	if d, ok := rawBasicSalary(cc); ok {
		return d, "employee_data", true
	}
	if d, ok := cfg.Decimal("default_salary"); ok {
		return d, "default_salary", true
	}
	return decimal.Zero, "", false
}
