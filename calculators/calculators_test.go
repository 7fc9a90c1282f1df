package calculators_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/calculators"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func attendance(work, std, overtime int64) *payroll.AttendanceData {
	return payroll.NewAttendanceData(decimal.NewFromInt(work), decimal.NewFromInt(std), decimal.NewFromInt(overtime))
}

func newContext(data payroll.Facts, a *payroll.AttendanceData) *payroll.CalculationContext {
	return payroll.NewCalculationContext(payroll.ContextInput{
		EmployeeID:   "emp-1",
		PeriodID:     "2025-01",
		EmployeeData: data,
		Attendance:   a,
	})
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "expected %s, got %s", want, got)
}

// =============================================================================
// BASIC SALARY
// =============================================================================

func TestBasicSalary_ProratedByAttendance(t *testing.T) {
	// GIVEN: 8000 basic salary, 20 of 22 days worked
	// WHEN: Calculating basic salary
	// THEN: Amount is 8000 x 20/22 rounded to 7272.73

	cc := newContext(payroll.Facts{"basic_salary": 8000}, attendance(20, 22, 0))

	res, err := calculators.NewBasicSalary(nil).Calculate(cc)
	require.NoError(t, err)

	assertAmount(t, "7272.73", res.Amount)
	assert.Equal(t, payroll.TypeEarning, res.Type)
	assert.Equal(t, payroll.MethodAttendanceBased, res.Method)
}

func TestBasicSalary_NoAttendance_FullAmount(t *testing.T) {
	cc := newContext(payroll.Facts{"monthly_salary": "8000"}, nil)

	res, err := calculators.NewBasicSalary(nil).Calculate(cc)
	require.NoError(t, err)

	assertAmount(t, "8000", res.Amount)
	assert.Equal(t, payroll.MethodFixed, res.Method)
}

func TestBasicSalary_UseAttendanceDisabled(t *testing.T) {
	cc := newContext(payroll.Facts{"basic_salary": 8000}, attendance(11, 22, 0))

	res, err := calculators.NewBasicSalary(payroll.Facts{"use_attendance": false}).Calculate(cc)
	require.NoError(t, err)

	assertAmount(t, "8000", res.Amount)
}

func TestBasicSalary_SalaryConfigWins(t *testing.T) {
	cc := payroll.NewCalculationContext(payroll.ContextInput{
		EmployeeID:   "emp-1",
		EmployeeData: payroll.Facts{"basic_salary": 8000},
		SalaryConfig: payroll.Facts{"basic_salary": 9000},
	})

	res, err := calculators.NewBasicSalary(nil).Calculate(cc)
	require.NoError(t, err)

	assertAmount(t, "9000", res.Amount)
	assert.Equal(t, "salary_config", res.Details["base_source"])
}

func TestBasicSalary_DefaultSalaryFallback(t *testing.T) {
	cc := newContext(payroll.Facts{}, nil)

	res, err := calculators.NewBasicSalary(payroll.Facts{"default_salary": 3000}).Calculate(cc)
	require.NoError(t, err)

	assertAmount(t, "3000", res.Amount)
}

func TestBasicSalary_NoSalaryAnywhere_MissingData(t *testing.T) {
	cc := newContext(payroll.Facts{}, nil)

	_, err := calculators.NewBasicSalary(nil).Calculate(cc)

	require.Error(t, err)
	assert.True(t, payroll.IsMissingData(err))
}

func TestBasicSalary_ZeroStandardDays_ZeroAmount(t *testing.T) {
	cc := newContext(payroll.Facts{"basic_salary": 8000}, nil)
	cc.Attendance = &payroll.AttendanceData{WorkDays: decimal.NewFromInt(20)}

	res, err := calculators.NewBasicSalary(nil).Calculate(cc)
	require.NoError(t, err)

	assert.True(t, res.Amount.IsZero())
}

func TestCalculator_MissingEmployeeData(t *testing.T) {
	cc := newContext(nil, nil)

	_, err := calculators.NewBasicSalary(nil).Calculate(cc)

	assert.True(t, payroll.IsMissingData(err))
}

// =============================================================================
// ALLOWANCE
// =============================================================================

func TestAllowance_Fixed(t *testing.T) {
	cc := newContext(payroll.Facts{}, nil)
	calc := calculators.NewAllowance(calculators.CodeMealAllowance, "Meal", payroll.Facts{
		"calculation_type": "fixed",
		"amount":           500,
	})

	res, err := calc.Calculate(cc)
	require.NoError(t, err)

	assertAmount(t, "500", res.Amount)
	assert.Equal(t, payroll.MethodFixed, res.Method)
}

func TestAllowance_MissingCalculationType_InvalidConfiguration(t *testing.T) {
	cc := newContext(payroll.Facts{}, nil)
	calc := calculators.NewAllowance(calculators.CodeMealAllowance, "Meal", payroll.Facts{"amount": 500})

	_, err := calc.Calculate(cc)

	require.Error(t, err)
	assert.True(t, payroll.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "calculation_type")
}

func TestAllowance_PercentageDependsOnOrder(t *testing.T) {
	// GIVEN: 10% position allowance on BASIC_SALARY, 8000 raw, 20/22 days
	// WHEN: The allowance runs before and after BASIC_SALARY
	// THEN: Before uses the raw 8000 (800.00), after uses the prorated
	//       7272.73 from the ledger (727.27)

	allowance := calculators.NewAllowance(calculators.CodePositionAllowance, "Position", payroll.Facts{
		"calculation_type": "percentage",
		"percentage":       10,
	})
	data := payroll.Facts{"basic_salary": 8000}

	before := newContext(data, attendance(20, 22, 0))
	res, err := allowance.Calculate(before)
	require.NoError(t, err)
	assertAmount(t, "800", res.Amount)
	assert.Equal(t, "employee_data", res.Details["base_source"])

	after := newContext(data, attendance(20, 22, 0))
	basic, err := calculators.NewBasicSalary(nil).Calculate(after)
	require.NoError(t, err)
	after.AddCalculationResult(basic.Code, basic.Amount)

	res, err = allowance.Calculate(after)
	require.NoError(t, err)
	assertAmount(t, "727.27", res.Amount)
	assert.Equal(t, "ledger", res.Details["base_source"])

	assert.True(t, allowance.DependsOn(calculators.CodeBasicSalary))
}

func TestAllowance_AttendanceBased(t *testing.T) {
	daily := calculators.NewAllowance(calculators.CodeMealAllowance, "Meal", payroll.Facts{
		"calculation_type": "attendance_based",
		"daily_rate":       20,
	})
	prorated := calculators.NewAllowance(calculators.CodeTransportAllowance, "Transport", payroll.Facts{
		"calculation_type": "attendance_based",
		"amount":           440,
	})
	cc := newContext(payroll.Facts{}, attendance(20, 22, 0))

	res, err := daily.Calculate(cc)
	require.NoError(t, err)
	assertAmount(t, "400", res.Amount)

	res, err = prorated.Calculate(cc)
	require.NoError(t, err)
	assertAmount(t, "400", res.Amount)

	res, err = daily.Calculate(newContext(payroll.Facts{}, nil))
	require.NoError(t, err)
	assert.True(t, res.Amount.IsZero(), "no attendance means no allowance")
}

func TestAllowance_UnsupportedType(t *testing.T) {
	calc := calculators.NewAllowance("X", "X", payroll.Facts{"calculation_type": "lottery"})

	_, err := calc.Calculate(newContext(payroll.Facts{}, nil))

	assert.True(t, payroll.IsConfigurationError(err))
}

func TestAllowance_RuleParametersOverride(t *testing.T) {
	cc := payroll.NewCalculationContext(payroll.ContextInput{
		EmployeeID:   "emp-1",
		EmployeeData: payroll.Facts{"department": "sales"},
		Rules: []payroll.CalculationRule{{
			Code:       calculators.CodeMealAllowance,
			Active:     true,
			Conditions: map[string]any{"department": "sales"},
			Parameters: payroll.Facts{"amount": 650},
		}},
	})
	calc := calculators.NewAllowance(calculators.CodeMealAllowance, "Meal", payroll.Facts{
		"calculation_type": "fixed",
		"amount":           500,
	})

	res, err := calc.Calculate(cc)
	require.NoError(t, err)

	assertAmount(t, "650", res.Amount)
}

// =============================================================================
// OVERTIME
// =============================================================================

func TestOvertime_HourlyRateFromLedger(t *testing.T) {
	// GIVEN: BASIC_SALARY 8700 on the ledger, 10 overtime hours
	// WHEN: Calculating overtime with defaults (174h, 1.5x)
	// THEN: 8700 / 174 = 50/h, x 1.5 x 10 = 750

	cc := newContext(payroll.Facts{"basic_salary": 1}, attendance(22, 22, 10))
	cc.AddCalculationResult(calculators.CodeBasicSalary, dec("8700"))

	res, err := calculators.NewOvertime(nil).Calculate(cc)
	require.NoError(t, err)

	assertAmount(t, "750", res.Amount)
	assert.Equal(t, "ledger", res.Details["basic_source"])
}

func TestOvertime_NoHours_Zero(t *testing.T) {
	cc := newContext(payroll.Facts{"basic_salary": 8700}, attendance(22, 22, 0))

	res, err := calculators.NewOvertime(nil).Calculate(cc)
	require.NoError(t, err)

	assert.True(t, res.Amount.IsZero())
}

func TestOvertime_CustomMultiplier(t *testing.T) {
	cc := newContext(payroll.Facts{"basic_salary": 8700}, attendance(22, 22, 4))

	res, err := calculators.NewOvertime(payroll.Facts{"multiplier": 2}).Calculate(cc)
	require.NoError(t, err)

	assertAmount(t, "400", res.Amount)
}

// =============================================================================
// SOCIAL INSURANCE AND HOUSING FUND
// =============================================================================

func pension() *calculators.SocialInsurance {
	return calculators.NewSocialInsurance("SOCIAL_PENSION", "Pension", payroll.Facts{
		"employee_rate": 8,
		"employer_rate": 16,
		"min_base":      3000,
		"max_base":      20000,
	})
}

func TestSocialInsurance_BaseClamping(t *testing.T) {
	// GIVEN: Pension at 8% with base limits [3000, 20000]
	// WHEN: Basic salary is 1000, 10000 and 50000
	// THEN: Bases are 3000, 10000 and 20000

	tests := []struct {
		salary   string
		base     string
		employee string
		employer string
	}{
		{"1000", "3000", "240", "480"},
		{"10000", "10000", "800", "1600"},
		{"50000", "20000", "1600", "3200"},
	}
	for _, tt := range tests {
		t.Run(tt.salary, func(t *testing.T) {
			cc := newContext(payroll.Facts{}, nil)
			cc.AddCalculationResult(calculators.CodeBasicSalary, dec(tt.salary))

			res, err := pension().Calculate(cc)
			require.NoError(t, err)

			assertAmount(t, tt.employee, res.Amount)
			assertAmount(t, tt.base, res.Details["base_used"].(decimal.Decimal))
			assertAmount(t, tt.employer, res.Details["employer_contribution"].(decimal.Decimal))
			assert.Equal(t, payroll.TypePersonalDeduction, res.Type)
		})
	}
}

func TestSocialInsurance_ApplyBaseLimits(t *testing.T) {
	calc := pension()
	cfg := payroll.Facts{"min_base": dec("3000"), "max_base": dec("20000")}

	assertAmount(t, "3000", calc.ApplyBaseLimits(dec("1000"), cfg))
	assertAmount(t, "20000", calc.ApplyBaseLimits(dec("50000"), cfg))
	assertAmount(t, "7000", calc.ApplyBaseLimits(dec("7000"), payroll.Facts{}))
}

func TestSocialInsurance_MissingEmployeeRate_FailsBeforeCalculating(t *testing.T) {
	// GIVEN: A calculator requiring employee_rate with a config that omits it
	// WHEN: Calculating
	// THEN: InvalidConfiguration, and no amount is produced

	calc := calculators.NewSocialInsurance("SOCIAL_MEDICAL", "Medical", payroll.Facts{"employer_rate": 10})
	assert.Equal(t, []string{"employee_rate"}, calc.RequiredConfigKeys())

	cc := newContext(payroll.Facts{"basic_salary": 8000}, nil)
	res, err := calc.Calculate(cc)

	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrInvalidConfiguration)
	assert.Empty(t, res.Code)
}

func TestSocialInsurance_ContextFallbackConfig(t *testing.T) {
	cc := payroll.NewCalculationContext(payroll.ContextInput{
		EmployeeID:   "emp-1",
		EmployeeData: payroll.Facts{"basic_salary": 5000},
		SocialInsuranceConfig: payroll.Facts{
			"min_base":       3000,
			"SOCIAL_MEDICAL": map[string]any{"employee_rate": 2},
		},
	})
	calc := calculators.NewSocialInsurance("SOCIAL_MEDICAL", "Medical", nil)

	res, err := calc.Calculate(cc)
	require.NoError(t, err)

	assertAmount(t, "100", res.Amount)
}

func TestSocialInsurance_TotalSalaryBase(t *testing.T) {
	cc := newContext(payroll.Facts{}, nil)
	cc.AddCalculationResult(calculators.CodeBasicSalary, dec("6000"))
	cc.AddCalculationResult(calculators.CodeMealAllowance, dec("1000"))
	cc.AddCalculationResult("SOCIAL_PENSION", dec("480"))

	calc := calculators.NewSocialInsurance("SOCIAL_UNEMPLOYMENT", "Unemployment", payroll.Facts{
		"employee_rate":    "0.5",
		"base_calculation": "total_salary",
	})
	res, err := calc.Calculate(cc)
	require.NoError(t, err)

	assertAmount(t, "35", res.Amount)
	assert.True(t, calc.DependsOn(calculators.CodeMealAllowance))
	assert.False(t, calc.DependsOn("SOCIAL_PENSION"))
}

func TestSocialInsurance_EmployeeFieldBase(t *testing.T) {
	calc := calculators.NewSocialInsurance("SOCIAL_INJURY", "Injury", payroll.Facts{
		"employee_rate":    1,
		"base_calculation": "employee_field",
		"base_field":       "insured_salary",
	})

	res, err := calc.Calculate(newContext(payroll.Facts{"insured_salary": 4500}, nil))
	require.NoError(t, err)
	assertAmount(t, "45", res.Amount)

	_, err = calc.Calculate(newContext(payroll.Facts{}, nil))
	assert.True(t, payroll.IsMissingData(err))
}

func TestHousingFund_FixedBase(t *testing.T) {
	calc := calculators.NewHousingFund(payroll.Facts{
		"employee_rate":    12,
		"base_calculation": "fixed",
		"fixed_base":       5000,
	})

	res, err := calc.Calculate(newContext(payroll.Facts{}, nil))
	require.NoError(t, err)

	assertAmount(t, "600", res.Amount)
	assert.Equal(t, calculators.CodeHousingFund, res.Code)
}

func TestHousingFund_TotalSalaryUnsupported(t *testing.T) {
	calc := calculators.NewHousingFund(payroll.Facts{
		"employee_rate":    12,
		"base_calculation": "total_salary",
	})

	_, err := calc.Calculate(newContext(payroll.Facts{"basic_salary": 8000}, nil))

	assert.True(t, payroll.IsConfigurationError(err))
}
