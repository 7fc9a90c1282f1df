package factory_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/calculators"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

const engineJSON = `{
  "calculators": [
    {"type": "income_tax", "config": {"basic_deduction": 5000}},
    {"type": "social_insurance", "code": "SOCIAL_PENSION", "name": "Pension",
     "config": {"employee_rate": 8, "employer_rate": 16, "min_base": 3000, "max_base": 20000}},
    {"type": "allowance", "code": "MEAL_ALLOWANCE", "name": "Meal",
     "config": {"calculation_type": "fixed", "amount": "400.50"}},
    {"type": "basic_salary"}
  ]
}`

const engineYAML = `
order: [BASIC_SALARY, OVERTIME_PAY, PERF_BONUS]
calculators:
  - type: basic_salary
  - type: overtime
    config:
      multiplier: 2
  - type: formula
    code: PERF_BONUS
    name: Performance Bonus
    formula: calc_basic_salary * score / 100
    result_type: earning
`

func employee(data payroll.Facts, a *payroll.AttendanceData) *payroll.CalculationContext {
	return payroll.NewCalculationContext(payroll.ContextInput{
		EmployeeID:   "emp-1",
		PeriodID:     "2025-01",
		EmployeeData: data,
		Attendance:   a,
	})
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "expected %s, got %s", want, got)
}

// =============================================================================
// ENGINE DESCRIPTORS
// =============================================================================

func TestBuildEngine_FromJSON(t *testing.T) {
	// GIVEN: A JSON descriptor without an explicit order
	// WHEN: Building the engine
	// THEN: The order is derived and every calculator runs

	engine, err := factory.NewEngineFactory(nil, nil).BuildEngine([]byte(engineJSON))
	require.NoError(t, err)

	assert.Equal(t, []string{"MEAL_ALLOWANCE", "BASIC_SALARY", "SOCIAL_PENSION", "INCOME_TAX"}, engine.Order())

	result := engine.Calculate(employee(payroll.Facts{"basic_salary": 10000}, nil))
	require.Equal(t, payroll.StatusCompleted, result.Status, result.ErrorMessage)

	meal, _ := result.Component("MEAL_ALLOWANCE")
	assertAmount(t, "400.50", meal.Amount)
	pension, _ := result.Component("SOCIAL_PENSION")
	assertAmount(t, "800", pension.Amount)
}

func TestParseEngineConfigYAML(t *testing.T) {
	cfg, err := factory.NewEngineFactory(nil, nil).ParseEngineConfigYAML([]byte(engineYAML))
	require.NoError(t, err)
	require.Len(t, cfg.Calculators, 3)
	assert.Equal(t, []string{"BASIC_SALARY", "OVERTIME_PAY", "PERF_BONUS"}, cfg.Order)

	engine, err := payroll.NewEngine(cfg)
	require.NoError(t, err)

	// 8700 / 174 = 50 per hour, x 2 x 3h = 300; bonus 8700 x 10 / 100 = 870
	result := engine.Calculate(employee(
		payroll.Facts{"basic_salary": 8700, "score": 10},
		payroll.NewAttendanceData(decimal.NewFromInt(22), decimal.NewFromInt(22), decimal.NewFromInt(3)),
	))
	require.Equal(t, payroll.StatusCompleted, result.Status, result.ErrorMessage)

	overtime, _ := result.Component(calculators.CodeOvertimePay)
	bonus, _ := result.Component("PERF_BONUS")
	assertAmount(t, "300", overtime.Amount)
	assertAmount(t, "870", bonus.Amount)
	assertAmount(t, "9870", result.TotalEarnings)
}

const engineTOML = `
order = ["BASIC_SALARY", "SOCIAL_PENSION"]

[[calculators]]
type = "basic_salary"

[[calculators]]
type = "social_insurance"
code = "SOCIAL_PENSION"
name = "Pension"

[calculators.config]
employee_rate = 8
employer_rate = 16
max_base = 20000
`

func TestParseEngineConfigTOML(t *testing.T) {
	cfg, err := factory.NewEngineFactory(nil, nil).ParseEngineConfigTOML([]byte(engineTOML))
	require.NoError(t, err)

	engine, err := payroll.NewEngine(cfg)
	require.NoError(t, err)

	result := engine.Calculate(employee(payroll.Facts{"basic_salary": 30000}, nil))
	require.Equal(t, payroll.StatusCompleted, result.Status, result.ErrorMessage)

	// base capped at 20000 x 8%
	pension, _ := result.Component("SOCIAL_PENSION")
	assertAmount(t, "1600", pension.Amount)
	assertAmount(t, "3200", pension.Details["employer_contribution"].(decimal.Decimal))
}

const engineTOMLBrackets = `
[[calculators]]
type = "basic_salary"

[[calculators]]
type = "income_tax"

[calculators.config]
basic_deduction = 5000

[[calculators.config.tax_brackets]]
min = 0
max = 3000
rate = 0.03

[[calculators.config.tax_brackets]]
min = 3000
rate = 0.1
quick_deduction = 210
`

func TestParseEngineConfigTOML_TaxBracketTables(t *testing.T) {
	// GIVEN: Income tax brackets written as a TOML array of tables
	// WHEN: Building the engine and calculating 10000 basic salary
	// THEN: taxable 5000 = 3000 x 3% + 2000 x 10% = 290

	cfg, err := factory.NewEngineFactory(nil, nil).ParseEngineConfigTOML([]byte(engineTOMLBrackets))
	require.NoError(t, err)
	engine, err := payroll.NewEngine(cfg)
	require.NoError(t, err)

	result := engine.Calculate(employee(payroll.Facts{"basic_salary": 10000}, nil))
	require.Equal(t, payroll.StatusCompleted, result.Status, result.ErrorMessage)

	tax, _ := result.Component(calculators.CodeIncomeTax)
	assertAmount(t, "290", tax.Amount)
	assertAmount(t, "9710", result.NetPay)
}

func TestDecodeFile_ChoosesFormatByExtension(t *testing.T) {
	for name, data := range map[string]string{
		"engine.json": engineJSON,
		"engine.yaml": engineYAML,
		"engine.YML":  engineYAML,
		"engine.toml": engineTOML,
	} {
		ej, err := factory.DecodeFile(name, []byte(data))
		require.NoError(t, err, name)
		assert.NotEmpty(t, ej.Calculators, name)
	}

	_, err := factory.DecodeFile("engine.toml", []byte(engineJSON))
	assert.Error(t, err)
}

func TestFromJSON_ReportsEveryInvalidCalculator(t *testing.T) {
	_, err := factory.NewEngineFactory(nil, nil).FromJSON(factory.EngineJSON{
		Calculators: []factory.CalculatorJSON{
			{Type: "lottery"},
			{Type: factory.TypeAllowance},
			{Type: factory.TypeFormula, Code: "F", Formula: "1 +"},
			{Type: factory.TypeBasicSalary},
		},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, factory.ErrUnknownCalculatorType)
	assert.ErrorIs(t, err, payroll.ErrFormulaSyntax)
	assert.Contains(t, err.Error(), "allowance requires a code")
}

func TestParseEngineConfig_MalformedJSON(t *testing.T) {
	_, err := factory.NewEngineFactory(nil, nil).ParseEngineConfig([]byte(`{"calculators": [`))

	assert.Error(t, err)
}

func TestDescriptors(t *testing.T) {
	// GIVEN: Descriptors built in code
	// WHEN: Serializing and rebuilding them
	// THEN: They round-trip into working calculators

	ej := factory.EngineJSON{Calculators: []factory.CalculatorJSON{
		{Type: factory.TypeBasicSalary},
		factory.AllowanceDescriptor(calculators.CodePositionAllowance, "Position", "percentage",
			map[string]any{"percentage": 10}),
		factory.SocialInsuranceDescriptor("SOCIAL_MEDICAL", "Medical", "2", "", nil),
		factory.FormulaDescriptor("DOUBLE_MEAL", "Double Meal", "calc_position_allowance * 2", payroll.TypeEarning),
	}}
	data, err := json.Marshal(ej)
	require.NoError(t, err)

	engine, err := factory.NewEngineFactory(nil, nil).BuildEngine(data)
	require.NoError(t, err)

	result := engine.Calculate(employee(payroll.Facts{"basic_salary": 5000}, nil))
	require.Equal(t, payroll.StatusCompleted, result.Status, result.ErrorMessage)

	double, _ := result.Component("DOUBLE_MEAL")
	medical, _ := result.Component("SOCIAL_MEDICAL")
	assertAmount(t, "1000", double.Amount)
	assertAmount(t, "100", medical.Amount)
}

// =============================================================================
// RULE SETS
// =============================================================================

const ruleSetJSON = `{
  "id": "sales-2025",
  "name": "Sales",
  "version": 2,
  "departments": ["sales"],
  "rules": [
    {"code": "MEAL_ALLOWANCE", "parameters": {"amount": 650}},
    {"code": "MEAL_ALLOWANCE", "active": false, "parameters": {"amount": 1}}
  ]
}`

func TestParseRuleSet_AppliesParameters(t *testing.T) {
	rs, err := factory.ParseRuleSet([]byte(ruleSetJSON))
	require.NoError(t, err)
	assert.True(t, rs.Active)
	assert.Equal(t, 2, rs.Version)

	engine, err := factory.NewEngineFactory(nil, nil).BuildEngine([]byte(engineJSON))
	require.NoError(t, err)

	sales := employee(payroll.Facts{"basic_salary": 10000, "department": "sales"}, nil)
	hr := employee(payroll.Facts{"basic_salary": 10000, "department": "hr"}, nil)
	assert.Equal(t, []string{"sales-2025"}, payroll.ApplyRuleSets(sales, []payroll.RuleSet{rs}))
	assert.Empty(t, payroll.ApplyRuleSets(hr, []payroll.RuleSet{rs}))

	salesMeal, _ := engine.Calculate(sales).Component("MEAL_ALLOWANCE")
	hrMeal, _ := engine.Calculate(hr).Component("MEAL_ALLOWANCE")
	assertAmount(t, "650", salesMeal.Amount)
	assertAmount(t, "400.50", hrMeal.Amount)
}

func TestParseRuleSet_Invalid(t *testing.T) {
	_, err := factory.ParseRuleSet([]byte(`{"name": "no id"}`))
	assert.Error(t, err)

	_, err = factory.ParseRuleSet([]byte(`{"id": "x", "rules": [{"code": "A", "formula": "2 **"}]}`))
	assert.ErrorIs(t, err, payroll.ErrFormulaSyntax)
}

func TestRuleSetToJSON_RoundTrip(t *testing.T) {
	rs, err := factory.ParseRuleSet([]byte(ruleSetJSON))
	require.NoError(t, err)

	again, err := factory.RuleSetFromJSON(factory.RuleSetToJSON(rs))
	require.NoError(t, err)

	assert.Equal(t, rs.ID, again.ID)
	assert.Len(t, again.Rules, 2)
	assert.False(t, again.Rules[1].Active)
}
