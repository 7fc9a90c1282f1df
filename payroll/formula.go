package payroll

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LedgerVariablePrefix prefixes ledger entries in the formula namespace.
const LedgerVariablePrefix = "calc_"

// FormulaCalculator evaluates an arithmetic formula against the context.
//
// Variables available to the formula:
//   - every numeric employee data field, by name
//   - base_salary, work_days, standard_work_days, overtime_hours, attendance_rate
//   - calc_<code> for every ledger entry (code as written and lower-cased)
//
// A matching active CalculationRule with a formula overrides the static one.
type FormulaCalculator struct {
	BaseCalculator
	Formula    string
	ResultType ComponentType

	parsed *Expression
}

// NewFormulaCalculator parses formula eagerly so syntax errors surface at
// engine construction.
func NewFormulaCalculator(code, name, formula string, resultType ComponentType) (*FormulaCalculator, error) {
	expr, err := ParseExpression(formula)
	if err != nil {
		cfgErr := InvalidConfiguration("", code, "invalid formula %q", formula)
		cfgErr.Err = err
		return nil, cfgErr
	}
	if resultType == "" {
		resultType = TypeEarning
	}
	return &FormulaCalculator{
		BaseCalculator: NewBaseCalculator(code, name),
		Formula:        formula,
		ResultType:     resultType,
		parsed:         expr,
	}, nil
}

// DependsOn reports every calc_<code> reference in the formula.
func (f *FormulaCalculator) DependsOn(code string) bool {
	for _, ident := range f.parsed.Identifiers() {
		if !strings.HasPrefix(ident, LedgerVariablePrefix) {
			continue
		}
		ref := strings.TrimPrefix(ident, LedgerVariablePrefix)
		if strings.EqualFold(ref, code) {
			return true
		}
	}
	return false
}

func (f *FormulaCalculator) Calculate(cc *CalculationContext) (ComponentCalculationResult, error) {
	if err := f.ValidateContext(cc); err != nil {
		return ComponentCalculationResult{}, err
	}

	expr := f.parsed
	for _, r := range cc.ApplicableRules(f.ComponentCode) {
		if r.Formula == "" {
			continue
		}
		parsed, err := ParseExpression(r.Formula)
		if err != nil {
			return ComponentCalculationResult{}, CalculationFailure(cc.EmployeeID, f.ComponentCode, err,
				"invalid rule formula %q", r.Formula)
		}
		expr = parsed
	}

	for _, ident := range expr.Identifiers() {
		if !strings.HasPrefix(ident, LedgerVariablePrefix) {
			continue
		}
		if code, ok := cc.pendingCode(strings.TrimPrefix(ident, LedgerVariablePrefix)); ok {
			cc.noteRead(code)
		}
	}

	vars := FormulaVariables(cc)
	value, err := expr.Evaluate(vars)
	if err != nil {
		return ComponentCalculationResult{}, CalculationFailure(cc.EmployeeID, f.ComponentCode, err,
			"formula evaluation failed for %q", expr.String())
	}

	res := f.NewResult(f.ResultType, MethodFormula)
	res.Amount = RoundAmount(value)
	res.Details["formula"] = expr.String()
	used := make(map[string]string)
	for _, ident := range expr.Identifiers() {
		used[ident] = vars[ident].String()
	}
	res.Details["variables"] = used
	res.Logs = append(res.Logs, "formula "+expr.String()+" = "+res.Amount.StringFixed(2))
	return res, nil
}

// FormulaVariables builds the flattened namespace a formula sees.
func FormulaVariables(cc *CalculationContext) map[string]decimal.Decimal {
	vars := make(map[string]decimal.Decimal)
	for k, v := range cc.EmployeeData {
		if d, ok := toDecimal(v, false); ok {
			vars[k] = d
		}
	}
	vars["base_salary"] = cc.BaseSalary
	if a := cc.Attendance; a != nil {
		vars["work_days"] = a.WorkDays
		vars["standard_work_days"] = a.StandardWorkDays
		vars["overtime_hours"] = a.OvertimeHours
		vars["attendance_rate"] = a.AttendanceRate()
	}
	for _, code := range cc.ledgerOrder {
		amount := cc.ledger[code]
		vars[LedgerVariablePrefix+code] = amount
		vars[LedgerVariablePrefix+strings.ToLower(code)] = amount
	}
	return vars
}
