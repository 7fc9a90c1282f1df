/*
context.go - Per-calculation fact bundle and running ledger

PURPOSE:
  A CalculationContext carries everything calculators need for one
  employee in one period: identity, base salary, employee facts,
  configuration, attendance, rule records and the running ledger of
  component amounts computed so far.

THE LEDGER:
  The ledger maps component code -> computed amount. The Engine writes
  each calculator's amount into it before running the next calculator.
  Calculators observe each other's outputs only through the ledger,
  never through direct references:

    BASIC_SALARY   7272.73   (written by BasicSalaryCalculator)
    OVERTIME_PAY    250.00   (reads BASIC_SALARY for the hourly rate)
    INCOME_TAX       68.18   (reads every earning + SOCIAL_*)

  Unknown codes read as zero.

  During an Engine run every registered code that has not been calculated
  yet is pending. Reading a pending code through the ledger accessors is
  recorded, and the Engine fails the reading component with
  ErrDependencyOrder: the value it saw was not the amount this run will
  produce.

OWNERSHIP:
  A context is mutated in place by the ledger and MUST NOT be shared
  across concurrent calculations. Build one per employee.

SEE ALSO:
  - engine.go: Writes to the ledger
  - calculator.go: Reads from it
*/
package payroll

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultStandardWorkDays is used when attendance omits the denominator.
const DefaultStandardWorkDays = 22

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceData struct {
	WorkDays         decimal.Decimal
	StandardWorkDays decimal.Decimal
	OvertimeHours    decimal.Decimal
}

// NewAttendanceData builds attendance facts. A zero standardDays falls back
// to DefaultStandardWorkDays.
func NewAttendanceData(workDays, standardDays, overtimeHours decimal.Decimal) *AttendanceData {
	if standardDays.IsZero() {
		standardDays = decimal.NewFromInt(DefaultStandardWorkDays)
	}
	return &AttendanceData{
		WorkDays:         workDays,
		StandardWorkDays: standardDays,
		OvertimeHours:    overtimeHours,
	}
}

// AttendanceRate returns work days / standard work days, or zero when the
// denominator is not positive.
func (a *AttendanceData) AttendanceRate() decimal.Decimal {
	if a == nil || !a.StandardWorkDays.IsPositive() {
		return decimal.Zero
	}
	return a.WorkDays.Div(a.StandardWorkDays)
}

// =============================================================================
// CALCULATION RULE
// =============================================================================

// CalculationRule is a declarative rule record. Rules supply parameters and
// formulas to calculators; they never decide execution order.
type CalculationRule struct {
	Code       string
	Formula    string
	Active     bool
	Conditions map[string]any
	Parameters Facts
}

// EvaluateConditions reports whether every condition exactly matches the
// corresponding context attribute. An empty condition set always matches.
func (r CalculationRule) EvaluateConditions(cc *CalculationContext) bool {
	for key, want := range r.Conditions {
		got, ok := cc.Attribute(key)
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	da, okA := toDecimal(a, true)
	db, okB := toDecimal(b, true)
	if okA && okB {
		return da.Equal(db)
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return Facts{"v": a}.String("v") == Facts{"v": b}.String("v")
}

// =============================================================================
// CALCULATION CONTEXT
// =============================================================================

// ContextInput is the raw material for NewCalculationContext.
type ContextInput struct {
	EmployeeID            string
	PeriodID              string
	PeriodStart           time.Time
	PeriodEnd             time.Time
	BaseSalary            decimal.Decimal
	EmployeeData          Facts
	SalaryConfig          Facts
	SocialInsuranceConfig Facts
	TaxConfig             Facts
	Attendance            *AttendanceData
	Rules                 []CalculationRule
	// Existing seeds the ledger, e.g. with amounts computed in a prior run.
	Existing map[string]decimal.Decimal
}

type CalculationContext struct {
	EmployeeID            string
	PeriodID              string
	PeriodStart           time.Time
	PeriodEnd             time.Time
	BaseSalary            decimal.Decimal
	EmployeeData          Facts
	SalaryConfig          Facts
	SocialInsuranceConfig Facts
	TaxConfig             Facts
	Attendance            *AttendanceData
	Rules                 []CalculationRule

	ledger      map[string]decimal.Decimal
	ledgerOrder []string

	pending    map[string]bool
	earlyReads []string
}

// NewCalculationContext normalizes every fact set so numeric values are
// decimals before any calculator reads them.
func NewCalculationContext(in ContextInput) *CalculationContext {
	cc := &CalculationContext{
		EmployeeID:            in.EmployeeID,
		PeriodID:              in.PeriodID,
		PeriodStart:           in.PeriodStart,
		PeriodEnd:             in.PeriodEnd,
		BaseSalary:            in.BaseSalary,
		EmployeeData:          nilOrNormalized(in.EmployeeData),
		SalaryConfig:          NormalizeFacts(in.SalaryConfig),
		SocialInsuranceConfig: NormalizeFacts(in.SocialInsuranceConfig),
		TaxConfig:             NormalizeFacts(in.TaxConfig),
		ledger:                make(map[string]decimal.Decimal),
	}
	if in.Attendance != nil {
		a := *in.Attendance
		cc.Attendance = &a
	}
	for _, r := range in.Rules {
		r.Parameters = NormalizeFacts(r.Parameters)
		cc.Rules = append(cc.Rules, r)
	}
	for _, code := range sortedKeys(in.Existing) {
		cc.AddCalculationResult(code, in.Existing[code])
	}
	return cc
}

// nilOrNormalized keeps an absent employee data set absent so that
// ValidateContext can report it.
func nilOrNormalized(f Facts) Facts {
	if f == nil {
		return nil
	}
	return NormalizeFacts(f)
}

// AddCalculationResult records amount for code. Re-adding a code replaces
// the amount but keeps its original position.
func (cc *CalculationContext) AddCalculationResult(code string, amount decimal.Decimal) {
	if _, exists := cc.ledger[code]; !exists {
		cc.ledgerOrder = append(cc.ledgerOrder, code)
	}
	cc.ledger[code] = amount
}

// CalculatedAmount returns the ledger amount for code, zero if unknown.
func (cc *CalculationContext) CalculatedAmount(code string) decimal.Decimal {
	cc.noteRead(code)
	if amount, ok := cc.ledger[code]; ok {
		return amount
	}
	return decimal.Zero
}

// HasCalculation reports whether code has been computed.
func (cc *CalculationContext) HasCalculation(code string) bool {
	cc.noteRead(code)
	_, ok := cc.ledger[code]
	return ok
}

// LedgerCodes returns computed codes in the order they were first added.
func (cc *CalculationContext) LedgerCodes() []string {
	return append([]string(nil), cc.ledgerOrder...)
}

// Calculations returns a copy of the ledger. Reads through the copy are
// not tracked.
func (cc *CalculationContext) Calculations() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(cc.ledger))
	for k, v := range cc.ledger {
		out[k] = v
	}
	return out
}

// SumCalculated adds the ledger amounts whose code satisfies match.
func (cc *CalculationContext) SumCalculated(match func(code string) bool) decimal.Decimal {
	for _, code := range sortedKeys(cc.pending) {
		if match(code) {
			cc.noteRead(code)
		}
	}
	total := decimal.Zero
	for _, code := range cc.ledgerOrder {
		if match(code) {
			total = total.Add(cc.ledger[code])
		}
	}
	return total
}

// WithTemporaryCalculation runs fn with code set to amount in the ledger,
// then restores the previous ledger state.
func (cc *CalculationContext) WithTemporaryCalculation(code string, amount decimal.Decimal, fn func() error) error {
	prev, existed := cc.ledger[code]
	cc.AddCalculationResult(code, amount)
	defer func() {
		if existed {
			cc.ledger[code] = prev
			return
		}
		delete(cc.ledger, code)
		for i, c := range cc.ledgerOrder {
			if c == code {
				cc.ledgerOrder = append(cc.ledgerOrder[:i], cc.ledgerOrder[i+1:]...)
				break
			}
		}
	}()
	return fn()
}

// =============================================================================
// PENDING CODES
// =============================================================================

// beginRun marks every code in order as pending.
func (cc *CalculationContext) beginRun(order []string) {
	cc.pending = make(map[string]bool, len(order))
	for _, code := range order {
		cc.pending[code] = true
	}
	cc.earlyReads = nil
}

// startCalculating clears code from the pending set before its calculator
// runs, so a calculator inspecting its own code is not flagged.
func (cc *CalculationContext) startCalculating(code string) {
	delete(cc.pending, code)
}

func (cc *CalculationContext) endRun() {
	cc.pending = nil
	cc.earlyReads = nil
}

// pendingCode returns the pending code matching ref case-insensitively.
// Outside an Engine run nothing is pending.
func (cc *CalculationContext) pendingCode(ref string) (string, bool) {
	if cc.pending[ref] {
		return ref, true
	}
	for code := range cc.pending {
		if strings.EqualFold(code, ref) {
			return code, true
		}
	}
	return "", false
}

func (cc *CalculationContext) noteRead(code string) {
	if !cc.pending[code] {
		return
	}
	for _, c := range cc.earlyReads {
		if c == code {
			return
		}
	}
	cc.earlyReads = append(cc.earlyReads, code)
}

// takeEarlyReads returns and clears the pending codes read since the last
// call.
func (cc *CalculationContext) takeEarlyReads() []string {
	out := cc.earlyReads
	cc.earlyReads = nil
	return out
}

// Attribute resolves a named context attribute for rule conditions:
// employee_id, period_id, then any employee data field.
func (cc *CalculationContext) Attribute(key string) (any, bool) {
	switch key {
	case "employee_id":
		return cc.EmployeeID, true
	case "period_id":
		return cc.PeriodID, true
	}
	v, ok := cc.EmployeeData[key]
	return v, ok
}

// ApplicableRules returns the active rules for code whose conditions match.
// Codes compare case-insensitively.
func (cc *CalculationContext) ApplicableRules(code string) []CalculationRule {
	var out []CalculationRule
	for _, r := range cc.Rules {
		if !r.Active || !strings.EqualFold(r.Code, code) {
			continue
		}
		if r.EvaluateConditions(cc) {
			out = append(out, r)
		}
	}
	return out
}
