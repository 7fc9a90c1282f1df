/*
calculator.go - Calculator contract and shared helpers

PURPOSE:
  Every payroll component (basic salary, overtime, income tax, ...) is
  produced by one Calculator. The Engine knows nothing about what a
  calculator does; it only runs them in order and feeds each amount
  into the context ledger.

CONTRACT:
  Code()        component code, unique within an engine
  Name()        display name
  DependsOn(c)  true if this calculator reads ledger entry c; the
                Engine derives and validates execution order from it
  Calculate(cc) the component result, or a CalculationError

BUILDING BLOCKS:
  BaseCalculator          identity and arithmetic helpers
  ConfigurableCalculator  adds a config bag with required keys
  FormulaCalculator       arithmetic formula over context facts (formula.go)

ROUNDING:
  RoundAmount quantizes to 2 places with banker's rounding (half-even).

SEE ALSO:
  - calculators/: Concrete domain calculators
  - engine.go: Execution
*/
package payroll

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Calculator produces one payroll component.
type Calculator interface {
	Code() string
	Name() string
	DependsOn(code string) bool
	Calculate(cc *CalculationContext) (ComponentCalculationResult, error)
}

// =============================================================================
// BASE CALCULATOR
// =============================================================================

// BaseCalculator is embedded by concrete calculators.
type BaseCalculator struct {
	ComponentCode string
	ComponentName string
}

func NewBaseCalculator(code, name string) BaseCalculator {
	if name == "" {
		name = code
	}
	return BaseCalculator{ComponentCode: code, ComponentName: name}
}

func (b BaseCalculator) Code() string { return b.ComponentCode }
func (b BaseCalculator) Name() string { return b.ComponentName }

// DependsOn defaults to no dependencies.
func (b BaseCalculator) DependsOn(string) bool { return false }

// ValidateContext enforces the one precondition shared by every
// calculator: an employee id and an employee data set.
func (b BaseCalculator) ValidateContext(cc *CalculationContext) error {
	if cc == nil {
		return MissingData("", b.ComponentCode, "calculation context is required")
	}
	if cc.EmployeeID == "" {
		return MissingData("", b.ComponentCode, "employee id is required")
	}
	if cc.EmployeeData == nil {
		return MissingData(cc.EmployeeID, b.ComponentCode, "employee data is required")
	}
	return nil
}

// NewResult starts a result for this component.
func (b BaseCalculator) NewResult(t ComponentType, method CalculationMethod) ComponentCalculationResult {
	return ComponentCalculationResult{
		Code:    b.ComponentCode,
		Name:    b.ComponentName,
		Type:    t,
		Amount:  decimal.Zero,
		Method:  method,
		Details: make(map[string]any),
	}
}

// CalculateProratedAmount returns base * actual / standard, or zero when
// standard is not positive.
func CalculateProratedAmount(base, actual, standard decimal.Decimal) decimal.Decimal {
	if !standard.IsPositive() {
		return decimal.Zero
	}
	return base.Mul(actual).DivRound(standard, divisionPrecision)
}

// ApplyPercentage returns base * pct / 100.
func ApplyPercentage(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// RoundAmount quantizes to 2 decimal places, half-even.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// =============================================================================
// CONFIGURABLE CALCULATOR
// =============================================================================

// ConfigurableCalculator is driven by a config bag. Concrete calculators
// declare their required keys; missing keys fail before any amount is
// computed.
type ConfigurableCalculator struct {
	BaseCalculator
	Config       Facts
	RequiredKeys []string
}

func NewConfigurableCalculator(code, name string, config Facts, required ...string) ConfigurableCalculator {
	return ConfigurableCalculator{
		BaseCalculator: NewBaseCalculator(code, name),
		Config:         NormalizeFacts(config),
		RequiredKeys:   required,
	}
}

// RequiredConfigKeys returns the keys that must be present.
func (c ConfigurableCalculator) RequiredConfigKeys() []string {
	return append([]string(nil), c.RequiredKeys...)
}

// ValidateConfig checks config for every required key.
func (c ConfigurableCalculator) ValidateConfig(employeeID string, config Facts) error {
	var missing []string
	for _, key := range c.RequiredKeys {
		if !config.Has(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return InvalidConfiguration(employeeID, c.ComponentCode,
			"missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// EffectiveConfig overlays the parameters of applicable rules onto the
// static config. Later rules win.
func (c ConfigurableCalculator) EffectiveConfig(cc *CalculationContext) Facts {
	cfg := c.Config
	if cc == nil {
		return cfg
	}
	for _, r := range cc.ApplicableRules(c.ComponentCode) {
		cfg = cfg.Merge(r.Parameters)
	}
	return cfg
}

// Prepare validates context and config, returning the effective config.
func (c ConfigurableCalculator) Prepare(cc *CalculationContext) (Facts, error) {
	if err := c.ValidateContext(cc); err != nil {
		return nil, err
	}
	cfg := c.EffectiveConfig(cc)
	if err := c.ValidateConfig(cc.EmployeeID, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
