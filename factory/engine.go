/*
Package factory converts JSON and YAML calculator descriptors into engine
configurations.

PURPOSE:
  An engine is fully described by data: which calculators, with which
  parameters, in which (optional) order. The factory turns those
  descriptors into an immutable payroll.EngineConfig so payroll admins
  can change rates and allowances without a deployment, and so any
  historic run can be rebuilt from the descriptor it was stored with.

JSON SCHEMA:
  {
    "order": ["BASIC_SALARY", "SOCIAL_PENSION", "INCOME_TAX"],
    "calculators": [
      {"type": "basic_salary"},
      {"type": "social_insurance", "code": "SOCIAL_PENSION", "name": "Pension",
       "config": {"employee_rate": 8, "employer_rate": 16,
                  "min_base": 3000, "max_base": 20000}},
      {"type": "income_tax", "config": {"basic_deduction": 5000}},
      {"type": "formula", "code": "PERF_BONUS", "name": "Performance Bonus",
       "formula": "calc_basic_salary * score / 100", "result_type": "EARNING"}
    ]
  }

  "order" may be omitted; the engine then derives it from the
  calculators' dependencies. The same document can be written in YAML
  or TOML:

    [[calculators]]
    type = "social_insurance"
    code = "SOCIAL_PENSION"
    [calculators.config]
    employee_rate = 8

NUMBERS:
  JSON is decoded with UseNumber so "0.08" and 0.08 both reach the
  calculators as exact decimals.

USAGE:
  f := factory.NewEngineFactory(logger, recorder)
  engine, err := f.BuildEngine(data)

SEE ALSO:
  - calculators/: What each descriptor type builds
  - ruleset.go: Rule set descriptors
*/
package factory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/calculators"
	"github.com/warp/payroll-engine/payroll"
)

// Calculator descriptor types.
const (
	TypeBasicSalary     = "basic_salary"
	TypeAllowance       = "allowance"
	TypeOvertime        = "overtime"
	TypeSocialInsurance = "social_insurance"
	TypeHousingFund     = "housing_fund"
	TypeIncomeTax       = "income_tax"
	TypeYearEndBonusTax = "year_end_bonus_tax"
	TypeFormula         = "formula"
)

// ErrUnknownCalculatorType is returned for an unrecognized descriptor type.
var ErrUnknownCalculatorType = errors.New("unknown calculator type")

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// EngineJSON is the serialized form of an engine configuration.
type EngineJSON struct {
	Order       []string         `json:"order,omitempty" yaml:"order,omitempty" toml:"order,omitempty"`
	Calculators []CalculatorJSON `json:"calculators" yaml:"calculators" toml:"calculators"`
}

// CalculatorJSON describes one calculator.
type CalculatorJSON struct {
	Type       string         `json:"type" yaml:"type" toml:"type"`
	Code       string         `json:"code,omitempty" yaml:"code,omitempty" toml:"code,omitempty"`
	Name       string         `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Config     map[string]any `json:"config,omitempty" yaml:"config,omitempty" toml:"config,omitempty"`
	Formula    string         `json:"formula,omitempty" yaml:"formula,omitempty" toml:"formula,omitempty"` // formula type only
	ResultType string         `json:"result_type,omitempty" yaml:"result_type,omitempty" toml:"result_type,omitempty"`
}

// =============================================================================
// DESCRIPTOR CONSTRUCTORS
// =============================================================================

// AllowanceDescriptor describes an allowance. calculationType is one of
// fixed, percentage or attendance_based.
func AllowanceDescriptor(code, name, calculationType string, config map[string]any) CalculatorJSON {
	cfg := copyConfig(config)
	cfg["calculation_type"] = calculationType
	return CalculatorJSON{Type: TypeAllowance, Code: code, Name: name, Config: cfg}
}

// SocialInsuranceDescriptor describes a social insurance contribution.
// Rates are percentages.
func SocialInsuranceDescriptor(code, name string, employeeRate, employerRate string, config map[string]any) CalculatorJSON {
	cfg := copyConfig(config)
	cfg["employee_rate"] = employeeRate
	if employerRate != "" {
		cfg["employer_rate"] = employerRate
	}
	return CalculatorJSON{Type: TypeSocialInsurance, Code: code, Name: name, Config: cfg}
}

// FormulaDescriptor describes a formula calculator.
func FormulaDescriptor(code, name, formula string, resultType payroll.ComponentType) CalculatorJSON {
	return CalculatorJSON{Type: TypeFormula, Code: code, Name: name, Formula: formula, ResultType: string(resultType)}
}

func copyConfig(config map[string]any) map[string]any {
	out := make(map[string]any, len(config)+2)
	for k, v := range config {
		out[k] = v
	}
	return out
}

// =============================================================================
// ENGINE FACTORY
// =============================================================================

// EngineFactory converts descriptors into engine configurations. The
// logger and observer are attached to every configuration it builds.
type EngineFactory struct {
	logger   *zap.Logger
	observer payroll.Observer
}

// NewEngineFactory creates a factory. Both arguments may be nil.
func NewEngineFactory(logger *zap.Logger, observer payroll.Observer) *EngineFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngineFactory{logger: logger, observer: observer}
}

// DecodeJSON decodes an engine descriptor, keeping numbers exact.
func DecodeJSON(data []byte) (EngineJSON, error) {
	var ej EngineJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&ej); err != nil {
		return EngineJSON{}, fmt.Errorf("failed to parse engine JSON: %w", err)
	}
	return ej, nil
}

// DecodeYAML decodes an engine descriptor written in YAML.
func DecodeYAML(data []byte) (EngineJSON, error) {
	var ej EngineJSON
	if err := yaml.Unmarshal(data, &ej); err != nil {
		return EngineJSON{}, fmt.Errorf("failed to parse engine YAML: %w", err)
	}
	return ej, nil
}

// DecodeTOML decodes an engine descriptor written in TOML.
func DecodeTOML(data []byte) (EngineJSON, error) {
	var ej EngineJSON
	if _, err := toml.Decode(string(data), &ej); err != nil {
		return EngineJSON{}, fmt.Errorf("failed to parse engine TOML: %w", err)
	}
	return ej, nil
}

// DecodeFile decodes a descriptor, choosing the format from the file
// extension: .yaml/.yml, .toml, anything else is JSON.
func DecodeFile(name string, data []byte) (EngineJSON, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return DecodeYAML(data)
	case ".toml":
		return DecodeTOML(data)
	default:
		return DecodeJSON(data)
	}
}

// ParseEngineConfig parses a JSON descriptor into an engine configuration.
func (f *EngineFactory) ParseEngineConfig(data []byte) (payroll.EngineConfig, error) {
	ej, err := DecodeJSON(data)
	if err != nil {
		return payroll.EngineConfig{}, err
	}
	return f.FromJSON(ej)
}

// ParseEngineConfigYAML parses a YAML descriptor into an engine configuration.
func (f *EngineFactory) ParseEngineConfigYAML(data []byte) (payroll.EngineConfig, error) {
	ej, err := DecodeYAML(data)
	if err != nil {
		return payroll.EngineConfig{}, err
	}
	return f.FromJSON(ej)
}

// ParseEngineConfigTOML parses a TOML descriptor into an engine configuration.
func (f *EngineFactory) ParseEngineConfigTOML(data []byte) (payroll.EngineConfig, error) {
	ej, err := DecodeTOML(data)
	if err != nil {
		return payroll.EngineConfig{}, err
	}
	return f.FromJSON(ej)
}

// BuildEngine parses a JSON descriptor and constructs the engine.
func (f *EngineFactory) BuildEngine(data []byte) (*payroll.Engine, error) {
	cfg, err := f.ParseEngineConfig(data)
	if err != nil {
		return nil, err
	}
	return payroll.NewEngine(cfg)
}

// FromJSON converts a descriptor. Every invalid calculator is reported.
func (f *EngineFactory) FromJSON(ej EngineJSON) (payroll.EngineConfig, error) {
	cfg := payroll.EngineConfig{
		Order:    append([]string(nil), ej.Order...),
		Logger:   f.logger,
		Observer: f.observer,
	}
	var errs []error
	for i, cj := range ej.Calculators {
		calc, err := CalculatorFromJSON(cj)
		if err != nil {
			errs = append(errs, fmt.Errorf("calculator %d (%s): %w", i, cj.Type, err))
			continue
		}
		cfg.Calculators = append(cfg.Calculators, calc)
	}
	if len(errs) > 0 {
		return payroll.EngineConfig{}, errors.Join(errs...)
	}
	f.logger.Debug("engine configuration parsed",
		zap.Int("calculators", len(cfg.Calculators)),
		zap.Strings("order", cfg.Order))
	return cfg, nil
}

// CalculatorFromJSON builds one calculator from its descriptor.
func CalculatorFromJSON(cj CalculatorJSON) (payroll.Calculator, error) {
	config := payroll.Facts(cj.Config)
	switch cj.Type {
	case TypeBasicSalary:
		return calculators.NewBasicSalary(config), nil
	case TypeOvertime:
		return calculators.NewOvertime(config), nil
	case TypeHousingFund:
		return calculators.NewHousingFund(config), nil
	case TypeIncomeTax:
		return calculators.NewTax(config), nil
	case TypeYearEndBonusTax:
		return calculators.NewYearEndBonusTax(config), nil
	case TypeAllowance:
		if cj.Code == "" {
			return nil, fmt.Errorf("allowance requires a code")
		}
		return calculators.NewAllowance(cj.Code, cj.Name, config), nil
	case TypeSocialInsurance:
		if cj.Code == "" {
			return nil, fmt.Errorf("social insurance requires a code")
		}
		return calculators.NewSocialInsurance(cj.Code, cj.Name, config), nil
	case TypeFormula:
		if cj.Code == "" {
			return nil, fmt.Errorf("formula requires a code")
		}
		var resultType payroll.ComponentType
		if cj.ResultType != "" {
			t, err := payroll.ParseComponentType(cj.ResultType)
			if err != nil {
				return nil, err
			}
			resultType = t
		}
		calc, err := payroll.NewFormulaCalculator(cj.Code, cj.Name, cj.Formula, resultType)
		if err != nil {
			return nil, err
		}
		return calc, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCalculatorType, cj.Type)
}
