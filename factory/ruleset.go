package factory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// RULE SET SCHEMA
// =============================================================================

// RuleSetJSON is the serialized form of a payroll.RuleSet.
//
//	{
//	  "id": "sales-2025", "name": "Sales allowances", "version": 3,
//	  "departments": ["sales"],
//	  "rules": [
//	    {"code": "MEAL_ALLOWANCE", "parameters": {"amount": 650}},
//	    {"code": "COMMISSION", "formula": "sales_volume * 0.02",
//	     "conditions": {"position": "account_executive"}}
//	  ]
//	}
type RuleSetJSON struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Version        int        `json:"version,omitempty"`
	Active         *bool      `json:"active,omitempty"` // default true
	Departments    []string   `json:"departments,omitempty"`
	Positions      []string   `json:"positions,omitempty"`
	EmployeeTypes  []string   `json:"employee_types,omitempty"`
	ExecutionOrder []string   `json:"execution_order,omitempty"`
	Rules          []RuleJSON `json:"rules,omitempty"`
}

// RuleJSON is the serialized form of a payroll.CalculationRule.
type RuleJSON struct {
	Code       string         `json:"code"`
	Formula    string         `json:"formula,omitempty"`
	Active     *bool          `json:"active,omitempty"` // default true
	Conditions map[string]any `json:"conditions,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ParseRuleSet parses a JSON rule set.
func ParseRuleSet(data []byte) (payroll.RuleSet, error) {
	var rj RuleSetJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rj); err != nil {
		return payroll.RuleSet{}, fmt.Errorf("failed to parse rule set JSON: %w", err)
	}
	return RuleSetFromJSON(rj)
}

// RuleSetFromJSON converts and validates a rule set descriptor. Rule
// formulas are parsed up front so a broken formula never reaches a run.
func RuleSetFromJSON(rj RuleSetJSON) (payroll.RuleSet, error) {
	if rj.ID == "" {
		return payroll.RuleSet{}, fmt.Errorf("rule set requires an id")
	}
	rs := payroll.RuleSet{
		ID:             rj.ID,
		Name:           rj.Name,
		Version:        rj.Version,
		Active:         boolOr(rj.Active, true),
		Departments:    rj.Departments,
		Positions:      rj.Positions,
		EmployeeTypes:  rj.EmployeeTypes,
		ExecutionOrder: rj.ExecutionOrder,
	}
	for i, r := range rj.Rules {
		if r.Code == "" {
			return payroll.RuleSet{}, fmt.Errorf("rule set %s: rule %d requires a code", rj.ID, i)
		}
		if r.Formula != "" {
			if _, err := payroll.ParseExpression(r.Formula); err != nil {
				return payroll.RuleSet{}, fmt.Errorf("rule set %s: rule %s: %w", rj.ID, r.Code, err)
			}
		}
		rs.Rules = append(rs.Rules, payroll.CalculationRule{
			Code:       r.Code,
			Formula:    r.Formula,
			Active:     boolOr(r.Active, true),
			Conditions: r.Conditions,
			Parameters: payroll.NormalizeFacts(r.Parameters),
		})
	}
	return rs, nil
}

// RuleSetToJSON converts a rule set back to its descriptor.
func RuleSetToJSON(rs payroll.RuleSet) RuleSetJSON {
	rj := RuleSetJSON{
		ID:             rs.ID,
		Name:           rs.Name,
		Version:        rs.Version,
		Active:         boolPtr(rs.Active),
		Departments:    rs.Departments,
		Positions:      rs.Positions,
		EmployeeTypes:  rs.EmployeeTypes,
		ExecutionOrder: rs.ExecutionOrder,
	}
	for _, r := range rs.Rules {
		rj.Rules = append(rj.Rules, RuleJSON{
			Code:       r.Code,
			Formula:    r.Formula,
			Active:     boolPtr(r.Active),
			Conditions: r.Conditions,
			Parameters: r.Parameters,
		})
	}
	return rj
}

func boolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}

func boolPtr(b bool) *bool { return &b }
