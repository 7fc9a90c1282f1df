package payroll

// RuleSet is a named, versioned bag of rule records with applicability
// filters. It supplies calculator parameters only. ExecutionOrder is kept
// for reference; the engine's own order is authoritative.
type RuleSet struct {
	ID             string
	Name           string
	Version        int
	Active         bool
	Departments    []string
	Positions      []string
	EmployeeTypes  []string
	ExecutionOrder []string
	Rules          []CalculationRule
}

// Employee data keys consulted by AppliesTo.
const (
	FactDepartment   = "department"
	FactPosition     = "position"
	FactEmployeeType = "employee_type"
)

// AppliesTo reports whether the rule set targets the context's employee.
// An empty filter matches everyone.
func (rs RuleSet) AppliesTo(cc *CalculationContext) bool {
	if !rs.Active || cc == nil {
		return false
	}
	return matchesFilter(rs.Departments, cc.EmployeeData.String(FactDepartment)) &&
		matchesFilter(rs.Positions, cc.EmployeeData.String(FactPosition)) &&
		matchesFilter(rs.EmployeeTypes, cc.EmployeeData.String(FactEmployeeType))
}

func matchesFilter(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// ApplyRuleSets appends the rules of every applicable set to the context.
// It returns the ids of the sets applied.
func ApplyRuleSets(cc *CalculationContext, sets []RuleSet) []string {
	var applied []string
	for _, rs := range sets {
		if !rs.AppliesTo(cc) {
			continue
		}
		for _, r := range rs.Rules {
			r.Parameters = NormalizeFacts(r.Parameters)
			cc.Rules = append(cc.Rules, r)
		}
		applied = append(applied, rs.ID)
	}
	return applied
}
