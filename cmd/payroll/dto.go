package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// INPUT
// =============================================================================

// EmployeeInput is one employee in the input file.
type EmployeeInput struct {
	EmployeeID            string           `json:"employee_id"`
	PeriodID              string           `json:"period_id"`
	PeriodStart           string           `json:"period_start,omitempty"` // YYYY-MM-DD
	PeriodEnd             string           `json:"period_end,omitempty"`
	BaseSalary            decimal.Decimal  `json:"base_salary"`
	EmployeeData          map[string]any   `json:"employee_data"`
	SalaryConfig          map[string]any   `json:"salary_config,omitempty"`
	SocialInsuranceConfig map[string]any   `json:"social_insurance_config,omitempty"`
	TaxConfig             map[string]any   `json:"tax_config,omitempty"`
	Attendance            *AttendanceInput `json:"attendance,omitempty"`
}

// AttendanceInput carries attendance figures.
type AttendanceInput struct {
	WorkDays         decimal.Decimal `json:"work_days"`
	StandardWorkDays decimal.Decimal `json:"standard_work_days"`
	OvertimeHours    decimal.Decimal `json:"overtime_hours"`
}

// Context builds the calculation context for the employee.
func (in EmployeeInput) Context() (*payroll.CalculationContext, error) {
	start, err := parseDate("period_start", in.PeriodStart)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("period_end", in.PeriodEnd)
	if err != nil {
		return nil, err
	}
	ci := payroll.ContextInput{
		EmployeeID:            in.EmployeeID,
		PeriodID:              in.PeriodID,
		PeriodStart:           start,
		PeriodEnd:             end,
		BaseSalary:            in.BaseSalary,
		EmployeeData:          in.EmployeeData,
		SalaryConfig:          in.SalaryConfig,
		SocialInsuranceConfig: in.SocialInsuranceConfig,
		TaxConfig:             in.TaxConfig,
	}
	if a := in.Attendance; a != nil {
		ci.Attendance = payroll.NewAttendanceData(a.WorkDays, a.StandardWorkDays, a.OvertimeHours)
	}
	return payroll.NewCalculationContext(ci), nil
}

// parseDate reads a YYYY-MM-DD date. Empty means unset.
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", field, s)
	}
	return t, nil
}

// readInputs decodes a JSON array of employees from path, or from stdin
// when path is "-".
func readInputs(path string, stdin io.Reader) ([]EmployeeInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var inputs []EmployeeInput
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&inputs); err != nil {
		return nil, fmt.Errorf("failed to parse input JSON: %w", err)
	}
	for i, in := range inputs {
		if _, err := parseDate("period_start", in.PeriodStart); err != nil {
			return nil, fmt.Errorf("employee %d (%s): %w", i, in.EmployeeID, err)
		}
		if _, err := parseDate("period_end", in.PeriodEnd); err != nil {
			return nil, fmt.Errorf("employee %d (%s): %w", i, in.EmployeeID, err)
		}
	}
	return inputs, nil
}

// ComponentDefinitionDTO describes one catalog component in a publish file.
//
//	[{"code": "BASIC_SALARY", "name": "Basic Salary", "type": "EARNING"}]
type ComponentDefinitionDTO struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Active       *bool  `json:"active,omitempty"` // default true
	DisplayOrder int    `json:"display_order,omitempty"`
}

// decodeComponents parses a catalog publish file. Types are matched
// case-insensitively.
func decodeComponents(data []byte) ([]payroll.ComponentDefinition, error) {
	var in []ComponentDefinitionDTO
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to parse component JSON: %w", err)
	}
	defs := make([]payroll.ComponentDefinition, 0, len(in))
	for _, c := range in {
		t, err := payroll.ParseComponentType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", c.Code, err)
		}
		defs = append(defs, payroll.ComponentDefinition{
			Code:         c.Code,
			Name:         c.Name,
			Type:         t,
			Active:       c.Active == nil || *c.Active,
			DisplayOrder: c.DisplayOrder,
		})
	}
	return defs, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// RevisionDTO summarizes a catalog revision.
type RevisionDTO struct {
	Revision    int64  `json:"revision"`
	PublishedAt string `json:"published_at"`
	Components  int    `json:"components"`
}

func newRevisionDTO(r sqlite.RevisionInfo) RevisionDTO {
	return RevisionDTO{
		Revision:    r.Revision,
		PublishedAt: r.PublishedAt.Format(time.RFC3339),
		Components:  r.Components,
	}
}

// BatchDTO is the JSON written to stdout.
type BatchDTO struct {
	RunID     string      `json:"run_id"`
	Completed int         `json:"completed"`
	Failed    int         `json:"failed"`
	Results   []ResultDTO `json:"results"`
}

// ResultDTO is one employee's result.
type ResultDTO struct {
	EmployeeID      string         `json:"employee_id"`
	PeriodID        string         `json:"period_id,omitempty"`
	Status          string         `json:"status"`
	Error           string         `json:"error,omitempty"`
	TotalEarnings   string         `json:"total_earnings"`
	TotalDeductions string         `json:"total_deductions"`
	NetPay          string         `json:"net_pay"`
	Components      []ComponentDTO `json:"components"`
}

// ComponentDTO is one calculated component.
type ComponentDTO struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Amount string `json:"amount"`
	Method string `json:"method,omitempty"`
}

func newBatchDTO(batch payroll.BatchResult) BatchDTO {
	out := BatchDTO{
		RunID:     batch.RunID.String(),
		Completed: len(batch.Completed()),
		Failed:    len(batch.Failed()),
		Results:   make([]ResultDTO, 0, len(batch.Results)),
	}
	for _, r := range batch.Results {
		out.Results = append(out.Results, newResultDTO(r))
	}
	return out
}

func newResultDTO(r *payroll.CalculationResult) ResultDTO {
	dto := ResultDTO{
		EmployeeID:      r.EmployeeID,
		PeriodID:        r.PeriodID,
		Status:          string(r.Status),
		Error:           r.ErrorMessage,
		TotalEarnings:   r.TotalEarnings.StringFixed(2),
		TotalDeductions: r.TotalDeductions.StringFixed(2),
		NetPay:          r.NetPay.StringFixed(2),
		Components:      make([]ComponentDTO, 0, len(r.Components)),
	}
	for _, c := range r.Components {
		dto.Components = append(dto.Components, ComponentDTO{
			Code:   c.Code,
			Name:   c.Name,
			Type:   string(c.Type),
			Amount: c.Amount.StringFixed(2),
			Method: string(c.Method),
		})
	}
	return dto
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
