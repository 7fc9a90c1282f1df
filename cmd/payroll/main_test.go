package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/payroll"
)

const engineYAML = `
calculators:
  - type: basic_salary
  - type: allowance
    code: MEAL_ALLOWANCE
    name: Meal
    config:
      calculation_type: fixed
      amount: 400
`

const engineTOML = `
[[calculators]]
type = "basic_salary"

[[calculators]]
type = "allowance"
code = "MEAL_ALLOWANCE"
name = "Meal"

[calculators.config]
calculation_type = "fixed"
amount = 400
`

const employeesJSON = `[
  {"employee_id": "emp-1", "period_id": "2025-01",
   "employee_data": {"basic_salary": 10000, "department": "sales"}},
  {"employee_id": "emp-2", "period_id": "2025-01",
   "employee_data": {"basic_salary": 8000, "department": "hr"},
   "attendance": {"work_days": 11, "standard_work_days": 22}}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeBatch(t *testing.T, out string) BatchDTO {
	t.Helper()
	var batch BatchDTO
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	return batch
}

// =============================================================================
// CALCULATE
// =============================================================================

func TestCalculate_EngineFile(t *testing.T) {
	// GIVEN: A YAML engine descriptor and two employees on stdin
	// WHEN: Calculating without the store
	// THEN: Every employee is calculated and metrics are written

	dir := t.TempDir()
	enginePath := writeFile(t, dir, "engine.yaml", engineYAML)
	metricsPath := filepath.Join(dir, "metrics.prom")

	stdout, _, err := execute(t, strings.NewReader(employeesJSON),
		"calculate", "--no-rules", "--engine", enginePath, "--metrics-out", metricsPath)
	require.NoError(t, err)

	batch := decodeBatch(t, stdout)
	assert.NotEmpty(t, batch.RunID)
	assert.Equal(t, 2, batch.Completed)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, "10400.00", batch.Results[0].NetPay)
	// 8000 x 11/22 = 4000, + 400 meal
	assert.Equal(t, "4400.00", batch.Results[1].NetPay)

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `payroll_calculations_total{status="COMPLETED"} 2`)
}

func TestCalculate_FailedEmployee(t *testing.T) {
	enginePath := writeFile(t, t.TempDir(), "engine.yaml", engineYAML)

	stdout, stderr, err := execute(t,
		strings.NewReader(`[{"employee_id": "emp-3", "employee_data": {"department": "ops"}}]`),
		"calculate", "--no-rules", "-e", enginePath)

	assert.ErrorIs(t, err, errBatchFailed)
	batch := decodeBatch(t, stdout)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, string(payroll.StatusFailed), batch.Results[0].Status)
	assert.NotEmpty(t, batch.Results[0].Error)
	assert.Contains(t, stderr, "component calculation failed")
}

func TestCalculate_EngineSourceRequired(t *testing.T) {
	_, _, err := execute(t, nil, "calculate", "--no-rules")
	assert.EqualError(t, err, "exactly one of --engine or --engine-id is required")

	_, _, err = execute(t, nil, "calculate", "--engine", "a.json", "--engine-id", "x")
	assert.Error(t, err)

	_, _, err = execute(t, nil, "calculate", "--engine-id", "x", "--no-rules")
	assert.Error(t, err)
}

func TestCalculate_InvalidLogLevel(t *testing.T) {
	enginePath := writeFile(t, t.TempDir(), "engine.yaml", engineYAML)

	_, _, err := execute(t, strings.NewReader("[]"),
		"--log-level", "loud", "calculate", "--no-rules", "--engine", enginePath)

	assert.ErrorContains(t, err, "invalid --log-level")
}

func TestCalculate_MalformedPeriodDate(t *testing.T) {
	// GIVEN: An employee whose period_start is not YYYY-MM-DD
	// WHEN: Calculating
	// THEN: The input is rejected instead of running with a zero date

	enginePath := writeFile(t, t.TempDir(), "engine.yaml", engineYAML)

	stdout, _, err := execute(t,
		strings.NewReader(`[{"employee_id": "emp-1", "period_start": "01/02/2025",
		  "employee_data": {"basic_salary": 8000}}]`),
		"calculate", "--no-rules", "--engine", enginePath)

	assert.ErrorContains(t, err, `invalid period_start "01/02/2025"`)
	assert.Empty(t, stdout)
}

func TestReadInputs_PeriodDates(t *testing.T) {
	inputs, err := readInputs("-", strings.NewReader(
		`[{"employee_id": "emp-1", "period_start": "2025-01-01", "period_end": "2025-01-31"}]`))
	require.NoError(t, err)

	cc, err := inputs[0].Context()
	require.NoError(t, err)
	assert.Equal(t, 31, cc.PeriodEnd.Day())

	_, err = readInputs("-", strings.NewReader(`[{"employee_id": "emp-2", "period_end": "2025-13-01"}]`))
	assert.ErrorContains(t, err, "employee 0 (emp-2)")
}

func TestWriteMetrics_ReportsWriteFailure(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	registry := prometheus.NewRegistry()
	metrics.NewRecorder(registry).ObserveResult(payroll.NewCalculationResult("emp-1", ""), 0)

	err := writeMetrics("/dev/full", registry)

	assert.Error(t, err)
	assert.Error(t, writeMetrics(filepath.Join(t.TempDir(), "missing", "metrics.prom"), registry))
}

// =============================================================================
// STORE WORKFLOW
// =============================================================================

func TestStoreWorkflow(t *testing.T) {
	// GIVEN: An engine descriptor, a sales rule set and a catalog saved
	//        through the maintenance commands
	// WHEN: Calculating against the stored engine
	// THEN: Only the sales employee gets the higher meal allowance

	dir := t.TempDir()
	db := filepath.Join(dir, "payroll.db")

	out, _, err := execute(t, nil, "--db", db, "engine", "save", "--id", "monthly",
		"-f", writeFile(t, dir, "engine.toml", engineTOML))
	require.NoError(t, err)
	assert.Equal(t, "saved engine monthly version 1\n", out)

	out, _, err = execute(t, nil, "--db", db, "ruleset", "save", "-f", writeFile(t, dir, "sales.json",
		`{"id": "sales", "departments": ["sales"],
		  "rules": [{"code": "MEAL_ALLOWANCE", "parameters": {"amount": 650}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "saved rule set sales version 1\n", out)

	out, _, err = execute(t, nil, "--db", db, "catalog", "publish", "-f", writeFile(t, dir, "catalog.json",
		`[{"code": "BASIC_SALARY", "name": "Basic Salary", "type": "earning"},
		  {"code": "MEAL_ALLOWANCE", "name": "Meal", "type": "EARNING", "active": false}]`))
	require.NoError(t, err)
	assert.Equal(t, "published catalog revision 1 (2 components)\n", out)

	out, _, err = execute(t, nil, "--db", db, "catalog", "list")
	require.NoError(t, err)
	var revisions []RevisionDTO
	require.NoError(t, json.Unmarshal([]byte(out), &revisions))
	require.Len(t, revisions, 1)
	assert.Equal(t, 2, revisions[0].Components)

	stdout, stderr, err := execute(t, nil, "--db", db, "--log-level", "debug",
		"calculate", "--engine-id", "monthly", "-i", writeFile(t, dir, "employees.json", employeesJSON))
	require.NoError(t, err)

	batch := decodeBatch(t, stdout)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, "10650.00", batch.Results[0].NetPay)
	assert.Equal(t, "4400.00", batch.Results[1].NetPay)
	assert.Contains(t, stderr, "rule sets applied")
}

func TestEngineSave_RejectsInvalidDescriptor(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(t, nil, "--db", filepath.Join(dir, "payroll.db"), "engine", "save", "--id", "broken",
		"-f", writeFile(t, dir, "engine.json", `{"calculators": [{"type": "lottery"}]}`))

	assert.ErrorContains(t, err, "unknown calculator type")
}

func TestCatalogPublish_UnknownType(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(t, nil, "--db", filepath.Join(dir, "payroll.db"), "catalog", "publish",
		"-f", writeFile(t, dir, "catalog.json", `[{"code": "X", "name": "X", "type": "BONUS"}]`))

	assert.ErrorContains(t, err, "unknown component type")
}
