/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Calculators return these; the Engine converts them into a FAILED
  CalculationResult instead of letting them escape.

ERROR CATEGORIES:
  1. Calculation errors - One family, three kinds:
     - invalid configuration (never transient)
     - missing data (resolved once upstream data is backfilled)
     - generic failure (formula evaluation, unsupported methods)
  2. Setup errors - Engine configuration defects found before any run

USAGE:
  if errors.Is(err, payroll.ErrInvalidConfiguration) { ... }

  var calcErr *payroll.CalculationError
  if errors.As(err, &calcErr) {
      log.Println(calcErr.EmployeeID, calcErr.Component)
  }

SEE ALSO:
  - calculator.go: ValidateContext / ValidateConfig raise these
  - engine.go: ValidateCalculationSetup reports setup errors
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPayrollCalculation matches every calculation error.
	ErrPayrollCalculation = errors.New("payroll calculation error")

	// ErrInvalidConfiguration is returned when a calculator's required
	// configuration is missing or semantically invalid.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrMissingData is returned when required employee or attendance data
	// is absent at calculation time.
	ErrMissingData = errors.New("missing data")
)

// Setup errors reported by ValidateCalculationSetup.
var (
	ErrEmptyRegistry       = errors.New("no calculators registered")
	ErrEmptyOrder          = errors.New("calculation order is empty")
	ErrUnknownCalculator   = errors.New("calculation order references unknown calculator")
	ErrDuplicateCalculator = errors.New("calculator registered twice")
	ErrDependencyOrder     = errors.New("calculator ordered before its dependency")
	ErrDependencyCycle     = errors.New("calculator dependency cycle")
)

// =============================================================================
// STRUCTURED ERRORS - Carry employee/component context
// =============================================================================

// ErrorKind classifies a CalculationError.
type ErrorKind string

const (
	KindCalculation   ErrorKind = "calculation"
	KindConfiguration ErrorKind = "configuration"
	KindMissingData   ErrorKind = "missing_data"
)

// CalculationError is the single error family raised by calculators.
type CalculationError struct {
	Kind       ErrorKind
	EmployeeID string
	Component  string
	Message    string
	Err        error // optional cause
}

func (e *CalculationError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	switch {
	case e.Component != "" && e.EmployeeID != "":
		return fmt.Sprintf("%s [employee=%s component=%s]", msg, e.EmployeeID, e.Component)
	case e.Component != "":
		return fmt.Sprintf("%s [component=%s]", msg, e.Component)
	case e.EmployeeID != "":
		return fmt.Sprintf("%s [employee=%s]", msg, e.EmployeeID)
	}
	return msg
}

// Is lets errors.Is match the family sentinel and the kind sentinel.
func (e *CalculationError) Is(target error) bool {
	switch target {
	case ErrPayrollCalculation:
		return true
	case ErrInvalidConfiguration:
		return e.Kind == KindConfiguration
	case ErrMissingData:
		return e.Kind == KindMissingData
	}
	return false
}

func (e *CalculationError) Unwrap() error { return e.Err }

// InvalidConfiguration builds a configuration error.
func InvalidConfiguration(employeeID, component, format string, args ...any) *CalculationError {
	return &CalculationError{
		Kind:       KindConfiguration,
		EmployeeID: employeeID,
		Component:  component,
		Message:    fmt.Sprintf(format, args...),
	}
}

// MissingData builds a missing-data error.
func MissingData(employeeID, component, format string, args ...any) *CalculationError {
	return &CalculationError{
		Kind:       KindMissingData,
		EmployeeID: employeeID,
		Component:  component,
		Message:    fmt.Sprintf(format, args...),
	}
}

// CalculationFailure builds a generic calculation error wrapping cause.
func CalculationFailure(employeeID, component string, cause error, format string, args ...any) *CalculationError {
	return &CalculationError{
		Kind:       KindCalculation,
		EmployeeID: employeeID,
		Component:  component,
		Message:    fmt.Sprintf(format, args...),
		Err:        cause,
	}
}

// SetupError describes one defect in an engine configuration.
type SetupError struct {
	Code   string
	Detail string
	Err    error
}

func (e *SetupError) Error() string {
	if e.Code == "" {
		return e.Err.Error()
	}
	if e.Detail == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Code)
	}
	return fmt.Sprintf("%v: %s (%s)", e.Err, e.Code, e.Detail)
}

func (e *SetupError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigurationError returns true for configuration defects.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// IsMissingData returns true when upstream data was incomplete.
func IsMissingData(err error) bool {
	return errors.Is(err, ErrMissingData)
}

// IsRetryable returns true if the error might succeed once data is fixed
// upstream. Configuration errors are never retryable.
func IsRetryable(err error) bool {
	return IsMissingData(err)
}
