/*
engine.go - Calculator orchestration

PURPOSE:
  The Engine owns an immutable registry of calculators and an execution
  order. Calculate runs each calculator in order for one employee,
  appends its component to the result and writes its amount into the
  context ledger so downstream calculators can read it.

CONFIGURATION:
  An Engine is built once from an EngineConfig and never mutated:

    engine, err := payroll.NewEngine(payroll.EngineConfig{
        Calculators: []payroll.Calculator{basic, overtime, pension, tax},
    })

  With Order empty, the order is derived by a stable topological sort
  over DependsOn edges (registration order breaks ties). With Order
  given, it is validated: every entry must be registered and no
  calculator may run before a calculator it depends on.

FAILURE SEMANTICS:
  Fail-fast per employee. The first calculator error (or panic) stops
  that employee's run, marks the result FAILED and keeps the components
  computed so far. Nothing escapes Calculate as an error. Batches are
  independent per employee: one failure never affects another result.
  A calculator that reads a registered code which has not run yet fails
  with ErrDependencyOrder, even when its own Calculate succeeded.

CONCURRENCY:
  The Engine is read-only after construction and safe to share. Each
  CalculationContext must belong to a single calculation.

SEE ALSO:
  - calculator.go: Calculator contract
  - observer.go: Instrumentation hook
*/
package payroll

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EngineConfig fully describes an engine.
type EngineConfig struct {
	Calculators []Calculator
	// Order is optional. When empty it is derived from dependencies.
	Order    []string
	Logger   *zap.Logger
	Observer Observer
}

type Engine struct {
	calculators map[string]Calculator
	registered  []string
	order       []string
	logger      *zap.Logger
	observer    Observer
	setupErrs   []error
}

// NewEngine builds and validates an engine. Every setup defect is
// reported, joined into one error.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	e := &Engine{
		calculators: make(map[string]Calculator, len(cfg.Calculators)),
		logger:      cfg.Logger,
		observer:    cfg.Observer,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.observer == nil {
		e.observer = NopObserver{}
	}

	for _, c := range cfg.Calculators {
		if c == nil {
			continue
		}
		code := c.Code()
		if _, dup := e.calculators[code]; dup {
			e.setupErrs = append(e.setupErrs, &SetupError{Code: code, Err: ErrDuplicateCalculator})
			continue
		}
		e.calculators[code] = c
		e.registered = append(e.registered, code)
	}

	if len(cfg.Order) > 0 {
		e.order = append([]string(nil), cfg.Order...)
	} else if len(e.registered) > 0 {
		order, err := e.topologicalOrder()
		if err != nil {
			e.setupErrs = append(e.setupErrs, err)
		}
		e.order = order
	}

	if errs := e.ValidateCalculationSetup(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return e, nil
}

// WithOrder returns a new engine with the same calculators and the given
// order. The receiver is unchanged.
func (e *Engine) WithOrder(order []string) (*Engine, error) {
	calcs := make([]Calculator, 0, len(e.registered))
	for _, code := range e.registered {
		calcs = append(calcs, e.calculators[code])
	}
	return NewEngine(EngineConfig{
		Calculators: calcs,
		Order:       order,
		Logger:      e.logger,
		Observer:    e.observer,
	})
}

// Order returns the execution order.
func (e *Engine) Order() []string { return append([]string(nil), e.order...) }

// Calculator returns the registered calculator for code.
func (e *Engine) Calculator(code string) (Calculator, bool) {
	c, ok := e.calculators[code]
	return c, ok
}

// =============================================================================
// SETUP VALIDATION
// =============================================================================

// ValidateCalculationSetup is a static pre-flight check. It never runs a
// calculator. Each defect is a distinct error.
func (e *Engine) ValidateCalculationSetup() []error {
	errs := append([]error(nil), e.setupErrs...)
	if len(e.calculators) == 0 {
		errs = append(errs, &SetupError{Err: ErrEmptyRegistry})
	}
	if len(e.order) == 0 {
		errs = append(errs, &SetupError{Err: ErrEmptyOrder})
	}

	position := make(map[string]int, len(e.order))
	for i, code := range e.order {
		if _, ok := e.calculators[code]; !ok {
			errs = append(errs, &SetupError{Code: code, Err: ErrUnknownCalculator})
			continue
		}
		if _, seen := position[code]; seen {
			errs = append(errs, &SetupError{Code: code, Detail: "listed twice in order", Err: ErrDuplicateCalculator})
			continue
		}
		position[code] = i
	}

	for _, code := range e.order {
		c, ok := e.calculators[code]
		if !ok {
			continue
		}
		for _, dep := range e.order {
			if dep == code || !c.DependsOn(dep) {
				continue
			}
			depPos, depOK := position[dep]
			if depOK && depPos > position[code] {
				errs = append(errs, &SetupError{
					Code:   code,
					Detail: fmt.Sprintf("reads %s which runs later", dep),
					Err:    ErrDependencyOrder,
				})
			}
		}
	}
	return errs
}

// topologicalOrder runs Kahn's algorithm, always picking the earliest
// registered ready calculator so the result is deterministic.
func (e *Engine) topologicalOrder() ([]string, error) {
	indegree := make(map[string]int, len(e.registered))
	dependants := make(map[string][]string, len(e.registered))
	for _, code := range e.registered {
		indegree[code] += 0
		for _, dep := range e.registered {
			if dep != code && e.calculators[code].DependsOn(dep) {
				indegree[code]++
				dependants[dep] = append(dependants[dep], code)
			}
		}
	}

	done := make(map[string]bool, len(e.registered))
	order := make([]string, 0, len(e.registered))
	for len(order) < len(e.registered) {
		next := ""
		for _, code := range e.registered {
			if !done[code] && indegree[code] == 0 {
				next = code
				break
			}
		}
		if next == "" {
			var stuck []string
			for _, code := range e.registered {
				if !done[code] {
					stuck = append(stuck, code)
				}
			}
			return order, &SetupError{Code: fmt.Sprint(stuck), Err: ErrDependencyCycle}
		}
		done[next] = true
		order = append(order, next)
		for _, d := range dependants[next] {
			indegree[d]--
		}
	}
	return order, nil
}

// =============================================================================
// CALCULATION
// =============================================================================

// Calculate runs every calculator in order for one employee. It always
// returns a result; check Status before trusting totals.
func (e *Engine) Calculate(cc *CalculationContext) *CalculationResult {
	started := time.Now()
	if cc == nil {
		result := NewCalculationResult("", "")
		result.Fail(MissingData("", "", "calculation context is required"))
		e.observer.ObserveResult(result, time.Since(started))
		return result
	}

	result := NewCalculationResult(cc.EmployeeID, cc.PeriodID)
	result.Status = StatusProcessing
	log := e.logger.With(zap.String("employee_id", cc.EmployeeID), zap.String("period_id", cc.PeriodID))

	cc.beginRun(e.order)
	defer cc.endRun()

	for _, code := range e.order {
		calc, ok := e.calculators[code]
		if !ok {
			continue
		}

		t0 := time.Now()
		cc.startCalculating(code)
		res, err := runCalculator(calc, cc)
		if early := cc.takeEarlyReads(); err == nil && len(early) > 0 {
			err = earlyReadError(cc.EmployeeID, code, early)
		}
		e.observer.ObserveComponent(code, time.Since(t0), err)
		if err != nil {
			log.Warn("component calculation failed",
				zap.String("component", code),
				zap.Int("completed_components", len(result.Components)),
				zap.Error(err))
			result.Fail(err)
			e.observer.ObserveResult(result, time.Since(started))
			return result
		}

		result.AddComponent(res.ToComponent())
		cc.AddCalculationResult(res.Code, res.Amount)
		log.Debug("component calculated",
			zap.String("component", code),
			zap.String("type", string(res.Type)),
			zap.String("amount", res.Amount.StringFixed(2)))
	}

	result.Status = StatusCompleted
	log.Debug("payroll calculated",
		zap.String("earnings", result.TotalEarnings.StringFixed(2)),
		zap.String("deductions", result.TotalDeductions.StringFixed(2)),
		zap.String("net_pay", result.NetPay.StringFixed(2)))
	e.observer.ObserveResult(result, time.Since(started))
	return result
}

// earlyReadError reports a component that read ledger codes the engine had
// not calculated yet. This happens when run-time configuration (context
// fallbacks or rule parameters) points a calculator at codes its DependsOn
// did not declare.
func earlyReadError(employeeID, code string, early []string) *CalculationError {
	err := InvalidConfiguration(employeeID, code,
		"read %s before it was calculated; declare the dependency in the calculator config", strings.Join(early, ", "))
	err.Err = ErrDependencyOrder
	return err
}

// runCalculator converts a calculator panic into a calculation error.
func runCalculator(calc Calculator, cc *CalculationContext) (res ComponentCalculationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = CalculationFailure(cc.EmployeeID, calc.Code(), fmt.Errorf("%v", r), "calculator panicked")
		}
	}()
	return calc.Calculate(cc)
}

// =============================================================================
// BATCH
// =============================================================================

// BatchResult groups independent per-employee results from one run.
type BatchResult struct {
	RunID   uuid.UUID
	Results []*CalculationResult
}

// Completed returns the results that finished successfully.
func (b BatchResult) Completed() []*CalculationResult {
	return b.filter(StatusCompleted)
}

// Failed returns the results that failed.
func (b BatchResult) Failed() []*CalculationResult {
	return b.filter(StatusFailed)
}

func (b BatchResult) filter(status CalculationStatus) []*CalculationResult {
	var out []*CalculationResult
	for _, r := range b.Results {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// CalculateBatch is a plain sequential loop over Calculate. There is no
// shared state between employees and no transactional grouping.
func (e *Engine) CalculateBatch(contexts []*CalculationContext) BatchResult {
	batch := BatchResult{RunID: uuid.New(), Results: make([]*CalculationResult, 0, len(contexts))}
	for _, cc := range contexts {
		batch.Results = append(batch.Results, e.Calculate(cc))
	}
	e.logger.Info("payroll batch calculated",
		zap.String("run_id", batch.RunID.String()),
		zap.Int("employees", len(contexts)),
		zap.Int("failed", len(batch.Failed())))
	return batch
}
