package payroll

import "time"

// Observer receives instrumentation from the Engine. Implementations must
// be safe for concurrent use when the engine is shared.
type Observer interface {
	// ObserveComponent is called after every calculator run.
	ObserveComponent(code string, elapsed time.Duration, err error)
	// ObserveResult is called once per employee calculation.
	ObserveResult(result *CalculationResult, elapsed time.Duration)
}

// NopObserver discards observations.
type NopObserver struct{}

func (NopObserver) ObserveComponent(string, time.Duration, error) {}
func (NopObserver) ObserveResult(*CalculationResult, time.Duration) {}
