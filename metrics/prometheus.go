// Package metrics exports payroll engine instrumentation to Prometheus.
//
// Recorder implements payroll.Observer. Attach it through
// payroll.EngineConfig.Observer or factory.NewEngineFactory:
//
//	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
//	f := factory.NewEngineFactory(logger, recorder)
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/payroll-engine/payroll"
)

// ErrorKindOther labels component errors outside the CalculationError family.
const ErrorKindOther = "other"

// Recorder records engine observations as Prometheus metrics.
type Recorder struct {
	calculations        *prometheus.CounterVec
	calculationDuration prometheus.Histogram
	componentDuration   *prometheus.HistogramVec
	componentErrors     *prometheus.CounterVec
}

var _ payroll.Observer = (*Recorder)(nil)

// NewRecorder registers the payroll metrics with reg. A nil reg creates
// unregistered collectors, useful when only the Recorder's side effects
// matter.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		calculations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payroll",
			Name:      "calculations_total",
			Help:      "Total employee calculations by final status.",
		}, []string{"status"}),

		calculationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "payroll",
			Name:      "calculation_duration_seconds",
			Help:      "Wall time of one employee calculation.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),

		componentDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payroll",
			Name:      "component_duration_seconds",
			Help:      "Wall time of one calculator run by component code.",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01},
		}, []string{"component"}),

		componentErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payroll",
			Name:      "component_errors_total",
			Help:      "Total calculator failures by component code and error kind.",
		}, []string{"component", "kind"}),
	}
}

// ObserveComponent implements payroll.Observer.
func (r *Recorder) ObserveComponent(code string, elapsed time.Duration, err error) {
	r.componentDuration.WithLabelValues(code).Observe(elapsed.Seconds())
	if err != nil {
		r.componentErrors.WithLabelValues(code, errorKind(err)).Inc()
	}
}

// ObserveResult implements payroll.Observer.
func (r *Recorder) ObserveResult(result *payroll.CalculationResult, elapsed time.Duration) {
	if result == nil {
		return
	}
	r.calculations.WithLabelValues(string(result.Status)).Inc()
	r.calculationDuration.Observe(elapsed.Seconds())
}

func errorKind(err error) string {
	var calcErr *payroll.CalculationError
	if errors.As(err, &calcErr) {
		return string(calcErr.Kind)
	}
	return ErrorKindOther
}
