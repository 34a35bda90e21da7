package backtest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry is an optional set of Prometheus collectors a caller can wire
// into the Simulator and MonteCarloAggregator; the core never registers
// these globally or reads/writes them unless a non-nil Telemetry is
// explicitly passed in, keeping the core free of process-wide state.
type Telemetry struct {
	RunsTotal           prometheus.Counter
	RunErrorsTotal       *prometheus.CounterVec
	MonteCarloIterations prometheus.Histogram
	OverfitScore         prometheus.Gauge
}

// NewTelemetry constructs and registers the collectors against reg. Callers
// that don't need metrics can pass a nil *Telemetry throughout; every
// method below is a no-op on a nil receiver.
func NewTelemetry(reg prometheus.Registerer, namespace string) *Telemetry {
	t := &Telemetry{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulate_runs_total",
			Help:      "Total number of simulate() invocations.",
		}),
		RunErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulate_errors_total",
			Help:      "Total number of simulate() invocations that returned an error, by error code.",
		}, []string{"code"}),
		MonteCarloIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monte_carlo_iterations",
			Help:      "Distribution of iteration counts requested per monte_carlo() call.",
			Buckets:   prometheus.ExponentialBuckets(100, 2, 8),
		}),
		OverfitScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overfitting_score",
			Help:      "Overfitting score of the most recently analyzed strategy.",
		}),
	}
	reg.MustRegister(t.RunsTotal, t.RunErrorsTotal, t.MonteCarloIterations, t.OverfitScore)
	return t
}

func (t *Telemetry) recordRun() {
	if t == nil {
		return
	}
	t.RunsTotal.Inc()
}

func (t *Telemetry) recordRunError(code ErrorCode) {
	if t == nil {
		return
	}
	t.RunErrorsTotal.WithLabelValues(string(code)).Inc()
}

func (t *Telemetry) recordMonteCarloIterations(n int) {
	if t == nil {
		return
	}
	t.MonteCarloIterations.Observe(float64(n))
}

func (t *Telemetry) recordOverfitScore(score float64) {
	if t == nil {
		return
	}
	t.OverfitScore.Set(score)
}
