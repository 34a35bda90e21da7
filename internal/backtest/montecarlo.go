package backtest

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/shopspring/decimal"
)

// MonteCarloConfig configures a monte_carlo() invocation.
type MonteCarloConfig struct {
	Iterations       int
	Mode             ResampleMode
	BaseSeed         uint64
	BlockSize        int // ModeBlockBootstrap only
	ConfidenceLevel  float64 // e.g. 0.95
	ParallelWorkers  int
	GoalThresholds   []float64 // total_return thresholds for the goal-probability map

	// OnProgress, when non-nil, is invoked after each completed run with
	// the running completed-count and the total iteration count. It is
	// called from worker goroutines and must not block or mutate shared
	// state beyond what the caller synchronizes itself; it never affects
	// RNG draws or aggregation, so determinism (spec invariant 4) holds
	// regardless of whether a caller supplies it.
	OnProgress func(completed, total int)
}

// MonteCarloSummary is the distributional summary over N synthetic runs.
type MonteCarloSummary struct {
	Iterations int
	Metrics    map[string]MetricDistribution

	ConfidenceLevel float64
	ConfidenceInterval map[string][2]float64

	ProbabilityOfProfit float64
	RobustnessScore     float64

	VaR95, VaR99, CVaR95 float64 // over the cross-run total_return distribution
	RuinProbability      float64
	GoalProbabilities    map[float64]float64

	WorstCase PerformanceMetrics
	BestCase  PerformanceMetrics
}

// MetricDistribution summarizes one scalar metric across all runs.
type MetricDistribution struct {
	Mean, Median, StdDev                 float64
	P5, P25, P50, P75, P95               float64
}

// MonteCarloAggregator runs the configured resampling mode N times,
// dispatches runs across a worker pool (embarrassingly parallel per spec
// §5 — no shared RNG stream, commutative aggregation via sort/sum), and
// summarizes the resulting PerformanceMetrics distribution. Grounded on
// the teacher's internal/workers.Pool dispatch pattern and
// internal/montecarlo.Simulator's distribution/robustness calculations.
type MonteCarloAggregator struct {
	logger    *zap.Logger
	telemetry *Telemetry
}

func NewMonteCarloAggregator(logger *zap.Logger) *MonteCarloAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonteCarloAggregator{logger: logger}
}

// WithTelemetry attaches Prometheus instrumentation; passing nil restores
// the no-op default.
func (a *MonteCarloAggregator) WithTelemetry(t *Telemetry) *MonteCarloAggregator {
	a.telemetry = t
	return a
}

// CancelToken is the cooperative cancellation signal checked between runs;
// there is no per-run cancellation (runs are short and atomic).
type CancelToken interface {
	Cancelled() bool
}

// RunFromTrades runs Monte Carlo over an existing trade log using
// trade-shuffling only (the only mode that doesn't need to re-drive the
// Simulator).
func (a *MonteCarloAggregator) RunFromTrades(trades []Trade, initialCapital decimal.Decimal, cfg MonteCarloConfig, cancel CancelToken) (*MonteCarloSummary, error) {
	resampler := NewResampler(ResampleConfig{Mode: ModeTradeShuffle, BaseSeed: cfg.BaseSeed})
	return a.dispatch(cfg, initialCapital, cancel, func(iteration int) (PerformanceMetrics, decimal.Decimal, error) {
		shuffled, equity := resampler.ResampleTrades(trades, initialCapital, iteration)
		m := NewMetricEngine().Calculate(shuffled, equity, initialCapital, float64(len(equity)))
		return m, equity[len(equity)-1], nil
	})
}

// RunFromBars runs Monte Carlo by resampling the bar series (bootstrap,
// block bootstrap, or parametric) and re-driving the full Simulator for
// each synthetic path.
func (a *MonteCarloAggregator) RunFromBars(strategyFactory func() Strategy, bars []Bar, simCfg BacktestConfig, mcCfg MonteCarloConfig, cancel CancelToken) (*MonteCarloSummary, error) {
	resampler := NewResampler(ResampleConfig{Mode: mcCfg.Mode, BaseSeed: mcCfg.BaseSeed, BlockSize: mcCfg.BlockSize})
	return a.dispatch(mcCfg, simCfg.InitialCapital, cancel, func(iteration int) (PerformanceMetrics, decimal.Decimal, error) {
		synthetic, err := resampler.ResampleBars(bars, iteration)
		if err != nil {
			return PerformanceMetrics{}, decimal.Zero, err
		}
		sim, err := NewSimulator(zap.NewNop(), simCfg)
		if err != nil {
			return PerformanceMetrics{}, decimal.Zero, err
		}
		result, err := sim.Run(strategyFactory(), synthetic)
		if err != nil {
			return PerformanceMetrics{}, decimal.Zero, err
		}
		final := simCfg.InitialCapital
		if len(result.Equity) > 0 {
			final = result.Equity[len(result.Equity)-1]
		}
		return result.Metrics, final, nil
	})
}

type runOutcome struct {
	idx         int
	metrics     PerformanceMetrics
	finalEquity float64
	err         error
}

// dispatch runs runOne over [0, Iterations) on a worker pool, checking the
// cancellation token between submissions, and aggregates commutatively.
func (a *MonteCarloAggregator) dispatch(cfg MonteCarloConfig, initialCapital decimal.Decimal, cancel CancelToken, runOne func(iteration int) (PerformanceMetrics, decimal.Decimal, error)) (*MonteCarloSummary, error) {
	n := cfg.Iterations
	if n <= 0 {
		n = 1000
	}
	a.telemetry.recordMonteCarloIterations(n)
	workers := cfg.ParallelWorkers
	if workers <= 0 {
		workers = 8
	}

	jobs := make(chan int, n)
	results := make([]runOutcome, n)
	var wg sync.WaitGroup
	var completed int64

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				m, final, err := runOne(idx)
				f, _ := final.Float64()
				results[idx] = runOutcome{idx: idx, metrics: m, finalEquity: f, err: err}
				if cfg.OnProgress != nil {
					done := int(atomic.AddInt64(&completed, 1))
					cfg.OnProgress(done, n)
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		if cancel != nil && cancel.Cancelled() {
			close(jobs)
			wg.Wait()
			return nil, newError(ErrCancelled, "monte carlo cancelled before dispatch completed", nil)
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
	}

	a.logger.Info("monte carlo dispatch complete", zap.Int("iterations", n))
	initF, _ := initialCapital.Float64()
	return a.aggregate(results, cfg, initF), nil
}

var summaryMetricFields = []string{
	"total_return", "annualized_return", "volatility", "sharpe", "sortino",
	"calmar", "omega", "max_drawdown", "win_rate", "profit_factor",
}

func extractMetricField(m PerformanceMetrics, field string) float64 {
	switch field {
	case "total_return":
		return m.TotalReturn
	case "annualized_return":
		return m.AnnualizedReturn
	case "volatility":
		return m.Volatility
	case "sharpe":
		return m.Sharpe
	case "sortino":
		return m.Sortino
	case "calmar":
		return m.Calmar
	case "omega":
		return m.Omega
	case "max_drawdown":
		return m.MaxDrawdown
	case "win_rate":
		return m.WinRate
	case "profit_factor":
		return m.ProfitFactor
	default:
		return 0
	}
}

func (a *MonteCarloAggregator) aggregate(results []runOutcome, cfg MonteCarloConfig, initialCapital float64) *MonteCarloSummary {
	confidence := cfg.ConfidenceLevel
	if confidence <= 0 {
		confidence = 0.95
	}

	summary := &MonteCarloSummary{
		Iterations:         len(results),
		Metrics:            make(map[string]MetricDistribution, len(summaryMetricFields)),
		ConfidenceLevel:    confidence,
		ConfidenceInterval: make(map[string][2]float64, len(summaryMetricFields)),
		GoalProbabilities:  make(map[float64]float64, len(cfg.GoalThresholds)),
	}

	for _, field := range summaryMetricFields {
		values := make([]float64, len(results))
		for i, r := range results {
			values[i] = extractMetricField(r.metrics, field)
		}
		summary.Metrics[field] = distributionOf(values)
		summary.ConfidenceInterval[field] = confidenceIntervalOf(values, confidence)
	}

	returns := make([]float64, len(results))
	profitCount := 0
	ruinCount := 0
	goalCounts := make([]int, len(cfg.GoalThresholds))

	var worstIdx, bestIdx int
	worstReturn, bestReturn := math.MaxFloat64, -math.MaxFloat64

	for i, r := range results {
		returns[i] = r.metrics.TotalReturn
		if r.metrics.TotalReturn > 0 {
			profitCount++
		}
		if r.finalEquity < 0.5*initialCapital {
			ruinCount++
		}
		for gi, threshold := range cfg.GoalThresholds {
			if r.metrics.TotalReturn >= threshold {
				goalCounts[gi]++
			}
		}
		if r.metrics.TotalReturn < worstReturn {
			worstReturn = r.metrics.TotalReturn
			worstIdx = i
		}
		if r.metrics.TotalReturn > bestReturn {
			bestReturn = r.metrics.TotalReturn
			bestIdx = i
		}
	}

	summary.ProbabilityOfProfit = float64(profitCount) / float64(len(results))
	summary.RuinProbability = float64(ruinCount) / float64(len(results))
	for gi, threshold := range cfg.GoalThresholds {
		summary.GoalProbabilities[threshold] = float64(goalCounts[gi]) / float64(len(results))
	}

	sortedReturns := append([]float64(nil), returns...)
	sort.Float64s(sortedReturns)
	summary.VaR95 = math.Abs(percentileLinear(sortedReturns, 5))
	summary.VaR99 = math.Abs(percentileLinear(sortedReturns, 1))
	summary.CVaR95 = math.Abs(tailMean(sortedReturns, 5))

	summary.WorstCase = results[worstIdx].metrics
	summary.BestCase = results[bestIdx].metrics

	summary.RobustnessScore = robustnessScore(returns, summary.Metrics["sharpe"].Mean, summary.ProbabilityOfProfit)

	return summary
}

func distributionOf(values []float64) MetricDistribution {
	if len(values) == 0 {
		return MetricDistribution{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return MetricDistribution{
		Mean:   meanF(values),
		Median: percentileLinear(sorted, 50),
		StdDev: stdDevSample(values),
		P5:     percentileLinear(sorted, 5),
		P25:    percentileLinear(sorted, 25),
		P50:    percentileLinear(sorted, 50),
		P75:    percentileLinear(sorted, 75),
		P95:    percentileLinear(sorted, 95),
	}
}

func confidenceIntervalOf(values []float64, confidence float64) [2]float64 {
	if len(values) == 0 {
		return [2]float64{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	alpha := (1 - confidence) / 2 * 100
	return [2]float64{
		percentileLinear(sorted, alpha),
		percentileLinear(sorted, 100-alpha),
	}
}

// robustnessScore blends (1) inverse coefficient-of-variation of
// total_return, (2) probability of profit, and (3) normalized mean
// Sharpe, weighted 0.3/0.4/0.3 respectively, per spec §4.4.
func robustnessScore(returns []float64, meanSharpe, probabilityOfProfit float64) float64 {
	mean := meanF(returns)
	sd := stdDevSample(returns)
	var cvTerm float64
	if mean != 0 {
		cv := math.Abs(sd / mean)
		cvTerm = 1 - math.Min(1, cv)
	}
	sharpeNorm := (meanSharpe + 2) / 4
	if sharpeNorm < 0 {
		sharpeNorm = 0
	}
	if sharpeNorm > 1 {
		sharpeNorm = 1
	}
	return 0.3*cvTerm + 0.4*probabilityOfProfit + 0.3*sharpeNorm
}
