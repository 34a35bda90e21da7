package backtest

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// PerformanceMetrics is the scalar record MetricEngine produces. Every
// field is finite except ProfitFactor and Omega, which are +Inf when there
// are gains and no losses; degenerate inputs (no trades, flat equity)
// yield zeros rather than NaN or an error.
type PerformanceMetrics struct {
	TotalReturn         float64
	AnnualizedReturn     float64
	Volatility          float64
	Sharpe              float64
	Sortino             float64
	Calmar              float64
	Omega               float64
	MaxDrawdown         float64
	MaxDrawdownDuration int
	AvgDrawdown         float64

	WinRate      float64
	ProfitFactor float64
	AvgWin       float64
	AvgLoss      float64
	AvgTrade     float64
	LargestWin   float64
	LargestLoss  float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	VaR95  float64
	VaR99  float64
	CVaR95 float64

	Skewness float64
	Kurtosis float64

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
}

const riskFreeDaily = 0.02 / 252
const tradingDaysPerYear = 252

// MetricEngine is a pure function from (TradeLog, EquityCurve,
// initial_capital, duration_days) to PerformanceMetrics. It never touches
// I/O or randomness.
type MetricEngine struct{}

func NewMetricEngine() MetricEngine { return MetricEngine{} }

// Calculate computes the full PerformanceMetrics record. durationDays is
// accepted for interface completeness but is not read: the trading-day
// convention (252) governs the annualization in the formulas below,
// matching spec §4.3.
func (MetricEngine) Calculate(trades []Trade, equity EquityCurve, initialCapital decimal.Decimal, durationDays float64) PerformanceMetrics {
	var m PerformanceMetrics
	m.TotalTrades = len(trades)

	if len(trades) == 0 || len(equity) == 0 {
		return m
	}

	var totalWins, totalLosses, largestWin, largestLoss float64
	var wins, losses int
	var curWinStreak, curLossStreak int

	for _, t := range trades {
		pnl, _ := t.PnL.Float64()
		switch {
		case pnl > 0:
			wins++
			totalWins += pnl
			if pnl > largestWin {
				largestWin = pnl
			}
			curWinStreak++
			curLossStreak = 0
		case pnl < 0:
			losses++
			totalLosses += -pnl
			if -pnl > largestLoss {
				largestLoss = -pnl
			}
			curLossStreak++
			curWinStreak = 0
		default:
			curWinStreak, curLossStreak = 0, 0
		}
		if curWinStreak > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = curWinStreak
		}
		if curLossStreak > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = curLossStreak
		}
	}

	m.WinningTrades = wins
	m.LosingTrades = losses
	m.LargestWin = largestWin
	m.LargestLoss = largestLoss

	if m.TotalTrades > 0 {
		m.WinRate = float64(wins) / float64(m.TotalTrades)
		m.AvgTrade = (totalWins - totalLosses) / float64(m.TotalTrades)
	}
	if wins > 0 {
		m.AvgWin = totalWins / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = totalLosses / float64(losses)
	}
	switch {
	case totalLosses > 0:
		m.ProfitFactor = totalWins / totalLosses
	case totalWins > 0:
		m.ProfitFactor = math.Inf(1)
	default:
		m.ProfitFactor = 0
	}

	initF, _ := initialCapital.Float64()
	if initF > 0 {
		finalEquity, _ := equity[len(equity)-1].Float64()
		m.TotalReturn = (finalEquity - initF) / initF
	}

	returns := barReturns(equity)
	if len(returns) > 1 {
		mean := meanF(returns)
		sd := stdDevSample(returns)
		m.Volatility = sd * math.Sqrt(tradingDaysPerYear)
		if sd > 0 {
			m.Sharpe = (mean - riskFreeDaily) / sd * math.Sqrt(tradingDaysPerYear)
		}
		downside := stdDevSample(onlyNegative(returns))
		if downside > 0 {
			m.Sortino = (mean - riskFreeDaily) / downside * math.Sqrt(tradingDaysPerYear)
		}
		m.AnnualizedReturn = mean * tradingDaysPerYear

		var sumPos, sumNeg float64
		for _, r := range returns {
			if r > 0 {
				sumPos += r
			} else {
				sumNeg += -r
			}
		}
		if sumNeg > 0 {
			m.Omega = sumPos / sumNeg
		} else if sumPos > 0 {
			m.Omega = math.Inf(1)
		}

		m.Skewness = skewness(returns, mean, sd)
		m.Kurtosis = excessKurtosis(returns, mean, sd)

		sorted := append([]float64(nil), returns...)
		sort.Float64s(sorted)
		m.VaR95 = math.Abs(percentileLinear(sorted, 5))
		m.VaR99 = math.Abs(percentileLinear(sorted, 1))
		m.CVaR95 = math.Abs(tailMean(sorted, 5))
	}

	maxDD, maxDDDur, avgDD := maxDrawdown(equity)
	m.MaxDrawdown = maxDD
	m.MaxDrawdownDuration = maxDDDur
	m.AvgDrawdown = avgDD

	if m.MaxDrawdown > 0 {
		m.Calmar = m.AnnualizedReturn / m.MaxDrawdown
	}

	return m
}

func barReturns(equity EquityCurve) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		out = append(out, oneBarReturn(equity[i-1], equity[i]))
	}
	return out
}

func meanF(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func stdDevSample(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := meanF(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

func onlyNegative(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if x < 0 {
			out = append(out, x)
		}
	}
	return out
}

func skewness(xs []float64, mean, sd float64) float64 {
	if sd == 0 || len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := (x - mean) / sd
		sum += d * d * d
	}
	return sum / float64(len(xs))
}

func excessKurtosis(xs []float64, mean, sd float64) float64 {
	if sd == 0 || len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := (x - mean) / sd
		sum += d * d * d * d
	}
	return sum/float64(len(xs)) - 3
}

// percentileLinear returns the p-th percentile (0-100) of an already
// sorted slice via linear interpolation between ranks, matching the
// teacher's percentile convention.
func percentileLinear(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// tailMean returns the mean of the values at or below the p-th percentile
// threshold (CVaR): the historical-percentile based expected shortfall.
func tailMean(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	threshold := percentileLinear(sorted, p)
	var sum float64
	var n int
	for _, v := range sorted {
		if v <= threshold {
			sum += v
			n++
		}
	}
	if n == 0 {
		return threshold
	}
	return sum / float64(n)
}

// maxDrawdown tracks peak equity in a single pass, returning the maximum
// fractional decline, the bar-count duration from that peak to its
// trough, and the mean of all non-zero instantaneous drawdowns observed.
func maxDrawdown(equity EquityCurve) (maxDD float64, maxDDDuration int, avgDD float64) {
	if len(equity) == 0 {
		return 0, 0, 0
	}
	peak, _ := equity[0].Float64()
	peakIdx := 0
	var ddSum float64
	var ddCount int

	for i, e := range equity {
		v, _ := e.Float64()
		if v > peak {
			peak = v
			peakIdx = i
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > 0 {
			ddSum += dd
			ddCount++
		}
		if dd > maxDD {
			maxDD = dd
			maxDDDuration = i - peakIdx
		}
	}
	if ddCount > 0 {
		avgDD = ddSum / float64(ddCount)
	}
	return maxDD, maxDDDuration, avgDD
}
