package backtest

import "sort"

// StrategyCandidate is one entry submitted to compare_strategies: an
// in-sample result, an out-of-sample result, and optional enrichment
// data for the overfitting check.
type StrategyCandidate struct {
	Name        string
	InSample    PerformanceMetrics
	OutSample   PerformanceMetrics
	WalkForward []WalkForwardSlice
	Complexity  *ComplexityDescriptor
}

// RankedStrategy is one row of compare_strategies' output: the candidate's
// identity plus its overfitting verdict. Non-overfit strategies are
// ordered before overfit ones; within each group, by out-of-sample Sharpe
// descending.
type RankedStrategy struct {
	Name   string
	Report OverfittingReport
	Rank   int
}

// CompareStrategies implements compare_strategies(list) -> ranked list
// with per-strategy overfit verdict. Ranking favors non-overfit strategies
// and, within that, higher out-of-sample Sharpe.
func CompareStrategies(candidates []StrategyCandidate) []RankedStrategy {
	detector := NewOverfittingDetector()
	ranked := make([]RankedStrategy, len(candidates))
	for i, c := range candidates {
		report := detector.Analyze(c.InSample, c.OutSample, c.WalkForward, c.Complexity)
		ranked[i] = RankedStrategy{Name: c.Name, Report: report}
	}

	outSampleSharpe := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		outSampleSharpe[c.Name] = c.OutSample.Sharpe
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Report.Overfit != ranked[j].Report.Overfit {
			return !ranked[i].Report.Overfit
		}
		return outSampleSharpe[ranked[i].Name] > outSampleSharpe[ranked[j].Name]
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
