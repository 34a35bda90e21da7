package backtest_test

import (
	"testing"

	"github.com/benchmark-quant/backtester/internal/backtest"
)

func TestCompareStrategiesRanksNonOverfitFirst(t *testing.T) {
	candidates := []backtest.StrategyCandidate{
		{
			Name:      "overfit-high-sharpe",
			InSample:  backtest.PerformanceMetrics{TotalReturn: 80, Sharpe: 4},
			OutSample: backtest.PerformanceMetrics{TotalReturn: -10, Sharpe: -0.5},
		},
		{
			Name:      "robust-modest",
			InSample:  backtest.PerformanceMetrics{TotalReturn: 20, Sharpe: 1},
			OutSample: backtest.PerformanceMetrics{TotalReturn: 18, Sharpe: 0.9},
		},
		{
			Name:      "robust-better",
			InSample:  backtest.PerformanceMetrics{TotalReturn: 25, Sharpe: 1.2},
			OutSample: backtest.PerformanceMetrics{TotalReturn: 22, Sharpe: 1.1},
		},
	}

	ranked := backtest.CompareStrategies(candidates)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked entries, got %d", len(ranked))
	}
	if ranked[0].Report.Overfit {
		t.Errorf("expected the top rank to be non-overfit, got %s (overfit=%v)", ranked[0].Name, ranked[0].Report.Overfit)
	}
	if ranked[0].Name != "robust-better" {
		t.Errorf("expected robust-better to rank first (higher out-of-sample Sharpe among non-overfit), got %s", ranked[0].Name)
	}
	if ranked[len(ranked)-1].Name != "overfit-high-sharpe" {
		t.Errorf("expected the overfit strategy to rank last despite its high in-sample Sharpe, got %s", ranked[len(ranked)-1].Name)
	}
	for i, r := range ranked {
		if r.Rank != i+1 {
			t.Errorf("expected rank %d at position %d, got %d", i+1, i, r.Rank)
		}
	}
}

func TestCompareStrategiesEmptyList(t *testing.T) {
	ranked := backtest.CompareStrategies(nil)
	if len(ranked) != 0 {
		t.Errorf("expected empty ranked list for empty input, got %d entries", len(ranked))
	}
}
