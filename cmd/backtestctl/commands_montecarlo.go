package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benchmark-quant/backtester/internal/backtest"
	"github.com/benchmark-quant/backtester/internal/config"
	"github.com/benchmark-quant/backtester/internal/strategy"
)

var (
	mcBarsPath     string
	mcStrategyName string
	mcParams       []string
	mcIterations   int
	mcMode         string
	mcSeed         uint64
)

var monteCarloCmd = &cobra.Command{
	Use:   "monte-carlo",
	Short: "Run monte_carlo(bars, strategy, config, mc_config) and print the summary as JSON",
	RunE:  runMonteCarlo,
}

func init() {
	monteCarloCmd.Flags().StringVar(&mcBarsPath, "bars", "", "Path to a YAML bar-series fixture (required)")
	monteCarloCmd.Flags().StringVar(&mcStrategyName, "strategy", "ma_cross", "Registered strategy name")
	monteCarloCmd.Flags().StringArrayVar(&mcParams, "param", nil, "Strategy parameter override key=value, repeatable")
	monteCarloCmd.Flags().IntVar(&mcIterations, "iterations", 0, "Override monte_carlo.iterations from config (0 = use config)")
	monteCarloCmd.Flags().StringVar(&mcMode, "mode", "", "Override monte_carlo.mode from config")
	monteCarloCmd.Flags().Uint64Var(&mcSeed, "seed", 0, "Override monte_carlo.base_seed from config (0 = use config)")
	_ = monteCarloCmd.MarkFlagRequired("bars")
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	bars, err := loadBars(mcBarsPath)
	if err != nil {
		return err
	}

	appCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if mcIterations > 0 {
		appCfg.MonteCarlo.Iterations = mcIterations
	}
	if mcMode != "" {
		appCfg.MonteCarlo.Mode = mcMode
	}
	if mcSeed > 0 {
		appCfg.MonteCarlo.BaseSeed = mcSeed
	}

	backtestCfg, err := appCfg.Backtest.ToBacktestConfig()
	if err != nil {
		return err
	}
	mcCfg, err := appCfg.MonteCarlo.ToMonteCarloConfig()
	if err != nil {
		return err
	}

	overrides, err := parseParams(mcParams)
	if err != nil {
		return err
	}
	registry := strategy.NewRegistry(logger)
	if _, ok := registry.Create(mcStrategyName, overrides); !ok {
		return fmt.Errorf("unknown strategy %q, available: %v", mcStrategyName, registry.List())
	}
	strategyFactory := func() backtest.Strategy {
		s, _ := registry.Create(mcStrategyName, overrides)
		return s
	}

	aggregator := backtest.NewMonteCarloAggregator(logger)

	var summary *backtest.MonteCarloSummary
	if mcCfg.Mode == backtest.ModeTradeShuffle {
		sim, err := backtest.NewSimulator(logger, backtestCfg)
		if err != nil {
			return err
		}
		baseResult, err := sim.Run(strategyFactory(), bars)
		if err != nil {
			return err
		}
		summary, err = aggregator.RunFromTrades(baseResult.Trades, backtestCfg.InitialCapital, mcCfg, nil)
		if err != nil {
			return err
		}
	} else {
		summary, err = aggregator.RunFromBars(strategyFactory, bars, backtestCfg, mcCfg, nil)
		if err != nil {
			return err
		}
	}

	logger.Info("monte carlo complete",
		zap.Int("iterations", summary.Iterations),
		zap.Float64("robustness_score", summary.RobustnessScore),
	)
	return printJSON(summary)
}
