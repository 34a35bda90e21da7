package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benchmark-quant/backtester/internal/backtest"
	"github.com/benchmark-quant/backtester/internal/config"
	"github.com/benchmark-quant/backtester/internal/strategy"
)

var (
	simBarsPath     string
	simStrategyName string
	simParams       []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulate(strategy, bars, config) and print the Result as JSON",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simBarsPath, "bars", "", "Path to a YAML bar-series fixture (required)")
	simulateCmd.Flags().StringVar(&simStrategyName, "strategy", "ma_cross", "Registered strategy name (ma_cross, buy_and_hold)")
	simulateCmd.Flags().StringArrayVar(&simParams, "param", nil, "Strategy parameter override key=value, repeatable")
	_ = simulateCmd.MarkFlagRequired("bars")
}

func parseParams(raw []string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", kv)
		}
		v, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --param %q: %w", kv, err)
		}
		out[parts[0]] = v
	}
	return out, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	bars, err := loadBars(simBarsPath)
	if err != nil {
		return err
	}

	appCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	backtestCfg, err := appCfg.Backtest.ToBacktestConfig()
	if err != nil {
		return err
	}

	overrides, err := parseParams(simParams)
	if err != nil {
		return err
	}
	registry := strategy.NewRegistry(logger)
	strat, ok := registry.Create(simStrategyName, overrides)
	if !ok {
		return fmt.Errorf("unknown strategy %q, available: %v", simStrategyName, registry.List())
	}

	sim, err := backtest.NewSimulator(logger, backtestCfg)
	if err != nil {
		return err
	}

	result, err := sim.Run(strat, bars)
	if err != nil {
		return err
	}

	logger.Info("simulate complete",
		zap.Int("trades", len(result.Trades)),
		zap.Bool("halted", result.Halted),
	)
	return printJSON(result)
}
