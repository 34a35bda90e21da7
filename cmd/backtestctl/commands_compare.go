package main

import (
	"github.com/spf13/cobra"

	"github.com/benchmark-quant/backtester/internal/backtest"
)

var compareCandidatesPath string

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run compare_strategies(list) and print the ranked list as JSON",
	RunE:  runCompare,
}

func init() {
	compareCmd.Flags().StringVar(&compareCandidatesPath, "candidates", "", "Path to a JSON []StrategyCandidate file (required)")
	_ = compareCmd.MarkFlagRequired("candidates")
}

func runCompare(cmd *cobra.Command, args []string) error {
	var candidates []backtest.StrategyCandidate
	if err := loadJSON(compareCandidatesPath, &candidates); err != nil {
		return err
	}
	ranked := backtest.CompareStrategies(candidates)
	return printJSON(ranked)
}
