package main

import (
	"github.com/spf13/cobra"

	"github.com/benchmark-quant/backtester/internal/backtest"
)

var (
	ofInSamplePath    string
	ofOutSamplePath   string
	ofWalkForwardPath string
	ofComplexityPath  string
)

var overfittingCmd = &cobra.Command{
	Use:   "overfitting",
	Short: "Run analyze_overfitting(in_sample, out_of_sample, walk_forward?, complexity?) and print the report as JSON",
	RunE:  runOverfitting,
}

func init() {
	overfittingCmd.Flags().StringVar(&ofInSamplePath, "in-sample", "", "Path to a JSON PerformanceMetrics file (required)")
	overfittingCmd.Flags().StringVar(&ofOutSamplePath, "out-sample", "", "Path to a JSON PerformanceMetrics file (required)")
	overfittingCmd.Flags().StringVar(&ofWalkForwardPath, "walk-forward", "", "Path to a JSON []WalkForwardSlice file (optional)")
	overfittingCmd.Flags().StringVar(&ofComplexityPath, "complexity", "", "Path to a JSON ComplexityDescriptor file (optional)")
	_ = overfittingCmd.MarkFlagRequired("in-sample")
	_ = overfittingCmd.MarkFlagRequired("out-sample")
}

func runOverfitting(cmd *cobra.Command, args []string) error {
	var inSample, outSample backtest.PerformanceMetrics
	if err := loadJSON(ofInSamplePath, &inSample); err != nil {
		return err
	}
	if err := loadJSON(ofOutSamplePath, &outSample); err != nil {
		return err
	}

	var walkForward []backtest.WalkForwardSlice
	if ofWalkForwardPath != "" {
		if err := loadJSON(ofWalkForwardPath, &walkForward); err != nil {
			return err
		}
	}

	var complexity *backtest.ComplexityDescriptor
	if ofComplexityPath != "" {
		var c backtest.ComplexityDescriptor
		if err := loadJSON(ofComplexityPath, &c); err != nil {
			return err
		}
		complexity = &c
	}

	detector := backtest.NewOverfittingDetector()
	report := detector.Analyze(inSample, outSample, walkForward, complexity)
	return printJSON(report)
}
