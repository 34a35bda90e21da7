// Package main implements backtestctl, a local command-line driver for the
// four core operations (simulate, monte_carlo, analyze_overfitting,
// compare_strategies). It holds no backtesting logic of its own: every
// subcommand loads fixtures, builds a validated config, and calls straight
// into internal/backtest, matching spec §6 ("no CLI or wire protocol is
// part of the core").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	logLevel   string
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "backtestctl",
	Short: "Run the quantitative backtesting core against local fixtures",
	Long: `backtestctl drives the backtesting engine's four consumer-facing
operations (simulate, monte-carlo, overfitting, compare) against local
bar-series and parameter fixtures, printing a JSON report to stdout.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = setupLogger(logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a backtester.yaml config file (defaults searched if omitted)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(monteCarloCmd)
	rootCmd.AddCommand(overfittingCmd)
	rootCmd.AddCommand(compareCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			MessageKey:     "msg",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l
}
