// Package main implements the backtester HTTP/WebSocket server: a thin
// process wrapper around internal/api.Server, modeled on the teacher's
// cmd/server entrypoint (flag parsing, zap logger, config load, graceful
// shutdown on SIGINT/SIGTERM), trimmed of the teacher's unrelated
// autonomous-agent and blockchain scaffolding.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/benchmark-quant/backtester/internal/api"
	"github.com/benchmark-quant/backtester/internal/config"
)

func main() {
	var (
		configPath string
		host       string
		port       int
		logLevel   string
	)
	flag.StringVar(&configPath, "config", "", "Path to a backtester.yaml config file (defaults searched if omitted)")
	flag.StringVar(&host, "host", "", "Override server.host from config")
	flag.IntVar(&port, "port", 0, "Override server.port from config")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(logLevel)
	defer func() { _ = logger.Sync() }()

	appCfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	srvCfg := appCfg.Server
	if host != "" {
		srvCfg.Host = host
	}
	if port != 0 {
		srvCfg.Port = port
	}

	server := api.NewServer(logger, srvCfg)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("server failed", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
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
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return l
}
