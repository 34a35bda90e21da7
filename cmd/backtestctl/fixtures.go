package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/benchmark-quant/backtester/internal/backtest"
)

// fixtureBar is the YAML wire shape for one bar; a DataLoader in the
// out-of-scope market-data sense would produce backtest.Bar values the
// same way, this loader just reads them from a local file instead of a
// live feed, per spec §1's "external collaborator" boundary.
type fixtureBar struct {
	Timestamp int64   `yaml:"timestamp"`
	Open      float64 `yaml:"open"`
	High      float64 `yaml:"high"`
	Low       float64 `yaml:"low"`
	Close     float64 `yaml:"close"`
	Volume    float64 `yaml:"volume"`
}

type barFixture struct {
	Bars []fixtureBar `yaml:"bars"`
}

// loadBars reads a YAML bar-series fixture from path and converts it to
// []backtest.Bar. It performs no validation beyond the decode itself;
// ValidateBarSeries (invoked by Simulator.Run) is the single source of
// truth for bar-series invariants.
func loadBars(path string) ([]backtest.Bar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bar fixture %s: %w", path, err)
	}
	var fixture barFixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("parse bar fixture %s: %w", path, err)
	}
	bars := make([]backtest.Bar, len(fixture.Bars))
	for i, b := range fixture.Bars {
		bars[i] = backtest.Bar{
			Timestamp: b.Timestamp,
			Open:      decimal.NewFromFloat(b.Open),
			High:      decimal.NewFromFloat(b.High),
			Low:       decimal.NewFromFloat(b.Low),
			Close:     decimal.NewFromFloat(b.Close),
			Volume:    decimal.NewFromFloat(b.Volume),
		}
	}
	return bars, nil
}
