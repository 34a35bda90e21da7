package api

import (
	"github.com/shopspring/decimal"

	"github.com/benchmark-quant/backtester/internal/backtest"
	"github.com/benchmark-quant/backtester/internal/config"
)

// BarDTO is the wire shape of one bar in a JSON request body.
type BarDTO struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func toBars(dtos []BarDTO) []backtest.Bar {
	bars := make([]backtest.Bar, len(dtos))
	for i, d := range dtos {
		bars[i] = backtest.Bar{
			Timestamp: d.Timestamp,
			Open:      decimal.NewFromFloat(d.Open),
			High:      decimal.NewFromFloat(d.High),
			Low:       decimal.NewFromFloat(d.Low),
			Close:     decimal.NewFromFloat(d.Close),
			Volume:    decimal.NewFromFloat(d.Volume),
		}
	}
	return bars
}

// StrategySelectionDTO picks a registered strategy and its parameter
// overrides; a Strategy itself is never sent over the wire (it is an
// external collaborator, spec §6), only a reference to a name this server
// process already knows how to build.
type StrategySelectionDTO struct {
	Name   string             `json:"name"`
	Params map[string]float64 `json:"params,omitempty"`
}

// SimulateRequest is the POST /v1/simulate body.
type SimulateRequest struct {
	Bars     []BarDTO                  `json:"bars"`
	Strategy StrategySelectionDTO      `json:"strategy"`
	Config   config.BacktestConfigFile `json:"config"`
}

// MonteCarloRequest is the POST /v1/monte-carlo body.
type MonteCarloRequest struct {
	Bars       []BarDTO                    `json:"bars"`
	Strategy   StrategySelectionDTO        `json:"strategy"`
	Config     config.BacktestConfigFile   `json:"config"`
	MonteCarlo config.MonteCarloConfigFile `json:"monte_carlo"`
	RunID      string                      `json:"run_id,omitempty"`
}

// OverfittingRequest is the POST /v1/overfitting body.
type OverfittingRequest struct {
	InSample    backtest.PerformanceMetrics    `json:"in_sample"`
	OutSample   backtest.PerformanceMetrics    `json:"out_sample"`
	WalkForward []backtest.WalkForwardSlice    `json:"walk_forward,omitempty"`
	Complexity  *backtest.ComplexityDescriptor `json:"complexity,omitempty"`
}

// CompareRequest is the POST /v1/compare body.
type CompareRequest struct {
	Candidates []backtest.StrategyCandidate `json:"candidates"`
}
