package backtest

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is the immutable record created when a position closes.
type Trade struct {
	ID         string
	Symbol     string
	Side       PositionSide
	EntryTime  int64
	ExitTime   int64
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Quantity   decimal.Decimal
	PnL        decimal.Decimal
	PnLPct     decimal.Decimal
	Fees       decimal.Decimal
	ExitReason ExitReason

	MarketImpact      decimal.Decimal
	EffectiveSlippage decimal.Decimal
	CommissionTier    int
	TimeOfDayFactor   decimal.Decimal
	VolatilityFactor  decimal.Decimal
}

func newTradeID() string { return uuid.NewString() }

// EquityCurve is a dense sequence of equity values, one per processed bar
// after the warm-up prefix; the first value is always initial capital.
type EquityCurve []decimal.Decimal

// Result bundles everything one simulate() call produces.
type Result struct {
	Trades          []Trade
	Equity          EquityCurve
	Metrics         PerformanceMetrics
	TransactionCost TransactionCosts
	ExecQuality     ExecutionQuality
	Halted          bool // true if the kill-switch tripped
	HaltedAtBar     int
}

// TransactionCosts summarizes all costs paid across a run.
type TransactionCosts struct {
	TotalCommission decimal.Decimal
	TotalSlippage   decimal.Decimal
}

// ExecutionQuality aggregates the per-trade cost diagnostics into
// run-level averages, grounded on the teacher's slippage-model
// diagnostics but expressed at the Result level per the spec's Trade
// fields.
type ExecutionQuality struct {
	AvgMarketImpact     decimal.Decimal
	AvgEffectiveSlip    decimal.Decimal
	AvgTimeOfDayFactor  decimal.Decimal
	AvgVolatilityFactor decimal.Decimal
}

func computeExecutionQuality(trades []Trade) ExecutionQuality {
	if len(trades) == 0 {
		return ExecutionQuality{}
	}
	var impact, slip, tod, vol decimal.Decimal
	for _, t := range trades {
		impact = impact.Add(t.MarketImpact)
		slip = slip.Add(t.EffectiveSlippage)
		tod = tod.Add(t.TimeOfDayFactor)
		vol = vol.Add(t.VolatilityFactor)
	}
	n := decimal.NewFromInt(int64(len(trades)))
	return ExecutionQuality{
		AvgMarketImpact:     impact.Div(n),
		AvgEffectiveSlip:    slip.Div(n),
		AvgTimeOfDayFactor:  tod.Div(n),
		AvgVolatilityFactor: vol.Div(n),
	}
}
