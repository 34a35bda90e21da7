package backtest

import (
	"github.com/shopspring/decimal"
)

// Bar is a single time-bucketed OHLCV record. Timestamps are milliseconds
// since epoch; a bar series must have strictly increasing timestamps.
type Bar struct {
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// ValidateBarSeries checks the invariants the simulator relies on: every
// field finite and positive (volume non-negative), low <= open,close <=
// high, and strictly increasing timestamps. minLen is the warm-up length
// the caller intends to use.
func ValidateBarSeries(bars []Bar, minLen int) error {
	if len(bars) == 0 {
		return invalidBarSeriesf("bar series is empty")
	}
	if len(bars) < minLen {
		return invalidBarSeriesf("bar series has %d bars, need at least %d for warm-up", len(bars), minLen)
	}

	var prevTS int64
	for i, b := range bars {
		if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
			return invalidBarSeriesf("bar %d: price field must be positive", i)
		}
		if b.Volume.IsNegative() {
			return invalidBarSeriesf("bar %d: volume must be non-negative", i)
		}
		if b.Low.GreaterThan(b.Open) || b.Low.GreaterThan(b.Close) || b.Open.GreaterThan(b.High) || b.Close.GreaterThan(b.High) {
			return invalidBarSeriesf("bar %d: violates low <= open,close <= high", i)
		}
		if i > 0 && b.Timestamp <= prevTS {
			return invalidBarSeriesf("bar %d: timestamp %d does not strictly increase over previous %d", i, b.Timestamp, prevTS)
		}
		prevTS = b.Timestamp
	}
	return nil
}

func oneBarReturn(prevClose, close decimal.Decimal) float64 {
	if prevClose.IsZero() {
		return 0
	}
	r, _ := close.Sub(prevClose).Div(prevClose).Float64()
	return r
}
