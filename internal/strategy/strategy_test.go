package strategy_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/benchmark-quant/backtester/internal/backtest"
	"github.com/benchmark-quant/backtester/internal/strategy"
)

func TestRegistryCreateUnknownName(t *testing.T) {
	r := strategy.NewRegistry(nil)
	if _, ok := r.Create("does_not_exist", nil); ok {
		t.Fatal("expected Create to report an unknown strategy name")
	}
}

func TestRegistryListIncludesBuiltins(t *testing.T) {
	r := strategy.NewRegistry(nil)
	names := map[string]bool{}
	for _, n := range r.List() {
		names[n] = true
	}
	for _, want := range []string{"buy_and_hold", "ma_cross"} {
		if !names[want] {
			t.Errorf("expected %q to be registered, got %v", want, r.List())
		}
	}
}

func TestRegistryCreateAppliesOverridesOntoDefaults(t *testing.T) {
	r := strategy.NewRegistry(nil)
	s, ok := r.Create("ma_cross", map[string]float64{"fast_period": 2})
	if !ok {
		t.Fatal("expected ma_cross to be registered")
	}
	if _, ok := s.(*strategy.MovingAverageCross); !ok {
		t.Fatalf("expected *MovingAverageCross, got %T", s)
	}
}

func barsWithCloses(closes ...float64) []backtest.Bar {
	bars := make([]backtest.Bar, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		bars[i] = backtest.Bar{
			Timestamp: int64(i),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return bars
}

func TestBuyAndHoldBuysOnceThenHolds(t *testing.T) {
	s := strategy.NewBuyAndHold(nil, 10)
	bars := barsWithCloses(100, 101, 102)

	ctx := backtest.Context{BarsUpTo: bars[:1], Index: 0, Position: backtest.Position{Side: backtest.PositionFlat}}
	a := s.OnBar(ctx)
	if a.Kind != backtest.ActionBuy {
		t.Fatalf("expected first bar to buy, got %v", a.Kind)
	}

	ctx = backtest.Context{BarsUpTo: bars[:2], Index: 1, Position: backtest.Position{Side: backtest.PositionLong}}
	a = s.OnBar(ctx)
	if a.Kind != backtest.ActionHold {
		t.Fatalf("expected subsequent bars to hold once bought, got %v", a.Kind)
	}
}

func TestMovingAverageCrossWaitsForSlowWindow(t *testing.T) {
	s := strategy.NewMovingAverageCross(nil, 2, 3)
	bars := barsWithCloses(100, 101)
	ctx := backtest.Context{BarsUpTo: bars, Index: 1, Position: backtest.Position{Side: backtest.PositionFlat}}
	if a := s.OnBar(ctx); a.Kind != backtest.ActionHold {
		t.Fatalf("expected Hold before the slow window fills, got %v", a.Kind)
	}
}

func TestMovingAverageCrossEntersOnUpwardCross(t *testing.T) {
	s := strategy.NewMovingAverageCross(nil, 2, 3)
	// Descending-then-rising closes: with fast=2/slow=3 the fast average
	// overtakes the slow average once the series turns upward.
	closes := []float64{100, 99, 98, 102, 110}
	bars := barsWithCloses(closes...)

	var last backtest.StrategyAction
	pos := backtest.Position{Side: backtest.PositionFlat}
	for i := 2; i < len(bars); i++ {
		ctx := backtest.Context{BarsUpTo: bars[:i+1], Index: i, Position: pos}
		last = s.OnBar(ctx)
		if last.Kind == backtest.ActionBuy {
			pos = backtest.Position{Side: backtest.PositionLong}
		}
	}
	if pos.Side != backtest.PositionLong {
		t.Fatalf("expected the strategy to enter long on the upward cross, final action %v", last.Kind)
	}
}
