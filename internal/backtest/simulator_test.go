package backtest_test

import (
	"testing"

	"github.com/benchmark-quant/backtester/internal/backtest"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// scriptedStrategy returns a fixed StrategyAction per bar index (by Context
// index), defaulting to Hold for any bar not present in Actions.
type scriptedStrategy struct {
	backtest.BaseStrategy
	Actions map[int]backtest.StrategyAction
}

func (s *scriptedStrategy) OnBar(ctx backtest.Context) backtest.StrategyAction {
	if a, ok := s.Actions[ctx.Index]; ok {
		return a
	}
	return backtest.Hold()
}

func zeroCostConfig(initialCapital float64) backtest.BacktestConfig {
	return backtest.BacktestConfig{
		InitialCapital:     decimal.NewFromFloat(initialCapital),
		MaxPositionSizePct: decimal.NewFromInt(1),
		WarmupBars:         1,
	}
}

func linearBars(n int, start float64, step float64) []backtest.Bar {
	bars := make([]backtest.Bar, n)
	price := start
	for i := 0; i < n; i++ {
		bars[i] = makeBar(int64(i+1)*86400000, price, price, price-0.01, price, 1000)
		price += step
	}
	return bars
}

// vShapedBars descends from `start` to `start-drop` over half the bars then
// ascends back to `start`, forming a V in the close series (S2).
func vShapedBars(n int, start, drop float64) []backtest.Bar {
	bars := make([]backtest.Bar, n)
	half := n / 2
	for i := 0; i < n; i++ {
		var price float64
		if i <= half {
			price = start - drop*float64(i)/float64(half)
		} else {
			price = (start - drop) + drop*float64(i-half)/float64(n-half)
		}
		bars[i] = makeBar(int64(i+1)*86400000, price, price, price-0.01, price, 1000)
	}
	return bars
}

// S1: buy-and-hold. Close prices 1..100, buy qty=10 at bar index 49
// (bar number 50), hold thereafter. Zero costs. Expect one trade,
// entry=50, exit=100 (EndOfData), P&L=500.
func TestSimulatorS1BuyAndHold(t *testing.T) {
	bars := linearBars(100, 1, 1)
	cfg := zeroCostConfig(10000)

	strat := &scriptedStrategy{Actions: map[int]backtest.StrategyAction{
		49: backtest.Buy().WithQuantity(decimal.NewFromInt(10)),
	}}

	sim, err := backtest.NewSimulator(zap.NewNop(), cfg)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	result, err := sim.Run(strat, bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected exactly one trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.ExitReason != backtest.ExitEndOfData {
		t.Errorf("expected EndOfData exit, got %v", trade.ExitReason)
	}
	if !trade.EntryPrice.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected entry price 50, got %s", trade.EntryPrice)
	}
	if !trade.ExitPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected exit price 100, got %s", trade.ExitPrice)
	}
	if !trade.PnL.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected PnL 500, got %s", trade.PnL)
	}
}

// S2: symmetric reversal. V-shaped close series; short at bar 10, close at
// bar 60. Expect one short trade with positive P&L.
func TestSimulatorS2SymmetricReversal(t *testing.T) {
	bars := vShapedBars(100, 100, 50)
	cfg := zeroCostConfig(10000)
	cfg.AllowShort = true

	strat := &scriptedStrategy{Actions: map[int]backtest.StrategyAction{
		9:  backtest.Sell().WithQuantity(decimal.NewFromInt(1)),
		59: backtest.Close(),
	}}

	sim, err := backtest.NewSimulator(zap.NewNop(), cfg)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	result, err := sim.Run(strat, bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected exactly one trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.Side != backtest.PositionShort {
		t.Errorf("expected short trade, got %v", trade.Side)
	}
	if trade.ExitReason != backtest.ExitSignal {
		t.Errorf("expected signal exit, got %v", trade.ExitReason)
	}
	if !trade.PnL.GreaterThan(decimal.Zero) {
		t.Errorf("expected positive PnL on a descend-then-rise short, got %s", trade.PnL)
	}
}

// S3: stop-loss trigger. Buy at bar index 4 (bar 5) close=100, stop=95.
// Next bar has low=94, close=96. Expect close-reason=Stop, exit=95.
func TestSimulatorS3StopLossTrigger(t *testing.T) {
	bars := make([]backtest.Bar, 10)
	for i := range bars {
		bars[i] = makeBar(int64(i+1)*86400000, 100, 101, 99, 100, 1000)
	}
	bars[4] = makeBar(5*86400000, 99, 101, 98, 100, 1000)
	bars[5] = makeBar(6*86400000, 96, 97, 94, 96, 1000)

	cfg := zeroCostConfig(10000)
	cfg.UseStopLoss = true

	strat := &scriptedStrategy{Actions: map[int]backtest.StrategyAction{
		4: backtest.Buy().WithQuantity(decimal.NewFromInt(1)).WithStop(decimal.NewFromInt(95)),
	}}

	sim, err := backtest.NewSimulator(zap.NewNop(), cfg)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	result, err := sim.Run(strat, bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected exactly one trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.ExitReason != backtest.ExitStop {
		t.Fatalf("expected Stop exit, got %v", trade.ExitReason)
	}
	if !trade.ExitPrice.Equal(decimal.NewFromInt(95)) {
		t.Errorf("expected exit price 95, got %s", trade.ExitPrice)
	}
}

// S4: tiered commission boundary. Two trades, each notional 60,000. Tiers
// [{0, 0.1%}, {100000, 0.05%}]. Cumulative notional updates once per
// trade, at entry: trade 1 opens at cumulative 0 (tier 0.1%) and its exit
// still sees cumulative 60000 (<100000, tier 0.1%), so both its legs are
// charged 0.1%. Trade 2's entry still sees cumulative 60000 (<100000,
// tier 0.1%) before bumping cumulative to 120000, so its exit crosses the
// threshold and is charged 0.05%.
func TestSimulatorS4TieredCommissionBoundary(t *testing.T) {
	bars := make([]backtest.Bar, 10)
	for i := range bars {
		price := 100.0
		bars[i] = makeBar(int64(i+1)*86400000, price, price, price, price, 1000)
	}

	cfg := backtest.BacktestConfig{
		InitialCapital:     decimal.NewFromInt(1000000),
		MaxPositionSizePct: decimal.NewFromInt(1),
		WarmupBars:         1,
		RealisticMode:      true,
		Realistic: backtest.RealisticCostConfig{
			UseTieredCommissions: true,
			CommissionTiers: []backtest.CommissionTier{
				{CumulativeVolumeThreshold: decimal.Zero, Rate: decimal.NewFromFloat(0.001)},
				{CumulativeVolumeThreshold: decimal.NewFromInt(100000), Rate: decimal.NewFromFloat(0.0005)},
			},
		},
	}

	strat := &scriptedStrategy{Actions: map[int]backtest.StrategyAction{
		1: backtest.Buy().WithQuantity(decimal.NewFromInt(600)),  // notional 60000
		2: backtest.Close(),
		3: backtest.Buy().WithQuantity(decimal.NewFromInt(600)),
		4: backtest.Close(),
	}}

	sim, err := backtest.NewSimulator(zap.NewNop(), cfg)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	result, err := sim.Run(strat, bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("expected two trades, got %d", len(result.Trades))
	}

	trade1, trade2 := result.Trades[0], result.Trades[1]
	expectedFees1 := decimal.NewFromInt(60000).Mul(decimal.NewFromFloat(0.001)).Mul(decimal.NewFromInt(2))
	if !trade1.Fees.Equal(expectedFees1) {
		t.Errorf("trade 1 fees: expected %s (both legs at 0.1%%), got %s", expectedFees1, trade1.Fees)
	}

	expectedFees2 := decimal.NewFromInt(60000).Mul(decimal.NewFromFloat(0.001)).
		Add(decimal.NewFromInt(60000).Mul(decimal.NewFromFloat(0.0005)))
	if !trade2.Fees.Equal(expectedFees2) {
		t.Errorf("trade 2 fees: expected %s (entry at 0.1%%, exit at 0.05%%), got %s", expectedFees2, trade2.Fees)
	}
}

// Boundary scenario 8: fewer bars than warm-up is rejected by
// ValidateBarSeries with an InvalidBarSeries error before the run starts.
func TestSimulatorShortSeriesBelowWarmup(t *testing.T) {
	bars := linearBars(5, 100, 1)
	cfg := zeroCostConfig(10000)
	cfg.WarmupBars = 50

	sim, err := backtest.NewSimulator(zap.NewNop(), cfg)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	_, err = sim.Run(&scriptedStrategy{}, bars)
	if err == nil {
		t.Fatal("expected InvalidBarSeries error for fewer bars than warm-up")
	}
}

// Boundary scenario 9: strategy always Hold => no trades, equity flat at
// initial_capital.
func TestSimulatorAlwaysHold(t *testing.T) {
	bars := linearBars(60, 100, 1)
	cfg := zeroCostConfig(10000)

	sim, err := backtest.NewSimulator(zap.NewNop(), cfg)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	result, err := sim.Run(&scriptedStrategy{}, bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(result.Trades))
	}
	for i, e := range result.Equity {
		if !e.Equal(cfg.InitialCapital) {
			t.Fatalf("equity[%d] = %s, expected flat at initial capital %s", i, e, cfg.InitialCapital)
		}
	}
}

// Boundary scenario 10: kill-switch. Equity only moves on realized P&L
// (invariant 2), so the drawdown that trips the kill-switch must come from
// a string of realized stop-loss losses, not an unrealized mark. Each round
// trip here buys then immediately stops out for a fixed realized loss;
// after enough rounds the cumulative drawdown crosses max_drawdown_pct and
// the run halts without processing the remaining planned rounds.
func TestSimulatorKillSwitch(t *testing.T) {
	const rounds = 25
	bars := make([]backtest.Bar, 1+2*rounds)
	bars[0] = makeBar(86400000, 100, 100, 100, 100, 1000)
	actions := map[int]backtest.StrategyAction{}
	for r := 0; r < rounds; r++ {
		entryIdx := 1 + 2*r
		exitIdx := entryIdx + 1
		bars[entryIdx] = makeBar(int64(entryIdx+1)*86400000, 100, 101, 99, 100, 1000)
		bars[exitIdx] = makeBar(int64(exitIdx+1)*86400000, 96, 97, 90, 96, 1000)
		actions[entryIdx] = backtest.Buy().WithQuantity(decimal.NewFromInt(10)).WithStop(decimal.NewFromInt(95))
	}

	cfg := zeroCostConfig(10000)
	cfg.UseStopLoss = true
	cfg.MaxDrawdownPct = decimal.NewFromFloat(0.1) // trips once realized losses reach 1000

	sim, err := backtest.NewSimulator(zap.NewNop(), cfg)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	result, err := sim.Run(&scriptedStrategy{Actions: actions}, bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Halted {
		t.Fatal("expected the kill-switch to have tripped")
	}
	if result.HaltedAtBar >= len(bars)-1 {
		t.Errorf("expected the halt well before the last bar, got bar %d of %d", result.HaltedAtBar, len(bars))
	}
	// Each round trip realizes a loss of (95-100)*10 = -50; the 20th round
	// trip crosses the 1000 (10%) cumulative drawdown threshold, so the
	// remaining planned rounds must never execute.
	if len(result.Trades) != 20 {
		t.Fatalf("expected exactly 20 stop-loss trades before the halt, got %d", len(result.Trades))
	}
}

// Invariant 1: trade pairing. Every open is paired with exactly one close,
// in matching order, close.time > open.time.
func TestSimulatorTradePairingInvariant(t *testing.T) {
	bars := linearBars(80, 100, 1)
	cfg := zeroCostConfig(10000)
	cfg.AllowShort = true

	strat := &scriptedStrategy{Actions: map[int]backtest.StrategyAction{
		9:  backtest.Buy().WithQuantity(decimal.NewFromInt(1)),
		19: backtest.Sell().WithQuantity(decimal.NewFromInt(1)), // reverses long->short
		29: backtest.Close(),
	}}

	sim, err := backtest.NewSimulator(zap.NewNop(), cfg)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	result, err := sim.Run(strat, bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, tr := range result.Trades {
		if tr.ExitTime <= tr.EntryTime {
			t.Errorf("trade exit time %d not after entry time %d", tr.ExitTime, tr.EntryTime)
		}
	}
}

// Invariant 6: running on the concatenation of two disjoint bar series,
// versus each separately composed, yields equal total P&L when no position
// is open across the boundary.
func TestSimulatorConcatenationComposesEqualTotalPnL(t *testing.T) {
	first := linearBars(60, 100, 1)
	second := linearBars(60, 200, 1)
	for i := range second {
		second[i].Timestamp += int64(len(first)+10) * 86400000
	}
	combined := append(append([]backtest.Bar{}, first...), second...)

	cfg := zeroCostConfig(10000)
	stratFirst := &scriptedStrategy{Actions: map[int]backtest.StrategyAction{
		10: backtest.Buy().WithQuantity(decimal.NewFromInt(1)),
		50: backtest.Close(),
	}}
	stratSecond := &scriptedStrategy{Actions: map[int]backtest.StrategyAction{
		10: backtest.Buy().WithQuantity(decimal.NewFromInt(1)),
		50: backtest.Close(),
	}}
	stratCombined := &scriptedStrategy{Actions: map[int]backtest.StrategyAction{
		10:  backtest.Buy().WithQuantity(decimal.NewFromInt(1)),
		50:  backtest.Close(),
		70:  backtest.Buy().WithQuantity(decimal.NewFromInt(1)),
		110: backtest.Close(),
	}}

	sim, _ := backtest.NewSimulator(zap.NewNop(), cfg)
	r1, err := sim.Run(stratFirst, first)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	r2, err := sim.Run(stratSecond, second)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	rCombined, err := sim.Run(stratCombined, combined)
	if err != nil {
		t.Fatalf("combined Run: %v", err)
	}

	var separatePnL, combinedPnL decimal.Decimal
	for _, tr := range r1.Trades {
		separatePnL = separatePnL.Add(tr.PnL)
	}
	for _, tr := range r2.Trades {
		separatePnL = separatePnL.Add(tr.PnL)
	}
	for _, tr := range rCombined.Trades {
		combinedPnL = combinedPnL.Add(tr.PnL)
	}
	if !separatePnL.Equal(combinedPnL) {
		t.Errorf("expected equal total PnL, got separate=%s combined=%s", separatePnL, combinedPnL)
	}
}

func TestSimulatorInvalidActionAborts(t *testing.T) {
	bars := linearBars(60, 100, 1)
	cfg := zeroCostConfig(10000) // AllowShort defaults to false

	strat := &scriptedStrategy{Actions: map[int]backtest.StrategyAction{
		10: backtest.Sell().WithQuantity(decimal.NewFromInt(1)),
	}}

	sim, _ := backtest.NewSimulator(zap.NewNop(), cfg)
	_, err := sim.Run(strat, bars)
	if err == nil {
		t.Fatal("expected error when shorting with allow_short=false")
	}
}

func TestNewSimulatorRejectsInvalidConfig(t *testing.T) {
	cfg := zeroCostConfig(-1)
	if _, err := backtest.NewSimulator(zap.NewNop(), cfg); err == nil {
		t.Fatal("expected InvalidConfig error for non-positive initial capital")
	}
}
