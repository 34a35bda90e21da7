// Package strategy provides sample backtest.Strategy implementations and a
// registry for the driver binaries (cmd/backtestctl, cmd/server) to select
// one by name. The core package never imports this: a Strategy is an
// external collaborator per spec §6, and these are reference
// implementations of that collaborator, not part of the simulator.
package strategy

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/benchmark-quant/backtester/internal/backtest"
)

// Parameter describes one tunable knob of a registered strategy, grounded
// on the teacher's StrategyParameter descriptor (name/type/default/bounds)
// but trimmed to the numeric parameters these sample strategies expose.
type Parameter struct {
	Name    string
	Default float64
	Min     float64
	Max     float64
}

// Factory builds a fresh backtest.Strategy instance from a parameter set;
// Registry stores one Factory per registered name.
type Factory func(params map[string]float64) backtest.Strategy

// Registry maps strategy names to factories, the way the teacher's
// StrategyRegistry does for its own Strategy interface.
type Registry struct {
	mu    sync.RWMutex
	named map[string]registered
}

type registered struct {
	factory    Factory
	parameters []Parameter
}

// NewRegistry builds a Registry pre-populated with the sample strategies
// this repository ships: buy-and-hold and a moving-average crossover.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{named: make(map[string]registered)}
	r.Register("buy_and_hold", []Parameter{
		{Name: "quantity_pct", Default: 10, Min: 1, Max: 100},
	}, func(params map[string]float64) backtest.Strategy {
		return NewBuyAndHold(logger, params["quantity_pct"])
	})
	r.Register("ma_cross", []Parameter{
		{Name: "fast_period", Default: 10, Min: 2, Max: 200},
		{Name: "slow_period", Default: 30, Min: 3, Max: 400},
	}, func(params map[string]float64) backtest.Strategy {
		return NewMovingAverageCross(logger, int(params["fast_period"]), int(params["slow_period"]))
	})
	return r
}

// Register adds or replaces a named strategy factory.
func (r *Registry) Register(name string, params []Parameter, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.named[name] = registered{factory: f, parameters: params}
}

// Create instantiates the named strategy with the given parameter
// overrides layered onto each parameter's documented default.
func (r *Registry) Create(name string, overrides map[string]float64) (backtest.Strategy, bool) {
	r.mu.RLock()
	reg, ok := r.named[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	params := make(map[string]float64, len(reg.parameters))
	for _, p := range reg.parameters {
		params[p.Name] = p.Default
	}
	for k, v := range overrides {
		params[k] = v
	}
	return reg.factory(params), true
}

// List returns every registered strategy name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.named))
	for name := range r.named {
		names = append(names, name)
	}
	return names
}

// BuyAndHold buys once on the first bar it sees after warm-up and holds
// for the remainder of the series; the simulator's end-of-data close
// realizes the exit. Useful as the minimal strategy exercising scenario
// S1 of the testable-properties suite.
type BuyAndHold struct {
	backtest.BaseStrategy
	logger      *zap.Logger
	quantityPct decimal.Decimal
	bought      bool
}

// NewBuyAndHold constructs a BuyAndHold sizing its single entry at
// quantityPct percent of equity (converted to a fraction internally).
func NewBuyAndHold(logger *zap.Logger, quantityPct float64) *BuyAndHold {
	return &BuyAndHold{logger: logger, quantityPct: decimal.NewFromFloat(quantityPct).Div(decimal.NewFromInt(100))}
}

func (s *BuyAndHold) OnBar(ctx backtest.Context) backtest.StrategyAction {
	if s.bought || ctx.Position.Side != backtest.PositionFlat {
		return backtest.Hold()
	}
	s.bought = true
	bar := ctx.CurrentBar()
	if !bar.Close.IsPositive() {
		return backtest.Buy()
	}
	qty := ctx.Equity.Mul(s.quantityPct).Div(bar.Close).Floor()
	return backtest.Buy().WithQuantity(qty)
}

// MovingAverageCross goes long when the fast SMA crosses above the slow
// SMA and closes when it crosses back below; it never shorts. Grounded on
// the teacher's MomentumStrategy lookback-window pattern, adapted to the
// simulator's Context (which already carries the bars-up-to-current
// slice, so no internal ring buffer is needed).
type MovingAverageCross struct {
	backtest.BaseStrategy
	logger     *zap.Logger
	fastPeriod int
	slowPeriod int
	wasAbove   bool
	hasPrior   bool
}

// NewMovingAverageCross constructs the crossover strategy. slowPeriod must
// exceed fastPeriod for the crossover to be meaningful; the caller (CLI or
// API request validation) is responsible for rejecting nonsensical pairs
// before the simulator runs.
func NewMovingAverageCross(logger *zap.Logger, fastPeriod, slowPeriod int) *MovingAverageCross {
	return &MovingAverageCross{logger: logger, fastPeriod: fastPeriod, slowPeriod: slowPeriod}
}

func (s *MovingAverageCross) OnBar(ctx backtest.Context) backtest.StrategyAction {
	bars := ctx.BarsUpTo
	if len(bars) < s.slowPeriod {
		return backtest.Hold()
	}

	fast := smaClose(bars, s.fastPeriod)
	slow := smaClose(bars, s.slowPeriod)
	above := fast.GreaterThan(slow)

	defer func() { s.wasAbove, s.hasPrior = above, true }()

	if !s.hasPrior {
		return backtest.Hold()
	}

	crossedUp := above && !s.wasAbove
	crossedDown := !above && s.wasAbove

	switch ctx.Position.Side {
	case backtest.PositionFlat:
		if crossedUp {
			return backtest.Buy()
		}
	case backtest.PositionLong:
		if crossedDown {
			return backtest.Close()
		}
	}
	return backtest.Hold()
}

// smaClose averages the last `period` closes of bars, which is always
// non-empty and at least `period` long when called from OnBar.
func smaClose(bars []backtest.Bar, period int) decimal.Decimal {
	start := len(bars) - period
	sum := decimal.Zero
	for _, b := range bars[start:] {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}
