package backtest

import "github.com/shopspring/decimal"

// ActionKind tags the StrategyAction sum type.
type ActionKind int

const (
	ActionHold ActionKind = iota
	ActionBuy
	ActionSell
	ActionClose
)

// StrategyAction is the tagged variant a Strategy emits once per bar.
// Quantity, Stop, and TakeProfit are only meaningful for Buy/Sell and are
// the decimal zero value when unset (which the simulator reads as "not
// specified" rather than "zero").
type StrategyAction struct {
	Kind       ActionKind
	Quantity   decimal.Decimal
	HasQty     bool
	Stop       decimal.Decimal
	HasStop    bool
	TakeProfit decimal.Decimal
	HasTake    bool
}

// Hold is the no-op action.
func Hold() StrategyAction { return StrategyAction{Kind: ActionHold} }

// Close closes any open position at the current bar via a Signal exit.
func Close() StrategyAction { return StrategyAction{Kind: ActionClose} }

// Buy opens (or reverses into) a long position.
func Buy() StrategyAction { return StrategyAction{Kind: ActionBuy} }

// Sell opens (or reverses into) a short position.
func Sell() StrategyAction { return StrategyAction{Kind: ActionSell} }

// WithQuantity fixes the order quantity instead of letting the simulator
// size the position from equity and max_position_size_pct.
func (a StrategyAction) WithQuantity(qty decimal.Decimal) StrategyAction {
	a.Quantity, a.HasQty = qty, true
	return a
}

// WithStop attaches a stop-loss level.
func (a StrategyAction) WithStop(stop decimal.Decimal) StrategyAction {
	a.Stop, a.HasStop = stop, true
	return a
}

// WithTakeProfit attaches a take-profit level.
func (a StrategyAction) WithTakeProfit(take decimal.Decimal) StrategyAction {
	a.TakeProfit, a.HasTake = take, true
	return a
}

// Context is the immutable per-bar view handed to a Strategy. It never
// exposes the simulator's mutable state directly; BarsUpTo is a read-only
// slice into the original series.
type Context struct {
	BarsUpTo       []Bar
	Index          int
	Position       Position
	EntryPrice     decimal.Decimal
	HasEntryPrice  bool
	Equity         decimal.Decimal
}

// CurrentBar returns the bar the strategy is being asked to react to.
func (c Context) CurrentBar() Bar { return c.BarsUpTo[c.Index] }

// Strategy is the external collaborator contract: a pure decision function
// invoked once per bar (after warm-up), plus optional lifecycle hooks.
// Strategies must not retain references into the simulator's mutable
// state — only the Context value, which is copied per call.
type Strategy interface {
	OnBar(ctx Context) StrategyAction
	OnInit()
	OnEnd(result *Result)
}

// BaseStrategy gives concrete strategies no-op lifecycle hooks so they
// only need to implement OnBar.
type BaseStrategy struct{}

func (BaseStrategy) OnInit()             {}
func (BaseStrategy) OnEnd(*Result)       {}
