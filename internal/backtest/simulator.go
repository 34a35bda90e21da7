package backtest

import (
	"go.uber.org/zap"

	"github.com/shopspring/decimal"
)

// Simulator drives a Strategy through a bar series. It is strictly
// single-threaded and deterministic: the same bars, strategy, and config
// always produce a byte-identical Result.
type Simulator struct {
	logger    *zap.Logger
	cfg       BacktestConfig
	telemetry *Telemetry
}

// NewSimulator constructs a Simulator against an already-validated config.
// A nil logger is replaced with a no-op logger, matching the teacher's
// constructor pattern.
func NewSimulator(logger *zap.Logger, cfg BacktestConfig) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{logger: logger, cfg: cfg}, nil
}

// WithTelemetry attaches Prometheus instrumentation; passing nil restores
// the no-op default. Intended for use by cmd/server, which owns the
// process-wide registry.
func (s *Simulator) WithTelemetry(t *Telemetry) *Simulator {
	s.telemetry = t
	return s
}

// Run is the simulator's one public operation: run(strategy, bars,
// config) -> Result. Preconditions: bars non-empty and well-ordered
// (enforced by ValidateBarSeries). Postconditions: every bar after
// warm-up has exactly one equity value; every opened position is paired
// with exactly one close.
func (s *Simulator) Run(strategy Strategy, bars []Bar) (*Result, error) {
	s.telemetry.recordRun()

	if err := ValidateBarSeries(bars, s.cfg.warmup()); err != nil {
		s.telemetry.recordRunError(ErrInvalidBarSeries)
		return nil, err
	}

	var costModel CostModel
	if s.cfg.RealisticMode {
		costModel = NewRealisticCostModel(s.cfg, len(bars))
	} else {
		costModel = NewSimpleCostModel(s.cfg)
	}

	run := &simRun{
		cfg:       s.cfg,
		bars:      bars,
		costModel: costModel,
		equity:    s.cfg.InitialCapital,
		peak:      s.cfg.InitialCapital,
		position:  flatPosition(),
	}

	strategy.OnInit()

	warmup := s.cfg.warmup()
	halted := false
	haltedAt := 0

	for i := range bars {
		if i < warmup {
			continue
		}

		if err := run.checkExitConditions(i); err != nil {
			s.telemetry.recordRunError(codeOf(err))
			return nil, err
		}

		ctx := run.context(i)
		action := strategy.OnBar(ctx)
		if err := validateAction(action); err != nil {
			s.telemetry.recordRunError(codeOf(err))
			return nil, err
		}
		if err := run.applyAction(i, action); err != nil {
			s.telemetry.recordRunError(codeOf(err))
			return nil, err
		}

		run.equity = run.currentMarkedEquity()
		run.appendEquity(run.equity)

		if run.peak.LessThan(run.equity) {
			run.peak = run.equity
		}

		if s.cfg.MaxDrawdownPct.GreaterThan(decimal.Zero) && !run.peak.IsZero() {
			dd := run.peak.Sub(run.equity).Div(run.peak)
			if dd.GreaterThanOrEqual(s.cfg.MaxDrawdownPct) {
				if !run.position.isFlat() {
					if err := run.closePosition(i, bars[i].Close, ExitEndOfData); err != nil {
						s.telemetry.recordRunError(codeOf(err))
						return nil, err
					}
					// The close happens on a bar whose equity value is
					// already recorded, so that value is updated in place.
					run.equityCurve[len(run.equityCurve)-1] = run.currentMarkedEquity()
				}
				halted = true
				haltedAt = i
				break
			}
		}
	}

	if !halted && !run.position.isFlat() {
		last := len(bars) - 1
		if err := run.closePosition(last, bars[last].Close, ExitEndOfData); err != nil {
			s.telemetry.recordRunError(codeOf(err))
			return nil, err
		}
		run.equityCurve[len(run.equityCurve)-1] = run.currentMarkedEquity()
	}

	result := &Result{
		Trades:          run.trades,
		Equity:          run.equityCurve,
		TransactionCost: run.costs,
		ExecQuality:     computeExecutionQuality(run.trades),
		Halted:          halted,
		HaltedAtBar:     haltedAt,
	}
	result.Metrics = NewMetricEngine().Calculate(result.Trades, result.Equity, s.cfg.InitialCapital, float64(len(bars)))

	strategy.OnEnd(result)

	s.logger.Info("simulation complete",
		zap.Int("bars", len(bars)),
		zap.Int("trades", len(result.Trades)),
		zap.Bool("halted", halted),
	)

	return result, nil
}

// simRun holds the mutable state for one Run call; it is never shared
// across goroutines (the Monte Carlo aggregator constructs one Simulator
// and one simRun per resampled path).
type simRun struct {
	cfg       BacktestConfig
	bars      []Bar
	costModel CostModel

	position Position
	equity   decimal.Decimal
	peak     decimal.Decimal

	cumulativeNotional decimal.Decimal
	equityCurve        EquityCurve
	trades             []Trade
	costs              TransactionCosts

	pendingEntryFill Fill // fill diagnostics from the most recent entry
}

func (r *simRun) appendEquity(v decimal.Decimal) {
	r.equityCurve = append(r.equityCurve, v)
}

func (r *simRun) context(i int) Context {
	ctx := Context{
		BarsUpTo: r.bars[:i+1],
		Index:    i,
		Position: r.position,
		Equity:   r.equity,
	}
	if !r.position.isFlat() {
		ctx.EntryPrice, ctx.HasEntryPrice = r.position.EntryPrice, true
	}
	return ctx
}

// checkExitConditions evaluates stop/take against the bar's high/low for
// an open position, closing it if triggered. Stop is checked before
// target when both would trigger within the bar (conservative, per spec).
func (r *simRun) checkExitConditions(i int) error {
	if r.position.isFlat() {
		return nil
	}
	bar := r.bars[i]
	switch r.position.Side {
	case PositionLong:
		if r.cfg.UseStopLoss && r.position.HasStop && bar.Low.LessThanOrEqual(r.position.Stop) {
			return r.closePosition(i, r.position.Stop, ExitStop)
		}
		if r.cfg.UseTakeProfit && r.position.HasTake && bar.High.GreaterThanOrEqual(r.position.TakeProfit) {
			return r.closePosition(i, r.position.TakeProfit, ExitTarget)
		}
	case PositionShort:
		if r.cfg.UseStopLoss && r.position.HasStop && bar.High.GreaterThanOrEqual(r.position.Stop) {
			return r.closePosition(i, r.position.Stop, ExitStop)
		}
		if r.cfg.UseTakeProfit && r.position.HasTake && bar.Low.LessThanOrEqual(r.position.TakeProfit) {
			return r.closePosition(i, r.position.TakeProfit, ExitTarget)
		}
	}
	return nil
}

func (r *simRun) applyAction(i int, action StrategyAction) error {
	switch action.Kind {
	case ActionHold:
		return nil
	case ActionClose:
		if !r.position.isFlat() {
			return r.closePosition(i, r.bars[i].Close, ExitSignal)
		}
		return nil
	case ActionBuy:
		return r.handleSide(i, action, PositionLong)
	case ActionSell:
		if !r.cfg.AllowShort && r.position.isFlat() {
			return invalidActionf("short action received but allow_short is false")
		}
		return r.handleSide(i, action, PositionShort)
	}
	return nil
}

func (r *simRun) handleSide(i int, action StrategyAction, target PositionSide) error {
	bar := r.bars[i]
	switch r.position.Side {
	case PositionFlat:
		return r.openPosition(i, action, target)
	case PositionLong:
		if target == PositionLong {
			return nil // already long, ignore duplicate buy
		}
		if err := r.closePosition(i, bar.Close, ExitSignal); err != nil {
			return err
		}
		if r.cfg.AllowShort {
			return r.openPosition(i, action, PositionShort)
		}
		return nil
	case PositionShort:
		if target == PositionShort {
			return nil
		}
		if err := r.closePosition(i, bar.Close, ExitSignal); err != nil {
			return err
		}
		return r.openPosition(i, action, PositionLong)
	}
	return nil
}

func (r *simRun) openPosition(i int, action StrategyAction, side PositionSide) error {
	bar := r.bars[i]
	execSide := SideBuy
	if side == PositionShort {
		execSide = SideSell
	}

	qty := action.Quantity
	maxNotional := r.equity.Mul(r.cfg.MaxPositionSizePct)
	if !action.HasQty {
		if bar.Close.IsZero() {
			return invalidBarSeriesf("bar %d: close price is zero, cannot size position", i)
		}
		qty = maxNotional.Div(bar.Close).Floor()
	} else if qty.Mul(bar.Close).GreaterThan(maxNotional) {
		return invalidActionf("requested quantity %s exceeds max position size", qty)
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return invalidActionf("computed order quantity is not positive")
	}
	if action.HasStop && action.Stop.IsNegative() {
		return invalidActionf("stop must be non-negative")
	}

	fill, err := r.costModel.Execute(FillRequest{
		IntendedPrice:      bar.Close,
		Side:               execSide,
		Quantity:           qty,
		Bar:                bar,
		BarIndex:           i,
		Bars:               r.bars,
		CumulativeNotional: r.cumulativeNotional,
	})
	if err != nil {
		return err
	}

	r.cumulativeNotional = r.cumulativeNotional.Add(fill.Price.Mul(qty))
	r.costs.TotalCommission = r.costs.TotalCommission.Add(fill.Commission)

	r.position = Position{
		Side:       side,
		EntryPrice: fill.Price,
		EntryTime:  bar.Timestamp,
		Quantity:   qty,
		Stop:       action.Stop,
		HasStop:    action.HasStop,
		TakeProfit: action.TakeProfit,
		HasTake:    action.HasTake,
	}
	r.pendingEntryFill = fill
	return nil
}

func (r *simRun) closePosition(i int, exitPrice decimal.Decimal, reason ExitReason) error {
	bar := r.bars[i]
	pos := r.position

	execSide := SideSell
	if pos.Side == PositionShort {
		execSide = SideBuy
	}

	fill, err := r.costModel.Execute(FillRequest{
		IntendedPrice:      exitPrice,
		Side:               execSide,
		Quantity:           pos.Quantity,
		Bar:                bar,
		BarIndex:           i,
		Bars:               r.bars,
		CumulativeNotional: r.cumulativeNotional,
	})
	if err != nil {
		return err
	}
	r.costs.TotalCommission = r.costs.TotalCommission.Add(fill.Commission)

	var pnl decimal.Decimal
	if pos.Side == PositionLong {
		pnl = fill.Price.Sub(pos.EntryPrice).Mul(pos.Quantity)
	} else {
		pnl = pos.EntryPrice.Sub(fill.Price).Mul(pos.Quantity)
	}
	entryFee := r.pendingEntryFill.Commission
	totalFees := entryFee.Add(fill.Commission)
	netPnL := pnl.Sub(totalFees)

	var pnlPct decimal.Decimal
	entryNotional := pos.EntryPrice.Mul(pos.Quantity)
	if !entryNotional.IsZero() {
		pnlPct = netPnL.Div(entryNotional)
	}

	r.equity = r.equity.Add(netPnL)

	trade := Trade{
		ID:                newTradeID(),
		Side:              pos.Side,
		EntryTime:         pos.EntryTime,
		ExitTime:          bar.Timestamp,
		EntryPrice:        pos.EntryPrice,
		ExitPrice:         fill.Price,
		Quantity:          pos.Quantity,
		PnL:               netPnL,
		PnLPct:            pnlPct,
		Fees:              totalFees,
		ExitReason:        reason,
		MarketImpact:      fill.MarketImpact,
		EffectiveSlippage: fill.EffectiveSlip,
		CommissionTier:    fill.CommissionTier,
		TimeOfDayFactor:   fill.TimeOfDayFctr,
		VolatilityFactor:  fill.VolatilityFctr,
	}
	r.trades = append(r.trades, trade)
	r.position = flatPosition()
	return nil
}

// currentMarkedEquity returns cash equity; the spec explicitly excludes
// mark-to-market of open positions from the equity curve (invariant 2:
// equity only changes on realized P&L/fees).
func (r *simRun) currentMarkedEquity() decimal.Decimal {
	return r.equity
}

func validateAction(a StrategyAction) error {
	if a.HasQty && a.Quantity.LessThanOrEqual(decimal.Zero) {
		return invalidActionf("action quantity must be positive when specified")
	}
	if a.HasStop && a.Stop.IsNegative() {
		return invalidActionf("stop must be non-negative")
	}
	if a.HasTake && a.TakeProfit.IsNegative() {
		return invalidActionf("take-profit must be non-negative")
	}
	return nil
}
