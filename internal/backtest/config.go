package backtest

import "github.com/shopspring/decimal"

// CommissionTier is one step of a tiered commission schedule: once
// cumulative traded notional reaches CumulativeVolumeThreshold, new trades
// are charged at Rate instead of the base rate.
type CommissionTier struct {
	CumulativeVolumeThreshold decimal.Decimal
	Rate                      decimal.Decimal
}

// BacktestConfig is the full set of knobs the simulator and cost model
// read. All rates are fractional (0.01 = 1%); percentages belong only at
// the driver boundary (cmd/backtestctl, internal/api), which must convert
// before constructing this struct.
type BacktestConfig struct {
	InitialCapital     decimal.Decimal
	BaseCommissionRate decimal.Decimal
	BaseSlippageRate   decimal.Decimal
	Spread             decimal.Decimal
	MaxPositionSizePct decimal.Decimal
	MaxDrawdownPct     decimal.Decimal // 0 disables the kill-switch
	AllowShort         bool
	UseStopLoss        bool
	UseTakeProfit      bool
	WarmupBars         int // default 50 when zero

	// RealisticMode selects RealisticCostModel over SimpleCostModel (the
	// sum type collapsing the boolean-flag combinations from the source).
	RealisticMode bool
	Realistic     RealisticCostConfig
}

// RealisticCostConfig holds the knobs that only apply when
// BacktestConfig.RealisticMode is true.
type RealisticCostConfig struct {
	AverageDailyVolume      decimal.Decimal
	HasADV                  bool
	MarketImpactCoefficient decimal.Decimal

	UseTimeOfDay bool
	TimeOfDay    TimeOfDayConfig

	UseVolatilitySlippage bool
	VolatilityWindow      int
	VolatilityMultiplier  decimal.Decimal

	UseTieredCommissions bool
	CommissionTiers      []CommissionTier

	OrderBookDepth int
}

// TimeOfDayConfig describes the three intraday multiplier windows; hours
// are local hour-of-day in [0,24). Bars without intraday granularity (the
// simulator cannot recover a time-of-day from the timestamp) always use a
// multiplier of 1.0 regardless of this config.
type TimeOfDayConfig struct {
	OpenStartHour, OpenEndHour   int
	OpenMultiplier               decimal.Decimal
	CloseStartHour, CloseEndHour int
	CloseMultiplier              decimal.Decimal
	LunchStartHour, LunchEndHour int
	LunchMultiplier              decimal.Decimal
}

// DefaultTimeOfDayConfig mirrors the spec's documented default multipliers.
func DefaultTimeOfDayConfig() TimeOfDayConfig {
	return TimeOfDayConfig{
		OpenStartHour: 9, OpenEndHour: 10, OpenMultiplier: decimal.NewFromFloat(1.5),
		CloseStartHour: 15, CloseEndHour: 16, CloseMultiplier: decimal.NewFromFloat(1.3),
		LunchStartHour: 12, LunchEndHour: 13, LunchMultiplier: decimal.NewFromFloat(1.2),
	}
}

const defaultWarmupBars = 50

// Validate checks every numeric parameter's documented range and that the
// commission-tier list (if tiered commissions are enabled) is sorted and
// non-empty. It is the only gate before a run begins: no run starts on an
// invalid config.
func (c BacktestConfig) Validate() error {
	if c.InitialCapital.LessThanOrEqual(decimal.Zero) {
		return invalidConfigf("initial_capital must be positive, got %s", c.InitialCapital)
	}
	if c.BaseCommissionRate.IsNegative() {
		return invalidConfigf("base_commission_rate must be non-negative")
	}
	if c.BaseSlippageRate.IsNegative() {
		return invalidConfigf("base_slippage_rate must be non-negative")
	}
	if c.Spread.IsNegative() {
		return invalidConfigf("spread must be non-negative")
	}
	if c.MaxPositionSizePct.IsNegative() || c.MaxPositionSizePct.GreaterThan(decimal.NewFromInt(1)) {
		return invalidConfigf("max_position_size_pct must be in [0,1], got %s", c.MaxPositionSizePct)
	}
	if c.MaxDrawdownPct.IsNegative() || c.MaxDrawdownPct.GreaterThan(decimal.NewFromInt(1)) {
		return invalidConfigf("max_drawdown_pct must be in [0,1], got %s", c.MaxDrawdownPct)
	}
	if c.WarmupBars < 0 {
		return invalidConfigf("warmup_bars must be non-negative")
	}

	if !c.RealisticMode {
		return nil
	}
	r := c.Realistic
	if r.HasADV && r.AverageDailyVolume.LessThanOrEqual(decimal.Zero) {
		return invalidConfigf("average_daily_volume must be positive when set")
	}
	if r.MarketImpactCoefficient.IsNegative() {
		return invalidConfigf("market_impact_coefficient must be non-negative")
	}
	if r.UseVolatilitySlippage {
		if r.VolatilityWindow <= 1 {
			return invalidConfigf("volatility_window must be > 1 when volatility slippage is enabled")
		}
		if r.VolatilityMultiplier.LessThan(decimal.NewFromInt(1)) {
			return invalidConfigf("volatility_multiplier must be >= 1")
		}
	}
	if r.UseTieredCommissions {
		if len(r.CommissionTiers) == 0 {
			return invalidConfigf("commission_tiers must be non-empty when tiered commissions are enabled")
		}
		prev := decimal.NewFromInt(-1)
		for i, t := range r.CommissionTiers {
			if t.CumulativeVolumeThreshold.LessThan(decimal.Zero) {
				return invalidConfigf("commission_tiers[%d] threshold must be non-negative", i)
			}
			if t.CumulativeVolumeThreshold.LessThanOrEqual(prev) {
				return invalidConfigf("commission_tiers must be sorted by strictly increasing threshold")
			}
			if t.Rate.IsNegative() {
				return invalidConfigf("commission_tiers[%d] rate must be non-negative", i)
			}
			prev = t.CumulativeVolumeThreshold
		}
	}
	return nil
}

// warmup returns the effective warm-up length, defaulting to 50.
func (c BacktestConfig) warmup() int {
	if c.WarmupBars == 0 {
		return defaultWarmupBars
	}
	return c.WarmupBars
}
