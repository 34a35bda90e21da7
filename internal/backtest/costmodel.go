package backtest

import (
	"math"

	"github.com/shopspring/decimal"
)

// Side is Buy or Sell at the CostModel boundary (distinct from
// StrategyAction/Position tags, which carry richer intent).
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// Fill is the CostModel's output: the realized execution price, the
// commission charged, and diagnostics carried onto the resulting Trade.
type Fill struct {
	Price          decimal.Decimal
	Commission     decimal.Decimal
	CommissionTier int
	MarketImpact   decimal.Decimal
	EffectiveSlip  decimal.Decimal
	TimeOfDayFctr  decimal.Decimal
	VolatilityFctr decimal.Decimal
}

// CostModel maps an intended fill to a realized one. Implementations must
// be deterministic given their inputs: no hidden RNG, no wall-clock reads.
type CostModel interface {
	Execute(req FillRequest) (Fill, error)
}

// FillRequest carries everything a CostModel needs for one execution.
type FillRequest struct {
	IntendedPrice     decimal.Decimal
	Side              Side
	Quantity          decimal.Decimal
	Bar               Bar
	BarIndex          int
	Bars              []Bar // full series, for volatility lookback; read-only
	CumulativeNotional decimal.Decimal
}

// SimpleCostModel is the legacy path: base commission + base slippage +
// half-spread, no market impact, no tiering, no time-of-day/volatility
// multipliers. It is a strict subset of RealisticCostModel with every
// realistic knob off, per the chosen interpretation of the source's two
// co-existing cost-model versions.
type SimpleCostModel struct {
	CommissionRate decimal.Decimal
	SlippageRate   decimal.Decimal
	Spread         decimal.Decimal
}

func NewSimpleCostModel(cfg BacktestConfig) *SimpleCostModel {
	return &SimpleCostModel{
		CommissionRate: cfg.BaseCommissionRate,
		SlippageRate:   cfg.BaseSlippageRate,
		Spread:         cfg.Spread,
	}
}

func (m *SimpleCostModel) Execute(req FillRequest) (Fill, error) {
	if err := validateFillRequest(req); err != nil {
		return Fill{}, err
	}
	totalRate := m.SlippageRate.Add(m.Spread.Div(decimal.NewFromInt(2)))
	price := applySlippage(req.IntendedPrice, totalRate, req.Side)
	notional := price.Mul(req.Quantity)
	commission := notional.Mul(m.CommissionRate)
	return Fill{
		Price:          price,
		Commission:     commission,
		CommissionTier: -1,
		EffectiveSlip:  totalRate,
		TimeOfDayFctr:  decimal.NewFromInt(1),
		VolatilityFctr: decimal.NewFromInt(1),
	}, nil
}

// RealisticCostModel composes base slippage, square-root market impact,
// half-spread, a time-of-day multiplier, and a volatility multiplier, then
// selects a commission tier from cumulative traded notional. The
// volatility multiplier is memoized per bar index (a plain preallocated
// slice, not a map, per the "memoization caches keyed by index" guidance).
type RealisticCostModel struct {
	cfg      BacktestConfig
	real     RealisticCostConfig
	volCache []volCacheEntry
}

type volCacheEntry struct {
	computed bool
	value    decimal.Decimal
}

func NewRealisticCostModel(cfg BacktestConfig, barCount int) *RealisticCostModel {
	return &RealisticCostModel{
		cfg:      cfg,
		real:     cfg.Realistic,
		volCache: make([]volCacheEntry, barCount),
	}
}

func (m *RealisticCostModel) Execute(req FillRequest) (Fill, error) {
	if err := validateFillRequest(req); err != nil {
		return Fill{}, err
	}
	if req.CumulativeNotional.IsNegative() {
		return Fill{}, invalidActionf("cumulative notional must be non-negative")
	}

	base := m.cfg.BaseSlippageRate
	spreadHalf := m.cfg.Spread.Div(decimal.NewFromInt(2))

	impact := m.marketImpact(req)
	todFactor := m.timeOfDayMultiplier(req.Bar)
	volFactor := m.volatilityMultiplier(req.BarIndex, req.Bars)

	totalRate := base.Add(impact).Add(spreadHalf)
	totalRate = totalRate.Mul(todFactor).Mul(volFactor)

	price := applySlippage(req.IntendedPrice, totalRate, req.Side)
	notional := price.Mul(req.Quantity)

	rate, tier := m.selectCommissionTier(req.CumulativeNotional)
	commission := notional.Mul(rate)

	return Fill{
		Price:          price,
		Commission:     commission,
		CommissionTier: tier,
		MarketImpact:   impact,
		EffectiveSlip:  totalRate,
		TimeOfDayFctr:  todFactor,
		VolatilityFctr: volFactor,
	}, nil
}

// marketImpact implements lambda * sqrt(notional / (ADV * price)), with the
// participation ratio clamped to [0,1] before the square root.
func (m *RealisticCostModel) marketImpact(req FillRequest) decimal.Decimal {
	if !m.real.HasADV || m.real.AverageDailyVolume.IsZero() {
		return decimal.Zero
	}
	notional := req.IntendedPrice.Mul(req.Quantity)
	denom := m.real.AverageDailyVolume.Mul(req.IntendedPrice)
	if denom.IsZero() {
		return decimal.Zero
	}
	ratio, _ := notional.Div(denom).Float64()
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	lambda, _ := m.real.MarketImpactCoefficient.Float64()
	return decimal.NewFromFloat(lambda * math.Sqrt(ratio))
}

// timeOfDayMultiplier returns 1.0 unless the bar timestamp carries
// intraday granularity and falls inside a configured window. Timestamps
// are milliseconds since epoch; hour-of-day is derived modulo a day, which
// is only meaningful when the series genuinely has intraday bars.
func (m *RealisticCostModel) timeOfDayMultiplier(bar Bar) decimal.Decimal {
	if !m.real.UseTimeOfDay {
		return decimal.NewFromInt(1)
	}
	const msPerDay = 86400000
	const msPerHour = 3600000
	if bar.Timestamp%msPerDay == 0 {
		// Midnight-aligned timestamps look daily-granularity; treat as
		// lacking intraday information per spec.
		return decimal.NewFromInt(1)
	}
	hour := int((bar.Timestamp % msPerDay) / msPerHour)
	tod := m.real.TimeOfDay
	switch {
	case hour >= tod.OpenStartHour && hour < tod.OpenEndHour:
		return tod.OpenMultiplier
	case hour >= tod.CloseStartHour && hour < tod.CloseEndHour:
		return tod.CloseMultiplier
	case hour >= tod.LunchStartHour && hour < tod.LunchEndHour:
		return tod.LunchMultiplier
	default:
		return decimal.NewFromInt(1)
	}
}

const volReferenceStdDev = 0.015

// volatilityMultiplier computes stddev of one-bar returns over the
// preceding VolatilityWindow bars, normalizes by a reference value, maps
// into [1 + (norm-1)*(mult-1)], and clamps to [0.5, 3.0]. Results are
// memoized per bar index since the lookback window is identical on every
// call for a given index within one run.
func (m *RealisticCostModel) volatilityMultiplier(idx int, bars []Bar) decimal.Decimal {
	if !m.real.UseVolatilitySlippage {
		return decimal.NewFromInt(1)
	}
	if idx >= 0 && idx < len(m.volCache) && m.volCache[idx].computed {
		return m.volCache[idx].value
	}

	window := m.real.VolatilityWindow
	if idx+1 < window {
		return decimal.NewFromInt(1) // insufficient history: skip
	}
	returns := make([]float64, 0, window-1)
	for i := idx - window + 2; i <= idx; i++ {
		returns = append(returns, oneBarReturn(bars[i-1].Close, bars[i].Close))
	}
	sd := stdDevPopulation(returns)
	normalized := sd / volReferenceStdDev
	multF, _ := m.real.VolatilityMultiplier.Float64()
	result := 1 + (normalized-1)*(multF-1)
	if result < 0.5 {
		result = 0.5
	}
	if result > 3.0 {
		result = 3.0
	}
	value := decimal.NewFromFloat(result)
	if idx >= 0 && idx < len(m.volCache) {
		m.volCache[idx] = volCacheEntry{computed: true, value: value}
	}
	return value
}

// selectCommissionTier picks the tier whose threshold is the largest not
// exceeding cumulativeNotional, returning the base rate and tier index -1
// when tiering is off or no tier threshold has been reached yet.
func (m *RealisticCostModel) selectCommissionTier(cumulativeNotional decimal.Decimal) (decimal.Decimal, int) {
	if !m.real.UseTieredCommissions || len(m.real.CommissionTiers) == 0 {
		return m.cfg.BaseCommissionRate, -1
	}
	rate := m.cfg.BaseCommissionRate
	tier := -1
	for i, t := range m.real.CommissionTiers {
		if cumulativeNotional.GreaterThanOrEqual(t.CumulativeVolumeThreshold) {
			rate = t.Rate
			tier = i
		} else {
			break
		}
	}
	return rate, tier
}

func applySlippage(price, totalRate decimal.Decimal, side Side) decimal.Decimal {
	if side == SideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(totalRate))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(totalRate))
}

func validateFillRequest(req FillRequest) error {
	if req.Quantity.IsNegative() || req.Quantity.IsZero() {
		return invalidActionf("fill quantity must be positive")
	}
	if req.IntendedPrice.LessThanOrEqual(decimal.Zero) {
		return invalidActionf("intended price must be positive")
	}
	return nil
}

func stdDevPopulation(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}
