package backtest

import (
	"math"

	"github.com/shopspring/decimal"
)

// ResampleMode tags the four ways a Monte Carlo run can generate a
// synthetic outcome from an original simulation result or bar series.
type ResampleMode int

const (
	ModeTradeShuffle ResampleMode = iota
	ModeBootstrap
	ModeBlockBootstrap
	ModeParametric
)

// ResampleConfig configures the Resampler.
type ResampleConfig struct {
	Mode       ResampleMode
	BaseSeed   uint64
	BlockSize  int // only used by ModeBlockBootstrap
}

// Resampler generates one synthetic outcome per call; it owns no state
// across calls and never mutates the originating trades/bars it is given.
type Resampler struct {
	cfg ResampleConfig
}

func NewResampler(cfg ResampleConfig) *Resampler { return &Resampler{cfg: cfg} }

// ResampleTrades implements trade-shuffling: permute the trade log with a
// Fisher-Yates shuffle and rebuild the equity curve by accumulating P&Ls
// in the new order from initial capital. Total P&L is invariant under
// shuffling (spec invariant 5); Sharpe and max drawdown generally are not.
func (rs *Resampler) ResampleTrades(trades []Trade, initialCapital decimal.Decimal, iteration int) ([]Trade, EquityCurve) {
	r := newRNG(rs.cfg.BaseSeed, iteration)
	shuffled := append([]Trade(nil), trades...)
	r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	equity := make(EquityCurve, 0, len(shuffled)+1)
	equity = append(equity, initialCapital)
	running := initialCapital
	for _, t := range shuffled {
		running = running.Add(t.PnL)
		equity = append(equity, running)
	}
	return shuffled, equity
}

// ResampleBars produces one synthetic bar series according to the
// configured mode (bootstrap, block bootstrap, or parametric). Trade
// shuffling operates on trades directly via ResampleTrades and is not
// reachable through this method.
func (rs *Resampler) ResampleBars(bars []Bar, iteration int) ([]Bar, error) {
	r := newRNG(rs.cfg.BaseSeed, iteration)
	switch rs.cfg.Mode {
	case ModeBootstrap:
		return bootstrapBars(bars, r), nil
	case ModeBlockBootstrap:
		return blockBootstrapBars(bars, rs.cfg.BlockSize, r), nil
	case ModeParametric:
		return parametricBars(bars, r)
	default:
		return nil, invalidConfigf("resample mode not applicable to bar series")
	}
}

// bootstrapBars draws len(bars) bars uniformly with replacement, then
// reassigns sequential timestamps starting at the original first bar.
func bootstrapBars(bars []Bar, r *rng) []Bar {
	out := make([]Bar, len(bars))
	for i := range out {
		src := bars[r.Intn(len(bars))]
		out[i] = src
		out[i].Timestamp = timestampAt(bars, i)
	}
	return out
}

// blockBootstrapBars concatenates contiguous blocks of size B drawn with
// replacement until reaching the original length, then truncates.
func blockBootstrapBars(bars []Bar, blockSize int, r *rng) []Bar {
	if blockSize <= 0 {
		blockSize = 1
	}
	n := len(bars)
	out := make([]Bar, 0, n+blockSize)
	for len(out) < n {
		start := r.Intn(n)
		for k := 0; k < blockSize && len(out) < n; k++ {
			out = append(out, bars[(start+k)%n])
		}
	}
	out = out[:n]
	for i := range out {
		out[i].Timestamp = timestampAt(bars, i)
	}
	return out
}

func timestampAt(original []Bar, i int) int64 {
	if i < len(original) {
		return original[i].Timestamp
	}
	step := int64(1)
	if len(original) > 1 {
		step = original[1].Timestamp - original[0].Timestamp
	}
	return original[0].Timestamp + step*int64(i)
}

const minParametricBars = 3

// parametricBars estimates mean/stddev of one-bar log-returns, simulates a
// geometric price path with Gaussian (Box-Muller) innovations, fabricates
// OHLC around each synthetic close by the magnitude of that bar's
// innovation, and jitters volume +/-20%.
func parametricBars(bars []Bar, r *rng) ([]Bar, error) {
	if len(bars) < minParametricBars {
		return nil, insufficientDataf("parametric resampling needs at least %d bars, got %d", minParametricBars, len(bars))
	}

	logReturns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev, _ := bars[i-1].Close.Float64()
		cur, _ := bars[i].Close.Float64()
		if prev <= 0 || cur <= 0 {
			continue
		}
		logReturns = append(logReturns, math.Log(cur/prev))
	}
	if len(logReturns) < 2 {
		return nil, insufficientDataf("not enough positive-price bars to estimate log-return statistics")
	}

	mean := meanF(logReturns)
	sd := stdDevSample(logReturns)

	out := make([]Bar, len(bars))
	closeF, _ := bars[0].Close.Float64()
	for i := range bars {
		innovation := mean + sd*r.Gaussian()
		closeF *= math.Exp(innovation)

		magnitude := math.Abs(innovation) * closeF
		high := closeF + magnitude*r.Float64()
		low := closeF - magnitude*r.Float64()
		if low > closeF {
			low = closeF
		}
		if high < closeF {
			high = closeF
		}
		open := low + (high-low)*r.Float64()

		volF, _ := bars[i].Volume.Float64()
		jitter := 1 + (r.Float64()*0.4 - 0.2)
		vol := volF * jitter
		if vol < 0 {
			vol = 0
		}

		out[i] = Bar{
			Timestamp: timestampAt(bars, i),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(closeF),
			Volume:    decimal.NewFromFloat(vol),
		}
	}
	return out, nil
}
