// Package config loads the driver-boundary configuration (BacktestConfig,
// MonteCarloConfig, ServerConfig) from YAML plus environment overrides via
// viper, the way the teacher's go.mod carries viper for exactly this job.
// The core package (internal/backtest) never imports viper or sees a
// percentage value directly; every converter below does the
// percentage-to-fraction conversion the spec mandates at this boundary.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/shopspring/decimal"

	"github.com/benchmark-quant/backtester/internal/backtest"
)

// AppConfig is the top-level shape Load produces: one BacktestConfig, one
// MonteCarloConfig, and one ServerConfig, each still in the file/env
// representation (percentages, plain numbers) until ToX() is called.
type AppConfig struct {
	Backtest   BacktestConfigFile   `mapstructure:"backtest"`
	MonteCarlo MonteCarloConfigFile `mapstructure:"monte_carlo"`
	Server     ServerConfigFile     `mapstructure:"server"`
}

// BacktestConfigFile mirrors backtest.BacktestConfig but accepts rates as
// percentages (1.5 means 1.5%), per spec §6's boundary-conversion rule.
type BacktestConfigFile struct {
	InitialCapital        float64                 `mapstructure:"initial_capital" json:"initial_capital" yaml:"initial_capital"`
	BaseCommissionRatePct float64                 `mapstructure:"base_commission_rate_pct" json:"base_commission_rate_pct" yaml:"base_commission_rate_pct"`
	BaseSlippageRatePct   float64                 `mapstructure:"base_slippage_rate_pct" json:"base_slippage_rate_pct" yaml:"base_slippage_rate_pct"`
	SpreadPct             float64                 `mapstructure:"spread_pct" json:"spread_pct" yaml:"spread_pct"`
	MaxPositionSizePct    float64                 `mapstructure:"max_position_size_pct" json:"max_position_size_pct" yaml:"max_position_size_pct"`
	MaxDrawdownPct        float64                 `mapstructure:"max_drawdown_pct" json:"max_drawdown_pct" yaml:"max_drawdown_pct"`
	AllowShort            bool                    `mapstructure:"allow_short" json:"allow_short" yaml:"allow_short"`
	UseStopLoss           bool                    `mapstructure:"use_stop_loss" json:"use_stop_loss" yaml:"use_stop_loss"`
	UseTakeProfit         bool                    `mapstructure:"use_take_profit" json:"use_take_profit" yaml:"use_take_profit"`
	WarmupBars            int                     `mapstructure:"warmup_bars" json:"warmup_bars" yaml:"warmup_bars"`
	RealisticMode         bool                    `mapstructure:"realistic_mode" json:"realistic_mode" yaml:"realistic_mode"`
	Realistic             RealisticCostConfigFile `mapstructure:"realistic" json:"realistic" yaml:"realistic"`
}

// RealisticCostConfigFile mirrors backtest.RealisticCostConfig.
type RealisticCostConfigFile struct {
	AverageDailyVolume      float64              `mapstructure:"average_daily_volume" json:"average_daily_volume" yaml:"average_daily_volume"`
	HasADV                  bool                 `mapstructure:"has_adv" json:"has_adv" yaml:"has_adv"`
	MarketImpactCoefficient float64              `mapstructure:"market_impact_coefficient" json:"market_impact_coefficient" yaml:"market_impact_coefficient"`
	UseTimeOfDay            bool                 `mapstructure:"use_time_of_day" json:"use_time_of_day" yaml:"use_time_of_day"`
	TimeOfDay               TimeOfDayConfigFile  `mapstructure:"time_of_day" json:"time_of_day" yaml:"time_of_day"`
	UseVolatilitySlippage   bool                 `mapstructure:"use_volatility_slippage" json:"use_volatility_slippage" yaml:"use_volatility_slippage"`
	VolatilityWindow        int                  `mapstructure:"volatility_window" json:"volatility_window" yaml:"volatility_window"`
	VolatilityMultiplier    float64              `mapstructure:"volatility_multiplier" json:"volatility_multiplier" yaml:"volatility_multiplier"`
	UseTieredCommissions    bool                 `mapstructure:"use_tiered_commissions" json:"use_tiered_commissions" yaml:"use_tiered_commissions"`
	CommissionTiers         []CommissionTierFile `mapstructure:"commission_tiers" json:"commission_tiers" yaml:"commission_tiers"`
	OrderBookDepth          int                  `mapstructure:"order_book_depth" json:"order_book_depth" yaml:"order_book_depth"`
}

// TimeOfDayConfigFile mirrors backtest.TimeOfDayConfig. A zero-valued
// instance (no hours, no multipliers set) is treated by ToBacktestConfig
// as "use the spec's documented defaults".
type TimeOfDayConfigFile struct {
	OpenStartHour, OpenEndHour   int     `mapstructure:"open_start_hour,omitempty" json:"open_start_hour" yaml:"open_start_hour"`
	OpenMultiplier               float64 `mapstructure:"open_multiplier" json:"open_multiplier" yaml:"open_multiplier"`
	CloseStartHour, CloseEndHour int     `mapstructure:"close_start_hour" json:"close_start_hour" yaml:"close_start_hour"`
	CloseMultiplier              float64 `mapstructure:"close_multiplier" json:"close_multiplier" yaml:"close_multiplier"`
	LunchStartHour, LunchEndHour int     `mapstructure:"lunch_start_hour" json:"lunch_start_hour" yaml:"lunch_start_hour"`
	LunchMultiplier              float64 `mapstructure:"lunch_multiplier" json:"lunch_multiplier" yaml:"lunch_multiplier"`
}

func (t TimeOfDayConfigFile) isZero() bool {
	return t == TimeOfDayConfigFile{}
}

// CommissionTierFile mirrors backtest.CommissionTier with a percentage rate.
type CommissionTierFile struct {
	CumulativeVolumeThreshold float64 `mapstructure:"cumulative_volume_threshold" json:"cumulative_volume_threshold" yaml:"cumulative_volume_threshold"`
	RatePct                   float64 `mapstructure:"rate_pct" json:"rate_pct" yaml:"rate_pct"`
}

// MonteCarloConfigFile mirrors backtest.MonteCarloConfig. Mode is the
// string spelling of one of the four resampling modes; ConfidenceLevel
// and GoalThresholds are already fractions (0.95, not 95), matching how
// the spec expresses them internally.
type MonteCarloConfigFile struct {
	Iterations      int       `mapstructure:"iterations" json:"iterations" yaml:"iterations"`
	Mode            string    `mapstructure:"mode" json:"mode" yaml:"mode"`
	BaseSeed        uint64    `mapstructure:"base_seed" json:"base_seed" yaml:"base_seed"`
	BlockSize       int       `mapstructure:"block_size" json:"block_size" yaml:"block_size"`
	ConfidenceLevel float64   `mapstructure:"confidence_level" json:"confidence_level" yaml:"confidence_level"`
	ParallelWorkers int       `mapstructure:"parallel_workers" json:"parallel_workers" yaml:"parallel_workers"`
	GoalThresholds  []float64 `mapstructure:"goal_thresholds" json:"goal_thresholds" yaml:"goal_thresholds"`
}

// ServerConfigFile configures cmd/server's HTTP/WS facade. It has no
// bearing on the core: the core never reads a ServerConfigFile.
type ServerConfigFile struct {
	Host                string `mapstructure:"host" json:"host" yaml:"host"`
	Port                int    `mapstructure:"port" json:"port" yaml:"port"`
	MetricsNamespace    string `mapstructure:"metrics_namespace" json:"metrics_namespace" yaml:"metrics_namespace"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds" json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds" json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
}

// Load reads configPath (if non-empty) or searches the working directory
// and ./configs for a "backtester.yaml", applies BACKTESTER_-prefixed
// environment overrides, and unmarshals into AppConfig. Per the teacher's
// pattern (main.go's flag-driven setup) and the arbitrage-agent viper
// pattern from the example pack, finding no file in the search paths is
// not an error: defaults alone are a valid, runnable configuration. An
// explicit configPath that cannot be read is an error.
func Load(configPath string) (*AppConfig, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("backtester")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("BACKTESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backtest.initial_capital", 100000.0)
	v.SetDefault("backtest.base_commission_rate_pct", 0.1)
	v.SetDefault("backtest.base_slippage_rate_pct", 0.05)
	v.SetDefault("backtest.spread_pct", 0.0)
	v.SetDefault("backtest.max_position_size_pct", 10.0)
	v.SetDefault("backtest.max_drawdown_pct", 0.0)
	v.SetDefault("backtest.warmup_bars", 50)

	v.SetDefault("monte_carlo.iterations", 1000)
	v.SetDefault("monte_carlo.mode", "trade_shuffle")
	v.SetDefault("monte_carlo.base_seed", 42)
	v.SetDefault("monte_carlo.block_size", 5)
	v.SetDefault("monte_carlo.confidence_level", 0.95)
	v.SetDefault("monte_carlo.parallel_workers", 8)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_namespace", "backtester")
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 30)
}

// ToBacktestConfig converts the percentage-based file representation into
// the fractional backtest.BacktestConfig the core requires, then
// validates it.
func (c BacktestConfigFile) ToBacktestConfig() (backtest.BacktestConfig, error) {
	cfg := backtest.BacktestConfig{
		InitialCapital:     decimal.NewFromFloat(c.InitialCapital),
		BaseCommissionRate: pctToFraction(c.BaseCommissionRatePct),
		BaseSlippageRate:   pctToFraction(c.BaseSlippageRatePct),
		Spread:             pctToFraction(c.SpreadPct),
		MaxPositionSizePct: pctToFraction(c.MaxPositionSizePct),
		MaxDrawdownPct:     pctToFraction(c.MaxDrawdownPct),
		AllowShort:         c.AllowShort,
		UseStopLoss:        c.UseStopLoss,
		UseTakeProfit:      c.UseTakeProfit,
		WarmupBars:         c.WarmupBars,
		RealisticMode:      c.RealisticMode,
	}

	if c.RealisticMode {
		real := c.Realistic
		tod := backtest.DefaultTimeOfDayConfig()
		if !real.TimeOfDay.isZero() {
			f := real.TimeOfDay
			tod = backtest.TimeOfDayConfig{
				OpenStartHour: f.OpenStartHour, OpenEndHour: f.OpenEndHour,
				OpenMultiplier: decimal.NewFromFloat(f.OpenMultiplier),
				CloseStartHour: f.CloseStartHour, CloseEndHour: f.CloseEndHour,
				CloseMultiplier: decimal.NewFromFloat(f.CloseMultiplier),
				LunchStartHour: f.LunchStartHour, LunchEndHour: f.LunchEndHour,
				LunchMultiplier: decimal.NewFromFloat(f.LunchMultiplier),
			}
		}

		tiers := make([]backtest.CommissionTier, len(real.CommissionTiers))
		for i, t := range real.CommissionTiers {
			tiers[i] = backtest.CommissionTier{
				CumulativeVolumeThreshold: decimal.NewFromFloat(t.CumulativeVolumeThreshold),
				Rate:                      pctToFraction(t.RatePct),
			}
		}

		cfg.Realistic = backtest.RealisticCostConfig{
			AverageDailyVolume:      decimal.NewFromFloat(real.AverageDailyVolume),
			HasADV:                  real.HasADV,
			MarketImpactCoefficient: decimal.NewFromFloat(real.MarketImpactCoefficient),
			UseTimeOfDay:            real.UseTimeOfDay,
			TimeOfDay:               tod,
			UseVolatilitySlippage:   real.UseVolatilitySlippage,
			VolatilityWindow:        real.VolatilityWindow,
			VolatilityMultiplier:    decimal.NewFromFloat(real.VolatilityMultiplier),
			UseTieredCommissions:    real.UseTieredCommissions,
			CommissionTiers:         tiers,
			OrderBookDepth:          real.OrderBookDepth,
		}
	}

	if err := cfg.Validate(); err != nil {
		return backtest.BacktestConfig{}, err
	}
	return cfg, nil
}

// ToMonteCarloConfig converts the file representation into
// backtest.MonteCarloConfig, resolving the string Mode into a ResampleMode.
func (c MonteCarloConfigFile) ToMonteCarloConfig() (backtest.MonteCarloConfig, error) {
	mode, err := parseResampleMode(c.Mode)
	if err != nil {
		return backtest.MonteCarloConfig{}, err
	}
	return backtest.MonteCarloConfig{
		Iterations:      c.Iterations,
		Mode:            mode,
		BaseSeed:        c.BaseSeed,
		BlockSize:       c.BlockSize,
		ConfidenceLevel: c.ConfidenceLevel,
		ParallelWorkers: c.ParallelWorkers,
		GoalThresholds:  c.GoalThresholds,
	}, nil
}

func parseResampleMode(s string) (backtest.ResampleMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trade_shuffle", "trade-shuffle":
		return backtest.ModeTradeShuffle, nil
	case "bootstrap":
		return backtest.ModeBootstrap, nil
	case "block_bootstrap", "block-bootstrap":
		return backtest.ModeBlockBootstrap, nil
	case "parametric":
		return backtest.ModeParametric, nil
	default:
		return 0, fmt.Errorf("config: unknown monte_carlo.mode %q", s)
	}
}

func pctToFraction(pct float64) decimal.Decimal {
	return decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))
}
