// Package config loads the engine's settings tree from YAML and environment
// overrides, mirroring the layered defaults of the original trading project.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TradingMode selects whether the broker adapter talks to a paper or a live account.
type TradingMode string

const (
	TradingModePaper TradingMode = "paper"
	TradingModeLive  TradingMode = "live"
)

// CANSLIMConfig holds the screener thresholds. The trading core never reads
// these directly; they are carried so a single config file can configure both
// the screener and the engine.
type CANSLIMConfig struct {
	EPSGrowthMin       float64 `mapstructure:"eps_growth_min"`
	RevenueGrowthMin   float64 `mapstructure:"revenue_growth_min"`
	AnnualEPSGrowthMin float64 `mapstructure:"annual_eps_growth_min"`
	MinYears           int     `mapstructure:"min_years"`
	RSRatingMin        int     `mapstructure:"rs_rating_min"`
	InstitutionalMin   float64 `mapstructure:"institutional_min"`
	MinROE             float64 `mapstructure:"min_roe"`
}

// TurtleConfig holds the Turtle system parameters.
type TurtleConfig struct {
	System1EntryPeriod         int     `mapstructure:"system1_entry_period"`
	System1ExitPeriod          int     `mapstructure:"system1_exit_period"`
	System2EntryPeriod         int     `mapstructure:"system2_entry_period"`
	System2ExitPeriod          int     `mapstructure:"system2_exit_period"`
	ATRPeriod                  int     `mapstructure:"atr_period"`
	PyramidUnitInterval        float64 `mapstructure:"pyramid_unit_interval"`
	SignalCheckIntervalMinutes int     `mapstructure:"signal_check_interval_minutes"`
	BreakoutProximityPct       float64 `mapstructure:"breakout_proximity_pct"`
	FastPollIntervalSeconds    int     `mapstructure:"fast_poll_interval_seconds"`
	BreakevenThresholdATR      float64 `mapstructure:"breakeven_threshold_atr"`
}

// RiskConfig holds position sizing and unit-limit parameters.
type RiskConfig struct {
	RiskPerUnit               float64 `mapstructure:"risk_per_unit"`
	MaxUnitsPerStock          int     `mapstructure:"max_units_per_stock"`
	MaxUnitsCorrelated        int     `mapstructure:"max_units_correlated"`
	MaxUnitsLooselyCorrelated int     `mapstructure:"max_units_loosely_correlated"`
	MaxUnitsTotal             int     `mapstructure:"max_units_total"`
	StopLossATRMultiplier     float64 `mapstructure:"stop_loss_atr_multiplier"`
	StopLossMaxPercent        float64 `mapstructure:"stop_loss_max_percent"`
	MaxEntrySlippagePct       float64 `mapstructure:"max_entry_slippage_pct"`
	MaxExitSlippagePct        float64 `mapstructure:"max_exit_slippage_pct"`
}

// MarketSchedule is one market's session times, "HH:MM" in the market's own timezone.
type MarketSchedule struct {
	PremarketTime string `mapstructure:"premarket_time"`
	ScreeningTime string `mapstructure:"screening_time"`
	MarketOpen    string `mapstructure:"market_open"`
	MarketClose   string `mapstructure:"market_close"`
}

// ScheduleConfig holds both markets' session schedules.
type ScheduleConfig struct {
	KRX MarketSchedule `mapstructure:"krx"`
	US  MarketSchedule `mapstructure:"us"`
}

// NotificationConfig toggles which events are forwarded to external notifiers.
type NotificationConfig struct {
	TelegramEnabled bool `mapstructure:"telegram_enabled"`
	NotifyOnSignal  bool `mapstructure:"notify_on_signal"`
	NotifyOnOrder   bool `mapstructure:"notify_on_order"`
	NotifyOnFill    bool `mapstructure:"notify_on_fill"`
	DailyReport     bool `mapstructure:"daily_report"`
}

// ServerConfig configures the read-only HTTP/websocket/metrics surface.
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	MetricsPort   int           `mapstructure:"metrics_port"`
}

// DataConfig configures the persistence layer.
type DataConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
	LogDir     string `mapstructure:"log_dir"`
}

// Settings is the full configuration tree for the engine.
type Settings struct {
	TradingMode TradingMode `mapstructure:"trading_mode"`

	KISPaperAppKey    string `mapstructure:"kis_paper_app_key"`
	KISPaperAppSecret string `mapstructure:"kis_paper_app_secret"`
	KISPaperAccount   string `mapstructure:"kis_paper_account"`
	KISLiveAppKey     string `mapstructure:"kis_live_app_key"`
	KISLiveAppSecret  string `mapstructure:"kis_live_app_secret"`
	KISLiveAccount    string `mapstructure:"kis_live_account"`

	USPaperAPIKey    string `mapstructure:"us_paper_api_key"`
	USPaperAPISecret string `mapstructure:"us_paper_api_secret"`
	USLiveAPIKey     string `mapstructure:"us_live_api_key"`
	USLiveAPISecret  string `mapstructure:"us_live_api_secret"`

	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`

	CANSLIM      CANSLIMConfig       `mapstructure:"canslim"`
	Turtle       TurtleConfig        `mapstructure:"turtle"`
	Risk         RiskConfig          `mapstructure:"risk"`
	Schedule     ScheduleConfig      `mapstructure:"schedule"`
	Notification NotificationConfig `mapstructure:"notification"`
	Server       ServerConfig        `mapstructure:"server"`
	Data         DataConfig          `mapstructure:"data"`
}

// IsPaperMode reports whether the configured trading mode is paper.
func (s *Settings) IsPaperMode() bool { return s.TradingMode == TradingModePaper }

// IsLiveMode reports whether the configured trading mode is live.
func (s *Settings) IsLiveMode() bool { return s.TradingMode == TradingModeLive }

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading_mode", "paper")

	v.SetDefault("canslim.eps_growth_min", 0.20)
	v.SetDefault("canslim.revenue_growth_min", 0.25)
	v.SetDefault("canslim.annual_eps_growth_min", 0.20)
	v.SetDefault("canslim.min_years", 2)
	v.SetDefault("canslim.rs_rating_min", 80)
	v.SetDefault("canslim.institutional_min", 0.10)
	v.SetDefault("canslim.min_roe", 0.12)

	v.SetDefault("turtle.system1_entry_period", 20)
	v.SetDefault("turtle.system1_exit_period", 10)
	v.SetDefault("turtle.system2_entry_period", 55)
	v.SetDefault("turtle.system2_exit_period", 20)
	v.SetDefault("turtle.atr_period", 20)
	v.SetDefault("turtle.pyramid_unit_interval", 0.5)
	v.SetDefault("turtle.signal_check_interval_minutes", 1)
	v.SetDefault("turtle.breakout_proximity_pct", 0.03)
	v.SetDefault("turtle.fast_poll_interval_seconds", 3)
	v.SetDefault("turtle.breakeven_threshold_atr", 1.0)

	v.SetDefault("risk.risk_per_unit", 0.02)
	v.SetDefault("risk.max_units_per_stock", 4)
	v.SetDefault("risk.max_units_correlated", 10)
	v.SetDefault("risk.max_units_loosely_correlated", 16)
	v.SetDefault("risk.max_units_total", 20)
	v.SetDefault("risk.stop_loss_atr_multiplier", 2.0)
	v.SetDefault("risk.stop_loss_max_percent", 0.08)
	v.SetDefault("risk.max_entry_slippage_pct", 0.015)
	v.SetDefault("risk.max_exit_slippage_pct", 0.03)

	v.SetDefault("schedule.krx.premarket_time", "08:00")
	v.SetDefault("schedule.krx.screening_time", "08:00")
	v.SetDefault("schedule.krx.market_open", "09:00")
	v.SetDefault("schedule.krx.market_close", "15:30")
	v.SetDefault("schedule.us.premarket_time", "22:30")
	v.SetDefault("schedule.us.screening_time", "22:30")
	v.SetDefault("schedule.us.market_open", "23:30")
	v.SetDefault("schedule.us.market_close", "06:00")

	v.SetDefault("notification.telegram_enabled", false)
	v.SetDefault("notification.notify_on_signal", true)
	v.SetDefault("notification.notify_on_order", true)
	v.SetDefault("notification.notify_on_fill", true)
	v.SetDefault("notification.daily_report", true)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.metrics_port", 9090)

	v.SetDefault("data.sqlite_path", "data/turtle_canslim.db")
	v.SetDefault("data.log_dir", "logs")
}

// Load reads config/settings.yaml (if present) and overlays environment
// variables prefixed TURTLE_CANSLIM_ with "__" as the nested-field delimiter,
// e.g. TURTLE_CANSLIM_RISK__RISK_PER_UNIT=0.01.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("turtle_canslim")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if settings.TradingMode == TradingModeLive {
		if settings.KISLiveAppKey == "" || settings.KISLiveAppSecret == "" || settings.KISLiveAccount == "" {
			return nil, fmt.Errorf("live mode requires kis_live_app_key, kis_live_app_secret, kis_live_account")
		}
	}

	return &settings, nil
}
