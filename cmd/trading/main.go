// Package main is the entry point for the live/paper trading engine: it
// loads configuration, wires the signal engine, order manager, portfolio
// manager, and scheduler into an orchestrator for each requested market, and
// serves a read-only HTTP/WebSocket/metrics surface alongside it.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/blood8879/turtle-canslim/internal/api"
	"github.com/blood8879/turtle-canslim/internal/events"
	"github.com/blood8879/turtle-canslim/internal/execution"
	"github.com/blood8879/turtle-canslim/internal/orchestrator"
	"github.com/blood8879/turtle-canslim/internal/scheduler"
	"github.com/blood8879/turtle-canslim/internal/store"
	"github.com/blood8879/turtle-canslim/internal/turtle"
	"github.com/blood8879/turtle-canslim/internal/workers"
	"github.com/blood8879/turtle-canslim/pkg/config"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	marketFlag := flag.String("market", "krx", "Market to trade: krx, us, or both")
	onceFlag := flag.Bool("once", false, "Run one premarket + one cycle + one report, then exit")
	dryRunFlag := flag.Bool("dry-run", false, "Skip the live-mode confirmation prompt (only honored with -once)")
	logLevel := flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARNING, ERROR)")
	configPath := flag.String("config", "config/settings.yaml", "Path to the settings YAML file")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	settings, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config_load_failed", zap.Error(err))
		os.Exit(1)
	}

	markets, err := marketsFor(*marketFlag)
	if err != nil {
		logger.Error("invalid_market_flag", zap.Error(err))
		os.Exit(1)
	}

	if settings.IsLiveMode() && !(*onceFlag && *dryRunFlag) {
		if !confirmLiveTrading(os.Stdin, os.Stdout) {
			logger.Info("live_trading_not_confirmed")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(logger, settings.Data.SQLitePath)
	if err != nil {
		logger.Error("store_open_failed", zap.Error(err))
		os.Exit(1)
	}
	repo := store.New(db, logger)

	engineConfig := turtle.DefaultConfig()
	engineConfig.ATRPeriod = settings.Turtle.ATRPeriod
	engineConfig.Breakout.ProximityPct = decimal.NewFromFloat(settings.Turtle.BreakoutProximityPct)
	engineConfig.Pyramid.UnitInterval = decimal.NewFromFloat(settings.Turtle.PyramidUnitInterval)
	engine := turtle.NewEngine(logger, engineConfig, repo, repo, repo)

	eventBus := events.NewEventBus(logger, events.DefaultEventBusConfig())
	if err := eventBus.Start(ctx); err != nil {
		logger.Error("event_bus_start_failed", zap.Error(err))
		os.Exit(1)
	}

	pool := workers.NewPool(logger, workers.DefaultPoolConfig("quote-fetch"))

	orchConfig := orchestrator.DefaultConfig()
	orchConfig.Turtle = engineConfig
	orchConfig.Sizer.RiskPerUnit = settings.Risk.RiskPerUnit
	orchConfig.Units.MaxUnitsPerStock = settings.Risk.MaxUnitsPerStock
	orchConfig.Units.MaxUnitsCorrelated = settings.Risk.MaxUnitsCorrelated
	orchConfig.Units.MaxUnitsLooselyCorrelated = settings.Risk.MaxUnitsLooselyCorrelated
	orchConfig.Units.MaxUnitsTotal = settings.Risk.MaxUnitsTotal
	orchConfig.StopLoss.ATRMultiplier = decimal.NewFromFloat(settings.Risk.StopLossATRMultiplier)
	orchConfig.StopLoss.MaxPercent = decimal.NewFromFloat(settings.Risk.StopLossMaxPercent)
	orchConfig.StopLoss.BreakevenThresholdATR = decimal.NewFromFloat(settings.Turtle.BreakevenThresholdATR)
	orchConfig.Slippage.MaxEntrySlippagePct = decimal.NewFromFloat(settings.Risk.MaxEntrySlippagePct)
	orchConfig.Slippage.MaxExitSlippagePct = decimal.NewFromFloat(settings.Risk.MaxExitSlippagePct)
	orchConfig.FastPollInterval = time.Duration(settings.Turtle.FastPollIntervalSeconds) * time.Second

	orch := orchestrator.New(logger, orchConfig, repo, engine, eventBus, pool)

	for _, market := range markets {
		broker := brokerFor(logger, settings, market)
		times, err := scheduleFor(settings, market)
		if err != nil {
			logger.Error("invalid_schedule", zap.String("market", string(market)), zap.Error(err))
			os.Exit(1)
		}
		loc := scheduler.LocationFor(logger, strings.ToLower(string(market)))
		orch.RegisterMarket(market, broker, times, loc)
	}

	apiPortfolioManagers := orch.PortfolioManagers()
	apiServer := api.New(logger, api.DefaultConfig(), repo, apiPortfolioManagers, eventBus)

	if err := orch.Start(ctx); err != nil {
		logger.Error("orchestrator_start_failed", zap.Error(err))
		os.Exit(1)
	}
	if err := apiServer.Start(ctx); err != nil {
		logger.Error("api_server_start_failed", zap.Error(err))
		os.Exit(1)
	}

	if *onceFlag {
		for _, market := range markets {
			orch.RunOnce(ctx, market)
		}
		shutdown(logger, orch, apiServer, eventBus)
		os.Exit(0)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("shutdown_signal_received", zap.String("signal", sig.String()))
	shutdown(logger, orch, apiServer, eventBus)

	if sig == syscall.SIGINT {
		os.Exit(130)
	}
	os.Exit(0)
}

func shutdown(logger *zap.Logger, orch *orchestrator.Orchestrator, apiServer *api.Server, eventBus *events.EventBus) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	orch.Stop(shutdownCtx)
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("api_server_stop_failed", zap.Error(err))
	}
	eventBus.Stop()
	logger.Info("shutdown_complete")
}

func confirmLiveTrading(in *os.File, out *os.File) bool {
	fmt.Fprint(out, "LIVE trading mode: real orders will be submitted. Type YES to continue: ")
	reader := bufio.NewReader(in)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line) == "YES"
}

func marketsFor(flagValue string) ([]types.Market, error) {
	switch strings.ToLower(flagValue) {
	case "krx":
		return []types.Market{types.MarketKRX}, nil
	case "us":
		return []types.Market{types.MarketUS}, nil
	case "both":
		return []types.Market{types.MarketKRX, types.MarketUS}, nil
	default:
		return nil, fmt.Errorf("unknown --market %q, expected krx, us, or both", flagValue)
	}
}

func scheduleFor(settings *config.Settings, market types.Market) (scheduler.MarketTimes, error) {
	sched := settings.Schedule.KRX
	if market == types.MarketUS {
		sched = settings.Schedule.US
	}

	premarketHour, premarketMinute, err := scheduler.ParseHHMM(sched.PremarketTime)
	if err != nil {
		return scheduler.MarketTimes{}, err
	}
	screeningHour, screeningMinute, err := scheduler.ParseHHMM(sched.ScreeningTime)
	if err != nil {
		return scheduler.MarketTimes{}, err
	}
	openHour, openMinute, err := scheduler.ParseHHMM(sched.MarketOpen)
	if err != nil {
		return scheduler.MarketTimes{}, err
	}
	closeHour, closeMinute, err := scheduler.ParseHHMM(sched.MarketClose)
	if err != nil {
		return scheduler.MarketTimes{}, err
	}

	return scheduler.MarketTimes{
		PremarketHour: premarketHour, PremarketMinute: premarketMinute,
		ScreeningHour: screeningHour, ScreeningMinute: screeningMinute,
		OpenHour: openHour, OpenMinute: openMinute,
		CloseHour: closeHour, CloseMinute: closeMinute,
		SignalCheckIntervalMinutes: settings.Turtle.SignalCheckIntervalMinutes,
		MonitoringIntervalMinutes:  5,
	}, nil
}

// brokerFor builds the paper or live broker for market, depending on the
// configured trading mode. Absent live credentials force paper mode
// regardless of the configured trading_mode, per the environment-variable
// contract.
func brokerFor(logger *zap.Logger, settings *config.Settings, market types.Market) execution.Broker {
	if !settings.IsLiveMode() {
		return execution.NewPaperBroker(logger, nil, decimal.NewFromInt(10_000_000))
	}

	if market == types.MarketKRX {
		if settings.KISLiveAppKey == "" || settings.KISLiveAppSecret == "" || settings.KISLiveAccount == "" {
			logger.Warn("krx_live_credentials_missing_falling_back_to_paper")
			return execution.NewPaperBroker(logger, nil, decimal.NewFromInt(10_000_000))
		}
		return execution.NewLiveBroker(logger, "https://openapi.koreainvestment.com:9443", execution.LiveCredentials{
			AppKey:    settings.KISLiveAppKey,
			AppSecret: settings.KISLiveAppSecret,
			Account:   settings.KISLiveAccount,
		}, false)
	}

	if settings.USLiveAPIKey == "" || settings.USLiveAPISecret == "" {
		logger.Warn("us_live_credentials_missing_falling_back_to_paper")
		return execution.NewPaperBroker(logger, nil, decimal.NewFromInt(10_000_000))
	}
	return execution.NewLiveBroker(logger, "https://api.alpaca.markets", execution.LiveCredentials{
		AppKey:    settings.USLiveAPIKey,
		AppSecret: settings.USLiveAPISecret,
	}, false)
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		zapLevel = zapcore.DebugLevel
	case "INFO":
		zapLevel = zapcore.InfoLevel
	case "WARNING", "WARN":
		zapLevel = zapcore.WarnLevel
	case "ERROR":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
