// Package orchestrator wires the signal engine, order manager, portfolio
// manager, and scheduler into one running trading loop per market, and is
// the integration point the cmd/trading entrypoint builds and starts.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blood8879/turtle-canslim/internal/events"
	"github.com/blood8879/turtle-canslim/internal/execution"
	"github.com/blood8879/turtle-canslim/internal/portfolio"
	"github.com/blood8879/turtle-canslim/internal/risk"
	"github.com/blood8879/turtle-canslim/internal/scheduler"
	"github.com/blood8879/turtle-canslim/internal/signals/atr"
	"github.com/blood8879/turtle-canslim/internal/signals/pyramid"
	"github.com/blood8879/turtle-canslim/internal/signals/stoploss"
	"github.com/blood8879/turtle-canslim/internal/store"
	"github.com/blood8879/turtle-canslim/internal/turtle"
	"github.com/blood8879/turtle-canslim/internal/workers"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config bundles the parameters the orchestrator needs beyond what the
// signal engine and order manager already carry internally.
type Config struct {
	Turtle            turtle.Config
	Pyramid           pyramid.Config
	StopLoss          stoploss.Config
	Units             risk.UnitLimitConfig
	Sizer             *risk.SizerConfig
	Slippage          execution.SlippageConfig
	FastPollInterval  time.Duration
	HeartbeatInterval time.Duration
}

// DefaultConfig mirrors the original project's defaults.
func DefaultConfig() Config {
	return Config{
		Turtle:            turtle.DefaultConfig(),
		Pyramid:           pyramid.DefaultConfig(),
		StopLoss:          stoploss.DefaultConfig(),
		Units:             risk.DefaultUnitLimitConfig(),
		Sizer:             risk.DefaultSizerConfig(),
		Slippage:          execution.DefaultSlippageConfig(),
		FastPollInterval:  3 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// MarketRuntime bundles the per-market collaborators: each market trades
// against its own broker connection, on its own timezone-local schedule, and
// watches its own near-breakout stock set.
type MarketRuntime struct {
	Market       types.Market
	Broker       execution.Broker
	OrderManager *execution.OrderManager
	Portfolio    *portfolio.Manager
	Watcher      *turtle.ProximityWatcher
	Scheduler    *scheduler.Scheduler

	fastPollMu     sync.Mutex
	cancelFastPoll context.CancelFunc
}

// Orchestrator runs one Turtle cycle per market on a timer, evaluating
// exits, pyramids, and entries in that order and handing fired signals to
// the order manager, with a fast-poll sub-loop watching near-breakout stocks
// between cycles.
type Orchestrator struct {
	logger   *zap.Logger
	config   Config
	repo     *store.Repository
	engine   *turtle.Engine
	units    *risk.UnitLimitManager
	eventBus *events.EventBus
	pool     *workers.Pool

	mu       sync.RWMutex
	runtimes map[types.Market]*MarketRuntime
	running  bool
}

// New builds an orchestrator; registerable markets are added with
// RegisterMarket before Start.
func New(logger *zap.Logger, config Config, repo *store.Repository, engine *turtle.Engine, eventBus *events.EventBus, pool *workers.Pool) *Orchestrator {
	return &Orchestrator{
		logger:   logger.Named("orchestrator"),
		config:   config,
		repo:     repo,
		engine:   engine,
		units:    risk.NewUnitLimitManager(logger, config.Units),
		eventBus: eventBus,
		pool:     pool,
		runtimes: make(map[types.Market]*MarketRuntime),
	}
}

// RegisterMarket wires a broker and a schedule for one market: a fresh order
// manager, portfolio manager, proximity watcher, and scheduler with the four
// standard jobs.
func (o *Orchestrator) RegisterMarket(market types.Market, broker execution.Broker, times scheduler.MarketTimes, loc *time.Location) {
	sizer := risk.NewPositionSizer(o.logger, o.config.Sizer, o.config.StopLoss)
	orderMgr := execution.NewOrderManager(o.logger, o.repo, broker, sizer, o.units, o.config.Pyramid, o.config.StopLoss, o.config.Slippage)
	portfolioMgr := portfolio.NewManager(o.logger, o.repo, broker, o.config.Units)
	watcher := turtle.NewProximityWatcher(o.config.Turtle.Breakout)
	sched := scheduler.New(o.logger, loc)

	rt := &MarketRuntime{
		Market:       market,
		Broker:       broker,
		OrderManager: orderMgr,
		Portfolio:    portfolioMgr,
		Watcher:      watcher,
		Scheduler:    sched,
	}

	signalInterval := time.Duration(times.SignalCheckIntervalMinutes) * time.Minute
	if signalInterval <= 0 {
		signalInterval = time.Minute
	}

	scheduler.RegisterMarketJobs(sched, string(market), times, scheduler.MarketHandlers{
		Premarket: func(ctx context.Context) { o.runPremarket(ctx, market) },
		RealtimeSignals: func(ctx context.Context) {
			o.runCycle(ctx, market)
			o.restartFastPoll(ctx, rt, signalInterval)
		},
		Monitoring:  func(ctx context.Context) { o.runMonitoring(ctx, market) },
		DailyReport: func(ctx context.Context) { o.runDailyReport(ctx, market) },
	})

	o.mu.Lock()
	o.runtimes[market] = rt
	o.mu.Unlock()
}

// Start connects every registered market's broker and starts its scheduler
// and heartbeat loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.running = true
	runtimes := make([]*MarketRuntime, 0, len(o.runtimes))
	for _, rt := range o.runtimes {
		runtimes = append(runtimes, rt)
	}
	o.mu.Unlock()

	if len(runtimes) == 0 {
		return fmt.Errorf("no markets registered")
	}

	o.pool.Start()

	for _, rt := range runtimes {
		if err := rt.Broker.Connect(ctx); err != nil {
			return fmt.Errorf("connect broker for %s: %w", rt.Market, err)
		}
		rt.Scheduler.Start(ctx)
		go o.heartbeatLoop(ctx, rt.Market)
	}

	o.logger.Info("orchestrator_started", zap.Int("markets", len(runtimes)))
	return nil
}

// Stop halts every market's scheduler and disconnects its broker.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	runtimes := make([]*MarketRuntime, 0, len(o.runtimes))
	for _, rt := range o.runtimes {
		runtimes = append(runtimes, rt)
	}
	o.mu.Unlock()

	for _, rt := range runtimes {
		rt.Scheduler.Stop()
		rt.fastPollMu.Lock()
		if rt.cancelFastPoll != nil {
			rt.cancelFastPoll()
		}
		rt.fastPollMu.Unlock()
		if err := rt.Broker.Disconnect(ctx); err != nil {
			o.logger.Warn("broker_disconnect_failed", zap.String("market", string(rt.Market)), zap.Error(err))
		}
	}

	o.pool.Stop()
	o.logger.Info("orchestrator_stopped")
}

// PortfolioManagers returns every registered market's portfolio manager, for
// the API layer to report against.
func (o *Orchestrator) PortfolioManagers() map[types.Market]*portfolio.Manager {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[types.Market]*portfolio.Manager, len(o.runtimes))
	for market, rt := range o.runtimes {
		out[market] = rt.Portfolio
	}
	return out
}

// RunOnce drives a single premarket + realtime-signal + daily-report pass
// for market synchronously, for the CLI's --once mode. The market must
// already be registered and its broker connected.
func (o *Orchestrator) RunOnce(ctx context.Context, market types.Market) {
	o.runPremarket(ctx, market)
	o.runCycle(ctx, market)
	o.runDailyReport(ctx, market)
}

func (o *Orchestrator) runtime(market types.Market) (*MarketRuntime, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rt, ok := o.runtimes[market]
	return rt, ok
}

// heartbeatLoop records liveness for the TUI/API layer every HeartbeatInterval.
func (o *Orchestrator) heartbeatLoop(ctx context.Context, market types.Market) {
	interval := o.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.repo.Heartbeat(ctx, market, time.Now()); err != nil {
				o.logger.Warn("heartbeat_failed", zap.String("market", string(market)), zap.Error(err))
				continue
			}
			o.eventBus.Publish(events.NewHeartbeatEvent(string(market)))
		}
	}
}

// runPremarket checks the trading-state toggle for the day; screening
// itself belongs to the CANSLIM scoring pipeline upstream of this package.
func (o *Orchestrator) runPremarket(ctx context.Context, market types.Market) {
	state, err := o.repo.GetTradingState(ctx, market)
	if err != nil {
		o.logger.Error("premarket_trading_state_failed", zap.String("market", string(market)), zap.Error(err))
		return
	}
	o.logger.Info("premarket_ready", zap.String("market", string(market)), zap.Bool("active", state.IsActive))
}

// runMonitoring re-evaluates exits and pyramids without scanning for new
// entries; fired between the faster realtime-signal checks as a safety net.
func (o *Orchestrator) runMonitoring(ctx context.Context, market types.Market) {
	o.evaluateCycle(ctx, market, false)
}

// runCycle is the full signal-detection pass: exits, then pyramids, then new
// entries, followed by a rebuild of the near-breakout proximity watcher.
func (o *Orchestrator) runCycle(ctx context.Context, market types.Market) {
	o.evaluateCycle(ctx, market, true)
}

func (o *Orchestrator) evaluateCycle(ctx context.Context, market types.Market, checkEntries bool) {
	rt, ok := o.runtime(market)
	if !ok {
		return
	}

	state, err := o.repo.GetTradingState(ctx, market)
	if err != nil {
		o.logger.Error("cycle_trading_state_failed", zap.String("market", string(market)), zap.Error(err))
		return
	}
	if !state.IsActive {
		return
	}

	positions, err := o.repo.ListOpenPositions(ctx, market)
	if err != nil {
		o.logger.Error("cycle_list_positions_failed", zap.String("market", string(market)), zap.Error(err))
		return
	}

	var candidates []types.Candidate
	if checkEntries {
		candidates, err = o.repo.ListActiveCandidates(ctx, market, time.Now().Truncate(24*time.Hour))
		if err != nil {
			o.logger.Warn("cycle_list_candidates_failed", zap.String("market", string(market)), zap.Error(err))
		}
	}

	symbols := make(map[uint]string, len(positions)+len(candidates))
	for _, p := range positions {
		symbols[p.StockID] = p.Symbol
	}
	for _, c := range candidates {
		symbols[c.StockID] = c.Symbol
	}

	symbolList := make([]string, 0, len(symbols))
	bySymbol := make(map[string]uint, len(symbols))
	for stockID, symbol := range symbols {
		symbolList = append(symbolList, symbol)
		bySymbol[symbol] = stockID
	}

	quotes := workers.FetchQuotes(ctx, o.logger, o.pool, symbolList, func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		return rt.Broker.GetCurrentPrice(ctx, symbol)
	})

	realtime := make(map[uint]decimal.Decimal, len(quotes.Prices))
	for symbol, price := range quotes.Prices {
		realtime[bySymbol[symbol]] = price
	}

	openViews := make([]turtle.OpenPositionView, len(positions))
	openStockIDs := make(map[uint]bool, len(positions))
	openUnits := make([]risk.OpenPositionUnits, len(positions))
	for i, p := range positions {
		openViews[i] = turtle.OpenPositionView{
			PositionID: p.ID, StockID: p.StockID, EntrySystem: p.EntrySystem,
			Quantity: p.Quantity, Units: p.Units, EntryPrice: p.EntryPrice, StopLossPrice: p.StopLossPrice,
		}
		openStockIDs[p.StockID] = true
		openUnits[i] = risk.OpenPositionUnits{StockID: p.StockID, Sector: p.Sector, Units: p.Units}
	}

	signals := o.engine.CheckExitSignals(ctx, openViews, realtime)
	signals = append(signals, o.engine.CheckPyramidSignals(ctx, openViews)...)
	if checkEntries {
		signals = append(signals, o.engine.CheckEntrySignals(ctx, candidates, openStockIDs, realtime)...)
	}

	if len(signals) == 0 {
		if checkEntries {
			o.rebuildWatcher(ctx, rt, candidates, openStockIDs)
		}
		return
	}

	balance, err := rt.Broker.GetBalance(ctx)
	if err != nil {
		o.logger.Error("cycle_get_balance_failed", zap.String("market", string(market)), zap.Error(err))
		return
	}

	sectorByStock := make(map[uint]string, len(candidates)+len(positions))
	for _, c := range candidates {
		sectorByStock[c.StockID] = c.Sector
	}
	for _, p := range positions {
		sectorByStock[p.StockID] = p.Sector
	}

	for i := range signals {
		sig := signals[i]
		if err := o.repo.CreateSignal(ctx, &sig); err != nil {
			o.logger.Warn("signal_persist_failed", zap.String("symbol", sig.Symbol), zap.Error(err))
		}
		o.eventBus.Publish(events.NewSignalEvent(sig.Symbol, string(sig.SignalType), int(sig.System), sig.Price, sig.ATRN, sig.BreakoutLevel))

		sector := sectorByStock[sig.StockID]
		if err := rt.OrderManager.ProcessSignal(ctx, sig, market, sector, openUnits, balance.TotalValue, balance.BuyingPower); err != nil {
			o.logger.Warn("signal_execution_failed",
				zap.String("symbol", sig.Symbol), zap.String("type", string(sig.SignalType)), zap.Error(err))
			o.eventBus.Publish(events.NewRiskAlertEvent("execution_failed", "warning", sig.Symbol, err.Error()))
			continue
		}

		o.eventBus.Publish(events.NewOrderEvent(sig.Symbol, orderSideFor(sig.SignalType), string(types.OrderMethodMarket), 0, sig.Price, string(types.OrderStatusFilled)))

		switch sig.SignalType {
		case types.SignalEntryS1, types.SignalEntryS2:
			openUnits = append(openUnits, risk.OpenPositionUnits{StockID: sig.StockID, Sector: sector, Units: 1})
			openStockIDs[sig.StockID] = true
		case types.SignalPyramid:
			for j, u := range openUnits {
				if u.StockID == sig.StockID {
					openUnits[j].Units++
				}
			}
		case types.SignalExitS1, types.SignalExitS2, types.SignalStopLoss:
			filtered := openUnits[:0]
			for _, u := range openUnits {
				if u.StockID != sig.StockID {
					filtered = append(filtered, u)
				}
			}
			openUnits = filtered
			delete(openStockIDs, sig.StockID)
		}
	}

	if checkEntries {
		o.rebuildWatcher(ctx, rt, candidates, openStockIDs)
	}
}

func orderSideFor(signalType types.SignalType) string {
	switch signalType {
	case types.SignalEntryS1, types.SignalEntryS2, types.SignalPyramid:
		return string(types.OrderSideBuy)
	default:
		return string(types.OrderSideSell)
	}
}

// rebuildWatcher replaces the proximity watcher's contents with stocks whose
// candidate history places them within the breakout proximity band.
func (o *Orchestrator) rebuildWatcher(ctx context.Context, rt *MarketRuntime, candidates []types.Candidate, openStockIDs map[uint]bool) {
	rt.Watcher.Clear()

	for _, cand := range candidates {
		if openStockIDs[cand.StockID] {
			continue
		}

		bars, err := o.repo.GetPeriod(ctx, cand.StockID, 60)
		if err != nil || len(bars) < 56 {
			continue
		}

		highs := make([]decimal.Decimal, len(bars))
		lows := make([]decimal.Decimal, len(bars))
		closes := make([]decimal.Decimal, len(bars))
		for i, b := range bars {
			highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
		}

		n, err := atr.CalculateN(highs, lows, closes, o.config.Turtle.ATRPeriod)
		if err != nil {
			continue
		}

		previousS1Winner := true
		if w, err := o.repo.GetPreviousS1Winner(ctx, cand.StockID); err == nil {
			previousS1Winner = w
		}

		if ws, ok := turtle.WatchedStockFromCandidate(o.config.Turtle.Breakout, cand, highs, lows, closes, n, previousS1Winner); ok {
			rt.Watcher.Register(ws)
		}
	}
}

// runDailyReport logs the end-of-day portfolio summary; the notification
// layer (Telegram, etc.) subscribes to the published event to deliver it.
func (o *Orchestrator) runDailyReport(ctx context.Context, market types.Market) {
	rt, ok := o.runtime(market)
	if !ok {
		return
	}

	summary, err := rt.Portfolio.GetSummary(ctx, market)
	if err != nil {
		o.logger.Error("daily_report_summary_failed", zap.String("market", string(market)), zap.Error(err))
		return
	}

	o.logger.Info("daily_report",
		zap.String("market", string(market)),
		zap.String("total_value", summary.TotalValue.String()),
		zap.Int("positions", summary.PositionCount),
		zap.Int("total_units", summary.TotalUnits),
	)
}

// restartFastPoll cancels any fast-poll sub-loop left over from the previous
// cycle and starts a new one bounded to just under the next cycle's fire time.
func (o *Orchestrator) restartFastPoll(ctx context.Context, rt *MarketRuntime, window time.Duration) {
	rt.fastPollMu.Lock()
	if rt.cancelFastPoll != nil {
		rt.cancelFastPoll()
	}
	pollCtx, cancel := context.WithTimeout(ctx, window)
	rt.cancelFastPoll = cancel
	rt.fastPollMu.Unlock()

	go o.FastPoll(pollCtx, rt.Market)
}

// FastPoll runs a short-lived sub-loop checking every watched stock's live
// price against its stored breakout thresholds, independent of the main
// signal cycle's cadence. Intended to be started by the realtime-signal job
// and stopped automatically when ctx expires (at the next cycle boundary).
func (o *Orchestrator) FastPoll(ctx context.Context, market types.Market) {
	rt, ok := o.runtime(market)
	if !ok {
		return
	}

	interval := o.config.FastPollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.pollWatched(ctx, rt)
		}
	}
}

func (o *Orchestrator) pollWatched(ctx context.Context, rt *MarketRuntime) {
	watched := rt.Watcher.GetWatchedList()
	if len(watched) == 0 {
		return
	}

	symbols := make([]string, len(watched))
	bySymbol := make(map[string]turtle.WatchedStock, len(watched))
	for i, w := range watched {
		symbols[i] = w.Symbol
		bySymbol[w.Symbol] = w
	}

	quotes := workers.FetchQuotes(ctx, o.logger, o.pool, symbols, func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		return rt.Broker.GetCurrentPrice(ctx, symbol)
	})

	for symbol, price := range quotes.Prices {
		ws := bySymbol[symbol]
		rt.Watcher.UpdatePrice(ws.StockID, price)

		result, fired := rt.Watcher.CheckBreakout(ws.StockID, price)
		if !fired {
			continue
		}

		sig := types.Signal{
			StockID: ws.StockID, Symbol: ws.Symbol, Name: ws.Name, Timestamp: time.Now(),
			SignalType: result.SignalType, System: result.System, Price: price, ATRN: ws.N, BreakoutLevel: result.BreakoutLevel,
		}
		if err := o.repo.CreateSignal(ctx, &sig); err != nil {
			o.logger.Warn("fastpoll_signal_persist_failed", zap.String("symbol", sig.Symbol), zap.Error(err))
		}
		o.eventBus.Publish(events.NewSignalEvent(sig.Symbol, string(sig.SignalType), int(sig.System), sig.Price, sig.ATRN, sig.BreakoutLevel))
		o.logger.Info("fastpoll_breakout_detected", zap.String("symbol", sig.Symbol), zap.String("type", string(sig.SignalType)))
	}
}
