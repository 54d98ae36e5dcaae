// Package turtle evaluates the three ordered signal lists (exits, pyramids,
// entries) that drive a trading cycle, and maintains the breakout proximity
// watcher between cycles.
package turtle

import (
	"context"
	"sync"

	"github.com/blood8879/turtle-canslim/internal/signals/atr"
	"github.com/blood8879/turtle-canslim/internal/signals/breakout"
	"github.com/blood8879/turtle-canslim/internal/signals/pyramid"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceRepository is the read-only market-data collaborator the engine
// consumes: ordered daily bars ascending by date.
type PriceRepository interface {
	GetPeriod(ctx context.Context, stockID uint, nDays int) ([]types.OHLCV, error)
}

// S1ResultRepository tracks, per stock, whether the last closed System-1
// position was profitable.
type S1ResultRepository interface {
	GetPreviousS1Winner(ctx context.Context, stockID uint) (bool, error)
}

// StockInfo is the cached {symbol, name} the engine attaches to signals
// without a per-signal lookup, per the caching design note.
type StockInfo struct {
	Symbol string
	Name   string
	Sector string
	Market types.Market
}

// StockInfoRepository resolves stock metadata for cache population.
type StockInfoRepository interface {
	GetByID(ctx context.Context, stockID uint) (StockInfo, error)
}

// Config bundles the breakout, pyramid, and ATR parameters the engine needs.
type Config struct {
	Breakout  breakout.Config
	Pyramid   pyramid.Config
	ATRPeriod int
}

// DefaultConfig mirrors the original project's defaults.
func DefaultConfig() Config {
	return Config{
		Breakout:  breakout.DefaultConfig(),
		Pyramid:   pyramid.DefaultConfig(),
		ATRPeriod: 20,
	}
}

// Engine evaluates exit/pyramid/entry signals per cycle.
type Engine struct {
	logger    *zap.Logger
	config    Config
	prices    PriceRepository
	s1Results S1ResultRepository
	stockInfo StockInfoRepository

	cacheMu sync.RWMutex
	cache   map[uint]StockInfo
}

// NewEngine builds a signal engine.
func NewEngine(logger *zap.Logger, config Config, prices PriceRepository, s1Results S1ResultRepository, stockInfo StockInfoRepository) *Engine {
	return &Engine{
		logger:    logger,
		config:    config,
		prices:    prices,
		s1Results: s1Results,
		stockInfo: stockInfo,
		cache:     make(map[uint]StockInfo),
	}
}

// InvalidateCache drops the cached stock-info entries; called when stock
// metadata is refreshed at ingestion time.
func (e *Engine) InvalidateCache() {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache = make(map[uint]StockInfo)
}

func (e *Engine) resolveStockInfo(ctx context.Context, stockID uint) (StockInfo, error) {
	e.cacheMu.RLock()
	info, ok := e.cache[stockID]
	e.cacheMu.RUnlock()
	if ok {
		return info, nil
	}

	info, err := e.stockInfo.GetByID(ctx, stockID)
	if err != nil {
		return StockInfo{}, err
	}

	e.cacheMu.Lock()
	e.cache[stockID] = info
	e.cacheMu.Unlock()
	return info, nil
}

func splitBars(bars []types.OHLCV) (highs, lows, closes []decimal.Decimal) {
	highs = make([]decimal.Decimal, len(bars))
	lows = make([]decimal.Decimal, len(bars))
	closes = make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	return
}

func currentPriceFor(stockID uint, closes []decimal.Decimal, realtime map[uint]decimal.Decimal) decimal.Decimal {
	if p, ok := realtime[stockID]; ok && !p.IsZero() {
		return p
	}
	return closes[len(closes)-1]
}

// OpenPositionView is the minimal open-position shape the engine needs.
type OpenPositionView struct {
	PositionID    uint
	StockID       uint
	EntrySystem   types.System
	Quantity      int64
	Units         int
	EntryPrice    decimal.Decimal
	StopLossPrice decimal.Decimal
}

// CheckExitSignals evaluates, for each open position, whether a STOP_LOSS or
// channel exit fires. At most one exit signal per position; stop-loss takes
// priority over the channel check.
func (e *Engine) CheckExitSignals(ctx context.Context, positions []OpenPositionView, realtime map[uint]decimal.Decimal) []types.Signal {
	var signals []types.Signal

	for _, pos := range positions {
		bars, err := e.prices.GetPeriod(ctx, pos.StockID, 25)
		if err != nil {
			e.logger.Warn("exit_signal_price_fetch_failed", zap.Uint("stockId", pos.StockID), zap.Error(err))
			continue
		}
		if len(bars) < 21 {
			continue
		}

		_, _, closes := splitBars(bars)
		current := currentPriceFor(pos.StockID, closes, realtime)
		info, err := e.resolveStockInfo(ctx, pos.StockID)
		if err != nil {
			e.logger.Warn("exit_signal_stock_info_failed", zap.Uint("stockId", pos.StockID), zap.Error(err))
			continue
		}

		if current.LessThanOrEqual(pos.StopLossPrice) {
			signals = append(signals, types.Signal{
				StockID: pos.StockID, Symbol: info.Symbol, Name: info.Name,
				SignalType: types.SignalStopLoss, System: pos.EntrySystem,
				Price: current, BreakoutLevel: pos.StopLossPrice,
			})
			continue
		}

		_, lows, _ := splitBars(bars)
		if result, fired := e.config.Breakout.CheckExit(current, lows, pos.EntrySystem); fired {
			signals = append(signals, types.Signal{
				StockID: pos.StockID, Symbol: info.Symbol, Name: info.Name,
				SignalType: result.SignalType, System: pos.EntrySystem,
				Price: current, BreakoutLevel: result.BreakoutLevel,
			})
		}
	}

	return signals
}

// CheckPyramidSignals evaluates, for each open position under its max unit
// count, whether price has reached the next pyramid rung.
func (e *Engine) CheckPyramidSignals(ctx context.Context, positions []OpenPositionView) []types.Signal {
	var signals []types.Signal

	for _, pos := range positions {
		bars, err := e.prices.GetPeriod(ctx, pos.StockID, 25)
		if err != nil {
			e.logger.Warn("pyramid_signal_price_fetch_failed", zap.Uint("stockId", pos.StockID), zap.Error(err))
			continue
		}
		if len(bars) < 21 {
			continue
		}

		highs, lows, closes := splitBars(bars)
		n, err := atr.CalculateN(highs, lows, closes, e.config.ATRPeriod)
		if err != nil {
			continue
		}
		current := closes[len(closes)-1]

		sig, fired := e.config.Pyramid.CheckSignal(current, pos.EntryPrice, n, pos.Units)
		if !fired {
			continue
		}

		info, err := e.resolveStockInfo(ctx, pos.StockID)
		if err != nil {
			e.logger.Warn("pyramid_signal_stock_info_failed", zap.Uint("stockId", pos.StockID), zap.Error(err))
			continue
		}

		signals = append(signals, types.Signal{
			StockID: pos.StockID, Symbol: info.Symbol, Name: info.Name,
			SignalType: types.SignalPyramid, System: pos.EntrySystem,
			Price: current, ATRN: n, BreakoutLevel: sig.NextEntryPrice,
		})
	}

	return signals
}

// CheckEntrySignals evaluates each candidate with no open position for a
// System-1 or System-2 breakout entry.
func (e *Engine) CheckEntrySignals(ctx context.Context, candidates []types.Candidate, openStockIDs map[uint]bool, realtime map[uint]decimal.Decimal) []types.Signal {
	var signals []types.Signal

	for _, cand := range candidates {
		if openStockIDs[cand.StockID] {
			continue
		}

		bars, err := e.prices.GetPeriod(ctx, cand.StockID, 60)
		if err != nil {
			e.logger.Warn("entry_signal_price_fetch_failed", zap.Uint("stockId", cand.StockID), zap.Error(err))
			continue
		}
		if len(bars) < 56 {
			continue
		}

		highs, lows, closes := splitBars(bars)
		n, err := atr.CalculateN(highs, lows, closes, e.config.ATRPeriod)
		if err != nil {
			continue
		}

		current := currentPriceFor(cand.StockID, closes, realtime)

		previousS1Winner := true
		if e.s1Results != nil {
			if w, err := e.s1Results.GetPreviousS1Winner(ctx, cand.StockID); err == nil {
				previousS1Winner = w
			}
		}

		result, fired := e.config.Breakout.CheckEntry(current, highs, previousS1Winner)
		if !fired {
			continue
		}

		signals = append(signals, types.Signal{
			StockID: cand.StockID, Symbol: cand.Symbol, Name: cand.Name,
			SignalType: result.SignalType, System: result.System,
			Price: current, ATRN: n, BreakoutLevel: result.BreakoutLevel,
		})
	}

	return signals
}
