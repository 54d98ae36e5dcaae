// Package main replays stored historical OHLCV bars through the same
// signal engine and order manager the live trading core uses, against an
// in-process paper broker and a scratch in-memory position ledger, and
// prints the resulting performance summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blood8879/turtle-canslim/internal/backtester"
	"github.com/blood8879/turtle-canslim/internal/execution"
	"github.com/blood8879/turtle-canslim/internal/risk"
	"github.com/blood8879/turtle-canslim/internal/signals/pyramid"
	"github.com/blood8879/turtle-canslim/internal/signals/stoploss"
	"github.com/blood8879/turtle-canslim/internal/store"
	"github.com/blood8879/turtle-canslim/internal/turtle"
	"github.com/blood8879/turtle-canslim/pkg/config"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	stockIDsFlag := flag.String("stock-ids", "", "Comma-separated stock IDs to backtest")
	marketFlag := flag.String("market", "KRX", "Market tag attached to opened positions")
	startFlag := flag.String("start", "", "Start date YYYY-MM-DD (default: earliest available bar)")
	endFlag := flag.String("end", "", "End date YYYY-MM-DD (default: latest available bar)")
	capitalFlag := flag.Float64("capital", 10_000_000, "Starting capital")
	configPath := flag.String("config", "config/settings.yaml", "Path to the settings YAML file")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	stockIDs, err := parseStockIDs(*stockIDsFlag)
	if err != nil || len(stockIDs) == 0 {
		fmt.Fprintln(os.Stderr, "backtest: -stock-ids is required, e.g. -stock-ids=1,2,3")
		os.Exit(1)
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: config load failed: %v\n", err)
		os.Exit(1)
	}

	dataDB, err := store.Open(logger, settings.Data.SQLitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: open data store: %v\n", err)
		os.Exit(1)
	}
	dataRepo := store.New(dataDB, logger)

	bookDB, err := store.Open(logger, ":memory:")
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: open scratch ledger: %v\n", err)
		os.Exit(1)
	}
	bookRepo := store.New(bookDB, logger)

	ctx := context.Background()
	market := types.Market(strings.ToUpper(*marketFlag))

	replay, stockInfo, calendar, err := loadHistory(ctx, dataRepo, stockIDs, *startFlag, *endFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
	if len(calendar) == 0 {
		fmt.Fprintln(os.Stderr, "backtest: no bars in the requested date range")
		os.Exit(1)
	}

	engineConfig := turtle.DefaultConfig()
	// bookRepo doubles as the engine's S1ResultRepository: ExecuteExit
	// records each closed System-1 trade's outcome there, and the next
	// entry check for that stock needs to read the same record back.
	engine := turtle.NewEngine(logger, engineConfig, replay, bookRepo, stockInfoLookup(stockInfo))

	startingCash := decimal.NewFromFloat(*capitalFlag)
	broker := execution.NewPaperBroker(logger, nil, startingCash)
	sizer := risk.NewPositionSizer(logger, risk.DefaultSizerConfig(), stoploss.DefaultConfig())
	units := risk.NewUnitLimitManager(logger, risk.DefaultUnitLimitConfig())
	orderMgr := execution.NewOrderManager(logger, bookRepo, broker, sizer, units, pyramid.DefaultConfig(), stoploss.DefaultConfig(), execution.DefaultSlippageConfig())

	var equity []backtester.EquityPoint

	for _, day := range calendar {
		replay.advanceTo(day)

		realtime := make(map[uint]decimal.Decimal, len(stockIDs))
		for _, id := range stockIDs {
			bars := replay.bars[id][:replay.cursor[id]+1]
			if len(bars) == 0 {
				continue
			}
			lastClose := bars[len(bars)-1].Close
			realtime[id] = lastClose
			broker.SeedPrice(stockInfo[id].Symbol, lastClose)
		}

		positions, err := bookRepo.ListOpenPositions(ctx, market)
		if err != nil {
			logger.Warn("list_open_positions_failed", zap.Error(err))
			continue
		}
		openStockIDs := make(map[uint]bool, len(positions))
		openUnits := make([]risk.OpenPositionUnits, len(positions))
		openViews := make([]turtle.OpenPositionView, len(positions))
		for i, p := range positions {
			openStockIDs[p.StockID] = true
			openUnits[i] = risk.OpenPositionUnits{StockID: p.StockID, Sector: p.Sector, Units: p.Units}
			openViews[i] = turtle.OpenPositionView{
				PositionID: p.ID, StockID: p.StockID, EntrySystem: p.EntrySystem,
				Quantity: p.Quantity, Units: p.Units, EntryPrice: p.EntryPrice, StopLossPrice: p.StopLossPrice,
			}
		}

		candidates := make([]types.Candidate, 0, len(stockIDs))
		for _, id := range stockIDs {
			info := stockInfo[id]
			candidates = append(candidates, types.Candidate{
				StockID: id, Symbol: info.Symbol, Name: info.Name, Market: market, Sector: info.Sector,
				TotalScore: 100, RSRating: 90,
			})
		}

		signals := engine.CheckExitSignals(ctx, openViews, realtime)
		signals = append(signals, engine.CheckPyramidSignals(ctx, openViews)...)
		signals = append(signals, engine.CheckEntrySignals(ctx, candidates, openStockIDs, realtime)...)

		if len(signals) > 0 {
			balance, err := broker.GetBalance(ctx)
			if err != nil {
				logger.Warn("get_balance_failed", zap.Error(err))
				continue
			}
			for _, sig := range signals {
				sector := stockInfo[sig.StockID].Sector
				if err := orderMgr.ProcessSignal(ctx, sig, market, sector, openUnits, balance.TotalValue, balance.BuyingPower); err != nil {
					logger.Warn("signal_execution_failed", zap.String("symbol", sig.Symbol), zap.Error(err))
				}
			}
		}

		balance, err := broker.GetBalance(ctx)
		if err != nil {
			logger.Warn("equity_mark_failed", zap.Error(err))
			continue
		}
		equity = append(equity, backtester.EquityPoint{Date: day, Equity: balance.TotalValue})
	}

	closed, err := bookRepo.ListClosedPositions(ctx, market)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: list closed positions: %v\n", err)
		os.Exit(1)
	}

	summary := backtester.Calculate(startingCash, closed, equity)
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: encode summary: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func parseStockIDs(flagValue string) ([]uint, error) {
	if flagValue == "" {
		return nil, nil
	}
	parts := strings.Split(flagValue, ",")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stock id %q: %w", p, err)
		}
		ids = append(ids, uint(n))
	}
	return ids, nil
}

// replayPriceRepository serves turtle.Engine's PriceRepository contract
// against a fixed, pre-loaded bar history per stock, windowed to whatever
// day the replay loop has currently advanced to.
type replayPriceRepository struct {
	bars   map[uint][]types.OHLCV
	cursor map[uint]int
}

func (r *replayPriceRepository) advanceTo(day time.Time) {
	for id, series := range r.bars {
		idx := r.cursor[id]
		for idx+1 < len(series) && !series[idx+1].Timestamp.After(day) {
			idx++
		}
		r.cursor[id] = idx
	}
}

func (r *replayPriceRepository) GetPeriod(ctx context.Context, stockID uint, nDays int) ([]types.OHLCV, error) {
	series := r.bars[stockID]
	end := r.cursor[stockID] + 1
	if end > len(series) {
		end = len(series)
	}
	start := end - nDays
	if start < 0 {
		start = 0
	}
	out := make([]types.OHLCV, end-start)
	copy(out, series[start:end])
	return out, nil
}

// loadHistory pulls each stock's full bar history and metadata once, and
// builds the simulated trading calendar: every distinct bar date across the
// requested universe, within [start, end], ascending.
func loadHistory(ctx context.Context, repo *store.Repository, stockIDs []uint, startFlag, endFlag string) (*replayPriceRepository, map[uint]turtle.StockInfo, []time.Time, error) {
	var start, end time.Time
	var err error
	if startFlag != "" {
		start, err = time.Parse("2006-01-02", startFlag)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid -start: %w", err)
		}
	}
	if endFlag != "" {
		end, err = time.Parse("2006-01-02", endFlag)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid -end: %w", err)
		}
	}

	replay := &replayPriceRepository{bars: make(map[uint][]types.OHLCV), cursor: make(map[uint]int)}
	stockInfo := make(map[uint]turtle.StockInfo, len(stockIDs))
	daySet := make(map[time.Time]bool)

	for _, id := range stockIDs {
		bars, err := repo.GetPeriod(ctx, id, 100_000)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load history for stock %d: %w", id, err)
		}
		replay.bars[id] = bars
		replay.cursor[id] = -1

		info, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load stock metadata for %d: %w", id, err)
		}
		stockInfo[id] = info

		for _, bar := range bars {
			if !start.IsZero() && bar.Timestamp.Before(start) {
				continue
			}
			if !end.IsZero() && bar.Timestamp.After(end) {
				continue
			}
			daySet[bar.Timestamp] = true
		}
	}

	calendar := make([]time.Time, 0, len(daySet))
	for d := range daySet {
		calendar = append(calendar, d)
	}
	sort.Slice(calendar, func(i, j int) bool { return calendar[i].Before(calendar[j]) })

	return replay, stockInfo, calendar, nil
}

type stockInfoLookup map[uint]turtle.StockInfo

func (l stockInfoLookup) GetByID(ctx context.Context, stockID uint) (turtle.StockInfo, error) {
	info, ok := l[stockID]
	if !ok {
		return turtle.StockInfo{}, fmt.Errorf("unknown stock id %d", stockID)
	}
	return info, nil
}
