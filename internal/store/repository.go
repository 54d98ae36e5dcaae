package store

import (
	"context"
	"errors"
	"time"

	"github.com/blood8879/turtle-canslim/internal/turtle"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repository is the facade the rest of the trading core depends on. It
// wraps *gorm.DB and exposes domain-shaped reads/writes instead of leaking
// GORM query-building into callers, mirroring the facade-over-domain-repos
// layout used elsewhere in the ecosystem.
type Repository struct {
	db      *gorm.DB
	logger  *zap.Logger
	quality *BarQualityValidator
}

// New builds a Repository over an already-migrated *gorm.DB.
func New(db *gorm.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger, quality: NewBarQualityValidator(logger)}
}

// WithTx runs fn inside a single database transaction; any error rolls the
// whole unit back. Used by the order manager so that an Order write, its
// Position mutation, and the triggering Signal's executed flag all commit or
// fail atomically.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

// GetPeriod satisfies turtle.PriceRepository: the last nDays bars ascending
// by date.
func (r *Repository) GetPeriod(ctx context.Context, stockID uint, nDays int) ([]types.OHLCV, error) {
	var rows []DailyPrice
	if err := r.db.WithContext(ctx).
		Where("stock_id = ?", stockID).
		Order("date desc").
		Limit(nDays).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]types.OHLCV, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		out[len(rows)-1-i] = types.OHLCV{
			Timestamp: row.Date, Open: row.Open, High: row.High, Low: row.Low, Close: row.Close, Volume: row.Volume,
		}
	}
	r.quality.Validate(stockID, out)
	return out, nil
}

// GetPreviousS1Winner satisfies turtle.S1ResultRepository; unseen stocks
// default to true (skip S1 only after a confirmed loss).
func (r *Repository) GetPreviousS1Winner(ctx context.Context, stockID uint) (bool, error) {
	var row S1Result
	err := r.db.WithContext(ctx).First(&row, "stock_id = ?", stockID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	return row.IsWin, nil
}

// SetPreviousS1Result upserts the last-closed-S1-position outcome.
func (r *Repository) SetPreviousS1Result(ctx context.Context, stockID uint, isWin bool) error {
	return r.db.WithContext(ctx).Save(&S1Result{StockID: stockID, IsWin: isWin}).Error
}

// GetByID satisfies turtle.StockInfoRepository.
func (r *Repository) GetByID(ctx context.Context, stockID uint) (turtle.StockInfo, error) {
	var s Stock
	if err := r.db.WithContext(ctx).First(&s, stockID).Error; err != nil {
		return turtle.StockInfo{}, err
	}
	return turtle.StockInfo{Symbol: s.Symbol, Name: s.Name, Sector: s.Sector, Market: types.Market(s.Market)}, nil
}

// UpsertDailyPrice inserts or overwrites the bar for (stockID, date).
func (r *Repository) UpsertDailyPrice(ctx context.Context, stockID uint, bar types.OHLCV) error {
	row := DailyPrice{
		StockID: stockID, Date: bar.Timestamp,
		Open: bar.Open, High: bar.High, Low: bar.Low, Close: bar.Close, Volume: bar.Volume,
	}
	return r.db.WithContext(ctx).
		Where("stock_id = ? AND date = ?", stockID, bar.Timestamp).
		Assign(row).
		FirstOrCreate(&row).Error
}

// ListActiveCandidates returns the latest passing CANSLIM scores for active
// stocks on the given market, joined with stock identity.
func (r *Repository) ListActiveCandidates(ctx context.Context, market types.Market, asOf time.Time) ([]types.Candidate, error) {
	var rows []struct {
		StockID    uint
		Symbol     string
		Name       string
		Sector     string
		TotalScore int
		RSRating   int
	}

	err := r.db.WithContext(ctx).
		Table("canslim_scores").
		Select("canslim_scores.stock_id, stocks.symbol, stocks.name, stocks.sector, canslim_scores.total_score, canslim_scores.rs_rating").
		Joins("JOIN stocks ON stocks.id = canslim_scores.stock_id").
		Where("stocks.market = ? AND stocks.active = ? AND canslim_scores.passed = ? AND canslim_scores.date = ?", string(market), true, true, asOf).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]types.Candidate, len(rows))
	for i, row := range rows {
		out[i] = types.Candidate{
			StockID: row.StockID, Symbol: row.Symbol, Name: row.Name,
			Market: market, Sector: row.Sector, TotalScore: row.TotalScore, RSRating: row.RSRating,
		}
	}
	return out, nil
}

// ListOpenPositions returns every OPEN position, optionally filtered by market.
func (r *Repository) ListOpenPositions(ctx context.Context, market types.Market) ([]types.Position, error) {
	var rows []Position
	q := r.db.WithContext(ctx).Where("status = ?", string(types.PositionStatusOpen))
	if market != "" {
		q = q.Where("market = ?", string(market))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainPositions(rows), nil
}

// ListClosedPositions returns every CLOSED position for a market, most
// recently exited first, for performance reporting.
func (r *Repository) ListClosedPositions(ctx context.Context, market types.Market) ([]types.Position, error) {
	var rows []Position
	q := r.db.WithContext(ctx).Where("status = ?", string(types.PositionStatusClosed)).Order("exit_date desc")
	if market != "" {
		q = q.Where("market = ?", string(market))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainPositions(rows), nil
}

// GetOpenPosition returns the open position for a stock, if any.
func (r *Repository) GetOpenPosition(ctx context.Context, stockID uint) (*types.Position, error) {
	var row Position
	err := r.db.WithContext(ctx).
		Where("stock_id = ? AND status = ?", stockID, string(types.PositionStatusOpen)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := toDomainPosition(row)
	return &p, nil
}

// CreateSignal inserts a freshly detected signal; ID is populated on return.
func (r *Repository) CreateSignal(ctx context.Context, s *types.Signal) error {
	row := Signal{
		StockID: s.StockID, Symbol: s.Symbol, Name: s.Name, Timestamp: s.Timestamp,
		SignalType: string(s.SignalType), System: int(s.System),
		Price: s.Price, ATRN: s.ATRN, BreakoutLevel: s.BreakoutLevel, IsExecuted: s.IsExecuted,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	s.ID = row.ID
	return nil
}

func toDomainPositions(rows []Position) []types.Position {
	out := make([]types.Position, len(rows))
	for i, row := range rows {
		out[i] = toDomainPosition(row)
	}
	return out
}

func toDomainPosition(row Position) types.Position {
	return types.Position{
		ID: row.ID, StockID: row.StockID, Symbol: row.Symbol, Sector: row.Sector, Market: types.Market(row.Market),
		EntryDate: row.EntryDate, EntryPrice: row.EntryPrice, EntrySystem: types.System(row.EntrySystem),
		Quantity: row.Quantity, Units: row.Units, StopLossPrice: row.StopLossPrice,
		StopLossType: types.StopLossType(row.StopLossType), Status: types.PositionStatus(row.Status),
		ExitDate: row.ExitDate, ExitPrice: row.ExitPrice, ExitReason: types.SignalType(row.ExitReason),
		PnL: row.PnL, PnLPercent: row.PnLPercent,
	}
}

// GetTradingState reads the per-market control row, creating a default
// active row the first time a market is touched.
func (r *Repository) GetTradingState(ctx context.Context, market types.Market) (types.TradingState, error) {
	var row TradingState
	err := r.db.WithContext(ctx).First(&row, "market = ?", string(market)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = TradingState{Market: string(market), IsActive: true, HeartbeatAt: time.Time{}}
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			return types.TradingState{}, err
		}
	} else if err != nil {
		return types.TradingState{}, err
	}
	return types.TradingState{Market: types.Market(row.Market), IsActive: row.IsActive, HeartbeatAt: row.HeartbeatAt}, nil
}

// Heartbeat updates a market's last-seen-alive timestamp.
func (r *Repository) Heartbeat(ctx context.Context, market types.Market, at time.Time) error {
	return r.db.WithContext(ctx).Model(&TradingState{}).
		Where("market = ?", string(market)).
		Update("heartbeat_at", at).Error
}
