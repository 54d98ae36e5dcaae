// Package store persists the trading core's domain rows through GORM over a
// pure-Go SQLite driver, and exposes the repository interfaces the signal
// engine, order manager, and portfolio manager depend on.
package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is the tradable instrument row. Fundamental/screener fields are
// opaque to the trading core but persisted here so the screener and core
// share one database.
type Stock struct {
	ID                uint   `gorm:"primarykey"`
	Symbol            string `gorm:"uniqueIndex;size:16;not null"`
	Name              string `gorm:"size:128"`
	Market            string `gorm:"size:8;index;not null"`
	Sector            string `gorm:"size:64;index"`
	SharesOutstanding decimal.Decimal `gorm:"type:decimal(24,4)"`
	InstitutionalPct  decimal.Decimal `gorm:"type:decimal(8,6)"`
	Active            bool            `gorm:"index;not null;default:true"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DailyPrice is one OHLCV bar. Unique on (StockID, Date) so re-ingesting a
// day is an upsert, never a duplicate row.
type DailyPrice struct {
	ID      uint `gorm:"primarykey"`
	StockID uint `gorm:"uniqueIndex:idx_daily_price_stock_date;not null"`
	Date    time.Time `gorm:"uniqueIndex:idx_daily_price_stock_date;not null"`
	Open    decimal.Decimal `gorm:"type:decimal(20,4)"`
	High    decimal.Decimal `gorm:"type:decimal(20,4)"`
	Low     decimal.Decimal `gorm:"type:decimal(20,4)"`
	Close   decimal.Decimal `gorm:"type:decimal(20,4)"`
	Volume  decimal.Decimal `gorm:"type:decimal(24,4)"`
}

// Fundamental is one reported fiscal-period financial statement snapshot.
// Unique on (StockID, FiscalYear, FiscalQuarter) so restatement ingestion
// overwrites rather than duplicates.
type Fundamental struct {
	ID             uint `gorm:"primarykey"`
	StockID        uint `gorm:"uniqueIndex:idx_fundamental_period;not null"`
	FiscalYear     int  `gorm:"uniqueIndex:idx_fundamental_period;not null"`
	FiscalQuarter  int  `gorm:"uniqueIndex:idx_fundamental_period;not null"`
	EPS            decimal.Decimal `gorm:"type:decimal(16,4)"`
	Revenue        decimal.Decimal `gorm:"type:decimal(24,2)"`
	NetIncome      decimal.Decimal `gorm:"type:decimal(24,2)"`
	ROE            decimal.Decimal `gorm:"type:decimal(8,4)"`
	ReportedAt     time.Time
}

// CANSLIMScore is one screening pass's per-stock result. Unique on
// (StockID, Date) so re-screening a day replaces the prior score.
type CANSLIMScore struct {
	ID         uint `gorm:"primarykey"`
	StockID    uint `gorm:"uniqueIndex:idx_canslim_score_stock_date;not null"`
	Date       time.Time `gorm:"uniqueIndex:idx_canslim_score_stock_date;not null"`
	TotalScore int  `gorm:"index;not null"`
	RSRating   int  `gorm:"index;not null"`
	Passed     bool `gorm:"index;not null"`
}

// Signal is a write-once-then-flag detected trading opportunity.
type Signal struct {
	ID            uint `gorm:"primarykey"`
	StockID       uint `gorm:"index;not null"`
	Symbol        string `gorm:"size:16;not null"`
	Name          string `gorm:"size:128"`
	Timestamp     time.Time `gorm:"index;not null"`
	SignalType    string `gorm:"size:16;index;not null"`
	System        int
	Price         decimal.Decimal `gorm:"type:decimal(20,4)"`
	ATRN          decimal.Decimal `gorm:"type:decimal(20,4)"`
	BreakoutLevel decimal.Decimal `gorm:"type:decimal(20,4)"`
	IsExecuted    bool            `gorm:"index;not null;default:false"`
}

// Position is an open or closed Turtle position.
type Position struct {
	ID            uint `gorm:"primarykey"`
	StockID       uint `gorm:"index;not null"`
	Symbol        string `gorm:"size:16;not null"`
	Sector        string `gorm:"size:64"`
	Market        string `gorm:"size:8;not null"`
	EntryDate     time.Time `gorm:"not null"`
	EntryPrice    decimal.Decimal `gorm:"type:decimal(20,4)"`
	EntrySystem   int
	Quantity      int64
	Units         int `gorm:"not null;default:1"`
	StopLossPrice decimal.Decimal `gorm:"type:decimal(20,4)"`
	StopLossType  string          `gorm:"size:8"`
	Status        string          `gorm:"size:8;index;not null"`
	ExitDate      *time.Time
	ExitPrice     decimal.Decimal `gorm:"type:decimal(20,4)"`
	ExitReason    string          `gorm:"size:16"`
	PnL           decimal.Decimal `gorm:"type:decimal(20,4)"`
	PnLPercent    decimal.Decimal `gorm:"type:decimal(10,6)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Order is an append-only execution record aside from its status transition.
type Order struct {
	ID            uint `gorm:"primarykey"`
	PositionID    *uint `gorm:"index"`
	StockID       uint  `gorm:"index;not null"`
	Side          string `gorm:"size:4;not null"`
	Method        string `gorm:"size:8;not null"`
	Quantity      int64
	Price         decimal.Decimal `gorm:"type:decimal(20,4)"`
	Status        string          `gorm:"size:10;index;not null"`
	FilledQty     int64
	FilledPrice   decimal.Decimal `gorm:"type:decimal(20,4)"`
	BrokerOrderID string          `gorm:"size:64;index"`
	CreatedAt     time.Time
	FilledAt      *time.Time
}

// TradingState is the single mutable row per market used for liveness and
// for a control surface to pause/resume trading.
type TradingState struct {
	Market      string `gorm:"primarykey;size:8"`
	IsActive    bool   `gorm:"not null;default:true"`
	HeartbeatAt time.Time
}

// S1Result tracks, per stock, whether the last closed System-1 position was
// profitable — the input to the "skip S1 after a loss" rule.
type S1Result struct {
	StockID uint `gorm:"primarykey"`
	IsWin   bool `gorm:"not null"`
}

// AllModels lists every row type for AutoMigrate.
func AllModels() []any {
	return []any{
		&Stock{}, &DailyPrice{}, &Fundamental{}, &CANSLIMScore{},
		&Signal{}, &Position{}, &Order{}, &TradingState{}, &S1Result{},
	}
}
