// Package types provides shared domain type definitions for the trading engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market is a closed set of supported exchanges.
type Market string

const (
	MarketKRX Market = "KRX"
	MarketUS  Market = "US"
)

// System distinguishes the Turtle entry/exit systems.
type System int

const (
	SystemNone System = 0
	System1    System = 1
	System2    System = 2
)

// SignalType is the closed set of signals the Turtle engine can emit.
type SignalType string

const (
	SignalEntryS1   SignalType = "ENTRY_S1"
	SignalEntryS2   SignalType = "ENTRY_S2"
	SignalExitS1    SignalType = "EXIT_S1"
	SignalExitS2    SignalType = "EXIT_S2"
	SignalStopLoss  SignalType = "STOP_LOSS"
	SignalPyramid   SignalType = "PYRAMID"
)

// StopLossType records which rule produced the active stop.
type StopLossType string

const (
	StopLossTypeATR2N   StopLossType = "2N"
	StopLossTypePercent StopLossType = "8%"
)

// OrderSide is buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderMethod is market or limit.
type OrderMethod string

const (
	OrderMethodMarket OrderMethod = "MARKET"
	OrderMethodLimit  OrderMethod = "LIMIT"
)

// OrderStatus tracks the lifecycle of an Order row.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// PositionStatus is OPEN or CLOSED.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// OHLCV is a single daily bar.
type OHLCV struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Stock is the tradable instrument identity; the trading core treats its
// fundamental fields as opaque, screener-owned data.
type Stock struct {
	ID                uint
	Symbol            string
	Name              string
	Market            Market
	Sector            string
	SharesOutstanding decimal.Decimal
	InstitutionalPct  decimal.Decimal
	Active            bool
}

// Signal is a write-once-then-flag record of a detected trading opportunity.
type Signal struct {
	ID            uint
	StockID       uint
	Symbol        string
	Name          string
	Timestamp     time.Time
	SignalType    SignalType
	System        System
	Price         decimal.Decimal
	ATRN          decimal.Decimal
	BreakoutLevel decimal.Decimal
	IsExecuted    bool
}

// Position is an open or closed Turtle position; EntryPrice is always the
// quantity-weighted average across all contributing fills.
type Position struct {
	ID            uint
	StockID       uint
	Symbol        string
	Sector        string
	Market        Market
	EntryDate     time.Time
	EntryPrice    decimal.Decimal
	EntrySystem   System
	Quantity      int64
	Units         int
	StopLossPrice decimal.Decimal
	StopLossType  StopLossType
	Status        PositionStatus
	ExitDate      *time.Time
	ExitPrice     decimal.Decimal
	ExitReason    SignalType
	PnL           decimal.Decimal
	PnLPercent    decimal.Decimal
}

// Order is an append-only record aside from its status transition.
type Order struct {
	ID            uint
	PositionID    *uint
	StockID       uint
	Side          OrderSide
	Method        OrderMethod
	Quantity      int64
	Price         decimal.Decimal
	Status        OrderStatus
	FilledQty     int64
	FilledPrice   decimal.Decimal
	BrokerOrderID string
	CreatedAt     time.Time
	FilledAt      *time.Time
}

// TradingState is the single mutable cross-process row per market, used for
// liveness and for the TUI to toggle trading on/off.
type TradingState struct {
	Market      Market
	IsActive    bool
	HeartbeatAt time.Time
}

// Candidate is the subset of CANSLIMScore the core is allowed to read.
type Candidate struct {
	StockID    uint
	Symbol     string
	Name       string
	Market     Market
	Sector     string
	TotalScore int
	RSRating   int
}

// AccountBalance mirrors the broker contract's balance shape.
type AccountBalance struct {
	TotalValue      decimal.Decimal
	CashBalance     decimal.Decimal
	SecuritiesValue decimal.Decimal
	BuyingPower     decimal.Decimal
}

// BrokerPosition is a broker-reported holding, distinct from the stored Position.
type BrokerPosition struct {
	Symbol          string
	Quantity        int64
	AvgPrice        decimal.Decimal
	CurrentPrice    decimal.Decimal
	MarketValue     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	UnrealizedPnLPct decimal.Decimal
}

// OrderRequest is the broker contract's inbound order shape.
type OrderRequest struct {
	Symbol string
	Side   OrderSide
	Qty    int64
	Method OrderMethod
	Price  decimal.Decimal
}

// OrderResponse is the broker contract's outbound order result.
type OrderResponse struct {
	Success     bool
	BrokerOrderID string
	Message     string
	Raw         map[string]any
}

// BrokerOrder is the broker's view of a previously placed order.
type BrokerOrder struct {
	BrokerOrderID string
	Symbol        string
	Side          OrderSide
	Qty           int64
	Status        string
	FilledQty     int64
	FilledPrice   decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
