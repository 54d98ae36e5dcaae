package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/blood8879/turtle-canslim/internal/risk"
	"github.com/blood8879/turtle-canslim/internal/store"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeBroker returns fixed balances and per-symbol prices, enough to drive
// Manager's quote-joining logic without a real broker connection.
type fakeBroker struct {
	balance types.AccountBalance
	prices  map[string]decimal.Decimal
	failFor string
}

func (b *fakeBroker) Connect(ctx context.Context) error    { return nil }
func (b *fakeBroker) Disconnect(ctx context.Context) error { return nil }
func (b *fakeBroker) IsPaperTrading() bool                 { return true }
func (b *fakeBroker) GetBalance(ctx context.Context) (types.AccountBalance, error) {
	return b.balance, nil
}
func (b *fakeBroker) GetPositions(ctx context.Context) ([]types.BrokerPosition, error) {
	return nil, nil
}
func (b *fakeBroker) GetPosition(ctx context.Context, symbol string) (*types.BrokerPosition, error) {
	return nil, nil
}
func (b *fakeBroker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error) {
	return types.OrderResponse{}, nil
}
func (b *fakeBroker) CancelOrder(ctx context.Context, brokerOrderID string) error { return nil }
func (b *fakeBroker) GetOrderStatus(ctx context.Context, brokerOrderID string) (types.BrokerOrder, error) {
	return types.BrokerOrder{}, nil
}
func (b *fakeBroker) GetOpenOrders(ctx context.Context) ([]types.BrokerOrder, error) { return nil, nil }
func (b *fakeBroker) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol == b.failFor {
		return decimal.Decimal{}, context.DeadlineExceeded
	}
	return b.prices[symbol], nil
}

func newTestRepo(t *testing.T) *store.Repository {
	t.Helper()
	db, err := store.Open(zap.NewNop(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store.New(db, zap.NewNop())
}

func seedPosition(t *testing.T, repo *store.Repository, p types.Position) types.Position {
	t.Helper()
	if err := repo.WithTx(context.Background(), func(tx *gorm.DB) error {
		return store.CreatePositionTx(tx, &p)
	}); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	return p
}

func TestGetSummary_AggregatesUnrealizedPnLAndUnits(t *testing.T) {
	repo := newTestRepo(t)
	seedPosition(t, repo, types.Position{
		StockID: 1, Symbol: "AAPL", Market: types.MarketUS, EntryDate: time.Now(),
		EntryPrice: dec("100"), Quantity: 10, Units: 1, StopLossPrice: dec("95"),
	})

	broker := &fakeBroker{
		balance: types.AccountBalance{TotalValue: dec("11000"), CashBalance: dec("10000"), SecuritiesValue: dec("1000")},
		prices:  map[string]decimal.Decimal{"AAPL": dec("120")},
	}
	mgr := NewManager(zap.NewNop(), repo, broker, risk.DefaultUnitLimitConfig())

	summary, err := mgr.GetSummary(context.Background(), types.MarketUS)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if summary.PositionCount != 1 {
		t.Fatalf("PositionCount = %d, want 1", summary.PositionCount)
	}
	// (120-100)*10 = 200 unrealized
	if !summary.TotalUnrealizedPnL.Equal(dec("200")) {
		t.Errorf("TotalUnrealizedPnL = %s, want 200", summary.TotalUnrealizedPnL)
	}
	if summary.TotalUnits != 1 {
		t.Errorf("TotalUnits = %d, want 1", summary.TotalUnits)
	}
	if summary.AvailableUnits != risk.DefaultUnitLimitConfig().MaxUnitsTotal-1 {
		t.Errorf("AvailableUnits = %d, want %d", summary.AvailableUnits, risk.DefaultUnitLimitConfig().MaxUnitsTotal-1)
	}
}

func TestGetSummary_FallsBackToEntryPriceOnQuoteFailure(t *testing.T) {
	repo := newTestRepo(t)
	seedPosition(t, repo, types.Position{
		StockID: 1, Symbol: "AAPL", Market: types.MarketUS, EntryDate: time.Now(),
		EntryPrice: dec("100"), Quantity: 10, Units: 1, StopLossPrice: dec("95"),
	})

	broker := &fakeBroker{
		balance: types.AccountBalance{TotalValue: dec("10000"), CashBalance: dec("10000")},
		prices:  map[string]decimal.Decimal{},
		failFor: "AAPL",
	}
	mgr := NewManager(zap.NewNop(), repo, broker, risk.DefaultUnitLimitConfig())

	summary, err := mgr.GetSummary(context.Background(), types.MarketUS)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if !summary.Positions[0].CurrentPrice.Equal(dec("100")) {
		t.Errorf("CurrentPrice = %s, want 100 (entry-price fallback)", summary.Positions[0].CurrentPrice)
	}
	if !summary.Positions[0].UnrealizedPnL.IsZero() {
		t.Errorf("UnrealizedPnL = %s, want 0 when quote falls back to entry", summary.Positions[0].UnrealizedPnL)
	}
}

func TestGetRiskAnalysis_FlagsPositionsWithinStopThreshold(t *testing.T) {
	repo := newTestRepo(t)
	seedPosition(t, repo, types.Position{
		StockID: 1, Symbol: "TIGHT", Market: types.MarketUS, EntryDate: time.Now(),
		EntryPrice: dec("100"), Quantity: 10, Units: 1, StopLossPrice: dec("98"),
	})
	seedPosition(t, repo, types.Position{
		StockID: 2, Symbol: "WIDE", Market: types.MarketUS, EntryDate: time.Now(),
		EntryPrice: dec("100"), Quantity: 10, Units: 1, StopLossPrice: dec("80"),
	})

	broker := &fakeBroker{
		balance: types.AccountBalance{},
		prices:  map[string]decimal.Decimal{"TIGHT": dec("100"), "WIDE": dec("100")},
	}
	mgr := NewManager(zap.NewNop(), repo, broker, risk.DefaultUnitLimitConfig())

	riskView, err := mgr.GetRiskAnalysis(context.Background(), types.MarketUS)
	if err != nil {
		t.Fatalf("GetRiskAnalysis: %v", err)
	}
	if len(riskView.PositionsAtRisk) != 1 || riskView.PositionsAtRisk[0].Symbol != "TIGHT" {
		t.Errorf("PositionsAtRisk = %+v, want only TIGHT (2%% from stop, within the 5%% threshold)", riskView.PositionsAtRisk)
	}
}
