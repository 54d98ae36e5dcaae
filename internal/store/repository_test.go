package store

import (
	"context"
	"testing"
	"time"

	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := Open(zap.NewNop(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return New(db, zap.NewNop())
}

func TestUpsertDailyPrice_InsertsThenOverwritesSameDay(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.UpsertDailyPrice(ctx, 1, types.OHLCV{Timestamp: day, Open: decimal.NewFromInt(100), High: decimal.NewFromInt(102), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(101)}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.UpsertDailyPrice(ctx, 1, types.OHLCV{Timestamp: day, Open: decimal.NewFromInt(100), High: decimal.NewFromInt(110), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(108)}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	bars, err := repo.GetPeriod(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetPeriod: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("len(bars) = %d, want 1 (re-ingest should overwrite, not duplicate)", len(bars))
	}
	if !bars[0].Close.Equal(decimal.NewFromInt(108)) {
		t.Errorf("Close = %s, want 108 from the overwrite", bars[0].Close)
	}
}

func TestGetPeriod_ReturnsAscendingByDate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		day := base.AddDate(0, 0, i)
		if err := repo.UpsertDailyPrice(ctx, 1, types.OHLCV{Timestamp: day, Open: decimal.NewFromInt(int64(100 + i)), High: decimal.NewFromInt(int64(101 + i)), Low: decimal.NewFromInt(int64(99 + i)), Close: decimal.NewFromInt(int64(100 + i))}); err != nil {
			t.Fatalf("upsert day %d: %v", i, err)
		}
	}

	bars, err := repo.GetPeriod(ctx, 1, 3)
	if err != nil {
		t.Fatalf("GetPeriod: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("len(bars) = %d, want 3", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			t.Errorf("bars not ascending: %v then %v", bars[i-1].Timestamp, bars[i].Timestamp)
		}
	}
	if !bars[len(bars)-1].Timestamp.Equal(base.AddDate(0, 0, 4)) {
		t.Errorf("last bar date = %v, want %v", bars[len(bars)-1].Timestamp, base.AddDate(0, 0, 4))
	}
}

func TestGetPreviousS1Winner_DefaultsTrueForUnseenStock(t *testing.T) {
	repo := openTestRepo(t)

	winner, err := repo.GetPreviousS1Winner(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetPreviousS1Winner: %v", err)
	}
	if !winner {
		t.Errorf("expected default true for an unseen stock")
	}
}

func TestSetPreviousS1Result_UpsertsAndIsReadBack(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.SetPreviousS1Result(ctx, 1, false); err != nil {
		t.Fatalf("SetPreviousS1Result: %v", err)
	}
	winner, err := repo.GetPreviousS1Winner(ctx, 1)
	if err != nil {
		t.Fatalf("GetPreviousS1Winner: %v", err)
	}
	if winner {
		t.Errorf("expected false after recording a loss")
	}

	if err := repo.SetPreviousS1Result(ctx, 1, true); err != nil {
		t.Fatalf("SetPreviousS1Result (overwrite): %v", err)
	}
	winner, err = repo.GetPreviousS1Winner(ctx, 1)
	if err != nil {
		t.Fatalf("GetPreviousS1Winner: %v", err)
	}
	if !winner {
		t.Errorf("expected true after overwriting with a win")
	}
}

func TestGetOpenPosition_NilWhenNoneOpen(t *testing.T) {
	repo := openTestRepo(t)

	pos, err := repo.GetOpenPosition(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetOpenPosition: %v", err)
	}
	if pos != nil {
		t.Errorf("expected nil, got %+v", pos)
	}
}

func TestListOpenPositions_FiltersByMarket(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	krx := Position{StockID: 1, Symbol: "005930", Market: string(types.MarketKRX), EntryDate: time.Now(), EntryPrice: decimal.NewFromInt(100), Quantity: 10, Units: 1, Status: string(types.PositionStatusOpen)}
	us := Position{StockID: 2, Symbol: "AAPL", Market: string(types.MarketUS), EntryDate: time.Now(), EntryPrice: decimal.NewFromInt(100), Quantity: 10, Units: 1, Status: string(types.PositionStatusOpen)}
	if err := repo.db.Create(&krx).Error; err != nil {
		t.Fatalf("seed krx position: %v", err)
	}
	if err := repo.db.Create(&us).Error; err != nil {
		t.Fatalf("seed us position: %v", err)
	}

	all, err := repo.ListOpenPositions(ctx, "")
	if err != nil {
		t.Fatalf("ListOpenPositions(all): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}

	krxOnly, err := repo.ListOpenPositions(ctx, types.MarketKRX)
	if err != nil {
		t.Fatalf("ListOpenPositions(KRX): %v", err)
	}
	if len(krxOnly) != 1 || krxOnly[0].Symbol != "005930" {
		t.Errorf("krxOnly = %+v, want just the KRX position", krxOnly)
	}
}

func TestListClosedPositions_OrderedByMostRecentExitFirst(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	rows := []Position{
		{StockID: 1, Symbol: "A", Market: string(types.MarketUS), EntryDate: older, EntryPrice: decimal.NewFromInt(100), Status: string(types.PositionStatusClosed), ExitDate: &older},
		{StockID: 2, Symbol: "B", Market: string(types.MarketUS), EntryDate: older, EntryPrice: decimal.NewFromInt(100), Status: string(types.PositionStatusClosed), ExitDate: &newer},
	}
	for i := range rows {
		if err := repo.db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed closed position %d: %v", i, err)
		}
	}

	closed, err := repo.ListClosedPositions(ctx, types.MarketUS)
	if err != nil {
		t.Fatalf("ListClosedPositions: %v", err)
	}
	if len(closed) != 2 {
		t.Fatalf("len(closed) = %d, want 2", len(closed))
	}
	if closed[0].Symbol != "B" {
		t.Errorf("closed[0].Symbol = %q, want %q (most recently exited first)", closed[0].Symbol, "B")
	}
}

func TestGetTradingState_CreatesDefaultActiveRowOnFirstTouch(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	state, err := repo.GetTradingState(ctx, types.MarketUS)
	if err != nil {
		t.Fatalf("GetTradingState: %v", err)
	}
	if !state.IsActive {
		t.Errorf("IsActive = false, want a freshly created row to default active")
	}

	again, err := repo.GetTradingState(ctx, types.MarketUS)
	if err != nil {
		t.Fatalf("GetTradingState (second read): %v", err)
	}
	if again.Market != types.MarketUS {
		t.Errorf("Market = %q, want %q", again.Market, types.MarketUS)
	}
}

func TestHeartbeat_UpdatesLastSeenTimestamp(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetTradingState(ctx, types.MarketUS); err != nil {
		t.Fatalf("GetTradingState: %v", err)
	}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := repo.Heartbeat(ctx, types.MarketUS, at); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	state, err := repo.GetTradingState(ctx, types.MarketUS)
	if err != nil {
		t.Fatalf("GetTradingState (after heartbeat): %v", err)
	}
	if !state.HeartbeatAt.Equal(at) {
		t.Errorf("HeartbeatAt = %v, want %v", state.HeartbeatAt, at)
	}
}

func TestCreateSignal_PopulatesID(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	sig := &types.Signal{
		StockID: 1, Symbol: "AAPL", SignalType: types.SignalEntryS2, System: types.System2,
		Timestamp: time.Now(), Price: decimal.NewFromInt(100), ATRN: decimal.NewFromInt(2),
	}
	if err := repo.CreateSignal(ctx, sig); err != nil {
		t.Fatalf("CreateSignal: %v", err)
	}
	if sig.ID == 0 {
		t.Errorf("expected CreateSignal to populate a non-zero ID")
	}
}

func TestListActiveCandidates_FiltersByMarketActivePassedAndDate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	active := Stock{Symbol: "AAPL", Name: "Apple", Market: string(types.MarketUS), Sector: "tech", Active: true}
	inactive := Stock{Symbol: "DEAD", Name: "Defunct", Market: string(types.MarketUS), Sector: "tech", Active: false}
	if err := repo.db.Create(&active).Error; err != nil {
		t.Fatalf("seed active stock: %v", err)
	}
	if err := repo.db.Create(&inactive).Error; err != nil {
		t.Fatalf("seed inactive stock: %v", err)
	}

	scores := []CANSLIMScore{
		{StockID: active.ID, Date: asOf, TotalScore: 90, RSRating: 95, Passed: true},
		{StockID: inactive.ID, Date: asOf, TotalScore: 95, RSRating: 99, Passed: true},
	}
	for i := range scores {
		if err := repo.db.Create(&scores[i]).Error; err != nil {
			t.Fatalf("seed score %d: %v", i, err)
		}
	}

	candidates, err := repo.ListActiveCandidates(ctx, types.MarketUS, asOf)
	if err != nil {
		t.Fatalf("ListActiveCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("len(candidates) = %d, want 1 (inactive stock excluded)", len(candidates))
	}
	if candidates[0].Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", candidates[0].Symbol)
	}
}
