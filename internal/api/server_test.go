package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blood8879/turtle-canslim/internal/events"
	"github.com/blood8879/turtle-canslim/internal/execution"
	"github.com/blood8879/turtle-canslim/internal/portfolio"
	"github.com/blood8879/turtle-canslim/internal/risk"
	"github.com/blood8879/turtle-canslim/internal/store"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, *store.Repository) {
	t.Helper()
	logger := zap.NewNop()

	db, err := store.Open(logger, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	repo := store.New(db, logger)

	// GetTradingState auto-creates an active row the first time a market is
	// touched; touch it here so /status has something seeded to report.
	if _, err := repo.GetTradingState(context.Background(), types.MarketKRX); err != nil {
		t.Fatalf("seed trading state: %v", err)
	}

	broker := execution.NewPaperBroker(logger, nil, decimal.NewFromInt(10_000_000))
	mgr := portfolio.NewManager(logger, repo, broker, risk.DefaultUnitLimitConfig())

	bus := events.NewEventBus(logger, events.DefaultEventBusConfig())
	srv := New(logger, DefaultConfig(), repo, map[types.Market]*portfolio.Manager{types.MarketKRX: mgr}, bus)
	return srv, repo
}

func TestHandleStatus_ReportsSeededMarket(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status?market=KRX", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status status = %d, want 200", rec.Code)
	}
	var out map[string]types.TradingState
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	state, ok := out["KRX"]
	if !ok {
		t.Fatalf("expected KRX in response, got %+v", out)
	}
	if !state.IsActive {
		t.Errorf("expected seeded KRX trading state to be active")
	}
}

func TestHandlePortfolio_UnregisteredMarketReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/portfolio?market=US", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("GET /portfolio?market=US status = %d, want 400", rec.Code)
	}
}

func TestHandlePortfolio_RegisteredMarketReturnsSummary(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/portfolio?market=KRX", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /portfolio status = %d, want 200", rec.Code)
	}
	var summary portfolio.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.PositionCount != 0 {
		t.Errorf("expected zero open positions on a fresh ledger, got %d", summary.PositionCount)
	}
}

func TestHandlePerformance_EmptyHistoryReturnsZeroStats(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/performance?market=KRX", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /performance status = %d, want 200", rec.Code)
	}
	var stats portfolio.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalTrades != 0 {
		t.Errorf("expected zero trades with no closed positions, got %d", stats.TotalTrades)
	}
}
