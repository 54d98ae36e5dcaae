package backtester

import (
	"testing"
	"time"

	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculate_NoTradesReturnsFlatSummary(t *testing.T) {
	s := Calculate(dec("10000"), nil, nil)
	if !s.FinalCapital.Equal(dec("10000")) {
		t.Errorf("FinalCapital = %s, want 10000", s.FinalCapital)
	}
	if s.TotalTrades != 0 {
		t.Errorf("TotalTrades = %d, want 0", s.TotalTrades)
	}
}

func TestCalculate_WinRateAndProfitFactor(t *testing.T) {
	closed := []types.Position{
		{PnL: dec("500")},
		{PnL: dec("-200")},
		{PnL: dec("300")},
	}
	equity := []EquityPoint{
		{Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Equity: dec("10000")},
		{Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Equity: dec("10600")},
	}

	s := Calculate(dec("10000"), closed, equity)

	if s.TotalTrades != 3 {
		t.Fatalf("TotalTrades = %d, want 3", s.TotalTrades)
	}
	wantWinRate := dec("2").Div(dec("3"))
	if !s.WinRate.Round(6).Equal(wantWinRate.Round(6)) {
		t.Errorf("WinRate = %s, want %s", s.WinRate, wantWinRate)
	}
	wantProfitFactor := dec("800").Div(dec("200"))
	if !s.ProfitFactor.Equal(wantProfitFactor) {
		t.Errorf("ProfitFactor = %s, want %s", s.ProfitFactor, wantProfitFactor)
	}
}

func TestCalculate_MaxDrawdownTracksPeakToTroughDecline(t *testing.T) {
	equity := []EquityPoint{
		{Equity: dec("10000")},
		{Equity: dec("12000")}, // new peak
		{Equity: dec("9000")},  // 25% drawdown from peak
		{Equity: dec("11000")},
	}

	s := Calculate(dec("10000"), nil, equity)

	want := dec("0.25")
	if !s.MaxDrawdown.Equal(want) {
		t.Errorf("MaxDrawdown = %s, want %s", s.MaxDrawdown, want)
	}
}

func TestCalculate_TotalReturnMatchesFinalOverInitial(t *testing.T) {
	equity := []EquityPoint{
		{Equity: dec("10000")},
		{Equity: dec("11500")},
	}

	s := Calculate(dec("10000"), nil, equity)

	want := dec("0.15")
	if !s.TotalReturn.Equal(want) {
		t.Errorf("TotalReturn = %s, want %s", s.TotalReturn, want)
	}
}
