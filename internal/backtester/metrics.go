// Package backtester computes the summary report for a finished backtest
// run: total/annualized return, Sharpe, max drawdown, win rate, and profit
// factor, derived from the closed positions and daily equity curve the
// replay loop in cmd/backtest produces by driving turtle.Engine and
// execution.OrderManager against a historical PaperBroker.
package backtester

import (
	"math"
	"time"

	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/blood8879/turtle-canslim/pkg/utils"
	"github.com/shopspring/decimal"
)

// EquityPoint is one day's mark-to-market account value.
type EquityPoint struct {
	Date   time.Time
	Equity decimal.Decimal
}

// Summary is the finished-run report cmd/backtest prints and writes.
type Summary struct {
	InitialCapital decimal.Decimal
	FinalCapital   decimal.Decimal
	TotalReturn    decimal.Decimal
	CAGR           decimal.Decimal
	MaxDrawdown    decimal.Decimal
	SharpeRatio    decimal.Decimal
	WinRate        decimal.Decimal
	ProfitFactor   decimal.Decimal
	TotalTrades    int
	Trades         []types.Position
}

// Calculate derives a Summary from the closed positions and daily equity
// curve a backtest run accumulated.
func Calculate(initialCapital decimal.Decimal, closed []types.Position, equity []EquityPoint) Summary {
	s := Summary{InitialCapital: initialCapital, Trades: closed, TotalTrades: len(closed)}
	if len(equity) == 0 {
		s.FinalCapital = initialCapital
		return s
	}

	s.FinalCapital = equity[len(equity)-1].Equity
	if !initialCapital.IsZero() {
		s.TotalReturn = s.FinalCapital.Sub(initialCapital).Div(initialCapital)
	}

	curve := make([]decimal.Decimal, len(equity))
	for i, point := range equity {
		curve[i] = point.Equity
	}
	returns := utils.CalculateReturns(curve)

	if len(returns) > 0 {
		years := float64(len(equity)) / 252
		if years > 0 {
			totalReturnFloat, _ := s.TotalReturn.Float64()
			cagr := math.Pow(1+totalReturnFloat, 1/years) - 1
			s.CAGR = decimal.NewFromFloat(cagr)
		}
	}
	if len(returns) > 1 {
		s.SharpeRatio = utils.CalculateSharpeRatio(returns, decimal.Zero, 252)
	}

	s.MaxDrawdown = utils.CalculateMaxDrawdown(curve)

	if s.TotalTrades > 0 {
		pnls := make([]decimal.Decimal, len(closed))
		for i, p := range closed {
			pnls[i] = p.PnL
		}
		s.WinRate = utils.CalculateWinRate(pnls)
		if profitFactor := utils.CalculateProfitFactor(pnls); hasAnyLoss(pnls) {
			s.ProfitFactor = profitFactor
		}
	}

	return s
}

// hasAnyLoss reports whether any trade lost money; Calculate leaves
// ProfitFactor at its zero value rather than utils.CalculateProfitFactor's
// all-wins sentinel when there is nothing to divide against.
func hasAnyLoss(pnls []decimal.Decimal) bool {
	for _, pnl := range pnls {
		if pnl.IsNegative() {
			return true
		}
	}
	return false
}
