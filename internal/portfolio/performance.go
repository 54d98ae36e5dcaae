package portfolio

import (
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
)

// Stats is the realized + open-position performance snapshot.
type Stats struct {
	TotalTrades     int
	WinCount        int
	LossCount       int
	WinRate         decimal.Decimal
	TotalPnL        decimal.Decimal
	AvgWinPct       decimal.Decimal
	AvgLossPct      decimal.Decimal
	MaxWinPct       decimal.Decimal
	MaxLossPct      decimal.Decimal
	AvgHoldingDays  decimal.Decimal
	MaxHoldingDays  int
	ProfitFactor    decimal.Decimal
	OpenPositions   int
	OpenUnits       int
}

// Calculate derives Stats from the closed-position history plus the
// currently open positions' unit count.
func Calculate(closed []types.Position, open []types.Position) Stats {
	stats := Stats{OpenPositions: len(open)}
	for _, p := range open {
		stats.OpenUnits += p.Units
	}

	stats.TotalTrades = len(closed)
	if len(closed) == 0 {
		return stats
	}

	var wins, losses []types.Position
	var grossProfit, grossLoss decimal.Decimal
	var holdingDaysSum int
	maxHolding := 0

	for _, p := range closed {
		stats.TotalPnL = stats.TotalPnL.Add(p.PnL)

		if p.PnL.IsPositive() {
			wins = append(wins, p)
			grossProfit = grossProfit.Add(p.PnL)
		} else if p.PnL.IsNegative() {
			losses = append(losses, p)
			grossLoss = grossLoss.Add(p.PnL.Abs())
		}

		if p.ExitDate != nil {
			days := int(p.ExitDate.Sub(p.EntryDate).Hours() / 24)
			holdingDaysSum += days
			if days > maxHolding {
				maxHolding = days
			}
		}
	}

	stats.WinCount = len(wins)
	stats.LossCount = len(losses)
	stats.WinRate = decimal.NewFromInt(int64(stats.WinCount)).Div(decimal.NewFromInt(int64(stats.TotalTrades))).Mul(decimal.NewFromInt(100))

	if len(wins) > 0 {
		sum := decimal.Zero
		maxPct := decimal.Zero
		for _, p := range wins {
			sum = sum.Add(p.PnLPercent)
			if p.PnLPercent.GreaterThan(maxPct) {
				maxPct = p.PnLPercent
			}
		}
		stats.AvgWinPct = sum.Div(decimal.NewFromInt(int64(len(wins))))
		stats.MaxWinPct = maxPct
	}

	if len(losses) > 0 {
		sum := decimal.Zero
		maxPct := decimal.Zero
		for _, p := range losses {
			sum = sum.Add(p.PnLPercent)
			if p.PnLPercent.LessThan(maxPct) {
				maxPct = p.PnLPercent
			}
		}
		stats.AvgLossPct = sum.Div(decimal.NewFromInt(int64(len(losses))))
		stats.MaxLossPct = maxPct
	}

	stats.AvgHoldingDays = decimal.NewFromInt(int64(holdingDaysSum)).Div(decimal.NewFromInt(int64(stats.TotalTrades)))
	stats.MaxHoldingDays = maxHolding

	if !grossLoss.IsZero() {
		stats.ProfitFactor = grossProfit.Div(grossLoss)
	} else if !grossProfit.IsZero() {
		stats.ProfitFactor = decimal.NewFromInt(999) // no losing trades yet
	}

	return stats
}
