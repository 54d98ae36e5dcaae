// Package portfolio derives live account summaries and risk exposure from
// open positions, and computes realized-trade performance statistics.
package portfolio

import (
	"context"

	"github.com/blood8879/turtle-canslim/internal/execution"
	"github.com/blood8879/turtle-canslim/internal/risk"
	"github.com/blood8879/turtle-canslim/internal/store"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PositionView joins a stored Position with its latest broker quote.
type PositionView struct {
	types.Position
	CurrentPrice     decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	UnrealizedPnLPct decimal.Decimal
	DistanceToStop   decimal.Decimal // fraction, e.g. 0.05 = 5%
}

// Summary is the live account snapshot.
type Summary struct {
	TotalValue         decimal.Decimal
	CashBalance        decimal.Decimal
	SecuritiesValue    decimal.Decimal
	TotalUnrealizedPnL decimal.Decimal
	TotalUnrealizedPct decimal.Decimal
	TotalUnits         int
	AvailableUnits     int
	MaxUnits           int
	PositionCount      int
	Positions          []PositionView
}

// Risk is the aggregate exposure view across all open positions.
type Risk struct {
	TotalRiskAmount       decimal.Decimal
	TotalRiskPct          decimal.Decimal
	MaxDrawdownPotential  decimal.Decimal
	PositionsAtRisk       []PositionView
}

// Manager computes portfolio summaries and risk from stored positions and
// live broker quotes.
type Manager struct {
	logger *zap.Logger
	repo   *store.Repository
	broker execution.Broker
	units  risk.UnitLimitConfig
}

// NewManager builds a portfolio manager.
func NewManager(logger *zap.Logger, repo *store.Repository, broker execution.Broker, unitsConfig risk.UnitLimitConfig) *Manager {
	return &Manager{logger: logger.Named("portfolio"), repo: repo, broker: broker, units: unitsConfig}
}

func (m *Manager) positionViews(ctx context.Context, market types.Market) ([]PositionView, error) {
	positions, err := m.repo.ListOpenPositions(ctx, market)
	if err != nil {
		return nil, err
	}

	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		price, err := m.broker.GetCurrentPrice(ctx, p.Symbol)
		if err != nil {
			m.logger.Warn("quote_fetch_failed", zap.String("symbol", p.Symbol), zap.Error(err))
			price = p.EntryPrice
		}

		marketValue := price.Mul(decimal.NewFromInt(p.Quantity))
		costBasis := p.EntryPrice.Mul(decimal.NewFromInt(p.Quantity))
		unrealized := marketValue.Sub(costBasis)
		pct := decimal.Zero
		if !costBasis.IsZero() {
			pct = unrealized.Div(costBasis).Mul(decimal.NewFromInt(100))
		}

		distanceToStop := decimal.Zero
		if !price.IsZero() {
			distanceToStop = price.Sub(p.StopLossPrice).Div(price).Abs()
		}

		views = append(views, PositionView{
			Position: p, CurrentPrice: price, UnrealizedPnL: unrealized, UnrealizedPnLPct: pct, DistanceToStop: distanceToStop,
		})
	}
	return views, nil
}

// GetSummary joins open positions with live quotes into an account snapshot.
func (m *Manager) GetSummary(ctx context.Context, market types.Market) (Summary, error) {
	balance, err := m.broker.GetBalance(ctx)
	if err != nil {
		return Summary{}, err
	}

	views, err := m.positionViews(ctx, market)
	if err != nil {
		return Summary{}, err
	}

	totalUnrealized := decimal.Zero
	totalUnits := 0
	for _, v := range views {
		totalUnrealized = totalUnrealized.Add(v.UnrealizedPnL)
		totalUnits += v.Units
	}

	totalUnrealizedPct := decimal.Zero
	if !balance.SecuritiesValue.IsZero() {
		totalUnrealizedPct = totalUnrealized.Div(balance.SecuritiesValue).Mul(decimal.NewFromInt(100))
	}

	return Summary{
		TotalValue: balance.TotalValue, CashBalance: balance.CashBalance, SecuritiesValue: balance.SecuritiesValue,
		TotalUnrealizedPnL: totalUnrealized, TotalUnrealizedPct: totalUnrealizedPct,
		TotalUnits: totalUnits, AvailableUnits: m.units.MaxUnitsTotal - totalUnits, MaxUnits: m.units.MaxUnitsTotal,
		PositionCount: len(views), Positions: views,
	}, nil
}

// atRiskThresholdPct is the distance-to-stop below which a position is
// flagged; 5%, matching the original project's risk dashboard.
var atRiskThresholdPct = decimal.NewFromFloat(0.05)

// GetRiskAnalysis aggregates stop-distance exposure across open positions.
func (m *Manager) GetRiskAnalysis(ctx context.Context, market types.Market) (Risk, error) {
	views, err := m.positionViews(ctx, market)
	if err != nil {
		return Risk{}, err
	}

	totalRisk := decimal.Zero
	totalValue := decimal.Zero
	maxDrawdown := decimal.Zero
	var atRisk []PositionView

	for _, v := range views {
		riskAmount := v.CurrentPrice.Sub(v.StopLossPrice).Mul(decimal.NewFromInt(v.Quantity))
		if riskAmount.IsNegative() {
			riskAmount = decimal.Zero
		}
		totalRisk = totalRisk.Add(riskAmount)
		totalValue = totalValue.Add(v.CurrentPrice.Mul(decimal.NewFromInt(v.Quantity)))

		drawdown := v.CurrentPrice.Sub(v.StopLossPrice).Mul(decimal.NewFromInt(v.Quantity))
		maxDrawdown = maxDrawdown.Add(drawdown)

		if v.DistanceToStop.LessThan(atRiskThresholdPct) {
			atRisk = append(atRisk, v)
		}
	}

	totalRiskPct := decimal.Zero
	if !totalValue.IsZero() {
		totalRiskPct = totalRisk.Div(totalValue).Mul(decimal.NewFromInt(100))
	}

	return Risk{
		TotalRiskAmount: totalRisk, TotalRiskPct: totalRiskPct,
		MaxDrawdownPotential: maxDrawdown, PositionsAtRisk: atRisk,
	}, nil
}
