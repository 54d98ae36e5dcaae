package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/blood8879/turtle-canslim/internal/apperrors"
	"github.com/blood8879/turtle-canslim/internal/risk"
	"github.com/blood8879/turtle-canslim/internal/signals/pyramid"
	"github.com/blood8879/turtle-canslim/internal/signals/stoploss"
	"github.com/blood8879/turtle-canslim/internal/store"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SlippageConfig caps how far a fill may drift from the signal price before
// the order manager refuses to execute.
type SlippageConfig struct {
	MaxEntrySlippagePct decimal.Decimal
	MaxExitSlippagePct  decimal.Decimal
}

// DefaultSlippageConfig mirrors the original project's defaults.
func DefaultSlippageConfig() SlippageConfig {
	return SlippageConfig{
		MaxEntrySlippagePct: decimal.NewFromFloat(0.015),
		MaxExitSlippagePct:  decimal.NewFromFloat(0.03),
	}
}

// OrderManager turns Turtle signals into broker calls and atomic
// Order+Position database writes.
type OrderManager struct {
	logger   *zap.Logger
	repo     *store.Repository
	broker   Broker
	sizer    *risk.PositionSizer
	units    *risk.UnitLimitManager
	pyramid  pyramid.Config
	stopLoss stoploss.Config
	slippage SlippageConfig
}

// NewOrderManager wires the collaborators needed to execute signals.
func NewOrderManager(logger *zap.Logger, repo *store.Repository, broker Broker, sizer *risk.PositionSizer, units *risk.UnitLimitManager, pyramidConfig pyramid.Config, stopLossConfig stoploss.Config, slippageConfig SlippageConfig) *OrderManager {
	return &OrderManager{
		logger: logger.Named("order-manager"), repo: repo, broker: broker,
		sizer: sizer, units: units, pyramid: pyramidConfig, stopLoss: stopLossConfig, slippage: slippageConfig,
	}
}

func slippagePct(expected, actual decimal.Decimal) decimal.Decimal {
	if expected.IsZero() {
		return decimal.Zero
	}
	return actual.Sub(expected).Div(expected).Abs()
}

// breakoutSlippage computes how far the signal price has drifted above the
// breakout level it fired on. Zero breakout level means the guard doesn't
// apply (e.g. synthetic signals with no associated breakout).
func breakoutSlippage(signalPrice, breakoutLevel decimal.Decimal) decimal.Decimal {
	if !breakoutLevel.IsPositive() {
		return decimal.Zero
	}
	return signalPrice.Sub(breakoutLevel).Div(breakoutLevel)
}

// checkEntrySlippage rejects before any broker interaction when the signal
// price has drifted too far above the breakout level it fired on.
func (m *OrderManager) checkEntrySlippage(sig types.Signal) error {
	if slip := breakoutSlippage(sig.Price, sig.BreakoutLevel); slip.GreaterThan(m.slippage.MaxEntrySlippagePct) {
		return &apperrors.SlippageExceededError{Symbol: sig.Symbol, SlippagePct: slip.InexactFloat64(), MaxSlippagePct: m.slippage.MaxEntrySlippagePct.InexactFloat64()}
	}
	return nil
}

// ExecuteEntry sizes and places a new-position buy for an ENTRY_S1/ENTRY_S2
// signal, then atomically writes the Order, the Position, and flags the
// triggering Signal executed.
func (m *OrderManager) ExecuteEntry(ctx context.Context, sig types.Signal, market types.Market, sector string, openUnits []risk.OpenPositionUnits, accountValue, buyingPower decimal.Decimal) (types.Position, error) {
	if err := m.checkEntrySlippage(sig); err != nil {
		return types.Position{}, err
	}

	check := m.units.CanAddUnit(sig.StockID, sector, openUnits)
	if !check.CanAdd {
		return types.Position{}, &apperrors.UnitLimitExceededError{LimitType: check.LimitType, Current: check.CurrentUnits, Maximum: check.Limit}
	}

	sizing := m.sizer.CalculateFullPosition(accountValue, sig.Price, sig.ATRN, buyingPower)
	if sizing.InsufficientFunds || sizing.Quantity <= 0 {
		return types.Position{}, &apperrors.InsufficientFundsError{Required: sig.Price.InexactFloat64(), Available: buyingPower.InexactFloat64()}
	}

	resp, err := BuyMarket(ctx, m.broker, sig.Symbol, sizing.Quantity)
	if err != nil || !resp.Success {
		m.logger.Warn("entry_order_failed", zap.String("symbol", sig.Symbol), zap.Error(err))
		return types.Position{}, fmt.Errorf("entry order failed for %s: %w", sig.Symbol, err)
	}

	brokerOrder, err := m.broker.GetOrderStatus(ctx, resp.BrokerOrderID)
	fillPrice := sig.Price
	if err == nil && !brokerOrder.FilledPrice.IsZero() {
		fillPrice = brokerOrder.FilledPrice
	}

	var position types.Position
	err = m.repo.WithTx(ctx, func(tx *gorm.DB) error {
		now := time.Now()
		order := types.Order{
			StockID: sig.StockID, Side: types.OrderSideBuy, Method: types.OrderMethodMarket,
			Quantity: sizing.Quantity, Price: sig.Price, Status: types.OrderStatusFilled,
			FilledQty: sizing.Quantity, FilledPrice: fillPrice, BrokerOrderID: resp.BrokerOrderID, FilledAt: &now,
		}
		if err := store.CreateOrderTx(tx, &order); err != nil {
			return err
		}

		position = types.Position{
			StockID: sig.StockID, Symbol: sig.Symbol, Sector: sector, Market: market,
			EntryDate: now, EntryPrice: fillPrice, EntrySystem: sig.System,
			Quantity: sizing.Quantity, Units: 1,
			StopLossPrice: sizing.StopLossPrice, StopLossType: types.StopLossType(sizing.StopLossType),
		}
		if err := store.CreatePositionTx(tx, &position); err != nil {
			return err
		}

		order.PositionID = &position.ID
		if err := tx.Model(&store.Order{}).Where("id = ?", order.ID).Update("position_id", position.ID).Error; err != nil {
			return err
		}

		if sig.ID != 0 {
			if err := store.MarkSignalExecutedTx(tx, sig.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return types.Position{}, fmt.Errorf("persist entry for %s: %w", sig.Symbol, err)
	}

	m.logger.Info("entry_executed", zap.String("symbol", sig.Symbol), zap.Int64("qty", sizing.Quantity), zap.String("fillPrice", fillPrice.String()))
	return position, nil
}

// ExecutePyramid adds a unit to an existing position at a PYRAMID signal,
// recomputing the weighted average entry and the unified 2N stop. It runs
// the same breakout-level slippage guard and unit-limit check as
// ExecuteEntry before touching the broker.
func (m *OrderManager) ExecutePyramid(ctx context.Context, sig types.Signal, position types.Position, sector string, openUnits []risk.OpenPositionUnits, accountValue, buyingPower decimal.Decimal) error {
	if err := m.checkEntrySlippage(sig); err != nil {
		return err
	}

	check := m.units.CanAddUnit(sig.StockID, sector, openUnits)
	if !check.CanAdd {
		return &apperrors.UnitLimitExceededError{LimitType: check.LimitType, Current: check.CurrentUnits, Maximum: check.Limit}
	}

	sizing := m.sizer.CalculateFullPosition(accountValue, sig.Price, sig.ATRN, buyingPower)
	if sizing.InsufficientFunds || sizing.Quantity <= 0 {
		return &apperrors.InsufficientFundsError{Required: sig.Price.InexactFloat64(), Available: buyingPower.InexactFloat64()}
	}

	resp, err := BuyMarket(ctx, m.broker, sig.Symbol, sizing.Quantity)
	if err != nil || !resp.Success {
		return fmt.Errorf("pyramid order failed for %s: %w", sig.Symbol, err)
	}

	brokerOrder, err := m.broker.GetOrderStatus(ctx, resp.BrokerOrderID)
	fillPrice := sig.Price
	if err == nil && !brokerOrder.FilledPrice.IsZero() {
		fillPrice = brokerOrder.FilledPrice
	}

	newStop := m.pyramid.CalculateUnifiedStopLoss(fillPrice, sig.ATRN)

	return m.repo.WithTx(ctx, func(tx *gorm.DB) error {
		now := time.Now()
		order := types.Order{
			PositionID: &position.ID, StockID: sig.StockID, Side: types.OrderSideBuy, Method: types.OrderMethodMarket,
			Quantity: sizing.Quantity, Price: sig.Price, Status: types.OrderStatusFilled,
			FilledQty: sizing.Quantity, FilledPrice: fillPrice, BrokerOrderID: resp.BrokerOrderID, FilledAt: &now,
		}
		if err := store.CreateOrderTx(tx, &order); err != nil {
			return err
		}
		if err := store.AddPyramidUnitTx(tx, position.ID, sizing.Quantity, fillPrice, newStop); err != nil {
			return err
		}
		if sig.ID != 0 {
			return store.MarkSignalExecutedTx(tx, sig.ID)
		}
		return nil
	})
}

// ExecuteExit closes a position at an EXIT_S1/EXIT_S2/STOP_LOSS signal.
func (m *OrderManager) ExecuteExit(ctx context.Context, sig types.Signal, position types.Position) error {
	resp, err := SellMarket(ctx, m.broker, sig.Symbol, position.Quantity)
	if err != nil || !resp.Success {
		return fmt.Errorf("exit order failed for %s: %w", sig.Symbol, err)
	}

	brokerOrder, err := m.broker.GetOrderStatus(ctx, resp.BrokerOrderID)
	fillPrice := sig.Price
	if err == nil && !brokerOrder.FilledPrice.IsZero() {
		fillPrice = brokerOrder.FilledPrice
	}

	if sig.SignalType != types.SignalStopLoss {
		if slip := slippagePct(sig.Price, fillPrice); slip.GreaterThan(m.slippage.MaxExitSlippagePct) {
			m.logger.Warn("exit_slippage_exceeded_executing_anyway", zap.String("symbol", sig.Symbol), zap.String("slippage", slip.String()))
		}
	}

	pnl := fillPrice.Sub(position.EntryPrice).Mul(decimal.NewFromInt(position.Quantity))
	pnlPct := decimal.Zero
	costBasis := position.EntryPrice.Mul(decimal.NewFromInt(position.Quantity))
	if !costBasis.IsZero() {
		pnlPct = pnl.Div(costBasis).Mul(decimal.NewFromInt(100))
	}

	err = m.repo.WithTx(ctx, func(tx *gorm.DB) error {
		now := time.Now()
		order := types.Order{
			PositionID: &position.ID, StockID: sig.StockID, Side: types.OrderSideSell, Method: types.OrderMethodMarket,
			Quantity: position.Quantity, Price: sig.Price, Status: types.OrderStatusFilled,
			FilledQty: position.Quantity, FilledPrice: fillPrice, BrokerOrderID: resp.BrokerOrderID, FilledAt: &now,
		}
		if err := store.CreateOrderTx(tx, &order); err != nil {
			return err
		}
		if err := store.ClosePositionTx(tx, position.ID, now, fillPrice, pnl, pnlPct, sig.SignalType); err != nil {
			return err
		}
		if position.EntrySystem == types.System1 {
			if err := m.repo.SetPreviousS1Result(ctx, position.StockID, pnl.IsPositive()); err != nil {
				return err
			}
		}
		if sig.ID != 0 {
			return store.MarkSignalExecutedTx(tx, sig.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist exit for %s: %w", sig.Symbol, err)
	}

	m.logger.Info("exit_executed", zap.String("symbol", sig.Symbol), zap.String("pnl", pnl.String()), zap.String("reason", string(sig.SignalType)))
	return nil
}

// ProcessSignal dispatches a signal to the matching execute method based on
// its SignalType, fetching the open position first where one is required.
func (m *OrderManager) ProcessSignal(ctx context.Context, sig types.Signal, market types.Market, sector string, openUnits []risk.OpenPositionUnits, accountValue, buyingPower decimal.Decimal) error {
	switch sig.SignalType {
	case types.SignalEntryS1, types.SignalEntryS2:
		_, err := m.ExecuteEntry(ctx, sig, market, sector, openUnits, accountValue, buyingPower)
		return err

	case types.SignalPyramid:
		pos, err := m.repo.GetOpenPosition(ctx, sig.StockID)
		if err != nil {
			return err
		}
		if pos == nil {
			return &apperrors.PositionNotFoundError{Symbol: sig.Symbol}
		}
		return m.ExecutePyramid(ctx, sig, *pos, sector, openUnits, accountValue, buyingPower)

	case types.SignalExitS1, types.SignalExitS2, types.SignalStopLoss:
		pos, err := m.repo.GetOpenPosition(ctx, sig.StockID)
		if err != nil {
			return err
		}
		if pos == nil {
			return &apperrors.PositionNotFoundError{Symbol: sig.Symbol}
		}
		return m.ExecuteExit(ctx, sig, *pos)

	default:
		return fmt.Errorf("unknown signal type %q", sig.SignalType)
	}
}
