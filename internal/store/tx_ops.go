package store

import (
	"time"

	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// The functions in this file all take a *gorm.DB explicitly — either the
// facade's own r.db for a single-statement read, or a tx handed in by
// Repository.WithTx — so the order manager can compose several of them into
// one atomic unit without the facade knowing about order-manager concerns.

// CreateOrderTx inserts a new order row and returns its generated ID.
func CreateOrderTx(tx *gorm.DB, o *types.Order) error {
	row := Order{
		PositionID: o.PositionID, StockID: o.StockID, Side: string(o.Side), Method: string(o.Method),
		Quantity: o.Quantity, Price: o.Price, Status: string(o.Status),
		FilledQty: o.FilledQty, FilledPrice: o.FilledPrice, BrokerOrderID: o.BrokerOrderID,
		CreatedAt: time.Now(), FilledAt: o.FilledAt,
	}
	if err := tx.Create(&row).Error; err != nil {
		return err
	}
	o.ID = row.ID
	o.CreatedAt = row.CreatedAt
	return nil
}

// UpdateOrderStatusTx transitions an order's status and fill details.
func UpdateOrderStatusTx(tx *gorm.DB, orderID uint, status types.OrderStatus, filledQty int64, filledPrice decimal.Decimal, filledAt *time.Time) error {
	return tx.Model(&Order{}).Where("id = ?", orderID).Updates(map[string]any{
		"status": string(status), "filled_qty": filledQty, "filled_price": filledPrice, "filled_at": filledAt,
	}).Error
}

// CreatePositionTx inserts a new open position row.
func CreatePositionTx(tx *gorm.DB, p *types.Position) error {
	row := Position{
		StockID: p.StockID, Symbol: p.Symbol, Sector: p.Sector, Market: string(p.Market),
		EntryDate: p.EntryDate, EntryPrice: p.EntryPrice, EntrySystem: int(p.EntrySystem),
		Quantity: p.Quantity, Units: p.Units, StopLossPrice: p.StopLossPrice,
		StopLossType: string(p.StopLossType), Status: string(types.PositionStatusOpen),
	}
	if err := tx.Create(&row).Error; err != nil {
		return err
	}
	p.ID = row.ID
	return nil
}

// AddPyramidUnitTx grows a position's quantity/units and recomputes its
// quantity-weighted average entry price and stop.
func AddPyramidUnitTx(tx *gorm.DB, positionID uint, fillQty int64, fillPrice, newStop decimal.Decimal) error {
	var row Position
	if err := tx.First(&row, positionID).Error; err != nil {
		return err
	}

	totalQty := row.Quantity + fillQty
	totalCost := row.EntryPrice.Mul(decimal.NewFromInt(row.Quantity)).Add(fillPrice.Mul(decimal.NewFromInt(fillQty)))
	avgPrice := totalCost.Div(decimal.NewFromInt(totalQty))

	return tx.Model(&row).Updates(map[string]any{
		"quantity":        totalQty,
		"units":           row.Units + 1,
		"entry_price":     avgPrice,
		"stop_loss_price": newStop,
	}).Error
}

// ClosePositionTx marks a position CLOSED with its realized P&L.
func ClosePositionTx(tx *gorm.DB, positionID uint, exitDate time.Time, exitPrice, pnl, pnlPercent decimal.Decimal, reason types.SignalType) error {
	return tx.Model(&Position{}).Where("id = ?", positionID).Updates(map[string]any{
		"status": string(types.PositionStatusClosed), "exit_date": exitDate,
		"exit_price": exitPrice, "pnl": pnl, "pnl_percent": pnlPercent, "exit_reason": string(reason),
	}).Error
}

// MarkSignalExecutedTx flags a signal as consumed.
func MarkSignalExecutedTx(tx *gorm.DB, signalID uint) error {
	return tx.Model(&Signal{}).Where("id = ?", signalID).Update("is_executed", true).Error
}

// GetPositionTx reads a position inside an in-flight transaction.
func GetPositionTx(tx *gorm.DB, positionID uint) (types.Position, error) {
	var row Position
	if err := tx.First(&row, positionID).Error; err != nil {
		return types.Position{}, err
	}
	return toDomainPosition(row), nil
}
