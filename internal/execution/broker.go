// Package execution places and tracks orders against a broker, and turns
// Turtle signals into atomic Order+Position database writes.
package execution

import (
	"context"

	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
)

// Broker is the venue-agnostic contract every execution adapter satisfies,
// whether it talks to a real brokerage API or simulates fills in-process.
type Broker interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsPaperTrading() bool

	GetBalance(ctx context.Context) (types.AccountBalance, error)
	GetPositions(ctx context.Context) ([]types.BrokerPosition, error)
	GetPosition(ctx context.Context, symbol string) (*types.BrokerPosition, error)

	PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	GetOrderStatus(ctx context.Context, brokerOrderID string) (types.BrokerOrder, error)
	GetOpenOrders(ctx context.Context) ([]types.BrokerOrder, error)

	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// BuyMarket is a convenience wrapper over PlaceOrder.
func BuyMarket(ctx context.Context, b Broker, symbol string, qty int64) (types.OrderResponse, error) {
	return b.PlaceOrder(ctx, types.OrderRequest{Symbol: symbol, Side: types.OrderSideBuy, Qty: qty, Method: types.OrderMethodMarket})
}

// SellMarket is a convenience wrapper over PlaceOrder.
func SellMarket(ctx context.Context, b Broker, symbol string, qty int64) (types.OrderResponse, error) {
	return b.PlaceOrder(ctx, types.OrderRequest{Symbol: symbol, Side: types.OrderSideSell, Qty: qty, Method: types.OrderMethodMarket})
}

// BuyLimit is a convenience wrapper over PlaceOrder.
func BuyLimit(ctx context.Context, b Broker, symbol string, qty int64, price decimal.Decimal) (types.OrderResponse, error) {
	return b.PlaceOrder(ctx, types.OrderRequest{Symbol: symbol, Side: types.OrderSideBuy, Qty: qty, Method: types.OrderMethodLimit, Price: price})
}

// SellLimit is a convenience wrapper over PlaceOrder.
func SellLimit(ctx context.Context, b Broker, symbol string, qty int64, price decimal.Decimal) (types.OrderResponse, error) {
	return b.PlaceOrder(ctx, types.OrderRequest{Symbol: symbol, Side: types.OrderSideSell, Qty: qty, Method: types.OrderMethodLimit, Price: price})
}
