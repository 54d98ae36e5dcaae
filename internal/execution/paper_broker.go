package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blood8879/turtle-canslim/internal/apperrors"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// QuoteSource supplies a live price for a symbol; the paper broker falls
// back to the last price it was told about when no source is wired.
type QuoteSource interface {
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type paperHolding struct {
	Quantity int64
	AvgPrice decimal.Decimal
}

// PaperBroker simulates fills against an in-process cash and position
// ledger; no network calls, used for paper-mode live trading and backtests.
type PaperBroker struct {
	logger *zap.Logger
	quotes QuoteSource

	mu        sync.Mutex
	cash      decimal.Decimal
	holdings  map[string]paperHolding
	orders    map[string]types.BrokerOrder
	lastPrice map[string]decimal.Decimal
}

// NewPaperBroker seeds the simulated account with startingCash.
func NewPaperBroker(logger *zap.Logger, quotes QuoteSource, startingCash decimal.Decimal) *PaperBroker {
	return &PaperBroker{
		logger:    logger.Named("paper-broker"),
		quotes:    quotes,
		cash:      startingCash,
		holdings:  make(map[string]paperHolding),
		orders:    make(map[string]types.BrokerOrder),
		lastPrice: make(map[string]decimal.Decimal),
	}
}

func (p *PaperBroker) Connect(ctx context.Context) error    { return nil }
func (p *PaperBroker) Disconnect(ctx context.Context) error { return nil }
func (p *PaperBroker) IsPaperTrading() bool                 { return true }

// SeedPrice lets a caller (backtester, test) record a price without a
// QuoteSource round-trip.
func (p *PaperBroker) SeedPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrice[symbol] = price
}

// Reset clears all simulated state back to startingCash.
func (p *PaperBroker) Reset(startingCash decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = startingCash
	p.holdings = make(map[string]paperHolding)
	p.orders = make(map[string]types.BrokerOrder)
}

func (p *PaperBroker) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if p.quotes != nil {
		if price, err := p.quotes.GetCurrentPrice(ctx, symbol); err == nil {
			p.mu.Lock()
			p.lastPrice[symbol] = price
			p.mu.Unlock()
			return price, nil
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.lastPrice[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price available for %s", symbol)
	}
	return price, nil
}

func (p *PaperBroker) GetBalance(ctx context.Context) (types.AccountBalance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	securitiesValue := decimal.Zero
	for symbol, h := range p.holdings {
		price, ok := p.lastPrice[symbol]
		if !ok {
			price = h.AvgPrice
		}
		securitiesValue = securitiesValue.Add(price.Mul(decimal.NewFromInt(h.Quantity)))
	}

	return types.AccountBalance{
		TotalValue:      p.cash.Add(securitiesValue),
		CashBalance:     p.cash,
		SecuritiesValue: securitiesValue,
		BuyingPower:     p.cash,
	}, nil
}

func (p *PaperBroker) GetPositions(ctx context.Context) ([]types.BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.BrokerPosition, 0, len(p.holdings))
	for symbol, h := range p.holdings {
		price, ok := p.lastPrice[symbol]
		if !ok {
			price = h.AvgPrice
		}
		marketValue := price.Mul(decimal.NewFromInt(h.Quantity))
		costBasis := h.AvgPrice.Mul(decimal.NewFromInt(h.Quantity))
		unrealized := marketValue.Sub(costBasis)
		pct := decimal.Zero
		if !costBasis.IsZero() {
			pct = unrealized.Div(costBasis).Mul(decimal.NewFromInt(100))
		}
		out = append(out, types.BrokerPosition{
			Symbol: symbol, Quantity: h.Quantity, AvgPrice: h.AvgPrice, CurrentPrice: price,
			MarketValue: marketValue, UnrealizedPnL: unrealized, UnrealizedPnLPct: pct,
		})
	}
	return out, nil
}

func (p *PaperBroker) GetPosition(ctx context.Context, symbol string) (*types.BrokerPosition, error) {
	positions, err := p.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		if pos.Symbol == symbol {
			return &pos, nil
		}
	}
	return nil, nil
}

// PlaceOrder fills immediately at the supplied/resolved price: debits or
// credits cash and averages into (or shrinks out of) the symbol's holding.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error) {
	price := req.Price
	if req.Method == types.OrderMethodMarket || price.IsZero() {
		resolved, err := p.GetCurrentPrice(ctx, req.Symbol)
		if err != nil {
			return types.OrderResponse{Success: false, Message: err.Error()}, err
		}
		price = resolved
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	notional := price.Mul(decimal.NewFromInt(req.Qty))

	switch req.Side {
	case types.OrderSideBuy:
		if notional.GreaterThan(p.cash) {
			err := &apperrors.InsufficientFundsError{Required: notional.InexactFloat64(), Available: p.cash.InexactFloat64()}
			return types.OrderResponse{Success: false, Message: err.Error()}, err
		}
		p.cash = p.cash.Sub(notional)
		existing := p.holdings[req.Symbol]
		totalQty := existing.Quantity + req.Qty
		totalCost := existing.AvgPrice.Mul(decimal.NewFromInt(existing.Quantity)).Add(notional)
		avgPrice := price
		if totalQty > 0 {
			avgPrice = totalCost.Div(decimal.NewFromInt(totalQty))
		}
		p.holdings[req.Symbol] = paperHolding{Quantity: totalQty, AvgPrice: avgPrice}

	case types.OrderSideSell:
		existing := p.holdings[req.Symbol]
		if existing.Quantity < req.Qty {
			err := fmt.Errorf("cannot sell %d shares of %s: only %d held", req.Qty, req.Symbol, existing.Quantity)
			return types.OrderResponse{Success: false, Message: err.Error()}, err
		}
		p.cash = p.cash.Add(notional)
		remaining := existing.Quantity - req.Qty
		if remaining == 0 {
			delete(p.holdings, req.Symbol)
		} else {
			p.holdings[req.Symbol] = paperHolding{Quantity: remaining, AvgPrice: existing.AvgPrice}
		}
	}

	brokerOrderID := uuid.NewString()[:8]
	now := time.Now()
	order := types.BrokerOrder{
		BrokerOrderID: brokerOrderID, Symbol: req.Symbol, Side: req.Side, Qty: req.Qty,
		Status: "FILLED", FilledQty: req.Qty, FilledPrice: price, CreatedAt: now, UpdatedAt: now,
	}
	p.orders[brokerOrderID] = order
	p.lastPrice[req.Symbol] = price

	p.logger.Info("paper_order_filled",
		zap.String("brokerOrderId", brokerOrderID), zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)), zap.Int64("qty", req.Qty), zap.String("price", price.String()))

	return types.OrderResponse{Success: true, BrokerOrderID: brokerOrderID, Message: "filled"}, nil
}

func (p *PaperBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	return fmt.Errorf("paper orders fill immediately and cannot be cancelled")
}

func (p *PaperBroker) GetOrderStatus(ctx context.Context, brokerOrderID string) (types.BrokerOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[brokerOrderID]
	if !ok {
		return types.BrokerOrder{}, fmt.Errorf("unknown order %s", brokerOrderID)
	}
	return order, nil
}

func (p *PaperBroker) GetOpenOrders(ctx context.Context) ([]types.BrokerOrder, error) {
	return nil, nil
}
