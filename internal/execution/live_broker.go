package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/blood8879/turtle-canslim/internal/apperrors"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LiveCredentials authenticates a LiveBroker session against a venue's REST
// API. The same shape covers both the KRX (KIS) and US brokerage accounts;
// which fields are required depends on the venue.
type LiveCredentials struct {
	AppKey    string
	AppSecret string
	Account   string
}

// LiveBroker wraps a venue's HTTP order-routing API. No REST client library
// appears anywhere in the example pack, so this adapter is built directly on
// net/http rather than importing one.
type LiveBroker struct {
	logger      *zap.Logger
	httpClient  *http.Client
	baseURL     string
	creds       LiveCredentials
	paperAccount bool
}

// NewLiveBroker builds a broker adapter against baseURL. paperAccount marks
// whether creds identify the venue's own paper-trading account (still a
// live HTTP round trip, unlike PaperBroker's in-process simulation).
func NewLiveBroker(logger *zap.Logger, baseURL string, creds LiveCredentials, paperAccount bool) *LiveBroker {
	return &LiveBroker{
		logger:       logger.Named("live-broker"),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		baseURL:      baseURL,
		creds:        creds,
		paperAccount: paperAccount,
	}
}

func (b *LiveBroker) IsPaperTrading() bool { return b.paperAccount }

// Connect verifies the credentials resolve to a reachable account.
func (b *LiveBroker) Connect(ctx context.Context) error {
	b.logger.Info("live_broker_connect", zap.String("base_url", b.baseURL), zap.Bool("paper", b.paperAccount))
	var out struct {
		Connected bool `json:"connected"`
	}
	if err := b.do(ctx, http.MethodPost, "/auth/session", nil, &out); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (b *LiveBroker) Disconnect(ctx context.Context) error {
	b.logger.Info("live_broker_disconnect")
	return nil
}

func (b *LiveBroker) GetBalance(ctx context.Context) (types.AccountBalance, error) {
	var out types.AccountBalance
	if err := b.do(ctx, http.MethodGet, "/accounts/"+b.creds.Account+"/balance", nil, &out); err != nil {
		return types.AccountBalance{}, err
	}
	return out, nil
}

func (b *LiveBroker) GetPositions(ctx context.Context) ([]types.BrokerPosition, error) {
	var out []types.BrokerPosition
	if err := b.do(ctx, http.MethodGet, "/accounts/"+b.creds.Account+"/positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *LiveBroker) GetPosition(ctx context.Context, symbol string) (*types.BrokerPosition, error) {
	positions, err := b.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Symbol == symbol {
			return &positions[i], nil
		}
	}
	return nil, nil
}

// PlaceOrder submits an order and logs the audit trail before and after the
// call, per the broker contract.
func (b *LiveBroker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error) {
	b.logger.Info("order_submit",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Int64("qty", req.Qty),
		zap.String("method", string(req.Method)),
	)

	body := map[string]any{
		"account": b.creds.Account,
		"symbol":  req.Symbol,
		"side":    req.Side,
		"qty":     req.Qty,
		"method":  req.Method,
		"price":   req.Price.String(),
	}
	var out types.OrderResponse
	if err := b.do(ctx, http.MethodPost, "/accounts/"+b.creds.Account+"/orders", body, &out); err != nil {
		b.logger.Error("order_submit_failed", zap.String("symbol", req.Symbol), zap.Error(err))
		return types.OrderResponse{}, &apperrors.OrderError{Message: fmt.Sprintf("place order for %s", req.Symbol), Err: err}
	}

	b.logger.Info("order_submit_result",
		zap.String("symbol", req.Symbol),
		zap.Bool("success", out.Success),
		zap.String("broker_order_id", out.BrokerOrderID),
	)
	return out, nil
}

func (b *LiveBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	return b.do(ctx, http.MethodDelete, "/accounts/"+b.creds.Account+"/orders/"+brokerOrderID, nil, nil)
}

func (b *LiveBroker) GetOrderStatus(ctx context.Context, brokerOrderID string) (types.BrokerOrder, error) {
	var out types.BrokerOrder
	if err := b.do(ctx, http.MethodGet, "/accounts/"+b.creds.Account+"/orders/"+brokerOrderID, nil, &out); err != nil {
		return types.BrokerOrder{}, err
	}
	return out, nil
}

func (b *LiveBroker) GetOpenOrders(ctx context.Context) ([]types.BrokerOrder, error) {
	var out []types.BrokerOrder
	if err := b.do(ctx, http.MethodGet, "/accounts/"+b.creds.Account+"/orders?status=open", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *LiveBroker) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var out struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := b.do(ctx, http.MethodGet, "/quotes/"+symbol, nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Price, nil
}

func (b *LiveBroker) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("appkey", b.creds.AppKey)
	req.Header.Set("appsecret", b.creds.AppSecret)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
