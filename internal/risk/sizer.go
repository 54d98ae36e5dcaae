// Package risk provides position sizing and unit-limit enforcement for the
// Turtle engine.
package risk

import (
	"github.com/blood8879/turtle-canslim/internal/signals/stoploss"
	"github.com/blood8879/turtle-canslim/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PositionSizer turns account value, entry price, and volatility into an
// order quantity bounded by risk-per-unit and available buying power.
type PositionSizer struct {
	logger    *zap.Logger
	config    *SizerConfig
	stopLoss  stoploss.Config
}

// SizerConfig configures risk-based position sizing.
type SizerConfig struct {
	RiskPerUnit float64 // fraction of account value risked per unit, default 0.02
	MinQuantity int64
}

// DefaultSizerConfig mirrors the original project's default.
func DefaultSizerConfig() *SizerConfig {
	return &SizerConfig{
		RiskPerUnit: 0.02,
		MinQuantity: 1,
	}
}

// NewPositionSizer builds a sizer; a nil config falls back to defaults.
func NewPositionSizer(logger *zap.Logger, config *SizerConfig, stopLossConfig stoploss.Config) *PositionSizer {
	if config == nil {
		config = DefaultSizerConfig()
	}
	return &PositionSizer{logger: logger, config: config, stopLoss: stopLossConfig}
}

// Result is the full sizing decision: chosen stop, risk amount, and quantity.
type Result struct {
	Quantity       int64
	PositionValue  decimal.Decimal
	RiskAmount     decimal.Decimal
	StopLossPrice  decimal.Decimal
	StopLossType   string
	InsufficientFunds bool
}

// CalculateFullPosition computes the initial stop, risk-based quantity, and
// clamps the quantity to available buying power. Returns InsufficientFunds
// true when even MinQuantity cannot be afforded.
func (s *PositionSizer) CalculateFullPosition(accountValue, entryPrice, n, buyingPower decimal.Decimal) Result {
	initial := s.stopLoss.CalculateInitialStop(entryPrice, n)

	riskPerShare := entryPrice.Sub(initial.StopPrice)
	if riskPerShare.LessThanOrEqual(decimal.Zero) {
		riskPerShare = decimal.NewFromFloat(0.01)
	}

	riskBudget := accountValue.Mul(decimal.NewFromFloat(s.config.RiskPerUnit))
	qty := riskBudget.Div(riskPerShare).Floor().IntPart()
	if qty < s.config.MinQuantity {
		qty = s.config.MinQuantity
	}

	requiredCash := entryPrice.Mul(decimal.NewFromInt(qty))
	insufficientFunds := false
	affordableCash := utils.MinDecimal(requiredCash, buyingPower)
	if affordableCash.LessThan(requiredCash) {
		availableQty := affordableCash.Div(entryPrice).Floor().IntPart()
		if availableQty < s.config.MinQuantity {
			insufficientFunds = true
			qty = 0
		} else {
			qty = availableQty
			if s.logger != nil {
				s.logger.Info("entry_qty_reduced",
					zap.Int64("reducedQty", qty),
					zap.String("reason", "insufficient_buying_power"))
			}
		}
	}

	return Result{
		Quantity:          qty,
		PositionValue:     entryPrice.Mul(decimal.NewFromInt(qty)),
		RiskAmount:        riskPerShare.Mul(decimal.NewFromInt(qty)),
		StopLossPrice:     initial.StopPrice,
		StopLossType:      string(initial.StopType),
		InsufficientFunds: insufficientFunds,
	}
}
