// Package stoploss implements the initial/trailing/breakeven stop-loss rules
// shared by the position sizer, order manager, and portfolio manager.
package stoploss

import (
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/blood8879/turtle-canslim/pkg/utils"
	"github.com/shopspring/decimal"
)

// Config holds the stop-loss parameters.
type Config struct {
	ATRMultiplier          decimal.Decimal // e.g. 2.0
	MaxPercent             decimal.Decimal // e.g. 0.08
	BreakevenThresholdATR  decimal.Decimal // e.g. 1.0 (profit, in units of N)
}

// DefaultConfig mirrors the original project's defaults.
func DefaultConfig() Config {
	return Config{
		ATRMultiplier:         decimal.NewFromInt(2),
		MaxPercent:            decimal.NewFromFloat(0.08),
		BreakevenThresholdATR: decimal.NewFromFloat(1.0),
	}
}

// Initial is the result of the initial stop-loss calculation.
type Initial struct {
	StopPrice decimal.Decimal
	StopType  types.StopLossType
}

// CalculateInitialStop picks the tighter-or-higher of the 2N rule and the
// percent-of-entry rule: stop = max(entry - ATRMultiplier*N, entry*(1-MaxPercent)).
func (c Config) CalculateInitialStop(entryPrice, n decimal.Decimal) Initial {
	stop2N := entryPrice.Sub(n.Mul(c.ATRMultiplier))
	stopPercent := entryPrice.Mul(decimal.NewFromInt(1).Sub(c.MaxPercent))

	if utils.MaxDecimal(stop2N, stopPercent).Equal(stop2N) {
		return Initial{StopPrice: stop2N, StopType: types.StopLossTypeATR2N}
	}
	return Initial{StopPrice: stopPercent, StopType: types.StopLossTypePercent}
}

// UpdatePyramidStop recomputes the stop at the new pyramid fill price, using
// the same initial-stop rule.
func (c Config) UpdatePyramidStop(fillPrice, n decimal.Decimal) Initial {
	return c.CalculateInitialStop(fillPrice, n)
}

// CalculateTrailingStop ratchets a stop up as price rises; it never moves down.
func (c Config) CalculateTrailingStop(currentPrice, n, existingStop decimal.Decimal) decimal.Decimal {
	candidate := currentPrice.Sub(n.Mul(c.ATRMultiplier))
	return utils.MaxDecimal(candidate, existingStop)
}

// CalculateBreakevenStop moves the stop to entry once unrealized profit
// reaches BreakevenThresholdATR multiples of N; otherwise returns the
// existing stop unchanged.
func (c Config) CalculateBreakevenStop(currentPrice, entryPrice, n, existingStop decimal.Decimal) decimal.Decimal {
	if n.IsZero() {
		return existingStop
	}
	profitInATR := currentPrice.Sub(entryPrice).Div(n)
	if profitInATR.GreaterThanOrEqual(c.BreakevenThresholdATR) && entryPrice.GreaterThan(existingStop) {
		return entryPrice
	}
	return existingStop
}

// ShouldTriggerStop reports whether the current price has fallen to or
// through the stop.
func ShouldTriggerStop(currentPrice, stopPrice decimal.Decimal) bool {
	return currentPrice.LessThanOrEqual(stopPrice)
}
