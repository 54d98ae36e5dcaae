// Package pyramid implements the Turtle pyramid manager: sequential add-on
// entries at fixed ATR intervals past the initial entry, with a unified stop
// across all units of a position.
package pyramid

import "github.com/shopspring/decimal"

// Config holds the pyramid interval, stop multiplier, and max unit count.
type Config struct {
	UnitInterval      decimal.Decimal // e.g. 0.5, in units of N
	StopLossMultiplier decimal.Decimal // e.g. 2.0, in units of N
	MaxUnits          int
}

// DefaultConfig mirrors the original project's defaults.
func DefaultConfig() Config {
	return Config{
		UnitInterval:       decimal.NewFromFloat(0.5),
		StopLossMultiplier: decimal.NewFromInt(2),
		MaxUnits:           4,
	}
}

// Level is one pyramid rung: the price at which unit i should be added, and
// the stop that would apply once it fills.
type Level struct {
	Index     int
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
}

// CalculateLevels enumerates all pyramid rungs for units 1..MaxUnits-1.
func (c Config) CalculateLevels(initialEntry, n decimal.Decimal) []Level {
	levels := make([]Level, 0, c.MaxUnits-1)
	for i := 1; i < c.MaxUnits; i++ {
		entryPrice := initialEntry.Add(n.Mul(c.UnitInterval).Mul(decimal.NewFromInt(int64(i))))
		stopLoss := entryPrice.Sub(n.Mul(c.StopLossMultiplier))
		levels = append(levels, Level{Index: i, EntryPrice: entryPrice, StopLoss: stopLoss})
	}
	return levels
}

// Signal is a fired pyramid add-on.
type Signal struct {
	NextEntryPrice decimal.Decimal
	NewStopLoss    decimal.Decimal
}

// CheckSignal reports whether the current price has reached the next pyramid
// rung for a position already holding currentUnits units.
func (c Config) CheckSignal(currentPrice, initialEntry, n decimal.Decimal, currentUnits int) (Signal, bool) {
	if currentUnits >= c.MaxUnits {
		return Signal{}, false
	}

	nextEntry := initialEntry.Add(n.Mul(c.UnitInterval).Mul(decimal.NewFromInt(int64(currentUnits))))
	if currentPrice.LessThan(nextEntry) {
		return Signal{}, false
	}

	newStop := currentPrice.Sub(n.Mul(c.StopLossMultiplier))
	return Signal{NextEntryPrice: nextEntry, NewStopLoss: newStop}, true
}

// CalculateUnifiedStopLoss recomputes the unified stop applied to every unit
// of a position once a new pyramid fill lands, per the spec's "unified stop
// across all units moves to fill_price - 2N" rule.
func (c Config) CalculateUnifiedStopLoss(fillPrice, n decimal.Decimal) decimal.Decimal {
	return fillPrice.Sub(n.Mul(c.StopLossMultiplier))
}

// Fill is one contributing entry/pyramid fill: price and quantity.
type Fill struct {
	Price decimal.Decimal
	Qty   int64
}

// AverageEntryPrice computes the quantity-weighted average entry price across
// all fills contributing to a position's current quantity.
func AverageEntryPrice(fills []Fill) decimal.Decimal {
	totalQty := int64(0)
	totalCost := decimal.Zero
	for _, f := range fills {
		totalCost = totalCost.Add(f.Price.Mul(decimal.NewFromInt(f.Qty)))
		totalQty += f.Qty
	}
	if totalQty == 0 {
		return decimal.Zero
	}
	return totalCost.Div(decimal.NewFromInt(totalQty))
}
