// Package breakout implements the Donchian-channel breakout detector: entry,
// exit, and proximity classification for the Turtle systems.
package breakout

import (
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
)

// Config holds the window lengths for both Turtle systems and the proximity threshold.
type Config struct {
	System1EntryPeriod int
	System1ExitPeriod  int
	System2EntryPeriod int
	System2ExitPeriod  int
	ProximityPct       decimal.Decimal
}

// DefaultConfig mirrors the original project's defaults.
func DefaultConfig() Config {
	return Config{
		System1EntryPeriod: 20,
		System1ExitPeriod:  10,
		System2EntryPeriod: 55,
		System2ExitPeriod:  20,
		ProximityPct:       decimal.NewFromFloat(0.03),
	}
}

// EntryResult is a positive entry classification.
type EntryResult struct {
	SignalType    types.SignalType
	System        types.System
	BreakoutLevel decimal.Decimal
}

// ProximityTarget is a not-yet-triggered breakout within the proximity threshold.
type ProximityTarget struct {
	System        types.System
	BreakoutLevel decimal.Decimal
	DistancePct   decimal.Decimal
}

// highLow returns the max/min of the window ending just before the last
// element of series — i.e. series[len-period-1 : len-1] — excluding the
// current (last) bar, per the Donchian-channel rule.
func windowExcludingLast(series []decimal.Decimal, period int) ([]decimal.Decimal, bool) {
	n := len(series)
	// The "current" bar is series[n-1]; the window is the `period` bars before it.
	end := n - 1
	start := end - period
	if start < 0 || end < 0 || end > n {
		return nil, false
	}
	return series[start:end], true
}

func maxOf(values []decimal.Decimal) decimal.Decimal {
	m := values[0]
	for _, v := range values[1:] {
		if v.GreaterThan(m) {
			m = v
		}
	}
	return m
}

func minOf(values []decimal.Decimal) decimal.Decimal {
	m := values[0]
	for _, v := range values[1:] {
		if v.LessThan(m) {
			m = v
		}
	}
	return m
}

// GetHighLow returns the Donchian high/low for the given period, treating the
// last element of the series as "current" and excluding it from the window.
func GetHighLow(highs, lows []decimal.Decimal, period int) (high, low decimal.Decimal, ok bool) {
	hw, ok1 := windowExcludingLast(highs, period)
	lw, ok2 := windowExcludingLast(lows, period)
	if !ok1 || !ok2 || len(hw) == 0 || len(lw) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	return maxOf(hw), minOf(lw), true
}

// CheckEntry classifies the current price against both systems' breakout
// levels. System 2 is checked first and always eligible; System 1 fires only
// when previousS1Winner is false (the Turtle bias: skip setups whose prior
// System-1 trade would have been profitable).
func (c Config) CheckEntry(currentPrice decimal.Decimal, highs []decimal.Decimal, previousS1Winner bool) (EntryResult, bool) {
	s2High, _, ok2 := GetHighLow(highs, highs, c.System2EntryPeriod)
	if ok2 && currentPrice.GreaterThan(s2High) {
		return EntryResult{SignalType: types.SignalEntryS2, System: types.System2, BreakoutLevel: s2High}, true
	}

	s1High, _, ok1 := GetHighLow(highs, highs, c.System1EntryPeriod)
	if ok1 && currentPrice.GreaterThan(s1High) && !previousS1Winner {
		return EntryResult{SignalType: types.SignalEntryS1, System: types.System1, BreakoutLevel: s1High}, true
	}

	return EntryResult{}, false
}

// CheckExit classifies the current price against the exit channel for the
// position's entry system.
func (c Config) CheckExit(currentPrice decimal.Decimal, lows []decimal.Decimal, entrySystem types.System) (EntryResult, bool) {
	period := c.System1ExitPeriod
	signalType := types.SignalExitS1
	if entrySystem == types.System2 {
		period = c.System2ExitPeriod
		signalType = types.SignalExitS2
	}

	_, low, ok := GetHighLow(lows, lows, period)
	if !ok {
		return EntryResult{}, false
	}
	if currentPrice.LessThan(low) {
		return EntryResult{SignalType: signalType, System: entrySystem, BreakoutLevel: low}, true
	}
	return EntryResult{}, false
}

// CheckProximity computes, for each system for which the current price is
// below but within ProximityPct of the breakout level, a ProximityTarget.
// System 1 is only eligible when previousS1Winner is false, mirroring CheckEntry.
func (c Config) CheckProximity(currentPrice decimal.Decimal, highs []decimal.Decimal, previousS1Winner bool) []ProximityTarget {
	var targets []ProximityTarget

	if s2High, _, ok := GetHighLow(highs, highs, c.System2EntryPeriod); ok && currentPrice.LessThan(s2High) {
		distance := s2High.Sub(currentPrice).Div(s2High)
		if distance.LessThanOrEqual(c.ProximityPct) {
			targets = append(targets, ProximityTarget{System: types.System2, BreakoutLevel: s2High, DistancePct: distance})
		}
	}

	if !previousS1Winner {
		if s1High, _, ok := GetHighLow(highs, highs, c.System1EntryPeriod); ok && currentPrice.LessThan(s1High) {
			distance := s1High.Sub(currentPrice).Div(s1High)
			if distance.LessThanOrEqual(c.ProximityPct) {
				targets = append(targets, ProximityTarget{System: types.System1, BreakoutLevel: s1High, DistancePct: distance})
			}
		}
	}

	return targets
}
