package breakout

import (
	"testing"

	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
)

func series(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestGetHighLow_ExcludesCurrentBarFromWindow(t *testing.T) {
	highs := series(10, 12, 15, 11, 20) // last bar (20) is "current"
	lows := series(9, 8, 10, 7, 6)

	high, low, ok := GetHighLow(highs, lows, 4)
	if !ok {
		t.Fatalf("expected ok")
	}
	if !high.Equal(decimal.NewFromFloat(15)) {
		t.Errorf("high = %s, want 15", high)
	}
	if !low.Equal(decimal.NewFromFloat(7)) {
		t.Errorf("low = %s, want 7", low)
	}
}

func TestGetHighLow_NotEnoughHistoryReturnsFalse(t *testing.T) {
	highs := series(10, 12)
	lows := series(9, 8)

	_, _, ok := GetHighLow(highs, lows, 20)
	if ok {
		t.Errorf("expected ok=false with insufficient history")
	}
}

func TestCheckEntry_System2FiresRegardlessOfPreviousS1Winner(t *testing.T) {
	c := DefaultConfig()
	highs := make([]float64, c.System2EntryPeriod+1)
	for i := range highs {
		highs[i] = 100
	}
	price := decimal.NewFromFloat(105)

	result, ok := c.CheckEntry(price, series(highs...), true)

	if !ok {
		t.Fatalf("expected entry signal")
	}
	if result.SignalType != types.SignalEntryS2 {
		t.Errorf("SignalType = %s, want %s", result.SignalType, types.SignalEntryS2)
	}
}

func TestCheckEntry_System1SkippedWhenPreviousS1Winner(t *testing.T) {
	c := DefaultConfig()
	// Short history triggers neither system's breakout except via the
	// System1 window; make the series just long enough for System1 but not
	// System2, so only the previousS1Winner gate is under test.
	bars := make([]float64, c.System1EntryPeriod+1)
	for i := range bars {
		bars[i] = 50
	}
	price := decimal.NewFromFloat(60)

	_, ok := c.CheckEntry(price, series(bars...), true)
	if ok {
		t.Errorf("expected no entry signal when previous S1 trade won")
	}

	result, ok := c.CheckEntry(price, series(bars...), false)
	if !ok {
		t.Fatalf("expected System1 entry signal once previousS1Winner is false")
	}
	if result.SignalType != types.SignalEntryS1 {
		t.Errorf("SignalType = %s, want %s", result.SignalType, types.SignalEntryS1)
	}
}

func TestCheckExit_UsesSystemSpecificPeriod(t *testing.T) {
	c := DefaultConfig()
	bars := make([]float64, c.System1ExitPeriod+1)
	for i := range bars {
		bars[i] = 50
	}
	price := decimal.NewFromFloat(40)

	result, ok := c.CheckExit(price, series(bars...), types.System1)
	if !ok {
		t.Fatalf("expected exit signal")
	}
	if result.SignalType != types.SignalExitS1 {
		t.Errorf("SignalType = %s, want %s", result.SignalType, types.SignalExitS1)
	}
}

func TestCheckExit_NoSignalAbovePriorLow(t *testing.T) {
	c := DefaultConfig()
	bars := make([]float64, c.System1ExitPeriod+1)
	for i := range bars {
		bars[i] = 50
	}
	price := decimal.NewFromFloat(60)

	_, ok := c.CheckExit(price, series(bars...), types.System1)
	if ok {
		t.Errorf("expected no exit signal above the exit-channel low")
	}
}

func TestCheckProximity_FlagsWithinThresholdOnly(t *testing.T) {
	c := DefaultConfig()
	bars := make([]float64, c.System2EntryPeriod+1)
	for i := range bars {
		bars[i] = 100
	}

	// 2% below the 100 breakout level, inside the default 3% proximity.
	closePrice := decimal.NewFromFloat(98)
	targets := c.CheckProximity(closePrice, series(bars...), true)

	if len(targets) != 1 {
		t.Fatalf("targets = %d, want 1: %+v", len(targets), targets)
	}
	if targets[0].System != types.System2 {
		t.Errorf("System = %v, want System2", targets[0].System)
	}
}

func TestCheckProximity_OutsideThresholdYieldsNoTarget(t *testing.T) {
	c := DefaultConfig()
	bars := make([]float64, c.System2EntryPeriod+1)
	for i := range bars {
		bars[i] = 100
	}

	closePrice := decimal.NewFromFloat(80) // 20% away, outside the 3% threshold
	targets := c.CheckProximity(closePrice, series(bars...), true)

	if len(targets) != 0 {
		t.Errorf("targets = %d, want 0", len(targets))
	}
}
