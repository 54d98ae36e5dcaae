package pyramid

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateLevels_EnumeratesRemainingUnits(t *testing.T) {
	c := DefaultConfig()

	levels := c.CalculateLevels(dec("100"), dec("2"))

	if len(levels) != c.MaxUnits-1 {
		t.Fatalf("len(levels) = %d, want %d", len(levels), c.MaxUnits-1)
	}
	// Unit 1 adds at entry + 0.5N = 101.
	if !levels[0].EntryPrice.Equal(dec("101")) {
		t.Errorf("levels[0].EntryPrice = %s, want 101", levels[0].EntryPrice)
	}
	if !levels[0].StopLoss.Equal(dec("97")) {
		t.Errorf("levels[0].StopLoss = %s, want 97", levels[0].StopLoss)
	}
}

func TestCheckSignal_FiresAtNextRung(t *testing.T) {
	c := DefaultConfig()

	// Initial entry 100, N 2, 1 unit already held -> next rung at 101.
	signal, ok := c.CheckSignal(dec("101"), dec("100"), dec("2"), 1)
	if !ok {
		t.Fatalf("expected pyramid signal")
	}
	if !signal.NextEntryPrice.Equal(dec("101")) {
		t.Errorf("NextEntryPrice = %s, want 101", signal.NextEntryPrice)
	}
	if !signal.NewStopLoss.Equal(dec("97")) {
		t.Errorf("NewStopLoss = %s, want 97", signal.NewStopLoss)
	}
}

func TestCheckSignal_NoSignalBelowNextRung(t *testing.T) {
	c := DefaultConfig()

	_, ok := c.CheckSignal(dec("100.4"), dec("100"), dec("2"), 1)
	if ok {
		t.Errorf("expected no signal below the next pyramid rung")
	}
}

func TestCheckSignal_NoSignalAtMaxUnits(t *testing.T) {
	c := DefaultConfig()

	_, ok := c.CheckSignal(dec("200"), dec("100"), dec("2"), c.MaxUnits)
	if ok {
		t.Errorf("expected no signal once MaxUnits is reached")
	}
}

func TestCalculateUnifiedStopLoss(t *testing.T) {
	c := DefaultConfig()

	got := c.CalculateUnifiedStopLoss(dec("110"), dec("3"))
	if !got.Equal(dec("104")) {
		t.Errorf("got = %s, want 104", got)
	}
}

func TestAverageEntryPrice_WeightsByQuantity(t *testing.T) {
	fills := []Fill{
		{Price: dec("100"), Qty: 10},
		{Price: dec("110"), Qty: 10},
	}

	got := AverageEntryPrice(fills)
	if !got.Equal(dec("105")) {
		t.Errorf("got = %s, want 105", got)
	}
}

func TestAverageEntryPrice_EmptyFillsReturnsZero(t *testing.T) {
	got := AverageEntryPrice(nil)
	if !got.Equal(decimal.Zero) {
		t.Errorf("got = %s, want 0", got)
	}
}
