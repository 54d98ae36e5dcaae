package main

import (
	"testing"
	"time"

	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
)

func TestParseStockIDs_ParsesCommaSeparatedList(t *testing.T) {
	ids, err := parseStockIDs("1, 2,3")
	if err != nil {
		t.Fatalf("parseStockIDs: %v", err)
	}
	want := []uint{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestParseStockIDs_EmptyStringReturnsNil(t *testing.T) {
	ids, err := parseStockIDs("")
	if err != nil {
		t.Fatalf("parseStockIDs(\"\"): %v", err)
	}
	if ids != nil {
		t.Errorf("ids = %v, want nil", ids)
	}
}

func TestParseStockIDs_NonNumericEntryErrors(t *testing.T) {
	if _, err := parseStockIDs("1,x,3"); err == nil {
		t.Errorf("expected an error for a non-numeric stock id")
	}
}

func bar(day int, close string) types.OHLCV {
	return types.OHLCV{Timestamp: time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC), Close: decimal.RequireFromString(close)}
}

func TestReplayPriceRepository_AdvanceToMovesCursorToLatestBarNotAfterDay(t *testing.T) {
	r := &replayPriceRepository{
		bars:   map[uint][]types.OHLCV{1: {bar(1, "10"), bar(2, "11"), bar(3, "12"), bar(5, "13")}},
		cursor: map[uint]int{1: -1},
	}

	r.advanceTo(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
	if r.cursor[1] != 2 {
		t.Fatalf("cursor = %d, want 2 (index of the Jan-3 bar)", r.cursor[1])
	}

	// Jan 4 has no bar of its own; the cursor should stay on the Jan-3 bar
	// rather than advancing into the Jan-5 bar.
	r.advanceTo(time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC))
	if r.cursor[1] != 2 {
		t.Errorf("cursor = %d, want 2 (no bar to advance to on Jan 4)", r.cursor[1])
	}

	r.advanceTo(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	if r.cursor[1] != 3 {
		t.Errorf("cursor = %d, want 3 (index of the Jan-5 bar)", r.cursor[1])
	}
}

func TestReplayPriceRepository_GetPeriodWindowsToCursorAndClampsAtStart(t *testing.T) {
	r := &replayPriceRepository{
		bars:   map[uint][]types.OHLCV{1: {bar(1, "10"), bar(2, "11"), bar(3, "12"), bar(4, "13"), bar(5, "14")}},
		cursor: map[uint]int{1: 2},
	}

	bars, err := r.GetPeriod(nil, 1, 2)
	if err != nil {
		t.Fatalf("GetPeriod: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("len(bars) = %d, want 2", len(bars))
	}
	if !bars[len(bars)-1].Timestamp.Equal(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("last bar = %v, want Jan 3 (the bar the cursor is parked on)", bars[len(bars)-1].Timestamp)
	}

	// Requesting more days than the cursor has seen clamps to the start
	// rather than reaching past the cursor into future bars.
	bars, err = r.GetPeriod(nil, 1, 100)
	if err != nil {
		t.Fatalf("GetPeriod: %v", err)
	}
	if len(bars) != 3 {
		t.Errorf("len(bars) = %d, want 3 (clamped to bars up to and including the cursor)", len(bars))
	}
}
