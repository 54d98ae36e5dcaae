package turtle

import (
	"testing"

	"github.com/blood8879/turtle-canslim/internal/signals/breakout"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
)

func flatDecimals(n int, value float64) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.NewFromFloat(value)
	}
	return out
}

func TestWatchedStockFromCandidate_NoTargetReturnsFalse(t *testing.T) {
	config := breakout.DefaultConfig()
	highs := flatDecimals(config.System2EntryPeriod+1, 100)
	lows := flatDecimals(config.System2EntryPeriod+1, 98)
	closes := flatDecimals(config.System2EntryPeriod+1, 50) // far from the breakout level

	_, ok := WatchedStockFromCandidate(config, types.Candidate{StockID: 1}, highs, lows, closes, decimal.NewFromInt(2), true)
	if ok {
		t.Errorf("expected no watch target when price is far from breakout")
	}
}

func TestWatchedStockFromCandidate_BuildsSnapshotWithinProximity(t *testing.T) {
	config := breakout.DefaultConfig()
	highs := flatDecimals(config.System2EntryPeriod+1, 100)
	lows := flatDecimals(config.System2EntryPeriod+1, 98)
	closes := flatDecimals(config.System2EntryPeriod, 100)
	closes = append(closes, decimal.NewFromFloat(98)) // 2% below breakout, within 3% proximity

	ws, ok := WatchedStockFromCandidate(config, types.Candidate{StockID: 1, Symbol: "AAPL"}, highs, lows, closes, decimal.NewFromInt(2), true)
	if !ok {
		t.Fatalf("expected a watch target")
	}
	if len(ws.Targets) != 1 {
		t.Errorf("len(Targets) = %d, want 1", len(ws.Targets))
	}
}

func TestProximityWatcher_RegisterAndUnregister(t *testing.T) {
	w := NewProximityWatcher(breakout.DefaultConfig())
	w.Register(WatchedStock{StockID: 1, Symbol: "AAPL"})

	if got := len(w.GetWatchedList()); got != 1 {
		t.Fatalf("len(GetWatchedList()) = %d, want 1", got)
	}

	w.Unregister(1)
	if got := len(w.GetWatchedList()); got != 0 {
		t.Errorf("len(GetWatchedList()) after Unregister = %d, want 0", got)
	}
}

func TestProximityWatcher_ClearEmptiesWatchedSet(t *testing.T) {
	w := NewProximityWatcher(breakout.DefaultConfig())
	w.Register(WatchedStock{StockID: 1})
	w.Register(WatchedStock{StockID: 2})

	w.Clear()

	if got := len(w.GetWatchedList()); got != 0 {
		t.Errorf("len(GetWatchedList()) after Clear = %d, want 0", got)
	}
}

func TestProximityWatcher_CheckBreakout_FiresAndUnregisters(t *testing.T) {
	config := breakout.DefaultConfig()
	w := NewProximityWatcher(config)
	highs := flatDecimals(config.System2EntryPeriod, 100)

	w.Register(WatchedStock{StockID: 1, Symbol: "AAPL", Highs: highs, PreviousS1Winner: true})

	result, fired := w.CheckBreakout(1, decimal.NewFromFloat(105))
	if !fired {
		t.Fatalf("expected breakout to fire")
	}
	if result.System != types.System2 {
		t.Errorf("System = %v, want System2", result.System)
	}
	if got := len(w.GetWatchedList()); got != 0 {
		t.Errorf("watcher should auto-unregister after a fired breakout, len = %d", got)
	}
}

func TestProximityWatcher_CheckBreakout_UnregistersWhenNoLongerInProximity(t *testing.T) {
	config := breakout.DefaultConfig()
	w := NewProximityWatcher(config)
	highs := flatDecimals(config.System2EntryPeriod, 100)

	w.Register(WatchedStock{StockID: 1, Symbol: "AAPL", Highs: highs, PreviousS1Winner: true})

	// Price well below the breakout level and outside proximity threshold.
	_, fired := w.CheckBreakout(1, decimal.NewFromFloat(50))
	if fired {
		t.Errorf("did not expect a breakout fire")
	}
	if got := len(w.GetWatchedList()); got != 0 {
		t.Errorf("watcher should drop out-of-range stocks, len = %d", got)
	}
}

func TestProximityWatcher_CheckBreakout_UnknownStockIsNoop(t *testing.T) {
	w := NewProximityWatcher(breakout.DefaultConfig())

	_, fired := w.CheckBreakout(99, decimal.NewFromFloat(100))
	if fired {
		t.Errorf("expected no result for an unregistered stock")
	}
}
