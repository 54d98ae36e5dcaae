package turtle

import (
	"sync"

	"github.com/blood8879/turtle-canslim/internal/signals/breakout"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
)

// WatchedStock is the proximity watcher's per-stock snapshot: enough history
// to re-run the breakout detector on each fast-poll tick without refetching bars.
type WatchedStock struct {
	StockID          uint
	Symbol           string
	Name             string
	Highs            []decimal.Decimal
	Lows             []decimal.Decimal
	Closes           []decimal.Decimal
	N                decimal.Decimal
	PreviousS1Winner bool
	Targets          []breakout.ProximityTarget
	LastPrice        decimal.Decimal
}

// ProximityWatcher maintains the set of near-breakout stocks for fast polling.
type ProximityWatcher struct {
	mu       sync.RWMutex
	config   breakout.Config
	watched  map[uint]*WatchedStock
}

// NewProximityWatcher builds an empty watcher.
func NewProximityWatcher(config breakout.Config) *ProximityWatcher {
	return &ProximityWatcher{config: config, watched: make(map[uint]*WatchedStock)}
}

// Register adds or replaces a watched stock; idempotent by StockID.
func (w *ProximityWatcher) Register(stock WatchedStock) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched[stock.StockID] = &stock
}

// Unregister removes a stock from the watched set.
func (w *ProximityWatcher) Unregister(stockID uint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, stockID)
}

// Clear empties the watched set; called at the start of each cycle's rebuild.
func (w *ProximityWatcher) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched = make(map[uint]*WatchedStock)
}

// UpdatePrice records the latest observed price for a watched stock.
func (w *ProximityWatcher) UpdatePrice(stockID uint, price decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ws, ok := w.watched[stockID]; ok {
		ws.LastPrice = price
	}
}

// GetWatchedList returns a snapshot of all currently watched stocks.
func (w *ProximityWatcher) GetWatchedList() []WatchedStock {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]WatchedStock, 0, len(w.watched))
	for _, ws := range w.watched {
		out = append(out, *ws)
	}
	return out
}

// CheckBreakout appends price as the current bar and runs the breakout
// detector against the stored history. On a positive entry result, the stock
// is auto-unregistered and the result returned. If price has moved away so no
// proximity targets remain, the stock is also auto-unregistered (with no result).
func (w *ProximityWatcher) CheckBreakout(stockID uint, price decimal.Decimal) (breakout.EntryResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ws, ok := w.watched[stockID]
	if !ok {
		return breakout.EntryResult{}, false
	}

	highsWithCurrent := append(append([]decimal.Decimal{}, ws.Highs...), price)

	if result, fired := w.config.CheckEntry(price, highsWithCurrent, ws.PreviousS1Winner); fired {
		delete(w.watched, stockID)
		return result, true
	}

	targets := w.config.CheckProximity(price, highsWithCurrent, ws.PreviousS1Winner)
	if len(targets) == 0 {
		delete(w.watched, stockID)
		return breakout.EntryResult{}, false
	}

	ws.Targets = targets
	ws.LastPrice = price
	return breakout.EntryResult{}, false
}

// WatchedStockFromCandidate builds a WatchedStock snapshot if the candidate's
// history yields at least one proximity target; returns ok=false otherwise.
func WatchedStockFromCandidate(config breakout.Config, candidate types.Candidate, highs, lows, closes []decimal.Decimal, n decimal.Decimal, previousS1Winner bool) (WatchedStock, bool) {
	if len(closes) == 0 {
		return WatchedStock{}, false
	}
	current := closes[len(closes)-1]
	targets := config.CheckProximity(current, highs, previousS1Winner)
	if len(targets) == 0 {
		return WatchedStock{}, false
	}
	return WatchedStock{
		StockID:          candidate.StockID,
		Symbol:           candidate.Symbol,
		Name:             candidate.Name,
		Highs:            highs,
		Lows:             lows,
		Closes:           closes,
		N:                n,
		PreviousS1Winner: previousS1Winner,
		Targets:          targets,
		LastPrice:        current,
	}, true
}
