// Package atr computes Wilder-style Average True Range over OHLC series.
package atr

import (
	"github.com/blood8879/turtle-canslim/internal/apperrors"
	"github.com/shopspring/decimal"
)

// Result is the ATR value ("N" in Turtle terminology) and its percent of price.
type Result struct {
	ATR        decimal.Decimal
	ATRPercent decimal.Decimal
}

// TrueRange computes the true range of a single bar given its high, low, and
// the previous bar's close.
func TrueRange(high, low, prevClose decimal.Decimal) decimal.Decimal {
	hl := high.Sub(low)
	hc := high.Sub(prevClose).Abs()
	lc := low.Sub(prevClose).Abs()

	tr := hl
	if hc.GreaterThan(tr) {
		tr = hc
	}
	if lc.GreaterThan(tr) {
		tr = lc
	}
	return tr
}

// Calculate computes ATR over the last `period` True Ranges of equal-length
// high/low/close series. Requires at least period+1 bars (bar 0 has no TR).
func Calculate(highs, lows, closes []decimal.Decimal, period int) (Result, error) {
	n := len(highs)
	if n != len(lows) || n != len(closes) {
		return Result{}, &apperrors.InsufficientDataError{Symbol: "", Required: period + 1, Available: n}
	}
	if n < period+1 {
		return Result{}, &apperrors.InsufficientDataError{Symbol: "", Required: period + 1, Available: n}
	}

	trs := make([]decimal.Decimal, 0, n-1)
	for i := 1; i < n; i++ {
		trs = append(trs, TrueRange(highs[i], lows[i], closes[i-1]))
	}

	recent := trs[len(trs)-period:]
	sum := decimal.Zero
	for _, tr := range recent {
		sum = sum.Add(tr)
	}
	value := sum.Div(decimal.NewFromInt(int64(period)))

	current := closes[n-1]
	var pct decimal.Decimal
	if !current.IsZero() {
		pct = value.Div(current).Mul(decimal.NewFromInt(100))
	}

	return Result{ATR: value, ATRPercent: pct}, nil
}

// CalculateN is a convenience wrapper returning only the ATR ("N") value.
func CalculateN(highs, lows, closes []decimal.Decimal, period int) (decimal.Decimal, error) {
	result, err := Calculate(highs, lows, closes, period)
	if err != nil {
		return decimal.Zero, err
	}
	return result.ATR, nil
}
