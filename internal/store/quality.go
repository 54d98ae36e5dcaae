package store

import (
	"math"
	"sort"
	"time"

	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BarQualityValidator checks OHLCV history for the kind of bad data that
// silently corrupts an ATR/Donchian calculation: gaps, zero/negative
// prices, inverted OHLC, duplicate or out-of-order timestamps. GetPeriod
// runs every fetched window through it and logs a warning rather than
// rejecting the data outright, since the signal engine still needs
// something to compute against.
type BarQualityValidator struct {
	logger *zap.Logger

	MaxIntradayMove   float64 // e.g. 0.20 for a 20% circuit-breaker-sized move
	MaxGapMove        float64 // e.g. 0.15 for a 15% overnight gap
	MaxVolumeMultiple float64 // multiple of average volume flagged as a spike
}

// NewBarQualityValidator returns a validator tuned for equities (KRX/US),
// not the crypto-market defaults the 24/7-trading research it's based on
// assumed.
func NewBarQualityValidator(logger *zap.Logger) *BarQualityValidator {
	return &BarQualityValidator{
		logger:            logger,
		MaxIntradayMove:   0.20,
		MaxGapMove:        0.15,
		MaxVolumeMultiple: 10.0,
	}
}

// BarIssue is a single data-quality finding against one bar.
type BarIssue struct {
	Type     string
	Severity string // "critical", "high", "medium", "low"
	Index    int
	Message  string
}

// QualityReport summarizes a validation pass over one symbol's bar window.
type QualityReport struct {
	StockID      uint
	TotalBars    int
	Issues       []BarIssue
	QualityScore int // 0-100
	IsUsable     bool
}

// Validate runs gap, price, volume, OHLC-consistency, duplicate, and
// ordering checks over bars, which must already be sorted ascending by
// Timestamp (GetPeriod guarantees this).
func (v *BarQualityValidator) Validate(stockID uint, bars []types.OHLCV) QualityReport {
	if len(bars) == 0 {
		return QualityReport{StockID: stockID, Issues: []BarIssue{{Type: "NO_DATA", Severity: "critical", Message: "no bars returned"}}}
	}

	var issues []BarIssue
	issues = append(issues, v.checkGaps(bars)...)
	issues = append(issues, v.checkPrices(bars)...)
	issues = append(issues, v.checkVolume(bars)...)
	issues = append(issues, v.checkOHLC(bars)...)
	issues = append(issues, v.checkOrdering(bars)...)

	score := qualityScore(len(bars), issues)
	report := QualityReport{
		StockID:      stockID,
		TotalBars:    len(bars),
		Issues:       issues,
		QualityScore: score,
		IsUsable:     score >= 70 && !hasCritical(issues),
	}
	if len(issues) > 0 {
		v.logger.Warn("bar_quality_issues",
			zap.Uint("stock_id", stockID),
			zap.Int("issue_count", len(issues)),
			zap.Int("quality_score", score),
		)
	}
	return report
}

func (v *BarQualityValidator) checkGaps(bars []types.OHLCV) []BarIssue {
	if len(bars) < 3 {
		return nil
	}
	n := len(bars) - 1
	if n > 10 {
		n = 10
	}
	intervals := make([]time.Duration, 0, n)
	for i := 1; i <= n; i++ {
		intervals = append(intervals, bars[i].Timestamp.Sub(bars[i-1].Timestamp))
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
	expected := intervals[len(intervals)/2]

	var issues []BarIssue
	for i := 1; i < len(bars); i++ {
		actual := bars[i].Timestamp.Sub(bars[i-1].Timestamp)
		if expected > 0 && actual > expected*5 {
			issues = append(issues, BarIssue{Type: "GAP_DETECTED", Severity: "medium", Index: i, Message: "bar interval exceeds 5x the typical spacing"})
		}
	}
	return issues
}

func (v *BarQualityValidator) checkPrices(bars []types.OHLCV) []BarIssue {
	var issues []BarIssue
	for i, bar := range bars {
		if bar.Open.LessThanOrEqual(decimal.Zero) || bar.High.LessThanOrEqual(decimal.Zero) ||
			bar.Low.LessThanOrEqual(decimal.Zero) || bar.Close.LessThanOrEqual(decimal.Zero) {
			issues = append(issues, BarIssue{Type: "NONPOSITIVE_PRICE", Severity: "critical", Index: i, Message: "zero or negative OHLC value"})
			continue
		}
		if !bar.Low.IsZero() {
			if move, _ := bar.High.Sub(bar.Low).Div(bar.Low).Float64(); move > v.MaxIntradayMove {
				issues = append(issues, BarIssue{Type: "EXTREME_MOVE", Severity: "high", Index: i, Message: "intraday high/low range exceeds configured threshold"})
			}
		}
		if i > 0 && !bars[i-1].Close.IsZero() {
			if move, _ := bar.Open.Sub(bars[i-1].Close).Div(bars[i-1].Close).Abs().Float64(); move > v.MaxGapMove {
				issues = append(issues, BarIssue{Type: "GAP_MOVE", Severity: "medium", Index: i, Message: "open gapped from previous close beyond configured threshold"})
			}
		}
	}
	return issues
}

func (v *BarQualityValidator) checkVolume(bars []types.OHLCV) []BarIssue {
	var total decimal.Decimal
	nonZero := 0
	for _, bar := range bars {
		if bar.Volume.GreaterThan(decimal.Zero) {
			total = total.Add(bar.Volume)
			nonZero++
		}
	}
	if nonZero == 0 {
		return nil
	}
	avg, _ := total.Div(decimal.NewFromInt(int64(nonZero))).Float64()

	var issues []BarIssue
	for i, bar := range bars {
		vol, _ := bar.Volume.Float64()
		if avg > 0 && vol > avg*v.MaxVolumeMultiple {
			issues = append(issues, BarIssue{Type: "VOLUME_SPIKE", Severity: "low", Index: i, Message: "volume spike relative to window average"})
		}
	}
	return issues
}

func (v *BarQualityValidator) checkOHLC(bars []types.OHLCV) []BarIssue {
	var issues []BarIssue
	for i, bar := range bars {
		if bar.High.LessThan(bar.Open) || bar.High.LessThan(bar.Close) || bar.High.LessThan(bar.Low) ||
			bar.Low.GreaterThan(bar.Open) || bar.Low.GreaterThan(bar.Close) {
			issues = append(issues, BarIssue{Type: "OHLC_INCONSISTENT", Severity: "critical", Index: i, Message: "high/low does not bound open/close"})
		}
	}
	return issues
}

func (v *BarQualityValidator) checkOrdering(bars []types.OHLCV) []BarIssue {
	var issues []BarIssue
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			issues = append(issues, BarIssue{Type: "OUT_OF_ORDER", Severity: "high", Index: i, Message: "bar timestamp does not strictly follow the previous bar"})
		}
	}
	return issues
}

func qualityScore(totalBars int, issues []BarIssue) int {
	penalty := 0.0
	for _, issue := range issues {
		switch issue.Severity {
		case "critical":
			penalty += 10
		case "high":
			penalty += 5
		case "medium":
			penalty += 2
		case "low":
			penalty += 0.5
		}
	}
	normalized := penalty / math.Max(1, float64(totalBars)/100) * 10
	score := 100 - math.Min(normalized, 100)
	if score < 0 {
		score = 0
	}
	return int(score)
}

func hasCritical(issues []BarIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "critical" {
			return true
		}
	}
	return false
}
