package workers

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// QuoteFunc fetches one symbol's current price.
type QuoteFunc func(ctx context.Context, symbol string) (decimal.Decimal, error)

// QuoteBatchResult is the outcome of fetching a batch of symbols: per-symbol
// prices for whatever succeeded, plus a count of failures so the caller can
// log a single structured warning instead of one line per miss.
type QuoteBatchResult struct {
	Prices      map[string]decimal.Decimal
	FailedCount int
	Total       int
}

// FetchQuotes fans symbols out across the pool, tolerating per-symbol
// failures: a failed quote is dropped from the result and counted, it never
// aborts the batch.
func FetchQuotes(ctx context.Context, logger *zap.Logger, pool *Pool, symbols []string, fetch QuoteFunc) QuoteBatchResult {
	var mu sync.Mutex
	var wg sync.WaitGroup
	result := QuoteBatchResult{Prices: make(map[string]decimal.Decimal, len(symbols)), Total: len(symbols)}

	for _, symbol := range symbols {
		symbol := symbol
		wg.Add(1)
		if err := pool.SubmitFunc(func() error {
			defer wg.Done()
			price, err := fetch(ctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailedCount++
				return nil
			}
			result.Prices[symbol] = price
			return nil
		}); err != nil {
			wg.Done()
			mu.Lock()
			result.FailedCount++
			mu.Unlock()
		}
	}

	wg.Wait()

	if result.FailedCount > 0 {
		logger.Warn("quote_batch_partial_failure",
			zap.Int("failed_count", result.FailedCount), zap.Int("total_requested", result.Total))
	}

	return result
}
