package apperrors

import (
	"errors"
	"testing"
)

func TestInsufficientDataError_FormatsSymbolAndCounts(t *testing.T) {
	err := &InsufficientDataError{Symbol: "AAPL", Required: 20, Available: 5}
	want := "insufficient data for AAPL: required 20, available 5"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestSlippageExceededError_FormatsPercentagesAsPercent(t *testing.T) {
	err := &SlippageExceededError{Symbol: "AAPL", SlippagePct: 0.021, MaxSlippagePct: 0.015}
	want := "entry slippage 2.10% exceeds max 1.50% for AAPL"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestOrderError_IncludesOrderIDOnlyWhenSet(t *testing.T) {
	withID := &OrderError{Message: "rejected", OrderID: "ord-1"}
	if got, want := withID.Error(), "order ord-1: rejected"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	withoutID := &OrderError{Message: "rejected"}
	if got, want := withoutID.Error(), "rejected"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestOrderError_UnwrapExposesUnderlyingError(t *testing.T) {
	cause := errors.New("broker timeout")
	err := &OrderError{Message: "rejected", Err: cause}
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the wrapped cause via Unwrap")
	}
}

func TestDatabaseError_UnwrapExposesUnderlyingError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &DatabaseError{Message: "query failed", Err: cause}
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the wrapped cause via Unwrap")
	}
	if got, want := err.Error(), "database error: query failed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
