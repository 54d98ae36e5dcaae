package stoploss

import (
	"testing"

	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateInitialStop_PicksTighterOfTwoNAndPercentRule(t *testing.T) {
	c := DefaultConfig()

	// entry 100, N 2 -> 2N stop at 96; percent stop at 100*(1-0.08)=92.
	// 96 >= 92, so the 2N stop wins.
	got := c.CalculateInitialStop(dec("100"), dec("2"))

	if !got.StopPrice.Equal(dec("96")) {
		t.Errorf("StopPrice = %s, want 96", got.StopPrice)
	}
	if got.StopType != types.StopLossTypeATR2N {
		t.Errorf("StopType = %s, want %s", got.StopType, types.StopLossTypeATR2N)
	}
}

func TestCalculateInitialStop_FallsBackToPercentRuleOnWideN(t *testing.T) {
	c := DefaultConfig()

	// entry 100, N 10 -> 2N stop at 80; percent stop at 92. 80 < 92, percent wins.
	got := c.CalculateInitialStop(dec("100"), dec("10"))

	if !got.StopPrice.Equal(dec("92")) {
		t.Errorf("StopPrice = %s, want 92", got.StopPrice)
	}
	if got.StopType != types.StopLossTypePercent {
		t.Errorf("StopType = %s, want %s", got.StopType, types.StopLossTypePercent)
	}
}

func TestCalculateTrailingStop_RatchetsUpNeverDown(t *testing.T) {
	c := DefaultConfig()

	raised := c.CalculateTrailingStop(dec("110"), dec("2"), dec("96"))
	if !raised.Equal(dec("106")) {
		t.Errorf("raised stop = %s, want 106", raised)
	}

	held := c.CalculateTrailingStop(dec("95"), dec("2"), dec("106"))
	if !held.Equal(dec("106")) {
		t.Errorf("held stop = %s, want unchanged 106", held)
	}
}

func TestCalculateBreakevenStop_MovesToEntryPastThreshold(t *testing.T) {
	c := DefaultConfig()

	// 1 ATR of profit (entry 100, N 2, price 102) crosses the threshold.
	moved := c.CalculateBreakevenStop(dec("102"), dec("100"), dec("2"), dec("96"))
	if !moved.Equal(dec("100")) {
		t.Errorf("moved stop = %s, want 100", moved)
	}

	// Below threshold, stop is untouched.
	held := c.CalculateBreakevenStop(dec("101"), dec("100"), dec("2"), dec("96"))
	if !held.Equal(dec("96")) {
		t.Errorf("held stop = %s, want unchanged 96", held)
	}
}

func TestCalculateBreakevenStop_ZeroNLeavesStopUnchanged(t *testing.T) {
	c := DefaultConfig()

	got := c.CalculateBreakevenStop(dec("105"), dec("100"), dec("0"), dec("96"))
	if !got.Equal(dec("96")) {
		t.Errorf("got = %s, want unchanged 96", got)
	}
}

func TestShouldTriggerStop(t *testing.T) {
	cases := []struct {
		price, stop decimal.Decimal
		want        bool
	}{
		{dec("95"), dec("96"), true},
		{dec("96"), dec("96"), true},
		{dec("97"), dec("96"), false},
	}
	for _, c := range cases {
		if got := ShouldTriggerStop(c.price, c.stop); got != c.want {
			t.Errorf("ShouldTriggerStop(%s, %s) = %v, want %v", c.price, c.stop, got, c.want)
		}
	}
}
