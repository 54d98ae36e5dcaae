package config

import (
	"os"
	"testing"
)

func TestLoad_EmptyPathFallsBackToDefaults(t *testing.T) {
	settings, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !settings.IsPaperMode() {
		t.Errorf("expected the default trading mode to be paper")
	}
	if settings.Risk.RiskPerUnit != 0.02 {
		t.Errorf("Risk.RiskPerUnit = %v, want 0.02 (default)", settings.Risk.RiskPerUnit)
	}
	if settings.Schedule.KRX.MarketOpen != "09:00" {
		t.Errorf("Schedule.KRX.MarketOpen = %q, want 09:00 (default)", settings.Schedule.KRX.MarketOpen)
	}
}

func TestLoad_ExplicitMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/settings.yaml"); err == nil {
		t.Errorf("expected an error reading an explicitly named, nonexistent config file")
	}
}

func TestLoad_EnvOverrideWinsOverDefault(t *testing.T) {
	t.Setenv("TURTLE_CANSLIM_RISK__RISK_PER_UNIT", "0.05")

	settings, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Risk.RiskPerUnit != 0.05 {
		t.Errorf("Risk.RiskPerUnit = %v, want 0.05 (env override)", settings.Risk.RiskPerUnit)
	}
}

func TestLoad_LiveModeWithoutKRXCredentialsErrors(t *testing.T) {
	t.Setenv("TURTLE_CANSLIM_TRADING_MODE", "live")
	os.Unsetenv("TURTLE_CANSLIM_KIS_LIVE_APP_KEY")
	os.Unsetenv("TURTLE_CANSLIM_KIS_LIVE_APP_SECRET")
	os.Unsetenv("TURTLE_CANSLIM_KIS_LIVE_ACCOUNT")

	if _, err := Load(""); err == nil {
		t.Errorf("expected an error when live mode is set without KIS live credentials")
	}
}

func TestLoad_LiveModeWithCredentialsSucceeds(t *testing.T) {
	t.Setenv("TURTLE_CANSLIM_TRADING_MODE", "live")
	t.Setenv("TURTLE_CANSLIM_KIS_LIVE_APP_KEY", "key")
	t.Setenv("TURTLE_CANSLIM_KIS_LIVE_APP_SECRET", "secret")
	t.Setenv("TURTLE_CANSLIM_KIS_LIVE_ACCOUNT", "acct")

	settings, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !settings.IsLiveMode() {
		t.Errorf("expected live mode to be set")
	}
}
