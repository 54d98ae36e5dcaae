package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ParseHHMM parses a "HH:MM" session-time string.
func ParseHHMM(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	return hour, minute, nil
}

// MarketHandlers are the callbacks a market's standard job set invokes.
type MarketHandlers struct {
	Premarket       func(ctx context.Context)
	RealtimeSignals func(ctx context.Context)
	Monitoring      func(ctx context.Context)
	DailyReport     func(ctx context.Context)
}

// MarketTimes mirrors pkg/config's MarketSchedule shape without importing
// pkg/config, to keep this package dependency-light.
type MarketTimes struct {
	PremarketHour, PremarketMinute     int
	ScreeningHour, ScreeningMinute     int
	OpenHour, OpenMinute               int
	CloseHour, CloseMinute             int
	SignalCheckIntervalMinutes         int
	MonitoringIntervalMinutes          int
}

// RegisterMarketJobs wires the four standard jobs for a market onto the
// scheduler: premarket setup at the configured time, realtime signal checks
// every signalCheckInterval minutes during the session, position monitoring
// every monitoringInterval minutes during the session, and a daily report
// fired 30 minutes after close.
func RegisterMarketJobs(s *Scheduler, marketName string, times MarketTimes, handlers MarketHandlers) {
	s.AddJob(Job{
		Name:    fmt.Sprintf("%s_premarket", marketName),
		Trigger: At(times.PremarketHour, times.PremarketMinute),
		Run:     handlers.Premarket,
	})

	s.AddJob(Job{
		Name:    fmt.Sprintf("%s_realtime_signals", marketName),
		Trigger: Every(times.OpenHour, times.CloseHour, times.SignalCheckIntervalMinutes),
		Run:     handlers.RealtimeSignals,
	})

	s.AddJob(Job{
		Name:    fmt.Sprintf("%s_monitoring", marketName),
		Trigger: Every(times.OpenHour, times.CloseHour, times.MonitoringIntervalMinutes),
		Run:     handlers.Monitoring,
	})

	reportHour, reportMinute := addMinutes(times.CloseHour, times.CloseMinute, 30)
	s.AddJob(Job{
		Name:    fmt.Sprintf("%s_daily_report", marketName),
		Trigger: At(reportHour, reportMinute),
		Run:     handlers.DailyReport,
	})
}

func addMinutes(hour, minute, delta int) (int, int) {
	total := hour*60 + minute + delta
	total %= 24 * 60
	return total / 60, total % 60
}

// LocationFor resolves the IANA timezone for a market; defaults to UTC if
// the name is unrecognized, logging a warning since a wrong timezone would
// silently fire jobs at the wrong wall-clock time.
func LocationFor(logger *zap.Logger, marketName string) *time.Location {
	name := "Asia/Seoul"
	if marketName == "us" {
		name = "America/New_York"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("timezone_load_failed_defaulting_utc", zap.String("market", marketName), zap.Error(err))
		return time.UTC
	}
	return loc
}
