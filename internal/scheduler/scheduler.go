// Package scheduler fires named jobs against a narrow cron-subset trigger:
// a single hour, an hour range ("9-15"), or a minute step ("*/5"). The
// example corpus carries no cron library, so the trigger evaluator below is
// hand-built against stdlib time, matching the scale of what it needs to
// express (four job shapes, not general cron syntax).
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Trigger describes when a job should fire: an hour range (From<=hour<=To)
// and a minute step within that range ("every MinuteStep minutes").
type Trigger struct {
	FromHour   int
	ToHour     int
	MinuteStep int // 0 means "fire once, at minute Minute, within the hour range"
	Minute     int
}

// At builds a once-daily trigger firing at hour:minute.
func At(hour, minute int) Trigger {
	return Trigger{FromHour: hour, ToHour: hour, MinuteStep: 0, Minute: minute}
}

// Every builds a trigger firing every stepMinutes within [fromHour, toHour].
func Every(fromHour, toHour, stepMinutes int) Trigger {
	return Trigger{FromHour: fromHour, ToHour: toHour, MinuteStep: stepMinutes}
}

// Matches reports whether t falls on this trigger's schedule, to
// minute resolution.
func (tr Trigger) Matches(t time.Time) bool {
	hour := t.Hour()
	if hour < tr.FromHour || hour > tr.ToHour {
		return false
	}
	if tr.MinuteStep <= 0 {
		return hour == tr.FromHour && t.Minute() == tr.Minute
	}
	return t.Minute()%tr.MinuteStep == 0
}

func (tr Trigger) String() string {
	if tr.MinuteStep <= 0 {
		return fmt.Sprintf("%02d:%02d", tr.FromHour, tr.Minute)
	}
	return fmt.Sprintf("%d-%d */%d", tr.FromHour, tr.ToHour, tr.MinuteStep)
}

// ParseHourRange parses "9-15" or a single hour "9" into (from, to).
func ParseHourRange(spec string) (int, int, error) {
	parts := strings.SplitN(spec, "-", 2)
	from, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour range %q: %w", spec, err)
	}
	if len(parts) == 1 {
		return from, from, nil
	}
	to, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour range %q: %w", spec, err)
	}
	return from, to, nil
}

// Job pairs a name, a trigger, and the function to run when it fires.
type Job struct {
	Name    string
	Trigger Trigger
	Run     func(ctx context.Context)
}

// Scheduler polls once a minute and fires every job whose trigger matches
// the current local time, at most once per matching minute.
type Scheduler struct {
	logger *zap.Logger
	loc    *time.Location

	mu       sync.Mutex
	jobs     map[string]*Job
	lastFire map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a scheduler evaluating triggers in the given location (e.g.
// Asia/Seoul for KRX, America/New_York for US).
func New(logger *zap.Logger, loc *time.Location) *Scheduler {
	return &Scheduler{
		logger:   logger.Named("scheduler"),
		loc:      loc,
		jobs:     make(map[string]*Job),
		lastFire: make(map[string]time.Time),
	}
}

// AddJob registers or replaces a named job.
func (s *Scheduler) AddJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = &job
}

// RemoveJob unregisters a job by name.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
	delete(s.lastFire, name)
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Start begins the once-a-minute polling loop; idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(runCtx)
}

// Stop halts the polling loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().In(s.loc).Truncate(time.Minute)

	s.mu.Lock()
	var toRun []*Job
	for name, job := range s.jobs {
		if !job.Trigger.Matches(now) {
			continue
		}
		if last, ok := s.lastFire[name]; ok && last.Equal(now) {
			continue
		}
		s.lastFire[name] = now
		toRun = append(toRun, job)
	}
	s.mu.Unlock()

	for _, job := range toRun {
		s.logger.Info("job_fired", zap.String("job", job.Name))
		go func(j *Job) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("job_panicked", zap.String("job", j.Name), zap.Any("panic", r))
				}
			}()
			j.Run(ctx)
		}(job)
	}
}
