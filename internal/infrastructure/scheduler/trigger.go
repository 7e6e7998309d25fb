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

// TriggerConfig holds configuration for the job trigger
type TriggerConfig struct {
	// SweepInterval is how often a billing sweep is submitted; zero disables it
	SweepInterval time.Duration
	// DailySummary is a "minute hour * * *" expression; empty disables it
	DailySummary string
	// CheckInterval is how often the daily schedule is checked
	CheckInterval time.Duration
	// RetryAttempts is handed to every submitted job
	RetryAttempts int
}

// DefaultTriggerConfig sweeps every 15 minutes and summarizes at 23:55
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		SweepInterval: 15 * time.Minute,
		DailySummary:  "55 23 * * *",
		CheckInterval: time.Minute,
		RetryAttempts: 3,
	}
}

// ParseCronSchedule parses a daily "minute hour * * *" expression. Only
// literal minute and hour fields are supported.
func ParseCronSchedule(expr string) (hour, minute int, err error) {
	parts := strings.Fields(expr)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("%w: schedule %q needs minute and hour", ErrInvalidConfig, expr)
	}
	if minute, err = strconv.Atoi(parts[0]); err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: minute must be 0-59, got %q", ErrInvalidConfig, parts[0])
	}
	if hour, err = strconv.Atoi(parts[1]); err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: hour must be 0-23, got %q", ErrInvalidConfig, parts[1])
	}
	return hour, minute, nil
}

// TriggerStatus is a point-in-time view of the trigger
type TriggerStatus struct {
	Running        bool       `json:"running"`
	SweepInterval  string     `json:"sweep_interval"`
	LastSweepAt    *time.Time `json:"last_sweep_at,omitempty"`
	NextSweepAt    *time.Time `json:"next_sweep_at,omitempty"`
	LastSummaryAt  *time.Time `json:"last_summary_at,omitempty"`
	NextSummaryAt  *time.Time `json:"next_summary_at,omitempty"`
	SchedulerStats Stats      `json:"scheduler_stats"`
}

// Trigger submits sweep jobs on an interval and a summary job once a day
type Trigger struct {
	config    TriggerConfig
	scheduler *Scheduler
	logger    *zap.Logger
	now       func() time.Time

	summaryHour   int
	summaryMinute int
	summaryOn     bool

	cancel          context.CancelFunc
	wg              sync.WaitGroup
	mu              sync.Mutex
	isRunning       bool
	lastSweepAt     *time.Time
	nextSweepAt     *time.Time
	lastSummaryAt   *time.Time
	lastSummaryDate string
}

// NewTrigger creates a trigger feeding scheduler
func NewTrigger(config TriggerConfig, scheduler *Scheduler, logger *zap.Logger) (*Trigger, error) {
	if config.SweepInterval < 0 {
		return nil, fmt.Errorf("%w: sweep interval cannot be negative", ErrInvalidConfig)
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trigger{
		config:    config,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
	if config.DailySummary != "" {
		hour, minute, err := ParseCronSchedule(config.DailySummary)
		if err != nil {
			return nil, err
		}
		t.summaryHour, t.summaryMinute, t.summaryOn = hour, minute, true
	}
	return t, nil
}

// Start submits a first sweep immediately and then runs the schedule loops
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	if t.config.SweepInterval > 0 {
		t.submit(JobKindSweep)
		t.wg.Add(1)
		go t.sweepLoop(ctx)
	}
	if t.summaryOn {
		t.wg.Add(1)
		go t.summaryLoop(ctx)
	}

	t.logger.Info("Job trigger started",
		zap.Duration("sweep_interval", t.config.SweepInterval),
		zap.String("daily_summary", t.config.DailySummary),
	)
	return nil
}

// Stop stops the schedule loops. The scheduler is left running.
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Job trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerNow submits a job of kind outside the schedule
func (t *Trigger) TriggerNow(kind JobKind) error {
	t.mu.Lock()
	running := t.isRunning
	t.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}
	return t.scheduler.Submit(NewJob(kind, t.config.RetryAttempts))
}

// Status returns the trigger state
func (t *Trigger) Status() TriggerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := TriggerStatus{
		Running:        t.isRunning,
		SweepInterval:  t.config.SweepInterval.String(),
		LastSweepAt:    t.lastSweepAt,
		NextSweepAt:    t.nextSweepAt,
		LastSummaryAt:  t.lastSummaryAt,
		SchedulerStats: t.scheduler.Stats(),
	}
	if t.summaryOn {
		next := t.nextSummary(t.now())
		status.NextSummaryAt = &next
	}
	return status
}

func (t *Trigger) sweepLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.submit(JobKindSweep)
		}
	}
}

func (t *Trigger) summaryLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.summaryDue(t.now()) {
				t.submit(JobKindDailySummary)
			}
		}
	}
}

// summaryDue returns true once per day, at or after the configured time
func (t *Trigger) summaryDue(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := now.Format("2006-01-02")
	if t.lastSummaryDate == today {
		return false
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), t.summaryHour, t.summaryMinute, 0, 0, now.Location())
	if now.Before(at) {
		return false
	}
	t.lastSummaryDate = today
	return true
}

// nextSummary returns the next daily run at or after now
func (t *Trigger) nextSummary(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), t.summaryHour, t.summaryMinute, 0, 0, now.Location())
	if t.lastSummaryDate == now.Format("2006-01-02") || now.After(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (t *Trigger) submit(kind JobKind) {
	now := t.now()
	t.mu.Lock()
	switch kind {
	case JobKindSweep:
		next := now.Add(t.config.SweepInterval)
		t.lastSweepAt, t.nextSweepAt = &now, &next
	case JobKindDailySummary:
		t.lastSummaryAt = &now
	}
	t.mu.Unlock()

	if err := t.scheduler.Submit(NewJob(kind, t.config.RetryAttempts)); err != nil {
		t.logger.Warn("Failed to submit scheduled job",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}
