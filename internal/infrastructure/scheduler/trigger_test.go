package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronSchedule(t *testing.T) {
	tests := []struct {
		name       string
		expr       string
		wantHour   int
		wantMinute int
		wantErr    bool
	}{
		{name: "end of day", expr: "55 23 * * *", wantHour: 23, wantMinute: 55},
		{name: "midnight", expr: "0 0 * * *", wantHour: 0, wantMinute: 0},
		{name: "extra whitespace", expr: "  15   4   *   *   *  ", wantHour: 4, wantMinute: 15},
		{name: "minute and hour only", expr: "30 6", wantHour: 6, wantMinute: 30},
		{name: "empty", expr: "", wantErr: true},
		{name: "wildcard hour", expr: "0 * * * *", wantErr: true},
		{name: "minute out of range", expr: "60 2 * * *", wantErr: true},
		{name: "hour out of range", expr: "0 24 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hour, minute, err := ParseCronSchedule(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHour, hour)
			assert.Equal(t, tt.wantMinute, minute)
		})
	}
}

func newTestTrigger(t *testing.T, cfg TriggerConfig, rec *recorder) (*Trigger, *Scheduler) {
	t.Helper()
	s := startScheduler(t, testConfig(), rec, nil)
	tr, err := NewTrigger(cfg, s, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Stop(context.Background()) })
	return tr, s
}

func TestTrigger_SweepsOnInterval(t *testing.T) {
	rec := &recorder{}
	tr, s := newTestTrigger(t, TriggerConfig{SweepInterval: 20 * time.Millisecond}, rec)

	require.NoError(t, tr.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Stats().Succeeded >= 3 }, 2*time.Second, 5*time.Millisecond)
	for _, kind := range rec.seen() {
		assert.Equal(t, JobKindSweep, kind)
	}

	status := tr.Status()
	assert.True(t, status.Running)
	assert.Equal(t, "20ms", status.SweepInterval)
	require.NotNil(t, status.LastSweepAt)
	require.NotNil(t, status.NextSweepAt)
	assert.Equal(t, 20*time.Millisecond, status.NextSweepAt.Sub(*status.LastSweepAt))
	assert.Nil(t, status.NextSummaryAt)

	require.NoError(t, tr.Stop(context.Background()))
	assert.False(t, tr.Status().Running)
}

func TestTrigger_SummaryDueOncePerDay(t *testing.T) {
	rec := &recorder{}
	tr, _ := newTestTrigger(t, TriggerConfig{DailySummary: "55 23 * * *"}, rec)

	day := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.False(t, tr.summaryDue(day.Add(23*time.Hour+54*time.Minute)))
	assert.True(t, tr.summaryDue(day.Add(23*time.Hour+55*time.Minute)))
	assert.False(t, tr.summaryDue(day.Add(23*time.Hour+56*time.Minute)))
	assert.Equal(t, day.AddDate(0, 0, 1).Add(23*time.Hour+55*time.Minute), tr.nextSummary(day.Add(23*time.Hour+56*time.Minute)))

	// a trigger started after the daily time still runs that day
	next := day.AddDate(0, 0, 1)
	assert.True(t, tr.summaryDue(next.Add(23*time.Hour+59*time.Minute)))
}

func TestTrigger_NextSummaryBeforeRun(t *testing.T) {
	tr, _ := newTestTrigger(t, TriggerConfig{DailySummary: "30 6 * * *"}, &recorder{})
	now := time.Date(2024, 6, 15, 5, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	status := tr.Status()
	require.NotNil(t, status.NextSummaryAt)
	assert.Equal(t, time.Date(2024, 6, 15, 6, 30, 0, 0, time.UTC), *status.NextSummaryAt)
}

func TestTrigger_TriggerNow(t *testing.T) {
	rec := &recorder{}
	tr, s := newTestTrigger(t, TriggerConfig{}, rec)

	assert.ErrorIs(t, tr.TriggerNow(JobKindDailySummary), ErrSchedulerNotRunning)

	require.NoError(t, tr.Start(context.Background()))
	require.NoError(t, tr.TriggerNow(JobKindDailySummary))
	require.Eventually(t, func() bool { return s.Stats().Succeeded == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []JobKind{JobKindDailySummary}, rec.seen())
}

func TestNewTrigger_InvalidConfig(t *testing.T) {
	s, err := NewScheduler(testConfig(), &recorder{}, nil)
	require.NoError(t, err)

	_, err = NewTrigger(TriggerConfig{SweepInterval: -time.Second}, s, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewTrigger(TriggerConfig{DailySummary: "noon"}, s, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, time.Minute, DefaultTriggerConfig().CheckInterval)
}
