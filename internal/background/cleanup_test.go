package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRun struct {
	job     string
	removed int64
	err     error
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []recordedRun
}

func (r *fakeRecorder) JobRun(job string, removed int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, recordedRun{job, removed, err})
}

func (r *fakeRecorder) snapshot() []recordedRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRun(nil), r.runs...)
}

type fakeOTPs struct{ before time.Time }

func (f *fakeOTPs) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return 3, nil
}

type fakeSweeper struct{}

func (fakeSweeper) Sweep() int { return 2 }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStart_RunsEveryJobImmediately(t *testing.T) {
	recorder := &fakeRecorder{}
	otps := &fakeOTPs{}
	failing := Job{Name: "broken", Run: func(context.Context) (int64, error) {
		return 0, errors.New("connection refused")
	}}

	cm := NewCleanupManager(discard(), recorder, time.Hour, EmailOTPJob(otps), LimiterSweepJob(fakeSweeper{}), failing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cm.Start(ctx))
	defer cm.Stop()

	runs := recorder.snapshot()
	require.Len(t, runs, 3)
	assert.Equal(t, recordedRun{"email_otps", 3, nil}, runs[0])
	assert.Equal(t, recordedRun{"limiter_sweep", 2, nil}, runs[1])
	assert.Equal(t, "broken", runs[2].job)
	assert.Error(t, runs[2].err)
	assert.WithinDuration(t, time.Now(), otps.before, 5*time.Second)
}

func TestRunJob_SkipsAfterCancel(t *testing.T) {
	recorder := &fakeRecorder{}
	cm := NewCleanupManager(discard(), recorder, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cm.RunJob(ctx, LimiterSweepJob(fakeSweeper{}))

	assert.Empty(t, recorder.snapshot())
}

func TestStart_RejectsBadInterval(t *testing.T) {
	cm := NewCleanupManager(discard(), nil, 0, LimiterSweepJob(fakeSweeper{}))
	assert.Error(t, cm.Start(context.Background()))
}

func TestStart_PresenceSweepRunsOnItsOwnInterval(t *testing.T) {
	recorder := &fakeRecorder{}
	cm := NewCleanupManager(discard(), recorder, time.Hour, LimiterSweepJob(fakeSweeper{}), PresenceSweepJob(fakeSweeper{}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cm.Start(ctx))
	defer cm.Stop()

	runs := recorder.snapshot()
	require.Len(t, runs, 2)
	assert.Equal(t, recordedRun{"presence_sweep", 2, nil}, runs[1])

	delays := make([]time.Duration, 0, 2)
	for _, entry := range cm.cron.Entries() {
		schedule, ok := entry.Schedule.(cron.ConstantDelaySchedule)
		require.True(t, ok)
		delays = append(delays, schedule.Delay)
	}
	assert.ElementsMatch(t, []time.Duration{time.Hour, PresenceSweepInterval}, delays)
}
