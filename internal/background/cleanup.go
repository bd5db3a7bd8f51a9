package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single cleanup run
const jobTimeout = 30 * time.Second

// RevokedTokenCleaner removes revocation rows whose token has expired anyway
type RevokedTokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// ExpiredRowCleaner deletes rows that expired before the given time
type ExpiredRowCleaner interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ChallengeCleaner deletes MFA challenges that expired before the given time
type ChallengeCleaner interface {
	DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper evicts expired in-process entries and reports how many went
type Sweeper interface {
	Sweep() int
}

// JobRecorder receives the outcome of every job run
type JobRecorder interface {
	JobRun(job string, removed int64, err error)
}

// Job is one named cleanup task
type Job struct {
	Name string
	Run  func(ctx context.Context) (int64, error)

	// Every overrides the manager interval when set
	Every time.Duration
}

// PresenceSweepInterval is shorter than the default cleanup interval
// because presence set over HTTP expires within minutes
const PresenceSweepInterval = time.Minute

// RevokedTokensJob purges expired entries from the revocation table
func RevokedTokensJob(repo RevokedTokenCleaner) Job {
	return Job{Name: "revoked_tokens", Run: repo.CleanupExpiredTokens}
}

// EmailOTPJob purges expired sign-in codes
func EmailOTPJob(repo ExpiredRowCleaner) Job {
	return Job{Name: "email_otps", Run: func(ctx context.Context) (int64, error) {
		return repo.DeleteExpired(ctx, time.Now())
	}}
}

// MFAChallengeJob purges expired MFA challenges
func MFAChallengeJob(repo ChallengeCleaner) Job {
	return Job{Name: "mfa_challenges", Run: func(ctx context.Context) (int64, error) {
		return repo.DeleteExpiredChallenges(ctx, time.Now())
	}}
}

// LimiterSweepJob evicts expired attempt records from the in-memory limiter store
func LimiterSweepJob(store Sweeper) Job {
	return Job{Name: "limiter_sweep", Run: func(context.Context) (int64, error) {
		return int64(store.Sweep()), nil
	}}
}

// PresenceSweepJob drops presence entries that outlived their expiry
func PresenceSweepJob(hub Sweeper) Job {
	return Job{Name: "presence_sweep", Every: PresenceSweepInterval, Run: func(context.Context) (int64, error) {
		return int64(hub.Sweep()), nil
	}}
}

// CleanupManager runs cleanup jobs on a cron schedule
type CleanupManager struct {
	cron     *cron.Cron
	jobs     []Job
	recorder JobRecorder
	logger   *slog.Logger
	interval time.Duration
}

// NewCleanupManager creates a manager that runs every job once per interval.
// recorder may be nil.
func NewCleanupManager(logger *slog.Logger, recorder JobRecorder, interval time.Duration, jobs ...Job) *CleanupManager {
	cronLogger := cronSlog{logger: logger}
	return &CleanupManager{
		cron: cron.New(cron.WithLogger(cronLogger), cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		jobs:     jobs,
		recorder: recorder,
		logger:   logger,
		interval: interval,
	}
}

// Start schedules the jobs, runs them once immediately and returns. Jobs
// stop when ctx is cancelled or Stop is called.
func (cm *CleanupManager) Start(ctx context.Context) error {
	if cm.interval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", cm.interval)
	}

	for _, job := range cm.jobs {
		every := cm.interval
		if job.Every > 0 {
			every = job.Every
		}
		spec := fmt.Sprintf("@every %s", every)
		if _, err := cm.cron.AddFunc(spec, func() { cm.RunJob(ctx, job) }); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
	}

	for _, job := range cm.jobs {
		cm.RunJob(ctx, job)
	}

	cm.cron.Start()
	go func() {
		<-ctx.Done()
		cm.Stop()
	}()
	return nil
}

// RunJob executes one job with a timeout and records the outcome
func (cm *CleanupManager) RunJob(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	removed, err := job.Run(jobCtx)
	if cm.recorder != nil {
		cm.recorder.JobRun(job.Name, removed, err)
	}
	if err != nil {
		cm.logger.Error("cleanup job failed", slog.String("job", job.Name), slog.Any("error", err))
		return
	}
	if removed > 0 {
		cm.logger.Info("cleanup job completed", slog.String("job", job.Name), slog.Int64("removed", removed))
	}
}

// Stop halts scheduling and waits for running jobs to finish
func (cm *CleanupManager) Stop() {
	<-cm.cron.Stop().Done()
}

// cronSlog adapts slog to cron.Logger
type cronSlog struct {
	logger *slog.Logger
}

func (l cronSlog) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronSlog) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}
