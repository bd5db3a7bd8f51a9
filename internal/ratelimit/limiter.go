// Package ratelimit throttles repeated failed authentication attempts per
// identifier using exponential backoff.
//
// State is kept in a pluggable key/value Store, one JSON document per
// identifier. Store failures never reach callers: the limiter fails open
// and treats an unreadable entry as absent.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// MaxAttempts is the number of consecutive failures that triggers a lockout
	MaxAttempts = 5

	// BaseLockout is the lockout applied on the first failure at the threshold
	BaseLockout = 30 * time.Second

	// MaxLockout caps the lockout and is also the inactivity window after
	// which an entry is considered stale
	MaxLockout = 15 * time.Minute

	// KeyPrefix prefixes every identifier in the backing store
	KeyPrefix = "auth_rate_limit_"

	// maxBackoffExponent is the highest doubling step before the cap applies
	maxBackoffExponent = 4
)

// Entry is the persisted state for a single identifier.
// Timestamps are epoch milliseconds.
type Entry struct {
	Attempts    int    `json:"attempts"`
	LastAttempt int64  `json:"lastAttempt"`
	LockedUntil *int64 `json:"lockedUntil"`
}

// CheckResult is returned by CheckLimit
type CheckResult struct {
	Limited          bool   `json:"limited"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Message          string `json:"message"`
}

// AttemptResult is returned by RecordFailedAttempt
type AttemptResult struct {
	Locked           bool   `json:"locked"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Message          string `json:"message"`
}

// Status describes the current limiter state for countdown displays.
// RemainingSeconds is derived from LockedUntil at the time of the call.
type Status struct {
	Limited           bool       `json:"limited"`
	RemainingSeconds  int        `json:"remaining_seconds"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	RemainingAttempts int        `json:"remaining_attempts"`
	Message           string     `json:"message,omitempty"`
}

// Store is the key/value backend used by the Limiter
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Clock abstracts time for deterministic tests
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface
type ClockFunc func() time.Time

// Now implements Clock
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns wall-clock time
var SystemClock Clock = ClockFunc(time.Now)

// Limiter implements per-identifier exponential backoff for failed
// authentication attempts.
type Limiter struct {
	store  Store
	clock  Clock
	logger *slog.Logger

	// mu serializes read-modify-write cycles within this process.
	// Replicas sharing a Redis store can still interleave.
	mu sync.Mutex
}

// NewLimiter creates a Limiter backed by store. A nil clock uses SystemClock.
func NewLimiter(store Store, clock Clock, logger *slog.Logger) *Limiter {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// CheckLimit reports whether identifier is currently locked out.
// A stale entry (no failure within MaxLockout) is cleared as a side effect.
func (l *Limiter) CheckLimit(ctx context.Context, identifier string) CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, found := l.getEntry(ctx, identifier)
	now := l.clock.Now().UnixMilli()

	if entry.LockedUntil != nil && *entry.LockedUntil > now {
		remaining := ceilSeconds(*entry.LockedUntil - now)
		return CheckResult{
			Limited:          true,
			RemainingSeconds: remaining,
			Message:          fmt.Sprintf("Too many failed attempts. Please try again in %s.", formatWait(remaining)),
		}
	}

	if found && now-entry.LastAttempt > MaxLockout.Milliseconds() {
		l.deleteEntry(ctx, identifier)
	}

	return CheckResult{}
}

// RecordFailedAttempt increments the failure count for identifier and applies
// a lockout once MaxAttempts is reached. A warning message is included when
// two or fewer attempts remain.
func (l *Limiter) RecordFailedAttempt(ctx context.Context, identifier string) AttemptResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, _ := l.getEntry(ctx, identifier)
	now := l.clock.Now().UnixMilli()

	entry.Attempts++
	entry.LastAttempt = now

	if entry.Attempts >= MaxAttempts {
		lockout := LockoutDuration(entry.Attempts)
		lockedUntil := now + lockout.Milliseconds()
		entry.LockedUntil = &lockedUntil
		l.setEntry(ctx, identifier, entry, now)

		remaining := ceilSeconds(lockout.Milliseconds())
		return AttemptResult{
			Locked:           true,
			RemainingSeconds: remaining,
			Message: fmt.Sprintf("Account temporarily locked due to too many failed attempts. Please try again in %s.",
				formatWait(remaining)),
		}
	}

	l.setEntry(ctx, identifier, entry, now)

	result := AttemptResult{}
	if left := MaxAttempts - entry.Attempts; left <= 2 {
		result.Message = fmt.Sprintf("Warning: %d %s remaining before temporary lockout.", left, plural(left, "attempt"))
	}
	return result
}

// RecordSuccess clears all state for identifier
func (l *Limiter) RecordSuccess(ctx context.Context, identifier string) {
	l.ClearLimit(ctx, identifier)
}

// ClearLimit deletes the stored entry for identifier
func (l *Limiter) ClearLimit(ctx context.Context, identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.deleteEntry(ctx, identifier)
}

// RemainingAttempts returns how many failures identifier may still make
// before a lockout. Never negative.
func (l *Limiter) RemainingAttempts(ctx context.Context, identifier string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, _ := l.getEntry(ctx, identifier)
	return remainingAttempts(entry)
}

// Status returns a read-only snapshot for lockout countdowns.
// Unlike CheckLimit it never clears stale entries.
func (l *Limiter) Status(ctx context.Context, identifier string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, _ := l.getEntry(ctx, identifier)
	now := l.clock.Now()

	status := Status{RemainingAttempts: remainingAttempts(entry)}
	if entry.LockedUntil == nil {
		return status
	}

	lockedUntil := time.UnixMilli(*entry.LockedUntil)
	if remaining := RemainingSeconds(lockedUntil, now); remaining > 0 {
		status.Limited = true
		status.RemainingSeconds = remaining
		status.LockedUntil = &lockedUntil
		status.Message = fmt.Sprintf("Too many failed attempts. Please try again in %s.", formatWait(remaining))
	}
	return status
}

// LockoutDuration returns the lockout applied after the given number of
// consecutive failures: 30s, 60s, 120s, 240s, then the 15 minute cap.
func LockoutDuration(attempts int) time.Duration {
	exponent := attempts - MaxAttempts
	if exponent < 0 {
		exponent = 0
	}
	if exponent >= maxBackoffExponent {
		return MaxLockout
	}

	duration := BaseLockout << uint(exponent)
	if duration > MaxLockout {
		return MaxLockout
	}
	return duration
}

// RemainingSeconds returns the whole seconds, rounded up, until lockedUntil
func RemainingSeconds(lockedUntil, now time.Time) int {
	ms := lockedUntil.Sub(now).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return ceilSeconds(ms)
}

func (l *Limiter) getEntry(ctx context.Context, identifier string) (Entry, bool) {
	raw, found, err := l.store.Get(ctx, storageKey(identifier))
	if err != nil {
		l.logger.Debug("rate limit store read failed", slog.Any("error", err))
		return Entry{}, false
	}
	if !found {
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		l.logger.Debug("rate limit entry decode failed", slog.Any("error", err))
		return Entry{}, false
	}
	return entry, true
}

func (l *Limiter) setEntry(ctx context.Context, identifier string, entry Entry, now int64) {
	raw, err := json.Marshal(entry)
	if err != nil {
		l.logger.Debug("rate limit entry encode failed", slog.Any("error", err))
		return
	}

	if err := l.store.Set(ctx, storageKey(identifier), raw, entryTTL(entry, now)); err != nil {
		l.logger.Debug("rate limit store write failed", slog.Any("error", err))
	}
}

func (l *Limiter) deleteEntry(ctx context.Context, identifier string) {
	if err := l.store.Delete(ctx, storageKey(identifier)); err != nil {
		l.logger.Debug("rate limit store delete failed", slog.Any("error", err))
	}
}

// entryTTL keeps an entry for as long as it can still affect a decision:
// the remaining lockout plus the staleness window. An entry is only stale
// once strictly more than MaxLockout has passed, hence the extra millisecond.
func entryTTL(entry Entry, now int64) time.Duration {
	ttl := MaxLockout + time.Millisecond
	if entry.LockedUntil != nil && *entry.LockedUntil > now {
		ttl += time.Duration(*entry.LockedUntil-now) * time.Millisecond
	}
	return ttl
}

func remainingAttempts(entry Entry) int {
	if left := MaxAttempts - entry.Attempts; left > 0 {
		return left
	}
	return 0
}

func storageKey(identifier string) string {
	return KeyPrefix + identifier
}

func ceilSeconds(ms int64) int {
	return int((ms + 999) / 1000)
}

func formatWait(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%d %s", seconds, plural(seconds, "second"))
	}
	minutes := (seconds + 59) / 60
	return fmt.Sprintf("%d %s", minutes, plural(minutes, "minute"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
