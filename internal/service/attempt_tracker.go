package service

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type attemptRecord struct {
	attempts int
	lockedAt time.Time
}

// AttemptTracker counts failed logins per key and locks the key once maxAttempts is reached.
// State is process local and never persisted.
type AttemptTracker struct {
	records         *xsync.MapOf[string, attemptRecord]
	maxAttempts     int
	lockoutDuration time.Duration
	now             func() time.Time
}

// NewAttemptTracker constructs an AttemptTracker.
func NewAttemptTracker(maxAttempts int, lockoutDuration time.Duration) *AttemptTracker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockoutDuration <= 0 {
		lockoutDuration = 15 * time.Minute
	}
	return &AttemptTracker{
		records:         xsync.NewMapOf[string, attemptRecord](),
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		now:             time.Now,
	}
}

// MaxAttempts returns the configured threshold.
func (t *AttemptTracker) MaxAttempts() int { return t.maxAttempts }

// LoginFailed records a failure and reports whether this failure locked the key.
func (t *AttemptTracker) LoginFailed(key string) bool {
	var lockedNow bool
	t.records.Compute(key, func(old attemptRecord, _ bool) (attemptRecord, bool) {
		old.attempts++
		if old.attempts >= t.maxAttempts && old.lockedAt.IsZero() {
			old.lockedAt = t.now()
			lockedNow = true
		}
		return old, false
	})
	return lockedNow
}

// LoginSucceeded clears every trace of previous failures for key.
func (t *AttemptTracker) LoginSucceeded(key string) {
	t.records.Delete(key)
}

// IsBlocked reports whether key is locked out. An elapsed lock is removed.
func (t *AttemptTracker) IsBlocked(key string) bool {
	var blocked bool
	t.records.Compute(key, func(old attemptRecord, loaded bool) (attemptRecord, bool) {
		if !loaded {
			return old, true
		}
		if old.attempts < t.maxAttempts || old.lockedAt.IsZero() {
			return old, false
		}
		if old.lockedAt.Add(t.lockoutDuration).Before(t.now()) {
			return old, true
		}
		blocked = true
		return old, false
	})
	return blocked
}

// RetryAfter returns how long key stays locked, or zero.
func (t *AttemptTracker) RetryAfter(key string) time.Duration {
	record, ok := t.records.Load(key)
	if !ok || record.attempts < t.maxAttempts || record.lockedAt.IsZero() {
		return 0
	}
	remaining := record.lockedAt.Add(t.lockoutDuration).Sub(t.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Attempts returns the current failure count for key.
func (t *AttemptTracker) Attempts(key string) int {
	record, ok := t.records.Load(key)
	if !ok {
		return 0
	}
	return record.attempts
}
