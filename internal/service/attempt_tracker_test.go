package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAttemptTrackerLocksAtMaxAttempts(t *testing.T) {
	clock := newFakeClock()
	tracker := NewAttemptTracker(5, 15*time.Minute)
	tracker.now = clock.Now

	for i := 0; i < 4; i++ {
		assert.False(t, tracker.LoginFailed("a@x.com"))
		assert.False(t, tracker.IsBlocked("a@x.com"))
	}
	assert.True(t, tracker.LoginFailed("a@x.com"))
	assert.True(t, tracker.IsBlocked("a@x.com"))
	assert.Equal(t, 15*time.Minute, tracker.RetryAfter("a@x.com"))
	assert.False(t, tracker.IsBlocked("b@x.com"))
}

func TestAttemptTrackerLazyExpiry(t *testing.T) {
	clock := newFakeClock()
	tracker := NewAttemptTracker(3, 15*time.Minute)
	tracker.now = clock.Now

	for i := 0; i < 3; i++ {
		tracker.LoginFailed("a@x.com")
	}
	require.True(t, tracker.IsBlocked("a@x.com"))

	clock.Advance(15 * time.Minute)
	assert.True(t, tracker.IsBlocked("a@x.com"), "lock holds until the duration has fully elapsed")

	clock.Advance(time.Second)
	assert.False(t, tracker.IsBlocked("a@x.com"))
	assert.Equal(t, 0, tracker.Attempts("a@x.com"))
	assert.Equal(t, time.Duration(0), tracker.RetryAfter("a@x.com"))
}

func TestAttemptTrackerSuccessResets(t *testing.T) {
	tracker := NewAttemptTracker(5, time.Minute)

	tracker.LoginFailed("a@x.com")
	tracker.LoginFailed("a@x.com")
	require.Equal(t, 2, tracker.Attempts("a@x.com"))

	tracker.LoginSucceeded("a@x.com")
	assert.Equal(t, 0, tracker.Attempts("a@x.com"))

	for i := 0; i < 4; i++ {
		tracker.LoginFailed("a@x.com")
	}
	assert.False(t, tracker.IsBlocked("a@x.com"))
}

func TestAttemptTrackerConcurrentFailures(t *testing.T) {
	const n = 5
	tracker := NewAttemptTracker(n, time.Minute)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			tracker.LoginFailed("race@x.com")
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, n, tracker.Attempts("race@x.com"))
	assert.True(t, tracker.IsBlocked("race@x.com"))
}

func TestAttemptTrackerManyKeysConcurrently(t *testing.T) {
	tracker := NewAttemptTracker(100, time.Minute)
	keys := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for _, key := range keys {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(k string) {
				defer wg.Done()
				tracker.LoginFailed(k)
				tracker.IsBlocked(k)
			}(key)
		}
	}
	wg.Wait()

	for _, key := range keys {
		assert.Equal(t, 50, tracker.Attempts(key))
	}
}
