package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type windowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// RegistrationThrottle caps registrations per client IP within a fixed window.
// Redis errors let the request through.
type RegistrationThrottle struct {
	counter windowCounter
	max     int64
	window  time.Duration
	logger  *zap.Logger
}

// NewRegistrationThrottle constructs a throttle. A non-positive max disables it.
func NewRegistrationThrottle(counter windowCounter, max int, window time.Duration, logger *zap.Logger) *RegistrationThrottle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Hour
	}
	return &RegistrationThrottle{counter: counter, max: int64(max), window: window, logger: logger}
}

// Allow counts one registration for ip and returns a RateLimitedError once the window is exhausted.
func (t *RegistrationThrottle) Allow(ctx context.Context, ip string) error {
	if t == nil || t.counter == nil || t.max <= 0 || ip == "" {
		return nil
	}
	key := "register:" + ip
	count, err := t.counter.IncrementWindow(ctx, key, t.window)
	if err != nil {
		t.logger.Warn("registration throttle unavailable", zap.String("ip", ip), zap.Error(err))
		return nil
	}
	if count <= t.max {
		return nil
	}
	ttl, err := t.counter.TTL(ctx, key)
	if err != nil {
		ttl = t.window
	}
	return &RateLimitedError{RetryAfterSeconds: retrySeconds(ttl)}
}
