package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/estate-auth-api/internal/models"
)

type stubLoader struct {
	mu    sync.Mutex
	users map[string]*models.User
	err   error
	calls int32
	gate  chan struct{}
}

func (s *stubLoader) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user.Clone(), nil
}

func (s *stubLoader) set(user *models.User) {
	s.mu.Lock()
	s.users[user.Email] = user.Clone()
	s.mu.Unlock()
}

func strPtr(v string) *string { return &v }

func TestUserCacheReadThrough(t *testing.T) {
	loader := &stubLoader{users: map[string]*models.User{"a@x.com": {ID: "1", Email: "a@x.com"}}}
	metrics := NewMetricsService()
	cache := NewUserCache(loader, metrics, UserCacheConfig{})

	first, err := cache.Get(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := cache.Get(context.Background(), "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&loader.calls))
	assert.Equal(t, first, second)

	first.Email = "mutated"
	third, err := cache.Get(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", third.Email)
}

func TestUserCacheMissIsNotCached(t *testing.T) {
	loader := &stubLoader{users: map[string]*models.User{}}
	cache := NewUserCache(loader, nil, UserCacheConfig{})

	user, err := cache.Get(context.Background(), "ghost@x.com")
	require.NoError(t, err)
	assert.Nil(t, user)

	loader.set(&models.User{ID: "9", Email: "ghost@x.com"})
	user, err = cache.Get(context.Background(), "ghost@x.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "9", user.ID)
}

func TestUserCacheStoreErrorPropagates(t *testing.T) {
	loader := &stubLoader{users: map[string]*models.User{}, err: errors.New("db down")}
	cache := NewUserCache(loader, nil, UserCacheConfig{})

	_, err := cache.Get(context.Background(), "a@x.com")
	assert.EqualError(t, err, "db down")
	assert.Equal(t, 0, cache.Len())
}

func TestUserCacheInvalidateReflectsLatestWrite(t *testing.T) {
	loader := &stubLoader{users: map[string]*models.User{"a@x.com": {ID: "1", Email: "a@x.com", RefreshToken: strPtr("old")}}}
	cache := NewUserCache(loader, nil, UserCacheConfig{})

	user, err := cache.Get(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.Equal(t, "old", *user.RefreshToken)

	loader.set(&models.User{ID: "1", Email: "a@x.com", RefreshToken: strPtr("new")})
	cache.Invalidate("a@x.com")

	user, err = cache.Get(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "new", *user.RefreshToken)
}

func TestUserCacheInvalidateDuringLoadDoesNotPopulate(t *testing.T) {
	loader := &stubLoader{
		users: map[string]*models.User{"a@x.com": {ID: "1", Email: "a@x.com", RefreshToken: strPtr("old")}},
		gate:  make(chan struct{}),
	}
	cache := NewUserCache(loader, nil, UserCacheConfig{})

	done := make(chan *models.User)
	go func() {
		user, _ := cache.Get(context.Background(), "a@x.com")
		done <- user
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&loader.calls) == 1 }, time.Second, time.Millisecond)
	cache.Invalidate("a@x.com")
	close(loader.gate)
	<-done

	assert.Equal(t, 0, cache.Len())

	loader.set(&models.User{ID: "1", Email: "a@x.com", RefreshToken: strPtr("new")})
	user, err := cache.Get(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "new", *user.RefreshToken)
}

func TestUserCacheCollapsesConcurrentMisses(t *testing.T) {
	loader := &stubLoader{
		users: map[string]*models.User{"a@x.com": {ID: "1", Email: "a@x.com"}},
		gate:  make(chan struct{}),
	}
	cache := NewUserCache(loader, nil, UserCacheConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := cache.Get(context.Background(), "a@x.com")
			assert.NoError(t, err)
			assert.NotNil(t, user)
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&loader.calls) >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(loader.gate)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loader.calls))
}

func TestUserCacheExpiry(t *testing.T) {
	clock := newFakeClock()
	loader := &stubLoader{users: map[string]*models.User{"a@x.com": {ID: "1", Email: "a@x.com"}}}
	cache := NewUserCache(loader, nil, UserCacheConfig{WriteTTL: 10 * time.Minute, AccessTTL: 3 * time.Minute})
	cache.now = clock.Now
	ctx := context.Background()

	_, err := cache.Get(ctx, "a@x.com")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, _ = cache.Get(ctx, "a@x.com")
	assert.Equal(t, int32(1), atomic.LoadInt32(&loader.calls), "access refreshes the idle timer")

	clock.Advance(4 * time.Minute)
	_, _ = cache.Get(ctx, "a@x.com")
	assert.Equal(t, int32(2), atomic.LoadInt32(&loader.calls), "idle entry expired")

	for i := 0; i < 5; i++ {
		clock.Advance(2 * time.Minute)
		_, _ = cache.Get(ctx, "a@x.com")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&loader.calls), "write ttl bounds the entry lifetime")
}

func TestUserCacheEvictsLeastRecentlyUsed(t *testing.T) {
	loader := &stubLoader{users: map[string]*models.User{
		"a@x.com": {ID: "1", Email: "a@x.com"},
		"b@x.com": {ID: "2", Email: "b@x.com"},
		"c@x.com": {ID: "3", Email: "c@x.com"},
	}}
	cache := NewUserCache(loader, nil, UserCacheConfig{MaxEntries: 2})
	ctx := context.Background()

	_, _ = cache.Get(ctx, "a@x.com")
	_, _ = cache.Get(ctx, "b@x.com")
	_, _ = cache.Get(ctx, "a@x.com")
	_, _ = cache.Get(ctx, "c@x.com")
	require.Equal(t, 2, cache.Len())

	_, _ = cache.Get(ctx, "a@x.com")
	assert.Equal(t, int32(3), atomic.LoadInt32(&loader.calls))
	_, _ = cache.Get(ctx, "b@x.com")
	assert.Equal(t, int32(4), atomic.LoadInt32(&loader.calls))
}
