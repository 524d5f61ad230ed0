package service

import (
	"container/list"
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/estate-auth-api/internal/models"
)

type userLoader interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type cacheRecorder interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// UserCacheConfig bounds the cache.
type UserCacheConfig struct {
	MaxEntries int
	WriteTTL   time.Duration
	AccessTTL  time.Duration
}

type cacheEntry struct {
	email      string
	user       *models.User
	writtenAt  time.Time
	accessedAt time.Time
}

type loadTicket struct {
	stale bool
}

// UserCache is a read-through LRU over the credential store keyed by email.
// Invalidate must be called after every committed write for that email.
type UserCache struct {
	store   userLoader
	metrics cacheRecorder
	cfg     UserCacheConfig
	now     func() time.Time

	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	inflight map[string]*loadTicket
	group    singleflight.Group
}

// NewUserCache constructs a UserCache.
func NewUserCache(store userLoader, metrics cacheRecorder, cfg UserCacheConfig) *UserCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.WriteTTL <= 0 {
		cfg.WriteTTL = 15 * time.Minute
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 5 * time.Minute
	}
	return &UserCache{
		store:    store,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		inflight: make(map[string]*loadTicket),
	}
}

// Get returns a copy of the user for email, loading it on a miss. A missing user yields (nil, nil).
func (c *UserCache) Get(ctx context.Context, email string) (*models.User, error) {
	start := c.now()
	if user, ok := c.lookup(email); ok {
		c.record(true, start)
		return user.Clone(), nil
	}
	c.record(false, start)

	v, err, _ := c.group.Do(email, func() (interface{}, error) {
		return c.load(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.User).Clone(), nil
}

// Invalidate drops the entry for email and prevents loads already in flight from storing their result.
func (c *UserCache) Invalidate(email string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if elem, ok := c.entries[email]; ok {
		c.order.Remove(elem)
		delete(c.entries, email)
	}
	if ticket, ok := c.inflight[email]; ok {
		ticket.stale = true
	}
	c.mu.Unlock()
	c.group.Forget(email)
}

// Len returns the number of cached users.
func (c *UserCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *UserCache) lookup(email string) (*models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[email]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	now := c.now()
	if now.Sub(entry.writtenAt) >= c.cfg.WriteTTL || now.Sub(entry.accessedAt) >= c.cfg.AccessTTL {
		c.order.Remove(elem)
		delete(c.entries, email)
		return nil, false
	}
	entry.accessedAt = now
	c.order.MoveToFront(elem)
	return entry.user, true
}

func (c *UserCache) load(ctx context.Context, email string) (*models.User, error) {
	ticket := &loadTicket{}
	c.mu.Lock()
	c.inflight[email] = ticket
	c.mu.Unlock()

	user, err := c.store.FindByEmail(ctx, email)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[email] == ticket {
		delete(c.inflight, email)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if !ticket.stale {
		c.put(email, user.Clone())
	}
	return user, nil
}

// put expects c.mu to be held.
func (c *UserCache) put(email string, user *models.User) {
	now := c.now()
	if elem, ok := c.entries[email]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.user = user
		entry.writtenAt = now
		entry.accessedAt = now
		c.order.MoveToFront(elem)
		return
	}
	c.entries[email] = c.order.PushFront(&cacheEntry{email: email, user: user, writtenAt: now, accessedAt: now})
	for c.order.Len() > c.cfg.MaxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).email)
	}
}

func (c *UserCache) record(hit bool, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordCacheOperation(hit, c.now().Sub(start))
}
