package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cache is the per-instance TTL cache behind the dashboard's read
// endpoints: balance, transaction summaries, admin tables. A deposit
// settlement invalidates the dependent classes so every open dashboard
// picks up fresh numbers on its next read. Cross-instance invalidation
// rides the settlement event topic, not this cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	nowFn   func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Key classes dependent on settled deposits.
const (
	ClassBalance      = "balance"
	ClassTransactions = "transactions"
	ClassSummary      = "summary"
)

func New() *Cache {
	return &Cache{
		entries: map[string]entry{},
		nowFn:   time.Now,
	}
}

func Key(class, sessionID string) string {
	return class + ":" + sessionID
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && c.nowFn().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.nowFn().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// GetOrLoad answers from cache or runs the loader and caches what it
// returns. Errors are never cached.
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) (any, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	c.SetWithTTL(key, value, ttl)
	return value, nil
}

// InvalidateClasses drops every entry whose key starts with one of the
// given classes, across all sessions.
func (c *Cache) InvalidateClasses(classes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		for _, class := range classes {
			if strings.HasPrefix(key, class+":") {
				delete(c.entries, key)
				break
			}
		}
	}
}

// InvalidateSession drops every entry belonging to one session id.
func (c *Cache) InvalidateSession(sessionID string) {
	suffix := ":" + sessionID
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasSuffix(key, suffix) {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
