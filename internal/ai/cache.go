package ai

import (
	"context"
	"sync"
	"time"

	"github.com/AngelCh415/adreview/internal/telemetry"
)

// Remote is an optional shared cache tier. Implementations fail open:
// errors surface as misses and failed writes are dropped.
type Remote interface {
	Get(ctx context.Context, key string) (*Result, bool)
	Set(ctx context.Context, key string, r Result, ttl time.Duration)
}

type cacheEntry struct {
	value     Result
	expiresAt time.Time
}

// Cache is the in-process result cache with an optional remote tier behind it.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	remote  Remote
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewCache(ttl time.Duration, remote Remote, m *telemetry.Metrics) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		remote:  remote,
		metrics: m,
		now:     time.Now,
	}
}

func (c *Cache) Get(ctx context.Context, key string) (Result, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if ok {
		c.metrics.AICache("local", "hit")
		return e.value, true
	}
	c.metrics.AICache("local", "miss")

	if c.remote == nil {
		return Result{}, false
	}
	r, ok := c.remote.Get(ctx, key)
	if !ok || r == nil {
		c.metrics.AICache("remote", "miss")
		return Result{}, false
	}
	c.metrics.AICache("remote", "hit")
	c.setLocal(key, *r)
	return *r, true
}

func (c *Cache) Set(ctx context.Context, key string, r Result) {
	c.setLocal(key, r)
	if c.remote != nil {
		c.remote.Set(ctx, key, r, c.ttl)
	}
}

func (c *Cache) setLocal(key string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: r, expiresAt: c.now().Add(c.ttl)}
}

// Len reports live local entries; expired ones are pruned.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	return len(c.entries)
}
