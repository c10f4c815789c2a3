package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store is the key-value contract responses are cached through. Values are
// opaque bytes; expiry is enforced by the store, so a Get never returns an
// entry older than the TTL it was written with.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
}

type Options struct {
	MaxEntries int
}

type MetricsHooks struct {
	OnHit   func(labels map[string]string)
	OnMiss  func(labels map[string]string)
	OnStore func(labels map[string]string)
	OnError func(labels map[string]string)
}

type entry struct {
	value     []byte
	expiresAt time.Time
	lastUsed  time.Time
}

// Memory is an in-process Store used when no Redis is configured.
type Memory struct {
	mu      sync.RWMutex
	items   map[string]*entry
	order   []string
	opts    Options
	metrics MetricsHooks
	now     func() time.Time
}

func NewMemory(opts Options, hooks MetricsHooks) *Memory {
	return &Memory{
		items:   make(map[string]*entry),
		order:   make([]string, 0, 128),
		opts:    opts,
		metrics: hooks,
		now:     time.Now,
	}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.items[key]
	if ok && now.Before(e.expiresAt) {
		val := e.value
		c.mu.RUnlock()
		c.mu.Lock()
		e.lastUsed = now
		c.mu.Unlock()
		if c.metrics.OnHit != nil {
			c.metrics.OnHit(map[string]string{"key": key})
		}
		return val, true, nil
	}
	c.mu.RUnlock()

	if ok {
		// Expired: drop it so Len only counts live entries
		c.mu.Lock()
		if cur, still := c.items[key]; still && !now.Before(cur.expiresAt) {
			delete(c.items, key)
			c.removeFromOrder(key)
		}
		c.mu.Unlock()
	}
	if c.metrics.OnMiss != nil {
		c.metrics.OnMiss(map[string]string{"key": key})
	}
	return nil, false, nil
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := c.now()
	buf := make([]byte, len(value))
	copy(buf, value)

	c.mu.Lock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = &entry{value: buf, expiresAt: now.Add(ttl), lastUsed: now}
	c.evictIfNeeded()
	c.mu.Unlock()

	if c.metrics.OnStore != nil {
		c.metrics.OnStore(map[string]string{"key": key})
	}
	return nil
}

func (c *Memory) InvalidatePrefix(_ context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	kept := c.order[:0]
	for _, k := range c.order {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
	return removed, nil
}

// Len reports the number of stored entries, expired ones included until touched
// or evicted. Exported as the cache_entries gauge.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Memory) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Memory) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return
	}
	// FIFO eviction
	excess := len(c.items) - c.opts.MaxEntries
	for excess > 0 && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
		excess--
	}
}
