package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// GetJSON decodes a cached value into T. Undecodable entries count as misses.
func GetJSON[T any](ctx context.Context, store Store, key string) (T, bool, error) {
	var zero T
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, false, nil
	}
	return out, true, nil
}

// SetJSON encodes v and stores it under key for ttl.
func SetJSON(ctx context.Context, store Store, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value %s: %w", key, err)
	}
	return store.Set(ctx, key, raw, ttl)
}

// ReadThrough collapses concurrent loads for the same key and fills the
// store after a successful load. Store failures never fail the read: the
// cache is advisory, the loader is the source of truth.
type ReadThrough struct {
	store   Store
	sf      singleflight.Group
	metrics MetricsHooks
}

func NewReadThrough(store Store, hooks MetricsHooks) *ReadThrough {
	return &ReadThrough{store: store, metrics: hooks}
}

// Load returns the cached value for key or runs load, caching its result for ttl.
// The boolean reports whether the value came from the cache.
func Load[T any](ctx context.Context, r *ReadThrough, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, bool, error) {
	if cached, ok, err := GetJSON[T](ctx, r.store, key); err == nil && ok {
		return cached, true, nil
	} else if err != nil && r.metrics.OnError != nil {
		r.metrics.OnError(map[string]string{"key": key, "op": "get"})
	}

	res, err, _ := r.sf.Do(key, func() (interface{}, error) {
		val, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if setErr := SetJSON(ctx, r.store, key, val, ttl); setErr != nil && r.metrics.OnError != nil {
			r.metrics.OnError(map[string]string{"key": key, "op": "set"})
		}
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return res.(T), false, nil
}
