package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const scanBatch = 100

// RedisStore keeps cached responses in Redis; expiry is delegated to key TTLs.
type RedisStore struct {
	client  goredis.UniversalClient
	metrics MetricsHooks
}

func NewRedisStore(client goredis.UniversalClient, hooks MetricsHooks) *RedisStore {
	return &RedisStore{client: client, metrics: hooks}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		if s.metrics.OnMiss != nil {
			s.metrics.OnMiss(map[string]string{"key": key})
		}
		return nil, false, nil
	}
	if err != nil {
		if s.metrics.OnError != nil {
			s.metrics.OnError(map[string]string{"key": key})
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if s.metrics.OnHit != nil {
		s.metrics.OnHit(map[string]string{"key": key})
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		if s.metrics.OnError != nil {
			s.metrics.OnError(map[string]string{"key": key})
		}
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	if s.metrics.OnStore != nil {
		s.metrics.OnStore(map[string]string{"key": key})
	}
	return nil
}

// InvalidatePrefix walks the keyspace with SCAN and deletes every key under prefix.
func (s *RedisStore) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	pattern := escapeGlob(prefix) + "*"
	removed := 0
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("del %d keys: %w", len(keys), err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
