package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, MetricsHooks{}), mr
}

func TestRedisStore_SetGet(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	key := AccountKey("alice", "lookup")
	if err := store.Set(ctx, key, []byte(`{"handle":"alice"}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(val) != `{"handle":"alice"}` {
		t.Errorf("value = %s", val)
	}
}

func TestRedisStore_MissIsNotAnError(t *testing.T) {
	store, _ := setupRedisStore(t)
	_, ok, err := store.Get(context.Background(), "blabz:nothing")
	if err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	key := AccountKey("alice", "timeline", "0")
	if err := store.Set(ctx, key, []byte("[]"), 30*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(31 * time.Second)

	if _, ok, err := store.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected expired key to miss, ok=%v err=%v", ok, err)
	}
}

func TestRedisStore_InvalidatePrefix(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		_ = store.Set(ctx, AccountKey("alice", "feed", fmt.Sprint(i)), []byte("x"), time.Minute)
	}
	_ = store.Set(ctx, AccountKey("alice2", "lookup"), []byte("y"), time.Minute)
	_ = store.Set(ctx, Key("feed", "global", "24h"), []byte("z"), time.Minute)

	removed, err := store.InvalidatePrefix(ctx, AccountPrefix("alice"))
	if err != nil {
		t.Fatalf("InvalidatePrefix: %v", err)
	}
	if removed != 250 {
		t.Fatalf("expected 250 keys removed, got %d", removed)
	}
	if !mr.Exists(AccountKey("alice2", "lookup")) {
		t.Fatalf("expected sibling handle key to survive")
	}
	if !mr.Exists(Key("feed", "global", "24h")) {
		t.Fatalf("expected unrelated key to survive")
	}
}

func TestRedisStore_GetErrorWhenServerDown(t *testing.T) {
	store, mr := setupRedisStore(t)
	mr.Close()
	if _, _, err := store.Get(context.Background(), "blabz:k"); err == nil {
		t.Fatalf("expected error with redis down")
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("blabz:a*b?[c]"); got != `blabz:a\*b\?\[c\]` {
		t.Fatalf("unexpected escape: %s", got)
	}
}
