package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("redis down")
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("redis down")
}
func (failingStore) InvalidatePrefix(context.Context, string) (int, error) {
	return 0, errors.New("redis down")
}

type project struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

func TestLoadCachesAndHits(t *testing.T) {
	ctx := context.Background()
	mem, _ := newTestMemory(Options{}, MetricsHooks{})
	rt := NewReadThrough(mem, MetricsHooks{})

	var calls int32
	loader := func(context.Context) ([]project, error) {
		atomic.AddInt32(&calls, 1)
		return []project{{Name: "ACME", Keywords: []string{"rocket"}}}, nil
	}

	first, hit, err := Load(ctx, rt, Key("projects", "list"), time.Minute, loader)
	if err != nil || hit || len(first) != 1 {
		t.Fatalf("expected miss + load, hit=%v err=%v", hit, err)
	}
	second, hit, err := Load(ctx, rt, Key("projects", "list"), time.Minute, loader)
	if err != nil || !hit || second[0].Name != "ACME" {
		t.Fatalf("expected hit, hit=%v err=%v", hit, err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected single load, got %d", calls)
	}
}

func TestLoadDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	mem, _ := newTestMemory(Options{}, MetricsHooks{})
	rt := NewReadThrough(mem, MetricsHooks{})

	boom := errors.New("boom")
	if _, _, err := Load(ctx, rt, "k", time.Minute, func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if mem.Len() != 0 {
		t.Fatalf("expected nothing cached")
	}
}

func TestLoadSurvivesBrokenStore(t *testing.T) {
	var errs int32
	rt := NewReadThrough(failingStore{}, MetricsHooks{OnError: func(map[string]string) { atomic.AddInt32(&errs, 1) }})

	val, hit, err := Load(context.Background(), rt, "k", time.Minute, func(context.Context) (string, error) { return "fresh", nil })
	if err != nil || hit || val != "fresh" {
		t.Fatalf("expected loader value despite broken store, val=%q hit=%v err=%v", val, hit, err)
	}
	if atomic.LoadInt32(&errs) != 2 {
		t.Fatalf("expected get and set errors reported, got %d", errs)
	}
}

func TestLoadCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	mem, _ := newTestMemory(Options{}, MetricsHooks{})
	rt := NewReadThrough(mem, MetricsHooks{})

	var calls int32
	release := make(chan struct{})
	loader := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, _, err := Load(ctx, rt, "hot", time.Minute, loader); err != nil || v != 7 {
				t.Errorf("unexpected result v=%d err=%v", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one collapsed load, got %d", got)
	}
}

func TestKeyDerivation(t *testing.T) {
	if got := Key("feed", "project", "ACME", "24h"); got != "blabz:feed:project:acme:24h" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := AccountKey("@Alice", "timeline", "a:b"); got != "blabz:acct:alice:timeline:a_b" {
		t.Fatalf("unexpected account key %s", got)
	}
	if BodyHash([]byte(`{"max":10}`)) == BodyHash([]byte(`{"max":20}`)) {
		t.Fatalf("expected distinct body hashes")
	}
	if BodyHash(nil) != "nobody" {
		t.Fatalf("expected stable empty-body hash")
	}
}
