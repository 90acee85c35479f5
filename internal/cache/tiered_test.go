package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubProvider struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newStubProvider() *stubProvider {
	return &stubProvider{store: make(map[string][]byte)}
}

func (s *stubProvider) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.store[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

func (s *stubProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = append([]byte(nil), value...)
	return nil
}

func (s *stubProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.store[key]; exists {
		return false, nil
	}
	s.store[key] = append([]byte(nil), value...)
	return true, nil
}

func (s *stubProvider) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, key)
	return nil
}

func (s *stubProvider) Close() error { return nil }

func (s *stubProvider) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.store)
}

func TestGetOrFetchHitSkipsOrigin(t *testing.T) {
	cache := NewTiered(nil, nil, time.Minute)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) ([]string, error) {
		calls++
		return []string{"ep-1", "ep-2"}, nil
	}

	first, err := GetOrFetch(ctx, cache, "endpoints", time.Minute, fetch)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 values, got %d", len(first))
	}

	second, err := GetOrFetch(ctx, cache, "endpoints", time.Minute, fetch)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("expected cached value, got %v", second)
	}
	if calls != 1 {
		t.Fatalf("expected 1 origin call, got %d", calls)
	}

	stats := cache.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGetOrFetchErrorNotCached(t *testing.T) {
	cache := NewTiered(nil, nil, 0)
	ctx := context.Background()

	calls := 0
	boom := errors.New("upstream down")
	fetch := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 42, nil
	}

	if _, err := GetOrFetch(ctx, cache, "k", time.Minute, fetch); !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}
	// No negative caching: next call retries the origin and succeeds.
	value, err := GetOrFetch(ctx, cache, "k", time.Minute, fetch)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if value != 42 {
		t.Fatalf("expected 42, got %d", value)
	}
	if calls != 2 {
		t.Fatalf("expected 2 origin calls, got %d", calls)
	}
}

func TestGetOrFetchStaleWhileRevalidate(t *testing.T) {
	cache := NewTiered(nil, nil, time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	refreshed := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		n := calls.Add(1)
		if n == 1 {
			return "original", nil
		}
		if n == 2 {
			defer close(refreshed)
		}
		return "fresh", nil
	}

	if _, err := GetOrFetch(ctx, cache, "k", time.Millisecond, fetch); err != nil {
		t.Fatalf("seed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	// Past TTL but within grace: the stale value is served without blocking.
	value, err := GetOrFetch(ctx, cache, "k", time.Millisecond, fetch)
	if err != nil {
		t.Fatalf("stale read: %v", err)
	}
	if value != "original" {
		t.Fatalf("expected stale value, got %q", value)
	}

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("background revalidation never ran")
	}

	// Wait for the refreshed value to land, then confirm it is served fresh.
	deadline := time.Now().Add(2 * time.Second)
	for {
		value, err = GetOrFetch(ctx, cache, "k", time.Minute, fetch)
		if err != nil {
			t.Fatalf("post-refresh read: %v", err)
		}
		if value == "fresh" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("refreshed value never served, got %q", value)
		}
		time.Sleep(time.Millisecond)
	}
	if got := calls.Load(); got < 2 {
		t.Fatalf("expected a background origin call, got %d", got)
	}
}

func TestGetOrFetchReadsSharedTier(t *testing.T) {
	shared := newStubProvider()
	ctx := context.Background()

	seed := NewTiered(nil, shared, 0)
	if _, err := GetOrFetch(ctx, seed, "endpoints", time.Minute, func(context.Context) ([]int, error) {
		return []int{1, 2, 3}, nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A second cache with an empty memory tier hits the shared tier, not the origin.
	other := NewTiered(nil, shared, 0)
	value, err := GetOrFetch(ctx, other, "endpoints", time.Minute, func(context.Context) ([]int, error) {
		t.Fatal("origin must not be called")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("shared read: %v", err)
	}
	if len(value) != 3 {
		t.Fatalf("expected shared value, got %v", value)
	}
}

func TestClearAndInvalidatePrefix(t *testing.T) {
	shared := newStubProvider()
	cache := NewTiered(nil, shared, 0)
	ctx := context.Background()

	for _, key := range []string{"containers:ep-1", "containers:ep-2", "endpoints"} {
		key := key
		if _, err := GetOrFetch(ctx, cache, key, time.Minute, func(context.Context) (string, error) {
			return key, nil
		}); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}

	if removed := cache.InvalidatePrefix(ctx, "containers:"); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if shared.len() != 1 {
		t.Fatalf("expected 1 shared key left, got %d", shared.len())
	}

	cache.Clear(ctx)
	if got := cache.GetStats().Size; got != 0 {
		t.Fatalf("expected empty cache, got size %d", got)
	}
	if shared.len() != 0 {
		t.Fatalf("expected shared tier purged, got %d keys", shared.len())
	}
}
