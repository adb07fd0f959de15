package resultcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kinobot/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Create / GetPage
// ---------------------------------------------------------------------------

func TestMemoryCreateAndGetPage(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	token, err := store.Create(ctx, 42, makeItems(12))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	page, err := store.GetPage(ctx, token, 42, 0, 5)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if page.Token != token || len(page.Items) != 5 || page.HasPrev || !page.HasNext {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestMemoryGetPageUnknownToken(t *testing.T) {
	store := NewMemory()
	if _, err := store.GetPage(context.Background(), "missing", 1, 0, 5); !errors.Is(err, domain.ErrCacheNotFound) {
		t.Fatalf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestMemoryGetPageForeignOwner(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	token, _ := store.Create(ctx, 1, makeItems(3))
	if _, err := store.GetPage(ctx, token, 2, 0, 5); !errors.Is(err, domain.ErrCacheForbidden) {
		t.Fatalf("expected ErrCacheForbidden, got %v", err)
	}
	if _, err := store.Get(ctx, token, 2); !errors.Is(err, domain.ErrCacheForbidden) {
		t.Fatalf("expected ErrCacheForbidden from Get, got %v", err)
	}
}

func TestMemoryGetPageOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	token, _ := store.Create(ctx, 1, makeItems(3))
	if _, err := store.GetPage(ctx, token, 1, 1, 5); !errors.Is(err, domain.ErrCacheOutOfRange) {
		t.Fatalf("expected ErrCacheOutOfRange, got %v", err)
	}
}

func TestMemoryCopiesItems(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	items := makeItems(2)
	token, _ := store.Create(ctx, 1, items)
	items[0].Title = "mutated"

	set, err := store.Get(ctx, token, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if set.Items[0].Title == "mutated" {
		t.Fatalf("store must not alias caller slices")
	}
	set.Items[1].Title = "mutated"
	again, _ := store.Get(ctx, token, 1)
	if again.Items[1].Title == "mutated" {
		t.Fatalf("Get must return a copy")
	}
}

func TestMemoryTokenCollisionRetries(t *testing.T) {
	tokens := []string{"same", "same", "other"}
	store := NewMemory(withTokenFunc(func() (string, error) {
		next := tokens[0]
		tokens = tokens[1:]
		return next, nil
	}))
	ctx := context.Background()
	first, _ := store.Create(ctx, 1, makeItems(1))
	second, _ := store.Create(ctx, 1, makeItems(1))
	if first != "same" || second != "other" {
		t.Fatalf("expected collision to be retried, got %q and %q", first, second)
	}
}

// ---------------------------------------------------------------------------
// Expiry
// ---------------------------------------------------------------------------

func TestMemoryExpiresLazily(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemory(WithClock(clock.Now), WithTTL(10*time.Minute))
	token, _ := store.Create(ctx, 1, makeItems(3))

	clock.Advance(10 * time.Minute)
	if _, err := store.GetPage(ctx, token, 1, 0, 5); err != nil {
		t.Fatalf("entry should live for the full TTL: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := store.GetPage(ctx, token, 1, 0, 5); !errors.Is(err, domain.ErrCacheNotFound) {
		t.Fatalf("expected expired token to be gone, got %v", err)
	}
}

func TestMemoryAnyAccessPurgesExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemory(WithClock(clock.Now))
	_, _ = store.Create(ctx, 1, makeItems(1))
	_, _ = store.Create(ctx, 2, makeItems(1))

	clock.Advance(DefaultTTL + time.Second)
	_, _ = store.Create(ctx, 3, makeItems(1))
	if got := store.Len(); got != 1 {
		t.Fatalf("expected expired entries purged on create, got %d entries", got)
	}

	clock.Advance(DefaultTTL + time.Second)
	purged, err := store.Sweep(ctx)
	if err != nil || purged != 1 {
		t.Fatalf("Sweep = %d, %v; want 1, nil", purged, err)
	}
}

func TestMemoryTrimsOldestBeyondMaxEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemory(WithClock(clock.Now), WithMaxEntries(2))
	first, _ := store.Create(ctx, 1, makeItems(1))
	clock.Advance(time.Second)
	_, _ = store.Create(ctx, 1, makeItems(1))
	clock.Advance(time.Second)
	_, _ = store.Create(ctx, 1, makeItems(1))

	if store.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", store.Len())
	}
	if _, err := store.Get(ctx, first, 1); !errors.Is(err, domain.ErrCacheNotFound) {
		t.Fatalf("expected oldest entry trimmed, got %v", err)
	}
}

func TestMemoryTrimKeepsNewestOnTimestampTie(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemory(WithClock(clock.Now), WithMaxEntries(1))

	for i := 0; i < 20; i++ {
		token, err := store.Create(ctx, 1, makeItems(1))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := store.Get(ctx, token, 1); err != nil {
			t.Fatalf("create %d: fresh token evicted: %v", i, err)
		}
		if store.Len() != 1 {
			t.Fatalf("expected 1 entry, got %d", store.Len())
		}
	}
}

// ---------------------------------------------------------------------------
// RemoveItem
// ---------------------------------------------------------------------------

func TestMemoryRemoveItem(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	items := makeItems(6)
	token, _ := store.Create(ctx, 1, items)
	gone := items[2].Locator()

	remaining, err := store.RemoveItem(ctx, token, gone)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("expected 5 remaining, got %d", remaining)
	}
	view, err := store.GetPage(ctx, token, 1, 0, 5)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if view.TotalPages != 1 || view.HasNext {
		t.Fatalf("expected a single page after removal, got %+v", view)
	}
	for _, item := range view.Items {
		if item.Locator() == gone {
			t.Fatalf("removed item still served: %+v", item)
		}
	}

	again, err := store.RemoveItem(ctx, token, gone)
	if err != nil || again != 5 {
		t.Fatalf("second removal should be a no-op, got %d, %v", again, err)
	}
}

func TestMemoryRemoveItemUnknownToken(t *testing.T) {
	if _, err := NewMemory().RemoveItem(context.Background(), "nope", domain.Locator{}); !errors.Is(err, domain.ErrCacheNotFound) {
		t.Fatalf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestMemoryConcurrentRemovals(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	items := makeItems(50)
	token, _ := store.Create(ctx, 1, items)

	var wg sync.WaitGroup
	for _, item := range items[:40] {
		wg.Add(1)
		go func(loc domain.Locator) {
			defer wg.Done()
			_, _ = store.RemoveItem(ctx, token, loc)
		}(item.Locator())
	}
	wg.Wait()

	set, err := store.Get(ctx, token, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(set.Items) != 10 {
		t.Fatalf("expected 10 items left, got %d", len(set.Items))
	}
}
