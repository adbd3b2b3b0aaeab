package offers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"islander-chat/pkg/config"
	"islander-chat/pkg/errors"
)

func testListings() []Listing {
	return []Listing{
		{ID: "p-1", Domain: "realestate", Title: "1+1 flat", Location: "Kyrenia", Price: 550, Currency: "GBP", Bedrooms: 1, Tenure: "rent"},
		{ID: "p-2", Domain: "realestate", Title: "2+1 flat", Location: "Kyrenia", Price: 700, Currency: "GBP", Bedrooms: 2, Tenure: "rent"},
		{ID: "p-3", Domain: "realestate", Title: "studio", Location: "Famagusta", Price: 400, Currency: "GBP", Bedrooms: 0, Tenure: "rent"},
		{ID: "p-4", Domain: "realestate", Title: "villa", Location: "Kyrenia", Price: 250000, Currency: "GBP", Bedrooms: 3, Tenure: "sale"},
	}
}

func TestFingerprintCanonical(t *testing.T) {
	a := Filters{Domain: "realestate", Location: "Kyrenia", BudgetMax: 600, Currency: "GBP"}
	b := Filters{Domain: "RealEstate", Location: " kyrenia ", BudgetMax: 600, Currency: "gbp"}
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("equivalent filters should share a fingerprint: %s vs %s", a.Fingerprint(), b.Fingerprint())
	}
	c := Filters{Domain: "realestate", Location: "Kyrenia", BudgetMax: 650, Currency: "GBP"}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different budgets must not collide")
	}
}

func TestSummarize(t *testing.T) {
	sum := Summarize(testListings()[:3])
	if sum.Count != 3 {
		t.Errorf("count = %d", sum.Count)
	}
	if sum.PriceMin != 400 || sum.PriceMax != 700 {
		t.Errorf("price range = %v..%v", sum.PriceMin, sum.PriceMax)
	}
	if sum.GroupsByLocation["kyrenia"] != 2 || sum.GroupsByLocation["famagusta"] != 1 {
		t.Errorf("groups = %v", sum.GroupsByLocation)
	}
	if len(sum.Sample) != 3 || sum.Sample[0].ID != "p-3" {
		t.Errorf("sample = %+v", sum.Sample)
	}
}

func TestCacheHitWithinTTL(t *testing.T) {
	inv := &countingInventory{inner: NewStaticInventory(testListings())}
	cache, err := NewCache(config.OffersConfig{CacheType: "memory", TTL: "1m"}, nil, inv)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	ctx := context.Background()
	f := Filters{Domain: "realestate", Location: "Kyrenia", Tenure: "rent"}

	first, err := cache.Query(ctx, f)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	second, err := cache.Query(ctx, f)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if inv.calls.Load() != 1 {
		t.Errorf("inventory called %d times, want 1", inv.calls.Load())
	}
	if first.Count != 2 || second.Count != 2 {
		t.Errorf("counts = %d, %d", first.Count, second.Count)
	}
}

func TestCacheExpires(t *testing.T) {
	inv := &countingInventory{inner: NewStaticInventory(testListings())}
	cache, err := NewCache(config.OffersConfig{CacheType: "memory", TTL: "10ms"}, nil, inv)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	ctx := context.Background()
	f := Filters{Domain: "realestate"}

	if _, err := cache.Query(ctx, f); err != nil {
		t.Fatalf("query: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if _, err := cache.Query(ctx, f); err != nil {
		t.Fatalf("query: %v", err)
	}
	if inv.calls.Load() != 2 {
		t.Errorf("inventory called %d times, want 2 after expiry", inv.calls.Load())
	}
}

func TestCachePerDomainTTLOverridesGlobal(t *testing.T) {
	inv := &countingInventory{inner: NewStaticInventory(testListings())}
	domains := map[string]config.DomainConfig{
		"realestate": {OfferTTL: "10ms"},
	}
	cache, err := NewCache(config.OffersConfig{CacheType: "memory", TTL: "1m"}, domains, inv)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	ctx := context.Background()
	f := Filters{Domain: "realestate", Tenure: "rent"}

	if _, err := cache.Query(ctx, f); err != nil {
		t.Fatalf("query: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if _, err := cache.Query(ctx, f); err != nil {
		t.Fatalf("query: %v", err)
	}
	if inv.calls.Load() != 2 {
		t.Errorf("inventory called %d times, want 2 (domain ttl must override the 1m global)", inv.calls.Load())
	}
}

func TestMemoryCacheStoreSweepsExpired(t *testing.T) {
	s := newMemoryCacheStore()
	ctx := context.Background()
	for i := 0; i < 1023; i++ {
		s.Set(ctx, fmt.Sprintf("fp-%d", i), &Summary{}, time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	// crossing the threshold triggers the sweep
	s.Set(ctx, "fp-live", &Summary{Count: 1}, time.Minute)

	s.mu.RLock()
	n := len(s.items)
	s.mu.RUnlock()
	if n != 1 {
		t.Errorf("items = %d after sweep, want only the live entry", n)
	}
	got, err := s.Get(ctx, "fp-live")
	if err != nil || got == nil || got.Count != 1 {
		t.Errorf("live entry lost: %v, %v", got, err)
	}
}

func TestCacheStoreUnavailable(t *testing.T) {
	cache, err := NewCache(config.OffersConfig{CacheType: "memory"}, nil, failingInventory{})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	_, err = cache.Query(context.Background(), Filters{Domain: "realestate"})
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestCacheSingleflight(t *testing.T) {
	inv := &slowInventory{inner: NewStaticInventory(testListings())}
	cache, err := NewCache(config.OffersConfig{CacheType: "memory", TTL: "1m"}, nil, inv)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	ctx := context.Background()
	f := Filters{Domain: "realestate", Tenure: "rent"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Query(ctx, f); err != nil {
				t.Errorf("query: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := inv.calls.Load(); n != 1 {
		t.Errorf("inventory called %d times, want 1 (deduplicated)", n)
	}
}

func TestCacheRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	inv := &countingInventory{inner: NewStaticInventory(testListings())}
	cache, err := NewCache(config.OffersConfig{CacheType: "redis", Addr: mr.Addr(), TTL: "1m"}, nil, inv)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	defer cache.Close()
	ctx := context.Background()
	f := Filters{Domain: "realestate", Location: "Famagusta"}

	if _, err := cache.Query(ctx, f); err != nil {
		t.Fatalf("query: %v", err)
	}
	sum, err := cache.Query(ctx, f)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if inv.calls.Load() != 1 {
		t.Errorf("inventory called %d times, want 1", inv.calls.Load())
	}
	if sum.Count != 1 {
		t.Errorf("count = %d", sum.Count)
	}
}

type countingInventory struct {
	inner *StaticInventory
	calls atomic.Int64
}

func (c *countingInventory) Query(ctx context.Context, f Filters) (Summary, error) {
	c.calls.Add(1)
	return c.inner.Query(ctx, f)
}

func (c *countingInventory) Close() error { return nil }

type slowInventory struct {
	inner *StaticInventory
	calls atomic.Int64
}

func (s *slowInventory) Query(ctx context.Context, f Filters) (Summary, error) {
	s.calls.Add(1)
	time.Sleep(50 * time.Millisecond)
	return s.inner.Query(ctx, f)
}

func (s *slowInventory) Close() error { return nil }

type failingInventory struct{}

func (failingInventory) Query(ctx context.Context, f Filters) (Summary, error) {
	return Summary{}, context.DeadlineExceeded
}

func (failingInventory) Close() error { return nil }
