package rates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock drives cache expiry deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingProvider counts fetches and can be flipped to fail.
type countingProvider struct {
	mu      sync.Mutex
	fetches int32
	rates   map[string]float64
	err     error
}

func (p *countingProvider) Fetch(ctx context.Context) (map[string]float64, error) {
	atomic.AddInt32(&p.fetches, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]float64, len(p.rates))
	for k, v := range p.rates {
		out[k] = v
	}
	return out, nil
}

func (p *countingProvider) setError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func TestSnapshotRefreshesWhenExpired(t *testing.T) {
	clock := newFakeClock()
	provider := &countingProvider{rates: map[string]float64{"USD": 1, "EUR": 0.9}}
	cache := NewCacheWithClock(provider, 24*time.Hour, clock.Now)

	snap := cache.Snapshot(context.Background())
	if _, ok := snap.Rate("EUR"); !ok {
		t.Fatal("first snapshot missing EUR")
	}
	if got := atomic.LoadInt32(&provider.fetches); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}

	// Within TTL: served from cache.
	clock.Advance(23 * time.Hour)
	cache.Snapshot(context.Background())
	if got := atomic.LoadInt32(&provider.fetches); got != 1 {
		t.Errorf("fetches after 23h = %d, want 1", got)
	}

	// Past TTL: refetched.
	clock.Advance(2 * time.Hour)
	cache.Snapshot(context.Background())
	if got := atomic.LoadInt32(&provider.fetches); got != 2 {
		t.Errorf("fetches after 25h = %d, want 2", got)
	}
}

func TestSnapshotServesStaleOnFailure(t *testing.T) {
	clock := newFakeClock()
	provider := &countingProvider{rates: map[string]float64{"USD": 1, "EUR": 0.9}}
	cache := NewCacheWithClock(provider, time.Hour, clock.Now)

	cache.Snapshot(context.Background())

	provider.setError(errors.New("feed down"))
	clock.Advance(2 * time.Hour)

	snap := cache.Snapshot(context.Background())
	if rate, ok := snap.Rate("EUR"); !ok || rate != 0.9 {
		t.Errorf("stale snapshot Rate(EUR) = %v, %v; want 0.9, true", rate, ok)
	}
}

func TestSnapshotBeforeFirstFetchFailure(t *testing.T) {
	clock := newFakeClock()
	provider := &countingProvider{err: errors.New("feed down")}
	cache := NewCacheWithClock(provider, time.Hour, clock.Now)

	// Conversion through the identity snapshot is a pass-through.
	snap := cache.Snapshot(context.Background())
	if rate, ok := snap.Rate("USD"); !ok || rate != 1 {
		t.Errorf("identity snapshot Rate(USD) = %v, %v; want 1, true", rate, ok)
	}
	if _, ok := snap.Rate("EUR"); ok {
		t.Error("identity snapshot should not carry EUR")
	}
}

func TestConcurrentSnapshotsShareOneFetch(t *testing.T) {
	clock := newFakeClock()
	release := make(chan struct{})
	provider := &gatedProvider{release: release, rates: map[string]float64{"USD": 1, "EUR": 0.9}}
	cache := NewCacheWithClock(provider, time.Hour, clock.Now)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Snapshot(context.Background())
		}()
	}

	// Let the in-flight fetch pile up callers, then release it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&provider.fetches); got != 1 {
		t.Errorf("fetches = %d, want 1 shared fetch", got)
	}
}

// gatedProvider blocks Fetch until released, exposing duplicate fetches.
type gatedProvider struct {
	fetches int32
	release chan struct{}
	rates   map[string]float64
}

func (p *gatedProvider) Fetch(ctx context.Context) (map[string]float64, error) {
	atomic.AddInt32(&p.fetches, 1)
	<-p.release
	return p.rates, nil
}

func TestRefreshForcesFetch(t *testing.T) {
	clock := newFakeClock()
	provider := &countingProvider{rates: map[string]float64{"USD": 1, "EUR": 0.9}}
	cache := NewCacheWithClock(provider, 24*time.Hour, clock.Now)

	cache.Snapshot(context.Background())
	if _, err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := atomic.LoadInt32(&provider.fetches); got != 2 {
		t.Errorf("fetches = %d, want 2 (Refresh ignores TTL)", got)
	}

	provider.setError(errors.New("feed down"))
	if _, err := cache.Refresh(context.Background()); err == nil {
		t.Error("Refresh should surface provider errors")
	}
}
