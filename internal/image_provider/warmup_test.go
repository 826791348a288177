package image_provider

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"imgcache/internal/cache"
	"imgcache/internal/image_codec"
)

// gatedFetcher serves good bytes for known URLs and tracks concurrency.
type gatedFetcher struct {
	data     []byte
	good     map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	seen     []string
}

func (f *gatedFetcher) Fetch(ctx context.Context, url string) ([]byte, bool) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.seen = append(f.seen, url)
	f.mu.Unlock()

	if !f.good[url] {
		return nil, false
	}
	return f.data, true
}

func TestWarmup(t *testing.T) {
	urls := []string{
		"https://images.test/1.png",
		"https://images.test/2.png",
		"https://images.test/3.png",
		"https://images.test/4.png",
		"https://images.test/broken.png",
	}
	fetcher := &gatedFetcher{data: pngBytes(t, 2, 2), good: map[string]bool{}}
	for _, u := range urls[:4] {
		fetcher.good[u] = true
	}

	log := zaptest.NewLogger(t)
	memory, _ := cache.NewMemoryCache(10, log)
	p := New(memory, newMapCache(), fetcher, image_codec.NewStd(), log)

	if got := p.Warmup(context.Background(), urls, 2); got != 4 {
		t.Errorf("warmed = %d, want 4", got)
	}
	if peak := fetcher.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", peak)
	}
	for _, u := range urls[:4] {
		if !memory.Has(cache.Key(u, nil)) {
			t.Errorf("%s should be cached after warmup", u)
		}
	}
}

func TestWarmupCancelled(t *testing.T) {
	fetcher := &gatedFetcher{good: map[string]bool{}}
	log := zaptest.NewLogger(t)
	memory, _ := cache.NewMemoryCache(10, log)
	p := New(memory, newMapCache(), fetcher, image_codec.NewStd(), log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p.Warmup(ctx, []string{"https://images.test/a.png", "https://images.test/b.png", "https://images.test/c.png"}, 1)
	if len(fetcher.seen) != 0 {
		t.Errorf("fetched %d URLs after cancellation", len(fetcher.seen))
	}
}

func TestWarmupNothing(t *testing.T) {
	p := New(nil, nil, nil, nil, zaptest.NewLogger(t))
	if got := p.Warmup(context.Background(), nil, 4); got != 0 {
		t.Errorf("warmed = %d, want 0", got)
	}
}
