package cache

import (
	"fmt"
	"image/color"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c, err := NewMemoryCache(4, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}

	if _, ok := c.Get("missing"); ok {
		t.Fatal("empty cache reported a hit")
	}

	img := solidImage(2, 2, color.RGBA{R: 255, A: 255})
	if err := c.Put("k", img); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Get after Put missed")
	}
	if got != img {
		t.Error("Get returned a different image")
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewMemoryCache(2, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}

	img := solidImage(1, 1, color.RGBA{A: 255})
	c.Put("a", img)
	c.Put("b", img)
	c.Get("a")
	c.Put("c", img)

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if !c.Has("a") || !c.Has("c") {
		t.Error("a and c should be cached")
	}
	if c.Has("b") {
		t.Error("b should have been evicted")
	}
}

func TestMemoryCacheRejectsZeroCapacity(t *testing.T) {
	if _, err := NewMemoryCache(0, zaptest.NewLogger(t)); err == nil {
		t.Error("NewMemoryCache(0) should fail")
	}
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c, err := NewMemoryCache(32, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}

	img := solidImage(1, 1, color.RGBA{A: 255})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("%d-%d", i, j%8)
				c.Put(key, img)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 32 {
		t.Errorf("Len = %d exceeds capacity", c.Len())
	}
}

func TestMemoryCacheClear(t *testing.T) {
	c, err := NewMemoryCache(4, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}

	c.Put("a", solidImage(1, 1, color.RGBA{A: 255}))
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after Clear", c.Len())
	}
}
