package cache

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"imgcache/internal/image_codec"
)

// stepClock returns strictly increasing times, 100ms apart.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(100 * time.Millisecond)
	return c.t
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func testKey(i int) string {
	return fmt.Sprintf("https://images.test/photo/%d.png", i)
}

type diskFixture struct {
	dir       string
	metaPath  string
	store     *BoltStore
	tracker   *Tracker
	disk      *DiskCache
	clock     *stepClock
	maxCount  int
	batchSize int
}

func newDiskFixture(t *testing.T, maxEntries, batch int) *diskFixture {
	t.Helper()

	root := t.TempDir()
	f := &diskFixture{
		dir:       filepath.Join(root, "images"),
		metaPath:  filepath.Join(root, "meta", "tracker.db"),
		clock:     newStepClock(),
		maxCount:  maxEntries,
		batchSize: batch,
	}
	f.open(t)
	return f
}

func (f *diskFixture) open(t *testing.T) {
	t.Helper()

	store, err := OpenBoltStore(f.metaPath)
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := zaptest.NewLogger(t)
	f.store = store
	f.tracker = NewTracker(store, f.maxCount, log)

	disk, err := NewDiskCache(DiskOptions{
		Dir:           f.dir,
		EvictionBatch: f.batchSize,
		Now:           f.clock.Now,
	}, f.tracker, image_codec.NewStd(), log)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	f.disk = disk
}

// reopen simulates a process restart on the same directory and metadata.
func (f *diskFixture) reopen(t *testing.T) {
	t.Helper()

	if err := f.store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	f.open(t)
}
