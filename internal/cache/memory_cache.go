package cache

import (
	"fmt"
	"image"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// MemoryCache is the in-process tier. Eviction order is whatever the
// underlying LRU decides once maxEntries is reached.
type MemoryCache struct {
	maxEntries int
	items      *lru.Cache[string, image.Image]
}

// NewMemoryCache creates a new in-memory LRU cache
func NewMemoryCache(maxEntries int, log *zap.Logger) (*MemoryCache, error) {
	items, err := lru.NewWithEvict(maxEntries, func(key string, _ image.Image) {
		log.Debug("Memory cache evicted", zap.String("key", key))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &MemoryCache{
		maxEntries: maxEntries,
		items:      items,
	}, nil
}

func (c *MemoryCache) Get(key string) (image.Image, bool) {
	return c.items.Get(key)
}

func (c *MemoryCache) Put(key string, img image.Image) error {
	c.items.Add(key, img)
	return nil
}

func (c *MemoryCache) Has(key string) bool {
	return c.items.Contains(key)
}

func (c *MemoryCache) Len() int {
	return c.items.Len()
}

func (c *MemoryCache) MaxEntries() int {
	return c.maxEntries
}

func (c *MemoryCache) Clear() error {
	c.items.Purge()
	return nil
}
