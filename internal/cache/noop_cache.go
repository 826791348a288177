package cache

import "image"

type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) Get(key string) (image.Image, bool) {
	return nil, false
}

func (c *NoopCache) Put(key string, img image.Image) error {
	return nil
}

func (c *NoopCache) Len() int {
	return 0
}

func (c *NoopCache) Clear() error {
	return nil
}
