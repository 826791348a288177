package image_provider

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"imgcache/internal/cache"
	"imgcache/internal/image_codec"
)

// Fetcher downloads raw image bytes, reporting any failure as false.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, bool)
}

type Option func(*Provider)

// WithCoalescing collapses concurrent misses for the same key into a
// single download.
func WithCoalescing(enabled bool) Option {
	return func(p *Provider) {
		p.coalesce = enabled
	}
}

// Result is delivered by FetchImageAsync.
type Result struct {
	Image image.Image
	OK    bool
}

type Stats struct {
	MemoryHits uint64 `json:"memory_hits"`
	DiskHits   uint64 `json:"disk_hits"`
	Downloads  uint64 `json:"downloads"`
	Failures   uint64 `json:"failures"`
	Coalesced  uint64 `json:"coalesced"`
}

// Provider looks an image up in memory, then on disk, then downloads and
// decodes it, filling both tiers on the way back.
type Provider struct {
	memory     cache.ImageCache
	disk       cache.ImageCache
	downloader Fetcher
	codec      image_codec.Codec
	logger     *zap.Logger

	coalesce bool
	group    singleflight.Group

	memoryHits atomic.Uint64
	diskHits   atomic.Uint64
	downloads  atomic.Uint64
	failures   atomic.Uint64
	coalesced  atomic.Uint64
}

func New(memory, disk cache.ImageCache, downloader Fetcher, codec image_codec.Codec, log *zap.Logger, opts ...Option) *Provider {
	p := &Provider{
		memory:     memory,
		disk:       disk,
		downloader: downloader,
		codec:      codec,
		logger:     log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchImage returns the image at url, downsampled to fit size when size is
// non-nil. It never fails loudly: any problem yields false.
func (p *Provider) FetchImage(ctx context.Context, url string, size *cache.Size) (image.Image, bool) {
	key := cache.Key(url, size)

	if img, ok := p.memory.Get(key); ok {
		p.memoryHits.Add(1)
		return img, true
	}

	if !p.coalesce {
		return p.load(ctx, key, url, size)
	}

	// The shared load outlives any single waiter; each waiter still honors
	// its own context.
	ch := p.group.DoChan(key, func() (interface{}, error) {
		img, ok := p.load(context.WithoutCancel(ctx), key, url, size)
		if !ok {
			return nil, nil
		}
		return img, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			p.coalesced.Add(1)
		}
		img, _ := res.Val.(image.Image)
		return img, img != nil
	case <-ctx.Done():
		return nil, false
	}
}

// FetchImageAsync runs FetchImage in the background. The channel receives
// exactly one Result and is then closed. Cancelling ctx abandons the wait.
func (p *Provider) FetchImageAsync(ctx context.Context, url string, size *cache.Size) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		img, ok := p.FetchImage(ctx, url, size)
		out <- Result{Image: img, OK: ok}
	}()
	return out
}

func (p *Provider) load(ctx context.Context, key, url string, size *cache.Size) (image.Image, bool) {
	if img, ok := p.disk.Get(key); ok {
		p.diskHits.Add(1)
		p.putMemory(key, img)
		return img, true
	}

	start := time.Now()
	data, ok := p.downloader.Fetch(ctx, url)
	if !ok {
		p.failures.Add(1)
		p.logger.Debug("Image unavailable", zap.String("url", url))
		return nil, false
	}
	p.downloads.Add(1)

	img, err := p.decode(data, size)
	if err != nil {
		p.failures.Add(1)
		p.logger.Warn("Failed to decode image", zap.String("url", url), zap.Error(err))
		return nil, false
	}

	p.putMemory(key, img)
	if err := p.disk.Put(key, img); err != nil {
		p.logger.Warn("Failed to write disk cache", zap.String("key", key), zap.Error(err))
	}

	p.logger.Debug("Image fetched",
		zap.String("key", key),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return img, true
}

func (p *Provider) decode(data []byte, size *cache.Size) (image.Image, error) {
	if size == nil {
		return p.codec.Decode(data)
	}
	return p.codec.Downsample(data, size.Width, size.Height)
}

func (p *Provider) putMemory(key string, img image.Image) {
	if err := p.memory.Put(key, img); err != nil {
		p.logger.Warn("Failed to write memory cache", zap.String("key", key), zap.Error(err))
	}
}

func (p *Provider) Stats() Stats {
	return Stats{
		MemoryHits: p.memoryHits.Load(),
		DiskHits:   p.diskHits.Load(),
		Downloads:  p.downloads.Load(),
		Failures:   p.failures.Load(),
		Coalesced:  p.coalesced.Load(),
	}
}

// Clear empties both tiers.
func (p *Provider) Clear() error {
	return multierr.Combine(p.memory.Clear(), p.disk.Clear())
}
