package image_provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Warmup fetches every URL at native resolution using at most workerLimit
// concurrent fetches. It returns how many succeeded.
func (p *Provider) Warmup(ctx context.Context, urls []string, workerLimit int) int {
	if len(urls) == 0 {
		return 0
	}

	p.logger.Info("Starting cache warmup", zap.Int("urls", len(urls)), zap.Int("workers", workerLimit))
	start := time.Now()

	if workerLimit <= 0 {
		workerLimit = 1
	}

	workerChan := make(chan struct{}, workerLimit)
	var wg sync.WaitGroup
	var warmed atomic.Int64

	for _, url := range urls {
		acquired := false
		if ctx.Err() == nil {
			select {
			case workerChan <- struct{}{}: // Acquire worker slot
				acquired = true
			case <-ctx.Done():
			}
		}
		if !acquired {
			wg.Wait()
			p.logger.Info("Cache warmup cancelled", zap.Int64("warmed", warmed.Load()))
			return int(warmed.Load())
		}

		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer func() { <-workerChan }() // Release worker slot

			if _, ok := p.FetchImage(ctx, url, nil); ok {
				warmed.Add(1)
			} else {
				p.logger.Debug("Warmup fetch failed", zap.String("url", url))
			}
		}(url)
	}

	wg.Wait()
	p.logger.Info("Cache warmup completed",
		zap.Int64("warmed", warmed.Load()),
		zap.Int("failed", len(urls)-int(warmed.Load())),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return int(warmed.Load())
}
