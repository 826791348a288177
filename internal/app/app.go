package app

import (
	"fmt"

	"go.uber.org/zap"

	"imgcache/internal/cache"
	"imgcache/internal/config"
	"imgcache/internal/image_codec"
	"imgcache/internal/image_downloader"
	"imgcache/internal/image_provider"
)

// App bundles one provider with the tiers it owns. Reconfiguring means
// closing it and building a new one.
type App struct {
	Provider *image_provider.Provider
	Tiers    *cache.Tiers
	Codec    image_codec.Codec

	shutdownCodec func()
}

func Build(cfg *config.Config, log *zap.Logger) (*App, error) {
	var codec image_codec.Codec
	var shutdownCodec func()
	switch cfg.Codec {
	case "vips":
		var err error
		codec, shutdownCodec, err = newVipsCodec(cfg, log)
		if err != nil {
			return nil, err
		}
	case "go", "":
		codec = image_codec.NewStd()
	default:
		return nil, fmt.Errorf("unknown codec: %s (supported: go, vips)", cfg.Codec)
	}

	tiers, err := cache.NewTiers(cfg.CacheType, cache.Options{
		MaxMemoryEntries: cfg.CacheMemoryEntries,
		MaxDiskEntries:   cfg.CacheDiskEntries,
		EvictionBatch:    cfg.EvictionBatch(),
		Dir:              cfg.CacheDir,
		MetadataPath:     cfg.CacheMetadataPath,
	}, codec, log)
	if err != nil {
		if shutdownCodec != nil {
			shutdownCodec()
		}
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	downloader := image_downloader.New(image_downloader.Options{
		Timeout:   cfg.DownloadTimeout,
		MaxBytes:  cfg.DownloadMaxBytes,
		UserAgent: cfg.UserAgent,
	}, log)

	provider := image_provider.New(tiers.Memory, tiers.Disk, downloader, codec, log,
		image_provider.WithCoalescing(cfg.CoalesceFetches),
	)

	return &App{
		Provider:      provider,
		Tiers:         tiers,
		Codec:         codec,
		shutdownCodec: shutdownCodec,
	}, nil
}

func (a *App) Close() error {
	if a.shutdownCodec != nil {
		defer a.shutdownCodec()
	}
	return a.Tiers.Close()
}
