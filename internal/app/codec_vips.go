//go:build vips

package app

import (
	"go.uber.org/zap"

	"imgcache/internal/config"
	"imgcache/internal/image_codec"
	"imgcache/internal/vips_codec"
)

func newVipsCodec(cfg *config.Config, log *zap.Logger) (image_codec.Codec, func(), error) {
	vips_codec.Startup(vips_codec.Config{
		MaxCacheMB:  cfg.VipsMaxCacheMB,
		Concurrency: cfg.VipsConcurrency,
	}, log)
	return vips_codec.New(), vips_codec.Shutdown, nil
}
