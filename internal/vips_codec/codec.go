//go:build vips

package vips_codec

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"imgcache/internal/image_codec"
)

type Config struct {
	MaxCacheMB  int
	Concurrency int
}

// Startup initializes libvips. It must be called once before any Codec is
// used and paired with Shutdown.
func Startup(cfg Config, log *zap.Logger) {
	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.Concurrency,
		MaxCacheMem:      cfg.MaxCacheMB * 1024 * 1024, // Convert MB to bytes
		MaxCacheFiles:    0,                            // Disk caching is ours, not libvips'
		MaxCacheSize:     0,
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.MaxCacheMB),
		zap.Int("concurrency", cfg.Concurrency),
	)
}

func Shutdown() {
	vips.Shutdown()
}

// Codec decodes and downsamples with libvips. Encoding is PNG via the
// pure-Go codec so disk files are identical whichever codec wrote them.
type Codec struct {
	std *image_codec.Std
}

func New() *Codec {
	return &Codec{std: image_codec.NewStd()}
}

func (c *Codec) Decode(data []byte) (image.Image, error) {
	img, err := vips.NewImageFromBuffer(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	defer img.Close()

	return c.export(img)
}

func (c *Codec) Downsample(data []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}

	img, err := vips.NewImageFromBuffer(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	defer img.Close()

	scale := math.Min(float64(width)/float64(img.Width()), float64(height)/float64(img.Height()))
	if scale < 1 {
		resizeOpts := vips.DefaultResizeOptions()
		resizeOpts.Kernel = vips.KernelLanczos3
		if err := img.Resize(scale, resizeOpts); err != nil {
			return nil, fmt.Errorf("failed to resize: %w", err)
		}
	}

	return c.export(img)
}

func (c *Codec) Encode(img image.Image) ([]byte, error) {
	return c.std.Encode(img)
}

// export hands the vips image over to Go as an image.Image.
func (c *Codec) export(img *vips.Image) (image.Image, error) {
	data, err := img.PngsaveBuffer(vips.DefaultPngsaveBufferOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}

	out, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode exported image: %w", err)
	}
	return out, nil
}
