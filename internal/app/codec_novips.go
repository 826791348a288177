//go:build !vips

package app

import (
	"errors"

	"go.uber.org/zap"

	"imgcache/internal/config"
	"imgcache/internal/image_codec"
)

var errVipsUnavailable = errors.New("vips codec not compiled in (rebuild with -tags vips)")

func newVipsCodec(cfg *config.Config, log *zap.Logger) (image_codec.Codec, func(), error) {
	return nil, nil, errVipsUnavailable
}
