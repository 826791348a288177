//go:build !vips

package app

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestBuildVipsWithoutTag(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Codec = "vips"

	_, err := Build(cfg, zaptest.NewLogger(t))
	if !errors.Is(err, errVipsUnavailable) {
		t.Errorf("Build with CODEC=vips = %v, want errVipsUnavailable", err)
	}
}
