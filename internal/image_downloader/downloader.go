package image_downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

var (
	errBadURL    = errors.New("malformed image url")
	errEmptyBody = errors.New("empty response body")
	errTooLarge  = errors.New("response body exceeds limit")
)

type Options struct {
	// Timeout bounds the whole request. Zero leaves it to the context.
	Timeout time.Duration
	// MaxBytes caps the body size. Zero means no limit.
	MaxBytes  int64
	UserAgent string
	// Client overrides the HTTP client built from Timeout.
	Client *http.Client
}

// Downloader fetches raw image bytes. Each call is a single attempt.
type Downloader struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	logger    *zap.Logger
}

func New(opts Options, log *zap.Logger) *Downloader {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Downloader{
		client:    client,
		maxBytes:  opts.MaxBytes,
		userAgent: opts.UserAgent,
		logger:    log,
	}
}

// Fetch downloads rawURL. Any failure is logged and reported as false.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]byte, bool) {
	start := time.Now()

	data, err := d.download(ctx, rawURL)
	if err != nil {
		d.logger.Debug("Image download failed", zap.String("url", rawURL), zap.Error(err))
		return nil, false
	}

	d.logger.Debug("Image downloaded",
		zap.String("url", rawURL),
		zap.Int("bytes", len(data)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return data, true
}

func (d *Downloader) download(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", errBadURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return nil, errTooLarge
	}
	if len(data) == 0 {
		return nil, errEmptyBody
	}

	return data, nil
}
