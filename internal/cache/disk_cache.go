package cache

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"imgcache/internal/image_codec"
)

const tempPrefix = ".tmp-"

type DiskOptions struct {
	Dir string
	// EvictionBatch is how many of the oldest entries a full cache drops
	// before accepting a new file. Zero disables eviction.
	EvictionBatch int
	// Now stamps accesses. Defaults to time.Now.
	Now func() time.Time
}

// DiskCache stores one encoded file per key under Dir and keeps access times
// in a Tracker. Structure: {Dir}/{FileName(key)}
type DiskCache struct {
	mu      sync.Mutex // serializes writes, eviction and Clear
	dir     string
	batch   int
	now     func() time.Time
	tracker *Tracker
	codec   image_codec.Codec
	logger  *zap.Logger
}

func NewDiskCache(opts DiskOptions, tracker *Tracker, codec image_codec.Codec, log *zap.Logger) (*DiskCache, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &DiskCache{
		dir:     opts.Dir,
		batch:   opts.EvictionBatch,
		now:     now,
		tracker: tracker,
		codec:   codec,
		logger:  log,
	}

	if err := c.Reconcile(); err != nil {
		log.Warn("Disk cache reconcile incomplete", zap.Error(err))
	}

	return c, nil
}

func (c *DiskCache) buildFilePath(key string) (string, error) {
	name := FileName(key)
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, tempPrefix) {
		return "", fmt.Errorf("key %q has no usable file name", key)
	}
	return filepath.Join(c.dir, name), nil
}

func (c *DiskCache) Get(key string) (image.Image, bool) {
	filePath, err := c.buildFilePath(key)
	if err != nil {
		return nil, false
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("Failed to read cache file", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	img, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Warn("Corrupt cache file", zap.String("key", key), zap.String("path", filePath), zap.Error(err))
		return nil, false
	}

	// An eviction may have dropped key since the read; only Put registers keys.
	if _, err := c.tracker.Touch(key, c.now()); err != nil {
		c.logger.Warn("Failed to record cache access", zap.String("key", key), zap.Error(err))
	}

	return img, true
}

// Put evicts the oldest entries if the cache is full, then writes img. The
// tracker only learns about key once the file is in place.
func (c *DiskCache) Put(key string, img image.Image) error {
	filePath, err := c.buildFilePath(key)
	if err != nil {
		return err
	}

	data, err := c.codec.Encode(img)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tracker.IsFull() {
		c.evict()
	}

	if err := c.writeFile(filePath, data); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}

	return c.tracker.RecordOrTouch(key, c.now())
}

// writeFile writes atomically so readers never see a partial file.
func (c *DiskCache) writeFile(filePath string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// evict drops the oldest batch of entries. The file goes first: a crash in
// between leaves metadata without a file, which reads as a miss and is
// cleaned up by a later pass. Caller must hold c.mu.
func (c *DiskCache) evict() {
	keys := c.tracker.OldestKeys(c.batch)
	if len(keys) == 0 {
		return
	}

	var errs error
	removed := 0
	for _, key := range keys {
		if filePath, err := c.buildFilePath(key); err == nil {
			if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = multierr.Append(errs, err)
				continue
			}
		}

		if err := c.tracker.Remove(key); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
	}

	c.logger.Info("Evicted disk cache entries",
		zap.Int("removed", removed),
		zap.Int("batch", c.batch),
		zap.Int("remaining", c.tracker.Len()),
	)
	if errs != nil {
		c.logger.Warn("Disk cache eviction incomplete", zap.Error(errs))
	}
}

// Reconcile brings the directory and the tracker back in line: metadata
// whose file is gone is dropped, and files nobody tracks are deleted.
func (c *DiskCache) Reconcile() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	tracked := make(map[string]bool)
	for _, key := range c.tracker.Keys() {
		tracked[FileName(key)] = true
	}

	var errs error
	present := make(map[string]bool, len(entries))
	orphans := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasPrefix(name, tempPrefix) || !tracked[name] {
			if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = multierr.Append(errs, err)
				continue
			}
			orphans++
			continue
		}
		present[name] = true
	}

	dangling := 0
	for _, key := range c.tracker.Keys() {
		if present[FileName(key)] {
			continue
		}
		if err := c.tracker.Remove(key); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		dangling++
	}

	if orphans > 0 || dangling > 0 {
		c.logger.Info("Reconciled disk cache",
			zap.Int("orphaned_files", orphans),
			zap.Int("dangling_entries", dangling),
		)
	}

	return errs
}

func (c *DiskCache) Len() int {
	return c.tracker.Len()
}

func (c *DiskCache) MaxEntries() int {
	return c.tracker.MaxEntries()
}

func (c *DiskCache) Dir() string {
	return c.dir
}

func (c *DiskCache) OldestKeys(count int) []string {
	return c.tracker.OldestKeys(count)
}

func (c *DiskCache) LastAccess(key string) (time.Time, bool) {
	return c.tracker.LastAccess(key)
}

func (c *DiskCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs error
	if err := os.RemoveAll(c.dir); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := c.tracker.Clear(); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}
