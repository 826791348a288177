package cache

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"imgcache/internal/image_codec"
)

type Options struct {
	MaxMemoryEntries int
	MaxDiskEntries   int
	EvictionBatch    int
	Dir              string
	MetadataPath     string
}

// Tiers holds the memory and disk tier for one provider. Close releases the
// metadata store.
type Tiers struct {
	Memory ImageCache
	Disk   ImageCache
	store  MetadataStore
}

// NewTiers creates the cache tiers based on the cache type
func NewTiers(cacheType string, opts Options, codec image_codec.Codec, log *zap.Logger) (*Tiers, error) {
	switch cacheType {
	case "tiered":
		log.Info("Using tiered cache",
			zap.Int("max_memory_entries", opts.MaxMemoryEntries),
			zap.Int("max_disk_entries", opts.MaxDiskEntries),
			zap.Int("eviction_batch", opts.EvictionBatch),
			zap.String("cache_dir", opts.Dir),
		)

		// Reconcile and Clear own everything under Dir.
		if insideDir(opts.Dir, opts.MetadataPath) {
			return nil, fmt.Errorf("metadata path %s must be outside cache directory %s", opts.MetadataPath, opts.Dir)
		}

		memory, err := NewMemoryCache(opts.MaxMemoryEntries, log)
		if err != nil {
			return nil, err
		}

		store, err := OpenBoltStore(opts.MetadataPath)
		if err != nil {
			return nil, err
		}

		tracker := NewTracker(store, opts.MaxDiskEntries, log)
		disk, err := NewDiskCache(DiskOptions{Dir: opts.Dir, EvictionBatch: opts.EvictionBatch}, tracker, codec, log)
		if err != nil {
			store.Close()
			return nil, err
		}

		return &Tiers{Memory: memory, Disk: disk, store: store}, nil
	case "memory":
		log.Info("Using memory cache", zap.Int("max_memory_entries", opts.MaxMemoryEntries))

		memory, err := NewMemoryCache(opts.MaxMemoryEntries, log)
		if err != nil {
			return nil, err
		}
		return &Tiers{Memory: memory, Disk: NewNoopCache()}, nil
	case "disabled":
		log.Info("Cache disabled")
		return &Tiers{Memory: NewNoopCache(), Disk: NewNoopCache()}, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: tiered, memory, disabled)", cacheType)
	}
}

// DiskCache returns the disk tier when the cache type has one.
func (t *Tiers) DiskCache() (*DiskCache, bool) {
	disk, ok := t.Disk.(*DiskCache)
	return disk, ok
}

type TierStats struct {
	MemoryEntries int `json:"memory_entries"`
	DiskEntries   int `json:"disk_entries"`
	DiskCapacity  int `json:"disk_capacity,omitempty"`
}

func (t *Tiers) Stats() TierStats {
	stats := TierStats{
		MemoryEntries: t.Memory.Len(),
		DiskEntries:   t.Disk.Len(),
	}
	if disk, ok := t.DiskCache(); ok {
		stats.DiskCapacity = disk.MaxEntries()
	}
	return stats
}

func insideDir(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Clear empties both tiers.
func (t *Tiers) Clear() error {
	return multierr.Combine(t.Memory.Clear(), t.Disk.Clear())
}

func (t *Tiers) Close() error {
	if t.store == nil {
		return nil
	}
	return t.store.Close()
}
