package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
)

type Config struct {
	Port int `validate:"min=1,max=65535"`

	CacheType            string  `validate:"oneof=tiered memory disabled"`
	CacheDir             string  `validate:"required"`
	CacheMetadataPath    string  `validate:"required"`
	CacheMemoryEntries   int     `validate:"min=1"`
	CacheDiskEntries     int     `validate:"min=1"`
	CacheEvictionPercent float64 `validate:"gte=0,lte=100"`

	Codec           string `validate:"oneof=go vips"`
	VipsMaxCacheMB  int    `validate:"min=0"`
	VipsConcurrency int    `validate:"min=0"`

	DownloadTimeout  time.Duration `validate:"min=0"`
	DownloadMaxBytes int64         `validate:"min=0"`
	UserAgent        string
	CoalesceFetches  bool

	WarmupURLs    []string `validate:"dive,url"`
	WarmupWorkers int      `validate:"min=1"`

	LogLevel      string `validate:"oneof=debug info warn error"`
	AdminToken    string
	AllowedOrigin string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the process win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cacheDir, err := homedir.Expand(getEnv("CACHE_DIR", "~/.cache/imgcache"))
	if err != nil {
		return nil, fmt.Errorf("failed to expand cache directory: %w", err)
	}

	metadataPath, err := homedir.Expand(getEnv("CACHE_METADATA_PATH", filepath.Join(filepath.Dir(cacheDir), "imgcache-tracker.db")))
	if err != nil {
		return nil, fmt.Errorf("failed to expand metadata path: %w", err)
	}

	cfg := &Config{
		Port:                 getEnvInt("PORT", 8080),
		CacheType:            getEnv("CACHE", "tiered"),
		CacheDir:             cacheDir,
		CacheMetadataPath:    metadataPath,
		CacheMemoryEntries:   getEnvInt("CACHE_MEMORY_ENTRIES", 50),
		CacheDiskEntries:     getEnvInt("CACHE_DISK_ENTRIES", 100),
		CacheEvictionPercent: getEnvFloat("CACHE_EVICTION_PERCENT", 15),
		Codec:                getEnv("CODEC", "go"),
		VipsMaxCacheMB:       getEnvInt("VIPS_MAX_CACHE_MB", 64),
		VipsConcurrency:      getEnvInt("VIPS_CONCURRENCY", 1),
		DownloadTimeout:      getEnvDuration("DOWNLOAD_TIMEOUT", 30*time.Second),
		DownloadMaxBytes:     getEnvInt64("DOWNLOAD_MAX_BYTES", 32<<20), // 32MB default
		UserAgent:            getEnv("USER_AGENT", "imgcache/1.0"),
		CoalesceFetches:      getEnvBool("COALESCE_FETCHES", true),
		WarmupURLs:           getEnvList("WARMUP_URLS"),
		WarmupWorkers:        getEnvInt("WARMUP_WORKERS", 1),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		AdminToken:           getEnv("ADMIN_TOKEN", ""),
		AllowedOrigin:        getEnv("ALLOWED_ORIGIN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if isWithin(c.CacheDir, c.CacheMetadataPath) {
		return fmt.Errorf("invalid configuration: CACHE_METADATA_PATH %q must be outside CACHE_DIR %q", c.CacheMetadataPath, c.CacheDir)
	}
	return nil
}

// isWithin reports whether path is dir itself or lies below it.
func isWithin(dir, path string) bool {
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

// EvictionBatch is the number of oldest disk entries removed per overflow pass.
func (c *Config) EvictionBatch() int {
	return EvictionBatch(c.CacheDiskEntries, c.CacheEvictionPercent)
}

// EvictionBatch converts a percentage of maxEntries into an entry count. Any
// non-zero percentage evicts at least one entry; only 0 disables eviction.
func EvictionBatch(maxEntries int, percent float64) int {
	batch := int(percent / 100 * float64(maxEntries))
	if percent > 0 && maxEntries > 0 {
		batch = max(1, batch)
	}
	return batch
}

func (c *Config) IsPurgePublic() bool {
	return strings.TrimSpace(c.AdminToken) == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
