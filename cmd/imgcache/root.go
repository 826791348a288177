package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"imgcache/internal/app"
	"imgcache/internal/config"
	"imgcache/internal/logger"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "imgcache",
	Short: "Inspect and drive the tiered image cache",
	Long: `imgcache works against the same cache directory and metadata store as the
server. Configuration comes from the environment (and a .env file).

The metadata store is locked while a process has it open, so stop the server
(or point CACHE_DIR and CACHE_METADATA_PATH elsewhere) before running these
commands. Use GET /api/stats and DELETE /api/cache on a running server instead.

Examples:
  imgcache fetch https://example.com/cat.png --width 200 --height 200 --out cat.png
  imgcache oldest -n 5
  imgcache stats
  imgcache purge`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// openApp loads config and builds the provider. The caller must Close it.
func openApp() (*app.App, *config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	log, err := logger.NewConsole(level)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a, err := app.Build(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return a, cfg, log, nil
}
