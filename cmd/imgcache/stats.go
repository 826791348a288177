package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache tier sizes as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, _, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := map[string]interface{}{
			"cache":          cfg.CacheType,
			"cache_dir":      cfg.CacheDir,
			"metadata_path":  cfg.CacheMetadataPath,
			"tiers":          a.Tiers.Stats(),
			"eviction_batch": cfg.EvictionBatch(),
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
