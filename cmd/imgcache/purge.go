package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every cached image and its metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, _, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		before := a.Tiers.Stats()
		if err := a.Provider.Clear(); err != nil {
			return fmt.Errorf("failed to purge cache: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "purged %d disk entries from %s\n", before.DiskEntries, cfg.CacheDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
