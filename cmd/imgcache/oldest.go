package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var oldestCount int

var oldestCmd = &cobra.Command{
	Use:   "oldest",
	Short: "List the least recently used disk entries",
	Long: `List the disk entries that the next eviction pass would remove first.

Examples:
  imgcache oldest
  imgcache oldest -n 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, _, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		disk, ok := a.Tiers.DiskCache()
		if !ok {
			return fmt.Errorf("cache type has no disk tier")
		}

		for _, key := range disk.OldestKeys(oldestCount) {
			at, _ := disk.LastAccess(key)
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", at.Format(time.RFC3339Nano), key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(oldestCmd)

	oldestCmd.Flags().IntVarP(&oldestCount, "count", "n", 10, "number of entries to list")
}
