package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var buildCacheFullRebuild bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete messages whose ttl has elapsed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		n, err := v.mgr.DeleteExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired message(s).\n", n)
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Reclaim free space in the database file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		before, err := v.store.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		start := time.Now()
		if err := v.mgr.Compact(cmd.Context()); err != nil {
			return err
		}
		after, err := v.store.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Compacted in %s: %d -> %d bytes\n",
			time.Since(start).Round(time.Millisecond), before.DatabaseSize, after.DatabaseSize)
		return nil
	},
}

var buildCacheCmd = &cobra.Command{
	Use:   "build-cache",
	Short: "Recompute the group summary cache",
	Long: `Recompute the grouped summaries and rewrite the cache file. The cache is
normally kept current by whichever pushvault process wrote last; this is for
repairing it by hand.

With --full-rebuild the existing cache file is removed first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		if buildCacheFullRebuild {
			if err := v.cache.Clear(); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
		}
		if err := v.mgr.Observer().RefreshNow(cmd.Context()); err != nil {
			return fmt.Errorf("rebuild cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cache rebuilt: %d group(s) in %s\n", len(v.cache.Get()), v.cache.Path())
		return nil
	},
}

func init() {
	buildCacheCmd.Flags().BoolVar(&buildCacheFullRebuild, "full-rebuild", false, "remove the cache file before rebuilding")
	rootCmd.AddCommand(sweepCmd, compactCmd, buildCacheCmd)
}
