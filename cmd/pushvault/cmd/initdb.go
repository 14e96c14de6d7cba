package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesm/pushvault/internal/export"
	"github.com/wesm/pushvault/internal/store"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the database schema",
	Long: `Create the pushvault database and apply any pending migrations.

It is safe to run multiple times; migrations that already ran are skipped.
Every other command also migrates on open, so this is only needed to
prepare a data directory ahead of time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("initializing database", "path", cfg.DatabasePath())

		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		logger.Info("database initialized successfully")

		stats, err := v.store.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		printStats(cmd.OutOrStdout(), cfg.DatabasePath(), stats)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		stats, err := v.store.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		out := cmd.OutOrStdout()
		printStats(out, cfg.DatabasePath(), stats)
		fmt.Fprintf(out, "  Cache:       %s (%d groups)\n", v.cache.Path(), len(v.cache.Get()))
		fmt.Fprintf(out, "  Migrations:  %s\n", strings.Join(stats.Migrations, ", "))
		return nil
	},
}

func printStats(w io.Writer, path string, stats *store.Stats) {
	fmt.Fprintf(w, "Database: %s\n", path)
	fmt.Fprintf(w, "  Messages:    %d\n", stats.MessageCount)
	fmt.Fprintf(w, "  Unread:      %d\n", stats.UnreadCount)
	fmt.Fprintf(w, "  Groups:      %d\n", stats.GroupCount)
	fmt.Fprintf(w, "  Size:        %s\n", export.FormatBytesLong(stats.DatabaseSize))
}

func init() {
	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(statsCmd)
}
