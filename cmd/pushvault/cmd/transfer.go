package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/pushvault/internal/export"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import messages from a JSON export",
	Long: `Import a JSON array written by export. Messages whose id already exists
are replaced. A malformed file imports nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		summary, err := v.mgr.Import(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d message(s) from %s in %s",
			summary.MessagesAdded, args[0], summary.Duration.Round(time.Millisecond))
		if summary.MessagesSkipped > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), " (%d skipped without an id)", summary.MessagesSkipped)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [file.json]",
	Short: "Export every message as a JSON array",
	Long: `Write every message, oldest first, to a JSON array that import can read
back. Dates are seconds since the epoch. The default file name is
pushvault-<timestamp>.json in the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("pushvault-%s.json", time.Now().Format("20060102-150405"))
		if len(args) == 1 {
			path = args[0]
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}

		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		stats, err := v.mgr.Export(cmd.Context(), path)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), export.FormatResult(stats))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd, exportCmd)
}
