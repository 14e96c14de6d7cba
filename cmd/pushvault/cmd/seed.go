package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	seedStress    int
	seedBodyBytes int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store sample messages",
	Long: `Store a few sample messages in the Markdown, Examples and App groups.

With --stress N, store N synthetic read messages spread over ten groups
instead, for checking how listing and grouping hold up at volume.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		out := cmd.OutOrStdout()
		if seedStress > 0 {
			start := time.Now()
			n, err := v.mgr.StressFill(cmd.Context(), seedStress, seedBodyBytes)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Stored %d synthetic message(s) in %s\n", n, time.Since(start).Round(time.Millisecond))
			return nil
		}

		msgs, err := v.mgr.SeedExamples(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Stored %d sample message(s)\n", len(msgs))
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedStress, "stress", 0, "store this many synthetic messages")
	seedCmd.Flags().IntVar(&seedBodyBytes, "body-bytes", 200, "approximate body size for --stress")
	rootCmd.AddCommand(seedCmd)
}
