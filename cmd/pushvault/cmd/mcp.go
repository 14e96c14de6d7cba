package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/pushvault/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the message store to an MCP client over stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout so an AI assistant
can search and read stored messages. The tools are read-only.

Example client configuration:

  {"mcpServers": {"pushvault": {"command": "pushvault", "args": ["mcp"]}}}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return v.mgr.Run(gctx) })
		g.Go(func() error {
			defer cancel()
			return mcp.Serve(gctx, v.mgr, Version, os.Stdin, os.Stdout)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
