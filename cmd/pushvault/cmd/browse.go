package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/pushvault/internal/messages"
	"github.com/wesm/pushvault/internal/tui"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse groups and messages in a terminal UI",
	Long: `Browse the store interactively: groups with their unread counts, the
messages of a group, and each message in full. Opening a message marks it
read. Changes made by other pushvault processes show up as they happen.

Press ? inside the browser for the key bindings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		searcher := v.mgr.Searcher(messages.WithDebounce(cfg.Search.Debounce))
		defer searcher.Close()

		events, unsubscribe := v.mgr.Subscribe()
		defer unsubscribe()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		model := tui.New(v.mgr, tui.Options{
			Events:   events,
			Searcher: searcher,
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return v.mgr.Run(gctx) })
		g.Go(func() error {
			defer cancel()
			if _, err := p.Run(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("run browser: %w", err)
			}
			return nil
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}
