package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/pushvault/internal/observe"
)

var watchJSON bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print counts and groups whenever the store changes",
	Long: `Follow the store and print the unread/total counts and the group list
each time they change, including changes made by other pushvault processes.
Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		events, unsubscribe := v.mgr.Subscribe()
		defer unsubscribe()

		out := cmd.OutOrStdout()
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error { return v.mgr.Run(ctx) })
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if err := printEvent(out, ev); err != nil {
						return err
					}
				}
			}
		})
		return g.Wait()
	},
}

type watchEvent struct {
	Kind   string       `json:"kind"`
	Time   time.Time    `json:"time"`
	Unread int64        `json:"unread"`
	Total  int64        `json:"total"`
	Groups []groupCount `json:"groups,omitempty"`
}

type groupCount struct {
	Group  string `json:"group"`
	Unread int64  `json:"unread"`
}

func printEvent(w io.Writer, ev observe.Event) error {
	now := time.Now()
	if watchJSON {
		we := watchEvent{Kind: ev.Kind.String(), Time: now, Unread: ev.Counts.Unread, Total: ev.Counts.Total}
		if ev.Kind == observe.GroupsChanged {
			we.Groups = make([]groupCount, len(ev.Groups))
			for i, g := range ev.Groups {
				we.Groups[i] = groupCount{Group: g.Group, Unread: g.UnreadCount}
			}
		}
		return writeCompactJSON(w, we)
	}

	stamp := now.Format("15:04:05")
	switch ev.Kind {
	case observe.CountsChanged:
		_, err := fmt.Fprintf(w, "[%s] unread %d / total %d\n", stamp, ev.Counts.Unread, ev.Counts.Total)
		return err
	case observe.GroupsChanged:
		fmt.Fprintf(w, "[%s] %d group(s)\n", stamp, len(ev.Groups))
		writeGroupTable(w, ev.Groups)
	}
	return nil
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print one JSON object per event")
	rootCmd.AddCommand(watchCmd)
}
