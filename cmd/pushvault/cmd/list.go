package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/pushvault/internal/query"
)

var (
	listGroup  string
	listLimit  int
	listBefore string
	listJSON   bool

	showJSON   bool
	groupsJSON bool

	searchGroup  string
	searchLimit  int
	searchBefore string
	searchJSON   bool
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		msg := v.mgr.Get(cmd.Context(), args[0])
		if msg == nil {
			return fmt.Errorf("message %s not found", args[0])
		}
		if showJSON {
			return writeJSON(cmd.OutOrStdout(), msg)
		}
		writeMessageDetail(cmd.OutOrStdout(), *msg)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List messages, newest first",
	Long: `List messages newest first, optionally limited to one group.

Pass the date of the last row as --before to page further back.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := query.ListOptions{Limit: pageLimit(listLimit)}
		if cmd.Flags().Changed("group") {
			opts.Group = &listGroup
		}
		before, err := parseBefore(listBefore)
		if err != nil {
			return err
		}
		opts.Before = before

		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		msgs := v.mgr.List(cmd.Context(), opts)
		if listJSON {
			return writeJSON(cmd.OutOrStdout(), msgs)
		}
		if len(msgs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No messages.")
			return nil
		}
		writeMessageTable(cmd.OutOrStdout(), msgs)
		return nil
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List groups with their newest message and unread count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		groups := v.mgr.Groups(cmd.Context())
		if groupsJSON {
			return writeJSON(cmd.OutOrStdout(), groups)
		}
		if len(groups) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No groups.")
			return nil
		}
		writeGroupTable(cmd.OutOrStdout(), groups)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <terms...>",
	Short: "Search title, subtitle, body, group and url",
	Long: `Search messages. Every term must match one of title, subtitle, body,
group or url, case-insensitively for ASCII. "Quoted phrases" match as a
unit and % or _ are taken literally.

Examples:
  pushvault search disk full
  pushvault search '"build failed"' --group CI`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := query.SearchOptions{
			Text:  strings.Join(args, " "),
			Limit: pageLimit(searchLimit),
		}
		if cmd.Flags().Changed("group") {
			opts.Group = &searchGroup
		}
		before, err := parseBefore(searchBefore)
		if err != nil {
			return err
		}
		opts.Before = before

		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		msgs, total := v.mgr.Search(cmd.Context(), opts)
		out := cmd.OutOrStdout()
		if searchJSON {
			return writeJSON(out, map[string]any{
				"query":    opts.Text,
				"total":    total,
				"messages": msgs,
			})
		}
		if len(msgs) == 0 {
			fmt.Fprintln(out, "No messages found.")
			return nil
		}
		writeMessageTable(out, msgs)
		fmt.Fprintf(out, "\nShowing %d of %d results\n", len(msgs), total)
		return nil
	},
}

func pageLimit(flag int) int {
	if flag > 0 {
		return flag
	}
	if cfg.Search.PageSize > 0 {
		return cfg.Search.PageSize
	}
	return 50
}

// parseBefore accepts RFC 3339 or a local YYYY-MM-DD date. Empty means no
// cursor.
func parseBefore(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid --before %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return &t, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCompactJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "output as JSON")

	listCmd.Flags().StringVarP(&listGroup, "group", "g", "", "only this group")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "rows per page (default: [search] page_size)")
	listCmd.Flags().StringVar(&listBefore, "before", "", "only messages created before this time")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")

	groupsCmd.Flags().BoolVar(&groupsJSON, "json", false, "output as JSON")

	searchCmd.Flags().StringVarP(&searchGroup, "group", "g", "", "only this group")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "rows per page (default: [search] page_size)")
	searchCmd.Flags().StringVar(&searchBefore, "before", "", "only messages created before this time")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(showCmd, listCmd, groupsCmd, searchCmd)
}
