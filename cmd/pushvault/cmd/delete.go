package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	markReadGroup string
	markReadAll   bool

	deleteGroup         string
	deleteAllRead       bool
	deleteOlderThan     string
	deleteReadOlderThan string
)

var markReadCmd = &cobra.Command{
	Use:   "mark-read [ids...]",
	Short: "Mark messages read",
	Long: `Mark the given messages read, every message in a group with --group,
or everything with --all.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		grouped := cmd.Flags().Changed("group")
		if len(args) == 0 && !grouped && !markReadAll {
			return errors.New("pass message ids, --group, or --all")
		}
		if len(args) > 0 && (grouped || markReadAll) {
			return errors.New("message ids cannot be combined with --group or --all")
		}

		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		var n int64
		switch {
		case len(args) > 0:
			n, err = v.mgr.MarkRead(cmd.Context(), args...)
		case grouped:
			n, err = v.mgr.MarkAllRead(cmd.Context(), &markReadGroup)
		default:
			n, err = v.mgr.MarkAllRead(cmd.Context(), nil)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %d message(s) read.\n", n)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete messages",
	Long: `Delete one message by id, or a set of messages selected by exactly one
flag:

  --group NAME              every message in a group
  --read                    every read message
  --older-than AGE          every message older than AGE
  --read-older-than AGE     read messages older than AGE

AGE is a duration such as 12h or a day count such as 30d.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		selected := 0
		for _, name := range []string{"group", "read", "older-than", "read-older-than"} {
			if flags.Changed(name) {
				selected++
			}
		}
		if len(args) == 1 {
			selected++
		}
		if selected != 1 {
			return errors.New("choose exactly one of: an id, --group, --read, --older-than, --read-older-than")
		}

		var cutoff time.Time
		for _, age := range []string{deleteOlderThan, deleteReadOlderThan} {
			if age == "" {
				continue
			}
			d, err := parseAge(age)
			if err != nil {
				return err
			}
			cutoff = time.Now().Add(-d)
		}

		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		var n int64
		switch {
		case len(args) == 1:
			group, ok, err := v.mgr.DeleteMessage(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("message %s not found", args[0])
			}
			fmt.Fprintf(out, "Deleted %s from %s.\n", args[0], group)
			return nil
		case flags.Changed("group"):
			n, err = v.mgr.DeleteGroup(ctx, deleteGroup)
		case deleteAllRead:
			n, err = v.mgr.DeleteAllRead(ctx)
		case deleteOlderThan != "":
			n, err = v.mgr.DeleteBefore(ctx, cutoff)
		default:
			n, err = v.mgr.DeleteReadBefore(ctx, cutoff)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d message(s).\n", n)
		return nil
	},
}

func init() {
	markReadCmd.Flags().StringVarP(&markReadGroup, "group", "g", "", "mark every message in this group")
	markReadCmd.Flags().BoolVar(&markReadAll, "all", false, "mark every message")

	f := deleteCmd.Flags()
	f.StringVarP(&deleteGroup, "group", "g", "", "delete every message in this group")
	f.BoolVar(&deleteAllRead, "read", false, "delete every read message")
	f.StringVar(&deleteOlderThan, "older-than", "", "delete messages older than this age")
	f.StringVar(&deleteReadOlderThan, "read-older-than", "", "delete read messages older than this age")

	rootCmd.AddCommand(markReadCmd, deleteCmd)
}
