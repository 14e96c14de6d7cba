package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/pushvault/internal/messages"
)

var (
	addID       string
	addGroup    string
	addTitle    string
	addSubtitle string
	addBody     string
	addURL      string
	addIcon     string
	addImage    string
	addFrom     string
	addHost     string
	addReply    string
	addLevel    int
	addTTL      int
	addMarkdown bool
	addStdin    bool
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Store a message",
	Long: `Store one message, as if it had arrived as a push.

Fields come from flags, or from a JSON payload on stdin with --stdin:

  echo '{"group":"Deploys","title":"v1.2 shipped","ttl":7}' | pushvault add --stdin

A message with no title, subtitle or body is dropped, as is one with a ttl
of zero days or less.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var p messages.Payload
		if addStdin {
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&p); err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}
		} else {
			p = payloadFromFlags(cmd)
		}

		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		msg, ok, err := v.mgr.Ingest(cmd.Context(), p)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("message dropped: it needs a title, subtitle or body and a positive ttl")
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
		return nil
	},
}

func payloadFromFlags(cmd *cobra.Command) messages.Payload {
	flags := cmd.Flags()
	opt := func(name, v string) *string {
		if !flags.Changed(name) {
			return nil
		}
		return &v
	}
	p := messages.Payload{
		ID:       addID,
		Group:    addGroup,
		Title:    opt("title", addTitle),
		Subtitle: opt("subtitle", addSubtitle),
		Body:     opt("body", addBody),
		URL:      opt("url", addURL),
		Icon:     opt("icon", addIcon),
		Image:    opt("image", addImage),
		From:     opt("from", addFrom),
		Host:     opt("host", addHost),
		Reply:    opt("reply", addReply),
		Level:    addLevel,
		Markdown: addMarkdown,
	}
	if flags.Changed("ttl") {
		ttl := addTTL
		p.TTL = &ttl
	}
	return p
}

func init() {
	f := addCmd.Flags()
	f.StringVar(&addID, "id", "", "message id (default: a new UUID)")
	f.StringVarP(&addGroup, "group", "g", "", "group (default: [messages] default_group)")
	f.StringVarP(&addTitle, "title", "t", "", "title")
	f.StringVar(&addSubtitle, "subtitle", "", "subtitle")
	f.StringVarP(&addBody, "body", "b", "", "body text")
	f.StringVar(&addURL, "url", "", "url opened when the message is tapped")
	f.StringVar(&addIcon, "icon", "", "icon url")
	f.StringVar(&addImage, "image", "", "image url")
	f.StringVar(&addFrom, "from", "", "sender")
	f.StringVar(&addHost, "host", "", "origin host")
	f.StringVar(&addReply, "reply", "", "reply target")
	f.IntVar(&addLevel, "level", 0, "priority level")
	f.IntVar(&addTTL, "ttl", 0, "days to keep the message (default: [messages] default_ttl)")
	f.BoolVar(&addMarkdown, "markdown", false, "body is Markdown; keep its line breaks")
	f.BoolVar(&addStdin, "stdin", false, "read a JSON payload from stdin instead of flags")
	rootCmd.AddCommand(addCmd)
}
