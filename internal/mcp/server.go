package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
)

// Tool name constants.
const (
	ToolSearchMessages = "search_messages"
	ToolGetMessage     = "get_message"
	ToolListMessages   = "list_messages"
	ToolListGroups     = "list_groups"
	ToolGetCounts      = "get_counts"
)

// Reader is the read side of the messages facade. *messages.Manager
// satisfies it.
type Reader interface {
	Get(ctx context.Context, id string) *store.Message
	List(ctx context.Context, opts query.ListOptions) []store.Message
	Search(ctx context.Context, opts query.SearchOptions) ([]store.Message, int64)
	Groups(ctx context.Context) []store.GroupSummary
	Counts(ctx context.Context, group *string) query.Counts
}

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

func withGroup(desc string) mcp.ToolOption {
	return mcp.WithString("group", mcp.Description(desc))
}

func withBefore() mcp.ToolOption {
	return mcp.WithString("before",
		mcp.Description("Only messages created before this date (YYYY-MM-DD) or RFC 3339 time; pass the date of the last result to page back"),
	)
}

// NewServer registers the message tools on a fresh MCP server.
func NewServer(r Reader, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"pushvault",
		version,
		server.WithToolCapabilities(false),
	)

	h := &handlers{reader: r}
	s.AddTool(searchMessagesTool(), h.searchMessages)
	s.AddTool(getMessageTool(), h.getMessage)
	s.AddTool(listMessagesTool(), h.listMessages)
	s.AddTool(listGroupsTool(), h.listGroups)
	s.AddTool(getCountsTool(), h.getCounts)
	return s
}

// Serve exposes the store over stdio. It blocks until in is closed or ctx
// is cancelled.
func Serve(ctx context.Context, r Reader, version string, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(NewServer(r, version))
	return stdio.Listen(ctx, in, out)
}

func searchMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolSearchMessages,
		mcp.WithDescription("Search messages. Every word must appear in the title, subtitle, body, group or url; \"quoted phrases\" match as a unit. Results are newest first with the total match count."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Words to match, e.g. 'disk full' or '\"build failed\"'"),
		),
		withGroup("Only search this group"),
		withBefore(),
		withLimit("20"),
	)
}

func getMessageTool() mcp.Tool {
	return mcp.NewTool(ToolGetMessage,
		mcp.WithDescription("Get one message with every stored field by id."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Message id"),
		),
	)
}

func listMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolListMessages,
		mcp.WithDescription("List messages newest first, optionally limited to one group."),
		mcp.WithReadOnlyHintAnnotation(true),
		withGroup("Only list this group"),
		withBefore(),
		withLimit("20"),
	)
}

func listGroupsTool() mcp.Tool {
	return mcp.NewTool(ToolListGroups,
		mcp.WithDescription("List groups, each with its newest message and unread count. Groups with unread messages come first."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func getCountsTool() mcp.Tool {
	return mcp.NewTool(ToolGetCounts,
		mcp.WithDescription("Get unread and total message counts, overall or for one group."),
		mcp.WithReadOnlyHintAnnotation(true),
		withGroup("Count only this group"),
	)
}
