package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/pushvault/internal/query"
)

const maxLimit = 1000

type handlers struct {
	reader Reader
}

// groupArg returns the optional group filter. An empty string is a real
// group name only when the key is present.
func groupArg(args map[string]any) *string {
	v, ok := args["group"].(string)
	if !ok {
		return nil
	}
	return &v
}

// getTimeArg extracts an optional YYYY-MM-DD date or RFC 3339 time.
func getTimeArg(args map[string]any, key string) (*time.Time, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: expected YYYY-MM-DD or RFC 3339", key, v)
	}
	return &t, nil
}

// limitArg extracts a positive integer limit from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxLimit.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 1 {
		return def
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

type searchResult struct {
	Total    int64 `json:"total"`
	Messages any   `json:"messages"`
}

func (h *handlers) searchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	text, _ := args["query"].(string)
	if text == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	before, err := getTimeArg(args, "before")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msgs, total := h.reader.Search(ctx, query.SearchOptions{
		Text:   text,
		Group:  groupArg(args),
		Before: before,
		Limit:  limitArg(args, "limit", 20),
	})
	return jsonResult(searchResult{Total: total, Messages: msgs})
}

func (h *handlers) getMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := req.GetArguments()["id"].(string)
	if id == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	msg := h.reader.Get(ctx, id)
	if msg == nil {
		return mcp.NewToolResultError(fmt.Sprintf("message %s not found", id)), nil
	}
	return jsonResult(msg)
}

func (h *handlers) listMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	before, err := getTimeArg(args, "before")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs := h.reader.List(ctx, query.ListOptions{
		Group:  groupArg(args),
		Before: before,
		Limit:  limitArg(args, "limit", 20),
	})
	return jsonResult(msgs)
}

func (h *handlers) listGroups(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.reader.Groups(ctx))
}

func (h *handlers) getCounts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.reader.Counts(ctx, groupArg(req.GetArguments())))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
