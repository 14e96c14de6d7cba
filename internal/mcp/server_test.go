package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/pushvault/internal/messages"
	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
	"github.com/wesm/pushvault/internal/testutil"
	"github.com/wesm/pushvault/internal/testutil/storetest"
)

// toolHandler is the function signature for MCP tool handler methods.
type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func callToolDirect(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", r.Content[0])
	}
	return tc.Text
}

// runTool invokes a handler, asserts no error, and unmarshals the JSON result into T.
func runTool[T any](t *testing.T, name string, fn toolHandler, args map[string]any) T {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, r))
	}
	var out T
	if err := json.Unmarshal([]byte(resultText(t, r)), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return out
}

func runToolExpectError(t *testing.T, name string, fn toolHandler, args map[string]any) string {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if !r.IsError {
		t.Fatal("expected error result")
	}
	return resultText(t, r)
}

func newTestHandlers(t *testing.T) *handlers {
	t.Helper()
	f := storetest.New(t)
	f.Insert(
		testutil.NewMessage("m1").Group("Ops").Title("disk alert").Body("server01 95% full").After(1*time.Minute).Build(),
		testutil.NewMessage("m2").Group("Ops").Title("cpu alert").After(2*time.Minute).Read().Build(),
		testutil.NewMessage("m3").Group("Chat").Title("hello").After(3*time.Minute).Build(),
	)
	mgr := messages.New(f.Store, f.Engine, nil,
		messages.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		messages.WithPollInterval(0),
	)
	return &handlers{reader: mgr}
}

func ids(msgs []store.Message) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestSearchMessages(t *testing.T) {
	h := newTestHandlers(t)

	t.Run("valid query", func(t *testing.T) {
		res := runTool[struct {
			Total    int64           `json:"total"`
			Messages []store.Message `json:"messages"`
		}](t, ToolSearchMessages, h.searchMessages, map[string]any{"query": "alert"})
		if res.Total != 2 {
			t.Errorf("total = %d, want 2", res.Total)
		}
		testutil.AssertStrings(t, ids(res.Messages), "m2", "m1")
	})

	t.Run("limit and group", func(t *testing.T) {
		res := runTool[struct {
			Total    int64           `json:"total"`
			Messages []store.Message `json:"messages"`
		}](t, ToolSearchMessages, h.searchMessages, map[string]any{"query": "alert", "group": "Ops", "limit": float64(1)})
		if res.Total != 2 || len(res.Messages) != 1 {
			t.Errorf("got %d of %d", len(res.Messages), res.Total)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		runToolExpectError(t, ToolSearchMessages, h.searchMessages, map[string]any{})
	})

	t.Run("bad before", func(t *testing.T) {
		msg := runToolExpectError(t, ToolSearchMessages, h.searchMessages, map[string]any{"query": "x", "before": "last week"})
		if !strings.Contains(msg, "before") {
			t.Errorf("error = %q", msg)
		}
	})
}

func TestGetMessage(t *testing.T) {
	h := newTestHandlers(t)

	msg := runTool[store.Message](t, ToolGetMessage, h.getMessage, map[string]any{"id": "m1"})
	if msg.Group != "Ops" || msg.Body == nil || *msg.Body != "server01 95% full" {
		t.Errorf("get m1 = %+v", msg)
	}

	runToolExpectError(t, ToolGetMessage, h.getMessage, map[string]any{})
	if text := runToolExpectError(t, ToolGetMessage, h.getMessage, map[string]any{"id": "nope"}); !strings.Contains(text, "not found") {
		t.Errorf("error = %q", text)
	}
}

func TestListMessages(t *testing.T) {
	h := newTestHandlers(t)

	all := runTool[[]store.Message](t, ToolListMessages, h.listMessages, map[string]any{})
	testutil.AssertStrings(t, ids(all), "m3", "m2", "m1")

	ops := runTool[[]store.Message](t, ToolListMessages, h.listMessages, map[string]any{"group": "Ops"})
	testutil.AssertStrings(t, ids(ops), "m2", "m1")

	before := testutil.BaseTime.Add(2 * time.Minute).Format(time.RFC3339)
	older := runTool[[]store.Message](t, ToolListMessages, h.listMessages, map[string]any{"before": before})
	testutil.AssertStrings(t, ids(older), "m1")
}

func TestListGroupsAndCounts(t *testing.T) {
	h := newTestHandlers(t)

	groups := runTool[[]store.GroupSummary](t, ToolListGroups, h.listGroups, nil)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	// Both groups have one unread; Chat is newer.
	if groups[0].Group != "Chat" || groups[1].ID != "m2" || groups[1].UnreadCount != 1 {
		t.Errorf("groups = %+v", groups)
	}

	all := runTool[query.Counts](t, ToolGetCounts, h.getCounts, nil)
	if all != (query.Counts{Unread: 2, Total: 3}) {
		t.Errorf("counts = %+v", all)
	}
	ops := runTool[query.Counts](t, ToolGetCounts, h.getCounts, map[string]any{"group": "Ops"})
	if ops != (query.Counts{Unread: 1, Total: 2}) {
		t.Errorf("Ops counts = %+v", ops)
	}
}

func TestLimitArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want int
	}{
		{"missing", map[string]any{}, 20},
		{"normal", map[string]any{"limit": float64(5)}, 5},
		{"zero", map[string]any{"limit": float64(0)}, 20},
		{"negative", map[string]any{"limit": float64(-3)}, 20},
		{"too large", map[string]any{"limit": float64(1e9)}, maxLimit},
		{"wrong type", map[string]any{"limit": "10"}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := limitArg(tt.args, "limit", 20); got != tt.want {
				t.Errorf("limitArg = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(newTestHandlers(t).reader, "test")
	tools := s.ListTools()
	for _, name := range []string{ToolSearchMessages, ToolGetMessage, ToolListMessages, ToolListGroups, ToolGetCounts} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}
