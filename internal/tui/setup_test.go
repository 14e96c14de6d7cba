package tui

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/wesm/pushvault/internal/messages"
	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
	"github.com/wesm/pushvault/internal/testutil"
)

func stripANSI(s string) string {
	return ansi.Strip(s)
}

// fakeVault keeps messages in memory, newest last.
type fakeVault struct {
	mu       sync.Mutex
	msgs     []store.Message
	markRead []string
	deleted  []string
}

func newFakeVault(msgs ...store.Message) *fakeVault {
	return &fakeVault{msgs: msgs}
}

func (v *fakeVault) Groups(context.Context) []store.GroupSummary {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []store.GroupSummary
	index := map[string]int{}
	for i := len(v.msgs) - 1; i >= 0; i-- {
		m := v.msgs[i]
		pos, ok := index[m.Group]
		if !ok {
			pos = len(out)
			index[m.Group] = pos
			out = append(out, store.GroupSummary{Message: m})
		}
		if !m.IsRead {
			out[pos].UnreadCount++
		}
	}
	return out
}

func (v *fakeVault) Counts(_ context.Context, group *string) query.Counts {
	v.mu.Lock()
	defer v.mu.Unlock()
	var c query.Counts
	for _, m := range v.msgs {
		if group != nil && m.Group != *group {
			continue
		}
		c.Total++
		if !m.IsRead {
			c.Unread++
		}
	}
	return c
}

func (v *fakeVault) List(_ context.Context, opts query.ListOptions) []store.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := []store.Message{}
	for i := len(v.msgs) - 1; i >= 0; i-- {
		if opts.Group == nil || v.msgs[i].Group == *opts.Group {
			out = append(out, v.msgs[i])
		}
	}
	return out
}

func (v *fakeVault) Get(_ context.Context, id string) *store.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.msgs {
		if m.ID == id {
			return &m
		}
	}
	return nil
}

func (v *fakeVault) MarkRead(_ context.Context, ids ...string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var n int64
	for i := range v.msgs {
		if slices.Contains(ids, v.msgs[i].ID) && !v.msgs[i].IsRead {
			v.msgs[i].IsRead = true
			v.markRead = append(v.markRead, v.msgs[i].ID)
			n++
		}
	}
	return n, nil
}

func (v *fakeVault) MarkAllRead(_ context.Context, group *string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var n int64
	for i := range v.msgs {
		if (group == nil || v.msgs[i].Group == *group) && !v.msgs[i].IsRead {
			v.msgs[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (v *fakeVault) DeleteMessage(_ context.Context, id string) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, m := range v.msgs {
		if m.ID == id {
			v.msgs = slices.Delete(v.msgs, i, i+1)
			v.deleted = append(v.deleted, id)
			return m.Group, true, nil
		}
	}
	return "", false, nil
}

func (v *fakeVault) DeleteGroup(_ context.Context, group string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	before := len(v.msgs)
	v.msgs = slices.DeleteFunc(v.msgs, func(m store.Message) bool { return m.Group == group })
	return int64(before - len(v.msgs)), nil
}

// fakeSearcher records submissions; tests deliver results by hand.
type fakeSearcher struct {
	submitted []query.SearchOptions
	results   chan messages.SearchResult
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{results: make(chan messages.SearchResult, 1)}
}

func (s *fakeSearcher) Submit(opts query.SearchOptions) { s.submitted = append(s.submitted, opts) }

func (s *fakeSearcher) Results() <-chan messages.SearchResult { return s.results }

// sampleVault holds two groups: Ops (one unread of two) then Chat.
func sampleVault() *fakeVault {
	return newFakeVault(
		testutil.NewMessage("c1").Group("Chat").Title("hello").Read().Build(),
		testutil.NewMessage("o1").Group("Ops").Title("disk alert").After(time.Minute).Build(),
		testutil.NewMessage("o2").Group("Ops").Title("cpu alert").After(2*time.Minute).Read().Build(),
	)
}

// drain runs cmd and feeds every message it produces back into m. Commands
// that block, such as channel waits and cursor blinks, are abandoned.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()

	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(100 * time.Millisecond):
		return m
	}

	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			m = drain(t, m, c)
		}
		return m
	}
	if msg == nil {
		return m
	}
	next, follow := m.Update(msg)
	return drain(t, next.(Model), follow)
}

// sendMsg delivers msg and runs whatever it triggers.
func sendMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	return drain(t, next.(Model), cmd)
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		m = sendMsg(t, m, k)
	}
	return m
}

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
)

// newLoadedModel builds a model over v with its initial load applied.
func newLoadedModel(t *testing.T, v Vault, opts Options) Model {
	t.Helper()
	m := New(v, opts)
	m = sendMsg(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return drain(t, m, m.Init())
}
