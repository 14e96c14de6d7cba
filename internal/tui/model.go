// Package tui provides a terminal browser for the pushvault store.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wesm/pushvault/internal/messages"
	"github.com/wesm/pushvault/internal/observe"
	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
)

// Vault is the subset of the messages facade the browser reads and writes.
// *messages.Manager satisfies it.
type Vault interface {
	Groups(ctx context.Context) []store.GroupSummary
	Counts(ctx context.Context, group *string) query.Counts
	List(ctx context.Context, opts query.ListOptions) []store.Message
	Get(ctx context.Context, id string) *store.Message
	MarkRead(ctx context.Context, ids ...string) (int64, error)
	MarkAllRead(ctx context.Context, group *string) (int64, error)
	DeleteMessage(ctx context.Context, id string) (string, bool, error)
	DeleteGroup(ctx context.Context, group string) (int64, error)
}

// Searcher runs debounced searches and delivers the latest result.
// *messages.Searcher satisfies it.
type Searcher interface {
	Submit(opts query.SearchOptions)
	Results() <-chan messages.SearchResult
}

// Options configures the browser.
type Options struct {
	// Events feeds live count and group updates; nil disables them.
	Events <-chan observe.Event
	// Searcher enables "/" search; nil disables it.
	Searcher Searcher
	// PageSize caps how many messages a group view loads.
	PageSize int
}

const defaultPageSize = 200

// viewLevel represents the current navigation depth.
type viewLevel int

const (
	levelGroups viewLevel = iota
	levelMessages
	levelDetail
)

// modalType represents the dialog drawn over the current view.
type modalType int

const (
	modalNone modalType = iota
	modalDeleteConfirm
	modalHelp
)

// deleteTarget is what a confirmed delete removes: one message when id is
// set, otherwise the whole group.
type deleteTarget struct {
	id    string
	group string
}

// Model is the browser model following the Elm architecture.
type Model struct {
	vault    Vault
	searcher Searcher
	events   <-chan observe.Event
	pageSize int

	level  viewLevel
	counts query.Counts
	groups []store.GroupSummary

	// Message list: one group, or search results when searchQuery is set.
	group    string
	messages []store.Message
	detail   *store.Message

	cursor       int
	scrollOffset int
	groupCursor  int // restored when leaving a group
	listCursor   int // restored when leaving the detail view
	detailScroll int

	searchInput  textinput.Model
	searchActive bool
	searchQuery  string
	searchTotal  int64
	searching    bool

	modal         modalType
	pendingDelete deleteTarget

	width    int
	height   int
	loading  bool
	err      error
	flash    string
	quitting bool

	// Request tracking to ignore stale async results.
	groupsRequestID uint64
	listRequestID   uint64
}

// New creates a browser over vault.
func New(vault Vault, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "search"
	ti.CharLimit = 200
	ti.Width = 50

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return Model{
		vault:       vault,
		searcher:    opts.Searcher,
		events:      opts.Events,
		pageSize:    pageSize,
		level:       levelGroups,
		loading:     true,
		searchInput: ti,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadGroups(), m.waitForEvent(), m.waitForSearch())
}

// groupsLoadedMsg carries a fresh group list and the global counts.
type groupsLoadedMsg struct {
	groups    []store.GroupSummary
	counts    query.Counts
	requestID uint64
}

// messagesLoadedMsg carries one group's messages.
type messagesLoadedMsg struct {
	group     string
	messages  []store.Message
	requestID uint64
}

// detailLoadedMsg carries the message opened in the detail view.
type detailLoadedMsg struct {
	msg *store.Message
	id  string
}

// storeChangedMsg wraps an observer event.
type storeChangedMsg struct {
	event observe.Event
}

// searchResultsMsg wraps a searcher result.
type searchResultsMsg struct {
	result messages.SearchResult
}

// actionDoneMsg reports a write started from the browser.
type actionDoneMsg struct {
	flash string
	err   error
}

func (m Model) loadGroups() tea.Cmd {
	requestID := m.groupsRequestID
	vault := m.vault
	return func() tea.Msg {
		ctx := context.Background()
		return groupsLoadedMsg{
			groups:    vault.Groups(ctx),
			counts:    vault.Counts(ctx, nil),
			requestID: requestID,
		}
	}
}

func (m Model) loadMessages(group string) tea.Cmd {
	requestID := m.listRequestID
	vault := m.vault
	limit := m.pageSize
	return func() tea.Msg {
		msgs := vault.List(context.Background(), query.ListOptions{Group: &group, Limit: limit})
		return messagesLoadedMsg{group: group, messages: msgs, requestID: requestID}
	}
}

// loadDetail fetches id and marks it read when it was unread.
func (m Model) loadDetail(id string) tea.Cmd {
	vault := m.vault
	return func() tea.Msg {
		ctx := context.Background()
		msg := vault.Get(ctx, id)
		if msg != nil && !msg.IsRead {
			if n, err := vault.MarkRead(ctx, id); err == nil && n > 0 {
				msg.IsRead = true
			}
		}
		return detailLoadedMsg{msg: msg, id: id}
	}
}

// waitForEvent blocks on the observer channel. Each storeChangedMsg re-arms
// it; a closed channel ends the loop.
func (m Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return storeChangedMsg{event: ev}
	}
}

func (m Model) waitForSearch() tea.Cmd {
	if m.searcher == nil {
		return nil
	}
	results := m.searcher.Results()
	return func() tea.Msg {
		res, ok := <-results
		if !ok {
			return nil
		}
		return searchResultsMsg{result: res}
	}
}

// runAction performs a write off the update loop and reports it with flash.
func (m Model) runAction(what string, fn func(ctx context.Context) (int64, error)) tea.Cmd {
	return func() tea.Msg {
		n, err := fn(context.Background())
		if err != nil {
			return actionDoneMsg{err: fmt.Errorf("%s: %w", what, err)}
		}
		return actionDoneMsg{flash: fmt.Sprintf("%s: %d message(s)", what, n)}
	}
}

// reload refetches whatever the current view shows.
func (m Model) reload() (Model, tea.Cmd) {
	m.groupsRequestID++
	cmds := []tea.Cmd{m.loadGroups()}
	if m.level != levelGroups && m.searchQuery == "" {
		m.listRequestID++
		cmds = append(cmds, m.loadMessages(m.group))
	}
	return m, tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 0)
		m.height = max(msg.Height, 0)
		m.clampScroll()
		return m, nil

	case groupsLoadedMsg:
		if msg.requestID != m.groupsRequestID {
			return m, nil
		}
		m.loading = false
		m.counts = msg.counts
		m.setGroups(msg.groups)
		return m, nil

	case messagesLoadedMsg:
		if msg.requestID != m.listRequestID || msg.group != m.group || m.searchQuery != "" {
			return m, nil
		}
		m.loading = false
		m.messages = msg.messages
		if m.level == levelMessages {
			m.cursor = min(m.cursor, max(len(m.messages)-1, 0))
			m.clampScroll()
		}
		return m, nil

	case detailLoadedMsg:
		if m.level != levelDetail || m.detail == nil || m.detail.ID != msg.id {
			return m, nil
		}
		if msg.msg == nil {
			m.err = fmt.Errorf("message %s no longer exists", msg.id)
			return m.goBack()
		}
		m.detail = msg.msg
		for i := range m.messages {
			if m.messages[i].ID == msg.id {
				m.messages[i].IsRead = msg.msg.IsRead
			}
		}
		return m, nil

	case storeChangedMsg:
		m.counts = msg.event.Counts
		var cmd tea.Cmd
		if msg.event.Kind == observe.GroupsChanged {
			m.setGroups(msg.event.Groups)
			if m.level == levelMessages && m.searchQuery == "" {
				m.listRequestID++
				cmd = m.loadMessages(m.group)
			}
		}
		return m, tea.Batch(cmd, m.waitForEvent())

	case searchResultsMsg:
		if m.searchQuery != "" && msg.result.Options.Text == m.searchQuery {
			m.searching = false
			m.messages = msg.result.Messages
			m.searchTotal = msg.result.Total
			if m.level == levelMessages {
				m.cursor, m.scrollOffset = 0, 0
			}
		}
		return m, m.waitForSearch()

	case actionDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.flash = msg.flash
		}
		return m.reload()
	}

	return m, nil
}

// setGroups replaces the group list, keeping the cursor on the same group
// when it still exists.
func (m *Model) setGroups(groups []store.GroupSummary) {
	var current string
	if idx := m.groupIndex(); idx >= 0 && idx < len(m.groups) {
		current = m.groups[idx].Group
	}
	m.groups = groups

	pos := 0
	for i, g := range groups {
		if g.Group == current {
			pos = i
			break
		}
	}
	if m.level == levelGroups {
		m.cursor = pos
		m.clampScroll()
	} else {
		m.groupCursor = pos
	}
}

func (m Model) groupIndex() int {
	if m.level == levelGroups {
		return m.cursor
	}
	return m.groupCursor
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.modal != modalNone {
		return m.modalView()
	}
	var body string
	switch m.level {
	case levelGroups:
		body = m.groupsView()
	case levelMessages:
		body = m.messagesView()
	case levelDetail:
		body = m.detailView()
	}
	return m.headerView() + "\n" + body + "\n" + m.footerView()
}
