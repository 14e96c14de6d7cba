package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wesm/pushvault/internal/query"
)

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}
	m.flash = ""

	switch m.modal {
	case modalDeleteConfirm:
		return m.handleDeleteConfirmKeys(msg)
	case modalHelp:
		m.modal = modalNone
		return m, nil
	}

	if m.searchActive {
		return m.handleSearchKeys(msg)
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "?":
		m.modal = modalHelp
		return m, nil
	case "/":
		if m.searcher == nil {
			return m, nil
		}
		m.searchActive = true
		return m, m.searchInput.Focus()
	}

	switch m.level {
	case levelGroups:
		return m.handleGroupKeys(msg)
	case levelMessages:
		return m.handleMessageKeys(msg)
	default:
		return m.handleDetailKeys(msg)
	}
}

func (m Model) handleGroupKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.navigateList(msg.String(), len(m.groups)) {
		return m, nil
	}
	if len(m.groups) == 0 {
		return m, nil
	}
	g := m.groups[m.cursor].Group

	switch msg.String() {
	case "enter", "l", "right":
		m.groupCursor = m.cursor
		m.level = levelMessages
		m.group = g
		m.messages = nil
		m.cursor, m.scrollOffset = 0, 0
		m.loading = true
		m.listRequestID++
		return m, m.loadMessages(g)
	case "r":
		return m, m.runAction("Marked read", func(ctx context.Context) (int64, error) {
			return m.vault.MarkAllRead(ctx, &g)
		})
	case "R":
		return m, m.runAction("Marked read", func(ctx context.Context) (int64, error) {
			return m.vault.MarkAllRead(ctx, nil)
		})
	case "d", "x":
		m.pendingDelete = deleteTarget{group: g}
		m.modal = modalDeleteConfirm
	}
	return m, nil
}

func (m Model) handleMessageKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.navigateList(msg.String(), len(m.messages)) {
		return m, nil
	}

	switch msg.String() {
	case "esc", "backspace", "h", "left":
		return m.goBack()
	case "R":
		if m.searchQuery != "" {
			return m, nil
		}
		g := m.group
		return m, m.runAction("Marked read", func(ctx context.Context) (int64, error) {
			return m.vault.MarkAllRead(ctx, &g)
		})
	}

	if len(m.messages) == 0 {
		return m, nil
	}
	sel := m.messages[m.cursor]

	switch msg.String() {
	case "enter", "l", "right":
		m.listCursor = m.cursor
		m.level = levelDetail
		m.detail = &sel
		m.detailScroll = 0
		return m, m.loadDetail(sel.ID)
	case "r":
		return m, m.runAction("Marked read", func(ctx context.Context) (int64, error) {
			return m.vault.MarkRead(ctx, sel.ID)
		})
	case "d", "x":
		m.pendingDelete = deleteTarget{id: sel.ID, group: sel.Group}
		m.modal = modalDeleteConfirm
	}
	return m, nil
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace", "h", "left":
		return m.goBack()
	case "j", "down":
		m.detailScroll++
		m.clampScroll()
	case "k", "up":
		m.detailScroll = max(m.detailScroll-1, 0)
	case "pgdown", " ":
		m.detailScroll += m.visibleRows()
		m.clampScroll()
	case "pgup":
		m.detailScroll = max(m.detailScroll-m.visibleRows(), 0)
	case "g", "home":
		m.detailScroll = 0
	case "d", "x":
		if m.detail != nil {
			m.pendingDelete = deleteTarget{id: m.detail.ID, group: m.detail.Group}
			m.modal = modalDeleteConfirm
		}
	}
	return m, nil
}

func (m Model) handleDeleteConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		m.modal = modalNone
		target := m.pendingDelete
		m.pendingDelete = deleteTarget{}
		if target.id == "" {
			return m, m.runAction("Deleted group "+target.group, func(ctx context.Context) (int64, error) {
				return m.vault.DeleteGroup(ctx, target.group)
			})
		}
		if m.level == levelDetail {
			m, _ = m.leaveDetail()
		}
		return m, m.runAction("Deleted", func(ctx context.Context) (int64, error) {
			_, ok, err := m.vault.DeleteMessage(ctx, target.id)
			if ok {
				return 1, err
			}
			return 0, err
		})
	default:
		m.modal = modalNone
		m.pendingDelete = deleteTarget{}
	}
	return m, nil
}

// handleSearchKeys edits the search bar. Every edit submits to the searcher,
// which debounces and drops superseded queries.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchActive = false
		m.searchInput.Blur()
		return m, nil
	case "esc":
		m.searchActive = false
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		return m.clearSearch()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)

	text := strings.TrimSpace(m.searchInput.Value())
	if text == "" {
		if m.searchQuery == "" {
			return m, cmd
		}
		mm, reload := m.clearSearch()
		return mm, tea.Batch(cmd, reload)
	}
	if text == m.searchQuery {
		return m, cmd
	}

	if m.searchQuery == "" {
		if m.level == levelGroups {
			m.groupCursor = m.cursor
		}
		m.level = levelMessages
		m.group = ""
		m.messages = nil
		m.cursor, m.scrollOffset = 0, 0
	}
	m.searchQuery = text
	m.searching = true
	m.searcher.Submit(query.SearchOptions{Text: text, Limit: m.pageSize})
	return m, cmd
}

// clearSearch leaves search results and returns to the group list.
func (m Model) clearSearch() (Model, tea.Cmd) {
	if m.searchQuery == "" {
		return m, nil
	}
	m.searchQuery = ""
	m.searchTotal = 0
	m.searching = false
	m.messages = nil
	m.level = levelGroups
	m.cursor = min(m.groupCursor, max(len(m.groups)-1, 0))
	m.scrollOffset = 0
	m.clampScroll()
	return m, nil
}

func (m Model) goBack() (tea.Model, tea.Cmd) {
	switch m.level {
	case levelDetail:
		return m.leaveDetail()
	case levelMessages:
		if m.searchQuery != "" {
			m.searchInput.SetValue("")
			return m.clearSearch()
		}
		m.level = levelGroups
		m.group = ""
		m.messages = nil
		m.cursor = min(m.groupCursor, max(len(m.groups)-1, 0))
		m.scrollOffset = 0
		m.clampScroll()
		m.groupsRequestID++
		return m, m.loadGroups()
	}
	return m, nil
}

func (m Model) leaveDetail() (Model, tea.Cmd) {
	m.level = levelMessages
	m.detail = nil
	m.detailScroll = 0
	m.cursor = min(m.listCursor, max(len(m.messages)-1, 0))
	m.clampScroll()
	return m, nil
}

// navigateList moves the cursor for list keys and reports whether key was
// one of them.
func (m *Model) navigateList(key string, n int) bool {
	page := m.visibleRows()
	switch key {
	case "j", "down":
		if m.cursor < n-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "pgdown", "ctrl+d":
		m.cursor = min(m.cursor+page, max(n-1, 0))
	case "pgup", "ctrl+u":
		m.cursor = max(m.cursor-page, 0)
	case "g", "home":
		m.cursor = 0
	case "G", "end":
		m.cursor = max(n-1, 0)
	default:
		return false
	}
	m.clampScroll()
	return true
}

// visibleRows is the number of table rows that fit between the header
// (title, breadcrumb, column header, separator) and the footer.
func (m Model) visibleRows() int {
	if m.height <= 0 {
		return 20
	}
	return max(m.height-5, 1)
}

// clampScroll keeps the cursor row on screen and the detail scroll within
// the rendered lines.
func (m *Model) clampScroll() {
	rows := m.visibleRows()
	if m.cursor < m.scrollOffset {
		m.scrollOffset = m.cursor
	}
	if m.cursor >= m.scrollOffset+rows {
		m.scrollOffset = m.cursor - rows + 1
	}
	if m.level == levelDetail {
		limit := max(len(m.detailLines())-rows, 0)
		m.detailScroll = min(m.detailScroll, limit)
	}
}
