package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/wesm/pushvault/internal/store"
	"github.com/wesm/pushvault/internal/textutil"
)

// Monochrome theme, adaptive for light and dark terminals.
var (
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}

	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Padding(0, 1)

	tableHeaderStyle = lipgloss.NewStyle().Bold(true)
	separatorStyle   = lipgloss.NewStyle().Faint(true)
	cursorRowStyle   = lipgloss.NewStyle().Background(bgCursor)
	unreadRowStyle   = lipgloss.NewStyle().Bold(true)
	readRowStyle     = lipgloss.NewStyle().Faint(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().Bold(true)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"})

	levelStyles = map[int]lipgloss.Style{
		1: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"}),
		2: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#cc0000", Dark: "#ff5555"}),
	}

	labelStyle = lipgloss.NewStyle().Faint(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2).
			Background(bgBase)

	modalTitleStyle = lipgloss.NewStyle().Bold(true)
)

const (
	groupColWidth  = 20
	unreadColWidth = 6
	dateLayout     = "2006-01-02 15:04"
)

func (m Model) contentWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m Model) headerView() string {
	title := titleBarStyle.Render("pushvault")
	stats := statsStyle.Render(fmt.Sprintf("%d unread / %d total", m.counts.Unread, m.counts.Total))
	return title + stats + "\n" + m.breadcrumb()
}

func (m Model) breadcrumb() string {
	parts := []string{"Groups"}
	switch {
	case m.searchQuery != "":
		parts = append(parts, fmt.Sprintf("Search %q", m.searchQuery))
	case m.level != levelGroups:
		parts = append(parts, m.group)
	}
	if m.level == levelDetail && m.detail != nil {
		parts = append(parts, headline(*m.detail))
	}
	return textutil.TruncateWidth(strings.Join(parts, " › "), m.contentWidth())
}

// headline is the first non-empty of title, subtitle and body.
func headline(msg store.Message) string {
	for _, p := range []*string{msg.Title, msg.Subtitle, msg.Body} {
		if p == nil {
			continue
		}
		if line := textutil.FirstLine(*p); line != "" {
			return line
		}
	}
	return "(no content)"
}

func (m Model) groupsView() string {
	var b strings.Builder
	width := m.contentWidth()
	titleWidth := max(width-groupColWidth-unreadColWidth-len(dateLayout)-8, 10)

	header := fmt.Sprintf("  %s  %*s  %s  %s",
		textutil.PadWidth("GROUP", groupColWidth), unreadColWidth, "UNREAD",
		textutil.PadWidth("LATEST", len(dateLayout)), "MESSAGE")
	b.WriteString(tableHeaderStyle.Render(header) + "\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", min(width, 120))) + "\n")

	if m.loading && len(m.groups) == 0 {
		b.WriteString("  Loading...\n")
		return b.String()
	}
	if len(m.groups) == 0 {
		b.WriteString("  No messages.\n")
		return b.String()
	}

	end := min(m.scrollOffset+m.visibleRows(), len(m.groups))
	for i := m.scrollOffset; i < end; i++ {
		g := m.groups[i]
		unread := ""
		if g.UnreadCount > 0 {
			unread = fmt.Sprintf("%d", g.UnreadCount)
		}
		row := fmt.Sprintf("  %s  %*s  %s  %s",
			textutil.PadWidth(textutil.TruncateWidth(g.Group, groupColWidth), groupColWidth),
			unreadColWidth, unread,
			g.CreateDate.Local().Format(dateLayout),
			textutil.TruncateWidth(headline(g.Message), titleWidth))
		b.WriteString(m.styleRow(row, i == m.cursor, g.UnreadCount > 0) + "\n")
	}
	return b.String()
}

func (m Model) messagesView() string {
	var b strings.Builder
	width := m.contentWidth()
	showGroup := m.searchQuery != ""
	titleWidth := width - len(dateLayout) - 8
	if showGroup {
		titleWidth -= groupColWidth + 2
	}
	titleWidth = max(titleWidth, 10)

	header := "    " + textutil.PadWidth("DATE", len(dateLayout)) + "  "
	if showGroup {
		header += textutil.PadWidth("GROUP", groupColWidth) + "  "
	}
	header += "MESSAGE"
	b.WriteString(tableHeaderStyle.Render(header) + "\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", min(width, 120))) + "\n")

	switch {
	case m.searching && len(m.messages) == 0:
		b.WriteString("  Searching...\n")
		return b.String()
	case m.loading && len(m.messages) == 0:
		b.WriteString("  Loading...\n")
		return b.String()
	case len(m.messages) == 0:
		b.WriteString("  No messages.\n")
		return b.String()
	}

	end := min(m.scrollOffset+m.visibleRows(), len(m.messages))
	for i := m.scrollOffset; i < end; i++ {
		msg := m.messages[i]
		marker := " "
		if !msg.IsRead {
			marker = "•"
		}
		level := " "
		if s, ok := levelStyles[msg.Level]; ok {
			level = s.Render("!")
		}
		row := fmt.Sprintf(" %s%s %s  ", marker, level, msg.CreateDate.Local().Format(dateLayout))
		if showGroup {
			row += textutil.PadWidth(textutil.TruncateWidth(msg.Group, groupColWidth), groupColWidth) + "  "
		}
		row += textutil.TruncateWidth(headline(msg), titleWidth)
		b.WriteString(m.styleRow(row, i == m.cursor, !msg.IsRead) + "\n")
	}
	return b.String()
}

func (m Model) styleRow(row string, isCursor, unread bool) string {
	switch {
	case isCursor:
		return cursorRowStyle.Render(row)
	case unread:
		return unreadRowStyle.Render(row)
	default:
		return readRowStyle.Render(row)
	}
}

// detailLines renders the open message as wrapped lines for scrolling.
func (m Model) detailLines() []string {
	if m.detail == nil {
		return nil
	}
	msg := m.detail
	width := m.contentWidth() - 2

	var lines []string
	field := func(name, value string) {
		if value != "" {
			lines = append(lines, labelStyle.Render(fmt.Sprintf("%-9s", name+":"))+" "+value)
		}
	}
	opt := func(name string, v *string) {
		if v != nil {
			field(name, *v)
		}
	}

	field("Group", msg.Group)
	field("Date", msg.CreateDate.Local().Format(time.RFC1123))
	opt("Title", msg.Title)
	opt("Subtitle", msg.Subtitle)
	opt("From", msg.From)
	opt("Host", msg.Host)
	opt("URL", msg.URL)
	opt("Image", msg.Image)
	if msg.Level != 0 {
		field("Level", fmt.Sprintf("%d", msg.Level))
	}
	if msg.TTL != store.TTLForever {
		expires := msg.CreateDate.Add(time.Duration(msg.TTL) * 24 * time.Hour)
		field("Expires", expires.Local().Format(time.RFC1123))
	}

	if msg.Body != nil && *msg.Body != "" {
		lines = append(lines, "")
		wrapped := lipgloss.NewStyle().Width(max(width, 20)).Render(*msg.Body)
		lines = append(lines, strings.Split(wrapped, "\n")...)
	}
	return lines
}

func (m Model) detailView() string {
	lines := m.detailLines()
	if len(lines) == 0 {
		return "  Loading...\n"
	}
	start := min(m.detailScroll, len(lines))
	end := min(start+m.visibleRows()+2, len(lines))
	return " " + strings.Join(lines[start:end], "\n ") + "\n"
}

func (m Model) footerView() string {
	width := m.contentWidth()
	if m.searchActive {
		return "/" + m.searchInput.View()
	}
	if m.err != nil {
		return ansi.Truncate(errorStyle.Render("Error: "+m.err.Error()), width, "…")
	}
	if m.flash != "" {
		return ansi.Truncate(flashStyle.Render(m.flash), width, "…")
	}

	var keys string
	switch m.level {
	case levelGroups:
		keys = "↑/↓ move · enter open · r read group · R read all · d delete group · / search · ? help · q quit"
	case levelMessages:
		keys = "↑/↓ move · enter open · r read · d delete · esc back · / search · q quit"
		if m.searchQuery != "" {
			keys = fmt.Sprintf("%d of %d matches · ", len(m.messages), m.searchTotal) + keys
		}
	case levelDetail:
		keys = "↑/↓ scroll · d delete · esc back · q quit"
	}
	return footerStyle.Render(textutil.TruncateWidth(keys, width))
}

var helpLines = []string{
	"Groups",
	"  enter     open the group",
	"  r / R     mark the group / everything read",
	"  d         delete the whole group",
	"",
	"Messages",
	"  enter     open the message (marks it read)",
	"  r         mark read",
	"  d         delete",
	"  esc       back",
	"",
	"  /         search title, subtitle, body, group and url",
	"  q         quit",
}

// modalView draws the open dialog centered on an otherwise blank screen.
func (m Model) modalView() string {
	var content string
	switch m.modal {
	case modalDeleteConfirm:
		what := fmt.Sprintf("every message in %q", m.pendingDelete.group)
		if m.pendingDelete.id != "" {
			what = "this message"
		}
		content = modalTitleStyle.Render("Delete "+what+"?") + "\n\n" + "y to confirm, any other key to cancel"
	case modalHelp:
		content = modalTitleStyle.Render("Keys") + "\n\n" + strings.Join(helpLines, "\n")
	}
	box := modalStyle.Render(content)
	if m.width <= 0 || m.height <= 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
