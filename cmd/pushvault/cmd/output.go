package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/wesm/pushvault/internal/store"
	"github.com/wesm/pushvault/internal/textutil"
)

const (
	groupWidth = 16
	titleWidth = 48
	dateLayout = "2006-01-02 15:04"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// styler colors table output. Anything that is not a terminal gets plain
// text.
type styler struct {
	out *termenv.Output
}

func newStyler(w io.Writer) *styler {
	profile := termenv.Ascii
	if isTerminal(w) {
		profile = termenv.EnvColorProfile()
	}
	return &styler{out: termenv.NewOutput(w, termenv.WithProfile(profile))}
}

func (s *styler) bold(text string) string {
	return s.out.String(text).Bold().String()
}

func (s *styler) faint(text string) string {
	return s.out.String(text).Faint().String()
}

// level colors text by message priority: 1 yellow, 2 and up red.
func (s *styler) level(l int, text string) string {
	switch {
	case l >= 2:
		return s.out.String(text).Foreground(s.out.Color("1")).String()
	case l == 1:
		return s.out.String(text).Foreground(s.out.Color("3")).String()
	}
	return text
}

// headline picks the text that represents a message in one line.
func headline(m store.Message) string {
	for _, p := range []*string{m.Title, m.Subtitle, m.Body} {
		if p != nil && strings.TrimSpace(*p) != "" {
			return textutil.FirstLine(*p)
		}
	}
	return "(no content)"
}

func writeMessageTable(w io.Writer, msgs []store.Message) {
	st := newStyler(w)
	fmt.Fprintf(w, "  %s  %s  %s  %s\n",
		textutil.PadWidth("DATE", len(dateLayout)),
		textutil.PadWidth("GROUP", groupWidth),
		textutil.PadWidth("TITLE", titleWidth),
		"ID")
	for _, m := range msgs {
		marker := " "
		title := textutil.PadWidth(textutil.TruncateWidth(headline(m), titleWidth), titleWidth)
		if !m.IsRead {
			marker = st.bold("*")
			title = st.bold(title)
		}
		fmt.Fprintf(w, "%s %s  %s  %s  %s\n",
			marker,
			m.CreateDate.Local().Format(dateLayout),
			textutil.PadWidth(textutil.TruncateWidth(m.Group, groupWidth), groupWidth),
			st.level(m.Level, title),
			st.faint(m.ID))
	}
}

func writeGroupTable(w io.Writer, groups []store.GroupSummary) {
	st := newStyler(w)
	fmt.Fprintf(w, "%s  %6s  %s  %s\n",
		textutil.PadWidth("GROUP", groupWidth),
		"UNREAD",
		textutil.PadWidth("LATEST", len(dateLayout)),
		"TITLE")
	for _, g := range groups {
		unread := fmt.Sprintf("%6d", g.UnreadCount)
		if g.UnreadCount > 0 {
			unread = st.bold(unread)
		}
		fmt.Fprintf(w, "%s  %s  %s  %s\n",
			textutil.PadWidth(textutil.TruncateWidth(g.Group, groupWidth), groupWidth),
			unread,
			g.CreateDate.Local().Format(dateLayout),
			textutil.TruncateWidth(headline(g.Message), titleWidth))
	}
}

func writeMessageDetail(w io.Writer, m store.Message) {
	st := newStyler(w)
	field := func(name string, v *string) {
		if v != nil && *v != "" {
			fmt.Fprintf(w, "%-9s %s\n", name+":", *v)
		}
	}
	fmt.Fprintf(w, "%-9s %s\n", "ID:", m.ID)
	fmt.Fprintf(w, "%-9s %s\n", "Group:", m.Group)
	fmt.Fprintf(w, "%-9s %s\n", "Date:", m.CreateDate.Local().Format(time.RFC3339))
	field("Title", m.Title)
	field("Subtitle", m.Subtitle)
	field("From", m.From)
	field("Host", m.Host)
	field("URL", m.URL)
	field("Icon", m.Icon)
	field("Image", m.Image)
	field("Reply", m.Reply)
	if m.Level != 0 {
		fmt.Fprintf(w, "%-9s %s\n", "Level:", st.level(m.Level, fmt.Sprint(m.Level)))
	}
	ttl := fmt.Sprintf("%d days", m.TTL)
	if m.TTL == store.TTLForever {
		ttl = "forever"
	}
	fmt.Fprintf(w, "%-9s %s\n", "TTL:", ttl)
	state := "read"
	if !m.IsRead {
		state = st.bold("unread")
	}
	fmt.Fprintf(w, "%-9s %s\n", "State:", state)
	field("Other", m.Other)
	if m.Body != nil && *m.Body != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimRight(*m.Body, " \n"))
	}
}

// parseAge accepts a Go duration or a day count like "30d".
func parseAge(s string) (time.Duration, error) {
	if d, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(d)
		if err != nil || days < 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil || dur < 0 {
		return 0, fmt.Errorf("invalid age %q: use a duration like 12h or a day count like 30d", s)
	}
	return dur, nil
}
