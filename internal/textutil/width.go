package textutil

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// TruncateWidth fits s into maxWidth terminal cells on one line. Wide
// characters (CJK, emoji) count as two cells. Line breaks and tabs become
// spaces.
func TruncateWidth(s string, maxWidth int) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", "", "\t", " ").Replace(s)

	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// PadWidth pads s with spaces to width cells.
func PadWidth(s string, width int) string {
	return runewidth.FillRight(s, width)
}
