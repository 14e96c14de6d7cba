// Package textutil normalizes and formats message text.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/unicode/norm"
)

// fallbackEncodings are tried in order when detection is inconclusive.
var fallbackEncodings = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_1,
	japanese.ShiftJIS,
	simplifiedchinese.GB18030,
}

// EnsureUTF8 returns s unchanged when it is valid UTF-8. Otherwise it tries
// charset detection, then a short list of common legacy encodings, and
// finally replaces invalid bytes with U+FFFD.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	data := []byte(s)

	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	if result, err := chardet.NewTextDetector().DetectBest(data); err == nil && result.Confidence >= minConfidence {
		if enc, err := htmlindex.Get(result.Charset); err == nil {
			if decoded, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
				return string(decoded)
			}
		}
	}

	for _, enc := range fallbackEncodings {
		if decoded, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}
	return SanitizeUTF8(s)
}

// SanitizeUTF8 replaces invalid UTF-8 bytes with replacement character.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// Normalize returns s as valid UTF-8 in Unicode normalization form C, so
// composed and decomposed spellings of the same text compare equal.
func Normalize(s string) string {
	return norm.NFC.String(EnsureUTF8(s))
}

// NormalizePtr applies Normalize to *s. nil stays nil.
func NormalizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	n := Normalize(*s)
	return &n
}

// FirstLine returns the first non-empty-prefixed line of s.
// Leading newlines are trimmed before extracting the first line.
func FirstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// MarkdownLineBreaks ends every non-empty line with two spaces so Markdown
// renderers keep single newlines as hard breaks.
func MarkdownLineBreaks(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if line != "" && !strings.HasSuffix(line, "  ") {
			lines[i] = line + "  "
		}
	}
	return strings.Join(lines, "\n")
}
