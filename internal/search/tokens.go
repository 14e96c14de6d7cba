// Package search turns free-text search input into LIKE patterns.
package search

import (
	"strings"
	"unicode"

	"github.com/wesm/pushvault/internal/textutil"
)

// EscapeChar is the LIKE escape character used by Pattern. Queries must
// declare it with ESCAPE '\'.
const EscapeChar = '\\'

// Tokenize splits text on whitespace. A double quote at the start of a token
// opens a phrase that runs to the next double quote and is kept as one token
// without its quotes, so "disk full" matches the phrase. A quote anywhere
// else is an ordinary character: say"hi is the single token say"hi. Empty
// tokens are dropped; an unterminated phrase runs to the end of the input.
// Input is normalized the same way stored text is, so accented queries match.
func Tokenize(text string) []string {
	text = textutil.Normalize(text)
	var (
		tokens   []string
		current  strings.Builder
		inQuotes bool
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case r == '"' && inQuotes:
			flush()
			inQuotes = false
		case r == '"' && current.Len() == 0:
			inQuotes = true
		case unicode.IsSpace(r) && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	// A quoted run of only whitespace survives flush; drop it.
	out := tokens[:0]
	for _, tok := range tokens {
		if strings.TrimSpace(tok) != "" {
			out = append(out, tok)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// EscapeLike escapes the LIKE wildcards and the escape character itself so
// tok matches literally.
func EscapeLike(tok string) string {
	var b strings.Builder
	b.Grow(len(tok))
	for _, r := range tok {
		if r == '%' || r == '_' || r == EscapeChar {
			b.WriteRune(EscapeChar)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Pattern returns a LIKE pattern matching tok anywhere in a value.
func Pattern(tok string) string {
	return "%" + EscapeLike(tok) + "%"
}

// Patterns tokenizes text and returns one substring pattern per token.
func Patterns(text string) []string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	patterns := make([]string, len(tokens))
	for i, tok := range tokens {
		patterns[i] = Pattern(tok)
	}
	return patterns
}
