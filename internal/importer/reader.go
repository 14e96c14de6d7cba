package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/wesm/pushvault/internal/store"
)

// Reader decodes a JSON array of messages one element at a time.
type Reader struct {
	dec     *json.Decoder
	started bool
	done    bool
	index   int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: json.NewDecoder(r)}
}

// Next returns the next message. It returns io.EOF after the closing
// bracket.
func (r *Reader) Next() (store.Message, error) {
	if r.done {
		return store.Message{}, io.EOF
	}
	if !r.started {
		tok, err := r.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return store.Message{}, errors.New("empty input, want a JSON array")
			}
			return store.Message{}, fmt.Errorf("read array start: %w", err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return store.Message{}, fmt.Errorf("want a JSON array, got %v", tok)
		}
		r.started = true
	}

	if !r.dec.More() {
		if _, err := r.dec.Token(); err != nil {
			return store.Message{}, fmt.Errorf("read array end: %w", err)
		}
		r.done = true
		return store.Message{}, io.EOF
	}

	var m store.Message
	if err := r.dec.Decode(&m); err != nil {
		return store.Message{}, fmt.Errorf("element %d: %w", r.index, err)
	}
	r.index++
	return m, nil
}
