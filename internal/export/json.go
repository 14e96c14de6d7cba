package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/wesm/pushvault/internal/store"
)

// JSONWriter streams messages as a single JSON array, one element per line,
// without holding the whole array in memory.
type JSONWriter struct {
	w      *bufio.Writer
	count  int
	closed bool
}

// NewJSONWriter returns a writer that emits to w. Close must be called to
// terminate the array.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: bufio.NewWriter(w)}
}

// Write appends m to the array.
func (j *JSONWriter) Write(m store.Message) error {
	if j.closed {
		return errors.New("write after close")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", m.ID, err)
	}

	sep := ",\n"
	if j.count == 0 {
		sep = "[\n"
	}
	if _, err := j.w.WriteString(sep); err != nil {
		return err
	}
	if _, err := j.w.Write(data); err != nil {
		return err
	}
	j.count++
	return nil
}

// Count returns how many messages have been written.
func (j *JSONWriter) Count() int { return j.count }

// Close terminates the array and flushes buffered output. It does not
// close the underlying writer.
func (j *JSONWriter) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true

	tail := "\n]\n"
	if j.count == 0 {
		tail = "[]\n"
	}
	if _, err := j.w.WriteString(tail); err != nil {
		return err
	}
	return j.w.Flush()
}
