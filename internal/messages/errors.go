package messages

import (
	"errors"
	"fmt"
)

// Errors returned by Manager. Storage driver errors are flattened into the
// message text so callers only ever match on these.
var (
	ErrWriteFailed = errors.New("message write failed")
	ErrImport      = errors.New("import failed")
	ErrExport      = errors.New("export failed")
)

func wrap(sentinel error, op string, err error) error {
	return fmt.Errorf("%w: %s: %v", sentinel, op, err)
}
