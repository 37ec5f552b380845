package meshgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/meshgo/export"
)

var (
	// ErrNoData is returned when an export or preview is requested and
	// no fragments are stored.
	ErrNoData = errors.New("no mesh data")

	// ErrClosed is returned when the scanner is used after Close.
	ErrClosed = errors.New("scanner closed")
)

// ErrWriteFailed indicates that an export destination could not be
// created or written.
//
// The underlying cause can be accessed via errors.Unwrap.
type ErrWriteFailed struct {
	Path  string
	cause error
}

func (e *ErrWriteFailed) Error() string {
	return fmt.Sprintf("write failed: %s: %v", e.Path, e.cause)
}

func (e *ErrWriteFailed) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, export.ErrNoData) {
		return fmt.Errorf("%w: %w", ErrNoData, err)
	}
	return err
}
