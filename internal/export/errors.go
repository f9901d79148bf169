package export

import (
	"errors"
	"fmt"
)

// ErrUnsafeSeriesID is returned when a series id cannot be used as a single
// directory name below the output root.
var ErrUnsafeSeriesID = errors.New("export: unsafe series id")

// WriteError reports a filesystem fault while exporting one series.
type WriteError struct {
	Op       string // "relocate" or "anonymize"
	SeriesID string
	Path     string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s series %s: %s: %v", e.Op, e.SeriesID, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
