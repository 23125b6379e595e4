package reportimport

import (
	"errors"
	"fmt"
)

// ErrJobLocked is returned when another worker holds the lock of the same job
// or of the same distributor and reporting month.
var ErrJobLocked = errors.New("report import already running")

// ErrRetryDelivery marks a job left unfinished on purpose: the queue message
// must be redelivered instead of acknowledged.
var ErrRetryDelivery = errors.New("import job will be retried")

var errMissingField = errors.New("missing required field")

// FileReadError is fatal to a job: the report could not be opened or the
// stream broke mid-read.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read report %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// RowMappingError rejects a single row; the import continues.
type RowMappingError struct {
	Field string
	Value string
	Err   error
}

func (e *RowMappingError) Error() string {
	if errors.Is(e.Err, errMissingField) {
		return fmt.Sprintf("missing required field %q", e.Field)
	}
	return fmt.Sprintf("field %q: cannot parse %q: %v", e.Field, e.Value, e.Err)
}

func (e *RowMappingError) Unwrap() error { return e.Err }

// RowPersistenceError wraps a failed label lookup or report row write.
type RowPersistenceError struct {
	Op        string
	LabelName string
	Err       error
}

func (e *RowPersistenceError) Error() string {
	return fmt.Sprintf("%s (label %q): %v", e.Op, e.LabelName, e.Err)
}

func (e *RowPersistenceError) Unwrap() error { return e.Err }

// UnlinkedFlushError reports one unlinked report or detail that could not be written.
// RowIndex is zero when the summary report itself failed.
type UnlinkedFlushError struct {
	LabelName string
	RowIndex  int
	Err       error
}

func (e *UnlinkedFlushError) Error() string {
	if e.RowIndex == 0 {
		return fmt.Sprintf("create unlinked report for %q: %v", e.LabelName, e.Err)
	}
	return fmt.Sprintf("create unlinked detail for %q row %d: %v", e.LabelName, e.RowIndex, e.Err)
}

func (e *UnlinkedFlushError) Unwrap() error { return e.Err }
