package ingest

import (
	"errors"
	"fmt"

	"github.com/roach88/tributary/internal/model"
)

// ErrorCode categorizes ingest errors.
type ErrorCode string

const (
	// ErrCodeAdapterFetch indicates a remote fetch failed mid-pagination.
	ErrCodeAdapterFetch ErrorCode = "ADAPTER_FETCH"

	// ErrCodeConflictResolution indicates a batch violated a constraint the
	// upsert policy cannot resolve.
	ErrCodeConflictResolution ErrorCode = "CONFLICT_RESOLUTION"
)

// AdapterFetchError reports a failed page fetch. Pages emitted before the
// failure are already committed and stay valid.
type AdapterFetchError struct {
	Source model.SourceType
	Page   int
	Err    error
}

func (e *AdapterFetchError) Error() string {
	return fmt.Sprintf("%s: fetch %s page %d: %v", ErrCodeAdapterFetch, e.Source, e.Page, e.Err)
}

func (e *AdapterFetchError) Unwrap() error { return e.Err }

// ConflictResolutionError reports a batch that failed on an integrity
// constraint. Retrying the same input fails the same way, so it is surfaced
// instead of retried.
type ConflictResolutionError struct {
	Table string
	Batch int
	Err   error
}

func (e *ConflictResolutionError) Error() string {
	return fmt.Sprintf("%s: write %s batch %d: %v", ErrCodeConflictResolution, e.Table, e.Batch, e.Err)
}

func (e *ConflictResolutionError) Unwrap() error { return e.Err }

// IsAdapterFetchError returns true if err is or wraps an AdapterFetchError.
func IsAdapterFetchError(err error) bool {
	var fe *AdapterFetchError
	return errors.As(err, &fe)
}

// IsConflictResolutionError returns true if err is or wraps a ConflictResolutionError.
func IsConflictResolutionError(err error) bool {
	var ce *ConflictResolutionError
	return errors.As(err, &ce)
}
