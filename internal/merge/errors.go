package merge

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes merge and undo failures.
type ErrorCode string

const (
	// ErrCodeSameRecord indicates a merge of a record into itself.
	ErrCodeSameRecord ErrorCode = "SAME_RECORD"

	// ErrCodeRecordNotFound indicates a missing source or target record.
	ErrCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"

	// ErrCodeAlreadyMerged indicates a record that is already a tombstone.
	ErrCodeAlreadyMerged ErrorCode = "ALREADY_MERGED"

	// ErrCodeSnapshotNotFound indicates an unknown snapshot ID.
	ErrCodeSnapshotNotFound ErrorCode = "SNAPSHOT_NOT_FOUND"

	// ErrCodeAlreadyUndone indicates a snapshot that was already replayed.
	ErrCodeAlreadyUndone ErrorCode = "ALREADY_UNDONE"

	// ErrCodeUndoConflict indicates restored rows that collide with rows
	// written after the merge. Nothing is restored.
	ErrCodeUndoConflict ErrorCode = "UNDO_CONFLICT"
)

// Error is a merge or undo failure. Its transaction is always rolled back.
type Error struct {
	Code       ErrorCode
	Message    string
	RecordID   int64
	SnapshotID string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.SnapshotID != "":
		return fmt.Sprintf("%s: %s (snapshot=%s)", e.Code, e.Message, e.SnapshotID)
	case e.RecordID != 0:
		return fmt.Sprintf("%s: %s (record=%d)", e.Code, e.Message, e.RecordID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// HasCode returns true if err is a merge Error with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code ErrorCode) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

func newSameRecordError(id int64) *Error {
	return &Error{Code: ErrCodeSameRecord, Message: "cannot merge a record into itself", RecordID: id}
}

func newRecordNotFoundError(id int64) *Error {
	return &Error{Code: ErrCodeRecordNotFound, Message: "record does not exist", RecordID: id}
}

func newAlreadyMergedError(id, into int64) *Error {
	return &Error{Code: ErrCodeAlreadyMerged, Message: fmt.Sprintf("record was merged into %d", into), RecordID: id}
}

func newUndoConflictError(snapshotID string, err error) *Error {
	return &Error{
		Code:       ErrCodeUndoConflict,
		Message:    "restored rows collide with current data: " + err.Error(),
		SnapshotID: snapshotID,
		Err:        err,
	}
}
