package predicate

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// ErrorCode categorizes vocabulary errors.
type ErrorCode string

const (
	// ErrCodeUnknownPredicate indicates a slug that is not in the vocabulary.
	ErrCodeUnknownPredicate ErrorCode = "UNKNOWN_PREDICATE"

	// ErrCodeNonCanonicalPredicate indicates an attempt to store an inverse slug.
	ErrCodeNonCanonicalPredicate ErrorCode = "NON_CANONICAL_PREDICATE"
)

// Error is a caller error against the vocabulary, raised before any write.
type Error struct {
	Code ErrorCode
	Slug string

	// Canonical is the slug to store instead, for NON_CANONICAL_PREDICATE.
	Canonical string
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNonCanonicalPredicate:
		return fmt.Sprintf("%s: %q is an inverse label; store %q with source and target swapped", e.Code, e.Slug, e.Canonical)
	default:
		return fmt.Sprintf("%s: %q", e.Code, e.Slug)
	}
}

// IsUnknown returns true if err is an UNKNOWN_PREDICATE error.
// Uses errors.As to handle wrapped errors.
func IsUnknown(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeUnknownPredicate
	}
	return false
}

// IsNonCanonical returns true if err is a NON_CANONICAL_PREDICATE error.
// Uses errors.As to handle wrapped errors.
func IsNonCanonical(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeNonCanonicalPredicate
	}
	return false
}

// LoadError reports an invalid vocabulary definition.
type LoadError struct {
	Slug    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	prefix := "vocabulary"
	if e.Pos.IsValid() {
		prefix = fmt.Sprintf("%s:%d:%d", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	if e.Slug != "" {
		return fmt.Sprintf("%s: predicate %s: %s", prefix, e.Slug, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	le := &LoadError{Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
