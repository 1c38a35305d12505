package model

import (
	"errors"
	"fmt"
)

// Domain errors shared across layers.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat indicates the filename extension is not one of
	// the recognized formats. No document record is created.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrCorruptInput indicates the bytes could not be decoded as the
	// detected format. No document record is created.
	ErrCorruptInput = errors.New("corrupt input")
)

// DuplicateError is returned when an upload's content hash matches an
// existing document. The existing document's id is carried so callers can
// point the user at it instead of creating a second copy.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate document: content already ingested as %s", e.ExistingID)
}

// IsDuplicate reports whether err is a DuplicateError, returning the
// existing document id when it is.
func IsDuplicate(err error) (string, bool) {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.ExistingID, true
	}
	return "", false
}
