package model

import (
	"fmt"
	"strings"
)

// ValidationError reports required fields that were missing or blank.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field(s): %s", strings.Join(e.Fields, ", "))
}

// NotFoundError reports an id that does not exist in the collection.
type NotFoundError struct {
	ID CharacterID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("character %d not found", e.ID)
}

// StorageError reports a failure of the backing store. Op names the failed
// step ("load", "save", ...).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err, or returns nil when err is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
