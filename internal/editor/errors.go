package editor

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the editor controllers.
var (
	ErrBusy             = errors.New("a submission is already in progress")
	ErrNoDeletionTarget = errors.New("no deletion is awaiting confirmation")
	ErrUnknownSlot      = errors.New("unknown attachment slot")
	ErrUnknownField     = errors.New("unknown list field")
	ErrUnknownRecord    = errors.New("record not found in cache")
	ErrNoTeam           = errors.New("record has no member list")
	ErrMemberIndex      = errors.New("member index out of range")
)

// ValidationError reports a draft that failed its required-field checks.
// Nothing has been sent to any backend when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Message)
}

// UploadError reports an attachment that could not be uploaded or resolved.
type UploadError struct {
	Slot  string
	Path  string
	Cause error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload %s to %s: %v", e.Slot, e.Path, e.Cause)
}

func (e *UploadError) Unwrap() error {
	return e.Cause
}

// PersistenceError reports a failed write or delete against the collection.
type PersistenceError struct {
	Op    string
	Key   string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s record %s: %v", e.Op, e.Key, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
