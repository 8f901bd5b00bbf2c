package command

import (
	"errors"
	"fmt"
)

// Kind classifies a command failure. The string values are part of the
// wire contract and must not change.
type Kind string

const (
	KindUnknownCommand       Kind = "UnknownCommand"
	KindMissingParameter     Kind = "MissingParameter"
	KindInvalidParameter     Kind = "InvalidParameter"
	KindBatchValidationError Kind = "BatchValidationError"
	KindBackendError         Kind = "BackendError"
	KindTimeout              Kind = "Timeout"
	KindRollbackFailed       Kind = "RollbackFailed"
	KindDuplicateCommand     Kind = "DuplicateCommand"
)

// Error is the structured failure every layer of the dispatcher speaks.
// Handlers may return one directly to control the reported kind; anything
// else they return is wrapped as a BackendError.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a structured Error with a formatted message.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a structured *Error from err, unwrapping as needed.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
