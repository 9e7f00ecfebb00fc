package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for the service boundary.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindUnavailable ErrorKind = "unavailable"
	KindInternal    ErrorKind = "internal"
)

// AppError wraps an operation, a failure kind, a human-facing message and the cause.
type AppError struct {
	Op   string
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an internal AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Kind: KindInternal, Msg: msg, Err: err}
}

// ValidationError constructs an AppError for a rejected request.
func ValidationError(op, msg string) error {
	return &AppError{Op: op, Kind: KindValidation, Msg: msg}
}

// NotFoundError constructs an AppError for a missing entity.
func NotFoundError(op, msg string) error {
	return &AppError{Op: op, Kind: KindNotFound, Msg: msg}
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}
