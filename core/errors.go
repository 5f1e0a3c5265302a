package core

import "github.com/pkg/errors"

var (
	ErrForbidden = NewForbiddenError("permission denied")
	ErrThrottled = errors.New("too many requests, please try again later")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError wraps a domain "not found" sentinel so transports can tell it apart from other failures.
type NotFoundError struct {
	Err error
}

func NewNotFoundError(err error) error {
	return &NotFoundError{Err: err}
}

func (err NotFoundError) Error() string { return err.Err.Error() }

// IsNotFound reports whether err (or its cause) is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// ForbiddenError is returned when the acting user may not perform an operation.
type ForbiddenError struct {
	Reason string
}

func NewForbiddenError(reason string) error {
	return &ForbiddenError{Reason: reason}
}

func (err ForbiddenError) Error() string { return err.Reason }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
