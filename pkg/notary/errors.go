package notary

import (
	"errors"
	"fmt"
)

// Error is a coded notary failure. Two errors match under errors.Is when
// their codes are equal, so callers compare against the exported values.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Cause == nil:
		return e.Code
	case e.Cause == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy carrying msg.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg, Cause: e.Cause}
}

// WithMessagef is WithMessage with formatting.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Wrap returns a copy with cause attached.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Cause: cause}
}

// Class returns the leading component of the code (VALIDATION, AUTHORIZATION, ...).
func (e *Error) Class() string {
	for i := 0; i < len(e.Code); i++ {
		if e.Code[i] == '/' {
			return e.Code[:i]
		}
	}
	return e.Code
}

const (
	ClassValidation    = "VALIDATION"
	ClassAuthorization = "AUTHORIZATION"
	ClassTransfer      = "TRANSFER"
	ClassAllocation    = "ALLOCATION"
	ClassRuntime       = "RUNTIME"
)

var (
	ErrSizeExceeded     = &Error{Code: "VALIDATION/SIZE_EXCEEDED"}
	ErrSizeMismatch     = &Error{Code: "VALIDATION/SIZE_MISMATCH"}
	ErrInvalidAuthority = &Error{Code: "AUTHORIZATION/INVALID_AUTHORITY"}
	ErrTransferRejected = &Error{Code: "TRANSFER/TRANSFER_REJECTED"}
	ErrAlreadyExists    = &Error{Code: "ALLOCATION/ALREADY_EXISTS"}
	ErrClockUnavailable = &Error{Code: "RUNTIME/CLOCK_UNAVAILABLE"}
	ErrNotFound         = &Error{Code: "RUNTIME/NOT_FOUND"}
	ErrCorruptRecord    = &Error{Code: "RUNTIME/CORRUPT_RECORD"}
)

// ClassOf returns the class of err, or "" if err is not a notary error.
func ClassOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Class()
	}
	return ""
}
