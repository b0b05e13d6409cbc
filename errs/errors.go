// Package errs defines the coded errors returned by the set registry,
// the persistence layer and the reconciliation engine.
//
// Errors are compared by code, so callers can match a whole class of
// failures with errors.Is:
//
//	if errors.Is(err, errs.ErrNotFound) {
//		...
//	}
package errs

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	// CodeConfig reports bad init parameters.
	CodeConfig ErrorCode = "CONFIGURATION_ERROR"
	// CodeDuplicateName reports an add of an existing set name.
	CodeDuplicateName ErrorCode = "DUPLICATE_NAME"
	// CodeDuplicateMember reports an add of an existing (addr, prefix) pair.
	CodeDuplicateMember ErrorCode = "DUPLICATE_MEMBER"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	// CodeCapacityExceeded reports a full registry or a full set.
	CodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	// CodeCorruptPersistence reports a malformed snapshot.
	CodeCorruptPersistence ErrorCode = "CORRUPT_PERSISTENCE"
	// CodeBackendCommand reports a failed ipset invocation.
	CodeBackendCommand  ErrorCode = "BACKEND_COMMAND"
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// CodeInUse reports a delete of a set that still has references.
	CodeInUse  ErrorCode = "IN_USE"
	CodeClosed ErrorCode = "CLOSED"
)

var (
	ErrConfig             = New(CodeConfig, "configuration error")
	ErrDuplicateName      = New(CodeDuplicateName, "duplicate set name")
	ErrDuplicateMember    = New(CodeDuplicateMember, "duplicate member")
	ErrNotFound           = New(CodeNotFound, "not found")
	ErrCapacityExceeded   = New(CodeCapacityExceeded, "capacity exceeded")
	ErrCorruptPersistence = New(CodeCorruptPersistence, "corrupt persistence")
	ErrBackendCommand     = New(CodeBackendCommand, "backend command failed")
	ErrInvalidArgument    = New(CodeInvalidArgument, "invalid argument")
	ErrInUse              = New(CodeInUse, "in use")
	ErrClosed             = New(CodeClosed, "registry closed")
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

func Has(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
