package api

import (
	"errors"
	"fmt"
)

// ErrorCode classifies control-surface failures.
type ErrorCode string

const (
	CodeInvalidIdentity ErrorCode = "InvalidIdentity"
	CodeUnknownUser     ErrorCode = "UnknownUser"
	CodeUnauthorized    ErrorCode = "Unauthorized"
	CodeNotConfigured   ErrorCode = "NotConfigured"
	CodeMissingVerifier ErrorCode = "MissingVerifier"
	CodeExchangeFailed  ErrorCode = "ExchangeFailed"
	CodeBindFailed      ErrorCode = "BindFailed"
	CodeTimedOut        ErrorCode = "TimedOut"
)

// Sentinel errors for use with errors.Is. A typed *Error matches the
// sentinel carrying the same code.
var (
	ErrInvalidIdentity = &Error{Code: CodeInvalidIdentity}
	ErrUnknownUser     = &Error{Code: CodeUnknownUser}
	ErrUnauthorized    = &Error{Code: CodeUnauthorized}
	ErrNotConfigured   = &Error{Code: CodeNotConfigured}
	ErrMissingVerifier = &Error{Code: CodeMissingVerifier}
	ErrExchangeFailed  = &Error{Code: CodeExchangeFailed}
	ErrBindFailed      = &Error{Code: CodeBindFailed}
	ErrTimedOut        = &Error{Code: CodeTimedOut}
)

// Error is the typed error returned by tandem's core components.
//
// Op names the operation that failed (e.g. "resolve_context"), Subject the
// user id or resource it concerned, and Err the underlying cause if any.
type Error struct {
	Code    ErrorCode
	Op      string
	Subject string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Subject != "" {
		msg += fmt.Sprintf(" (%s)", e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code. This lets
// errors.Is(err, api.ErrUnknownUser) match any UnknownUser error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates an *Error.
func NewError(code ErrorCode, op, subject string, cause error) *Error {
	return &Error{Code: code, Op: op, Subject: subject, Err: cause}
}

// InvalidIdentity returns an InvalidIdentity error for op and id.
func InvalidIdentity(op, id, reason string) *Error {
	return &Error{Code: CodeInvalidIdentity, Op: op, Subject: id, Err: errors.New(reason)}
}

// UnknownUser returns an UnknownUser error for op and id.
func UnknownUser(op, id string) *Error {
	return &Error{Code: CodeUnknownUser, Op: op, Subject: id}
}

// Unauthorized returns an Unauthorized error for op and target id.
func Unauthorized(op, target string) *Error {
	return &Error{Code: CodeUnauthorized, Op: op, Subject: target}
}

// CodeOf extracts the ErrorCode from err, or "" if err is not (or does not
// wrap) an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is or wraps an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
