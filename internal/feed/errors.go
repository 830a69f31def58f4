package feed

import (
	"errors"
	"fmt"
)

// Code is the machine-readable reason attached to a feed failure.
type Code string

const (
	CodeNotFound  Code = "not_found"
	CodeNoEvents  Code = "no_events"
	CodeMalformed Code = "malformed_upstream_data"
	CodeUpstream  Code = "upstream_error"
)

// Error is a feed-generation failure with a code the HTTP layer maps to a
// status.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotFound  = &Error{Code: CodeNotFound, Message: "person not found"}
	ErrMalformed = &Error{Code: CodeMalformed, Message: "schedule data is not valid JSON"}
	ErrUpstream  = &Error{Code: CodeUpstream, Message: "schedule source unavailable"}
)

// CodeOf extracts the Code of err, or "" when err is not a feed error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}
