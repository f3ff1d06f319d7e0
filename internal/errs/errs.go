// Package errs defines the error taxonomy shared by every layer of the
// bridge. Each error carries a human-readable message and an HTTP-style
// status code so the MCP boundary can render a uniform "<status>: <message>"
// envelope without inspecting layer internals.
package errs

import (
	"errors"
	"fmt"
)

// Status codes used across the taxonomy.
const (
	StatusValidation     = 400
	StatusAuthentication = 401
	StatusPermission     = 403
	StatusNotFound       = 404
	StatusServer         = 500
	StatusConnection     = 503
)

// Error is the single concrete error type crossing the handler boundary.
type Error struct {
	Status  int
	Message string
	Err     error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap allows errors.Is and errors.As to reach the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports a 400 input-level failure (bad id, malformed domain,
// missing required field, unauthenticated session).
func Validation(format string, args ...interface{}) *Error {
	return &Error{Status: StatusValidation, Message: fmt.Sprintf(format, args...)}
}

// Authentication reports a 401 credential rejection by the ERP or its REST
// surface.
func Authentication(format string, args ...interface{}) *Error {
	return &Error{Status: StatusAuthentication, Message: fmt.Sprintf(format, args...)}
}

// Permission reports a 403 access-control denial.
func Permission(format string, args ...interface{}) *Error {
	return &Error{Status: StatusPermission, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a 404 missing record or model.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Status: StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// Connection reports a 503 transport or RPC fault that survived retries.
func Connection(format string, args ...interface{}) *Error {
	return &Error{Status: StatusConnection, Message: fmt.Sprintf(format, args...)}
}

// Server reports a 500 unclassified internal failure.
func Server(format string, args ...interface{}) *Error {
	return &Error{Status: StatusServer, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an existing taxonomy error without losing its
// status. A nil cause returns e unchanged.
func Wrap(e *Error, cause error) *Error {
	if cause == nil {
		return e
	}
	return &Error{Status: e.Status, Message: e.Message, Err: cause}
}

// StatusOf extracts the taxonomy status from err, defaulting to 500 for
// anything unclassified.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusServer
}

// MessageOf extracts the user-facing message from a taxonomy error, falling
// back to the plain Error() text for anything unclassified.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsKind reports whether err belongs to the taxonomy with the given status.
func IsKind(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}
