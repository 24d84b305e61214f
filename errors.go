package gate

import (
	"errors"
	"fmt"
)

// ErrorCode classifies why an activation did not render.
type ErrorCode string

const (
	CodeAuthAbsent     ErrorCode = "auth_absent"
	CodeMalformedToken ErrorCode = "malformed_token"
	CodeRoleDenied     ErrorCode = "role_denied"
	CodeProfileMissing ErrorCode = "profile_missing"
	CodeProfileLookup  ErrorCode = "profile_lookup_failed"
	CodeUnknownRole    ErrorCode = "unknown_role"
	CodeCancelled      ErrorCode = "cancelled"
)

var errorMessages = map[ErrorCode]string{
	CodeAuthAbsent:     "no session token",
	CodeMalformedToken: "token claims could not be decoded",
	CodeRoleDenied:     "role not permitted for route",
	CodeProfileMissing: "no profile for user",
	CodeProfileLookup:  "profile lookup failed",
	CodeUnknownRole:    "no profile endpoint for role",
	CodeCancelled:      "activation cancelled",
}

// Error carries a stable code plus the underlying cause.
type Error struct {
	Code      ErrorCode
	Message   string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return "gate: " + base
	}
	return fmt.Sprintf("gate: %s: %v", base, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a non-transient *Error for code.
func NewError(code ErrorCode, err error) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// LookupError wraps a profile lookup failure. Transient failures (network,
// timeouts, 5xx, open breaker) may surface a retry state instead of a redirect.
func LookupError(err error, transient bool) *Error {
	e := NewError(CodeProfileLookup, err)
	e.Transient = transient
	return e
}

// ErrUnknownRole is returned by lookups that have no endpoint for a role.
var ErrUnknownRole = NewError(CodeUnknownRole, nil)

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient reports whether err is a transient lookup failure.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Transient
	}
	return false
}
