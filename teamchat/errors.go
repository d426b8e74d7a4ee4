package teamchat

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// Connection errors: transient, retried by the transport up to the
	// reconnect ceiling, then terminal until an explicit Connect.
	ErrorConnection
	ErrorHandshakeTimeout
	ErrorUnauthorized
	ErrorNotConnected
	ErrorDisconnected

	// ErrorStaleResponse marks a response discarded because it no longer
	// matches the active selection. Logged, never surfaced to the caller.
	ErrorStaleResponse

	// ErrorCommand marks a failed REST send or mutation. For reactions it
	// triggers a compensating rollback; for sends the message stays in the
	// store marked failed.
	ErrorCommand

	ErrorSerialization
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorConnection:
		return "connection_error"
	case ErrorHandshakeTimeout:
		return "handshake_timeout"
	case ErrorUnauthorized:
		return "unauthorized"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorStaleResponse:
		return "stale_response"
	case ErrorCommand:
		return "command_failed"
	case ErrorSerialization:
		return "serialization_error"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// ChatError is a structured error with code and context.
type ChatError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *ChatError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is comparison by code.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a ChatError with the given code and message.
func NewError(code ErrorCode, message string) *ChatError {
	return &ChatError{Code: code, Message: message}
}

// WrapError wraps an existing error with a ChatError.
func WrapError(code ErrorCode, message string, err error) *ChatError {
	return &ChatError{Code: code, Message: message, Wrapped: err}
}

// FromProtocolError converts a wire-level Error to a ChatError.
func FromProtocolError(e *Error) *ChatError {
	if e == nil {
		return nil
	}
	code := ErrorUnknown
	switch e.Code {
	case "unauthorized", "invalid_token":
		code = ErrorUnauthorized
	case "unsupported_version", "bad_request", "invalid_message":
		code = ErrorConnection
	}
	return &ChatError{Code: code, Message: e.Msg}
}

// IsConnectionError reports whether err is a connection-related error.
func IsConnectionError(err error) bool {
	var ce *ChatError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code {
	case ErrorConnection, ErrorHandshakeTimeout, ErrorUnauthorized, ErrorNotConnected, ErrorDisconnected:
		return true
	}
	return false
}

// IsCommandError reports whether err is a failed REST command.
func IsCommandError(err error) bool {
	var ce *ChatError
	return errors.As(err, &ce) && ce.Code == ErrorCommand
}
