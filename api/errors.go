// Package api
// License: Apache-2.0
//
// Error taxonomy shared by the codec, the supervisor and the connector.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the bridge.
var (
	ErrTransportClosed   = errors.New("transport is closed")
	ErrNotConnected      = errors.New("not connected")
	ErrIncompleteRequest = errors.New("incomplete handshake request")
	ErrAlreadyRunning    = errors.New("already running")
)

// ErrorCode classifies a failure for routing into the disconnection handler.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	// ErrCodeTransport covers bind/accept/send/receive failures.
	ErrCodeTransport
	// ErrCodeHandshake covers missing or invalid Upgrade headers.
	ErrCodeHandshake
	// ErrCodeFrame covers truncated or malformed frames.
	ErrCodeFrame
	// ErrCodeProtocol covers malformed JSON or a missing type tag.
	ErrCodeProtocol
	// ErrCodeLivenessTimeout is raised when the peer stays silent past the liveness window.
	ErrCodeLivenessTimeout
	// ErrCodeMaxAttempts marks the terminal reconnect state.
	ErrCodeMaxAttempts
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeTransport:
		return "transport"
	case ErrCodeHandshake:
		return "handshake"
	case ErrCodeFrame:
		return "frame"
	case ErrCodeProtocol:
		return "protocol"
	case ErrCodeLivenessTimeout:
		return "liveness timeout"
	case ErrCodeMaxAttempts:
		return "max attempts"
	default:
		return "unknown"
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a structured error around cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeTransport
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
