package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind string

const (
	KindHTTP             ErrorKind = "HTTP_ERROR"
	KindAgent            ErrorKind = "AGENT_ERROR"
	KindTimeout          ErrorKind = "TIMEOUT"
	KindConnectionClosed ErrorKind = "CONNECTION_CLOSED"
)

// Error is the normalized error returned by both transports.
// Raw transport errors are wrapped in Err and never returned bare.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int    // HTTP_ERROR only; 0 when the request never got a response
	Body       []byte // HTTP_ERROR only
	RequestID  string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindHTTP && e.StatusCode > 0:
		return fmt.Sprintf("%s %d: %s", e.Kind, e.StatusCode, e.Message)
	case e.RequestID != "":
		return fmt.Sprintf("%s (request %s): %s", e.Kind, e.RequestID, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// NewTimeoutError builds a TIMEOUT error for a request id.
func NewTimeoutError(requestID string) *Error {
	return &Error{
		Kind:      KindTimeout,
		Message:   "no response within deadline",
		RequestID: requestID,
	}
}

// NewConnectionClosedError builds a CONNECTION_CLOSED error.
func NewConnectionClosedError(requestID string, cause error) *Error {
	msg := "connection closed"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Kind:      KindConnectionClosed,
		Message:   msg,
		RequestID: requestID,
		Err:       cause,
	}
}

// NewAgentError builds an AGENT_ERROR from a remote failure message.
func NewAgentError(requestID, remote string) *Error {
	if remote == "" {
		remote = "agent reported failure"
	}
	return &Error{
		Kind:      KindAgent,
		Message:   remote,
		RequestID: requestID,
	}
}
