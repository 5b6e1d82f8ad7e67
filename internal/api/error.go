// Package api holds error types shared by the remote transcription and
// chat-completion clients.
package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies remote call failures.
type ErrorKind string

const (
	KindNetwork         ErrorKind = "network"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindEmptyResponse   ErrorKind = "empty_response"
	KindEncoding        ErrorKind = "encoding"
)

// Error is a classified remote call failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error without an underlying cause.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a classified error around an underlying cause.
func Wrap(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}
