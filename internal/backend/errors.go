// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
)

// ErrorType says what kind of failure a ClientError is.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeUnavailable
	ErrTypeTimeout
	ErrTypeCanceled
	ErrTypeNotFound
	ErrTypeStatus
	ErrTypeInvalidResponse
	ErrTypeInvalidRequest
)

var errorTypeNames = [...]string{
	ErrTypeUnknown:         "unknown",
	ErrTypeUnavailable:     "unavailable",
	ErrTypeTimeout:         "timeout",
	ErrTypeCanceled:        "canceled",
	ErrTypeNotFound:        "not_found",
	ErrTypeStatus:          "status",
	ErrTypeInvalidResponse: "invalid_response",
	ErrTypeInvalidRequest:  "invalid_request",
}

func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(errorTypeNames) {
		return "unknown"
	}
	return errorTypeNames[t]
}

// ClientError is every error the client returns.
type ClientError struct {
	Type       ErrorType
	Message    string
	StatusCode int // 0 when no response arrived
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *ClientError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrNotFound) match any error of the same type.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && (t == e || (t.Message == "" && t.Type == e.Type))
}

// Targets for errors.Is.
var (
	ErrUnavailable = &ClientError{Type: ErrTypeUnavailable}
	ErrTimeout     = &ClientError{Type: ErrTypeTimeout}
	ErrNotFound    = &ClientError{Type: ErrTypeNotFound}
)

func typeOf(err error) ErrorType {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrTypeUnknown
}

// IsNotFound reports a chat the backend does not know.
func IsNotFound(err error) bool { return typeOf(err) == ErrTypeNotFound }

// IsUnavailable reports a backend that could not be reached or answered 502
// or 503.
func IsUnavailable(err error) bool { return typeOf(err) == ErrTypeUnavailable }

func IsTimeout(err error) bool { return typeOf(err) == ErrTypeTimeout }

// IsCanceled also matches a bare context.Canceled.
func IsCanceled(err error) bool {
	return typeOf(err) == ErrTypeCanceled || errors.Is(err, context.Canceled)
}
