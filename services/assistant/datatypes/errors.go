// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the assistant service.
//
// This file contains the chat error taxonomy. Handlers classify every
// failure into one of these codes; raw provider errors never reach the
// client.
package datatypes

import (
	"fmt"
	"net/http"
)

// =============================================================================
// Error Codes
// =============================================================================

// ChatErrorCode classifies a request failure.
type ChatErrorCode string

const (
	// ErrCodeBadRequest covers malformed bodies, invalid ids, and one-of
	// violations.
	ErrCodeBadRequest ChatErrorCode = "bad_request"
	// ErrCodeUnauthorized means no authenticated session was presented.
	ErrCodeUnauthorized ChatErrorCode = "unauthorized"
	// ErrCodeForbidden means the session exists but does not own the
	// resource, or a guest exceeded the rate allowance.
	ErrCodeForbidden ChatErrorCode = "forbidden"
	// ErrCodeNotFound means the conversation does not exist.
	ErrCodeNotFound ChatErrorCode = "not_found"
	// ErrCodeUpstreamUnavailable means the model provider or search provider
	// failed in a way the service could not recover from.
	ErrCodeUpstreamUnavailable ChatErrorCode = "upstream_unavailable"
	// ErrCodeServiceError is the catch-all for internal faults.
	ErrCodeServiceError ChatErrorCode = "service_error"
)

// =============================================================================
// Chat Error
// =============================================================================

// ChatError pairs a taxonomy code with a client-safe message.
//
// The Message field is what the client sees, whether as a JSON error body
// before streaming starts or inside an "error" stream event after. Wrapped
// causes stay server-side in logs.
type ChatError struct {
	Code    ChatErrorCode `json:"code"`
	Message string        `json:"message"`
	cause   error
}

// NewChatError builds a ChatError with a client-safe message.
func NewChatError(code ChatErrorCode, message string) *ChatError {
	return &ChatError{Code: code, Message: message}
}

// WrapChatError attaches a server-side cause for logging. The cause is not
// serialized.
func WrapChatError(code ChatErrorCode, message string, cause error) *ChatError {
	return &ChatError{Code: code, Message: message, cause: cause}
}

func (e *ChatError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is/As.
func (e *ChatError) Unwrap() error {
	return e.cause
}

// HTTPStatus maps the taxonomy code to a response status.
func (e *ChatError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
