// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package anthropic

import (
	"errors"
	"net/http"
)

// Error kinds. Backend errors are translated once, at the invoker, into
// this taxonomy; they are never wrapped into nested error bodies.
const (
	ErrAuthentication     = "authentication_error"
	ErrPermission         = "permission_error"
	ErrBudgetExceeded     = "budget_exceeded_error"
	ErrInvalidRequest     = "invalid_request_error"
	ErrRateLimit          = "rate_limit_error"
	ErrNotFound           = "not_found_error"
	ErrAPI                = "api_error"
	ErrServiceUnavailable = "service_unavailable"
	ErrPTCSessionNotFound = "ptc_session_not_found"
)

// APIError is the single error shape surfaced to clients, rendered as
// {"type":"error","error":{"type":<kind>,"message":<message>}}.
type APIError struct {
	Kind    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Kind + ": " + e.Message
}

// Status returns the HTTP status for the error kind.
func (e *APIError) Status() int {
	switch e.Kind {
	case ErrAuthentication:
		return http.StatusUnauthorized
	case ErrPermission:
		return http.StatusForbidden
	case ErrBudgetExceeded:
		return http.StatusPaymentRequired
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrRateLimit:
		return http.StatusTooManyRequests
	case ErrNotFound:
		return http.StatusNotFound
	case ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrPTCSessionNotFound:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON envelope for error responses and SSE error events.
type ErrorBody struct {
	Type  string   `json:"type"`
	Error APIError `json:"error"`
}

// Body wraps the error in its wire envelope.
func (e *APIError) Body() ErrorBody {
	return ErrorBody{Type: "error", Error: *e}
}

// NewError builds an APIError of an arbitrary kind.
func NewError(kind, message string) *APIError {
	return &APIError{Kind: kind, Message: message}
}

// NewInvalidRequestError builds an invalid_request_error.
func NewInvalidRequestError(message string) *APIError {
	return &APIError{Kind: ErrInvalidRequest, Message: message}
}

// AsAPIError extracts an APIError from an error chain, or wraps the error
// as an api_error when no taxonomy kind applies.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{Kind: ErrAPI, Message: err.Error()}
}
