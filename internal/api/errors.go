// Package api provides the HTTP client for the Cloud Drive REST service:
// authentication, file listing, transfers, and content read/write.
//
// Every non-success response is surfaced as a *TransportError carrying the
// status code and a class sentinel. The client never retries.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Class sentinels for failure classification.
// Use errors.Is(err, api.ErrAuth) to check.
var (
	ErrAuth       = errors.New("api: authentication failed")
	ErrValidation = errors.New("api: request rejected")
	ErrServer     = errors.New("api: server error")
	ErrNetwork    = errors.New("api: network error")
)

// TransportError wraps a class sentinel with the HTTP status code and the
// server's error message. StatusCode is 0 for network failures.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("api: network: %s", e.Message)
	}

	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is an authentication failure (401/403).
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// classifyStatus maps a non-2xx HTTP status code to a class sentinel.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuth
	case code >= http.StatusInternalServerError:
		return ErrServer
	default:
		return ErrValidation
	}
}

// newStatusError builds a TransportError from a failed response body.
func newStatusError(code int, body []byte) *TransportError {
	return &TransportError{
		StatusCode: code,
		Message:    errorMessage(body),
		Err:        classifyStatus(code),
	}
}

// newNetworkError builds a TransportError for a request that never got a response.
func newNetworkError(err error) *TransportError {
	return &TransportError{
		Message: err.Error(),
		Err:     ErrNetwork,
	}
}

// errorMessage extracts the "detail" field of a JSON error body. Falls back
// to the trimmed raw body when the body is not JSON or has no detail.
func errorMessage(body []byte) string {
	var parsed struct {
		Detail json.RawMessage `json:"detail"`
	}

	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Detail) > 0 {
		var s string
		if json.Unmarshal(parsed.Detail, &s) == nil {
			return s
		}

		// Validation errors carry a structured detail (list of objects).
		return string(parsed.Detail)
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "(empty response body)"
	}

	return msg
}
