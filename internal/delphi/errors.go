// Package delphi provides an HTTP client for the AskDelphi editing API
// with dual-mode authentication, a single refresh-and-retry policy on
// authorization failures, and per-status error classification.
package delphi

import (
	"errors"
	"fmt"
	"net/http"
)

// Fatal error classes. ErrConfig aborts before any network call; ErrAuth
// aborts the run. Use errors.Is to check.
var (
	ErrConfig      = errors.New("delphi: invalid configuration")
	ErrAuth        = errors.New("delphi: authentication failed")
	ErrNotLoggedIn = errors.New("delphi: not logged in")
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, delphi.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("delphi: bad request")
	ErrUnauthorized = errors.New("delphi: unauthorized")
	ErrForbidden    = errors.New("delphi: forbidden")
	ErrNotFound     = errors.New("delphi: not found")
	ErrConflict     = errors.New("delphi: conflict")
	ErrLocked       = errors.New("delphi: resource locked")
	ErrServerError  = errors.New("delphi: server error")
)

// APIError wraps a sentinel error with the HTTP status code and response
// body of a failed API call.
type APIError struct {
	StatusCode int
	Body       string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("delphi: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
