// Package tool provides the HTTP transport shared by REST-backed
// collaborators such as web search providers and hosted vector indexes.
//
// HTTPTool wraps an http.Client with an optional client-side rate limit,
// default headers and status checking, and decodes JSON bodies into typed
// values. Non-2xx responses are returned as *StatusError so callers can tell
// throttling apart from permanent failures.
package tool

import (
	"errors"
	"fmt"
	"net/http"
)

// MaxResponseBytes caps how much of a response body is read.
const MaxResponseBytes = 8 << 20

// ErrEmptyURL is returned when a request is made without a target.
var ErrEmptyURL = errors.New("url is required")

// StatusError reports a response with a non-2xx status code.
type StatusError struct {
	// StatusCode is the HTTP status returned by the server.
	StatusCode int

	// Body is the start of the response body, for diagnostics.
	Body string
}

// Error implements error. The message includes the numeric status so that
// transient-error classifiers can match on it.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("http status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Temporary reports whether retrying the request later may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
