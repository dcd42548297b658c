// File: internal/discord/errors.go
package discord

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError is returned for any REST response outside the 2xx range.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	// RetryAfter is the server's wait hint for 429 responses, or the client default.
	RetryAfter time.Duration
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode == http.StatusTooManyRequests {
		return fmt.Sprintf("discord %s %s: rate limited, retry after %s", e.Method, e.Path, e.RetryAfter)
	}
	return fmt.Sprintf("discord %s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// RateLimited reports a 429 response.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Stale reports a response that means the message or component no longer matches what
// the server holds: a malformed request (400) or an unknown message (404).
func (e *APIError) Stale() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusNotFound
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
