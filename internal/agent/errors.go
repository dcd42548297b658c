// internal/agent/errors.go
package agent

import "fmt"

// ErrorCode classifies a ClickError.
type ErrorCode string

const (
	ErrCodeNoSession        ErrorCode = "NO_SESSION"
	ErrCodeStaleMessage     ErrorCode = "STALE_MESSAGE"
	ErrCodeNoEquivalent     ErrorCode = "NO_EQUIVALENT_BUTTON"
	ErrCodeAttemptsExceeded ErrorCode = "ATTEMPTS_EXCEEDED"
	ErrCodeCancelled        ErrorCode = "CANCELLED"
)

// ClickError reports why a click could not be delivered.
type ClickError struct {
	Code     ErrorCode
	CustomID string
	Attempts int
	Err      error
}

func (e *ClickError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("click %s failed after %d attempt(s): %s", e.CustomID, e.Attempts, e.Code)
	}
	return fmt.Sprintf("click %s failed after %d attempt(s): %s: %v", e.CustomID, e.Attempts, e.Code, e.Err)
}

func (e *ClickError) Unwrap() error { return e.Err }
