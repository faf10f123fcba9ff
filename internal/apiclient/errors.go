package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestFailed matches a *RequestError returned after retries ran out.
	ErrRequestFailed = errors.New("request failed")

	// ErrCanceled is returned when the caller aborted the call. It is never
	// reported as ErrRequestFailed.
	ErrCanceled = errors.New("request canceled")
)

// RequestError wraps the last failure of a call whose retries ran out.
type RequestError struct {
	Method   string
	Endpoint string
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Method, e.Endpoint, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() []error {
	return []error{ErrRequestFailed, e.Err}
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "HTTP " + e.Status
	}
	return fmt.Sprintf("HTTP %s (body: %s)", e.Status, e.Body)
}

func canceled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
