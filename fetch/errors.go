package fetch

import (
	"errors"
	"fmt"
)

// TransientError represents a connection-level failure that may succeed on
// retry: refused connections, resets, timeouts.
type TransientError struct {
	URL      string
	Attempts int
	err      error
}

func (e *TransientError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("fetch %s: %d attempts: %v", e.URL, e.Attempts, e.err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.err)
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// StatusError reports a definitive non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// IsTransient returns true if the error is a retryable network failure.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsStatus returns true if the error is a definitive HTTP status failure.
func IsStatus(err error) bool {
	var status *StatusError
	return errors.As(err, &status)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var status *StatusError
	if errors.As(err, &status) {
		return status.StatusCode
	}
	return 0
}
