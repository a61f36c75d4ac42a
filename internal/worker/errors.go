package worker

import "errors"

var (
	// ErrInvalidPayload is returned when a queued request cannot be executed as stored
	ErrInvalidPayload = errors.New("invalid request payload")

	// ErrMaxRetriesExceeded is returned when a request has used up its retries
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
