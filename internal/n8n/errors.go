package n8n

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCancelled is returned when the caller's context ends before a request completes
	ErrCancelled = errors.New("request cancelled")

	// ErrMissingJobID is returned when a submission response carries no usable job id
	ErrMissingJobID = errors.New("no job id in submission response")

	// ErrEmptyEndpoint is returned when Submit is called without a webhook path
	ErrEmptyEndpoint = errors.New("endpoint is required")
)

// SubmissionError is returned when the submission webhook answers with a non-2xx status
type SubmissionError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("submission to %q failed: http %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("submission to %q failed: http %d: %s", e.Endpoint, e.StatusCode, body)
}

// NetworkError wraps a transport-level failure
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// outcomeForSubmitError maps a Submit error onto the Outcome taxonomy
func outcomeForSubmitError(err error) Outcome {
	var netErr *NetworkError
	switch {
	case errors.Is(err, ErrCancelled):
		return Failed("", ErrorKindCancelled, "", err.Error())
	case errors.As(err, &netErr):
		return Failed("", ErrorKindNetwork, "", err.Error())
	default:
		return Failed("", ErrorKindFailed, "", err.Error())
	}
}
