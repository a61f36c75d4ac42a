package n8n

import "strings"

// Status is the remote job status reported by the status webhook
type Status string

// Remote job statuses
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus normalizes a raw status value. Unknown values are returned
// as-is and are treated as non-terminal.
func ParseStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

// Terminal reports whether the status ends the polling loop
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrorKind classifies a failed Outcome
type ErrorKind string

const (
	ErrorKindFailed    ErrorKind = "failed"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindCancelled ErrorKind = "cancelled"
	ErrorKindNetwork   ErrorKind = "network"
)

// Outcome is the value every submit/poll sequence resolves to.
// Failures are reported here and never as Go errors or panics.
type Outcome struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	Status    Status    `json:"status,omitempty"`
}

// Succeeded builds a successful outcome
func Succeeded(jobID string, data any) Outcome {
	return Outcome{
		Success: true,
		Data:    data,
		JobID:   jobID,
		Status:  StatusCompleted,
	}
}

// Failed builds a failed outcome
func Failed(jobID string, kind ErrorKind, status Status, message string) Outcome {
	return Outcome{
		Success:   false,
		ErrorKind: kind,
		Error:     message,
		JobID:     jobID,
		Status:    status,
	}
}

// Cancelled reports whether the outcome was caused by caller cancellation
func (o Outcome) Cancelled() bool {
	return o.ErrorKind == ErrorKindCancelled
}

// TimedOut reports whether the polling budget ran out
func (o Outcome) TimedOut() bool {
	return o.ErrorKind == ErrorKindTimeout
}
