package archive

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/google/uuid"
)

// Request status constants
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCanceled  = "CANCELED"
)

var (
	// ErrRecordNotFound is returned when a request cannot be found in the archive
	ErrRecordNotFound = errors.New("request not found")

	// ErrRecordAlreadyClaimed is returned when claiming a request that is not PENDING
	ErrRecordAlreadyClaimed = errors.New("request already claimed or not in PENDING status")
)

// Record is one archived generation request and its outcome
type Record struct {
	RequestID    string       `db:"request_id"`
	SessionID    string       `db:"session_id"`
	UserID       string       `db:"user_id"`
	Kind         string       `db:"kind"`
	Payload      string       `db:"payload"` // JSON object
	Status       string       `db:"status"`
	JobID        string       `db:"job_id"`
	Result       string       `db:"result"` // JSON, empty until completed
	ErrorKind    string       `db:"error_kind"`
	ErrorMessage string       `db:"error_message"`
	WorkerID     string       `db:"worker_id"`
	RetryCount   int          `db:"retry_count"`
	MaxRetries   int          `db:"max_retries"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
	CompletedAt  sql.NullTime `db:"completed_at"`
}

// NewRecord creates a PENDING record with a fresh request id
func NewRecord(kind, sessionID, userID string, payload map[string]any) (*Record, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return &Record{
		RequestID: uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Kind:      kind,
		Payload:   string(raw),
		Status:    StatusPending,
	}, nil
}

// DecodePayload returns the stored payload object
func (r *Record) DecodePayload() (map[string]any, error) {
	payload := map[string]any{}
	if r.Payload == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(r.Payload), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return payload, nil
}

// Apply copies a polling outcome onto the record and moves it to its final status
func (r *Record) Apply(o n8n.Outcome, at time.Time) error {
	r.JobID = o.JobID
	r.ErrorKind = string(o.ErrorKind)
	r.ErrorMessage = o.Error
	r.Result = ""

	switch {
	case o.Success:
		r.Status = StatusCompleted
		raw, err := json.Marshal(o.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		r.Result = string(raw)
	case o.ErrorKind == n8n.ErrorKindCancelled:
		r.Status = StatusCanceled
	default:
		r.Status = StatusFailed
	}

	r.CompletedAt = sql.NullTime{Time: at, Valid: true}
	return nil
}

// Terminal reports whether the record reached a final status
func (r *Record) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}
