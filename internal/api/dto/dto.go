package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/career-lab/internal/archive"
	"github.com/cuongbtq/career-lab/internal/n8n"
)

type GenerateRequest struct {
	SessionID string         `json:"session_id" binding:"required"`
	UserID    string         `json:"user_id"`
	Payload   map[string]any `json:"payload"`
}

// GenerateResponse is the polling outcome plus the archive id, when archived
type GenerateResponse struct {
	n8n.Outcome
	RequestID string `json:"request_id,omitempty"`
}

type CancelSessionResponse struct {
	SessionID           string   `json:"session_id"`
	CancelledRequestIDs []string `json:"cancelled_request_ids"`
}

type CreateRequestRequest struct {
	Kind      string         `json:"kind" binding:"required"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id" binding:"required"`
	Payload   map[string]any `json:"payload"`
}

type CreateRequestResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type ListRequestsRequest struct {
	UserID    string `form:"user_id"`
	SessionID string `form:"session_id"`
	Kind      string `form:"kind"`
	Status    string `form:"status"`
	PageSize  int    `form:"page_size"`
	Cursor    string `form:"cursor"`
}

type ListRequestsResponse struct {
	Requests   []RequestDTO `json:"requests"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type RequestDTO struct {
	RequestID    string          `json:"request_id"`
	SessionID    string          `json:"session_id,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	JobID        string          `json:"job_id,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	CompletedAt  string          `json:"completed_at,omitempty"`
}

// FromRecord converts an archive record for the wire
func FromRecord(r *archive.Record) RequestDTO {
	out := RequestDTO{
		RequestID:    r.RequestID,
		SessionID:    r.SessionID,
		UserID:       r.UserID,
		Kind:         r.Kind,
		Payload:      rawJSON(r.Payload, "{}"),
		Status:       r.Status,
		JobID:        r.JobID,
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.ErrorMessage,
		RetryCount:   r.RetryCount,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    r.UpdatedAt.Format(time.RFC3339),
	}
	if r.Result != "" {
		out.Result = rawJSON(r.Result, "null")
	}
	if r.CompletedAt.Valid {
		out.CompletedAt = r.CompletedAt.Time.Format(time.RFC3339)
	}
	return out
}

// rawJSON passes stored JSON through, falling back when it is not valid
func rawJSON(s, fallback string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(s)
}
