package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const recordColumns = `
	request_id, session_id, user_id, kind, payload, status, job_id,
	result, error_kind, error_message, worker_id, retry_count, max_retries,
	created_at, updated_at, completed_at`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS generation_requests (
		request_id    VARCHAR(64)  PRIMARY KEY,
		session_id    VARCHAR(128) NOT NULL DEFAULT '',
		user_id       VARCHAR(128) NOT NULL DEFAULT '',
		kind          VARCHAR(32)  NOT NULL,
		payload       TEXT         NOT NULL DEFAULT '{}',
		status        VARCHAR(16)  NOT NULL,
		job_id        VARCHAR(128) NOT NULL DEFAULT '',
		result        TEXT         NOT NULL DEFAULT '',
		error_kind    VARCHAR(16)  NOT NULL DEFAULT '',
		error_message TEXT         NOT NULL DEFAULT '',
		worker_id     VARCHAR(128) NOT NULL DEFAULT '',
		retry_count   INTEGER      NOT NULL DEFAULT 0,
		max_retries   INTEGER      NOT NULL DEFAULT 0,
		created_at    TIMESTAMP    NOT NULL,
		updated_at    TIMESTAMP    NOT NULL,
		completed_at  TIMESTAMP    NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_generation_requests_created
		ON generation_requests (created_at DESC, request_id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_generation_requests_session
		ON generation_requests (session_id, kind)`,
}

// Store persists generation requests. Queries use ? placeholders and are
// rebound for the driver, so the same store runs on Postgres and SQLite.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// timestamp returns the current time at the precision both drivers keep
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// EnsureSchema creates the archive table and its indexes when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply archive schema: %w", err)
		}
	}
	return nil
}

// Create inserts a new record, stamping created_at and updated_at
func (s *Store) Create(ctx context.Context, r *Record) error {
	now := s.timestamp()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	query := s.db.Rebind(`
		INSERT INTO generation_requests (` + recordColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(
		ctx,
		query,
		r.RequestID,
		r.SessionID,
		r.UserID,
		r.Kind,
		r.Payload,
		r.Status,
		r.JobID,
		r.Result,
		r.ErrorKind,
		r.ErrorMessage,
		r.WorkerID,
		r.RetryCount,
		r.MaxRetries,
		r.CreatedAt,
		r.UpdatedAt,
		r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return nil
}

// Get retrieves a record by its request id
func (s *Store) Get(ctx context.Context, requestID string) (*Record, error) {
	query := s.db.Rebind(`SELECT ` + recordColumns + ` FROM generation_requests WHERE request_id = ?`)

	var r Record
	if err := s.db.GetContext(ctx, &r, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	normalizeTimes(&r)

	return &r, nil
}

// Filter narrows List results
type Filter struct {
	UserID    string
	SessionID string
	Kind      string
	Status    string
	PageSize  int
	Cursor    *Cursor
}

// List returns up to PageSize+1 records newest first, so callers can tell
// whether another page exists
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	var (
		conds []string
		args  []any
	)

	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Cursor != nil {
		conds = append(conds, "(created_at < ? OR (created_at = ? AND request_id < ?))")
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.RequestID)
	}

	query := `SELECT ` + recordColumns + ` FROM generation_requests`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	// Order by created_at DESC, request_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, request_id DESC LIMIT ?"
	args = append(args, filter.PageSize+1)

	var records []Record
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	for i := range records {
		normalizeTimes(&records[i])
	}

	return records, nil
}

// Claim moves a PENDING record to RUNNING for workerID
func (s *Store) Claim(ctx context.Context, requestID, workerID string) (*Record, error) {
	now := s.timestamp()
	query := s.db.Rebind(`
		UPDATE generation_requests
		SET status = ?,
		    worker_id = ?,
		    updated_at = ?
		WHERE request_id = ?
		  AND status = ?
	`)

	res, err := s.db.ExecContext(ctx, query, StatusRunning, workerID, now, requestID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim request: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		if _, err := s.Get(ctx, requestID); err != nil {
			return nil, err
		}
		s.logger.Warn("Failed to claim request - already claimed",
			slog.String("request_id", requestID),
			slog.String("worker_id", workerID),
		)
		return nil, ErrRecordAlreadyClaimed
	}

	r, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Request claimed successfully",
		slog.String("request_id", requestID),
		slog.String("worker_id", workerID),
		slog.String("kind", r.Kind),
	)

	return r, nil
}

// Finish stores the final state of r, as set by Record.Apply
func (s *Store) Finish(ctx context.Context, r *Record) error {
	r.UpdatedAt = s.timestamp()
	if r.CompletedAt.Valid {
		r.CompletedAt.Time = r.CompletedAt.Time.UTC().Truncate(time.Microsecond)
	}

	query := s.db.Rebind(`
		UPDATE generation_requests
		SET status = ?,
		    job_id = ?,
		    result = ?,
		    error_kind = ?,
		    error_message = ?,
		    updated_at = ?,
		    completed_at = ?
		WHERE request_id = ?
	`)

	res, err := s.db.ExecContext(ctx, query,
		r.Status, r.JobID, r.Result, r.ErrorKind, r.ErrorMessage, r.UpdatedAt, r.CompletedAt, r.RequestID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}

	s.logger.Info("Request status updated",
		slog.String("request_id", r.RequestID),
		slog.String("status", r.Status),
	)

	return nil
}

// Release hands a RUNNING record back to the queue and counts the retry
func (s *Store) Release(ctx context.Context, requestID, reason string) error {
	query := s.db.Rebind(`
		UPDATE generation_requests
		SET status = ?,
		    worker_id = '',
		    retry_count = retry_count + 1,
		    error_message = ?,
		    updated_at = ?
		WHERE request_id = ? AND status = ?
	`)

	res, err := s.db.ExecContext(ctx, query, StatusPending, reason, s.timestamp(), requestID, StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to release request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Warn("Request release - no rows affected (request may not be running)",
			slog.String("request_id", requestID),
		)
	}

	return nil
}

// Touch refreshes updated_at of a RUNNING record
func (s *Store) Touch(ctx context.Context, requestID string) error {
	query := s.db.Rebind(`
		UPDATE generation_requests
		SET updated_at = ?
		WHERE request_id = ? AND status = ?
	`)

	res, err := s.db.ExecContext(ctx, query, s.timestamp(), requestID, StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update request heartbeat: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		s.logger.Warn("Request heartbeat update - no rows affected (request may not be running)",
			slog.String("request_id", requestID),
		)
	}

	return nil
}

// normalizeTimes puts scanned timestamps in UTC so cursors round-trip on every driver
func normalizeTimes(r *Record) {
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if r.CompletedAt.Valid {
		r.CompletedAt.Time = r.CompletedAt.Time.UTC()
	}
}
