package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/career-lab/internal/archive"
	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/cuongbtq/career-lab/internal/n8n"
)

// processJob runs one queued request: claim, execute with timeout and
// heartbeat, then store the outcome. The returned error drives the NACK.
func (w *Worker) processJob(ctx context.Context, j *job) error {
	requestID := j.msg.RequestID

	// Step 1: Claim request (PENDING → RUNNING)
	rec, err := w.store.Claim(ctx, requestID, w.workerID)
	if err != nil {
		if errors.Is(err, archive.ErrRecordAlreadyClaimed) || errors.Is(err, archive.ErrRecordNotFound) {
			w.logger.Warn("Request not claimable, skipping",
				slog.String("request_id", requestID),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("failed to claim request: %w", err)
		}
		return NewRetryableError(fmt.Errorf("failed to claim request: %w", err))
	}

	// Step 2: Decode what was stored at submission
	kind, err := generation.ParseKind(rec.Kind)
	if err != nil {
		w.fail(ctx, rec, err.Error())
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	payload, err := rec.DecodePayload()
	if err != nil {
		w.fail(ctx, rec, err.Error())
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	// the workflows key cancellation on requestId
	if _, ok := payload["requestId"]; !ok {
		payload["requestId"] = rec.RequestID
	}

	// Step 3: Execute under the job timeout with a heartbeat
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, rec.RequestID, heartbeatDone)
	defer close(heartbeatDone)

	started := time.Now()
	outcome := w.executor.Execute(jobCtx, kind, payload)

	// Step 4: Classify the outcome
	switch {
	case outcome.Cancelled() && ctx.Err() != nil:
		// shutdown, not the user: hand the request back. Finished
		// outcomes are stored below even when shutdown has begun.
		w.release(rec, "worker shutting down")
		return NewRetryableError(fmt.Errorf("request interrupted: %w", ctx.Err()))

	case outcome.Cancelled() && errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		outcome = n8n.Failed(outcome.JobID, n8n.ErrorKindTimeout, outcome.Status,
			fmt.Sprintf("request exceeded job timeout of %s", w.jobTimeout))

	case outcome.ErrorKind == n8n.ErrorKindNetwork:
		if rec.RetryCount < rec.MaxRetries {
			w.logger.Info("Request will be retried",
				slog.String("request_id", rec.RequestID),
				slog.Int("retry_count", rec.RetryCount),
				slog.Int("max_retries", rec.MaxRetries),
			)
			w.release(rec, outcome.Error)
			return NewRetryableError(fmt.Errorf("generation failed: %s", outcome.Error))
		}

		w.logger.Warn("Request exceeded max retries",
			slog.String("request_id", rec.RequestID),
			slog.Int("retry_count", rec.RetryCount),
			slog.Int("max_retries", rec.MaxRetries),
		)
		w.finish(ctx, rec, outcome)
		return fmt.Errorf("%w: %s", ErrMaxRetriesExceeded, outcome.Error)
	}

	// Step 5: Store the final state
	w.finish(ctx, rec, outcome)

	w.logger.Info("Request processed",
		slog.String("request_id", rec.RequestID),
		slog.String("kind", rec.Kind),
		slog.String("status", rec.Status),
		slog.Duration("elapsed", time.Since(started)),
	)

	return nil
}

// finish applies outcome to rec and stores it, even during shutdown
func (w *Worker) finish(ctx context.Context, rec *archive.Record, outcome n8n.Outcome) {
	if err := rec.Apply(outcome, time.Now()); err != nil {
		w.logger.Error("Failed to apply outcome",
			slog.String("request_id", rec.RequestID),
			slog.String("error", err.Error()),
		)
		outcome = n8n.Failed(outcome.JobID, n8n.ErrorKindFailed, outcome.Status, "result could not be stored")
		_ = rec.Apply(outcome, time.Now())
	}

	if err := w.store.Finish(context.WithoutCancel(ctx), rec); err != nil {
		w.logger.Error("Failed to update request status",
			slog.String("request_id", rec.RequestID),
			slog.String("status", rec.Status),
			slog.String("error", err.Error()),
		)
	}
}

// fail marks rec FAILED without running it
func (w *Worker) fail(ctx context.Context, rec *archive.Record, reason string) {
	w.logger.Error("Request cannot be executed",
		slog.String("request_id", rec.RequestID),
		slog.String("error", reason),
	)
	w.finish(ctx, rec, n8n.Failed("", n8n.ErrorKindFailed, "", reason))
}

// release hands rec back to PENDING before a requeue
func (w *Worker) release(rec *archive.Record, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.store.Release(ctx, rec.RequestID, reason); err != nil {
		w.logger.Error("Failed to release request",
			slog.String("request_id", rec.RequestID),
			slog.String("error", err.Error()),
		)
	}
}

// sendJobHeartbeat periodically refreshes the request's updated_at
func (w *Worker) sendJobHeartbeat(ctx context.Context, requestID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := w.store.Touch(ctx, requestID); err != nil {
				w.logger.Warn("Failed to update request heartbeat",
					slog.String("request_id", requestID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
