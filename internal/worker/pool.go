package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/career-lab/internal/archive"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case j, ok := <-w.jobsChan:
			if !ok {
				return
			}

			w.logger.Info("Worker received request",
				slog.String("worker_name", workerName),
				slog.String("request_id", j.msg.RequestID),
				slog.Uint64("delivery_tag", j.delivery.DeliveryTag),
			)

			err := w.processJob(ctx, j)
			w.acknowledge(workerName, j, err)
		}
	}
}

// acknowledge ACKs a processed delivery or NACKs it with a requeue decision
func (w *Worker) acknowledge(workerName string, j *job, err error) {
	requestID := j.msg.RequestID

	if err == nil {
		if ackErr := j.delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("request_id", requestID),
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	requeue := shouldRequeue(err)
	w.logger.Warn("Request processing failed",
		slog.String("worker_name", workerName),
		slog.String("request_id", requestID),
		slog.Bool("requeue", requeue),
		slog.String("error", err.Error()),
	)

	if nackErr := j.delivery.Nack(false, requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("worker_name", workerName),
			slog.String("request_id", requestID),
			slog.String("error", nackErr.Error()),
		)
	}
}

// shouldRequeue determines if a request should be requeued based on the error type
func shouldRequeue(err error) bool {
	switch {
	case errors.Is(err, archive.ErrRecordAlreadyClaimed),
		errors.Is(err, archive.ErrRecordNotFound),
		errors.Is(err, ErrMaxRetriesExceeded),
		errors.Is(err, ErrInvalidPayload):
		return false
	}

	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
