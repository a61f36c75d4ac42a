package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/career-lab/internal/generation"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets up RabbitMQ consumer with QoS and returns delivery channel
func (w *Worker) setupConsumer(ctx context.Context) (<-chan amqp.Delivery, error) {
	if w.consumer == nil {
		return nil, fmt.Errorf("rabbitmq consumer is nil")
	}

	// prefetch bounds the unacknowledged deliveries held by this worker
	if err := w.consumer.Qos(w.prefetchCount); err != nil {
		return nil, err
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.consumer.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// startMessageDispatcher hands deliveries to the worker pool. It reports
// whether it stopped because the delivery channel closed.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return false

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - worker stopping")
			return false

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return true
			}

			msg, err := generation.ParseQueueMessage(delivery.Body)
			if err != nil {
				w.logger.Error("Invalid queue message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go to the dead letter exchange, if any
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			select {
			case w.jobsChan <- &job{msg: msg, delivery: delivery}:
				w.logger.Debug("Request dispatched to worker pool",
					slog.String("request_id", msg.RequestID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching request")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return false
			}
		}
	}
}
