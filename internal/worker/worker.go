package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cuongbtq/career-lab/internal/archive"
	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultJobTimeout        = 6 * time.Minute
	defaultHeartbeatInterval = 30 * time.Second
)

// Store is the archive the worker claims and finishes requests in.
// *archive.Store implements it.
type Store interface {
	Claim(ctx context.Context, requestID, workerID string) (*archive.Record, error)
	Finish(ctx context.Context, r *archive.Record) error
	Release(ctx context.Context, requestID, reason string) error
	Touch(ctx context.Context, requestID string) error
}

// Executor runs one generation. *generation.Service implements it.
type Executor interface {
	Execute(ctx context.Context, kind generation.Kind, payload map[string]any) n8n.Outcome
}

// Consumer delivers queued messages. *rabbitmq.Client implements it.
type Consumer interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Store             Store
	Executor          Executor
	Consumer          Consumer
	WorkerID          string
	QueueName         string
	Concurrency       int
	MaxJobs           int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
}

// job is one delivery waiting for a worker goroutine
type job struct {
	msg      generation.QueueMessage
	delivery amqp.Delivery
}

// Worker consumes queued generation requests and runs them against n8n
type Worker struct {
	logger            *slog.Logger
	store             Store
	executor          Executor
	consumer          Consumer
	workerID          string
	queueName         string
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	jobsChan          chan *job
	wg                sync.WaitGroup
	stopChan          chan struct{}
	stopOnce          sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = defaultWorkerID()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	buffer := cfg.MaxJobs
	if buffer < 0 {
		buffer = 0
	}

	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}

	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		logger:            logger,
		store:             cfg.Store,
		executor:          cfg.Executor,
		consumer:          cfg.Consumer,
		workerID:          workerID,
		queueName:         cfg.QueueName,
		concurrency:       concurrency,
		prefetchCount:     prefetch,
		jobTimeout:        jobTimeout,
		heartbeatInterval: heartbeat,
		jobsChan:          make(chan *job, buffer),
		stopChan:          make(chan struct{}),
	}
}

// defaultWorkerID names the worker after its host, unique per process
func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// ID returns the worker id used as consumer tag and claim owner
func (w *Worker) ID() string {
	return w.workerID
}

// Start consumes and processes requests until ctx is canceled or the
// delivery channel closes
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	if closed := w.startMessageDispatcher(ctx, deliveries); closed {
		return errors.New("rabbitmq delivery channel closed")
	}

	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker and waits for in-flight requests
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
