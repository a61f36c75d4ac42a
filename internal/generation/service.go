package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/career-lab/internal/archive"
	"github.com/cuongbtq/career-lab/internal/n8n"
)

// Runner submits a payload and waits for its outcome. *n8n.Client implements it.
type Runner interface {
	Run(ctx context.Context, endpoint string, payload map[string]any, opts n8n.PollOptions) n8n.Outcome
}

// Recorder stores finished requests. *archive.Store implements it.
type Recorder interface {
	Create(ctx context.Context, r *archive.Record) error
}

// Config holds per-kind endpoints and polling settings
type Config struct {
	Endpoints map[Kind]string
	Poll      n8n.PollOptions
}

// Request is one synchronous generation
type Request struct {
	Kind      Kind
	SessionID string
	UserID    string
	Payload   map[string]any
}

// Service runs one submit-and-await sequence per generation and shapes
// the result for callers
type Service struct {
	runner    Runner
	recorder  Recorder
	endpoints map[Kind]string
	poll      n8n.PollOptions
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes the service
type Option func(*Service)

// WithRecorder archives every synchronous generation
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService creates a new generation service
func NewService(runner Runner, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	endpoints := DefaultEndpoints()
	for k, v := range cfg.Endpoints {
		if v != "" {
			endpoints[k] = v
		}
	}

	s := &Service{
		runner:    runner,
		endpoints: endpoints,
		poll:      cfg.Poll,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Endpoint returns the webhook path used for kind
func (s *Service) Endpoint(kind Kind) string {
	return s.endpoints[kind]
}

// CareerSentence generates a career sentence; Data is the extracted string
func (s *Service) CareerSentence(ctx context.Context, payload map[string]any) n8n.Outcome {
	return s.Execute(ctx, KindCareerSentence, payload)
}

// Topics generates research-topic suggestions with feasibility removed
func (s *Service) Topics(ctx context.Context, payload map[string]any) n8n.Outcome {
	return s.Execute(ctx, KindTopics, payload)
}

// ResearchMethods generates research-method suggestions with feasibility removed
func (s *Service) ResearchMethods(ctx context.Context, payload map[string]any) n8n.Outcome {
	return s.Execute(ctx, KindResearchMethods, payload)
}

// Execute runs one generation of kind and normalizes its result. It never
// panics; unexpected failures come back as a generic failed outcome.
func (s *Service) Execute(ctx context.Context, kind Kind, payload map[string]any) (out n8n.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Generation panicked",
				slog.String("kind", string(kind)),
				slog.Any("panic", r),
			)
			out = n8n.Failed(out.JobID, n8n.ErrorKindFailed, n8n.StatusFailed, "generation failed")
		}
	}()

	endpoint, ok := s.endpoints[kind]
	if !ok || endpoint == "" {
		return n8n.Failed("", n8n.ErrorKindFailed, "", fmt.Sprintf("%s: %s", ErrUnknownKind, kind))
	}

	s.logger.Info("Starting generation",
		slog.String("kind", string(kind)),
		slog.String("endpoint", endpoint),
	)

	out = s.runner.Run(ctx, endpoint, payload, s.poll)
	if !out.Success {
		s.logger.Warn("Generation did not succeed",
			slog.String("kind", string(kind)),
			slog.String("job_id", out.JobID),
			slog.String("error_kind", string(out.ErrorKind)),
			slog.String("error", out.Error),
		)
		return out
	}

	out.Data = kind.normalizer()(out.Data)
	if kind == KindCareerSentence && out.Data == "" {
		return n8n.Failed(out.JobID, n8n.ErrorKindFailed, n8n.StatusCompleted, "no career sentence in result")
	}

	s.logger.Info("Generation completed",
		slog.String("kind", string(kind)),
		slog.String("job_id", out.JobID),
	)
	return out
}

// Generate runs req and archives the outcome when a recorder is set.
// Archive failures are logged and do not change the outcome.
func (s *Service) Generate(ctx context.Context, req Request) (n8n.Outcome, string) {
	out := s.Execute(ctx, req.Kind, req.Payload)
	if s.recorder == nil {
		return out, ""
	}

	rec, err := archive.NewRecord(string(req.Kind), req.SessionID, req.UserID, req.Payload)
	if err != nil {
		s.logger.Error("Failed to build archive record", slog.Any("error", err))
		return out, ""
	}
	if err := rec.Apply(out, s.now()); err != nil {
		s.logger.Error("Failed to apply outcome to archive record", slog.Any("error", err))
		return out, ""
	}

	// archive even when the caller cancelled
	if err := s.recorder.Create(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("Failed to archive generation",
			slog.String("request_id", rec.RequestID),
			slog.Any("error", err),
		)
		return out, ""
	}
	return out, rec.RequestID
}
