package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/career-lab/internal/archive"
	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/cuongbtq/career-lab/internal/session"
	"github.com/cuongbtq/career-lab/shared/rabbitmq"
	"github.com/gin-gonic/gin"
)

// Generator runs a synchronous generation. *generation.Service implements it.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (n8n.Outcome, string)
}

// RequestStore is the archive used by the request endpoints. *archive.Store implements it.
type RequestStore interface {
	Create(ctx context.Context, r *archive.Record) error
	Get(ctx context.Context, requestID string) (*archive.Record, error)
	List(ctx context.Context, filter archive.Filter) ([]archive.Record, error)
	Finish(ctx context.Context, r *archive.Record) error
}

// Publisher queues generation requests. *rabbitmq.Client implements it.
type Publisher interface {
	PublishJSON(ctx context.Context, v any, opts ...rabbitmq.PublishOption) error
}

// CancelNotifier tells the workflows a request was abandoned. *n8n.Client implements it.
type CancelNotifier interface {
	NotifyCancel(ctx context.Context, requestID string)
}

// HealthChecker reports whether a backing service is reachable. *database.Client implements it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Generator   Generator
	Sessions    *session.Registry
	Notifier    CancelNotifier
	Store       RequestStore
	Publisher   Publisher
	Database    HealthChecker
	MaxRetries  int
	ServiceName string
}

// GenerationHandler serves the synchronous generation and cancel endpoints
type GenerationHandler struct {
	logger    *slog.Logger
	generator Generator
	sessions  *session.Registry
	notifier  CancelNotifier
}

// NewGenerationHandler creates a new GenerationHandler instance
func NewGenerationHandler(deps *Dependencies) *GenerationHandler {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewRegistry()
	}
	return &GenerationHandler{
		logger:    deps.Logger,
		generator: deps.Generator,
		sessions:  sessions,
		notifier:  deps.Notifier,
	}
}

// RequestHandler serves the queued request endpoints
type RequestHandler struct {
	logger     *slog.Logger
	store      RequestStore
	publisher  Publisher
	maxRetries int
}

// NewRequestHandler creates a new RequestHandler instance
func NewRequestHandler(deps *Dependencies) *RequestHandler {
	return &RequestHandler{
		logger:     deps.Logger,
		store:      deps.Store,
		publisher:  deps.Publisher,
		maxRetries: deps.MaxRetries,
	}
}

// statusForOutcome maps a polling outcome to the HTTP status of the response
func statusForOutcome(o n8n.Outcome) int {
	if o.Success {
		return http.StatusOK
	}
	switch o.ErrorKind {
	case n8n.ErrorKindCancelled:
		return http.StatusConflict
	case n8n.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"error": message,
	})
}
