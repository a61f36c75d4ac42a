package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultPollInterval is the delay between consecutive status checks
	DefaultPollInterval = 2000 * time.Millisecond
	// DefaultMaxPollingTime is the wall-clock budget for one polling loop
	DefaultMaxPollingTime = 300000 * time.Millisecond

	defaultHTTPTimeout   = 30 * time.Second
	cancelNotifyTimeout  = 5 * time.Second
	maxResponseBodyBytes = 4 << 20

	submitPath       = "/webhook/request"
	statusPathPrefix = "/webhook/get-job-status-webhook/get/"
	cancelEndpoint   = "cancel"
)

// Config holds the webhook client settings
type Config struct {
	BaseURL            string
	PollInterval       time.Duration
	MaxPollingTime     time.Duration
	MaxTransientErrors int
	HTTPTimeout        time.Duration
}

// Client talks to the n8n submission, status and cancel webhooks
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes the client
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger used for transient errors and lifecycle events
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used to measure the polling budget
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a new webhook client
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollingTime <= 0 {
		cfg.MaxPollingTime = DefaultMaxPollingTime
	}
	if cfg.MaxTransientErrors < 0 {
		cfg.MaxTransientErrors = 0
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured webhook host
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

func (c *Client) submitURL(endpoint string) string {
	q := url.Values{}
	q.Set("path", endpoint)
	return c.cfg.BaseURL + submitPath + "?" + q.Encode()
}

func (c *Client) statusURL(jobID string) string {
	return c.cfg.BaseURL + statusPathPrefix + url.PathEscape(jobID)
}

// rawResponse is an HTTP exchange reduced to what the callers inspect
type rawResponse struct {
	StatusCode int
	Body       []byte
}

func (r rawResponse) ok() bool {
	return r.StatusCode/100 == 2
}

// do issues one request. Transport failures come back as *NetworkError,
// or ErrCancelled when ctx ended first.
func (c *Client) do(ctx context.Context, method, target string, body any, headers map[string]string) (rawResponse, error) {
	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return rawResponse{}, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return rawResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return rawResponse{}, fmt.Errorf("%s %s: %w", method, target, ErrCancelled)
		}
		return rawResponse{}, &NetworkError{Op: method + " " + target, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return rawResponse{}, fmt.Errorf("%s %s: %w", method, target, ErrCancelled)
		}
		return rawResponse{}, &NetworkError{Op: "read " + target, Err: err}
	}

	return rawResponse{StatusCode: resp.StatusCode, Body: raw}, nil
}

// Run submits a job and polls it to a terminal outcome
func (c *Client) Run(ctx context.Context, endpoint string, payload map[string]any, opts PollOptions) Outcome {
	jobID, err := c.Submit(ctx, endpoint, payload)
	if err != nil {
		return outcomeForSubmitError(err)
	}
	return c.Poll(ctx, jobID, opts)
}
