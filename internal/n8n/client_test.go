package n8n

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusReply is one scripted answer of the fake status webhook
type statusReply struct {
	code int
	body string
}

// fakeWebhook scripts the n8n submission and status webhooks
type fakeWebhook struct {
	t *testing.T

	mu           sync.Mutex
	submitReply  statusReply
	statusScript []statusReply
	statusCalls  int
	postCalls    int
	cancelBodies []map[string]any
	submitted    []*http.Request
	submitBodies []map[string]any
}

func newFakeWebhook(t *testing.T, submit statusReply, script ...statusReply) (*fakeWebhook, *httptest.Server) {
	f := &fakeWebhook{t: t, submitReply: submit, statusScript: script}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeWebhook) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == submitPath && r.URL.Query().Get("path") == cancelEndpoint:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.cancelBodies = append(f.cancelBodies, body)
		w.WriteHeader(f.submitReply.code)

	case r.URL.Path == submitPath:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.submitted = append(f.submitted, r)
		f.submitBodies = append(f.submitBodies, body)
		w.WriteHeader(f.submitReply.code)
		_, _ = io.WriteString(w, f.submitReply.body)

	case strings.HasPrefix(r.URL.Path, statusPathPrefix):
		if r.Method == http.MethodPost {
			f.postCalls++
		}
		reply := statusReply{code: http.StatusOK, body: `{"status":"pending"}`}
		if f.statusCalls < len(f.statusScript) {
			reply = f.statusScript[f.statusCalls]
		} else if len(f.statusScript) > 0 {
			reply = f.statusScript[len(f.statusScript)-1]
		}
		f.statusCalls++
		w.WriteHeader(reply.code)
		_, _ = io.WriteString(w, reply.body)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		w.WriteHeader(http.StatusTeapot)
	}
}

func (f *fakeWebhook) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:        baseURL,
		PollInterval:   5 * time.Millisecond,
		MaxPollingTime: 2 * time.Second,
	}, WithLogger(quietLogger()))
}

func ok(body string) statusReply {
	return statusReply{code: http.StatusOK, body: body}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{BaseURL: " https://n8n.example.com/ "})

	assert.Equal(t, "https://n8n.example.com", c.BaseURL())
	assert.Equal(t, DefaultPollInterval, c.cfg.PollInterval)
	assert.Equal(t, DefaultMaxPollingTime, c.cfg.MaxPollingTime)
	assert.Equal(t, 2*time.Second, DefaultPollInterval)
	assert.Equal(t, 5*time.Minute, DefaultMaxPollingTime)
	assert.Equal(t,
		"https://n8n.example.com/webhook/request?path=career-sentence",
		c.submitURL("career-sentence"))
	assert.Equal(t,
		"https://n8n.example.com/webhook/get-job-status-webhook/get/job_123",
		c.statusURL("job_123"))
}

func TestSubmit_JobIDAliases(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "jobId", body: `{"jobId":"job_123"}`, want: "job_123"},
		{name: "job_id", body: `{"job_id":"job_abc"}`, want: "job_abc"},
		{name: "id", body: `{"id":"42-x"}`, want: "42-x"},
		{name: "requestId", body: `{"requestId":"req-1"}`, want: "req-1"},
		{name: "request_id", body: `{"request_id":"req-2"}`, want: "req-2"},
		{name: "executionId", body: `{"executionId":"exec-9"}`, want: "exec-9"},
		{name: "priority order", body: `{"id":"second","jobId":"first"}`, want: "first"},
		{name: "skips non-string alias", body: `{"jobId":17,"job_id":"str"}`, want: "str"},
		{name: "skips empty alias", body: `{"jobId":"","id":"fallback"}`, want: "fallback"},
		{name: "nested data", body: `{"ok":true,"data":{"jobId":"nested"}}`, want: "nested"},
		{name: "array wrapper", body: `[{"jobId":"in-array"}]`, want: "in-array"},
		{name: "id returned unchanged", body: `{"jobId":" spaced "}`, want: " spaced "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newFakeWebhook(t, ok(tt.body))
			c := newTestClient(srv.URL)

			got, err := c.Submit(context.Background(), "topics", map[string]any{"major": "biology"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubmit_RequestShape(t *testing.T) {
	f, srv := newFakeWebhook(t, ok(`{"jobId":"job_1"}`))
	c := newTestClient(srv.URL)

	_, err := c.Submit(context.Background(), "career-sentence", map[string]any{
		"grade":  2,
		"career": "의사",
	})
	require.NoError(t, err)

	require.Len(t, f.submitted, 1)
	req := f.submitted[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "career-sentence", req.URL.Query().Get("path"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", req.Header.Get("Cache-Control"))
	assert.Equal(t, "no-cache", req.Header.Get("Pragma"))
	assert.Equal(t, "0", req.Header.Get("Expires"))
	assert.Equal(t, "의사", f.submitBodies[0]["career"])
	assert.Equal(t, float64(2), f.submitBodies[0]["grade"])
}

func TestSubmit_Errors(t *testing.T) {
	t.Run("non-2xx surfaces status code", func(t *testing.T) {
		_, srv := newFakeWebhook(t, statusReply{code: http.StatusBadGateway, body: "gateway down"})
		c := newTestClient(srv.URL)

		_, err := c.Submit(context.Background(), "topics", nil)
		require.Error(t, err)

		var subErr *SubmissionError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, http.StatusBadGateway, subErr.StatusCode)
		assert.Contains(t, err.Error(), "502")
		assert.Contains(t, err.Error(), "gateway down")
	})

	t.Run("missing job id", func(t *testing.T) {
		_, srv := newFakeWebhook(t, ok(`{"message":"Workflow was started"}`))
		c := newTestClient(srv.URL)

		_, err := c.Submit(context.Background(), "topics", nil)
		require.ErrorIs(t, err, ErrMissingJobID)
		assert.Contains(t, err.Error(), "Workflow was started")
	})

	t.Run("malformed body", func(t *testing.T) {
		_, srv := newFakeWebhook(t, ok(`not json`))
		c := newTestClient(srv.URL)

		_, err := c.Submit(context.Background(), "topics", nil)
		require.ErrorIs(t, err, ErrMissingJobID)
	})

	t.Run("cancelled context", func(t *testing.T) {
		f, srv := newFakeWebhook(t, ok(`{"jobId":"job_1"}`))
		c := newTestClient(srv.URL)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.Submit(ctx, "topics", nil)
		require.ErrorIs(t, err, ErrCancelled)
		assert.Empty(t, f.submitted)
	})

	t.Run("empty endpoint", func(t *testing.T) {
		c := newTestClient("http://127.0.0.1:1")

		_, err := c.Submit(context.Background(), "  ", nil)
		require.ErrorIs(t, err, ErrEmptyEndpoint)
	})

	t.Run("unreachable host is a network error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c := newTestClient(url)
		_, err := c.Submit(context.Background(), "topics", nil)

		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
	})
}

func TestRun_SubmitFailureOutcomes(t *testing.T) {
	t.Run("http error maps to failed", func(t *testing.T) {
		_, srv := newFakeWebhook(t, statusReply{code: http.StatusInternalServerError})
		c := newTestClient(srv.URL)

		out := c.Run(context.Background(), "topics", nil, PollOptions{})
		assert.False(t, out.Success)
		assert.Equal(t, ErrorKindFailed, out.ErrorKind)
		assert.Contains(t, out.Error, "500")
	})

	t.Run("cancelled maps to cancelled", func(t *testing.T) {
		_, srv := newFakeWebhook(t, ok(`{"jobId":"x"}`))
		c := newTestClient(srv.URL)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		out := c.Run(ctx, "topics", nil, PollOptions{})
		assert.True(t, out.Cancelled())
	})

	t.Run("unreachable host maps to network", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		out := newTestClient(url).Run(context.Background(), "topics", nil, PollOptions{})
		assert.Equal(t, ErrorKindNetwork, out.ErrorKind)
	})
}

func TestNotifyCancel(t *testing.T) {
	t.Run("sends cancel action", func(t *testing.T) {
		f, srv := newFakeWebhook(t, ok(""))
		c := newTestClient(srv.URL)

		// already-cancelled caller context must not suppress the notification
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c.NotifyCancel(ctx, "req-77")

		require.Len(t, f.cancelBodies, 1)
		body := f.cancelBodies[0]
		assert.Equal(t, "cancel", body["action"])
		assert.Equal(t, "req-77", body["requestId"])
		ts, ok := body["timestamp"].(string)
		require.True(t, ok)
		_, err := time.Parse(time.RFC3339Nano, ts)
		assert.NoError(t, err)
	})

	t.Run("failures are swallowed", func(t *testing.T) {
		_, srv := newFakeWebhook(t, statusReply{code: http.StatusInternalServerError})
		c := newTestClient(srv.URL)

		assert.NotPanics(t, func() {
			c.NotifyCancel(context.Background(), "req-1")
		})

		dead := newTestClient("http://127.0.0.1:1")
		assert.NotPanics(t, func() {
			dead.NotifyCancel(context.Background(), "req-2")
		})
	})
}

func TestOutcomeForSubmitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "cancelled", err: ErrCancelled, want: ErrorKindCancelled},
		{name: "network", err: &NetworkError{Op: "POST x", Err: errors.New("connection refused")}, want: ErrorKindNetwork},
		{name: "submission", err: &SubmissionError{StatusCode: 400}, want: ErrorKindFailed},
		{name: "missing id", err: ErrMissingJobID, want: ErrorKindFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := outcomeForSubmitError(tt.err)
			assert.False(t, out.Success)
			assert.Equal(t, tt.want, out.ErrorKind)
			assert.NotEmpty(t, out.Error)
		})
	}
}
