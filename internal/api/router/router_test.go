package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/career-lab/internal/api/dto"
	"github.com/cuongbtq/career-lab/internal/api/handler"
	"github.com/cuongbtq/career-lab/internal/archive"
	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/cuongbtq/career-lab/internal/session"
	"github.com/cuongbtq/career-lab/shared/database"
	"github.com/cuongbtq/career-lab/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeGenerator answers with a scripted outcome, or blocks until the
// request context ends when block is set
type fakeGenerator struct {
	mu       sync.Mutex
	outcome  n8n.Outcome
	block    bool
	started  chan struct{}
	requests []generation.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req generation.Request) (n8n.Outcome, string) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := f.block
	f.mu.Unlock()

	if block {
		f.started <- struct{}{}
		<-ctx.Done()
		return n8n.Failed("job_blocked", n8n.ErrorKindCancelled, n8n.StatusProcessing, "cancelled"), ""
	}
	return f.outcome, "archived-id"
}

type fakePublisher struct {
	mu         sync.Mutex
	messages   []generation.QueueMessage
	properties []amqp.Publishing
	err        error
}

func (f *fakePublisher) PublishJSON(_ context.Context, v any, opts ...rabbitmq.PublishOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var props amqp.Publishing
	for _, opt := range opts {
		opt(&props)
	}
	f.messages = append(f.messages, v.(generation.QueueMessage))
	f.properties = append(f.properties, props)
	return nil
}

type fakeNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeNotifier) NotifyCancel(_ context.Context, requestID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, requestID)
}

type testEnv struct {
	router    *gin.Engine
	generator *fakeGenerator
	publisher *fakePublisher
	notifier  *fakeNotifier
	store     *archive.Store
	db        *database.Client
}

func newTestEnv(t *testing.T, origins ...string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.NewClient(&database.Config{Driver: database.DriverSQLite, Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := archive.NewStore(db.GetDB(), logger)
	require.NoError(t, store.EnsureSchema(context.Background()))

	env := &testEnv{
		generator: &fakeGenerator{started: make(chan struct{}, 4)},
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		store:     store,
		db:        db,
	}
	env.router = SetupRouter(&handler.Dependencies{
		Logger:     logger,
		Generator:  env.generator,
		Sessions:   session.NewRegistry(),
		Notifier:   env.notifier,
		Store:      store,
		Publisher:  env.publisher,
		Database:   db,
		MaxRetries: 2,
	}, origins)
	return env
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"career-lab-api"}`, w.Body.String())
}

func TestHealth_DatabaseDown(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Close())

	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy")
}

func TestGenerate_Success(t *testing.T) {
	env := newTestEnv(t)
	env.generator.outcome = n8n.Succeeded("job_123", "선택된 문장")

	w := env.do(http.MethodPost, "/api/v1/generations/career-sentence", map[string]any{
		"session_id": "s1",
		"user_id":    "u1",
		"payload":    map[string]any{"major": "의학"},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody[map[string]any](t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "선택된 문장", body["data"])
	assert.Equal(t, "job_123", body["job_id"])
	assert.Equal(t, "archived-id", body["request_id"])

	require.Len(t, env.generator.requests, 1)
	got := env.generator.requests[0]
	assert.Equal(t, generation.KindCareerSentence, got.Kind)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "의학", got.Payload["major"])
	assert.NotEmpty(t, got.Payload["requestId"], "a cancel id is attached to the payload")
}

func TestGenerate_OutcomeStatusCodes(t *testing.T) {
	tests := []struct {
		kind n8n.ErrorKind
		want int
	}{
		{n8n.ErrorKindTimeout, http.StatusGatewayTimeout},
		{n8n.ErrorKindNetwork, http.StatusBadGateway},
		{n8n.ErrorKindFailed, http.StatusBadGateway},
		{n8n.ErrorKindCancelled, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			env := newTestEnv(t)
			env.generator.outcome = n8n.Failed("job_1", tt.kind, n8n.StatusProcessing, "x")

			w := env.do(http.MethodPost, "/api/v1/generations/topics", map[string]any{"session_id": "s1"})
			assert.Equal(t, tt.want, w.Code)

			body := decodeBody[map[string]any](t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, string(tt.kind), body["error_kind"])
		})
	}
}

func TestGenerate_BadInput(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/generations/essay", map[string]any{"session_id": "s1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/v1/generations/topics", map[string]any{"payload": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelSession_AbortsInFlightGeneration(t *testing.T) {
	env := newTestEnv(t)
	env.generator.block = true

	result := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		result <- env.do(http.MethodPost, "/api/v1/generations/topics", map[string]any{"session_id": "s1"})
	}()

	select {
	case <-env.generator.started:
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not start")
	}

	w := env.do(http.MethodPost, "/api/v1/sessions/s1/cancel?kind=topics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[dto.CancelSessionResponse](t, w)
	assert.Equal(t, "s1", resp.SessionID)
	require.Len(t, resp.CancelledRequestIDs, 1)

	select {
	case gw := <-result:
		assert.Equal(t, http.StatusConflict, gw.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("generation was not cancelled")
	}

	env.notifier.mu.Lock()
	defer env.notifier.mu.Unlock()
	assert.Equal(t, resp.CancelledRequestIDs, env.notifier.ids)

	// the cancelled id is the one sent to the workflows
	assert.Equal(t, resp.CancelledRequestIDs[0], env.generator.requests[0].Payload["requestId"])
}

func TestGenerate_ResubmitCancelsPrevious(t *testing.T) {
	env := newTestEnv(t)
	env.generator.block = true

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- env.do(http.MethodPost, "/api/v1/generations/topics", map[string]any{"session_id": "s1"})
	}()
	<-env.generator.started

	second := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		second <- env.do(http.MethodPost, "/api/v1/generations/topics", map[string]any{"session_id": "s1"})
	}()
	<-env.generator.started

	select {
	case w := <-first:
		assert.Equal(t, http.StatusConflict, w.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("first generation was not superseded")
	}

	// the second one is still running until cancelled
	w := env.do(http.MethodPost, "/api/v1/sessions/s1/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	<-second
}

func TestCancelSession_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/sessions/s1/cancel?kind=essay", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/v1/sessions/idle/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"session_id":"idle","cancelled_request_ids":[]}`, w.Body.String())
}

func TestCreateRequest(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/requests", map[string]any{
		"kind":       "research-methods",
		"session_id": "s1",
		"user_id":    "u1",
		"payload":    map[string]any{"topic": "하천 수질"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	resp := decodeBody[dto.CreateRequestResponse](t, w)
	assert.Equal(t, archive.StatusPending, resp.Status)

	rec, err := env.store.Get(context.Background(), resp.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "research-methods", rec.Kind)
	assert.Equal(t, 2, rec.MaxRetries)
	assert.JSONEq(t, `{"topic":"하천 수질"}`, rec.Payload)

	require.Len(t, env.publisher.messages, 1)
	assert.Equal(t, generation.QueueMessage{RequestID: resp.RequestID, Kind: generation.KindResearchMethods}, env.publisher.messages[0])
	assert.Equal(t, resp.RequestID, env.publisher.properties[0].MessageId)
	assert.Equal(t, "research-methods", env.publisher.properties[0].Type)
}

func TestCreateRequest_PublishFailure(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = assert.AnError

	w := env.do(http.MethodPost, "/api/v1/requests", map[string]any{"kind": "topics", "user_id": "u1"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	records, err := env.store.List(context.Background(), archive.Filter{UserID: "u1", PageSize: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, archive.StatusFailed, records[0].Status)
	assert.Equal(t, "failed to queue request", records[0].ErrorMessage)
}

func TestCreateRequest_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/requests", map[string]any{"kind": "essay", "user_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/v1/requests", map[string]any{"kind": "topics"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, env.publisher.messages)
}

func TestGetRequest(t *testing.T) {
	env := newTestEnv(t)

	rec, err := archive.NewRecord("topics", "s1", "u1", map[string]any{"a": 1})
	require.NoError(t, err)
	require.NoError(t, rec.Apply(n8n.Succeeded("job_1", []any{"주제"}), time.Now()))
	require.NoError(t, env.store.Create(context.Background(), rec))

	w := env.do(http.MethodGet, "/api/v1/requests/"+rec.RequestID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[map[string]any](t, w)
	assert.Equal(t, archive.StatusCompleted, got["status"])
	assert.Equal(t, []any{"주제"}, got["result"])
	assert.Equal(t, map[string]any{"a": 1.0}, got["payload"])
	assert.NotEmpty(t, got["completed_at"])

	w = env.do(http.MethodGet, "/api/v1/requests/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/requests/0b6f3c52-9a0e-4c1e-9f5d-2f7c6f0f8d11", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRequests_Pagination(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		w := env.do(http.MethodPost, "/api/v1/requests", map[string]any{"kind": "topics", "user_id": "u1"})
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	env.do(http.MethodPost, "/api/v1/requests", map[string]any{"kind": "topics", "user_id": "u2"})

	seen := map[string]bool{}
	path := "/api/v1/requests?user_id=u1&page_size=2"
	pages := 0
	for {
		w := env.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[dto.ListRequestsResponse](t, w)
		pages++
		for _, r := range resp.Requests {
			assert.Equal(t, "u1", r.UserID)
			assert.False(t, seen[r.RequestID], "duplicate across pages")
			seen[r.RequestID] = true
		}
		if resp.NextCursor == "" {
			break
		}
		path = "/api/v1/requests?user_id=u1&page_size=2&cursor=" + url.QueryEscape(resp.NextCursor)
	}

	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)

	w := env.do(http.MethodGet, "/api/v1/requests?cursor=bm9waXBl", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSMiddleware(t *testing.T) {
	env := newTestEnv(t, "http://localhost:5173")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/requests", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	open := newTestEnv(t)
	w = open.do(http.MethodGet, "/health", nil)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
