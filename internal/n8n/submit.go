package n8n

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// jobIDAliases lists the keys the submission webhook has used for the job id,
// in the order they are trusted
var jobIDAliases = []string{
	"jobId",
	"job_id",
	"id",
	"requestId",
	"request_id",
	"executionId",
}

// submitHeaders defeat intermediary caching of the submission POST
var submitHeaders = map[string]string{
	"Cache-Control": "no-cache, no-store, must-revalidate",
	"Pragma":        "no-cache",
	"Expires":       "0",
}

// Submit starts asynchronous work on the given webhook path and returns its job id.
// It never retries.
func (c *Client) Submit(ctx context.Context, endpoint string, payload map[string]any) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", ErrEmptyEndpoint
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("submit %s: %w", endpoint, ErrCancelled)
	}

	resp, err := c.do(ctx, http.MethodPost, c.submitURL(endpoint), payload, submitHeaders)
	if err != nil {
		c.logger.Error("Job submission failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("submit %s: %w", endpoint, err)
	}

	if !resp.ok() {
		c.logger.Error("Job submission rejected",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
		)
		return "", &SubmissionError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}

	jobID, ok := extractJobID(resp.Body)
	if !ok {
		return "", fmt.Errorf("submit %s: %w (body: %.200s)", endpoint, ErrMissingJobID, string(resp.Body))
	}

	c.logger.Info("Job submitted",
		slog.String("endpoint", endpoint),
		slog.String("job_id", jobID),
	)

	return jobID, nil
}

// extractJobID looks for the job id under every known alias. n8n sometimes
// wraps the response in a single-element array or a "data" object.
func extractJobID(body []byte) (string, bool) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", false
	}

	if arr, ok := decoded.([]any); ok {
		if len(arr) == 0 {
			return "", false
		}
		decoded = arr[0]
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return "", false
	}

	if id, ok := lookupAlias(obj); ok {
		return id, true
	}
	if nested, ok := obj["data"].(map[string]any); ok {
		return lookupAlias(nested)
	}
	return "", false
}

func lookupAlias(obj map[string]any) (string, bool) {
	for _, key := range jobIDAliases {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}
