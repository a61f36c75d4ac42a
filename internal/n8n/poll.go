package n8n

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// subWorkflowKey is the nested result field unwrapped on completion
const subWorkflowKey = "subWorkflowResult"

// PollOptions overrides the client defaults for one polling loop.
// Zero values fall back to the client configuration.
type PollOptions struct {
	Interval       time.Duration
	MaxPollingTime time.Duration
	// MaxTransientErrors caps consecutive transient status-check failures.
	// Zero means only the wall-clock budget ends the loop.
	MaxTransientErrors int
}

func (c *Client) resolve(opts PollOptions) PollOptions {
	if opts.Interval <= 0 {
		opts.Interval = c.cfg.PollInterval
	}
	if opts.MaxPollingTime <= 0 {
		opts.MaxPollingTime = c.cfg.MaxPollingTime
	}
	if opts.MaxTransientErrors <= 0 {
		opts.MaxTransientErrors = c.cfg.MaxTransientErrors
	}
	return opts
}

// statusResponse is the status webhook body
type statusResponse struct {
	Status   string `json:"status"`
	Result   any    `json:"result,omitempty"`
	Error    any    `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
	Progress any    `json:"progress,omitempty"`
}

// checkResult is what one status check produced
type checkResult int

const (
	checkNotReady checkResult = iota
	checkTransient
	checkReported
)

// Poll queries the status webhook until the job reaches a terminal status,
// ctx is cancelled, or the polling budget elapses.
func (c *Client) Poll(ctx context.Context, jobID string, opts PollOptions) Outcome {
	opts = c.resolve(opts)
	logger := c.logger.With(slog.String("job_id", jobID))

	start := c.now()
	transient := 0
	checks := 0

	for c.now().Sub(start) < opts.MaxPollingTime {
		if ctx.Err() != nil {
			logger.Info("Polling cancelled", slog.Int("checks", checks))
			return Failed(jobID, ErrorKindCancelled, "", "polling cancelled by caller")
		}

		checks++
		status, result, err := c.checkStatus(ctx, jobID)
		if errors.Is(err, ErrCancelled) {
			logger.Info("Polling cancelled during status check", slog.Int("checks", checks))
			return Failed(jobID, ErrorKindCancelled, "", "polling cancelled by caller")
		}

		switch result {
		case checkTransient:
			transient++
			logger.Warn("Status check failed, will retry",
				slog.Int("attempt", checks),
				slog.Int("consecutive_errors", transient),
				slog.String("error", err.Error()),
			)
			if opts.MaxTransientErrors > 0 && transient >= opts.MaxTransientErrors {
				return Failed(jobID, ErrorKindNetwork, "",
					fmt.Sprintf("status check failed %d times in a row: %v", transient, err))
			}

		case checkNotReady:
			transient = 0
			logger.Debug("Job status not available yet", slog.Int("attempt", checks))

		case checkReported:
			transient = 0
			st := ParseStatus(status.Status)
			switch st {
			case StatusCompleted:
				logger.Info("Job completed", slog.Int("checks", checks))
				return Succeeded(jobID, unwrapResult(status.Result))
			case StatusFailed:
				msg := remoteErrorMessage(status)
				logger.Warn("Job failed remotely", slog.String("error", msg))
				return Failed(jobID, ErrorKindFailed, StatusFailed, msg)
			default:
				logger.Debug("Job still running",
					slog.String("status", string(st)),
					slog.Int("attempt", checks),
				)
			}
		}

		if !c.sleep(ctx, opts.Interval) {
			logger.Info("Polling cancelled while waiting", slog.Int("checks", checks))
			return Failed(jobID, ErrorKindCancelled, "", "polling cancelled by caller")
		}
	}

	logger.Warn("Polling budget exhausted",
		slog.Duration("max_polling_time", opts.MaxPollingTime),
		slog.Int("checks", checks),
	)
	return Failed(jobID, ErrorKindTimeout, "",
		fmt.Sprintf("job did not finish within %s", opts.MaxPollingTime))
}

// checkStatus performs one status check. A transport failure on GET is
// retried once in the same iteration with POST, which some gateway
// deployments require for this path.
func (c *Client) checkStatus(ctx context.Context, jobID string) (statusResponse, checkResult, error) {
	target := c.statusURL(jobID)

	resp, err := c.do(ctx, http.MethodGet, target, nil, nil)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return statusResponse{}, checkTransient, err
		}
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			return statusResponse{}, checkTransient, err
		}
		c.logger.Debug("GET status check failed, retrying with POST",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		resp, err = c.do(ctx, http.MethodPost, target, map[string]string{"jobId": jobID}, nil)
		if err != nil {
			return statusResponse{}, checkTransient, err
		}
	}

	if resp.StatusCode == http.StatusNotFound {
		return statusResponse{}, checkNotReady, nil
	}
	if !resp.ok() {
		return statusResponse{}, checkTransient, fmt.Errorf("status check returned http %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		return statusResponse{}, checkTransient, fmt.Errorf("failed to decode status response: %w", err)
	}
	return status, checkReported, nil
}

// sleep waits for d or until ctx ends. It reports whether the full delay elapsed.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// unwrapResult returns the nested sub-workflow result when present
func unwrapResult(result any) any {
	obj, ok := result.(map[string]any)
	if !ok {
		return result
	}
	if nested, ok := obj[subWorkflowKey]; ok {
		return nested
	}
	return result
}

func remoteErrorMessage(status statusResponse) string {
	switch e := status.Error.(type) {
	case string:
		if e != "" {
			return e
		}
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
		if bs, err := json.Marshal(e); err == nil {
			return string(bs)
		}
	case nil:
	default:
		return fmt.Sprint(e)
	}
	if status.Message != "" {
		return status.Message
	}
	return "job failed"
}
