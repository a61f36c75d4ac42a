package n8n

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// cancelRequest is the body of the best-effort cancel notification
type cancelRequest struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

// NotifyCancel tells the workflow service that requestID was abandoned.
// The service gives no cancellation guarantee, so failures are only logged.
// ctx may already be cancelled; the notification uses its own deadline.
func (c *Client) NotifyCancel(ctx context.Context, requestID string) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelNotifyTimeout)
	defer cancel()

	body := cancelRequest{
		Action:    "cancel",
		RequestID: requestID,
		Timestamp: c.now().UTC().Format(time.RFC3339Nano),
	}

	resp, err := c.do(notifyCtx, http.MethodPost, c.submitURL(cancelEndpoint), body, submitHeaders)
	if err != nil {
		c.logger.Warn("Cancel notification failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !resp.ok() {
		c.logger.Warn("Cancel notification rejected",
			slog.String("request_id", requestID),
			slog.Int("status", resp.StatusCode),
		)
		return
	}

	c.logger.Debug("Cancel notification sent", slog.String("request_id", requestID))
}
