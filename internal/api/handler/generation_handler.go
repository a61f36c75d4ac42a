package handler

import (
	"log/slog"
	"maps"
	"net/http"

	"github.com/cuongbtq/career-lab/internal/api/dto"
	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/gin-gonic/gin"
)

// Generate handles POST /api/v1/generations/:kind
// Runs one generation while the client waits. A new request for the same
// session and kind cancels the one still in flight.
func (h *GenerationHandler) Generate(c *gin.Context) {
	kind, err := generation.ParseKind(c.Param("kind"))
	if err != nil {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, requestID, done := h.sessions.Begin(c.Request.Context(), req.SessionID, string(kind))
	defer done()

	// the workflows key cancellation on requestId
	payload := make(map[string]any, len(req.Payload)+1)
	maps.Copy(payload, req.Payload)
	if _, ok := payload["requestId"]; !ok {
		payload["requestId"] = requestID
	}

	h.logger.Info("Generation requested",
		slog.String("kind", string(kind)),
		slog.String("session_id", req.SessionID),
		slog.String("request_id", requestID),
	)

	outcome, archivedID := h.generator.Generate(ctx, generation.Request{
		Kind:      kind,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Payload:   payload,
	})

	c.JSON(statusForOutcome(outcome), dto.GenerateResponse{
		Outcome:   outcome,
		RequestID: archivedID,
	})
}

// CancelSession handles POST /api/v1/sessions/:session_id/cancel
// Aborts the session's in-flight generations, or only ?kind= when given,
// and notifies the workflows on a best-effort basis.
func (h *GenerationHandler) CancelSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	purpose := c.Query("kind")
	if purpose != "" {
		if _, err := generation.ParseKind(purpose); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	cancelled := h.sessions.CancelSession(sessionID, purpose)
	if h.notifier != nil {
		for _, id := range cancelled {
			h.notifier.NotifyCancel(c.Request.Context(), id)
		}
	}

	h.logger.Info("Session cancelled",
		slog.String("session_id", sessionID),
		slog.String("kind", purpose),
		slog.Int("cancelled", len(cancelled)),
	)

	if cancelled == nil {
		cancelled = []string{}
	}
	c.JSON(http.StatusOK, dto.CancelSessionResponse{
		SessionID:           sessionID,
		CancelledRequestIDs: cancelled,
	})
}
