package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/career-lab/internal/api/dto"
	"github.com/cuongbtq/career-lab/internal/archive"
	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/cuongbtq/career-lab/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateRequest handles POST /api/v1/requests
// Archives a PENDING request and queues it for the worker service
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	kind, err := generation.ParseKind(req.Kind)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := archive.NewRecord(string(kind), req.SessionID, req.UserID, req.Payload)
	if err != nil {
		h.logger.Error("Failed to build request", slog.String("error", err.Error()))
		errorResponse(c, http.StatusBadRequest, "Invalid payload")
		return
	}
	rec.MaxRetries = h.maxRetries

	ctx := c.Request.Context()
	if err := h.store.Create(ctx, rec); err != nil {
		h.logger.Error("Failed to create request", slog.String("error", err.Error()))
		errorResponse(c, http.StatusInternalServerError, "Failed to create request")
		return
	}

	msg := generation.QueueMessage{RequestID: rec.RequestID, Kind: kind}
	if err := h.publisher.PublishJSON(ctx, msg,
		rabbitmq.WithMessageID(rec.RequestID),
		rabbitmq.WithType(rec.Kind),
	); err != nil {
		h.logger.Error("Failed to queue request",
			slog.String("request_id", rec.RequestID),
			slog.String("error", err.Error()),
		)
		h.abandon(ctx, rec, "failed to queue request")
		errorResponse(c, http.StatusServiceUnavailable, "Failed to queue request")
		return
	}

	h.logger.Info("Request queued",
		slog.String("request_id", rec.RequestID),
		slog.String("kind", rec.Kind),
		slog.String("user_id", rec.UserID),
	)

	c.JSON(http.StatusAccepted, dto.CreateRequestResponse{
		RequestID: rec.RequestID,
		Status:    rec.Status,
	})
}

// abandon marks a request that never reached the queue as failed
func (h *RequestHandler) abandon(ctx context.Context, rec *archive.Record, reason string) {
	_ = rec.Apply(n8n.Failed("", n8n.ErrorKindFailed, "", reason), time.Now())
	if err := h.store.Finish(context.WithoutCancel(ctx), rec); err != nil {
		h.logger.Error("Failed to mark request as failed",
			slog.String("request_id", rec.RequestID),
			slog.String("error", err.Error()),
		)
	}
}

// GetRequest handles GET /api/v1/requests/:request_id
func (h *RequestHandler) GetRequest(c *gin.Context) {
	requestID := c.Param("request_id")

	if _, err := uuid.Parse(requestID); err != nil {
		h.logger.Error("Invalid request_id format", slog.String("request_id", requestID), slog.String("error", err.Error()))
		errorResponse(c, http.StatusBadRequest, "request_id must be a valid UUID")
		return
	}

	rec, err := h.store.Get(c.Request.Context(), requestID)
	if err != nil {
		if errors.Is(err, archive.ErrRecordNotFound) {
			errorResponse(c, http.StatusNotFound, "Request not found")
			return
		}
		h.logger.Error("Failed to get request", slog.String("error", err.Error()))
		errorResponse(c, http.StatusInternalServerError, "Failed to get request")
		return
	}

	c.JSON(http.StatusOK, dto.FromRecord(rec))
}

// ListRequests handles GET /api/v1/requests
// Lists requests newest first with optional filtering and cursor pagination
func (h *RequestHandler) ListRequests(c *gin.Context) {
	var req dto.ListRequestsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		errorResponse(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := archive.DecodeCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		errorResponse(c, http.StatusBadRequest, "Invalid cursor")
		return
	}

	records, err := h.store.List(c.Request.Context(), archive.Filter{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Kind:      req.Kind,
		Status:    req.Status,
		PageSize:  req.PageSize,
		Cursor:    cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list requests", slog.String("error", err.Error()))
		errorResponse(c, http.StatusInternalServerError, "Failed to list requests")
		return
	}

	hasMore := len(records) > req.PageSize
	if hasMore {
		records = records[:req.PageSize]
	}

	resp := dto.ListRequestsResponse{Requests: make([]dto.RequestDTO, len(records))}
	for i := range records {
		resp.Requests[i] = dto.FromRecord(&records[i])
	}
	if hasMore {
		resp.NextCursor = archive.EncodeCursor(&records[len(records)-1])
	}

	c.JSON(http.StatusOK, resp)
}
