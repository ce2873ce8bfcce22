package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tansucloud/tansu-outbox/pkg/model"
	"github.com/tansucloud/tansu-outbox/pkg/store/postgres"
)

type EventsHandler struct {
	repo   *postgres.OutboxRepository
	logger *zap.Logger
}

func NewEventsHandler(repo *postgres.OutboxRepository, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{repo: repo, logger: logger}
}

type eventResponse struct {
	ID             string      `json:"id"`
	EventType      string      `json:"event_type"`
	IdempotencyKey *string     `json:"idempotency_key,omitempty"`
	Payload        model.JSONB `json:"payload,omitempty"`
	Status         string      `json:"status"`
	Attempts       int         `json:"attempts"`
	OccurredAt     string      `json:"occurred_at"`
	NextAttemptAt  *string     `json:"next_attempt_at,omitempty"`
	DispatchedAt   *string     `json:"dispatched_at,omitempty"`
	LastError      *string     `json:"last_error,omitempty"`
}

var knownStatuses = map[string]bool{
	model.OutboxStatusPending:      true,
	model.OutboxStatusFailed:       true,
	model.OutboxStatusDispatched:   true,
	model.OutboxStatusDeadLettered: true,
}

func (h *EventsHandler) List(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !knownStatuses[status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}
	limit := parseLimit(c.Query("limit"), 50)

	events, err := h.repo.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		h.logger.Error("failed to list outbox events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}

	responses := make([]eventResponse, 0, len(events))
	for i := range events {
		responses = append(responses, toEventResponse(&events[i]))
	}

	c.JSON(http.StatusOK, gin.H{"events": responses})
}

func (h *EventsHandler) Stats(c *gin.Context) {
	counts, err := h.repo.CountByStatus(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to count outbox events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func toEventResponse(event *model.OutboxEvent) eventResponse {
	return eventResponse{
		ID:             event.ID.String(),
		EventType:      event.EventType,
		IdempotencyKey: event.IdempotencyKey,
		Payload:        event.Payload,
		Status:         event.Status,
		Attempts:       event.Attempts,
		OccurredAt:     event.OccurredAt.UTC().Format(time.RFC3339Nano),
		NextAttemptAt:  formatTime(event.NextAttemptAt),
		DispatchedAt:   formatTime(event.DispatchedAt),
		LastError:      event.LastError,
	}
}
