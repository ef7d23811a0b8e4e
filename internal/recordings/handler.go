package recordings

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nimbusmeet/backend/pkg/queue"
	"github.com/nimbusmeet/backend/pkg/response"
)

// JobStore exposes queue inspection. Satisfied by *queue.Queue.
type JobStore interface {
	Stats(ctx context.Context) (*queue.Stats, error)
	GetJob(ctx context.Context, id string) (*queue.Job, error)
}

// Handler serves transfer pipeline inspection endpoints.
type Handler struct {
	store  JobStore
	events *EventLog
	logger *zap.Logger
}

// NewHandler creates an inspection handler. A nil events log gets a
// default-capacity one.
func NewHandler(store JobStore, events *EventLog, logger *zap.Logger) *Handler {
	if events == nil {
		events = NewEventLog(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, events: events, logger: logger}
}

// Stats handles GET /api/transfers/stats.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("queue stats failed", zap.Error(err))
		response.Internal(c, "failed to read queue stats")
		return
	}
	response.OK(c, stats)
}

// GetJob handles GET /api/transfers/jobs/:id.
func (h *Handler) GetJob(c *gin.Context) {
	id := c.Param("id")
	job, err := h.store.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			response.NotFound(c, "job not found")
			return
		}
		h.logger.Error("get job failed", zap.Error(err), zap.String("job_id", id))
		response.Internal(c, "failed to load job")
		return
	}
	response.OK(c, job)
}

// Events handles GET /api/transfers/events: recently received webhook events,
// newest first.
func (h *Handler) Events(c *gin.Context) {
	response.OK(c, gin.H{"events": h.events.Recent()})
}

// ClearEvents handles DELETE /api/transfers/events.
func (h *Handler) ClearEvents(c *gin.Context) {
	h.events.Clear()
	response.OK(c, gin.H{"cleared": true})
}
