package meetings

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nimbusmeet/backend/pkg/response"
)

// Handler handles meeting participation endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a meetings handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

type joinRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
	DisplayName   string `json:"display_name"`
	Topic         string `json:"topic"`
}

type leaveRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

// Join handles POST /api/meetings/:name/join.
func (h *Handler) Join(c *gin.Context) {
	name := c.Param("name")
	var body joinRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.repo.Join(c.Request.Context(), name, body.Topic, body.ParticipantID, body.DisplayName)
	if err != nil {
		h.logger.Error("join failed", zap.Error(err), zap.String("meeting", name))
		response.Internal(c, "failed to join meeting")
		return
	}
	response.OK(c, m)
}

// Leave handles POST /api/meetings/:name/leave.
func (h *Handler) Leave(c *gin.Context) {
	name := c.Param("name")
	var body leaveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	closed, err := h.repo.Leave(c.Request.Context(), name, body.ParticipantID)
	if err != nil {
		h.logger.Error("leave failed", zap.Error(err), zap.String("meeting", name))
		response.Internal(c, "failed to leave meeting")
		return
	}
	if closed == 0 {
		response.NotFound(c, "no open session for participant in this meeting")
		return
	}
	response.OK(c, gin.H{"left": true})
}

// End handles POST /api/meetings/:name/end.
func (h *Handler) End(c *gin.Context) {
	name := c.Param("name")
	m, err := h.repo.End(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("end failed", zap.Error(err), zap.String("meeting", name))
		response.Internal(c, "failed to end meeting")
		return
	}
	if m == nil {
		response.NotFound(c, "meeting not found")
		return
	}
	response.OK(c, m)
}

// Get handles GET /api/meetings/:name.
func (h *Handler) Get(c *gin.Context) {
	name := c.Param("name")
	m, err := h.repo.GetByName(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("get meeting failed", zap.Error(err), zap.String("meeting", name))
		response.Internal(c, "failed to load meeting")
		return
	}
	if m == nil {
		response.NotFound(c, "meeting not found")
		return
	}
	response.OK(c, m)
}

// Participants handles GET /api/meetings/:name/participants.
func (h *Handler) Participants(c *gin.Context) {
	name := c.Param("name")
	list, err := h.repo.ListParticipants(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("list participants failed", zap.Error(err), zap.String("meeting", name))
		response.Internal(c, "failed to list participants")
		return
	}
	response.OK(c, gin.H{"participants": list})
}
