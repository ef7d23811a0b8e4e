package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nimbusmeet/backend/pkg/response"
)

// Handler issues video SDK session tokens.
type Handler struct {
	tokens *TokenService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(tokens *TokenService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{tokens: tokens, logger: logger}
}

type tokenRequest struct {
	Topic  string `json:"topic" binding:"required"`
	UserID string `json:"user_id"`
	Role   *int   `json:"role"`
}

// SessionToken handles POST /api/token.
func (h *Handler) SessionToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	role := RoleAttendee
	if req.Role != nil {
		if *req.Role != RoleAttendee && *req.Role != RolePublisher {
			response.BadRequest(c, "role must be 0 (attendee) or 1 (publisher)")
			return
		}
		role = *req.Role
	}
	token, err := h.tokens.Generate(req.Topic, req.UserID, role)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err), zap.String("topic", req.Topic))
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, gin.H{"token": token})
}
