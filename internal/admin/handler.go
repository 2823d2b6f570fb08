package admin

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/identity"
	"github.com/greenway-eco/backend/internal/models"
	"github.com/greenway-eco/backend/pkg/response"
)

// RoleRequest is the body for POST /admin/roles.
type RoleRequest struct {
	Email string `json:"email" binding:"required"`
	Role  string `json:"role" binding:"required"`
}

// Handler serves the admin routes.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an admin handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Panel handles GET /admin/panel.
func (h *Handler) Panel(c *gin.Context) {
	p, err := h.svc.Panel(c.Request.Context())
	if err != nil {
		h.logger.Error("admin panel failed", zap.Error(err))
		response.ServiceUnavailable(c, "admin panel is unavailable")
		return
	}
	response.OK(c, p)
}

// GrantRole handles POST /admin/roles.
func (h *Handler) GrantRole(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := h.svc.Promote(c.Request.Context(), req.Email, models.ParseRole(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRole):
			response.BadRequest(c, err.Error())
		case errors.Is(err, identity.ErrAccountNotFound):
			response.NotFound(c, "account not found")
		default:
			h.logger.Error("grant role failed", zap.Error(err))
			response.ServiceUnavailable(c, "role could not be granted")
		}
		return
	}
	response.OK(c, p)
}
