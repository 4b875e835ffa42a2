package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reviewer-backend/internal/shared/server/respond"
)

// Handler exposes the admin login endpoint.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches auth routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/admin/login", h.login)
}

type loginRequest struct {
	AdminUser string `json:"adminUser"`
	Password  string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "password is required", nil)
		return
	}

	token, err := h.Svc.Login(req.AdminUser, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "invalid credentials", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to issue token", nil)
		return
	}

	respond.OK(c, gin.H{"token": token})
}
