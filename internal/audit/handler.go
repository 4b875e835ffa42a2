package audit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"reviewer-backend/internal/shared/server/respond"
)

// Handler exposes the admin audit log.
type Handler struct {
	Recorder Recorder
}

// NewHandler constructs a Handler.
func NewHandler(recorder Recorder) *Handler {
	return &Handler{Recorder: recorder}
}

// RegisterAdminRoutes attaches the audit route to the admin group.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/audit", h.list)
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	actions, err := h.Recorder.List(c.Request.Context(), limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to load audit log", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"actions": actions})
}
