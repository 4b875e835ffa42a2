package accounting

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reviewer-backend/internal/shared/metrics"
	"reviewer-backend/internal/shared/server/middleware"
	"reviewer-backend/internal/shared/server/respond"
)

// Handler exposes usage accounting endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the user-facing accounting routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/usage", h.recordUsage)
	rg.GET("/me", middleware.RequireUser(), h.getMe)
	rg.GET("/me/logs", middleware.RequireUser(), h.getMyLogs)
}

// RegisterAdminRoutes attaches the admin accounting routes.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/users", h.listUsers)
	rg.GET("/users/:email", h.getUser)
	rg.POST("/users/:email/block", h.blockUser(true))
	rg.POST("/users/:email/unblock", h.blockUser(false))
	rg.POST("/users/:email/quota", h.adjustQuota)
	rg.POST("/users/:email/plan", h.changePlan)
	rg.DELETE("/users/:email", h.deleteUser)
	rg.GET("/users/:email/ips", h.userIPHistory)
	rg.GET("/users/:email/logs", h.userLogs)
	rg.GET("/ips/:ip", h.getIPUsage)
	rg.POST("/ips/:ip/block", h.blockIP(true))
	rg.POST("/ips/:ip/unblock", h.blockIP(false))
	rg.GET("/logs", h.allLogs)
}

type recordUsageRequest struct {
	Questions  int    `json:"questions"`
	SourceType string `json:"sourceType"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Notes      string `json:"notes"`
}

func (h *Handler) recordUsage(c *gin.Context) {
	var req recordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid json body", nil)
		return
	}
	if req.Questions < 0 || req.Questions > 100 {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "questions must be between 0 and 100", nil)
		return
	}

	start := time.Now()
	receipt, err := h.Svc.RecordUsage(c.Request.Context(), RecordUsageInput{
		Email:      middleware.UserEmailFromContext(c),
		IP:         middleware.ClientIPFromContext(c),
		Questions:  req.Questions,
		SourceType: req.SourceType,
		Category:   req.Category,
		Difficulty: req.Difficulty,
		Notes:      req.Notes,
	})
	metrics.ObserveUsageDurationMs(float64(time.Since(start).Milliseconds()))
	if err != nil {
		switch {
		case errors.Is(err, ErrQuotaExceeded):
			metrics.IncQuotaRejected()
		case errors.Is(err, ErrBlocked), errors.Is(err, ErrIPBlocked):
			metrics.IncBlockedRejected()
		}
		h.writeError(c, err, "failed to record usage")
		return
	}
	metrics.IncUsageRecorded()
	respond.JSON(c, http.StatusOK, receipt)
}

func (h *Handler) getMe(c *gin.Context) {
	user, err := h.Svc.GetOrCreateUser(c.Request.Context(),
		middleware.UserEmailFromContext(c), middleware.ClientIPFromContext(c))
	if err != nil {
		h.writeError(c, err, "failed to load account")
		return
	}
	respond.JSON(c, http.StatusOK, user)
}

func (h *Handler) getMyLogs(c *gin.Context) {
	logs, err := h.Svc.UserLogs(c.Request.Context(),
		middleware.UserEmailFromContext(c), queryLimit(c))
	if err != nil {
		h.writeError(c, err, "failed to load usage logs")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"logs": logs})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.Svc.ListUsers(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to list users")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"users": users})
}

func (h *Handler) getUser(c *gin.Context) {
	email, ok := emailParam(c)
	if !ok {
		return
	}
	user, err := h.Svc.GetUser(c.Request.Context(), email)
	if err != nil {
		h.writeError(c, err, "failed to load user")
		return
	}
	respond.JSON(c, http.StatusOK, user)
}

func (h *Handler) blockUser(blocked bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, ok := emailParam(c)
		if !ok {
			return
		}
		err := h.Svc.SetUserBlocked(c.Request.Context(), middleware.AdminUserFromContext(c), email, blocked)
		if err != nil {
			h.writeError(c, err, "failed to update block status")
			return
		}
		respond.JSON(c, http.StatusOK, gin.H{"email": email, "isBlocked": blocked})
	}
}

type adjustQuotaRequest struct {
	QuestionsRemaining *int `json:"questionsRemaining" binding:"required"`
}

func (h *Handler) adjustQuota(c *gin.Context) {
	email, ok := emailParam(c)
	if !ok {
		return
	}
	var req adjustQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.QuestionsRemaining == nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "questionsRemaining is required", nil)
		return
	}
	if *req.QuestionsRemaining < 0 {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "questionsRemaining must not be negative", nil)
		return
	}
	err := h.Svc.AdjustQuota(c.Request.Context(), middleware.AdminUserFromContext(c), email, *req.QuestionsRemaining)
	if err != nil {
		h.writeError(c, err, "failed to adjust quota")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"email": email, "questionsRemaining": *req.QuestionsRemaining})
}

type changePlanRequest struct {
	Plan string `json:"plan" binding:"required"`
}

func (h *Handler) changePlan(c *gin.Context) {
	email, ok := emailParam(c)
	if !ok {
		return
	}
	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "plan is required", nil)
		return
	}
	plan := strings.ToUpper(strings.TrimSpace(req.Plan))
	if !ValidPlan(plan) {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unknown plan", gin.H{"plan": req.Plan})
		return
	}
	user, err := h.Svc.ChangePlan(c.Request.Context(), middleware.AdminUserFromContext(c), email, plan)
	if err != nil {
		h.writeError(c, err, "failed to change plan")
		return
	}
	respond.JSON(c, http.StatusOK, user)
}

func (h *Handler) deleteUser(c *gin.Context) {
	email, ok := emailParam(c)
	if !ok {
		return
	}
	err := h.Svc.DeleteUser(c.Request.Context(), middleware.AdminUserFromContext(c), email)
	if err != nil {
		h.writeError(c, err, "failed to delete user")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"email": email, "deleted": true})
}

func (h *Handler) userIPHistory(c *gin.Context) {
	email, ok := emailParam(c)
	if !ok {
		return
	}
	history, err := h.Svc.UserIPHistory(c.Request.Context(), email)
	if err != nil {
		h.writeError(c, err, "failed to load ip history")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"email": email, "ips": history})
}

func (h *Handler) userLogs(c *gin.Context) {
	email, ok := emailParam(c)
	if !ok {
		return
	}
	logs, err := h.Svc.UserLogs(c.Request.Context(), email, queryLimit(c))
	if err != nil {
		h.writeError(c, err, "failed to load usage logs")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"email": email, "logs": logs})
}

func (h *Handler) getIPUsage(c *gin.Context) {
	ip := c.Param("ip")
	usage, err := h.Svc.GetIPUsage(c.Request.Context(), ip)
	if err != nil {
		h.writeError(c, err, "failed to load ip usage")
		return
	}
	respond.JSON(c, http.StatusOK, usage)
}

func (h *Handler) blockIP(blocked bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Param("ip")
		if ip == "" {
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "ip is required", nil)
			return
		}
		err := h.Svc.SetIPBlocked(c.Request.Context(), middleware.AdminUserFromContext(c), ip, blocked)
		if err != nil {
			h.writeError(c, err, "failed to update ip block status")
			return
		}
		respond.JSON(c, http.StatusOK, gin.H{"ipAddress": ip, "isBlocked": blocked})
	}
}

func (h *Handler) allLogs(c *gin.Context) {
	logs, err := h.Svc.AllLogs(c.Request.Context(), queryLimit(c))
	if err != nil {
		h.writeError(c, err, "failed to load usage logs")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"logs": logs})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		respond.Error(c, http.StatusPaymentRequired, respond.CodeQuotaExceeded, "no questions remaining", nil)
	case errors.Is(err, ErrBlocked):
		respond.Error(c, http.StatusForbidden, respond.CodeBlocked, "account is blocked", nil)
	case errors.Is(err, ErrIPBlocked):
		respond.Error(c, http.StatusForbidden, respond.CodeBlocked, "ip address is blocked", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "not found", nil)
	case errors.Is(err, ErrConstraint):
		respond.Error(c, http.StatusUnprocessableEntity, respond.CodeConstraintViolation, "the store rejected the request", nil)
	case errors.Is(err, ErrStoreUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, respond.CodeStoreUnavailable, "store temporarily unavailable", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, fallback, nil)
	}
}

func emailParam(c *gin.Context) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(c.Param("email")))
	if _, err := mail.ParseAddress(email); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid email address", nil)
		return "", false
	}
	return email, true
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return limit
}
