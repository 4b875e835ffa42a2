package payments

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"reviewer-backend/internal/shared/metrics"
	"reviewer-backend/internal/shared/server/middleware"
	"reviewer-backend/internal/shared/server/respond"
)

const maxReceiptBytes = 5 << 20

// Handler exposes payment endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the user-facing payment routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments", middleware.RequireUser(), h.submit)
	rg.GET("/payments", middleware.RequireUser(), h.listOwn)
}

// RegisterAdminRoutes attaches the admin payment routes.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/payments", h.list)
	rg.GET("/payments/:id", h.get)
	rg.GET("/payments/:id/receipt", h.receipt)
	rg.POST("/payments/:id/approve", h.approve)
	rg.POST("/payments/:id/reject", h.reject)
}

func (h *Handler) submit(c *gin.Context) {
	email := middleware.UserEmailFromContext(c)

	in := SubmitInput{
		Email:         email,
		FullName:      strings.TrimSpace(c.PostForm("fullName")),
		GcashRef:      strings.TrimSpace(c.PostForm("gcashRef")),
		PlanRequested: c.PostForm("plan"),
	}

	var receipt io.Reader
	receiptName := ""
	if file, err := c.FormFile("receipt"); err == nil {
		if file.Size > maxReceiptBytes {
			respond.Error(c, http.StatusRequestEntityTooLarge, respond.CodeValidation, "receipt exceeds 5MB", nil)
			return
		}
		f, err := file.Open()
		if err != nil {
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unreadable receipt upload", nil)
			return
		}
		defer f.Close()
		receipt = f
		receiptName = file.Filename
	}

	payment, err := h.Svc.Submit(c.Request.Context(), in, receipt, receiptName)
	if err != nil {
		h.writeError(c, err, "failed to submit payment")
		return
	}
	respond.JSON(c, http.StatusCreated, payment)
}

func (h *Handler) listOwn(c *gin.Context) {
	payments, err := h.Svc.ListByEmail(c.Request.Context(), middleware.UserEmailFromContext(c))
	if err != nil {
		h.writeError(c, err, "failed to list payments")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) list(c *gin.Context) {
	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	switch status {
	case "", StatusPending, StatusApproved, StatusRejected:
	default:
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unknown status", gin.H{"status": status})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	payments, err := h.Svc.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		h.writeError(c, err, "failed to list payments")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	payment, err := h.Svc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "failed to load payment")
		return
	}
	respond.JSON(c, http.StatusOK, payment)
}

func (h *Handler) receipt(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	reader, err := h.Svc.OpenReceipt(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "failed to open receipt")
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

type resolveRequest struct {
	AdminNotes string `json:"adminNotes"`
}

func (h *Handler) approve(c *gin.Context) {
	h.resolveWith(c, func(ctx context.Context, res Resolution) (Payment, error) {
		payment, err := h.Svc.Approve(ctx, res)
		if err == nil {
			metrics.IncPaymentApproved()
		}
		return payment, err
	})
}

func (h *Handler) reject(c *gin.Context) {
	h.resolveWith(c, func(ctx context.Context, res Resolution) (Payment, error) {
		payment, err := h.Svc.Reject(ctx, res)
		if err == nil {
			metrics.IncPaymentRejected()
		}
		return payment, err
	})
}

func (h *Handler) resolveWith(c *gin.Context, resolve func(context.Context, Resolution) (Payment, error)) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req resolveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid json body", nil)
			return
		}
	}

	payment, err := resolve(c.Request.Context(), Resolution{
		PaymentID:  id,
		AdminUser:  middleware.AdminUserFromContext(c),
		AdminNotes: strings.TrimSpace(req.AdminNotes),
	})
	if err != nil {
		h.writeError(c, err, "failed to resolve payment")
		return
	}
	respond.JSON(c, http.StatusOK, payment)
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "payment not found", nil)
	case errors.Is(err, ErrAlreadyResolved):
		respond.Error(c, http.StatusConflict, respond.CodeAlreadyResolved, "payment already resolved", nil)
	case errors.Is(err, ErrConstraint):
		respond.Error(c, http.StatusUnprocessableEntity, respond.CodeConstraintViolation, err.Error(), nil)
	case errors.Is(err, ErrStoreUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, respond.CodeStoreUnavailable, "store temporarily unavailable", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, fallback, nil)
	}
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid payment id", nil)
		return 0, false
	}
	return id, true
}
