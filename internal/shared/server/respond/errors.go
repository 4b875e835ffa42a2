package respond

import (
	"github.com/gin-gonic/gin"

	"reviewer-backend/internal/shared/telemetry"
)

// Stable error codes returned to callers. Business-rule codes are not
// retryable; store_unavailable is.
const (
	CodeQuotaExceeded       = "quota_exceeded"
	CodeBlocked             = "blocked"
	CodeAlreadyResolved     = "already_resolved"
	CodeNotFound            = "not_found"
	CodeConstraintViolation = "constraint_violation"
	CodeStoreUnavailable    = "store_unavailable"
	CodeValidation          = "validation_error"
	CodeUnauthorized        = "unauthorized"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal_error"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if email := c.GetString("userEmail"); email != "" {
		fields["user_email"] = email
	}
	telemetry.Error("http.error", fields)

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
