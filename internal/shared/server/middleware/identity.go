package middleware

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"

	"reviewer-backend/internal/shared/server/respond"
)

const (
	userEmailKey = "userEmail"
	clientIPKey  = "clientIp"
	adminUserKey = "adminUser"
)

// Identity resolves the caller identity: the client IP always, and the user
// email from the X-User-Email header when present. The application identifies
// users by plain email; anonymous callers are tracked by IP only.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(clientIPKey, c.ClientIP())

		email := strings.ToLower(strings.TrimSpace(c.GetHeader("X-User-Email")))
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid email address", nil)
				return
			}
			c.Set(userEmailKey, email)
		}
		c.Next()
	}
}

// RequireUser rejects requests that carry no user email.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserEmailFromContext(c) == "" {
			respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "X-User-Email header is required", nil)
			return
		}
		c.Next()
	}
}

// AdminVerifier validates an admin bearer token and returns the admin user name.
type AdminVerifier func(token string) (string, error)

// AdminAuth gates admin routes behind a bearer token verified by verify.
func AdminAuth(verify AdminVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid token", nil)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
		admin, err := verify(token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid token", nil)
			return
		}
		c.Set(adminUserKey, admin)
		c.Next()
	}
}

// UserEmailFromContext fetches the user email set by Identity.
func UserEmailFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userEmailKey)
	if email, ok := val.(string); ok {
		return email
	}
	return ""
}

// ClientIPFromContext fetches the client IP set by Identity.
func ClientIPFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(clientIPKey)
	if ip, ok := val.(string); ok {
		return ip
	}
	return ""
}

// AdminUserFromContext fetches the admin user set by AdminAuth.
func AdminUserFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(adminUserKey)
	if admin, ok := val.(string); ok {
		return admin
	}
	return ""
}
