package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"reviewer-backend/internal/accounting"
	"reviewer-backend/internal/audit"
	"reviewer-backend/internal/auth"
	"reviewer-backend/internal/documents"
	"reviewer-backend/internal/payments"
	"reviewer-backend/internal/services/health"
	"reviewer-backend/internal/shared/config"
	"reviewer-backend/internal/shared/metrics"
	"reviewer-backend/internal/shared/server/middleware"
	"reviewer-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router wires up.
type RouterDeps struct {
	Config            config.Config
	Health            *health.Service
	AuthHandler       *auth.Handler
	AccountingHandler *accounting.Handler
	PaymentsHandler   *payments.Handler
	DocumentsHandler  *documents.Handler
	AuditHandler      *audit.Handler
	AdminVerify       middleware.AdminVerifier
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Identity(),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, deps.Health.Status(c.Request.Context()))
	})

	deps.AuthHandler.RegisterRoutes(api)

	limiter := middleware.NewRateLimiter(func() time.Time { return time.Now() })
	usageRule := middleware.RateLimitRule{
		Rate:  deps.Config.RateLimitPerMinute / 60.0,
		Burst: deps.Config.RateLimitBurst,
	}
	api.Use(middleware.RateLimitByIP(limiter, usageRule))

	deps.AccountingHandler.RegisterRoutes(api)
	deps.PaymentsHandler.RegisterRoutes(api)
	deps.DocumentsHandler.RegisterRoutes(api)

	admin := api.Group("/admin", middleware.AdminAuth(deps.AdminVerify))
	deps.AccountingHandler.RegisterAdminRoutes(admin)
	deps.PaymentsHandler.RegisterAdminRoutes(admin)
	deps.DocumentsHandler.RegisterAdminRoutes(admin)
	deps.AuditHandler.RegisterAdminRoutes(admin)

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
