package health

import (
	"context"
	"database/sql"
	"time"
)

// Service encapsulates health-related checks.
type Service struct {
	DB *sql.DB
}

// NewService constructs a new health service. DB may be nil in dev mode.
func NewService(database *sql.DB) *Service {
	return &Service{DB: database}
}

// Status reports process liveness and store connectivity.
func (s *Service) Status(ctx context.Context) map[string]any {
	out := map[string]any{"ok": true, "store": "memory"}
	if s.DB == nil {
		return out
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.DB.PingContext(pingCtx); err != nil {
		out["ok"] = false
		out["store"] = "postgres:unreachable"
		return out
	}
	out["store"] = "postgres"
	return out
}
