package accounting

import (
	"context"
	"time"
)

// Store owns all quota-affecting state. Every mutating call executes as one
// atomic unit against the backing store.
type Store interface {
	// RecordUsage checks blocks and quota, decrements, and appends a usage
	// log row atomically. With an empty email only the IP aggregate moves.
	RecordUsage(ctx context.Context, in RecordUsageInput) (Receipt, error)

	// GetOrCreateUser returns the user row, creating it with free-plan
	// defaults on first sight, and records the observed IP.
	GetOrCreateUser(ctx context.Context, email, ip string) (User, error)
	GetUser(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)

	SetUserBlocked(ctx context.Context, email string, blocked bool) error
	SetIPBlocked(ctx context.Context, ip string, blocked bool) error
	AdjustQuota(ctx context.Context, email string, questionsRemaining int) error

	// ApplyPlan moves the user to plan with the given entitlement. Used by
	// payment approval and the admin plan-change path.
	ApplyPlan(ctx context.Context, email, plan string, questionsRemaining int, expiry *time.Time) error

	// DeleteUser removes the user and all dependent rows (ip history, usage
	// logs, documents, payments) in one transaction.
	DeleteUser(ctx context.Context, email string) error

	GetIPUsage(ctx context.Context, ip string) (IPUsage, error)
	UserIPHistory(ctx context.Context, email string) ([]IPHistoryEntry, error)
	UserLogs(ctx context.Context, email string, limit int) ([]UsageLog, error)
	AllLogs(ctx context.Context, limit int) ([]UsageLog, error)
}
