package accounting

import (
	"context"
	"fmt"
	"time"

	"reviewer-backend/internal/audit"
	"reviewer-backend/internal/shared/telemetry"
)

// Service layers audit recording and plan rules over the raw store. Admin
// mutations go through here so every one leaves an audit row.
type Service struct {
	store Store
	audit audit.Recorder
	rules PlanRules
}

// NewService constructs the accounting service.
func NewService(store Store, recorder audit.Recorder, rules PlanRules) *Service {
	return &Service{store: store, audit: recorder, rules: rules}
}

// Rules exposes the active plan rules.
func (s *Service) Rules() PlanRules { return s.rules }

func (s *Service) RecordUsage(ctx context.Context, in RecordUsageInput) (Receipt, error) {
	return s.store.RecordUsage(ctx, in)
}

func (s *Service) GetOrCreateUser(ctx context.Context, email, ip string) (User, error) {
	return s.store.GetOrCreateUser(ctx, email, ip)
}

func (s *Service) GetUser(ctx context.Context, email string) (User, error) {
	return s.store.GetUser(ctx, email)
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// SetUserBlocked flips the account block flag and records who did it.
func (s *Service) SetUserBlocked(ctx context.Context, adminUser, email string, blocked bool) error {
	if err := s.store.SetUserBlocked(ctx, email, blocked); err != nil {
		return err
	}
	actionType := audit.ActionUserBlocked
	if !blocked {
		actionType = audit.ActionUserUnblocked
	}
	s.record(ctx, adminUser, actionType, fmt.Sprintf("email=%s", email))
	return nil
}

// SetIPBlocked flips the block flag on an IP, creating its row if needed.
func (s *Service) SetIPBlocked(ctx context.Context, adminUser, ip string, blocked bool) error {
	if err := s.store.SetIPBlocked(ctx, ip, blocked); err != nil {
		return err
	}
	actionType := audit.ActionIPBlocked
	if !blocked {
		actionType = audit.ActionIPUnblocked
	}
	s.record(ctx, adminUser, actionType, fmt.Sprintf("ip=%s", ip))
	return nil
}

// AdjustQuota sets questions_remaining to an absolute value.
func (s *Service) AdjustQuota(ctx context.Context, adminUser, email string, questionsRemaining int) error {
	if err := s.store.AdjustQuota(ctx, email, questionsRemaining); err != nil {
		return err
	}
	s.record(ctx, adminUser, audit.ActionQuotaAdjusted,
		fmt.Sprintf("email=%s remaining=%d", email, questionsRemaining))
	return nil
}

// ChangePlan moves the user to plan with the plan's full entitlement. The
// entitlement replaces the current balance rather than adding to it.
func (s *Service) ChangePlan(ctx context.Context, adminUser, email, plan string) (User, error) {
	remaining, expiry, err := s.rules.Entitlement(plan, time.Now().UTC())
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	if err := s.store.ApplyPlan(ctx, email, plan, remaining, expiry); err != nil {
		return User{}, err
	}
	s.record(ctx, adminUser, audit.ActionPlanChanged, fmt.Sprintf("email=%s plan=%s", email, plan))
	return s.store.GetUser(ctx, email)
}

// DeleteUser removes the account and everything keyed to it.
func (s *Service) DeleteUser(ctx context.Context, adminUser, email string) error {
	if err := s.store.DeleteUser(ctx, email); err != nil {
		return err
	}
	s.record(ctx, adminUser, audit.ActionUserDeleted, fmt.Sprintf("email=%s", email))
	return nil
}

func (s *Service) GetIPUsage(ctx context.Context, ip string) (IPUsage, error) {
	return s.store.GetIPUsage(ctx, ip)
}

func (s *Service) UserIPHistory(ctx context.Context, email string) ([]IPHistoryEntry, error) {
	return s.store.UserIPHistory(ctx, email)
}

func (s *Service) UserLogs(ctx context.Context, email string, limit int) ([]UsageLog, error) {
	return s.store.UserLogs(ctx, email, limit)
}

func (s *Service) AllLogs(ctx context.Context, limit int) ([]UsageLog, error) {
	return s.store.AllLogs(ctx, limit)
}

// record appends an audit row. Audit failures are logged, not surfaced; the
// admin operation itself already committed.
func (s *Service) record(ctx context.Context, adminUser, actionType, details string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, audit.Action{
		AdminUser:  adminUser,
		ActionType: actionType,
		Details:    details,
	})
	if err != nil {
		telemetry.Error("audit record failed", map[string]any{
			"err":        err.Error(),
			"actionType": actionType,
			"adminUser":  adminUser,
		})
	}
}
