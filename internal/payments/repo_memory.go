package payments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reviewer-backend/internal/accounting"
	"reviewer-backend/internal/audit"
)

// MemoryRepo implements Repo in memory for dev mode and tests. Plan grants
// go through the accounting store, mirroring the transactional coupling the
// Postgres repo has.
type MemoryRepo struct {
	mu       sync.Mutex
	payments map[int64]*Payment
	nextID   int64

	Accounts accounting.Store
	Audit    audit.Recorder
}

// NewMemoryRepo constructs an empty in-memory payments repo.
func NewMemoryRepo(accounts accounting.Store, recorder audit.Recorder) *MemoryRepo {
	return &MemoryRepo{
		payments: make(map[int64]*Payment),
		nextID:   1,
		Accounts: accounts,
		Audit:    recorder,
	}
}

func (r *MemoryRepo) Submit(ctx context.Context, in SubmitInput) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment := &Payment{
		ID:                 r.nextID,
		FullName:           in.FullName,
		Email:              in.Email,
		GcashRef:           in.GcashRef,
		PlanRequested:      in.PlanRequested,
		ReceiptStoragePath: in.ReceiptStoragePath,
		Status:             StatusPending,
		SubmittedAt:        time.Now().UTC(),
	}
	r.nextID++
	r.payments[payment.ID] = payment
	return *payment, nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id int64) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return *payment, nil
}

func (r *MemoryRepo) ListByEmail(ctx context.Context, email string) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Payment
	for _, p := range r.payments {
		if p.Email == email {
			out = append(out, *p)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryRepo) ListByStatus(ctx context.Context, status string, limit int) ([]Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Payment
	for _, p := range r.payments {
		if status == "" || p.Status == status {
			out = append(out, *p)
		}
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) Approve(ctx context.Context, res Resolution, plan string, questionsRemaining int, expiry *time.Time) (Payment, error) {
	payment, err := r.resolve(res, StatusApproved)
	if err != nil {
		return Payment{}, err
	}

	if _, err := r.Accounts.GetOrCreateUser(ctx, payment.Email, ""); err != nil {
		return Payment{}, err
	}
	if err := r.Accounts.ApplyPlan(ctx, payment.Email, plan, questionsRemaining, expiry); err != nil {
		return Payment{}, err
	}
	r.recordAudit(ctx, res.AdminUser, audit.ActionPaymentApproved,
		fmt.Sprintf("payment=%d email=%s plan=%s", payment.ID, payment.Email, plan))
	return payment, nil
}

func (r *MemoryRepo) Reject(ctx context.Context, res Resolution) (Payment, error) {
	payment, err := r.resolve(res, StatusRejected)
	if err != nil {
		return Payment{}, err
	}
	r.recordAudit(ctx, res.AdminUser, audit.ActionPaymentRejected,
		fmt.Sprintf("payment=%d email=%s", payment.ID, payment.Email))
	return payment, nil
}

// PurgeEmail drops every payment row for an email. Registered with the
// accounting memory store's delete hook so user deletion cascades the way
// the Postgres transaction does.
func (r *MemoryRepo) PurgeEmail(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, payment := range r.payments {
		if payment.Email == email {
			delete(r.payments, id)
		}
	}
}

// resolve performs the compare-and-set on status under the lock.
func (r *MemoryRepo) resolve(res Resolution, status string) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[res.PaymentID]
	if !ok {
		return Payment{}, ErrNotFound
	}
	if payment.Status != StatusPending {
		return Payment{}, fmt.Errorf("%w: status is %s", ErrAlreadyResolved, payment.Status)
	}
	now := time.Now().UTC()
	payment.Status = status
	payment.AdminNotes = res.AdminNotes
	payment.ApprovedAt = &now
	payment.ApprovedBy = res.AdminUser
	return *payment, nil
}

func (r *MemoryRepo) recordAudit(ctx context.Context, adminUser, actionType, details string) {
	if r.Audit == nil {
		return
	}
	_ = r.Audit.Record(ctx, audit.Action{
		AdminUser:  adminUser,
		ActionType: actionType,
		Details:    details,
	})
}

func sortNewestFirst(payments []Payment) {
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].SubmittedAt.Equal(payments[j].SubmittedAt) {
			return payments[i].ID > payments[j].ID
		}
		return payments[i].SubmittedAt.After(payments[j].SubmittedAt)
	})
}

var _ Repo = (*MemoryRepo)(nil)
