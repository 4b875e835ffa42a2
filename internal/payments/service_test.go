package payments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"reviewer-backend/internal/accounting"
	"reviewer-backend/internal/audit"
)

func newTestService() (*Service, *accounting.MemoryStore, *audit.MemoryRecorder) {
	accounts := accounting.NewMemoryStore(accounting.DefaultPlanRules())
	recorder := audit.NewMemoryRecorder()
	repo := NewMemoryRepo(accounts, recorder)
	return NewService(repo, nil, accounting.DefaultPlanRules()), accounts, recorder
}

func submitPending(t *testing.T, svc *Service, email, plan string) Payment {
	t.Helper()
	payment, err := svc.Submit(context.Background(), SubmitInput{
		FullName:      "Juan dela Cruz",
		Email:         email,
		GcashRef:      "REF-123",
		PlanRequested: plan,
	}, nil, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if payment.Status != StatusPending {
		t.Fatalf("Status = %q, want PENDING", payment.Status)
	}
	return payment
}

func TestSubmitRejectsUnpurchasablePlan(t *testing.T) {
	svc, _, _ := newTestService()

	for _, plan := range []string{"FREE", "GOLD", ""} {
		_, err := svc.Submit(context.Background(), SubmitInput{
			FullName: "Juan", Email: "a@example.com", PlanRequested: plan,
		}, nil, "")
		if !errors.Is(err, ErrConstraint) {
			t.Fatalf("plan %q: err = %v, want ErrConstraint", plan, err)
		}
	}
}

func TestApproveGrantsPlanAndAudits(t *testing.T) {
	svc, accounts, recorder := newTestService()
	ctx := context.Background()

	payment := submitPending(t, svc, "a@example.com", "PRO")

	resolved, err := svc.Approve(ctx, Resolution{PaymentID: payment.ID, AdminUser: "admin", AdminNotes: "gcash verified"})
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if resolved.Status != StatusApproved || resolved.ApprovedBy != "admin" || resolved.ApprovedAt == nil {
		t.Fatalf("resolved = %+v", resolved)
	}

	user, err := accounts.GetUser(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.PlanStatus != accounting.PlanPro || user.QuestionsRemaining != 100 {
		t.Fatalf("user = %+v", user)
	}

	actions, _ := recorder.List(ctx, 10)
	if len(actions) != 1 || actions[0].ActionType != audit.ActionPaymentApproved {
		t.Fatalf("actions = %+v", actions)
	}
	if !strings.Contains(actions[0].Details, "a@example.com") {
		t.Fatalf("Details = %q", actions[0].Details)
	}
}

func TestApprovePremiumSetsExpiry(t *testing.T) {
	svc, accounts, _ := newTestService()
	ctx := context.Background()

	payment := submitPending(t, svc, "p@example.com", "PREMIUM")
	if _, err := svc.Approve(ctx, Resolution{PaymentID: payment.ID, AdminUser: "admin"}); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	user, _ := accounts.GetUser(ctx, "p@example.com")
	if user.PlanStatus != accounting.PlanPremium || user.PremiumExpiry == nil {
		t.Fatalf("user = %+v", user)
	}
}

func TestRejectLeavesPlanUntouched(t *testing.T) {
	svc, accounts, recorder := newTestService()
	ctx := context.Background()

	if _, err := accounts.GetOrCreateUser(ctx, "a@example.com", "1.2.3.4"); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	payment := submitPending(t, svc, "a@example.com", "PRO")

	resolved, err := svc.Reject(ctx, Resolution{PaymentID: payment.ID, AdminUser: "admin", AdminNotes: "no matching gcash transfer"})
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if resolved.Status != StatusRejected || resolved.AdminNotes != "no matching gcash transfer" {
		t.Fatalf("resolved = %+v", resolved)
	}

	user, _ := accounts.GetUser(ctx, "a@example.com")
	if user.PlanStatus != accounting.PlanFree {
		t.Fatalf("PlanStatus = %q, want FREE", user.PlanStatus)
	}
	actions, _ := recorder.List(ctx, 10)
	if len(actions) != 1 || actions[0].ActionType != audit.ActionPaymentRejected {
		t.Fatalf("actions = %+v", actions)
	}
}

func TestResolutionHappensExactlyOnce(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	payment := submitPending(t, svc, "a@example.com", "PRO")

	if _, err := svc.Reject(ctx, Resolution{PaymentID: payment.ID, AdminUser: "admin"}); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := svc.Approve(ctx, Resolution{PaymentID: payment.ID, AdminUser: "admin"}); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("err = %v, want ErrAlreadyResolved", err)
	}
	if _, err := svc.Reject(ctx, Resolution{PaymentID: payment.ID, AdminUser: "admin"}); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("err = %v, want ErrAlreadyResolved", err)
	}
}

func TestConcurrentApproveSingleWinner(t *testing.T) {
	svc, _, recorder := newTestService()
	ctx := context.Background()

	payment := submitPending(t, svc, "a@example.com", "PRO")

	var wg sync.WaitGroup
	wins := make(chan struct{}, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Approve(ctx, Resolution{PaymentID: payment.ID, AdminUser: "admin"}); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var n int
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("approve won %d times, want exactly 1", n)
	}
	actions, _ := recorder.List(ctx, 50)
	if len(actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(actions))
	}
}

func TestResolveUnknownPayment(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.Approve(context.Background(), Resolution{PaymentID: 99, AdminUser: "admin"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
