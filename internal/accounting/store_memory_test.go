package accounting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(DefaultPlanRules())
}

func TestRecordUsageCreatesFreeUserAndDecrements(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	receipt, err := store.RecordUsage(ctx, RecordUsageInput{Email: "a@example.com", IP: "1.2.3.4", Questions: 5})
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if receipt.Remaining != 10 {
		t.Fatalf("Remaining = %d, want 10", receipt.Remaining)
	}
	if receipt.Plan != PlanFree {
		t.Fatalf("Plan = %q, want FREE", receipt.Plan)
	}
	if receipt.IPTotal != 5 {
		t.Fatalf("IPTotal = %d, want 5", receipt.IPTotal)
	}

	user, err := store.GetUser(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.QuestionsRemaining != 10 || user.QuestionsUsedTotal != 5 {
		t.Fatalf("user counters = remaining %d used %d", user.QuestionsRemaining, user.QuestionsUsedTotal)
	}
}

func TestRecordUsageQuotaExceededLeavesNoTrace(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.RecordUsage(ctx, RecordUsageInput{Email: "a@example.com", IP: "1.2.3.4", Questions: 15}); err != nil {
		t.Fatalf("drain quota: %v", err)
	}

	_, err := store.RecordUsage(ctx, RecordUsageInput{Email: "a@example.com", IP: "1.2.3.4", Questions: 1})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}

	// The rejected attempt must not append a usage log or move counters.
	logs, err := store.UserLogs(ctx, "a@example.com", 10)
	if err != nil {
		t.Fatalf("UserLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("len(logs) = %d, want 1", len(logs))
	}
	user, _ := store.GetUser(ctx, "a@example.com")
	if user.QuestionsUsedTotal != 15 {
		t.Fatalf("QuestionsUsedTotal = %d, want 15", user.QuestionsUsedTotal)
	}
}

func TestRecordUsagePartialQuotaRejectsWholeBatch(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.RecordUsage(ctx, RecordUsageInput{Email: "a@example.com", IP: "1.2.3.4", Questions: 14}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := store.RecordUsage(ctx, RecordUsageInput{Email: "a@example.com", IP: "1.2.3.4", Questions: 2})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	user, _ := store.GetUser(ctx, "a@example.com")
	if user.QuestionsRemaining != 1 {
		t.Fatalf("QuestionsRemaining = %d, want 1 (no partial decrement)", user.QuestionsRemaining)
	}
}

func TestRecordUsageBlockedUser(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.GetOrCreateUser(ctx, "a@example.com", "1.2.3.4"); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if err := store.SetUserBlocked(ctx, "a@example.com", true); err != nil {
		t.Fatalf("SetUserBlocked: %v", err)
	}

	_, err := store.RecordUsage(ctx, RecordUsageInput{Email: "a@example.com", IP: "1.2.3.4", Questions: 1})
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
}

func TestRecordUsageBlockedIPBeforeQuota(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if err := store.SetIPBlocked(ctx, "9.9.9.9", true); err != nil {
		t.Fatalf("SetIPBlocked: %v", err)
	}

	_, err := store.RecordUsage(ctx, RecordUsageInput{Email: "a@example.com", IP: "9.9.9.9", Questions: 1})
	if !errors.Is(err, ErrIPBlocked) {
		t.Fatalf("err = %v, want ErrIPBlocked", err)
	}
	// An attempt from a blocked IP never reaches the user row.
	if _, err := store.GetUser(ctx, "a@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUser err = %v, want ErrNotFound", err)
	}
	logs, _ := store.AllLogs(ctx, 10)
	if len(logs) != 0 {
		t.Fatalf("len(logs) = %d, want 0", len(logs))
	}
}

func TestRecordUsageAnonymousTracksIPOnly(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	receipt, err := store.RecordUsage(ctx, RecordUsageInput{IP: "5.6.7.8", Questions: 3})
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if receipt.Email != "" || receipt.IPTotal != 3 {
		t.Fatalf("receipt = %+v", receipt)
	}
	usage, err := store.GetIPUsage(ctx, "5.6.7.8")
	if err != nil {
		t.Fatalf("GetIPUsage: %v", err)
	}
	if usage.QuestionsUsedTotal != 3 {
		t.Fatalf("QuestionsUsedTotal = %d, want 3", usage.QuestionsUsedTotal)
	}
}

func TestRecordUsageAutoBlocksAbusiveIP(t *testing.T) {
	rules := DefaultPlanRules()
	rules.IPAbuseThreshold = 10
	store := NewMemoryStore(rules)
	ctx := context.Background()

	if _, err := store.RecordUsage(ctx, RecordUsageInput{IP: "5.6.7.8", Questions: 10}); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	usage, _ := store.GetIPUsage(ctx, "5.6.7.8")
	if !usage.IsBlocked {
		t.Fatal("ip not auto-blocked at threshold")
	}
	if _, err := store.RecordUsage(ctx, RecordUsageInput{IP: "5.6.7.8", Questions: 1}); !errors.Is(err, ErrIPBlocked) {
		t.Fatalf("err = %v, want ErrIPBlocked", err)
	}
}

func TestPremiumUsageIsUnmetered(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.SetNow(func() time.Time { return now })

	if _, err := store.GetOrCreateUser(ctx, "p@example.com", "1.1.1.1"); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	expiry := now.Add(30 * 24 * time.Hour)
	if err := store.ApplyPlan(ctx, "p@example.com", PlanPremium, 9999, &expiry); err != nil {
		t.Fatalf("ApplyPlan: %v", err)
	}

	receipt, err := store.RecordUsage(ctx, RecordUsageInput{Email: "p@example.com", IP: "1.1.1.1", Questions: 50})
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if !receipt.Unlimited {
		t.Fatal("receipt not marked unlimited")
	}
	user, _ := store.GetUser(ctx, "p@example.com")
	if user.QuestionsRemaining != 9999 {
		t.Fatalf("QuestionsRemaining = %d, want untouched 9999", user.QuestionsRemaining)
	}
	if user.QuestionsUsedTotal != 50 {
		t.Fatalf("QuestionsUsedTotal = %d, want 50", user.QuestionsUsedTotal)
	}
}

func TestExpiredPremiumLapsesToFreeWithZeroRemaining(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.SetNow(func() time.Time { return now })

	if _, err := store.GetOrCreateUser(ctx, "p@example.com", "1.1.1.1"); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	expiry := now.Add(24 * time.Hour)
	if err := store.ApplyPlan(ctx, "p@example.com", PlanPremium, 9999, &expiry); err != nil {
		t.Fatalf("ApplyPlan: %v", err)
	}

	store.SetNow(func() time.Time { return now.Add(48 * time.Hour) })

	_, err := store.RecordUsage(ctx, RecordUsageInput{Email: "p@example.com", IP: "1.1.1.1", Questions: 1})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded after lapse", err)
	}
	user, _ := store.GetUser(ctx, "p@example.com")
	if user.PlanStatus != PlanFree || user.QuestionsRemaining != 0 || user.PremiumExpiry != nil {
		t.Fatalf("lapsed user = %+v", user)
	}
}

func TestDeleteUserRemovesDependentRows(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.RecordUsage(ctx, RecordUsageInput{Email: "a@example.com", IP: "1.2.3.4", Questions: 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.DeleteUser(ctx, "a@example.com"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	if _, err := store.GetUser(ctx, "a@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUser err = %v, want ErrNotFound", err)
	}
	history, _ := store.UserIPHistory(ctx, "a@example.com")
	if len(history) != 0 {
		t.Fatalf("ip history survived delete: %d rows", len(history))
	}
	logs, _ := store.UserLogs(ctx, "a@example.com", 10)
	if len(logs) != 0 {
		t.Fatalf("usage logs survived delete: %d rows", len(logs))
	}
	// The IP aggregate is shared across users and stays.
	if _, err := store.GetIPUsage(ctx, "1.2.3.4"); err != nil {
		t.Fatalf("GetIPUsage: %v", err)
	}
}

func TestConcurrentRecordUsageNeverOverdraws(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	granted := make(chan struct{}, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.RecordUsage(ctx, RecordUsageInput{Email: "a@example.com", IP: "1.2.3.4", Questions: 1}); err == nil {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	var n int
	for range granted {
		n++
	}
	if n != 15 {
		t.Fatalf("granted %d requests, want exactly the free quota of 15", n)
	}
	user, _ := store.GetUser(ctx, "a@example.com")
	if user.QuestionsRemaining != 0 {
		t.Fatalf("QuestionsRemaining = %d, want 0", user.QuestionsRemaining)
	}
}

func TestAdjustQuotaRejectsNegative(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.GetOrCreateUser(ctx, "a@example.com", "1.2.3.4"); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if err := store.AdjustQuota(ctx, "a@example.com", -1); !errors.Is(err, ErrConstraint) {
		t.Fatalf("err = %v, want ErrConstraint", err)
	}
	if err := store.AdjustQuota(ctx, "missing@example.com", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
