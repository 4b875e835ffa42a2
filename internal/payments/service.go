package payments

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"reviewer-backend/internal/accounting"
	"reviewer-backend/internal/shared/storage/object"
)

// Service validates submissions, stores receipt images, and resolves
// payments with the plan entitlement they purchase.
type Service struct {
	Repo  Repo
	Store object.ObjectStore
	Rules accounting.PlanRules
}

// NewService constructs the payments service.
func NewService(repo Repo, store object.ObjectStore, rules accounting.PlanRules) *Service {
	return &Service{Repo: repo, Store: store, Rules: rules}
}

// Submit records a new PENDING payment, storing the receipt image when one
// was uploaded.
func (s *Service) Submit(ctx context.Context, in SubmitInput, receipt io.Reader, receiptName string) (Payment, error) {
	in.PlanRequested = strings.ToUpper(strings.TrimSpace(in.PlanRequested))
	if in.PlanRequested != accounting.PlanPro && in.PlanRequested != accounting.PlanPremium {
		return Payment{}, fmt.Errorf("%w: plan %q is not purchasable", ErrConstraint, in.PlanRequested)
	}
	if strings.TrimSpace(in.FullName) == "" {
		return Payment{}, fmt.Errorf("%w: full name is required", ErrConstraint)
	}

	if receipt != nil {
		key, _, _, err := s.Store.Save(ctx, in.Email, receiptName, receipt)
		if err != nil {
			return Payment{}, fmt.Errorf("store receipt: %w", err)
		}
		in.ReceiptStoragePath = key
	}
	return s.Repo.Submit(ctx, in)
}

func (s *Service) GetByID(ctx context.Context, id int64) (Payment, error) {
	return s.Repo.GetByID(ctx, id)
}

func (s *Service) ListByEmail(ctx context.Context, email string) ([]Payment, error) {
	return s.Repo.ListByEmail(ctx, email)
}

func (s *Service) ListByStatus(ctx context.Context, status string, limit int) ([]Payment, error) {
	return s.Repo.ListByStatus(ctx, status, limit)
}

// Approve resolves the payment and grants the requested plan's full
// entitlement. The status flip and the grant commit together.
func (s *Service) Approve(ctx context.Context, res Resolution) (Payment, error) {
	payment, err := s.Repo.GetByID(ctx, res.PaymentID)
	if err != nil {
		return Payment{}, err
	}
	remaining, expiry, err := s.Rules.Entitlement(payment.PlanRequested, time.Now().UTC())
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return s.Repo.Approve(ctx, res, payment.PlanRequested, remaining, expiry)
}

// Reject resolves the payment without touching the user's plan.
func (s *Service) Reject(ctx context.Context, res Resolution) (Payment, error) {
	return s.Repo.Reject(ctx, res)
}

// OpenReceipt streams the stored receipt image for admin review.
func (s *Service) OpenReceipt(ctx context.Context, id int64) (io.ReadCloser, error) {
	payment, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.ReceiptStoragePath == "" {
		return nil, fmt.Errorf("%w: payment has no receipt", ErrNotFound)
	}
	return s.Store.Open(ctx, payment.ReceiptStoragePath)
}
