package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newPGRepoMock(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func paymentRows(id int64, status string) *sqlmock.Rows {
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"payment_id", "full_name", "email", "gcash_ref", "plan_requested",
		"receipt_storage_path", "status", "admin_notes", "submitted_at", "approved_at", "approved_by",
	})
	if status == StatusPending {
		return rows.AddRow(id, "Juan dela Cruz", "a@example.com", "REF-123", "PRO", "", status, nil, now, nil, nil)
	}
	return rows.AddRow(id, "Juan dela Cruz", "a@example.com", "REF-123", "PRO", "", status, "done", now, now, "admin")
}

func TestPGApproveAppliesPlanAndAuditInOneTx(t *testing.T) {
	repo, mock := newPGRepoMock(t)

	expiry := time.Now().UTC().Add(30 * 24 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE payments SET status").
		WithArgs(StatusApproved, "ok", "admin", int64(7), StatusPending).
		WillReturnRows(paymentRows(7, StatusPending))
	mock.ExpectExec("INSERT INTO users").
		WithArgs("a@example.com", "PREMIUM", 9999, expiry).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO admin_actions").
		WithArgs("admin", sqlmock.AnyArg(), "PAYMENT_APPROVED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	payment, err := repo.Approve(context.Background(),
		Resolution{PaymentID: 7, AdminUser: "admin", AdminNotes: "ok"}, "PREMIUM", 9999, &expiry)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if payment.ID != 7 {
		t.Fatalf("ID = %d, want 7", payment.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGApproveLosesRaceReturnsAlreadyResolved(t *testing.T) {
	repo, mock := newPGRepoMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE payments SET status").
		WithArgs(StatusApproved, nil, "admin", int64(7), StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"payment_id"}))
	mock.ExpectQuery("SELECT status FROM payments").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(StatusRejected))
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(),
		Resolution{PaymentID: 7, AdminUser: "admin"}, "PRO", 100, nil)
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("err = %v, want ErrAlreadyResolved", err)
	}
}
