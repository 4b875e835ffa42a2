package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reviewer-backend/internal/audit"
	"reviewer-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres. Resolutions are compare-and-set on
// status so two admins racing on the same payment cannot both win.
type PGRepo struct {
	DB *sql.DB
}

const paymentColumns = `payment_id, full_name, email, gcash_ref, plan_requested, receipt_storage_path, status, admin_notes, submitted_at, approved_at, approved_by`

func (r *PGRepo) Submit(ctx context.Context, in SubmitInput) (Payment, error) {
	row := r.DB.QueryRowContext(ctx, `
INSERT INTO payments (full_name, email, gcash_ref, plan_requested, receipt_storage_path)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+paymentColumns,
		in.FullName, in.Email, nullableString(in.GcashRef), in.PlanRequested, in.ReceiptStoragePath)
	payment, err := scanPayment(row)
	if err != nil {
		return Payment{}, classify(err)
	}
	return payment, nil
}

func (r *PGRepo) GetByID(ctx context.Context, id int64) (Payment, error) {
	row := r.DB.QueryRowContext(ctx, `
SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1 LIMIT 1`, id)
	payment, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, classify(err)
	}
	return payment, nil
}

func (r *PGRepo) ListByEmail(ctx context.Context, email string) ([]Payment, error) {
	return r.list(ctx, `
SELECT `+paymentColumns+` FROM payments WHERE email = $1 ORDER BY submitted_at DESC`, email)
}

func (r *PGRepo) ListByStatus(ctx context.Context, status string, limit int) ([]Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if status == "" {
		return r.list(ctx, `
SELECT `+paymentColumns+` FROM payments ORDER BY submitted_at DESC LIMIT $1`, limit)
	}
	return r.list(ctx, `
SELECT `+paymentColumns+` FROM payments WHERE status = $1 ORDER BY submitted_at DESC LIMIT $2`, status, limit)
}

func (r *PGRepo) Approve(ctx context.Context, res Resolution, plan string, questionsRemaining int, expiry *time.Time) (Payment, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Payment{}, classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `
UPDATE payments SET status = $1, admin_notes = $2, approved_at = now(), approved_by = $3
WHERE payment_id = $4 AND status = $5
RETURNING `+paymentColumns,
		StatusApproved, nullableString(res.AdminNotes), res.AdminUser, res.PaymentID, StatusPending)
	var payment Payment
	payment, err = scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = r.resolveMiss(ctx, tx, res.PaymentID)
		} else {
			err = classify(err)
		}
		return Payment{}, err
	}

	// The payer may never have hit the app before paying, so this upsert
	// also serves as account creation.
	if _, err = tx.ExecContext(ctx, `
INSERT INTO users (email, plan_status, questions_remaining, premium_expiry)
VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE
SET plan_status = EXCLUDED.plan_status,
    questions_remaining = EXCLUDED.questions_remaining,
    premium_expiry = EXCLUDED.premium_expiry,
    updated_at = now()`, payment.Email, plan, questionsRemaining, expiry); err != nil {
		err = classify(err)
		return Payment{}, err
	}

	if err = audit.InsertTx(ctx, tx, audit.Action{
		AdminUser:  res.AdminUser,
		ActionType: audit.ActionPaymentApproved,
		Details:    fmt.Sprintf("payment=%d email=%s plan=%s", payment.ID, payment.Email, plan),
	}); err != nil {
		err = classify(err)
		return Payment{}, err
	}

	if err = tx.Commit(); err != nil {
		return Payment{}, classify(err)
	}
	return payment, nil
}

func (r *PGRepo) Reject(ctx context.Context, res Resolution) (Payment, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Payment{}, classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `
UPDATE payments SET status = $1, admin_notes = $2, approved_at = now(), approved_by = $3
WHERE payment_id = $4 AND status = $5
RETURNING `+paymentColumns,
		StatusRejected, nullableString(res.AdminNotes), res.AdminUser, res.PaymentID, StatusPending)
	var payment Payment
	payment, err = scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = r.resolveMiss(ctx, tx, res.PaymentID)
		} else {
			err = classify(err)
		}
		return Payment{}, err
	}

	if err = audit.InsertTx(ctx, tx, audit.Action{
		AdminUser:  res.AdminUser,
		ActionType: audit.ActionPaymentRejected,
		Details:    fmt.Sprintf("payment=%d email=%s", payment.ID, payment.Email),
	}); err != nil {
		err = classify(err)
		return Payment{}, err
	}

	if err = tx.Commit(); err != nil {
		return Payment{}, classify(err)
	}
	return payment, nil
}

// resolveMiss tells apart a missing payment from one another admin resolved
// first.
func (r *PGRepo) resolveMiss(ctx context.Context, tx *sql.Tx, id int64) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM payments WHERE payment_id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return classify(err)
	}
	return fmt.Errorf("%w: status is %s", ErrAlreadyResolved, status)
}

func (r *PGRepo) list(ctx context.Context, query string, args ...any) ([]Payment, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, payment)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (Payment, error) {
	var p Payment
	var gcashRef, adminNotes, approvedBy sql.NullString
	var approvedAt sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.FullName,
		&p.Email,
		&gcashRef,
		&p.PlanRequested,
		&p.ReceiptStoragePath,
		&p.Status,
		&adminNotes,
		&p.SubmittedAt,
		&approvedAt,
		&approvedBy,
	)
	if err != nil {
		return Payment{}, err
	}
	p.GcashRef = gcashRef.String
	p.AdminNotes = adminNotes.String
	p.ApprovedBy = approvedBy.String
	if approvedAt.Valid {
		t := approvedAt.Time
		p.ApprovedAt = &t
	}
	return p, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if db.IsConstraintViolation(err) {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	if db.IsUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

var _ Repo = (*PGRepo)(nil)
