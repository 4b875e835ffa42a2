package accounting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reviewer-backend/internal/shared/storage/db"
)

// PGStore implements Store on Postgres. Quota counters are only ever moved
// under a row lock inside a transaction.
type PGStore struct {
	DB    *sql.DB
	Rules PlanRules
}

// NewPGStore constructs a Postgres-backed accounting store.
func NewPGStore(database *sql.DB, rules PlanRules) *PGStore {
	return &PGStore{DB: database, Rules: rules}
}

const userColumns = `email, ip_address, plan_status, questions_used_total, questions_remaining, premium_expiry, is_blocked, created_at, updated_at`

func (s *PGStore) RecordUsage(ctx context.Context, in RecordUsageInput) (Receipt, error) {
	if in.Questions <= 0 {
		in.Questions = 1
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Receipt{}, classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Upsert-and-lock the per-IP aggregate. The conflict update is a no-op
	// write so RETURNING always yields the locked row.
	var ipTotal int
	var ipBlocked bool
	err = tx.QueryRowContext(ctx, `
INSERT INTO ip_usage (ip_address) VALUES ($1)
ON CONFLICT (ip_address) DO UPDATE SET last_seen = now()
RETURNING questions_used_total, is_blocked`, in.IP).Scan(&ipTotal, &ipBlocked)
	if err != nil {
		return Receipt{}, classify(err)
	}
	if ipBlocked {
		err = ErrIPBlocked
		return Receipt{}, err
	}

	receipt := Receipt{IPTotal: ipTotal + in.Questions}

	if in.Email != "" {
		var user User
		user, err = lockOrCreateUser(ctx, tx, in.Email, in.IP, s.Rules)
		if err != nil {
			return Receipt{}, err
		}
		if user.IsBlocked {
			err = ErrBlocked
			return Receipt{}, err
		}

		now := time.Now().UTC()
		user, err = lapsePremiumLocked(ctx, tx, user, now)
		if err != nil {
			return Receipt{}, err
		}

		if user.PremiumActive(now) {
			// Premium consumption is unmetered while unexpired.
			if _, err = tx.ExecContext(ctx, `
UPDATE users SET questions_used_total = questions_used_total + $1, ip_address = $2, updated_at = now()
WHERE email = $3`, in.Questions, in.IP, in.Email); err != nil {
				return Receipt{}, classify(err)
			}
			receipt.Unlimited = true
			receipt.Remaining = user.QuestionsRemaining
		} else {
			if user.QuestionsRemaining < in.Questions {
				err = ErrQuotaExceeded
				return Receipt{}, err
			}
			if _, err = tx.ExecContext(ctx, `
UPDATE users SET questions_remaining = questions_remaining - $1,
                 questions_used_total = questions_used_total + $1,
                 ip_address = $2, updated_at = now()
WHERE email = $3 AND questions_remaining >= $1`, in.Questions, in.IP, in.Email); err != nil {
				return Receipt{}, classify(err)
			}
			receipt.Remaining = user.QuestionsRemaining - in.Questions
		}
		receipt.Email = in.Email
		receipt.Plan = user.PlanStatus

		if _, err = tx.ExecContext(ctx, `
INSERT INTO user_ip_history (email, ip_address) VALUES ($1, $2)
ON CONFLICT (email, ip_address) DO UPDATE SET last_seen = now()`, in.Email, in.IP); err != nil {
			return Receipt{}, classify(err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
INSERT INTO usage_logs (email, ip_address, questions_generated, source_type, category, difficulty, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		nullableString(in.Email), in.IP, in.Questions,
		nullableString(in.SourceType), nullableString(in.Category),
		nullableString(in.Difficulty), nullableString(in.Notes)); err != nil {
		return Receipt{}, classify(err)
	}

	autoBlock := s.Rules.IPAbuseThreshold > 0 && receipt.IPTotal >= s.Rules.IPAbuseThreshold
	if _, err = tx.ExecContext(ctx, `
UPDATE ip_usage SET questions_used_total = questions_used_total + $1,
                    is_blocked = is_blocked OR $2,
                    last_seen = now()
WHERE ip_address = $3`, in.Questions, autoBlock, in.IP); err != nil {
		return Receipt{}, classify(err)
	}

	if err = tx.Commit(); err != nil {
		return Receipt{}, classify(err)
	}
	return receipt, nil
}

func (s *PGStore) GetOrCreateUser(ctx context.Context, email, ip string) (User, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return User{}, classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	user, err := lockOrCreateUser(ctx, tx, email, ip, s.Rules)
	if err != nil {
		return User{}, err
	}
	user, err = lapsePremiumLocked(ctx, tx, user, time.Now().UTC())
	if err != nil {
		return User{}, err
	}
	if _, err = tx.ExecContext(ctx, `
INSERT INTO user_ip_history (email, ip_address) VALUES ($1, $2)
ON CONFLICT (email, ip_address) DO UPDATE SET last_seen = now()`, email, ip); err != nil {
		return User{}, classify(err)
	}
	if _, err = tx.ExecContext(ctx, `
UPDATE users SET ip_address = $1, updated_at = now() WHERE email = $2`, ip, email); err != nil {
		return User{}, classify(err)
	}
	user.IPAddress = ip

	if err = tx.Commit(); err != nil {
		return User{}, classify(err)
	}
	return user, nil
}

func (s *PGStore) GetUser(ctx context.Context, email string) (User, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT `+userColumns+` FROM users WHERE email = $1 LIMIT 1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, classify(err)
	}
	return user, nil
}

func (s *PGStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func (s *PGStore) SetUserBlocked(ctx context.Context, email string, blocked bool) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE users SET is_blocked = $1, updated_at = now() WHERE email = $2`, blocked, email)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetIPBlocked(ctx context.Context, ip string, blocked bool) error {
	// Blocking an IP never seen before still creates the row, so the flag
	// holds when traffic arrives.
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO ip_usage (ip_address, is_blocked) VALUES ($1, $2)
ON CONFLICT (ip_address) DO UPDATE SET is_blocked = $2, last_seen = now()`, ip, blocked)
	return classify(err)
}

func (s *PGStore) AdjustQuota(ctx context.Context, email string, questionsRemaining int) error {
	if questionsRemaining < 0 {
		return fmt.Errorf("%w: quota must not be negative", ErrConstraint)
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE users SET questions_remaining = $1, updated_at = now() WHERE email = $2`, questionsRemaining, email)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ApplyPlan(ctx context.Context, email, plan string, questionsRemaining int, expiry *time.Time) error {
	if !ValidPlan(plan) {
		return fmt.Errorf("%w: unknown plan %q", ErrConstraint, plan)
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE users SET plan_status = $1, questions_remaining = $2, premium_expiry = $3, updated_at = now()
WHERE email = $4`, plan, questionsRemaining, expiry, email)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteUser(ctx context.Context, email string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// usage_logs and payments carry no FK so the audit trail survives schema
	// checks; account removal still clears them explicitly.
	for _, stmt := range []string{
		`DELETE FROM usage_logs WHERE email = $1`,
		`DELETE FROM payments WHERE email = $1`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, email); err != nil {
			return classify(err)
		}
	}

	// user_ip_history and user_documents cascade from the users row.
	var res sql.Result
	res, err = tx.ExecContext(ctx, `DELETE FROM users WHERE email = $1`, email)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *PGStore) GetIPUsage(ctx context.Context, ip string) (IPUsage, error) {
	var u IPUsage
	err := s.DB.QueryRowContext(ctx, `
SELECT ip_address, questions_used_total, is_blocked, first_seen, last_seen
FROM ip_usage WHERE ip_address = $1 LIMIT 1`, ip).
		Scan(&u.IPAddress, &u.QuestionsUsedTotal, &u.IsBlocked, &u.FirstSeen, &u.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return IPUsage{}, ErrNotFound
		}
		return IPUsage{}, classify(err)
	}
	return u, nil
}

func (s *PGStore) UserIPHistory(ctx context.Context, email string) ([]IPHistoryEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, email, ip_address, first_seen, last_seen
FROM user_ip_history WHERE email = $1 ORDER BY last_seen DESC`, email)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []IPHistoryEntry
	for rows.Next() {
		var e IPHistoryEntry
		if err := rows.Scan(&e.ID, &e.Email, &e.IPAddress, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, classify(err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) UserLogs(ctx context.Context, email string, limit int) ([]UsageLog, error) {
	return s.queryLogs(ctx, `
SELECT event_id, email, ip_address, event_time, questions_generated, source_type, category, difficulty, notes
FROM usage_logs WHERE email = $1 ORDER BY event_time DESC LIMIT $2`, email, normalizeLimit(limit, 50))
}

func (s *PGStore) AllLogs(ctx context.Context, limit int) ([]UsageLog, error) {
	return s.queryLogs(ctx, `
SELECT event_id, email, ip_address, event_time, questions_generated, source_type, category, difficulty, notes
FROM usage_logs ORDER BY event_time DESC LIMIT $1`, normalizeLimit(limit, 100))
}

func (s *PGStore) queryLogs(ctx context.Context, query string, args ...any) ([]UsageLog, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []UsageLog
	for rows.Next() {
		var l UsageLog
		var email, sourceType, category, difficulty, notes sql.NullString
		if err := rows.Scan(&l.EventID, &email, &l.IPAddress, &l.EventTime,
			&l.QuestionsGenerated, &sourceType, &category, &difficulty, &notes); err != nil {
			return nil, classify(err)
		}
		l.Email = email.String
		l.SourceType = sourceType.String
		l.Category = category.String
		l.Difficulty = difficulty.String
		l.Notes = notes.String
		out = append(out, l)
	}
	return out, rows.Err()
}

// lockOrCreateUser takes a FOR UPDATE lock on the user row, inserting it with
// free-plan defaults when missing.
func lockOrCreateUser(ctx context.Context, tx *sql.Tx, email, ip string, rules PlanRules) (User, error) {
	row := tx.QueryRowContext(ctx, `
SELECT `+userColumns+` FROM users WHERE email = $1 FOR UPDATE`, email)
	user, err := scanUser(row)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, classify(err)
	}

	row = tx.QueryRowContext(ctx, `
INSERT INTO users (email, ip_address, plan_status, questions_remaining)
VALUES ($1, $2, $3, $4)
RETURNING `+userColumns, email, ip, PlanFree, rules.FreeQuestionLimit)
	user, err = scanUser(row)
	if err != nil {
		return User{}, classify(err)
	}
	return user, nil
}

// lapsePremiumLocked reverts an expired premium user to the free plan with an
// empty pool. The caller must hold the row lock.
func lapsePremiumLocked(ctx context.Context, tx *sql.Tx, user User, now time.Time) (User, error) {
	if user.PlanStatus != PlanPremium || user.PremiumExpiry == nil || user.PremiumExpiry.After(now) {
		return user, nil
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE users SET plan_status = $1, questions_remaining = 0, premium_expiry = NULL, updated_at = now()
WHERE email = $2`, PlanFree, user.Email); err != nil {
		return User{}, classify(err)
	}
	user.PlanStatus = PlanFree
	user.QuestionsRemaining = 0
	user.PremiumExpiry = nil
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	var ip sql.NullString
	var expiry sql.NullTime
	err := row.Scan(
		&user.Email,
		&ip,
		&user.PlanStatus,
		&user.QuestionsUsedTotal,
		&user.QuestionsRemaining,
		&expiry,
		&user.IsBlocked,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	if ip.Valid {
		user.IPAddress = ip.String
	}
	if expiry.Valid {
		t := expiry.Time
		user.PremiumExpiry = &t
	}
	return user, nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 || limit > 1000 {
		return fallback
	}
	return limit
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// classify maps low-level store errors onto the accounting error kinds.
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

var _ Store = (*PGStore)(nil)
