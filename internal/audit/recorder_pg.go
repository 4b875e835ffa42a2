package audit

import (
	"context"
	"database/sql"
	"time"
)

// PGRecorder implements Recorder using Postgres.
type PGRecorder struct {
	DB *sql.DB
}

// Record inserts an admin action row.
func (r *PGRecorder) Record(ctx context.Context, action Action) error {
	const query = `
INSERT INTO admin_actions (admin_user, action_type, details)
VALUES ($1, $2, $3)`
	_, err := r.DB.ExecContext(ctx, query, action.AdminUser, action.ActionType, nullableString(action.Details))
	return err
}

// List returns the newest actions, up to limit.
func (r *PGRecorder) List(ctx context.Context, limit int) ([]Action, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `
SELECT action_id, admin_user, action_time, action_type, details
FROM admin_actions
ORDER BY action_time DESC
LIMIT $1`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var a Action
		var details sql.NullString
		if err := rows.Scan(&a.ID, &a.AdminUser, &a.ActionTime, &a.ActionType, &details); err != nil {
			return nil, err
		}
		if details.Valid {
			a.Details = details.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertTx appends an admin action inside an existing transaction, so callers
// can keep the audit row atomic with the mutation it describes.
func InsertTx(ctx context.Context, tx *sql.Tx, action Action) error {
	const query = `
INSERT INTO admin_actions (admin_user, action_time, action_type, details)
VALUES ($1, $2, $3, $4)`
	when := action.ActionTime
	if when.IsZero() {
		when = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, query, action.AdminUser, when, action.ActionType, nullableString(action.Details))
	return err
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Recorder = (*PGRecorder)(nil)
