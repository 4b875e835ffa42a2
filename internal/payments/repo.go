package payments

import (
	"context"
	"time"
)

// Repo owns payment rows. Approve and Reject resolve a PENDING payment
// exactly once; concurrent resolutions lose with ErrAlreadyResolved.
type Repo interface {
	Submit(ctx context.Context, in SubmitInput) (Payment, error)
	GetByID(ctx context.Context, id int64) (Payment, error)
	ListByEmail(ctx context.Context, email string) ([]Payment, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]Payment, error)

	// Approve flips the payment to APPROVED and applies the granted plan to
	// the user atomically, creating the user row if it does not exist yet.
	Approve(ctx context.Context, res Resolution, plan string, questionsRemaining int, expiry *time.Time) (Payment, error)

	// Reject flips the payment to REJECTED. The user's plan is untouched.
	Reject(ctx context.Context, res Resolution) (Payment, error)
}
