package payments

import "time"

// Payment statuses. A payment is created PENDING and resolved exactly once.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Payment is one plan-upgrade request with its resolution state.
type Payment struct {
	ID                 int64      `json:"paymentId"`
	FullName           string     `json:"fullName"`
	Email              string     `json:"email"`
	GcashRef           string     `json:"gcashRef,omitempty"`
	PlanRequested      string     `json:"planRequested"`
	ReceiptStoragePath string     `json:"-"`
	Status             string     `json:"status"`
	AdminNotes         string     `json:"adminNotes,omitempty"`
	SubmittedAt        time.Time  `json:"submittedAt"`
	ApprovedAt         *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy         string     `json:"approvedBy,omitempty"`
}

// SubmitInput describes a new payment submission.
type SubmitInput struct {
	FullName           string
	Email              string
	GcashRef           string
	PlanRequested      string
	ReceiptStoragePath string
}

// Resolution describes an approve or reject decision.
type Resolution struct {
	PaymentID  int64
	AdminUser  string
	AdminNotes string
}
