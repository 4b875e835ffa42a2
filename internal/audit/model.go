package audit

import "time"

// Action types recorded in the admin audit log.
const (
	ActionUserBlocked       = "USER_BLOCKED"
	ActionUserUnblocked     = "USER_UNBLOCKED"
	ActionUserDeleted       = "USER_DELETED"
	ActionQuotaAdjusted     = "QUOTA_ADJUSTED"
	ActionPlanChanged       = "PLAN_CHANGED"
	ActionIPBlocked         = "IP_BLOCKED"
	ActionIPUnblocked       = "IP_UNBLOCKED"
	ActionPaymentApproved   = "PAYMENT_APPROVED"
	ActionPaymentRejected   = "PAYMENT_REJECTED"
	ActionDocumentUploaded  = "ADMIN_DOC_UPLOADED"
	ActionDocumentDeleted   = "ADMIN_DOC_DELETED"
	ActionDocumentToggled   = "ADMIN_DOC_TOGGLED"
	ActionUserDocumentAudit = "USER_DOC_AUDITED"
)

// Action is an immutable audit record of an admin operation.
type Action struct {
	ID         int64     `json:"actionId"`
	AdminUser  string    `json:"adminUser"`
	ActionTime time.Time `json:"actionTime"`
	ActionType string    `json:"actionType"`
	Details    string    `json:"details,omitempty"`
}
