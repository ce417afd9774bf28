package enums

import "fmt"

// AuditAction labels the state transition recorded by an audit entry.
type AuditAction string

const (
	AuditActionCreated       AuditAction = "CREATED"
	AuditActionUpdated       AuditAction = "UPDATED"
	AuditActionStatusUpdated AuditAction = "STATUS_UPDATED"
	AuditActionCancelled     AuditAction = "CANCELLED"
	AuditActionExpired       AuditAction = "EXPIRED"
	AuditActionPaid          AuditAction = "PAID"
	AuditActionProcessed     AuditAction = "PROCESSED"
	AuditActionFailed        AuditAction = "FAILED"
	AuditActionRetried       AuditAction = "RETRIED"
	AuditActionDeleted       AuditAction = "DELETED"
)

var validAuditActions = []AuditAction{
	AuditActionCreated,
	AuditActionUpdated,
	AuditActionStatusUpdated,
	AuditActionCancelled,
	AuditActionExpired,
	AuditActionPaid,
	AuditActionProcessed,
	AuditActionFailed,
	AuditActionRetried,
	AuditActionDeleted,
}

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuditAction.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditAction converts raw input into an AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	for _, candidate := range validAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}
