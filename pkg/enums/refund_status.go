package enums

import "fmt"

// RefundStatus tracks the lifecycle of a refund attempt.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSuccess   RefundStatus = "success"
	RefundStatusFailed    RefundStatus = "failed"
	RefundStatusCancelled RefundStatus = "cancelled"
)

var validRefundStatuses = []RefundStatus{
	RefundStatusPending,
	RefundStatusSuccess,
	RefundStatusFailed,
	RefundStatusCancelled,
}

// String implements fmt.Stringer.
func (r RefundStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundStatus.
func (r RefundStatus) IsValid() bool {
	for _, candidate := range validRefundStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the refund lifecycle.
func (r RefundStatus) IsTerminal() bool {
	return r == RefundStatusSuccess || r == RefundStatusFailed || r == RefundStatusCancelled
}

// ParseRefundStatus converts raw input into a RefundStatus.
func ParseRefundStatus(value string) (RefundStatus, error) {
	for _, candidate := range validRefundStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}
