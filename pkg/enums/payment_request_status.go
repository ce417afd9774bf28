package enums

import "fmt"

// PaymentRequestStatus tracks the lifecycle of a payer-facing payment request.
type PaymentRequestStatus string

const (
	PaymentRequestStatusDraft         PaymentRequestStatus = "draft"
	PaymentRequestStatusPending       PaymentRequestStatus = "pending"
	PaymentRequestStatusCompleted     PaymentRequestStatus = "completed"
	PaymentRequestStatusCancelled     PaymentRequestStatus = "cancelled"
	PaymentRequestStatusRefunded      PaymentRequestStatus = "refunded"
	PaymentRequestStatusPartialRefund PaymentRequestStatus = "partial_refund"
)

var validPaymentRequestStatuses = []PaymentRequestStatus{
	PaymentRequestStatusDraft,
	PaymentRequestStatusPending,
	PaymentRequestStatusCompleted,
	PaymentRequestStatusCancelled,
	PaymentRequestStatusRefunded,
	PaymentRequestStatusPartialRefund,
}

// String implements fmt.Stringer.
func (s PaymentRequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentRequestStatus.
func (s PaymentRequestStatus) IsValid() bool {
	for _, candidate := range validPaymentRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further business transition is expected.
func (s PaymentRequestStatus) IsTerminal() bool {
	return s == PaymentRequestStatusRefunded || s == PaymentRequestStatusCancelled
}

// ParsePaymentRequestStatus converts raw input into a PaymentRequestStatus.
func ParsePaymentRequestStatus(value string) (PaymentRequestStatus, error) {
	for _, candidate := range validPaymentRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment request status %q", value)
}
