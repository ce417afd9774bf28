package enums

import "fmt"

// CallbackType is the normalized classification of an inbound gateway notification.
type CallbackType string

const (
	CallbackPaymentSuccess CallbackType = "PAYMENT_SUCCESS"
	CallbackPaymentFailure CallbackType = "PAYMENT_FAILURE"
	CallbackRefundSuccess  CallbackType = "REFUND_SUCCESS"
	CallbackRefundFailure  CallbackType = "REFUND_FAILURE"
	CallbackUnknown        CallbackType = "UNKNOWN"
)

var validCallbackTypes = []CallbackType{
	CallbackPaymentSuccess,
	CallbackPaymentFailure,
	CallbackRefundSuccess,
	CallbackRefundFailure,
	CallbackUnknown,
}

// String implements fmt.Stringer.
func (c CallbackType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CallbackType.
func (c CallbackType) IsValid() bool {
	for _, candidate := range validCallbackTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsRefund reports whether the callback targets a refund rather than a payment.
func (c CallbackType) IsRefund() bool {
	return c == CallbackRefundSuccess || c == CallbackRefundFailure
}

// ParseCallbackType converts raw input into a CallbackType.
func ParseCallbackType(value string) (CallbackType, error) {
	for _, candidate := range validCallbackTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid callback type %q", value)
}
