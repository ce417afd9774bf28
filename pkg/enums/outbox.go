package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePaymentRequest     OutboxAggregateType = "payment_request"
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
	AggregatePaymentRefund      OutboxAggregateType = "payment_refund"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePaymentRequest,
	AggregatePaymentTransaction,
	AggregatePaymentRefund,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventRequestCreated      OutboxEventType = "request_created"
	EventRequestUpdated      OutboxEventType = "request_updated"
	EventRequestCancelled    OutboxEventType = "request_cancelled"
	EventRequestExpired      OutboxEventType = "request_expired"
	EventRequestPaid         OutboxEventType = "request_paid"
	EventRequestRefunded     OutboxEventType = "request_refunded"
	EventPaymentSucceeded    OutboxEventType = "payment_succeeded"
	EventPaymentFailed       OutboxEventType = "payment_failed"
	EventRefundSucceeded     OutboxEventType = "refund_succeeded"
	EventRefundFailed        OutboxEventType = "refund_failed"
	EventCallbackReconciled  OutboxEventType = "callback_reconciled"
	EventTransactionRetried  OutboxEventType = "transaction_retried"
	EventTransactionTimedOut OutboxEventType = "transaction_timed_out"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRequestCreated,
	EventRequestUpdated,
	EventRequestCancelled,
	EventRequestExpired,
	EventRequestPaid,
	EventRequestRefunded,
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventRefundSucceeded,
	EventRefundFailed,
	EventCallbackReconciled,
	EventTransactionRetried,
	EventTransactionTimedOut,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
