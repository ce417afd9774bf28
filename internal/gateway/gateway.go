package gateway

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paylink-backend/pkg/enums"
)

// ChargeParams carries everything an integrator needs to collect a payment.
type ChargeParams struct {
	Amount         decimal.Decimal
	Currency       enums.Currency
	Method         enums.PaymentMethod
	SourceToken    string
	ReferenceCode  string
	Note           string
	IdempotencyKey string
}

// ChargeResult is the normalized outcome of a gateway charge attempt.
type ChargeResult struct {
	ExternalID   string
	Status       enums.TransactionStatus
	RawResponse  json.RawMessage
	ErrorCode    *string
	ErrorMessage *string
}

// RefundParams carries everything an integrator needs to return funds.
type RefundParams struct {
	ExternalPaymentID string
	Amount            decimal.Decimal
	Currency          enums.Currency
	Reason            string
	IdempotencyKey    string
}

// RefundResult is the normalized outcome of a gateway refund attempt.
type RefundResult struct {
	ExternalID   string
	Status       enums.RefundStatus
	RawResponse  json.RawMessage
	ErrorCode    *string
	ErrorMessage *string
}

// Integrator abstracts a payment provider. Implementations normalize provider
// responses into internal transaction and refund statuses.
type Integrator interface {
	Name() string
	Charge(ctx context.Context, params ChargeParams) (*ChargeResult, error)
	Refund(ctx context.Context, params RefundParams) (*RefundResult, error)
}

// AmountCents converts a decimal major-unit amount to minor units.
func AmountCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}
