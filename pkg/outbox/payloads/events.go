package payloads

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paylink-backend/pkg/enums"
)

// RequestLifecycleEvent is the wire schema for payment request transitions.
// It mirrors what the request service emits on create, update, expiry,
// cancellation, payment, and refund transitions.
type RequestLifecycleEvent struct {
	RequestID    uuid.UUID                  `json:"request_id"`
	RequestCode  string                     `json:"request_code"`
	PaymentToken string                     `json:"payment_token"`
	TenantID     uuid.UUID                  `json:"tenant_id"`
	Status       enums.PaymentRequestStatus `json:"status"`
	Amount       decimal.Decimal            `json:"amount"`
	Currency     enums.Currency             `json:"currency"`
	Reason       string                     `json:"reason,omitempty"`
}

// TransactionLifecycleEvent is the wire schema for transaction transitions.
type TransactionLifecycleEvent struct {
	TransactionID   uuid.UUID               `json:"transaction_id"`
	TransactionCode string                  `json:"transaction_code"`
	RequestID       uuid.UUID               `json:"request_id"`
	Status          enums.TransactionStatus `json:"status"`
	Amount          decimal.Decimal         `json:"amount"`
	Currency        enums.Currency          `json:"currency"`
	Gateway         string                  `json:"gateway,omitempty"`
	ExternalID      *string                 `json:"external_id,omitempty"`
	ErrorCode       *string                 `json:"error_code,omitempty"`
	ErrorMessage    *string                 `json:"error_message,omitempty"`
}

// RefundLifecycleEvent is the wire schema for refund transitions.
type RefundLifecycleEvent struct {
	RefundID      uuid.UUID          `json:"refund_id"`
	RefundCode    string             `json:"refund_code"`
	TransactionID uuid.UUID          `json:"transaction_id"`
	Status        enums.RefundStatus `json:"status"`
	Amount        decimal.Decimal    `json:"amount"`
	Currency      enums.Currency     `json:"currency"`
	Gateway       string             `json:"gateway,omitempty"`
	ExternalID    *string            `json:"external_id,omitempty"`
	ErrorCode     *string            `json:"error_code,omitempty"`
	ErrorMessage  *string            `json:"error_message,omitempty"`
}

// CallbackReconciledEvent is published after an inbound gateway notification
// has been applied to internal state.
type CallbackReconciledEvent struct {
	Gateway       string             `json:"gateway"`
	ProviderEvent string             `json:"provider_event_id"`
	CallbackType  enums.CallbackType `json:"callback_type"`
	RequestCode   string             `json:"request_code,omitempty"`
	PaymentToken  string             `json:"payment_token,omitempty"`
	TransactionID *uuid.UUID         `json:"transaction_id,omitempty"`
	RefundID      *uuid.UUID         `json:"refund_id,omitempty"`
	ExternalID    string             `json:"external_id,omitempty"`
	Amount        decimal.Decimal    `json:"amount"`
	Currency      enums.Currency     `json:"currency,omitempty"`
	ReceivedAt    time.Time          `json:"received_at"`
	RawPayload    json.RawMessage    `json:"raw_payload,omitempty"`
}
