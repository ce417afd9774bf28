package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
)

// Event is the normalized form of an inbound gateway notification.
type Event struct {
	Gateway       string
	EventID       string
	CallbackType  enums.CallbackType
	ExternalID    string
	ReferenceCode string
	Amount        decimal.Decimal
	Currency      enums.Currency
	ErrorCode     string
	ErrorMessage  string
	ReceivedAt    time.Time
	Raw           json.RawMessage
}

type squarePayload struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      struct {
		Object struct {
			Payment *squarePayment `json:"payment"`
			Refund  *squareRefund  `json:"refund"`
		} `json:"object"`
	} `json:"data"`
}

type squarePayment struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	ReferenceID string       `json:"reference_id"`
	AmountMoney *squareMoney `json:"amount_money"`
}

type squareRefund struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	PaymentID   string       `json:"payment_id"`
	Reason      string       `json:"reason"`
	AmountMoney *squareMoney `json:"amount_money"`
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// ParseSquareEvent normalizes a Square webhook body. Unhandled object types
// classify as UNKNOWN rather than erroring so ingress can acknowledge them.
func ParseSquareEvent(body []byte, receivedAt time.Time) (*Event, error) {
	var payload squarePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse square webhook payload")
	}
	if payload.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square webhook payload has no event id")
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	event := &Event{
		Gateway:    "square",
		EventID:    payload.EventID,
		ReceivedAt: receivedAt,
		Raw:        json.RawMessage(body),
	}

	switch {
	case payload.Data.Object.Payment != nil:
		payment := payload.Data.Object.Payment
		event.CallbackType = classifyPaymentStatus(payment.Status)
		event.ExternalID = payment.ID
		event.ReferenceCode = payment.ReferenceID
		applyMoney(event, payment.AmountMoney)
		if event.CallbackType == enums.CallbackPaymentFailure {
			event.ErrorCode = "GATEWAY_" + strings.ToUpper(payment.Status)
			event.ErrorMessage = fmt.Sprintf("gateway reported payment status %s", payment.Status)
		}
	case payload.Data.Object.Refund != nil:
		refund := payload.Data.Object.Refund
		event.CallbackType = classifyRefundStatus(refund.Status)
		event.ExternalID = refund.ID
		applyMoney(event, refund.AmountMoney)
		if event.CallbackType == enums.CallbackRefundFailure {
			event.ErrorCode = "GATEWAY_" + strings.ToUpper(refund.Status)
			event.ErrorMessage = fmt.Sprintf("gateway reported refund status %s", refund.Status)
		}
	default:
		event.CallbackType = enums.CallbackUnknown
	}
	return event, nil
}

func classifyPaymentStatus(status string) enums.CallbackType {
	switch strings.ToUpper(status) {
	case "COMPLETED", "APPROVED":
		return enums.CallbackPaymentSuccess
	case "FAILED", "CANCELED":
		return enums.CallbackPaymentFailure
	default:
		return enums.CallbackUnknown
	}
}

func classifyRefundStatus(status string) enums.CallbackType {
	switch strings.ToUpper(status) {
	case "COMPLETED", "APPROVED":
		return enums.CallbackRefundSuccess
	case "FAILED", "REJECTED":
		return enums.CallbackRefundFailure
	default:
		return enums.CallbackUnknown
	}
}

func applyMoney(event *Event, money *squareMoney) {
	if money == nil {
		return
	}
	event.Amount = decimal.New(money.Amount, -2)
	if money.Currency != "" {
		event.Currency = enums.Currency(money.Currency)
	}
}
