package squaregw

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/angelmondragon/paylink-backend/internal/gateway"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/square"
)

const gatewayName = "square"

// Integrator settles payments and refunds through Square.
type Integrator struct {
	client *square.Client
}

// New wraps the shared Square client as a gateway integrator.
func New(client *square.Client) (*Integrator, error) {
	if client == nil {
		return nil, errors.New("square client is required")
	}
	return &Integrator{client: client}, nil
}

func (i *Integrator) Name() string {
	return gatewayName
}

func (i *Integrator) Charge(ctx context.Context, params gateway.ChargeParams) (*gateway.ChargeResult, error) {
	payment, err := i.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    gateway.AmountCents(params.Amount),
		Currency:       string(params.Currency),
		LocationID:     i.client.LocationID(),
		SourceID:       params.SourceToken,
		IdempotencyKey: params.IdempotencyKey,
		Note:           params.Note,
		ReferenceID:    params.ReferenceCode,
	})
	if err != nil {
		return chargeFailure(err), nil
	}

	raw, marshalErr := json.Marshal(payment)
	if marshalErr != nil {
		raw = nil
	}
	return &gateway.ChargeResult{
		ExternalID:  stringValue(payment.GetID()),
		Status:      paymentStatus(stringValue(payment.GetStatus())),
		RawResponse: raw,
	}, nil
}

func (i *Integrator) Refund(ctx context.Context, params gateway.RefundParams) (*gateway.RefundResult, error) {
	refund, err := i.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      params.ExternalPaymentID,
		AmountCents:    gateway.AmountCents(params.Amount),
		Currency:       string(params.Currency),
		Reason:         params.Reason,
		IdempotencyKey: params.IdempotencyKey,
	})
	if err != nil {
		return refundFailure(err), nil
	}

	raw, marshalErr := json.Marshal(refund)
	if marshalErr != nil {
		raw = nil
	}
	return &gateway.RefundResult{
		ExternalID:  refund.GetID(),
		Status:      refundStatus(stringValue(refund.GetStatus())),
		RawResponse: raw,
	}, nil
}

func chargeFailure(err error) *gateway.ChargeResult {
	code, message := errorFields(err)
	return &gateway.ChargeResult{
		Status:       enums.TransactionStatusFailed,
		ErrorCode:    &code,
		ErrorMessage: &message,
	}
}

func refundFailure(err error) *gateway.RefundResult {
	code, message := errorFields(err)
	return &gateway.RefundResult{
		Status:       enums.RefundStatusFailed,
		ErrorCode:    &code,
		ErrorMessage: &message,
	}
}

func errorFields(err error) (string, string) {
	var domainErr *pkgerrors.Error
	if errors.As(err, &domainErr) {
		return string(domainErr.Code()), domainErr.Message()
	}
	return string(pkgerrors.CodeDependency), err.Error()
}

func paymentStatus(raw string) enums.TransactionStatus {
	switch strings.ToUpper(raw) {
	case "COMPLETED", "APPROVED":
		return enums.TransactionStatusSuccess
	case "FAILED":
		return enums.TransactionStatusFailed
	case "CANCELED":
		return enums.TransactionStatusCancelled
	default:
		return enums.TransactionStatusPending
	}
}

func refundStatus(raw string) enums.RefundStatus {
	switch strings.ToUpper(raw) {
	case "COMPLETED", "APPROVED":
		return enums.RefundStatusSuccess
	case "FAILED", "REJECTED":
		return enums.RefundStatusFailed
	default:
		return enums.RefundStatusPending
	}
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
