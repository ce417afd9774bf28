package sandbox

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/paylink-backend/internal/gateway"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
)

const gatewayName = "sandbox"

// Source tokens with these prefixes force deterministic outcomes in dev.
const (
	forceFailPrefix    = "fail"
	forcePendingPrefix = "pend"
)

// Integrator simulates a payment provider for local development and tests.
// Outcomes are deterministic based on the source token prefix.
type Integrator struct{}

func New() *Integrator {
	return &Integrator{}
}

func (i *Integrator) Name() string {
	return gatewayName
}

func (i *Integrator) Charge(ctx context.Context, params gateway.ChargeParams) (*gateway.ChargeResult, error) {
	externalID := "sb-pay-" + uuid.NewString()
	status := enums.TransactionStatusSuccess
	var errCode, errMessage *string

	switch {
	case strings.HasPrefix(params.SourceToken, forceFailPrefix):
		status = enums.TransactionStatusFailed
		code := "CARD_DECLINED"
		msg := "sandbox forced decline"
		errCode, errMessage = &code, &msg
		externalID = ""
	case strings.HasPrefix(params.SourceToken, forcePendingPrefix):
		status = enums.TransactionStatusPending
	}

	raw, _ := json.Marshal(map[string]any{
		"simulator": gatewayName,
		"amount":    params.Amount.StringFixed(2),
		"currency":  params.Currency,
		"status":    status,
	})
	return &gateway.ChargeResult{
		ExternalID:   externalID,
		Status:       status,
		RawResponse:  raw,
		ErrorCode:    errCode,
		ErrorMessage: errMessage,
	}, nil
}

func (i *Integrator) Refund(ctx context.Context, params gateway.RefundParams) (*gateway.RefundResult, error) {
	status := enums.RefundStatusSuccess
	externalID := "sb-ref-" + uuid.NewString()
	var errCode, errMessage *string

	if strings.HasPrefix(params.ExternalPaymentID, forceFailPrefix) {
		status = enums.RefundStatusFailed
		code := "REFUND_REJECTED"
		msg := "sandbox forced refund failure"
		errCode, errMessage = &code, &msg
		externalID = ""
	}

	raw, _ := json.Marshal(map[string]any{
		"simulator": gatewayName,
		"amount":    params.Amount.StringFixed(2),
		"currency":  params.Currency,
		"status":    status,
	})
	return &gateway.RefundResult{
		ExternalID:   externalID,
		Status:       status,
		RawResponse:  raw,
		ErrorCode:    errCode,
		ErrorMessage: errMessage,
	}, nil
}
