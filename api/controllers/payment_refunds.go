package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paylink-backend/api/responses"
	"github.com/angelmondragon/paylink-backend/api/validators"
	"github.com/angelmondragon/paylink-backend/internal/refunds"
	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

type refundCreateRequest struct {
	Amount  string `json:"amount" validate:"required"`
	Reason  string `json:"reason" validate:"max=500"`
	Gateway string `json:"gateway"`
}

// RefundCreate opens a refund against a successful transaction.
func RefundCreate(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		transactionID, err := pathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(payload.Amount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		created, err := svc.Create(r.Context(), refunds.CreateInput{
			TransactionID:   transactionID,
			Amount:          amount,
			Reason:          validators.SanitizeString(payload.Reason, 500),
			GatewayOverride: validators.SanitizeString(payload.Gateway, 50),
			ActorID:         actorFromContext(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, refundResponseFromModel(created))
	}
}

// RefundProcess submits a pending refund to its gateway.
func RefundProcess(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		refundID, err := pathUUID(r, "refundId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		processed, err := svc.Process(r.Context(), refundID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, refundResponseFromModel(processed))
	}
}

// RefundRetry re-arms a failed refund.
func RefundRetry(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		refundID, err := pathUUID(r, "refundId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		retried, err := svc.Retry(r.Context(), refundID, actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, refundResponseFromModel(retried))
	}
}

// RefundCancel abandons a pending refund.
func RefundCancel(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		refundID, err := pathUUID(r, "refundId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cancelled, err := svc.Cancel(r.Context(), refundID, validators.SanitizeString(payload.Reason, 500), actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, refundResponseFromModel(cancelled))
	}
}

// RefundDetail fetches a refund by id.
func RefundDetail(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		refundID, err := pathUUID(r, "refundId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refund, err := svc.GetByID(r.Context(), refundID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, refundResponseFromModel(refund))
	}
}

// RefundsForTransaction lists refunds opened against a transaction.
func RefundsForTransaction(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		transactionID, err := pathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListByTransaction(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]refundResponse, 0, len(rows))
		for i := range rows {
			out = append(out, refundResponseFromModel(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// RefundableBalance reports how much of a transaction can still be refunded.
func RefundableBalance(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		transactionID, err := pathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		available, err := svc.GetAvailableRefundAmount(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"transaction_id": transactionID,
			"available":      available,
		})
	}
}

type refundResponse struct {
	ID                   uuid.UUID          `json:"id"`
	RefundCode           string             `json:"refund_code"`
	PaymentTransactionID uuid.UUID          `json:"payment_transaction_id"`
	Amount               decimal.Decimal    `json:"amount"`
	Currency             enums.Currency     `json:"currency"`
	Reason               string             `json:"reason,omitempty"`
	Status               enums.RefundStatus `json:"status"`
	ExternalID           *string            `json:"external_id,omitempty"`
	Gateway              string             `json:"gateway,omitempty"`
	GatewayResponse      json.RawMessage    `json:"gateway_response,omitempty"`
	ProcessedAt          *time.Time         `json:"processed_at,omitempty"`
	ErrorCode            *string            `json:"error_code,omitempty"`
	ErrorMessage         *string            `json:"error_message,omitempty"`
	CreatedBy            *uuid.UUID         `json:"created_by,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

func refundResponseFromModel(m *models.PaymentRefund) refundResponse {
	return refundResponse{
		ID:                   m.ID,
		RefundCode:           m.RefundCode,
		PaymentTransactionID: m.PaymentTransactionID,
		Amount:               m.Amount,
		Currency:             m.Currency,
		Reason:               m.Reason,
		Status:               m.Status,
		ExternalID:           m.ExternalID,
		Gateway:              m.Gateway,
		GatewayResponse:      m.GatewayResponse,
		ProcessedAt:          m.ProcessedAt,
		ErrorCode:            m.ErrorCode,
		ErrorMessage:         m.ErrorMessage,
		CreatedBy:            m.CreatedBy,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}
