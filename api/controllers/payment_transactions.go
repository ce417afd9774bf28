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
	"github.com/angelmondragon/paylink-backend/internal/transactions"
	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

type transactionAttemptRequest struct {
	Method string `json:"method" validate:"required"`
}

// TransactionAttempt opens a payment attempt against a pending request.
func TransactionAttempt(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}

		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transactionAttemptRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(strings.TrimSpace(payload.Method))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method"))
			return
		}

		created, err := svc.Attempt(r.Context(), transactions.AttemptInput{
			RequestID: requestID,
			Method:    method,
			ActorID:   actorFromContext(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, transactionResponseFromModel(created))
	}
}

type transactionProcessRequest struct {
	SourceToken string `json:"source_token" validate:"required"`
	Note        string `json:"note" validate:"max=500"`
}

// TransactionProcess submits a pending transaction to its gateway.
func TransactionProcess(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}

		transactionID, err := pathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transactionProcessRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		processed, err := svc.Process(r.Context(), transactionID, transactions.ProcessInput{
			SourceToken: strings.TrimSpace(payload.SourceToken),
			Note:        validators.SanitizeString(payload.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transactionResponseFromModel(processed))
	}
}

// TransactionRetry re-arms a failed transaction for another gateway attempt.
func TransactionRetry(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}

		transactionID, err := pathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		retried, err := svc.Retry(r.Context(), transactionID, actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transactionResponseFromModel(retried))
	}
}

// TransactionCancel abandons a pending transaction.
func TransactionCancel(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}

		transactionID, err := pathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cancelled, err := svc.Cancel(r.Context(), transactionID, validators.SanitizeString(payload.Reason, 500), actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transactionResponseFromModel(cancelled))
	}
}

// TransactionDetail fetches a transaction by id.
func TransactionDetail(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}

		transactionID, err := pathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transaction, err := svc.GetByID(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transactionResponseFromModel(transaction))
	}
}

// TransactionsForRequest lists all attempts made against a payment request.
func TransactionsForRequest(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}

		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListByRequest(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]transactionResponse, 0, len(rows))
		for i := range rows {
			out = append(out, transactionResponseFromModel(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type transactionResponse struct {
	ID               uuid.UUID               `json:"id"`
	TransactionCode  string                  `json:"transaction_code"`
	PaymentRequestID uuid.UUID               `json:"payment_request_id"`
	Amount           decimal.Decimal         `json:"amount"`
	Currency         enums.Currency          `json:"currency"`
	Method           enums.PaymentMethod     `json:"method"`
	Type             enums.TransactionType   `json:"type"`
	Status           enums.TransactionStatus `json:"status"`
	ExternalID       *string                 `json:"external_id,omitempty"`
	Gateway          string                  `json:"gateway,omitempty"`
	GatewayResponse  json.RawMessage         `json:"gateway_response,omitempty"`
	ProcessedAt      *time.Time              `json:"processed_at,omitempty"`
	ErrorCode        *string                 `json:"error_code,omitempty"`
	ErrorMessage     *string                 `json:"error_message,omitempty"`
	RetryCount       int                     `json:"retry_count"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func transactionResponseFromModel(m *models.PaymentTransaction) transactionResponse {
	return transactionResponse{
		ID:               m.ID,
		TransactionCode:  m.TransactionCode,
		PaymentRequestID: m.PaymentRequestID,
		Amount:           m.Amount,
		Currency:         m.Currency,
		Method:           m.Method,
		Type:             m.Type,
		Status:           m.Status,
		ExternalID:       m.ExternalID,
		Gateway:          m.Gateway,
		GatewayResponse:  m.GatewayResponse,
		ProcessedAt:      m.ProcessedAt,
		ErrorCode:        m.ErrorCode,
		ErrorMessage:     m.ErrorMessage,
		RetryCount:       m.RetryCount,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
