package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/paylink-backend/api/responses"
	"github.com/angelmondragon/paylink-backend/api/validators"
	"github.com/angelmondragon/paylink-backend/internal/audit"
	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

// RequestAuditTrail lists audit entries for a payment request, oldest first.
func RequestAuditTrail(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return auditTrail(svc, logg, "requestId", func(svc audit.Service, r *http.Request, id uuid.UUID, limit int) ([]models.AuditLogEntry, error) {
		return svc.ListForRequest(r.Context(), id, limit)
	})
}

// TransactionAuditTrail lists audit entries for a transaction, oldest first.
func TransactionAuditTrail(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return auditTrail(svc, logg, "transactionId", func(svc audit.Service, r *http.Request, id uuid.UUID, limit int) ([]models.AuditLogEntry, error) {
		return svc.ListForTransaction(r.Context(), id, limit)
	})
}

// RefundAuditTrail lists audit entries for a refund, oldest first.
func RefundAuditTrail(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return auditTrail(svc, logg, "refundId", func(svc audit.Service, r *http.Request, id uuid.UUID, limit int) ([]models.AuditLogEntry, error) {
		return svc.ListForRefund(r.Context(), id, limit)
	})
}

func auditTrail(svc audit.Service, logg *logger.Logger, param string, list func(audit.Service, *http.Request, uuid.UUID, int) ([]models.AuditLogEntry, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		id, err := pathUUID(r, param)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := list(svc, r, id, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]auditEntryResponse, 0, len(entries))
		for i := range entries {
			out = append(out, auditEntryResponseFromModel(&entries[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type auditEntryResponse struct {
	ID                   int64             `json:"id"`
	PaymentRequestID     *uuid.UUID        `json:"payment_request_id,omitempty"`
	PaymentTransactionID *uuid.UUID        `json:"payment_transaction_id,omitempty"`
	PaymentRefundID      *uuid.UUID        `json:"payment_refund_id,omitempty"`
	Action               enums.AuditAction `json:"action"`
	OldStatus            *string           `json:"old_status,omitempty"`
	NewStatus            *string           `json:"new_status,omitempty"`
	Description          string            `json:"description,omitempty"`
	ChangeDetails        json.RawMessage   `json:"change_details,omitempty"`
	ActorID              *uuid.UUID        `json:"actor_id,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

func auditEntryResponseFromModel(m *models.AuditLogEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:                   m.ID,
		PaymentRequestID:     m.PaymentRequestID,
		PaymentTransactionID: m.PaymentTransactionID,
		PaymentRefundID:      m.PaymentRefundID,
		Action:               m.Action,
		OldStatus:            m.OldStatus,
		NewStatus:            m.NewStatus,
		Description:          m.Description,
		ChangeDetails:        m.ChangeDetails,
		ActorID:              m.ActorID,
		CreatedAt:            m.CreatedAt,
	}
}
