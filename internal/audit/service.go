package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
)

// Service records and queries the audit trail for payment entities.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*models.AuditLogEntry, error)
	RecordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AuditLogEntry, error)
	ListForRequest(ctx context.Context, requestID uuid.UUID, limit int) ([]models.AuditLogEntry, error)
	ListForTransaction(ctx context.Context, transactionID uuid.UUID, limit int) ([]models.AuditLogEntry, error)
	ListForRefund(ctx context.Context, refundID uuid.UUID, limit int) ([]models.AuditLogEntry, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type service struct {
	repo Repository
}

// RecordInput captures the immutable data an audit entry requires. Exactly one
// of the entity ids must be set.
type RecordInput struct {
	PaymentRequestID     *uuid.UUID
	PaymentTransactionID *uuid.UUID
	PaymentRefundID      *uuid.UUID
	Action               enums.AuditAction
	OldStatus            *string
	NewStatus            *string
	Description          string
	ChangeDetails        any
	ActorID              *uuid.UUID
	UserAgent            string
	SourceIP             string
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.AuditLogEntry, error) {
	return s.record(ctx, s.repo, input)
}

func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AuditLogEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	return s.record(ctx, s.repo.WithTx(tx), input)
}

func (s *service) record(ctx context.Context, repo Repository, input RecordInput) (*models.AuditLogEntry, error) {
	if input.PaymentRequestID == nil && input.PaymentTransactionID == nil && input.PaymentRefundID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "audit entry requires an entity reference")
	}
	if !input.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid audit action")
	}

	entry := &models.AuditLogEntry{
		PaymentRequestID:     input.PaymentRequestID,
		PaymentTransactionID: input.PaymentTransactionID,
		PaymentRefundID:      input.PaymentRefundID,
		Action:               input.Action,
		OldStatus:            input.OldStatus,
		NewStatus:            input.NewStatus,
		Description:          input.Description,
		ActorID:              input.ActorID,
		UserAgent:            input.UserAgent,
		SourceIP:             input.SourceIP,
	}
	if input.ChangeDetails != nil {
		raw, err := json.Marshal(input.ChangeDetails)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal change details")
		}
		entry.ChangeDetails = raw
	}

	if err := repo.Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create audit entry")
	}
	return entry, nil
}

func (s *service) ListForRequest(ctx context.Context, requestID uuid.UUID, limit int) ([]models.AuditLogEntry, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment request id required")
	}
	return s.repo.ListByPaymentRequest(ctx, requestID, limit)
}

func (s *service) ListForTransaction(ctx context.Context, transactionID uuid.UUID, limit int) ([]models.AuditLogEntry, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	return s.repo.ListByTransaction(ctx, transactionID, limit)
}

func (s *service) ListForRefund(ctx context.Context, refundID uuid.UUID, limit int) ([]models.AuditLogEntry, error) {
	if refundID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	return s.repo.ListByRefund(ctx, refundID, limit)
}

func (s *service) PurgeOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if cutoff.IsZero() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "cutoff required")
	}
	return s.repo.DeleteOlderThan(ctx, cutoff, limit)
}
