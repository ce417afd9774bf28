package refunds

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/paylink-backend/internal/audit"
	"github.com/angelmondragon/paylink-backend/internal/gateway"
	"github.com/angelmondragon/paylink-backend/internal/transactions"
	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
	"github.com/angelmondragon/paylink-backend/pkg/outbox"
)

const (
	// maxRetryCount bounds FAILED -> PENDING retries per refund.
	maxRetryCount = 3

	defaultGatewayWait = 30 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditRecorder interface {
	RecordTx(ctx context.Context, tx *gorm.DB, input audit.RecordInput) (*models.AuditLogEntry, error)
}

type requestDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error)
	ApplyRefundOutcome(ctx context.Context, id uuid.UUID, totalRefunded decimal.Decimal) (*models.PaymentRequest, error)
}

type integratorSource interface {
	Get(name string) (gateway.Integrator, error)
	Resolve(method enums.PaymentMethod) (gateway.Integrator, error)
}

// Service owns the payment refund lifecycle and the refundable-amount
// reconciliation arithmetic.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.PaymentRefund, error)
	Process(ctx context.Context, id uuid.UUID) (*models.PaymentRefund, error)
	MarkAsProcessed(ctx context.Context, id uuid.UUID, externalID string, gatewayResponse json.RawMessage) (*models.PaymentRefund, error)
	MarkAsFailed(ctx context.Context, id uuid.UUID, code, message string) (*models.PaymentRefund, error)
	Retry(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.PaymentRefund, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.PaymentRefund, error)
	CanRefund(ctx context.Context, transactionID uuid.UUID, amount decimal.Decimal) (bool, error)
	GetAvailableRefundAmount(ctx context.Context, transactionID uuid.UUID) (decimal.Decimal, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRefund, error)
	GetByCode(ctx context.Context, code string) (*models.PaymentRefund, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.PaymentRefund, error)
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.PaymentRefund, error)
	FailStale(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

type service struct {
	repo         Repository
	transactions transactions.Repository
	tx           txRunner
	outbox       outboxEmitter
	audit        auditRecorder
	requests     requestDirectory
	gateways     integratorSource
	gatewayWait  time.Duration
	logg         *logger.Logger
}

// CreateInput describes a new refund against a successful transaction.
type CreateInput struct {
	TransactionID   uuid.UUID
	Amount          decimal.Decimal
	Reason          string
	GatewayOverride string
	ActorID         *uuid.UUID
}

// RefundEvent is the payload emitted on refund lifecycle transitions.
type RefundEvent struct {
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

// NewService builds a payment refund service with the required dependencies.
// gatewayWait <= 0 falls back to a 30s default.
func NewService(
	repo Repository,
	transactionRepo transactions.Repository,
	tx txRunner,
	emitter outboxEmitter,
	recorder auditRecorder,
	requests requestDirectory,
	gateways integratorSource,
	gatewayWait time.Duration,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if transactionRepo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if requests == nil {
		return nil, fmt.Errorf("request directory required")
	}
	if gateways == nil {
		return nil, fmt.Errorf("gateway source required")
	}
	if gatewayWait <= 0 {
		gatewayWait = defaultGatewayWait
	}
	return &service{
		repo:         repo,
		transactions: transactionRepo,
		tx:           tx,
		outbox:       emitter,
		audit:        recorder,
		requests:     requests,
		gateways:     gateways,
		gatewayWait:  gatewayWait,
		logg:         logg,
	}, nil
}

// Create validates the requested amount against the transaction's remaining
// refundable balance and persists a PENDING refund. The check counts PENDING
// refunds alongside SUCCESS ones so refunds still in flight reserve their
// share, and the parent transaction row is locked for the duration of the
// check so two racing creations cannot both pass against a stale sum.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.PaymentRefund, error) {
	if input.ActorID == nil || *input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "refund creation requires an authenticated actor")
	}
	if input.TransactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	var refund *models.PaymentRefund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		transaction, err := s.transactions.WithTx(tx).FindByIDForUpdate(ctx, input.TransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
		}
		if transaction == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		if transaction.Status != enums.TransactionStatusSuccess {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("transaction in status %q cannot be refunded", transaction.Status))
		}

		repo := s.repo.WithTx(tx)
		outstanding, err := repo.SumOutstandingByTransaction(ctx, transaction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum outstanding refunds")
		}
		remaining := remainingRefundable(transaction.Amount, outstanding)
		if input.Amount.GreaterThan(transaction.Amount) || input.Amount.GreaterThan(remaining) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("refund amount exceeds the refundable balance: requested %s, available %s",
					input.Amount.StringFixed(2), remaining.StringFixed(2)))
		}

		refund = &models.PaymentRefund{
			ID:                   uuid.New(),
			RefundCode:           newRefundCode(),
			PaymentTransactionID: transaction.ID,
			Amount:               input.Amount,
			Currency:             transaction.Currency,
			Reason:               strings.TrimSpace(input.Reason),
			Status:               enums.RefundStatusPending,
			Gateway:              input.GatewayOverride,
			CreatedBy:            input.ActorID,
		}
		if err := repo.Create(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment refund")
		}

		newStatus := refund.Status.String()
		_, err = s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentRefundID: &refund.ID,
			Action:          enums.AuditActionCreated,
			NewStatus:       &newStatus,
			Description: fmt.Sprintf("refund of %s %s requested, %s remaining before this refund",
				refund.Amount.StringFixed(2), refund.Currency, remaining.StringFixed(2)),
			ActorID: input.ActorID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// Process submits a PENDING refund to its gateway. The refund always lands in
// a terminal local status before Process returns.
func (s *service) Process(ctx context.Context, id uuid.UUID) (*models.PaymentRefund, error) {
	refund, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if refund.Status != enums.RefundStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("refund in status %q cannot be processed", refund.Status))
	}

	transaction, err := s.transactions.FindByID(ctx, refund.PaymentTransactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity,
			fmt.Sprintf("refund %s references missing transaction %s", refund.ID, refund.PaymentTransactionID))
	}
	if _, err := s.requests.GetByID(ctx, transaction.PaymentRequestID); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeIntegrity,
				fmt.Sprintf("transaction %s references missing payment request %s", transaction.ID, transaction.PaymentRequestID))
		}
		return nil, err
	}

	gatewayName := refund.Gateway
	if gatewayName == "" {
		gatewayName = transaction.Gateway
	}
	if gatewayName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity,
			fmt.Sprintf("no gateway recorded for refund %s or its transaction", refund.ID))
	}
	integrator, err := s.gateways.Get(gatewayName)
	if err != nil {
		return nil, err
	}
	if transaction.ExternalID == nil || *transaction.ExternalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity,
			fmt.Sprintf("transaction %s has no external id to refund against", transaction.ID))
	}

	refundCtx, cancel := context.WithTimeout(ctx, s.gatewayWait)
	defer cancel()
	result, err := integrator.Refund(refundCtx, gateway.RefundParams{
		ExternalPaymentID: *transaction.ExternalID,
		Amount:            refund.Amount,
		Currency:          refund.Currency,
		Reason:            refund.Reason,
		IdempotencyKey:    refundIdempotencyKey(refund),
	})
	if err != nil {
		return s.applyFailed(ctx, id, "GATEWAY_ERROR", err.Error(), nil)
	}

	switch result.Status {
	case enums.RefundStatusSuccess:
		return s.applyProcessed(ctx, id, result.ExternalID, result.RawResponse)
	case enums.RefundStatusPending:
		return s.applyFailed(ctx, id, "GATEWAY_PENDING",
			"gateway did not confirm the refund synchronously", result.RawResponse)
	default:
		code := "GATEWAY_DECLINED"
		message := "gateway declined the refund"
		if result.ErrorCode != nil {
			code = *result.ErrorCode
		}
		if result.ErrorMessage != nil {
			message = *result.ErrorMessage
		}
		return s.applyFailed(ctx, id, code, message, result.RawResponse)
	}
}

// MarkAsProcessed is the idempotent SUCCESS setter shared by the synchronous
// path and webhook reconciliation. Re-applying SUCCESS is a no-op.
func (s *service) MarkAsProcessed(ctx context.Context, id uuid.UUID, externalID string, gatewayResponse json.RawMessage) (*models.PaymentRefund, error) {
	return s.applyProcessed(ctx, id, externalID, gatewayResponse)
}

// MarkAsFailed is the idempotent FAILED setter shared by the synchronous path
// and webhook reconciliation. Re-applying FAILED is a no-op.
func (s *service) MarkAsFailed(ctx context.Context, id uuid.UUID, code, message string) (*models.PaymentRefund, error) {
	return s.applyFailed(ctx, id, code, message, nil)
}

func (s *service) applyProcessed(ctx context.Context, id uuid.UUID, externalID string, gatewayResponse json.RawMessage) (*models.PaymentRefund, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}

	var updated *models.PaymentRefund
	var alreadyTerminal bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		refund, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment refund")
		}
		if refund == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment refund not found")
		}
		if refund.Status == enums.RefundStatusSuccess {
			updated = refund
			alreadyTerminal = true
			return nil
		}
		if refund.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("refund in status %q cannot be marked processed", refund.Status))
		}

		oldStatus := refund.Status.String()
		now := time.Now().UTC()
		refund.Status = enums.RefundStatusSuccess
		if externalID != "" {
			refund.ExternalID = &externalID
		}
		if gatewayResponse != nil {
			refund.GatewayResponse = gatewayResponse
		}
		refund.ProcessedAt = &now
		refund.ErrorCode = nil
		refund.ErrorMessage = nil
		if err := repo.Update(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment refund")
		}

		newStatus := refund.Status.String()
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentRefundID: &refund.ID,
			Action:          enums.AuditActionProcessed,
			OldStatus:       &oldStatus,
			NewStatus:       &newStatus,
			Description:     "refund processed successfully",
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundSucceeded,
			AggregateType: enums.AggregatePaymentRefund,
			AggregateID:   refund.ID,
			Version:       1,
			Data:          eventPayload(refund),
		}); err != nil {
			return err
		}
		updated = refund
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !alreadyTerminal {
		if err := s.propagateRequestOutcome(ctx, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// propagateRequestOutcome recomputes the request-level successful refund total
// across all of the request's transactions and forwards it so the request
// status reflects a full versus partial refund.
func (s *service) propagateRequestOutcome(ctx context.Context, refund *models.PaymentRefund) error {
	transaction, err := s.transactions.FindByID(ctx, refund.PaymentTransactionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if transaction == nil {
		return pkgerrors.New(pkgerrors.CodeIntegrity,
			fmt.Sprintf("refund %s references missing transaction %s", refund.ID, refund.PaymentTransactionID))
	}
	total, err := s.repo.SumSuccessfulByRequest(ctx, transaction.PaymentRequestID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum request refunds")
	}
	_, err = s.requests.ApplyRefundOutcome(ctx, transaction.PaymentRequestID, total)
	return err
}

func (s *service) applyFailed(ctx context.Context, id uuid.UUID, code, message string, gatewayResponse json.RawMessage) (*models.PaymentRefund, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}

	var updated *models.PaymentRefund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		refund, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment refund")
		}
		if refund == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment refund not found")
		}
		if refund.Status == enums.RefundStatusFailed {
			updated = refund
			return nil
		}
		if refund.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("refund in status %q cannot be marked failed", refund.Status))
		}

		oldStatus := refund.Status.String()
		now := time.Now().UTC()
		refund.Status = enums.RefundStatusFailed
		refund.ErrorCode = &code
		refund.ErrorMessage = &message
		if gatewayResponse != nil {
			refund.GatewayResponse = gatewayResponse
		}
		refund.ProcessedAt = &now
		if err := repo.Update(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment refund")
		}

		newStatus := refund.Status.String()
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentRefundID: &refund.ID,
			Action:          enums.AuditActionFailed,
			OldStatus:       &oldStatus,
			NewStatus:       &newStatus,
			Description:     fmt.Sprintf("refund failed: %s", message),
			ChangeDetails:   map[string]string{"error_code": code},
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundFailed,
			AggregateType: enums.AggregatePaymentRefund,
			AggregateID:   refund.ID,
			Version:       1,
			Data:          eventPayload(refund),
		}); err != nil {
			return err
		}
		updated = refund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Retry(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.PaymentRefund, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}

	var updated *models.PaymentRefund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		refund, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment refund")
		}
		if refund == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment refund not found")
		}
		if refund.Status != enums.RefundStatusFailed || refund.RetryCount >= maxRetryCount {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("refund in status %q with %d retries cannot be retried", refund.Status, refund.RetryCount))
		}

		oldStatus := refund.Status.String()
		refund.Status = enums.RefundStatusPending
		refund.RetryCount++
		refund.ErrorCode = nil
		refund.ErrorMessage = nil
		refund.ProcessedAt = nil
		if err := repo.Update(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment refund")
		}

		newStatus := refund.Status.String()
		_, err = s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentRefundID: &refund.ID,
			Action:          enums.AuditActionRetried,
			OldStatus:       &oldStatus,
			NewStatus:       &newStatus,
			Description:     fmt.Sprintf("refund retry %d of %d", refund.RetryCount, maxRetryCount),
			ActorID:         actorID,
		})
		if err != nil {
			return err
		}
		updated = refund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.PaymentRefund, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}

	var updated *models.PaymentRefund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		refund, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment refund")
		}
		if refund == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment refund not found")
		}
		if refund.Status == enums.RefundStatusCancelled {
			updated = refund
			return nil
		}
		if refund.Status != enums.RefundStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("refund in status %q cannot be cancelled", refund.Status))
		}

		oldStatus := refund.Status.String()
		refund.Status = enums.RefundStatusCancelled
		if err := repo.Update(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment refund")
		}

		newStatus := refund.Status.String()
		description := "refund cancelled"
		if strings.TrimSpace(reason) != "" {
			description = "refund cancelled: " + reason
		}
		_, err = s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentRefundID: &refund.ID,
			Action:          enums.AuditActionCancelled,
			OldStatus:       &oldStatus,
			NewStatus:       &newStatus,
			Description:     description,
			ActorID:         actorID,
		})
		if err != nil {
			return err
		}
		updated = refund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CanRefund reports whether the amount fits inside the transaction's remaining
// refundable balance. NotFound surfaces when the transaction is absent.
func (s *service) CanRefund(ctx context.Context, transactionID uuid.UUID, amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() {
		return false, nil
	}
	transaction, remaining, err := s.loadRemaining(ctx, transactionID)
	if err != nil {
		return false, err
	}
	if amount.GreaterThan(transaction.Amount) || amount.GreaterThan(remaining) {
		return false, nil
	}
	return true, nil
}

// GetAvailableRefundAmount returns the transaction amount minus the sum of its
// successful refunds, floored at zero.
func (s *service) GetAvailableRefundAmount(ctx context.Context, transactionID uuid.UUID) (decimal.Decimal, error) {
	_, remaining, err := s.loadRemaining(ctx, transactionID)
	if err != nil {
		return decimal.Zero, err
	}
	return remaining, nil
}

func (s *service) loadRemaining(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, decimal.Decimal, error) {
	transaction, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if transaction == nil {
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	refunded, err := s.repo.SumSuccessfulByTransaction(ctx, transactionID)
	if err != nil {
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum successful refunds")
	}
	return transaction, remainingRefundable(transaction.Amount, refunded), nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRefund, error) {
	refund, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment refund")
	}
	if refund == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment refund not found")
	}
	return refund, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (*models.PaymentRefund, error) {
	refund, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment refund")
	}
	if refund == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment refund not found")
	}
	return refund, nil
}

func (s *service) GetByExternalID(ctx context.Context, externalID string) (*models.PaymentRefund, error) {
	refund, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment refund")
	}
	if refund == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment refund not found")
	}
	return refund, nil
}

func (s *service) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.PaymentRefund, error) {
	return s.repo.ListByTransaction(ctx, transactionID)
}

// FailStale marks PENDING refunds older than the cutoff as FAILED with a
// timeout error. Each refund is committed independently.
func (s *service) FailStale(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	stale, err := s.repo.ListStalePending(ctx, olderThan, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending refunds")
	}

	var failed int
	var sweepErr error
	for _, refund := range stale {
		_, err := s.applyFailed(ctx, refund.ID, "GATEWAY_TIMEOUT",
			"timed out waiting for gateway confirmation", nil)
		if err != nil {
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("fail stale refund %s: %w", refund.ID, err))
			continue
		}
		failed++
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"failed": failed, "candidates": len(stale)})
		s.logg.Info(logCtx, "stale refund sweep complete")
	}
	return failed, sweepErr
}

func remainingRefundable(amount, refunded decimal.Decimal) decimal.Decimal {
	remaining := amount.Sub(refunded)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

func eventPayload(refund *models.PaymentRefund) RefundEvent {
	return RefundEvent{
		RefundID:      refund.ID,
		RefundCode:    refund.RefundCode,
		TransactionID: refund.PaymentTransactionID,
		Status:        refund.Status,
		Amount:        refund.Amount,
		Currency:      refund.Currency,
		Gateway:       refund.Gateway,
		ExternalID:    refund.ExternalID,
		ErrorCode:     refund.ErrorCode,
		ErrorMessage:  refund.ErrorMessage,
	}
}

// refundIdempotencyKey keys the gateway call on refund id and retry count so a
// retried refund submits a fresh request while duplicate submissions of the
// same attempt collapse at the provider.
func refundIdempotencyKey(refund *models.PaymentRefund) string {
	return fmt.Sprintf("rf-%s-%d", refund.ID, refund.RetryCount)
}

func newRefundCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "RF-" + raw[:12]
}
