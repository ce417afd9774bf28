package transactions

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
	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
	"github.com/angelmondragon/paylink-backend/pkg/outbox"
)

const (
	// maxRetryCount bounds FAILED -> PENDING retries per transaction.
	maxRetryCount = 3

	defaultGatewayWait = 30 * time.Second
	processLockTTL     = 2 * time.Minute
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
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.PaymentRequest, error)
}

type integratorSource interface {
	Get(name string) (gateway.Integrator, error)
	Resolve(method enums.PaymentMethod) (gateway.Integrator, error)
}

// processLocker serializes gateway submission per transaction id across
// processes. A nil locker disables distributed locking.
type processLocker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(scope string) string
}

// Service owns the payment transaction lifecycle.
type Service interface {
	Attempt(ctx context.Context, input AttemptInput) (*models.PaymentTransaction, error)
	Process(ctx context.Context, id uuid.UUID, input ProcessInput) (*models.PaymentTransaction, error)
	MarkAsProcessed(ctx context.Context, id uuid.UUID, externalID string, gatewayResponse json.RawMessage) (*models.PaymentTransaction, error)
	MarkAsFailed(ctx context.Context, id uuid.UUID, code, message string) (*models.PaymentTransaction, error)
	Retry(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.PaymentTransaction, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.PaymentTransaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	GetByCode(ctx context.Context, code string) (*models.PaymentTransaction, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error)
	GetSuccessfulForRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error)
	FailStale(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxEmitter
	audit       auditRecorder
	requests    requestDirectory
	gateways    integratorSource
	locks       processLocker
	gatewayWait time.Duration
	logg        *logger.Logger
}

// AttemptInput describes a new charge attempt against a payment request.
type AttemptInput struct {
	RequestID uuid.UUID
	Method    enums.PaymentMethod
	ActorID   *uuid.UUID
}

// ProcessInput carries payer-side details for the synchronous charge path.
type ProcessInput struct {
	SourceToken string
	Note        string
}

// TransactionEvent is the payload emitted on transaction lifecycle transitions.
type TransactionEvent struct {
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

// NewService builds a payment transaction service with the required dependencies.
// locks may be nil; gatewayWait <= 0 falls back to a 30s default.
func NewService(
	repo Repository,
	tx txRunner,
	emitter outboxEmitter,
	recorder auditRecorder,
	requests requestDirectory,
	gateways integratorSource,
	locks processLocker,
	gatewayWait time.Duration,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
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
		repo:        repo,
		tx:          tx,
		outbox:      emitter,
		audit:       recorder,
		requests:    requests,
		gateways:    gateways,
		locks:       locks,
		gatewayWait: gatewayWait,
		logg:        logg,
	}, nil
}

func (s *service) Attempt(ctx context.Context, input AttemptInput) (*models.PaymentTransaction, error) {
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}

	request, err := s.requests.GetByID(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.PaymentRequestStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment request in status %q cannot take new transactions", request.Status))
	}
	if !containsMethod(request.AllowedMethods, input.Method) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("method %q is not allowed for this payment request", input.Method))
	}

	integrator, err := s.gateways.Resolve(input.Method)
	if err != nil {
		return nil, err
	}

	transaction := &models.PaymentTransaction{
		ID:               uuid.New(),
		TransactionCode:  newTransactionCode(),
		PaymentRequestID: request.ID,
		Amount:           request.Amount,
		Currency:         request.Currency,
		Method:           input.Method,
		Type:             enums.TransactionTypePayment,
		Status:           enums.TransactionStatusPending,
		Gateway:          integrator.Name(),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, transaction); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transaction")
		}
		newStatus := transaction.Status.String()
		_, err := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentTransactionID: &transaction.ID,
			Action:               enums.AuditActionCreated,
			NewStatus:            &newStatus,
			Description:          fmt.Sprintf("transaction attempt created via %s", transaction.Gateway),
			ActorID:              input.ActorID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// Process submits a PENDING transaction to its gateway. The transaction always
// lands in a terminal local status before Process returns, even when the
// gateway call errors or times out.
func (s *service) Process(ctx context.Context, id uuid.UUID, input ProcessInput) (*models.PaymentTransaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	if s.locks != nil {
		key := s.locks.LockKey("tx:" + id.String())
		acquired, err := s.locks.SetNX(ctx, key, "1", processLockTTL)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire transaction process lock")
		}
		if !acquired {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "transaction is already being processed")
		}
		defer func() {
			if err := s.locks.Del(context.WithoutCancel(ctx), key); err != nil && s.logg != nil {
				s.logg.Warn(ctx, "failed to release transaction process lock: "+err.Error())
			}
		}()
	}

	transaction, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if transaction.Status != enums.TransactionStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("transaction in status %q cannot be processed", transaction.Status))
	}

	request, err := s.requests.GetByID(ctx, transaction.PaymentRequestID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeIntegrity,
				fmt.Sprintf("transaction %s references missing payment request %s", transaction.ID, transaction.PaymentRequestID))
		}
		return nil, err
	}

	integrator, err := s.resolveIntegrator(transaction)
	if err != nil {
		return nil, err
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.gatewayWait)
	defer cancel()
	result, err := integrator.Charge(chargeCtx, gateway.ChargeParams{
		Amount:         transaction.Amount,
		Currency:       transaction.Currency,
		Method:         transaction.Method,
		SourceToken:    input.SourceToken,
		ReferenceCode:  transaction.TransactionCode,
		Note:           noteOrDefault(input.Note, request.Title),
		IdempotencyKey: chargeIdempotencyKey(transaction),
	})
	if err != nil {
		return s.applyFailed(ctx, id, "GATEWAY_ERROR", err.Error(), nil, enums.EventPaymentFailed)
	}

	switch result.Status {
	case enums.TransactionStatusSuccess:
		return s.applyProcessed(ctx, id, result.ExternalID, result.RawResponse)
	case enums.TransactionStatusPending:
		return s.applyFailed(ctx, id, "GATEWAY_PENDING",
			"gateway did not confirm the charge synchronously", result.RawResponse, enums.EventPaymentFailed)
	default:
		code := "GATEWAY_DECLINED"
		message := "gateway declined the charge"
		if result.ErrorCode != nil {
			code = *result.ErrorCode
		}
		if result.ErrorMessage != nil {
			message = *result.ErrorMessage
		}
		return s.applyFailed(ctx, id, code, message, result.RawResponse, enums.EventPaymentFailed)
	}
}

// MarkAsProcessed is the idempotent SUCCESS setter shared by the synchronous
// path and webhook reconciliation. Re-applying SUCCESS is a no-op.
func (s *service) MarkAsProcessed(ctx context.Context, id uuid.UUID, externalID string, gatewayResponse json.RawMessage) (*models.PaymentTransaction, error) {
	return s.applyProcessed(ctx, id, externalID, gatewayResponse)
}

// MarkAsFailed is the idempotent FAILED setter shared by the synchronous path
// and webhook reconciliation. Re-applying FAILED is a no-op.
func (s *service) MarkAsFailed(ctx context.Context, id uuid.UUID, code, message string) (*models.PaymentTransaction, error) {
	return s.applyFailed(ctx, id, code, message, nil, enums.EventPaymentFailed)
}

func (s *service) applyProcessed(ctx context.Context, id uuid.UUID, externalID string, gatewayResponse json.RawMessage) (*models.PaymentTransaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	var updated *models.PaymentTransaction
	var alreadyTerminal bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		transaction, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
		}
		if transaction == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		if transaction.Status == enums.TransactionStatusSuccess {
			updated = transaction
			alreadyTerminal = true
			return nil
		}
		if transaction.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("transaction in status %q cannot be marked processed", transaction.Status))
		}

		oldStatus := transaction.Status.String()
		now := time.Now().UTC()
		transaction.Status = enums.TransactionStatusSuccess
		if externalID != "" {
			transaction.ExternalID = &externalID
		}
		if gatewayResponse != nil {
			transaction.GatewayResponse = gatewayResponse
		}
		transaction.ProcessedAt = &now
		transaction.ErrorCode = nil
		transaction.ErrorMessage = nil
		if err := repo.Update(ctx, transaction); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment transaction")
		}

		newStatus := transaction.Status.String()
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentTransactionID: &transaction.ID,
			Action:               enums.AuditActionProcessed,
			OldStatus:            &oldStatus,
			NewStatus:            &newStatus,
			Description:          "transaction processed successfully",
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSucceeded,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   transaction.ID,
			Version:       1,
			Data:          eventPayload(transaction),
		}); err != nil {
			return err
		}
		updated = transaction
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !alreadyTerminal && updated.Type == enums.TransactionTypePayment {
		paidAt := time.Now().UTC()
		if updated.ProcessedAt != nil {
			paidAt = *updated.ProcessedAt
		}
		if _, err := s.requests.MarkPaid(ctx, updated.PaymentRequestID, paidAt); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (s *service) applyFailed(ctx context.Context, id uuid.UUID, code, message string, gatewayResponse json.RawMessage, eventType enums.OutboxEventType) (*models.PaymentTransaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	var updated *models.PaymentTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		transaction, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
		}
		if transaction == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		if transaction.Status == enums.TransactionStatusFailed {
			updated = transaction
			return nil
		}
		if transaction.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("transaction in status %q cannot be marked failed", transaction.Status))
		}

		oldStatus := transaction.Status.String()
		now := time.Now().UTC()
		transaction.Status = enums.TransactionStatusFailed
		transaction.ErrorCode = &code
		transaction.ErrorMessage = &message
		if gatewayResponse != nil {
			transaction.GatewayResponse = gatewayResponse
		}
		transaction.ProcessedAt = &now
		if err := repo.Update(ctx, transaction); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment transaction")
		}

		newStatus := transaction.Status.String()
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentTransactionID: &transaction.ID,
			Action:               enums.AuditActionFailed,
			OldStatus:            &oldStatus,
			NewStatus:            &newStatus,
			Description:          fmt.Sprintf("transaction failed: %s", message),
			ChangeDetails:        map[string]string{"error_code": code},
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   transaction.ID,
			Version:       1,
			Data:          eventPayload(transaction),
		}); err != nil {
			return err
		}
		updated = transaction
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Retry(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.PaymentTransaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	var updated *models.PaymentTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		transaction, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
		}
		if transaction == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		if !canBeRetried(transaction) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("transaction in status %q with %d retries cannot be retried", transaction.Status, transaction.RetryCount))
		}

		oldStatus := transaction.Status.String()
		transaction.Status = enums.TransactionStatusPending
		transaction.ErrorCode = nil
		transaction.ErrorMessage = nil
		transaction.ProcessedAt = nil
		transaction.RetryCount++
		if err := repo.Update(ctx, transaction); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment transaction")
		}

		newStatus := transaction.Status.String()
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentTransactionID: &transaction.ID,
			Action:               enums.AuditActionRetried,
			OldStatus:            &oldStatus,
			NewStatus:            &newStatus,
			Description:          fmt.Sprintf("transaction retry %d of %d", transaction.RetryCount, maxRetryCount),
			ActorID:              actorID,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionRetried,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   transaction.ID,
			Version:       1,
			Data:          eventPayload(transaction),
		}); err != nil {
			return err
		}
		updated = transaction
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.PaymentTransaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	var updated *models.PaymentTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		transaction, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
		}
		if transaction == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		if transaction.Status == enums.TransactionStatusCancelled {
			updated = transaction
			return nil
		}
		if transaction.Status != enums.TransactionStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("transaction in status %q cannot be cancelled", transaction.Status))
		}

		oldStatus := transaction.Status.String()
		transaction.Status = enums.TransactionStatusCancelled
		if err := repo.Update(ctx, transaction); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment transaction")
		}

		newStatus := transaction.Status.String()
		description := "transaction cancelled"
		if strings.TrimSpace(reason) != "" {
			description = "transaction cancelled: " + reason
		}
		_, err = s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentTransactionID: &transaction.ID,
			Action:               enums.AuditActionCancelled,
			OldStatus:            &oldStatus,
			NewStatus:            &newStatus,
			Description:          description,
			ActorID:              actorID,
		})
		if err != nil {
			return err
		}
		updated = transaction
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	transaction, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	return transaction, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (*models.PaymentTransaction, error) {
	transaction, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	return transaction, nil
}

func (s *service) GetByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	transaction, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	return transaction, nil
}

func (s *service) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error) {
	return s.repo.ListByRequest(ctx, requestID)
}

func (s *service) GetSuccessfulForRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error) {
	return s.repo.GetSuccessfulForRequest(ctx, requestID)
}

// FailStale marks PENDING transactions older than the cutoff as FAILED with a
// timeout error. Each transaction is committed independently.
func (s *service) FailStale(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	stale, err := s.repo.ListStalePending(ctx, olderThan, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending transactions")
	}

	var failed int
	var sweepErr error
	for _, transaction := range stale {
		_, err := s.applyFailed(ctx, transaction.ID, "GATEWAY_TIMEOUT",
			"timed out waiting for gateway confirmation", nil, enums.EventTransactionTimedOut)
		if err != nil {
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("fail stale transaction %s: %w", transaction.ID, err))
			continue
		}
		failed++
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"failed": failed, "candidates": len(stale)})
		s.logg.Info(logCtx, "stale transaction sweep complete")
	}
	return failed, sweepErr
}

func (s *service) resolveIntegrator(transaction *models.PaymentTransaction) (gateway.Integrator, error) {
	if transaction.Gateway != "" {
		return s.gateways.Get(transaction.Gateway)
	}
	return s.gateways.Resolve(transaction.Method)
}

func canBeRetried(transaction *models.PaymentTransaction) bool {
	return transaction.Status == enums.TransactionStatusFailed && transaction.RetryCount < maxRetryCount
}

func containsMethod(allowed []string, method enums.PaymentMethod) bool {
	for _, candidate := range allowed {
		if candidate == string(method) {
			return true
		}
	}
	return false
}

func noteOrDefault(note, fallback string) string {
	if strings.TrimSpace(note) != "" {
		return note
	}
	return fallback
}

// chargeIdempotencyKey keys the gateway call on transaction id and retry count
// so a retried transaction submits a fresh charge while duplicate submissions
// of the same attempt collapse at the provider.
func chargeIdempotencyKey(transaction *models.PaymentTransaction) string {
	return fmt.Sprintf("tx-%s-%d", transaction.ID, transaction.RetryCount)
}

func eventPayload(transaction *models.PaymentTransaction) TransactionEvent {
	return TransactionEvent{
		TransactionID:   transaction.ID,
		TransactionCode: transaction.TransactionCode,
		RequestID:       transaction.PaymentRequestID,
		Status:          transaction.Status,
		Amount:          transaction.Amount,
		Currency:        transaction.Currency,
		Gateway:         transaction.Gateway,
		ExternalID:      transaction.ExternalID,
		ErrorCode:       transaction.ErrorCode,
		ErrorMessage:    transaction.ErrorMessage,
	}
}

func newTransactionCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TX-" + raw[:12]
}
