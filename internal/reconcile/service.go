package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
	"github.com/angelmondragon/paylink-backend/pkg/metrics"
	"github.com/angelmondragon/paylink-backend/pkg/outbox"
)

const consumerName = "webhook-reconciler"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type eventGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type transactionApplier interface {
	GetByCode(ctx context.Context, code string) (*models.PaymentTransaction, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error)
	MarkAsProcessed(ctx context.Context, id uuid.UUID, externalID string, gatewayResponse json.RawMessage) (*models.PaymentTransaction, error)
	MarkAsFailed(ctx context.Context, id uuid.UUID, code, message string) (*models.PaymentTransaction, error)
}

type refundApplier interface {
	GetByCode(ctx context.Context, code string) (*models.PaymentRefund, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.PaymentRefund, error)
	MarkAsProcessed(ctx context.Context, id uuid.UUID, externalID string, gatewayResponse json.RawMessage) (*models.PaymentRefund, error)
	MarkAsFailed(ctx context.Context, id uuid.UUID, code, message string) (*models.PaymentRefund, error)
}

type requestReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error)
}

// Result describes what a reconciliation pass did with an event.
type Result struct {
	CallbackType  enums.CallbackType
	Duplicate     bool
	Skipped       bool
	TransactionID *uuid.UUID
	RefundID      *uuid.UUID
}

// CallbackEvent is the normalized payload published after an inbound gateway
// notification is applied, carrying enough context for audit replay.
type CallbackEvent struct {
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

// Reconciler applies normalized gateway events to internal state through the
// idempotent terminal-state setters, safely under at-least-once delivery.
type Reconciler struct {
	tx           txRunner
	outbox       outboxEmitter
	guard        eventGuard
	transactions transactionApplier
	refunds      refundApplier
	requests     requestReader
	metrics      *metrics.WebhookMetrics
	logg         *logger.Logger
}

// NewReconciler builds a webhook reconciler. metrics and logg may be nil.
func NewReconciler(
	tx txRunner,
	emitter outboxEmitter,
	guard eventGuard,
	transactions transactionApplier,
	refunds refundApplier,
	requests requestReader,
	webhookMetrics *metrics.WebhookMetrics,
	logg *logger.Logger,
) (*Reconciler, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if guard == nil {
		return nil, fmt.Errorf("event guard required")
	}
	if transactions == nil {
		return nil, fmt.Errorf("transaction applier required")
	}
	if refunds == nil {
		return nil, fmt.Errorf("refund applier required")
	}
	if requests == nil {
		return nil, fmt.Errorf("request reader required")
	}
	return &Reconciler{
		tx:           tx,
		outbox:       emitter,
		guard:        guard,
		transactions: transactions,
		refunds:      refunds,
		requests:     requests,
		metrics:      webhookMetrics,
		logg:         logg,
	}, nil
}

// Apply reconciles one normalized gateway event against internal state.
// Duplicate provider event ids are skipped without touching state, and a
// failed application releases the seen-event marker so redelivery can retry.
func (r *Reconciler) Apply(ctx context.Context, event *Event) (*Result, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	if event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if event.Gateway == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway name required")
	}
	if event.CallbackType == enums.CallbackUnknown || !event.CallbackType.IsValid() {
		// Unclassifiable events are acknowledged and dropped, not retried.
		if r.logg != nil {
			logCtx := r.logg.WithFields(ctx, map[string]any{"gateway": event.Gateway, "provider_event_id": event.EventID})
			r.logg.Warn(logCtx, "skipping unclassifiable gateway event")
		}
		return &Result{CallbackType: enums.CallbackUnknown, Skipped: true}, nil
	}

	duplicate, err := r.guard.CheckAndMarkProcessed(ctx, consumerName, event.EventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check event idempotency")
	}
	if duplicate {
		r.metrics.IncDuplicate(event.Gateway)
		return &Result{CallbackType: event.CallbackType, Duplicate: true}, nil
	}

	result, err := r.dispatch(ctx, event)
	if err != nil {
		r.metrics.IncFailed(event.Gateway)
		if delErr := r.guard.Delete(context.WithoutCancel(ctx), consumerName, event.EventID); delErr != nil && r.logg != nil {
			r.logg.Error(ctx, "failed to release seen-event marker", delErr)
		}
		return nil, err
	}

	if err := r.publish(ctx, event, result); err != nil {
		return nil, err
	}
	r.metrics.IncProcessed(event.Gateway, event.CallbackType.String())
	return result, nil
}

func (r *Reconciler) dispatch(ctx context.Context, event *Event) (*Result, error) {
	if event.CallbackType.IsRefund() {
		return r.applyRefund(ctx, event)
	}
	return r.applyPayment(ctx, event)
}

func (r *Reconciler) applyPayment(ctx context.Context, event *Event) (*Result, error) {
	transaction, err := r.correlateTransaction(ctx, event)
	if err != nil {
		return nil, err
	}

	switch event.CallbackType {
	case enums.CallbackPaymentSuccess:
		if _, err := r.transactions.MarkAsProcessed(ctx, transaction.ID, event.ExternalID, event.Raw); err != nil {
			return nil, err
		}
	case enums.CallbackPaymentFailure:
		code, message := errorOrDefault(event, "gateway reported payment failure")
		if _, err := r.transactions.MarkAsFailed(ctx, transaction.ID, code, message); err != nil {
			return nil, err
		}
	}
	id := transaction.ID
	return &Result{CallbackType: event.CallbackType, TransactionID: &id}, nil
}

func (r *Reconciler) applyRefund(ctx context.Context, event *Event) (*Result, error) {
	refund, err := r.correlateRefund(ctx, event)
	if err != nil {
		return nil, err
	}

	switch event.CallbackType {
	case enums.CallbackRefundSuccess:
		if _, err := r.refunds.MarkAsProcessed(ctx, refund.ID, event.ExternalID, event.Raw); err != nil {
			return nil, err
		}
	case enums.CallbackRefundFailure:
		code, message := errorOrDefault(event, "gateway reported refund failure")
		if _, err := r.refunds.MarkAsFailed(ctx, refund.ID, code, message); err != nil {
			return nil, err
		}
	}
	id := refund.ID
	return &Result{CallbackType: event.CallbackType, RefundID: &id}, nil
}

func (r *Reconciler) correlateTransaction(ctx context.Context, event *Event) (*models.PaymentTransaction, error) {
	if event.ReferenceCode != "" {
		transaction, err := r.transactions.GetByCode(ctx, event.ReferenceCode)
		if err == nil {
			return transaction, nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}
	if event.ExternalID != "" {
		transaction, err := r.transactions.GetByExternalID(ctx, event.ExternalID)
		if err == nil {
			return transaction, nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound,
		fmt.Sprintf("no transaction matches gateway event %s", event.EventID))
}

func (r *Reconciler) correlateRefund(ctx context.Context, event *Event) (*models.PaymentRefund, error) {
	if event.ReferenceCode != "" {
		refund, err := r.refunds.GetByCode(ctx, event.ReferenceCode)
		if err == nil {
			return refund, nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}
	if event.ExternalID != "" {
		refund, err := r.refunds.GetByExternalID(ctx, event.ExternalID)
		if err == nil {
			return refund, nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound,
		fmt.Sprintf("no refund matches gateway event %s", event.EventID))
}

func (r *Reconciler) publish(ctx context.Context, event *Event, result *Result) error {
	payload := CallbackEvent{
		Gateway:       event.Gateway,
		ProviderEvent: event.EventID,
		CallbackType:  event.CallbackType,
		TransactionID: result.TransactionID,
		RefundID:      result.RefundID,
		ExternalID:    event.ExternalID,
		Amount:        event.Amount,
		Currency:      event.Currency,
		ReceivedAt:    event.ReceivedAt,
		RawPayload:    event.Raw,
	}

	aggregateType := enums.AggregatePaymentTransaction
	aggregateID := uuid.Nil
	if result.TransactionID != nil {
		aggregateID = *result.TransactionID
		r.enrichRequestContext(ctx, *result.TransactionID, &payload)
	}
	if result.RefundID != nil {
		aggregateType = enums.AggregatePaymentRefund
		aggregateID = *result.RefundID
	}

	return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCallbackReconciled,
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			Version:       1,
			Data:          payload,
		})
	})
}

// enrichRequestContext best-effort copies the request code and payment token
// onto the published payload. Missing request context never blocks publishing.
func (r *Reconciler) enrichRequestContext(ctx context.Context, transactionID uuid.UUID, payload *CallbackEvent) {
	transaction, err := r.transactions.GetByExternalID(ctx, payload.ExternalID)
	if err != nil || transaction == nil {
		return
	}
	request, err := r.requests.GetByID(ctx, transaction.PaymentRequestID)
	if err != nil || request == nil {
		return
	}
	payload.RequestCode = request.RequestCode
	payload.PaymentToken = request.PaymentToken
}

func errorOrDefault(event *Event, fallback string) (string, string) {
	code := event.ErrorCode
	if code == "" {
		code = "GATEWAY_DECLINED"
	}
	message := event.ErrorMessage
	if message == "" {
		message = fallback
	}
	return code, message
}
