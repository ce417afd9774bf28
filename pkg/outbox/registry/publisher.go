package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/paylink-backend/pkg/config"
	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	"github.com/angelmondragon/paylink-backend/pkg/outbox"
	"github.com/angelmondragon/paylink-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregates/topic/payload schema.
// Most events belong to exactly one aggregate; callback reconciliation can
// land on either a transaction or a refund.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateTypes []enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.PaymentsTopic == "" {
		return nil, fmt.Errorf("payments topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	paymentsTopic := cfg.PaymentsTopic

	for _, eventType := range []enums.OutboxEventType{
		enums.EventRequestCreated,
		enums.EventRequestUpdated,
		enums.EventRequestCancelled,
		enums.EventRequestExpired,
		enums.EventRequestPaid,
		enums.EventRequestRefunded,
	} {
		reg.register(EventDescriptor{
			EventType:      eventType,
			AggregateTypes: []enums.OutboxAggregateType{enums.AggregatePaymentRequest},
			Topic:          paymentsTopic,
			PayloadFactory: func() interface{} { return &payloads.RequestLifecycleEvent{} },
		})
	}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventPaymentSucceeded,
		enums.EventPaymentFailed,
		enums.EventTransactionRetried,
		enums.EventTransactionTimedOut,
	} {
		reg.register(EventDescriptor{
			EventType:      eventType,
			AggregateTypes: []enums.OutboxAggregateType{enums.AggregatePaymentTransaction},
			Topic:          paymentsTopic,
			PayloadFactory: func() interface{} { return &payloads.TransactionLifecycleEvent{} },
		})
	}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventRefundSucceeded,
		enums.EventRefundFailed,
	} {
		reg.register(EventDescriptor{
			EventType:      eventType,
			AggregateTypes: []enums.OutboxAggregateType{enums.AggregatePaymentRefund},
			Topic:          paymentsTopic,
			PayloadFactory: func() interface{} { return &payloads.RefundLifecycleEvent{} },
		})
	}
	reg.register(EventDescriptor{
		EventType: enums.EventCallbackReconciled,
		AggregateTypes: []enums.OutboxAggregateType{
			enums.AggregatePaymentTransaction,
			enums.AggregatePaymentRefund,
		},
		Topic:          paymentsTopic,
		PayloadFactory: func() interface{} { return &payloads.CallbackReconciledEvent{} },
	})

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if !desc.allowsAggregate(event.AggregateType) {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: %s cannot carry %s", event.EventType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

func (d EventDescriptor) allowsAggregate(aggregate enums.OutboxAggregateType) bool {
	for _, candidate := range d.AggregateTypes {
		if candidate == aggregate {
			return true
		}
	}
	return false
}
