package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/outbox"
)

type fakeTxRunner struct{}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeGuard struct {
	seen    map[string]bool
	deleted []string
}

func newFakeGuard() *fakeGuard { return &fakeGuard{seen: map[string]bool{}} }

func (f *fakeGuard) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key := consumer + ":" + eventID
	if f.seen[key] {
		return true, nil
	}
	f.seen[key] = true
	return false, nil
}

func (f *fakeGuard) Delete(ctx context.Context, consumer, eventID string) error {
	key := consumer + ":" + eventID
	delete(f.seen, key)
	f.deleted = append(f.deleted, eventID)
	return nil
}

type fakeTransactions struct {
	transaction *models.PaymentTransaction
	processed   int
	failed      int
	processErr  error
}

func (f *fakeTransactions) GetByCode(ctx context.Context, code string) (*models.PaymentTransaction, error) {
	if f.transaction != nil && f.transaction.TransactionCode == code {
		return f.transaction, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
}

func (f *fakeTransactions) GetByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	if f.transaction != nil && f.transaction.ExternalID != nil && *f.transaction.ExternalID == externalID {
		return f.transaction, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
}

func (f *fakeTransactions) MarkAsProcessed(ctx context.Context, id uuid.UUID, externalID string, gatewayResponse json.RawMessage) (*models.PaymentTransaction, error) {
	if f.processErr != nil {
		return nil, f.processErr
	}
	f.processed++
	return f.transaction, nil
}

func (f *fakeTransactions) MarkAsFailed(ctx context.Context, id uuid.UUID, code, message string) (*models.PaymentTransaction, error) {
	f.failed++
	return f.transaction, nil
}

type fakeRefunds struct {
	refund    *models.PaymentRefund
	processed int
	failed    int
}

func (f *fakeRefunds) GetByCode(ctx context.Context, code string) (*models.PaymentRefund, error) {
	if f.refund != nil && f.refund.RefundCode == code {
		return f.refund, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment refund not found")
}

func (f *fakeRefunds) GetByExternalID(ctx context.Context, externalID string) (*models.PaymentRefund, error) {
	if f.refund != nil && f.refund.ExternalID != nil && *f.refund.ExternalID == externalID {
		return f.refund, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment refund not found")
}

func (f *fakeRefunds) MarkAsProcessed(ctx context.Context, id uuid.UUID, externalID string, gatewayResponse json.RawMessage) (*models.PaymentRefund, error) {
	f.processed++
	return f.refund, nil
}

func (f *fakeRefunds) MarkAsFailed(ctx context.Context, id uuid.UUID, code, message string) (*models.PaymentRefund, error) {
	f.failed++
	return f.refund, nil
}

type fakeRequests struct {
	request *models.PaymentRequest
}

func (f *fakeRequests) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	if f.request != nil && f.request.ID == id {
		return f.request, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment request not found")
}

type fixture struct {
	reconciler   *Reconciler
	guard        *fakeGuard
	transactions *fakeTransactions
	refunds      *fakeRefunds
	ob           *fakeOutbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	externalID := "sq-pay-1"
	refundExternalID := "sq-rf-1"
	request := &models.PaymentRequest{
		ID:           uuid.New(),
		RequestCode:  "PR-TEST00000001",
		PaymentToken: "tok-1",
	}
	transaction := &models.PaymentTransaction{
		ID:               uuid.New(),
		TransactionCode:  "TX-TEST00000001",
		PaymentRequestID: request.ID,
		Status:           enums.TransactionStatusPending,
		ExternalID:       &externalID,
	}
	refund := &models.PaymentRefund{
		ID:                   uuid.New(),
		RefundCode:           "RF-TEST00000001",
		PaymentTransactionID: transaction.ID,
		Status:               enums.RefundStatusPending,
		ExternalID:           &refundExternalID,
	}

	guard := newFakeGuard()
	transactionsFake := &fakeTransactions{transaction: transaction}
	refundsFake := &fakeRefunds{refund: refund}
	ob := &fakeOutbox{}
	reconciler, err := NewReconciler(&fakeTxRunner{}, ob, guard, transactionsFake, refundsFake,
		&fakeRequests{request: request}, nil, nil)
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	return &fixture{
		reconciler:   reconciler,
		guard:        guard,
		transactions: transactionsFake,
		refunds:      refundsFake,
		ob:           ob,
	}
}

func paymentSuccessEvent() *Event {
	return &Event{
		Gateway:       "square",
		EventID:       "evt-1",
		CallbackType:  enums.CallbackPaymentSuccess,
		ExternalID:    "sq-pay-1",
		ReferenceCode: "TX-TEST00000001",
		Amount:        decimal.RequireFromString("100.00"),
		Currency:      enums.CurrencyUSD,
		ReceivedAt:    time.Now().UTC(),
		Raw:           json.RawMessage(`{"ok":true}`),
	}
}

func TestReconciler_ApplyPaymentSuccess(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.reconciler.Apply(context.Background(), paymentSuccessEvent())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Duplicate || result.Skipped {
		t.Fatalf("unexpected result flags: %+v", result)
	}
	if fx.transactions.processed != 1 {
		t.Fatalf("expected one MarkAsProcessed call, got %d", fx.transactions.processed)
	}
	if len(fx.ob.events) != 1 || fx.ob.events[0].EventType != enums.EventCallbackReconciled {
		t.Fatalf("expected callback_reconciled event, got %+v", fx.ob.events)
	}
}

func TestReconciler_DuplicateEventSkipped(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.reconciler.Apply(context.Background(), paymentSuccessEvent()); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	result, err := fx.reconciler.Apply(context.Background(), paymentSuccessEvent())
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("expected duplicate result")
	}
	if fx.transactions.processed != 1 {
		t.Fatalf("duplicate delivery must not re-apply, got %d calls", fx.transactions.processed)
	}
	if len(fx.ob.events) != 1 {
		t.Fatalf("duplicate delivery must not re-publish, got %d events", len(fx.ob.events))
	}
}

func TestReconciler_FailureReleasesGuard(t *testing.T) {
	fx := newFixture(t)
	fx.transactions.processErr = errors.New("db down")

	if _, err := fx.reconciler.Apply(context.Background(), paymentSuccessEvent()); err == nil {
		t.Fatal("expected error")
	}
	if len(fx.guard.deleted) != 1 {
		t.Fatal("failed application must release the seen-event marker for redelivery")
	}

	// Redelivery succeeds once the downstream recovers.
	fx.transactions.processErr = nil
	if _, err := fx.reconciler.Apply(context.Background(), paymentSuccessEvent()); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if fx.transactions.processed != 1 {
		t.Fatalf("expected one successful application, got %d", fx.transactions.processed)
	}
}

func TestReconciler_PaymentFailureAppliesFailedSetter(t *testing.T) {
	fx := newFixture(t)
	event := paymentSuccessEvent()
	event.CallbackType = enums.CallbackPaymentFailure
	event.ErrorCode = "GATEWAY_FAILED"
	event.ErrorMessage = "card declined"

	if _, err := fx.reconciler.Apply(context.Background(), event); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if fx.transactions.failed != 1 {
		t.Fatalf("expected one MarkAsFailed call, got %d", fx.transactions.failed)
	}
}

func TestReconciler_RefundSuccessAlreadyTerminal(t *testing.T) {
	fx := newFixture(t)
	fx.refunds.refund.Status = enums.RefundStatusSuccess

	event := &Event{
		Gateway:      "square",
		EventID:      "evt-rf-1",
		CallbackType: enums.CallbackRefundSuccess,
		ExternalID:   "sq-rf-1",
		ReceivedAt:   time.Now().UTC(),
	}
	result, err := fx.reconciler.Apply(context.Background(), event)
	if err != nil {
		t.Fatalf("confirming an already-successful refund must succeed: %v", err)
	}
	if result.RefundID == nil || *result.RefundID != fx.refunds.refund.ID {
		t.Fatalf("expected refund correlation, got %+v", result)
	}
	if fx.refunds.processed != 1 {
		t.Fatalf("setter must still be invoked (it no-ops internally), got %d", fx.refunds.processed)
	}
}

func TestReconciler_UnknownCallbackSkipped(t *testing.T) {
	fx := newFixture(t)
	event := paymentSuccessEvent()
	event.CallbackType = enums.CallbackUnknown

	result, err := fx.reconciler.Apply(context.Background(), event)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !result.Skipped {
		t.Fatal("expected skipped result")
	}
	if fx.transactions.processed != 0 || fx.transactions.failed != 0 {
		t.Fatal("unknown events must not touch state")
	}
}

func TestReconciler_UncorrelatedEvent(t *testing.T) {
	fx := newFixture(t)
	event := paymentSuccessEvent()
	event.ExternalID = "sq-pay-unknown"
	event.ReferenceCode = "TX-UNKNOWN"

	_, err := fx.reconciler.Apply(context.Background(), event)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParseSquareEvent(t *testing.T) {
	t.Run("completed payment", func(t *testing.T) {
		body := []byte(`{
			"event_id": "evt-123",
			"type": "payment.updated",
			"data": {"object": {"payment": {
				"id": "sq-pay-9",
				"status": "COMPLETED",
				"reference_id": "TX-ABC",
				"amount_money": {"amount": 5000, "currency": "USD"}
			}}}
		}`)
		event, err := ParseSquareEvent(body, time.Now())
		if err != nil {
			t.Fatalf("ParseSquareEvent: %v", err)
		}
		if event.CallbackType != enums.CallbackPaymentSuccess {
			t.Fatalf("expected PAYMENT_SUCCESS, got %q", event.CallbackType)
		}
		if event.ExternalID != "sq-pay-9" || event.ReferenceCode != "TX-ABC" {
			t.Fatalf("correlation fields wrong: %+v", event)
		}
		if !event.Amount.Equal(decimal.RequireFromString("50.00")) {
			t.Fatalf("expected 50.00, got %s", event.Amount)
		}
	})

	t.Run("rejected refund", func(t *testing.T) {
		body := []byte(`{
			"event_id": "evt-124",
			"type": "refund.updated",
			"data": {"object": {"refund": {
				"id": "sq-rf-9",
				"status": "REJECTED",
				"payment_id": "sq-pay-9"
			}}}
		}`)
		event, err := ParseSquareEvent(body, time.Now())
		if err != nil {
			t.Fatalf("ParseSquareEvent: %v", err)
		}
		if event.CallbackType != enums.CallbackRefundFailure {
			t.Fatalf("expected REFUND_FAILURE, got %q", event.CallbackType)
		}
		if event.ErrorCode != "GATEWAY_REJECTED" {
			t.Fatalf("expected GATEWAY_REJECTED, got %q", event.ErrorCode)
		}
	})

	t.Run("unhandled object", func(t *testing.T) {
		body := []byte(`{"event_id": "evt-125", "type": "dispute.created", "data": {"object": {}}}`)
		event, err := ParseSquareEvent(body, time.Now())
		if err != nil {
			t.Fatalf("ParseSquareEvent: %v", err)
		}
		if event.CallbackType != enums.CallbackUnknown {
			t.Fatalf("expected UNKNOWN, got %q", event.CallbackType)
		}
	})

	t.Run("missing event id", func(t *testing.T) {
		if _, err := ParseSquareEvent([]byte(`{"type":"payment.updated"}`), time.Now()); err == nil {
			t.Fatal("expected error for missing event id")
		}
	})
}
