package refunds

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/paylink-backend/internal/audit"
	"github.com/angelmondragon/paylink-backend/internal/gateway"
	"github.com/angelmondragon/paylink-backend/internal/transactions"
	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/outbox"
)

type fakeRefundRepo struct {
	store     map[uuid.UUID]*models.PaymentRefund
	txRequest map[uuid.UUID]uuid.UUID
}

func newFakeRefundRepo() *fakeRefundRepo {
	return &fakeRefundRepo{
		store:     map[uuid.UUID]*models.PaymentRefund{},
		txRequest: map[uuid.UUID]uuid.UUID{},
	}
}

func (f *fakeRefundRepo) seed(refund *models.PaymentRefund) {
	copy := *refund
	f.store[refund.ID] = &copy
}

func (f *fakeRefundRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRefundRepo) Create(ctx context.Context, refund *models.PaymentRefund) error {
	copy := *refund
	f.store[refund.ID] = &copy
	return nil
}

func (f *fakeRefundRepo) Update(ctx context.Context, refund *models.PaymentRefund) error {
	copy := *refund
	f.store[refund.ID] = &copy
	return nil
}

func (f *fakeRefundRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRefund, error) {
	if refund, ok := f.store[id]; ok {
		copy := *refund
		return &copy, nil
	}
	return nil, nil
}

func (f *fakeRefundRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentRefund, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeRefundRepo) FindByCode(ctx context.Context, code string) (*models.PaymentRefund, error) {
	for _, refund := range f.store {
		if refund.RefundCode == code {
			copy := *refund
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeRefundRepo) FindByExternalID(ctx context.Context, externalID string) (*models.PaymentRefund, error) {
	for _, refund := range f.store {
		if refund.ExternalID != nil && *refund.ExternalID == externalID {
			copy := *refund
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeRefundRepo) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.PaymentRefund, error) {
	var out []models.PaymentRefund
	for _, refund := range f.store {
		if refund.PaymentTransactionID == transactionID {
			out = append(out, *refund)
		}
	}
	return out, nil
}

func (f *fakeRefundRepo) SumSuccessfulByTransaction(ctx context.Context, transactionID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, refund := range f.store {
		if refund.PaymentTransactionID == transactionID && refund.Status == enums.RefundStatusSuccess {
			total = total.Add(refund.Amount)
		}
	}
	return total, nil
}

func (f *fakeRefundRepo) SumOutstandingByTransaction(ctx context.Context, transactionID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, refund := range f.store {
		if refund.PaymentTransactionID != transactionID {
			continue
		}
		if refund.Status == enums.RefundStatusPending || refund.Status == enums.RefundStatusSuccess {
			total = total.Add(refund.Amount)
		}
	}
	return total, nil
}

func (f *fakeRefundRepo) SumSuccessfulByRequest(ctx context.Context, requestID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, refund := range f.store {
		if refund.Status != enums.RefundStatusSuccess {
			continue
		}
		if f.txRequest[refund.PaymentTransactionID] == requestID {
			total = total.Add(refund.Amount)
		}
	}
	return total, nil
}

func (f *fakeRefundRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentRefund, error) {
	var out []models.PaymentRefund
	for _, refund := range f.store {
		if refund.Status == enums.RefundStatusPending && refund.CreatedAt.Before(olderThan) {
			out = append(out, *refund)
		}
	}
	return out, nil
}

type fakeTransactionRepo struct {
	store map[uuid.UUID]*models.PaymentTransaction
}

func newFakeTransactionRepo(seed ...*models.PaymentTransaction) *fakeTransactionRepo {
	store := map[uuid.UUID]*models.PaymentTransaction{}
	for _, transaction := range seed {
		copy := *transaction
		store[transaction.ID] = &copy
	}
	return &fakeTransactionRepo{store: store}
}

func (f *fakeTransactionRepo) WithTx(tx *gorm.DB) transactions.Repository { return f }

func (f *fakeTransactionRepo) Create(ctx context.Context, transaction *models.PaymentTransaction) error {
	copy := *transaction
	f.store[transaction.ID] = &copy
	return nil
}

func (f *fakeTransactionRepo) Update(ctx context.Context, transaction *models.PaymentTransaction) error {
	copy := *transaction
	f.store[transaction.ID] = &copy
	return nil
}

func (f *fakeTransactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	if transaction, ok := f.store[id]; ok {
		copy := *transaction
		return &copy, nil
	}
	return nil, nil
}

func (f *fakeTransactionRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeTransactionRepo) FindByCode(ctx context.Context, code string) (*models.PaymentTransaction, error) {
	return nil, nil
}

func (f *fakeTransactionRepo) FindByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	return nil, nil
}

func (f *fakeTransactionRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error) {
	return nil, nil
}

func (f *fakeTransactionRepo) GetSuccessfulForRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error) {
	return nil, nil
}

func (f *fakeTransactionRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentTransaction, error) {
	return nil, nil
}

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

type fakeAudit struct {
	entries []audit.RecordInput
}

func (f *fakeAudit) RecordTx(ctx context.Context, tx *gorm.DB, input audit.RecordInput) (*models.AuditLogEntry, error) {
	f.entries = append(f.entries, input)
	return &models.AuditLogEntry{}, nil
}

type fakeRequests struct {
	request       *models.PaymentRequest
	outcomeTotals []decimal.Decimal
}

func (f *fakeRequests) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	if f.request == nil || f.request.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment request not found")
	}
	copy := *f.request
	return &copy, nil
}

func (f *fakeRequests) ApplyRefundOutcome(ctx context.Context, id uuid.UUID, totalRefunded decimal.Decimal) (*models.PaymentRequest, error) {
	f.outcomeTotals = append(f.outcomeTotals, totalRefunded)
	switch {
	case f.request != nil && totalRefunded.GreaterThanOrEqual(f.request.Amount):
		f.request.Status = enums.PaymentRequestStatusRefunded
	case totalRefunded.IsPositive():
		f.request.Status = enums.PaymentRequestStatusPartialRefund
	}
	return f.request, nil
}

type stubIntegrator struct {
	name     string
	refundFn func(ctx context.Context, params gateway.RefundParams) (*gateway.RefundResult, error)
}

func (s *stubIntegrator) Name() string { return s.name }

func (s *stubIntegrator) Charge(ctx context.Context, params gateway.ChargeParams) (*gateway.ChargeResult, error) {
	return &gateway.ChargeResult{Status: enums.TransactionStatusSuccess}, nil
}

func (s *stubIntegrator) Refund(ctx context.Context, params gateway.RefundParams) (*gateway.RefundResult, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, params)
	}
	return &gateway.RefundResult{Status: enums.RefundStatusSuccess, ExternalID: "sq-rf-1"}, nil
}

type fakeGateways struct {
	integrator gateway.Integrator
}

func (f *fakeGateways) Get(name string) (gateway.Integrator, error) {
	if f.integrator == nil || f.integrator.Name() != name {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gateway not registered")
	}
	return f.integrator, nil
}

func (f *fakeGateways) Resolve(method enums.PaymentMethod) (gateway.Integrator, error) {
	if f.integrator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no gateway bound for method")
	}
	return f.integrator, nil
}

type fixture struct {
	svc         Service
	repo        *fakeRefundRepo
	txRepo      *fakeTransactionRepo
	requests    *fakeRequests
	ob          *fakeOutbox
	au          *fakeAudit
	request     *models.PaymentRequest
	transaction *models.PaymentTransaction
	actorID     uuid.UUID
}

func newFixture(t *testing.T, integrator gateway.Integrator) *fixture {
	t.Helper()
	externalID := "sq-pay-1"
	request := &models.PaymentRequest{
		ID:       uuid.New(),
		Status:   enums.PaymentRequestStatusCompleted,
		Amount:   decimal.RequireFromString("100.00"),
		Currency: enums.CurrencyUSD,
	}
	transaction := &models.PaymentTransaction{
		ID:               uuid.New(),
		TransactionCode:  "TX-TEST00000001",
		PaymentRequestID: request.ID,
		Amount:           decimal.RequireFromString("100.00"),
		Currency:         enums.CurrencyUSD,
		Method:           enums.PaymentMethodCard,
		Type:             enums.TransactionTypePayment,
		Status:           enums.TransactionStatusSuccess,
		Gateway:          "sandbox",
		ExternalID:       &externalID,
	}

	repo := newFakeRefundRepo()
	repo.txRequest[transaction.ID] = request.ID
	txRepo := newFakeTransactionRepo(transaction)
	requests := &fakeRequests{request: request}
	ob := &fakeOutbox{}
	au := &fakeAudit{}
	svc, err := NewService(repo, txRepo, &fakeTxRunner{}, ob, au, requests,
		&fakeGateways{integrator: integrator}, time.Second, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{
		svc:         svc,
		repo:        repo,
		txRepo:      txRepo,
		requests:    requests,
		ob:          ob,
		au:          au,
		request:     request,
		transaction: transaction,
		actorID:     uuid.New(),
	}
}

func successfulRefund(transactionID uuid.UUID, amount string) *models.PaymentRefund {
	return &models.PaymentRefund{
		ID:                   uuid.New(),
		RefundCode:           "RF-SEED00000001",
		PaymentTransactionID: transactionID,
		Amount:               decimal.RequireFromString(amount),
		Currency:             enums.CurrencyUSD,
		Status:               enums.RefundStatusSuccess,
	}
}

func TestService_Create(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})

	got, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("60.00"),
		Reason:        "customer complaint",
		ActorID:       &fx.actorID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.Status != enums.RefundStatusPending {
		t.Fatalf("expected pending, got %q", got.Status)
	}
	if !strings.HasPrefix(got.RefundCode, "RF-") {
		t.Fatalf("unexpected refund code %q", got.RefundCode)
	}
	if got.Currency != fx.transaction.Currency {
		t.Fatalf("refund currency must mirror the transaction, got %q", got.Currency)
	}
	if len(fx.au.entries) != 1 || fx.au.entries[0].Action != enums.AuditActionCreated {
		t.Fatalf("expected CREATED audit entry, got %+v", fx.au.entries)
	}
}

func TestService_CreateRejectsOverRefund(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})
	fx.repo.seed(successfulRefund(fx.transaction.ID, "60.00"))

	_, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("50.00"),
		ActorID:       &fx.actorID,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "requested 50.00, available 40.00") {
		t.Fatalf("rejection must state requested and available amounts, got %q", err.Error())
	}
}

func TestService_CreateRequiresActor(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})

	_, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("10.00"),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized error for missing actor, got %v", err)
	}
	if len(fx.repo.store) != 0 {
		t.Fatal("no refund may be persisted without an actor")
	}
}

func TestService_CreateCountsPendingAgainstBalance(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})

	first, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("60.00"),
		ActorID:       &fx.actorID,
	})
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if first.Status != enums.RefundStatusPending {
		t.Fatalf("expected pending, got %q", first.Status)
	}

	// The first refund has not been processed yet, but its 60.00 is already
	// reserved: a second refund of 50.00 against the 100.00 transaction must
	// be rejected or both could later succeed and exceed the amount paid.
	_, err = fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("50.00"),
		ActorID:       &fx.actorID,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "requested 50.00, available 40.00") {
		t.Fatalf("pending refunds must count against the balance, got %q", err.Error())
	}
}

func TestService_CreateRejectsAboveOriginalAmount(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})

	_, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("150.00"),
		ActorID:       &fx.actorID,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_CreateExactRemaining(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})
	fx.repo.seed(successfulRefund(fx.transaction.ID, "60.00"))

	got, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("40.00"),
		ActorID:       &fx.actorID,
	})
	if err != nil {
		t.Fatalf("refund for the exact remaining balance must be accepted: %v", err)
	}
	if got.Status != enums.RefundStatusPending {
		t.Fatalf("expected pending, got %q", got.Status)
	}
}

func TestService_CreateRejectsNonSuccessTransaction(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})
	fx.transaction.Status = enums.TransactionStatusPending
	fx.txRepo.store[fx.transaction.ID].Status = enums.TransactionStatusPending

	_, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("10.00"),
		ActorID:       &fx.actorID,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_ProcessFullRefund(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})

	refund, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("100.00"),
		ActorID:       &fx.actorID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := fx.svc.Process(context.Background(), refund.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Status != enums.RefundStatusSuccess {
		t.Fatalf("expected success, got %q", got.Status)
	}
	if got.ExternalID == nil || *got.ExternalID != "sq-rf-1" {
		t.Fatalf("external refund id not stored: %v", got.ExternalID)
	}
	if got.ProcessedAt == nil {
		t.Fatal("processedAt not stamped")
	}
	if len(fx.requests.outcomeTotals) != 1 || !fx.requests.outcomeTotals[0].Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected request-level total 100.00 forwarded, got %+v", fx.requests.outcomeTotals)
	}
	if fx.request.Status != enums.PaymentRequestStatusRefunded {
		t.Fatalf("full refund must mark the request refunded, got %q", fx.request.Status)
	}
}

func TestService_ProcessPartialRefund(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})

	refund, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("40.00"),
		ActorID:       &fx.actorID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := fx.svc.Process(context.Background(), refund.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(fx.requests.outcomeTotals) != 1 || !fx.requests.outcomeTotals[0].Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("expected request-level total 40.00 forwarded, got %+v", fx.requests.outcomeTotals)
	}
	if fx.request.Status != enums.PaymentRequestStatusPartialRefund {
		t.Fatalf("partial refund must mark the request partially refunded, got %q", fx.request.Status)
	}
}

func TestService_ProcessGatewayErrorLandsFailed(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{
		name: "sandbox",
		refundFn: func(ctx context.Context, params gateway.RefundParams) (*gateway.RefundResult, error) {
			return nil, errors.New("connection reset")
		},
	})

	refund, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("40.00"),
		ActorID:       &fx.actorID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := fx.svc.Process(context.Background(), refund.ID)
	if err != nil {
		t.Fatalf("Process must absorb gateway errors, got %v", err)
	}
	if got.Status != enums.RefundStatusFailed {
		t.Fatalf("refund must never stay pending, got %q", got.Status)
	}
	if got.ErrorCode == nil || *got.ErrorCode != "GATEWAY_ERROR" {
		t.Fatalf("expected GATEWAY_ERROR, got %v", got.ErrorCode)
	}
	if len(fx.requests.outcomeTotals) != 0 {
		t.Fatal("failed refund must not touch the request status")
	}
}

func TestService_ProcessNotPending(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})
	refund := successfulRefund(fx.transaction.ID, "40.00")
	fx.repo.seed(refund)

	_, err := fx.svc.Process(context.Background(), refund.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_MarkAsProcessedIdempotent(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})

	refund, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("40.00"),
		ActorID:       &fx.actorID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	auditBaseline := len(fx.au.entries)

	if _, err := fx.svc.MarkAsProcessed(context.Background(), refund.ID, "sq-rf-9", []byte(`{}`)); err != nil {
		t.Fatalf("first MarkAsProcessed: %v", err)
	}
	if _, err := fx.svc.MarkAsProcessed(context.Background(), refund.ID, "sq-rf-9", []byte(`{}`)); err != nil {
		t.Fatalf("second MarkAsProcessed: %v", err)
	}
	if got := len(fx.au.entries) - auditBaseline; got != 1 {
		t.Fatalf("re-applying SUCCESS must not duplicate audit entries, got %d", got)
	}
	if len(fx.requests.outcomeTotals) != 1 {
		t.Fatalf("refund total must be forwarded exactly once, got %d", len(fx.requests.outcomeTotals))
	}
}

func TestService_RetryRoundTrip(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{
		name: "sandbox",
		refundFn: func(ctx context.Context, params gateway.RefundParams) (*gateway.RefundResult, error) {
			return nil, errors.New("transient outage")
		},
	})

	refund, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("40.00"),
		ActorID:       &fx.actorID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fx.svc.Process(context.Background(), refund.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, err := fx.svc.Retry(context.Background(), refund.ID, nil)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got.Status != enums.RefundStatusPending {
		t.Fatalf("expected pending after retry, got %q", got.Status)
	}
	if got.ErrorCode != nil || got.ErrorMessage != nil || got.ProcessedAt != nil {
		t.Fatal("retry must clear error fields and processed timestamp")
	}
}

func TestService_RetrySubmitsFreshIdempotencyKey(t *testing.T) {
	var keys []string
	fx := newFixture(t, &stubIntegrator{
		name: "sandbox",
		refundFn: func(ctx context.Context, params gateway.RefundParams) (*gateway.RefundResult, error) {
			keys = append(keys, params.IdempotencyKey)
			return nil, errors.New("transient outage")
		},
	})

	refund, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("40.00"),
		ActorID:       &fx.actorID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fx.svc.Process(context.Background(), refund.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := fx.svc.Retry(context.Background(), refund.ID, nil); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if _, err := fx.svc.Process(context.Background(), refund.ID); err != nil {
		t.Fatalf("second Process: %v", err)
	}

	if len(keys) != 2 {
		t.Fatalf("expected 2 gateway submissions, got %d", len(keys))
	}
	// A retried refund must not replay the declined attempt at the provider.
	if keys[0] == keys[1] {
		t.Fatalf("retry reused idempotency key %q", keys[0])
	}
}

func TestService_RetryOnlyFromFailed(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})
	refund := successfulRefund(fx.transaction.ID, "40.00")
	fx.repo.seed(refund)

	_, err := fx.svc.Retry(context.Background(), refund.ID, nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_RetryCapped(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})
	refund := successfulRefund(fx.transaction.ID, "40.00")
	refund.Status = enums.RefundStatusFailed
	refund.RetryCount = 3
	fx.repo.seed(refund)

	_, err := fx.svc.Retry(context.Background(), refund.ID, nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict once retries are exhausted, got %v", err)
	}
}

func TestService_Cancel(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})

	refund, err := fx.svc.Create(context.Background(), CreateInput{
		TransactionID: fx.transaction.ID,
		Amount:        decimal.RequireFromString("40.00"),
		ActorID:       &fx.actorID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := fx.svc.Cancel(context.Background(), refund.ID, "requested in error", nil)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != enums.RefundStatusCancelled {
		t.Fatalf("expected cancelled, got %q", got.Status)
	}
	auditAfterCancel := len(fx.au.entries)

	// Cancelling again is a no-op.
	if _, err := fx.svc.Cancel(context.Background(), refund.ID, "", nil); err != nil {
		t.Fatalf("re-cancel: %v", err)
	}
	if len(fx.au.entries) != auditAfterCancel {
		t.Fatal("re-cancel must not duplicate audit entries")
	}
}

func TestService_CanRefund(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})
	fx.repo.seed(successfulRefund(fx.transaction.ID, "60.00"))

	tests := []struct {
		name   string
		amount string
		want   bool
	}{
		{"within remaining", "40.00", true},
		{"over remaining", "50.00", false},
		{"over original", "150.00", false},
		{"zero", "0.00", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := fx.svc.CanRefund(context.Background(), fx.transaction.ID, decimal.RequireFromString(tc.amount))
			if err != nil {
				t.Fatalf("CanRefund: %v", err)
			}
			if got != tc.want {
				t.Fatalf("CanRefund(%s) = %v, want %v", tc.amount, got, tc.want)
			}
		})
	}
}

func TestService_GetAvailableRefundAmount(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})
	fx.repo.seed(successfulRefund(fx.transaction.ID, "60.00"))

	got, err := fx.svc.GetAvailableRefundAmount(context.Background(), fx.transaction.ID)
	if err != nil {
		t.Fatalf("GetAvailableRefundAmount: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("expected 40.00 available, got %s", got)
	}

	if _, err := fx.svc.GetAvailableRefundAmount(context.Background(), uuid.New()); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown transaction, got %v", err)
	}
}

func TestService_FailStale(t *testing.T) {
	fx := newFixture(t, &stubIntegrator{name: "sandbox"})
	stale := &models.PaymentRefund{
		ID:                   uuid.New(),
		RefundCode:           "RF-STALE0000001",
		PaymentTransactionID: fx.transaction.ID,
		Amount:               decimal.RequireFromString("10.00"),
		Currency:             enums.CurrencyUSD,
		Status:               enums.RefundStatusPending,
		CreatedAt:            time.Now().Add(-48 * time.Hour),
	}
	fx.repo.seed(stale)

	failed, err := fx.svc.FailStale(context.Background(), time.Now().Add(-24*time.Hour), 100)
	if err != nil {
		t.Fatalf("FailStale: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 failed, got %d", failed)
	}
	got, err := fx.svc.GetByID(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != enums.RefundStatusFailed {
		t.Fatalf("expected failed, got %q", got.Status)
	}
	if got.ErrorCode == nil || *got.ErrorCode != "GATEWAY_TIMEOUT" {
		t.Fatalf("expected GATEWAY_TIMEOUT, got %v", got.ErrorCode)
	}
}
