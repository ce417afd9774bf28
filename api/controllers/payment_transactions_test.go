package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paylink-backend/api/middleware"
	"github.com/angelmondragon/paylink-backend/internal/transactions"
	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
)

type testTransactionsService struct {
	attemptFn func(ctx context.Context, input transactions.AttemptInput) (*models.PaymentTransaction, error)
	processFn func(ctx context.Context, id uuid.UUID, input transactions.ProcessInput) (*models.PaymentTransaction, error)
	retryFn   func(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.PaymentTransaction, error)
	listFn    func(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error)
}

func (s *testTransactionsService) Attempt(ctx context.Context, input transactions.AttemptInput) (*models.PaymentTransaction, error) {
	if s.attemptFn != nil {
		return s.attemptFn(ctx, input)
	}
	return nil, nil
}

func (s *testTransactionsService) Process(ctx context.Context, id uuid.UUID, input transactions.ProcessInput) (*models.PaymentTransaction, error) {
	if s.processFn != nil {
		return s.processFn(ctx, id, input)
	}
	return nil, nil
}

func (s *testTransactionsService) MarkAsProcessed(ctx context.Context, id uuid.UUID, externalID string, gatewayResponse json.RawMessage) (*models.PaymentTransaction, error) {
	return nil, nil
}

func (s *testTransactionsService) MarkAsFailed(ctx context.Context, id uuid.UUID, code, message string) (*models.PaymentTransaction, error) {
	return nil, nil
}

func (s *testTransactionsService) Retry(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.PaymentTransaction, error) {
	if s.retryFn != nil {
		return s.retryFn(ctx, id, actorID)
	}
	return nil, nil
}

func (s *testTransactionsService) Cancel(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.PaymentTransaction, error) {
	return nil, nil
}

func (s *testTransactionsService) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	return nil, nil
}

func (s *testTransactionsService) GetByCode(ctx context.Context, code string) (*models.PaymentTransaction, error) {
	return nil, nil
}

func (s *testTransactionsService) GetByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	return nil, nil
}

func (s *testTransactionsService) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error) {
	if s.listFn != nil {
		return s.listFn(ctx, requestID)
	}
	return nil, nil
}

func (s *testTransactionsService) GetSuccessfulForRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error) {
	return nil, nil
}

func (s *testTransactionsService) FailStale(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	return 0, nil
}

func sampleTransaction(requestID uuid.UUID) *models.PaymentTransaction {
	return &models.PaymentTransaction{
		ID:               uuid.New(),
		TransactionCode:  "TX-TEST00000001",
		PaymentRequestID: requestID,
		Amount:           decimal.RequireFromString("100.00"),
		Currency:         enums.CurrencyUSD,
		Method:           enums.PaymentMethodCard,
		Type:             enums.TransactionTypePayment,
		Status:           enums.TransactionStatusPending,
	}
}

func TestTransactionAttemptSuccess(t *testing.T) {
	requestID := uuid.New()
	var captured transactions.AttemptInput
	svc := &testTransactionsService{
		attemptFn: func(ctx context.Context, input transactions.AttemptInput) (*models.PaymentTransaction, error) {
			captured = input
			return sampleTransaction(requestID), nil
		},
	}

	body := `{"method":"card"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-requests/"+requestID.String()+"/transactions", strings.NewReader(body))
	req = req.WithContext(middleware.WithTenantID(req.Context(), uuid.NewString()))
	req = addRouteParam(req, "requestId", requestID.String())

	resp := httptest.NewRecorder()
	TransactionAttempt(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.RequestID != requestID {
		t.Fatalf("unexpected request id %s", captured.RequestID)
	}
	if captured.Method != enums.PaymentMethodCard {
		t.Fatalf("unexpected method %s", captured.Method)
	}
}

func TestTransactionAttemptRejectsUnknownMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-requests/"+uuid.NewString()+"/transactions", strings.NewReader(`{"method":"barter"}`))
	req = addRouteParam(req, "requestId", uuid.NewString())

	resp := httptest.NewRecorder()
	TransactionAttempt(&testTransactionsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTransactionProcessForwardsSourceToken(t *testing.T) {
	transactionID := uuid.New()
	var captured transactions.ProcessInput
	svc := &testTransactionsService{
		processFn: func(ctx context.Context, id uuid.UUID, input transactions.ProcessInput) (*models.PaymentTransaction, error) {
			if id != transactionID {
				t.Fatalf("unexpected id %s", id)
			}
			captured = input
			processed := sampleTransaction(uuid.New())
			processed.Status = enums.TransactionStatusSuccess
			return processed, nil
		},
	}

	body := `{"source_token":"cnon-123","note":"first attempt"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/"+transactionID.String()+"/process", strings.NewReader(body))
	req = addRouteParam(req, "transactionId", transactionID.String())

	resp := httptest.NewRecorder()
	TransactionProcess(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.SourceToken != "cnon-123" || captured.Note != "first attempt" {
		t.Fatalf("unexpected input %+v", captured)
	}
}

func TestTransactionProcessStateConflictMapsTo409(t *testing.T) {
	svc := &testTransactionsService{
		processFn: func(ctx context.Context, id uuid.UUID, input transactions.ProcessInput) (*models.PaymentTransaction, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is not pending")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/"+uuid.NewString()+"/process", strings.NewReader(`{"source_token":"cnon-123"}`))
	req = addRouteParam(req, "transactionId", uuid.NewString())

	resp := httptest.NewRecorder()
	TransactionProcess(svc, testLogger())(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "transaction is not pending") {
		t.Fatalf("expected conflict message in body: %s", resp.Body.String())
	}
}

func TestTransactionsForRequestListsAll(t *testing.T) {
	requestID := uuid.New()
	svc := &testTransactionsService{
		listFn: func(ctx context.Context, id uuid.UUID) ([]models.PaymentTransaction, error) {
			return []models.PaymentTransaction{*sampleTransaction(id), *sampleTransaction(id)}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payment-requests/"+requestID.String()+"/transactions", nil)
	req = addRouteParam(req, "requestId", requestID.String())

	resp := httptest.NewRecorder()
	TransactionsForRequest(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var envelope struct {
		Data []transactionResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(envelope.Data))
	}
}
