package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paylink-backend/api/middleware"
	"github.com/angelmondragon/paylink-backend/internal/requests"
	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

type testRequestsService struct {
	createFn   func(ctx context.Context, input requests.CreateInput) (*models.PaymentRequest, error)
	cancelFn   func(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.PaymentRequest, error)
	getByIDFn  func(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error)
	getTokenFn func(ctx context.Context, token string) (*models.PaymentRequest, error)
	listFn     func(ctx context.Context, query requests.ListQuery) ([]models.PaymentRequest, error)
}

func (s *testRequestsService) Create(ctx context.Context, input requests.CreateInput) (*models.PaymentRequest, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return nil, nil
}

func (s *testRequestsService) UpdateFields(ctx context.Context, id uuid.UUID, patch requests.Patch) (*models.PaymentRequest, error) {
	return nil, nil
}

func (s *testRequestsService) Cancel(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.PaymentRequest, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, id, reason, actorID)
	}
	return nil, nil
}

func (s *testRequestsService) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.PaymentRequest, error) {
	return nil, nil
}

func (s *testRequestsService) ApplyRefundOutcome(ctx context.Context, id uuid.UUID, totalRefunded decimal.Decimal) (*models.PaymentRequest, error) {
	return nil, nil
}

func (s *testRequestsService) ExpireSweep(ctx context.Context, now time.Time, limit int) (int, error) {
	return 0, nil
}

func (s *testRequestsService) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (s *testRequestsService) GetByCode(ctx context.Context, code string) (*models.PaymentRequest, error) {
	return nil, nil
}

func (s *testRequestsService) GetByToken(ctx context.Context, token string) (*models.PaymentRequest, error) {
	if s.getTokenFn != nil {
		return s.getTokenFn(ctx, token)
	}
	return nil, nil
}

func (s *testRequestsService) List(ctx context.Context, query requests.ListQuery) ([]models.PaymentRequest, error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return nil, nil
}

func sampleRequest(tenantID uuid.UUID) *models.PaymentRequest {
	return &models.PaymentRequest{
		ID:             uuid.New(),
		RequestCode:    "PR-TEST00000001",
		PaymentToken:   "tok-sample",
		Title:          "Invoice 44",
		Amount:         decimal.RequireFromString("100.00"),
		Currency:       enums.CurrencyUSD,
		AllowedMethods: pq.StringArray{string(enums.PaymentMethodCard)},
		Status:         enums.PaymentRequestStatusPending,
		TenantID:       tenantID,
	}
}

func TestRequestCreateSuccess(t *testing.T) {
	tenantID := uuid.New()
	var captured requests.CreateInput
	svc := &testRequestsService{
		createFn: func(ctx context.Context, input requests.CreateInput) (*models.PaymentRequest, error) {
			captured = input
			return sampleRequest(tenantID), nil
		},
	}

	body := `{"title":"Invoice 44","amount":"100.00","allowed_methods":["card"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-requests", strings.NewReader(body))
	req = req.WithContext(middleware.WithTenantID(req.Context(), tenantID.String()))

	resp := httptest.NewRecorder()
	RequestCreate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.TenantID != tenantID {
		t.Fatalf("expected tenant %s, got %s", tenantID, captured.TenantID)
	}
	if !captured.Amount.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("unexpected amount %s", captured.Amount)
	}
	if len(captured.AllowedMethods) != 1 || captured.AllowedMethods[0] != enums.PaymentMethodCard {
		t.Fatalf("unexpected methods %v", captured.AllowedMethods)
	}

	var envelope struct {
		Data requestResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.RequestCode != "PR-TEST00000001" {
		t.Fatalf("unexpected request code %s", envelope.Data.RequestCode)
	}
}

func TestRequestCreateRejectsBadAmount(t *testing.T) {
	svc := &testRequestsService{}
	body := `{"title":"Invoice","amount":"not-a-number","allowed_methods":["card"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-requests", strings.NewReader(body))
	req = req.WithContext(middleware.WithTenantID(req.Context(), uuid.NewString()))

	resp := httptest.NewRecorder()
	RequestCreate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestRequestCreateMissingTenant(t *testing.T) {
	body := `{"title":"Invoice","amount":"10.00","allowed_methods":["card"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-requests", strings.NewReader(body))

	resp := httptest.NewRecorder()
	RequestCreate(&testRequestsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestRequestCancelPassesReasonAndActor(t *testing.T) {
	tenantID := uuid.New()
	actorID := uuid.New()
	requestID := uuid.New()
	var gotReason string
	var gotActor *uuid.UUID
	svc := &testRequestsService{
		cancelFn: func(ctx context.Context, id uuid.UUID, reason string, actor *uuid.UUID) (*models.PaymentRequest, error) {
			if id != requestID {
				t.Fatalf("unexpected id %s", id)
			}
			gotReason = reason
			gotActor = actor
			return sampleRequest(tenantID), nil
		},
	}

	body := `{"reason":"duplicate invoice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-requests/"+requestID.String()+"/cancel", strings.NewReader(body))
	req = req.WithContext(middleware.WithTenantID(req.Context(), tenantID.String()))
	req = req.WithContext(middleware.WithActorID(req.Context(), actorID.String()))
	req = addRouteParam(req, "requestId", requestID.String())

	resp := httptest.NewRecorder()
	RequestCancel(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if gotReason != "duplicate invoice" {
		t.Fatalf("unexpected reason %q", gotReason)
	}
	if gotActor == nil || *gotActor != actorID {
		t.Fatalf("expected actor %s, got %v", actorID, gotActor)
	}
}

func TestPayLinkReturnsLimitedView(t *testing.T) {
	tenantID := uuid.New()
	svc := &testRequestsService{
		getTokenFn: func(ctx context.Context, token string) (*models.PaymentRequest, error) {
			if token != "tok-sample" {
				t.Fatalf("unexpected token %q", token)
			}
			return sampleRequest(tenantID), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/public/pay/tok-sample", nil)
	req = addRouteParam(req, "paymentToken", "tok-sample")

	resp := httptest.NewRecorder()
	PayLink(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "payment_token") {
		t.Fatal("pay link response must not echo the token")
	}
	if strings.Contains(resp.Body.String(), "tenant_id") {
		t.Fatal("pay link response must not expose the tenant")
	}
}

func TestRequestListAppliesFilters(t *testing.T) {
	tenantID := uuid.New()
	var captured requests.ListQuery
	svc := &testRequestsService{
		listFn: func(ctx context.Context, query requests.ListQuery) ([]models.PaymentRequest, error) {
			captured = query
			return []models.PaymentRequest{*sampleRequest(tenantID)}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payment-requests?status=pending&limit=10&search=invoice", nil)
	req = req.WithContext(middleware.WithTenantID(req.Context(), tenantID.String()))

	resp := httptest.NewRecorder()
	RequestList(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if captured.TenantID != tenantID {
		t.Fatalf("unexpected tenant %s", captured.TenantID)
	}
	if captured.Status == nil || *captured.Status != enums.PaymentRequestStatusPending {
		t.Fatalf("unexpected status filter %v", captured.Status)
	}
	if captured.Limit != 10 || captured.Search != "invoice" {
		t.Fatalf("unexpected query %+v", captured)
	}
}

func TestRequestListRejectsBadStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payment-requests?status=bogus", nil)
	req = req.WithContext(middleware.WithTenantID(req.Context(), uuid.NewString()))

	resp := httptest.NewRecorder()
	RequestList(&testRequestsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
