package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paylink-backend/api/middleware"
	"github.com/angelmondragon/paylink-backend/api/responses"
	"github.com/angelmondragon/paylink-backend/api/validators"
	"github.com/angelmondragon/paylink-backend/internal/requests"
	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

type requestCreateRequest struct {
	Title          string          `json:"title" validate:"required,max=200"`
	Amount         string          `json:"amount" validate:"required"`
	Currency       string          `json:"currency"`
	PayerName      string          `json:"payer_name" validate:"max=120"`
	PayerEmail     string          `json:"payer_email" validate:"omitempty,email"`
	PayerPhone     string          `json:"payer_phone" validate:"max=40"`
	AllowedMethods []string        `json:"allowed_methods" validate:"required,min=1"`
	SelectedMethod *string         `json:"selected_method"`
	Draft          bool            `json:"draft"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	Metadata       json.RawMessage `json:"metadata"`
}

func (p requestCreateRequest) toInput(tenantID uuid.UUID, actorID *uuid.UUID) (requests.CreateInput, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(p.Amount))
	if err != nil {
		return requests.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}

	currency := enums.CurrencyUSD
	if raw := strings.TrimSpace(p.Currency); raw != "" {
		currency, err = enums.ParseCurrency(raw)
		if err != nil {
			return requests.CreateInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
		}
	}

	methods, err := parsePaymentMethods(p.AllowedMethods)
	if err != nil {
		return requests.CreateInput{}, err
	}

	var selected *enums.PaymentMethod
	if p.SelectedMethod != nil {
		method, parseErr := enums.ParsePaymentMethod(strings.TrimSpace(*p.SelectedMethod))
		if parseErr != nil {
			return requests.CreateInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid selected method")
		}
		selected = &method
	}

	return requests.CreateInput{
		Title:          validators.SanitizeString(p.Title, 200),
		Amount:         amount,
		Currency:       currency,
		PayerName:      validators.SanitizeString(p.PayerName, 120),
		PayerEmail:     validators.SanitizeString(p.PayerEmail, 254),
		PayerPhone:     validators.SanitizeString(p.PayerPhone, 40),
		AllowedMethods: methods,
		SelectedMethod: selected,
		Draft:          p.Draft,
		ExpiresAt:      p.ExpiresAt,
		TenantID:       tenantID,
		Metadata:       p.Metadata,
		ActorID:        actorID,
	}, nil
}

func parsePaymentMethods(raw []string) ([]enums.PaymentMethod, error) {
	methods := make([]enums.PaymentMethod, 0, len(raw))
	for _, value := range raw {
		method, err := enums.ParsePaymentMethod(strings.TrimSpace(value))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").WithDetails(map[string]any{"method": value})
		}
		methods = append(methods, method)
	}
	return methods, nil
}

// RequestCreate opens a new payment request for the calling tenant.
func RequestCreate(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment request service unavailable"))
			return
		}

		tenantID, err := tenantFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload requestCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(tenantID, actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, requestResponseFromModel(created))
	}
}

type requestUpdateRequest struct {
	Title          *string         `json:"title" validate:"omitempty,max=200"`
	PayerName      *string         `json:"payer_name" validate:"omitempty,max=120"`
	PayerEmail     *string         `json:"payer_email" validate:"omitempty,email"`
	PayerPhone     *string         `json:"payer_phone" validate:"omitempty,max=40"`
	AllowedMethods []string        `json:"allowed_methods"`
	SelectedMethod *string         `json:"selected_method"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	Metadata       json.RawMessage `json:"metadata"`
}

func (p requestUpdateRequest) toPatch(actorID *uuid.UUID) (requests.Patch, error) {
	patch := requests.Patch{
		Title:      p.Title,
		PayerName:  p.PayerName,
		PayerEmail: p.PayerEmail,
		PayerPhone: p.PayerPhone,
		ExpiresAt:  p.ExpiresAt,
		Metadata:   p.Metadata,
		ActorID:    actorID,
	}
	if len(p.AllowedMethods) > 0 {
		methods, err := parsePaymentMethods(p.AllowedMethods)
		if err != nil {
			return requests.Patch{}, err
		}
		patch.AllowedMethods = methods
	}
	if p.SelectedMethod != nil {
		method, err := enums.ParsePaymentMethod(strings.TrimSpace(*p.SelectedMethod))
		if err != nil {
			return requests.Patch{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid selected method")
		}
		patch.SelectedMethod = &method
	}
	return patch, nil
}

// RequestUpdate applies a partial update to a non-terminal payment request.
func RequestUpdate(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment request service unavailable"))
			return
		}

		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload requestUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		patch, err := payload.toPatch(actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.UpdateFields(r.Context(), requestID, patch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, requestResponseFromModel(updated))
	}
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RequestCancel moves a payment request to cancelled.
func RequestCancel(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment request service unavailable"))
			return
		}

		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cancelled, err := svc.Cancel(r.Context(), requestID, validators.SanitizeString(payload.Reason, 500), actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, requestResponseFromModel(cancelled))
	}
}

// RequestDetail fetches a payment request by id.
func RequestDetail(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment request service unavailable"))
			return
		}

		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.GetByID(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, requestResponseFromModel(request))
	}
}

// RequestByCode fetches a payment request by its human-readable code.
func RequestByCode(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment request service unavailable"))
			return
		}

		code := strings.TrimSpace(chi.URLParam(r, "requestCode"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request code required"))
			return
		}

		request, err := svc.GetByCode(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, requestResponseFromModel(request))
	}
}

// PayLink is the public payer-facing view of a payment request, looked up by
// its opaque payment token. It exposes only what the payer needs to pay.
func PayLink(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment request service unavailable"))
			return
		}

		token := strings.TrimSpace(chi.URLParam(r, "paymentToken"))
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment token required"))
			return
		}

		request, err := svc.GetByToken(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, payLinkResponseFromModel(request))
	}
}

// RequestList returns the tenant's payment requests, newest first.
func RequestList(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment request service unavailable"))
			return
		}

		tenantID, err := tenantFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := requests.ListQuery{
			TenantID: tenantID,
			Search:   validators.SanitizeString(r.URL.Query().Get("search"), 100),
			Limit:    limit,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, parseErr := enums.ParsePaymentRequestStatus(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter"))
				return
			}
			query.Status = &status
		}
		if after, parseErr := parseQueryTime(r, "created_after"); parseErr != nil {
			responses.WriteError(r.Context(), logg, w, parseErr)
			return
		} else if after != nil {
			query.CreatedAfter = after
		}
		if before, parseErr := parseQueryTime(r, "created_before"); parseErr != nil {
			responses.WriteError(r.Context(), logg, w, parseErr)
			return
		} else if before != nil {
			query.CreatedBefore = before
		}

		rows, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]requestResponse, 0, len(rows))
		for i := range rows {
			out = append(out, requestResponseFromModel(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type requestResponse struct {
	ID             uuid.UUID                  `json:"id"`
	RequestCode    string                     `json:"request_code"`
	PaymentToken   string                     `json:"payment_token"`
	Title          string                     `json:"title"`
	Amount         decimal.Decimal            `json:"amount"`
	Currency       enums.Currency             `json:"currency"`
	PayerName      string                     `json:"payer_name,omitempty"`
	PayerEmail     string                     `json:"payer_email,omitempty"`
	PayerPhone     string                     `json:"payer_phone,omitempty"`
	AllowedMethods pq.StringArray             `json:"allowed_methods"`
	SelectedMethod *enums.PaymentMethod       `json:"selected_method,omitempty"`
	Status         enums.PaymentRequestStatus `json:"status"`
	ExpiresAt      *time.Time                 `json:"expires_at,omitempty"`
	PaidAt         *time.Time                 `json:"paid_at,omitempty"`
	TenantID       uuid.UUID                  `json:"tenant_id"`
	Metadata       json.RawMessage            `json:"metadata,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

func requestResponseFromModel(m *models.PaymentRequest) requestResponse {
	return requestResponse{
		ID:             m.ID,
		RequestCode:    m.RequestCode,
		PaymentToken:   m.PaymentToken,
		Title:          m.Title,
		Amount:         m.Amount,
		Currency:       m.Currency,
		PayerName:      m.PayerName,
		PayerEmail:     m.PayerEmail,
		PayerPhone:     m.PayerPhone,
		AllowedMethods: m.AllowedMethods,
		SelectedMethod: m.SelectedMethod,
		Status:         m.Status,
		ExpiresAt:      m.ExpiresAt,
		PaidAt:         m.PaidAt,
		TenantID:       m.TenantID,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type payLinkResponse struct {
	RequestCode    string                     `json:"request_code"`
	Title          string                     `json:"title"`
	Amount         decimal.Decimal            `json:"amount"`
	Currency       enums.Currency             `json:"currency"`
	AllowedMethods pq.StringArray             `json:"allowed_methods"`
	Status         enums.PaymentRequestStatus `json:"status"`
	ExpiresAt      *time.Time                 `json:"expires_at,omitempty"`
}

func payLinkResponseFromModel(m *models.PaymentRequest) payLinkResponse {
	return payLinkResponse{
		RequestCode:    m.RequestCode,
		Title:          m.Title,
		Amount:         m.Amount,
		Currency:       m.Currency,
		AllowedMethods: m.AllowedMethods,
		Status:         m.Status,
		ExpiresAt:      m.ExpiresAt,
	}
}

func tenantFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.TenantIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing")
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tenant id")
	}
	return tenantID, nil
}

func actorFromContext(r *http.Request) *uuid.UUID {
	raw := middleware.ActorIDFromContext(r.Context())
	if raw == "" {
		return nil
	}
	actorID, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &actorID
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, key)))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key)
	}
	return id, nil
}

func parseQueryTime(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be RFC3339").WithDetails(map[string]any{"field": key})
	}
	return &value, nil
}
