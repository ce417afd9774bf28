package requests

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/paylink-backend/internal/audit"
	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
	"github.com/angelmondragon/paylink-backend/pkg/outbox"
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

// Service owns the payment request lifecycle and aggregate status derivation.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.PaymentRequest, error)
	UpdateFields(ctx context.Context, id uuid.UUID, patch Patch) (*models.PaymentRequest, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.PaymentRequest, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.PaymentRequest, error)
	ApplyRefundOutcome(ctx context.Context, id uuid.UUID, totalRefunded decimal.Decimal) (*models.PaymentRequest, error)
	ExpireSweep(ctx context.Context, now time.Time, limit int) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error)
	GetByCode(ctx context.Context, code string) (*models.PaymentRequest, error)
	GetByToken(ctx context.Context, token string) (*models.PaymentRequest, error)
	List(ctx context.Context, query ListQuery) ([]models.PaymentRequest, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxEmitter
	audit  auditRecorder
	logg   *logger.Logger
}

// CreateInput captures everything needed to open a payment request.
type CreateInput struct {
	Title          string
	Amount         decimal.Decimal
	Currency       enums.Currency
	PayerName      string
	PayerEmail     string
	PayerPhone     string
	AllowedMethods []enums.PaymentMethod
	SelectedMethod *enums.PaymentMethod
	Draft          bool
	ExpiresAt      *time.Time
	TenantID       uuid.UUID
	Metadata       json.RawMessage
	ActorID        *uuid.UUID
}

// Patch holds partial-update fields. Nil fields are left untouched.
type Patch struct {
	Title          *string
	PayerName      *string
	PayerEmail     *string
	PayerPhone     *string
	AllowedMethods []enums.PaymentMethod
	SelectedMethod *enums.PaymentMethod
	ExpiresAt      *time.Time
	Metadata       json.RawMessage
	ActorID        *uuid.UUID
}

// RequestEvent is the payload emitted on request lifecycle transitions.
type RequestEvent struct {
	RequestID    uuid.UUID                  `json:"request_id"`
	RequestCode  string                     `json:"request_code"`
	PaymentToken string                     `json:"payment_token"`
	TenantID     uuid.UUID                  `json:"tenant_id"`
	Status       enums.PaymentRequestStatus `json:"status"`
	Amount       decimal.Decimal            `json:"amount"`
	Currency     enums.Currency             `json:"currency"`
	Reason       string                     `json:"reason,omitempty"`
}

// NewService builds a payment request service with the required dependencies.
func NewService(repo Repository, tx txRunner, emitter outboxEmitter, recorder auditRecorder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("requests repository required")
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
	return &service{repo: repo, tx: tx, outbox: emitter, audit: recorder, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.PaymentRequest, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}
	if len(input.AllowedMethods) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one allowed payment method is required")
	}
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	allowed := make(pq.StringArray, 0, len(input.AllowedMethods))
	for _, method := range input.AllowedMethods {
		if !method.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", method))
		}
		allowed = append(allowed, string(method))
	}
	if input.SelectedMethod != nil && !methodAllowed(*input.SelectedMethod, input.AllowedMethods) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "selected method is not in the allowed set")
	}

	status := enums.PaymentRequestStatusPending
	if input.Draft {
		status = enums.PaymentRequestStatusDraft
	}

	request := &models.PaymentRequest{
		ID:             uuid.New(),
		RequestCode:    newCode("PR"),
		PaymentToken:   newPaymentToken(),
		Title:          strings.TrimSpace(input.Title),
		Amount:         input.Amount,
		Currency:       input.Currency,
		PayerName:      input.PayerName,
		PayerEmail:     input.PayerEmail,
		PayerPhone:     input.PayerPhone,
		AllowedMethods: allowed,
		SelectedMethod: input.SelectedMethod,
		Status:         status,
		ExpiresAt:      input.ExpiresAt,
		TenantID:       input.TenantID,
		Metadata:       input.Metadata,
		CreatedBy:      input.ActorID,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment request")
		}
		newStatus := request.Status.String()
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentRequestID: &request.ID,
			Action:           enums.AuditActionCreated,
			NewStatus:        &newStatus,
			Description:      "payment request created",
			ActorID:          input.ActorID,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRequestCreated,
			AggregateType: enums.AggregatePaymentRequest,
			AggregateID:   request.ID,
			Version:       1,
			Actor:         buildActor(input.ActorID, request.TenantID),
			Data:          s.eventPayload(request, ""),
		})
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *service) UpdateFields(ctx context.Context, id uuid.UUID, patch Patch) (*models.PaymentRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}

	var updated *models.PaymentRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment request")
		}
		if request == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment request not found")
		}
		if request.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment request is terminal and cannot be updated")
		}

		changes := map[string]any{}
		if patch.Title != nil && strings.TrimSpace(*patch.Title) != "" {
			changes["title"] = map[string]string{"old": request.Title, "new": *patch.Title}
			request.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.PayerName != nil {
			changes["payer_name"] = map[string]string{"old": request.PayerName, "new": *patch.PayerName}
			request.PayerName = *patch.PayerName
		}
		if patch.PayerEmail != nil {
			changes["payer_email"] = map[string]string{"old": request.PayerEmail, "new": *patch.PayerEmail}
			request.PayerEmail = *patch.PayerEmail
		}
		if patch.PayerPhone != nil {
			changes["payer_phone"] = map[string]string{"old": request.PayerPhone, "new": *patch.PayerPhone}
			request.PayerPhone = *patch.PayerPhone
		}
		if len(patch.AllowedMethods) > 0 {
			allowed := make(pq.StringArray, 0, len(patch.AllowedMethods))
			for _, method := range patch.AllowedMethods {
				if !method.IsValid() {
					return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", method))
				}
				allowed = append(allowed, string(method))
			}
			changes["allowed_methods"] = map[string]any{"old": request.AllowedMethods, "new": allowed}
			request.AllowedMethods = allowed
		}
		if patch.SelectedMethod != nil {
			if !patch.SelectedMethod.IsValid() {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", *patch.SelectedMethod))
			}
			request.SelectedMethod = patch.SelectedMethod
			changes["selected_method"] = string(*patch.SelectedMethod)
		}
		if patch.ExpiresAt != nil {
			request.ExpiresAt = patch.ExpiresAt
			changes["expires_at"] = patch.ExpiresAt
		}
		if patch.Metadata != nil {
			request.Metadata = patch.Metadata
			changes["metadata"] = "replaced"
		}

		// Partial update with no recognized fields is a no-op, not an error.
		if len(changes) == 0 {
			updated = request
			return nil
		}

		request.UpdatedBy = patch.ActorID
		if err := repo.Update(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment request")
		}
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentRequestID: &request.ID,
			Action:           enums.AuditActionUpdated,
			Description:      "payment request fields updated",
			ChangeDetails:    changes,
			ActorID:          patch.ActorID,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRequestUpdated,
			AggregateType: enums.AggregatePaymentRequest,
			AggregateID:   request.ID,
			Version:       1,
			Actor:         buildActor(patch.ActorID, request.TenantID),
			Data:          s.eventPayload(request, ""),
		}); err != nil {
			return err
		}
		updated = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.PaymentRequest, error) {
	return s.transition(ctx, transitionInput{
		id:          id,
		target:      enums.PaymentRequestStatusCancelled,
		action:      enums.AuditActionCancelled,
		eventType:   enums.EventRequestCancelled,
		description: cancelDescription(reason),
		reason:      reason,
		actorID:     actorID,
	})
}

func (s *service) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.PaymentRequest, error) {
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	return s.transition(ctx, transitionInput{
		id:          id,
		target:      enums.PaymentRequestStatusCompleted,
		action:      enums.AuditActionPaid,
		eventType:   enums.EventRequestPaid,
		description: "payment request paid",
		paidAt:      &paidAt,
	})
}

func (s *service) ApplyRefundOutcome(ctx context.Context, id uuid.UUID, totalRefunded decimal.Decimal) (*models.PaymentRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if totalRefunded.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund total must not be negative")
	}

	var updated *models.PaymentRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment request")
		}
		if request == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment request not found")
		}
		if request.Status == enums.PaymentRequestStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled payment request cannot take refund outcomes")
		}

		target := request.Status
		switch {
		case totalRefunded.GreaterThanOrEqual(request.Amount):
			target = enums.PaymentRequestStatusRefunded
		case totalRefunded.IsPositive():
			target = enums.PaymentRequestStatusPartialRefund
		}
		if target == request.Status {
			updated = request
			return nil
		}

		oldStatus := request.Status.String()
		newStatus := target.String()
		request.Status = target
		if err := repo.Update(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment request status")
		}

		description := fmt.Sprintf("refund outcome applied: refunded %s of %s %s",
			totalRefunded.StringFixed(2), request.Amount.StringFixed(2), request.Currency)
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentRequestID: &request.ID,
			Action:           enums.AuditActionStatusUpdated,
			OldStatus:        &oldStatus,
			NewStatus:        &newStatus,
			Description:      description,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRequestRefunded,
			AggregateType: enums.AggregatePaymentRequest,
			AggregateID:   request.ID,
			Version:       1,
			Data:          s.eventPayload(request, description),
		}); err != nil {
			return err
		}
		updated = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ExpireSweep cancels DRAFT/PENDING requests past their expiry. Each request is
// committed independently so a mid-sweep failure never rolls back prior items.
func (s *service) ExpireSweep(ctx context.Context, now time.Time, limit int) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	expired, err := s.repo.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired payment requests")
	}

	var swept int
	var sweepErr error
	for _, request := range expired {
		if _, err := s.expireOne(ctx, request.ID); err != nil {
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("expire request %s: %w", request.ID, err))
			continue
		}
		swept++
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"expired": swept, "candidates": len(expired)})
		s.logg.Info(logCtx, "payment request expiry sweep complete")
	}
	return swept, sweepErr
}

func (s *service) expireOne(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	return s.transition(ctx, transitionInput{
		id:          id,
		target:      enums.PaymentRequestStatusCancelled,
		action:      enums.AuditActionExpired,
		eventType:   enums.EventRequestExpired,
		description: "payment request expired",
		reason:      "expired",
	})
}

type transitionInput struct {
	id          uuid.UUID
	target      enums.PaymentRequestStatus
	action      enums.AuditAction
	eventType   enums.OutboxEventType
	description string
	reason      string
	paidAt      *time.Time
	actorID     *uuid.UUID
}

func (s *service) transition(ctx context.Context, input transitionInput) (*models.PaymentRequest, error) {
	if input.id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}

	var updated *models.PaymentRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByID(ctx, input.id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment request")
		}
		if request == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment request not found")
		}
		// Re-applying the same terminal outcome is a no-op; duplicate sweeps stay silent.
		if request.Status == input.target {
			updated = request
			return nil
		}
		if request.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("payment request in status %q cannot transition to %q", request.Status, input.target))
		}
		if input.target == enums.PaymentRequestStatusCompleted &&
			request.Status != enums.PaymentRequestStatusDraft &&
			request.Status != enums.PaymentRequestStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("payment request in status %q cannot be marked paid", request.Status))
		}

		oldStatus := request.Status.String()
		newStatus := input.target.String()
		request.Status = input.target
		if input.paidAt != nil {
			request.PaidAt = input.paidAt
		}
		if input.actorID != nil {
			request.UpdatedBy = input.actorID
		}
		if err := repo.Update(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment request status")
		}
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			PaymentRequestID: &request.ID,
			Action:           input.action,
			OldStatus:        &oldStatus,
			NewStatus:        &newStatus,
			Description:      input.description,
			ActorID:          input.actorID,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     input.eventType,
			AggregateType: enums.AggregatePaymentRequest,
			AggregateID:   request.ID,
			Version:       1,
			Actor:         buildActor(input.actorID, request.TenantID),
			Data:          s.eventPayload(request, input.reason),
		}); err != nil {
			return err
		}
		updated = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment request")
	}
	if request == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment request not found")
	}
	return request, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (*models.PaymentRequest, error) {
	request, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment request")
	}
	if request == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment request not found")
	}
	return request, nil
}

func (s *service) GetByToken(ctx context.Context, token string) (*models.PaymentRequest, error) {
	request, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment request")
	}
	if request == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment request not found")
	}
	return request, nil
}

func (s *service) List(ctx context.Context, query ListQuery) ([]models.PaymentRequest, error) {
	return s.repo.List(ctx, query)
}

func (s *service) eventPayload(request *models.PaymentRequest, reason string) RequestEvent {
	return RequestEvent{
		RequestID:    request.ID,
		RequestCode:  request.RequestCode,
		PaymentToken: request.PaymentToken,
		TenantID:     request.TenantID,
		Status:       request.Status,
		Amount:       request.Amount,
		Currency:     request.Currency,
		Reason:       reason,
	}
}

func cancelDescription(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "payment request cancelled"
	}
	return "payment request cancelled: " + reason
}

func methodAllowed(method enums.PaymentMethod, allowed []enums.PaymentMethod) bool {
	for _, candidate := range allowed {
		if candidate == method {
			return true
		}
	}
	return false
}

func buildActor(actorID *uuid.UUID, tenantID uuid.UUID) *outbox.ActorRef {
	if actorID == nil {
		return nil
	}
	ref := &outbox.ActorRef{ActorID: *actorID}
	if tenantID != uuid.Nil {
		tenant := tenantID
		ref.TenantID = &tenant
	}
	return ref
}

func newCode(prefix string) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s", prefix, raw[:12])
}

func newPaymentToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
