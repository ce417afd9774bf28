package requests

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
)

// Repository handles payment request persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.PaymentRequest) error
	Update(ctx context.Context, request *models.PaymentRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error)
	FindByCode(ctx context.Context, code string) (*models.PaymentRequest, error)
	FindByToken(ctx context.Context, token string) (*models.PaymentRequest, error)
	List(ctx context.Context, query ListQuery) ([]models.PaymentRequest, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.PaymentRequest, error)
}

// ListQuery configures payment request list filters.
type ListQuery struct {
	TenantID      uuid.UUID
	Status        *enums.PaymentRequestStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Search        string
	Limit         int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment request repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.PaymentRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) Update(ctx context.Context, request *models.PaymentRequest) error {
	return r.db.WithContext(ctx).Save(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.PaymentRequest, error) {
	if code == "" {
		return nil, nil
	}
	return r.findOne(ctx, "request_code = ?", code)
}

func (r *repository) FindByToken(ctx context.Context, token string) (*models.PaymentRequest, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx, "payment_token = ?", token)
}

func (r *repository) findOne(ctx context.Context, cond string, arg any) (*models.PaymentRequest, error) {
	var request models.PaymentRequest
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&request).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.PaymentRequest, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Model(&models.PaymentRequest{})
	if query.TenantID != uuid.Nil {
		q = q.Where("tenant_id = ?", query.TenantID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *query.CreatedAfter)
	}
	if query.CreatedBefore != nil {
		q = q.Where("created_at < ?", *query.CreatedBefore)
	}
	if query.Search != "" {
		pattern := "%" + query.Search + "%"
		q = q.Where("title LIKE ? OR payer_name LIKE ? OR payer_email LIKE ?", pattern, pattern, pattern)
	}

	var requests []models.PaymentRequest
	if err := q.Order("created_at DESC").Limit(limit).Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.PaymentRequest, error) {
	if limit <= 0 {
		limit = 250
	}
	statuses := []enums.PaymentRequestStatus{
		enums.PaymentRequestStatusDraft,
		enums.PaymentRequestStatusPending,
	}
	var requests []models.PaymentRequest
	if err := r.db.WithContext(ctx).
		Where("status IN (?)", statuses).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}
