package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/paylink-backend/pkg/db/models"
)

// Repository handles audit log persistence. Entries are append-only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	ListByPaymentRequest(ctx context.Context, requestID uuid.UUID, limit int) ([]models.AuditLogEntry, error)
	ListByTransaction(ctx context.Context, transactionID uuid.UUID, limit int) ([]models.AuditLogEntry, error)
	ListByRefund(ctx context.Context, refundID uuid.UUID, limit int) ([]models.AuditLogEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByPaymentRequest(ctx context.Context, requestID uuid.UUID, limit int) ([]models.AuditLogEntry, error) {
	return r.list(ctx, "payment_request_id = ?", requestID, limit)
}

func (r *repository) ListByTransaction(ctx context.Context, transactionID uuid.UUID, limit int) ([]models.AuditLogEntry, error) {
	return r.list(ctx, "payment_transaction_id = ?", transactionID, limit)
}

func (r *repository) ListByRefund(ctx context.Context, refundID uuid.UUID, limit int) ([]models.AuditLogEntry, error) {
	return r.list(ctx, "payment_refund_id = ?", refundID, limit)
}

func (r *repository) list(ctx context.Context, cond string, id uuid.UUID, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.AuditLogEntry
	if err := r.db.WithContext(ctx).
		Where(cond, id).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	res := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&models.AuditLogEntry{}).
			Select("id").
			Where("created_at < ?", cutoff).
			Order("created_at ASC").
			Limit(limit)).
		Delete(&models.AuditLogEntry{})
	return res.RowsAffected, res.Error
}
