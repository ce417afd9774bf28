package refunds

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
)

// Repository handles payment refund persistence and the aggregates backing
// refundable-amount checks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, refund *models.PaymentRefund) error
	Update(ctx context.Context, refund *models.PaymentRefund) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRefund, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentRefund, error)
	FindByCode(ctx context.Context, code string) (*models.PaymentRefund, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.PaymentRefund, error)
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.PaymentRefund, error)
	SumSuccessfulByTransaction(ctx context.Context, transactionID uuid.UUID) (decimal.Decimal, error)
	SumOutstandingByTransaction(ctx context.Context, transactionID uuid.UUID) (decimal.Decimal, error)
	SumSuccessfulByRequest(ctx context.Context, requestID uuid.UUID) (decimal.Decimal, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentRefund, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment refund repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, refund *models.PaymentRefund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) Update(ctx context.Context, refund *models.PaymentRefund) error {
	return r.db.WithContext(ctx).Save(refund).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRefund, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.findOne(ctx, "id = ?", id)
}

// FindByIDForUpdate loads the row under FOR UPDATE so concurrent mutators of
// the same refund serialize on it. Only meaningful inside a transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentRefund, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var refund models.PaymentRefund
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&refund).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.PaymentRefund, error) {
	if code == "" {
		return nil, nil
	}
	return r.findOne(ctx, "refund_code = ?", code)
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.PaymentRefund, error) {
	if externalID == "" {
		return nil, nil
	}
	return r.findOne(ctx, "external_id = ?", externalID)
}

func (r *repository) findOne(ctx context.Context, cond string, arg any) (*models.PaymentRefund, error) {
	var refund models.PaymentRefund
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&refund).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

func (r *repository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.PaymentRefund, error) {
	var refunds []models.PaymentRefund
	if err := r.db.WithContext(ctx).
		Where("payment_transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&refunds).Error; err != nil {
		return nil, err
	}
	return refunds, nil
}

// SumSuccessfulByTransaction returns the total amount of SUCCESS refunds for a
// transaction, zero when there are none.
func (r *repository) SumSuccessfulByTransaction(ctx context.Context, transactionID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.PaymentRefund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("payment_transaction_id = ? AND status = ?", transactionID, enums.RefundStatusSuccess).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// SumOutstandingByTransaction returns the total amount of PENDING and SUCCESS
// refunds for a transaction. Refund creation checks against this sum so
// refunds still in flight reserve their share of the refundable balance.
func (r *repository) SumOutstandingByTransaction(ctx context.Context, transactionID uuid.UUID) (decimal.Decimal, error) {
	statuses := []enums.RefundStatus{
		enums.RefundStatusPending,
		enums.RefundStatusSuccess,
	}
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.PaymentRefund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("payment_transaction_id = ? AND status IN (?)", transactionID, statuses).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// SumSuccessfulByRequest totals SUCCESS refunds across every transaction of a
// payment request, zero when there are none.
func (r *repository) SumSuccessfulByRequest(ctx context.Context, requestID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.PaymentRefund{}).
		Select("COALESCE(SUM(payment_refunds.amount), 0)").
		Joins("JOIN payment_transactions ON payment_transactions.id = payment_refunds.payment_transaction_id").
		Where("payment_transactions.payment_request_id = ? AND payment_refunds.status = ?", requestID, enums.RefundStatusSuccess).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *repository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentRefund, error) {
	if limit <= 0 {
		limit = 250
	}
	var refunds []models.PaymentRefund
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.RefundStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&refunds).Error; err != nil {
		return nil, err
	}
	return refunds, nil
}
