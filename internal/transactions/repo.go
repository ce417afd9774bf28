package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
)

// Repository handles payment transaction persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transaction *models.PaymentTransaction) error
	Update(ctx context.Context, transaction *models.PaymentTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByCode(ctx context.Context, code string) (*models.PaymentTransaction, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error)
	GetSuccessfulForRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment transaction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, transaction *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

func (r *repository) Update(ctx context.Context, transaction *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Save(transaction).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.findOne(ctx, r.db, "id = ?", id)
}

// FindByIDForUpdate loads the row under FOR UPDATE so concurrent mutators of the
// same transaction serialize on it. Only meaningful inside a transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	locked := r.db.Clauses(clause.Locking{Strength: "UPDATE"})
	return r.findOne(ctx, locked, "id = ?", id)
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.PaymentTransaction, error) {
	if code == "" {
		return nil, nil
	}
	return r.findOne(ctx, r.db, "transaction_code = ?", code)
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	if externalID == "" {
		return nil, nil
	}
	return r.findOne(ctx, r.db, "external_id = ?", externalID)
}

func (r *repository) findOne(ctx context.Context, db *gorm.DB, cond string, arg any) (*models.PaymentTransaction, error) {
	var transaction models.PaymentTransaction
	if err := db.WithContext(ctx).Where(cond, arg).First(&transaction).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

func (r *repository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error) {
	var transactions []models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("payment_request_id = ?", requestID).
		Order("created_at ASC").
		Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *repository) GetSuccessfulForRequest(ctx context.Context, requestID uuid.UUID) ([]models.PaymentTransaction, error) {
	var transactions []models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("payment_request_id = ? AND status = ?", requestID, enums.TransactionStatusSuccess).
		Order("created_at ASC").
		Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *repository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 250
	}
	var transactions []models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.TransactionStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}
