package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paylink-backend/pkg/enums"
)

// PaymentTransaction is one gateway-facing attempt to move money for a request.
type PaymentTransaction struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionCode  string                  `gorm:"column:transaction_code;not null;unique"`
	PaymentRequestID uuid.UUID               `gorm:"column:payment_request_id;type:uuid;not null;index"`
	Amount           decimal.Decimal         `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency         enums.Currency          `gorm:"column:currency;not null;default:'USD'"`
	Method           enums.PaymentMethod     `gorm:"column:method;type:payment_method;not null"`
	Type             enums.TransactionType   `gorm:"column:type;type:transaction_type;not null;default:'payment'"`
	Status           enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'pending'"`
	ExternalID       *string                 `gorm:"column:external_id;index"`
	Gateway          string                  `gorm:"column:gateway"`
	GatewayResponse  json.RawMessage         `gorm:"column:gateway_response;type:jsonb"`
	ProcessedAt      *time.Time              `gorm:"column:processed_at"`
	ErrorCode        *string                 `gorm:"column:error_code"`
	ErrorMessage     *string                 `gorm:"column:error_message"`
	RetryCount       int                     `gorm:"column:retry_count;not null;default:0"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
