package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paylink-backend/pkg/enums"
)

// PaymentRefund is one gateway-facing attempt to return money for a transaction.
type PaymentRefund struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RefundCode           string             `gorm:"column:refund_code;not null;unique"`
	PaymentTransactionID uuid.UUID          `gorm:"column:payment_transaction_id;type:uuid;not null;index"`
	Amount               decimal.Decimal    `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency             enums.Currency     `gorm:"column:currency;not null;default:'USD'"`
	Reason               string             `gorm:"column:reason"`
	Status               enums.RefundStatus `gorm:"column:status;type:refund_status;not null;default:'pending'"`
	ExternalID           *string            `gorm:"column:external_id;index"`
	Gateway              string             `gorm:"column:gateway"`
	GatewayResponse      json.RawMessage    `gorm:"column:gateway_response;type:jsonb"`
	ProcessedAt          *time.Time         `gorm:"column:processed_at"`
	ErrorCode            *string            `gorm:"column:error_code"`
	ErrorMessage         *string            `gorm:"column:error_message"`
	RetryCount           int                `gorm:"column:retry_count;not null;default:0"`
	CreatedBy            *uuid.UUID         `gorm:"column:created_by;type:uuid"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
