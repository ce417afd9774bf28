package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paylink-backend/pkg/enums"
)

// PaymentRequest is the payer-facing intent to pay a specific amount.
type PaymentRequest struct {
	ID             uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RequestCode    string                     `gorm:"column:request_code;not null;unique"`
	PaymentToken   string                     `gorm:"column:payment_token;not null;unique"`
	Title          string                     `gorm:"column:title;not null"`
	Amount         decimal.Decimal            `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency       enums.Currency             `gorm:"column:currency;not null;default:'USD'"`
	PayerName      string                     `gorm:"column:payer_name"`
	PayerEmail     string                     `gorm:"column:payer_email"`
	PayerPhone     string                     `gorm:"column:payer_phone"`
	AllowedMethods pq.StringArray             `gorm:"column:allowed_methods;type:text[];not null"`
	SelectedMethod *enums.PaymentMethod       `gorm:"column:selected_method;type:payment_method"`
	Status         enums.PaymentRequestStatus `gorm:"column:status;type:payment_request_status;not null;default:'pending'"`
	ExpiresAt      *time.Time                 `gorm:"column:expires_at"`
	PaidAt         *time.Time                 `gorm:"column:paid_at"`
	TenantID       uuid.UUID                  `gorm:"column:tenant_id;type:uuid;not null;index"`
	Metadata       json.RawMessage            `gorm:"column:metadata;type:jsonb"`
	CreatedBy      *uuid.UUID                 `gorm:"column:created_by;type:uuid"`
	UpdatedBy      *uuid.UUID                 `gorm:"column:updated_by;type:uuid"`
	CreatedAt      time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
