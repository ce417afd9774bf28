package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/paylink-backend/pkg/enums"
)

// AuditLogEntry is a write-once record of one lifecycle transition.
type AuditLogEntry struct {
	ID                   int64             `gorm:"column:id;primaryKey;autoIncrement"`
	PaymentRequestID     *uuid.UUID        `gorm:"column:payment_request_id;type:uuid;index"`
	PaymentTransactionID *uuid.UUID        `gorm:"column:payment_transaction_id;type:uuid;index"`
	PaymentRefundID      *uuid.UUID        `gorm:"column:payment_refund_id;type:uuid;index"`
	Action               enums.AuditAction `gorm:"column:action;not null"`
	OldStatus            *string           `gorm:"column:old_status"`
	NewStatus            *string           `gorm:"column:new_status"`
	Description          string            `gorm:"column:description"`
	ChangeDetails        json.RawMessage   `gorm:"column:change_details;type:jsonb"`
	ActorID              *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	UserAgent            string            `gorm:"column:user_agent"`
	SourceIP             string            `gorm:"column:source_ip"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
}
