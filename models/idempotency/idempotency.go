package idempotency

import (
	"time"
)

// Processing status values for an IdempotencyRecord.
const (
	StatusProcessed = "PROCESSED"
	StatusFailed    = "FAILED"
)

// IdempotencyRecord is the durable at-most-once marker for one external
// payment-gateway event. Rows are write-once: created before the domain
// mutation is attempted, then only the processing outcome is appended.
// The unique index on EventID is the concurrency primitive that defeats
// at-least-once redelivery.
type IdempotencyRecord struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	EventID   string `gorm:"type:varchar(255);not null;uniqueIndex:ux_idempotency_event_id" json:"event_id"`
	EventType string `gorm:"type:varchar(100);not null" json:"event_type"`
	BookingID uint   `gorm:"not null;index" json:"booking_id"`

	Status      string     `gorm:"type:varchar(20)" json:"status"`
	ErrorDetail string     `gorm:"type:text" json:"error_detail,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName sets the table name for the IdempotencyRecord model
func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}
