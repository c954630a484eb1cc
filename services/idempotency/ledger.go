package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	idempotencyModel "hotelmate-backend/models/idempotency"
)

// Ledger is the durable at-most-once record for external payment events.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordEventOnce inserts a ledger row for eventID and reports whether this
// is the first delivery. The insert and the uniqueness check are one
// constrained statement (ON CONFLICT DO NOTHING against the unique event_id
// index), which closes the race between two concurrent deliveries of the
// same event: exactly one caller sees true.
func (l *Ledger) RecordEventOnce(ctx context.Context, eventID, eventType string, bookingID uint) (bool, error) {
	record := idempotencyModel.IdempotencyRecord{
		EventID:   eventID,
		EventType: eventType,
		BookingID: bookingID,
	}

	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&record)

	if result.Error != nil {
		// Some drivers surface the conflict instead of swallowing it.
		var pgErr *pgconn.PgError
		if errors.As(result.Error, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

// MarkProcessed appends the processing outcome to the ledger row. The row is
// otherwise write-once; failures are still acknowledged to the sender and
// recorded here for operator follow-up.
func (l *Ledger) MarkProcessed(ctx context.Context, eventID, status, errorDetail string) error {
	now := time.Now().UTC()
	return l.db.WithContext(ctx).
		Model(&idempotencyModel.IdempotencyRecord{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":       status,
			"error_detail": errorDetail,
			"processed_at": now,
		}).Error
}

// Find returns the ledger row for an event id, if any.
func (l *Ledger) Find(ctx context.Context, eventID string) (*idempotencyModel.IdempotencyRecord, error) {
	var record idempotencyModel.IdempotencyRecord
	if err := l.db.WithContext(ctx).Where("event_id = ?", eventID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
