package lifecycle

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	bookingModel "hotelmate-backend/models/booking"
)

// Create opens a reservation in PENDING_PAYMENT. Idempotent on booking_ref:
// a replayed create returns the existing row untouched instead of failing,
// so a retried checkout never duplicates a booking.
func (e *Engine) Create(ctx context.Context, b *bookingModel.Booking, createdBy string) (*bookingModel.Booking, bool, error) {
	var existing bookingModel.Booking
	err := e.db.WithContext(ctx).Preload("Hotel").
		Where("booking_ref = ?", b.BookingRef).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	b.Status = bookingModel.StatusPendingPayment
	b.PaymentIntentRef = nil
	b.PaymentAuthorizedAt = nil
	b.PaidAt = nil
	b.CreatedBy = createdBy
	if b.Currency == "" {
		b.Currency = "EUR"
	}
	if err := b.CheckInvariants(); err != nil {
		return nil, false, err
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(b).Error; err != nil {
			return err
		}
		statusEvent := bookingModel.BookingStatusEvent{
			BookingID:  b.ID,
			FromStatus: bookingModel.StatusPendingPayment,
			ToStatus:   bookingModel.StatusPendingPayment,
			Operation:  "create",
			CreatedBy:  createdBy,
		}
		return tx.Create(&statusEvent).Error
	})
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// History returns the status-event audit trail for a booking, oldest first.
func (e *Engine) History(ctx context.Context, bookingID uint) ([]bookingModel.BookingStatusEvent, error) {
	var events []bookingModel.BookingStatusEvent
	if err := e.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("id asc").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
