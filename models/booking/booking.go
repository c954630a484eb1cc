package booking

import (
	"fmt"
	"time"

	"hotelmate-backend/models/hotel"
)

// Booking represents a guest reservation and its payment lifecycle state.
// Status, payment timestamps and audit fields are written exclusively by the
// lifecycle engine (services/lifecycle); no other code path may assign them.
type Booking struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	// Foreign key for hotel (tenant) relationship
	HotelID uint        `gorm:"not null;index" json:"hotel_id"`
	Hotel   hotel.Hotel `gorm:"foreignKey:HotelID" json:"hotel"`

	BookingRef string `gorm:"type:varchar(255);not null;unique" json:"booking_ref"`
	GuestName  string `gorm:"type:varchar(255);not null" json:"guest_name"`
	GuestPhone string `gorm:"type:varchar(20)" json:"guest_phone,omitempty"`
	GuestEmail string `gorm:"type:varchar(255)" json:"guest_email,omitempty"`

	// Money is carried in the currency's minor unit (cents).
	TotalAmount int64  `gorm:"not null" json:"total_amount"`
	Currency    string `gorm:"type:varchar(3);not null;default:EUR" json:"currency"`

	Status Status `gorm:"type:varchar(20);not null;index" json:"status"`

	// Stay window. Stored as UTC instants, midnight for date-only payloads;
	// deadline arithmetic reads the calendar day in UTC.
	CheckInDate  time.Time `gorm:"not null" json:"check_in_date"`
	CheckOutDate time.Time `gorm:"not null" json:"check_out_date"`

	// Payment linkage
	PaymentIntentRef    *string    `gorm:"type:varchar(255);index" json:"payment_intent_ref,omitempty"`
	PaymentAuthorizedAt *time.Time `json:"payment_authorized_at,omitempty"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	RefundRef           *string    `gorm:"type:varchar(255)" json:"refund_ref,omitempty"`
	RefundProcessedAt   *time.Time `json:"refund_processed_at,omitempty"`

	// Decision audit
	DecisionBy        *string    `gorm:"type:varchar(255)" json:"decision_by,omitempty"`
	DecisionAt        *time.Time `json:"decision_at,omitempty"`
	DeclineReasonCode *string    `gorm:"type:varchar(50)" json:"decline_reason_code,omitempty"`
	DeclineReasonNote *string    `gorm:"type:text" json:"decline_reason_note,omitempty"`

	// Cancellation audit
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason    *string    `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CancellationFeeAmount *int64     `json:"cancellation_fee_amount,omitempty"`

	// Overstay audit
	CheckedInAt       *time.Time `json:"checked_in_at,omitempty"`
	CheckedOutAt      *time.Time `json:"checked_out_at,omitempty"`
	OverstayFlaggedAt *time.Time `json:"overstay_flagged_at,omitempty"`

	CreatedBy string    `gorm:"type:varchar(255);not null" json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedBy string    `gorm:"type:varchar(255)" json:"updated_by,omitempty"`
	// UpdatedAt doubles as the optimistic concurrency token alongside the
	// row lock taken during transitions.
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CheckInvariants verifies the status/timestamp consistency rules that must
// hold after every committed transition. The engine runs it before commit;
// the property tests run it after every generated operation.
func (b *Booking) CheckInvariants() error {
	switch b.Status {
	case StatusPendingPayment:
		if b.PaymentAuthorizedAt != nil || b.PaidAt != nil {
			return fmt.Errorf("booking %s: PENDING_PAYMENT must carry no payment timestamps", b.BookingRef)
		}
	case StatusPendingApproval, StatusDeclined:
		if b.PaymentAuthorizedAt == nil {
			return fmt.Errorf("booking %s: %s requires payment_authorized_at", b.BookingRef, b.Status)
		}
		if b.PaidAt != nil {
			return fmt.Errorf("booking %s: %s must not carry paid_at", b.BookingRef, b.Status)
		}
	case StatusConfirmed, StatusCheckedIn, StatusCheckedOut:
		if b.PaymentAuthorizedAt == nil || b.PaidAt == nil {
			return fmt.Errorf("booking %s: %s requires both payment_authorized_at and paid_at", b.BookingRef, b.Status)
		}
	}
	if b.PaymentIntentRef != nil && b.PaymentAuthorizedAt == nil {
		return fmt.Errorf("booking %s: payment_intent_ref without payment_authorized_at", b.BookingRef)
	}
	return nil
}
