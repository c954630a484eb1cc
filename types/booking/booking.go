package booking

import (
	"fmt"
	"time"
)

// BookingCreateRequest represents the request payload for starting a guest checkout
type BookingCreateRequest struct {
	BookingRef   string    `json:"booking_ref" validate:"required,min=1,max=255"`
	HotelSlug    string    `json:"hotel_slug" validate:"required,min=1,max=100"`
	GuestName    string    `json:"guest_name" validate:"required,min=1,max=255"`
	GuestPhone   string    `json:"guest_phone" validate:"omitempty,max=20"`
	GuestEmail   string    `json:"guest_email" validate:"omitempty,email"`
	TotalAmount  int64     `json:"total_amount" validate:"required,gt=0"`
	Currency     string    `json:"currency" validate:"omitempty,len=3"`
	CheckInDate  time.Time `json:"check_in_date" validate:"required"`
	CheckOutDate time.Time `json:"check_out_date" validate:"required"`
}

func (b BookingCreateRequest) Validate() error {
	if b.BookingRef == "" {
		return fmt.Errorf("booking_ref is required")
	}
	if b.HotelSlug == "" {
		return fmt.Errorf("hotel_slug is required")
	}
	if b.GuestName == "" {
		return fmt.Errorf("guest_name is required")
	}
	if b.TotalAmount <= 0 {
		return fmt.Errorf("total_amount must be positive")
	}
	if b.CheckInDate.IsZero() || b.CheckOutDate.IsZero() {
		return fmt.Errorf("check_in_date and check_out_date are required")
	}
	if !b.CheckOutDate.After(b.CheckInDate) {
		return fmt.Errorf("check_out_date must be after check_in_date")
	}
	return nil
}

// DeclineRequest represents the staff payload for declining a booking
type DeclineRequest struct {
	ReasonCode string `json:"reason_code" validate:"required,min=1,max=50"`
	ReasonNote string `json:"reason_note" validate:"omitempty"`
}

func (d DeclineRequest) Validate() error {
	if d.ReasonCode == "" {
		return fmt.Errorf("reason_code is required")
	}
	return nil
}

// CancelRequest represents the payload for cancelling a booking
type CancelRequest struct {
	Reason string `json:"reason" validate:"omitempty"`
}

// PaymentEventRequest is the asynchronous payment-gateway callback payload.
// Each delivery carries a unique event id; redeliveries reuse it.
type PaymentEventRequest struct {
	EventID      string    `json:"event_id" validate:"required"`
	EventType    string    `json:"event_type" validate:"required"`
	BookingRef   string    `json:"booking_ref" validate:"required"`
	IntentRef    string    `json:"intent_ref" validate:"required"`
	AuthorizedAt time.Time `json:"authorized_at" validate:"required"`
}

func (p PaymentEventRequest) Validate() error {
	if p.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if p.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if p.BookingRef == "" {
		return fmt.Errorf("booking_ref is required")
	}
	if p.IntentRef == "" {
		return fmt.Errorf("intent_ref is required")
	}
	return nil
}
