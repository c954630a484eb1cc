package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hotelmate-backend/logger"
)

// Domain event names emitted after committed lifecycle transitions.
const (
	EventBookingConfirmed  = "booking_confirmed"
	EventBookingDeclined   = "booking_declined"
	EventBookingCancelled  = "booking_cancelled"
	EventBookingExpired    = "booking_expired"
	EventBookingCheckedIn  = "booking_checked_in"
	EventBookingCheckedOut = "booking_checked_out"
	EventBookingNoShow     = "booking_no_show"
	EventOverstayFlagged   = "overstay_flagged"
)

// DomainEvent is the payload handed to notification dispatch. Delivery
// mechanics (push, email, chat) live outside this service; the lifecycle
// engine's only obligation is to emit the event once per committed
// transition, after the transaction commits.
type DomainEvent struct {
	// EventID uniquely identifies this emission so downstream consumers can
	// dedupe their own at-least-once delivery.
	EventID    string                 `json:"event_id"`
	Name       string                 `json:"name"`
	BookingID  uint                   `json:"booking_id"`
	BookingRef string                 `json:"booking_ref"`
	HotelID    uint                   `json:"hotel_id"`
	Status     string                 `json:"status"`
	OccurredAt time.Time              `json:"occurred_at"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Notifier publishes domain events to the notification edge.
type Notifier interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// NewEventID mints the emission identifier attached to every domain event.
func NewEventID() string {
	return uuid.NewString()
}

// LogNotifier writes events to the application log. Used when no broker is
// configured, and as the safety net in tests.
type LogNotifier struct{}

func (LogNotifier) Publish(_ context.Context, event DomainEvent) error {
	logger.Info(fmt.Sprintf("domain event %s for booking %s (status %s)",
		event.Name, event.BookingRef, event.Status))
	return nil
}
