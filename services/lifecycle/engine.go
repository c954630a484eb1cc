package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hotelmate-backend/logger"
	bookingModel "hotelmate-backend/models/booking"
	hotelModel "hotelmate-backend/models/hotel"
	"hotelmate-backend/services/deadline"
	"hotelmate-backend/services/fees"
	"hotelmate-backend/services/notify"
	"hotelmate-backend/types"
)

// PaymentGateway is the external payment collaborator. Capture converts a
// hold into a transfer, CancelAuthorization releases a hold, Refund returns
// captured funds and yields the gateway's refund handle.
type PaymentGateway interface {
	Capture(ctx context.Context, intentRef string) error
	CancelAuthorization(ctx context.Context, intentRef string) error
	Refund(ctx context.Context, intentRef string, amount int64) (string, error)
}

// Engine owns the booking state machine. Every operation runs in a single
// transaction with the booking row locked FOR UPDATE, so staff decisions,
// gateway callbacks and sweep transitions on the same booking serialize
// while unrelated bookings stay fully concurrent. No other code path may
// assign booking status or payment timestamps.
type Engine struct {
	db       *gorm.DB
	gateway  PaymentGateway
	notifier notify.Notifier
	lockWait time.Duration
}

func NewEngine(db *gorm.DB, gateway PaymentGateway, notifier notify.Notifier, lockWait time.Duration) *Engine {
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &Engine{
		db:       db,
		gateway:  gateway,
		notifier: notifier,
		lockWait: lockWait,
	}
}

// applyFunc mutates the locked booking. changed=false commits nothing and
// skips the status-event snapshot (replay no-ops).
type applyFunc func(tx *gorm.DB, b *bookingModel.Booking) (event *notify.DomainEvent, changed bool, err error)

// transition is the single write path: lock the row with a bounded wait,
// re-read state, apply, snapshot the status change, verify invariants,
// commit, then emit the domain event.
func (e *Engine) transition(ctx context.Context, bookingRef, operation, actor string, apply applyFunc) (*bookingModel.Booking, error) {
	var b bookingModel.Booking
	var event *notify.DomainEvent

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", e.lockWait.Milliseconds())).Error; err != nil {
			return err
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "bookings"}}).
			Preload("Hotel").
			Where("booking_ref = ?", bookingRef).
			First(&b).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", types.ErrBookingNotFound, bookingRef)
			}
			return mapLockError(err)
		}

		fromStatus := b.Status

		ev, changed, err := apply(tx, &b)
		if err != nil {
			return err
		}
		if !changed {
			event = nil
			return nil
		}

		if err := b.CheckInvariants(); err != nil {
			return err
		}

		b.UpdatedBy = actor
		// The preloaded Hotel is read-only config; never write it back.
		if err := tx.Omit(clause.Associations).Save(&b).Error; err != nil {
			return mapLockError(err)
		}

		statusEvent := bookingModel.BookingStatusEvent{
			BookingID:  b.ID,
			FromStatus: fromStatus,
			ToStatus:   b.Status,
			Operation:  operation,
			CreatedBy:  actor,
		}
		if err := tx.Create(&statusEvent).Error; err != nil {
			return err
		}

		event = ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Emit only after the transaction committed, exactly once per commit.
	if event != nil {
		if publishErr := e.notifier.Publish(ctx, *event); publishErr != nil {
			logger.Error("Failed to publish domain event "+event.Name, publishErr)
		}
	}

	return &b, nil
}

func (e *Engine) event(name string, b *bookingModel.Booking, at time.Time, fields map[string]interface{}) *notify.DomainEvent {
	return &notify.DomainEvent{
		EventID:    notify.NewEventID(),
		Name:       name,
		BookingID:  b.ID,
		BookingRef: b.BookingRef,
		HotelID:    b.HotelID,
		Status:     b.Status.String(),
		OccurredAt: at,
		Fields:     fields,
	}
}

// ReceiveAuthorization records a payment authorization callback and moves the
// booking to PENDING_APPROVAL. Replays (status already past PENDING_PAYMENT)
// return the current state unchanged: the status guard backs up the
// idempotency ledger's dedupe. Never sets paid_at.
func (e *Engine) ReceiveAuthorization(ctx context.Context, bookingRef, intentRef string, authorizedAt time.Time) (*bookingModel.Booking, error) {
	return e.transition(ctx, bookingRef, "receive_authorization", "gateway",
		func(tx *gorm.DB, b *bookingModel.Booking) (*notify.DomainEvent, bool, error) {
			if b.Status != bookingModel.StatusPendingPayment {
				// Replay after the transition already happened.
				return nil, false, nil
			}
			b.PaymentIntentRef = &intentRef
			b.PaymentAuthorizedAt = &authorizedAt
			b.Status = bookingModel.StatusPendingApproval
			return nil, true, nil
		})
}

// Accept captures the payment and confirms the booking. The capture happens
// while the row lock is held; only a confirmed capture sets paid_at and
// CONFIRMED. A booking a sweep already expired yields InvalidTransition.
func (e *Engine) Accept(ctx context.Context, bookingRef, staffID string, at time.Time) (*bookingModel.Booking, error) {
	return e.transition(ctx, bookingRef, "accept", staffID,
		func(tx *gorm.DB, b *bookingModel.Booking) (*notify.DomainEvent, bool, error) {
			if b.Status != bookingModel.StatusPendingApproval || b.PaymentIntentRef == nil {
				return nil, false, &types.TransitionError{BookingRef: b.BookingRef, From: b.Status.String(), Operation: "accept"}
			}

			if err := e.gateway.Capture(ctx, *b.PaymentIntentRef); err != nil {
				return nil, false, &types.GatewayError{Op: "capture", Ref: *b.PaymentIntentRef, Err: err}
			}

			b.PaidAt = &at
			b.DecisionBy = &staffID
			b.DecisionAt = &at
			b.Status = bookingModel.StatusConfirmed
			return e.event(notify.EventBookingConfirmed, b, at, map[string]interface{}{
				"decision_by": staffID,
			}), true, nil
		})
}

// Decline voids the authorization and records the staff decision.
func (e *Engine) Decline(ctx context.Context, bookingRef, staffID, reasonCode, reasonNote string, at time.Time) (*bookingModel.Booking, error) {
	return e.transition(ctx, bookingRef, "decline", staffID,
		func(tx *gorm.DB, b *bookingModel.Booking) (*notify.DomainEvent, bool, error) {
			if b.Status != bookingModel.StatusPendingApproval || b.PaymentIntentRef == nil {
				return nil, false, &types.TransitionError{BookingRef: b.BookingRef, From: b.Status.String(), Operation: "decline"}
			}

			if err := e.gateway.CancelAuthorization(ctx, *b.PaymentIntentRef); err != nil {
				return nil, false, &types.GatewayError{Op: "void", Ref: *b.PaymentIntentRef, Err: err}
			}

			b.DecisionBy = &staffID
			b.DecisionAt = &at
			b.DeclineReasonCode = &reasonCode
			if reasonNote != "" {
				b.DeclineReasonNote = &reasonNote
			}
			b.Status = bookingModel.StatusDeclined
			return e.event(notify.EventBookingDeclined, b, at, map[string]interface{}{
				"decision_by": staffID,
				"reason_code": reasonCode,
			}), true, nil
		})
}

// Cancel applies the hotel's cancellation policy and releases or refunds the
// payment. An un-captured hold is voided free of charge; a captured payment
// is refunded for the calculator's refund amount. Idempotent on refund: a
// populated refund_ref skips the gateway call.
func (e *Engine) Cancel(ctx context.Context, bookingRef, actor, reason string, at time.Time) (*bookingModel.Booking, error) {
	return e.transition(ctx, bookingRef, "cancel", actor,
		func(tx *gorm.DB, b *bookingModel.Booking) (*notify.DomainEvent, bool, error) {
			if b.Status != bookingModel.StatusPendingApproval && b.Status != bookingModel.StatusConfirmed {
				return nil, false, &types.TransitionError{BookingRef: b.BookingRef, From: b.Status.String(), Operation: "cancel"}
			}

			var policy hotelModel.CancellationPolicy
			if err := tx.Where("hotel_id = ?", b.HotelID).First(&policy).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, false, fmt.Errorf("%w: no cancellation policy for hotel %d", types.ErrPolicyMisconfigured, b.HotelID)
				}
				return nil, false, err
			}

			result, err := fees.Calculate(b, &policy, at)
			if err != nil {
				return nil, false, err
			}

			feeAmount := result.FeeAmount
			switch {
			case b.RefundRef != nil:
				// Refund already processed on an earlier attempt.
			case b.PaidAt == nil && b.PaymentIntentRef != nil:
				// Releasing an un-captured hold costs nothing.
				if err := e.gateway.CancelAuthorization(ctx, *b.PaymentIntentRef); err != nil {
					return nil, false, &types.GatewayError{Op: "void", Ref: *b.PaymentIntentRef, Err: err}
				}
				feeAmount = 0
			case b.PaidAt != nil && result.RefundAmount > 0:
				refundRef, err := e.gateway.Refund(ctx, *b.PaymentIntentRef, result.RefundAmount)
				if err != nil {
					return nil, false, &types.GatewayError{Op: "refund", Ref: *b.PaymentIntentRef, Err: err}
				}
				b.RefundRef = &refundRef
				b.RefundProcessedAt = &at
			}

			b.Status = bookingModel.StatusCancelled
			b.CancelledAt = &at
			if reason != "" {
				b.CancellationReason = &reason
			}
			b.CancellationFeeAmount = &feeAmount
			return e.event(notify.EventBookingCancelled, b, at, map[string]interface{}{
				"fee_amount":    feeAmount,
				"refund_amount": result.RefundAmount,
				"description":   result.Description,
			}), true, nil
		})
}

// CheckIn marks a confirmed guest as arrived.
func (e *Engine) CheckIn(ctx context.Context, bookingRef, staffID string, at time.Time) (*bookingModel.Booking, error) {
	return e.transition(ctx, bookingRef, "check_in", staffID,
		func(tx *gorm.DB, b *bookingModel.Booking) (*notify.DomainEvent, bool, error) {
			if b.Status != bookingModel.StatusConfirmed {
				return nil, false, &types.TransitionError{BookingRef: b.BookingRef, From: b.Status.String(), Operation: "check_in"}
			}
			b.CheckedInAt = &at
			b.Status = bookingModel.StatusCheckedIn
			return e.event(notify.EventBookingCheckedIn, b, at, nil), true, nil
		})
}

// CheckOut completes the stay and clears any overstay flag. Overstay risk
// never blocks checkout.
func (e *Engine) CheckOut(ctx context.Context, bookingRef, staffID string, at time.Time) (*bookingModel.Booking, error) {
	return e.transition(ctx, bookingRef, "check_out", staffID,
		func(tx *gorm.DB, b *bookingModel.Booking) (*notify.DomainEvent, bool, error) {
			if b.Status != bookingModel.StatusCheckedIn {
				return nil, false, &types.TransitionError{BookingRef: b.BookingRef, From: b.Status.String(), Operation: "check_out"}
			}
			b.CheckedOutAt = &at
			b.OverstayFlaggedAt = nil
			b.Status = bookingModel.StatusCheckedOut
			return e.event(notify.EventBookingCheckedOut, b, at, nil), true, nil
		})
}

// Expire voids the hold on a booking whose approval deadline passed. Driven
// by the sweep; a booking that changed status between the sweep's read and
// this call is a no-op, not an error.
func (e *Engine) Expire(ctx context.Context, bookingRef string, at time.Time) (*bookingModel.Booking, error) {
	return e.transition(ctx, bookingRef, "expire", "system",
		func(tx *gorm.DB, b *bookingModel.Booking) (*notify.DomainEvent, bool, error) {
			if b.Status != bookingModel.StatusPendingApproval {
				// A staff decision or cancellation won the row lock first.
				return nil, false, nil
			}
			if b.PaymentAuthorizedAt == nil {
				return nil, false, &types.TransitionError{BookingRef: b.BookingRef, From: b.Status.String(), Operation: "expire"}
			}

			approvalDeadline, err := deadline.ApprovalDeadline(&b.Hotel, *b.PaymentAuthorizedAt)
			if err != nil {
				return nil, false, err
			}
			if at.Before(approvalDeadline) {
				return nil, false, &types.TransitionError{BookingRef: b.BookingRef, From: b.Status.String(), Operation: "expire"}
			}

			if b.PaymentIntentRef != nil {
				if err := e.gateway.CancelAuthorization(ctx, *b.PaymentIntentRef); err != nil {
					return nil, false, &types.GatewayError{Op: "void", Ref: *b.PaymentIntentRef, Err: err}
				}
			}

			b.Status = bookingModel.StatusExpired
			return e.event(notify.EventBookingExpired, b, at, map[string]interface{}{
				"approval_deadline": approvalDeadline,
			}), true, nil
		})
}

// FlagOverstay stamps overstay_flagged_at on a checked-in booking past its
// checkout grace deadline. Re-flagging is a no-op, which keeps the sweep
// idempotent. Status does not change; only check_out ends the stay.
func (e *Engine) FlagOverstay(ctx context.Context, bookingRef string, at time.Time) (*bookingModel.Booking, error) {
	return e.transition(ctx, bookingRef, "flag_overstay", "system",
		func(tx *gorm.DB, b *bookingModel.Booking) (*notify.DomainEvent, bool, error) {
			if b.Status != bookingModel.StatusCheckedIn || b.OverstayFlaggedAt != nil {
				return nil, false, nil
			}

			risk, graceEnd, err := deadline.OverstayRisk(&b.Hotel, b.CheckOutDate, at)
			if err != nil {
				return nil, false, err
			}
			if risk != deadline.RiskOverdue && risk != deadline.RiskCritical {
				return nil, false, nil
			}

			b.OverstayFlaggedAt = &at
			return e.event(notify.EventOverstayFlagged, b, at, map[string]interface{}{
				"checkout_deadline": graceEnd,
				"risk":              string(risk),
			}), true, nil
		})
}

// MarkNoShow closes out a confirmed booking whose guest never arrived. The
// capture already happened on accept, so no gateway call is made; retention
// of the captured amount follows the hotel's terms, outside this engine.
func (e *Engine) MarkNoShow(ctx context.Context, bookingRef, staffID string, at time.Time) (*bookingModel.Booking, error) {
	return e.transition(ctx, bookingRef, "mark_no_show", staffID,
		func(tx *gorm.DB, b *bookingModel.Booking) (*notify.DomainEvent, bool, error) {
			if b.Status != bookingModel.StatusConfirmed {
				return nil, false, &types.TransitionError{BookingRef: b.BookingRef, From: b.Status.String(), Operation: "mark_no_show"}
			}
			b.DecisionBy = &staffID
			b.DecisionAt = &at
			b.Status = bookingModel.StatusNoShow
			return e.event(notify.EventBookingNoShow, b, at, map[string]interface{}{
				"decision_by": staffID,
			}), true, nil
		})
}

// mapLockError translates Postgres lock_timeout (55P03) into the retriable
// taxonomy error.
func mapLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return fmt.Errorf("%w: %v", types.ErrLockTimeout, err)
	}
	return err
}
