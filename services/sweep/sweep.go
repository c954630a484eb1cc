package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"hotelmate-backend/logger"
	bookingModel "hotelmate-backend/models/booking"
	"hotelmate-backend/services/deadline"
	"hotelmate-backend/services/lifecycle"
	"hotelmate-backend/types"
)

// Sweeper periodically enforces approval and checkout deadlines by driving
// the lifecycle engine. Idempotent by construction: a booking already
// expired, flagged, or decided between the scan and the engine call is a
// no-op, so overlapping or repeated sweeps are harmless.
type Sweeper struct {
	db       *gorm.DB
	engine   *lifecycle.Engine
	interval time.Duration
}

func NewSweeper(db *gorm.DB, engine *lifecycle.Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{db: db, engine: engine, interval: interval}
}

// Start runs the sweep loop until the context is cancelled. Meant to run in
// its own goroutine alongside the request handlers.
func (s *Sweeper) Start(ctx context.Context) {
	logger.Info(fmt.Sprintf("Deadline sweep running every %s", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Deadline sweep stopped")
			return
		case <-ticker.C:
			expired, flagged, err := s.RunOnce(ctx, time.Now().UTC())
			if err != nil {
				logger.Error("Deadline sweep run failed", err)
				continue
			}
			if expired > 0 || flagged > 0 {
				logger.Info(fmt.Sprintf("Deadline sweep: expired %d, flagged %d overstays", expired, flagged))
			}
		}
	}
}

// RunOnce performs a single sweep at the given instant and reports how many
// bookings were expired and how many overstays were flagged.
func (s *Sweeper) RunOnce(ctx context.Context, at time.Time) (expired, flagged int, err error) {
	expired, err = s.expireOverdueApprovals(ctx, at)
	if err != nil {
		return expired, 0, err
	}
	flagged, err = s.flagOverdueCheckouts(ctx, at)
	return expired, flagged, err
}

// expireOverdueApprovals finds PENDING_APPROVAL bookings past their approval
// deadline. Deadlines come from the same resolver the risk display uses, so
// sweep enforcement and dashboard risk can never disagree.
func (s *Sweeper) expireOverdueApprovals(ctx context.Context, at time.Time) (int, error) {
	var candidates []bookingModel.Booking
	if err := s.db.WithContext(ctx).Preload("Hotel").
		Where("status = ? AND payment_authorized_at IS NOT NULL", bookingModel.StatusPendingApproval).
		Find(&candidates).Error; err != nil {
		return 0, err
	}

	expired := 0
	for i := range candidates {
		b := &candidates[i]
		risk, _, err := deadline.ApprovalRisk(&b.Hotel, *b.PaymentAuthorizedAt, at)
		if err != nil {
			logger.Error("Skipping booking "+b.BookingRef+" in approval sweep", err)
			continue
		}
		if risk != deadline.RiskOverdue && risk != deadline.RiskCritical {
			continue
		}

		if _, err := s.engine.Expire(ctx, b.BookingRef, at); err != nil {
			if errors.Is(err, types.ErrInvalidTransition) {
				// Raced a staff decision or cancellation; their commit wins.
				continue
			}
			logger.Error("Failed to expire booking "+b.BookingRef, err)
			continue
		}
		expired++
	}
	return expired, nil
}

// flagOverdueCheckouts finds CHECKED_IN bookings past their checkout grace
// deadline and stamps the overstay flag. Flagging never blocks check_out.
func (s *Sweeper) flagOverdueCheckouts(ctx context.Context, at time.Time) (int, error) {
	var candidates []bookingModel.Booking
	if err := s.db.WithContext(ctx).Preload("Hotel").
		Where("status = ? AND overstay_flagged_at IS NULL", bookingModel.StatusCheckedIn).
		Find(&candidates).Error; err != nil {
		return 0, err
	}

	flagged := 0
	for i := range candidates {
		b := &candidates[i]
		risk, _, err := deadline.OverstayRisk(&b.Hotel, b.CheckOutDate, at)
		if err != nil {
			logger.Error("Skipping booking "+b.BookingRef+" in overstay sweep", err)
			continue
		}
		if risk != deadline.RiskOverdue && risk != deadline.RiskCritical {
			continue
		}

		updated, err := s.engine.FlagOverstay(ctx, b.BookingRef, at)
		if err != nil {
			logger.Error("Failed to flag overstay for booking "+b.BookingRef, err)
			continue
		}
		if updated.OverstayFlaggedAt != nil && updated.OverstayFlaggedAt.Equal(at) {
			flagged++
		}
	}
	return flagged, nil
}
