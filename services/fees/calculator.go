package fees

import (
	"fmt"
	"math"
	"time"

	bookingModel "hotelmate-backend/models/booking"
	hotelModel "hotelmate-backend/models/hotel"
	"hotelmate-backend/types"
)

// Result is the outcome of a cancellation fee computation. FeeAmount and
// RefundAmount are minor units and always sum to the booking total.
type Result struct {
	CanCancel    bool   `json:"can_cancel"`
	FeeAmount    int64  `json:"fee_amount"`
	RefundAmount int64  `json:"refund_amount"`
	Description  string `json:"description"`
}

// Calculate computes the cancellation fee and refund for a booking under the
// given policy at the given instant. Pure: no clock, no I/O. The description
// is derived from the branch taken so a recomputation always matches what was
// charged.
func Calculate(b *bookingModel.Booking, policy *hotelModel.CancellationPolicy, now time.Time) (Result, error) {
	if policy == nil || !policy.PenaltyType.IsValid() {
		return Result{}, fmt.Errorf("%w: cancellation policy missing or invalid for hotel %d",
			types.ErrPolicyMisconfigured, b.HotelID)
	}
	if policy.PenaltyType != hotelModel.PenaltyNonRefundable && policy.PenaltyValue < 0 {
		return Result{}, fmt.Errorf("%w: negative penalty value for hotel %d",
			types.ErrPolicyMisconfigured, b.HotelID)
	}

	total := b.TotalAmount
	hoursUntilCheckIn := int(math.Floor(b.CheckInDate.Sub(now).Hours()))

	// Cancellation is always permitted; refund eligibility is a separate axis.
	switch {
	case policy.PenaltyType == hotelModel.PenaltyNonRefundable:
		return Result{
			CanCancel:    true,
			FeeAmount:    total,
			RefundAmount: 0,
			Description:  "Non-refundable rate: the full amount is retained.",
		}, nil

	case hoursUntilCheckIn >= policy.FreeUntilHours:
		return Result{
			CanCancel:    true,
			FeeAmount:    0,
			RefundAmount: total,
			Description: fmt.Sprintf("Free cancellation: %d hours before check-in (free until %d hours).",
				hoursUntilCheckIn, policy.FreeUntilHours),
		}, nil

	case policy.PenaltyType == hotelModel.PenaltyPercentage:
		// The single rounding point: half-up to the minor unit. Never
		// re-rounded downstream, so fee + refund == total exactly.
		fee := int64(math.Round(float64(total) * policy.PenaltyValue / 100))
		if fee > total {
			fee = total
		}
		return Result{
			CanCancel:    true,
			FeeAmount:    fee,
			RefundAmount: total - fee,
			Description: fmt.Sprintf("Late cancellation inside %d hours of check-in: %.4g%% fee applies.",
				policy.FreeUntilHours, policy.PenaltyValue),
		}, nil

	default: // hotelModel.PenaltyFixed
		fee := int64(math.Round(policy.PenaltyValue))
		if fee > total {
			fee = total
		}
		return Result{
			CanCancel:    true,
			FeeAmount:    fee,
			RefundAmount: total - fee,
			Description: fmt.Sprintf("Late cancellation inside %d hours of check-in: fixed fee applies.",
				policy.FreeUntilHours),
		}, nil
	}
}
